// Package executor sends bound requests to the IRI API.
//
// The executor owns the HTTP client, optional client-side rate limiting and
// an optional per-host circuit breaker. Any HTTP response, whatever its
// status, is returned as a Response. Only failures that leave the caller
// without a response are reported as transport errors.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"iriclient/internal/apperrors"
	"iriclient/internal/binding"
	"iriclient/pkg/circuitbreaker"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultServerURL is used when neither the caller nor the catalog names a server.
const DefaultServerURL = "https://api.iri.nersc.gov"

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "iri-cli/1.0"
	defaultMaxBody   = 32 << 20
)

// AuthContext carries the server and credentials for a Dispatcher.
// An empty Token sends no Authorization header.
type AuthContext struct {
	BaseURL string
	Token   string
}

// Response is a raw HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Config controls the executor. Zero values use defaults; RateLimit 0 and a
// nil Breaker disable those features.
type Config struct {
	Timeout        time.Duration          // per-request timeout (default: 30s)
	RateLimit      float64                // requests per second
	RateBurst      int                    // limiter burst (default: 1)
	Breaker        *circuitbreaker.Config // per-host breaker
	UserAgent      string                 // default: iri-cli/1.0
	Transport      http.RoundTripper      // nil uses http.DefaultTransport
	DefaultBaseURL string                 // used when AuthContext.BaseURL is empty
	MaxBodyBytes   int64                  // response size limit (default: 32 MiB)
}

// MetricsRecorder is an optional interface for recording request metrics.
type MetricsRecorder interface {
	RecordAPIRequest(ctx context.Context, operation, method string, statusCode int, durationSeconds float64)
	RecordAPITransportError(ctx context.Context, operation string)
}

// Executor is safe for concurrent use.
type Executor struct {
	client    *http.Client
	limiter   *rate.Limiter
	breakers  *circuitbreaker.Registry
	userAgent string
	baseURL   string
	maxBody   int64
	metrics   MetricsRecorder
	logger    *slog.Logger
}

// New creates an executor. metrics may be nil.
func New(cfg Config, metrics MetricsRecorder) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.DefaultBaseURL == "" {
		cfg.DefaultBaseURL = DefaultServerURL
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}

	e := &Executor{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		userAgent: cfg.UserAgent,
		baseURL:   cfg.DefaultBaseURL,
		maxBody:   cfg.MaxBodyBytes,
		metrics:   metrics,
		logger:    slog.With("component", "executor"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.Breaker != nil {
		e.breakers = circuitbreaker.NewRegistry(*cfg.Breaker)
	}
	return e
}

// Execute sends req to the server named by auth.
func (e *Executor) Execute(ctx context.Context, req *binding.Request, auth AuthContext) (*Response, error) {
	base := auth.BaseURL
	if base == "" {
		base = e.baseURL
	}
	target, err := ResolveURL(base, req.Path, req.Query)
	if err != nil {
		return nil, apperrors.InvalidRequest(req.OperationID, "invalid request URL", err)
	}

	var body io.Reader
	if req.HasBody() {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, apperrors.InvalidRequest(req.OperationID, "failed to create request", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("X-Request-Id", requestID)
	if req.HasBody() {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if auth.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+auth.Token)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.recordTransportError(ctx, req.OperationID)
			return nil, apperrors.Transport(req.OperationID, fmt.Errorf("rate limiter: %w", err))
		}
	}

	var breaker *circuitbreaker.Breaker
	if e.breakers != nil {
		breaker = e.breakers.Get(target.Host)
		if !breaker.Allow() {
			e.recordTransportError(ctx, req.OperationID)
			return nil, apperrors.Transport(req.OperationID, fmt.Errorf("%s: %w", target.Host, circuitbreaker.ErrOpen))
		}
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		e.recordTransportError(ctx, req.OperationID)
		e.logger.Debug("Request failed",
			"operation", req.OperationID,
			"method", req.Method,
			"host", target.Host,
			"request_id", requestID,
			"error", err,
		)
		return nil, apperrors.Transport(req.OperationID, unwrapURLError(err))
	}
	defer resp.Body.Close()

	// One byte past the limit tells a full-size body from an oversized one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody+1))
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		e.recordTransportError(ctx, req.OperationID)
		return nil, apperrors.Transport(req.OperationID, fmt.Errorf("failed to read response body: %w", err))
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordAPIRequest(ctx, req.OperationID, req.Method, resp.StatusCode, elapsed.Seconds())
	}
	if int64(len(data)) > e.maxBody {
		e.logger.Warn("Response body too large",
			"operation", req.OperationID,
			"status", resp.StatusCode,
			"limit", e.maxBody,
			"request_id", requestID,
		)
		return nil, apperrors.ResponseTooLarge(req.OperationID, resp.StatusCode, e.maxBody)
	}
	e.logger.Debug("Request completed",
		"operation", req.OperationID,
		"method", req.Method,
		"path", target.Path,
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration", elapsed,
		"request_id", requestID,
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (e *Executor) recordTransportError(ctx context.Context, operation string) {
	if e.metrics != nil {
		e.metrics.RecordAPITransportError(ctx, operation)
	}
}

// ResolveURL joins a relative API path onto base. The base is treated as a
// directory, so a base of https://host/prefix and a path of /api/v1/x yield
// https://host/prefix/api/v1/x. Absolute URLs and scheme-relative paths are
// rejected so a request can never leave the configured server.
func ResolveURL(base, path string, query url.Values) (*url.URL, error) {
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", base)
	}
	if baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", base)
	}
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
		if baseURL.RawPath != "" {
			baseURL.RawPath += "/"
		}
	}
	baseURL.RawQuery = ""
	baseURL.Fragment = ""

	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("path %q must be relative to the base URL", path)
	}

	target := baseURL.ResolveReference(ref)
	if len(query) > 0 {
		if target.RawQuery != "" {
			target.RawQuery += "&" + query.Encode()
		} else {
			target.RawQuery = query.Encode()
		}
	}
	return target, nil
}

// unwrapURLError drops the *url.Error wrapper, whose message repeats the
// method and full URL.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
