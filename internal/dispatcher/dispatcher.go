// Package dispatcher is the entry point for calling IRI API operations by id.
//
// A call resolves the operation in the catalog, binds the caller's
// parameters, executes the request and decodes the JSON response. Failures
// before the network (unknown operation, missing parameters) never reach
// the executor.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"iriclient/internal/apperrors"
	"iriclient/internal/binding"
	"iriclient/internal/catalog"
	"iriclient/internal/executor"
)

// DefaultPingOperation is a cheap read used as a readiness probe.
const DefaultPingOperation = "getFacility"

// CallRequest names an operation and carries its parameters.
type CallRequest struct {
	OperationID string
	PathParams  map[string]string
	Query       map[string]any
	Body        any
}

// Executor sends bound requests. *executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, req *binding.Request, auth executor.AuthContext) (*executor.Response, error)
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	catalog       *catalog.Catalog
	exec          Executor
	auth          executor.AuthContext
	pingOperation string
	logger        *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPingOperation sets the operation used by Ping.
func WithPingOperation(id string) Option {
	return func(d *Dispatcher) {
		if id != "" {
			d.pingOperation = id
		}
	}
}

// New creates a dispatcher bound to one server and credential. An empty
// auth.BaseURL falls back to the catalog's server URL.
func New(cat *catalog.Catalog, exec Executor, auth executor.AuthContext, opts ...Option) *Dispatcher {
	if auth.BaseURL == "" {
		auth.BaseURL = cat.ServerURL()
	}
	d := &Dispatcher{
		catalog:       cat,
		exec:          exec,
		auth:          auth,
		pingOperation: DefaultPingOperation,
		logger:        slog.With("component", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CallOperation invokes a catalog operation and returns the decoded JSON
// payload. An empty response body yields nil.
func (d *Dispatcher) CallOperation(ctx context.Context, call CallRequest) (any, error) {
	op, err := d.catalog.Resolve(call.OperationID)
	if err != nil {
		return nil, err
	}
	return d.invoke(ctx, op, binding.Params{
		Path:  call.PathParams,
		Query: call.Query,
		Body:  call.Body,
	})
}

// Request sends an arbitrary method and path relative to the base URL,
// bypassing the catalog. Braces in path are sent literally.
func (d *Dispatcher) Request(ctx context.Context, method, path string, query map[string]any, body any) (any, error) {
	op := binding.Raw(method, path)
	if op.Method == "" {
		return nil, apperrors.InvalidRequest(op.ID, "HTTP method is required", nil)
	}
	return d.invoke(ctx, op, binding.Params{Query: query, Body: body})
}

// Operations lists the catalog in definition order.
func (d *Dispatcher) Operations() []catalog.Operation {
	return d.catalog.List()
}

// BaseURL returns the server this dispatcher talks to. Empty means the
// executor's default.
func (d *Dispatcher) BaseURL() string {
	return d.auth.BaseURL
}

// Ping calls the configured probe operation and discards the payload.
func (d *Dispatcher) Ping(ctx context.Context) error {
	_, err := d.CallOperation(ctx, CallRequest{OperationID: d.pingOperation})
	return err
}

func (d *Dispatcher) invoke(ctx context.Context, op catalog.Operation, params binding.Params) (any, error) {
	req, err := binding.Bind(op, params)
	if err != nil {
		return nil, err
	}

	resp, err := d.exec.Execute(ctx, req, d.auth)
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		d.logger.Debug("Operation returned error status",
			"operation", op.ID,
			"status", resp.StatusCode,
		)
		return nil, apperrors.HTTPStatus(op.ID, resp.StatusCode, resp.Body)
	}

	payload, err := Decode(resp.Body)
	if err != nil {
		return nil, apperrors.Decode(op.ID, resp.Body, err)
	}
	return payload, nil
}

// Decode parses a single JSON document. Numbers are kept as json.Number so
// large identifiers survive re-encoding. Blank input decodes to nil.
func Decode(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON document")
	}
	return payload, nil
}
