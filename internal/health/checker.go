// Package health checks that the configured IRI API is reachable and
// accepts the client's credentials.
package health

import (
	"context"
	"sync"
	"time"
)

// Pinger performs a cheap authenticated call against the API.
// *dispatcher.Dispatcher implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status  Status                 `json:"status"`
	BaseURL string                 `json:"base_url,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// Checker probes the API. Results are cached for a second so repeated
// readiness calls do not hammer the server.
type Checker struct {
	api     Pinger
	baseURL string
	timeout time.Duration
	now     func() time.Time

	mu          sync.Mutex
	lastCheck   time.Time
	cachedReady *Response
}

// NewChecker creates a new health checker.
func NewChecker(api Pinger, baseURL string) *Checker {
	return &Checker{
		api:     api,
		baseURL: baseURL,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// SetTimeout bounds each probe. Non-positive values are ignored.
func (c *Checker) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Liveness reports that the client itself is functional. It makes no
// network calls.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness probes the API.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.Lock()
	if c.cachedReady != nil && c.now().Sub(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	apiCheck := c.checkAPI(ctx)
	response := &Response{
		Status:  apiCheck.Status,
		BaseURL: c.baseURL,
		Checks:  map[string]CheckResult{"api": apiCheck},
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = c.now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkAPI(ctx context.Context) CheckResult {
	if c.api == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "api client not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	err := c.api.Ping(ctx)
	latency := float64(c.now().Sub(start).Microseconds()) / 1000
	if err != nil {
		return CheckResult{
			Status:    StatusUnhealthy,
			Message:   err.Error(),
			LatencyMS: latency,
		}
	}

	return CheckResult{
		Status:    StatusHealthy,
		LatencyMS: latency,
	}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}
