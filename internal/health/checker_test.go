package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakePinger struct {
	calls atomic.Int32
	err   error
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("ping without deadline")
	}
	return p.err
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil, "")

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoClient(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil, "")

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	apiCheck, ok := response.Checks["api"]
	if !ok {
		t.Fatal("Expected api check to be present")
	}
	if apiCheck.Status != StatusUnhealthy {
		t.Errorf("Expected api check to be unhealthy, got %s", apiCheck.Status)
	}
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"reachable", nil, StatusHealthy},
		{"unreachable", errors.New("connection refused"), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			checker := NewChecker(&fakePinger{err: tt.err}, "https://api.example.org")

			response := checker.Readiness(context.Background())
			if response.Status != tt.want {
				t.Errorf("Status = %s, want %s", response.Status, tt.want)
			}
			if response.BaseURL != "https://api.example.org" {
				t.Errorf("BaseURL = %q", response.BaseURL)
			}
			if tt.err != nil && response.Checks["api"].Message != tt.err.Error() {
				t.Errorf("Message = %q, want %q", response.Checks["api"].Message, tt.err.Error())
			}
		})
	}
}

func TestChecker_ReadinessIsCached(t *testing.T) {
	t.Parallel()
	pinger := &fakePinger{}
	checker := NewChecker(pinger, "")
	now := time.Unix(1000, 0)
	checker.now = func() time.Time { return now }

	first := checker.Readiness(context.Background())
	second := checker.Readiness(context.Background())
	if first != second {
		t.Error("Expected cached response within one second")
	}
	if pinger.calls.Load() != 1 {
		t.Errorf("Expected 1 ping, got %d", pinger.calls.Load())
	}

	now = now.Add(2 * time.Second)
	checker.Readiness(context.Background())
	if pinger.calls.Load() != 2 {
		t.Errorf("Expected 2 pings after cache expiry, got %d", pinger.calls.Load())
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
