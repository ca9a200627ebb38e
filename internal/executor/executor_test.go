package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"iriclient/internal/apperrors"
	"iriclient/internal/binding"
	"iriclient/internal/testutil"
	"iriclient/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu        sync.Mutex
	requests  []int
	transport int
}

func (m *recordingMetrics) RecordAPIRequest(_ context.Context, _, _ string, status int, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, status)
}

func (m *recordingMetrics) RecordAPITransportError(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transport++
}

func getFacility() *binding.Request {
	return &binding.Request{OperationID: "getFacility", Method: http.MethodGet, Path: "/api/v1/facility"}
}

func TestExecute_GetWithoutBody(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.JSON(http.StatusOK, `{"name":"NERSC"}`))
	e := New(Config{Transport: tr}, nil)

	resp, err := e.Execute(context.Background(), getFacility(), AuthContext{BaseURL: "https://api.example.org", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.JSONEq(t, `{"name":"NERSC"}`, string(resp.Body))

	require.Equal(t, 1, tr.Calls())
	sent := tr.Last()
	assert.Equal(t, http.MethodGet, sent.Method)
	assert.Equal(t, "https://api.example.org/api/v1/facility", sent.URL)
	assert.Empty(t, sent.Body)
	assert.Equal(t, "application/json", sent.Header.Get("Accept"))
	assert.Empty(t, sent.Header.Get("Content-Type"), "no content type without body")
	assert.Equal(t, "Bearer tok", sent.Header.Get("Authorization"))
	assert.Equal(t, defaultUserAgent, sent.Header.Get("User-Agent"))
	assert.NotEmpty(t, sent.Header.Get("X-Request-Id"))
}

func TestExecute_NoTokenNoAuthorization(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport()
	e := New(Config{Transport: tr}, nil)

	_, err := e.Execute(context.Background(), getFacility(), AuthContext{BaseURL: "https://api.example.org"})
	require.NoError(t, err)

	_, present := tr.Last().Header["Authorization"]
	assert.False(t, present, "Authorization header must be absent without a token")
}

func TestExecute_BodyAndQuery(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.JSON(http.StatusAccepted, `{"id":"job-1"}`))
	e := New(Config{Transport: tr}, nil)

	req := &binding.Request{
		OperationID: "launchJob",
		Method:      http.MethodPost,
		Path:        "/api/v1/compute/job/res%2F1",
		Query:       url.Values{"dry_run": {"true"}},
		Body:        []byte(`{"executable":"/bin/true"}`),
	}
	resp, err := e.Execute(context.Background(), req, AuthContext{BaseURL: "https://api.example.org/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	sent := tr.Last()
	assert.Equal(t, "https://api.example.org/api/v1/compute/job/res%2F1?dry_run=true", sent.URL)
	assert.Equal(t, "application/json", sent.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"executable":"/bin/true"}`, string(sent.Body))
}

func TestExecute_DefaultBaseURL(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport()

	_, err := New(Config{Transport: tr}, nil).Execute(context.Background(), getFacility(), AuthContext{})
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL+"/api/v1/facility", tr.Last().URL)

	_, err = New(Config{Transport: tr, DefaultBaseURL: "https://catalog.example.org/iri"}, nil).
		Execute(context.Background(), getFacility(), AuthContext{})
	require.NoError(t, err)
	assert.Equal(t, "https://catalog.example.org/iri/api/v1/facility", tr.Last().URL)
}

func TestExecute_HTTPErrorsAreResponses(t *testing.T) {
	t.Parallel()
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		tr := testutil.NewTransport(testutil.JSON(status, `{"detail":"nope"}`))
		metrics := &recordingMetrics{}
		e := New(Config{Transport: tr}, metrics)

		resp, err := e.Execute(context.Background(), getFacility(), AuthContext{})
		require.NoError(t, err, "status %d", status)
		assert.Equal(t, status, resp.StatusCode)
		assert.False(t, resp.IsSuccess())
		assert.Equal(t, `{"detail":"nope"}`, string(resp.Body))
		assert.Equal(t, []int{status}, metrics.requests)
	}
}

func TestExecute_ResponseSizeLimit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		ok     bool
	}{
		{"at limit", http.StatusOK, `"0123456789"`, true},
		{"over limit", http.StatusOK, `"01234567890"`, false},
		{"error over limit", http.StatusInternalServerError, `{"detail":"boom"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testutil.NewTransport(testutil.JSON(tt.status, tt.body))
			e := New(Config{Transport: tr, MaxBodyBytes: 12}, nil)

			resp, err := e.Execute(context.Background(), getFacility(), AuthContext{})
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(resp.Body))
				return
			}
			require.ErrorIs(t, err, apperrors.ErrResponseTooLarge)
			assert.Nil(t, resp)
			assert.False(t, apperrors.IsTransient(err))
			status, _ := apperrors.StatusCode(err)
			assert.Zero(t, status, "an oversized body is not an HTTP status error")
			assert.Contains(t, err.Error(), "exceeds 12 bytes")
		})
	}
}

func TestExecute_TransportError(t *testing.T) {
	t.Parallel()
	refused := errors.New("connect: connection refused")
	tr := testutil.NewTransport(testutil.Reply{Err: refused})
	metrics := &recordingMetrics{}
	e := New(Config{Transport: tr}, metrics)

	_, err := e.Execute(context.Background(), getFacility(), AuthContext{})
	require.ErrorIs(t, err, apperrors.ErrTransport)
	assert.ErrorIs(t, err, refused)
	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, 1, metrics.transport)
	assert.Empty(t, metrics.requests)
}

func TestExecute_Timeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	e := New(Config{Timeout: 50 * time.Millisecond}, nil)
	_, err := e.Execute(context.Background(), getFacility(), AuthContext{BaseURL: srv.URL})
	require.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestExecute_InvalidBaseURL(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport()
	e := New(Config{Transport: tr}, nil)

	for _, base := range []string{"ftp://example.org", "not a url", "https://"} {
		_, err := e.Execute(context.Background(), getFacility(), AuthContext{BaseURL: base})
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest, base)
	}
	assert.Equal(t, 0, tr.Calls())
}

func TestExecute_AgainstServer(t *testing.T) {
	t.Parallel()
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	e := New(Config{}, nil)
	req := &binding.Request{OperationID: "raw", Method: http.MethodPut, Path: "api/v1/echo", Body: []byte(`[1,2]`)}
	resp, err := e.Execute(context.Background(), req, AuthContext{BaseURL: srv.URL + "/prefix", Token: "abc"})
	require.NoError(t, err)

	assert.Equal(t, "/prefix/api/v1/echo", gotPath)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, `[1,2]`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestExecute_CircuitBreaker(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.Reply{Err: errors.New("connection reset")})
	e := New(Config{
		Transport: tr,
		Breaker:   &circuitbreaker.Config{Threshold: 2, Cooldown: time.Hour},
	}, nil)

	for i := 0; i < 2; i++ {
		_, err := e.Execute(context.Background(), getFacility(), AuthContext{})
		require.ErrorIs(t, err, apperrors.ErrTransport)
	}

	_, err := e.Execute(context.Background(), getFacility(), AuthContext{})
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, 2, tr.Calls(), "open breaker makes no request")
}

func TestExecute_BreakerIgnoresHTTPStatus(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.JSON(http.StatusServiceUnavailable, `{}`))
	e := New(Config{
		Transport: tr,
		Breaker:   &circuitbreaker.Config{Threshold: 1, Cooldown: time.Hour},
	}, nil)

	for i := 0; i < 3; i++ {
		resp, err := e.Execute(context.Background(), getFacility(), AuthContext{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
	assert.Equal(t, 3, tr.Calls())
}

func TestExecute_RateLimit(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport()
	e := New(Config{Transport: tr, RateLimit: 0.001, RateBurst: 1}, nil)

	_, err := e.Execute(context.Background(), getFacility(), AuthContext{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Execute(ctx, getFacility(), AuthContext{})
	require.ErrorIs(t, err, apperrors.ErrTransport)
	assert.Equal(t, 1, tr.Calls())
}

func TestResolveURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		base    string
		path    string
		query   url.Values
		want    string
		wantErr bool
	}{
		{base: "https://api.iri.nersc.gov", path: "/api/v1/facility", want: "https://api.iri.nersc.gov/api/v1/facility"},
		{base: "https://api.iri.nersc.gov/", path: "api/v1/facility", want: "https://api.iri.nersc.gov/api/v1/facility"},
		{base: "https://host/nested/prefix", path: "/api/v1/x", want: "https://host/nested/prefix/api/v1/x"},
		{base: "https://host/nested/prefix/", path: "/api/v1/x", want: "https://host/nested/prefix/api/v1/x"},
		{base: "http://localhost:8080", path: "", want: "http://localhost:8080/"},
		{base: "https://host?x=1#frag", path: "/a", want: "https://host/a"},
		{base: "https://host", path: "/a", query: url.Values{"limit": {"5"}, "b": {"x y"}}, want: "https://host/a?b=x+y&limit=5"},
		{base: "https://host", path: "/a?fixed=1", query: url.Values{"limit": {"5"}}, want: "https://host/a?fixed=1&limit=5"},
		{base: "https://host", path: "//evil.example/x", want: "https://host/evil.example/x"},
		{base: "https://host", path: "https://evil.example/x", wantErr: true},
		{base: "", path: "/a", wantErr: true},
		{base: "mailto:someone", path: "/a", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ResolveURL(tt.base, tt.path, tt.query)
		if tt.wantErr {
			assert.Error(t, err, "%s + %s", tt.base, tt.path)
			continue
		}
		require.NoError(t, err, "%s + %s", tt.base, tt.path)
		assert.Equal(t, tt.want, got.String(), "%s + %s", tt.base, tt.path)
	}
}

func TestExecute_Concurrent(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport()
	e := New(Config{Transport: tr, Breaker: &circuitbreaker.Config{}}, &recordingMetrics{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Execute(context.Background(), getFacility(), AuthContext{}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, tr.Calls())
}
