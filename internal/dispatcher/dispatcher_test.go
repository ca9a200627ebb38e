package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"iriclient/internal/apperrors"
	"iriclient/internal/catalog"
	"iriclient/internal/executor"
	"iriclient/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("https://catalog.example.org", []catalog.Operation{
		{ID: "getFacility", Method: "GET", PathTemplate: "/api/v1/facility"},
		{ID: "getSite", Method: "GET", PathTemplate: "/api/v1/facility/sites/{site_id}"},
		{ID: "launchJob", Method: "POST", PathTemplate: "/api/v1/compute/job/{resource_id}", Body: catalog.BodyRequired},
		{ID: "cancelJob", Method: "DELETE", PathTemplate: "/api/v1/compute/cancel/{resource_id}/{job_id}"},
	})
	require.NoError(t, err)
	return c
}

func newTestDispatcher(t *testing.T, tr *testutil.Transport, auth executor.AuthContext, opts ...Option) *Dispatcher {
	t.Helper()
	return New(testCatalog(t), executor.New(executor.Config{Transport: tr}, nil), auth, opts...)
}

func TestCallOperation_GetFacility(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.JSON(http.StatusOK, `{"id":"nersc","name":"NERSC"}`))
	d := newTestDispatcher(t, tr, executor.AuthContext{BaseURL: "https://api.example.org", Token: "tok"})

	payload, err := d.CallOperation(context.Background(), CallRequest{OperationID: "getFacility"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "nersc", "name": "NERSC"}, payload)

	require.Equal(t, 1, tr.Calls())
	sent := tr.Last()
	assert.Equal(t, http.MethodGet, sent.Method)
	assert.Equal(t, "https://api.example.org/api/v1/facility", sent.URL)
	assert.Empty(t, sent.Body)
	assert.Equal(t, "Bearer tok", sent.Header.Get("Authorization"))
}

func TestCallOperation_UnknownOperationMakesNoRequest(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport()
	d := newTestDispatcher(t, tr, executor.AuthContext{})

	_, err := d.CallOperation(context.Background(), CallRequest{OperationID: "getNothing"})
	require.ErrorIs(t, err, apperrors.ErrUnknownOperation)
	assert.Equal(t, 0, tr.Calls())
}

func TestCallOperation_BindingErrorsMakeNoRequest(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport()
	d := newTestDispatcher(t, tr, executor.AuthContext{})

	_, err := d.CallOperation(context.Background(), CallRequest{OperationID: "getSite"})
	require.ErrorIs(t, err, apperrors.ErrMissingPathParameter)

	_, err = d.CallOperation(context.Background(), CallRequest{
		OperationID: "launchJob",
		PathParams:  map[string]string{"resource_id": "r"},
	})
	require.ErrorIs(t, err, apperrors.ErrMissingBody)

	assert.Equal(t, 0, tr.Calls())
}

func TestCallOperation_FallsBackToCatalogServerURL(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport()
	d := newTestDispatcher(t, tr, executor.AuthContext{})

	_, err := d.CallOperation(context.Background(), CallRequest{
		OperationID: "getSite",
		PathParams:  map[string]string{"site_id": "s 1"},
		Query:       map[string]any{"modified_since": nil, "short": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://catalog.example.org/api/v1/facility/sites/s%201?short=true", tr.Last().URL)
	assert.Equal(t, "https://catalog.example.org", d.BaseURL())
}

func TestCallOperation_HTTPError(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.JSON(http.StatusNotFound, `{"detail":"job not found"}`))
	d := newTestDispatcher(t, tr, executor.AuthContext{})

	_, err := d.CallOperation(context.Background(), CallRequest{OperationID: "getFacility"})
	require.ErrorIs(t, err, apperrors.ErrHTTPStatus)

	status, ok := apperrors.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, `{"detail":"job not found"}`, string(apperrors.ResponseBody(err)))
	assert.Contains(t, err.Error(), "404")
}

func TestCallOperation_EmptyBodyIsNil(t *testing.T) {
	t.Parallel()
	tests := []testutil.Reply{
		{Status: http.StatusNoContent},
		{Status: http.StatusOK, Body: "  \n"},
	}
	for _, reply := range tests {
		d := newTestDispatcher(t, testutil.NewTransport(reply), executor.AuthContext{})
		payload, err := d.CallOperation(context.Background(), CallRequest{
			OperationID: "cancelJob",
			PathParams:  map[string]string{"resource_id": "r", "job_id": "j"},
		})
		require.NoError(t, err)
		assert.Nil(t, payload)
	}
}

func TestCallOperation_DecodeError(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.Reply{Status: http.StatusOK, Body: "<html>gateway</html>"})
	d := newTestDispatcher(t, tr, executor.AuthContext{})

	_, err := d.CallOperation(context.Background(), CallRequest{OperationID: "getFacility"})
	require.ErrorIs(t, err, apperrors.ErrDecode)
	assert.Equal(t, "<html>gateway</html>", string(apperrors.ResponseBody(err)))
}

func TestCallOperation_TransportError(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.Reply{Err: errors.New("no such host")})
	d := newTestDispatcher(t, tr, executor.AuthContext{})

	_, err := d.CallOperation(context.Background(), CallRequest{OperationID: "getFacility"})
	require.ErrorIs(t, err, apperrors.ErrTransport)
	assert.True(t, apperrors.IsTransient(err))
}

func TestCallOperation_LaunchBody(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.JSON(http.StatusOK, `{"id":"job-123"}`))
	d := newTestDispatcher(t, tr, executor.AuthContext{})

	payload, err := d.CallOperation(context.Background(), CallRequest{
		OperationID: "launchJob",
		PathParams:  map[string]string{"resource_id": "perlmutter"},
		Body:        map[string]any{"executable": "/bin/hostname", "arguments": []string{"-f"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "job-123"}, payload)

	sent := tr.Last()
	assert.Equal(t, http.MethodPost, sent.Method)
	assert.JSONEq(t, `{"executable":"/bin/hostname","arguments":["-f"]}`, string(sent.Body))
	assert.Equal(t, "application/json", sent.Header.Get("Content-Type"))
}

func TestRequest_Raw(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.JSON(http.StatusOK, `[1,2,3]`))
	d := newTestDispatcher(t, tr, executor.AuthContext{BaseURL: "https://api.example.org/v"})

	payload, err := d.Request(context.Background(), "get", "/api/v1/status/{literal}", map[string]any{"limit": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("1"), json.Number("2"), json.Number("3")}, payload)
	assert.Equal(t, "https://api.example.org/v/api/v1/status/%7Bliteral%7D?limit=2", tr.Last().URL)
	assert.Equal(t, http.MethodGet, tr.Last().Method)

	_, err = d.Request(context.Background(), " ", "/x", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	assert.Equal(t, 1, tr.Calls())
}

func TestPing(t *testing.T) {
	t.Parallel()
	tr := testutil.NewTransport(testutil.JSON(http.StatusOK, `{}`), testutil.JSON(http.StatusServiceUnavailable, `{}`))
	d := newTestDispatcher(t, tr, executor.AuthContext{})

	require.NoError(t, d.Ping(context.Background()))
	require.ErrorIs(t, d.Ping(context.Background()), apperrors.ErrHTTPStatus)

	custom := newTestDispatcher(t, testutil.NewTransport(), executor.AuthContext{}, WithPingOperation("missing"))
	require.ErrorIs(t, custom.Ping(context.Background()), apperrors.ErrUnknownOperation)
}

func TestOperations(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t, testutil.NewTransport(), executor.AuthContext{})

	ops := d.Operations()
	require.Len(t, ops, 4)
	assert.Equal(t, "getFacility", ops[0].ID)
}

func TestDecode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body    string
		want    any
		wantErr bool
	}{
		{body: "", want: nil},
		{body: "null", want: nil},
		{body: `{"id": 12345678901234567890}`, want: map[string]any{"id": json.Number("12345678901234567890")}},
		{body: `"text"`, want: "text"},
		{body: `{"a":1} `, want: map[string]any{"a": json.Number("1")}},
		{body: `{"a":1}{"b":2}`, wantErr: true},
		{body: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := Decode([]byte(tt.body))
		if tt.wantErr {
			assert.Error(t, err, tt.body)
			continue
		}
		require.NoError(t, err, tt.body)
		assert.Equal(t, tt.want, got, tt.body)
	}
}
