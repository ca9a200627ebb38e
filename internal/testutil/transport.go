package testutil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// Reply is one scripted transport outcome. A non-nil Err is returned as a
// connection failure and the other fields are ignored.
type Reply struct {
	Status int
	Body   string
	Header http.Header
	Err    error
}

// JSON is a Reply with the given status and JSON body.
func JSON(status int, body string) Reply {
	return Reply{
		Status: status,
		Body:   body,
		Header: http.Header{"Content-Type": {"application/json"}},
	}
}

// Recorded is a request as seen by Transport.
type Recorded struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Transport is an http.RoundTripper that plays back scripted replies and
// records every request. The last reply repeats once the script runs out.
type Transport struct {
	calls atomic.Int64

	mu       sync.Mutex
	replies  []Reply
	handler  func(n int, req *http.Request) Reply
	requests []Recorded
}

// NewTransport returns a transport that answers with replies in order.
func NewTransport(replies ...Reply) *Transport {
	if len(replies) == 0 {
		replies = []Reply{JSON(http.StatusOK, "{}")}
	}
	return &Transport{replies: replies}
}

// NewTransportFunc returns a transport that asks fn for the reply to the
// n-th request (starting at 1).
func NewTransportFunc(fn func(n int, req *http.Request) Reply) *Transport {
	return &Transport{handler: fn}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := int(t.calls.Add(1))

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}

	t.mu.Lock()
	t.requests = append(t.requests, Recorded{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	var reply Reply
	if t.handler != nil {
		t.mu.Unlock()
		reply = t.handler(n, req)
	} else {
		idx := min(n, len(t.replies)) - 1
		reply = t.replies[idx]
		t.mu.Unlock()
	}

	if reply.Err != nil {
		return nil, reply.Err
	}
	header := reply.Header
	if header == nil {
		header = http.Header{}
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewBufferString(reply.Body)),
		ContentLength: int64(len(reply.Body)),
		Request:       req,
	}, nil
}

// Calls returns the number of requests seen so far.
func (t *Transport) Calls() int {
	return int(t.calls.Load())
}

// Requests returns a copy of the recorded requests.
func (t *Transport) Requests() []Recorded {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Recorded(nil), t.requests...)
}

// Last returns the most recent request. It panics if there was none.
func (t *Transport) Last() Recorded {
	reqs := t.Requests()
	return reqs[len(reqs)-1]
}
