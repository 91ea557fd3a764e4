// Package httputil holds the small HTTP helpers shared by the map service
// client and the monitor endpoints.
package httputil

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient is the part of *http.Client the map bootstrap needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultTimeout bounds a map service request when no timeout is given.
const DefaultTimeout = 10 * time.Second

// NewClient returns an *http.Client with a request timeout. A non-positive
// timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// ErrNoResponse is returned by MockHTTPClient when its queue is empty.
var ErrNoResponse = errors.New("no queued response")

// MockHTTPClient replays queued responses in order and records requests.
type MockHTTPClient struct {
	mu        sync.Mutex
	requests  []*http.Request
	responses []mockResponse
}

type mockResponse struct {
	status int
	body   string
	header http.Header
	err    error
}

// NewMockHTTPClient returns an empty mock.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// Respond queues a response with the given status and body.
func (m *MockHTTPClient) Respond(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	m.responses = append(m.responses, mockResponse{status: status, body: body, header: h})
	return m
}

// Fail queues a transport error.
func (m *MockHTTPClient) Fail(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: err})
	return m
}

// Do records req and pops the next queued response.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if len(m.responses) == 0 {
		return nil, ErrNoResponse
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Status:     http.StatusText(r.status),
		Header:     r.header,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
		Request:    req,
	}, nil
}

// Requests returns the requests seen so far.
func (m *MockHTTPClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// Pending reports how many queued responses are unused.
func (m *MockHTTPClient) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}
