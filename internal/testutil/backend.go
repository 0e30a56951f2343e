// Package testutil provides helpers shared by the gateway's package tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// StubResponse is a canned backend reply.
type StubResponse struct {
	Status      int
	Body        string
	ContentType string
}

// RecordedRequest is a request received by a StubBackend.
type RecordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Header      http.Header
	Body        []byte
}

// StubBackend is an httptest server standing in for the processing service.
// It answers registered paths with canned responses, answers anything else
// with 404, and records every request it receives.
type StubBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   map[string]StubResponse
	requests []RecordedRequest
}

// NewStubBackend starts a stub backend that is closed when the test ends.
func NewStubBackend(t *testing.T) *StubBackend {
	t.Helper()
	s := &StubBackend{routes: make(map[string]StubResponse)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

// URL returns the base URL of the stub.
func (s *StubBackend) URL() string {
	return s.Server.URL
}

// Handle registers the reply for method and path.
func (s *StubBackend) Handle(method, path string, resp StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = resp
}

// Calls returns how many requests hit path.
func (s *StubBackend) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// TotalCalls returns the number of requests received.
func (s *StubBackend) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of the recorded requests in arrival order.
func (s *StubBackend) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request to path.
func (s *StubBackend) LastRequest(path string) (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

func (s *StubBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Header:      r.Header.Clone(),
		Body:        body,
	})
	resp, ok := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"Not Found"}`)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	io.WriteString(w, resp.Body)
}
