package testutil

import (
	"net/http"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// RecordCassette records every request sent through the returned client
// against realTransport into a cassette under dir. Call the returned stop
// function to flush the cassette to disk.
func RecordCassette(t *testing.T, dir, name string, realTransport http.RoundTripper) (*http.Client, func()) {
	t.Helper()
	return newVCRClient(t, filepath.Join(dir, name), recorder.ModeRecording, realTransport)
}

// ReplayCassette serves requests from a previously recorded cassette without
// touching the network.
func ReplayCassette(t *testing.T, dir, name string) (*http.Client, func()) {
	t.Helper()
	return newVCRClient(t, filepath.Join(dir, name), recorder.ModeReplaying, nil)
}

func newVCRClient(t *testing.T, cassettePath string, mode recorder.Mode, realTransport http.RoundTripper) (*http.Client, func()) {
	t.Helper()

	r, err := recorder.NewAsMode(cassettePath, mode, realTransport)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}

	// Multipart boundaries are random, so bodies are not matched.
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})

	stop := func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	}

	return &http.Client{Transport: r}, stop
}
