// Package domain provides the request, result and failure types shared by the
// gateway's frontdoor handlers, the pipeline orchestrator and the backend client.
package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ClientInputError is a failure detected locally, before anything is sent to
// the processing service. It is always reported with a 4xx status.
type ClientInputError struct {
	// StatusCode is the HTTP status returned to the client (defaults to 400).
	StatusCode int

	// Message is the human-readable reason, returned as {"error": Message}.
	Message string
}

// Error implements the error interface.
func (e *ClientInputError) Error() string {
	return e.Message
}

// HTTPStatusCode returns the status the gateway responds with.
func (e *ClientInputError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	return http.StatusBadRequest
}

// Body renders the error as the JSON document sent to the client.
func (e *ClientInputError) Body() []byte {
	body, _ := json.Marshal(map[string]string{"error": e.Message})
	return body
}

// ErrMissingFile is returned when an image route receives no "file" part.
var ErrMissingFile = &ClientInputError{
	StatusCode: http.StatusBadRequest,
	Message:    "No file uploaded",
}

// NewInvalidBodyError reports a request body the gateway could not decode.
func NewInvalidBodyError(err error) *ClientInputError {
	return &ClientInputError{
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("invalid request body: %v", err),
	}
}

// StageFailure captures the response of a backend stage that did not succeed.
//
// A failure with a nil Err is a backend failure: StatusCode and Body are the
// exact status and bytes the processing service produced and are passed to
// the client untouched. A failure with a non-nil Err is a transport failure:
// no response was obtained, so StatusCode is 500 and Body is a fixed message.
type StageFailure struct {
	// Stage names the stage that failed (extract, entities, ...).
	Stage string

	// StatusCode is the status code surfaced to the client.
	StatusCode int

	// Body is the raw payload surfaced to the client.
	Body []byte

	// ContentType is the backend's Content-Type, if any.
	ContentType string

	// Err is the underlying transport error, nil for backend failures.
	Err error
}

// Error implements the error interface.
func (e *StageFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s: transport failure: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s: backend returned status %d", e.Stage, e.StatusCode)
}

// Unwrap exposes the transport error for errors.Is / errors.As.
func (e *StageFailure) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status the gateway responds with.
func (e *StageFailure) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// IsTransport reports whether no backend response was obtained.
func (e *StageFailure) IsTransport() bool {
	return e.Err != nil
}

// NewTransportFailure builds the generic 500 failure used when a stage call
// produced no response at all.
func NewTransportFailure(stage string, err error) *StageFailure {
	body, _ := json.Marshal(map[string]string{"error": stage + " request failed"})
	return &StageFailure{
		Stage:       stage,
		StatusCode:  http.StatusInternalServerError,
		Body:        body,
		ContentType: "application/json",
		Err:         err,
	}
}
