package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// StageResult is the payload returned by a successful backend stage. The
// gateway never inspects it; it is forwarded verbatim to the next stage or to
// the client.
type StageResult = json.RawMessage

// RequestKind tags the variant held by a PipelineRequest.
type RequestKind string

const (
	// KindText is a free-text pipeline request.
	KindText RequestKind = "text"
	// KindImage is an uploaded-image pipeline request.
	KindImage RequestKind = "image"
)

// Upload is a single file received from the client.
type Upload struct {
	// Filename is the client-supplied name, preserved on the way out.
	Filename string
	// Content streams the raw file bytes.
	Content io.Reader
	// Size is the declared size in bytes, or -1 if unknown.
	Size int64
}

// PipelineRequest is the canonical input of a pipeline run. Exactly one of
// Fields (text) or Upload (image) is set once the request is normalized.
type PipelineRequest struct {
	Kind RequestKind

	// Fields is the JSON object sent to the extract stage of a text run.
	// It always contains an "input_text" key.
	Fields map[string]any

	// Upload is the file sent to the extract stage of an image run.
	Upload *Upload
}

// NewImageRequest wraps an upload as an image pipeline request. A nil upload
// is accepted here and rejected by Validate.
func NewImageRequest(u *Upload) PipelineRequest {
	return PipelineRequest{Kind: KindImage, Upload: u}
}

// InputText returns the text forwarded to the extract stage, or "" for image
// requests.
func (r PipelineRequest) InputText() string {
	if r.Fields == nil {
		return ""
	}
	s, _ := r.Fields["input_text"].(string)
	return s
}

// Validate enforces the text/image exclusivity of a normalized request.
func (r PipelineRequest) Validate() error {
	switch r.Kind {
	case KindText:
		if r.Upload != nil {
			return errors.New("text request must not carry an upload")
		}
		if _, ok := r.Fields["input_text"]; !ok {
			return errors.New("text request is missing input_text")
		}
		return nil
	case KindImage:
		if r.Fields != nil {
			return errors.New("image request must not carry text fields")
		}
		if r.Upload == nil || r.Upload.Content == nil {
			return ErrMissingFile
		}
		return nil
	default:
		return fmt.Errorf("unknown request kind %q", r.Kind)
	}
}

// PipelineOutcome is the terminal value of a pipeline run.
type PipelineOutcome struct {
	// RunID identifies the run in logs and response headers.
	RunID string

	// Result is the finalize-stage payload on success.
	Result StageResult

	// Err is the first failure: a *StageFailure for a failed backend call or
	// a *ClientInputError for input rejected before any call. Nil on success.
	Err error

	// FailedStage names the stage that produced Err.
	FailedStage string
}

// Succeeded reports whether every stage, scheduling included, succeeded.
func (o *PipelineOutcome) Succeeded() bool {
	return o.Err == nil
}
