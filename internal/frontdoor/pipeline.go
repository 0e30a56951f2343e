package frontdoor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tjfontaine/appointment-gateway/internal/domain"
	"github.com/tjfontaine/appointment-gateway/internal/pipeline"
	"github.com/tjfontaine/appointment-gateway/internal/server"
)

// HandlePipelineText handles POST /pipeline/text. The body is a JSON object
// carrying input_text, text or query; an empty body counts as {}.
func (h *Handler) HandlePipelineText(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, domain.NewInvalidBodyError(err))
		return
	}

	h.runPipeline(w, r, pipeline.NormalizeText(body))
}

// HandlePipelineImage handles POST /pipeline/image with a multipart "file".
// A missing file is handed to the orchestrator, which fails the run before
// any backend call.
func (h *Handler) HandlePipelineImage(w http.ResponseWriter, r *http.Request) {
	upload, cleanup, err := h.readUpload(r)
	switch {
	case errors.Is(err, domain.ErrMissingFile):
		upload = nil
	case err != nil:
		writeError(w, r, err)
		return
	default:
		defer cleanup()
	}

	h.runPipeline(w, r, domain.NewImageRequest(upload))
}

func (h *Handler) runPipeline(w http.ResponseWriter, r *http.Request, req domain.PipelineRequest) {
	server.AddLogField(r.Context(), "variant", string(req.Kind))

	outcome := h.pipeline.Run(r.Context(), req)

	server.AddLogField(r.Context(), "run_id", outcome.RunID)
	if outcome.RunID != "" {
		w.Header().Set(RunIDHeader, outcome.RunID)
	}

	if !outcome.Succeeded() {
		server.AddLogField(r.Context(), "failed_stage", outcome.FailedStage)
		writeError(w, r, outcome.Err)
		return
	}
	writeResult(w, outcome.Result)
}
