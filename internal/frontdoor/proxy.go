package frontdoor

import (
	"errors"
	"net/http"

	"github.com/tjfontaine/appointment-gateway/internal/backend"
	"github.com/tjfontaine/appointment-gateway/internal/domain"
	"github.com/tjfontaine/appointment-gateway/internal/pipeline"
	"github.com/tjfontaine/appointment-gateway/internal/server"
)

// proxyRoute maps a gateway path onto a single backend stage.
type proxyRoute struct {
	Path        string
	Stage       string
	BackendPath string
}

var proxyRoutes = []proxyRoute{
	{Path: "/extract-text", Stage: pipeline.StageExtract, BackendPath: pipeline.PathExtractText},
	{Path: "/extract-entities", Stage: pipeline.StageEntities, BackendPath: pipeline.PathEntities},
	{Path: "/normalize-datetime", Stage: pipeline.StageNormalize, BackendPath: pipeline.PathNormalize},
	{Path: "/final-appointment", Stage: pipeline.StageFinalize, BackendPath: pipeline.PathFinalize},
}

// forwardTo returns a handler that streams the request body to backendPath
// and relays the backend's answer.
func (h *Handler) forwardTo(stage, backendPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		server.AddLogField(r.Context(), "stage", stage)

		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}

		result, err := h.backend.Call(r.Context(), backend.Call{
			Stage:  stage,
			Path:   backendPath,
			Body:   r.Body,
			Header: http.Header{"Content-Type": []string{contentType}},
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeResult(w, result)
	}
}

// HandleExtractImage handles POST /extract-image.
func (h *Handler) HandleExtractImage(w http.ResponseWriter, r *http.Request) {
	server.AddLogField(r.Context(), "stage", pipeline.StageExtract)

	upload, cleanup, err := h.readUpload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cleanup()

	result, err := h.backend.CallUpload(r.Context(), pipeline.StageExtract, pipeline.PathExtractImage, upload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, result)
}

// readUpload extracts the "file" part of a multipart request. A request
// without one, including a non-multipart request, yields
// domain.ErrMissingFile. The returned cleanup releases any temporary files.
func (h *Handler) readUpload(r *http.Request) (*domain.Upload, func(), error) {
	if err := r.ParseMultipartForm(h.maxUploadMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, domain.ErrMissingFile
		}
		return nil, nil, domain.NewInvalidBodyError(err)
	}
	cleanup := func() { r.MultipartForm.RemoveAll() }

	file, header, err := r.FormFile(backend.FileField)
	if err != nil {
		cleanup()
		return nil, nil, domain.ErrMissingFile
	}

	server.AddLogField(r.Context(), "filename", header.Filename)
	upload := &domain.Upload{
		Filename: header.Filename,
		Content:  file,
		Size:     header.Size,
	}
	return upload, func() {
		file.Close()
		cleanup()
	}, nil
}
