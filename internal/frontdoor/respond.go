package frontdoor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/tjfontaine/appointment-gateway/internal/domain"
	"github.com/tjfontaine/appointment-gateway/internal/server"
)

// RunIDHeader carries the pipeline run ID on pipeline responses.
const RunIDHeader = "X-Pipeline-Run-ID"

// writeResult writes a backend result unchanged.
func writeResult(w http.ResponseWriter, result domain.StageResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError translates err into a response. Backend failures are passed
// through with their status, body and content type; client input errors get
// a local {"error": ...} body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	var failure *domain.StageFailure
	if errors.As(err, &failure) {
		server.AddLogField(r.Context(), "stage", failure.Stage)
		if !failure.IsTransport() {
			server.AddLogField(r.Context(), "upstream_status", strconv.Itoa(failure.StatusCode))
		}
		contentType := failure.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(failure.HTTPStatusCode())
		w.Write(failure.Body)
		return
	}

	var inputErr *domain.ClientInputError
	if errors.As(err, &inputErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(inputErr.HTTPStatusCode())
		w.Write(inputErr.Body())
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}
