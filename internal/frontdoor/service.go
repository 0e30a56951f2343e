package frontdoor

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/appointment-gateway/internal/backend"
	"github.com/tjfontaine/appointment-gateway/internal/server"
)

const (
	stageHealth       = "health"
	stageAppointments = "appointments"
)

// HandleRoot handles GET /. It only reports that the gateway is up.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.serviceName,
	})
}

// HandleHealth handles GET /health by probing the processing service.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	result, err := h.backend.Call(r.Context(), backend.Call{
		Stage:  stageHealth,
		Method: http.MethodGet,
		Path:   "/",
	})
	if err != nil {
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"service": h.serviceName,
		})
		return
	}

	var backendStatus any = string(result)
	if json.Valid(result) {
		backendStatus = json.RawMessage(result)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": h.serviceName,
		"backend": backendStatus,
	})
}

// HandleListAppointments handles GET /appointments.
func (h *Handler) HandleListAppointments(w http.ResponseWriter, r *http.Request) {
	h.getFromBackend(w, r, "/appointments")
}

// HandleGetAppointment handles GET /appointments/{taskID}.
func (h *Handler) HandleGetAppointment(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	server.AddLogField(r.Context(), "task_id", taskID)
	h.getFromBackend(w, r, "/appointments/"+url.PathEscape(taskID))
}

func (h *Handler) getFromBackend(w http.ResponseWriter, r *http.Request, path string) {
	result, err := h.backend.Call(r.Context(), backend.Call{
		Stage:  stageAppointments,
		Method: http.MethodGet,
		Path:   path,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, result)
}
