// Package frontdoor exposes the gateway's HTTP surface: direct stage proxies,
// the two pipeline routes, and the service routes (liveness, health, docs,
// appointment lookups).
package frontdoor

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/appointment-gateway/internal/backend"
	"github.com/tjfontaine/appointment-gateway/internal/domain"
)

// Backend is the subset of backend.Client used by handlers.
type Backend interface {
	Call(ctx context.Context, call backend.Call) (domain.StageResult, error)
	CallUpload(ctx context.Context, stage, path string, u *domain.Upload) (domain.StageResult, error)
}

// Runner executes pipeline runs.
type Runner interface {
	Run(ctx context.Context, req domain.PipelineRequest) *domain.PipelineOutcome
}

// HandlerConfig contains what the handlers need.
type HandlerConfig struct {
	// Backend is the processing service client.
	Backend Backend

	// Pipeline runs the text and image pipelines.
	Pipeline Runner

	// ServiceName is reported by the liveness, health and docs routes.
	ServiceName string

	// MaxUploadMemory is the number of bytes of a multipart body kept in
	// memory; the rest spills to temporary files.
	MaxUploadMemory int64

	Logger *slog.Logger
}

// HandlerRegistration represents a registered HTTP handler.
type HandlerRegistration struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

type Handler struct {
	backend         Backend
	pipeline        Runner
	serviceName     string
	maxUploadMemory int64
	logger          *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		backend:         cfg.Backend,
		pipeline:        cfg.Pipeline,
		serviceName:     cfg.ServiceName,
		maxUploadMemory: cfg.MaxUploadMemory,
		logger:          cfg.Logger,
	}
	if h.serviceName == "" {
		h.serviceName = "appointment-gateway"
	}
	if h.maxUploadMemory <= 0 {
		h.maxUploadMemory = 32 << 20
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Registrations lists every route served by the gateway.
func (h *Handler) Registrations() []HandlerRegistration {
	regs := []HandlerRegistration{
		{Method: http.MethodGet, Path: "/", Handler: h.HandleRoot},
		{Method: http.MethodGet, Path: "/health", Handler: h.HandleHealth},
		{Method: http.MethodGet, Path: "/docs", Handler: h.HandleDocs},
		{Method: http.MethodPost, Path: "/extract-image", Handler: h.HandleExtractImage},
		{Method: http.MethodPost, Path: "/pipeline/text", Handler: h.HandlePipelineText},
		{Method: http.MethodPost, Path: "/pipeline/image", Handler: h.HandlePipelineImage},
		{Method: http.MethodGet, Path: "/appointments", Handler: h.HandleListAppointments},
		{Method: http.MethodGet, Path: "/appointments/{taskID}", Handler: h.HandleGetAppointment},
	}
	for _, route := range proxyRoutes {
		regs = append(regs, HandlerRegistration{
			Method:  http.MethodPost,
			Path:    route.Path,
			Handler: h.forwardTo(route.Stage, route.BackendPath),
		})
	}
	return regs
}

// Mount registers every route on r.
func (h *Handler) Mount(r chi.Router) {
	for _, reg := range h.Registrations() {
		r.Method(reg.Method, reg.Path, reg.Handler)
	}
}
