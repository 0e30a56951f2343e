// Package backend talks to the processing service that performs text
// extraction, entity extraction, date normalization, appointment
// finalization and scheduling.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/appointment-gateway/internal/config"
	"github.com/tjfontaine/appointment-gateway/internal/domain"
	"github.com/tjfontaine/appointment-gateway/internal/telemetry"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. The configured backend timeout is
// not applied to it.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMetrics records every call on m.
func WithMetrics(m *telemetry.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestIDFunc stamps the value returned by fn on every outbound call
// as X-Request-ID, so backend logs can be correlated with gateway logs.
func WithRequestIDFunc(fn func(context.Context) string) ClientOption {
	return func(c *Client) {
		c.requestID = fn
	}
}

// Client makes single, non-retried calls to the processing service.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	requestID  func(context.Context) string
}

// NewClient creates a client for the service described by cfg.
func NewClient(cfg config.BackendConfig, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the processing service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call is a single outbound request.
type Call struct {
	// Stage names the call in failures, logs and metrics.
	Stage string
	// Method defaults to POST.
	Method string
	// Path is appended to the base URL.
	Path string
	// Body is streamed to the backend as-is. May be nil.
	Body io.Reader
	// Header is copied onto the outbound request.
	Header http.Header
}

// Call performs exactly one request against the processing service.
//
// On a 2xx response it returns the body unmodified. Any other outcome is
// returned as a *domain.StageFailure: a non-2xx response keeps the backend's
// exact status and body, while a request that produced no response becomes a
// generic 500 transport failure.
func (c *Client) Call(ctx context.Context, call Call) (domain.StageResult, error) {
	method := call.Method
	if method == "" {
		method = http.MethodPost
	}

	ctx, span := telemetry.Tracer().Start(ctx, "backend."+call.Stage,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gateway.stage", call.Stage),
			attribute.String("http.request.method", method),
			attribute.String("url.path", call.Path),
		),
	)
	defer span.End()

	start := time.Now()
	result, failure := c.do(ctx, method, call)
	elapsed := time.Since(start)

	if failure == nil {
		c.metrics.ObserveStage(call.Stage, telemetry.OutcomeSuccess, elapsed)
		return result, nil
	}

	outcome := telemetry.OutcomeBackendError
	if failure.IsTransport() {
		outcome = telemetry.OutcomeTransportError
	}
	c.metrics.ObserveStage(call.Stage, outcome, elapsed)

	span.SetAttributes(attribute.Int("http.response.status_code", failure.StatusCode))
	span.SetStatus(codes.Error, failure.Error())

	c.logger.WarnContext(ctx, "backend stage failed",
		slog.String("stage", call.Stage),
		slog.String("path", call.Path),
		slog.Int("status", failure.StatusCode),
		slog.Bool("transport", failure.IsTransport()),
		slog.Duration("duration", elapsed),
	)

	return nil, failure
}

func (c *Client) do(ctx context.Context, method string, call Call) (domain.StageResult, *domain.StageFailure) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+call.Path, call.Body)
	if err != nil {
		return nil, domain.NewTransportFailure(call.Stage, fmt.Errorf("create request: %w", err))
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.requestID != nil && req.Header.Get("X-Request-ID") == "" {
		if id := c.requestID(ctx); id != "" {
			req.Header.Set("X-Request-ID", id)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTransportFailure(call.Stage, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransportFailure(call.Stage, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.StageFailure{
			Stage:       call.Stage,
			StatusCode:  resp.StatusCode,
			Body:        body,
			ContentType: resp.Header.Get("Content-Type"),
		}
	}

	return domain.StageResult(body), nil
}

// CallJSON marshals payload and posts it to path.
func (c *Client) CallJSON(ctx context.Context, stage, path string, payload any) (domain.StageResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewTransportFailure(stage, fmt.Errorf("marshal request: %w", err))
	}
	return c.CallRaw(ctx, stage, path, body)
}

// CallRaw posts an already-encoded JSON document to path without re-encoding
// it, so payloads from earlier stages reach the backend byte for byte.
func (c *Client) CallRaw(ctx context.Context, stage, path string, body []byte) (domain.StageResult, error) {
	return c.Call(ctx, Call{
		Stage:  stage,
		Path:   path,
		Body:   bytes.NewReader(body),
		Header: http.Header{"Content-Type": []string{"application/json"}},
	})
}

// CallUpload encodes u as multipart form data and posts it to path. A missing
// upload fails with domain.ErrMissingFile before any request is made.
func (c *Client) CallUpload(ctx context.Context, stage, path string, u *domain.Upload) (domain.StageResult, error) {
	body, header, err := EncodeUpload(u)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return c.Call(ctx, Call{
		Stage:  stage,
		Path:   path,
		Body:   body,
		Header: header,
	})
}
