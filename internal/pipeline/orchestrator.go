package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/appointment-gateway/internal/domain"
	"github.com/tjfontaine/appointment-gateway/internal/telemetry"
)

// State is a step of a pipeline run.
type State string

const (
	StateStart          State = "start"
	StateNormalizeInput State = "normalize_input"
	StateExtract        State = "extract"
	StateEntities       State = "entities"
	StateNormalize      State = "normalize"
	StateFinalize       State = "finalize"
	StateSchedule       State = "schedule"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// TransitionFunc observes state changes of a run.
type TransitionFunc func(runID string, from, to State)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records run outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger for run failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithTransitionHook calls fn on every state change.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(o *Orchestrator) {
		o.onTransition = fn
	}
}

// Orchestrator drives pipeline runs. A single Orchestrator serves any number
// of concurrent runs; each run owns its own payloads.
type Orchestrator struct {
	backend      Caller
	scheduler    *Scheduler
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	onTransition TransitionFunc
	runIDs       *runIDSource
}

// NewOrchestrator creates an orchestrator calling the processing service
// through backend.
func NewOrchestrator(backend Caller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		scheduler: NewScheduler(backend),
		logger:    slog.Default(),
		runIDs:    newRunIDSource(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the per-request state of the machine.
type run struct {
	o     *Orchestrator
	id    string
	kind  domain.RequestKind
	state State
	span  trace.Span
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	r.span.AddEvent(string(to))
	if r.o.onTransition != nil {
		r.o.onTransition(r.id, from, to)
	}
}

func (r *run) fail(ctx context.Context, stage string, err error) *domain.PipelineOutcome {
	r.transition(StateFailed)
	r.o.metrics.ObservePipeline(string(r.kind), stage)

	status := 0
	var failure *domain.StageFailure
	var inputErr *domain.ClientInputError
	switch {
	case errors.As(err, &failure):
		status = failure.HTTPStatusCode()
	case errors.As(err, &inputErr):
		status = inputErr.HTTPStatusCode()
	default:
		// Anything else is a bug in a Caller; report it like a transport failure.
		err = domain.NewTransportFailure(stage, err)
		status = http.StatusInternalServerError
	}

	r.span.SetAttributes(attribute.String("pipeline.failed_stage", stage), attribute.Int("pipeline.status", status))
	r.span.SetStatus(codes.Error, err.Error())

	r.o.logger.WarnContext(ctx, "pipeline run failed",
		slog.String("run_id", r.id),
		slog.String("variant", string(r.kind)),
		slog.String("stage", stage),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	return &domain.PipelineOutcome{RunID: r.id, Err: err, FailedStage: stage}
}

// Run executes the pipeline for req.
//
// Stages run strictly in order and the first failure ends the run: no later
// stage, and in particular no scheduling call, is made after it. On success
// the outcome carries the finalize result; the scheduling response is not
// returned.
func (o *Orchestrator) Run(ctx context.Context, req domain.PipelineRequest) *domain.PipelineOutcome {
	r := &run{o: o, id: o.runIDs.next(), kind: req.Kind, state: StateStart}

	ctx, r.span = telemetry.Tracer().Start(ctx, fmt.Sprintf("pipeline.%s", req.Kind),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", r.id),
			attribute.String("pipeline.variant", string(req.Kind)),
		),
	)
	defer r.span.End()

	r.transition(StateNormalizeInput)
	if err := req.Validate(); err != nil {
		var inputErr *domain.ClientInputError
		if !errors.As(err, &inputErr) {
			err = &domain.ClientInputError{Message: err.Error()}
		}
		return r.fail(ctx, StageInput, err)
	}

	r.transition(StateExtract)
	extracted, err := o.extract(ctx, req)
	if err != nil {
		return r.fail(ctx, StageExtract, err)
	}

	r.transition(StateEntities)
	entities, err := o.backend.CallRaw(ctx, StageEntities, PathEntities, passthrough(extracted))
	if err != nil {
		return r.fail(ctx, StageEntities, err)
	}

	r.transition(StateNormalize)
	normalized, err := o.backend.CallRaw(ctx, StageNormalize, PathNormalize, passthrough(entities))
	if err != nil {
		return r.fail(ctx, StageNormalize, err)
	}

	r.transition(StateFinalize)
	appointment, err := o.backend.CallRaw(ctx, StageFinalize, PathFinalize, finalizeInput(normalized, entities))
	if err != nil {
		return r.fail(ctx, StageFinalize, err)
	}

	r.transition(StateSchedule)
	receipt, err := o.scheduler.Schedule(ctx, appointment)
	if err != nil {
		return r.fail(ctx, StageSchedule, err)
	}

	r.transition(StateDone)
	o.metrics.ObservePipeline(string(req.Kind), "")
	o.logger.DebugContext(ctx, "appointment scheduled",
		slog.String("run_id", r.id),
		slog.String("variant", string(req.Kind)),
		slog.String("schedule_response", string(receipt)),
	)

	return &domain.PipelineOutcome{RunID: r.id, Result: appointment}
}

func (o *Orchestrator) extract(ctx context.Context, req domain.PipelineRequest) (domain.StageResult, error) {
	switch req.Kind {
	case domain.KindImage:
		return o.backend.CallUpload(ctx, StageExtract, PathExtractImage, req.Upload)
	default:
		return o.backend.CallJSON(ctx, StageExtract, PathExtractText, req.Fields)
	}
}
