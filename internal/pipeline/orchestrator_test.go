package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/appointment-gateway/internal/backend"
	"github.com/tjfontaine/appointment-gateway/internal/config"
	"github.com/tjfontaine/appointment-gateway/internal/domain"
	"github.com/tjfontaine/appointment-gateway/internal/telemetry"
	"github.com/tjfontaine/appointment-gateway/internal/testutil"
)

const (
	extractBody   = `{"raw_text":"Book dentist tomorrow at 5pm","confidence":0.95}`
	entitiesBody  = `{"entities":{"date_phrase":"tomorrow","time_phrase":"5pm","department":"dentist"},"entities_confidence":1.0}`
	normalizeBody = `{"normalized":{"date":"2025-09-30","time":"17:00","tz":"Asia/Kolkata"},"normalization_confidence":0.9}`
	finalBody     = `{"appointment":{"department":"dentist","date":"2025-09-30","time":"17:00","tz":"Asia/Kolkata"},"status":"ok"}`
	scheduleBody  = `{"task_id":"4f9c","status":"scheduled","run_at":"2025-09-30T17:00:00+05:30"}`
)

var stagePaths = []string{PathExtractText, PathEntities, PathNormalize, PathFinalize, PathSchedule}

func newHappyBackend(t *testing.T) *testutil.StubBackend {
	t.Helper()
	stub := testutil.NewStubBackend(t)
	stub.Handle(http.MethodPost, PathExtractText, testutil.StubResponse{Body: extractBody})
	stub.Handle(http.MethodPost, PathExtractImage, testutil.StubResponse{Body: extractBody})
	stub.Handle(http.MethodPost, PathEntities, testutil.StubResponse{Body: entitiesBody})
	stub.Handle(http.MethodPost, PathNormalize, testutil.StubResponse{Body: normalizeBody})
	stub.Handle(http.MethodPost, PathFinalize, testutil.StubResponse{Body: finalBody})
	stub.Handle(http.MethodPost, PathSchedule, testutil.StubResponse{Body: scheduleBody})
	return stub
}

func newTestOrchestrator(t *testing.T, baseURL string, opts ...Option) *Orchestrator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := backend.NewClient(config.BackendConfig{BaseURL: baseURL, Timeout: 5 * time.Second}, backend.WithLogger(logger))
	return NewOrchestrator(client, append([]Option{WithLogger(logger)}, opts...)...)
}

// transitionRecorder collects the states of every run it observes.
type transitionRecorder struct {
	mu     sync.Mutex
	states map[string][]State
}

func newTransitionRecorder() *transitionRecorder {
	return &transitionRecorder{states: make(map[string][]State)}
}

func (r *transitionRecorder) hook(runID string, from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[runID] = append(r.states[runID], to)
}

func (r *transitionRecorder) get(runID string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[runID]
}

func TestRun_TextSuccess(t *testing.T) {
	stub := newHappyBackend(t)
	recorder := newTransitionRecorder()
	o := newTestOrchestrator(t, stub.URL(), WithTransitionHook(recorder.hook))

	outcome := o.Run(context.Background(), NormalizeText(map[string]any{"input_text": "Book dentist tomorrow at 5pm"}))

	if !outcome.Succeeded() {
		t.Fatalf("unexpected failure at %s: %v", outcome.FailedStage, outcome.Err)
	}
	if string(outcome.Result) != finalBody {
		t.Errorf("result = %s, want finalize payload", outcome.Result)
	}
	if outcome.RunID == "" {
		t.Error("expected a run id")
	}

	// Stages are called once each, in order.
	var gotPaths []string
	for _, req := range stub.Requests() {
		gotPaths = append(gotPaths, req.Path)
	}
	if !reflect.DeepEqual(gotPaths, stagePaths) {
		t.Errorf("call order = %v, want %v", gotPaths, stagePaths)
	}

	wantBodies := map[string]string{
		PathExtractText: `{"input_text":"Book dentist tomorrow at 5pm"}`,
		PathEntities:    extractBody,
		PathNormalize:   entitiesBody,
		PathFinalize:    `{"normalized":` + normalizeBody + `,"entities":` + entitiesBody + `}`,
		PathSchedule:    finalBody,
	}
	for path, want := range wantBodies {
		req, ok := stub.LastRequest(path)
		if !ok {
			t.Errorf("%s was not called", path)
			continue
		}
		if string(req.Body) != want {
			t.Errorf("%s body = %s, want %s", path, req.Body, want)
		}
		if req.ContentType != "application/json" {
			t.Errorf("%s content type = %q", path, req.ContentType)
		}
	}

	wantStates := []State{StateNormalizeInput, StateExtract, StateEntities, StateNormalize, StateFinalize, StateSchedule, StateDone}
	if got := recorder.get(outcome.RunID); !reflect.DeepEqual(got, wantStates) {
		t.Errorf("states = %v, want %v", got, wantStates)
	}
}

func TestRun_FailureShortCircuits(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		stage  string
		status int
		body   string
	}{
		{name: "extract", path: PathExtractText, stage: StageExtract, status: http.StatusBadRequest, body: `{"detail":"Text input must be provided"}`},
		{name: "entities", path: PathEntities, stage: StageEntities, status: http.StatusInternalServerError, body: `{"detail":"Step 2 failed"}`},
		{name: "normalize", path: PathNormalize, stage: StageNormalize, status: http.StatusUnprocessableEntity, body: `{"error":"ambiguous date"}`},
		{name: "finalize", path: PathFinalize, stage: StageFinalize, status: http.StatusBadGateway, body: `upstream exploded`},
		{name: "schedule", path: PathSchedule, stage: StageSchedule, status: http.StatusBadRequest, body: `{"detail":"Missing appointment data"}`},
	}

	for k, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newHappyBackend(t)
			stub.Handle(http.MethodPost, tt.path, testutil.StubResponse{Status: tt.status, Body: tt.body, ContentType: "text/plain"})
			recorder := newTransitionRecorder()
			metrics := telemetry.NewMetrics()
			o := newTestOrchestrator(t, stub.URL(), WithTransitionHook(recorder.hook), WithMetrics(metrics))

			outcome := o.Run(context.Background(), NormalizeText(map[string]any{"text": "Book dentist tomorrow at 5pm"}))

			if outcome.Succeeded() {
				t.Fatal("expected failure")
			}
			if outcome.FailedStage != tt.stage {
				t.Errorf("failed stage = %q, want %q", outcome.FailedStage, tt.stage)
			}
			if outcome.Result != nil {
				t.Errorf("failed run carries a result: %s", outcome.Result)
			}

			var failure *domain.StageFailure
			if !errors.As(outcome.Err, &failure) {
				t.Fatalf("expected StageFailure, got %T", outcome.Err)
			}
			if failure.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", failure.StatusCode, tt.status)
			}
			if !bytes.Equal(failure.Body, []byte(tt.body)) {
				t.Errorf("body = %q, want %q", failure.Body, tt.body)
			}
			if failure.ContentType != "text/plain" {
				t.Errorf("content type = %q", failure.ContentType)
			}

			for i, path := range stagePaths {
				want := 0
				if i <= k {
					want = 1
				}
				if got := stub.Calls(path); got != want {
					t.Errorf("%s called %d times, want %d", path, got, want)
				}
			}

			states := recorder.get(outcome.RunID)
			if last := states[len(states)-1]; last != StateFailed {
				t.Errorf("final state = %s, want failed", last)
			}
			for _, s := range states {
				if s == StateDone {
					t.Error("failed run reached done")
				}
			}
		})
	}
}

func TestRun_AmbiguousDateScenario(t *testing.T) {
	stub := newHappyBackend(t)
	stub.Handle(http.MethodPost, PathNormalize, testutil.StubResponse{
		Status: http.StatusUnprocessableEntity,
		Body:   `{"error":"ambiguous date"}`,
	})
	o := newTestOrchestrator(t, stub.URL())

	outcome := o.Run(context.Background(), NormalizeText(map[string]any{"input_text": "Book dentist tomorrow at 5pm"}))

	var failure *domain.StageFailure
	if !errors.As(outcome.Err, &failure) {
		t.Fatalf("expected StageFailure, got %v", outcome.Err)
	}
	if failure.HTTPStatusCode() != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", failure.HTTPStatusCode())
	}
	if string(failure.Body) != `{"error":"ambiguous date"}` {
		t.Errorf("body = %s", failure.Body)
	}
	if stub.Calls(PathFinalize) != 0 || stub.Calls(PathSchedule) != 0 {
		t.Errorf("finalize=%d schedule=%d, want 0 and 0", stub.Calls(PathFinalize), stub.Calls(PathSchedule))
	}
}

func TestRun_ScheduledExactlyOnce(t *testing.T) {
	stub := newHappyBackend(t)
	o := newTestOrchestrator(t, stub.URL())

	for i := 0; i < 3; i++ {
		outcome := o.Run(context.Background(), NormalizeText(map[string]any{"query": "dentist tomorrow"}))
		if !outcome.Succeeded() {
			t.Fatalf("run %d failed: %v", i, outcome.Err)
		}
		if got := stub.Calls(PathSchedule); got != i+1 {
			t.Fatalf("after run %d schedule calls = %d, want %d", i, got, i+1)
		}
	}
}

func TestRun_ImageSuccess(t *testing.T) {
	stub := newHappyBackend(t)
	o := newTestOrchestrator(t, stub.URL())

	image := []byte("\x89PNG\r\n\x1a\nfake-image")
	outcome := o.Run(context.Background(), domain.NewImageRequest(&domain.Upload{
		Filename: "appointment-note.png",
		Content:  bytes.NewReader(image),
		Size:     int64(len(image)),
	}))

	if !outcome.Succeeded() {
		t.Fatalf("unexpected failure: %v", outcome.Err)
	}
	if string(outcome.Result) != finalBody {
		t.Errorf("result = %s", outcome.Result)
	}
	if stub.Calls(PathExtractText) != 0 {
		t.Error("image run called the text extract endpoint")
	}

	req, ok := stub.LastRequest(PathExtractImage)
	if !ok {
		t.Fatal("image extract endpoint was not called")
	}
	_, params, err := mime.ParseMediaType(req.ContentType)
	if err != nil {
		t.Fatalf("content type %q: %v", req.ContentType, err)
	}
	part, err := multipart.NewReader(bytes.NewReader(req.Body), params["boundary"]).NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	data, _ := io.ReadAll(part)
	if part.FormName() != "file" || part.FileName() != "appointment-note.png" || !bytes.Equal(data, image) {
		t.Errorf("backend received field=%q file=%q data=%q", part.FormName(), part.FileName(), data)
	}

	if stub.Calls(PathSchedule) != 1 {
		t.Errorf("schedule calls = %d, want 1", stub.Calls(PathSchedule))
	}
}

func TestRun_ImageMissingFile(t *testing.T) {
	stub := newHappyBackend(t)
	recorder := newTransitionRecorder()
	o := newTestOrchestrator(t, stub.URL(), WithTransitionHook(recorder.hook))

	outcome := o.Run(context.Background(), domain.NewImageRequest(nil))

	var inputErr *domain.ClientInputError
	if !errors.As(outcome.Err, &inputErr) {
		t.Fatalf("expected ClientInputError, got %T: %v", outcome.Err, outcome.Err)
	}
	if inputErr.HTTPStatusCode() != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", inputErr.HTTPStatusCode())
	}
	if outcome.FailedStage != StageInput {
		t.Errorf("failed stage = %q", outcome.FailedStage)
	}
	if stub.TotalCalls() != 0 {
		t.Errorf("backend received %d calls, want 0", stub.TotalCalls())
	}

	want := []State{StateNormalizeInput, StateFailed}
	if got := recorder.get(outcome.RunID); !reflect.DeepEqual(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestRun_TransportFailure(t *testing.T) {
	stub := testutil.NewStubBackend(t)
	url := stub.URL()
	stub.Server.Close()

	o := newTestOrchestrator(t, url)
	outcome := o.Run(context.Background(), NormalizeText(map[string]any{"input_text": "hello"}))

	var failure *domain.StageFailure
	if !errors.As(outcome.Err, &failure) {
		t.Fatalf("expected StageFailure, got %v", outcome.Err)
	}
	if !failure.IsTransport() || failure.StatusCode != http.StatusInternalServerError {
		t.Errorf("failure = %+v, want transport 500", failure)
	}
	if outcome.FailedStage != StageExtract {
		t.Errorf("failed stage = %q", outcome.FailedStage)
	}
}

// erroringCaller fails one stage with an error that is not a StageFailure.
type erroringCaller struct {
	Caller
	stage string
	calls []string
}

func (c *erroringCaller) CallRaw(ctx context.Context, stage, path string, body []byte) (domain.StageResult, error) {
	c.calls = append(c.calls, stage)
	if stage == c.stage {
		return nil, errors.New("boom")
	}
	return c.Caller.CallRaw(ctx, stage, path, body)
}

func TestRun_UnexpectedCallerErrorBecomesTransportFailure(t *testing.T) {
	stub := newHappyBackend(t)
	client := backend.NewClient(config.BackendConfig{BaseURL: stub.URL(), Timeout: 5 * time.Second})
	caller := &erroringCaller{Caller: client, stage: StageEntities}
	o := NewOrchestrator(caller, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	outcome := o.Run(context.Background(), NormalizeText(map[string]any{"input_text": "hello"}))

	var failure *domain.StageFailure
	if !errors.As(outcome.Err, &failure) {
		t.Fatalf("expected StageFailure, got %T", outcome.Err)
	}
	if failure.StatusCode != http.StatusInternalServerError || string(failure.Body) != `{"error":"entities request failed"}` {
		t.Errorf("failure = %d %s", failure.StatusCode, failure.Body)
	}
	if !reflect.DeepEqual(caller.calls, []string{StageEntities}) {
		t.Errorf("raw calls = %v, want only entities", caller.calls)
	}
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	stub := newHappyBackend(t)
	o := newTestOrchestrator(t, stub.URL())

	const runs = 16
	var wg sync.WaitGroup
	ids := make(chan string, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := o.Run(context.Background(), NormalizeText(map[string]any{"input_text": "dentist"}))
			if !outcome.Succeeded() {
				t.Errorf("run failed: %v", outcome.Err)
				return
			}
			ids <- outcome.RunID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate run id %s", id)
		}
		seen[id] = true
	}
	if got := stub.Calls(PathSchedule); got != runs {
		t.Errorf("schedule calls = %d, want %d", got, runs)
	}
}

func TestFinalizeInput(t *testing.T) {
	got := finalizeInput([]byte(`{"a":1}`), nil)
	if string(got) != `{"normalized":{"a":1},"entities":null}` {
		t.Errorf("finalizeInput = %s", got)
	}
}
