package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// recordingEmitter captures emitted events in order.
type recordingEmitter struct {
	mu     sync.Mutex
	types  []models.MessageType
	events []any
}

func (r *recordingEmitter) Emit(_ context.Context, t models.MessageType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, t)
	r.events = append(r.events, payload)
}

func (r *recordingEmitter) stepEvents() []*models.TaskStepPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TaskStepPayload
	for _, e := range r.events {
		if p, ok := e.(*models.TaskStepPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *recordingEmitter) errors() []*models.TaskErrorPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TaskErrorPayload
	for _, e := range r.events {
		if p, ok := e.(*models.TaskErrorPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *recordingEmitter) result() *models.TaskResultPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if p, ok := e.(*models.TaskResultPayload); ok {
			return p
		}
	}
	return nil
}

// scriptedEvaluator answers by tool id, defaulting to allow.
type scriptedEvaluator struct {
	decisions map[string]models.Decision
}

func (s *scriptedEvaluator) CanExecute(_ context.Context, req *models.PermissionRequest, _ models.TrustSettings) models.PermissionDecision {
	d, ok := s.decisions[req.Tool]
	if !ok {
		d = models.DecisionAllow
	}
	return models.PermissionDecision{RequestID: req.ID, Decision: d, Source: models.SourceProfileDefault}
}

// scriptedWaiter answers every prompt with a fixed decision.
type scriptedWaiter struct {
	decision models.Decision
	err      error
	asked    int
}

func (s *scriptedWaiter) WaitForPermission(_ context.Context, _ *models.PermissionRequest, _ string) (models.Decision, error) {
	s.asked++
	return s.decision, s.err
}

func okTool(id string) *FuncTool {
	return &FuncTool{
		ToolID: id,
		Fn: func(_ context.Context, _ map[string]any, _ models.ToolContext) (*models.ToolResult, error) {
			return &models.ToolResult{Success: true, Output: id + " done"}, nil
		},
	}
}

func testTask() *models.RuntimeTask {
	return &models.RuntimeTask{
		TaskID:        "task-1",
		CorrelationID: "corr-1",
		ProfileID:     "default",
		Input:         "do the thing",
	}
}

func threeStepPlan() *models.AgentPlan {
	return &models.AgentPlan{
		Goal: "three steps",
		Steps: []models.AgentStep{
			{ID: "s1", Tool: "a.one", Intent: "first", Input: map[string]any{}},
			{ID: "s2", Tool: "b.two", Intent: "second", Input: map[string]any{}},
			{ID: "s3", Tool: "c.three", Intent: "third", Input: map[string]any{}},
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("a.one"))
	reg.Register(okTool("b.two"))
	reg.Register(okTool("c.three"))

	emitter := &recordingEmitter{}
	o := NewOrchestrator(reg)
	result, err := o.Run(context.Background(), RunConfig{
		Task:      testTask(),
		Plan:      threeStepPlan(),
		Evaluator: &scriptedEvaluator{},
		Emitter:   emitter,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}

	want := []models.MessageType{
		models.TypeTaskPlan,
		models.TypeTaskStep, models.TypeTaskStep,
		models.TypeTaskStep, models.TypeTaskStep,
		models.TypeTaskStep, models.TypeTaskStep,
		models.TypeTaskResult,
	}
	if len(emitter.types) != len(want) {
		t.Fatalf("event count = %d, want %d: %v", len(emitter.types), len(want), emitter.types)
	}
	for i, w := range want {
		if emitter.types[i] != w {
			t.Errorf("event %d = %q, want %q", i, emitter.types[i], w)
		}
	}
}

func TestRunDenyStopsTask(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("a.one"))
	reg.Register(okTool("b.two"))
	reg.Register(okTool("c.three"))

	emitter := &recordingEmitter{}
	o := NewOrchestrator(reg)
	result, err := o.Run(context.Background(), RunConfig{
		Task:      testTask(),
		Plan:      threeStepPlan(),
		Evaluator: &scriptedEvaluator{decisions: map[string]models.Decision{"b.two": models.DecisionDeny}},
		Emitter:   emitter,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Success {
		t.Error("expected failure after deny")
	}

	steps := emitter.stepEvents()
	// s1 in-progress+completed, s2 in-progress+failed; no events for s3.
	if len(steps) != 4 {
		t.Fatalf("step events = %d, want 4: %+v", len(steps), steps)
	}
	if steps[1].Status != models.StepCompleted || steps[1].StepID != "s1" {
		t.Errorf("step 1 terminal = %+v", steps[1])
	}
	if steps[3].Status != models.StepFailed || steps[3].StepID != "s2" {
		t.Errorf("step 2 terminal = %+v", steps[3])
	}

	errs := emitter.errors()
	if len(errs) != 1 {
		t.Fatalf("task.error events = %d, want 1", len(errs))
	}
	if errs[0].Code != models.CodePermissionDenied || errs[0].StepID != "s2" {
		t.Errorf("error = %+v", errs[0])
	}
}

func TestRunAskAllowedByWaiter(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("a.one"))

	waiter := &scriptedWaiter{decision: models.DecisionAllow}
	emitter := &recordingEmitter{}
	o := NewOrchestrator(reg)
	result, err := o.Run(context.Background(), RunConfig{
		Task: testTask(),
		Plan: &models.AgentPlan{Goal: "ask", Steps: []models.AgentStep{
			{ID: "s1", Tool: "a.one", Intent: "ask first", Input: map[string]any{}, RequiresPermission: true},
		}},
		Evaluator: &scriptedEvaluator{decisions: map[string]models.Decision{"a.one": models.DecisionAsk}},
		Waiter:    waiter,
		Emitter:   emitter,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if waiter.asked != 1 {
		t.Errorf("waiter asked %d times, want 1", waiter.asked)
	}
	if !result.Success {
		t.Errorf("expected success after allow, got %+v", result)
	}
}

func TestRunAskDeniedOnWaiterTimeout(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("a.one"))

	waiter := &scriptedWaiter{decision: models.DecisionDeny}
	emitter := &recordingEmitter{}
	o := NewOrchestrator(reg)
	result, _ := o.Run(context.Background(), RunConfig{
		Task: testTask(),
		Plan: &models.AgentPlan{Goal: "ask", Steps: []models.AgentStep{
			{ID: "s1", Tool: "a.one", Intent: "ask", Input: map[string]any{}},
		}},
		Evaluator: &scriptedEvaluator{decisions: map[string]models.Decision{"a.one": models.DecisionAsk}},
		Waiter:    waiter,
		Emitter:   emitter,
	})
	if result.Success {
		t.Error("expected failure after denied prompt")
	}
	errs := emitter.errors()
	if len(errs) != 1 || errs[0].Code != models.CodePermissionDenied {
		t.Errorf("errors = %+v", errs)
	}
}

func TestRunAskWithoutWaiterDenies(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("a.one"))

	o := NewOrchestrator(reg)
	result, _ := o.Run(context.Background(), RunConfig{
		Task: testTask(),
		Plan: &models.AgentPlan{Goal: "ask", Steps: []models.AgentStep{
			{ID: "s1", Tool: "a.one", Intent: "ask", Input: map[string]any{}},
		}},
		Evaluator: &scriptedEvaluator{decisions: map[string]models.Decision{"a.one": models.DecisionAsk}},
		Emitter:   &recordingEmitter{},
	})
	if result.Success {
		t.Error("ask without a prompt channel must deny")
	}
}

func TestRunToolNotFoundContinues(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("a.one"))
	reg.Register(okTool("c.three"))
	// b.two unregistered

	emitter := &recordingEmitter{}
	o := NewOrchestrator(reg)
	result, _ := o.Run(context.Background(), RunConfig{
		Task:      testTask(),
		Plan:      threeStepPlan(),
		Evaluator: &scriptedEvaluator{},
		Emitter:   emitter,
	})
	if result.Success {
		t.Error("missing tool must fail the task overall")
	}

	steps := emitter.stepEvents()
	if len(steps) != 6 {
		t.Fatalf("step events = %d, want 6 (all three steps ran)", len(steps))
	}
	errs := emitter.errors()
	if len(errs) != 1 || errs[0].Code != models.CodeToolNotFound {
		t.Errorf("errors = %+v", errs)
	}
	if steps[5].StepID != "s3" || steps[5].Status != models.StepCompleted {
		t.Errorf("step 3 should still run: %+v", steps[5])
	}
}

func TestRunToolFailureAndException(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(&FuncTool{ToolID: "a.one", Fn: func(context.Context, map[string]any, models.ToolContext) (*models.ToolResult, error) {
		return &models.ToolResult{Success: false, Error: "logical failure"}, nil
	}})
	reg.Register(&FuncTool{ToolID: "b.two", Fn: func(context.Context, map[string]any, models.ToolContext) (*models.ToolResult, error) {
		return nil, errors.New("boom")
	}})
	reg.Register(&FuncTool{ToolID: "c.three", Fn: func(context.Context, map[string]any, models.ToolContext) (*models.ToolResult, error) {
		panic("tool bug")
	}})

	emitter := &recordingEmitter{}
	o := NewOrchestrator(reg)
	result, _ := o.Run(context.Background(), RunConfig{
		Task:      testTask(),
		Plan:      threeStepPlan(),
		Evaluator: &scriptedEvaluator{},
		Emitter:   emitter,
	})
	if result.Success {
		t.Error("expected overall failure")
	}

	errs := emitter.errors()
	if len(errs) != 3 {
		t.Fatalf("task.error events = %d, want 3", len(errs))
	}
	wantCodes := []string{models.CodeToolFailed, models.CodeToolException, models.CodeToolException}
	for i, e := range errs {
		if e.Code != wantCodes[i] {
			t.Errorf("error %d code = %q, want %q", i, e.Code, wantCodes[i])
		}
	}
}

func TestRunCancellationBetweenSteps(t *testing.T) {
	reg := NewMemoryRegistry()
	var ran []string
	for _, id := range []string{"a.one", "b.two", "c.three"} {
		id := id
		reg.Register(&FuncTool{ToolID: id, Fn: func(context.Context, map[string]any, models.ToolContext) (*models.ToolResult, error) {
			ran = append(ran, id)
			return &models.ToolResult{Success: true}, nil
		}})
	}

	calls := 0
	probe := func() bool {
		calls++
		return calls > 1 // cancel before the second step
	}

	emitter := &recordingEmitter{}
	o := NewOrchestrator(reg)
	result, _ := o.Run(context.Background(), RunConfig{
		Task:      testTask(),
		Plan:      threeStepPlan(),
		Evaluator: &scriptedEvaluator{},
		Emitter:   emitter,
		Cancelled: probe,
	})
	if result.Success {
		t.Error("cancelled task must not be successful")
	}
	if !result.Cancelled {
		t.Error("result must be flagged cancelled")
	}
	if len(ran) != 1 {
		t.Errorf("tools run = %v, want only the first", ran)
	}
	if !strings.HasPrefix(result.Report, "Task cancelled by user.") {
		t.Errorf("report must be prefixed with cancellation notice: %q", result.Report)
	}
}

type fixedSummarizer struct {
	text string
	err  error
}

func (f *fixedSummarizer) SummarizeReport(context.Context, *models.RuntimeTask, string) (string, error) {
	return f.text, f.err
}

func TestRunSummarizerReplacesReport(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("a.one"))

	o := NewOrchestrator(reg)
	result, _ := o.Run(context.Background(), RunConfig{
		Task: testTask(),
		Plan: &models.AgentPlan{Goal: "g", Steps: []models.AgentStep{
			{ID: "s1", Tool: "a.one", Intent: "only", Input: map[string]any{}},
		}},
		Evaluator: &scriptedEvaluator{},
		Emitter:   &recordingEmitter{},
		Hooks:     Hooks{Summarizer: &fixedSummarizer{text: "all done."}},
	})
	if result.Report != "all done." {
		t.Errorf("report = %q, want summary", result.Report)
	}
}

func TestRunSummarizerFailureKeepsReport(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("a.one"))

	o := NewOrchestrator(reg)
	result, _ := o.Run(context.Background(), RunConfig{
		Task: testTask(),
		Plan: &models.AgentPlan{Goal: "deterministic goal", Steps: []models.AgentStep{
			{ID: "s1", Tool: "a.one", Intent: "only", Input: map[string]any{}},
		}},
		Evaluator: &scriptedEvaluator{},
		Emitter:   &recordingEmitter{},
		Hooks:     Hooks{Summarizer: &fixedSummarizer{err: errors.New("summarizer down")}},
	})
	if !strings.Contains(result.Report, "deterministic goal") {
		t.Errorf("deterministic report must be kept: %q", result.Report)
	}
}

func TestBuildPermissionRequestScopeAndRisk(t *testing.T) {
	task := testTask()

	plain := buildPermissionRequest(&models.AgentStep{ID: "s", Tool: "explain.content", Input: map[string]any{}}, task)
	if plain.Scope != "explain.content" || plain.Risk != models.RiskLow {
		t.Errorf("plain request = %+v", plain)
	}

	file := buildPermissionRequest(&models.AgentStep{
		ID:                 "s",
		Tool:               "file.read",
		Input:              map[string]any{"path": "/home/u/doc.txt"},
		RequiresPermission: true,
	}, task)
	if file.Scope != "/home/u/doc.txt" {
		t.Errorf("file scope = %q, want the path", file.Scope)
	}
	if file.Risk != models.RiskMedium {
		t.Errorf("risk = %q, want medium when requiresPermission", file.Risk)
	}

	fallback := buildPermissionRequest(&models.AgentStep{
		ID:    "s",
		Tool:  "file.copy",
		Input: map[string]any{"src": "/a", "path": ""},
	}, task)
	if fallback.Scope != "/a" {
		t.Errorf("fallback scope = %q, want first non-empty of path/filePath/src/inputPath", fallback.Scope)
	}
}

func TestMemoryRegistryList(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Register(okTool("b.two"))
	reg.Register(okTool("a.one"))

	infos := reg.List()
	if len(infos) != 2 || infos[0].ID != "a.one" || infos[1].ID != "b.two" {
		t.Errorf("list = %+v, want sorted by id", infos)
	}
}
