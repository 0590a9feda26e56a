package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// stepOutcome tracks one step through execution for the final report.
type stepOutcome struct {
	step    *models.AgentStep
	started bool
	result  *models.ToolResult
	errCode string
	errMsg  string
}

// Orchestrator runs validated plans against the tool registry under the
// permission oracle. One orchestrator serves all tasks; per-task state lives
// on the stack of Run.
type Orchestrator struct {
	registry Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger attaches a structured logger.
func WithLogger(l *observability.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics attaches runtime metrics.
func WithMetrics(m *observability.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer attaches a tracer; task and step spans are opened when set.
func WithTracer(t *observability.Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// NewOrchestrator creates an orchestrator over the given registry.
func NewOrchestrator(registry Registry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{registry: registry}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the tool registry, for planners enumerating the catalog.
func (o *Orchestrator) Registry() Registry {
	return o.registry
}

// RunConfig is everything one task run needs injected.
type RunConfig struct {
	Task  *models.RuntimeTask
	Plan  *models.AgentPlan
	Trust models.TrustSettings

	// Evaluator decides each step; Waiter suspends on ask decisions.
	Evaluator PermissionEvaluator
	Waiter    PermissionWaiter

	// Emitter receives task.plan, task.step, task.result, and task.error
	// events in enqueue order.
	Emitter Emitter

	// Cancelled is the cooperative cancellation probe, sampled between
	// steps only. Nil means the task cannot be cancelled.
	Cancelled func() bool

	Hooks Hooks

	// Cwd and TempDir seed the tool context.
	Cwd     string
	TempDir string
}

// Run executes the plan and returns the terminal result payload. The same
// payload is also emitted as task.result. Run only fails on misuse (nil
// task or plan); execution failures are encoded in the result.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*models.TaskResultPayload, error) {
	if cfg.Task == nil || cfg.Plan == nil {
		return nil, fmt.Errorf("agent: task and plan are required")
	}

	ctx = observability.AddTaskID(ctx, cfg.Task.TaskID)
	ctx = observability.AddCorrelationID(ctx, cfg.Task.CorrelationID)
	ctx = observability.AddProfileID(ctx, cfg.Task.ProfileID)

	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartTask(ctx, cfg.Task.TaskID, cfg.Task.ProfileID)
		defer span.End()
	}

	start := time.Now()

	o.emit(ctx, cfg, models.TypeTaskPlan, &models.TaskPlanPayload{
		TaskID: cfg.Task.TaskID,
		Plan:   cfg.Plan,
	})
	if cfg.Hooks.Plan != nil {
		cfg.Hooks.Plan.OnPlan(ctx, cfg.Task, cfg.Plan)
	}

	outcomes := make([]stepOutcome, len(cfg.Plan.Steps))
	for i := range cfg.Plan.Steps {
		outcomes[i].step = &cfg.Plan.Steps[i]
	}

	cancelled := false
	stopped := false

	for i := range cfg.Plan.Steps {
		if cfg.Cancelled != nil && cfg.Cancelled() {
			cancelled = true
			break
		}
		if stopped {
			break
		}
		stopped = o.runStep(ctx, cfg, i, &outcomes[i])
	}

	result := o.buildResult(ctx, cfg, outcomes, cancelled)

	o.emit(ctx, cfg, models.TypeTaskResult, result)
	if cfg.Hooks.Result != nil {
		cfg.Hooks.Result.OnResult(ctx, cfg.Task, result)
	}

	if o.metrics != nil {
		outcome := "success"
		switch {
		case cancelled:
			outcome = "cancelled"
		case !result.Success:
			outcome = "failed"
		}
		o.metrics.RecordTask(outcome, time.Since(start).Seconds())
	}

	return result, nil
}

// runStep drives one step through the state machine. The returned flag stops
// the whole task (permission denied); per-step tool failures continue.
func (o *Orchestrator) runStep(ctx context.Context, cfg RunConfig, index int, outcome *stepOutcome) (stopTask bool) {
	step := outcome.step
	startedAt := time.Now().UnixMilli()
	outcome.started = true

	o.emit(ctx, cfg, models.TypeTaskStep, &models.TaskStepPayload{
		TaskID:    cfg.Task.TaskID,
		StepID:    step.ID,
		Index:     index,
		Tool:      step.Tool,
		Status:    models.StepInProgress,
		StartedAt: startedAt,
	})

	req := buildPermissionRequest(step, cfg.Task)
	decision := models.DecisionAllow
	if cfg.Evaluator != nil {
		decision = cfg.Evaluator.CanExecute(ctx, req, cfg.Trust).Decision
	}

	if decision == models.DecisionAsk && cfg.Waiter != nil {
		answer, err := cfg.Waiter.WaitForPermission(ctx, req, cfg.Task.CorrelationID)
		if err != nil || answer != models.DecisionAllow {
			decision = models.DecisionDeny
		} else {
			decision = models.DecisionAllow
		}
	} else if decision == models.DecisionAsk {
		// No interactive channel: ask degrades to deny.
		decision = models.DecisionDeny
	}

	if decision == models.DecisionDeny {
		o.failStep(ctx, cfg, index, outcome, startedAt, models.CodePermissionDenied,
			"permission denied for tool "+step.Tool)
		return true
	}

	tool, ok := o.registry.Get(step.Tool)
	if !ok {
		o.failStep(ctx, cfg, index, outcome, startedAt, models.CodeToolNotFound,
			"tool "+step.Tool+" is not registered")
		return false
	}

	result, err := o.invokeTool(ctx, cfg, tool, step)
	switch {
	case err != nil:
		o.failStep(ctx, cfg, index, outcome, startedAt, models.CodeToolException, err.Error())
	case !result.Success:
		outcome.result = result
		o.failStep(ctx, cfg, index, outcome, startedAt, models.CodeToolFailed, result.Error)
	default:
		outcome.result = result
		o.emit(ctx, cfg, models.TypeTaskStep, &models.TaskStepPayload{
			TaskID:      cfg.Task.TaskID,
			StepID:      step.ID,
			Index:       index,
			Tool:        step.Tool,
			Status:      models.StepCompleted,
			StartedAt:   startedAt,
			CompletedAt: time.Now().UnixMilli(),
		})
		if o.metrics != nil {
			o.metrics.RecordStep("completed")
		}
	}
	return false
}

// invokeTool executes the tool, converting panics into exception errors so
// one misbehaving tool cannot take down the runtime.
func (o *Orchestrator) invokeTool(ctx context.Context, cfg RunConfig, tool Tool, step *models.AgentStep) (result *models.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", step.Tool, r)
		}
	}()

	tc := models.ToolContext{
		ProfileID:   cfg.Task.ProfileID,
		Cwd:         cfg.Cwd,
		TempDir:     cfg.TempDir,
		Permissions: []string{},
	}

	result, err = tool.Execute(ctx, step.Input, tc)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("tool %s returned no result", step.Tool)
	}
	return result, nil
}

// failStep records a failure, emits the terminal step event and the paired
// task.error.
func (o *Orchestrator) failStep(ctx context.Context, cfg RunConfig, index int, outcome *stepOutcome, startedAt int64, code, message string) {
	outcome.errCode = code
	outcome.errMsg = message

	o.emit(ctx, cfg, models.TypeTaskStep, &models.TaskStepPayload{
		TaskID:      cfg.Task.TaskID,
		StepID:      outcome.step.ID,
		Index:       index,
		Tool:        outcome.step.Tool,
		Status:      models.StepFailed,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UnixMilli(),
		Error:       message,
	})
	o.emit(ctx, cfg, models.TypeTaskError, &models.TaskErrorPayload{
		TaskID:  cfg.Task.TaskID,
		Code:    code,
		Message: message,
		StepID:  outcome.step.ID,
	})

	if o.metrics != nil {
		o.metrics.RecordStep("failed")
		o.metrics.RecordError("agent", code)
	}
	if o.logger != nil {
		o.logger.Warn(ctx, "step failed",
			"step_id", outcome.step.ID,
			"tool", outcome.step.Tool,
			"code", code,
		)
	}
}

func (o *Orchestrator) emit(ctx context.Context, cfg RunConfig, t models.MessageType, payload any) {
	if cfg.Emitter != nil {
		cfg.Emitter.Emit(ctx, t, payload)
	}
}

// buildPermissionRequest derives the permission request for a step. The
// scope defaults to the tool id; file tools use the path-like input field so
// scope-prefix rules and hard blocks see the actual target. Steps the plan
// marked as needing permission are treated as medium risk, the rest as low.
func buildPermissionRequest(step *models.AgentStep, task *models.RuntimeTask) *models.PermissionRequest {
	scope := step.Tool
	if len(step.Input) > 0 && (len(step.Tool) > 5 && step.Tool[:5] == "file.") {
		for _, key := range []string{"path", "filePath", "src", "inputPath"} {
			if v, ok := step.Input[key].(string); ok && v != "" {
				scope = v
				break
			}
		}
	}

	risk := models.RiskLow
	if step.RequiresPermission {
		risk = models.RiskMedium
	}

	return &models.PermissionRequest{
		ID:         uuid.NewString(),
		Tool:       step.Tool,
		Action:     step.Intent,
		Reason:     step.Intent,
		Scope:      scope,
		Risk:       risk,
		Reversible: risk == models.RiskLow,
		Timestamp:  time.Now().UnixMilli(),
		ProfileID:  task.ProfileID,
	}
}
