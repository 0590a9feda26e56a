// Package tasks owns the task lifecycle: it accepts task.request messages,
// enforces the single-flight rule, drives planning, safety validation, and
// execution, and honors cooperative stop requests.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/spanexx/ACTA-sub001/internal/agent"
	"github.com/spanexx/ACTA-sub001/internal/audit"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/internal/safety"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Error is a task admission failure carrying a stable wire code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

// ErrBusy is returned by Start while another task holds the running slot.
var ErrBusy = &Error{Code: models.CodeTaskBusy, Message: "a task is already running"}

// Planner produces a validated plan for a request.
type Planner interface {
	Plan(ctx context.Context, settings models.LLMSettings, input string, tools []models.ToolInfo) (*models.AgentPlan, error)
}

// Gate validates a plan against the blocked surface before execution.
type Gate interface {
	Validate(plan *models.AgentPlan) *safety.Violation
}

// Runner executes a validated plan. The agent orchestrator is the production
// implementation.
type Runner interface {
	Run(ctx context.Context, cfg agent.RunConfig) (*models.TaskResultPayload, error)
	Registry() agent.Registry
}

// running is the occupant of the single task slot.
type running struct {
	task      *models.RuntimeTask
	startedAt time.Time
	stop      atomic.Bool
}

// Service is the single-flight task front door. At most one task runs at a
// time; a second task.request is rejected with task.busy rather than queued.
type Service struct {
	planner Planner
	gate    Gate
	runner  Runner

	evaluator agent.PermissionEvaluator
	waiter    agent.PermissionWaiter
	emitter   agent.Emitter
	hooks     agent.Hooks

	logger  *observability.Logger
	metrics *observability.Metrics
	auditor *audit.Logger

	mu      sync.Mutex
	current *running
	wg      sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics attaches runtime metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditor attaches the audit trail.
func WithAuditor(a *audit.Logger) Option {
	return func(s *Service) { s.auditor = a }
}

// WithWaiter attaches the interactive permission channel.
func WithWaiter(w agent.PermissionWaiter) Option {
	return func(s *Service) { s.waiter = w }
}

// WithHooks attaches orchestration callbacks, e.g. the report summarizer.
func WithHooks(h agent.Hooks) Option {
	return func(s *Service) { s.hooks = h }
}

// NewService wires the task lifecycle together.
func NewService(planner Planner, gate Gate, runner Runner, evaluator agent.PermissionEvaluator, emitter agent.Emitter, opts ...Option) *Service {
	s := &Service{
		planner:   planner,
		gate:      gate,
		runner:    runner,
		evaluator: evaluator,
		emitter:   emitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Busy reports whether the running slot is occupied.
func (s *Service) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Current returns the running task, or nil.
func (s *Service) Current() *models.RuntimeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.task
}

// Start validates and admits a task. It returns the task ID immediately; the
// task itself runs on its own goroutine and reports through the emitter.
func (s *Service) Start(ctx context.Context, profile *models.Profile, correlationID string, payload *models.TaskRequestPayload) (string, error) {
	if err := validateRequest(payload); err != nil {
		return "", err
	}

	task := &models.RuntimeTask{
		TaskID:        uuid.NewString(),
		CorrelationID: correlationID,
		ProfileID:     profile.ID,
		Input:         payload.Input,
	}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return "", ErrBusy
	}
	rec := &running{task: task, startedAt: time.Now()}
	s.current = rec
	s.mu.Unlock()

	trust := effectiveTrust(profile, payload.TrustLevel)
	input := composeInput(payload)

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), rec, profile, trust, input)

	return task.TaskID, nil
}

// Stop requests cooperative cancellation. A non-empty correlation ID must
// match the running task's; a mismatch is a no-op so a stale stop from a
// previous exchange cannot kill an unrelated task.
func (s *Service) Stop(correlationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	if correlationID != "" && correlationID != s.current.task.CorrelationID {
		return false
	}
	s.current.stop.Store(true)
	return true
}

// Wait blocks until the running task, if any, has finished. Shutdown calls it
// before closing the gateway so the terminal task.result still goes out.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, rec *running, profile *models.Profile, trust models.TrustSettings, input string) {
	defer s.wg.Done()
	defer s.release(rec)

	task := rec.task
	ctx = observability.AddTaskID(ctx, task.TaskID)
	ctx = observability.AddCorrelationID(ctx, task.CorrelationID)
	ctx = observability.AddProfileID(ctx, task.ProfileID)

	if s.auditor != nil {
		s.auditor.Log(ctx, &audit.Event{
			Type:   audit.EventTaskStarted,
			TaskID: task.TaskID,
		})
	}
	if s.logger != nil {
		s.logger.Info(ctx, "task started", "input_len", len(task.Input))
	}

	start := time.Now()

	plan, err := s.planner.Plan(ctx, profile.LLM, input, s.runner.Registry().List())
	if err != nil {
		s.fail(ctx, task, models.CodeTaskPlanFailed, err.Error())
		s.finishAudit(ctx, task, "failed", time.Since(start))
		return
	}

	if s.gate != nil {
		if v := s.gate.Validate(plan); v != nil {
			s.fail(ctx, task, models.CodeTaskSafetyViolation, v.Error())
			s.finishAudit(ctx, task, "failed", time.Since(start))
			return
		}
	}

	result, err := s.runner.Run(ctx, agent.RunConfig{
		Task:      task,
		Plan:      plan,
		Trust:     trust,
		Evaluator: s.evaluator,
		Waiter:    s.waiter,
		Emitter:   s.emitter,
		Cancelled: rec.stop.Load,
		Hooks:     s.hooks,
	})
	if err != nil {
		s.fail(ctx, task, models.CodeToolException, err.Error())
		s.finishAudit(ctx, task, "failed", time.Since(start))
		return
	}

	outcome := "success"
	switch {
	case result.Cancelled:
		outcome = "cancelled"
	case !result.Success:
		outcome = "failed"
	}
	s.finishAudit(ctx, task, outcome, time.Since(start))
	if s.logger != nil {
		s.logger.Info(ctx, "task finished", "outcome", outcome)
	}
}

func (s *Service) release(rec *running) {
	s.mu.Lock()
	if s.current == rec {
		s.current = nil
	}
	s.mu.Unlock()
}

// fail emits a task.error for admission-adjacent failures that happen before
// the orchestrator takes over.
func (s *Service) fail(ctx context.Context, task *models.RuntimeTask, code, message string) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, models.TypeTaskError, &models.TaskErrorPayload{
			TaskID:  task.TaskID,
			Code:    code,
			Message: message,
		})
		s.emitter.Emit(ctx, models.TypeTaskResult, &models.TaskResultPayload{
			TaskID:  task.TaskID,
			Success: false,
			Report:  message,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordError("agent", code)
	}
	if s.logger != nil {
		s.logger.Warn(ctx, "task rejected during setup", "code", code, "message", message)
	}
}

func (s *Service) finishAudit(ctx context.Context, task *models.RuntimeTask, outcome string, elapsed time.Duration) {
	if s.auditor == nil {
		return
	}
	eventType := audit.EventTaskFinished
	if outcome == "cancelled" {
		eventType = audit.EventTaskCancelled
	}
	s.auditor.Log(ctx, &audit.Event{
		Type:   eventType,
		TaskID: task.TaskID,
		Details: map[string]any{
			"outcome":     outcome,
			"duration_ms": elapsed.Milliseconds(),
		},
	})
}

// validateRequest enforces the boundary limits on a task request.
func validateRequest(payload *models.TaskRequestPayload) error {
	if payload == nil || strings.TrimSpace(payload.Input) == "" {
		return &Error{Code: models.CodeTaskInvalidInput, Message: "task input must not be empty"}
	}
	if len(payload.Input) > models.MaxTaskInputLen {
		return &Error{
			Code:    models.CodeTaskInputTooLong,
			Message: fmt.Sprintf("task input exceeds %d characters", models.MaxTaskInputLen),
		}
	}
	if c := payload.Context; c != nil {
		if len(c.Files) > models.MaxContextFiles {
			return &Error{
				Code:    models.CodeTaskInvalidInput,
				Message: fmt.Sprintf("context attaches more than %d files", models.MaxContextFiles),
			}
		}
		for i, f := range c.Files {
			if len(f) > models.MaxContextFileLen {
				return &Error{
					Code:    models.CodeTaskInvalidInput,
					Message: fmt.Sprintf("context file %d exceeds %d characters", i, models.MaxContextFileLen),
				}
			}
		}
	}
	if payload.TrustLevel != nil && !models.ValidTrustLevel(*payload.TrustLevel) {
		return &Error{Code: models.CodeTaskInvalidInput, Message: "trustLevel out of range"}
	}
	return nil
}

// effectiveTrust applies a per-task trust override on top of the profile.
func effectiveTrust(profile *models.Profile, override *models.TrustLevel) models.TrustSettings {
	trust := profile.Trust
	if override != nil {
		trust.DefaultTrustLevel = models.ClampTrustLevel(*override)
	}
	return trust
}

// composeInput folds the optional ambient context into the planning input.
func composeInput(payload *models.TaskRequestPayload) string {
	c := payload.Context
	if c == nil {
		return payload.Input
	}

	var b strings.Builder
	b.WriteString(payload.Input)
	if len(c.Files) > 0 {
		b.WriteString("\n\nContext files:\n")
		for _, f := range c.Files {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	// Capture requests without inline content (boolean true from the UI)
	// contribute nothing: the daemon has no screen or clipboard capture
	// provider, so only UI-supplied content reaches the planner.
	if c.Screen != nil && c.Screen.Content != "" {
		b.WriteString("\nScreen context:\n")
		b.WriteString(c.Screen.Content)
		b.WriteString("\n")
	}
	if c.Clipboard != nil && c.Clipboard.Content != "" {
		b.WriteString("\nClipboard:\n")
		b.WriteString(c.Clipboard.Content)
		b.WriteString("\n")
	}
	return b.String()
}
