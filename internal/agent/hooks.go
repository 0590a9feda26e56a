package agent

import (
	"context"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Emitter receives the orchestrator's outbound events. Implementations must
// not block the caller; the gateway's outbound channel drops on overflow
// rather than stalling step execution.
type Emitter interface {
	Emit(ctx context.Context, t models.MessageType, payload any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, t models.MessageType, payload any)

func (f EmitterFunc) Emit(ctx context.Context, t models.MessageType, payload any) {
	f(ctx, t, payload)
}

// PermissionEvaluator decides whether a step may run. The trust engine is
// the production implementation.
type PermissionEvaluator interface {
	CanExecute(ctx context.Context, req *models.PermissionRequest, settings models.TrustSettings) models.PermissionDecision
}

// PermissionWaiter suspends a step on an interactive prompt until the user
// answers or the prompt times out. The permission coordinator is the
// production implementation; it emits the prompt, correlates the response,
// and resolves deny on timeout.
type PermissionWaiter interface {
	WaitForPermission(ctx context.Context, req *models.PermissionRequest, correlationID string) (models.Decision, error)
}

// PlanObserver is notified when a plan is accepted, before execution.
type PlanObserver interface {
	OnPlan(ctx context.Context, task *models.RuntimeTask, plan *models.AgentPlan)
}

// ResultObserver is notified with the final task result.
type ResultObserver interface {
	OnResult(ctx context.Context, task *models.RuntimeTask, result *models.TaskResultPayload)
}

// ReportSummarizer may replace the deterministic report with a generated
// summary. A failure or empty summary keeps the deterministic report.
type ReportSummarizer interface {
	SummarizeReport(ctx context.Context, task *models.RuntimeTask, report string) (string, error)
}

// Hooks bundles the optional orchestration callbacks. Any field may be nil.
type Hooks struct {
	Plan       PlanObserver
	Result     ResultObserver
	Summarizer ReportSummarizer
}
