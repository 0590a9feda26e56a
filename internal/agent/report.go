package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// buildResult assembles the terminal result payload: success verdict,
// deterministic report (possibly replaced by the summarizer), and collected
// artifacts.
func (o *Orchestrator) buildResult(ctx context.Context, cfg RunConfig, outcomes []stepOutcome, cancelled bool) *models.TaskResultPayload {
	success := !cancelled
	var artifacts []string
	for i := range outcomes {
		oc := &outcomes[i]
		if oc.result == nil || !oc.result.Success {
			success = false
		}
		if oc.result != nil {
			artifacts = append(artifacts, oc.result.Artifacts...)
		}
	}

	report := buildReport(cfg.Plan, outcomes, cancelled)

	if cfg.Hooks.Summarizer != nil {
		// A failed or empty summary keeps the deterministic report.
		if summary, err := cfg.Hooks.Summarizer.SummarizeReport(ctx, cfg.Task, report); err == nil && strings.TrimSpace(summary) != "" {
			report = summary
			if cancelled {
				report = "Task cancelled by user.\n\n" + summary
			}
		} else if err != nil && o.logger != nil {
			o.logger.Warn(ctx, "report summarizer failed, keeping deterministic report", "error", err)
		}
	}

	return &models.TaskResultPayload{
		TaskID:    cfg.Task.TaskID,
		Success:   success,
		Report:    report,
		Artifacts: artifacts,
		Cancelled: cancelled,
	}
}

// buildReport enumerates every step's outcome in plan order.
func buildReport(plan *models.AgentPlan, outcomes []stepOutcome, cancelled bool) string {
	var b strings.Builder

	if cancelled {
		b.WriteString("Task cancelled by user.\n\n")
	}

	b.WriteString("Goal: ")
	b.WriteString(plan.Goal)
	b.WriteString("\n\nSteps:\n")

	for i := range outcomes {
		oc := &outcomes[i]
		fmt.Fprintf(&b, "%d. [%s] %s — ", i+1, oc.step.Tool, oc.step.Intent)
		switch {
		case oc.result != nil && oc.result.Success:
			b.WriteString("completed")
		case oc.errCode != "":
			fmt.Fprintf(&b, "failed (%s: %s)", oc.errCode, oc.errMsg)
		case !oc.started:
			b.WriteString("not started")
		default:
			b.WriteString("failed")
		}
		b.WriteString("\n")
	}

	var artifacts []string
	for i := range outcomes {
		if outcomes[i].result != nil {
			artifacts = append(artifacts, outcomes[i].result.Artifacts...)
		}
	}
	if len(artifacts) > 0 {
		b.WriteString("\nArtifacts:\n")
		for _, a := range artifacts {
			b.WriteString("- ")
			b.WriteString(a)
			b.WriteString("\n")
		}
	}

	return b.String()
}
