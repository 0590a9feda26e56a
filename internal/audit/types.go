// Package audit provides structured audit logging for permission prompts,
// trust decisions, and task lifecycle events. Every security-relevant
// transition in the runtime leaves exactly one audit record.
package audit

import (
	"time"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// EventType categorizes audit events.
type EventType string

const (
	// Permission lifecycle: prompt emitted, user (or timeout) resolved it.
	EventPermissionRequest  EventType = "permission.request"
	EventPermissionDecision EventType = "permission.decision"
	EventPermissionTimeout  EventType = "permission.timeout"

	// Trust evaluation outcomes worth a durable trail.
	EventTrustEvaluated EventType = "trust.evaluated"
	EventRuleAdded      EventType = "rule.added"
	EventRuleRemoved    EventType = "rule.removed"

	// Task lifecycle.
	EventTaskStarted   EventType = "task.started"
	EventTaskFinished  EventType = "task.finished"
	EventTaskCancelled EventType = "task.cancelled"

	// Profile state changes.
	EventProfileCreated  EventType = "profile.created"
	EventProfileDeleted  EventType = "profile.deleted"
	EventProfileSwitched EventType = "profile.switched"
	EventLegacyMigration EventType = "profile.legacy_migration"
)

// Level indicates event severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one audit record. Fields irrelevant to a given event type stay
// zero and are omitted from output.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Level     Level     `json:"level"`
	Timestamp time.Time `json:"timestamp"`

	ProfileID     string `json:"profile_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	TaskID        string `json:"task_id,omitempty"`

	// RequestID is the permission request being prompted or resolved.
	RequestID string `json:"request_id,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Risk      string `json:"risk,omitempty"`

	Decision string `json:"decision,omitempty"`
	Source   string `json:"source,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Remember bool   `json:"remember,omitempty"`

	// TraceID and SpanID correlate the record with distributed traces.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	Details map[string]any `json:"details,omitempty"`
}

// PermissionRequested builds the audit record for an outbound prompt.
func PermissionRequested(req *models.PermissionRequest, correlationID string) *Event {
	return &Event{
		Type:          EventPermissionRequest,
		Level:         LevelInfo,
		ProfileID:     req.ProfileID,
		CorrelationID: correlationID,
		RequestID:     req.ID,
		Tool:          req.Tool,
		Scope:         req.Scope,
		Risk:          string(req.Risk),
		Reason:        req.Reason,
	}
}

// PermissionResolved builds the audit record for a user-resolved prompt.
func PermissionResolved(req *models.PermissionRequest, correlationID string, decision models.Decision, remember bool) *Event {
	return &Event{
		Type:          EventPermissionDecision,
		Level:         LevelInfo,
		ProfileID:     req.ProfileID,
		CorrelationID: correlationID,
		RequestID:     req.ID,
		Tool:          req.Tool,
		Scope:         req.Scope,
		Decision:      string(decision),
		Remember:      remember,
	}
}

// PermissionTimedOut builds the audit record for a prompt that expired with
// no user response. Timeouts always resolve as deny.
func PermissionTimedOut(req *models.PermissionRequest, correlationID string) *Event {
	return &Event{
		Type:          EventPermissionTimeout,
		Level:         LevelWarn,
		ProfileID:     req.ProfileID,
		CorrelationID: correlationID,
		RequestID:     req.ID,
		Tool:          req.Tool,
		Scope:         req.Scope,
		Decision:      string(models.DecisionDeny),
	}
}

// TrustEvaluated builds the audit record for an engine decision.
func TrustEvaluated(req *models.PermissionRequest, decision *models.PermissionDecision) *Event {
	return &Event{
		Type:      EventTrustEvaluated,
		Level:     LevelInfo,
		ProfileID: req.ProfileID,
		RequestID: req.ID,
		Tool:      req.Tool,
		Scope:     req.Scope,
		Risk:      string(req.Risk),
		Decision:  string(decision.Decision),
		Source:    string(decision.Source),
		Reason:    decision.Reason,
	}
}
