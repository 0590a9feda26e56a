// Package models provides the wire and domain types shared across the ACTA
// runtime: the IPC envelope, profiles, trust rules, plans, and task payloads.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageSource identifies which side of the IPC boundary produced a message.
type MessageSource string

const (
	// SourceUI marks messages originating from the desktop shell.
	SourceUI MessageSource = "ui"
	// SourceAgent marks messages produced by the agent runtime.
	SourceAgent MessageSource = "agent"
	// SourceTool marks messages produced by a tool during execution.
	SourceTool MessageSource = "tool"
	// SourceSystem marks lifecycle and housekeeping messages.
	SourceSystem MessageSource = "system"
)

// MessageType enumerates every message that may cross the IPC boundary.
// Unknown types are rejected at the gateway before dispatch.
type MessageType string

const (
	TypeTaskRequest    MessageType = "task.request"
	TypeTaskStop       MessageType = "task.stop"
	TypeTaskPlan       MessageType = "task.plan"
	TypeTaskStep       MessageType = "task.step"
	TypeTaskPermission MessageType = "task.permission"
	TypeTaskResult     MessageType = "task.result"
	TypeTaskError      MessageType = "task.error"

	TypeChatRequest  MessageType = "chat.request"
	TypeChatResponse MessageType = "chat.response"
	TypeChatError    MessageType = "chat.error"

	TypePermissionRequest  MessageType = "permission.request"
	TypePermissionResponse MessageType = "permission.response"
	TypeTrustPrompt        MessageType = "trust.prompt"

	TypeProfileList   MessageType = "profile.list"
	TypeProfileCreate MessageType = "profile.create"
	TypeProfileDelete MessageType = "profile.delete"
	TypeProfileSwitch MessageType = "profile.switch"
	TypeProfileActive MessageType = "profile.active"
	TypeProfileGet    MessageType = "profile.get"
	TypeProfileUpdate MessageType = "profile.update"

	TypeLLMHealthCheck MessageType = "llm.healthCheck"

	TypeMemoryRead  MessageType = "memory.read"
	TypeMemoryWrite MessageType = "memory.write"

	TypeSystemEvent MessageType = "system.event"
)

var knownMessageTypes = map[MessageType]struct{}{
	TypeTaskRequest:        {},
	TypeTaskStop:           {},
	TypeTaskPlan:           {},
	TypeTaskStep:           {},
	TypeTaskPermission:     {},
	TypeTaskResult:         {},
	TypeTaskError:          {},
	TypeChatRequest:        {},
	TypeChatResponse:       {},
	TypeChatError:          {},
	TypePermissionRequest:  {},
	TypePermissionResponse: {},
	TypeTrustPrompt:        {},
	TypeProfileList:        {},
	TypeProfileCreate:      {},
	TypeProfileDelete:      {},
	TypeProfileSwitch:      {},
	TypeProfileActive:      {},
	TypeProfileGet:         {},
	TypeProfileUpdate:      {},
	TypeLLMHealthCheck:     {},
	TypeMemoryRead:         {},
	TypeMemoryWrite:        {},
	TypeSystemEvent:        {},
}

// KnownMessageType reports whether t belongs to the closed message set.
func KnownMessageType(t MessageType) bool {
	_, ok := knownMessageTypes[t]
	return ok
}

// Envelope is the frame wrapped around every IPC message in both directions.
// Payload is kept raw so the gateway can validate shape per message type
// before handlers decode it.
type Envelope struct {
	// ID is a unique message identifier (UUID).
	ID string `json:"id"`
	// Type selects the handler; must be one of the known message types.
	Type MessageType `json:"type"`
	// Source names the producing side: ui, agent, tool, or system.
	Source MessageSource `json:"source"`
	// Timestamp is epoch milliseconds at send time.
	Timestamp int64 `json:"timestamp"`
	// Payload carries the type-specific body. It must be present on the
	// wire, though its value is unconstrained at the envelope level.
	Payload json.RawMessage `json:"payload"`
	// ProfileID, when set, scopes the message to a profile.
	ProfileID string `json:"profileId,omitempty"`
	// CorrelationID groups all messages belonging to one task or exchange.
	CorrelationID string `json:"correlationId,omitempty"`
	// ReplyTo references the ID of the message being answered.
	ReplyTo string `json:"replyTo,omitempty"`
}

// NewEnvelope builds an outbound envelope with a fresh ID and current
// timestamp, marshaling payload into the frame. A nil payload is encoded as
// JSON null so the field is still present on the wire.
func NewEnvelope(t MessageType, source MessageSource, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   raw,
	}, nil
}

// WithProfile sets the profile scope and returns the envelope for chaining.
func (e *Envelope) WithProfile(profileID string) *Envelope {
	e.ProfileID = profileID
	return e
}

// WithCorrelation sets the correlation ID and returns the envelope for chaining.
func (e *Envelope) WithCorrelation(correlationID string) *Envelope {
	e.CorrelationID = correlationID
	return e
}

// ReplyingTo marks the envelope as a reply to the given message, inheriting
// its correlation scope.
func (e *Envelope) ReplyingTo(req *Envelope) *Envelope {
	e.ReplyTo = req.ID
	e.CorrelationID = req.CorrelationID
	if e.ProfileID == "" {
		e.ProfileID = req.ProfileID
	}
	return e
}

// DecodePayload unmarshals the envelope payload into out.
func (e *Envelope) DecodePayload(out any) error {
	return json.Unmarshal(e.Payload, out)
}
