package gateway

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

func frame(t *testing.T, msgType models.MessageType, payload any) []byte {
	t.Helper()
	env, err := models.NewEnvelope(msgType, models.SourceUI, payload)
	if err != nil {
		t.Fatal(err)
	}
	env.CorrelationID = "corr-1"
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestValidateInboundAcceptsTaskRequest(t *testing.T) {
	env, err := ValidateInbound(frame(t, models.TypeTaskRequest, &models.TaskRequestPayload{
		Input: "open my notes",
	}))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if env.Type != models.TypeTaskRequest || env.CorrelationID != "corr-1" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestValidateInboundInputBoundary(t *testing.T) {
	atLimit := frame(t, models.TypeTaskRequest, &models.TaskRequestPayload{
		Input: strings.Repeat("a", models.MaxTaskInputLen),
	})
	if _, err := ValidateInbound(atLimit); err != nil {
		t.Errorf("input of exactly %d chars rejected: %v", models.MaxTaskInputLen, err)
	}

	overLimit := frame(t, models.TypeTaskRequest, &models.TaskRequestPayload{
		Input: strings.Repeat("a", models.MaxTaskInputLen+1),
	})
	if _, err := ValidateInbound(overLimit); err == nil {
		t.Errorf("input of %d chars accepted", models.MaxTaskInputLen+1)
	}
}

func TestValidateInboundContextCaptureShapes(t *testing.T) {
	// The UI may inline captured content as strings or send booleans asking
	// the daemon to capture; both shapes must validate.
	inline := []byte(`{"id":"1","type":"task.request","source":"ui","timestamp":1,` +
		`"payload":{"input":"x","context":{"screen":"window: Notes","clipboard":"copied"}}}`)
	if _, err := ValidateInbound(inline); err != nil {
		t.Errorf("inline context rejected: %v", err)
	}

	requested := []byte(`{"id":"1","type":"task.request","source":"ui","timestamp":1,` +
		`"payload":{"input":"x","context":{"screen":true,"clipboard":false}}}`)
	if _, err := ValidateInbound(requested); err != nil {
		t.Errorf("boolean context rejected: %v", err)
	}

	bad := []byte(`{"id":"1","type":"task.request","source":"ui","timestamp":1,` +
		`"payload":{"input":"x","context":{"screen":42}}}`)
	if _, err := ValidateInbound(bad); err == nil {
		t.Error("numeric screen value accepted")
	}
}

func TestValidateInboundContextLimits(t *testing.T) {
	tooManyFiles := make([]string, models.MaxContextFiles+1)
	if _, err := ValidateInbound(frame(t, models.TypeTaskRequest, &models.TaskRequestPayload{
		Input:   "x",
		Context: &models.TaskContext{Files: tooManyFiles},
	})); err == nil {
		t.Error("context with 51 files accepted")
	}

	if _, err := ValidateInbound(frame(t, models.TypeTaskRequest, &models.TaskRequestPayload{
		Input:   "x",
		Context: &models.TaskContext{Files: []string{strings.Repeat("b", models.MaxContextFileLen+1)}},
	})); err == nil {
		t.Error("oversized context file accepted")
	}
}

func TestValidateInboundRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte("{nope")},
		{"missing payload", []byte(`{"id":"1","type":"task.request","source":"ui","timestamp":1}`)},
		{"unknown type", frame(t, models.MessageType("task.selfdestruct"), map[string]any{})},
		{"empty input", frame(t, models.TypeTaskRequest, &models.TaskRequestPayload{Input: ""})},
		{"bad source", []byte(`{"id":"1","type":"task.request","source":"martian","timestamp":1,"payload":{"input":"x"}}`)},
		{"chat without input", frame(t, models.TypeChatRequest, map[string]any{})},
		{"bad decision", frame(t, models.TypePermissionResponse, map[string]any{
			"requestId": "r", "decision": "maybe",
		})},
		{"bad profile id", frame(t, models.TypeProfileCreate, map[string]any{"id": "Invalid ID"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateInbound(tt.raw); err == nil {
				t.Error("accepted")
			}
		})
	}
}

func TestOutboundOnlyTypesRejectedInbound(t *testing.T) {
	for _, msgType := range []models.MessageType{
		models.TypeTaskPlan,
		models.TypeTaskStep,
		models.TypeTaskPermission,
		models.TypeTaskResult,
		models.TypeTaskError,
		models.TypeChatResponse,
		models.TypePermissionRequest,
		models.TypeTrustPrompt,
		models.TypeProfileActive,
		models.TypeSystemEvent,
	} {
		_, err := ValidateInbound(frame(t, msgType, map[string]any{}))
		if err == nil {
			t.Errorf("outbound-only type %q accepted from the UI", msgType)
			continue
		}
		var ve *ValidationError
		if !strings.Contains(err.Error(), models.CodeIPCInvalidPayload) {
			t.Errorf("type %q rejected without the stable code: %v (%T)", msgType, err, ve)
		}
	}
}

func TestValidateInboundPermissionResponse(t *testing.T) {
	env, err := ValidateInbound(frame(t, models.TypePermissionResponse, &models.PermissionResponsePayload{
		RequestID: "req-1",
		Decision:  models.DecisionAllow,
		Remember:  models.RememberPersistent,
	}))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var payload models.PermissionResponsePayload
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Remember != models.RememberPersistent {
		t.Errorf("payload = %+v", payload)
	}

	// The boolean shorthand validates too and maps true to the persistent
	// mode on decode.
	boolean := []byte(`{"id":"1","type":"permission.response","source":"ui","timestamp":1,` +
		`"payload":{"requestId":"req-1","decision":"allow","remember":true}}`)
	env, err = ValidateInbound(boolean)
	if err != nil {
		t.Fatalf("boolean remember rejected: %v", err)
	}
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Remember != models.RememberPersistent {
		t.Errorf("remember=true decoded as %q, want persistent", payload.Remember)
	}

	bad := []byte(`{"id":"1","type":"permission.response","source":"ui","timestamp":1,` +
		`"payload":{"requestId":"req-1","decision":"allow","remember":"forever"}}`)
	if _, err := ValidateInbound(bad); err == nil {
		t.Error("unknown remember mode accepted")
	}
}

func TestValidateInboundProfileDelete(t *testing.T) {
	raw := []byte(`{"id":"1","type":"profile.delete","source":"ui","timestamp":1,` +
		`"payload":{"id":"work","deleteFiles":true}}`)
	if _, err := ValidateInbound(raw); err != nil {
		t.Errorf("deleteFiles rejected: %v", err)
	}

	bad := []byte(`{"id":"1","type":"profile.delete","source":"ui","timestamp":1,` +
		`"payload":{"id":"work","deleteFiles":"yes"}}`)
	if _, err := ValidateInbound(bad); err == nil {
		t.Error("string deleteFiles accepted")
	}
}
