// Package gateway is the IPC boundary: it validates every inbound envelope
// against the closed message set and per-type payload schemas, dispatches to
// the runtime handlers, and fans events back out over the WebSocket without
// ever blocking the execution path.
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// ValidationError reports why an inbound message was rejected. It always
// surfaces as ipc.invalid_payload on the wire.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s", models.CodeIPCInvalidPayload, e.Message)
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type schemaRegistry struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	payloads map[models.MessageType]*jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		envelope, err := jsonschema.CompileString("envelope", envelopeSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.envelope = envelope

		payloads := map[models.MessageType]string{
			models.TypeTaskRequest:        taskRequestSchema,
			models.TypeTaskStop:           taskStopSchema,
			models.TypeChatRequest:        chatRequestSchema,
			models.TypePermissionResponse: permissionResponseSchema,
			models.TypeProfileList:        emptyObjectSchema,
			models.TypeProfileCreate:      profileCreateSchema,
			models.TypeProfileDelete:      profileDeleteSchema,
			models.TypeProfileSwitch:      profileIDSchema,
			models.TypeProfileGet:         profileIDSchema,
			models.TypeProfileUpdate:      profileUpdateSchema,
			models.TypeLLMHealthCheck:     healthCheckSchema,
			models.TypeMemoryRead:         emptyObjectSchema,
			models.TypeMemoryWrite:        memoryWriteSchema,
		}

		schemas.payloads = make(map[models.MessageType]*jsonschema.Schema, len(payloads))
		for t, src := range payloads {
			compiled, err := jsonschema.CompileString("payload_"+string(t), src)
			if err != nil {
				schemas.initErr = err
				return
			}
			schemas.payloads[t] = compiled
		}
	})
	return schemas.initErr
}

// inboundTypes is the set of message types the UI may send. Everything else
// in the known set is outbound-only and rejected on arrival.
var inboundTypes = map[models.MessageType]struct{}{
	models.TypeTaskRequest:        {},
	models.TypeTaskStop:           {},
	models.TypeChatRequest:        {},
	models.TypePermissionResponse: {},
	models.TypeProfileList:        {},
	models.TypeProfileCreate:      {},
	models.TypeProfileDelete:      {},
	models.TypeProfileSwitch:      {},
	models.TypeProfileGet:         {},
	models.TypeProfileUpdate:      {},
	models.TypeLLMHealthCheck:     {},
	models.TypeMemoryRead:         {},
	models.TypeMemoryWrite:        {},
}

// InboundType reports whether the UI is allowed to send this message type.
func InboundType(t models.MessageType) bool {
	_, ok := inboundTypes[t]
	return ok
}

// ValidateInbound parses and validates one raw inbound frame. The envelope
// shape, the closed type set, the inbound direction, and the per-type payload
// schema are all enforced before any handler sees the message.
func ValidateInbound(raw []byte) (*models.Envelope, error) {
	if err := initSchemas(); err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, invalid("message is not valid JSON: %v", err)
	}
	if err := schemas.envelope.Validate(doc); err != nil {
		return nil, invalid("envelope rejected: %v", err)
	}

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, invalid("envelope rejected: %v", err)
	}

	if !models.KnownMessageType(env.Type) {
		return nil, invalid("unknown message type %q", env.Type)
	}
	if !InboundType(env.Type) {
		return nil, invalid("message type %q is not accepted from the UI", env.Type)
	}

	if schema := schemas.payloads[env.Type]; schema != nil {
		var payload any
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, invalid("payload is not valid JSON: %v", err)
		}
		if err := schema.Validate(payload); err != nil {
			return nil, invalid("payload rejected for %s: %v", env.Type, err)
		}
	}

	return &env, nil
}

const envelopeSchema = `{
  "type": "object",
  "required": ["id", "type", "source", "timestamp", "payload"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "type": { "type": "string", "minLength": 1 },
    "source": { "enum": ["ui", "agent", "tool", "system"] },
    "timestamp": { "type": "integer", "minimum": 0 },
    "payload": {},
    "profileId": { "type": "string" },
    "correlationId": { "type": "string" },
    "replyTo": { "type": "string" }
  },
  "additionalProperties": false
}`

const taskRequestSchema = `{
  "type": "object",
  "required": ["input"],
  "properties": {
    "input": { "type": "string", "minLength": 1, "maxLength": 20000 },
    "context": {
      "type": "object",
      "properties": {
        "files": {
          "type": "array",
          "maxItems": 50,
          "items": { "type": "string", "maxLength": 500 }
        },
        "screen": { "type": ["boolean", "string"] },
        "clipboard": { "type": ["boolean", "string"] }
      },
      "additionalProperties": false
    },
    "trustLevel": { "type": "integer", "minimum": 0, "maximum": 4 }
  },
  "additionalProperties": false
}`

const taskStopSchema = `{
  "type": "object",
  "properties": {
    "correlationId": { "type": "string" }
  },
  "additionalProperties": false
}`

const chatRequestSchema = `{
  "type": "object",
  "required": ["input"],
  "properties": {
    "input": { "type": "string", "minLength": 1, "maxLength": 20000 }
  },
  "additionalProperties": false
}`

const permissionResponseSchema = `{
  "type": "object",
  "required": ["requestId", "decision"],
  "properties": {
    "requestId": { "type": "string", "minLength": 1 },
    "decision": { "enum": ["allow", "deny"] },
    "remember": { "enum": ["session", "persistent", true, false] }
  },
  "additionalProperties": false
}`

const emptyObjectSchema = `{
  "type": ["object", "null"],
  "additionalProperties": false
}`

const profileCreateSchema = `{
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": { "type": "string", "pattern": "^[a-z0-9][a-z0-9-_]{2,63}$" },
    "name": { "type": "string", "maxLength": 200 }
  },
  "additionalProperties": false
}`

const profileDeleteSchema = `{
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "deleteFiles": { "type": "boolean" }
  },
  "additionalProperties": false
}`

const profileIDSchema = `{
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": false
}`

const profileUpdateSchema = `{
  "type": "object",
  "required": ["profile"],
  "properties": {
    "profile": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 }
      }
    }
  },
  "additionalProperties": false
}`

const healthCheckSchema = `{
  "type": "object",
  "properties": {
    "profileId": { "type": "string" },
    "llm": { "type": "object" }
  },
  "additionalProperties": false
}`

const memoryWriteSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": { "type": "string", "minLength": 1, "maxLength": 20000 }
  },
  "additionalProperties": false
}`
