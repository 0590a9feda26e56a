package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/internal/tasks"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Reply is a handler's answer to an inbound message.
type Reply struct {
	Type    models.MessageType
	Payload any
}

// Handler processes one validated inbound envelope. A nil reply with a nil
// error means the handler answers asynchronously through the event stream.
type Handler func(ctx context.Context, env *models.Envelope) (*Reply, error)

// Outbound publishes envelopes toward the UI.
type Outbound interface {
	Send(ctx context.Context, env *models.Envelope)
}

// Dispatcher routes validated envelopes to their handlers and turns handler
// failures into typed error replies.
type Dispatcher struct {
	handlers map[models.MessageType]Handler
	out      Outbound
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewDispatcher creates a dispatcher publishing replies through out.
func NewDispatcher(out Outbound, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[models.MessageType]Handler),
		out:      out,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handle registers the handler for a message type.
func (d *Dispatcher) Handle(t models.MessageType, h Handler) {
	d.handlers[t] = h
}

// Dispatch validates and routes one raw inbound frame.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) {
	env, err := ValidateInbound(raw)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordError("gateway", models.CodeIPCInvalidPayload)
		}
		if d.logger != nil {
			d.logger.Warn(ctx, "rejected inbound message", "error", err)
		}
		d.sendError(ctx, partialEnvelope(raw), models.CodeIPCInvalidPayload, err.Error())
		return
	}

	if d.metrics != nil {
		d.metrics.RecordIPCMessage(string(env.Type), "inbound")
	}
	ctx = observability.AddCorrelationID(ctx, env.CorrelationID)
	if env.ProfileID != "" {
		ctx = observability.AddProfileID(ctx, env.ProfileID)
	}

	handler, ok := d.handlers[env.Type]
	if !ok {
		d.sendError(ctx, env, models.CodeIPCInvalidPayload, "no handler for "+string(env.Type))
		return
	}

	reply, err := handler(ctx, env)
	if err != nil {
		d.sendError(ctx, env, errorCode(err), err.Error())
		return
	}
	if reply == nil {
		return
	}

	out, mErr := models.NewEnvelope(reply.Type, models.SourceAgent, reply.Payload)
	if mErr != nil {
		if d.logger != nil {
			d.logger.Error(ctx, "failed to marshal reply", "type", string(reply.Type), "error", mErr)
		}
		return
	}
	out.ReplyingTo(env)
	d.out.Send(ctx, out)
}

// sendError answers an inbound failure with the error surface matching the
// request family: tasks get task.error, chat gets chat.error, everything else
// a system.event error.
func (d *Dispatcher) sendError(ctx context.Context, env *models.Envelope, code, message string) {
	var reply *models.Envelope
	var err error

	switch {
	case env != nil && (env.Type == models.TypeTaskRequest || env.Type == models.TypeTaskStop):
		reply, err = models.NewEnvelope(models.TypeTaskError, models.SourceAgent, &models.TaskErrorPayload{
			Code:    code,
			Message: message,
		})
	case env != nil && env.Type == models.TypeChatRequest:
		reply, err = models.NewEnvelope(models.TypeChatError, models.SourceAgent, &models.ChatErrorPayload{
			Code:    code,
			Message: message,
		})
	default:
		reply, err = models.NewEnvelope(models.TypeSystemEvent, models.SourceSystem, map[string]any{
			"event":   "error",
			"code":    code,
			"message": message,
		})
	}
	if err != nil {
		return
	}
	if env != nil {
		reply.ReplyTo = env.ID
		reply.CorrelationID = env.CorrelationID
	}
	d.out.Send(ctx, reply)
}

// errorCode extracts the stable wire code from a handler failure.
func errorCode(err error) string {
	var te *tasks.Error
	if errors.As(err, &te) {
		return te.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return models.CodeIPCInvalidPayload
	}
	var xe *llm.TransportError
	if errors.As(err, &xe) {
		return xe.Code
	}
	return models.CodeLLMUnknown
}

// partialEnvelope salvages the id and correlation scope from a frame that
// failed validation, so the error reply can still reference it.
func partialEnvelope(raw []byte) *models.Envelope {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return &env
}
