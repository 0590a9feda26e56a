package gateway

import (
	"context"
	"fmt"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/internal/permission"
	"github.com/spanexx/ACTA-sub001/internal/profile"
	"github.com/spanexx/ACTA-sub001/internal/tasks"
	"github.com/spanexx/ACTA-sub001/internal/trust"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Runtime bundles the services the IPC handlers delegate to.
type Runtime struct {
	Profiles    *profile.Manager
	Tasks       *tasks.Service
	LLM         *llm.Router
	Permissions *permission.Coordinator
	// SessionRules is cleared when the active profile switches so one
	// profile's remembered answers never leak into another.
	SessionRules *trust.SessionRules
	Logger       *observability.Logger
}

// RegisterHandlers binds every inbound message type to its runtime handler.
func RegisterHandlers(d *Dispatcher, rt *Runtime) {
	d.Handle(models.TypeTaskRequest, rt.handleTaskRequest)
	d.Handle(models.TypeTaskStop, rt.handleTaskStop)
	d.Handle(models.TypeChatRequest, rt.handleChatRequest)
	d.Handle(models.TypePermissionResponse, rt.handlePermissionResponse)
	d.Handle(models.TypeProfileList, rt.handleProfileList)
	d.Handle(models.TypeProfileCreate, rt.handleProfileCreate)
	d.Handle(models.TypeProfileDelete, rt.handleProfileDelete)
	d.Handle(models.TypeProfileSwitch, rt.handleProfileSwitch)
	d.Handle(models.TypeProfileGet, rt.handleProfileGet)
	d.Handle(models.TypeProfileUpdate, rt.handleProfileUpdate)
	d.Handle(models.TypeLLMHealthCheck, rt.handleHealthCheck)
	d.Handle(models.TypeMemoryRead, rt.handleMemoryRead)
	d.Handle(models.TypeMemoryWrite, rt.handleMemoryWrite)
}

// requestProfile resolves the profile a message operates under: the envelope
// scope when present, the active profile otherwise.
func (rt *Runtime) requestProfile(env *models.Envelope) (*models.Profile, error) {
	if env.ProfileID != "" {
		return rt.Profiles.Get(env.ProfileID)
	}
	return rt.Profiles.Active()
}

func (rt *Runtime) handleTaskRequest(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload models.TaskRequestPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("task.request payload: %v", err)
	}

	p, err := rt.requestProfile(env)
	if err != nil {
		return nil, err
	}

	if _, err := rt.Tasks.Start(ctx, p, env.CorrelationID, &payload); err != nil {
		return nil, err
	}
	// The task reports asynchronously: task.plan, task.step, task.result.
	return nil, nil
}

func (rt *Runtime) handleTaskStop(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload models.TaskStopPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("task.stop payload: %v", err)
	}

	stopped := rt.Tasks.Stop(payload.CorrelationID)
	return &Reply{
		Type: models.TypeSystemEvent,
		Payload: map[string]any{
			"event":   "task.stopRequested",
			"stopped": stopped,
		},
	}, nil
}

func (rt *Runtime) handleChatRequest(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload models.ChatRequestPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("chat.request payload: %v", err)
	}

	p, err := rt.requestProfile(env)
	if err != nil {
		return nil, err
	}

	result, err := rt.LLM.Complete(ctx, p.LLM, llm.CompletionRequest{
		Prompt: payload.Input,
	})
	if err != nil {
		return nil, err
	}

	return &Reply{
		Type: models.TypeChatResponse,
		Payload: &models.ChatResponsePayload{
			Text:  result.Text,
			Model: result.Model,
		},
	}, nil
}

func (rt *Runtime) handlePermissionResponse(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload models.PermissionResponsePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("permission.response payload: %v", err)
	}

	// Late answers are dropped silently; the prompt already resolved.
	rt.Permissions.Resolve(ctx, env.CorrelationID, &payload)
	return nil, nil
}

// profileListPayload is the body of profile.list replies.
type profileListPayload struct {
	Profiles []*models.Profile `json:"profiles"`
	ActiveID string            `json:"activeId,omitempty"`
}

// profilePayload is the body of single-profile replies.
type profilePayload struct {
	Profile *models.Profile `json:"profile"`
}

// profileIDPayload decodes {id} request bodies.
type profileIDPayload struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// DeleteFiles switches profile.delete from trash to recursive removal.
	DeleteFiles bool `json:"deleteFiles,omitempty"`
}

func (rt *Runtime) handleProfileList(_ context.Context, _ *models.Envelope) (*Reply, error) {
	profiles, err := rt.Profiles.List()
	if err != nil {
		return nil, err
	}
	redacted := make([]*models.Profile, len(profiles))
	for i, p := range profiles {
		redacted[i] = redactProfile(p)
	}
	return &Reply{
		Type: models.TypeProfileList,
		Payload: &profileListPayload{
			Profiles: redacted,
			ActiveID: rt.Profiles.Store().ReadPointer(),
		},
	}, nil
}

func (rt *Runtime) handleProfileCreate(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload profileIDPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("profile.create payload: %v", err)
	}

	p, err := rt.Profiles.Create(ctx, payload.ID, payload.Name)
	if err != nil {
		return nil, err
	}
	return &Reply{Type: models.TypeProfileCreate, Payload: &profilePayload{Profile: redactProfile(p)}}, nil
}

func (rt *Runtime) handleProfileDelete(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload profileIDPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("profile.delete payload: %v", err)
	}
	if err := rt.Profiles.Delete(ctx, payload.ID, payload.DeleteFiles); err != nil {
		return nil, err
	}
	return &Reply{
		Type:    models.TypeProfileDelete,
		Payload: map[string]any{"id": payload.ID, "deleted": true},
	}, nil
}

func (rt *Runtime) handleProfileSwitch(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload profileIDPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("profile.switch payload: %v", err)
	}

	if rt.Tasks.Busy() {
		return nil, &tasks.Error{
			Code:    models.CodeTaskBusy,
			Message: "cannot switch profiles while a task is running",
		}
	}

	p, err := rt.Profiles.Switch(ctx, payload.ID)
	if err != nil {
		return nil, err
	}
	if rt.SessionRules != nil {
		rt.SessionRules.Clear()
	}
	return &Reply{Type: models.TypeProfileActive, Payload: &profilePayload{Profile: redactProfile(p)}}, nil
}

func (rt *Runtime) handleProfileGet(_ context.Context, env *models.Envelope) (*Reply, error) {
	var payload profileIDPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("profile.get payload: %v", err)
	}
	p, err := rt.Profiles.Get(payload.ID)
	if err != nil {
		return nil, err
	}
	return &Reply{Type: models.TypeProfileGet, Payload: &profilePayload{Profile: redactProfile(p)}}, nil
}

func (rt *Runtime) handleProfileUpdate(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload profilePayload
	if err := env.DecodePayload(&payload); err != nil || payload.Profile == nil {
		return nil, invalid("profile.update payload: %v", err)
	}

	// An update must not silently wipe a stored key the UI never sees.
	if payload.Profile.LLM.APIKey == "" {
		if existing, err := rt.Profiles.Get(payload.Profile.ID); err == nil {
			payload.Profile.LLM.APIKey = existing.LLM.APIKey
		}
	}

	payload.Profile.Normalize()
	if err := rt.Profiles.Update(ctx, payload.Profile); err != nil {
		return nil, err
	}
	return &Reply{Type: models.TypeProfileUpdate, Payload: &profilePayload{Profile: redactProfile(payload.Profile)}}, nil
}

func (rt *Runtime) handleHealthCheck(ctx context.Context, env *models.Envelope) (*Reply, error) {
	var payload models.HealthCheckPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("llm.healthCheck payload: %v", err)
	}

	var settings models.LLMSettings
	switch {
	case payload.LLM != nil:
		settings = *payload.LLM
	case payload.ProfileID != "":
		p, err := rt.Profiles.Get(payload.ProfileID)
		if err != nil {
			return nil, err
		}
		settings = p.LLM
	default:
		p, err := rt.Profiles.Active()
		if err != nil {
			return nil, err
		}
		settings = p.LLM
	}

	result := rt.LLM.HealthCheck(ctx, settings)
	return &Reply{Type: models.TypeLLMHealthCheck, Payload: result}, nil
}

func (rt *Runtime) notes() (*profile.Notes, error) {
	p, err := rt.Profiles.Active()
	if err != nil {
		return nil, err
	}
	return profile.NewNotes(rt.Profiles.MemoryDir(p)), nil
}

func (rt *Runtime) handleMemoryRead(_ context.Context, _ *models.Envelope) (*Reply, error) {
	notes, err := rt.notes()
	if err != nil {
		return nil, err
	}
	result, err := notes.Read()
	if err != nil {
		return nil, err
	}
	return &Reply{Type: models.TypeMemoryRead, Payload: result}, nil
}

func (rt *Runtime) handleMemoryWrite(_ context.Context, env *models.Envelope) (*Reply, error) {
	var payload models.MemoryWritePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, invalid("memory.write payload: %v", err)
	}

	notes, err := rt.notes()
	if err != nil {
		return nil, err
	}
	if err := notes.Append(payload.Text); err != nil {
		return nil, fmt.Errorf("append memory: %w", err)
	}
	result, err := notes.Read()
	if err != nil {
		return nil, err
	}
	return &Reply{Type: models.TypeMemoryWrite, Payload: result}, nil
}

// redactProfile strips secrets before a profile document crosses the IPC
// boundary. The key stays on disk; the UI only learns whether one is set.
func redactProfile(p *models.Profile) *models.Profile {
	clone := *p
	if clone.LLM.APIKey != "" {
		clone.LLM.APIKey = "********"
	}
	return &clone
}
