package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spanexx/ACTA-sub001/internal/tasks"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

type fakeOutbound struct {
	mu   sync.Mutex
	sent []*models.Envelope
}

func (f *fakeOutbound) Send(_ context.Context, env *models.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
}

func (f *fakeOutbound) last() *models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func TestDispatchRoutesAndReplies(t *testing.T) {
	out := &fakeOutbound{}
	d := NewDispatcher(out, nil, nil)

	var got *models.Envelope
	d.Handle(models.TypeMemoryRead, func(_ context.Context, env *models.Envelope) (*Reply, error) {
		got = env
		return &Reply{Type: models.TypeMemoryRead, Payload: &models.MemoryReadResult{Entries: 3}}, nil
	})

	d.Dispatch(context.Background(), frame(t, models.TypeMemoryRead, nil))

	if got == nil {
		t.Fatal("handler never ran")
	}
	reply := out.last()
	if reply == nil || reply.Type != models.TypeMemoryRead {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.ReplyTo != got.ID || reply.CorrelationID != "corr-1" {
		t.Errorf("reply scoping = %+v", reply)
	}
	var result models.MemoryReadResult
	if err := reply.DecodePayload(&result); err != nil || result.Entries != 3 {
		t.Errorf("payload = %+v, %v", result, err)
	}
}

func TestDispatchInvalidFrameSendsSystemError(t *testing.T) {
	out := &fakeOutbound{}
	d := NewDispatcher(out, nil, nil)

	d.Dispatch(context.Background(), frame(t, models.TypeTrustPrompt, map[string]any{}))

	reply := out.last()
	if reply == nil || reply.Type != models.TypeSystemEvent {
		t.Fatalf("reply = %+v", reply)
	}
	var payload map[string]any
	if err := reply.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["code"] != models.CodeIPCInvalidPayload {
		t.Errorf("code = %v", payload["code"])
	}
}

func TestDispatchTaskErrorsUseTaskErrorSurface(t *testing.T) {
	out := &fakeOutbound{}
	d := NewDispatcher(out, nil, nil)
	d.Handle(models.TypeTaskRequest, func(context.Context, *models.Envelope) (*Reply, error) {
		return nil, tasks.ErrBusy
	})

	d.Dispatch(context.Background(), frame(t, models.TypeTaskRequest, &models.TaskRequestPayload{Input: "x"}))

	reply := out.last()
	if reply == nil || reply.Type != models.TypeTaskError {
		t.Fatalf("reply = %+v", reply)
	}
	var payload models.TaskErrorPayload
	if err := reply.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != models.CodeTaskBusy {
		t.Errorf("code = %q, want task.busy", payload.Code)
	}
}

func TestDispatchChatErrorsUseChatErrorSurface(t *testing.T) {
	out := &fakeOutbound{}
	d := NewDispatcher(out, nil, nil)
	d.Handle(models.TypeChatRequest, func(context.Context, *models.Envelope) (*Reply, error) {
		return nil, errors.New("model fell over")
	})

	d.Dispatch(context.Background(), frame(t, models.TypeChatRequest, &models.ChatRequestPayload{Input: "hi"}))

	reply := out.last()
	if reply == nil || reply.Type != models.TypeChatError {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestDispatchAsyncHandlerSendsNoReply(t *testing.T) {
	out := &fakeOutbound{}
	d := NewDispatcher(out, nil, nil)
	d.Handle(models.TypeTaskRequest, func(context.Context, *models.Envelope) (*Reply, error) {
		return nil, nil
	})

	d.Dispatch(context.Background(), frame(t, models.TypeTaskRequest, &models.TaskRequestPayload{Input: "x"}))

	if reply := out.last(); reply != nil {
		t.Errorf("unexpected reply %+v", reply)
	}
}
