package permission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spanexx/ACTA-sub001/internal/trust"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

type capturedSend struct {
	mu   sync.Mutex
	envs []*models.Envelope
}

func (c *capturedSend) Send(_ context.Context, env *models.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *capturedSend) last() *models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.envs) == 0 {
		return nil
	}
	return c.envs[len(c.envs)-1]
}

func testRequest() *models.PermissionRequest {
	return &models.PermissionRequest{
		ID:        "req-1",
		Tool:      "file.write",
		Action:    "write notes",
		Scope:     "/home/u/notes.md",
		Risk:      models.RiskMedium,
		ProfileID: "default",
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestWaitResolvesOnResponse(t *testing.T) {
	sink := &capturedSend{}
	c := NewCoordinator(sink)

	done := make(chan models.Decision, 1)
	go func() {
		d, err := c.WaitForPermission(context.Background(), testRequest(), "corr-1")
		if err != nil {
			t.Errorf("wait: %v", err)
		}
		done <- d
	}()

	// Wait for the prompt to be published.
	waitFor(t, func() bool { return sink.last() != nil })
	env := sink.last()
	if env.Type != models.TypePermissionRequest {
		t.Fatalf("published type = %q", env.Type)
	}
	if env.CorrelationID != "corr-1" || env.ProfileID != "default" {
		t.Errorf("envelope scoping = %q/%q", env.CorrelationID, env.ProfileID)
	}

	ok := c.Resolve(context.Background(), "corr-1", &models.PermissionResponsePayload{
		RequestID: "req-1",
		Decision:  models.DecisionAllow,
	})
	if !ok {
		t.Fatal("resolve should find the pending prompt")
	}

	if d := <-done; d != models.DecisionAllow {
		t.Errorf("decision = %q, want allow", d)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d after resolution", c.PendingCount())
	}
}

func TestWaitTimesOutToDeny(t *testing.T) {
	c := NewCoordinator(&capturedSend{}, WithTimeout(20*time.Millisecond))

	d, err := c.WaitForPermission(context.Background(), testRequest(), "corr-1")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if d != models.DecisionDeny {
		t.Errorf("decision = %q, want deny on timeout", d)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d after timeout", c.PendingCount())
	}
}

func TestLateResponseDiscarded(t *testing.T) {
	c := NewCoordinator(&capturedSend{}, WithTimeout(10*time.Millisecond))

	if _, err := c.WaitForPermission(context.Background(), testRequest(), "corr-1"); err != nil {
		t.Fatalf("wait: %v", err)
	}

	ok := c.Resolve(context.Background(), "corr-1", &models.PermissionResponsePayload{
		RequestID: "req-1",
		Decision:  models.DecisionAllow,
	})
	if ok {
		t.Error("late response must be discarded")
	}
}

func TestResponseFromWrongCorrelationDiscarded(t *testing.T) {
	c := NewCoordinator(&capturedSend{}, WithTimeout(100*time.Millisecond))

	go c.WaitForPermission(context.Background(), testRequest(), "corr-1")
	waitFor(t, func() bool { return c.PendingCount() == 1 })

	ok := c.Resolve(context.Background(), "corr-OTHER", &models.PermissionResponsePayload{
		RequestID: "req-1",
		Decision:  models.DecisionAllow,
	})
	if ok {
		t.Error("response under a foreign correlation id must not resolve the prompt")
	}
	if c.PendingCount() != 1 {
		t.Errorf("pending = %d, prompt must remain open", c.PendingCount())
	}
}

func TestNonAllowAnswersResolveDeny(t *testing.T) {
	for _, answer := range []models.Decision{models.DecisionDeny, models.DecisionAsk, "garbage"} {
		c := NewCoordinator(&capturedSend{}, WithTimeout(time.Second))

		done := make(chan models.Decision, 1)
		go func() {
			d, _ := c.WaitForPermission(context.Background(), testRequest(), "corr-1")
			done <- d
		}()
		waitFor(t, func() bool { return c.PendingCount() == 1 })

		c.Resolve(context.Background(), "corr-1", &models.PermissionResponsePayload{
			RequestID: "req-1",
			Decision:  answer,
		})
		if d := <-done; d != models.DecisionDeny {
			t.Errorf("answer %q resolved %q, want deny", answer, d)
		}
	}
}

type memorySink struct {
	mu    sync.Mutex
	rules []models.TrustRule
}

func (m *memorySink) Upsert(rule models.TrustRule) (*models.TrustRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return &rule, nil
}

func TestRememberPersistentWritesAllowRule(t *testing.T) {
	sink := &memorySink{}
	c := NewCoordinator(&capturedSend{},
		WithTimeout(time.Second),
		WithRuleSink(func(profileID string) RuleSink {
			if profileID != "default" {
				t.Errorf("rule sink resolved for profile %q", profileID)
			}
			return sink
		}),
	)

	done := make(chan models.Decision, 1)
	go func() {
		d, _ := c.WaitForPermission(context.Background(), testRequest(), "corr-1")
		done <- d
	}()
	waitFor(t, func() bool { return c.PendingCount() == 1 })

	c.Resolve(context.Background(), "corr-1", &models.PermissionResponsePayload{
		RequestID: "req-1",
		Decision:  models.DecisionAllow,
		Remember:  models.RememberPersistent,
	})
	<-done

	if len(sink.rules) != 1 {
		t.Fatalf("persisted rules = %d, want 1", len(sink.rules))
	}
	rule := sink.rules[0]
	if rule.Tool != "file.write" || rule.Decision != models.DecisionAllow {
		t.Errorf("rule = %+v", rule)
	}
	if rule.ScopePrefix != "/home/u/notes.md" {
		t.Errorf("scope prefix = %q, want the request scope", rule.ScopePrefix)
	}
}

func TestRememberDenyNeverStored(t *testing.T) {
	sink := &memorySink{}
	session := trust.NewSessionRules()
	c := NewCoordinator(&capturedSend{},
		WithTimeout(time.Second),
		WithSessionRules(session),
		WithRuleSink(func(string) RuleSink { return sink }),
	)

	done := make(chan models.Decision, 1)
	go func() {
		d, _ := c.WaitForPermission(context.Background(), testRequest(), "corr-1")
		done <- d
	}()
	waitFor(t, func() bool { return c.PendingCount() == 1 })

	c.Resolve(context.Background(), "corr-1", &models.PermissionResponsePayload{
		RequestID: "req-1",
		Decision:  models.DecisionDeny,
		Remember:  models.RememberPersistent,
	})
	<-done

	if len(sink.rules) != 0 {
		t.Errorf("deny was persisted: %+v", sink.rules)
	}
	if rules, _ := session.List(); len(rules) != 0 {
		t.Errorf("deny landed in session rules: %+v", rules)
	}
}

func TestRememberSessionRule(t *testing.T) {
	session := trust.NewSessionRules()
	c := NewCoordinator(&capturedSend{},
		WithTimeout(time.Second),
		WithSessionRules(session),
	)

	done := make(chan models.Decision, 1)
	go func() {
		d, _ := c.WaitForPermission(context.Background(), testRequest(), "corr-1")
		done <- d
	}()
	waitFor(t, func() bool { return c.PendingCount() == 1 })

	c.Resolve(context.Background(), "corr-1", &models.PermissionResponsePayload{
		RequestID: "req-1",
		Decision:  models.DecisionAllow,
		Remember:  models.RememberSession,
	})
	<-done

	rules, _ := session.List()
	if len(rules) != 1 {
		t.Fatalf("session rules = %d, want 1", len(rules))
	}
	if rules[0].Remember != models.RememberSession {
		t.Errorf("remember mode = %q", rules[0].Remember)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
