// Package permission coordinates interactive permission prompts between the
// orchestrator and the UI: it publishes permission.request envelopes, parks
// the asking step, correlates the eventual permission.response, and resolves
// deny when the user never answers.
package permission

import (
	"context"
	"sync"
	"time"

	"github.com/spanexx/ACTA-sub001/internal/audit"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/internal/trust"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// DefaultTimeout is how long a prompt stays open before it resolves deny.
const DefaultTimeout = 30 * time.Second

// Sender publishes an envelope to the UI. The gateway's outbound channel is
// the production implementation; it must not block.
type Sender interface {
	Send(ctx context.Context, env *models.Envelope)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, env *models.Envelope)

func (f SenderFunc) Send(ctx context.Context, env *models.Envelope) { f(ctx, env) }

// RuleSink receives rules the user asked to remember persistently.
// *trust.RuleStore is the production implementation.
type RuleSink interface {
	Upsert(rule models.TrustRule) (*models.TrustRule, error)
}

// pendingPrompt is one in-flight permission request.
type pendingPrompt struct {
	req           *models.PermissionRequest
	correlationID string
	// resolved carries the user's decision; buffered so Resolve never
	// blocks on a waiter that already timed out.
	resolved chan models.Decision
}

// Coordinator owns all pending permission prompts. It implements the
// orchestrator's wait hook: WaitForPermission blocks the calling step until
// the UI answers or the timeout fires.
type Coordinator struct {
	sender  Sender
	timeout time.Duration

	logger  *observability.Logger
	metrics *observability.Metrics
	auditor *audit.Logger

	// session receives remember=session answers; rulesFor resolves the
	// persistent store for remember=persistent answers.
	session  *trust.SessionRules
	rulesFor func(profileID string) RuleSink

	mu sync.Mutex
	// pending is keyed by the permission.request envelope ID; byRequest
	// maps correlationId+":"+requestId back to that key so responses can
	// be correlated without the UI echoing the envelope ID.
	pending   map[string]*pendingPrompt
	byRequest map[string]string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the prompt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *observability.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics attaches runtime metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithAuditor attaches the audit trail; every prompt writes request and
// resolution records.
func WithAuditor(a *audit.Logger) Option {
	return func(c *Coordinator) { c.auditor = a }
}

// WithSessionRules attaches the session rule store for remember=session.
func WithSessionRules(s *trust.SessionRules) Option {
	return func(c *Coordinator) { c.session = s }
}

// WithRuleSink attaches the persistent rule store resolver for
// remember=persistent.
func WithRuleSink(rulesFor func(profileID string) RuleSink) Option {
	return func(c *Coordinator) { c.rulesFor = rulesFor }
}

// NewCoordinator creates a coordinator publishing prompts through sender.
func NewCoordinator(sender Sender, opts ...Option) *Coordinator {
	c := &Coordinator{
		sender:    sender,
		timeout:   DefaultTimeout,
		pending:   make(map[string]*pendingPrompt),
		byRequest: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PendingCount returns the number of open prompts.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// WaitForPermission publishes a prompt and blocks until the UI answers or
// the timeout fires. Timeouts resolve deny; a stop request on the owning task
// does not short-circuit the prompt, it simply expires.
func (c *Coordinator) WaitForPermission(ctx context.Context, req *models.PermissionRequest, correlationID string) (models.Decision, error) {
	env, err := models.NewEnvelope(models.TypePermissionRequest, models.SourceAgent, req)
	if err != nil {
		return models.DecisionDeny, err
	}
	env.WithCorrelation(correlationID).WithProfile(req.ProfileID)

	p := &pendingPrompt{
		req:           req,
		correlationID: correlationID,
		resolved:      make(chan models.Decision, 1),
	}

	c.mu.Lock()
	c.pending[env.ID] = p
	c.byRequest[requestKey(correlationID, req.ID)] = env.ID
	c.mu.Unlock()

	if c.auditor != nil {
		c.auditor.Log(ctx, audit.PermissionRequested(req, correlationID))
	}
	if c.logger != nil {
		c.logger.Info(ctx, "permission prompt published",
			"request_id", req.ID,
			"tool", req.Tool,
			"scope", req.Scope,
			"risk", string(req.Risk),
		)
	}

	c.sender.Send(ctx, env)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case decision := <-p.resolved:
		return decision, nil
	case <-timer.C:
		return c.expire(ctx, env.ID, p), nil
	}
}

// Resolve applies a permission.response to the matching pending prompt.
// Returns false when no prompt matches, which covers late answers to prompts
// that already timed out and responses from stale correlation scopes.
func (c *Coordinator) Resolve(ctx context.Context, correlationID string, resp *models.PermissionResponsePayload) bool {
	c.mu.Lock()
	key := requestKey(correlationID, resp.RequestID)
	msgID, ok := c.byRequest[key]
	if !ok {
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Debug(ctx, "discarding permission response with no pending prompt",
				"request_id", resp.RequestID,
				"correlation_id", correlationID,
			)
		}
		return false
	}
	p := c.pending[msgID]
	delete(c.pending, msgID)
	delete(c.byRequest, key)
	c.mu.Unlock()

	// Anything other than an explicit allow resolves deny.
	decision := models.DecisionDeny
	if resp.Decision == models.DecisionAllow {
		decision = models.DecisionAllow
	}

	remembered := false
	if decision == models.DecisionAllow && resp.Remember != "" {
		remembered = c.rememberAllow(ctx, p.req, resp.Remember)
	}

	if c.auditor != nil {
		c.auditor.Log(ctx, audit.PermissionResolved(p.req, correlationID, decision, remembered))
	}
	if c.metrics != nil {
		c.metrics.RecordPermissionPrompt(string(decision))
	}
	if c.logger != nil {
		c.logger.Info(ctx, "permission prompt resolved",
			"request_id", p.req.ID,
			"decision", string(decision),
			"remembered", remembered,
		)
	}

	p.resolved <- decision
	return true
}

// expire resolves a prompt as deny after the timeout. A response racing in
// just as the timer fires wins: the decision channel is checked one last time
// after the pending entry is confirmed gone.
func (c *Coordinator) expire(ctx context.Context, msgID string, p *pendingPrompt) models.Decision {
	c.mu.Lock()
	_, stillPending := c.pending[msgID]
	if stillPending {
		delete(c.pending, msgID)
		delete(c.byRequest, requestKey(p.correlationID, p.req.ID))
	}
	c.mu.Unlock()

	if !stillPending {
		// Resolve got there first; its decision is already buffered.
		return <-p.resolved
	}

	if c.auditor != nil {
		c.auditor.Log(ctx, audit.PermissionTimedOut(p.req, p.correlationID))
	}
	if c.metrics != nil {
		c.metrics.RecordPermissionPrompt("timeout")
	}
	if c.logger != nil {
		c.logger.Warn(ctx, "permission prompt timed out",
			"request_id", p.req.ID,
			"tool", p.req.Tool,
		)
	}
	return models.DecisionDeny
}

// rememberAllow records an allow answer as a rule. Only allows are ever
// remembered; file-scoped requests remember the concrete scope as a prefix so
// the rule covers the file, not the whole tool.
func (c *Coordinator) rememberAllow(ctx context.Context, req *models.PermissionRequest, mode models.RememberMode) bool {
	rule := models.TrustRule{
		Tool:     req.Tool,
		Decision: models.DecisionAllow,
		Remember: mode,
	}
	if req.Scope != "" && req.Scope != req.Tool {
		rule.ScopePrefix = req.Scope
	}

	switch mode {
	case models.RememberSession:
		if c.session == nil {
			return false
		}
		c.session.Add(rule)
		return true
	case models.RememberPersistent:
		if c.rulesFor == nil {
			return false
		}
		sink := c.rulesFor(req.ProfileID)
		if sink == nil {
			return false
		}
		if _, err := sink.Upsert(rule); err != nil {
			if c.logger != nil {
				c.logger.Warn(ctx, "failed to persist remembered rule",
					"tool", req.Tool,
					"error", err,
				)
			}
			return false
		}
		return true
	default:
		return false
	}
}

func requestKey(correlationID, requestID string) string {
	return correlationID + ":" + requestID
}
