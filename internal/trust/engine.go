package trust

import (
	"context"
	"sync"

	"github.com/spanexx/ACTA-sub001/internal/audit"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// RuleSource is the read side of a rule store. The engine fetches the
// current rule list on every evaluation so a rule remembered mid-task
// applies to the next step.
type RuleSource interface {
	List() ([]models.TrustRule, error)
}

// Engine is the orchestrator's permission oracle: the pure evaluator bound
// to a profile's rule store and the configured hard-block policy.
type Engine struct {
	mu        sync.RWMutex
	hardBlock models.HardBlockConfig
	rules     RuleSource
	auditor   *audit.Logger
	logger    *observability.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAuditor attaches an audit logger; CanExecute writes one record per
// evaluation through it.
func WithAuditor(a *audit.Logger) EngineOption {
	return func(e *Engine) { e.auditor = a }
}

// WithEngineLogger attaches a structured logger.
func WithEngineLogger(l *observability.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over the given rule source and hard-block
// policy. A nil rules source evaluates with no remembered rules.
func NewEngine(hardBlock models.HardBlockConfig, rules RuleSource, opts ...EngineOption) *Engine {
	e := &Engine{hardBlock: hardBlock, rules: rules}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the layered decision function for a request under the given
// trust settings. Rule store read failures degrade to evaluating without
// remembered rules; a broken disk must not wedge permission checks into
// silent allows or denies.
func (e *Engine) Evaluate(ctx context.Context, req *models.PermissionRequest, settings models.TrustSettings) models.PermissionDecision {
	var rules []models.TrustRule
	if e.rules != nil {
		list, err := e.rules.List()
		if err != nil {
			if e.logger != nil {
				e.logger.Warn(ctx, "rule store unavailable, evaluating without rules",
					"tool", req.Tool,
					"error", err,
				)
			}
		} else {
			rules = list
		}
	}
	e.mu.RLock()
	hardBlock := e.hardBlock
	e.mu.RUnlock()

	return Evaluate(req, settings, EvaluateOptions{
		HardBlock: hardBlock,
		Rules:     rules,
	})
}

// CanExecute evaluates the request and writes an audit record of the
// outcome. Returns the decision for the caller to act on.
func (e *Engine) CanExecute(ctx context.Context, req *models.PermissionRequest, settings models.TrustSettings) models.PermissionDecision {
	decision := e.Evaluate(ctx, req, settings)
	if e.auditor != nil {
		e.auditor.Log(ctx, audit.TrustEvaluated(req, &decision))
	}
	if e.logger != nil {
		e.logger.Debug(ctx, "trust evaluated",
			"tool", req.Tool,
			"scope", req.Scope,
			"risk", string(req.Risk),
			"decision", string(decision.Decision),
			"source", string(decision.Source),
		)
	}
	return decision
}

// HardBlock exposes the configured hard-block policy, for surfaces that
// report effective policy to the UI.
func (e *Engine) HardBlock() models.HardBlockConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hardBlock
}

// SetHardBlock replaces the hard-block policy in place. The config watcher
// calls this on reload; in-flight evaluations finish with the old policy.
func (e *Engine) SetHardBlock(hb models.HardBlockConfig) {
	e.mu.Lock()
	e.hardBlock = hb
	e.mu.Unlock()
}
