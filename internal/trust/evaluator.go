// Package trust implements the permission oracle of the runtime: a pure
// evaluator over hard blocks, remembered rules, and trust-level defaults, a
// durable per-profile rule store, and the engine that composes the two.
package trust

import (
	"strings"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// EvaluateOptions carries the policy inputs for a single evaluation: the
// non-overridable hard-block lists and the profile's remembered rules.
type EvaluateOptions struct {
	HardBlock models.HardBlockConfig
	Rules     []models.TrustRule
}

// Evaluate decides a permission request against trust state. It is a pure
// function: deterministic for fixed inputs and free of I/O. Layers are
// checked in precedence order and the first match wins:
//
//  1. hard block (tool, then domain, then scope prefix)
//  2. remembered rule
//  3. per-tool trust level
//  4. per-domain trust level
//  5. profile default trust level
func Evaluate(req *models.PermissionRequest, settings models.TrustSettings, opts EvaluateOptions) models.PermissionDecision {
	domain := req.EffectiveDomain()

	// 1. Hard blocks short-circuit everything, including allow rules.
	if containsString(opts.HardBlock.BlockedTools, req.Tool) {
		return hardBlocked(req, "hard-block:tool:"+req.Tool)
	}
	if domain != "" && containsString(opts.HardBlock.BlockedDomains, domain) {
		return hardBlocked(req, "hard-block:domain:"+domain)
	}
	for _, prefix := range opts.HardBlock.BlockedScopePrefixes {
		if prefix != "" && strings.HasPrefix(req.Scope, prefix) {
			return hardBlocked(req, "hard-block:scope:"+prefix)
		}
	}

	level := effectiveDefault(settings)

	// 2. First matching remembered rule.
	for i := range opts.Rules {
		if opts.Rules[i].Matches(req.Tool, req.Scope) {
			return models.PermissionDecision{
				RequestID:  req.ID,
				Decision:   opts.Rules[i].Decision,
				TrustLevel: level,
				Reason:     "rule:" + opts.Rules[i].ID,
				Source:     models.SourceRule,
			}
		}
	}

	// 3. Tool-level override.
	if t, ok := settings.Tools[req.Tool]; ok {
		return levelDecision(req, t, models.SourceToolDefault)
	}

	// 4. Domain-level override.
	if domain != "" {
		if t, ok := settings.Domains[domain]; ok {
			return levelDecision(req, t, models.SourceDomainDefault)
		}
	}

	// 5. Profile default.
	return levelDecision(req, level, models.SourceProfileDefault)
}

// DecisionForRisk applies the risk/trust table: low risk auto-allows at
// standard trust, medium at elevated, high at full, and critical actions
// always prompt regardless of level.
func DecisionForRisk(risk models.Risk, level models.TrustLevel) models.Decision {
	switch risk {
	case models.RiskLow:
		if level >= models.TrustStandard {
			return models.DecisionAllow
		}
	case models.RiskMedium:
		if level >= models.TrustElevated {
			return models.DecisionAllow
		}
	case models.RiskHigh:
		if level >= models.TrustFull {
			return models.DecisionAllow
		}
	}
	return models.DecisionAsk
}

// FindMatchingRule returns the first rule covering the request, using the
// same matching order the evaluator applies.
func FindMatchingRule(rules []models.TrustRule, req *models.PermissionRequest) (*models.TrustRule, bool) {
	for i := range rules {
		if rules[i].Matches(req.Tool, req.Scope) {
			return &rules[i], true
		}
	}
	return nil, false
}

func effectiveDefault(settings models.TrustSettings) models.TrustLevel {
	if models.ValidTrustLevel(settings.DefaultTrustLevel) {
		return settings.DefaultTrustLevel
	}
	return models.DefaultTrustLevel
}

func levelDecision(req *models.PermissionRequest, level models.TrustLevel, source models.DecisionSource) models.PermissionDecision {
	level = models.ClampTrustLevel(level)
	return models.PermissionDecision{
		RequestID:  req.ID,
		Decision:   DecisionForRisk(req.Risk, level),
		TrustLevel: level,
		Reason:     "risk:" + string(req.Risk),
		Source:     source,
	}
}

func hardBlocked(req *models.PermissionRequest, reason string) models.PermissionDecision {
	return models.PermissionDecision{
		RequestID:  req.ID,
		Decision:   models.DecisionDeny,
		TrustLevel: models.TrustUntrusted,
		Reason:     reason,
		Source:     models.SourceHardBlock,
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
