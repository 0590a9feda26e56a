package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TrustLevel grades how much autonomy a profile, domain, or tool is granted.
// Levels order strictly: a higher level permits everything a lower one does.
type TrustLevel int

const (
	// TrustUntrusted denies all automatic actions.
	TrustUntrusted TrustLevel = 0
	// TrustMinimal requires confirmation for effectively everything.
	TrustMinimal TrustLevel = 1
	// TrustStandard allows low-risk actions without prompting.
	TrustStandard TrustLevel = 2
	// TrustElevated additionally allows medium-risk actions.
	TrustElevated TrustLevel = 3
	// TrustFull additionally allows high-risk actions. Critical actions
	// still always prompt.
	TrustFull TrustLevel = 4
)

// ValidTrustLevel reports whether l is inside the defined 0..4 range.
func ValidTrustLevel(l TrustLevel) bool {
	return l >= TrustUntrusted && l <= TrustFull
}

// ClampTrustLevel forces l into the defined range, mapping anything below
// zero to untrusted and anything above four to full.
func ClampTrustLevel(l TrustLevel) TrustLevel {
	if l < TrustUntrusted {
		return TrustUntrusted
	}
	if l > TrustFull {
		return TrustFull
	}
	return l
}

// Risk classifies the blast radius of a proposed action.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// ValidRisk reports whether r is one of the four defined grades.
func ValidRisk(r Risk) bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Decision is the outcome of evaluating an action against trust state.
type Decision string

const (
	// DecisionAllow lets the action proceed without user interaction.
	DecisionAllow Decision = "allow"
	// DecisionAsk defers the action until the user responds to a prompt.
	DecisionAsk Decision = "ask"
	// DecisionDeny refuses the action outright.
	DecisionDeny Decision = "deny"
)

// DecisionSource records which layer of the evaluation produced a decision,
// in precedence order from strongest to weakest.
type DecisionSource string

const (
	// SourceHardBlock means a non-overridable policy matched.
	SourceHardBlock DecisionSource = "hard-block"
	// SourceRule means a remembered per-profile rule matched.
	SourceRule DecisionSource = "rule"
	// SourceToolDefault means the profile pins a trust level for the tool.
	SourceToolDefault DecisionSource = "tool-default"
	// SourceDomainDefault means the profile pins a trust level for the
	// action's domain.
	SourceDomainDefault DecisionSource = "domain-default"
	// SourceProfileDefault means the profile-wide default level applied.
	SourceProfileDefault DecisionSource = "profile-default"
)

// RememberMode scopes how long a user's permission answer is honored.
type RememberMode string

const (
	// RememberSession keeps the answer until the runtime restarts.
	RememberSession RememberMode = "session"
	// RememberPersistent writes the answer to the profile's rule store.
	RememberPersistent RememberMode = "persistent"
)

// UnmarshalJSON accepts the mode strings and the boolean shorthand: true is
// the persistent mode, false means do not remember.
func (m *RememberMode) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*m = RememberPersistent
		} else {
			*m = ""
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("remember must be a boolean or a mode string")
	}
	switch mode := RememberMode(s); mode {
	case "", RememberSession, RememberPersistent:
		*m = mode
		return nil
	default:
		return fmt.Errorf("unknown remember mode %q", s)
	}
}

// TrustRule is a remembered permission answer. Rules are stored per profile
// and matched by tool ID plus an optional scope prefix.
type TrustRule struct {
	ID string `json:"id"`
	// CreatedAt is epoch milliseconds when the rule was recorded.
	CreatedAt int64 `json:"createdAt"`
	// Tool is the exact tool identifier the rule applies to.
	Tool string `json:"tool"`
	// ScopePrefix, when non-empty, restricts the rule to actions whose
	// scope starts with this prefix. Empty matches any scope.
	ScopePrefix string `json:"scopePrefix,omitempty"`
	// Decision is the remembered outcome. Persisted rules only ever carry
	// allow; denials are never stored.
	Decision Decision `json:"decision"`
	// Remember distinguishes session rules from persisted ones.
	Remember RememberMode `json:"remember,omitempty"`
}

// Matches reports whether the rule covers the given tool and scope.
func (r *TrustRule) Matches(tool, scope string) bool {
	if r.Tool != tool {
		return false
	}
	if r.ScopePrefix == "" {
		return true
	}
	return strings.HasPrefix(scope, r.ScopePrefix)
}

// HardBlockConfig is the non-overridable deny policy. Each list is checked
// independently: exact tool ids, exact domain names, and string prefixes
// matched against the request scope. A hard block wins over every remembered
// rule and trust default.
type HardBlockConfig struct {
	BlockedTools         []string `json:"blockedTools,omitempty"`
	BlockedDomains       []string `json:"blockedDomains,omitempty"`
	BlockedScopePrefixes []string `json:"blockedScopePrefixes,omitempty"`
}

// PermissionRequest describes an action awaiting a user verdict. It is both
// the internal hand-off between the trust engine and the permission
// coordinator and the payload of permission.request messages.
type PermissionRequest struct {
	ID     string `json:"id"`
	Tool   string `json:"tool"`
	Domain string `json:"domain,omitempty"`
	// Action is a short human-readable statement of what will happen.
	Action string `json:"action"`
	// Reason explains why the agent wants to do it.
	Reason string `json:"reason,omitempty"`
	// Scope is the concrete target: a path, URL, command line, etc.
	Scope string `json:"scope,omitempty"`
	Risk  Risk   `json:"risk"`
	// Reversible indicates the action can be undone if approved in error.
	Reversible bool   `json:"reversible"`
	Timestamp  int64  `json:"timestamp"`
	ProfileID  string `json:"profileId,omitempty"`
	// Cloud is set when approving would send profile data to a remote
	// provider, so the prompt can warn accordingly.
	Cloud *CloudDisclosure `json:"cloud,omitempty"`
}

// EffectiveDomain returns the request's explicit domain, falling back to the
// tool's pre-dot prefix ("fs.read" yields "fs"). Tools without a dot have no
// domain.
func (p *PermissionRequest) EffectiveDomain() string {
	if p.Domain != "" {
		return p.Domain
	}
	if i := strings.Index(p.Tool, "."); i > 0 {
		return p.Tool[:i]
	}
	return ""
}

// CloudDisclosure flags that an approval implies data leaving the machine.
type CloudDisclosure struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// PermissionDecision is the resolved verdict for a PermissionRequest.
type PermissionDecision struct {
	RequestID string   `json:"requestId"`
	Decision  Decision `json:"decision"`
	// TrustLevel echoes the effective level that produced the decision.
	TrustLevel TrustLevel     `json:"trustLevel"`
	Reason     string         `json:"reason,omitempty"`
	Source     DecisionSource `json:"source"`
}

// PermissionResponsePayload is the body of permission.response messages sent
// by the UI to resolve a pending prompt.
type PermissionResponsePayload struct {
	RequestID string   `json:"requestId"`
	Decision  Decision `json:"decision"`
	// Remember, when set, records the answer as a rule with that scope.
	Remember RememberMode `json:"remember,omitempty"`
}
