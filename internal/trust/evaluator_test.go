package trust

import (
	"testing"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

func request(tool, scope string, risk models.Risk) *models.PermissionRequest {
	return &models.PermissionRequest{
		ID:    "req-1",
		Tool:  tool,
		Scope: scope,
		Risk:  risk,
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	settings := models.TrustSettings{
		DefaultTrustLevel: models.TrustStandard,
		Tools:             map[string]models.TrustLevel{"file.write": models.TrustFull},
		Domains:           map[string]models.TrustLevel{"net": models.TrustUntrusted},
	}

	tests := []struct {
		name         string
		req          *models.PermissionRequest
		opts         EvaluateOptions
		wantDecision models.Decision
		wantSource   models.DecisionSource
		wantReason   string
	}{
		{
			name: "hard block tool wins over allow rule",
			req:  request("file.read", "/etc/passwd", models.RiskLow),
			opts: EvaluateOptions{
				HardBlock: models.HardBlockConfig{BlockedTools: []string{"file.read"}},
				Rules:     []models.TrustRule{{ID: "r1", Tool: "file.read", Decision: models.DecisionAllow}},
			},
			wantDecision: models.DecisionDeny,
			wantSource:   models.SourceHardBlock,
			wantReason:   "hard-block:tool:file.read",
		},
		{
			name: "hard block domain",
			req:  request("shell.run", "ls", models.RiskLow),
			opts: EvaluateOptions{
				HardBlock: models.HardBlockConfig{BlockedDomains: []string{"shell"}},
			},
			wantDecision: models.DecisionDeny,
			wantSource:   models.SourceHardBlock,
			wantReason:   "hard-block:domain:shell",
		},
		{
			name: "hard block scope prefix wins over allow rule",
			req:  request("file.read", "/etc/passwd", models.RiskLow),
			opts: EvaluateOptions{
				HardBlock: models.HardBlockConfig{BlockedScopePrefixes: []string{"/etc/"}},
				Rules:     []models.TrustRule{{ID: "r1", Tool: "file.read", Decision: models.DecisionAllow}},
			},
			wantDecision: models.DecisionDeny,
			wantSource:   models.SourceHardBlock,
			wantReason:   "hard-block:scope:/etc/",
		},
		{
			name: "remembered rule before tool default",
			req:  request("file.write", "/home/u/a.txt", models.RiskHigh),
			opts: EvaluateOptions{
				Rules: []models.TrustRule{{ID: "r2", Tool: "file.write", ScopePrefix: "/home", Decision: models.DecisionDeny}},
			},
			wantDecision: models.DecisionDeny,
			wantSource:   models.SourceRule,
		},
		{
			name:         "tool default applies risk table",
			req:          request("file.write", "/home/u/a.txt", models.RiskHigh),
			opts:         EvaluateOptions{},
			wantDecision: models.DecisionAllow,
			wantSource:   models.SourceToolDefault,
		},
		{
			name:         "domain default applies risk table",
			req:          request("net.fetch", "https://example.com", models.RiskLow),
			opts:         EvaluateOptions{},
			wantDecision: models.DecisionAsk,
			wantSource:   models.SourceDomainDefault,
		},
		{
			name:         "profile default low risk auto-allow",
			req:          request("explain.content", "demo", models.RiskLow),
			opts:         EvaluateOptions{},
			wantDecision: models.DecisionAllow,
			wantSource:   models.SourceProfileDefault,
		},
		{
			name:         "profile default medium risk asks at standard trust",
			req:          request("explain.content", "demo", models.RiskMedium),
			opts:         EvaluateOptions{},
			wantDecision: models.DecisionAsk,
			wantSource:   models.SourceProfileDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.req, settings, tt.opts)
			if got.Decision != tt.wantDecision {
				t.Errorf("decision = %q, want %q", got.Decision, tt.wantDecision)
			}
			if got.Source != tt.wantSource {
				t.Errorf("source = %q, want %q", got.Source, tt.wantSource)
			}
			if tt.wantReason != "" && got.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluateProfileDefaultTrustLevelEcho(t *testing.T) {
	got := Evaluate(request("explain.content", "demo", models.RiskLow),
		models.TrustSettings{DefaultTrustLevel: models.TrustStandard}, EvaluateOptions{})
	if got.Decision != models.DecisionAllow {
		t.Fatalf("decision = %q, want allow", got.Decision)
	}
	if got.TrustLevel != models.TrustStandard {
		t.Errorf("trustLevel = %d, want %d", got.TrustLevel, models.TrustStandard)
	}
	if got.Source != models.SourceProfileDefault {
		t.Errorf("source = %q, want profile-default", got.Source)
	}
}

func TestEvaluateHardBlockReportsLevelZero(t *testing.T) {
	got := Evaluate(request("file.read", "/etc/hosts", models.RiskLow),
		models.TrustSettings{DefaultTrustLevel: models.TrustFull},
		EvaluateOptions{HardBlock: models.HardBlockConfig{BlockedScopePrefixes: []string{"/etc/"}}})
	if got.TrustLevel != models.TrustUntrusted {
		t.Errorf("trustLevel = %d, want 0", got.TrustLevel)
	}
}

func TestEvaluateRuleUsesProfileLevel(t *testing.T) {
	got := Evaluate(request("file.read", "/home/u/x", models.RiskLow),
		models.TrustSettings{DefaultTrustLevel: models.TrustElevated},
		EvaluateOptions{Rules: []models.TrustRule{{ID: "r", Tool: "file.read", Decision: models.DecisionAsk}}})
	if got.Decision != models.DecisionAsk {
		t.Errorf("decision = %q, want ask", got.Decision)
	}
	if got.TrustLevel != models.TrustElevated {
		t.Errorf("trustLevel = %d, want %d", got.TrustLevel, models.TrustElevated)
	}
}

func TestEvaluateFirstMatchingRuleWins(t *testing.T) {
	rules := []models.TrustRule{
		{ID: "deny-etc", Tool: "file.read", ScopePrefix: "/etc", Decision: models.DecisionDeny},
		{ID: "allow-all", Tool: "file.read", Decision: models.DecisionAllow},
	}
	got := Evaluate(request("file.read", "/etc/hosts", models.RiskLow),
		models.TrustSettings{DefaultTrustLevel: models.TrustStandard},
		EvaluateOptions{Rules: rules})
	if got.Decision != models.DecisionDeny {
		t.Errorf("decision = %q, want deny from first matching rule", got.Decision)
	}
}

func TestDecisionForRisk(t *testing.T) {
	tests := []struct {
		risk  models.Risk
		level models.TrustLevel
		want  models.Decision
	}{
		{models.RiskLow, models.TrustMinimal, models.DecisionAsk},
		{models.RiskLow, models.TrustStandard, models.DecisionAllow},
		{models.RiskMedium, models.TrustStandard, models.DecisionAsk},
		{models.RiskMedium, models.TrustElevated, models.DecisionAllow},
		{models.RiskHigh, models.TrustElevated, models.DecisionAsk},
		{models.RiskHigh, models.TrustFull, models.DecisionAllow},
		{models.RiskCritical, models.TrustFull, models.DecisionAsk},
	}
	for _, tt := range tests {
		if got := DecisionForRisk(tt.risk, tt.level); got != tt.want {
			t.Errorf("DecisionForRisk(%q, %d) = %q, want %q", tt.risk, tt.level, got, tt.want)
		}
	}
}

func TestEvaluateExplicitDomainOverridesDerived(t *testing.T) {
	req := &models.PermissionRequest{ID: "r", Tool: "file.read", Domain: "custom", Risk: models.RiskLow}
	got := Evaluate(req,
		models.TrustSettings{
			DefaultTrustLevel: models.TrustMinimal,
			Domains:           map[string]models.TrustLevel{"custom": models.TrustStandard},
		},
		EvaluateOptions{})
	if got.Source != models.SourceDomainDefault {
		t.Errorf("source = %q, want domain-default", got.Source)
	}
	if got.Decision != models.DecisionAllow {
		t.Errorf("decision = %q, want allow", got.Decision)
	}
}
