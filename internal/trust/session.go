package trust

import (
	"sync"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// SessionRules holds rules remembered for the lifetime of the process only.
// They are never written to disk and vanish on restart.
type SessionRules struct {
	mu    sync.RWMutex
	rules []models.TrustRule
}

// NewSessionRules creates an empty session store.
func NewSessionRules() *SessionRules {
	return &SessionRules{}
}

// Add remembers a rule for this session. Defaults are filled like the
// persistent store does.
func (s *SessionRules) Add(rule models.TrustRule) *models.TrustRule {
	fillRuleDefaults(&rule)
	rule.Remember = models.RememberSession

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
	return &rule
}

// List returns a copy of the current session rules. Never fails.
func (s *SessionRules) List() ([]models.TrustRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrustRule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// Clear drops all session rules, used when the active profile switches.
func (s *SessionRules) Clear() {
	s.mu.Lock()
	s.rules = nil
	s.mu.Unlock()
}

// MultiSource concatenates rule sources in order. Earlier sources win because
// evaluation takes the first matching rule.
type MultiSource []RuleSource

// List merges all sources. A failing source fails the whole read so the
// engine's degradation path handles it uniformly.
func (m MultiSource) List() ([]models.TrustRule, error) {
	var out []models.TrustRule
	for _, src := range m {
		if src == nil {
			continue
		}
		rules, err := src.List()
		if err != nil {
			return nil, err
		}
		out = append(out, rules...)
	}
	return out, nil
}
