package trust

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// RulesFileName is the rule store file inside a profile's trust directory.
const RulesFileName = "rules.json"

// ErrDuplicateRule is returned by Add when a rule with the same ID exists.
var ErrDuplicateRule = errors.New("trust: duplicate rule id")

// ErrRuleNotFound is returned by Remove for an unknown rule ID.
var ErrRuleNotFound = errors.New("trust: rule not found")

// RuleStore reads and writes a profile's remembered rules. The backing file
// is a JSON array; a missing or corrupt file reads as empty, and every write
// replaces the file atomically via rename so readers only ever observe a
// complete document.
type RuleStore struct {
	dir string
}

// NewRuleStore creates a store over the given trust directory. The directory
// is created lazily on first write.
func NewRuleStore(dir string) *RuleStore {
	return &RuleStore{dir: dir}
}

// Path returns the rules file location.
func (s *RuleStore) Path() string {
	return filepath.Join(s.dir, RulesFileName)
}

// List returns all structurally valid rules. A missing file is empty, not an
// error; entries with unknown decisions or missing tools are dropped.
func (s *RuleStore) List() ([]models.TrustRule, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var raw []models.TrustRule
	if err := json.Unmarshal(data, &raw); err != nil {
		// Corrupt contents are treated as an empty store rather than
		// wedging permission evaluation.
		return nil, nil
	}

	rules := raw[:0]
	for _, r := range raw {
		if validRule(&r) {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// Add appends a rule, assigning ID and CreatedAt when absent. Adding a rule
// whose ID already exists fails with ErrDuplicateRule.
func (s *RuleStore) Add(rule models.TrustRule) (*models.TrustRule, error) {
	fillRuleDefaults(&rule)
	if !validRule(&rule) {
		return nil, fmt.Errorf("trust: invalid rule for tool %q", rule.Tool)
	}

	rules, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].ID == rule.ID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
		}
	}
	rules = append(rules, rule)
	if err := s.write(rules); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Upsert inserts the rule or replaces the existing rule with the same ID.
func (s *RuleStore) Upsert(rule models.TrustRule) (*models.TrustRule, error) {
	fillRuleDefaults(&rule)
	if !validRule(&rule) {
		return nil, fmt.Errorf("trust: invalid rule for tool %q", rule.Tool)
	}

	rules, err := s.List()
	if err != nil {
		return nil, err
	}
	replaced := false
	for i := range rules {
		if rules[i].ID == rule.ID {
			rules[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		rules = append(rules, rule)
	}
	if err := s.write(rules); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Remove deletes the rule with the given ID.
func (s *RuleStore) Remove(id string) error {
	rules, err := s.List()
	if err != nil {
		return err
	}
	kept := rules[:0]
	found := false
	for _, r := range rules {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return s.write(kept)
}

// FindMatching returns the first stored rule covering the request.
func (s *RuleStore) FindMatching(req *models.PermissionRequest) (*models.TrustRule, error) {
	rules, err := s.List()
	if err != nil {
		return nil, err
	}
	if rule, ok := FindMatchingRule(rules, req); ok {
		return rule, nil
	}
	return nil, nil
}

// write replaces the rules file atomically: the new document lands in a
// temp file in the same directory and is renamed over the old one.
func (s *RuleStore) write(rules []models.TrustRule) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create trust dir: %w", err)
	}
	if rules == nil {
		rules = []models.TrustRule{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	data = append(data, '\n')

	tmp := filepath.Join(s.dir, fmt.Sprintf(".tmp-%s-%d-%s", RulesFileName, time.Now().UnixMilli(), uuid.NewString()))
	if err := writeAndSync(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename rules: %w", err)
	}
	return nil
}

func writeAndSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	return f.Close()
}

func fillRuleDefaults(rule *models.TrustRule) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt == 0 {
		rule.CreatedAt = time.Now().UnixMilli()
	}
}

func validRule(rule *models.TrustRule) bool {
	if rule.Tool == "" || rule.ID == "" {
		return false
	}
	switch rule.Decision {
	case models.DecisionAllow, models.DecisionAsk, models.DecisionDeny:
	default:
		return false
	}
	switch rule.Remember {
	case "", models.RememberSession, models.RememberPersistent:
	default:
		return false
	}
	return true
}
