// Package safety implements the static plan gate: a whole-plan validator
// that rejects plans touching blocked tools or scopes before any step runs.
package safety

import (
	"fmt"
	"strings"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Violation describes why a plan was rejected. One violation fails the
// entire plan; no step of a rejected plan is ever executed.
type Violation struct {
	// StepID is the offending step.
	StepID string
	// Tool is the step's tool identifier.
	Tool string
	// Reason is a human-readable explanation.
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("safety violation in step %s: %s", v.StepID, v.Reason)
}

// Config lists the gate's blocked surface.
type Config struct {
	// BlockedTools are exact tool ids no plan may use.
	BlockedTools []string
	// BlockedScopes are substrings; a step whose tool or intent contains
	// one fails the plan.
	BlockedScopes []string
}

// DefaultConfig blocks the shell and system surfaces outright.
func DefaultConfig() Config {
	return Config{
		BlockedScopes: []string{"shell", "system"},
	}
}

// Gate validates plans against a blocked tool and scope configuration.
type Gate struct {
	config Config
}

// NewGate creates a gate with the given configuration.
func NewGate(config Config) *Gate {
	return &Gate{config: config}
}

// Validate checks every step of the plan. The first violation found fails
// the whole plan.
func (g *Gate) Validate(plan *models.AgentPlan) *Violation {
	if plan == nil {
		return &Violation{Reason: "no plan"}
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if v := g.checkStep(step); v != nil {
			return v
		}
	}
	return nil
}

func (g *Gate) checkStep(step *models.AgentStep) *Violation {
	for _, tool := range g.config.BlockedTools {
		if step.Tool == tool {
			return &Violation{
				StepID: step.ID,
				Tool:   step.Tool,
				Reason: "tool " + tool + " is blocked",
			}
		}
	}
	for _, scope := range g.config.BlockedScopes {
		if scope == "" {
			continue
		}
		if strings.Contains(step.Tool, scope) {
			return &Violation{
				StepID: step.ID,
				Tool:   step.Tool,
				Reason: "tool touches blocked scope " + scope,
			}
		}
		if strings.Contains(step.Intent, scope) {
			return &Violation{
				StepID: step.ID,
				Tool:   step.Tool,
				Reason: "intent touches blocked scope " + scope,
			}
		}
	}
	return nil
}
