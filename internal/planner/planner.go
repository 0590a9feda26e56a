// Package planner turns a user request and the available tool catalog into a
// validated agent plan via a single LLM completion.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// planMaxTokens bounds the completion; plans are small structured documents.
const planMaxTokens = 1000

const systemPrompt = `You are a planning assistant for a local automation agent. ` +
	`You convert a user request into a short, safe, executable plan. ` +
	`Respond with a single JSON object and nothing else.`

// PlanError is a planning failure surfaced to the task as task.plan_failed.
type PlanError struct {
	Message string
	Cause   error
}

func (e *PlanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", models.CodeTaskPlanFailed, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", models.CodeTaskPlanFailed, e.Message)
}

func (e *PlanError) Unwrap() error { return e.Cause }

func planFailed(msg string) *PlanError { return &PlanError{Message: msg} }

// Config restricts what the planner may plan with.
type Config struct {
	// BlockedTools are exact tool ids a plan must not use.
	BlockedTools []string
	// BlockedScopes are prohibited tool-id territories. A plan step fails
	// validation if its tool starts with "<scope>." or contains the scope.
	BlockedScopes []string
}

// DefaultConfig prohibits the shell and system tool families.
func DefaultConfig() Config {
	return Config{BlockedScopes: []string{"shell", "system"}}
}

// Completer is the slice of the LLM router the planner needs.
type Completer interface {
	Complete(ctx context.Context, settings models.LLMSettings, req llm.CompletionRequest) (*llm.CompletionResult, error)
}

// Planner builds plans through an LLM completion and validates them against
// the tool catalog and blocked surface before anything executes.
type Planner struct {
	router Completer
	config Config
	logger *observability.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger attaches a structured logger.
func WithLogger(l *observability.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// New creates a Planner over the given completion router.
func New(router Completer, config Config, opts ...Option) *Planner {
	p := &Planner{router: router, config: config}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan produces a validated plan for the user input given the available
// tools. Any failure to obtain, parse, or validate the model's answer is a
// *PlanError.
func (p *Planner) Plan(ctx context.Context, settings models.LLMSettings, input string, tools []models.ToolInfo) (*models.AgentPlan, error) {
	prompt := p.buildPrompt(input, tools)

	result, err := p.router.Complete(ctx, settings, llm.CompletionRequest{
		Prompt:    prompt,
		System:    systemPrompt,
		MaxTokens: planMaxTokens,
	})
	if err != nil {
		return nil, &PlanError{Message: "llm completion failed", Cause: err}
	}

	raw, ok := ExtractJSON(result.Text)
	if !ok {
		return nil, planFailed("no JSON object in model response")
	}

	plan, err := p.parseAndValidate(raw, tools)
	if err != nil {
		return nil, err
	}

	if p.logger != nil {
		p.logger.Debug(ctx, "plan accepted",
			"goal", plan.Goal,
			"steps", len(plan.Steps),
		)
	}
	return plan, nil
}

// buildPrompt enumerates the available tools, states the prohibitions, and
// pins the required response shape.
func (p *Planner) buildPrompt(input string, tools []models.ToolInfo) string {
	var b strings.Builder

	b.WriteString("User request:\n")
	b.WriteString(input)
	b.WriteString("\n\nAvailable tools:\n")
	for _, tool := range tools {
		b.WriteString("- ")
		b.WriteString(tool.ID)
		if tool.Description != "" {
			b.WriteString(": ")
			b.WriteString(tool.Description)
		}
		if len(tool.InputFields) > 0 {
			b.WriteString(" (input fields: ")
			b.WriteString(strings.Join(tool.InputFields, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nProhibited:\n")
	for _, scope := range p.config.BlockedScopes {
		b.WriteString("- any ")
		b.WriteString(scope)
		b.WriteString(".* tool\n")
	}
	for _, tool := range p.config.BlockedTools {
		b.WriteString("- the tool ")
		b.WriteString(tool)
		b.WriteString("\n")
	}

	b.WriteString(`
Respond with a JSON object of this exact shape:
{
  "goal": "<one sentence restating the goal>",
  "steps": [
    {"id": "step-1", "tool": "<tool id>", "intent": "<what this step does>", "input": {}, "requiresPermission": false}
  ],
  "risks": ["<optional risk notes>"]
}
Use only the listed tools. "input" must be a JSON object. Keep the plan as short as possible.`)

	return b.String()
}

// rawPlan mirrors AgentPlan with raw fields so structural checks (object vs
// array, boolean presence) happen before decoding.
type rawPlan struct {
	Goal  string    `json:"goal"`
	Steps []rawStep `json:"steps"`
	Risks []string  `json:"risks"`
}

type rawStep struct {
	ID                 string          `json:"id"`
	Tool               string          `json:"tool"`
	Intent             string          `json:"intent"`
	Input              json.RawMessage `json:"input"`
	RequiresPermission json.RawMessage `json:"requiresPermission"`
}

func (p *Planner) parseAndValidate(raw string, tools []models.ToolInfo) (*models.AgentPlan, error) {
	var parsed rawPlan
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, &PlanError{Message: "model response is not valid JSON", Cause: err}
	}

	if strings.TrimSpace(parsed.Goal) == "" {
		return nil, planFailed("plan has no goal")
	}
	if len(parsed.Steps) == 0 {
		return nil, planFailed("plan has no steps")
	}

	available := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		available[tool.ID] = struct{}{}
	}

	plan := &models.AgentPlan{
		Goal:  parsed.Goal,
		Risks: parsed.Risks,
		Steps: make([]models.AgentStep, 0, len(parsed.Steps)),
	}

	seen := make(map[string]struct{}, len(parsed.Steps))
	for i, step := range parsed.Steps {
		if step.ID == "" {
			return nil, planFailed(fmt.Sprintf("step %d has no id", i))
		}
		if _, dup := seen[step.ID]; dup {
			return nil, planFailed("duplicate step id " + step.ID)
		}
		seen[step.ID] = struct{}{}

		if step.Tool == "" {
			return nil, planFailed("step " + step.ID + " has no tool")
		}
		if err := p.checkToolAllowed(step.Tool); err != nil {
			return nil, err
		}
		if _, ok := available[step.Tool]; !ok {
			return nil, planFailed("step " + step.ID + " uses unknown tool " + step.Tool)
		}

		input, ok := decodeObject(step.Input)
		if !ok {
			return nil, planFailed("step " + step.ID + " input must be a JSON object")
		}

		requires, ok := decodeBool(step.RequiresPermission)
		if !ok {
			return nil, planFailed("step " + step.ID + " requiresPermission must be a boolean")
		}

		plan.Steps = append(plan.Steps, models.AgentStep{
			ID:                 step.ID,
			Tool:               step.Tool,
			Intent:             step.Intent,
			Input:              input,
			RequiresPermission: requires,
		})
	}

	return plan, nil
}

func (p *Planner) checkToolAllowed(tool string) error {
	for _, blocked := range p.config.BlockedTools {
		if tool == blocked {
			return planFailed("tool " + tool + " is blocked")
		}
	}
	for _, scope := range p.config.BlockedScopes {
		if scope == "" {
			continue
		}
		if strings.HasPrefix(tool, scope+".") || strings.Contains(tool, scope) {
			return planFailed("tool " + tool + " is in prohibited scope " + scope)
		}
	}
	return nil
}

// decodeObject decodes raw into a map iff it is a JSON object. Arrays, null,
// and scalars fail.
func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// decodeBool decodes raw iff it is a JSON boolean.
func decodeBool(raw json.RawMessage) (bool, bool) {
	switch strings.TrimSpace(string(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ExtractJSON pulls the JSON document out of a model response: the content
// of a fenced json code block when present, otherwise the first balanced
// top-level object.
func ExtractJSON(text string) (string, bool) {
	if fenced, ok := extractFenced(text); ok {
		return fenced, true
	}
	return extractBalanced(text)
}

func extractFenced(text string) (string, bool) {
	const open = "```json"
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// extractBalanced finds the first top-level { ... } with balanced braces,
// ignoring braces inside string literals.
func extractBalanced(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
