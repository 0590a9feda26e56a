package models

// AgentPlan is the planner's structured output: an ordered list of tool
// invocations in service of a stated goal.
type AgentPlan struct {
	Goal  string      `json:"goal"`
	Steps []AgentStep `json:"steps"`
	Risks []string    `json:"risks,omitempty"`
}

// AgentStep is a single tool invocation within a plan. IDs are unique within
// their plan; Input is always a JSON object, never an array or null.
type AgentStep struct {
	ID                 string         `json:"id"`
	Tool               string         `json:"tool"`
	Intent             string         `json:"intent"`
	Input              map[string]any `json:"input"`
	RequiresPermission bool           `json:"requiresPermission"`
}
