package models

// ToolContext carries the execution environment handed to every tool
// invocation.
type ToolContext struct {
	ProfileID string `json:"profileId"`
	Cwd       string `json:"cwd,omitempty"`
	TempDir   string `json:"tempDir,omitempty"`
	// Permissions lists grants accumulated for this task. Currently
	// always empty; reserved for scoped capability hand-off.
	Permissions []string `json:"permissions"`
}

// ToolResult is the outcome of one tool invocation. A logical failure sets
// Success false with Error populated; Output carries the tool's payload on
// success.
type ToolResult struct {
	Success   bool     `json:"success"`
	Output    any      `json:"output,omitempty"`
	Error     string   `json:"error,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// ToolInfo describes a registered tool for planning and discovery.
type ToolInfo struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	InputFields []string `json:"inputFields,omitempty"`
}
