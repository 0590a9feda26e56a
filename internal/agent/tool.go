// Package agent implements the execution orchestrator: it runs a validated
// plan step by step, consults the trust engine before every tool invocation,
// suspends on interactive permission prompts, and reports the outcome.
package agent

import (
	"context"
	"sort"
	"sync"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Tool is one executable capability. Implementations must honor ctx
// cancellation and report logical failures through ToolResult.Success rather
// than an error; a returned error means the tool itself blew up.
type Tool interface {
	// ID is the stable tool identifier ("file.read").
	ID() string

	// Info describes the tool for planning and discovery.
	Info() models.ToolInfo

	// Execute runs the tool with the step's input object.
	Execute(ctx context.Context, input map[string]any, tc models.ToolContext) (*models.ToolResult, error)
}

// Registry resolves tool ids to implementations.
type Registry interface {
	// Get returns the tool with the given id, or false.
	Get(id string) (Tool, bool)

	// List enumerates registered tools in stable order.
	List() []models.ToolInfo
}

// MemoryRegistry is a thread-safe in-memory Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *MemoryRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.ID()] = tool
}

// Get returns the tool with the given id.
func (r *MemoryRegistry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[id]
	return tool, ok
}

// List enumerates registered tools sorted by id.
func (r *MemoryRegistry) List() []models.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]models.ToolInfo, 0, len(r.tools))
	for _, tool := range r.tools {
		infos = append(infos, tool.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// FuncTool adapts a function into a Tool, mostly for tests and simple
// built-ins.
type FuncTool struct {
	ToolID      string
	Description string
	InputFields []string
	Fn          func(ctx context.Context, input map[string]any, tc models.ToolContext) (*models.ToolResult, error)
}

func (t *FuncTool) ID() string { return t.ToolID }

func (t *FuncTool) Info() models.ToolInfo {
	return models.ToolInfo{
		ID:          t.ToolID,
		Description: t.Description,
		InputFields: t.InputFields,
	}
}

func (t *FuncTool) Execute(ctx context.Context, input map[string]any, tc models.ToolContext) (*models.ToolResult, error) {
	return t.Fn(ctx, input, tc)
}
