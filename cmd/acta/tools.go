package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spanexx/ACTA-sub001/internal/agent"
	"github.com/spanexx/ACTA-sub001/internal/profile"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// maxFileReadBytes caps what file.read returns so a plan step cannot drag an
// arbitrarily large file into the task transcript.
const maxFileReadBytes = 1 << 20

// registerBuiltinTools installs the built-in tool set into the registry.
// File tools operate on absolute paths the user granted through permission
// prompts; the memory tool appends to the profile's notes file.
func registerBuiltinTools(reg *agent.MemoryRegistry, profiles *profile.Manager) {
	reg.Register(&agent.FuncTool{
		ToolID:      "file.read",
		Description: "Read a text file from disk",
		InputFields: []string{"path"},
		Fn: func(ctx context.Context, input map[string]any, tc models.ToolContext) (*models.ToolResult, error) {
			path, ok := stringField(input, "path")
			if !ok {
				return toolFailure("path is required"), nil
			}
			info, err := os.Stat(path)
			if err != nil {
				return toolFailure("stat %s: %v", path, err), nil
			}
			if info.Size() > maxFileReadBytes {
				return toolFailure("%s is %d bytes, over the %d byte read limit", path, info.Size(), maxFileReadBytes), nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return toolFailure("read %s: %v", path, err), nil
			}
			return &models.ToolResult{Success: true, Output: string(data)}, nil
		},
	})

	reg.Register(&agent.FuncTool{
		ToolID:      "file.write",
		Description: "Write content to a file, creating parent directories",
		InputFields: []string{"path", "content"},
		Fn: func(ctx context.Context, input map[string]any, tc models.ToolContext) (*models.ToolResult, error) {
			path, ok := stringField(input, "path")
			if !ok {
				return toolFailure("path is required"), nil
			}
			content, _ := stringField(input, "content")
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return toolFailure("create parent of %s: %v", path, err), nil
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return toolFailure("write %s: %v", path, err), nil
			}
			return &models.ToolResult{
				Success:   true,
				Output:    fmt.Sprintf("wrote %d bytes to %s", len(content), path),
				Artifacts: []string{path},
			}, nil
		},
	})

	reg.Register(&agent.FuncTool{
		ToolID:      "file.list",
		Description: "List the entries of a directory",
		InputFields: []string{"path"},
		Fn: func(ctx context.Context, input map[string]any, tc models.ToolContext) (*models.ToolResult, error) {
			path, ok := stringField(input, "path")
			if !ok {
				return toolFailure("path is required"), nil
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return toolFailure("list %s: %v", path, err), nil
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return &models.ToolResult{Success: true, Output: names}, nil
		},
	})

	reg.Register(&agent.FuncTool{
		ToolID:      "memory.note",
		Description: "Append a note to the profile's memory",
		InputFields: []string{"text"},
		Fn: func(ctx context.Context, input map[string]any, tc models.ToolContext) (*models.ToolResult, error) {
			text, ok := stringField(input, "text")
			if !ok {
				return toolFailure("text is required"), nil
			}
			p, err := profiles.Get(tc.ProfileID)
			if err != nil {
				return toolFailure("resolve profile %s: %v", tc.ProfileID, err), nil
			}
			notes := profile.NewNotes(profiles.MemoryDir(p))
			if err := notes.Append(text); err != nil {
				return toolFailure("append note: %v", err), nil
			}
			return &models.ToolResult{Success: true, Output: "note saved"}, nil
		},
	})

	reg.Register(&agent.FuncTool{
		ToolID:      "datetime.now",
		Description: "Report the current date and time",
		Fn: func(ctx context.Context, input map[string]any, tc models.ToolContext) (*models.ToolResult, error) {
			now := time.Now()
			return &models.ToolResult{
				Success: true,
				Output: map[string]any{
					"iso":      now.Format(time.RFC3339),
					"unix":     now.Unix(),
					"weekday":  now.Weekday().String(),
					"timezone": now.Location().String(),
				},
			}, nil
		},
	})
}

func stringField(input map[string]any, key string) (string, bool) {
	v, ok := input[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func toolFailure(format string, args ...any) *models.ToolResult {
	return &models.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}
