package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// NotesFileName is the per-profile free-form memory file.
const NotesFileName = "notes.md"

// Notes is the profile's persistent free-form memory: a markdown file of
// timestamped entries. Writes append; reads return the whole document.
type Notes struct {
	mu  sync.Mutex
	dir string
}

// NewNotes creates a notes store over the profile's memory directory.
func NewNotes(dir string) *Notes {
	return &Notes{dir: dir}
}

// Path returns the notes file location.
func (n *Notes) Path() string {
	return filepath.Join(n.dir, NotesFileName)
}

// Append adds one entry with a timestamp heading.
func (n *Notes) Append(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("memory entry must not be empty")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := os.MkdirAll(n.dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	f, err := os.OpenFile(n.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open notes: %w", err)
	}
	defer f.Close()

	stamp := time.Now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(f, "## %s\n\n%s\n\n", stamp, text); err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	return f.Sync()
}

// Read returns the full notes document and the number of entries. A missing
// file reads as empty.
func (n *Notes) Read() (*models.MemoryReadResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := os.ReadFile(n.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &models.MemoryReadResult{}, nil
		}
		return nil, fmt.Errorf("read notes: %w", err)
	}

	text := string(data)
	entries := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "## ") {
			entries++
		}
	}
	return &models.MemoryReadResult{Text: text, Entries: entries}, nil
}
