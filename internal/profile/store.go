// Package profile manages the on-disk profile root: profile documents, the
// active profile pointer, lock files, legacy migration, and trash retention.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

const (
	// ProfileFileName is the document inside each profile directory.
	ProfileFileName = "profile.json"
	// ActivePointerFileName is the root-level active profile pointer.
	ActivePointerFileName = "activeProfile.json"
	// TrashDirName is where deleted profiles are parked before purge.
	TrashDirName = ".trash"
	// MigrationMarkerFileName records a completed legacy migration.
	MigrationMarkerFileName = "legacyMigration.json"
)

// ErrProfileNotFound is returned when a profile directory or document is
// missing.
var ErrProfileNotFound = errors.New("profile: not found")

// ErrProfileExists is returned by Create for an already-taken id.
var ErrProfileExists = errors.New("profile: already exists")

// Store reads and writes profile documents under a root directory. All
// document writes are atomic via rename, pretty-printed, and newline
// terminated so the files stay diffable and hand-editable.
type Store struct {
	root string
}

// NewStore creates a store over the given profile root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the profile root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the directory for a profile id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// DocumentPath returns the profile.json path for a profile id.
func (s *Store) DocumentPath(id string) string {
	return filepath.Join(s.root, id, ProfileFileName)
}

// TrashDir returns the root's trash directory.
func (s *Store) TrashDir() string {
	return filepath.Join(s.root, TrashDirName)
}

// Exists reports whether the profile document exists.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.DocumentPath(id))
	return err == nil
}

// Load reads, normalizes, and validates one profile document.
func (s *Store) Load(id string) (*models.Profile, error) {
	data, err := os.ReadFile(s.DocumentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
		return nil, fmt.Errorf("read profile %s: %w", id, err)
	}

	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", id, err)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", id, err)
	}
	return &p, nil
}

// Save writes the profile document atomically, stamping UpdatedAt.
func (s *Store) Save(p *models.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UnixMilli()

	dir := s.Dir(p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	data = append(data, '\n')

	return atomicWrite(filepath.Join(dir, ProfileFileName), data)
}

// List returns all loadable profiles sorted by id. Directories without a
// valid document are skipped, not fatal; one corrupt profile must not hide
// the rest.
func (s *Store) List() ([]*models.Profile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profile root: %w", err)
	}

	var profiles []*models.Profile
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == TrashDirName {
			continue
		}
		p, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}

// ReadPointer reads the active profile pointer. A missing or corrupt pointer
// reads as empty.
func (s *Store) ReadPointer() string {
	data, err := os.ReadFile(filepath.Join(s.root, ActivePointerFileName))
	if err != nil {
		return ""
	}
	var ptr models.ActiveProfilePointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return ""
	}
	return ptr.ProfileID
}

// WritePointer sets the active profile pointer atomically.
func (s *Store) WritePointer(id string) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create profile root: %w", err)
	}
	data, err := json.MarshalIndent(models.ActiveProfilePointer{ProfileID: id}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return atomicWrite(filepath.Join(s.root, ActivePointerFileName), data)
}

// ClearPointer removes the active profile pointer. Missing is not an error.
func (s *Store) ClearPointer() error {
	err := os.Remove(filepath.Join(s.root, ActivePointerFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Trash moves a profile directory into .trash/<id>-<timestamp>. The move is
// a rename, so it is atomic on the same filesystem.
func (s *Store) Trash(id string) (string, error) {
	src := s.Dir(id)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
		return "", err
	}
	if err := os.MkdirAll(s.TrashDir(), 0o755); err != nil {
		return "", fmt.Errorf("create trash dir: %w", err)
	}
	dst := filepath.Join(s.TrashDir(), fmt.Sprintf("%s-%d", id, time.Now().UnixMilli()))
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("trash profile %s: %w", id, err)
	}
	return dst, nil
}

// PurgeTrash removes trashed profiles older than maxAge, judged by directory
// modification time. Returns the number of entries removed.
func (s *Store) PurgeTrash(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.TrashDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.TrashDir(), entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// atomicWrite lands data in a same-directory temp file, fsyncs, and renames
// it over the destination.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%s-%d-%s", filepath.Base(path), time.Now().UnixMilli(), uuid.NewString()))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
