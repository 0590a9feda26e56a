package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/spanexx/ACTA-sub001/internal/audit"
	"github.com/spanexx/ACTA-sub001/internal/backoff"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// DefaultProfileID is created on first run when no profile exists.
// EnvDefaultProfileID can suggest a different id for that first profile.
const (
	DefaultProfileID    = "default"
	EnvDefaultProfileID = "ACTA_PROFILE_ID"
)

// TrashMaxAge is how long deleted profiles stay recoverable in .trash.
const TrashMaxAge = 30 * 24 * time.Hour

// janitorSchedule runs the hourly housekeeping pass.
const janitorSchedule = "@hourly"

// lockAttempts bounds how long a caller waits on a contended lock before
// giving up with ErrLocked.
const lockAttempts = 5

// Manager owns profile lifecycle on top of the store: initialization,
// creation, switching, deletion, and background housekeeping.
type Manager struct {
	store   *Store
	logger  *observability.Logger
	auditor *audit.Logger
	cron    *cron.Cron
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger attaches a structured logger.
func WithLogger(l *observability.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithAuditor attaches the audit trail.
func WithAuditor(a *audit.Logger) ManagerOption {
	return func(m *Manager) { m.auditor = a }
}

// NewManager creates a manager over the given store.
func NewManager(store *Store, opts ...ManagerOption) *Manager {
	m := &Manager{store: store}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the underlying document store.
func (m *Manager) Store() *Store { return m.store }

// acquireLock takes a named lock, retrying briefly on contention so two
// near-simultaneous CLI or IPC calls serialize instead of failing.
func (m *Manager) acquireLock(ctx context.Context, name string) (*Lock, error) {
	var lock *Lock
	err := backoff.Retry(ctx, backoff.LockPolicy(), lockAttempts, func(int) error {
		var lockErr error
		lock, lockErr = m.store.AcquireLock(name)
		return lockErr
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// NewDefaultProfile builds a fresh profile document with conservative
// defaults: standard trust, local ollama, cloud warnings on.
func NewDefaultProfile(id, name string) *models.Profile {
	now := time.Now().UnixMilli()
	warn := true
	return &models.Profile{
		ID:            id,
		Name:          name,
		CreatedAt:     now,
		UpdatedAt:     now,
		SchemaVersion: models.SchemaVersion,
		Trust: models.TrustSettings{
			DefaultTrustLevel: models.DefaultTrustLevel,
		},
		LLM: models.LLMSettings{
			Mode:                   models.LLMModeLocal,
			AdapterID:              models.AdapterOllama,
			Model:                  models.DefaultLocalModel,
			BaseURL:                models.DefaultOllamaBaseURL,
			Endpoint:               models.DefaultOllamaBaseURL,
			CloudWarnBeforeSending: &warn,
		},
		Paths: models.ProfilePaths{
			Logs:   "logs",
			Memory: "memory",
			Trust:  "trust",
		},
	}
}

// Init prepares the profile root for use: stale locks are swept, legacy
// state is migrated, and the active pointer is made to reference an existing
// profile, creating "default" when the root is empty. Returns the active
// profile.
func (m *Manager) Init(ctx context.Context) (*models.Profile, error) {
	if swept, err := m.store.SweepStaleLocks(); err == nil && swept > 0 && m.logger != nil {
		m.logger.Warn(ctx, "removed stale profile locks", "count", swept)
	}

	legacyActive, err := m.migrateLegacy(ctx)
	if err != nil {
		// Migration failures leave the legacy root untouched; a fresh
		// default profile still lets the runtime start.
		if m.logger != nil {
			m.logger.Error(ctx, "legacy profile migration failed", "error", err)
		}
	}

	return m.adoptActive(ctx, legacyActive)
}

// adoptActive resolves the active pointer to a real profile: a valid pointer
// is kept, a dangling or missing one falls back to the legacy active id or
// the first existing profile, and an empty root gets a default profile. The
// transition runs under the active lock, like Switch and Delete.
func (m *Manager) adoptActive(ctx context.Context, legacyActive string) (*models.Profile, error) {
	lock, err := m.acquireLock(ctx, ActiveLockName)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if id := m.store.ReadPointer(); id != "" && m.store.Exists(id) {
		return m.store.Load(id)
	}

	profiles, err := m.store.List()
	if err != nil {
		return nil, err
	}
	if len(profiles) > 0 {
		adopted := profiles[0]
		if legacyActive != "" {
			for _, p := range profiles {
				if p.ID == legacyActive {
					adopted = p
					break
				}
			}
		}
		if err := m.store.WritePointer(adopted.ID); err != nil {
			return nil, err
		}
		if m.logger != nil {
			m.logger.Warn(ctx, "active pointer was missing, adopted profile",
				"profile_id", adopted.ID)
		}
		return adopted, nil
	}

	created, err := m.Create(ctx, firstProfileID(), "Default")
	if err != nil {
		return nil, err
	}
	if err := m.store.WritePointer(created.ID); err != nil {
		return nil, err
	}
	return created, nil
}

// firstProfileID picks the id of the profile created on an empty root:
// ACTA_PROFILE_ID lowercased when it is a valid id, "default" otherwise.
func firstProfileID() string {
	if id := strings.ToLower(strings.TrimSpace(os.Getenv(EnvDefaultProfileID))); id != "" && models.ValidProfileID(id) {
		return id
	}
	return DefaultProfileID
}

// Active returns the currently active profile.
func (m *Manager) Active() (*models.Profile, error) {
	id := m.store.ReadPointer()
	if id == "" {
		return nil, fmt.Errorf("%w: no active profile", ErrProfileNotFound)
	}
	return m.store.Load(id)
}

// List returns all profiles.
func (m *Manager) List() ([]*models.Profile, error) {
	return m.store.List()
}

// Get loads one profile by id.
func (m *Manager) Get(id string) (*models.Profile, error) {
	return m.store.Load(id)
}

// Create makes a new profile with default settings under the given id.
func (m *Manager) Create(ctx context.Context, id, name string) (*models.Profile, error) {
	if !models.ValidProfileID(id) {
		return nil, fmt.Errorf("invalid profile id %q", id)
	}
	if name == "" {
		name = id
	}

	lock, err := m.acquireLock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if m.store.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrProfileExists, id)
	}

	p := NewDefaultProfile(id, name)
	if err := m.store.Save(p); err != nil {
		return nil, err
	}

	if m.auditor != nil {
		m.auditor.Log(ctx, &audit.Event{
			Type:      audit.EventProfileCreated,
			ProfileID: id,
		})
	}
	if m.logger != nil {
		m.logger.Info(ctx, "profile created", "profile_id", id)
	}
	return p, nil
}

// Update persists changes to an existing profile.
func (m *Manager) Update(ctx context.Context, p *models.Profile) error {
	lock, err := m.acquireLock(ctx, p.ID)
	if err != nil {
		return err
	}
	defer lock.Release()

	if !m.store.Exists(p.ID) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, p.ID)
	}
	return m.store.Save(p)
}

// Switch makes the given profile active. The pointer transition runs under
// the active lock so concurrent switches serialize.
func (m *Manager) Switch(ctx context.Context, id string) (*models.Profile, error) {
	lock, err := m.acquireLock(ctx, ActiveLockName)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	p, err := m.store.Load(id)
	if err != nil {
		return nil, err
	}
	if err := m.store.WritePointer(id); err != nil {
		return nil, err
	}

	if m.auditor != nil {
		m.auditor.Log(ctx, &audit.Event{
			Type:      audit.EventProfileSwitched,
			ProfileID: id,
		})
	}
	if m.logger != nil {
		m.logger.Info(ctx, "profile switched", "profile_id", id)
	}
	return p, nil
}

// Delete removes a profile: to the trash by default, off disk entirely when
// deleteFiles is set. Deleting the active profile promotes the first
// remaining profile; when none remain the pointer is cleared. The whole
// transition runs under the active lock so a concurrent switch cannot race
// the promotion.
func (m *Manager) Delete(ctx context.Context, id string, deleteFiles bool) error {
	active, err := m.acquireLock(ctx, ActiveLockName)
	if err != nil {
		return err
	}
	defer active.Release()

	lock, err := m.acquireLock(ctx, id)
	if err != nil {
		return err
	}
	defer lock.Release()

	wasActive := m.store.ReadPointer() == id

	var dst string
	if deleteFiles {
		if !m.store.Exists(id) {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
		if err := os.RemoveAll(m.store.Dir(id)); err != nil {
			return fmt.Errorf("delete profile %s: %w", id, err)
		}
	} else {
		dst, err = m.store.Trash(id)
		if err != nil {
			return err
		}
	}

	if wasActive {
		remaining, err := m.store.List()
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			if err := m.store.WritePointer(remaining[0].ID); err != nil {
				return err
			}
			if m.logger != nil {
				m.logger.Info(ctx, "active profile deleted, promoted successor",
					"profile_id", remaining[0].ID)
			}
		} else if err := m.store.ClearPointer(); err != nil {
			return err
		}
	}

	if m.auditor != nil {
		details := map[string]any{"deleted_files": deleteFiles}
		if dst != "" {
			details["trash_path"] = dst
		}
		m.auditor.Log(ctx, &audit.Event{
			Type:      audit.EventProfileDeleted,
			ProfileID: id,
			Details:   details,
		})
	}
	if m.logger != nil {
		m.logger.Info(ctx, "profile deleted",
			"profile_id", id, "deleted_files", deleteFiles, "trash_path", dst)
	}
	return nil
}

// LogDir returns the profile's log directory.
func (m *Manager) LogDir(p *models.Profile) string {
	return filepath.Join(m.store.Dir(p.ID), p.Paths.Logs)
}

// MemoryDir returns the profile's memory directory.
func (m *Manager) MemoryDir(p *models.Profile) string {
	return filepath.Join(m.store.Dir(p.ID), p.Paths.Memory)
}

// TrustDir returns the profile's trust directory, where the rule store lives.
func (m *Manager) TrustDir(p *models.Profile) string {
	return filepath.Join(m.store.Dir(p.ID), p.Paths.Trust)
}

// StartJanitor schedules the hourly housekeeping pass: stale lock sweep plus
// trash purge. Call StopJanitor on shutdown.
func (m *Manager) StartJanitor(ctx context.Context) error {
	if m.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(janitorSchedule, func() {
		if swept, err := m.store.SweepStaleLocks(); err == nil && swept > 0 && m.logger != nil {
			m.logger.Warn(ctx, "janitor removed stale locks", "count", swept)
		}
		if purged, err := m.store.PurgeTrash(TrashMaxAge); err == nil && purged > 0 && m.logger != nil {
			m.logger.Info(ctx, "janitor purged trashed profiles", "count", purged)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	m.cron = c
	return nil
}

// StopJanitor stops the housekeeping schedule and waits for a running pass.
func (m *Manager) StopJanitor() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.cron = nil
}
