package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spanexx/ACTA-sub001/internal/audit"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Environment switches for legacy migration.
const (
	// EnvLegacyRoot points at a pre-profile-era settings directory to
	// import on startup, overriding platform discovery.
	EnvLegacyRoot = "ACTA_LEGACY_PROFILE_ROOT"
	// EnvForceLegacyMigration reruns migration even when the marker says
	// it already happened.
	EnvForceLegacyMigration = "ACTA_FORCE_LEGACY_MIGRATION"
)

// legacyMaxTrustLevel is the top of the old trust scale. Values outside the
// legacy range fall back to the standard level rather than inheriting more
// autonomy than the user ever granted.
const legacyMaxTrustLevel = models.TrustLevel(3)

// legacyConfigFileName is the per-profile settings file inside each legacy
// profile directory.
const legacyConfigFileName = "config.json"

// legacyDocument is one pre-profile-era settings file:
// <legacyRoot>/<id>/config.json.
type legacyDocument struct {
	Name          string `json:"name"`
	TrustLevel    *int   `json:"trustLevel"`
	ModelProvider string `json:"modelProvider"`
	Model         string `json:"model"`
	Endpoint      string `json:"endpoint"`
	APIKey        string `json:"apiKey"`
}

// legacyPointer is the legacy root's active-profile file.
type legacyPointer struct {
	ProfileID string `json:"profileId"`
}

// migrationMarker records a completed migration so restarts skip it.
type migrationMarker struct {
	LegacyProfilesRoot string   `json:"legacyProfilesRoot"`
	CompletedAt        int64    `json:"completedAt"`
	Profiles           []string `json:"profiles,omitempty"`
	Skipped            []string `json:"skipped,omitempty"`
}

// resolveLegacyRoot locates the pre-profile-era data directory: the
// environment override first, then the platform convention. Returns "" when
// no candidate exists on disk.
func resolveLegacyRoot() string {
	if root := os.Getenv(EnvLegacyRoot); root != "" {
		return root
	}

	var candidates []string
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			candidates = append(candidates, filepath.Join(appData, "ACTA", "profiles"))
		}
	case "darwin":
		if home := os.Getenv("HOME"); home != "" {
			candidates = append(candidates,
				filepath.Join(home, "Library", "Application Support", "ACTA", "profiles"))
		}
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			if home := os.Getenv("HOME"); home != "" {
				configHome = filepath.Join(home, ".config")
			}
		}
		if configHome != "" {
			candidates = append(candidates,
				filepath.Join(configHome, "ACTA", "profiles"),
				filepath.Join(configHome, "acta", "profiles"),
			)
		}
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return ""
}

// migrateLegacy imports legacy profile directories into the profile root and
// returns the legacy active id, if one was recorded. The pass is idempotent:
// a marker short-circuits reruns, and ids that already exist as profiles are
// never overwritten.
func (m *Manager) migrateLegacy(ctx context.Context) (string, error) {
	legacyRoot := resolveLegacyRoot()
	if legacyRoot == "" {
		return "", nil
	}

	markerPath := filepath.Join(m.store.Root(), MigrationMarkerFileName)
	if !forceMigration() {
		if _, err := os.Stat(markerPath); err == nil {
			return "", nil
		}
	}

	entries, err := os.ReadDir(legacyRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read legacy root: %w", err)
	}

	marker := migrationMarker{
		LegacyProfilesRoot: legacyRoot,
		CompletedAt:        time.Now().UnixMilli(),
	}

	for _, entry := range entries {
		id := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(id, "_") {
			continue
		}
		if !models.ValidProfileID(id) {
			marker.Skipped = append(marker.Skipped, id)
			continue
		}
		if m.store.Exists(id) {
			marker.Skipped = append(marker.Skipped, id)
			continue
		}

		p, err := m.convertLegacy(id, filepath.Join(legacyRoot, id, legacyConfigFileName))
		if err != nil {
			if m.logger != nil {
				m.logger.Warn(ctx, "skipping unreadable legacy profile",
					"profile_id", id, "error", err)
			}
			marker.Skipped = append(marker.Skipped, id)
			continue
		}
		if err := m.store.Save(p); err != nil {
			return "", fmt.Errorf("save migrated profile %s: %w", id, err)
		}
		marker.Profiles = append(marker.Profiles, id)
	}

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return "", err
	}
	data = append(data, '\n')
	if err := os.MkdirAll(m.store.Root(), 0o755); err != nil {
		return "", err
	}
	if err := atomicWrite(markerPath, data); err != nil {
		return "", err
	}

	if len(marker.Profiles) > 0 {
		if m.auditor != nil {
			m.auditor.Log(ctx, &audit.Event{
				Type: audit.EventLegacyMigration,
				Details: map[string]any{
					"source":   legacyRoot,
					"profiles": marker.Profiles,
				},
			})
		}
		if m.logger != nil {
			m.logger.Info(ctx, "migrated legacy profiles",
				"count", len(marker.Profiles), "source", legacyRoot)
		}
	}
	return readLegacyPointer(legacyRoot), nil
}

// readLegacyPointer reads the legacy root's active-profile file best-effort.
func readLegacyPointer(legacyRoot string) string {
	data, err := os.ReadFile(filepath.Join(legacyRoot, ActivePointerFileName))
	if err != nil {
		return ""
	}
	var ptr legacyPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return ""
	}
	return ptr.ProfileID
}

// convertLegacy turns one legacy settings file into a profile document.
func (m *Manager) convertLegacy(id, path string) (*models.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	p := NewDefaultProfile(id, doc.Name)
	if p.Name == "" {
		p.Name = id
	}
	p.SetupComplete = true
	p.Trust.DefaultTrustLevel = legacyTrustLevel(doc.TrustLevel)

	if adapter := legacyAdapter(doc.ModelProvider); adapter != "" {
		p.LLM.AdapterID = adapter
		if models.CloudAdapter(adapter) {
			p.LLM.Mode = models.LLMModeCloud
			p.LLM.BaseURL = ""
			p.LLM.Endpoint = ""
			p.LLM.APIKey = doc.APIKey
		}
	}
	if doc.Model != "" {
		p.LLM.Model = doc.Model
	}
	if doc.Endpoint != "" && p.LLM.Mode == models.LLMModeLocal {
		p.LLM.BaseURL = doc.Endpoint
		p.LLM.Endpoint = doc.Endpoint
	}

	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// legacyTrustLevel maps the old 0..3 scale onto the current one. Absent or
// out-of-range values land on standard.
func legacyTrustLevel(raw *int) models.TrustLevel {
	if raw == nil {
		return models.TrustStandard
	}
	lvl := models.TrustLevel(*raw)
	if lvl < models.TrustUntrusted || lvl > legacyMaxTrustLevel {
		return models.TrustStandard
	}
	return lvl
}

// legacyAdapter maps a legacy provider name onto an adapter id.
func legacyAdapter(provider string) models.AdapterID {
	adapter := models.AdapterID(strings.ToLower(strings.TrimSpace(provider)))
	if models.ValidAdapterID(adapter) {
		return adapter
	}
	return ""
}

func forceMigration() bool {
	switch strings.ToLower(os.Getenv(EnvForceLegacyMigration)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
