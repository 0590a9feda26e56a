package models

import (
	"fmt"
	"regexp"
	"strings"
)

// SchemaVersion is the current profile document version.
const SchemaVersion = 1

// DefaultTrustLevel applies when a profile does not pin its own default.
const DefaultTrustLevel = TrustStandard

// DefaultLocalModel is the model assigned to profiles that never chose one,
// including documents synthesised by legacy migration.
const DefaultLocalModel = "llama3:8b"

// DefaultOllamaBaseURL is assumed when an ollama profile omits both baseUrl
// and endpoint.
const DefaultOllamaBaseURL = "http://localhost:11434"

var profileIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-_]{2,63}$`)

// ValidProfileID reports whether id is a well-formed profile identifier:
// lowercase alphanumeric start, then alphanumerics, dashes, or underscores,
// 3 to 64 characters total.
func ValidProfileID(id string) bool {
	return profileIDPattern.MatchString(id)
}

// LLMMode distinguishes providers running on this machine from remote ones.
type LLMMode string

const (
	LLMModeLocal LLMMode = "local"
	LLMModeCloud LLMMode = "cloud"
)

// AdapterID names a supported LLM provider adapter.
type AdapterID string

const (
	AdapterOllama    AdapterID = "ollama"
	AdapterLMStudio  AdapterID = "lmstudio"
	AdapterOpenAI    AdapterID = "openai"
	AdapterAnthropic AdapterID = "anthropic"
	AdapterGemini    AdapterID = "gemini"
)

// ValidAdapterID reports whether id names a known adapter.
func ValidAdapterID(id AdapterID) bool {
	switch id {
	case AdapterOllama, AdapterLMStudio, AdapterOpenAI, AdapterAnthropic, AdapterGemini:
		return true
	}
	return false
}

// CloudAdapter reports whether the adapter sends data to a remote provider.
func CloudAdapter(id AdapterID) bool {
	switch id {
	case AdapterOpenAI, AdapterAnthropic, AdapterGemini:
		return true
	}
	return false
}

// TrustSettings holds a profile's trust posture: a default level plus
// optional per-tool and per-domain overrides.
type TrustSettings struct {
	DefaultTrustLevel TrustLevel            `json:"defaultTrustLevel"`
	Tools             map[string]TrustLevel `json:"tools,omitempty"`
	Domains           map[string]TrustLevel `json:"domains,omitempty"`
}

// LLMDefaults are per-profile generation defaults applied when a request
// does not specify its own.
type LLMDefaults struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// LLMSettings selects and configures the profile's model provider.
type LLMSettings struct {
	Mode      LLMMode   `json:"mode"`
	AdapterID AdapterID `json:"adapterId"`
	Model     string    `json:"model"`
	// BaseURL and Endpoint locate a local server; at least one is
	// required in local mode.
	BaseURL  string `json:"baseUrl,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	// APIKey authenticates against cloud providers. It is never logged.
	APIKey  string            `json:"apiKey,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// CloudWarnBeforeSending asks the UI to confirm before any request
	// leaves the machine. A pointer so that an absent field can default
	// to true on load.
	CloudWarnBeforeSending *bool        `json:"cloudWarnBeforeSending,omitempty"`
	Defaults               *LLMDefaults `json:"defaults,omitempty"`
}

// WarnBeforeCloudSend reports the effective cloud warning setting; profiles
// that never set it warn by default.
func (s *LLMSettings) WarnBeforeCloudSend() bool {
	if s.CloudWarnBeforeSending == nil {
		return true
	}
	return *s.CloudWarnBeforeSending
}

// ProfilePaths are the profile-relative directories for logs, memory, and
// trust state. Each must be a safe relative path.
type ProfilePaths struct {
	Logs   string `json:"logs"`
	Memory string `json:"memory"`
	Trust  string `json:"trust"`
}

// Profile is the durable per-user configuration document stored at
// <root>/<id>/profile.json.
type Profile struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	CreatedAt     int64         `json:"createdAt"`
	UpdatedAt     int64         `json:"updatedAt"`
	SchemaVersion int           `json:"schemaVersion"`
	SetupComplete bool          `json:"setupComplete"`
	Trust         TrustSettings `json:"trust"`
	LLM           LLMSettings   `json:"llm"`
	Paths         ProfilePaths  `json:"paths"`
}

// SafeRelPath reports whether p can be joined under a trusted root without
// escaping it: non-empty, no leading separator, no drive letter, and no ".."
// segment.
func SafeRelPath(p string) bool {
	if p == "" {
		return false
	}
	if p[0] == '/' || p[0] == '\\' {
		return false
	}
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return false
		}
	}
	return true
}

// Normalize fills defaults into a document loaded from disk so that older
// or hand-edited profiles keep working. Trust levels are clamped into range;
// a missing cloud warning flag defaults to true; baseUrl and endpoint
// inherit from each other, falling back to the ollama default when both are
// absent; missing paths default to their own name.
func (p *Profile) Normalize() {
	if p.SchemaVersion == 0 {
		p.SchemaVersion = SchemaVersion
	}
	p.Trust.DefaultTrustLevel = ClampTrustLevel(p.Trust.DefaultTrustLevel)
	for k, v := range p.Trust.Tools {
		p.Trust.Tools[k] = ClampTrustLevel(v)
	}
	for k, v := range p.Trust.Domains {
		p.Trust.Domains[k] = ClampTrustLevel(v)
	}
	if p.LLM.CloudWarnBeforeSending == nil {
		warn := true
		p.LLM.CloudWarnBeforeSending = &warn
	}
	if p.LLM.BaseURL == "" {
		p.LLM.BaseURL = p.LLM.Endpoint
	}
	if p.LLM.Endpoint == "" {
		p.LLM.Endpoint = p.LLM.BaseURL
	}
	if p.LLM.BaseURL == "" && p.LLM.AdapterID == AdapterOllama {
		p.LLM.BaseURL = DefaultOllamaBaseURL
		p.LLM.Endpoint = DefaultOllamaBaseURL
	}
	if p.Paths.Logs == "" {
		p.Paths.Logs = "logs"
	}
	if p.Paths.Memory == "" {
		p.Paths.Memory = "memory"
	}
	if p.Paths.Trust == "" {
		p.Paths.Trust = "trust"
	}
}

// Validate checks the structural invariants of a profile document.
func (p *Profile) Validate() error {
	if !ValidProfileID(p.ID) {
		return fmt.Errorf("invalid profile id %q", p.ID)
	}
	if !ValidTrustLevel(p.Trust.DefaultTrustLevel) {
		return fmt.Errorf("defaultTrustLevel %d out of range", p.Trust.DefaultTrustLevel)
	}
	for tool, lvl := range p.Trust.Tools {
		if !ValidTrustLevel(lvl) {
			return fmt.Errorf("trust level %d for tool %q out of range", lvl, tool)
		}
	}
	for domain, lvl := range p.Trust.Domains {
		if !ValidTrustLevel(lvl) {
			return fmt.Errorf("trust level %d for domain %q out of range", lvl, domain)
		}
	}
	if p.LLM.Mode != LLMModeLocal && p.LLM.Mode != LLMModeCloud {
		return fmt.Errorf("invalid llm mode %q", p.LLM.Mode)
	}
	if !ValidAdapterID(p.LLM.AdapterID) {
		return fmt.Errorf("unknown adapter %q", p.LLM.AdapterID)
	}
	if strings.TrimSpace(p.LLM.Model) == "" {
		return fmt.Errorf("llm model must not be empty")
	}
	if p.LLM.Mode == LLMModeLocal && p.LLM.BaseURL == "" && p.LLM.Endpoint == "" {
		return fmt.Errorf("local llm config requires baseUrl or endpoint")
	}
	if d := p.LLM.Defaults; d != nil {
		if d.Temperature < 0 || d.Temperature > 2 {
			return fmt.Errorf("temperature %v outside [0,2]", d.Temperature)
		}
		if d.MaxTokens <= 0 {
			return fmt.Errorf("maxTokens must be positive, got %d", d.MaxTokens)
		}
	}
	for name, path := range map[string]string{
		"logs":   p.Paths.Logs,
		"memory": p.Paths.Memory,
		"trust":  p.Paths.Trust,
	} {
		if !SafeRelPath(path) {
			return fmt.Errorf("paths.%s %q is not a safe relative path", name, path)
		}
	}
	return nil
}

// ActiveProfilePointer is the content of <root>/activeProfile.json.
type ActiveProfilePointer struct {
	ProfileID string `json:"profileId"`
}
