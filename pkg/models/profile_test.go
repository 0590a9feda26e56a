package models

import (
	"encoding/json"
	"testing"
)

func TestValidProfileID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"simple", "default", true},
		{"with dash", "work-laptop", true},
		{"with underscore", "user_a", true},
		{"digits", "0profile", true},
		{"min length", "abc", true},
		{"too short", "ab", false},
		{"uppercase", "Default", false},
		{"leading dash", "-abc", false},
		{"dots", "a.b.c", false},
		{"empty", "", false},
		{"spaces", "my profile", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidProfileID(tt.id); got != tt.want {
				t.Errorf("ValidProfileID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestSafeRelPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"plain", "logs", true},
		{"nested", "state/trust", true},
		{"backslash nested", `state\trust`, true},
		{"empty", "", false},
		{"absolute", "/etc/passwd", false},
		{"windows absolute", `\Windows`, false},
		{"drive letter", `C:\Users`, false},
		{"parent escape", "../other", false},
		{"embedded parent", "a/../../b", false},
		{"dot segment ok", "./logs", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeRelPath(tt.path); got != tt.want {
				t.Errorf("SafeRelPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func validProfile() *Profile {
	return &Profile{
		ID:            "default",
		Name:          "Default",
		CreatedAt:     1700000000000,
		UpdatedAt:     1700000000000,
		SchemaVersion: SchemaVersion,
		Trust:         TrustSettings{DefaultTrustLevel: TrustStandard},
		LLM: LLMSettings{
			Mode:      LLMModeLocal,
			AdapterID: AdapterOllama,
			Model:     DefaultLocalModel,
			BaseURL:   DefaultOllamaBaseURL,
		},
		Paths: ProfilePaths{Logs: "logs", Memory: "memory", Trust: "trust"},
	}
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr bool
	}{
		{"valid", func(p *Profile) {}, false},
		{"bad id", func(p *Profile) { p.ID = "Bad ID" }, true},
		{"trust out of range", func(p *Profile) { p.Trust.DefaultTrustLevel = 7 }, true},
		{"tool override out of range", func(p *Profile) {
			p.Trust.Tools = map[string]TrustLevel{"fs.read": -1}
		}, true},
		{"bad mode", func(p *Profile) { p.LLM.Mode = "hybrid" }, true},
		{"bad adapter", func(p *Profile) { p.LLM.AdapterID = "bard" }, true},
		{"empty model", func(p *Profile) { p.LLM.Model = "  " }, true},
		{"local without urls", func(p *Profile) {
			p.LLM.BaseURL = ""
			p.LLM.Endpoint = ""
		}, true},
		{"cloud without urls", func(p *Profile) {
			p.LLM.Mode = LLMModeCloud
			p.LLM.AdapterID = AdapterOpenAI
			p.LLM.BaseURL = ""
			p.LLM.Endpoint = ""
		}, false},
		{"temperature too high", func(p *Profile) {
			p.LLM.Defaults = &LLMDefaults{Temperature: 2.5, MaxTokens: 100}
		}, true},
		{"zero max tokens", func(p *Profile) {
			p.LLM.Defaults = &LLMDefaults{Temperature: 0.7, MaxTokens: 0}
		}, true},
		{"unsafe trust path", func(p *Profile) { p.Paths.Trust = "../shared" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestProfileNormalize(t *testing.T) {
	raw := `{
		"id": "legacy",
		"name": "Legacy",
		"trust": {"defaultTrustLevel": 9},
		"llm": {"mode": "local", "adapterId": "ollama", "model": "llama3:8b"}
	}`
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p.Normalize()

	if p.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, p.SchemaVersion)
	}
	if p.Trust.DefaultTrustLevel != TrustFull {
		t.Errorf("expected clamped trust %d, got %d", TrustFull, p.Trust.DefaultTrustLevel)
	}
	if !p.LLM.WarnBeforeCloudSend() {
		t.Errorf("expected missing cloud warning to default to true")
	}
	if p.LLM.BaseURL != DefaultOllamaBaseURL || p.LLM.Endpoint != DefaultOllamaBaseURL {
		t.Errorf("expected ollama default urls, got %q / %q", p.LLM.BaseURL, p.LLM.Endpoint)
	}
	if p.Paths.Logs != "logs" || p.Paths.Memory != "memory" || p.Paths.Trust != "trust" {
		t.Errorf("expected default paths, got %+v", p.Paths)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("normalized profile should validate, got %v", err)
	}
}

func TestProfileNormalizeInheritsEndpoint(t *testing.T) {
	p := validProfile()
	p.LLM.BaseURL = ""
	p.LLM.Endpoint = "http://127.0.0.1:8080"
	p.Normalize()
	if p.LLM.BaseURL != "http://127.0.0.1:8080" {
		t.Errorf("expected baseUrl inherited from endpoint, got %q", p.LLM.BaseURL)
	}

	p = validProfile()
	p.LLM.Endpoint = ""
	p.Normalize()
	if p.LLM.Endpoint != DefaultOllamaBaseURL {
		t.Errorf("expected endpoint inherited from baseUrl, got %q", p.LLM.Endpoint)
	}
}

func TestCloudAdapter(t *testing.T) {
	cloud := []AdapterID{AdapterOpenAI, AdapterAnthropic, AdapterGemini}
	local := []AdapterID{AdapterOllama, AdapterLMStudio}
	for _, id := range cloud {
		if !CloudAdapter(id) {
			t.Errorf("expected %s to be cloud", id)
		}
	}
	for _, id := range local {
		if CloudAdapter(id) {
			t.Errorf("expected %s to be local", id)
		}
	}
}

func TestProfileRoundTrip(t *testing.T) {
	p := validProfile()
	p.Trust.Tools = map[string]TrustLevel{"fs.read": TrustFull}
	p.Trust.Domains = map[string]TrustLevel{"net": TrustMinimal}
	warn := false
	p.LLM.CloudWarnBeforeSending = &warn
	p.LLM.Defaults = &LLMDefaults{Temperature: 0.2, MaxTokens: 512}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Profile
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back.Normalize()

	if back.ID != p.ID || back.Name != p.Name {
		t.Errorf("identity changed in round trip: %+v", back)
	}
	if back.Trust.Tools["fs.read"] != TrustFull {
		t.Errorf("tool override lost in round trip")
	}
	if back.LLM.WarnBeforeCloudSend() {
		t.Errorf("explicit false cloud warning overwritten")
	}
	if back.LLM.Defaults == nil || back.LLM.Defaults.MaxTokens != 512 {
		t.Errorf("llm defaults lost in round trip")
	}
}
