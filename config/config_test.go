package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.GetPollInterval(); got != DefaultPollInterval {
		t.Errorf("GetPollInterval = %v, want %v", got, DefaultPollInterval)
	}
	if got := cfg.GetSettleDelay(); got != DefaultSettleDelay {
		t.Errorf("GetSettleDelay = %v, want %v", got, DefaultSettleDelay)
	}
	if got := cfg.GetArbitrationTimeout(); got != DefaultArbitrationTimeout {
		t.Errorf("GetArbitrationTimeout = %v, want %v", got, DefaultArbitrationTimeout)
	}
	if got := cfg.GetSendTimeout(); got != 0 {
		t.Errorf("GetSendTimeout = %v, want 0 (disabled)", got)
	}
}

func TestExplicitValues(t *testing.T) {
	cfg := &Config{
		PollIntervalMs:     500,
		SettleDelayMs:      100,
		ArbitrationTimeout: 60,
		SendTimeoutS:       120,
	}

	if got := cfg.GetPollInterval(); got != 500*time.Millisecond {
		t.Errorf("GetPollInterval = %v, want 500ms", got)
	}
	if got := cfg.GetSettleDelay(); got != 100*time.Millisecond {
		t.Errorf("GetSettleDelay = %v, want 100ms", got)
	}
	if got := cfg.GetArbitrationTimeout(); got != 60*time.Second {
		t.Errorf("GetArbitrationTimeout = %v, want 60s", got)
	}
	if got := cfg.GetSendTimeout(); got != 120*time.Second {
		t.Errorf("GetSendTimeout = %v, want 120s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty is valid", Config{}, false},
		{"negative poll interval", Config{PollIntervalMs: -1}, true},
		{"negative settle delay", Config{SettleDelayMs: -1}, true},
		{"negative arbitration timeout", Config{ArbitrationTimeout: -1}, true},
		{"negative send timeout", Config{SendTimeoutS: -1}, true},
		{"all positive", Config{PollIntervalMs: 100, SettleDelayMs: 10, ArbitrationTimeout: 30, SendTimeoutS: 60}, false},
	}

	for i := range tests {
		tt := &tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")

	cfgPath := filepath.Join(tmpDir, ".claude-gui", "config.json")

	cfg := &Config{
		DefaultModel:       "sonnet",
		PollIntervalMs:     250,
		AlwaysAllowedTools: []string{"Read", "Glob"},
	}
	cfg.SetFilePath(cfgPath)

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Failed to parse saved config: %v", err)
	}

	if loaded.DefaultModel != "sonnet" {
		t.Errorf("DefaultModel = %q, want %q", loaded.DefaultModel, "sonnet")
	}
	if loaded.PollIntervalMs != 250 {
		t.Errorf("PollIntervalMs = %d, want 250", loaded.PollIntervalMs)
	}
	if len(loaded.AlwaysAllowedTools) != 2 {
		t.Errorf("AlwaysAllowedTools = %v, want 2 entries", loaded.AlwaysAllowedTools)
	}
}

func TestGetPermissionDir_Explicit(t *testing.T) {
	cfg := &Config{PermissionDir: "/custom/perm-dir"}

	dir, err := cfg.GetPermissionDir()
	if err != nil {
		t.Fatalf("GetPermissionDir: %v", err)
	}
	if dir != "/custom/perm-dir" {
		t.Errorf("GetPermissionDir = %q, want /custom/perm-dir", dir)
	}
}

func TestAddAlwaysAllowedTool(t *testing.T) {
	cfg := &Config{}

	if !cfg.AddAlwaysAllowedTool("Bash") {
		t.Error("First add should return true")
	}
	if cfg.AddAlwaysAllowedTool("Bash") {
		t.Error("Duplicate add should return false")
	}
	if !cfg.AddAlwaysAllowedTool("Read") {
		t.Error("Add of a different tool should return true")
	}

	tools := cfg.GetAlwaysAllowedTools()
	if len(tools) != 2 {
		t.Errorf("GetAlwaysAllowedTools = %v, want 2 entries", tools)
	}
}

func TestGetAlwaysAllowedTools_ReturnsCopy(t *testing.T) {
	cfg := &Config{AlwaysAllowedTools: []string{"Bash"}}

	tools := cfg.GetAlwaysAllowedTools()
	tools[0] = "mutated"

	if cfg.AlwaysAllowedTools[0] != "Bash" {
		t.Error("Mutating the returned slice should not affect the config")
	}
}
