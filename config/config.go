// Package config holds the engine's persisted settings and the tuning knobs
// for the permission arbitration service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yult97/idea-claude-code-gui-sub001/paths"
)

// Default values for the arbitration and streaming knobs. The timeout values
// are carried over from the original tuning; both are configuration rather
// than constants because they were re-tuned after field regressions.
const (
	// DefaultPollInterval is how often the permission watcher scans the
	// request directory. Native filesystem notification is deliberately not
	// used: watch events are unreliable on at least one supported OS, and a
	// few hundred milliseconds of polling latency is acceptable for an
	// interactive prompt.
	DefaultPollInterval = 300 * time.Millisecond

	// DefaultSettleDelay is how long a newly discovered request file must be
	// left alone before reading it. The agent subprocess may still be
	// flushing the file when the watcher first sees it.
	DefaultSettleDelay = 50 * time.Millisecond

	// DefaultArbitrationTimeout bounds a single permission round trip. When
	// it expires the request is denied (fail-closed).
	DefaultArbitrationTimeout = 30 * time.Second

	// DefaultSendTimeout is zero: sends have no overall deadline. Agent
	// turns routinely run for many minutes while tools execute, and an
	// earlier fixed bound cut off long tool runs mid-turn. The knob exists
	// for deployments that want one anyway.
	DefaultSendTimeout = 0
)

// Config holds the engine configuration.
type Config struct {
	// Permission arbitration
	PermissionDir      string   `json:"permission_dir,omitempty"`      // Request/response directory (default from paths package)
	PollIntervalMs     int      `json:"poll_interval_ms,omitempty"`    // Watcher poll interval in milliseconds
	SettleDelayMs      int      `json:"settle_delay_ms,omitempty"`     // Delay before reading a newly seen request file
	ArbitrationTimeout int      `json:"arbitration_timeout_s,omitempty"` // Seconds before a pending request is denied
	AlwaysAllowedTools []string `json:"always_allowed_tools,omitempty"`  // Tools granted without prompting

	// Channel defaults
	DefaultModel          string `json:"default_model,omitempty"`
	DefaultPermissionMode string `json:"default_permission_mode,omitempty"` // e.g. "default", "acceptEdits", "plan"
	Provider              string `json:"provider,omitempty"`                // Provider tag attached to new channels
	SendTimeoutS          int    `json:"send_timeout_s,omitempty"`          // 0 disables the overall send deadline

	Debug bool `json:"debug,omitempty"` // Enable debug logging

	mu       sync.RWMutex
	filePath string
}

// Load reads the config from disk, or creates a new one if it doesn't exist.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{filePath: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.PollIntervalMs < 0 {
		return fmt.Errorf("poll_interval_ms cannot be negative")
	}
	if c.SettleDelayMs < 0 {
		return fmt.Errorf("settle_delay_ms cannot be negative")
	}
	if c.ArbitrationTimeout < 0 {
		return fmt.Errorf("arbitration_timeout_s cannot be negative")
	}
	if c.SendTimeoutS < 0 {
		return fmt.Errorf("send_timeout_s cannot be negative")
	}
	return nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, err := paths.ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}

// SetFilePath sets the config file path (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// GetPermissionDir returns the configured permission directory, falling back
// to the default under the state directory.
func (c *Config) GetPermissionDir() (string, error) {
	c.mu.RLock()
	dir := c.PermissionDir
	c.mu.RUnlock()
	if dir != "" {
		return dir, nil
	}
	return paths.PermissionRequestsDir()
}

// GetPollInterval returns the watcher poll interval.
func (c *Config) GetPollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.PollIntervalMs <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// GetSettleDelay returns the delay before reading a newly observed request file.
func (c *Config) GetSettleDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.SettleDelayMs <= 0 {
		return DefaultSettleDelay
	}
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// GetArbitrationTimeout returns the deadline for one permission round trip.
func (c *Config) GetArbitrationTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ArbitrationTimeout <= 0 {
		return DefaultArbitrationTimeout
	}
	return time.Duration(c.ArbitrationTimeout) * time.Second
}

// GetSendTimeout returns the overall send deadline, or zero when disabled.
func (c *Config) GetSendTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.SendTimeoutS <= 0 {
		return DefaultSendTimeout
	}
	return time.Duration(c.SendTimeoutS) * time.Second
}

// GetDefaultModel returns the model new channels use.
func (c *Config) GetDefaultModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DefaultModel
}

// GetDefaultPermissionMode returns the permission mode new channels use.
func (c *Config) GetDefaultPermissionMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DefaultPermissionMode
}

// GetProvider returns the provider tag attached to new channels.
func (c *Config) GetProvider() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Provider
}

// GetAlwaysAllowedTools returns a copy of the globally pre-approved tools.
func (c *Config) GetAlwaysAllowedTools() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tools := make([]string, len(c.AlwaysAllowedTools))
	copy(tools, c.AlwaysAllowedTools)
	return tools
}

// AddAlwaysAllowedTool appends a tool to the pre-approved list if not present.
// Returns true if the tool was added.
func (c *Config) AddAlwaysAllowedTool(tool string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.AlwaysAllowedTools {
		if t == tool {
			return false
		}
	}
	c.AlwaysAllowedTools = append(c.AlwaysAllowedTools, tool)
	return true
}
