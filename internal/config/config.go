// Package config provides TOML configuration file loading and parsing for the
// safedit host. The configuration file lives at ~/.safedit/config.toml by
// default, but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the safedit configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// WorkspaceDir is the base directory under which named workspaces are
	// created when no explicit root is given.
	// Default: ~/.safedit/workspaces
	WorkspaceDir string `toml:"workspace_dir"`

	// Workspace is the name or absolute root of the workspace to activate
	// at startup. If empty, the lazy "default" workspace is used on first
	// file operation.
	Workspace string `toml:"workspace"`

	// Addr is the host:port for the WebSocket server.
	// Default: 127.0.0.1:7171
	Addr string `toml:"addr"`

	// RequireAuth enables token-based authentication for WebSocket connections.
	// Default: false
	RequireAuth bool `toml:"require_auth"`

	// TokenHash is the bcrypt hash of the access token clients must present
	// when RequireAuth is true. Generated by 'safedit token'.
	TokenHash string `toml:"token_hash"`

	// AuditDB is the path to the SQLite database recording edit operations.
	// Default: ~/.safedit/safedit.db
	AuditDB string `toml:"audit_db"`

	// MaxFileBytes is the largest file the edit engine will load.
	// Default: 8 MiB. Zero means the default; negative disables the limit.
	MaxFileBytes int64 `toml:"max_file_bytes"`

	// BackupRetention is the number of snapshots kept per file before the
	// oldest are pruned. Default: 50. Zero means the default; negative
	// disables pruning.
	BackupRetention int `toml:"backup_retention"`

	// EditRatePerSec limits how many edit operations a single client may
	// issue per second. Default: 10
	EditRatePerSec float64 `toml:"edit_rate_per_sec"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`
}

// Validate checks config values for internal consistency.
// Zero values always pass; they mean "use the default".
func (c *Config) Validate() error {
	if c.EditRatePerSec < 0 {
		return fmt.Errorf("edit_rate_per_sec must not be negative, got %v", c.EditRatePerSec)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

// DefaultConfigPath returns the default config file location: ~/.safedit/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".safedit", "config.toml"), nil
}

// WriteDefault creates a config file with safe defaults at the given path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string, workspaceRoot string) error {
	// Check if file already exists - never overwrite
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, nothing to do
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Build minimal TOML config with loopback-only defaults
	// Using raw string to control formatting exactly
	content := fmt.Sprintf(`# Safedit configuration
# Created by 'safedit serve'

# Listen on loopback only; edits should not be reachable from the LAN
addr = "127.0.0.1:7171"

# Workspace to activate at startup
workspace = %q
`, workspaceRoot)

	// Write with restrictive permissions (owner read/write only)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.safedit/config.toml). Returns an empty Config without error if the
//     default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		// This allows the host to start without any config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			// Can't determine home dir, return empty config
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			// Default config doesn't exist, that's fine
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		// This matches user expectation: if they specify a config file, it should exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	// Parse the TOML file. Any parse error is fatal since the user expects
	// the config to be applied.
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}
