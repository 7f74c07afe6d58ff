package main

import (
	"fmt"

	"github.com/safedit/host/internal/backup"
	"github.com/safedit/host/internal/config"
	"github.com/safedit/host/internal/edit"
	"github.com/safedit/host/internal/fsops"
	"github.com/safedit/host/internal/workspace"
)

// cmdEnv bundles the pieces every subcommand operates on: the loaded config
// and the engine stack built from it.
type cmdEnv struct {
	cfg     *config.Config
	guard   *workspace.Guard
	backups *backup.Store
	engine  *edit.Engine
	files   *fsops.Ops
}

// loadEnv loads config from configPath (empty means the default location),
// applies zero-value defaults, and builds the workspace guard, backup store,
// and edit engine. workspaceName overrides the configured workspace when
// non-empty.
func loadEnv(configPath, workspaceName string) (*cmdEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	applyDefaults(cfg)

	g, err := workspace.NewGuard(cfg.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	name := workspaceName
	if name == "" {
		name = cfg.Workspace
	}
	if name != "" {
		if _, _, err := g.Set(name); err != nil {
			return nil, err
		}
	}

	store := backup.NewStore(g)
	return &cmdEnv{
		cfg:     cfg,
		guard:   g,
		backups: store,
		engine:  edit.NewEngine(g, store, cfg.MaxFileBytes),
		files:   fsops.New(g),
	}, nil
}

// applyDefaults fills zero-valued config fields with their defaults.
func applyDefaults(cfg *config.Config) {
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}
	if cfg.Workspace == "" {
		cfg.Workspace = config.DefaultWorkspaceName
	}
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = config.DefaultMaxFileBytes
	}
	if cfg.BackupRetention == 0 {
		cfg.BackupRetention = config.DefaultBackupRetention
	}
	if cfg.EditRatePerSec == 0 {
		cfg.EditRatePerSec = config.DefaultEditRatePerSec
	}
}
