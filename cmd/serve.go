package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/safedit/host/internal/auth"
	"github.com/safedit/host/internal/config"
	"github.com/safedit/host/internal/server"
	"github.com/safedit/host/internal/storage"
)

// runServe implements the "safedit serve" command.
// It loads the config (creating a default one on first run), builds the
// engine stack, and runs the WebSocket server until interrupted.
func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	workspaceName := fs.String("workspace", "", "Workspace to activate (overrides config)")
	requireAuth := fs.Bool("require-auth", false, "Require bearer-token authentication")
	auditDB := fs.String("audit-db", "", "Path to the audit database (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: safedit serve [options]

Start the WebSocket server. Clients connect to ws://<addr>/ws and exchange
edit, backup, workspace, and file messages. Flags override config values.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// First run: write a default config so the workspace layout is
	// discoverable and editable.
	if *configPath == "" {
		if defaultPath, err := config.DefaultConfigPath(); err == nil {
			if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
				if err := config.WriteDefault(defaultPath, config.DefaultWorkspaceName); err == nil {
					fmt.Fprintf(stdout, "Created config: %s\n", defaultPath)
				}
			}
		}
	}

	env, err := loadEnv(*configPath, *workspaceName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg := env.cfg
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *requireAuth {
		cfg.RequireAuth = true
	}
	if *auditDB != "" {
		cfg.AuditDB = *auditDB
	}

	if cfg.RequireAuth && cfg.TokenHash == "" {
		fmt.Fprintln(stderr, "Error: require_auth is set but the config has no token_hash")
		return 1
	}

	srv := server.NewServer(cfg.Addr, env.guard, env.engine, env.backups, env.files)
	srv.SetEditRate(cfg.EditRatePerSec, 5)
	if cfg.RequireAuth {
		srv.SetTokenValidator(auth.StaticValidator(cfg.TokenHash))
		srv.SetRequireAuth(true)
	}

	if cfg.AuditDB != "" {
		store, err := storage.NewSQLiteStore(cfg.AuditDB)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open audit database: %v\n", err)
			return 1
		}
		defer store.Close()
		srv.SetAuditRecorder(store)
	}

	if err := <-srv.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	info, err := env.guard.Info()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		srv.Stop()
		return 1
	}
	fmt.Fprintf(stdout, "Serving workspace %s on %s\n", info.Root, cfg.Addr)

	// Block until interrupted, then shut down cleanly.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(stdout, "Shutting down")
	if err := srv.Stop(); err != nil {
		fmt.Fprintf(stderr, "Error during shutdown: %v\n", err)
		return 1
	}
	return 0
}
