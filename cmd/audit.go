package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/safedit/host/internal/config"
	"github.com/safedit/host/internal/storage"
)

// runAuditList implements "safedit audit list".
// It reads the audit ledger the server writes for mutating operations.
func runAuditList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")
	dbPath := fs.String("db", "", "Path to the audit database (overrides config)")
	pathFilter := fs.String("path", "", "Only show entries for this workspace-relative path")
	limit := fs.Int("limit", 20, "Maximum number of entries to show; 0 shows all")
	asJSON := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: safedit audit list [options]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	db := *dbPath
	if db == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		db = cfg.AuditDB
	}
	if db == "" {
		fmt.Fprintln(stderr, "Error: no audit database configured; set audit_db in the config or pass --db")
		return 1
	}

	store, err := storage.NewSQLiteStore(db)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open audit database: %v\n", err)
		return 1
	}
	defer store.Close()

	entries, err := store.ListEditAudit(*pathFilter, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No audit entries.")
		return 0
	}
	for _, entry := range entries {
		line := fmt.Sprintf("%s  %-7s %-7s %s",
			entry.At.Format(time.RFC3339),
			entry.Operation,
			entry.Status,
			entry.Path)
		if entry.Mode != "" {
			line += fmt.Sprintf("  mode=%s", entry.Mode)
		}
		if entry.BackupTimestamp != 0 {
			line += fmt.Sprintf("  backup=%d", entry.BackupTimestamp)
		}
		if entry.Status == "error" {
			line += fmt.Sprintf("  %s: %s", entry.Code, entry.Message)
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}
