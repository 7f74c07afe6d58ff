package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	apperrors "github.com/safedit/host/internal/errors"
	"github.com/safedit/host/internal/workspace"
)

// historyRel maps a CLI path argument to a workspace-relative path for
// snapshot lookups. The live file may already be deleted while snapshots
// remain, so a missing file falls back to the argument as given.
func historyRel(g *workspace.Guard, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	rp, err := g.Resolve(path)
	if err == nil {
		return rp.Rel(), nil
	}
	if apperrors.GetCode(err) == apperrors.CodeStorageNotFound {
		// Ledger records store slash-canonical relative paths; normalize
		// the fallback the same way so "./sub/../f.txt" still matches.
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	return "", err
}

// runBackupList implements "safedit backup list [path]".
func runBackupList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("backup list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")
	workspaceName := fs.String("workspace", "", "Workspace to use (overrides config)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: safedit backup list [options] [path]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	env, err := loadEnv(*configPath, *workspaceName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rel, err := historyRel(env.guard, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	records, err := env.backups.List(rel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "No backups.")
		return 0
	}

	for _, rec := range records {
		line := fmt.Sprintf("%d  %s  %s  %d bytes",
			rec.Timestamp,
			rec.CreatedAt.Format(time.RFC3339),
			rec.File,
			rec.SizeBytes)
		if rec.Committed {
			line += fmt.Sprintf("  [committed: %s]", rec.CommitMessage)
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}

// runBackupRestore implements "safedit backup restore <path>".
func runBackupRestore(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("backup restore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")
	workspaceName := fs.String("workspace", "", "Workspace to use (overrides config)")
	timestamp := fs.Int64("timestamp", 0, "Snapshot to restore (default: latest)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: safedit backup restore [options] <path>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}

	env, err := loadEnv(*configPath, *workspaceName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rp, err := env.guard.ResolveForWrite(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	rec, err := env.backups.Restore(rp, *timestamp)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Restored %s from snapshot %d\n", rec.File, rec.Timestamp)
	return 0
}

// runBackupCommit implements "safedit backup commit <path> -m <message>".
func runBackupCommit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("backup commit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")
	workspaceName := fs.String("workspace", "", "Workspace to use (overrides config)")
	message := fs.String("m", "", "Commit message (required)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: safedit backup commit [options] <path> -m <message>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 || *message == "" {
		fs.Usage()
		return 1
	}

	env, err := loadEnv(*configPath, *workspaceName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rp, err := env.guard.ResolveForWrite(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	rec, err := env.backups.Commit(rp, *message)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Committed snapshot %d of %s: %s\n", rec.Timestamp, rec.File, rec.CommitMessage)
	return 0
}

// runBackupDiff implements "safedit backup diff <path>".
func runBackupDiff(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("backup diff", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")
	workspaceName := fs.String("workspace", "", "Workspace to use (overrides config)")
	timestamp := fs.Int64("timestamp", 0, "Snapshot to compare against (default: latest)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: safedit backup diff [options] <path>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}

	env, err := loadEnv(*configPath, *workspaceName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rp, err := env.guard.ResolveForWrite(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	diffText, err := env.backups.Compare(rp, *timestamp)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if diffText == "" {
		fmt.Fprintln(stdout, "No changes since snapshot.")
		return 0
	}
	fmt.Fprint(stdout, diffText)
	return 0
}

// runBackupPrune implements "safedit backup prune <path>".
func runBackupPrune(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("backup prune", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")
	workspaceName := fs.String("workspace", "", "Workspace to use (overrides config)")
	keep := fs.Int("keep", 0, "Number of newest snapshots to keep (default: backup_retention from config)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: safedit backup prune [options] <path>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}

	env, err := loadEnv(*configPath, *workspaceName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	n := *keep
	if n == 0 {
		n = env.cfg.BackupRetention
	}

	rp, err := env.guard.ResolveForWrite(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	removed, err := env.backups.Prune(rp, n)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Removed %d snapshot(s), kept the newest %d\n", removed, n)
	return 0
}
