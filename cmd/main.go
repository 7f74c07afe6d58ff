package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `safedit - atomic edit engine with versioned backups

Usage:
  safedit <command> [options]

Commands:
  serve            Start the WebSocket server
  workspace set <name>   Switch the active workspace
  workspace show   Show the active workspace
  edit             Apply or preview an edit to a workspace file
  backup list [path]     List snapshots, optionally for one file
  backup restore <path>  Restore a file from a snapshot
  backup commit <path>   Annotate the latest snapshot
  backup diff <path>     Diff a snapshot against the live file
  backup prune <path>    Remove old snapshots for a file
  token <value>    Hash a bearer token for the config's token_hash
  audit list       Show the audit ledger of mutating operations

Run 'safedit <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "workspace":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: safedit workspace <set|show>")
			return 1
		}
		switch args[2] {
		case "set":
			return runWorkspaceSet(args[3:], stdout, stderr)
		case "show":
			return runWorkspaceShow(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown workspace command: %s\n", args[2])
			return 1
		}
	case "edit":
		return runEdit(args[2:], stdout, stderr)
	case "token":
		return runToken(args[2:], stdout, stderr)
	case "audit":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: safedit audit <list>")
			return 1
		}
		switch args[2] {
		case "list":
			return runAuditList(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown audit command: %s\n", args[2])
			return 1
		}
	case "backup":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: safedit backup <list|restore|commit|diff|prune>")
			return 1
		}
		switch args[2] {
		case "list":
			return runBackupList(args[3:], stdout, stderr)
		case "restore":
			return runBackupRestore(args[3:], stdout, stderr)
		case "commit":
			return runBackupCommit(args[3:], stdout, stderr)
		case "diff":
			return runBackupDiff(args[3:], stdout, stderr)
		case "prune":
			return runBackupPrune(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown backup command: %s\n", args[2])
			return 1
		}
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "safedit %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
