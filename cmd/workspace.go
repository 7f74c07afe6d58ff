package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
)

// runWorkspaceSet implements "safedit workspace set <name>".
// The workspace directory is created if it does not exist.
func runWorkspaceSet(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("workspace set", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: safedit workspace set [options] <name>")
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

	env, err := loadEnv(*configPath, "")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	prev, next, err := env.guard.Set(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if prev != "" && prev != next {
		fmt.Fprintf(stdout, "Switched workspace: %s -> %s\n", filepath.Base(prev), filepath.Base(next))
	} else {
		fmt.Fprintf(stdout, "Active workspace: %s\n", next)
	}
	fmt.Fprintln(stdout, "Note: set 'workspace' in the config file to persist this choice.")
	return 0
}

// runWorkspaceShow implements "safedit workspace show".
func runWorkspaceShow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("workspace show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	env, err := loadEnv(*configPath, "")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	info, err := env.guard.Info()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Workspace: %s\n", filepath.Base(info.Root))
	fmt.Fprintf(stdout, "Root:      %s\n", info.Root)
	if !info.Exists {
		fmt.Fprintln(stdout, "Warning:   root directory is missing")
	}
	return 0
}
