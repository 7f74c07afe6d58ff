package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/safedit/host/internal/auth"
)

// runToken implements the "safedit token" command.
// It prints the bcrypt hash of a token for the config's token_hash field.
// The plaintext token is what clients present as the bearer token; only the
// hash is ever written to disk.
func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: safedit token <value>

Hash a bearer token for the config file. Put the output in token_hash and
set require_auth = true:

  token_hash = "<output>"
  require_auth = true

Pass '-' to read the token from stdin instead of the command line.
`)
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

	token := fs.Arg(0)
	if token == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(stderr, "Error: read stdin: %v\n", err)
			return 1
		}
		token = strings.TrimRight(string(data), "\r\n")
	}
	if token == "" {
		fmt.Fprintln(stderr, "Error: token must not be empty")
		return 1
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, hash)
	return 0
}
