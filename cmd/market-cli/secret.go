package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

// promptSecret reads a secret from the terminal without echoing it.
func promptSecret(w io.Writer, prompt string) (string, error) {
	if !stdinIsTerminal() {
		return "", errors.New("--secret is required; set MARKET_AUTH_SECRET or run interactively")
	}
	fmt.Fprint(w, prompt)
	raw, err := readPassword()
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", errors.New("secret cannot be empty")
	}
	return secret, nil
}
