package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptConfirm asks a yes/no question on stdout and reads the answer from in.
// Anything but y or yes is a no.
func PromptConfirm(message string, in io.Reader) bool {
	fmt.Printf("? %s [y/N]: ", message)

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// PromptPassword reads a password from the terminal without echoing it.
func PromptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsInteractive returns true if stdin is a terminal
func IsInteractive() bool {
	return stdinIsTerminal()
}
