package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/keystore"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// minPasswordLength is the shortest accepted key password.
const minPasswordLength = 8

// Prompt functions are variables so tests can replace them.
//
//nolint:gochecknoglobals // Swapped in tests
var (
	promptPasswordFn    = promptPassword
	promptNewPasswordFn = promptNewPassword
	promptSecretFn      = promptSecret
	promptConfirmFn     = promptConfirm
)

// promptPassword prompts for a password with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr) // Add newline after hidden input

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	return password, nil
}

// promptNewPassword prompts for a new key password with confirmation.
// The caller is responsible for zeroing the returned bytes after use.
func promptNewPassword() ([]byte, error) {
	password, err := promptPasswordFn("Enter key password: ")
	if err != nil {
		return nil, err
	}

	if len(password) < minPasswordLength {
		keystore.Zero(password)
		return nil, suberr.WithSuggestion(
			suberr.ErrInvalidInput,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength),
		)
	}

	confirm, err := promptPasswordFn("Confirm password: ")
	if err != nil {
		keystore.Zero(password)
		return nil, err
	}
	defer keystore.Zero(confirm)

	if string(password) != string(confirm) {
		keystore.Zero(password)
		return nil, suberr.WithSuggestion(suberr.ErrInvalidInput, "passwords do not match")
	}

	return password, nil
}

// promptSecret reads key material without echo. A mnemonic is entered on
// one line; when stdin is not a terminal the first line is read as is.
func promptSecret(prompt string) (string, error) {
	if term.IsTerminal(syscall.Stdin) {
		secret, err := promptPasswordFn(prompt)
		if err != nil {
			return "", err
		}
		defer keystore.Zero(secret)
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", suberr.WithSuggestion(suberr.ErrInvalidInput, "no key material on stdin")
	}
	return strings.TrimSpace(line), nil
}

// promptConfirm asks a yes/no question. Anything but y or yes is a no.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

// keyPassword returns the key password from SUBPASS_KEY_PASSWORD or a prompt.
func keyPassword(address string) ([]byte, error) {
	if pw, ok := config.KeyPassword(); ok {
		return []byte(pw), nil
	}
	return promptPasswordFn(fmt.Sprintf("Password for %s: ", address))
}
