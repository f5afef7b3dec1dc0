package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrMismatch is returned when the confirmation prompt does not match.
var ErrMismatch = errors.New("passphrases do not match")

// Source resolves a keystore passphrase from an environment variable or by
// prompting on the terminal. The first result is cached.
type Source struct {
	envVar  string
	confirm bool

	lookupEnv  func(string) (string, bool)
	isTerminal func() bool
	readSecret func() ([]byte, error)
	prompt     io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource returns a source that checks envVar before prompting.
func NewSource(envVar string) *Source {
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		lookupEnv:  os.LookupEnv,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		readSecret: func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) },
		prompt:     os.Stderr,
	}
}

// WithConfirmation asks for the passphrase twice when prompting, for use when a
// new keystore is being written.
func (s *Source) WithConfirmation() *Source {
	s.confirm = true
	return s
}

// Get returns the passphrase. Whitespace-only values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("keystore passphrase required and no terminal available")
	}

	first, err := s.read("Enter keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if s.confirm {
		second, err := s.read("Repeat keystore passphrase: ")
		if err != nil {
			return "", err
		}
		if first != second {
			return "", ErrMismatch
		}
	}
	return first, nil
}

func (s *Source) read(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	secret, err := s.readSecret()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	value := string(secret)
	if strings.TrimSpace(value) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	return value, nil
}
