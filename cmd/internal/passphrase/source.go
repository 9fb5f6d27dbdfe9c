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

// Source yields a keystore passphrase from an environment variable, falling
// back to a terminal prompt. The first result, success or failure, is kept.
type Source struct {
	envVar     string
	allowEmpty bool
	lookup     func(string) (string, bool)
	prompt     io.Writer

	once  sync.Once
	value string
	err   error
}

// Option customises a Source.
type Option func(*Source)

// AllowEmpty accepts an empty passphrase from the environment. The
// administrator keystore written by config.Load uses one.
func AllowEmpty() Option {
	return func(s *Source) { s.allowEmpty = true }
}

// WithLookup replaces os.LookupEnv.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(s *Source) { s.lookup = lookup }
}

// NewSource reads envVar when set and prompts on stdin otherwise.
func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{envVar: strings.TrimSpace(envVar), lookup: os.LookupEnv, prompt: os.Stderr}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get resolves the passphrase once and replays the result.
func (s *Source) Get() (string, error) {
	s.once.Do(func() { s.value, s.err = s.resolve() })
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if value, ok := s.fromEnv(); ok {
		if strings.TrimSpace(value) == "" && !s.allowEmpty {
			return "", fmt.Errorf("%s is set but empty", s.envVar)
		}
		return value, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if s.envVar == "" {
			return "", errors.New("keystore passphrase required and stdin is not a terminal")
		}
		return "", fmt.Errorf("keystore passphrase required: export %s or run from a terminal", s.envVar)
	}
	fmt.Fprint(s.prompt, "Enter keystore passphrase: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" && !s.allowEmpty {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	return string(raw), nil
}

func (s *Source) fromEnv() (string, bool) {
	if s.envVar == "" {
		return "", false
	}
	return s.lookup(s.envVar)
}
