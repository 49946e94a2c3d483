// Package secrets resolves credentials at the moment they are needed so that
// a rotated key takes effect on the next session.
package secrets

import (
	"errors"
	"os"
	"strings"
)

var ErrNotFound = errors.New("secret not found")

// Store returns the rewrite service API key.
type Store interface {
	APIKey() (string, error)
}

// Env reads the key from an environment variable.
type Env struct {
	Var string
}

func (e Env) APIKey() (string, error) {
	if e.Var == "" {
		return "", ErrNotFound
	}
	value := strings.TrimSpace(os.Getenv(e.Var))
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Static always returns the same key.
type Static string

func (s Static) APIKey() (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNotFound
	}
	return strings.TrimSpace(string(s)), nil
}
