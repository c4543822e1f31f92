package mortality

import (
	"errors"
	"fmt"
)

// ErrConfig marks configuration problems detected while building the process.
var ErrConfig = errors.New("mortality configuration")

// ConfigError names the species and parameter behind a fatal configuration problem.
type ConfigError struct {
	Species string
	Key     string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("species %q, %s: %s", e.Species, e.Key, e.Reason)
}

// Unwrap lets errors.Is match ErrConfig.
func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

func configErr(species, key, format string, args ...any) error {
	return &ConfigError{Species: species, Key: key, Reason: fmt.Sprintf(format, args...)}
}
