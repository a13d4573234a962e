package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredEnv indicates a required environment variable was not set.
	ErrMissingRequiredEnv = errors.New("missing required environment variable")

	// ErrInvalidValue indicates an environment variable had an unparsable or
	// out-of-range value.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// LoadError wraps a configuration loading failure with the offending
// environment variable name.
type LoadError struct {
	EnvVar string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.EnvVar, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func newLoadError(envVar string, err error) *LoadError {
	return &LoadError{EnvVar: envVar, Err: err}
}
