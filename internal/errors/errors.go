// Package errors defines the error taxonomy shared by spec resolution and
// workload synthesis.
package errors

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration indicates that an application configuration document
// could not be resolved into a canonical spec. This covers unsupported config
// versions, malformed fields and failed whole-spec validation. It is always
// caller-facing and never retried.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrProbeConfiguration indicates that a health-check spec reached probe
// construction without any of the http/tcp/exec mechanisms set. A canonical
// spec must always carry exactly one, so this is a fatal construction error.
// Probe configuration errors are also invalid-configuration errors.
var ErrProbeConfiguration = fmt.Errorf("invalid probe configuration: %w", ErrInvalidConfiguration)

// NewInvalidConfiguration creates a new invalid-configuration error with a
// formatted message.
func NewInvalidConfiguration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// WrapInvalidConfiguration wraps an error as an invalid-configuration error,
// preserving the original failure as the wrapped cause. Errors that are
// already invalid-configuration errors are returned unchanged so callers only
// ever see one configuration-error kind.
func WrapInvalidConfiguration(err error) error {
	if err == nil {
		return nil
	}

	if IsInvalidConfiguration(err) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
}

// IsInvalidConfiguration checks if an error is an invalid-configuration error.
func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsProbeConfiguration checks if an error is a probe configuration error.
func IsProbeConfiguration(err error) bool {
	return errors.Is(err, ErrProbeConfiguration)
}
