package worth

import "errors"

var (
	// ErrConfigurationMismatch marks a worth table that could not be loaded.
	// The category it backs is disabled rather than failing startup.
	ErrConfigurationMismatch = errors.New("worth: configuration mismatch")

	ErrMalformedSpec = errors.New("worth: malformed source spec")
)
