// Package errs defines the error taxonomy shared across the engine.
// Callers classify failures with errors.Is against these sentinels.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse means a provider payload could not be parsed into
	// any expected shape. The signal is dropped and the run continues.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrRateLimited means a provider's budget is exhausted. The coordinator
	// backs off and retries; after the attempt cap the identity is left partial.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrTimeout is treated identically to ErrRateLimited for retry purposes.
	ErrTimeout = errors.New("provider call timed out")

	// ErrInvalidEntity means the caller supplied an empty or invalid keyword
	// or URL. It fails the single operation, never the whole run.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrAuthError means a provider rejected the configured credential.
	// Fatal for that provider for the remainder of the run.
	ErrAuthError = errors.New("provider authentication rejected")

	// ErrPageUnreachable means the audit provider could not fetch the page
	// at all. Distinct from ErrPageNoContent: an unreachable page may still
	// exist.
	ErrPageUnreachable = errors.New("page unreachable")

	// ErrPageNoContent means the page was fetched but exposed no detectable
	// content to audit.
	ErrPageNoContent = errors.New("page has no detectable content")
)

// Retryable reports whether the coordinator should retry after err.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// Malformed wraps err as a malformed-response failure with context.
func Malformed(provider string, err error) error {
	return fmt.Errorf("%w from %s: %v", ErrMalformedResponse, provider, err)
}

// Malformedf builds a malformed-response failure from a format string.
func Malformedf(provider, format string, args ...interface{}) error {
	return fmt.Errorf("%w from %s: %s", ErrMalformedResponse, provider, fmt.Sprintf(format, args...))
}

// Invalid builds an invalid-entity failure describing the rejected input.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidEntity, fmt.Sprintf(format, args...))
}
