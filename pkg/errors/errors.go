// Package errors provides error wrapping utilities for context-aware error messages
// and the error kinds the flash station distinguishes between.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error kinds. None of them is fatal to the control loop; callers match them
// with Is to decide how to degrade.
var (
	// ErrNetworkUnavailable marks catalog fetch and artifact download failures.
	ErrNetworkUnavailable = stderrors.New("network unavailable")
	// ErrStorage marks version store read/write failures.
	ErrStorage = stderrors.New("storage error")
	// ErrToolFailure marks a flash that failed, timed out or was not verified.
	ErrToolFailure = stderrors.New("tool failure")
	// ErrResolutionMiss marks a trigger that maps to no known variant.
	ErrResolutionMiss = stderrors.New("resolution miss")
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Mark tags err with one of the error kinds above so Is(err, kind) holds.
// If err is nil, it returns nil.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return stderrors.New(text)
}
