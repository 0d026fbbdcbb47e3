// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the operation conflicts with the current state
// (for example a deals job that is already running).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates a request failed input validation.
// Wrap it as fmt.Errorf("%w: <detail>", ErrValidation) so the HTTP layer can
// strip the prefix and show the detail to the caller.
var ErrValidation = errors.New("validation")
