package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("invalid input")
	ErrInvalidInput        = errors.New("upstream rejected input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrStaleEpoch          = errors.New("stale job epoch")
)

// InsufficientCreditsError is the expected, recoverable outcome of a ledger
// check failing. It carries the exact shortfall for the caller to render.
type InsufficientCreditsError struct {
	Required int
	Current  int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, current %d", e.Required, e.Current)
}

// OutOfOrderTransitionError reports a stage invoked before its predecessor
// artifact exists.
type OutOfOrderTransitionError struct {
	SceneID string
	Stage   Stage
	Missing Stage
}

func (e *OutOfOrderTransitionError) Error() string {
	return fmt.Sprintf("scene %s: stage %s requires %s artifact", e.SceneID, e.Stage, e.Missing)
}

// UpstreamGenerationError wraps a gateway failure for a specific stage.
// Credits are never debited when this is returned.
type UpstreamGenerationError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamGenerationError) Error() string {
	return fmt.Sprintf("stage %s: generation failed: %v", e.Stage, e.Err)
}

func (e *UpstreamGenerationError) Unwrap() error { return e.Err }

// IsInsufficientCredits reports whether err is an insufficient-credits outcome.
func IsInsufficientCredits(err error) bool {
	var ice *InsufficientCreditsError
	return errors.As(err, &ice)
}
