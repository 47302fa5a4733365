package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrPrecondition        = errors.New("precondition failed")
	ErrRecommendationCount = errors.New("recommendation count mismatch")
	ErrProjectBusy         = errors.New("project busy")
	ErrInvalidInput        = errors.New("invalid input")
)

// PreconditionError reports an action attempted from a state where it is
// undefined, or whose context requirements are unmet.
type PreconditionError struct {
	Action  Action
	Status  Status
	Missing []string
}

func (e *PreconditionError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s not allowed in status %s", e.Action, e.Status)
	}
	return fmt.Sprintf("%s not allowed in status %s: missing %s", e.Action, e.Status, strings.Join(e.Missing, ", "))
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

func preconditionFailed(a Action, s Status, missing ...string) *PreconditionError {
	return &PreconditionError{Action: a, Status: s, Missing: missing}
}

// RecommendationCountError means a generation path could not be normalized to
// the required number of items after the retry.
type RecommendationCountError struct {
	Path string
	Got  int
	Want int
}

func (e *RecommendationCountError) Error() string {
	return fmt.Sprintf("%s recommendations: got %d distinct items, want %d", e.Path, e.Got, e.Want)
}

func (e *RecommendationCountError) Unwrap() error { return ErrRecommendationCount }

// ProjectBusyError is returned when another mutation holds the project lock.
type ProjectBusyError struct {
	ProjectID string
}

func (e *ProjectBusyError) Error() string {
	return fmt.Sprintf("project %s has a mutation in flight", e.ProjectID)
}

func (e *ProjectBusyError) Unwrap() error { return ErrProjectBusy }

// InvalidInput wraps ErrInvalidInput with a message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
