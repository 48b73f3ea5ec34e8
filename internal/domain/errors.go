package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Callers match with errors.Is; the API layer maps each
// class to a status code in one place.
var (
	ErrNotFound     = errors.New("not found")
	ErrAmbiguous    = errors.New("ambiguous match")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRejected     = errors.New("rejected")
	ErrValidation   = errors.New("validation failed")

	ErrCircularDependency  = fmt.Errorf("%w: circular dependency detected", ErrRejected)
	ErrDuplicateDependency = fmt.Errorf("%w: dependency already exists", ErrRejected)
	ErrSelfDependency      = fmt.Errorf("%w: task cannot depend on itself", ErrRejected)
	ErrDuplicateAssignment = fmt.Errorf("%w: user already assigned to task", ErrRejected)
	ErrTaskBlocked         = fmt.Errorf("%w: task has unresolved blockers", ErrRejected)
	ErrNoOpenBlockers      = fmt.Errorf("%w: task has no unresolved blockers", ErrRejected)

	ErrInvalidStatus         = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidPriority       = fmt.Errorf("%w: invalid priority", ErrValidation)
	ErrInvalidBlockerType    = fmt.Errorf("%w: invalid blocker type", ErrValidation)
	ErrInvalidSeverity       = fmt.Errorf("%w: invalid severity", ErrValidation)
	ErrInvalidBlockerStatus  = fmt.Errorf("%w: invalid blocker status", ErrValidation)
	ErrInvalidDependencyType = fmt.Errorf("%w: invalid dependency type", ErrValidation)
	ErrInvalidTitle          = fmt.Errorf("%w: title must be 1-%d characters", ErrValidation, MaxTitleLength)
	ErrInvalidDescription    = fmt.Errorf("%w: description is too long", ErrValidation)
	ErrInvalidProject        = fmt.Errorf("%w: project is too long", ErrValidation)
	ErrInvalidHours          = fmt.Errorf("%w: hours must not be negative", ErrValidation)
	ErrInvalidBlockerText    = fmt.Errorf("%w: blocker description must be 1-%d characters", ErrValidation, MaxBlockerDescriptionLength)
)

func invalid(kind error, value string) error {
	return fmt.Errorf("%w: %q", kind, value)
}

// AmbiguousError carries the candidates of a title match that hit more
// than one task.
type AmbiguousError struct {
	Query      string
	Candidates []Task
}

func (e *AmbiguousError) Error() string {
	titles := make([]string, 0, len(e.Candidates))
	for _, t := range e.Candidates {
		titles = append(titles, t.Title)
	}
	return fmt.Sprintf("%d tasks match %q: %s", len(e.Candidates), e.Query, strings.Join(titles, ", "))
}

// Is lets errors.Is(err, ErrAmbiguous) match.
func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}
