package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCourseNotFound indicates the course identifier is unknown.
	ErrCourseNotFound = errors.New("course not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizLocked is returned when the content gate refuses access.
	ErrQuizLocked = errors.New("quiz locked until course content is reviewed")
	// ErrConflict is returned when a transactional ledger update lost its
	// race even after the retry budget. Callers re-run the whole
	// read-modify-write, never a delta.
	ErrConflict = errors.New("ledger update conflict")
	// ErrPermissionDenied is returned when the store refuses an operation.
	// Terminal for that operation; never retried automatically.
	ErrPermissionDenied = errors.New("store permission denied")
	// ErrTutorUnavailable is returned when the text-generation service is
	// unreachable or not configured. The tutor degrades; grading and the
	// ledger are unaffected.
	ErrTutorUnavailable = errors.New("tutor unavailable")
)

// ValidationError marks malformed grading input, rejected before scoring.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
