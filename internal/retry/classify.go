// Package retry classifies execution failures, computes backoff delays, and
// wraps unit-of-work attempts with retry bookkeeping. Every attempt, success
// or failure, appends one execution record.
package retry

import (
	"errors"
	"strings"

	"github.com/mbright/conductor/pkg/models"
)

// Kinder is implemented by errors that declare their own classification.
// A declared kind takes precedence over message heuristics.
type Kinder interface {
	Kind() models.ErrorKind
}

// KindError wraps an error with an explicit classification.
type KindError struct {
	// ErrKind is the declared classification.
	ErrKind models.ErrorKind
	// Err is the underlying error.
	Err error
}

// WithKind wraps err with an explicit classification.
func WithKind(err error, kind models.ErrorKind) error {
	return &KindError{ErrKind: kind, Err: err}
}

// Error returns the underlying error message.
func (e *KindError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *KindError) Unwrap() error { return e.Err }

// Kind returns the declared classification.
func (e *KindError) Kind() models.ErrorKind { return e.ErrKind }

// Classify maps a failure to an error kind. Errors that declare a kind win;
// otherwise the message is matched against keyword heuristics, defaulting
// to execution_error.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return ""
	}

	var kinder Kinder
	if errors.As(err, &kinder) {
		if k := kinder.Kind(); k.Valid() {
			return k
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "validation"), strings.Contains(msg, "schema"):
		return models.ErrKindValidation
	case strings.Contains(msg, "timeout"):
		return models.ErrKindTimeout
	case strings.Contains(msg, "test"):
		return models.ErrKindTestFailure
	case strings.Contains(msg, "context"), strings.Contains(msg, "missing"):
		return models.ErrKindInsufficientContext
	default:
		return models.ErrKindExecution
	}
}
