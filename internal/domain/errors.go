package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrLockHeld       = errors.New("entity is locked by another job")
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// ValidationError reports a violated business rule. It is never retried; the
// violation is reflected into the owning entity's status instead.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Rule)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Rule, e.Detail)
}

// NewValidationError builds a ValidationError for the named rule.
func NewValidationError(rule, detail string) *ValidationError {
	return &ValidationError{Rule: rule, Detail: detail}
}

// ModerationError reports a prompt rejected by content moderation.
type ModerationError struct {
	Reason string
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("prompt rejected by moderation: %s", e.Reason)
}

// TransientError wraps a provider or network failure that is safe to retry
// under the queue's retry policy.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// TimeoutError records a job that exceeded its deadline. The deadline is
// enforced through context cancellation, so in-flight work is actually
// stopped rather than left running behind a failed status.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// Timeout converts a context deadline error into a TimeoutError, passing
// other errors through unchanged.
func Timeout(op string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout}
	}
	return err
}

// Retryable reports whether the queue should redeliver a job that failed
// with err. Validation and moderation failures are terminal, as are missing
// entities and exceeded deadlines; transient integration failures are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	var merr *ModerationError
	var terr *TimeoutError
	if errors.As(err, &verr) || errors.As(err, &merr) || errors.As(err, &terr) {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownJobKind) {
		return false
	}
	return true
}
