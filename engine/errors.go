package engine

import (
	"errors"
	"fmt"

	"github.com/panelguard/panelguard/errlog"
)

// EngineError represents a coordination failure surfaced to callers.
//
// Content-level problems (oversized trees, corruption) are data the engine
// interprets itself, not errors; EngineError covers the cases where the
// engine refuses or abandons work: the global lock is active, a coordinated
// batch timed out, or a failed update could not be recovered.
type EngineError struct {
	// Code identifies the error category; values are the errlog.Type*
	// constants.
	Code string

	// Message is a human-readable description.
	Message string

	// ContainerID identifies the affected container, when there is one.
	ContainerID string

	// Err is the underlying cause, when there is one.
	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.ContainerID != "" {
		return fmt.Sprintf("%s: %s (container=%s)", e.Code, e.Message, e.ContainerID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsGlobalLockError reports whether err is a rejection caused by the global
// update lock. Uses errors.As to handle wrapped errors.
func IsGlobalLockError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == errlog.TypeGlobalLockActive
}

// IsCoordinationTimeout reports whether err is a batch timeout.
func IsCoordinationTimeout(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == errlog.TypeCoordinationTimeout
}

// IsUpdateFailed reports whether err is a propagated update failure.
func IsUpdateFailed(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == errlog.TypeUpdateFailed
}

func newGlobalLockError(id, reason string) *EngineError {
	msg := "global update lock is active"
	if reason != "" {
		msg = fmt.Sprintf("global update lock is active: %s", reason)
	}
	return &EngineError{Code: errlog.TypeGlobalLockActive, Message: msg, ContainerID: id}
}
