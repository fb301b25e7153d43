package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors a Source returns from Scan when the note collection
// cannot be used. Run reports both as a configuration error.
var (
	ErrCollectionNotFound = errors.New("note collection not found")
	ErrCollectionInvalid  = errors.New("note collection is not a directory")
)

// Error is a run-level failure that aborts a sync.
//
// Run-level errors are:
//   - Configuration: the collection root is missing or unusable
//   - Safety abort: the scan returned far fewer tasks than are mapped
//   - Already running: another Run is in flight
//
// Per-task failures never surface as an Error; they are recorded in the
// Result and the run continues.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes run-level errors.
type ErrorCode string

const (
	// ErrCodeConfigInvalid indicates the source collection cannot be scanned.
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// ErrCodeSafetyAbort indicates a collapsed source count.
	ErrCodeSafetyAbort ErrorCode = "SAFETY_ABORT"

	// ErrCodeAlreadyRunning indicates a concurrent Run.
	ErrCodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfigError returns true if the error is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeConfigInvalid)
}

// IsSafetyAbort returns true if the run was aborted by the safety check.
func IsSafetyAbort(err error) bool {
	return hasCode(err, ErrCodeSafetyAbort)
}

// IsAlreadyRunning returns true if the error reports a concurrent run.
func IsAlreadyRunning(err error) bool {
	return hasCode(err, ErrCodeAlreadyRunning)
}

// NewConfigError creates an Error for an unusable source collection.
func NewConfigError(err error) *Error {
	return &Error{
		Code:    ErrCodeConfigInvalid,
		Message: "source collection unavailable",
		Err:     err,
	}
}

// NewSafetyAbortError creates an Error for a collapsed source count.
func NewSafetyAbortError(mapped, scanned int) *Error {
	return &Error{
		Code:    ErrCodeSafetyAbort,
		Message: fmt.Sprintf("scan found %d tasks but %d are mapped; refusing to sync", scanned, mapped),
		Details: map[string]string{
			"mapped":  fmt.Sprintf("%d", mapped),
			"scanned": fmt.Sprintf("%d", scanned),
		},
	}
}

// NewAlreadyRunningError creates an Error for a concurrent run.
func NewAlreadyRunningError() *Error {
	return &Error{
		Code:    ErrCodeAlreadyRunning,
		Message: "a sync is already running",
	}
}

// StaleSourceError reports that a source note changed after the scan, so a
// writeback to it was skipped.
type StaleSourceError struct {
	Path  string
	Title string
}

func (e *StaleSourceError) Error() string {
	return fmt.Sprintf("%s changed since scan; skipped writeback of %q", e.Path, e.Title)
}

// IsStaleSource returns true if the error is a StaleSourceError.
func IsStaleSource(err error) bool {
	var se *StaleSourceError
	return errors.As(err, &se)
}
