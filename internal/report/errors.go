package report

import (
	"errors"
	"fmt"
)

// Error is the error value returned by every engine operation that can fail.
// Callers branch on Kind (and Cause, where set) rather than on message text.
type Error struct {
	Kind    ErrorKind
	Cause   Cause
	Message string
	Err     error
}

// ErrorKind categorizes engine failures.
type ErrorKind int

const (
	// ErrCameraUnavailable indicates no camera stream could be opened.
	ErrCameraUnavailable ErrorKind = iota
	// ErrCaptureFailed indicates a still could not be taken or encoded.
	ErrCaptureFailed
	// ErrInvalidMedia indicates an imported file is not an acceptable image.
	ErrInvalidMedia
	// ErrPositionUnavailable indicates the device position could not be read.
	ErrPositionUnavailable
	// ErrRegionViolation indicates coordinates outside the allowed region.
	ErrRegionViolation
	// ErrIncompleteDraft indicates submit was called without photo or location.
	ErrIncompleteDraft
	// ErrSubmissionFailed indicates the backend upload or finalize failed.
	ErrSubmissionFailed
	// ErrSubmissionInProgress indicates a submit call is already running.
	ErrSubmissionInProgress
	// ErrInvalidInput indicates malformed caller input (short query, bad email).
	ErrInvalidInput
	// ErrOutOfSequence indicates an operation invoked from the wrong step.
	ErrOutOfSequence
	// ErrPersistence indicates the draft backend failed.
	ErrPersistence
)

var kindNames = map[ErrorKind]string{
	ErrCameraUnavailable:    "camera_unavailable",
	ErrCaptureFailed:        "capture_failed",
	ErrInvalidMedia:         "invalid_media",
	ErrPositionUnavailable:  "position_unavailable",
	ErrRegionViolation:      "region_violation",
	ErrIncompleteDraft:      "incomplete_draft",
	ErrSubmissionFailed:     "submission_failed",
	ErrSubmissionInProgress: "submission_in_progress",
	ErrInvalidInput:         "invalid_input",
	ErrOutOfSequence:        "out_of_sequence",
	ErrPersistence:          "persistence",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Cause refines a kind with the underlying reason.
type Cause string

const (
	CausePermissionDenied         Cause = "permission_denied"
	CauseNoDevice                 Cause = "no_device"
	CauseDeviceBusy               Cause = "device_busy"
	CauseConstraintsUnsatisfiable Cause = "constraints_unsatisfiable"
	CauseTimeout                  Cause = "timeout"
	CauseUnavailable              Cause = "unavailable"
	CauseNetwork                  Cause = "network"
	CauseRejected                 Cause = "rejected"
	CauseTooLarge                 Cause = "too_large"
	CauseUnsupportedType          Cause = "unsupported_type"
	CauseNoActiveCamera           Cause = "no_active_camera"
	CauseEncoding                 Cause = "encoding"
	CauseStorage                  Cause = "storage"
	CauseSuperseded               Cause = "superseded"
	CauseCanceled                 Cause = "canceled"
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error.
func NewError(kind ErrorKind, cause Cause, message string, err error) *Error {
	return &Error{Kind: kind, Cause: cause, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// CauseOf returns the cause of the first *Error in err's chain.
func CauseOf(err error) Cause {
	var e *Error
	if errors.As(err, &e) {
		return e.Cause
	}
	return ""
}
