// Package enginerr defines the tagged-variant error type used across the
// pipeline engine (§7). The router, pipeline driver, packager, upload router
// and command runner return this type (wrapped behind the error interface),
// so callers can recover the structured kind with errors.As; the config,
// progress store, stage-directory watcher, download clients and upload
// targets return plain fmt.Errorf-wrapped errors.
package enginerr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable error categories from §7.
type Kind string

const (
	KindValidation      Kind = "Validation"
	KindNotFound        Kind = "NotFound"
	KindInvalidState    Kind = "InvalidStateTransition"
	KindCommandExec     Kind = "CommandExecution"
	KindUnsupportedLink Kind = "UnsupportedLink"
	KindDownloadClient  Kind = "DownloadClient"
	KindSyncRejected    Kind = "SyncRejected"
	KindPackageFailure  Kind = "PackageFailure"
	KindUploadFailure   Kind = "UploadFailure"
	KindCancelled       Kind = "Cancelled"
	KindRetryExhausted  Kind = "RetryExhausted"
)

// maxStderr bounds the stderr fragment captured on a CommandExecution error
// (§7: "truncated stderr ≤ 1000 bytes").
const maxStderr = 1000

// Error is the tagged-variant error carried by every engine operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap constructs an Error that wraps an underlying cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// WithDetails attaches a structured details mapping and returns the receiver
// for chaining at the construction site.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// CommandFailure builds a CommandExecution error per §7, truncating stderr
// to the 1000-byte cap.
func CommandFailure(command string, exitCode int, stderr string, cause error) *Error {
	if len(stderr) > maxStderr {
		stderr = stderr[:maxStderr]
	}
	return &Error{
		Kind:    KindCommandExec,
		Code:    "command_execution_failed",
		Message: fmt.Sprintf("command %q exited %d", command, exitCode),
		Details: map[string]interface{}{
			"command":  command,
			"exitCode": exitCode,
			"stderr":   stderr,
		},
		cause: cause,
	}
}

// KindOf recovers the Kind of err if it is (or wraps) an *Error, returning
// ok=false otherwise. Callers that only care about the category use this
// instead of a full errors.As.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
