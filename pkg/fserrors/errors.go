// Package fserrors provides the structured error system for the DriftFS SDK
// with error codes, categories, and the mapping contract for native client
// error numbers. Native numeric codes never cross this package upward as raw
// integers; every public SDK operation fails with one of these codes.
package fserrors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrorCode identifies one failure kind of the SDK surface.
type ErrorCode string

const (
	// Session lifecycle errors.
	ErrCodeMountFailed    ErrorCode = "MOUNT_FAILED"
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrCodeSessionClosed  ErrorCode = "SESSION_CLOSED"
	ErrCodeSessionBusy    ErrorCode = "SESSION_BUSY"

	// Stream errors.
	ErrCodeStreamClosed    ErrorCode = "STREAM_CLOSED"
	ErrCodeUnsupportedMode ErrorCode = "UNSUPPORTED_MODE"
	ErrCodeInvalidSeek     ErrorCode = "INVALID_SEEK"
	ErrCodeShortWrite      ErrorCode = "SHORT_WRITE"
	ErrCodeBadEncoding     ErrorCode = "BAD_ENCODING"

	// Path errors, derived from native codes.
	ErrCodeNotFound         ErrorCode = "FILE_NOT_FOUND"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	ErrCodeIsDirectory      ErrorCode = "IS_DIRECTORY"
	ErrCodeNotDirectory     ErrorCode = "NOT_DIRECTORY"
	ErrCodeNotEmpty         ErrorCode = "NOT_EMPTY"
	ErrCodeBadDescriptor    ErrorCode = "BAD_DESCRIPTOR"

	// Any native failure without a dedicated kind.
	ErrCodeNative ErrorCode = "NATIVE_ERROR"
)

// ErrorCategory groups codes for logging and reporting.
type ErrorCategory string

const (
	CategorySession ErrorCategory = "session"
	CategoryStream  ErrorCategory = "stream"
	CategoryPath    ErrorCategory = "path"
	CategoryNative  ErrorCategory = "native"
)

// Error is a structured SDK error. Path and Path2 carry the file names the
// failed operation touched; Errno carries the native code for kinds derived
// from the native boundary, and is zero for local invariant violations.
type Error struct {
	Code     ErrorCode
	Category ErrorCategory
	Op       string
	Path     string
	Path2    string
	Errno    int
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	fmt.Fprintf(&b, "%s", e.Code)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Errno != 0 {
		fmt.Fprintf(&b, " (errno %d)", e.Errno)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches either another *Error with the same code, or the io/fs
// sentinels so that callers using os.IsNotExist-style checks and the billy
// adapter behave like they would against the local filesystem.
func (e *Error) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e.Code == ErrCodeNotFound
	case fs.ErrExist:
		return e.Code == ErrCodeAlreadyExists
	case fs.ErrPermission:
		return e.Code == ErrCodePermissionDenied
	case fs.ErrClosed:
		return e.Code == ErrCodeStreamClosed || e.Code == ErrCodeSessionClosed
	}
	if other, ok := target.(*Error); ok {
		return e.Code == other.Code
	}
	return false
}

// New creates an error with the category derived from the code.
func New(code ErrorCode, op, path, message string) *Error {
	return &Error{
		Code:     code,
		Category: categoryOf(code),
		Op:       op,
		Path:     path,
		Message:  message,
	}
}

// Wrap annotates cause with an SDK code.
func Wrap(code ErrorCode, op, path string, cause error) *Error {
	e := New(code, op, path, "")
	e.Cause = cause
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

func categoryOf(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeMountFailed, ErrCodeNotInitialized, ErrCodeSessionClosed, ErrCodeSessionBusy:
		return CategorySession
	case ErrCodeStreamClosed, ErrCodeUnsupportedMode, ErrCodeInvalidSeek,
		ErrCodeShortWrite, ErrCodeBadEncoding:
		return CategoryStream
	case ErrCodeNotFound, ErrCodePermissionDenied, ErrCodeAlreadyExists,
		ErrCodeIsDirectory, ErrCodeNotDirectory, ErrCodeNotEmpty, ErrCodeBadDescriptor:
		return CategoryPath
	default:
		return CategoryNative
	}
}

// CodeOf returns the SDK code carried by err, or ErrCodeNative when err is
// not a structured SDK error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeNative
}

// IsNotFound reports whether err is a missing-path error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNotFound
}

// IsClosed reports whether err came from an operation on a closed session or
// stream.
func IsClosed(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Code == ErrCodeSessionClosed || e.Code == ErrCodeStreamClosed)
}
