// Package escrow is the client-facing library for talking to an escrowd
// daemon: opening (and, if needed, spawning) a session, and issuing
// Add/Get/Del/Tag requests against it.
package escrow

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is escrowd's structured error type: every failure the client
// library or the daemon's in-process helpers can produce carries the
// operation that failed, a high-level code, and (when the failure traces
// back to a syscall) the errno. Grounded in the teacher's errors.go
// (*Error with Op/Code/Errno/Msg/Inner, Unwrap/Is, the New*/WrapError
// constructor family, mapErrnoToCode), retargeted from ublk's device/queue
// error taxonomy to escrow's.
type Error struct {
	Op    string // Operation that failed (e.g. "Open", "Add", "dispatch ADD")
	Code  ErrCode
	Errno syscall.Errno // 0 if not applicable
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("escrow: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("escrow: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrCode is a high-level error category, mirroring spec.md §7's taxonomy.
type ErrCode string

const (
	ErrCodeInvalidArgument ErrCode = "invalid argument"
	ErrCodeNotFound        ErrCode = "not found"
	ErrCodeNoMemory        ErrCode = "resource exhausted"
	ErrCodeProtocol        ErrCode = "protocol violation"
	ErrCodeTransport       ErrCode = "transport failure"
	ErrCodeStartup         ErrCode = "startup failure"
)

// NewError creates a new structured error with no errno attached.
func NewError(op string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a new structured error carrying a syscall
// errno, using the errno's own text as the message.
func NewErrorWithErrno(op string, code ErrCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// WrapError wraps inner with escrow context, mapping a bare syscall.Errno
// to its escrow error code via mapErrnoToCode. If inner is already an
// *Error, only its Op is updated.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ee, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: ee.Code, Errno: ee.Errno, Msg: ee.Msg, Inner: ee.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeTransport, Msg: inner.Error(), Inner: inner}
}

// rcToError translates a REP frame's negative rc into an *Error, for
// client-side callers that need the reply's errno as a Go error. A
// positive-or-zero rc is a programming error upstream (a REP carrying
// success should never reach this path).
func rcToError(op string, rc int16, descr string) *Error {
	errno := syscall.Errno(-rc)
	return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: descr}
}

func mapErrnoToCode(errno syscall.Errno) ErrCode {
	switch errno {
	case syscall.ENOENT:
		return ErrCodeNotFound
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidArgument
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeNoMemory
	case syscall.EPROTO:
		return ErrCodeProtocol
	default:
		return ErrCodeTransport
	}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsErrno reports whether err is an *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Errno == errno
	}
	return false
}
