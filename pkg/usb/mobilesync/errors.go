package mobilesync

import (
	"errors"
	"fmt"
)

// Code is a mobilesync status code as returned by the native layer.
type Code int

const (
	Success        Code = 0
	InvalidArg     Code = -1
	PlistError     Code = -2
	MuxError       Code = -3
	SSLError       Code = -4
	ReceiveTimeout Code = -5
	BadVersion     Code = -6
	SyncRefused    Code = -7
	Cancelled      Code = -8
	WrongDirection Code = -9
	NotReady       Code = -10
	UnknownError   Code = -256
)

var codeNames = map[Code]string{
	Success:        "success",
	InvalidArg:     "invalid argument",
	PlistError:     "plist error",
	MuxError:       "usbmux error",
	SSLError:       "ssl error",
	ReceiveTimeout: "receive timeout",
	BadVersion:     "bad version",
	SyncRefused:    "sync refused",
	Cancelled:      "cancelled",
	WrongDirection: "wrong direction",
	NotReady:       "not ready",
	UnknownError:   "unknown error",
}

// CodeOf maps a raw native status to a Code. Values outside the known set
// become UnknownError.
func CodeOf(v int) Code {
	if _, ok := codeNames[Code(v)]; ok {
		return Code(v)
	}
	return UnknownError
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is a failed mobilesync operation.
type Error struct {
	Op   string
	Code Code
	// Description is the diagnostic text supplied by the native layer, if any.
	Description string
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("mobilesync %s: %s (%d): %s", e.Op, e.Code, int(e.Code), e.Description)
	}
	return fmt.Sprintf("mobilesync %s: %s (%d)", e.Op, e.Code, int(e.Code))
}

// Is reports whether target is an *Error with the same Code, so callers can
// match with errors.Is(err, mobilesync.ErrSyncRefused).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Code == e.Code
}

var (
	ErrInvalidArg     = &Error{Code: InvalidArg}
	ErrPlist          = &Error{Code: PlistError}
	ErrMux            = &Error{Code: MuxError}
	ErrSSL            = &Error{Code: SSLError}
	ErrReceiveTimeout = &Error{Code: ReceiveTimeout}
	ErrBadVersion     = &Error{Code: BadVersion}
	ErrSyncRefused    = &Error{Code: SyncRefused}
	ErrCancelled      = &Error{Code: Cancelled}
	ErrWrongDirection = &Error{Code: WrongDirection}
	ErrNotReady       = &Error{Code: NotReady}
	ErrUnknown        = &Error{Code: UnknownError}
)

// ErrClosed is returned by every operation on a Client after Close.
var ErrClosed = errors.New("mobilesync: client is closed")

func check(op string, code Code) error {
	if code == Success {
		return nil
	}
	return &Error{Op: op, Code: code}
}
