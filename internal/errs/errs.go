// Package errs defines the typed error taxonomy shared by every stage of
// the fingerprinting pipeline, so that callers can branch with errors.As
// instead of matching on strings.
package errs

import (
	"fmt"

	"github.com/mdobak/go-xerrors"
)

// Kind classifies an error into one of the broad buckets the pipeline
// treats differently: input errors are skippable in batch mode, store
// errors are retried, internal errors are fatal.
type Kind int

const (
	KindInput Kind = iota
	KindSignal
	KindStore
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindSignal:
		return "signal"
	case KindStore:
		return "store"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across component boundaries.
// Code names the specific failure (ShortInput, InvalidAudio, ...) so
// callers can switch on it without parsing Msg.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps cause (if any) with a stack trace via go-xerrors and returns
// a typed Error ready to propagate up to the CLI boundary.
func New(kind Kind, code, msg string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = xerrors.New(cause)
	}
	return &Error{Kind: kind, Code: code, Msg: msg, Err: wrapped}
}

// Sentinel constructors for the failure modes named in the specification.
func ShortInput(cause error) *Error {
	return New(KindSignal, "ShortInput", "audio shorter than the STFT window", cause)
}

func InvalidAudio(cause error) *Error {
	return New(KindSignal, "InvalidAudio", "non-finite samples in audio", cause)
}

func NotFound(path string) *Error {
	return New(KindInput, "NotFound", "file not found: "+path, nil)
}

func UnsupportedFormat(path string) *Error {
	return New(KindInput, "UnsupportedFormat", "unrecognized audio extension: "+path, nil)
}

func DecodeFailed(cause error) *Error {
	return New(KindInput, "DecodeFailed", "audio decode failed", cause)
}

func StoreUnavailable(cause error) *Error {
	return New(KindStore, "StoreUnavailable", "backing store unavailable", cause)
}

func ParamsMismatch(msg string) *Error {
	return New(KindInternal, "ParamsMismatch", msg, nil)
}

func Internal(msg string, cause error) *Error {
	return New(KindInternal, "Internal", msg, cause)
}

// Is lets errors.Is match on Code in addition to pointer identity, since
// each call site constructs a fresh *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
