package bridge

import (
	"context"
	"errors"
)

// ErrorKind is the failure class reported back to clients.
type ErrorKind string

const (
	KindDecode        ErrorKind = "decode-error"
	KindEncoding      ErrorKind = "encoding-error"
	KindSubmission    ErrorKind = "submission-failed"
	KindConfiguration ErrorKind = "configuration-error"
	KindTimeout       ErrorKind = "timeout"
	KindUnrecognized  ErrorKind = "unrecognized-command"
)

// Error carries a failure class, the operation or field that failed, and the cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind) + ": " + e.Op
	}
	return string(e.Kind) + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func DecodeError(op string, err error) *Error        { return newError(KindDecode, op, err) }
func EncodingError(op string, err error) *Error      { return newError(KindEncoding, op, err) }
func ConfigurationError(op string, err error) *Error { return newError(KindConfiguration, op, err) }
func UnrecognizedError(op string) *Error             { return newError(KindUnrecognized, op, nil) }

// SubmissionError wraps a ledger-side failure. A deadline anywhere in the
// chain is reported as a timeout instead.
func SubmissionError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, op, err)
	}
	return newError(KindSubmission, op, err)
}

// KindOf classifies err. Unclassified errors count as submission failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindSubmission
}
