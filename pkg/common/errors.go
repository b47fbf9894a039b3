package common

import (
	"github.com/pkg/errors"
)

// ErrorKind classifies failures so periodic tasks and the HTTP layer
// can apply their propagation policies without string matching.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindTransientIO
	KindInvariant
	KindFatal
)

type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

func wrapKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// ValidationError marks malformed caller input. No state is mutated.
func ValidationError(format string, args ...interface{}) error {
	return wrapKind(KindValidation, errors.Errorf(format, args...))
}

// NotFoundError marks a missing entity by id.
func NotFoundError(format string, args ...interface{}) error {
	return wrapKind(KindNotFound, errors.Errorf(format, args...))
}

// TransientError wraps a retryable I/O failure (store busy, sampler timeout).
func TransientError(err error, msg string) error {
	return wrapKind(KindTransientIO, errors.Wrap(err, msg))
}

// InvariantError marks a detected internal violation. The current unit
// of work is aborted; the owning task keeps running.
func InvariantError(format string, args ...interface{}) error {
	return wrapKind(KindInvariant, errors.Errorf(format, args...))
}

// FatalError wraps an unrecoverable startup failure.
func FatalError(err error, msg string) error {
	return wrapKind(KindFatal, errors.Wrap(err, msg))
}

// Kind extracts the classification of err, walking the wrap chain.
func Kind(err error) ErrorKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

func IsValidation(err error) bool { return Kind(err) == KindValidation }
func IsNotFound(err error) bool   { return Kind(err) == KindNotFound }
func IsTransient(err error) bool  { return Kind(err) == KindTransientIO }
func IsInvariant(err error) bool  { return Kind(err) == KindInvariant }
