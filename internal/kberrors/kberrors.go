// Package kberrors implements the closed error taxonomy shared by every
// component of the ingestion pipeline and retrieval engine. Errors carry a
// Kind so callers can branch on category without string matching, following
// the wrap-with-op style used throughout the persistence layer (see
// postgres_vector.go, s3.go: every boundary error is annotated with the
// operation that produced it, then wrapped with %w).
package kberrors

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories the service
// distinguishes.
type Kind string

const (
	NotFound           Kind = "not_found"
	UnsupportedMIME    Kind = "unsupported_mime"
	ValidationError    Kind = "validation_error"
	Cancelled          Kind = "cancelled"
	StorageError       Kind = "storage_error"
	EncodingError      Kind = "encoding_error"
	EmptyContent       Kind = "empty_content"
	EncryptedSource    Kind = "encrypted_source"
	InvalidSource      Kind = "invalid_source"
	ParseError         Kind = "parse_error"
	EmbeddingFailed    Kind = "embedding_failed"
	DatabaseError      Kind = "database_error"
	Stalled            Kind = "stalled"
	MaxRetriesExceeded Kind = "max_retries_exceeded"
	Timeout            Kind = "timeout"
	HandlerError       Kind = "handler_error"
	Unknown            Kind = "unknown"
)

// Error is the taxonomy's wrapping type: a Kind, the operation where it
// occurred, and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, kberrors.New(kberrors.NotFound, "", nil)) or, more
// idiomatically, kberrors.KindOf(err) == kberrors.NotFound.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an Error for the given kind and operation, wrapping cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Wrap annotates cause with op and kind, but leaves cause untouched if it is
// already a kberrors.Error — preserving the original Kind while prefixing
// the new operation, the same fmt.Errorf("%s: %w", op, err) chaining used
// elsewhere in the codebase, without losing the original classification.
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	var existing *Error
	if errors.As(cause, &existing) {
		return &Error{Kind: existing.Kind, Op: op + ": " + existing.Op, Err: existing.Err}
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the Kind of err, or Unknown if err is not (or does not
// wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
