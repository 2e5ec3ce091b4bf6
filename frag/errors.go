package frag

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfMemory indicates an allocator could not satisfy a request.
	// Every capacity failure returned by this package matches it with errors.Is.
	ErrOutOfMemory = errors.New("frag: out of memory")

	// ErrStackFull indicates a fixed stack ran past the end of its buffer.
	ErrStackFull = errors.New("frag: fixed stack exhausted")

	// ErrPageMap indicates the platform refused to map pages for a large block.
	ErrPageMap = errors.New("frag: page mapping failed")

	// ErrInvalidRequest is returned by calls rejected after a protocol
	// violation was reported to the assert handler.
	ErrInvalidRequest = errors.New("frag: invalid request")

	// ErrRequestTooLarge indicates a request exceeded what the system heap will attempt.
	ErrRequestTooLarge = errors.New("frag: request exceeds system heap limit")
)

// AssertionError describes a protocol violation reported through
// Config.AssertHandler.
type AssertionError struct {
	Site       Site
	Expression string
	Message    string

	cause  error
	logger *slog.Logger
}

func newAssertionError(logger *slog.Logger, site Site, expr, msg string) *AssertionError {
	return &AssertionError{
		Site:       site,
		Expression: expr,
		Message:    msg,
		cause:      errors.AssertionFailedf("%s: %s", expr, msg),
		logger:     logger,
	}
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("frag: assertion failed: %s (%s) at %s", e.Message, e.Expression, e.Site)
}

// Unwrap exposes the underlying assertion failure so errors.HasAssertionFailure
// from github.com/cockroachdb/errors recognizes it.
func (e *AssertionError) Unwrap() error { return e.cause }

// OutOfMemoryError is returned by allocation calls that could not be served.
type OutOfMemoryError struct {
	Allocator string
	Size      int
	Alignment int
	Site      Site

	cause error
}

func (e *OutOfMemoryError) Error() string {
	msg := fmt.Sprintf("frag: out of memory: allocator=%s size=%d alignment=%d", e.Allocator, e.Size, e.Alignment)
	if e.cause != nil && !errors.Is(e.cause, ErrOutOfMemory) {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Is makes every OutOfMemoryError match ErrOutOfMemory.
func (e *OutOfMemoryError) Is(target error) bool { return target == ErrOutOfMemory }

func (e *OutOfMemoryError) Unwrap() error { return e.cause }
