// Package testutil provides handlers and helpers shared by the allocator
// tests.
package testutil

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fragkit/frag"
)

// Kind identifies which handler fired.
type Kind string

const (
	KindAssert      Kind = "assert"
	KindLeak        Kind = "leak"
	KindOutOfMemory Kind = "out-of-memory"
)

// Tripped is the panic value raised by a Trap's handlers.
type Tripped struct {
	Kind    Kind
	Message string
}

// OutOfMemoryReport is one recorded out-of-memory call.
type OutOfMemoryReport struct {
	Allocator string
	Size      int
	Alignment int
	Site      frag.Site
}

// Trap installs recording handlers on a library config. When Panic is set
// (the default from NewTrap) every handler panics with *Tripped after
// recording, standing in for a throwing assert handler; otherwise handlers
// record and return.
type Trap struct {
	Panic bool

	mu      sync.Mutex
	asserts []*frag.AssertionError
	leaks   []frag.LeakReport
	ooms    []OutOfMemoryReport
}

// NewTrap returns a Trap whose handlers panic.
func NewTrap() *Trap {
	return &Trap{Panic: true}
}

// Config returns a config with the trap's handlers and a discarding logger.
func (t *Trap) Config() *frag.Config {
	cfg := frag.DefaultConfig()
	cfg.AssertHandler = t.assert
	cfg.ReportLeakHandler = t.leak
	cfg.ReportOutOfMemoryHandler = t.outOfMemory
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func (t *Trap) assert(failure *frag.AssertionError) {
	t.mu.Lock()
	t.asserts = append(t.asserts, failure)
	t.mu.Unlock()
	t.trip(KindAssert, failure.Message)
}

func (t *Trap) leak(a *frag.Allocator, report frag.LeakReport) {
	t.mu.Lock()
	t.leaks = append(t.leaks, report)
	t.mu.Unlock()
	t.trip(KindLeak, report.String())
}

func (t *Trap) outOfMemory(a *frag.Allocator, size, alignment int, site frag.Site) {
	t.mu.Lock()
	t.ooms = append(t.ooms, OutOfMemoryReport{Allocator: a.Name(), Size: size, Alignment: alignment, Site: site})
	t.mu.Unlock()
	t.trip(KindOutOfMemory, a.Name())
}

func (t *Trap) trip(kind Kind, msg string) {
	if t.Panic {
		panic(&Tripped{Kind: kind, Message: msg})
	}
}

// Asserts returns the recorded assertion failures.
func (t *Trap) Asserts() []*frag.AssertionError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*frag.AssertionError(nil), t.asserts...)
}

// Leaks returns the recorded leak reports.
func (t *Trap) Leaks() []frag.LeakReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]frag.LeakReport(nil), t.leaks...)
}

// OutOfMemory returns the recorded out-of-memory reports.
func (t *Trap) OutOfMemory() []OutOfMemoryReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]OutOfMemoryReport(nil), t.ooms...)
}

// Reset forgets everything recorded so far.
func (t *Trap) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.asserts, t.leaks, t.ooms = nil, nil, nil
}

// Expect runs fn and requires it to trip a handler of the given kind.
//
// Example:
//
//	trap.Expect(t, testutil.KindAssert, func() { stack.Free(first) })
func (t *Trap) Expect(tb testing.TB, kind Kind, fn func()) *Tripped {
	tb.Helper()
	var got *Tripped
	func() {
		defer func() {
			r := recover()
			require.NotNil(tb, r, "expected %s handler to fire", kind)
			tr, ok := r.(*Tripped)
			require.True(tb, ok, "unexpected panic: %v", r)
			got = tr
		}()
		fn()
	}()
	require.Equal(tb, kind, got.Kind, "wrong handler fired: %s", got.Message)
	return got
}

// NewLibrary initializes a library with a panicking trap and shuts it down
// when the test ends.
//
// Example:
//
//	lib, trap := testutil.NewLibrary(t, nil)
//	sys := lib.System()
func NewLibrary(tb testing.TB, tweak func(*frag.Config)) (*frag.Library, *Trap) {
	tb.Helper()
	trap := NewTrap()
	cfg := trap.Config()
	if tweak != nil {
		tweak(cfg)
	}
	lib := frag.New(cfg)
	tb.Cleanup(func() {
		if lib.Active() {
			lib.Shutdown()
		}
	})
	return lib, trap
}
