package frag

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joshuapare/fragkit/internal/format"
)

// AssertHandler receives protocol violations: out-of-order frees, foreign
// pointers, invalid arguments, double Init. Returning normally lets the
// failing operation give up without touching allocator state.
type AssertHandler func(failure *AssertionError)

// ReportLeakHandler receives the outstanding allocations of an allocator
// that was destroyed or shut down with live blocks.
type ReportLeakHandler func(a *Allocator, report LeakReport)

// ReportOutOfMemoryHandler receives every failed allocation. Returning
// normally makes the allocation call return an error matching ErrOutOfMemory.
type ReportOutOfMemoryHandler func(a *Allocator, size, alignment int, site Site)

// Config configures a Library. It is copied by Library.Init and read-only
// afterwards.
type Config struct {
	// AssertHandler is invoked for protocol violations.
	// Default: DefaultAssertHandler (logs, then panics).
	AssertHandler AssertHandler

	// ReportLeakHandler is invoked when an allocator is torn down with live
	// allocations.
	// Default: DefaultReportLeakHandler (routes to the assert handler).
	ReportLeakHandler ReportLeakHandler

	// ReportOutOfMemoryHandler is invoked when an allocation fails.
	// Default: DefaultReportOutOfMemoryHandler (routes to the assert handler).
	ReportOutOfMemoryHandler ReportOutOfMemoryHandler

	// DefaultAlignment replaces an alignment of 0. Must be a power of two.
	// Default: 16
	DefaultAlignment int

	// EnableDetailedLeakReports records the call site of every live
	// allocation so leak reports can list them.
	// Default: false
	EnableDetailedLeakReports bool

	// Logger receives lifecycle records and the default handlers' output.
	// Default: text handler on stderr
	Logger *slog.Logger
}

// DefaultConfig returns a Config populated with the default handlers and values.
func DefaultConfig() *Config {
	cfg := &Config{}
	ConfigInit(cfg)
	return cfg
}

// ConfigInit overwrites cfg with the defaults: handlers that log and then
// panic, DefaultAlignment 16, detailed leak reports off, stderr logger.
func ConfigInit(cfg *Config) {
	if cfg == nil {
		return
	}
	*cfg = Config{
		AssertHandler:             DefaultAssertHandler,
		ReportLeakHandler:         DefaultReportLeakHandler,
		ReportOutOfMemoryHandler:  DefaultReportOutOfMemoryHandler,
		DefaultAlignment:          format.DefaultAlignment,
		EnableDetailedLeakReports: false,
		Logger:                    defaultLogger(),
	}
}

// withDefaults fills every zero-valued field of c with its default.
func (c Config) withDefaults() Config {
	if c.AssertHandler == nil {
		c.AssertHandler = DefaultAssertHandler
	}
	if c.ReportLeakHandler == nil {
		c.ReportLeakHandler = DefaultReportLeakHandler
	}
	if c.ReportOutOfMemoryHandler == nil {
		c.ReportOutOfMemoryHandler = DefaultReportOutOfMemoryHandler
	}
	if c.DefaultAlignment == 0 {
		c.DefaultAlignment = format.DefaultAlignment
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	return c
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// DefaultAssertHandler logs the failure and panics with it.
func DefaultAssertHandler(failure *AssertionError) {
	logger := failure.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("ASSERT FAILURE",
		"expression", failure.Expression,
		"message", failure.Message,
		"file", failure.Site.File,
		"line", failure.Site.Line,
		"func", failure.Site.Func,
	)
	panic(failure)
}

// DefaultReportLeakHandler logs the report as JSON and raises an assertion
// failure naming the allocator.
func DefaultReportLeakHandler(a *Allocator, report LeakReport) {
	lib := a.lib
	if raw, err := report.MarshalJSON(); err == nil {
		lib.logger.Error("leak detected", "allocator", report.Allocator, "report", string(raw))
	}
	lib.assertFailed(Site{}, "stats.Count == 0",
		fmt.Sprintf("leak detected. allocator=%s, count=%d, size=%d", report.Allocator, report.Stats.Count, report.Stats.Bytes))
}

// DefaultReportOutOfMemoryHandler raises an assertion failure.
func DefaultReportOutOfMemoryHandler(a *Allocator, size, alignment int, site Site) {
	a.lib.assertFailed(site, "block != nil",
		fmt.Sprintf("out of memory. allocator=%s, size=%d, alignment=%d", a.Name(), size, alignment))
}
