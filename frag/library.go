package frag

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/joshuapare/fragkit/internal/format"
)

// Per-operation allocation logging, controlled by the FRAG_LOG_ALLOC env var.
var logAllocEnv = os.Getenv("FRAG_LOG_ALLOC") != ""

// systemName names every library's root allocator.
const systemName = "system"

// systemWords sizes the in-library backing array for the system allocator's
// control block: header, lock, name and terminator, rounded up to words.
const systemWords = (format.ControlHeaderSize + lockSize + len(systemName) + format.NameTerminatorSize + format.WordAlignmentMask) / 8

// Library holds the process-wide state of one allocator hierarchy: the
// configuration and the system allocator at its root. Most programs use a
// single Library; tests create as many as they need.
//
// A Library cycles Init, use, Shutdown. It can be initialized again after
// shutdown.
type Library struct {
	mu     sync.Mutex
	active bool

	cfg      Config
	logger   *slog.Logger
	logAlloc bool

	system *Allocator
	heap   *systemHeap

	// systemMem backs the system allocator's control block. uint64 words
	// keep it 8-byte aligned.
	systemMem [systemWords]uint64
}

// New returns an initialized Library. cfg may be nil for the defaults.
func New(cfg *Config) *Library {
	l := &Library{}
	l.Init(cfg)
	return l
}

// Init copies cfg (nil selects DefaultConfig) and creates the system
// allocator. Zero-valued fields are replaced by their defaults. Calling Init
// on an active library is an assertion failure.
func (l *Library) Init(cfg *Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var c Config
	if cfg != nil {
		c = *cfg
	}
	c = c.withDefaults()

	if l.active {
		l.assertWith(c, Caller(1), "!library.active", "library initialized twice")
		return
	}
	if c.DefaultAlignment < 0 || !format.IsPow2(uintptr(c.DefaultAlignment)) {
		l.assertWith(c, Caller(1), "is_pow2(default_alignment)",
			fmt.Sprintf("default alignment %d is not a power of 2", c.DefaultAlignment))
		return
	}

	l.cfg = c
	l.logger = c.Logger
	l.logAlloc = logAllocEnv
	l.heap = newSystemHeap()

	mem := unsafe.Slice((*byte)(unsafe.Pointer(&l.systemMem[0])), len(l.systemMem)*8)
	size, _ := controlSize(len(systemName), true, 0)
	cb, mu, ok := buildControlBlock(mem[:size:size], []byte(systemName), true, 0, format.ControlFlagSystem)
	if !ok {
		l.assertWith(c, Caller(1), "control_block_valid", "could not lay out the system allocator")
		return
	}
	l.system = &Allocator{lib: l, cb: cb, mu: mu, impl: systemImpl{heap: l.heap}}
	if c.EnableDetailedLeakReports {
		l.system.debug = newDebugTable()
	}
	l.active = true

	l.logger.Debug("library initialized",
		"default_alignment", c.DefaultAlignment,
		"detailed_leak_reports", c.EnableDetailedLeakReports,
		"log_alloc", l.logAlloc)
}

// Shutdown tears down the system allocator, reporting any blocks still live
// on it. Calling Shutdown on an inactive library is an assertion failure.
func (l *Library) Shutdown() {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		l.assertFailed(Caller(1), "library.active", "shutdown of a library that is not initialized")
		return
	}
	sys := l.system
	l.active = false
	l.mu.Unlock()

	// Leak handlers may panic; the library is already inactive by then.
	sys.shutdown()
	s := sys.Stats()

	l.mu.Lock()
	l.system = nil
	l.heap = nil
	l.mu.Unlock()
	l.logger.Debug("library shut down", "bytes_peak", s.BytesPeak, "count_peak", s.CountPeak)
}

// Active reports whether the library is between Init and Shutdown.
func (l *Library) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// System returns the root allocator, or nil if the library is not active.
func (l *Library) System() *Allocator {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.system
}

// Config returns a copy of the active configuration.
func (l *Library) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Logger returns the library's logger.
func (l *Library) Logger() *slog.Logger {
	if l.logger == nil {
		return defaultLogger()
	}
	return l.logger
}

func (l *Library) wantSites() bool {
	return l.cfg.EnableDetailedLeakReports || l.logAlloc
}

// assertFailed routes a violation to the configured assert handler.
func (l *Library) assertFailed(site Site, expression, message string) {
	l.assertWith(l.cfg, site, expression, message)
}

func (l *Library) assertWith(c Config, site Site, expression, message string) {
	handler := c.AssertHandler
	if handler == nil {
		handler = DefaultAssertHandler
	}
	handler(newAssertionError(c.Logger, site, expression, message))
}

// Create allocates a control block for desc from owner and returns the new
// allocator. The block is charged to owner like any other allocation. It
// returns an error matching ErrOutOfMemory when owner cannot serve it.
func (l *Library) Create(owner *Allocator, desc Descriptor) (*Allocator, error) {
	return l.create(Caller(1), owner, desc, 0)
}

func (l *Library) create(site Site, owner *Allocator, desc Descriptor, flags uint32) (*Allocator, error) {
	switch {
	case owner == nil:
		l.assertFailed(site, "owner != nil", "create with nil owner")
		return nil, errUnusable(nil, site)
	case owner.lib != l:
		l.assertFailed(site, "owner.library == library", fmt.Sprintf("owner %s belongs to another library", owner.Name()))
		return nil, errUnusable(owner, site)
	case desc.Impl == nil:
		l.assertFailed(site, "desc.impl != nil", fmt.Sprintf("create %q with nil implementation", desc.Name))
		return nil, errUnusable(owner, site)
	case desc.Name == "":
		l.assertFailed(site, "desc.name != \"\"", "create with empty name")
		return nil, errUnusable(owner, site)
	case desc.ImplSize < 0:
		l.assertFailed(site, "desc.impl_size >= 0", fmt.Sprintf("create %q with negative impl size", desc.Name))
		return nil, errUnusable(owner, site)
	}

	name := encodeName(desc.Name)
	size, ok := controlSize(len(name), desc.NeedsLock, desc.ImplSize)
	if !ok {
		l.assertFailed(site, "control_size_fits", fmt.Sprintf("control block for %q overflows", desc.Name))
		return nil, errUnusable(owner, site)
	}

	alignment := max(l.cfg.DefaultAlignment, controlAlignment)
	block, err := owner.AllocAt(site, size, alignment)
	if err != nil {
		return nil, err
	}

	cb, mu, ok := buildControlBlock(block, name, desc.NeedsLock, desc.ImplSize, flags)
	if !ok {
		owner.FreeAt(site, block)
		l.assertFailed(site, "control_block_valid", fmt.Sprintf("could not lay out control block for %q", desc.Name))
		return nil, errUnusable(owner, site)
	}

	a := &Allocator{lib: l, owner: owner, cb: cb, mu: mu, impl: desc.Impl}
	if l.cfg.EnableDetailedLeakReports {
		a.debug = newDebugTable()
	}
	l.logger.Debug("allocator created",
		"allocator", a.Name(),
		"owner", owner.Name(),
		"control_size", size,
		"locked", desc.NeedsLock)
	return a, nil
}

// Destroy tears down a and returns its control block to owner. Live blocks
// on a are reported to the leak handler first. Either argument nil is a
// no-op. After Destroy every operation on a is an assertion failure.
func (l *Library) Destroy(owner, a *Allocator) {
	if owner == nil || a == nil {
		return
	}
	site := Caller(1)
	if a.closed.Load() {
		l.assertFailed(site, "!allocator.closed", fmt.Sprintf("allocator %s destroyed twice", a.Name()))
		return
	}
	if a.owner != owner {
		l.assertFailed(site, "allocator.owner == owner",
			fmt.Sprintf("allocator %s is owned by %s, not %s", a.Name(), a.owner.Name(), owner.Name()))
		return
	}

	a.shutdown()
	owner.FreeAt(site, []byte(a.cb))
	l.logger.Debug("allocator destroyed", "allocator", a.Name(), "owner", owner.Name())
}
