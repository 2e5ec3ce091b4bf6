package frag

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/fragkit/internal/format"
)

// Impl is the variant half of an allocator. The core calls these methods
// with the allocator's lock held (when it has one) and handles accounting,
// alignment defaults and failure reporting around them.
type Impl interface {
	// Alloc returns a block of exactly size bytes aligned to alignment,
	// plus the number of bytes charged to accounting for it. A non-nil
	// error means the request could not be served.
	Alloc(a *Allocator, size, alignment int, site Site) (block []byte, charged int, err error)

	// Free releases a block previously validated by Size.
	Free(a *Allocator, block []byte, site Site)

	// Size returns the charged size of a live block. It reports protocol
	// violations through a.Assert and returns ok=false for blocks that
	// are not live.
	Size(a *Allocator, block []byte) (size int, ok bool)

	// Shutdown releases variant state. It runs after the leak check.
	Shutdown(a *Allocator)
}

// Resizer is implemented by variants that can grow or shrink a live block
// in place. Realloc tries it before falling back to alloc, copy and free.
type Resizer interface {
	Resize(a *Allocator, block []byte, newSize, alignment int) (resized []byte, oldCharged, newCharged int, ok bool)
}

// Descriptor describes an allocator to Library.Create.
type Descriptor struct {
	// Name labels the allocator in stats, logs and leak reports.
	Name string

	// NeedsLock places a mutex in the control block and holds it around
	// every operation.
	NeedsLock bool

	// Impl is the variant implementation.
	Impl Impl

	// ImplSize reserves this many bytes of payload in the control block,
	// available to the variant through Allocator.Payload.
	ImplSize int
}

// Allocator is a handle to one allocator. The zero value is not usable;
// allocators come from Library.Init (system), Library.Create,
// Library.NewFixedStack and Library.NewGroup.
type Allocator struct {
	lib    *Library
	owner  *Allocator
	cb     controlBlock
	mu     *sync.Mutex
	impl   Impl
	debug  *debugTable
	closed atomic.Bool

	// Name and final stats, captured at shutdown because the control
	// block goes back to the owner.
	retiredName  string
	retiredStats Stats
}

// addrOf returns the address identifying a block. Zero-size blocks handed
// out by this package keep a capacity of at least one byte so each has a
// distinct address.
func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// Name returns the allocator's name as stored in its control block.
func (a *Allocator) Name() string {
	if a == nil {
		return "<nil>"
	}
	if a.closed.Load() {
		return a.retiredName
	}
	return a.cb.name()
}

func (a *Allocator) String() string {
	return fmt.Sprintf("allocator(%s)", a.Name())
}

// Owner returns the allocator that holds this allocator's control block.
// The system allocator has no owner.
func (a *Allocator) Owner() *Allocator {
	return a.owner
}

// Library returns the library this allocator belongs to.
func (a *Allocator) Library() *Library {
	return a.lib
}

// Locked reports whether operations on a are serialized by a mutex.
func (a *Allocator) Locked() bool {
	return a.mu != nil
}

// Payload returns the implementation region reserved by Descriptor.ImplSize.
func (a *Allocator) Payload() []byte {
	return a.cb.payload()
}

// Impl returns the variant implementation.
func (a *Allocator) Impl() Impl {
	return a.impl
}

// Assert reports a protocol violation through the library's assert handler
// when cond is false. It returns cond so callers can bail out.
func (a *Allocator) Assert(cond bool, expression, message string) bool {
	if cond {
		return true
	}
	a.lib.assertFailed(Caller(1), expression, fmt.Sprintf("%s (allocator=%s)", message, a.Name()))
	return false
}

func (a *Allocator) lock() {
	if a.mu != nil {
		a.mu.Lock()
	}
}

func (a *Allocator) unlock() {
	if a.mu != nil {
		a.mu.Unlock()
	}
}

// usable reports whether a can serve op, raising an assertion otherwise.
func (a *Allocator) usable(site Site, op string) bool {
	if a == nil {
		nilAllocator(site, op)
		return false
	}
	if a.closed.Load() {
		a.lib.assertFailed(site, "!allocator.closed", fmt.Sprintf("%s on destroyed allocator %s", op, a.Name()))
		return false
	}
	if !a.cb.valid() {
		a.lib.assertFailed(site, "control_block.magic == 'frag'", fmt.Sprintf("%s on allocator with a corrupt control block", op))
		return false
	}
	return true
}

// nilAllocator handles operations on a nil handle, which has no library
// to route through.
func nilAllocator(site Site, op string) {
	DefaultAssertHandler(newAssertionError(nil, site, "allocator != nil", op+" on nil allocator"))
}

// callerSite captures the caller of the public method that called it, but
// only when something will consume it.
func (a *Allocator) callerSite() Site {
	if a == nil || a.lib == nil || !a.lib.wantSites() {
		return Site{}
	}
	return Caller(2)
}

// resolveAlignment substitutes the default for 0 and validates the result.
func (a *Allocator) resolveAlignment(site Site, alignment int) (int, bool) {
	if alignment == 0 {
		alignment = a.lib.cfg.DefaultAlignment
	}
	if alignment < 0 || !format.IsPow2(uintptr(alignment)) {
		a.lib.assertFailed(site, "is_pow2(alignment)", fmt.Sprintf("alignment %d is not a power of 2 (allocator=%s)", alignment, a.Name()))
		return 0, false
	}
	return alignment, true
}

// Alloc allocates size bytes aligned to alignment (0 selects the default).
// On failure the out-of-memory handler runs and the returned error matches
// ErrOutOfMemory.
func (a *Allocator) Alloc(size, alignment int) ([]byte, error) {
	return a.AllocAt(a.callerSite(), size, alignment)
}

// AllocAt is Alloc with explicit call-site metadata.
func (a *Allocator) AllocAt(site Site, size, alignment int) ([]byte, error) {
	if !a.usable(site, "Alloc") {
		return nil, errUnusable(a, site)
	}
	if size < 0 {
		a.lib.assertFailed(site, "size >= 0", fmt.Sprintf("negative size %d (allocator=%s)", size, a.Name()))
		return nil, errUnusable(a, site)
	}
	alignment, ok := a.resolveAlignment(site, alignment)
	if !ok {
		return nil, errUnusable(a, site)
	}

	block, err := func() ([]byte, error) {
		a.lock()
		defer a.unlock()
		return a.allocLocked(site, size, alignment)
	}()
	if err != nil {
		return nil, a.reportFailure(err)
	}
	return block, nil
}

// AllocZero is Alloc followed by zero-filling the block.
func (a *Allocator) AllocZero(size, alignment int) ([]byte, error) {
	return a.AllocZeroAt(a.callerSite(), size, alignment)
}

// AllocZeroAt is AllocZero with explicit call-site metadata.
func (a *Allocator) AllocZeroAt(site Site, size, alignment int) ([]byte, error) {
	b, err := a.AllocAt(site, size, alignment)
	if err != nil {
		return nil, err
	}
	clear(b)
	return b, nil
}

// allocLocked runs the variant and records the result. Failures are
// returned unreported so the handler can run after the lock is released.
// A variant that already raised an assertion returns ErrInvalidRequest,
// which is passed through as is.
func (a *Allocator) allocLocked(site Site, size, alignment int) ([]byte, error) {
	block, charged, err := a.impl.Alloc(a, size, alignment, site)
	if errors.Is(err, ErrInvalidRequest) {
		return nil, err
	}
	if err != nil || block == nil {
		return nil, &OutOfMemoryError{Allocator: a.Name(), Size: size, Alignment: alignment, Site: site, cause: err}
	}
	a.record(block, charged, site)
	return block, nil
}

// reportFailure hands out-of-memory failures to the configured handler.
// Handlers run without the allocator's lock so they may inspect it.
func (a *Allocator) reportFailure(err error) error {
	oom, ok := err.(*OutOfMemoryError)
	if !ok {
		return err
	}
	if a.lib.logAlloc {
		a.lib.logger.Debug("alloc failed", "allocator", oom.Allocator, "size", oom.Size,
			"alignment", oom.Alignment, "site", oom.Site.String())
	}
	a.lib.cfg.ReportOutOfMemoryHandler(a, oom.Size, oom.Alignment, oom.Site)
	return oom
}

func (a *Allocator) record(block []byte, charged int, site Site) {
	a.cb.setStats(a.cb.stats().afterAlloc(charged))
	ptr := addrOf(block)
	if a.debug != nil {
		a.debug.insert(DebugAllocRecord{Ptr: ptr, Size: len(block), Site: site})
	}
	if a.lib.logAlloc {
		a.lib.logger.Debug("alloc", "allocator", a.Name(), "ptr", fmt.Sprintf("%#x", ptr),
			"size", len(block), "charged", charged, "site", site.String())
	}
}

// Free releases a block obtained from a. A nil block is a no-op.
func (a *Allocator) Free(block []byte) {
	if block == nil {
		return
	}
	a.FreeAt(a.callerSite(), block)
}

// FreeAt is Free with explicit call-site metadata.
func (a *Allocator) FreeAt(site Site, block []byte) {
	if block == nil {
		return
	}
	if !a.usable(site, "Free") {
		return
	}
	a.lock()
	defer a.unlock()
	a.freeLocked(site, block)
}

func (a *Allocator) freeLocked(site Site, block []byte) {
	charged, ok := a.impl.Size(a, block)
	if !ok {
		return
	}
	s := a.cb.stats()
	if !s.canFree(charged) {
		a.lib.assertFailed(site, "stats.Count > 0 && stats.Bytes >= size",
			fmt.Sprintf("free of %d bytes exceeds outstanding stats (allocator=%s, count=%d, bytes=%d)", charged, a.Name(), s.Count, s.Bytes))
		return
	}
	a.impl.Free(a, block, site)
	a.cb.setStats(s.afterFree(charged))

	ptr := addrOf(block)
	if a.debug != nil {
		a.debug.remove(ptr)
	}
	if a.lib.logAlloc {
		a.lib.logger.Debug("free", "allocator", a.Name(), "ptr", fmt.Sprintf("%#x", ptr),
			"charged", charged, "site", site.String())
	}
}

// Realloc resizes block to newSize bytes. A nil block behaves as Alloc; a
// newSize of 0 frees block and returns nil. Otherwise a new block is
// allocated, min(newSize, len(block)) bytes are copied and the old block is
// freed. On failure the old block is left untouched.
//
// On a fixed stack only the most recent block can be resized in place;
// reallocating any other block frees it out of order.
func (a *Allocator) Realloc(block []byte, newSize, alignment int) ([]byte, error) {
	return a.ReallocAt(a.callerSite(), block, newSize, alignment)
}

// ReallocAt is Realloc with explicit call-site metadata.
func (a *Allocator) ReallocAt(site Site, block []byte, newSize, alignment int) ([]byte, error) {
	if newSize == 0 {
		a.FreeAt(site, block)
		return nil, nil
	}
	if block == nil {
		return a.AllocAt(site, newSize, alignment)
	}
	if !a.usable(site, "Realloc") {
		return nil, errUnusable(a, site)
	}
	if newSize < 0 {
		a.lib.assertFailed(site, "newSize >= 0", fmt.Sprintf("negative size %d (allocator=%s)", newSize, a.Name()))
		return nil, errUnusable(a, site)
	}
	alignment, ok := a.resolveAlignment(site, alignment)
	if !ok {
		return nil, errUnusable(a, site)
	}

	out, err := func() ([]byte, error) {
		a.lock()
		defer a.unlock()
		return a.reallocLocked(site, block, newSize, alignment)
	}()
	if err != nil {
		return nil, a.reportFailure(err)
	}
	return out, nil
}

func (a *Allocator) reallocLocked(site Site, block []byte, newSize, alignment int) ([]byte, error) {
	if r, ok := a.impl.(Resizer); ok {
		if out, oldCharged, newCharged, resized := r.Resize(a, block, newSize, alignment); resized {
			a.cb.setStats(a.cb.stats().afterResize(oldCharged, newCharged))
			if a.debug != nil {
				a.debug.move(addrOf(block), addrOf(out), len(out))
			}
			return out, nil
		}
	}

	out, err := a.allocLocked(site, newSize, alignment)
	if err != nil {
		return nil, err
	}
	copy(out, block)
	a.freeLocked(site, block)
	return out, nil
}

// Size returns the charged size of a live block: what the variant counts
// in Stats.Bytes for it, which may exceed len(block).
func (a *Allocator) Size(block []byte) int {
	n, _ := a.sizeOf(a.callerSite(), block)
	return n
}

func (a *Allocator) sizeOf(site Site, block []byte) (int, bool) {
	if !a.usable(site, "Size") {
		return 0, false
	}
	a.lock()
	defer a.unlock()
	return a.impl.Size(a, block)
}

// Stats returns a snapshot of a's accounting.
func (a *Allocator) Stats() Stats {
	if a == nil {
		nilAllocator(Caller(1), "Stats")
		return Stats{}
	}
	if a.closed.Load() {
		return a.retiredStats
	}
	a.lock()
	defer a.unlock()
	return a.cb.stats()
}

// LiveAllocs returns the detailed records of live allocations, or nil when
// detailed leak reports are disabled.
func (a *Allocator) LiveAllocs() []DebugAllocRecord {
	if a == nil {
		nilAllocator(Caller(1), "LiveAllocs")
		return nil
	}
	a.lock()
	defer a.unlock()
	if a.debug == nil {
		return nil
	}
	return a.debug.snapshot()
}

// shutdown runs the leak check and the variant hook, then retires the lock.
// The control block itself is released by the caller.
func (a *Allocator) shutdown() {
	s := a.Stats()
	if s.Leaked() {
		report := LeakReport{Allocator: a.Name(), Stats: s, Allocs: a.LiveAllocs()}
		a.lib.cfg.ReportLeakHandler(a, report)
	}

	a.lock()
	defer a.unlock()
	a.impl.Shutdown(a)
	a.retiredName = a.cb.name()
	a.retiredStats = a.cb.stats()
	a.cb.setFlag(format.ControlFlagClosed)
	a.closed.Store(true)
}

func errUnusable(a *Allocator, site Site) error {
	return errors.Wrapf(ErrInvalidRequest, "allocator=%s at %s", a.Name(), site)
}
