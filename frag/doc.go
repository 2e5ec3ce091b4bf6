// Package frag provides composable memory allocators that share one
// polymorphic interface, can be nested, and uniformly provide allocation
// accounting and leak detection.
//
// # Overview
//
// Every allocator is an *Allocator handle backed by an Impl (the variant) and
// a control block. The control block is a single allocation obtained from
// the allocator's owner and holds, contiguously:
//
//	[ header (stats, flags) | lock (optional) | implementation payload | name | NUL ]
//
// Because the control block comes from the owner, the owner's stats account
// for every allocator it hosts. Owners form a tree rooted at the system
// allocator, which is created by Library.Init from storage inside the
// Library itself and has no owner.
//
// # Variants
//
// System: backed by the platform heap. Small requests are rounded up to a
// power-of-two size class and served from the Go heap; large requests on
// unix are served from anonymous page mappings. Size reports the usable size,
// which may exceed the request, and that usable size is what gets counted.
//
// FixedStack: a bump allocator over a caller-supplied buffer. Each block is
// preceded by an 8-byte header recording the alignment padding and the
// requested size. Blocks must be released in strict last-in-first-out order;
// freeing anything but the most recent live block triggers the assertion
// handler and leaves the stack untouched.
//
// Group: a named, independently accounted view over a delegate allocator.
// Every operation is forwarded to the delegate through its public dispatch,
// so both the group and the delegate account for the same memory.
//
// Custom variants implement Impl and are registered with Library.Create.
//
// # Usage Example
//
//	lib := frag.New(nil) // default config
//	defer lib.Shutdown()
//
//	buf := make([]byte, 4096)
//	stack, err := lib.NewFixedStack(lib.System(), "scratch", false, buf)
//	if err != nil {
//	    return err
//	}
//	defer lib.Destroy(lib.System(), stack)
//
//	a, _ := stack.Alloc(64, 16)
//	b, _ := stack.Alloc(128, 0) // 0 selects Config.DefaultAlignment
//	stack.Free(b)
//	stack.Free(a)
//
// # Failure Reporting
//
// Capacity exhaustion is returned as an error matching ErrOutOfMemory and is
// also reported to Config.ReportOutOfMemoryHandler. Protocol violations
// (out-of-order frees, foreign pointers, invalid alignment, double Init) are
// programmer errors: they go to Config.AssertHandler. If a custom handler
// returns, the call fails with ErrInvalidRequest and the allocator is left
// untouched. Outstanding allocations at Destroy or Shutdown go to
// Config.ReportLeakHandler. The default handlers log through the configured
// slog.Logger and then panic.
//
// # Thread Safety
//
// An allocator created with needsLock holds a mutex for the full duration of
// every operation. Allocators without a lock must be confined to one
// goroutine or synchronized externally. A group's lock is always taken
// before its delegate's lock, never the reverse.
//
// # Debugging
//
// Config.EnableDetailedLeakReports records the call site of every live
// allocation so leak reports can list them. Setting FRAG_LOG_ALLOC in the
// environment logs every alloc and free at debug level.
package frag
