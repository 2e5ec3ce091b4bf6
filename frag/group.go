package frag

// groupImpl forwards every request to a delegate allocator so the group's
// own stats label a share of the delegate's traffic.
type groupImpl struct {
	delegate *Allocator
}

// NewGroup creates a group allocator that serves every request from
// delegate. Its control block is allocated from owner, which need not be
// the delegate. Destroying the group leaves the delegate untouched.
//
// When both are locked, the group's lock is always taken before the
// delegate's. A caller holding the delegate busy while calling into the
// group from the same goroutine is not supported.
func (l *Library) NewGroup(owner *Allocator, name string, needsLock bool, delegate *Allocator) (*Allocator, error) {
	site := Caller(1)
	if delegate == nil {
		l.assertFailed(site, "delegate != nil", "group "+name+" created with nil delegate")
		return nil, errUnusable(owner, site)
	}
	if delegate.lib != l {
		l.assertFailed(site, "delegate.library == library", "group "+name+" delegate belongs to another library")
		return nil, errUnusable(owner, site)
	}
	return l.create(site, owner, Descriptor{
		Name:      name,
		NeedsLock: needsLock,
		Impl:      &groupImpl{delegate: delegate},
	}, 0)
}

// Delegate returns the allocator a group forwards to, or nil when a is not
// a group.
func (a *Allocator) Delegate() *Allocator {
	if g, ok := a.Impl().(*groupImpl); ok {
		return g.delegate
	}
	return nil
}

func (g *groupImpl) Alloc(a *Allocator, size, alignment int, site Site) ([]byte, int, error) {
	block, err := g.delegate.AllocAt(site, size, alignment)
	if err != nil {
		return nil, 0, err
	}
	charged, ok := g.delegate.sizeOf(site, block)
	if !ok {
		g.delegate.FreeAt(site, block)
		return nil, 0, errUnusable(g.delegate, site)
	}
	return block, charged, nil
}

func (g *groupImpl) Free(a *Allocator, block []byte, site Site) {
	g.delegate.FreeAt(site, block)
}

func (g *groupImpl) Size(a *Allocator, block []byte) (int, bool) {
	return g.delegate.sizeOf(Site{}, block)
}

func (g *groupImpl) Shutdown(a *Allocator) {}
