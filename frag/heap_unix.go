//go:build unix

package frag

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/joshuapare/fragkit/internal/format"
)

const pagesSupported = true

func pageSize() int {
	return unix.Getpagesize()
}

// mapPages maps n bytes of anonymous memory aligned to alignment. Mappings
// are page aligned; larger alignments over-map and slice.
func mapPages(n, alignment, page int) (backing, block []byte, err error) {
	extra := 0
	if alignment > page {
		extra = alignment - page
	}
	backing, err = unix.Mmap(-1, 0, n+extra, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrapf(err, "mmap %d bytes", n+extra), ErrPageMap)
	}
	addr := addrOf(backing)
	shift := int(format.AlignUp(addr, uintptr(alignment)) - addr)
	return backing, backing[shift : shift+n : shift+n], nil
}

func unmapPages(backing []byte) error {
	if err := unix.Munmap(backing); err != nil {
		return errors.Mark(errors.Wrap(err, "munmap"), ErrPageMap)
	}
	return nil
}
