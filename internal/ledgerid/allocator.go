package ledgerid

import "sync/atomic"

// Allocator hands out fresh, strictly increasing 128-bit identifiers,
// generalizing the teacher's sequential int32 primary-key generation
// (`nextval` on a serial column) to a 128-bit value: the low 64 bits are a
// process-local atomic counter and the high 64 bits are always zero. The
// zero value is ready to use.
type Allocator struct {
	counter uint64
}

// Next returns the next ID in allocation order, never the zero value and
// never repeated for the lifetime of this Allocator.
func (a *Allocator) Next() ID {
	n := atomic.AddUint64(&a.counter, 1)
	return ID{hi: 0, lo: n}
}
