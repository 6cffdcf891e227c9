package blink_tree

import (
	"sync"

	"github.com/ncw/directio"
)

// NeedSplit's prefix recompaction needs a full snapshot of a page's Data
// region to read old slot positions from while it overwrites them in
// place (§4.7, §9 Design Notes: "allocate from a per-thread arena, not the
// stack"). Allocating and zeroing a fresh slice on every call to a
// function in the hot insert path is wasteful; scratchPool recycles
// directio.AlignedBlock buffers sized to the page's Data length, aligned
// to the block size the host's storage would require if the page were
// ever flushed to a raw device.
var scratchPool = sync.Pool{
	New: func() any {
		return directio.AlignedBlock(directio.BlockSize)
	},
}

// acquireScratch returns a pooled buffer of at least n bytes. Buffers
// larger than one directio block size are allocated directly rather than
// pooled, since BlockSize comfortably covers ordinary page sizes but a
// caller configured with an unusually large PageSize should not be capped
// by it.
func acquireScratch(n int) []byte {
	buf := scratchPool.Get().([]byte)
	if len(buf) < n {
		return directio.AlignedBlock(n)
	}
	return buf[:n]
}

// releaseScratch returns a buffer obtained from acquireScratch to the
// pool. Oversized buffers that bypassed the pool are simply dropped.
func releaseScratch(buf []byte) {
	if len(buf) <= directio.BlockSize {
		scratchPool.Put(buf[:directio.BlockSize])
	}
}
