package blink_tree

import (
	"fmt"
	"os"
)

// Uid is the page identifier type: an opaque handle into the storage
// namespace, wide enough to embed directly in a KeySlice.
type Uid uint64

const (
	BtMaxBits = 24             // maximum page size in bits
	BtMinBits = 9              // minimum page size in bits
	BtMinPage = 1 << BtMinBits // minimum page size
	BtMaxPage = 1 << BtMaxBits // maximum page size

	// PageByte is the width, in bytes, of the child-page-id field embedded
	// in every KeySlice. Fixed at 8 because Uid is a uint64; the original
	// Mushroom source leaves this at 4 or 8 depending on deployment, and
	// since we never need to save the 4 bytes a narrower field would, we
	// keep the full width.
	PageByte = 8

	ClockBit = uint32(0x8000) // pin-count bit marking a latch as clock-visited

	RootPage = Uid(1) // first page number BufMgr allocates; holds the tree's initial root

	DECREMENT = ^uint32(0) // used with atomic.AddUint32 to decrement
)

// PageType distinguishes a page's role in the tree.
type PageType uint8

const (
	Leaf PageType = iota
	Branch
	Root
)

func (t PageType) String() string {
	switch t {
	case Leaf:
		return "leaf"
	case Branch:
		return "branch"
	case Root:
		return "root"
	default:
		return "unknown"
	}
}

// errPrintf reports an operator-visible diagnostic, matching the
// teacher's plain stderr logging style for pool- and latch-level
// conditions that are not failures the caller needs to handle.
func errPrintf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format, a...)
}
