package blink_tree

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// HeaderSize is the on-page byte width of PageHeader: PageNo (8) + First
// (8) + TotalKey (2) + Degree (2) + Typ (1) + KeyLen (1) + Level (1) +
// PreLen (1) = 24 bytes (§3.2.1).
const HeaderSize = 24

// pageSize is the process-global page byte size, set exactly once via
// SetPageInfo before any page is Initialized (§6).
var pageSize uint32

// SetPageInfo configures the process-wide page size. It must be called
// before Initialize and must not be called again afterward; like the
// teacher's Page::SetPageInfo, this is a one-shot configuration knob, not
// a per-page setting.
func SetPageInfo(size uint32) {
	if size < HeaderSize+2+PageByte+1 {
		panic("blink_tree: page size too small to hold a header, one slot and one directory entry")
	}
	pageSize = size
}

// CalculateDegree returns the maximum number of keys a page can hold at
// the given (keyLen, preLen) configuration, for the currently configured
// PageSize (§4.1).
func CalculateDegree(keyLen, preLen uint8) uint16 {
	dataLen := int(pageSize) - HeaderSize
	avail := dataLen - int(preLen)
	if avail <= 0 {
		return 0
	}
	slotUnit := PageByte + int(keyLen) + 2 // +2: one directory entry per slot
	return uint16(avail / slotUnit)
}

// PageHeader is the fixed-layout header of every page (§3.2.1).
type PageHeader struct {
	PageNo   Uid      // this page's identity
	First    Uid      // fallback child for descents left of the first key
	TotalKey uint16   // count of live keys
	Degree   uint16   // target fan-out
	Typ      PageType // LEAF, BRANCH or ROOT
	KeyLen   uint8    // payload width after prefix stripping
	Level    uint8    // 0 for leaves, increasing toward the root
	PreLen   uint8    // length of the inline common prefix
}

// Page is a fixed-size byte region: a typed header plus a raw Data region
// holding, from low to high address, the prefix bytes, the packed key
// slots (growing up), and the slot directory (growing down from the tail
// of Data). Data is sized PageSize-HeaderSize and never reallocated across
// a page's lifetime; all mutation happens through byte-offset arithmetic
// into it, mirroring the dual-ended layout of the original C++ source
// this engine was ported from (original_source/src/page.cpp).
type Page struct {
	PageHeader
	Data []byte
}

// Initialize zeroes the page's region and installs its identity. Must be
// called exactly once per page before any other operation (§3.2 Lifecycle).
func Initialize(pageNo Uid, typ PageType, keyLen uint8, level uint8, degree uint16) *Page {
	if pageSize == 0 {
		panic("blink_tree: SetPageInfo must be called before Initialize")
	}
	p := &Page{
		Data: make([]byte, int(pageSize)-HeaderSize),
	}
	p.PageNo = pageNo
	p.Typ = typ
	p.KeyLen = keyLen
	p.Level = level
	p.Degree = degree
	return p
}

// --- slot directory addressing -------------------------------------------
//
// Directory entry i (0 = smallest key) sits at byte offset
// len(Data) - 2*(total-i) from the start of Data, where total is the
// page's CURRENT key count. This is the offset arithmetic equivalent of
// the original's moving base pointer: the entry for the page's largest
// key (total-1) always sits at the fixed address len(Data)-2, nearest the
// page tail, while entry 0 recedes further from the tail as total grows.
// Two direct consequences fall out for free: Next() is always a read of
// the same fixed address, and inserting at position pos only ever has to
// physically shift the entries at index < pos — everything at index >=
// pos keeps the exact same address once total is incremented, because its
// sorted position increments in lock step with total.

func dirAddr(dataLen int, total, i uint16) int {
	return dataLen - 2*(int(total)-int(i))
}

func readDirEntry(data []byte, total, i uint16) uint16 {
	addr := dirAddr(len(data), total, i)
	return binary.LittleEndian.Uint16(data[addr : addr+2])
}

func writeDirEntry(data []byte, total, i uint16, val uint16) {
	addr := dirAddr(len(data), total, i)
	binary.LittleEndian.PutUint16(data[addr:addr+2], val)
}

func (p *Page) dirGet(i uint16) uint16 {
	return readDirEntry(p.Data, p.TotalKey, i)
}

func (p *Page) dirSet(i uint16, val uint16) {
	writeDirEntry(p.Data, p.TotalKey, i, val)
}

// compactDirectory rebases a directory holding oldTotal entries down to
// newTotal entries, physically relocating the surviving entries [0,
// newTotal) to the addresses they occupy under the new, smaller total.
// Used only by Split, which shrinks total_key_ without touching payload
// bytes for the entries it keeps in place (§4.6 step 8).
func compactDirectory(data []byte, oldTotal, newTotal uint16) {
	if newTotal == oldTotal {
		return
	}
	for i := int(newTotal) - 1; i >= 0; i-- {
		oldOff := dirAddr(len(data), oldTotal, uint16(i))
		newOff := dirAddr(len(data), newTotal, uint16(i))
		val := binary.LittleEndian.Uint16(data[oldOff : oldOff+2])
		binary.LittleEndian.PutUint16(data[newOff:newOff+2], val)
	}
}

func slotView(data []byte, offset uint16, slotLen int) KeySlice {
	return KeySlice(data[offset : int(offset)+slotLen])
}

// Key resolves directory entry i (sorted order) to the in-page, suffix-only
// KeySlice it names (§4.1).
func (p *Page) Key(i uint16) KeySlice {
	return slotView(p.Data, p.dirGet(i), PageByte+int(p.KeyLen))
}

// Next returns the page id stored in the last slot in sorted order, which
// doubles as this page's right-sibling link (§3.2). Defined only when
// TotalKey > 0.
func (p *Page) Next() Uid {
	if p.TotalKey == 0 {
		panic("blink_tree: Next called on an empty page")
	}
	return p.Key(p.TotalKey - 1).PageNo()
}

// --- search ---------------------------------------------------------------

// Traverse is the shared search routine behind Search and Descend (§4.2).
// probe is a full-width KeySlice (PageByte + PreLen + KeyLen bytes of
// payload). It never fails: on a miss it returns the sorted insertion
// position, optionally with the predecessor slot so callers can read its
// child pointer.
func (p *Page) Traverse(probe KeySlice, mode MatchMode) (idx uint16, slice KeySlice, found bool) {
	low, high := uint16(0), p.TotalKey

	if p.PreLen > 0 {
		res := ComparePrefix(probe, p.Data[:p.PreLen], p.PreLen)
		if res < 0 {
			return 0, nil, false
		} else if res > 0 {
			high--
			return high, p.Key(high), false
		}
	}

	for low != high {
		mid := low + (high-low)>>1
		curr := p.Key(mid)
		res := CompareSuffix(probe, curr, p.PreLen, p.KeyLen)
		if res < 0 {
			high = mid
		} else if res > 0 {
			low = mid + 1
		} else {
			if mode == MatchExact {
				return mid, nil, true
			}
			low = mid + 1
		}
	}

	idx = high
	if high > 0 {
		slice = p.Key(high - 1)
	}
	return idx, slice, false
}

// Descend resolves a branch/root page's child pointer for probe (§4.3).
func (p *Page) Descend(probe KeySlice) Uid {
	idx, slice, _ := p.Traverse(probe, MatchLowerBound)
	if idx == 0 {
		return p.First
	}
	return slice.PageNo()
}

// Search looks up probe for an exact match (§6).
func (p *Page) Search(probe KeySlice) (index uint16, found bool) {
	idx, _, found := p.Traverse(probe, MatchExact)
	return idx, found
}

// --- insert -----------------------------------------------------------

// Insert places key (a full-width KeySlice including its embedded child
// id) into the page (§4.4). A key that sorts past every live key returns
// MoveRight with the last slot's child id when that id is non-zero; when
// it is zero (the rightmost page of its level) the key is inserted here.
func (p *Page) Insert(key KeySlice) (InsertStatus, Uid) {
	pos, _, found := p.Traverse(key, MatchExact)
	if found {
		return ExistedKey, 0
	}
	if pos == p.TotalKey && pos > 0 {
		if next := p.Next(); next != 0 {
			return MoveRight, next
		}
	}

	slotLen := PageByte + int(p.KeyLen)
	oldTotal := p.TotalKey
	newTotal := oldTotal + 1

	end := uint16(int(oldTotal)*slotLen) + uint16(p.PreLen)
	dst := p.Data[end : int(end)+slotLen]
	copy(dst[:PageByte], key[:PageByte])
	copy(dst[PageByte:], key.Payload()[p.PreLen:int(p.PreLen)+int(p.KeyLen)])

	// Entries [0,pos) are the only ones whose address changes when total
	// grows by one; shift them down by one directory slot to make room.
	for i := uint16(0); i < pos; i++ {
		val := readDirEntry(p.Data, oldTotal, i)
		writeDirEntry(p.Data, newTotal, i, val)
	}
	writeDirEntry(p.Data, newTotal, pos, end)

	p.TotalKey = newTotal
	return InsertOk, 0
}

// --- iteration --------------------------------------------------------

// Ascend advances a cursor-style scan (§4.5). On a page with TotalKey
// entries, idx ranges [0,TotalKey). It always copies the idx-th key
// (prefix reassembled) into out, including the page's last slot, then
// reports where the scan should continue: a nextIdx on this same page
// when more entries remain here (more=true), or this page's right
// sibling to resume from when idx was the last slot (more=false,
// cursor reset to 0) — sibling is 0 only when this is the tree's
// rightmost leaf and the scan has nothing further to visit.
func (p *Page) Ascend(out KeySlice, idx uint16) (nextIdx uint16, sibling Uid, more bool) {
	if p.TotalKey == 0 {
		panic("blink_tree: Ascend called on an empty page")
	}
	if p.PreLen > 0 {
		CopyPrefix(out, p.Data[:p.PreLen], p.PreLen)
	}
	CopyKey(out, p.Key(idx), p.PreLen, p.KeyLen)

	if idx < p.TotalKey-1 {
		return idx + 1, 0, true
	}
	return 0, p.Key(idx).PageNo(), false
}

// --- split --------------------------------------------------------------

// Split partitions this page's keys between itself (the lower half) and
// that (an already-Initialized, empty right sibling with matching KeyLen,
// Level, Typ and Degree), writing the promoted fence key into slice
// (§4.6). slice must be a full-width KeySlice sized for this page's
// current PreLen+KeyLen.
func (p *Page) Split(that *Page, slice KeySlice) {
	oldTotal := p.TotalKey
	slotLen := PageByte + int(p.KeyLen)

	left := oldTotal / 2
	right := oldTotal - left

	fenceOff := p.dirGet(left)
	fence := slotView(p.Data, fenceOff, slotLen)
	left++

	if p.PreLen > 0 {
		copy(that.Data[:p.PreLen], p.Data[:p.PreLen])
		that.PreLen = p.PreLen
		CopyPrefix(slice, p.Data[:p.PreLen], p.PreLen)
	}

	slice.AssignPageNo(that.PageNo)
	copy(slice.Payload()[p.PreLen:int(p.PreLen)+int(p.KeyLen)], fence.Payload()[:p.KeyLen])

	cursor := left - 1
	if p.Level > 0 {
		// Branch/root: the fence's child pointer migrates to be the new
		// right page's left-edge descent; the next key's payload slides
		// into the fence's old position to become the new separator that
		// stays behind as this page's retained high key.
		that.First = fence.PageNo()
		nextOff := p.dirGet(left)
		next := slotView(p.Data, nextOff, slotLen)
		copy(fence.Payload()[:p.KeyLen], next.Payload()[:p.KeyLen])
		right--
		cursor = left
	}

	// Re-establish the sibling-link invariant: the retained pivot slot's
	// child id becomes that's page number, so this page's new Next()
	// (its now-last sorted slot) resolves to the right sibling.
	fence.AssignPageNo(that.PageNo)

	that.TotalKey = right
	j := uint16(0)
	for i := cursor; i < oldTotal; i++ {
		srcOff := readDirEntry(p.Data, oldTotal, i)
		src := slotView(p.Data, srcOff, slotLen)
		dstOff := uint16(that.PreLen) + j*uint16(slotLen)
		that.dirSet(j, dstOff)
		dst := slotView(that.Data, dstOff, slotLen)
		CopyKey(dst, src, 0, p.KeyLen)
		j++
	}

	// Compact the left page's surviving payloads into the dense range
	// [PreLen, limit): any discarded entry (index >= left) whose payload
	// happens to sit inside that range frees a slot that a surviving
	// entry living outside the range can claim.
	limit := left*uint16(slotLen) + uint16(p.PreLen)
	jj := uint16(0)
	for i := left; i < oldTotal && jj < left; i++ {
		iOff := readDirEntry(p.Data, oldTotal, i)
		if iOff >= limit {
			continue
		}
		for ; jj < left; jj++ {
			jOff := readDirEntry(p.Data, oldTotal, jj)
			if jOff >= limit {
				o := slotView(p.Data, iOff, slotLen)
				n := slotView(p.Data, jOff, slotLen)
				writeDirEntry(p.Data, oldTotal, jj, iOff)
				CopyKey(o, n, 0, p.KeyLen)
				jj++
				break
			}
		}
	}

	compactDirectory(p.Data, oldTotal, left)

	p.TotalKey = left
}

// --- prefix recompaction --------------------------------------------------

// NeedSplit decides whether a full page can instead buy more room by
// extending its common prefix (§4.7). It has a side effect: when it
// returns false, the page has been rewritten in place with a longer
// prefix, a narrower KeyLen and a larger Degree.
func (p *Page) NeedSplit() bool {
	if p.TotalKey < p.Degree {
		return false
	}

	first := p.Key(0)
	last := p.Key(p.TotalKey - 1)
	var preAdd uint8
	for preAdd < p.KeyLen && first.Payload()[preAdd] == last.Payload()[preAdd] {
		preAdd++
	}
	if preAdd == 0 {
		return true
	}

	newDegree := CalculateDegree(p.KeyLen-preAdd, p.PreLen+preAdd)
	if newDegree <= p.Degree {
		return true
	}

	newPrefix := make([]byte, int(p.PreLen)+int(preAdd))
	copy(newPrefix[:p.PreLen], p.Data[:p.PreLen])
	copy(newPrefix[p.PreLen:], first.Payload()[:preAdd])

	scratch := acquireScratch(len(p.Data))
	defer releaseScratch(scratch)
	copy(scratch, p.Data)

	oldTotal := p.TotalKey
	oldKeyLen := p.KeyLen
	oldSlotLen := PageByte + int(oldKeyLen)
	newKeyLen := oldKeyLen - preAdd
	newSlotLen := PageByte + int(newKeyLen)

	copy(p.Data[:len(newPrefix)], newPrefix)

	for i := uint16(0); i < oldTotal; i++ {
		srcOff := readDirEntry(scratch, oldTotal, i)
		src := slotView(scratch, srcOff, oldSlotLen)
		dstOff := uint16(len(newPrefix)) + i*uint16(newSlotLen)
		dst := slotView(p.Data, dstOff, newSlotLen)
		copy(dst[:PageByte], src[:PageByte])
		copy(dst[PageByte:], src.Payload()[preAdd:preAdd+newKeyLen])
		writeDirEntry(p.Data, oldTotal, i, dstOff)
	}

	p.PreLen += preAdd
	p.KeyLen = newKeyLen
	p.Degree = newDegree
	return false
}

// --- debug dump -----------------------------------------------------------

// ToString renders a deterministic, human-readable dump of the page's
// contents: header fields, prefix (if any), the raw directory, each key's
// payload, and the trailing sibling link (§4.8). Not part of any
// stability contract.
func (p *Page) ToString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "type: %s  page_no: %d  first: %d  tot_key: %d  level: %d  key_len: %d  ",
		p.Typ, p.PageNo, p.First, p.TotalKey, p.Level, p.KeyLen)
	if p.PreLen > 0 {
		fmt.Fprintf(&b, "pre_len: %d  prefix: %s\n", p.PreLen, string(p.Data[:p.PreLen]))
	} else {
		b.WriteString("\n")
	}
	for i := uint16(0); i < p.TotalKey; i++ {
		fmt.Fprintf(&b, "%d ", p.dirGet(i))
	}
	b.WriteString("\n")
	for i := uint16(0); i < p.TotalKey; i++ {
		b.WriteString(p.Key(i).ToString(p.KeyLen))
	}
	if p.TotalKey > 0 {
		fmt.Fprintf(&b, "\nnext: %d\n", p.Next())
	}
	return b.String()
}
