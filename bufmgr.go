package blink_tree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blinkpage/pagekit/interfaces"
)

// HashTableEntryChainLen sizes the latch hash table relative to pool
// capacity, matching the teacher's BufMgr (bufmgr.go).
const HashTableEntryChainLen = 16

// BufMgr is a fixed-capacity page cache with clock-sweep eviction and a
// striped latch table, adapted from the teacher's BufMgr. Persistence is
// delegated entirely to an interfaces.HostPageStore, the seam through
// which this engine embeds into a host database's own buffer pool (§1,
// §9); callers who are not embedding can get a standalone store from
// NewHostPageStoreMemfile.
type BufMgr struct {
	store interfaces.HostPageStore

	pageDataSize uint32

	lock          SpinLatch
	latchDeployed uint32
	latchVictim   uint32
	latchHash     uint
	latchTotal    uint
	hashTable     []HashEntry
	latchs        []Latchs
	pagePool      []Page

	hostPageIDs []int64 // latch slot -> backing HostPage id, parallel to latchs
	nextPageNo  uint64

	// pageIDs survives slot eviction and reuse, unlike hostPageIDs: it is
	// the durable map from this tree's logical page numbers to the
	// backing store's own ids, analogous to the teacher's
	// pageIdConvMap (bufmgr.go).
	pageIDs sync.Map // Uid -> int64

	err BLTErr
}

// NewBufMgr creates a buffer manager with the given page-size exponent
// and pool capacity (in pages), backed by store. It calls SetPageInfo,
// so it must run before any Page is Initialized directly.
func NewBufMgr(bits uint8, poolSize uint, store interfaces.HostPageStore) *BufMgr {
	if bits > BtMaxBits {
		bits = BtMaxBits
	} else if bits < BtMinBits {
		bits = BtMinBits
	}
	if poolSize < HashTableEntryChainLen {
		panic(fmt.Sprintf("blink_tree: buffer pool too small: %d", poolSize))
	}

	SetPageInfo(uint32(1) << bits)

	mgr := &BufMgr{
		store:        store,
		pageDataSize: pageSize - HeaderSize,
		latchHash:    poolSize / HashTableEntryChainLen,
		latchTotal:   poolSize,
		nextPageNo:   uint64(RootPage),
	}
	mgr.hashTable = make([]HashEntry, mgr.latchHash)
	mgr.latchs = make([]Latchs, mgr.latchTotal)
	mgr.pagePool = make([]Page, mgr.latchTotal)
	mgr.hostPageIDs = make([]int64, mgr.latchTotal)

	return mgr
}

// PageIn loads pageNo's header and data from the backing store into page.
func (mgr *BufMgr) PageIn(page *Page, hostID int64) BLTErr {
	host := mgr.store.FetchHostPage(hostID)
	raw := host.DataAsSlice()

	if err := binary.Read(bytes.NewReader(raw[:HeaderSize]), binary.LittleEndian, &page.PageHeader); err != nil {
		mgr.err = BLTErrStruct
		return mgr.err
	}
	page.Data = make([]byte, len(raw)-HeaderSize)
	copy(page.Data, raw[HeaderSize:])

	if err := mgr.store.UnpinHostPage(hostID, false); err != nil {
		mgr.err = BLTErrRead
		return mgr.err
	}
	mgr.err = BLTErrOk
	return mgr.err
}

// PageOut writes page back to its backing HostPage. hostID is the backing
// page that NewPage allocated (via store.NewHostPage) when the logical
// page was created.
func (mgr *BufMgr) PageOut(page *Page, hostID int64) BLTErr {
	host := mgr.store.FetchHostPage(hostID)
	raw := host.DataAsSlice()

	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	if err := binary.Write(&buf, binary.LittleEndian, page.PageHeader); err != nil {
		mgr.err = BLTErrStruct
		return mgr.err
	}
	copy(raw[:HeaderSize], buf.Bytes())
	copy(raw[HeaderSize:], page.Data)

	if err := mgr.store.UnpinHostPage(hostID, true); err != nil {
		mgr.err = BLTErrWrite
		return mgr.err
	}
	mgr.err = BLTErrOk
	return mgr.err
}

func (mgr *BufMgr) latchLink(hashIdx, slot uint, pageNo Uid, hostID int64, loadIt bool) BLTErr {
	latch := &mgr.latchs[slot]

	latch.next = mgr.hashTable[hashIdx].slot
	if latch.next > 0 {
		mgr.latchs[latch.next].prev = slot
	}
	mgr.hashTable[hashIdx].slot = slot

	latch.pageNo = pageNo
	latch.entry = slot
	latch.split = 0
	latch.prev = 0
	latch.pin = 1
	mgr.hostPageIDs[slot] = hostID

	if loadIt {
		if mgr.err = mgr.PageIn(&mgr.pagePool[slot], hostID); mgr.err != BLTErrOk {
			return mgr.err
		}
	}
	mgr.err = BLTErrOk
	return mgr.err
}

// page returns the live *Page backing a pinned latch slot.
func (mgr *BufMgr) page(latch *Latchs) *Page {
	return &mgr.pagePool[latch.entry]
}

// PinLatch checks pageNo into the buffer pool, loading it from the
// backing store via hostID on a cache miss, and evicting via clock sweep
// if the pool is full. Mirrors the teacher's PinLatch/LatchLink pair.
func (mgr *BufMgr) PinLatch(pageNo Uid, hostID int64, loadIt bool) *Latchs {
	hashIdx := uint(pageNo) % mgr.latchHash

	mgr.hashTable[hashIdx].latch.SpinWriteLock()
	defer mgr.hashTable[hashIdx].latch.SpinReleaseWrite()

	slot := mgr.hashTable[hashIdx].slot
	for slot > 0 {
		latch := &mgr.latchs[slot]
		if latch.pageNo == pageNo {
			atomic.AddUint32(&latch.pin, 1)
			return latch
		}
		slot = latch.next
	}

	if newSlot := uint(atomic.AddUint32(&mgr.latchDeployed, 1)); newSlot < mgr.latchTotal {
		if mgr.latchLink(hashIdx, newSlot, pageNo, hostID, loadIt) != BLTErrOk {
			return nil
		}
		return &mgr.latchs[newSlot]
	}
	atomic.AddUint32(&mgr.latchDeployed, DECREMENT)

	for {
		slot = uint(atomic.AddUint32(&mgr.latchVictim, 1)-1) % mgr.latchTotal
		if slot == 0 {
			continue
		}
		latch := &mgr.latchs[slot]
		victimHash := uint(latch.pageNo) % mgr.latchHash
		// The caller's own chain is already write-locked above.
		sameChain := victimHash == hashIdx
		release := func() {
			if !sameChain {
				mgr.hashTable[victimHash].latch.SpinReleaseWrite()
			}
		}
		if !sameChain && !mgr.hashTable[victimHash].latch.SpinWriteTry() {
			continue
		}
		if latch.pin > 0 {
			if latch.pin&ClockBit > 0 {
				FetchAndAndUint32(&latch.pin, ^ClockBit)
			}
			release()
			continue
		}

		if latch.dirty {
			if mgr.PageOut(&mgr.pagePool[slot], mgr.hostPageIDs[slot]) != BLTErrOk {
				release()
				return nil
			}
			latch.dirty = false
		}

		if latch.prev > 0 {
			mgr.latchs[latch.prev].next = latch.next
		} else {
			mgr.hashTable[victimHash].slot = latch.next
		}
		if latch.next > 0 {
			mgr.latchs[latch.next].prev = latch.prev
		}

		result := mgr.latchLink(hashIdx, slot, pageNo, hostID, loadIt)
		release()
		if result != BLTErrOk {
			return nil
		}
		return latch
	}
}

// UnpinLatch releases a pin obtained from PinLatch or NewPage, setting the
// clock bit so the slot survives one more sweep before becoming eligible
// for eviction.
func (mgr *BufMgr) UnpinLatch(latch *Latchs) {
	if ^latch.pin&ClockBit > 0 {
		FetchAndOrUint32(&latch.pin, ClockBit)
	}
	atomic.AddUint32(&latch.pin, DECREMENT)
}

// NewPage allocates a fresh logical page number, installs contents into a
// pinned pool slot, and marks it dirty. Returns the slot's Latchs and a
// pointer to its now-live Page.
func (mgr *BufMgr) NewPage(contents *Page) (*Page, *Latchs) {
	mgr.lock.SpinWriteLock()
	pageNo := Uid(atomic.AddUint64(&mgr.nextPageNo, 1) - 1)
	mgr.lock.SpinReleaseWrite()

	host := mgr.store.NewHostPage()
	mgr.pageIDs.Store(pageNo, host.PageID())
	latch := mgr.PinLatch(pageNo, host.PageID(), false)
	if latch == nil {
		panic("blink_tree: failed to pin a newly allocated page")
	}
	page := mgr.page(latch)
	page.PageHeader = contents.PageHeader
	page.PageNo = pageNo
	page.Data = make([]byte, mgr.pageDataSize)
	copy(page.Data, contents.Data)
	latch.dirty = true

	return page, latch
}

// GetPage fetches pageNo, loading it from the backing store on a cache
// miss. The caller must eventually UnpinLatch the returned latch.
func (mgr *BufMgr) GetPage(pageNo Uid) (*Page, *Latchs) {
	hashIdx := uint(pageNo) % mgr.latchHash
	mgr.hashTable[hashIdx].latch.SpinReadLock()
	slot := mgr.hashTable[hashIdx].slot
	for slot > 0 {
		if mgr.latchs[slot].pageNo == pageNo {
			break
		}
		slot = mgr.latchs[slot].next
	}
	mgr.hashTable[hashIdx].latch.SpinReleaseRead()

	var hostID int64
	if slot > 0 {
		hostID = mgr.hostPageIDs[slot]
	} else if val, ok := mgr.pageIDs.Load(pageNo); ok {
		hostID = val.(int64)
	} else {
		panic("blink_tree: unknown page number")
	}
	latch := mgr.PinLatch(pageNo, hostID, true)
	if latch == nil {
		panic("blink_tree: failed to pin page")
	}
	return mgr.page(latch), latch
}

// MarkDirty flags a pinned page's slot as needing write-back before its
// next eviction or Close.
func (mgr *BufMgr) MarkDirty(latch *Latchs) {
	latch.dirty = true
}

// Close flushes every dirty pool slot back to the backing store, warning
// about any slot still pinned at shutdown — a caller bug, since Close
// assumes every checkout has already been matched by an UnpinLatch —
// mirroring the teacher's own shutdown audit in BufMgr.Close.
func (mgr *BufMgr) Close() int {
	flushed := 0
	for slot := uint(1); slot <= uint(mgr.latchDeployed) && slot < mgr.latchTotal; slot++ {
		latch := &mgr.latchs[slot]
		if latch.pin&^ClockBit > 0 {
			errPrintf("bufmgr: slot %d still pinned for page %d at close\n", slot, latch.pageNo)
		}
		if latch.dirty {
			mgr.PageOut(&mgr.pagePool[slot], mgr.hostPageIDs[slot])
			latch.dirty = false
			flushed++
		}
	}
	return flushed
}
