package blink_tree

import (
	"sync"
	"sync/atomic"

	"github.com/blinkpage/pagekit/interfaces"
)

// HostPageMemory is a sample in-memory HostPage: a fixed-size byte array
// plus a pin count, adapted from the teacher's ParentPageDummy. Sized to
// the engine's own configured PageSize rather than a hardcoded 4KB, so a
// test embedding can exercise the HostPageStore path at any PageSize the
// test configures via SetPageInfo.
type HostPageMemory struct {
	pageId   int64
	pinCount int32
	data     []byte
}

func newHostPageMemory(pageId int64, initialPinCount int32) interfaces.HostPage {
	return &HostPageMemory{pageId: pageId, pinCount: initialPinCount, data: make([]byte, pageSize)}
}

func (h *HostPageMemory) DecPinCount() {
	atomic.AddInt32(&h.pinCount, -1)
}

func (h *HostPageMemory) PinCount() int32 {
	return atomic.LoadInt32(&h.pinCount)
}

func (h *HostPageMemory) PageID() int64 {
	return h.pageId
}

func (h *HostPageMemory) DataAsSlice() []byte {
	return h.data
}

// HostPageStoreMemory is a sample in-memory HostPageStore: pages live only
// in a sync.Map and are never evicted, adapted from the teacher's
// ParentBufMgrDummy. It exists so BufMgr can be exercised, and tested,
// against the HostPageStore embedding seam without a real host database.
type HostPageStoreMemory struct {
	pageMap *sync.Map // pageID (int64) -> interfaces.HostPage
	nextID  int64
}

func NewHostPageStoreMemory() interfaces.HostPageStore {
	return &HostPageStoreMemory{pageMap: &sync.Map{}}
}

func (h *HostPageStoreMemory) FetchHostPage(pageID int64) interfaces.HostPage {
	val, ok := h.pageMap.Load(pageID)
	if !ok {
		panic("blink_tree: unknown pageID")
	}
	page := val.(*HostPageMemory)
	atomic.AddInt32(&page.pinCount, 1)
	return page
}

func (h *HostPageStoreMemory) UnpinHostPage(pageID int64, _isDirty bool) error {
	val, ok := h.pageMap.Load(pageID)
	if !ok {
		panic("blink_tree: unknown pageID")
	}
	val.(interfaces.HostPage).DecPinCount()
	return nil
}

func (h *HostPageStoreMemory) NewHostPage() interfaces.HostPage {
	newID := atomic.AddInt64(&h.nextID, 1)
	newPage := newHostPageMemory(newID, 1)
	h.pageMap.Store(newID, newPage)
	return newPage
}

func (h *HostPageStoreMemory) DeallocateHostPage(pageID int64, _isNoWait bool) error {
	if _, ok := h.pageMap.Load(pageID); !ok {
		panic("blink_tree: unknown pageID")
	}
	h.pageMap.Delete(pageID)
	return nil
}
