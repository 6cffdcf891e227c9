package blink_tree

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/dsnet/golib/memfile"

	"github.com/blinkpage/pagekit/interfaces"
)

// HostPageStoreMemfile is the standalone (non-embedded) HostPageStore: it
// backs every page with a fixed-size region of an in-memory file from
// github.com/dsnet/golib/memfile, the engine's own stand-in for the
// "external, already-disk-oriented" buffer pool spec.md frames the page
// engine as a collaborator to (§1, §9). memfile's ReaderAt/WriterAt shape
// mirrors a real on-disk pager closely enough that swapping it for an
// *os.File later is a one-line change, unlike HostPageStoreMemory (a bare
// sync.Map), which is a sample embedding target rather than a pager.
type HostPageStoreMemfile struct {
	file     *memfile.File
	pageSize int64

	mu     sync.Mutex
	cached map[int64]*memfileHostPage
	nextID int64
}

type memfileHostPage struct {
	pageId   int64
	pinCount int32
	data     []byte
}

func (h *memfileHostPage) DecPinCount()   { atomic.AddInt32(&h.pinCount, -1) }
func (h *memfileHostPage) PinCount() int32 { return atomic.LoadInt32(&h.pinCount) }
func (h *memfileHostPage) PageID() int64  { return h.pageId }
func (h *memfileHostPage) DataAsSlice() []byte { return h.data }

// NewHostPageStoreMemfile creates a standalone HostPageStore whose pages
// are pageSize bytes each, persisted to an in-memory file for the
// lifetime of the process.
func NewHostPageStoreMemfile(pageSize uint32) interfaces.HostPageStore {
	return &HostPageStoreMemfile{
		file:     memfile.New(nil),
		pageSize: int64(pageSize),
		cached:   make(map[int64]*memfileHostPage),
	}
}

func (h *HostPageStoreMemfile) FetchHostPage(pageID int64) interfaces.HostPage {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.cached[pageID]; ok {
		atomic.AddInt32(&p.pinCount, 1)
		return p
	}

	buf := make([]byte, h.pageSize)
	if _, err := h.file.ReadAt(buf, pageID*h.pageSize); err != nil && err != io.EOF {
		panic("blink_tree: memfile read failed: " + err.Error())
	}
	p := &memfileHostPage{pageId: pageID, pinCount: 1, data: buf}
	h.cached[pageID] = p
	return p
}

func (h *HostPageStoreMemfile) UnpinHostPage(pageID int64, isDirty bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.cached[pageID]
	if !ok {
		panic("blink_tree: unknown pageID")
	}
	if isDirty {
		if _, err := h.file.WriteAt(p.data, pageID*h.pageSize); err != nil {
			return err
		}
	}
	p.DecPinCount()
	return nil
}

func (h *HostPageStoreMemfile) NewHostPage() interfaces.HostPage {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := atomic.AddInt64(&h.nextID, 1)
	buf := make([]byte, h.pageSize)
	if _, err := h.file.WriteAt(buf, id*h.pageSize); err != nil {
		panic("blink_tree: memfile write failed: " + err.Error())
	}
	p := &memfileHostPage{pageId: id, pinCount: 1, data: buf}
	h.cached[id] = p
	return p
}

func (h *HostPageStoreMemfile) DeallocateHostPage(pageID int64, _isNoWait bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.cached[pageID]; !ok {
		panic("blink_tree: unknown pageID")
	}
	delete(h.cached, pageID)
	return nil
}
