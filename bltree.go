package blink_tree

import "sync"

// BLTree drives a buffer-managed collection of Pages as a single
// B-link tree: root-to-leaf descent, leaf insertion with prefix-aware
// splitting, and split propagation up to a freshly minted root. It is
// the ambient scaffolding around the page engine, not the engine itself
// — tree-level lock coupling across concurrent splits is explicitly out
// of the page engine's own scope (spec.md §1), so BLTree only recovers
// from a concurrent split the way the page engine's own contract
// promises: Page.Insert's MoveRight status at the leaf it targets, and a
// plain right-sibling walk (landOnPage) while following a branch child
// pointer that may have raced ahead. Grounded on the teacher's BLTree
// (bltree.go) for naming and for PageSet-style latch/page pairing, with
// an entirely new body driving the fixed-width Page API instead of the
// teacher's variable-length slot format.
type BLTree struct {
	mgr    *BufMgr
	keyLen uint8

	rootMu     sync.RWMutex
	rootPageNo Uid
}

// PageSet pairs a live Page with the Latchs pinning it, exactly as in the
// teacher.
type PageSet struct {
	page  *Page
	latch *Latchs
}

func typeForLevel(level uint8) PageType {
	if level == 0 {
		return Leaf
	}
	return Branch
}

// NewBLTree installs a fresh single-page tree (a Root page that is also a
// leaf) atop mgr. keyLen is the fixed uncompressed payload width every key
// in this tree will share.
func NewBLTree(mgr *BufMgr, keyLen uint8) *BLTree {
	degree := CalculateDegree(keyLen, 0)
	seed := Initialize(0, Root, keyLen, 0, degree)
	page, latch := mgr.NewPage(seed)
	mgr.MarkDirty(latch)
	mgr.UnpinLatch(latch)

	return &BLTree{mgr: mgr, keyLen: keyLen, rootPageNo: page.PageNo}
}

func (t *BLTree) root() Uid {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootPageNo
}

// landOnPage pins pageNo and, while the probe key sorts past the page's
// own high key (its last slot, whose embedded child id doubles as the
// right-sibling link), walks right. This is how a reader recovers when it
// arrives at a page an instant after that page gave up its right half to
// a concurrent Split.
func (t *BLTree) landOnPage(pageNo Uid, probe KeySlice) (*Page, *Latchs) {
	page, latch := t.mgr.GetPage(pageNo)
	for {
		if page.TotalKey == 0 {
			return page, latch
		}

		past := false
		if page.PreLen > 0 {
			switch ComparePrefix(probe, page.Data[:page.PreLen], page.PreLen) {
			case 1:
				past = true
			case -1:
				return page, latch
			}
		}
		if !past {
			last := page.Key(page.TotalKey - 1)
			if CompareSuffix(probe, last, page.PreLen, page.KeyLen) <= 0 {
				return page, latch
			}
		}

		next := page.Key(page.TotalKey - 1).PageNo()
		if next == 0 {
			return page, latch
		}
		t.mgr.UnpinLatch(latch)
		page, latch = t.mgr.GetPage(next)
	}
}

// descend walks from the root to the leaf that should hold probe,
// recording the pinned-then-released path of page numbers visited so a
// later split can be propagated upward without re-descending.
func (t *BLTree) descend(probe KeySlice) []Uid {
	path := make([]Uid, 0, 4)
	pageNo := t.root()
	for {
		page, latch := t.landOnPage(pageNo, probe)
		path = append(path, page.PageNo)
		if page.Level == 0 {
			t.mgr.UnpinLatch(latch)
			return path
		}
		child := page.Descend(probe)
		t.mgr.UnpinLatch(latch)
		pageNo = child
	}
}

// InsertKey inserts a full-width key (PageByte id bytes + this tree's
// keyLen payload bytes) into the tree.
func (t *BLTree) InsertKey(key KeySlice) InsertStatus {
	path := t.descend(key)
	leafNo := path[len(path)-1]

	page, latch := t.landOnPage(leafNo, key)
	for {
		status, rightSib := page.Insert(key)
		if status != MoveRight {
			if status == ExistedKey {
				t.mgr.UnpinLatch(latch)
				return ExistedKey
			}
			break
		}
		t.mgr.UnpinLatch(latch)
		page, latch = t.mgr.GetPage(rightSib)
	}

	t.mgr.MarkDirty(latch)
	if page.NeedSplit() {
		t.propagateSplit(page, latch, path)
	} else {
		t.mgr.UnpinLatch(latch)
	}
	return InsertOk
}

// propagateSplit splits page (already confirmed full) and, if splitting
// produced a new separator, inserts that separator into page's parent —
// recursing up path as far as necessary, and minting a new root if the
// split reaches the top.
func (t *BLTree) propagateSplit(page *Page, latch *Latchs, path []Uid) {
	wasRoot := len(path) == 1
	level := page.Level
	if wasRoot {
		page.Typ = typeForLevel(level)
	}

	sibling := Initialize(0, typeForLevel(level), page.KeyLen, level, page.Degree)
	siblingPage, siblingLatch := t.mgr.NewPage(sibling)

	fence := NewKeySlice(int(page.PreLen) + int(page.KeyLen))
	page.Split(siblingPage, fence)

	t.mgr.MarkDirty(siblingLatch)
	t.mgr.UnpinLatch(siblingLatch)
	t.mgr.UnpinLatch(latch)

	if wasRoot {
		t.installNewRoot(path[0], level, fence)
		return
	}

	parentPath := path[:len(path)-1]
	parentNo := parentPath[len(parentPath)-1]
	t.insertSeparator(parentNo, fence, parentPath)
}

// insertSeparator inserts a promoted fence key into an existing branch
// page, recursing into propagateSplit if that page is now full too.
func (t *BLTree) insertSeparator(pageNo Uid, fence KeySlice, path []Uid) {
	page, latch := t.landOnPage(pageNo, fence)
	for {
		status, rightSib := page.Insert(fence)
		if status != MoveRight {
			break
		}
		t.mgr.UnpinLatch(latch)
		page, latch = t.mgr.GetPage(rightSib)
	}

	t.mgr.MarkDirty(latch)
	if page.NeedSplit() {
		t.propagateSplit(page, latch, path)
	} else {
		t.mgr.UnpinLatch(latch)
	}
}

// installNewRoot creates a new Root page one level above oldRootNo,
// pointing its First fallback at oldRootNo and holding fence as its sole
// separator toward the freshly split-off sibling.
func (t *BLTree) installNewRoot(oldRootNo Uid, oldLevel uint8, fence KeySlice) {
	newLevel := oldLevel + 1
	seed := Initialize(0, Root, t.keyLen, newLevel, CalculateDegree(t.keyLen, 0))
	seed.First = oldRootNo

	rootPage, rootLatch := t.mgr.NewPage(seed)
	if status, _ := rootPage.Insert(fence); status != InsertOk {
		panic("blink_tree: unexpected status installing a fresh root's first separator")
	}
	t.mgr.MarkDirty(rootLatch)
	t.mgr.UnpinLatch(rootLatch)

	t.rootMu.Lock()
	t.rootPageNo = rootPage.PageNo
	t.rootMu.Unlock()
}

// FindKey reports whether probe is present in the tree.
func (t *BLTree) FindKey(probe KeySlice) bool {
	path := t.descend(probe)
	leafNo := path[len(path)-1]
	page, latch := t.landOnPage(leafNo, probe)
	defer t.mgr.UnpinLatch(latch)
	_, found := page.Search(probe)
	return found
}

// BLTreeItr is a forward cursor produced by RangeScan, walking leaf pages
// left to right via their sibling links. It holds its current leaf
// pinned between calls to Next and releases it only when advancing past
// that leaf or when the scan ends.
type BLTreeItr struct {
	tree  *BLTree
	page  *Page
	latch *Latchs
	idx   uint16
	done  bool
}

// Next advances the cursor, writing the next key into out and returning
// true, or returning false once the scan is exhausted. out must be sized
// PageByte + this tree's keyLen bytes. Every call that returns true has
// already written a valid key into out. A leaf's final slot is reported
// as such only on the rightmost leaf: on any other leaf it is the high
// key that the leaf split also copied into the right sibling's first
// slot, so Next moves on to the sibling and reports that copy instead,
// and each key is returned once.
func (it *BLTreeItr) Next(out KeySlice) bool {
	if it.done {
		return false
	}
	if it.page.TotalKey == 0 {
		it.tree.mgr.UnpinLatch(it.latch)
		it.done = true
		return false
	}

	nextIdx, sibling, more := it.page.Ascend(out, it.idx)
	if more {
		it.idx = nextIdx
		return true
	}

	it.tree.mgr.UnpinLatch(it.latch)
	if sibling == 0 {
		it.done = true
		return true
	}
	it.page, it.latch = it.tree.mgr.GetPage(sibling)
	it.idx = 0
	return it.Next(out)
}

// Close releases the cursor's currently pinned leaf. Safe to call after
// Next has already returned false, in which case it is a no-op.
func (it *BLTreeItr) Close() {
	if !it.done {
		it.tree.mgr.UnpinLatch(it.latch)
		it.done = true
	}
}

// RangeScan opens a cursor positioned at the first leaf slot whose suffix
// is not less than lowerBound. The caller must eventually call Close (or
// drain Next to completion) to release the cursor's pinned leaf.
//
// Positioning uses MatchExact rather than MatchLowerBound: on an exact
// hit MatchExact reports that slot's own index instead of continuing
// rightward past it, which is what Descend wants (equal sorts into the
// right child) but would otherwise make RangeScan skip the very key
// lowerBound names. On a miss both modes agree — there is no equal slot
// to diverge on — so this is purely the inclusive-lower-bound behavior
// RangeScan needs, not a different search.
func (t *BLTree) RangeScan(lowerBound KeySlice) *BLTreeItr {
	path := t.descend(lowerBound)
	leafNo := path[len(path)-1]
	page, latch := t.landOnPage(leafNo, lowerBound)
	idx, _, _ := page.Traverse(lowerBound, MatchExact)

	if page.TotalKey > 0 && idx == page.TotalKey {
		// lowerBound sorts past every key on this page; landOnPage only
		// lands here despite that when this is the tree's rightmost leaf
		// (a zero sibling link), so there is nothing left to scan.
		t.mgr.UnpinLatch(latch)
		return &BLTreeItr{tree: t, done: true}
	}
	return &BLTreeItr{tree: t, page: page, latch: latch, idx: idx}
}
