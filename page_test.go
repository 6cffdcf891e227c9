package blink_tree

import (
	"fmt"
	"testing"
)

func TestMain(m *testing.M) {
	SetPageInfo(4096)
	m.Run()
}

func newFullWidthKey(childID Uid, payload []byte) KeySlice {
	k := NewKeySlice(len(payload))
	k.AssignPageNo(childID)
	copy(k.Payload(), payload)
	return k
}

func pad16(s string) []byte {
	b := make([]byte, 16)
	copy(b, s)
	for i := len(s); i < 16; i++ {
		b[i] = s[len(s)-1]
	}
	return b
}

func TestPage_LeafInsertAndSearch(t *testing.T) {
	degree := CalculateDegree(16, 0)
	page := Initialize(1, Leaf, 16, 0, degree)

	payloads := [][]byte{pad16("aaaaaaaaaaaaaaa0"), pad16("aaaaaaaaaaaaaaa2"), pad16("aaaaaaaaaaaaaaa1")}
	for _, p := range payloads {
		status, _ := page.Insert(newFullWidthKey(0, p))
		if status != InsertOk {
			t.Fatalf("Insert(%s) = %v, want InsertOk", p, status)
		}
	}
	if page.TotalKey != 3 {
		t.Fatalf("TotalKey = %d, want 3", page.TotalKey)
	}

	want := []string{"aaaaaaaaaaaaaaa0", "aaaaaaaaaaaaaaa1", "aaaaaaaaaaaaaaa2"}
	for i, w := range want {
		if idx, found := page.Search(newFullWidthKey(0, []byte(w))); !found || idx != uint16(i) {
			t.Errorf("Search(%q) = (%d, %v), want (%d, true)", w, idx, found, i)
		}
	}
	out := NewKeySlice(16)
	idx := uint16(0)
	for i, w := range want {
		var more bool
		idx, _, more = page.Ascend(out, idx)
		if got := string(out.Payload()); got != w {
			t.Errorf("Ascend step %d = %q, want %q", i, got, w)
		}
		if i < len(want)-1 && !more {
			t.Errorf("Ascend step %d: more = false, want true", i)
		}
	}
}

func TestPage_DuplicateRejection(t *testing.T) {
	degree := CalculateDegree(16, 0)
	page := Initialize(1, Leaf, 16, 0, degree)

	for _, p := range []string{"aaaaaaaaaaaaaaa0", "aaaaaaaaaaaaaaa2", "aaaaaaaaaaaaaaa1"} {
		if status, _ := page.Insert(newFullWidthKey(0, pad16(p))); status != InsertOk {
			t.Fatalf("setup insert %s failed: %v", p, status)
		}
	}

	status, _ := page.Insert(newFullWidthKey(0, pad16("aaaaaaaaaaaaaaa1")))
	if status != ExistedKey {
		t.Fatalf("Insert(dup) = %v, want ExistedKey", status)
	}
	if page.TotalKey != 3 {
		t.Fatalf("TotalKey = %d after rejected dup, want 3", page.TotalKey)
	}
}

func TestPage_MoveRight(t *testing.T) {
	degree := CalculateDegree(16, 0)
	page := Initialize(1, Leaf, 16, 0, degree)

	for _, p := range []string{"aaaaaaaaaaaaaaa0", "aaaaaaaaaaaaaaa2", "aaaaaaaaaaaaaaa1"} {
		page.Insert(newFullWidthKey(0, pad16(p)))
	}
	// Install a non-zero sibling link in the last slot's child id.
	last := page.Key(page.TotalKey - 1)
	last.AssignPageNo(99)

	status, sibling := page.Insert(newFullWidthKey(0, pad16("zzzzzzzzzzzzzzzz")))
	if status != MoveRight {
		t.Fatalf("Insert(greater-than-all) = %v, want MoveRight", status)
	}
	if sibling != 99 {
		t.Fatalf("sibling = %d, want 99", sibling)
	}
	if page.TotalKey != 3 {
		t.Fatalf("TotalKey = %d, want unchanged 3", page.TotalKey)
	}
}

func TestPage_PrefixRecompaction(t *testing.T) {
	degree := CalculateDegree(16, 0)
	page := Initialize(1, Leaf, 16, 0, degree)

	// 12 literal bytes; every "%04d" suffix below degree also starts with
	// '0', so the keys share 13 bytes.
	prefix := "aaaaaaaaaaaa"
	for i := uint16(0); i < degree; i++ {
		suffix := fmt.Sprintf("%04d", i)
		payload := append([]byte(prefix), []byte(suffix)...)
		status, _ := page.Insert(newFullWidthKey(0, payload))
		if status != InsertOk {
			t.Fatalf("insert %d: %v", i, status)
		}
	}

	// Record what Search finds before recompaction, by logical value.
	probe := newFullWidthKey(0, append([]byte(prefix), []byte(fmt.Sprintf("%04d", degree/2))...))

	if page.NeedSplit() {
		t.Fatalf("NeedSplit() = true, want false (prefix recompaction should succeed)")
	}
	if page.PreLen != 13 {
		t.Errorf("PreLen = %d, want 13", page.PreLen)
	}
	if page.KeyLen != 3 {
		t.Errorf("KeyLen = %d, want 3", page.KeyLen)
	}
	if page.Degree <= degree {
		t.Errorf("Degree = %d, want > %d", page.Degree, degree)
	}

	_, found := page.Search(probe)
	if !found {
		t.Errorf("Search after recompaction: found = false, want true")
	}
}

func TestPage_LeafSplit(t *testing.T) {
	degree := CalculateDegree(16, 0)
	page := Initialize(1, Leaf, 16, 0, degree)

	for i := uint16(0); i < degree; i++ {
		payload := pad16(fmt.Sprintf("%c%015d", 'a'+byte(i%26), i))
		status, _ := page.Insert(newFullWidthKey(0, payload))
		if status != InsertOk {
			t.Fatalf("insert %d: %v", i, status)
		}
	}

	if !page.NeedSplit() {
		t.Fatalf("NeedSplit() = false, want true (no common prefix, page full)")
	}

	right := Initialize(2, Leaf, page.KeyLen, page.Level, page.Degree)
	fence := NewKeySlice(int(page.PreLen) + int(page.KeyLen))
	page.Split(right, fence)

	if page.Next() != right.PageNo {
		t.Errorf("left.Next() = %d, want right.PageNo = %d", page.Next(), right.PageNo)
	}
	if right.TotalKey == 0 {
		t.Fatalf("right.TotalKey = 0, want > 0")
	}
	firstOfRight := right.Key(0)
	if string(fence.Payload()) != string(firstOfRight.Payload()[:page.KeyLen]) {
		t.Errorf("fence payload = %q, want right's first key %q", fence.Payload(), firstOfRight.Payload())
	}
	if int(page.TotalKey)+int(right.TotalKey) != int(degree)+1 {
		t.Errorf("left+right = %d, want %d (leaf split duplicates the pivot)", page.TotalKey+right.TotalKey, degree+1)
	}
}

func TestPage_BranchDescend(t *testing.T) {
	degree := CalculateDegree(1, 0)
	page := Initialize(5, Branch, 1, 1, degree)
	page.First = 10

	// Inserted largest first: a key that sorts past the last slot returns
	// MoveRight whenever that slot's child id is non-zero.
	for _, sep := range []struct {
		childID Uid
		payload string
	}{{40, "t"}, {30, "m"}, {20, "b"}} {
		if status, _ := page.Insert(newFullWidthKey(sep.childID, []byte(sep.payload))); status != InsertOk {
			t.Fatalf("insert %s: %v", sep.payload, status)
		}
	}

	cases := []struct {
		probe string
		want  Uid
	}{
		{"a", 10},
		{"b", 20},
		{"h", 20},
		{"m", 30},
		{"z", 40},
	}
	for _, c := range cases {
		got := page.Descend(newFullWidthKey(0, []byte(c.probe)))
		if got != c.want {
			t.Errorf("Descend(%q) = %d, want %d", c.probe, got, c.want)
		}
	}
}

func TestPage_DirectorySortedness(t *testing.T) {
	degree := CalculateDegree(8, 0)
	page := Initialize(1, Leaf, 8, 0, degree)
	for _, s := range []string{"ccccdddd", "aaaabbbb", "zzzzyyyy", "mmmmnnnn"} {
		page.Insert(newFullWidthKey(0, []byte(s)))
	}
	for i := uint16(0); i+1 < page.TotalKey; i++ {
		a := string(page.Key(i).Payload())
		b := string(page.Key(i + 1).Payload())
		if a >= b {
			t.Errorf("Key(%d)=%q not < Key(%d)=%q", i, a, i+1, b)
		}
	}
}
