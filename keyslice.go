package blink_tree

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// KeySlice is a fixed-width record: PageByte bytes of child page id
// followed by a key payload (§3.1). Its width depends on context rather
// than its Go type: a KeySlice handed across the Page API by a caller
// (Insert's argument, Split's fence, Ascend's output) is always "full
// width" — PageByte + the page's current uncompressed key width
// (pre_len+key_len) — while a KeySlice resolved from inside a page's
// slot array is "suffix width" — PageByte + key_len, the prefix already
// stripped. Both are just []byte views; NewKeySlice builds the former,
// Page.Key resolves the latter directly out of the page's backing array.
type KeySlice []byte

// NewKeySlice allocates a standalone, full-width KeySlice able to hold a
// payload of payloadLen bytes.
func NewKeySlice(payloadLen int) KeySlice {
	return make(KeySlice, PageByte+payloadLen)
}

// PageNo returns the embedded child page id.
func (k KeySlice) PageNo() Uid {
	return Uid(binary.LittleEndian.Uint64(k[:PageByte]))
}

// AssignPageNo overwrites the embedded child page id.
func (k KeySlice) AssignPageNo(id Uid) {
	binary.LittleEndian.PutUint64(k[:PageByte], uint64(id))
}

// Payload returns the bytes following the child page id.
func (k KeySlice) Payload() []byte {
	return k[PageByte:]
}

// ToString renders a KeySlice as "<page_no> <payload>\n", matching the
// layout of the teacher's debug dump lines.
func (k KeySlice) ToString(keyLen uint8) string {
	return fmt.Sprintf("%d %s\n", k.PageNo(), string(k.Payload()[:keyLen]))
}

// ComparePrefix compares a full-width probe's leading preLen bytes
// against a page's stored common prefix.
func ComparePrefix(probe KeySlice, prefix []byte, preLen uint8) int {
	return bytes.Compare(probe.Payload()[:preLen], prefix[:preLen])
}

// CompareSuffix compares a full-width probe's payload, past its first
// preLen bytes, against an in-page (suffix-only) candidate's payload.
func CompareSuffix(probe, candidate KeySlice, preLen, keyLen uint8) int {
	return bytes.Compare(probe.Payload()[preLen:int(preLen)+int(keyLen)], candidate.Payload()[:keyLen])
}

// CopyPrefix copies length bytes of a page's stored prefix into dst's
// payload, starting at offset 0. It never touches dst's page id.
func CopyPrefix(dst KeySlice, prefix []byte, length uint8) {
	copy(dst.Payload()[:length], prefix[:length])
}

// CopyKey copies src's page id and length bytes of its payload into dst
// at the given payload offset. Used by Ascend (reassembling a full key
// after its prefix has already been copied in) and by Split's right-page
// fill (carrying a branch entry's child pointer forward into the new
// page).
func CopyKey(dst, src KeySlice, offset, length uint8) {
	dst.AssignPageNo(src.PageNo())
	copy(dst.Payload()[offset:int(offset)+int(length)], src.Payload()[:length])
}
