package interfaces

// HostPage is the checked-out-page contract a host database's own buffer
// pool must satisfy for this engine to be embedded inside it rather than
// owning its own persistence (spec.md §1: the tree/buffer-pool layer is
// explicitly out of the page engine's scope, but a concrete embedding
// still needs a shape for "someone else's page"). Grounded on the
// teacher's interfaces.ParentPage, renamed to describe the relationship
// from the page engine's point of view: the embedding host, not a Go
// parent/child. PageID is int64 rather than the teacher's int32 to match
// this engine's 8-byte Uid page identities (common.go).
type HostPage interface {
	DecPinCount()
	PinCount() int32
	PageID() int64
	DataAsSlice() []byte
}
