package interfaces

// HostPageStore is the host buffer pool this engine can be embedded into,
// grounded on the teacher's interfaces.ParentBufMgr and renamed to match
// HostPage. A BufMgr (bufmgr.go) that wants to delegate physical page
// storage to a surrounding database, rather than persist pages itself via
// memfile, depends only on this interface.
type HostPageStore interface {
	FetchHostPage(pageID int64) HostPage
	UnpinHostPage(pageID int64, isDirty bool) error
	NewHostPage() HostPage
	DeallocateHostPage(pageID int64, isNoWait bool) error
}
