package storage

// DiskManager reads and writes whole pages by id against a backing store and
// hands out page ids.
//
// ReadPage and WritePage take buffers of exactly PageSize bytes. ReadPage
// returns ErrPageNotFound for ids that were never allocated or have been
// deallocated. A page that was allocated but never written reads as zeros.
type DiskManager interface {
	ReadPage(id PageID, dst []byte) error
	WritePage(id PageID, src []byte) error
	AllocatePage() (PageID, error)
	DeallocatePage(id PageID) error
	Close() error
}

func checkPageBuf(b []byte) error {
	if len(b) != PageSize {
		return ErrInvalidPageSize
	}
	return nil
}
