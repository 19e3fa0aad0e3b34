package bufferpool

import (
	"errors"
	"fmt"

	"github.com/tuannm99/novapool/internal/storage"
)

var (
	ErrPoolExhausted = errors.New("bufferpool: no free frame available (all pinned)")
	ErrInvalidState  = errors.New("bufferpool: invalid page state")
	ErrInUse         = errors.New("bufferpool: page is pinned")
	ErrIO            = errors.New("bufferpool: disk I/O failed")
	ErrWaitTimeout   = errors.New("bufferpool: timed out waiting for a free frame")
	ErrPoolClosed    = errors.New("bufferpool: pool is closed")
	ErrCorrupted     = errors.New("bufferpool: page table and frames disagree")
)

// IOError wraps a DiskManager failure with the operation and page involved.
// errors.Is(err, ErrIO) holds for every IOError.
type IOError struct {
	Op     string
	PageID storage.PageID
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("bufferpool: %s page %d: %v", e.Op, e.PageID, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }
