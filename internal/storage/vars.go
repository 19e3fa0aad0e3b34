package storage

import (
	"errors"
	"fmt"
	"math"
)

const (
	OneKB = 1 << 10 // 1,024
	OneGB = 1 << 30 // 1,073,741,824

	SegmentSize       = OneGB                  // 1 GiB
	PageSize          = 4 * OneKB              // 4,096 (4 KiB)
	MaxPagePerSegment = SegmentSize / PageSize // 262,144 pages/segment
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

// PageID identifies a page in the backing store.
type PageID uint32

// InvalidPageID is never handed out by an allocator.
const InvalidPageID PageID = math.MaxUint32

type StorageMode int

const (
	File   StorageMode = iota + 1 // segment files on local disk
	SQLite                        // single sqlite database file
	Memory                        // process memory, tests and benchmarks
)

func (s StorageMode) String() string {
	switch s {
	case File:
		return "file"
	case SQLite:
		return "sqlite"
	case Memory:
		return "memory"
	default:
		return "unknown"
	}
}

func GetStorageMode(s string) (StorageMode, error) {
	switch s {
	case "file":
		return File, nil
	case "sqlite":
		return SQLite, nil
	case "memory":
		return Memory, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMode, s)
	}
}

var (
	ErrPageNotFound     = errors.New("storage: page not found")
	ErrInvalidPageSize  = errors.New("storage: buffer is not exactly one page")
	ErrChecksumMismatch = errors.New("storage: page checksum mismatch")
	ErrUnsupportedMode  = errors.New("storage: unsupported storage mode")
	ErrClosed           = errors.New("storage: disk manager is closed")
)
