package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// NewDiskManager builds the backing store for the given mode. base names the
// segment files (file mode) or the database file (sqlite mode).
func NewDiskManager(mode StorageMode, workdir, base string) (DiskManager, error) {
	switch mode {
	case File:
		dm, err := NewFileDiskManager(LocalFileSet{Dir: workdir, Base: base})
		if err != nil {
			return nil, fmt.Errorf("error initialize file storage: %w", err)
		}
		return dm, nil
	case SQLite:
		if err := os.MkdirAll(workdir, FileMode0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dm, err := OpenSQLiteDiskManager(filepath.Join(workdir, base+".db"))
		if err != nil {
			return nil, fmt.Errorf("error initialize sqlite storage: %w", err)
		}
		return dm, nil
	case Memory:
		return NewMemDiskManager(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMode, mode)
	}
}
