package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func pageOf(b byte) []byte {
	return bytes.Repeat([]byte{b}, PageSize)
}

// testDiskManagerContract runs the behaviour every backend must share.
func testDiskManagerContract(t *testing.T, newDM func(t *testing.T) DiskManager) {
	t.Run("AllocateReadsZero", func(t *testing.T) {
		dm := newDM(t)
		id, err := dm.AllocatePage()
		require.NoError(t, err)

		buf := pageOf(0xff)
		require.NoError(t, dm.ReadPage(id, buf))
		require.Equal(t, make([]byte, PageSize), buf)
	})

	t.Run("WriteThenRead", func(t *testing.T) {
		dm := newDM(t)
		a, err := dm.AllocatePage()
		require.NoError(t, err)
		b, err := dm.AllocatePage()
		require.NoError(t, err)
		require.NotEqual(t, a, b)

		require.NoError(t, dm.WritePage(a, pageOf(1)))
		require.NoError(t, dm.WritePage(b, pageOf(2)))

		buf := make([]byte, PageSize)
		require.NoError(t, dm.ReadPage(a, buf))
		require.Equal(t, pageOf(1), buf)
		require.NoError(t, dm.ReadPage(b, buf))
		require.Equal(t, pageOf(2), buf)
	})

	t.Run("MissingPage", func(t *testing.T) {
		dm := newDM(t)
		buf := make([]byte, PageSize)
		require.ErrorIs(t, dm.ReadPage(42, buf), ErrPageNotFound)
		require.ErrorIs(t, dm.WritePage(42, buf), ErrPageNotFound)
		require.ErrorIs(t, dm.DeallocatePage(42), ErrPageNotFound)
	})

	t.Run("DeallocateThenReuse", func(t *testing.T) {
		dm := newDM(t)
		id, err := dm.AllocatePage()
		require.NoError(t, err)
		require.NoError(t, dm.WritePage(id, pageOf(7)))
		require.NoError(t, dm.DeallocatePage(id))

		buf := make([]byte, PageSize)
		require.ErrorIs(t, dm.ReadPage(id, buf), ErrPageNotFound)
		require.ErrorIs(t, dm.DeallocatePage(id), ErrPageNotFound)

		again, err := dm.AllocatePage()
		require.NoError(t, err)
		require.Equal(t, id, again)

		require.NoError(t, dm.ReadPage(again, buf))
		require.Equal(t, make([]byte, PageSize), buf, "recycled page starts zeroed")
	})

	t.Run("ClosedRejectsIO", func(t *testing.T) {
		dm := newDM(t)
		id, err := dm.AllocatePage()
		require.NoError(t, err)
		require.NoError(t, dm.Close())

		buf := make([]byte, PageSize)
		require.ErrorIs(t, dm.ReadPage(id, buf), ErrClosed)
		require.ErrorIs(t, dm.WritePage(id, buf), ErrClosed)
		require.ErrorIs(t, dm.DeallocatePage(id), ErrClosed)
		_, err = dm.AllocatePage()
		require.ErrorIs(t, err, ErrClosed)
		require.NoError(t, dm.Close())
	})

	t.Run("RejectsWrongBufferSize", func(t *testing.T) {
		dm := newDM(t)
		id, err := dm.AllocatePage()
		require.NoError(t, err)
		require.ErrorIs(t, dm.ReadPage(id, make([]byte, 10)), ErrInvalidPageSize)
		require.ErrorIs(t, dm.WritePage(id, make([]byte, PageSize+1)), ErrInvalidPageSize)
	})
}

func TestFileDiskManager(t *testing.T) {
	testDiskManagerContract(t, func(t *testing.T) DiskManager {
		dm, err := NewFileDiskManager(LocalFileSet{Dir: t.TempDir(), Base: "pages"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = dm.Close() })
		return dm
	})
}

func TestMemDiskManager(t *testing.T) {
	testDiskManagerContract(t, func(t *testing.T) DiskManager {
		return NewMemDiskManager()
	})
}

func TestSQLiteDiskManager(t *testing.T) {
	testDiskManagerContract(t, func(t *testing.T) DiskManager {
		dm, err := OpenSQLiteDiskManager(filepath.Join(t.TempDir(), "pages.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = dm.Close() })
		return dm
	})
}

func TestFileDiskManager_RecoversPageCount(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "pages"}

	dm, err := NewFileDiskManager(fs)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		id, err := dm.AllocatePage()
		require.NoError(t, err)
		require.NoError(t, dm.WritePage(id, pageOf(byte(i+1))))
	}
	require.NoError(t, dm.Close())

	reopened, err := NewFileDiskManager(fs)
	require.NoError(t, err)
	require.Equal(t, uint32(3), reopened.NumPages())

	buf := make([]byte, PageSize)
	require.NoError(t, reopened.ReadPage(2, buf))
	require.Equal(t, pageOf(3), buf)

	next, err := reopened.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, PageID(3), next)
}

func TestFileDiskManager_FreeListSurvivesReopen(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "pages"}

	dm, err := NewFileDiskManager(fs)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		id, err := dm.AllocatePage()
		require.NoError(t, err)
		require.NoError(t, dm.WritePage(id, pageOf(byte(i+1))))
	}
	require.NoError(t, dm.DeallocatePage(1))
	require.NoError(t, dm.DeallocatePage(3))
	require.NoError(t, dm.Close())

	reopened, err := NewFileDiskManager(fs)
	require.NoError(t, err)
	defer reopened.Close()

	buf := make([]byte, PageSize)
	require.ErrorIs(t, reopened.ReadPage(1, buf), ErrPageNotFound)
	require.ErrorIs(t, reopened.ReadPage(3, buf), ErrPageNotFound)
	require.NoError(t, reopened.ReadPage(2, buf))
	require.Equal(t, pageOf(3), buf)

	// Freed ids come back last-freed first, zeroed.
	id, err := reopened.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, PageID(3), id)
	require.NoError(t, reopened.ReadPage(id, buf))
	require.Equal(t, make([]byte, PageSize), buf)

	id, err = reopened.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, PageID(1), id)

	id, err = reopened.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, PageID(4), id)
}

func TestFileDiskManager_UnwrittenPageSurvivesReopen(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "pages"}

	dm, err := NewFileDiskManager(fs)
	require.NoError(t, err)
	id, err := dm.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, dm.Close())

	reopened, err := NewFileDiskManager(fs)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, uint32(1), reopened.NumPages())
	require.NoError(t, reopened.ReadPage(id, make([]byte, PageSize)))
}

func TestSQLiteDiskManager_DetectsCorruption(t *testing.T) {
	dm, err := OpenSQLiteDiskManager(filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	defer dm.Close()

	id, err := dm.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, dm.WritePage(id, pageOf(9)))

	// Flip the stored bytes behind the checksum's back.
	_, err = dm.db.Exec(`UPDATE pages SET data = ? WHERE id = ?`, pageOf(8), int64(id))
	require.NoError(t, err)

	err = dm.ReadPage(id, make([]byte, PageSize))
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestMemDiskManager_Counters(t *testing.T) {
	dm := NewMemDiskManager()
	id, err := dm.AllocatePage()
	require.NoError(t, err)

	require.NoError(t, dm.WritePage(id, pageOf(1)))
	require.NoError(t, dm.WritePage(id, pageOf(2)))
	require.NoError(t, dm.ReadPage(id, make([]byte, PageSize)))

	require.Equal(t, uint64(2), dm.Writes())
	require.Equal(t, uint64(1), dm.Reads())
}

func TestNewDiskManager_Modes(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"file", "sqlite", "memory"} {
		mode, err := GetStorageMode(name)
		require.NoError(t, err)
		require.Equal(t, name, mode.String())

		dm, err := NewDiskManager(mode, dir, "pages")
		require.NoError(t, err, name)
		require.NoError(t, dm.Close())
	}

	_, err := GetStorageMode("tape")
	require.ErrorIs(t, err, ErrUnsupportedMode)

	_, err = NewDiskManager(StorageMode(99), dir, "pages")
	require.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestLocate(t *testing.T) {
	seg, off := locate(0)
	require.Equal(t, int32(0), seg)
	require.Equal(t, int64(0), off)

	seg, off = locate(MaxPagePerSegment + 2)
	require.Equal(t, int32(1), seg)
	require.Equal(t, int64(2*PageSize), off)
}
