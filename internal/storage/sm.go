package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/tuannm99/novapool/internal/alias/util"
)

var _ DiskManager = (*FileDiskManager)(nil)

// LocalFileSet represents a local directory + base file name.
// Segments are stored as: Base, Base.1, Base.2, ...
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) segmentPath(segNo int32) string {
	name := lfs.Base
	if segNo > 0 {
		name = fmt.Sprintf("%s.%d", lfs.Base, segNo)
	}
	return filepath.Join(lfs.Dir, name)
}

// freeListPath is the sidecar holding deallocated ids as little-endian
// uint32s.
func (lfs LocalFileSet) freeListPath() string {
	return filepath.Join(lfs.Dir, lfs.Base+".free")
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (*os.File, error) {
	if err := os.MkdirAll(lfs.Dir, FileMode0755); err != nil {
		return nil, err
	}
	// RDWR | CREATE (no truncate)
	return os.OpenFile(lfs.segmentPath(segNo), os.O_RDWR|os.O_CREATE, FileMode0644)
}

// FileDiskManager maps a logical pageID -> (segment, offset) inside a
// LocalFileSet.
//
// The number of allocated pages is recovered from the segment sizes on open.
// Deallocated ids are persisted in a sidecar file next to the segments and
// recycled by AllocatePage.
type FileDiskManager struct {
	fs LocalFileSet

	mu     sync.Mutex
	nextID PageID
	free   []PageID
	freed  map[PageID]struct{}
	closed bool
}

func NewFileDiskManager(fs LocalFileSet) (*FileDiskManager, error) {
	if err := os.MkdirAll(fs.Dir, FileMode0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	n, err := countPages(fs)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	fm := &FileDiskManager{
		fs:     fs,
		nextID: PageID(n),
		freed:  make(map[PageID]struct{}),
	}
	if err := fm.loadFreeList(); err != nil {
		return nil, fmt.Errorf("load free list: %w", err)
	}
	return fm, nil
}

func (fm *FileDiskManager) loadFreeList() error {
	raw, err := os.ReadFile(fm.fs.freeListPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for len(raw) >= 4 {
		id := PageID(binary.LittleEndian.Uint32(raw))
		raw = raw[4:]
		if id >= fm.nextID {
			continue
		}
		if _, dup := fm.freed[id]; dup {
			continue
		}
		fm.freed[id] = struct{}{}
		fm.free = append(fm.free, id)
	}
	return nil
}

// saveFreeList replaces the sidecar with ids through a temp file and rename.
func (fm *FileDiskManager) saveFreeList(ids []PageID) error {
	buf := make([]byte, 0, 4*len(ids))
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	}
	path := fm.fs.freeListPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, FileMode0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func locate(id PageID) (segNo int32, offset int64) {
	segNo = int32(id / MaxPagePerSegment)
	offset = int64(id%MaxPagePerSegment) * PageSize
	return segNo, offset
}

// countPages sums whole pages across consecutive segments, stopping at the
// first missing segment file.
func countPages(fs LocalFileSet) (uint32, error) {
	var total uint32
	for segNo := int32(0); ; segNo++ {
		info, err := os.Stat(fs.segmentPath(segNo))
		if err != nil {
			if os.IsNotExist(err) {
				return total, nil
			}
			return 0, err
		}
		total += uint32(info.Size() / PageSize)
		if info.Size() < SegmentSize {
			return total, nil
		}
	}
}

func (fm *FileDiskManager) allocatedLocked(id PageID) bool {
	if id >= fm.nextID {
		return false
	}
	_, gone := fm.freed[id]
	return !gone
}

// ReadPage reads exactly one page into dst. If the segment is shorter than
// the page's offset, the remainder is zero-filled.
func (fm *FileDiskManager) ReadPage(id PageID, dst []byte) error {
	if err := checkPageBuf(dst); err != nil {
		return err
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.closed {
		return ErrClosed
	}
	if !fm.allocatedLocked(id) {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}

	segNo, off := locate(id)
	f, err := fm.fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return err
	}
	// Zero-fill the rest of the page if we hit EOF early or a short read.
	clear(dst[n:])
	return nil
}

// WritePage writes exactly one page from src at the location computed from id.
func (fm *FileDiskManager) WritePage(id PageID, src []byte) error {
	if err := checkPageBuf(src); err != nil {
		return err
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.closed {
		return ErrClosed
	}
	if !fm.allocatedLocked(id) {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}

	return fm.writeAtLocked(id, src)
}

func (fm *FileDiskManager) writeAtLocked(id PageID, src []byte) error {
	segNo, off := locate(id)
	f, err := fm.fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

func (fm *FileDiskManager) AllocatePage() (PageID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.closed {
		return InvalidPageID, ErrClosed
	}
	// New pages are written out zero-filled, so a recycled id never shows
	// its old bytes and a reopen counts the page.
	zero := make([]byte, PageSize)
	if n := len(fm.free); n > 0 {
		id := fm.free[n-1]
		if err := fm.writeAtLocked(id, zero); err != nil {
			return InvalidPageID, fmt.Errorf("allocate page %d: %w", id, err)
		}
		if err := fm.saveFreeList(fm.free[:n-1]); err != nil {
			return InvalidPageID, fmt.Errorf("allocate page %d: %w", id, err)
		}
		fm.free = fm.free[:n-1]
		delete(fm.freed, id)
		return id, nil
	}
	if fm.nextID == InvalidPageID {
		return InvalidPageID, fmt.Errorf("storage: page id space exhausted")
	}
	id := fm.nextID
	if err := fm.writeAtLocked(id, zero); err != nil {
		return InvalidPageID, fmt.Errorf("allocate page %d: %w", id, err)
	}
	fm.nextID++
	return id, nil
}

func (fm *FileDiskManager) DeallocatePage(id PageID) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.closed {
		return ErrClosed
	}
	if !fm.allocatedLocked(id) {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	free := append(slices.Clip(fm.free), id)
	if err := fm.saveFreeList(free); err != nil {
		return fmt.Errorf("deallocate page %d: %w", id, err)
	}
	fm.freed[id] = struct{}{}
	fm.free = free
	return nil
}

// NumPages reports how many page ids have ever been handed out.
func (fm *FileDiskManager) NumPages() uint32 {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return uint32(fm.nextID)
}

func (fm *FileDiskManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.closed = true
	return nil
}
