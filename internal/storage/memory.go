package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var _ DiskManager = (*MemDiskManager)(nil)

// MemDiskManager keeps pages in process memory. Reads and writes copy, so a
// caller never shares a buffer with the store.
type MemDiskManager struct {
	mu     sync.Mutex
	pages  map[PageID][]byte
	nextID PageID
	free   []PageID
	closed bool

	reads  atomic.Uint64
	writes atomic.Uint64
}

func NewMemDiskManager() *MemDiskManager {
	return &MemDiskManager{pages: make(map[PageID][]byte)}
}

func (m *MemDiskManager) ReadPage(id PageID, dst []byte) error {
	if err := checkPageBuf(dst); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	buf, ok := m.pages[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	copy(dst, buf)
	m.reads.Add(1)
	return nil
}

func (m *MemDiskManager) WritePage(id PageID, src []byte) error {
	if err := checkPageBuf(src); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	buf, ok := m.pages[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	copy(buf, src)
	m.writes.Add(1)
	return nil
}

func (m *MemDiskManager) AllocatePage() (PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return InvalidPageID, ErrClosed
	}
	var id PageID
	if n := len(m.free); n > 0 {
		id = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		id = m.nextID
		m.nextID++
	}
	m.pages[id] = make([]byte, PageSize)
	return id, nil
}

func (m *MemDiskManager) DeallocatePage(id PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.pages[id]; !ok {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	delete(m.pages, id)
	m.free = append(m.free, id)
	return nil
}

func (m *MemDiskManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Reads returns the number of successful ReadPage calls.
func (m *MemDiskManager) Reads() uint64 { return m.reads.Load() }

// Writes returns the number of successful WritePage calls.
func (m *MemDiskManager) Writes() uint64 { return m.writes.Load() }
