package bufferpool

import (
	"errors"
	"sync"

	"github.com/tuannm99/novapool/internal/storage"
)

var errInjected = errors.New("injected disk failure")

type writeRecord struct {
	id   storage.PageID
	data []byte
}

// faultyDisk wraps MemDiskManager, records every call and fails the ones
// the test asks it to.
type faultyDisk struct {
	*storage.MemDiskManager

	mu          sync.Mutex
	failRead    map[storage.PageID]bool
	failWrite   map[storage.PageID]bool
	failAlloc   bool
	failDealloc bool
	reads       []storage.PageID
	writes      []writeRecord
}

func newFaultyDisk() *faultyDisk {
	return &faultyDisk{
		MemDiskManager: storage.NewMemDiskManager(),
		failRead:       make(map[storage.PageID]bool),
		failWrite:      make(map[storage.PageID]bool),
	}
}

func (d *faultyDisk) ReadPage(id storage.PageID, dst []byte) error {
	d.mu.Lock()
	fail := d.failRead[id]
	d.mu.Unlock()
	if fail {
		// Scribble over dst the way a torn read might.
		dst[0] = 0xEE
		return errInjected
	}
	if err := d.MemDiskManager.ReadPage(id, dst); err != nil {
		return err
	}
	d.mu.Lock()
	d.reads = append(d.reads, id)
	d.mu.Unlock()
	return nil
}

func (d *faultyDisk) WritePage(id storage.PageID, src []byte) error {
	d.mu.Lock()
	fail := d.failWrite[id]
	d.mu.Unlock()
	if fail {
		return errInjected
	}
	if err := d.MemDiskManager.WritePage(id, src); err != nil {
		return err
	}
	d.mu.Lock()
	d.writes = append(d.writes, writeRecord{id: id, data: append([]byte(nil), src...)})
	d.mu.Unlock()
	return nil
}

func (d *faultyDisk) AllocatePage() (storage.PageID, error) {
	if d.failAlloc {
		return storage.InvalidPageID, errInjected
	}
	return d.MemDiskManager.AllocatePage()
}

func (d *faultyDisk) DeallocatePage(id storage.PageID) error {
	if d.failDealloc {
		return errInjected
	}
	return d.MemDiskManager.DeallocatePage(id)
}

func (d *faultyDisk) setFailWrite(id storage.PageID, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrite[id] = fail
}

func (d *faultyDisk) setFailRead(id storage.PageID, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failRead[id] = fail
}

func (d *faultyDisk) writesFor(id storage.PageID) []writeRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []writeRecord
	for _, w := range d.writes {
		if w.id == id {
			out = append(out, w)
		}
	}
	return out
}

func (d *faultyDisk) writeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func (d *faultyDisk) readCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reads)
}

func (d *faultyDisk) resetLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads = nil
	d.writes = nil
}
