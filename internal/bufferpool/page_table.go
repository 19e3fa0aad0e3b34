package bufferpool

import (
	"fmt"

	"github.com/tuannm99/novapool/internal/storage"
)

// pageTable maps resident page ids to frames. Every operation cross-checks
// the arena so a mapping can never point at a frame holding another page.
type pageTable struct {
	arena *frameArena
	m     map[storage.PageID]FrameID
}

func newPageTable(arena *frameArena) *pageTable {
	return &pageTable{
		arena: arena,
		m:     make(map[storage.PageID]FrameID, arena.size()),
	}
}

func (t *pageTable) lookup(id storage.PageID) (FrameID, bool, error) {
	fid, ok := t.m[id]
	if !ok {
		return -1, false, nil
	}
	if f := t.arena.frame(fid); !f.Resident || f.PageID != id {
		return -1, false, fmt.Errorf("%w: page %d maps to frame %d holding %d", ErrCorrupted, id, fid, f.PageID)
	}
	return fid, true, nil
}

// insert expects the frame to already carry id as its resident page.
func (t *pageTable) insert(id storage.PageID, fid FrameID) error {
	if old, ok := t.m[id]; ok {
		return fmt.Errorf("%w: page %d already mapped to frame %d", ErrCorrupted, id, old)
	}
	if f := t.arena.frame(fid); !f.Resident || f.PageID != id {
		return fmt.Errorf("%w: frame %d does not hold page %d", ErrCorrupted, fid, id)
	}
	t.m[id] = fid
	return nil
}

func (t *pageTable) remove(id storage.PageID) error {
	if _, ok := t.m[id]; !ok {
		return fmt.Errorf("%w: page %d is not mapped", ErrCorrupted, id)
	}
	delete(t.m, id)
	return nil
}

func (t *pageTable) count() int { return len(t.m) }
