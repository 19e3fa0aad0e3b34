package bufferpool

import (
	"fmt"

	"github.com/tuannm99/novapool/internal/storage"
)

// FrameID indexes a slot in the pool's frame arena.
type FrameID int

// Frame is one cache slot. Its data buffer is carved out of the arena at
// construction and never reallocated; only the metadata changes.
type Frame struct {
	PageID   storage.PageID
	Resident bool
	Dirty    bool
	Pin      int32

	data []byte
}

// frameArena owns every frame and the backing memory for their pages.
type frameArena struct {
	frames []Frame
	free   []FrameID // stack of non-resident slots, top at the end
}

func newFrameArena(capacity int) *frameArena {
	mem := make([]byte, capacity*storage.PageSize)
	a := &frameArena{
		frames: make([]Frame, capacity),
		free:   make([]FrameID, 0, capacity),
	}
	for i := range a.frames {
		lo, hi := i*storage.PageSize, (i+1)*storage.PageSize
		a.frames[i] = Frame{PageID: storage.InvalidPageID, data: mem[lo:hi:hi]}
	}
	// Push in reverse so frames are handed out 0, 1, 2, ...
	for i := capacity - 1; i >= 0; i-- {
		a.free = append(a.free, FrameID(i))
	}
	return a
}

func (a *frameArena) size() int { return len(a.frames) }

func (a *frameArena) frame(fid FrameID) *Frame { return &a.frames[fid] }

// peekFree reports the slot takeFree would return without removing it.
func (a *frameArena) peekFree() (FrameID, bool) {
	n := len(a.free)
	if n == 0 {
		return -1, false
	}
	return a.free[n-1], true
}

func (a *frameArena) takeFree() (FrameID, bool) {
	n := len(a.free)
	if n == 0 {
		return -1, false
	}
	fid := a.free[n-1]
	a.free = a.free[:n-1]
	return fid, true
}

// release returns a reset frame to the free stack.
func (a *frameArena) release(fid FrameID) {
	a.free = append(a.free, fid)
}

func (a *frameArena) reset(fid FrameID) {
	f := &a.frames[fid]
	f.PageID = storage.InvalidPageID
	f.Resident = false
	f.Dirty = false
	f.Pin = 0
	clear(f.data)
}

func (a *frameArena) pin(fid FrameID) {
	a.frames[fid].Pin++
}

func (a *frameArena) unpin(fid FrameID) error {
	f := &a.frames[fid]
	if f.Pin <= 0 {
		return fmt.Errorf("%w: page %d is not pinned", ErrInvalidState, f.PageID)
	}
	f.Pin--
	return nil
}

func (a *frameArena) markDirty(fid FrameID) {
	a.frames[fid].Dirty = true
}
