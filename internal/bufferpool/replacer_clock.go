package bufferpool

// ClockReplacer implements CLOCK (second-chance) replacement over frame ids
// [0..capacity). It tracks a ref bit and the evictable state per frame.
type ClockReplacer struct {
	ref       []bool
	evictable []bool
	present   []bool
	hand      int
	size      int // number of evictable frames
}

var _ Replacer = (*ClockReplacer)(nil)

func NewClockReplacer(capacity int) *ClockReplacer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ClockReplacer{
		ref:       make([]bool, capacity),
		evictable: make([]bool, capacity),
		present:   make([]bool, capacity),
	}
}

func (c *ClockReplacer) inRange(fid FrameID) bool {
	return fid >= 0 && int(fid) < len(c.ref)
}

// RecordAccess marks the frame as recently used.
func (c *ClockReplacer) RecordAccess(fid FrameID) {
	if !c.inRange(fid) {
		return
	}
	c.present[fid] = true
	c.ref[fid] = true
}

func (c *ClockReplacer) SetEvictable(fid FrameID, evictable bool) {
	if !c.inRange(fid) || !c.present[fid] {
		return
	}
	if c.evictable[fid] == evictable {
		return
	}
	c.evictable[fid] = evictable
	if evictable {
		c.size++
	} else {
		c.size--
	}
}

// Victim sweeps from the hand, clearing ref bits, and returns the first
// evictable frame whose bit is already clear. The hand stops just past it.
func (c *ClockReplacer) Victim() (FrameID, bool) {
	n := len(c.ref)
	if c.size == 0 {
		return -1, false
	}

	// Up to 2 sweeps: the first may only clear ref bits.
	for range 2 * n {
		idx := c.hand
		c.hand = (c.hand + 1) % n

		if !c.present[idx] || !c.evictable[idx] {
			continue
		}
		if !c.ref[idx] {
			return FrameID(idx), true
		}
		// Second chance.
		c.ref[idx] = false
	}
	return -1, false
}

func (c *ClockReplacer) Remove(fid FrameID) {
	if !c.inRange(fid) || !c.present[fid] {
		return
	}
	if c.evictable[fid] {
		c.size--
	}
	c.present[fid] = false
	c.evictable[fid] = false
	c.ref[fid] = false
}

func (c *ClockReplacer) Size() int { return c.size }
