package bufferpool

// LRUReplacer keeps known frames on an index-linked recency list. The head is
// the least recently accessed frame, the tail the most recent.
type LRUReplacer struct {
	prev      []FrameID
	next      []FrameID
	present   []bool
	evictable []bool
	head      FrameID
	tail      FrameID
	size      int // number of evictable frames
}

var _ Replacer = (*LRUReplacer)(nil)

func NewLRUReplacer(capacity int) *LRUReplacer {
	if capacity <= 0 {
		capacity = 1
	}
	r := &LRUReplacer{
		prev:      make([]FrameID, capacity),
		next:      make([]FrameID, capacity),
		present:   make([]bool, capacity),
		evictable: make([]bool, capacity),
		head:      -1,
		tail:      -1,
	}
	for i := range r.prev {
		r.prev[i] = -1
		r.next[i] = -1
	}
	return r
}

func (r *LRUReplacer) inRange(fid FrameID) bool {
	return fid >= 0 && int(fid) < len(r.present)
}

// RecordAccess moves fid to the most-recent end.
func (r *LRUReplacer) RecordAccess(fid FrameID) {
	if !r.inRange(fid) {
		return
	}
	if r.present[fid] {
		if r.tail == fid {
			return
		}
		r.unlink(fid)
	}
	r.present[fid] = true
	r.pushTail(fid)
}

func (r *LRUReplacer) SetEvictable(fid FrameID, evictable bool) {
	if !r.inRange(fid) || !r.present[fid] {
		return
	}
	if r.evictable[fid] == evictable {
		return
	}
	r.evictable[fid] = evictable
	if evictable {
		r.size++
	} else {
		r.size--
	}
}

// Victim walks from the least recently used end and returns the first
// evictable frame.
func (r *LRUReplacer) Victim() (FrameID, bool) {
	if r.size == 0 {
		return -1, false
	}
	for cur := r.head; cur != -1; cur = r.next[cur] {
		if r.evictable[cur] {
			return cur, true
		}
	}
	return -1, false
}

func (r *LRUReplacer) Remove(fid FrameID) {
	if !r.inRange(fid) || !r.present[fid] {
		return
	}
	if r.evictable[fid] {
		r.size--
	}
	r.unlink(fid)
	r.present[fid] = false
	r.evictable[fid] = false
}

func (r *LRUReplacer) Size() int { return r.size }

func (r *LRUReplacer) pushTail(fid FrameID) {
	r.prev[fid] = r.tail
	r.next[fid] = -1
	if r.tail != -1 {
		r.next[r.tail] = fid
	}
	r.tail = fid
	if r.head == -1 {
		r.head = fid
	}
}

func (r *LRUReplacer) unlink(fid FrameID) {
	prev, next := r.prev[fid], r.next[fid]
	if prev != -1 {
		r.next[prev] = next
	} else {
		r.head = next
	}
	if next != -1 {
		r.prev[next] = prev
	} else {
		r.tail = prev
	}
	r.prev[fid] = -1
	r.next[fid] = -1
}
