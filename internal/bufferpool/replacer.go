package bufferpool

import "fmt"

// Replacer picks eviction victims among resident frames.
//
// A frame becomes known to the replacer on its first RecordAccess. Only
// frames marked evictable (pin count zero) may be returned by Victim, and
// dirtiness never matters. Victim does not forget the frame; the pool calls
// Remove once the eviction has actually happened.
type Replacer interface {
	RecordAccess(fid FrameID)
	SetEvictable(fid FrameID, evictable bool)
	Victim() (fid FrameID, ok bool)
	Remove(fid FrameID)
	Size() int
}

type Policy string

const (
	PolicyLRU   Policy = "lru"
	PolicyClock Policy = "clock"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyLRU:
		return PolicyLRU, nil
	case PolicyClock:
		return PolicyClock, nil
	default:
		return "", fmt.Errorf("bufferpool: unknown replacement policy %q", s)
	}
}

func newReplacer(p Policy, capacity int) (Replacer, error) {
	switch p {
	case "", PolicyLRU:
		return NewLRUReplacer(capacity), nil
	case PolicyClock:
		return NewClockReplacer(capacity), nil
	default:
		return nil, fmt.Errorf("bufferpool: unknown replacement policy %q", p)
	}
}
