package bufferpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novapool/internal/storage"
)

var DefaultCapacity = 128

type Options struct {
	Capacity int
	Policy   Policy

	// FetchTimeout > 0 makes FetchPage wait up to this long for a frame to be
	// released instead of failing with ErrPoolExhausted right away.
	FetchTimeout time.Duration

	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Capacity int
	Resident int
	Pinned   int
	Dirty    int

	Hits       uint64
	Misses     uint64
	Evictions  uint64
	WriteBacks uint64
}

// Pool is a fixed-capacity page cache over a DiskManager.
//
// A single mutex guards the page table, frame metadata and replacer, and is
// held across disk I/O.
type Pool struct {
	disk         storage.DiskManager
	log          *slog.Logger
	fetchTimeout time.Duration

	mu       sync.Mutex
	arena    *frameArena
	table    *pageTable
	replacer Replacer
	released chan struct{} // closed and replaced whenever a frame becomes reusable
	closed   bool
	stats    Stats
}

func NewPool(disk storage.DiskManager, opts Options) (*Pool, error) {
	if disk == nil {
		return nil, errors.New("bufferpool: nil disk manager")
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	repl, err := newReplacer(opts.Policy, capacity)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	arena := newFrameArena(capacity)
	return &Pool{
		disk:         disk,
		log:          logger.With("component", "bufferpool", "pool_id", uuid.NewString()),
		fetchTimeout: opts.FetchTimeout,
		arena:        arena,
		table:        newPageTable(arena),
		replacer:     repl,
		released:     make(chan struct{}),
		stats:        Stats{Capacity: capacity},
	}, nil
}

// FetchPage pins and returns page id, loading it from disk on a miss.
func (p *Pool) FetchPage(id storage.PageID) (*Page, error) {
	if p.fetchTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.fetchTimeout)
		defer cancel()
		return p.FetchPageWait(ctx, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchLocked(id)
}

// FetchPageWait behaves like FetchPage but, while every frame is pinned,
// waits for one to be released until ctx is done.
func (p *Pool) FetchPageWait(ctx context.Context, id storage.PageID) (*Page, error) {
	for {
		p.mu.Lock()
		pg, err := p.fetchLocked(id)
		if !errors.Is(err, ErrPoolExhausted) {
			p.mu.Unlock()
			return pg, err
		}
		released := p.released
		p.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: page %d: %w", ErrWaitTimeout, id, ctx.Err())
		}
	}
}

func (p *Pool) fetchLocked(id storage.PageID) (*Page, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}

	// 1) HIT
	fid, ok, err := p.table.lookup(id)
	if err != nil {
		return nil, err
	}
	if ok {
		p.pinLocked(fid)
		p.stats.Hits++
		return p.handle(fid), nil
	}

	// 2) MISS: free slot or victim
	fid, err = p.acquireFrameLocked()
	if err != nil {
		return nil, err
	}

	f := p.arena.frame(fid)
	if err := p.disk.ReadPage(id, f.data); err != nil {
		p.arena.reset(fid)
		p.arena.release(fid)
		p.notifyReleasedLocked()
		return nil, &IOError{Op: "read", PageID: id, Err: err}
	}

	if err := p.installLocked(fid, id, false); err != nil {
		return nil, err
	}
	p.stats.Misses++
	p.log.Debug("bufferpool: loaded page", "page", id, "frame", fid)
	return p.handle(fid), nil
}

// acquireFrameLocked returns an empty, non-resident frame. When no slot is
// free it evicts the replacer's victim, writing it back first if dirty. On
// any error nothing has been mutated.
func (p *Pool) acquireFrameLocked() (FrameID, error) {
	fid, evict, err := p.pickFrameLocked()
	if err != nil {
		return -1, err
	}
	if err := p.claimFrameLocked(fid, evict); err != nil {
		return -1, err
	}
	return fid, nil
}

// pickFrameLocked chooses the frame the next install will use, a free slot
// first and otherwise the replacer's victim. It changes nothing.
func (p *Pool) pickFrameLocked() (fid FrameID, evict bool, err error) {
	if fid, ok := p.arena.peekFree(); ok {
		return fid, false, nil
	}

	fid, ok := p.replacer.Victim()
	if !ok {
		return -1, false, ErrPoolExhausted
	}
	victim := p.arena.frame(fid)
	if !victim.Resident || victim.Pin != 0 {
		return -1, false, fmt.Errorf("%w: victim frame %d is pinned or empty", ErrCorrupted, fid)
	}
	return fid, true, nil
}

// claimFrameLocked takes the frame picked by pickFrameLocked. A dirty victim
// is written back before it is dropped; if that write fails the victim stays
// resident and dirty.
func (p *Pool) claimFrameLocked(fid FrameID, evict bool) error {
	if !evict {
		p.arena.takeFree()
		return nil
	}

	victim := p.arena.frame(fid)
	wasDirty := victim.Dirty
	if wasDirty {
		if err := p.disk.WritePage(victim.PageID, victim.data); err != nil {
			p.log.Warn("bufferpool: write-back of victim failed",
				"page", victim.PageID, "frame", fid, "err", err)
			return &IOError{Op: "write", PageID: victim.PageID, Err: err}
		}
		victim.Dirty = false
		p.stats.WriteBacks++
	}

	victimID := victim.PageID
	if err := p.table.remove(victimID); err != nil {
		return err
	}
	p.replacer.Remove(fid)
	p.arena.reset(fid)
	p.stats.Evictions++

	p.log.Debug("bufferpool: evicted page", "page", victimID, "frame", fid, "dirty", wasDirty)
	return nil
}

// installLocked makes fid resident for id with a single pin.
func (p *Pool) installLocked(fid FrameID, id storage.PageID, dirty bool) error {
	f := p.arena.frame(fid)
	f.PageID = id
	f.Resident = true
	f.Dirty = dirty
	f.Pin = 1

	if err := p.table.insert(id, fid); err != nil {
		p.arena.reset(fid)
		p.arena.release(fid)
		return err
	}
	p.replacer.RecordAccess(fid)
	p.replacer.SetEvictable(fid, false)
	return nil
}

func (p *Pool) pinLocked(fid FrameID) {
	wasZero := p.arena.frame(fid).Pin == 0
	p.arena.pin(fid)

	p.replacer.RecordAccess(fid)
	if wasZero {
		p.replacer.SetEvictable(fid, false)
	}
}

func (p *Pool) handle(fid FrameID) *Page {
	f := p.arena.frame(fid)
	return &Page{pool: p, id: f.PageID, frame: fid, data: f.data}
}

func (p *Pool) notifyReleasedLocked() {
	close(p.released)
	p.released = make(chan struct{})
}

// UnpinPage drops one pin on id and, if dirty, marks it dirty until the next
// successful flush.
func (p *Pool) UnpinPage(id storage.PageID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	fid, ok, err := p.table.lookup(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: page %d is not resident", ErrInvalidState, id)
	}
	if err := p.arena.unpin(fid); err != nil {
		return err
	}
	if dirty {
		p.arena.markDirty(fid)
	}
	if p.arena.frame(fid).Pin == 0 {
		p.replacer.SetEvictable(fid, true)
		p.notifyReleasedLocked()
	}
	return nil
}

// FlushPage writes id back if it is dirty. A clean page costs no I/O.
func (p *Pool) FlushPage(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	fid, ok, err := p.table.lookup(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: page %d is not resident", ErrInvalidState, id)
	}
	return p.flushFrameLocked(fid)
}

func (p *Pool) flushFrameLocked(fid FrameID) error {
	f := p.arena.frame(fid)
	if !f.Dirty {
		return nil
	}
	if err := p.disk.WritePage(f.PageID, f.data); err != nil {
		return &IOError{Op: "write", PageID: f.PageID, Err: err}
	}
	f.Dirty = false
	p.stats.WriteBacks++
	return nil
}

// FlushAll writes back every dirty resident page. It keeps going past
// failures and returns the ids that could not be written, in ascending
// order, along with the joined errors.
func (p *Pool) FlushAll() ([]storage.PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	return p.flushAllLocked()
}

func (p *Pool) flushAllLocked() ([]storage.PageID, error) {
	var (
		failed []storage.PageID
		errs   []error
	)
	for i := range p.arena.frames {
		f := &p.arena.frames[i]
		if !f.Resident || !f.Dirty {
			continue
		}
		if err := p.flushFrameLocked(FrameID(i)); err != nil {
			p.log.Warn("bufferpool: flush failed", "page", f.PageID, "frame", i, "err", err)
			failed = append(failed, f.PageID)
			errs = append(errs, err)
		}
	}
	slices.Sort(failed)
	return failed, errors.Join(errs...)
}

// NewPage allocates a fresh page id and returns it pinned, zero-filled and
// dirty.
func (p *Pool) NewPage() (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	// A full pool spends no id, and a failed allocation leaves every frame
	// untouched.
	fid, evict, err := p.pickFrameLocked()
	if err != nil {
		return nil, err
	}

	id, err := p.disk.AllocatePage()
	if err != nil {
		return nil, &IOError{Op: "allocate", PageID: storage.InvalidPageID, Err: err}
	}

	if err := p.claimFrameLocked(fid, evict); err != nil {
		if derr := p.disk.DeallocatePage(id); derr != nil {
			p.log.Warn("bufferpool: could not give back page id", "page", id, "err", derr)
		}
		return nil, err
	}

	if err := p.installLocked(fid, id, true); err != nil {
		return nil, err
	}
	p.log.Debug("bufferpool: new page", "page", id, "frame", fid)
	return p.handle(fid), nil
}

// DeletePage drops an unpinned resident page from the pool and frees its id.
// Dirty contents are discarded, not written.
func (p *Pool) DeletePage(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	fid, ok, err := p.table.lookup(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: page %d is not resident", ErrInvalidState, id)
	}
	if p.arena.frame(fid).Pin > 0 {
		return fmt.Errorf("%w: page %d", ErrInUse, id)
	}

	if err := p.disk.DeallocatePage(id); err != nil {
		return &IOError{Op: "deallocate", PageID: id, Err: err}
	}

	if err := p.table.remove(id); err != nil {
		return err
	}
	p.replacer.Remove(fid)
	p.arena.reset(fid)
	p.arena.release(fid)
	p.notifyReleasedLocked()

	p.log.Debug("bufferpool: deleted page", "page", id, "frame", fid)
	return nil
}

// Close flushes every dirty page and shuts the pool. If any flush fails the
// pool stays open and the error is returned so the caller can retry. The
// DiskManager is left open.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	if failed, err := p.flushAllLocked(); err != nil {
		return fmt.Errorf("bufferpool: close: %d pages not flushed: %w", len(failed), err)
	}
	p.closed = true
	p.notifyReleasedLocked()
	return nil
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Resident = p.table.count()
	for i := range p.arena.frames {
		f := &p.arena.frames[i]
		if !f.Resident {
			continue
		}
		if f.Pin > 0 {
			s.Pinned++
		}
		if f.Dirty {
			s.Dirty++
		}
	}
	return s
}
