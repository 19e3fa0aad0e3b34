package bufferpool

import "github.com/tuannm99/novapool/internal/storage"

// Page is a pinned handle to a resident page. Data aliases the frame buffer
// and is only valid until the matching unpin.
type Page struct {
	pool  *Pool
	id    storage.PageID
	frame FrameID
	data  []byte
}

func (pg *Page) ID() storage.PageID { return pg.id }

func (pg *Page) FrameID() FrameID { return pg.frame }

func (pg *Page) Data() []byte { return pg.data }

// Unpin releases this handle's pin; dirty reports whether Data was modified.
func (pg *Page) Unpin(dirty bool) error {
	return pg.pool.UnpinPage(pg.id, dirty)
}
