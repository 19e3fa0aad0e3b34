package storage

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

var _ DiskManager = (*SQLiteDiskManager)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pages (
	id       INTEGER PRIMARY KEY,
	data     BLOB NOT NULL,
	checksum BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS free_pages (
	id INTEGER PRIMARY KEY
);`

// SQLiteDiskManager stores each page as a row in a sqlite database. Every
// write records a BLAKE3 digest of the page which is verified on read.
type SQLiteDiskManager struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

func OpenSQLiteDiskManager(path string) (*SQLiteDiskManager, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteDiskManager{db: db}, nil
}

func pageChecksum(b []byte) []byte {
	sum := blake3.Sum256(b)
	return sum[:]
}

func (s *SQLiteDiskManager) ReadPage(id PageID, dst []byte) error {
	if err := checkPageBuf(dst); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	var data, sum []byte
	err := s.db.QueryRow(`SELECT data, checksum FROM pages WHERE id = ?`, int64(id)).Scan(&data, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read page %d: %w", id, err)
	}
	if len(data) != PageSize {
		return fmt.Errorf("read page %d: stored %d bytes: %w", id, len(data), ErrInvalidPageSize)
	}
	if !bytes.Equal(sum, pageChecksum(data)) {
		return fmt.Errorf("%w: page %d", ErrChecksumMismatch, id)
	}
	copy(dst, data)
	return nil
}

func (s *SQLiteDiskManager) WritePage(id PageID, src []byte) error {
	if err := checkPageBuf(src); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	res, err := s.db.Exec(`UPDATE pages SET data = ?, checksum = ? WHERE id = ?`,
		src, pageChecksum(src), int64(id))
	if err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	return nil
}

// AllocatePage reuses the lowest freed id, otherwise extends past the highest
// id ever seen. The new page is stored zero-filled.
func (s *SQLiteDiskManager) AllocatePage() (PageID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return InvalidPageID, ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return InvalidPageID, fmt.Errorf("allocate page: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRow(`SELECT id FROM free_pages ORDER BY id LIMIT 1`).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRow(`SELECT COALESCE(MAX(id) + 1, 0) FROM (
			SELECT id FROM pages UNION ALL SELECT id FROM free_pages)`).Scan(&id)
		if err != nil {
			return InvalidPageID, fmt.Errorf("allocate page: %w", err)
		}
	case err != nil:
		return InvalidPageID, fmt.Errorf("allocate page: %w", err)
	default:
		if _, err := tx.Exec(`DELETE FROM free_pages WHERE id = ?`, id); err != nil {
			return InvalidPageID, fmt.Errorf("allocate page: %w", err)
		}
	}
	if id >= int64(InvalidPageID) {
		return InvalidPageID, fmt.Errorf("storage: page id space exhausted")
	}

	zero := make([]byte, PageSize)
	if _, err := tx.Exec(`INSERT INTO pages (id, data, checksum) VALUES (?, ?, ?)`,
		id, zero, pageChecksum(zero)); err != nil {
		return InvalidPageID, fmt.Errorf("allocate page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return InvalidPageID, fmt.Errorf("allocate page: %w", err)
	}
	return PageID(id), nil
}

func (s *SQLiteDiskManager) DeallocatePage(id PageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("deallocate page %d: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM pages WHERE id = ?`, int64(id))
	if err != nil {
		return fmt.Errorf("deallocate page %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	if _, err := tx.Exec(`INSERT INTO free_pages (id) VALUES (?)`, int64(id)); err != nil {
		return fmt.Errorf("deallocate page %d: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteDiskManager) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
