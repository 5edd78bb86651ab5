// Package cache stores linked programs in SQLite so unchanged programs are
// not compiled and linked again. Entries are keyed by Key and hold the
// fused stream in its CBOR wire form.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/program"
)

var log = commonlog.GetLogger("mbasic.cache")

// ErrNotFound indicates that no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Entry describes one cached program.
type Entry struct {
	ID      uuid.UUID
	Key     string
	Name    string
	Size    int
	Created time.Time
}

// Store is a SQLite-backed cache of linked streams. It is safe for
// concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		id      TEXT PRIMARY KEY,
		digest  TEXT NOT NULL UNIQUE,
		name    TEXT NOT NULL,
		size    INTEGER NOT NULL,
		created INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("cache opened: %s", path)
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (c *Store) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores the linked stream of p under key, replacing any earlier entry.
func (c *Store) Put(key string, p *program.Program) error {
	s := p.Executable()
	if s == nil {
		return fmt.Errorf("caching %s: program is not linked", p.Name)
	}
	payload, err := bytecode.MarshalStream(s)
	if err != nil {
		return fmt.Errorf("caching %s: %w", p.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(`INSERT INTO programs (id, digest, name, size, created, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET
			name = excluded.name, size = excluded.size,
			created = excluded.created, payload = excluded.payload`,
		uuid.NewString(), key, p.Name, s.Size(), time.Now().Unix(), payload)
	if err != nil {
		return fmt.Errorf("saving %s: %w", p.Name, err)
	}
	log.Debugf("cached %s (%d instructions, %d bytes)", p.Name, s.Size(), len(payload))
	return nil
}

// Get returns the stream cached under key.
func (c *Store) Get(key string) (*bytecode.Stream, error) {
	var payload []byte
	err := c.db.QueryRow("SELECT payload FROM programs WHERE digest = ?", key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying cache: %w", err)
	}
	s, err := bytecode.UnmarshalStream(payload)
	if err != nil {
		return nil, err
	}
	if !s.Linked() {
		return nil, fmt.Errorf("cache entry %s holds an unlinked stream", key)
	}
	return s, nil
}

// Restore installs the stream cached under key into p. It reports false
// on a miss, leaving p untouched.
func (c *Store) Restore(key string, p *program.Program) (bool, error) {
	s, err := c.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.SetExecutable(s)
	log.Debugf("restored %s from cache", p.Name)
	return true, nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (c *Store) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM programs WHERE digest = ?", key); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Entries lists the cached programs, newest first.
func (c *Store) Entries() ([]Entry, error) {
	rows, err := c.db.Query("SELECT id, digest, name, size, created FROM programs ORDER BY created DESC, name")
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			id      string
			created int64
		)
		if err := rows.Scan(&id, &e.Key, &e.Name, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("reading cache entry: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("cache entry %s: %w", e.Key, err)
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
