// Package store persists compiled program images and run history in SQLite.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/sysy/vm"
)

var log = commonlog.GetLogger("sysy.store")

// ErrNotFound indicates the requested image or run doesn't exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS images (
	hash       TEXT PRIMARY KEY,
	image      BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	hash        TEXT NOT NULL,
	exit_value  INTEGER NOT NULL,
	output      TEXT NOT NULL,
	error       TEXT NOT NULL,
	steps       INTEGER NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_hash ON runs (hash, started_at);
`

// Store is a compile cache keyed by source hash plus a run log.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the database at path. The special path
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	log.Debugf("opened store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Hash returns the cache key for a source text.
func Hash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// PutImage caches the encoded program for the given source hash.
func (s *Store) PutImage(hash string, p *vm.Program) error {
	data, err := vm.MarshalImage(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO images (hash, image, created_at) VALUES (?, ?, ?)",
		hash, data, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// Image loads the cached program for a source hash.
func (s *Store) Image(hash string) (*vm.Program, error) {
	var data []byte
	err := s.db.QueryRow("SELECT image FROM images WHERE hash = ?", hash).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying image: %w", err)
	}
	p, err := vm.UnmarshalImage(data)
	if err != nil {
		return nil, fmt.Errorf("cached image %s: %w", hash[:12], err)
	}
	return p, nil
}

// Compiled returns the cached program for source, or compiles it with
// compile and caches the result. compile returns nil for a source that
// cannot produce a program; such sources are not cached.
func (s *Store) Compiled(source string, compile func(string) (*vm.Program, error)) (*vm.Program, bool, error) {
	hash := Hash(source)
	p, err := s.Image(hash)
	if err == nil {
		log.Debugf("cache hit %s", hash[:12])
		return p, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		log.Warningf("discarding cache entry: %s", err)
	}

	p, err = compile(source)
	if err != nil || p == nil {
		return p, false, err
	}
	if err := s.PutImage(hash, p); err != nil {
		return nil, false, err
	}
	return p, false, nil
}

// Run is one recorded program execution.
type Run struct {
	ID       string
	Hash     string
	Exit     int64
	Output   string
	Error    string
	Steps    int
	Started  time.Time
	Duration time.Duration
}

// RecordRun stores r, assigning a fresh ID when r.ID is empty.
func (s *Store) RecordRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Started.IsZero() {
		r.Started = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, hash, exit_value, output, error, steps, started_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Hash, r.Exit, r.Output, r.Error, r.Steps, r.Started.UnixNano(), int64(r.Duration),
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

const runColumns = "id, hash, exit_value, output, error, steps, started_at, duration_ns"

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var started, dur int64
	if err := row.Scan(&r.ID, &r.Hash, &r.Exit, &r.Output, &r.Error, &r.Steps, &started, &dur); err != nil {
		return nil, err
	}
	r.Started = time.Unix(0, started)
	r.Duration = time.Duration(dur)
	return &r, nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return r, nil
}

// Runs lists the most recent runs of a source hash, newest first.
// limit <= 0 returns every run.
func (s *Store) Runs(hash string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		"SELECT "+runColumns+" FROM runs WHERE hash = ? ORDER BY started_at DESC LIMIT ?",
		hash, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
