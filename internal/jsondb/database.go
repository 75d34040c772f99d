package jsondb

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/maruel/mockdb/internal/config"
	"github.com/maruel/mockdb/internal/document"
)

// State is the lifecycle state of a Database.
type State int

const (
	// Unloaded means Load was never called.
	Unloaded State = iota
	// Loaded means a document is in memory.
	Loaded
	// Failed means the last Load or Open failed; no document is held.
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	defaultLockTimeout = 3 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

var (
	// ErrNotReady is returned by operations on a store that holds no document.
	ErrNotReady = errors.New("database is not loaded")
	// ErrRoot is returned when trying to remove the document root.
	ErrRoot = errors.New("cannot remove the document root")

	errEmptyFile = errors.New("file is empty")
)

// LoadError reports why the backing file could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// FlushError reports why the document could not be written.
type FlushError struct {
	Path string
	Err  error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("failed to flush %s: %v", e.Path, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// Database owns one document tree and its backing file.
type Database struct {
	log *slog.Logger

	mu      sync.Mutex
	cfg     *config.Database
	lock    *flock.Flock
	state   State
	failure error
	data    *document.Value
	// sum is the hash of the bytes last read from or written to the file.
	sum [sha256.Size]byte
}

// New returns an Unloaded Database. A nil logger means slog.Default().
func New(logger *slog.Logger) *Database {
	if logger == nil {
		logger = slog.Default()
	}
	return &Database{log: logger}
}

// State returns the current state and, when Failed, the load error.
func (db *Database) State() (State, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state, db.failure
}

// Path returns the bound file path, or "" before Load.
func (db *Database) Path() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.cfg == nil {
		return ""
	}
	return db.cfg.Path
}

// Load binds cfg and reads the document from cfg.Path.
//
// The previous document, if any, is discarded whether or not loading succeeds.
func (db *Database) Load(ctx context.Context, cfg config.Database) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.cfg = &cfg
	db.lock = flock.New(cfg.Path + ".lock")
	return db.openLocked(ctx)
}

// Open rereads the document from the bound file.
func (db *Database) Open(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.cfg == nil {
		return ErrNotReady
	}
	return db.openLocked(ctx)
}

func (db *Database) openLocked(ctx context.Context) error {
	path := db.cfg.Path
	db.log.InfoContext(ctx, "Database connecting", "path", path)
	v, data, err := db.readLocked(ctx)
	if err != nil {
		db.state = Failed
		db.data = nil
		db.sum = [sha256.Size]byte{}
		db.failure = &LoadError{Path: path, Err: err}
		db.log.ErrorContext(ctx, "Database failed to load", "path", path, "err", err)
		return db.failure
	}
	db.data = v
	db.sum = sha256.Sum256(data)
	db.state = Loaded
	db.failure = nil
	db.log.InfoContext(ctx, "Database loaded", "path", path, "bytes", len(data))
	return nil
}

// readLocked reads and parses the bound file under the file lock.
func (db *Database) readLocked(ctx context.Context) (*document.Value, []byte, error) {
	var data []byte
	err := db.withFileLock(ctx, func() error {
		var err error
		data, err = os.ReadFile(db.cfg.Path)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if len(data) == 0 {
		return nil, nil, errEmptyFile
	}
	v, err := document.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid JSON document: %w", err)
	}
	return v, data, nil
}

func (db *Database) withFileLock(ctx context.Context, fn func() error) error {
	timeout := db.cfg.LockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	locked, err := db.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", db.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("could not acquire lock %s", db.lock.Path())
	}
	defer func() {
		_ = db.lock.Unlock()
	}()
	return fn()
}

// Flush writes the whole document back to the bound file.
func (db *Database) Flush(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.flushLocked(ctx)
}

func (db *Database) flushLocked(ctx context.Context) error {
	if db.state != Loaded {
		return ErrNotReady
	}
	path := db.cfg.Path
	data, err := db.data.MarshalJSON()
	if err != nil {
		return &FlushError{Path: path, Err: fmt.Errorf("failed to serialize: %w", err)}
	}
	db.log.DebugContext(ctx, "Flush started", "path", path)
	if err := db.withFileLock(ctx, func() error { return writeFileAtomic(path, data) }); err != nil {
		db.log.ErrorContext(ctx, "Flush failed", "path", path, "err", err)
		return &FlushError{Path: path, Err: err}
	}
	db.sum = sha256.Sum256(data)
	db.log.InfoContext(ctx, "Flush ok", "path", path, "bytes", len(data))
	return nil
}

// Resolve returns a handle on the node at path without locking.
//
// It must not be called concurrently with any other method or with Watch.
func (db *Database) Resolve(path []string) (*document.Value, error) {
	if db.state != Loaded {
		return nil, ErrNotReady
	}
	return document.Resolve(db.data, path)
}

// View calls fn with the node at path while holding the store lock.
//
// fn must not retain or mutate the node.
func (db *Database) View(path []string, fn func(*document.Value) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.state != Loaded {
		return ErrNotReady
	}
	v, err := document.Resolve(db.data, path)
	if err != nil {
		return err
	}
	return fn(v)
}

// Modify calls fn with the node at path and flushes when fn succeeds, all
// while holding the store lock.
//
// When fn fails nothing is flushed; fn is responsible for leaving the node
// consistent. When the flush fails the mutation stays in memory and the
// *FlushError is returned.
func (db *Database) Modify(ctx context.Context, path []string, fn func(*document.Value) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.state != Loaded {
		return ErrNotReady
	}
	v, err := document.Resolve(db.data, path)
	if err != nil {
		return err
	}
	if err := fn(v); err != nil {
		return err
	}
	return db.flushLocked(ctx)
}

// Remove deletes the node at path from its parent and flushes.
func (db *Database) Remove(ctx context.Context, path []string) error {
	if len(path) == 0 {
		return ErrRoot
	}
	last := path[len(path)-1]
	return db.Modify(ctx, path[:len(path)-1], func(parent *document.Value) error {
		return document.Remove(parent, last)
	})
}
