package jsondb

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the document whenever another process rewrites the bound
// file, until ctx is canceled.
//
// Changes whose content matches the last flush are ignored. An edit that does
// not parse is logged and the current document kept.
func (db *Database) Watch(ctx context.Context) error {
	path := db.Path()
	if path == "" {
		return ErrNotReady
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: an atomic rename replaces the file's inode.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	db.log.InfoContext(ctx, "Watching database file", "path", abs)
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					db.reload(ctx)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				db.log.WarnContext(ctx, "Error watching database file", "err", err)
			}
		}
	}()
	return nil
}

// reload swaps in the file's document only when it changed and parses.
func (db *Database) reload(ctx context.Context) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.cfg == nil {
		return
	}
	v, data, err := db.readLocked(ctx)
	if err != nil {
		db.log.WarnContext(ctx, "Ignoring unreadable database change", "path", db.cfg.Path, "err", err)
		return
	}
	sum := sha256.Sum256(data)
	if db.state == Loaded && sum == db.sum {
		return
	}
	db.data = v
	db.sum = sum
	db.state = Loaded
	db.failure = nil
	db.log.InfoContext(ctx, "Database reloaded", "path", db.cfg.Path, "bytes", len(data))
}
