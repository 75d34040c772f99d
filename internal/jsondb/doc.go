// Package jsondb provides a whole-document JSON store backed by one file.
//
// # Overview
//
// [Database] loads the entire file into a [document.Value] tree, lets callers
// resolve and mutate nodes in memory, and writes the full tree back on
// [Database.Flush]. There is no partial or incremental persistence.
//
// # States
//
// A Database starts Unloaded. [Database.Load] binds the configuration and
// reads the file; success moves to Loaded, failure to Failed with a
// [*LoadError]. Every other operation returns [ErrNotReady] unless the store
// is Loaded, so a store never serves from an undefined document.
//
// # Concurrency
//
// [Database.View], [Database.Modify] and [Database.Remove] hold a single
// mutex across resolve, mutate and flush. [Database.Resolve] returns a raw
// handle without locking and is only safe when the caller is the sole user.
//
// A file lock on "<path>.lock" serializes reads and writes with other
// processes using the same file.
//
// # Durability
//
// Flush writes to a temporary file in the same directory, syncs it and renames
// it over the target, so a crash leaves either the old or the new document.
// A failed flush leaves the in-memory document intact and can be retried.
package jsondb
