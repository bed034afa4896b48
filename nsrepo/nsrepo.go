// Package nsrepo hands out access handles to table namespaces.  An access
// handle is scoped to one table and stays valid for the life of the view
// that wraps it.
package nsrepo

import (
	"context"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/stream"
)

// Access is a mutable handle to one table's documents, keyed by the value of
// the table's primary key attribute.
type Access interface {
	// Get returns the document stored under key, or nil if absent.
	Get(ctx context.Context, key riverdb.Value) (*riverdb.Value, error)
	// Replace stores doc under key, or deletes the key when doc is nil.
	// It returns the previously stored document, or nil if there was none.
	Replace(ctx context.Context, key riverdb.Value, doc *riverdb.Value) (*riverdb.Value, error)
	// Scan opens a stream over the whole table.  The key order is
	// deterministic for a quiescent table; documents written after the
	// scan starts may or may not be observed.
	Scan(ctx context.Context) (stream.Stream, error)
}

// Repo resolves a db/table pair to an access handle.
type Repo interface {
	Access(ctx context.Context, db, table string) (Access, error)
}
