// Package savedqueries implements the Saved Queries Store: ULID-keyed
// CRUD over normalized Query IR documents, per spec.md §4.8. A document
// is immutable except through update, which bumps version and leaves
// prior versions unrecoverable (the store keeps no history table); delete
// is a soft tombstone so a saved query's id never gets reused.
package savedqueries

import (
	"context"
	"fmt"
	"time"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/query"
)

// SavedQuery is one stored Query IR document plus its audit trail.
type SavedQuery struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	SchemaVersion      int         `json:"schema_version"`
	IR                 query.Query `json:"ir"`
	ContentHash        string      `json:"content_hash"`
	Version            int         `json:"version"`
	LastResultRowCount *int        `json:"last_result_row_count,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	DeletedAt          *time.Time  `json:"deleted_at,omitempty"`
}

// CurrentSchemaVersion is stamped onto every newly created document.
const CurrentSchemaVersion = 1

// Store is the pluggable backend for saved query documents. Create and
// Update both upsert-by-id in the sense that the caller supplies the id
// for Update; Create always mints a fresh ULID. Delete is idempotent and
// never returns SavedQueryNotFound, matching the tombstone semantics:
// calling delete again keeps the first deleted_at.
type Store interface {
	// Create mints a new ULID, canonicalizes ir's content hash, and
	// persists a version-1 document.
	Create(ctx context.Context, name string, ir query.Query) (*SavedQuery, error)

	// Get returns the document for id, or core.SavedQueryNotFound if it
	// does not exist or has been soft-deleted.
	Get(ctx context.Context, id string) (*SavedQuery, error)

	// List returns every non-deleted document, ordered by name.
	List(ctx context.Context) ([]*SavedQuery, error)

	// Update replaces ir (and optionally name) on id, incrementing
	// version. expectedVersion must match the document's current version
	// or the call fails with core.SavedQueryConflict (optimistic
	// concurrency) -- pass 0 to skip the check.
	Update(ctx context.Context, id string, name string, ir query.Query, expectedVersion int) (*SavedQuery, error)

	// Delete soft-deletes id by stamping deleted_at. Idempotent: deleting
	// an already-deleted or nonexistent id is not an error.
	Delete(ctx context.Context, id string) error

	// RecordResultRowCount updates last_result_row_count after id is
	// executed, for audit. Best-effort: callers should not fail a query
	// response if this errors.
	RecordResultRowCount(ctx context.Context, id string, rowCount int) error
}

func notFound(id string) error {
	return core.New("savedqueries", core.SavedQueryNotFound, "saved query "+id+" not found", nil)
}

func conflict(id string, expected, actual int) error {
	return core.New("savedqueries", core.SavedQueryConflict,
		fmt.Sprintf("saved query %s version mismatch: expected %d, have %d", id, expected, actual), nil)
}
