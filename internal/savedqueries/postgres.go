package savedqueries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/query"
)

// PostgresStore persists saved query documents in the saved_queries table
// (internal/db/sql/0008_saved_queries.sql). Used when
// SavedQueriesConfig.Backend is "postgres" -- an operator running many
// concurrent query-serving processes wants a shared store, which the
// filesystem backend can't offer.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-migrated *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, name string, ir query.Query) (*SavedQuery, error) {
	hash, err := contentHash(ir)
	if err != nil {
		return nil, err
	}
	irJSON, err := json.Marshal(ir)
	if err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, "encoding query IR", err)
	}

	sq := &SavedQuery{
		ID:            ulid.Make().String(),
		Name:          name,
		SchemaVersion: CurrentSchemaVersion,
		IR:            ir,
		ContentHash:   hash,
		Version:       1,
	}

	const stmt = `
		INSERT INTO saved_queries (id, name, schema_version, ir_json, content_hash, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	err = s.db.QueryRowContext(ctx, stmt, sq.ID, sq.Name, sq.SchemaVersion, irJSON, sq.ContentHash, sq.Version).
		Scan(&sq.CreatedAt, &sq.UpdatedAt)
	if err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("inserting saved query %s", sq.ID), err)
	}
	return sq, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*SavedQuery, error) {
	const stmt = `
		SELECT id, name, schema_version, ir_json, content_hash, version,
		       last_result_row_count, created_at, updated_at, deleted_at
		FROM saved_queries
		WHERE id = $1 AND deleted_at IS NULL`
	return s.scanOne(s.db.QueryRowContext(ctx, stmt, id), id)
}

func (s *PostgresStore) List(ctx context.Context) ([]*SavedQuery, error) {
	const stmt = `
		SELECT id, name, schema_version, ir_json, content_hash, version,
		       last_result_row_count, created_at, updated_at, deleted_at
		FROM saved_queries
		WHERE deleted_at IS NULL
		ORDER BY name`
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, "listing saved queries", err)
	}
	defer rows.Close()

	var out []*SavedQuery
	for rows.Next() {
		sq, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sq)
	}
	if err := rows.Err(); err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, "reading saved queries", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, name string, ir query.Query, expectedVersion int) (*SavedQuery, error) {
	hash, err := contentHash(ir)
	if err != nil {
		return nil, err
	}
	irJSON, err := json.Marshal(ir)
	if err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, "encoding query IR", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, "beginning update transaction", err)
	}
	defer tx.Rollback()

	var currentVersion int
	var deletedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT version, deleted_at FROM saved_queries WHERE id = $1 FOR UPDATE`, id).
		Scan(&currentVersion, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("locking saved query %s", id), err)
	}
	if deletedAt.Valid {
		return nil, notFound(id)
	}
	if expectedVersion != 0 && currentVersion != expectedVersion {
		return nil, conflict(id, expectedVersion, currentVersion)
	}

	const stmt = `
		UPDATE saved_queries
		SET name = $2, ir_json = $3, content_hash = $4, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING name, schema_version, ir_json, content_hash, version,
		          last_result_row_count, created_at, updated_at, deleted_at`
	sq := &SavedQuery{ID: id}
	var gotIRJSON []byte
	err = tx.QueryRowContext(ctx, stmt, id, name, irJSON, hash).Scan(
		&sq.Name, &sq.SchemaVersion, &gotIRJSON, &sq.ContentHash, &sq.Version,
		&sq.LastResultRowCount, &sq.CreatedAt, &sq.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("updating saved query %s", id), err)
	}
	if err := json.Unmarshal(gotIRJSON, &sq.IR); err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("decoding saved query %s", id), err)
	}
	if deletedAt.Valid {
		sq.DeletedAt = &deletedAt.Time
	}

	if err := tx.Commit(); err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("committing update for %s", id), err)
	}
	return sq, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const stmt = `UPDATE saved_queries SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	_, err := s.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("deleting saved query %s", id), err)
	}
	return nil
}

func (s *PostgresStore) RecordResultRowCount(ctx context.Context, id string, rowCount int) error {
	const stmt = `UPDATE saved_queries SET last_result_row_count = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, stmt, id, rowCount)
	if err != nil {
		return core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("recording result row count for %s", id), err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row rowScanner, id string) (*SavedQuery, error) {
	sq, err := s.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return sq, nil
}

func (s *PostgresStore) scanRow(row rowScanner) (*SavedQuery, error) {
	var sq SavedQuery
	var irJSON []byte
	var deletedAt sql.NullTime
	err := row.Scan(&sq.ID, &sq.Name, &sq.SchemaVersion, &irJSON, &sq.ContentHash, &sq.Version,
		&sq.LastResultRowCount, &sq.CreatedAt, &sq.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, core.New("savedqueries", core.SavedQueryStoreError, "scanning saved query row", err)
	}
	if err := json.Unmarshal(irJSON, &sq.IR); err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("decoding saved query %s", sq.ID), err)
	}
	if deletedAt.Valid {
		sq.DeletedAt = &deletedAt.Time
	}
	return &sq, nil
}
