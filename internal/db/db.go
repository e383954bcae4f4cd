// Package db wraps the Postgres connection, the forward-only migration
// ledger, and the bulk-load primitives every loader in internal/loader
// builds on.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migration represents a single database migration.
type Migration struct {
	Name    string
	Content string
}

// DB wraps a database connection with migration and bulk-load capabilities.
type DB struct {
	*sql.DB
	connStr string
}

type Exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// Connect establishes a connection to the PostgreSQL database.
// If connStr is empty, it falls back to DATABASE_URL environment variable
// or a local development default.
func Connect(connStr string) (*DB, error) {
	if connStr == "" {
		connStr = os.Getenv("DATABASE_URL")
		if connStr == "" {
			connStr = "host=localhost port=5432 user=postgres dbname=hoopscore_dev sslmode=disable"
		}
	}

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, connStr: connStr}, nil
}

// ensureMigrationsTable creates the schema_migrations ledger table if needed.
func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// isApplied checks if a migration has already been applied.
func (db *DB) isApplied(ctx context.Context, name string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`
	err := db.QueryRowContext(ctx, query, name).Scan(&exists)
	return exists, err
}

// markApplied records a migration as applied. Works on either *DB or *Tx.
func markApplied(ctx context.Context, exec Exec, name string) error {
	query := `INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)`
	_, err := exec.ExecContext(ctx, query, name, time.Now())
	return err
}

// loadMigrations reads every embedded SQL file, sorted lexicographically
// (numbered filenames enforce application order).
func (db *DB) loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		content, err := migrationFiles.ReadFile("sql/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		migrations = append(migrations, Migration{Name: name, Content: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}

// Migrate runs all pending migrations in order, skipping any already
// recorded in schema_migrations. Each migration runs in its own
// transaction; a failure rolls back only that migration.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := db.loadMigrations()
	if err != nil {
		return err
	}

	if len(migrations) == 0 {
		return fmt.Errorf("no migration files found")
	}

	for _, migration := range migrations {
		applied, err := db.isApplied(ctx, migration.Name)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", migration.Name, err)
		}

		if applied {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", migration.Name, err)
		}

		if _, err := tx.ExecContext(ctx, migration.Content); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
		}

		if err := markApplied(ctx, tx, migration.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to mark migration %s as applied: %w", migration.Name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration.Name, err)
		}
	}

	return nil
}

// AppliedMigrations returns the names of migrations recorded in the ledger,
// in name order.
func (db *DB) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CopyCSV loads a CSV file straight into a table using Postgres COPY. The
// CSV must carry a header row matching the table's column names.
func (db *DB) CopyCSV(ctx context.Context, tableName, csvPath string) (int64, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return db.CopyFromReader(ctx, tableName, file)
}

// CopyFromReader streams r (a header-having CSV source) into tableName via
// COPY FROM STDIN. CopyCSV uses it to stream a file from disk.
func (db *DB) CopyFromReader(ctx context.Context, tableName string, r io.Reader) (int64, error) {
	conn, err := pgx.Connect(ctx, db.connStr)
	if err != nil {
		return 0, fmt.Errorf("failed to connect for COPY: %w", err)
	}
	defer conn.Close(ctx)

	copySQL := fmt.Sprintf(`COPY "%s" FROM STDIN WITH (FORMAT CSV, HEADER true, NULL '')`, tableName)

	tag, err := conn.PgConn().CopyFrom(ctx, r, copySQL)
	if err != nil {
		return 0, fmt.Errorf("failed to copy data into %s: %w", tableName, err)
	}

	return tag.RowsAffected(), nil
}

// CopyRows bulk-inserts pre-built rows into tableName via pgx's native
// CopyFrom, bypassing CSV re-serialization for loaders that resolve
// natural keys to surrogate IDs in Go before writing (most dimension and
// hub loaders). Returns the number of rows copied.
func (db *DB) CopyRows(ctx context.Context, tableName string, columns []string, rows [][]any) (int64, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var copied int64
	err = conn.Raw(func(driverConn any) error {
		pgxConn := driverConn.(*stdlib.Conn).Conn()
		n, err := pgxConn.CopyFrom(ctx, pgx.Identifier{tableName}, columns, pgx.CopyFromRows(rows))
		copied = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows into %s: %w", tableName, err)
	}
	return copied, nil
}

// StageAndTransform loads rows from r into a temporary table shaped like
// targetTable (LIKE ... INCLUDING DEFAULTS, dropped at transaction end),
// then runs transformSQL to move/transform staged rows into targetTable.
// This generalizes the teacher's conn.Raw()-based temp-table + INSERT ...
// ON CONFLICT loaders into one helper.
func (db *DB) StageAndTransform(ctx context.Context, targetTable, stagingTable string, r io.Reader, transformSQL string) (int64, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var rowsAffected int64
	err = conn.Raw(func(driverConn any) error {
		pgxConn := driverConn.(*stdlib.Conn).Conn()

		tx, err := pgxConn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin staging transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		createStage := fmt.Sprintf(
			`CREATE TEMP TABLE "%s" (LIKE "%s" INCLUDING DEFAULTS) ON COMMIT DROP`,
			stagingTable, targetTable,
		)
		if _, err := tx.Exec(ctx, createStage); err != nil {
			return fmt.Errorf("failed to create staging table %s: %w", stagingTable, err)
		}

		copySQL := fmt.Sprintf(`COPY "%s" FROM STDIN WITH (FORMAT CSV, HEADER true, NULL '')`, stagingTable)
		tag, err := tx.Conn().PgConn().CopyFrom(ctx, r, copySQL)
		if err != nil {
			return fmt.Errorf("failed to copy into staging table %s: %w", stagingTable, err)
		}
		rowsAffected = tag.RowsAffected()

		if _, err := tx.Exec(ctx, transformSQL); err != nil {
			return fmt.Errorf("failed to transform staged rows into %s: %w", targetTable, err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	return rowsAffected, nil
}
