package query

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"stormlightlabs.org/hoopscore/internal/cache"
	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/metrics"
	"stormlightlabs.org/hoopscore/internal/middleware"
)

// Pagination echoes the page actually served, which may differ from what
// the caller requested once clampPage has applied MaxRows.
type Pagination struct {
	Limit  int  `json:"limit"`
	Offset int  `json:"offset"`
	Total  *int `json:"total,omitempty"`
}

// Metadata carries the response envelope fields spec.md §4.7's POST
// /query/{subject} names outside of `data`/`pagination`/`echo`.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	QuerySHA256 string    `json:"query_sha256"`
}

// Result is the full response envelope for an executed query.
type Result struct {
	Data       []map[string]any `json:"data"`
	Pagination Pagination       `json:"pagination"`
	Echo       Filters          `json:"echo"`
	Metadata   Metadata         `json:"metadata"`
}

// Engine executes compiled Query IR against Postgres with a statement
// timeout, a max-rows guard, optional result caching, and optional
// per-caller rate limiting.
type Engine struct {
	db      *sql.DB
	reg     *metrics.Registry
	cache   *cache.SearchCacheHelper
	limiter *middleware.RateLimiter
	timeout time.Duration
	maxRows int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithCache attaches a result cache. Queries are cached under a key
// derived from the query's canonical SHA-256.
func WithCache(c *cache.Client) Option {
	return func(e *Engine) { e.cache = cache.NewSearchCacheHelper(c) }
}

// WithRateLimiter attaches a per-caller rate limiter.
func WithRateLimiter(rl *middleware.RateLimiter) Option {
	return func(e *Engine) { e.limiter = rl }
}

// WithMaxRows overrides the default max-rows guard (MaxRows).
func WithMaxRows(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// NewEngine builds an Engine. timeout is the statement timeout applied to
// every execution (spec.md §4.7 default: 30s); pass 0 to use that default.
func NewEngine(database *sql.DB, reg *metrics.Registry, timeout time.Duration, opts ...Option) *Engine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	e := &Engine{
		db:      database,
		reg:     reg,
		timeout: timeout,
		maxRows: MaxRows,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Canonicalize renders q as deterministic JSON (Go's encoding/json walks
// struct fields in declaration order, so two Querys with the same field
// values always marshal identically) for use as a stable cache/hash key.
func Canonicalize(q Query) ([]byte, error) {
	return json.Marshal(q)
}

// Hash returns the hex SHA-256 of q's canonical form, echoed in the
// response envelope as metadata.query_sha256 and used as the result
// cache key.
func Hash(q Query) (string, error) {
	canon, err := Canonicalize(q)
	if err != nil {
		return "", fmt.Errorf("canonicalize query: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Execute compiles q, applies the statement timeout and max-rows guard,
// and runs it. caller identifies the rate-limit bucket (a free-form
// identity string, such as a literal CLI identity); pass "" to skip rate
// limiting.
func (e *Engine) Execute(ctx context.Context, q Query, caller string) (*Result, error) {
	if e.limiter != nil && caller != "" {
		res, err := e.limiter.Allow(ctx, caller)
		if err != nil {
			return nil, core.New("query", core.ExecutionError, "rate limiter unavailable", err)
		}
		if !res.Allowed {
			return nil, core.New("query", core.ExecutionError,
				fmt.Sprintf("rate limit exceeded, retry after %s", res.RetryAfter), nil)
		}
	}

	hash, err := Hash(q)
	if err != nil {
		return nil, core.New("query", core.InvalidFilterShape, "query is not serializable", err)
	}

	if e.cache != nil {
		var cached Result
		if e.cache.Get(ctx, hash, &cached) {
			return &cached, nil
		}

		result, err := e.run(ctx, q, hash)
		if err != nil {
			return nil, err
		}

		_ = e.cache.Set(ctx, hash, result)
		return result, nil
	}

	return e.run(ctx, q, hash)
}

// run compiles and executes q without consulting the cache.
func (e *Engine) run(ctx context.Context, q Query, hash string) (*Result, error) {
	compiled, err := Compile(q, e.reg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.queryWithStatementTimeout(ctx, compiled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data, err := scanRows(rows.Rows, e.maxRows)
	if err != nil {
		return nil, err
	}

	limit, offset := clampPage(q.Page)
	return &Result{
		Data: data,
		Pagination: Pagination{
			Limit:  limit,
			Offset: offset,
		},
		Echo: q.Filters,
		Metadata: Metadata{
			GeneratedAt: time.Now().UTC(),
			QuerySHA256: hash,
		},
	}, nil
}

// queryWithStatementTimeout sets a Postgres statement_timeout matching
// e.timeout on the acquired connection, then runs compiled.SQL on it. The
// context deadline expiring or a Postgres-side cancel (SQLSTATE 57014)
// surfaces as QUERY_TIMEOUT rather than a bare driver error.
func (e *Engine) queryWithStatementTimeout(ctx context.Context, compiled *Compiled) (*rowsWithConn, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, core.New("query", core.ExecutionError, "failed to acquire connection", err)
	}

	ms := e.timeout.Milliseconds()
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = %d", ms)); err != nil {
		conn.Close()
		return nil, core.New("query", core.ExecutionError, "failed to set statement_timeout", err)
	}

	rows, err := conn.QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		conn.Close()
		var pgErr *pgconn.PgError
		if ctx.Err() == context.DeadlineExceeded || (errors.As(err, &pgErr) && pgErr.Code == "57014") {
			return nil, core.New("query", core.QueryTimeout, "statement exceeded timeout", err)
		}
		return nil, core.New("query", core.ExecutionError, "query execution failed", err)
	}

	return &rowsWithConn{Rows: rows, conn: conn}, nil
}

// rowsWithConn closes its backing *sql.Conn once Rows is closed. sql.Rows
// does not release an explicitly-acquired Conn on its own.
type rowsWithConn struct {
	*sql.Rows
	conn *sql.Conn
}

func (r *rowsWithConn) Close() error {
	err := r.Rows.Close()
	r.conn.Close()
	return err
}

// scanRows reads every row into a column-name-keyed map, generalizing the
// dynamic-column scan pattern (Columns() + reusable pointer slice) the
// pack's pgscv collector uses for query results whose column set isn't
// known at compile time. Returns EXECUTION_ERROR if more than maxRows
// rows come back, since the compiled LIMIT should have already bounded
// this -- a mismatch means the compiled SQL and the guard disagree.
func scanRows(rows *sql.Rows, maxRows int) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, core.New("query", core.ExecutionError, "failed to read result columns", err)
	}

	var data []map[string]any
	for rows.Next() {
		if len(data) >= maxRows {
			return nil, core.New("query", core.ExecutionError,
				fmt.Sprintf("result exceeded max rows (%d)", maxRows), nil)
		}

		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, core.New("query", core.ExecutionError, "failed to scan row", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeScanValue(raw[i])
		}
		data = append(data, row)
	}

	if err := rows.Err(); err != nil {
		return nil, core.New("query", core.ExecutionError, "error iterating rows", err)
	}

	return data, nil
}

// normalizeScanValue converts driver-returned []byte (the pgx stdlib
// driver's representation for text-ish types scanned into `any`) to a
// plain string so the JSON-encoded response envelope never emits base64.
func normalizeScanValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
