package savedqueries

import (
	"database/sql"
	"fmt"

	"stormlightlabs.org/hoopscore/internal/cache"
	"stormlightlabs.org/hoopscore/internal/config"
	"stormlightlabs.org/hoopscore/internal/core"
)

// NewStore builds the backend named by cfg.Backend. db is only required
// when cfg.Backend is "postgres"; pass nil otherwise. cacheClient is
// optional: pass nil to skip caching entirely, otherwise the returned
// Store is wrapped in a CachedStore.
func NewStore(cfg config.SavedQueriesConfig, db *sql.DB, cacheClient *cache.Client) (Store, error) {
	store, err := newBackend(cfg, db)
	if err != nil {
		return nil, err
	}
	if cacheClient == nil {
		return store, nil
	}
	return NewCachedStore(store, cacheClient), nil
}

func newBackend(cfg config.SavedQueriesConfig, db *sql.DB) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFSStore(cfg.FSPath)
	case "postgres":
		if db == nil {
			return nil, core.New("savedqueries", core.SavedQueryStoreError, "postgres backend selected but no database handle was provided", nil)
		}
		return NewPostgresStore(db), nil
	default:
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("unknown saved queries backend %q", cfg.Backend), nil)
	}
}
