package savedqueries

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/query"
)

// FSStore is the default Saved Queries Store backend: one canonical JSON
// file per id under dir, named <id>.json. A single mutex serializes
// writes, matching BoltDB's single-writer model without the dependency --
// the document set is small (operator-authored saved queries, not a
// write-heavy table) so a full-directory scan per List is cheap.
type FSStore struct {
	dir   string
	mu    sync.Mutex
	clock func() time.Time
}

// NewFSStore ensures dir exists and returns a store rooted there.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("creating saved queries directory %s", dir), err)
	}
	return &FSStore{dir: dir, clock: time.Now}, nil
}

func (s *FSStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FSStore) Create(ctx context.Context, name string, ir query.Query) (*SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := contentHash(ir)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	sq := &SavedQuery{
		ID:            ulid.Make().String(),
		Name:          name,
		SchemaVersion: CurrentSchemaVersion,
		IR:            ir,
		ContentHash:   hash,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.write(sq); err != nil {
		return nil, err
	}
	return sq, nil
}

func (s *FSStore) Get(ctx context.Context, id string) (*SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if sq.DeletedAt != nil {
		return nil, notFound(id)
	}
	return sq, nil
}

func (s *FSStore) List(ctx context.Context) ([]*SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("reading saved queries directory %s", s.dir), err)
	}

	out := make([]*SavedQuery, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		sq, err := s.read(id)
		if err != nil {
			return nil, err
		}
		if sq.DeletedAt != nil {
			continue
		}
		out = append(out, sq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FSStore) Update(ctx context.Context, id string, name string, ir query.Query, expectedVersion int) (*SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if sq.DeletedAt != nil {
		return nil, notFound(id)
	}
	if expectedVersion != 0 && sq.Version != expectedVersion {
		return nil, conflict(id, expectedVersion, sq.Version)
	}

	hash, err := contentHash(ir)
	if err != nil {
		return nil, err
	}

	sq.Name = name
	sq.IR = ir
	sq.ContentHash = hash
	sq.Version++
	sq.UpdatedAt = s.clock()
	if err := s.write(sq); err != nil {
		return nil, err
	}
	return sq, nil
}

func (s *FSStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, err := s.read(id)
	if err != nil {
		if kind, ok := core.KindOf(err); ok && kind == core.SavedQueryNotFound {
			return nil
		}
		return err
	}
	if sq.DeletedAt != nil {
		return nil
	}
	now := s.clock()
	sq.DeletedAt = &now
	sq.UpdatedAt = now
	return s.write(sq)
}

func (s *FSStore) RecordResultRowCount(ctx context.Context, id string, rowCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, err := s.read(id)
	if err != nil {
		return err
	}
	sq.LastResultRowCount = &rowCount
	return s.write(sq)
}

func (s *FSStore) read(id string) (*SavedQuery, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("reading saved query %s", id), err)
	}
	var sq SavedQuery
	if err := json.Unmarshal(data, &sq); err != nil {
		return nil, core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("saved query %s is not valid JSON", id), err)
	}
	return &sq, nil
}

// write serializes sq as sorted-key, LF-terminated JSON per spec.md §6
// and replaces the file atomically via rename, so a crash mid-write never
// leaves a half-written document behind.
func (s *FSStore) write(sq *SavedQuery) error {
	canon, err := canonicalJSON(sq)
	if err != nil {
		return core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("encoding saved query %s", sq.ID), err)
	}

	tmp := s.path(sq.ID) + ".tmp"
	if err := os.WriteFile(tmp, canon, 0o644); err != nil {
		return core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("writing saved query %s", sq.ID), err)
	}
	if err := os.Rename(tmp, s.path(sq.ID)); err != nil {
		return core.New("savedqueries", core.SavedQueryStoreError, fmt.Sprintf("committing saved query %s", sq.ID), err)
	}
	return nil
}

// contentHash is the SHA-256 of ir's canonical encoding, reusing
// query.Canonicalize so a saved query's content_hash and the query
// engine's cache key are computed identically.
func contentHash(ir query.Query) (string, error) {
	canon, err := query.Canonicalize(ir)
	if err != nil {
		return "", core.New("savedqueries", core.SavedQueryStoreError, "canonicalizing query IR", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON marshals v with sorted object keys: the struct encoding
// (which follows field declaration order) is decoded into generic maps and
// re-encoded, since encoding/json writes map keys in sorted order.
// MarshalIndent is avoided so the file stays a single compact line plus
// trailing newline.
func canonicalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	b, err = json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
