package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	objgraph "github.com/goliatone/go-objgraph"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and examples. It keys records
// by Ref.Identifier, keeps private copies of saved graphs and enforces ETag
// preconditions.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	graph *objgraph.Graph
	meta  Meta
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the UpdatedAt source.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{records: map[string]memoryRecord{}, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Load(_ context.Context, ref Ref) (*objgraph.Graph, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, false, nil
	}
	return record.graph.Clone(nil, nil), cloneMeta(record.meta), true, nil
}

// Save stores a copy of graph. A non-empty meta.ETag must match the stored
// record. The returned Meta carries the new ETag, a fresh SnapshotID unless
// one was given, and UpdatedAt.
func (s *MemoryStore) Save(_ context.Context, ref Ref, graph *objgraph.Graph, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	if graph == nil {
		return Meta{}, fmt.Errorf("state: graph is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.records[key]; ok && meta.ETag != "" && meta.ETag != current.meta.ETag {
		return Meta{}, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, current.meta.ETag)
	}

	saved := cloneMeta(meta)
	saved.ETag = ETag(graph)
	if saved.SnapshotID == "" {
		saved.SnapshotID = uuid.NewString()
	}
	saved.UpdatedAt = s.now()
	s.records[key] = memoryRecord{graph: graph.Clone(nil, nil), meta: saved}
	return cloneMeta(saved), nil
}
