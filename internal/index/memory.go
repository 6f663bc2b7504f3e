// Package index keeps a bounded in-memory journal of the reconcile changes
// published for every endpoint.
package index

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/reconcile"
)

// DefaultMaxChanges bounds the journal of each endpoint.
const DefaultMaxChanges = 100

// MemoryIndex journals publishes in memory. The live models stay the source
// of truth for cluster state; only the changes between them are kept here.
type MemoryIndex struct {
	mu          sync.RWMutex
	changes     map[string][]reconcile.Result // endpoint -> oldest first
	lastPublish map[string]time.Time
	maxChanges  int
}

// NewMemoryIndex creates a new memory index keeping at most maxChanges
// journal entries per endpoint. maxChanges <= 0 uses DefaultMaxChanges.
func NewMemoryIndex(maxChanges int) *MemoryIndex {
	if maxChanges <= 0 {
		maxChanges = DefaultMaxChanges
	}
	return &MemoryIndex{
		changes:     make(map[string][]reconcile.Result),
		lastPublish: make(map[string]time.Time),
		maxChanges:  maxChanges,
	}
}

// Publish records the model timestamp of endpoint and journals res when it
// changed the entity set.
func (idx *MemoryIndex) Publish(_ context.Context, endpoint string, view domain.View, res reconcile.Result) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.lastPublish[endpoint] = view.Timestamp

	if res.Changed() {
		journal := append(idx.changes[endpoint], res)
		if over := len(journal) - idx.maxChanges; over > 0 {
			journal = append([]reconcile.Result(nil), journal[over:]...)
		}
		idx.changes[endpoint] = journal
	}
	return nil
}

// Changes returns the journal of endpoint, newest first.
func (idx *MemoryIndex) Changes(endpoint string) []reconcile.Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	journal := idx.changes[endpoint]
	out := make([]reconcile.Result, len(journal))
	for i, res := range journal {
		out[len(journal)-1-i] = res
	}
	return out
}

// Count returns the number of journal entries across all endpoints.
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := 0
	for _, journal := range idx.changes {
		n += len(journal)
	}
	return n
}

// GetLastPublish returns the model timestamp of the last publish of endpoint.
func (idx *MemoryIndex) GetLastPublish(endpoint string) time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastPublish[endpoint]
}
