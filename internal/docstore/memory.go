package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs tests and local development; the
// deployed store is Postgres.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memCollection
	watchers    map[string][]*memWatcher
	writeErr    error
}

type memCollection struct {
	docs  map[string]*Document
	order []string
}

type memWatcher struct {
	sub    *watchSub
	filter Filter
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]*memCollection),
		watchers:    make(map[string][]*memWatcher),
	}
}

// FailWrites makes every subsequent write fail with a storage error wrapping
// err. Passing nil restores normal writes.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// BreakWatches terminates every active subscription with a storage error,
// simulating an irrecoverable connection loss.
func (m *Memory) BreakWatches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for collection, watchers := range m.watchers {
		for _, w := range watchers {
			w.sub.fail(storagef(fmt.Errorf("connection lost"), "change feed for %s terminated", collection))
			close(w.sub.ch)
		}
		delete(m.watchers, collection)
	}
}

// Insert stores a new document and returns its assigned id.
func (m *Memory) Insert(ctx context.Context, collection, ownerID string, data json.RawMessage) (string, error) {
	id := uuid.New().String()
	if err := m.Put(ctx, collection, id, ownerID, data); err != nil {
		return "", err
	}
	return id, nil
}

// Put stores a document under a caller-chosen id.
func (m *Memory) Put(ctx context.Context, collection, id, ownerID string, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return storagef(m.writeErr, "failed to put document %s/%s", collection, id)
	}

	col := m.collections[collection]
	if col == nil {
		col = &memCollection{docs: make(map[string]*Document)}
		m.collections[collection] = col
	}
	if existing, ok := col.docs[id]; ok {
		existing.Data = append(json.RawMessage(nil), data...)
	} else {
		col.docs[id] = &Document{
			ID:         id,
			Collection: collection,
			OwnerID:    ownerID,
			Data:       append(json.RawMessage(nil), data...),
			CreatedAt:  time.Now(),
		}
		col.order = append(col.order, id)
	}
	m.broadcastLocked(collection)
	return nil
}

// Get retrieves a single document.
func (m *Memory) Get(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collections[collection]
	if col == nil {
		return nil, notFoundf(collection, id)
	}
	doc, ok := col.docs[id]
	if !ok {
		return nil, notFoundf(collection, id)
	}
	copied := *doc
	return &copied, nil
}

// Query returns the documents matching f in insertion order.
func (m *Memory) Query(ctx context.Context, collection string, f Filter) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryLocked(collection, f), nil
}

// Update merges patch into the document payload.
func (m *Memory) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return storagef(m.writeErr, "failed to update document %s/%s", collection, id)
	}

	col := m.collections[collection]
	if col == nil {
		return notFoundf(collection, id)
	}
	doc, ok := col.docs[id]
	if !ok {
		return notFoundf(collection, id)
	}

	var fields map[string]any
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		fields = make(map[string]any)
	}
	for key, value := range patch {
		fields[key] = value
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal patched document: %w", err)
	}
	doc.Data = merged
	m.broadcastLocked(collection)
	return nil
}

// Watch returns a live subscription over the documents matching f.
func (m *Memory) Watch(ctx context.Context, collection string, f Filter) (Subscription, error) {
	sub := newWatchSub()
	w := &memWatcher{sub: sub, filter: f}

	m.mu.Lock()
	m.watchers[collection] = append(m.watchers[collection], w)
	sub.trySend(m.queryLocked(collection, f))
	m.mu.Unlock()

	go func() {
		select {
		case <-sub.done:
		case <-ctx.Done():
			sub.Cancel()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		watchers := m.watchers[collection]
		for i, other := range watchers {
			if other == w {
				m.watchers[collection] = append(watchers[:i], watchers[i+1:]...)
				close(sub.ch)
				return
			}
		}
		// Already removed by BreakWatches, which closed the channel too.
	}()
	return sub, nil
}

func (m *Memory) queryLocked(collection string, f Filter) []Document {
	col := m.collections[collection]
	if col == nil {
		return nil
	}
	var docs []Document
	for _, id := range col.order {
		doc := col.docs[id]
		if f.OwnerID != "" && doc.OwnerID != f.OwnerID {
			continue
		}
		if !matchesEquals(doc.Data, f.Equals) {
			continue
		}
		docs = append(docs, *doc)
	}
	return docs
}

func (m *Memory) broadcastLocked(collection string) {
	for _, w := range m.watchers[collection] {
		w.sub.trySend(m.queryLocked(collection, w.filter))
	}
}

func matchesEquals(data json.RawMessage, equals map[string]string) bool {
	if len(equals) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	for key, want := range equals {
		got, ok := fields[key].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

var _ Store = (*Memory)(nil)
