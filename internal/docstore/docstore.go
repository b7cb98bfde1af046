// Package docstore provides a document-oriented store: schemaless JSON
// records grouped into named collections, with partial updates and live
// change notification per collection.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tenancy-backend/internal/errdefs"
)

// Document is a stored record envelope. Data holds the record payload;
// OwnerID is empty for records that are not owner-scoped.
type Document struct {
	ID         string
	Collection string
	OwnerID    string
	Data       json.RawMessage
	CreatedAt  time.Time
}

// Filter narrows a query. A zero Filter matches every document in the
// collection.
type Filter struct {
	OwnerID string            // match the envelope owner
	Equals  map[string]string // match payload fields by string equality
}

// Subscription is a live view over a query: every mutation affecting the
// collection re-delivers the full matched set, in the order the store
// observed the changes, until Cancel is called. If the change feed fails
// irrecoverably the snapshot channel is closed and Err reports a storage
// error; a clean Cancel leaves Err nil.
type Subscription interface {
	// Snapshots delivers full result-set snapshots. Closed on Cancel or
	// on terminal failure.
	Snapshots() <-chan []Document
	// Err returns the terminal error, if any, once Snapshots is closed.
	Err() error
	// Cancel stops delivery immediately. Safe to call more than once.
	Cancel()
}

// Store is the document store boundary. Implementations must assign ids on
// Insert and must deliver Watch snapshots on a single goroutine per
// subscription.
type Store interface {
	// Insert stores a new document and returns its assigned id.
	Insert(ctx context.Context, collection, ownerID string, data json.RawMessage) (string, error)
	// Put stores a document under a caller-chosen id, replacing any
	// existing payload.
	Put(ctx context.Context, collection, id, ownerID string, data json.RawMessage) error
	// Get retrieves a single document.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Query returns the documents matching f, ordered by creation time.
	Query(ctx context.Context, collection string, f Filter) ([]Document, error)
	// Update merges patch into the document payload.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	// Watch returns a live subscription over the documents matching f.
	Watch(ctx context.Context, collection string, f Filter) (Subscription, error)
}

// storagef wraps err as a storage failure with a formatted prefix.
func storagef(err error, format string, args ...any) error {
	args = append(args, errdefs.ErrStorage, err)
	return fmt.Errorf(format+": %w: %w", args...)
}

// notFoundf builds a not-found error for a document reference.
func notFoundf(collection, id string) error {
	return fmt.Errorf("document %s/%s: %w", collection, id, errdefs.ErrNotFound)
}
