package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT NOT NULL,
	collection TEXT NOT NULL,
	owner_id   TEXT NOT NULL DEFAULT '',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_owner_idx ON documents (collection, owner_id);
`

// Postgres is a Store backed by a PostgreSQL documents table, with change
// events fanned out over redis pub/sub so that watchers on other processes
// see mutations too.
type Postgres struct {
	db  *pgxpool.Pool
	rdb *redis.Client
}

// NewPostgres creates a new Postgres document store.
func NewPostgres(db *pgxpool.Pool, rdb *redis.Client) *Postgres {
	return &Postgres{db: db, rdb: rdb}
}

// EnsureSchema creates the documents table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return storagef(err, "failed to ensure documents schema")
	}
	return nil
}

// Insert stores a new document and returns its assigned id.
func (s *Postgres) Insert(ctx context.Context, collection, ownerID string, data json.RawMessage) (string, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO documents (id, collection, owner_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.Exec(ctx, query, id, collection, ownerID, data, time.Now())
	if err != nil {
		return "", storagef(err, "failed to insert document into %s", collection)
	}
	s.publish(ctx, collection, id)
	return id, nil
}

// Put stores a document under a caller-chosen id, replacing any existing
// payload.
func (s *Postgres) Put(ctx context.Context, collection, id, ownerID string, data json.RawMessage) error {
	query := `
		INSERT INTO documents (id, collection, owner_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data
	`
	_, err := s.db.Exec(ctx, query, id, collection, ownerID, data, time.Now())
	if err != nil {
		return storagef(err, "failed to put document %s/%s", collection, id)
	}
	s.publish(ctx, collection, id)
	return nil
}

// Get retrieves a single document.
func (s *Postgres) Get(ctx context.Context, collection, id string) (*Document, error) {
	query := `
		SELECT id, collection, owner_id, data, created_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	var doc Document
	err := s.db.QueryRow(ctx, query, collection, id).Scan(
		&doc.ID, &doc.Collection, &doc.OwnerID, &doc.Data, &doc.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, notFoundf(collection, id)
		}
		return nil, storagef(err, "failed to get document %s/%s", collection, id)
	}
	return &doc, nil
}

// Query returns the documents matching f, ordered by creation time.
func (s *Postgres) Query(ctx context.Context, collection string, f Filter) ([]Document, error) {
	query := `
		SELECT id, collection, owner_id, data, created_at
		FROM documents
		WHERE collection = $1
	`
	args := []any{collection}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	for key, value := range f.Equals {
		args = append(args, key, value)
		query += fmt.Sprintf(" AND data->>$%d = $%d", len(args)-1, len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storagef(err, "failed to query %s", collection)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		err := rows.Scan(&doc.ID, &doc.Collection, &doc.OwnerID, &doc.Data, &doc.CreatedAt)
		if err != nil {
			return nil, storagef(err, "failed to scan document from %s", collection)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storagef(err, "error iterating %s", collection)
	}
	return docs, nil
}

// Update merges patch into the document payload.
func (s *Postgres) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal patch: %w", err)
	}
	query := `UPDATE documents SET data = data || $3 WHERE collection = $1 AND id = $2`
	result, err := s.db.Exec(ctx, query, collection, id, patchJSON)
	if err != nil {
		return storagef(err, "failed to update document %s/%s", collection, id)
	}
	if result.RowsAffected() == 0 {
		return notFoundf(collection, id)
	}
	s.publish(ctx, collection, id)
	return nil
}

// Watch returns a live subscription over the documents matching f. Each
// change event triggers a requery, so every snapshot is the full matched set
// as of that event.
func (s *Postgres) Watch(ctx context.Context, collection string, f Filter) (Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, eventChannel(collection))
	// Confirm the subscription before the initial snapshot so no change
	// falls between the two.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, storagef(err, "failed to subscribe to %s changes", collection)
	}

	sub := newWatchSub()
	go s.watchLoop(ctx, pubsub, sub, collection, f)
	return sub, nil
}

func (s *Postgres) watchLoop(ctx context.Context, pubsub *redis.PubSub, sub *watchSub, collection string, f Filter) {
	defer pubsub.Close()
	defer close(sub.ch)

	emit := func() bool {
		docs, err := s.Query(ctx, collection, f)
		if err != nil {
			sub.fail(err)
			return false
		}
		select {
		case sub.ch <- docs:
			return true
		case <-sub.done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	if !emit() {
		return
	}

	events := pubsub.Channel()
	for {
		select {
		case _, ok := <-events:
			if !ok {
				// The feed only closes from under us when the
				// connection is gone for good.
				select {
				case <-sub.done:
				default:
					sub.fail(storagef(redis.ErrClosed, "change feed for %s terminated", collection))
				}
				return
			}
			if !emit() {
				return
			}
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// publish notifies watchers of a mutation. The write has already succeeded,
// so a publish failure is logged rather than surfaced.
func (s *Postgres) publish(ctx context.Context, collection, id string) {
	if err := s.rdb.Publish(ctx, eventChannel(collection), id).Err(); err != nil {
		log.Warn().Err(err).
			Str("collection", collection).
			Str("doc_id", id).
			Msg("Failed to publish document change event")
	}
}

func eventChannel(collection string) string {
	return "docs:" + collection
}
