// Package gateway provides typed, identity-scoped access to document
// collections: plain CRUD plus live full-snapshot query subscriptions.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/errdefs"
	"tenancy-backend/internal/models"
	"tenancy-backend/internal/session"
)

// Record constrains a gateway's record type to one that can carry its
// store-assigned document id.
type Record[T any] interface {
	*T
	SetDocID(id string)
}

// Collection describes a record collection. Owner-scoped collections require
// a signed-in identity for writes and scoped reads, and gate updates on
// record ownership.
type Collection struct {
	Name        string
	OwnerScoped bool
}

// IdentitySource supplies the current identity. Satisfied by
// *session.Manager. A request-scoped identity in ctx always wins over the
// source, and the source may be nil.
type IdentitySource interface {
	Current() *models.Identity
}

// Gateway mediates access to one collection. The identity is only ever read
// here; it is owned by the session manager.
type Gateway[T any, PT Record[T]] struct {
	store    docstore.Store
	sessions IdentitySource
	col      Collection
}

// New creates a gateway over one collection.
func New[T any, PT Record[T]](store docstore.Store, sessions IdentitySource, col Collection) *Gateway[T, PT] {
	return &Gateway[T, PT]{store: store, sessions: sessions, col: col}
}

// Insert stores a new record and returns its assigned id. Owner-scoped
// collections stamp the current identity as the record owner.
func (g *Gateway[T, PT]) Insert(ctx context.Context, rec T) (string, error) {
	owner := ""
	if g.col.OwnerScoped {
		identity := g.identity(ctx)
		if identity == nil {
			return "", fmt.Errorf("%s requires a signed-in identity: %w", g.col.Name, errdefs.ErrAuth)
		}
		owner = identity.ID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s record: %w", g.col.Name, err)
	}
	return g.store.Insert(ctx, g.col.Name, owner, data)
}

// GetByID retrieves a single record.
func (g *Gateway[T, PT]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := g.store.Get(ctx, g.col.Name, id)
	if err != nil {
		return zero, err
	}
	rec, err := decode[T, PT](*doc)
	if err != nil {
		return zero, err
	}
	return rec, nil
}

// Update merges fields into a record. For owner-scoped collections the
// caller must be the record owner.
func (g *Gateway[T, PT]) Update(ctx context.Context, id string, fields map[string]any) error {
	doc, err := g.store.Get(ctx, g.col.Name, id)
	if err != nil {
		return err
	}

	if g.col.OwnerScoped {
		identity := g.identity(ctx)
		if identity == nil {
			return fmt.Errorf("%s requires a signed-in identity: %w", g.col.Name, errdefs.ErrAuth)
		}
		if doc.OwnerID != identity.ID {
			return fmt.Errorf("record %s/%s is not owned by the caller: %w", g.col.Name, id, errdefs.ErrAuth)
		}
	}

	return g.store.Update(ctx, g.col.Name, id, fields)
}

// QueryByOwner returns a live view of the records owned by ownerID. An empty
// ownerID is rejected for owner-scoped collections; it would match every
// document.
func (g *Gateway[T, PT]) QueryByOwner(ctx context.Context, ownerID string) (*Live[T, PT], error) {
	if g.col.OwnerScoped {
		if g.identity(ctx) == nil {
			return nil, fmt.Errorf("%s requires a signed-in identity: %w", g.col.Name, errdefs.ErrAuth)
		}
		if ownerID == "" {
			return nil, fmt.Errorf("%s query requires an owner id: %w", g.col.Name, errdefs.ErrAuth)
		}
	}
	sub, err := g.store.Watch(ctx, g.col.Name, docstore.Filter{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	return newLive[T, PT](g.col.Name, sub), nil
}

// QueryAll returns a live view of the whole collection. This is the
// privileged, unscoped path.
func (g *Gateway[T, PT]) QueryAll(ctx context.Context) (*Live[T, PT], error) {
	sub, err := g.store.Watch(ctx, g.col.Name, docstore.Filter{})
	if err != nil {
		return nil, err
	}
	return newLive[T, PT](g.col.Name, sub), nil
}

// List runs a one-shot query with the same decode policy as the live views.
func (g *Gateway[T, PT]) List(ctx context.Context, f docstore.Filter) (Snapshot[T], error) {
	docs, err := g.store.Query(ctx, g.col.Name, f)
	if err != nil {
		return Snapshot[T]{}, err
	}
	return decodeSnapshot[T, PT](g.col.Name, docs), nil
}

// ListByOwner runs a one-shot query scoped to ownerID. As with QueryByOwner,
// an empty ownerID is rejected for owner-scoped collections.
func (g *Gateway[T, PT]) ListByOwner(ctx context.Context, ownerID string) (Snapshot[T], error) {
	if g.col.OwnerScoped {
		if g.identity(ctx) == nil {
			return Snapshot[T]{}, fmt.Errorf("%s requires a signed-in identity: %w", g.col.Name, errdefs.ErrAuth)
		}
		if ownerID == "" {
			return Snapshot[T]{}, fmt.Errorf("%s query requires an owner id: %w", g.col.Name, errdefs.ErrAuth)
		}
	}
	return g.List(ctx, docstore.Filter{OwnerID: ownerID})
}

// ListAll runs a one-shot unscoped query.
func (g *Gateway[T, PT]) ListAll(ctx context.Context) (Snapshot[T], error) {
	return g.List(ctx, docstore.Filter{})
}

func (g *Gateway[T, PT]) identity(ctx context.Context) *models.Identity {
	if identity := session.IdentityFrom(ctx); identity != nil {
		return identity
	}
	if g.sessions != nil {
		return g.sessions.Current()
	}
	return nil
}

func decode[T any, PT Record[T]](doc docstore.Document) (T, error) {
	var rec T
	if err := json.Unmarshal(doc.Data, PT(&rec)); err != nil {
		var zero T
		return zero, &errdefs.DecodeError{Collection: doc.Collection, DocID: doc.ID, Err: err}
	}
	PT(&rec).SetDocID(doc.ID)
	return rec, nil
}
