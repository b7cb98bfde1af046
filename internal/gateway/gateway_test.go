package gateway_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/errdefs"
	"tenancy-backend/internal/gateway"
	"tenancy-backend/internal/models"
	"tenancy-backend/internal/session"
)

// staticSource is an IdentitySource pinned to one identity.
type staticSource struct {
	identity *models.Identity
}

func (s *staticSource) Current() *models.Identity { return s.identity }

func asOwner(id string) *staticSource {
	return &staticSource{identity: &models.Identity{ID: id, Email: id + "@x.com"}}
}

func TestInsertRequiresIdentity(t *testing.T) {
	store := docstore.NewMemory()
	complaints := gateway.NewComplaints(store, &staticSource{})

	_, err := complaints.Insert(context.Background(), models.Complaint{Subject: "No heat"})
	require.Error(t, err)
	assert.True(t, errdefs.IsAuth(err))
}

func TestInsertStampsOwner(t *testing.T) {
	store := docstore.NewMemory()
	complaints := gateway.NewComplaints(store, asOwner("u1"))

	id, err := complaints.Insert(context.Background(), models.Complaint{
		Subject: "Leaky faucet",
		Message: "Kitchen sink drips all night",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.Get(context.Background(), models.CollectionComplaints, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.OwnerID)

	rec, err := complaints.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "Leaky faucet", rec.Subject)
}

func TestQueryByOwnerStreamsSnapshots(t *testing.T) {
	store := docstore.NewMemory()
	complaints := gateway.NewComplaints(store, asOwner("u1"))

	live, err := complaints.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	defer live.Cancel()

	snap := nextSnapshot(t, live.Snapshots())
	assert.Empty(t, snap.Records)

	id, err := complaints.Insert(context.Background(), models.Complaint{
		Subject: "Leaky faucet",
		Message: "Kitchen sink",
		UserID:  "u1",
	})
	require.NoError(t, err)

	snap = nextSnapshot(t, live.Snapshots())
	require.Len(t, snap.Records, 1)
	assert.Equal(t, id, snap.Records[0].ID)
	assert.Equal(t, "Leaky faucet", snap.Records[0].Subject)
	assert.Empty(t, snap.Dropped)
}

func TestQueryByOwnerRejectsEmptyOwner(t *testing.T) {
	store := docstore.NewMemory()
	complaints := gateway.NewComplaints(store, asOwner("u1"))

	_, err := complaints.QueryByOwner(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errdefs.IsAuth(err))

	_, err = complaints.ListByOwner(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errdefs.IsAuth(err))
}

func TestQueryByOwnerExcludesForeignRecords(t *testing.T) {
	store := docstore.NewMemory()
	mine := gateway.NewComplaints(store, asOwner("u1"))
	theirs := gateway.NewComplaints(store, asOwner("u2"))

	_, err := mine.Insert(context.Background(), models.Complaint{Subject: "Mine", UserID: "u1"})
	require.NoError(t, err)
	_, err = theirs.Insert(context.Background(), models.Complaint{Subject: "Theirs", UserID: "u2"})
	require.NoError(t, err)

	snap, err := mine.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "Mine", snap.Records[0].Subject)
}

func TestMalformedRecordIsDroppedNotFatal(t *testing.T) {
	store := docstore.NewMemory()
	complaints := gateway.NewComplaints(store, asOwner("u1"))

	_, err := complaints.Insert(context.Background(), models.Complaint{Subject: "Valid one", UserID: "u1"})
	require.NoError(t, err)
	_, err = complaints.Insert(context.Background(), models.Complaint{Subject: "Valid two", UserID: "u1"})
	require.NoError(t, err)

	// A payload whose subject is not a string fails to decode.
	err = store.Put(context.Background(), models.CollectionComplaints, "bad-doc", "u1",
		json.RawMessage(`{"subject":123,"message":"corrupt"}`))
	require.NoError(t, err)

	live, err := complaints.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	defer live.Cancel()

	snap := nextSnapshot(t, live.Snapshots())
	require.Len(t, snap.Records, 2)
	require.Len(t, snap.Dropped, 1)
	assert.Equal(t, "bad-doc", snap.Dropped[0].DocID)
	assert.Equal(t, models.CollectionComplaints, snap.Dropped[0].Collection)
}

func TestUpdateByNonOwnerFails(t *testing.T) {
	store := docstore.NewMemory()
	mine := gateway.NewVendors(store, asOwner("u1"))
	theirs := gateway.NewVendors(store, asOwner("u2"))

	id, err := mine.Insert(context.Background(), models.Vendor{Name: "Ace Plumbing", UserID: "u1"})
	require.NoError(t, err)

	err = theirs.Update(context.Background(), id, map[string]any{"name": "Hijacked"})
	require.Error(t, err)
	assert.True(t, errdefs.IsAuth(err))

	rec, err := mine.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ace Plumbing", rec.Name)
}

func TestUpdateMissingRecord(t *testing.T) {
	store := docstore.NewMemory()
	vendors := gateway.NewVendors(store, asOwner("u1"))

	err := vendors.Update(context.Background(), "no-such-id", map[string]any{"name": "X"})
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestUpdateMergesFields(t *testing.T) {
	store := docstore.NewMemory()
	vendors := gateway.NewVendors(store, asOwner("u1"))

	id, err := vendors.Insert(context.Background(), models.Vendor{
		Name:   "Ace Plumbing",
		Role:   "plumber",
		Phone:  "555-0100",
		UserID: "u1",
	})
	require.NoError(t, err)

	require.NoError(t, vendors.Update(context.Background(), id, map[string]any{"phone": "555-0199"}))

	rec, err := vendors.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "555-0199", rec.Phone)
	assert.Equal(t, "Ace Plumbing", rec.Name)
	assert.Equal(t, "plumber", rec.Role)
}

func TestQueryAllIsUnscoped(t *testing.T) {
	store := docstore.NewMemory()
	mine := gateway.NewComplaints(store, asOwner("u1"))
	theirs := gateway.NewComplaints(store, asOwner("u2"))

	_, err := mine.Insert(context.Background(), models.Complaint{Subject: "Mine", UserID: "u1"})
	require.NoError(t, err)
	_, err = theirs.Insert(context.Background(), models.Complaint{Subject: "Theirs", UserID: "u2"})
	require.NoError(t, err)

	live, err := mine.QueryAll(context.Background())
	require.NoError(t, err)
	defer live.Cancel()

	snap := nextSnapshot(t, live.Snapshots())
	assert.Len(t, snap.Records, 2)
}

func TestContextIdentityOverridesSource(t *testing.T) {
	store := docstore.NewMemory()
	complaints := gateway.NewComplaints(store, asOwner("u1"))

	ctx := session.WithIdentity(context.Background(), &models.Identity{ID: "u2"})
	id, err := complaints.Insert(ctx, models.Complaint{Subject: "From request", UserID: "u2"})
	require.NoError(t, err)

	doc, err := store.Get(context.Background(), models.CollectionComplaints, id)
	require.NoError(t, err)
	assert.Equal(t, "u2", doc.OwnerID)
}

func TestLiveReportsTerminalFailure(t *testing.T) {
	store := docstore.NewMemory()
	complaints := gateway.NewComplaints(store, asOwner("u1"))

	live, err := complaints.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	nextSnapshot(t, live.Snapshots())

	store.BreakWatches()

	// The snapshot channel closes and the terminal error is a storage error.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-live.Snapshots():
			if !ok {
				require.Error(t, live.Err())
				assert.True(t, errdefs.IsStorage(live.Err()))
				return
			}
		case <-deadline:
			t.Fatal("snapshot channel did not close after the watch broke")
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	store := docstore.NewMemory()
	complaints := gateway.NewComplaints(store, asOwner("u1"))

	live, err := complaints.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	nextSnapshot(t, live.Snapshots())

	live.Cancel()
	live.Cancel() // safe to repeat

	assert.NoError(t, live.Err())
}

func nextSnapshot[T any](t *testing.T, ch <-chan gateway.Snapshot[T]) gateway.Snapshot[T] {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("snapshot channel closed unexpectedly")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return gateway.Snapshot[T]{}
}
