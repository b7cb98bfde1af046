package gateway

import (
	"errors"
	"sync"

	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/errdefs"
)

// Snapshot is one delivery of a live (or one-shot) query: the decoded
// matched set plus the side list of records dropped for failing to decode.
// A malformed record never terminates the query it came from.
type Snapshot[T any] struct {
	Records []T
	Dropped []errdefs.DecodeError
}

// Live is a continuously-updated view over one query. Every backend change
// to the matched set delivers a fresh full snapshot, in the order the store
// observed the changes, until Cancel.
type Live[T any, PT Record[T]] struct {
	collection string
	sub        docstore.Subscription

	ch   chan Snapshot[T]
	done chan struct{}
	once sync.Once
}

func newLive[T any, PT Record[T]](collection string, sub docstore.Subscription) *Live[T, PT] {
	l := &Live[T, PT]{
		collection: collection,
		sub:        sub,
		ch:         make(chan Snapshot[T], 1),
		done:       make(chan struct{}),
	}
	go l.run()
	return l
}

// Snapshots delivers decoded snapshots. Closed after Cancel or on terminal
// failure of the underlying subscription.
func (l *Live[T, PT]) Snapshots() <-chan Snapshot[T] {
	return l.ch
}

// Err returns the terminal error, if any, once Snapshots is closed. A
// subscription that dies irrecoverably reports a storage error here rather
// than stopping silently.
func (l *Live[T, PT]) Err() error {
	return l.sub.Err()
}

// Cancel stops delivery immediately. Safe to call more than once.
func (l *Live[T, PT]) Cancel() {
	l.once.Do(func() { close(l.done) })
	l.sub.Cancel()
}

func (l *Live[T, PT]) run() {
	defer close(l.ch)
	for docs := range l.sub.Snapshots() {
		snap := decodeSnapshot[T, PT](l.collection, docs)
		select {
		case l.ch <- snap:
		case <-l.done:
			return
		}
	}
}

func decodeSnapshot[T any, PT Record[T]](collection string, docs []docstore.Document) Snapshot[T] {
	snap := Snapshot[T]{}
	for _, doc := range docs {
		rec, err := decode[T, PT](doc)
		if err != nil {
			var de *errdefs.DecodeError
			if !errors.As(err, &de) {
				de = &errdefs.DecodeError{Collection: collection, DocID: doc.ID, Err: err}
			}
			snap.Dropped = append(snap.Dropped, *de)
			continue
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap
}
