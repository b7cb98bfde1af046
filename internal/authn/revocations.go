package authn

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Revocations is a live feed of revoked identity ids, fanned out over the
// RevocationChannel pub/sub. The feed stops and Revoked closes when ctx is
// cancelled or Close is called.
type Revocations struct {
	pubsub *redis.PubSub
	ch     chan string
}

// WatchRevocations subscribes to the revocation channel.
func WatchRevocations(ctx context.Context, rdb *redis.Client) (*Revocations, error) {
	pubsub := rdb.Subscribe(ctx, RevocationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, storagef(err, "failed to subscribe to revocations")
	}

	r := &Revocations{pubsub: pubsub, ch: make(chan string, 16)}
	go r.pump(ctx)
	return r, nil
}

// Revoked delivers the ids of identities whose sessions were revoked.
func (r *Revocations) Revoked() <-chan string { return r.ch }

// Close stops the feed.
func (r *Revocations) Close() error { return r.pubsub.Close() }

func (r *Revocations) pump(ctx context.Context) {
	defer close(r.ch)
	events := r.pubsub.Channel()
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			select {
			case r.ch <- msg.Payload:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
