package docstore

import "sync"

// watchSub is the Subscription handed out by Postgres.Watch.
type watchSub struct {
	ch   chan []Document
	done chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newWatchSub() *watchSub {
	return &watchSub{
		ch:   make(chan []Document, 1),
		done: make(chan struct{}),
	}
}

func (s *watchSub) Snapshots() <-chan []Document {
	return s.ch
}

func (s *watchSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *watchSub) Cancel() {
	s.once.Do(func() { close(s.done) })
}

func (s *watchSub) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.Cancel()
}

// trySend delivers a snapshot without ever blocking the caller: when the
// consumer lags, the stale pending snapshot is replaced by the newest one.
// Each snapshot is the full matched set, so coalescing loses nothing.
func (s *watchSub) trySend(docs []Document) {
	for {
		select {
		case <-s.done:
			return
		case s.ch <- docs:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
