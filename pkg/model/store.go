package model

import (
	"context"
	"sync"
)

// Store is the object-model store: a single read-write-locked
// tree with change-path notifications fired on every committed write.
type Store struct {
	mu   sync.RWMutex
	tree map[string]interface{}

	waitMu sync.Mutex
	waitCh chan struct{}

	subMu       sync.Mutex
	subscribers []Subscriber
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tree:   map[string]interface{}{},
		waitCh: make(chan struct{}),
	}
}

// Subscribe registers sub to receive every future committed Change.
// Callers typically wrap the store's own per-connection accumulator
// (a Subscribe-mode processor) rather than calling OnChange directly
// from user code.
func (s *Store) Subscribe(sub Subscriber) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.subMu.Unlock()
}

// Unsubscribe removes sub, e.g. when its IPC connection closes.
func (s *Store) Unsubscribe(sub Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, existing := range s.subscribers {
		if existing == sub {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

func (s *Store) snapshotSubscribers() []Subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]Subscriber, len(s.subscribers))
	copy(out, s.subscribers)
	return out
}

// AccessReadOnly takes the read lock and returns a guard exposing the
// current tree. The caller must call Release exactly once.
func (s *Store) AccessReadOnly() *ReadGuard {
	s.mu.RLock()
	return &ReadGuard{s: s}
}

// AccessReadWrite takes the write lock and returns a guard accumulating
// changes; they commit (and subscribers are notified) when the guard
// is released.
func (s *Store) AccessReadWrite() *WriteGuard {
	s.mu.Lock()
	return &WriteGuard{s: s}
}

// WaitForUpdate blocks until the next committed write, or ctx is done.
func (s *Store) WaitForUpdate(ctx context.Context) error {
	s.waitMu.Lock()
	ch := s.waitCh
	s.waitMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// broadcastUpdate wakes every WaitForUpdate caller currently blocked,
// by closing the shared channel and installing a fresh one: the
// standard Go idiom for a reusable one-shot broadcast.
func (s *Store) broadcastUpdate() {
	s.waitMu.Lock()
	close(s.waitCh)
	s.waitCh = make(chan struct{})
	s.waitMu.Unlock()
}
