// Package feed fans full-collection snapshots out to subscribers.
//
// A Broker never forwards deltas. Every notification re-reads the whole
// collection through its fetch function and hands that snapshot to each
// subscriber, so a subscriber never observes a partial view.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FetchFunc loads the complete, ordered collection.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// VersionFunc returns a cheap fingerprint of the collection.
type VersionFunc func(ctx context.Context) (string, error)

type Broker[T any] struct {
	fetch  FetchFunc[T]
	logger *slog.Logger

	// notifyMu orders fetch and delivery across concurrent Notify calls.
	notifyMu sync.Mutex

	mu   sync.Mutex
	next uint64
	subs map[uint64]func([]T)
}

func New[T any](fetch FetchFunc[T], logger *slog.Logger) *Broker[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker[T]{fetch: fetch, logger: logger, subs: make(map[uint64]func([]T))}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is safe to call more than once.
func (b *Broker[T]) Subscribe(fn func([]T)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Broker[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Notify fetches a fresh snapshot and delivers it to every subscriber.
// Concurrent calls are serialized, so a snapshot is never delivered after
// one fetched later. Callbacks run on the calling goroutine and may
// unsubscribe, but must not call Notify.
func (b *Broker[T]) Notify(ctx context.Context) error {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	if len(b.subs) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	snapshot, err := b.fetch(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	fns := make([]func([]T), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
	return nil
}

// Stream subscribes for the lifetime of ctx. The channel holds at most one
// pending snapshot; a newer snapshot replaces an unread older one. The
// channel is closed once ctx is done.
func (b *Broker[T]) Stream(ctx context.Context) <-chan []T {
	ch := make(chan []T, 1)
	var mu sync.Mutex
	closed := false

	unsubscribe := b.Subscribe(func(snapshot []T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

// Watch polls version every interval and calls Notify whenever the
// fingerprint changes. It picks up writes made by other processes sharing
// the same database. Watch blocks until ctx is done.
func (b *Broker[T]) Watch(ctx context.Context, interval time.Duration, version VersionFunc) {
	if interval <= 0 {
		return
	}
	last, err := version(ctx)
	if err != nil {
		b.logger.Warn("feed version check failed", "err", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		current, err := version(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Warn("feed version check failed", "err", err)
			}
			continue
		}
		if current == last {
			continue
		}
		last = current
		if err := b.Notify(ctx); err != nil && ctx.Err() == nil {
			b.logger.Error("feed notify failed", "err", err)
		}
	}
}
