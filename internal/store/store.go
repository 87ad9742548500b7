// Package store keeps the persisted collections (history, note markers,
// settings, book context, playback position) on top of a kv.Store. Each
// collection is cached in memory, mutated under its own lock, written through
// to the kv store, and notifies subscribers after every successful change.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"sidekick/internal/kv"
)

var (
	keySettings = kv.Key{"settings"}
	keyHistory  = kv.Key{"history"}
	keyNotes    = kv.Key{"notes"}
	keyLastTime = kv.Key{"audio", "lastTime"}
)

func bookContextKey(bookID string) kv.Key {
	return kv.Key{"book", bookID, "context"}
}

// load decodes the value at key into out. It reports false when the key is absent.
func load(ctx context.Context, store kv.Store, key kv.Key, out any) (bool, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func save(ctx context.Context, store kv.Store, key kv.Key, value any) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// listeners is a small observer registry shared by the collections.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

// Subscribe registers fn to run after every change and returns an unsubscribe func.
func (l *listeners) Subscribe(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) notify() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
