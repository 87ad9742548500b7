package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"sidekick/internal/domain"
	"sidekick/internal/kv"
)

// HistoryFilter selects a subset of entries for display.
type HistoryFilter string

const (
	FilterAll   HistoryFilter = "all"
	FilterNotes HistoryFilter = "notes"
	FilterQA    HistoryFilter = "qa"
)

// History is the append-only conversation log.
type History struct {
	listeners

	kv kv.Store

	mu      sync.RWMutex
	entries []domain.HistoryEntry
}

// OpenHistory loads the persisted log.
func OpenHistory(ctx context.Context, store kv.Store) (*History, error) {
	var entries []domain.HistoryEntry
	if _, err := load(ctx, store, keyHistory, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Role = domain.NormalizeRole(entries[i].Role)
	}
	return &History{kv: store, entries: entries}, nil
}

// Append adds one entry at the end of the log. The in-memory view only
// changes once the write-through succeeded.
func (h *History) Append(ctx context.Context, entry domain.HistoryEntry) error {
	if entry.ID == "" {
		return errors.New("history entry requires an id")
	}

	h.mu.Lock()
	next := append(slices.Clip(h.entries), entry)
	if err := save(ctx, h.kv, keyHistory, next); err != nil {
		h.mu.Unlock()
		return err
	}
	h.entries = next
	h.mu.Unlock()

	h.notify()
	return nil
}

// List returns a copy of every entry in insertion order.
func (h *History) List() []domain.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.entries)
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Find returns the entry with the given id.
func (h *History) Find(id string) (domain.HistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.entries {
		if e.ID == id {
			return e, true
		}
	}
	return domain.HistoryEntry{}, false
}

// Filter returns the entries matching f, optionally limited to the last n (n <= 0 means all).
func (h *History) Filter(f HistoryFilter, n int) []domain.HistoryEntry {
	h.mu.RLock()
	out := make([]domain.HistoryEntry, 0, len(h.entries))
	for _, e := range h.entries {
		switch f {
		case FilterNotes:
			if e.Role != domain.RoleNote {
				continue
			}
		case FilterQA:
			if e.Role == domain.RoleNote {
				continue
			}
		}
		out = append(out, e)
	}
	h.mu.RUnlock()

	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Clear removes every entry. Clearing an empty log is not an error.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	if err := h.kv.Delete(ctx, keyHistory); err != nil {
		h.mu.Unlock()
		return err
	}
	h.entries = nil
	h.mu.Unlock()

	h.notify()
	return nil
}
