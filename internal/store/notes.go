package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"sidekick/internal/domain"
	"sidekick/internal/kv"
)

var (
	ErrMarkerNotFound = errors.New("note marker not found")
	ErrMarkerLinked   = errors.New("note marker already linked")
)

// Notes holds the timeline markers for every book.
type Notes struct {
	listeners

	kv kv.Store

	mu      sync.RWMutex
	markers []domain.NoteMarker
}

// OpenNotes loads the persisted markers.
func OpenNotes(ctx context.Context, store kv.Store) (*Notes, error) {
	var markers []domain.NoteMarker
	if _, err := load(ctx, store, keyNotes, &markers); err != nil {
		return nil, err
	}
	return &Notes{kv: store, markers: markers}, nil
}

// Add persists a new marker.
func (n *Notes) Add(ctx context.Context, marker domain.NoteMarker) error {
	if marker.ID == "" {
		return errors.New("note marker requires an id")
	}
	if marker.TimeSec < 0 {
		marker.TimeSec = 0
	}
	return n.mutate(ctx, func(markers []domain.NoteMarker) ([]domain.NoteMarker, error) {
		return append(markers, marker), nil
	})
}

// Link attaches a history entry to a marker. A marker is linked at most once.
func (n *Notes) Link(ctx context.Context, markerID string, historyID string, preview string) (domain.NoteMarker, error) {
	var linked domain.NoteMarker
	err := n.mutate(ctx, func(markers []domain.NoteMarker) ([]domain.NoteMarker, error) {
		i := slices.IndexFunc(markers, func(m domain.NoteMarker) bool { return m.ID == markerID })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMarkerNotFound, markerID)
		}
		if markers[i].Linked() {
			return nil, fmt.Errorf("%w: %s", ErrMarkerLinked, markerID)
		}
		markers[i].HistoryID = historyID
		markers[i].Preview = preview
		linked = markers[i]
		return markers, nil
	})
	return linked, err
}

// Delete removes one marker. Deleting an unknown id is not an error.
func (n *Notes) Delete(ctx context.Context, markerID string) error {
	return n.mutate(ctx, func(markers []domain.NoteMarker) ([]domain.NoteMarker, error) {
		return slices.DeleteFunc(markers, func(m domain.NoteMarker) bool { return m.ID == markerID }), nil
	})
}

// Get returns the marker with the given id.
func (n *Notes) Get(markerID string) (domain.NoteMarker, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, m := range n.markers {
		if m.ID == markerID {
			return m, true
		}
	}
	return domain.NoteMarker{}, false
}

// List returns every marker in creation order.
func (n *Notes) List() []domain.NoteMarker {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.markers)
}

// ForBook returns the markers of one book sorted by timeline position.
func (n *Notes) ForBook(bookID string) []domain.NoteMarker {
	n.mu.RLock()
	out := make([]domain.NoteMarker, 0, len(n.markers))
	for _, m := range n.markers {
		if m.BookID == bookID {
			out = append(out, m)
		}
	}
	n.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.NoteMarker) int {
		switch {
		case a.TimeSec < b.TimeSec:
			return -1
		case a.TimeSec > b.TimeSec:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Clear removes every marker. Clearing an empty set is not an error.
func (n *Notes) Clear(ctx context.Context) error {
	n.mu.Lock()
	if err := n.kv.Delete(ctx, keyNotes); err != nil {
		n.mu.Unlock()
		return err
	}
	n.markers = nil
	n.mu.Unlock()

	n.notify()
	return nil
}

func (n *Notes) mutate(ctx context.Context, fn func([]domain.NoteMarker) ([]domain.NoteMarker, error)) error {
	n.mu.Lock()
	next, err := fn(slices.Clone(n.markers))
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if err := save(ctx, n.kv, keyNotes, next); err != nil {
		n.mu.Unlock()
		return err
	}
	n.markers = next
	n.mu.Unlock()

	n.notify()
	return nil
}

// ClearAll wipes the conversation log and every note marker.
func ClearAll(ctx context.Context, history *History, notes *Notes) error {
	return errors.Join(history.Clear(ctx), notes.Clear(ctx))
}
