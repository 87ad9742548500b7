package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"sidekick/internal/domain"
	"sidekick/internal/kv"
)

// Settings holds the user settings record.
type Settings struct {
	listeners

	kv kv.Store

	mu      sync.RWMutex
	current domain.Settings
}

// OpenSettings loads persisted settings, falling back to defaults on first run.
func OpenSettings(ctx context.Context, store kv.Store) (*Settings, error) {
	current := domain.DefaultSettings()
	if _, err := load(ctx, store, keySettings, &current); err != nil {
		return nil, err
	}
	return &Settings{kv: store, current: current}, nil
}

// Get returns the current settings.
func (s *Settings) Get() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to a copy of the settings and persists the result.
func (s *Settings) Update(ctx context.Context, fn func(*domain.Settings)) (domain.Settings, error) {
	s.mu.Lock()
	next := s.current
	fn(&next)
	next.APIKey = strings.TrimSpace(next.APIKey)
	if strings.TrimSpace(next.SystemPrompt) == "" {
		next.SystemPrompt = domain.DefaultSystemPrompt
	}
	if strings.TrimSpace(next.VoiceID) == "" {
		next.VoiceID = "alloy"
	}
	if err := save(ctx, s.kv, keySettings, next); err != nil {
		s.mu.Unlock()
		return domain.Settings{}, err
	}
	s.current = next
	s.mu.Unlock()

	s.notify()
	return next, nil
}

// BookContexts stores user-supplied grounding text per book.
type BookContexts struct {
	kv  kv.Store
	now func() time.Time
}

// NewBookContexts returns the per-book context store.
func NewBookContexts(store kv.Store) *BookContexts {
	return &BookContexts{kv: store, now: time.Now}
}

// Get returns the context for bookID and whether one was saved.
func (b *BookContexts) Get(ctx context.Context, bookID string) (domain.BookContext, bool, error) {
	var bc domain.BookContext
	found, err := load(ctx, b.kv, bookContextKey(bookID), &bc)
	if err != nil || !found {
		return domain.BookContext{}, false, err
	}
	return bc, true, nil
}

// Save replaces the context for bookID. Empty markdown removes it.
func (b *BookContexts) Save(ctx context.Context, bookID string, markdown string) (domain.BookContext, error) {
	if strings.TrimSpace(markdown) == "" {
		return domain.BookContext{}, b.kv.Delete(ctx, bookContextKey(bookID))
	}
	bc := domain.BookContext{Markdown: markdown, UpdatedAt: b.now().UnixMilli()}
	if err := save(ctx, b.kv, bookContextKey(bookID), bc); err != nil {
		return domain.BookContext{}, err
	}
	return bc, nil
}

// Position persists the last known audiobook position.
type Position struct {
	kv kv.Store
}

// NewPosition returns the playback position store.
func NewPosition(store kv.Store) *Position {
	return &Position{kv: store}
}

// Load returns the saved position in seconds.
func (p *Position) Load(ctx context.Context) (float64, bool, error) {
	var t float64
	found, err := load(ctx, p.kv, keyLastTime, &t)
	return t, found, err
}

// Save records the position in seconds.
func (p *Position) Save(ctx context.Context, seconds float64) error {
	return save(ctx, p.kv, keyLastTime, seconds)
}
