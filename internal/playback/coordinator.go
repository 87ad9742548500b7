// Package playback coordinates the audiobook transport: it keeps the
// authoritative play/pause/seek snapshot, forwards commands to whichever
// player actually renders the audio, and persists the resume position.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sidekick/internal/domain"
)

const (
	defaultSaveInterval = 150 * time.Millisecond
	defaultPlayDebounce = 200 * time.Millisecond

	playFailedMessage = "Couldn't start playback. Tap Play again."
)

// Transport renders the audiobook. Commands are fire-and-forget; the
// transport reports actual progress back through Coordinator.Report.
type Transport interface {
	Play() error
	Pause()
	Seek(seconds float64)
}

// NopTransport accepts commands without rendering anything. Headless
// surfaces use it so markers and resume positions still work.
type NopTransport struct{}

func (NopTransport) Play() error  { return nil }
func (NopTransport) Pause()       {}
func (NopTransport) Seek(float64) {}

// PositionStore persists the resume position.
type PositionStore interface {
	Load(ctx context.Context) (float64, bool, error)
	Save(ctx context.Context, seconds float64) error
}

// Options tunes the coordinator. Zero values select defaults.
type Options struct {
	Logger       *slog.Logger
	Now          func() time.Time
	SaveInterval time.Duration
	PlayDebounce time.Duration
}

// Progress is one transport report.
type Progress struct {
	CurrentTime float64
	Duration    float64
	Status      domain.PlaybackStatus
	Error       string
}

type Coordinator struct {
	transport Transport
	positions PositionStore
	log       *slog.Logger
	now       func() time.Time

	saveInterval time.Duration
	playDebounce time.Duration

	mu       sync.Mutex
	state    domain.PlaybackState
	lastSave time.Time
	lastPlay time.Time

	subMu sync.Mutex
	subID int
	subs  map[int]func(domain.PlaybackState)
}

func New(transport Transport, positions PositionStore, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = defaultSaveInterval
	}
	if opts.PlayDebounce <= 0 {
		opts.PlayDebounce = defaultPlayDebounce
	}
	return &Coordinator{
		transport:    transport,
		positions:    positions,
		log:          opts.Logger.With("component", "playback"),
		now:          opts.Now,
		saveInterval: opts.SaveInterval,
		playDebounce: opts.PlayDebounce,
		state:        domain.PlaybackState{Status: domain.PlaybackIdle},
		subs:         make(map[int]func(domain.PlaybackState)),
	}
}

// Restore seeks the transport to the persisted resume position, if any.
func (c *Coordinator) Restore(ctx context.Context) {
	if c.positions == nil {
		return
	}
	t, ok, err := c.positions.Load(ctx)
	if err != nil {
		c.log.Warn("load resume position failed", "err", err)
		return
	}
	if !ok || t < 0 {
		return
	}

	c.mu.Lock()
	c.state.CurrentTime = t
	if c.state.Status == domain.PlaybackIdle {
		c.state.Status = domain.PlaybackLoading
	}
	snapshot := c.state
	c.mu.Unlock()

	c.transport.Seek(t)
	c.publish(snapshot)
}

// Play starts or resumes playback. Taps closer together than the debounce
// window are ignored.
func (c *Coordinator) Play() {
	c.mu.Lock()
	now := c.now()
	if !c.lastPlay.IsZero() && now.Sub(c.lastPlay) < c.playDebounce {
		c.mu.Unlock()
		return
	}
	c.lastPlay = now
	restart := c.state.Status == domain.PlaybackEnded
	if restart {
		c.state.CurrentTime = 0
	}
	c.mu.Unlock()

	if restart {
		c.transport.Seek(0)
	}
	err := c.transport.Play()

	c.mu.Lock()
	if err != nil {
		c.log.Warn("playback failed to start", "err", err)
		c.state.Status = domain.PlaybackIdle
		c.state.Error = playFailedMessage
	} else {
		c.state.Status = domain.PlaybackPlaying
		c.state.Error = ""
	}
	snapshot := c.state
	c.mu.Unlock()

	c.publish(snapshot)
}

// Pause stops playback and saves the position immediately.
func (c *Coordinator) Pause() {
	c.transport.Pause()

	c.mu.Lock()
	switch c.state.Status {
	case domain.PlaybackPlaying, domain.PlaybackLoading:
		c.state.Status = pausedOrEnded(c.state)
	}
	snapshot := c.state
	c.lastSave = c.now()
	c.mu.Unlock()

	c.save(snapshot.CurrentTime)
	c.publish(snapshot)
}

// Toggle plays when not playing and pauses otherwise.
func (c *Coordinator) Toggle() {
	if c.Snapshot().Status == domain.PlaybackPlaying {
		c.Pause()
		return
	}
	c.Play()
}

// Seek moves to seconds clamped to [0, duration]. It is ignored until the
// duration is known and returns the position actually applied.
func (c *Coordinator) Seek(seconds float64) (float64, bool) {
	c.mu.Lock()
	if c.state.Duration <= 0 {
		c.mu.Unlock()
		return 0, false
	}
	seconds = max(0, min(seconds, c.state.Duration))
	c.state.CurrentTime = seconds
	snapshot := c.state
	c.lastSave = c.now()
	c.mu.Unlock()

	c.transport.Seek(seconds)
	c.save(seconds)
	c.publish(snapshot)
	return seconds, true
}

// Snapshot returns the current transport state.
func (c *Coordinator) Snapshot() domain.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Report folds a transport progress update into the snapshot and persists
// the position at most once per save interval.
func (c *Coordinator) Report(p Progress) {
	c.mu.Lock()
	if p.Duration > 0 {
		c.state.Duration = p.Duration
	}
	if p.CurrentTime >= 0 {
		c.state.CurrentTime = p.CurrentTime
	}
	if p.Status != "" {
		c.state.Status = p.Status
		if p.Status == domain.PlaybackPaused {
			c.state.Status = pausedOrEnded(c.state)
		}
	}
	c.state.Error = p.Error

	shouldSave := c.now().Sub(c.lastSave) >= c.saveInterval
	if shouldSave {
		c.lastSave = c.now()
	}
	snapshot := c.state
	c.mu.Unlock()

	if shouldSave {
		c.save(snapshot.CurrentTime)
	}
	c.publish(snapshot)
}

// Subscribe registers fn, calls it once with the current state, and returns
// an unsubscribe func.
func (c *Coordinator) Subscribe(fn func(domain.PlaybackState)) func() {
	c.subMu.Lock()
	id := c.subID
	c.subID++
	c.subs[id] = fn
	c.subMu.Unlock()

	fn(c.Snapshot())
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Coordinator) publish(state domain.PlaybackState) {
	c.subMu.Lock()
	fns := make([]func(domain.PlaybackState), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (c *Coordinator) save(seconds float64) {
	if c.positions == nil {
		return
	}
	if err := c.positions.Save(context.Background(), seconds); err != nil {
		c.log.Warn("save resume position failed", "err", err)
	}
}

func pausedOrEnded(s domain.PlaybackState) domain.PlaybackStatus {
	if s.Duration > 0 && s.CurrentTime >= s.Duration {
		return domain.PlaybackEnded
	}
	return domain.PlaybackPaused
}
