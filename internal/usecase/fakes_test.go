package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sidekick/internal/domain"
	"sidekick/internal/ports"
)

type fakeRecorder struct {
	mu     sync.Mutex
	clip   domain.Clip
	err    error
	starts int
	last   *fakeRecording
}

func (f *fakeRecorder) Start(context.Context) (ports.RecordingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.err != nil {
		return nil, f.err
	}
	f.last = &fakeRecording{clip: f.clip}
	return f.last, nil
}

type fakeRecording struct {
	mu      sync.Mutex
	clip    domain.Clip
	stopped bool
	aborted bool
}

func (f *fakeRecording) Stop() (domain.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return domain.Clip{}, domain.ErrNoActiveSession
	}
	f.stopped = true
	return f.clip, nil
}

func (f *fakeRecording) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	return nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, domain.Clip) (string, error) {
	return f.text, f.err
}

type fakeCompleter struct {
	mu       sync.Mutex
	chunks   []string
	answer   string
	err      error
	cleanup  string
	cleanErr error
	requests []domain.CompletionRequest

	// block makes answer calls wait for cancellation; started is closed once
	// the first blocked call is waiting.
	block   bool
	started chan struct{}
	onCall  func()
}

func (f *fakeCompleter) record(req domain.CompletionRequest) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall()
	}
}

func (f *fakeCompleter) snapshotRequests() []domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CompletionRequest(nil), f.requests...)
}

func (f *fakeCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	f.record(req)
	if strings.HasPrefix(req.Prompt, "Please correct punctuation") {
		return f.cleanup, f.cleanErr
	}
	if f.block {
		return f.wait(ctx)
	}
	return f.answer, f.err
}

func (f *fakeCompleter) CompleteStream(ctx context.Context, req domain.CompletionRequest, onChunk func(string)) (string, error) {
	f.record(req)
	if f.block {
		return f.wait(ctx)
	}
	if f.err != nil {
		return "", f.err
	}
	var sb strings.Builder
	for _, chunk := range f.chunks {
		sb.WriteString(chunk)
		onChunk(chunk)
	}
	return sb.String(), nil
}

func (f *fakeCompleter) wait(ctx context.Context) (string, error) {
	close(f.started)
	<-ctx.Done()
	return "", domain.FromContext(ctx.Err())
}

type fakeSynthesizer struct {
	mu     sync.Mutex
	audio  []byte
	err    error
	voices []string

	// block makes calls wait for cancellation; started is closed once a
	// blocked call is waiting.
	block   bool
	started chan struct{}
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, _ string, voice string) ([]byte, error) {
	f.mu.Lock()
	f.voices = append(f.voices, voice)
	block := f.block
	f.mu.Unlock()

	if block {
		close(f.started)
		<-ctx.Done()
		return nil, domain.FromContext(ctx.Err())
	}
	return f.audio, f.err
}

func (f *fakeSynthesizer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.voices)
}

type fakePlayer struct {
	mu    sync.Mutex
	plays [][]byte
	stops int
}

func (f *fakePlayer) Play(_ context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, audio)
	return nil
}

func (f *fakePlayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plays)
}

func (f *fakePlayer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

type fakePlayback struct {
	mu     sync.Mutex
	state  domain.PlaybackState
	pauses int
}

func (f *fakePlayback) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	f.state.Status = domain.PlaybackPaused
}

func (f *fakePlayback) Snapshot() domain.PlaybackState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type fakeHistory struct {
	mu       sync.Mutex
	entries  []domain.HistoryEntry
	failRole domain.Role
}

func (f *fakeHistory) Append(_ context.Context, entry domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRole != "" && entry.Role == f.failRole {
		return errors.New("disk full")
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistory) List() []domain.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.HistoryEntry(nil), f.entries...)
}

type fakeMarkers struct {
	mu      sync.Mutex
	markers []domain.NoteMarker
	linkErr error
}

func (f *fakeMarkers) Add(_ context.Context, marker domain.NoteMarker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers = append(f.markers, marker)
	return nil
}

func (f *fakeMarkers) Link(_ context.Context, markerID string, historyID string, preview string) (domain.NoteMarker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return domain.NoteMarker{}, f.linkErr
	}
	for i := range f.markers {
		if f.markers[i].ID != markerID {
			continue
		}
		if f.markers[i].Linked() {
			return domain.NoteMarker{}, errors.New("already linked")
		}
		f.markers[i].HistoryID = historyID
		f.markers[i].Preview = preview
		return f.markers[i], nil
	}
	return domain.NoteMarker{}, errors.New("marker not found")
}

func (f *fakeMarkers) snapshot() []domain.NoteMarker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.NoteMarker(nil), f.markers...)
}

type fakeSettings struct {
	mu       sync.Mutex
	settings domain.Settings
}

func (f *fakeSettings) Get() domain.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

type fakeBookContexts map[string]domain.BookContext

func (f fakeBookContexts) Get(_ context.Context, bookID string) (domain.BookContext, bool, error) {
	bc, ok := f[bookID]
	return bc, ok, nil
}

type stateEvent struct {
	state  domain.TurnState
	reason domain.TurnStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu        sync.Mutex
	states    []stateEvent
	fragments []string
	displays  []string
	completed []domain.TurnResult
	errors    []errEvent
}

func (f *fakeEventSink) TurnStateChanged(state domain.TurnState, reason domain.TurnStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) AnswerChunk(fragment string, display string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fragments = append(f.fragments, fragment)
	f.displays = append(f.displays, display)
}

func (f *fakeEventSink) TurnCompleted(result domain.TurnResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, result)
}

func (f *fakeEventSink) TurnError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) completions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed)
}

type harness struct {
	orch        *Orchestrator
	recorder    *fakeRecorder
	transcriber *fakeTranscriber
	completer   *fakeCompleter
	synth       *fakeSynthesizer
	player      *fakePlayer
	playback    *fakePlayback
	history     *fakeHistory
	markers     *fakeMarkers
	settings    *fakeSettings
	contexts    fakeBookContexts
	events      *fakeEventSink
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		recorder:    &fakeRecorder{clip: domain.Clip{PCM: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}},
		transcriber: &fakeTranscriber{text: "What is a galleon?"},
		completer:   &fakeCompleter{answer: "A large sailing ship.", started: make(chan struct{})},
		synth:       &fakeSynthesizer{audio: []byte("mp3"), started: make(chan struct{})},
		player:      &fakePlayer{},
		playback:    &fakePlayback{state: domain.PlaybackState{Status: domain.PlaybackPlaying, CurrentTime: 42.5, Duration: 600}},
		history:     &fakeHistory{},
		markers:     &fakeMarkers{},
		settings:    &fakeSettings{settings: domain.DefaultSettings()},
		contexts:    fakeBookContexts{},
		events:      &fakeEventSink{},
	}
	h.settings.settings.APIKey = "sk-test"

	var (
		idMu sync.Mutex
		next int
	)
	newID := func() string {
		idMu.Lock()
		defer idMu.Unlock()
		next++
		return fmt.Sprintf("id-%d", next)
	}

	h.orch = NewOrchestrator(Deps{
		Recorder:     h.recorder,
		Transcriber:  h.transcriber,
		Completer:    h.completer,
		Synthesizer:  h.synth,
		Player:       h.player,
		Playback:     h.playback,
		History:      h.history,
		Markers:      h.markers,
		Settings:     h.settings,
		BookContexts: h.contexts,
		Events:       h.events,
		Now:          func() time.Time { return time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC) },
		NewID:        newID,
	}, cfg)
	return h
}
