package ports

import (
	"context"
	"io"

	"sidekick/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture stream.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture opens raw microphone streams.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecordingSession buffers one capture until Stop yields the finished clip.
type RecordingSession interface {
	Stop() (domain.Clip, error)
	Abort() error
}

// Recorder opens exclusive recording sessions.
type Recorder interface {
	Start(ctx context.Context) (RecordingSession, error)
}

// Transcriber turns a clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip domain.Clip) (string, error)
}

// Completer generates answer text.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
	CompleteStream(ctx context.Context, req domain.CompletionRequest, onChunk func(fragment string)) (string, error)
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice string) ([]byte, error)
}

// SpeechPlayer is the single shared output for synthesized answers.
type SpeechPlayer interface {
	Play(ctx context.Context, audio []byte) error
	Stop()
}

// Prewarmer fires throwaway requests to reduce first-call latency.
type Prewarmer interface {
	Prewarm(ctx context.Context)
}

// Playback is the slice of the audiobook transport the orchestrator needs.
type Playback interface {
	Pause()
	Snapshot() domain.PlaybackState
}

// HistoryLog is the append-only conversation log.
type HistoryLog interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
	List() []domain.HistoryEntry
}

// MarkerStore persists note markers.
type MarkerStore interface {
	Add(ctx context.Context, marker domain.NoteMarker) error
	Link(ctx context.Context, markerID string, historyID string, preview string) (domain.NoteMarker, error)
}

// SettingsSource exposes the current user settings.
type SettingsSource interface {
	Get() domain.Settings
}

// BookContextSource returns user-supplied grounding text for a book.
type BookContextSource interface {
	Get(ctx context.Context, bookID string) (domain.BookContext, bool, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	TurnStateChanged(state domain.TurnState, reason domain.TurnStateReason)
	AnswerChunk(fragment string, display string)
	TurnCompleted(result domain.TurnResult)
	TurnError(code domain.ErrorCode, detail string)
}
