package domain

import "time"

// TurnState models the ask-and-answer lifecycle.
type TurnState string

const (
	TurnStateIdle         TurnState = "idle"
	TurnStateListening    TurnState = "listening"
	TurnStateTranscribing TurnState = "transcribing"
	TurnStateResponding   TurnState = "responding"
	TurnStateComplete     TurnState = "complete"
	TurnStateError        TurnState = "error"
)

// InFlight reports whether the state belongs to an unfinished turn.
func (s TurnState) InFlight() bool {
	switch s {
	case TurnStateListening, TurnStateTranscribing, TurnStateResponding:
		return true
	default:
		return false
	}
}

// TurnStateReason provides a structured reason for state transitions.
type TurnStateReason string

const (
	TurnReasonAskOpened          TurnStateReason = "ask_opened"
	TurnReasonAskClosed          TurnStateReason = "ask_closed"
	TurnReasonListeningStarted   TurnStateReason = "listening_started"
	TurnReasonTranscribing       TurnStateReason = "transcribing"
	TurnReasonAnswering          TurnStateReason = "answering"
	TurnReasonAnswered           TurnStateReason = "answered"
	TurnReasonNoteSaved          TurnStateReason = "note_saved"
	TurnReasonCancelled          TurnStateReason = "cancelled"
	TurnReasonReset              TurnStateReason = "reset"
	TurnReasonRecordingFailed    TurnStateReason = "recording_failed"
	TurnReasonTranscriptionFail  TurnStateReason = "transcription_failed"
	TurnReasonNoTranscript       TurnStateReason = "no_transcript"
	TurnReasonCompletionFailed   TurnStateReason = "completion_failed"
	TurnReasonHistoryWriteFailed TurnStateReason = "history_write_failed"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeRecording     ErrorCode = "recording"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeCompletion    ErrorCode = "completion"
	ErrorCodeSpeech        ErrorCode = "speech"
	ErrorCodeNoteCleanup   ErrorCode = "note_cleanup"
	ErrorCodeStorage       ErrorCode = "storage"
	ErrorCodeMarkerLink    ErrorCode = "marker_link"
)

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser     Role = "user"
	RoleSidekick Role = "sidekick"
	RoleNote     Role = "note"
)

// EntryMeta is optional context recorded with an entry.
type EntryMeta struct {
	BookID      string `json:"bookId,omitempty" msgpack:"bookId,omitempty"`
	UsedContext bool   `json:"usedContext,omitempty" msgpack:"usedContext,omitempty"`
}

// HistoryEntry is one immutable line of the conversation log.
type HistoryEntry struct {
	ID        string     `json:"id" msgpack:"id"`
	Timestamp string     `json:"timestamp" msgpack:"timestamp"`
	Role      Role       `json:"role" msgpack:"role"`
	Content   string     `json:"content" msgpack:"content"`
	Meta      *EntryMeta `json:"meta,omitempty" msgpack:"meta,omitempty"`
}

// NoteMarker anchors a point on the audiobook timeline, optionally linked to a conversation.
type NoteMarker struct {
	ID        string    `json:"id" msgpack:"id"`
	BookID    string    `json:"bookId" msgpack:"bookId"`
	TimeSec   float64   `json:"timeSec" msgpack:"timeSec"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
	HistoryID string    `json:"historyId,omitempty" msgpack:"historyId,omitempty"`
	Preview   string    `json:"preview,omitempty" msgpack:"preview,omitempty"`
}

// Linked reports whether a conversation has been attached to the marker.
func (m NoteMarker) Linked() bool {
	return m.HistoryID != ""
}

// Settings is the user-editable configuration persisted across runs.
type Settings struct {
	APIKey           string `json:"apiKey" msgpack:"apiKey"`
	SystemPrompt     string `json:"systemPrompt" msgpack:"systemPrompt"`
	VoiceID          string `json:"voiceId" msgpack:"voiceId"`
	Debug            bool   `json:"debug" msgpack:"debug"`
	Silent           bool   `json:"silent" msgpack:"silent"`
	EconomyMode      bool   `json:"fastMode" msgpack:"fastMode"`
	Prewarm          bool   `json:"prewarm" msgpack:"prewarm"`
	CurrentBookID    string `json:"currentBookId" msgpack:"currentBookId"`
	CurrentBookTitle string `json:"currentBookTitle" msgpack:"currentBookTitle"`
	UseBookContext   bool   `json:"useBookContext" msgpack:"useBookContext"`
}

// DefaultSystemPrompt is used until the user supplies their own.
const DefaultSystemPrompt = "You are a concise audiobook sidekick. Always respond with exactly 1-2 complete sentences that end with proper punctuation. Never cut off mid-sentence or use fragments. Be helpful but brief."

// DefaultSettings returns the first-run settings.
func DefaultSettings() Settings {
	return Settings{
		SystemPrompt:     DefaultSystemPrompt,
		VoiceID:          "alloy",
		EconomyMode:      true,
		Prewarm:          true,
		CurrentBookID:    "treasure-island",
		CurrentBookTitle: "Treasure Island",
		UseBookContext:   true,
	}
}

// BookContext is user-supplied grounding text for one book.
type BookContext struct {
	Markdown  string `json:"markdown" msgpack:"markdown"`
	UpdatedAt int64  `json:"updatedAt" msgpack:"updatedAt"`
}

// IntentKind is the classified purpose of an utterance.
type IntentKind string

const (
	IntentNote    IntentKind = "note"
	IntentDefine  IntentKind = "define"
	IntentFact    IntentKind = "fact"
	IntentBook    IntentKind = "book"
	IntentUnknown IntentKind = "unknown"
)

// ParsedIntent is the classifier output for one utterance.
type ParsedIntent struct {
	Kind    IntentKind `json:"kind"`
	Payload string     `json:"payload"`
	BookID  string     `json:"bookId,omitempty"`
}

// CompletionRequest is one logical chat request.
type CompletionRequest struct {
	SystemPrompt string
	Prompt       string
	Economy      bool
}

// TurnResult is returned once a turn reaches complete.
type TurnResult struct {
	Question string        `json:"question"`
	Intent   ParsedIntent  `json:"intent"`
	Answer   string        `json:"answer"`
	Entry    HistoryEntry  `json:"entry"`
	// Spoken reports that the answer was queued for speech. Synthesis and
	// playback run after the turn completes.
	Spoken   bool          `json:"spoken"`
	Marker   *NoteMarker   `json:"marker,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Status summarizes the current runtime status.
type Status struct {
	State   TurnState `json:"state"`
	Active  bool      `json:"active"`
	Display string    `json:"display,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Exchange is a question paired with its answer for display.
type Exchange struct {
	Question HistoryEntry  `json:"question"`
	Answer   *HistoryEntry `json:"answer,omitempty"`
	Orphan   bool          `json:"orphan,omitempty"`
}

// PlaybackStatus mirrors the audiobook transport state.
type PlaybackStatus string

const (
	PlaybackIdle    PlaybackStatus = "idle"
	PlaybackLoading PlaybackStatus = "loading"
	PlaybackPlaying PlaybackStatus = "playing"
	PlaybackPaused  PlaybackStatus = "paused"
	PlaybackEnded   PlaybackStatus = "ended"
)

// PlaybackState is a read-only snapshot of the audiobook transport.
type PlaybackState struct {
	Status      PlaybackStatus `json:"status"`
	CurrentTime float64        `json:"currentTime"`
	Duration    float64        `json:"duration"`
	Error       string         `json:"error,omitempty"`
}
