package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"sidekick/internal/bootstrap"
	"sidekick/internal/books"
	"sidekick/internal/domain"
	"sidekick/internal/playback"
	"sidekick/internal/store"
	"sidekick/internal/usecase"
)

const (
	eventTurn     = "sidekick:turn"
	eventChunk    = "sidekick:chunk"
	eventAnswer   = "sidekick:answer"
	eventError    = "sidekick:error"
	eventPlayback = "sidekick:playback"
	eventHistory  = "sidekick:history"
	eventNotes    = "sidekick:notes"
	eventSettings = "sidekick:settings"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services     bootstrap.Services
	orchestrator *usecase.Orchestrator
	bootErr      error

	speech   *webviewSpeech
	stopWarm context.CancelFunc
	unsubs   []func()
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.speech = &webviewSpeech{app: a}

	services, err := bootstrap.Build(ctx, bootstrap.Surface{
		Events:    a,
		Player:    a.speech,
		Transport: webviewTransport{app: a},
	})
	if err != nil {
		a.bootErr = err
		a.TurnError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.orchestrator = services.Orchestrator
	a.unsubs = append(a.unsubs,
		services.Playback.Subscribe(func(state domain.PlaybackState) { a.emit(eventPlayback, state) }),
		services.History.Subscribe(func() { a.emit(eventHistory, services.History.Len()) }),
		services.Notes.Subscribe(func() { a.emit(eventNotes, len(services.Notes.List())) }),
		services.Settings.Subscribe(func() { a.emit(eventSettings, services.Settings.Get()) }),
	)

	warmCtx, cancel := context.WithCancel(ctx)
	a.stopWarm = cancel
	go usecase.KeepWarm(warmCtx, services.AI, services.Settings, services.Config.Prewarm.Interval, services.Logger)

	a.TurnStateChanged(domain.TurnStateIdle, domain.TurnReasonReset)
}

func (a *App) shutdown(context.Context) {
	if a.stopWarm != nil {
		a.stopWarm()
	}
	for _, unsub := range a.unsubs {
		unsub()
	}
	if a.orchestrator != nil {
		a.orchestrator.CloseAsk()
	}
	if err := a.services.Close(); err != nil && a.services.Logger != nil {
		a.services.Logger.Warn("close data store failed", "err", err)
	}
}

// OpenAsk opens the ask interface and drops a note marker at the current
// playback position.
func (a *App) OpenAsk() (domain.NoteMarker, error) {
	if err := a.requireReady(); err != nil {
		return domain.NoteMarker{}, err
	}
	return a.orchestrator.OpenAsk(a.ctx)
}

// CloseAsk closes the ask interface, abandoning any turn in progress.
func (a *App) CloseAsk() {
	if a.orchestrator != nil {
		a.orchestrator.CloseAsk()
	}
}

// StartListening starts capturing a spoken question.
func (a *App) StartListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.orchestrator.StartListening(a.ctx); err != nil {
		return a.orchestrator.Status(), err
	}
	return a.orchestrator.Status(), nil
}

// StopListening ends capture and returns the answered turn.
func (a *App) StopListening() (domain.TurnResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.TurnResult{}, err
	}
	return a.orchestrator.StopListening(a.ctx)
}

// SubmitText answers a typed question.
func (a *App) SubmitText(text string) (domain.TurnResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.TurnResult{}, err
	}
	return a.orchestrator.SubmitText(a.ctx, text)
}

// CancelTurn abandons the turn in progress.
func (a *App) CancelTurn() {
	if a.orchestrator != nil {
		a.orchestrator.Cancel()
	}
}

// ResetTurn backs out of a finished or failed turn ("try again").
func (a *App) ResetTurn() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.Reset()
}

// GetStatus returns the current turn status.
func (a *App) GetStatus() domain.Status {
	if a.orchestrator == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.TurnStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.TurnStateIdle, Active: false}
	}
	return a.orchestrator.Status()
}

// GetHistory returns the last limit entries matching filter (all, notes, qa).
// A non-positive limit returns everything.
func (a *App) GetHistory(filter string, limit int) ([]domain.HistoryEntry, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	f := store.HistoryFilter(filter)
	switch f {
	case store.FilterAll, store.FilterNotes, store.FilterQA:
	case "":
		f = store.FilterAll
	default:
		return nil, fmt.Errorf("unknown history filter %q", filter)
	}
	return a.services.History.Filter(f, limit), nil
}

// GetExchanges returns the conversation grouped into question/answer pairs.
func (a *App) GetExchanges() ([]domain.Exchange, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return usecase.PairHistory(a.services.History.List()), nil
}

// GetNotes returns the markers for the current book ordered by position.
func (a *App) GetNotes() ([]domain.NoteMarker, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Notes.ForBook(a.services.Settings.Get().CurrentBookID), nil
}

// OpenMarker resolves the conversation entry a marker points at.
func (a *App) OpenMarker(markerID string) (domain.HistoryEntry, error) {
	if err := a.requireReady(); err != nil {
		return domain.HistoryEntry{}, err
	}
	marker, ok := a.services.Notes.Get(markerID)
	if !ok {
		return domain.HistoryEntry{}, store.ErrMarkerNotFound
	}
	entry, ok := usecase.MarkerTarget(marker, a.services.History.List())
	if !ok {
		return domain.HistoryEntry{}, errors.New("no conversation yet")
	}
	return entry, nil
}

// DeleteNote removes one marker.
func (a *App) DeleteNote(markerID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Notes.Delete(a.ctx, markerID)
}

// ClearAll erases history and notes.
func (a *App) ClearAll() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return store.ClearAll(a.ctx, a.services.History, a.services.Notes)
}

// GetSettings returns the stored user settings.
func (a *App) GetSettings() (domain.Settings, error) {
	if err := a.requireReady(); err != nil {
		return domain.Settings{}, err
	}
	return a.services.Settings.Get(), nil
}

// SaveSettings replaces the stored user settings.
func (a *App) SaveSettings(next domain.Settings) (domain.Settings, error) {
	if err := a.requireReady(); err != nil {
		return domain.Settings{}, err
	}
	return a.services.Settings.Update(a.ctx, func(s *domain.Settings) { *s = next })
}

// GetBookContext returns the saved grounding text for a book.
func (a *App) GetBookContext(bookID string) (domain.BookContext, error) {
	if err := a.requireReady(); err != nil {
		return domain.BookContext{}, err
	}
	bc, _, err := a.services.BookContexts.Get(a.ctx, bookID)
	return bc, err
}

// SaveBookContext stores grounding text for a book. Blank text removes it.
func (a *App) SaveBookContext(bookID string, markdown string) (domain.BookContext, error) {
	if err := a.requireReady(); err != nil {
		return domain.BookContext{}, err
	}
	return a.services.BookContexts.Save(a.ctx, bookID, markdown)
}

// ListBooks returns the catalog.
func (a *App) ListBooks() ([]books.Book, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Catalog.List(), nil
}

// Play resumes the audiobook.
func (a *App) Play() {
	if a.orchestrator != nil {
		a.services.Playback.Play()
	}
}

// Pause pauses the audiobook.
func (a *App) Pause() {
	if a.orchestrator != nil {
		a.services.Playback.Pause()
	}
}

// TogglePlayback flips between playing and paused.
func (a *App) TogglePlayback() {
	if a.orchestrator != nil {
		a.services.Playback.Toggle()
	}
}

// Seek jumps to seconds and returns the position actually applied.
func (a *App) Seek(seconds float64) float64 {
	if a.orchestrator == nil {
		return 0
	}
	applied, _ := a.services.Playback.Seek(seconds)
	return applied
}

// ReportProgress is called by the webview audio element as it plays.
func (a *App) ReportProgress(currentTime float64, duration float64, status string, errText string) {
	if a.orchestrator == nil {
		return
	}
	a.services.Playback.Report(playback.Progress{
		CurrentTime: currentTime,
		Duration:    duration,
		Status:      domain.PlaybackStatus(status),
		Error:       errText,
	})
}

// SpeechEnded is called by the webview when a spoken answer finishes.
func (a *App) SpeechEnded() {
	if a.speech != nil {
		a.speech.ended()
	}
}

// GetPlayback returns the audiobook transport snapshot.
func (a *App) GetPlayback() domain.PlaybackState {
	if a.orchestrator == nil {
		return domain.PlaybackState{Status: domain.PlaybackIdle}
	}
	return a.services.Playback.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	cfg := a.services.Config
	return map[string]string{
		"transcriber":  cfg.Transcription.Provider,
		"chatModel":    cfg.OpenAI.ChatModel,
		"economyModel": cfg.OpenAI.EconomyModel,
		"speechModel":  cfg.OpenAI.SpeechModel,
		"storage":      cfg.Storage.Backend,
		"dataDir":      cfg.Storage.Dir,
		"audioInput":   cfg.Audio.InputDevice,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.orchestrator == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// TurnStateChanged emits turn lifecycle updates to the frontend.
func (a *App) TurnStateChanged(state domain.TurnState, reason domain.TurnStateReason) {
	a.emit(eventTurn, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": turnReasonMessage(reason),
	})
}

// AnswerChunk emits streamed answer text.
func (a *App) AnswerChunk(fragment string, display string) {
	a.emit(eventChunk, map[string]string{"fragment": fragment, "display": display})
}

// TurnCompleted emits the finished turn.
func (a *App) TurnCompleted(result domain.TurnResult) {
	a.emit(eventAnswer, result)
}

// TurnError emits backend errors to the UI.
func (a *App) TurnError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func turnReasonMessage(reason domain.TurnStateReason) string {
	switch reason {
	case domain.TurnReasonAskOpened:
		return "Ask away"
	case domain.TurnReasonAskClosed:
		return "Closed"
	case domain.TurnReasonListeningStarted:
		return "Listening..."
	case domain.TurnReasonTranscribing:
		return "Transcribing..."
	case domain.TurnReasonAnswering:
		return "Thinking..."
	case domain.TurnReasonAnswered:
		return "Answered"
	case domain.TurnReasonNoteSaved:
		return "Noted."
	case domain.TurnReasonCancelled:
		return "Cancelled"
	case domain.TurnReasonReset:
		return "Ready"
	case domain.TurnReasonRecordingFailed:
		return "Recording failed"
	case domain.TurnReasonTranscriptionFail:
		return "Transcription failed"
	case domain.TurnReasonNoTranscript:
		return "Didn't catch that"
	case domain.TurnReasonCompletionFailed:
		return "Couldn't get an answer"
	case domain.TurnReasonHistoryWriteFailed:
		return "Couldn't save the conversation"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeRecording:
		return "Microphone problem"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeCompletion:
		return "Answer error"
	case domain.ErrorCodeSpeech:
		return "Speech playback issue"
	case domain.ErrorCodeNoteCleanup:
		return "Note cleanup skipped"
	case domain.ErrorCodeStorage:
		return "Storage error"
	case domain.ErrorCodeMarkerLink:
		return "Marker link failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
