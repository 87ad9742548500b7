package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sidekick/internal/books"
	"sidekick/internal/domain"
	"sidekick/internal/intent"
	"sidekick/internal/ports"
)

// ErrResetRequired is returned when a new turn is requested while the last
// one is still showing its error.
var ErrResetRequired = errors.New("last turn failed; reset before starting another")

// Deps are the collaborators of an Orchestrator. Logger, Now, NewID, Catalog,
// Events and Player may be left nil.
type Deps struct {
	Recorder     ports.Recorder
	Transcriber  ports.Transcriber
	Completer    ports.Completer
	Synthesizer  ports.Synthesizer
	Player       ports.SpeechPlayer
	Playback     ports.Playback
	History      ports.HistoryLog
	Markers      ports.MarkerStore
	Settings     ports.SettingsSource
	BookContexts ports.BookContextSource
	Catalog      *books.Catalog
	Events       ports.EventSink
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() string
}

// Config tunes answer delivery.
type Config struct {
	// Streaming consumes the completion incrementally. When false the full
	// answer is revealed word by word, RevealDelay apart.
	Streaming         bool
	RevealDelay       time.Duration
	GroundingMaxChars int
}

// Orchestrator runs the ask-and-answer state machine. At most one turn is in
// flight at a time; every exported method is safe for concurrent use.
type Orchestrator struct {
	deps       Deps
	cfg        Config
	classifier *intent.Classifier
	log        *slog.Logger

	mu      sync.Mutex
	state   domain.TurnState
	display string
	message string
	current *turn
	marker  *domain.NoteMarker
	voice   *utterance
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Catalog == nil {
		deps.Catalog = books.Default()
	}
	if deps.Events == nil {
		deps.Events = discardEvents{}
	}
	if deps.Player == nil {
		deps.Player = silentPlayer{}
	}
	if cfg.GroundingMaxChars <= 0 {
		cfg.GroundingMaxChars = DefaultGroundingMaxChars
	}

	settings := deps.Settings
	return &Orchestrator{
		deps:       deps,
		cfg:        cfg,
		classifier: intent.NewClassifier(deps.Catalog, func() string { return settings.Get().CurrentBookID }),
		log:        deps.Logger.With("component", "orchestrator"),
		state:      domain.TurnStateIdle,
	}
}

// OpenAsk records a note marker at the current playback position. The marker
// exists whether or not a turn follows; the next completed turn links it.
func (o *Orchestrator) OpenAsk(ctx context.Context) (domain.NoteMarker, error) {
	marker := domain.NoteMarker{
		ID:        o.deps.NewID(),
		BookID:    o.deps.Settings.Get().CurrentBookID,
		TimeSec:   o.position(),
		CreatedAt: o.deps.Now(),
	}
	if err := o.deps.Markers.Add(ctx, marker); err != nil {
		o.log.Warn("create note marker failed", "err", err)
		o.deps.Events.TurnError(domain.ErrorCodeStorage, domain.ErrorMessage(err))
		return domain.NoteMarker{}, fmt.Errorf("create note marker: %w", err)
	}

	o.mu.Lock()
	o.marker = &marker
	state := o.state
	o.mu.Unlock()

	o.deps.Events.TurnStateChanged(state, domain.TurnReasonAskOpened)
	return marker, nil
}

// CloseAsk abandons any in-flight turn, silences speech and forgets the
// pending marker.
func (o *Orchestrator) CloseAsk() {
	o.stopSpeech()

	o.mu.Lock()
	t := o.current
	o.marker = nil
	o.mu.Unlock()

	if o.abandon(t, domain.TurnReasonAskClosed) {
		return
	}
	o.settle(domain.TurnReasonAskClosed)
}

// StartListening pauses the audiobook and opens a recording session.
func (o *Orchestrator) StartListening(ctx context.Context) error {
	t, err := o.begin(ctx, domain.TurnStateListening)
	if err != nil {
		return err
	}
	o.deps.Events.TurnStateChanged(domain.TurnStateListening, domain.TurnReasonListeningStarted)
	o.quiet()

	rec, err := o.deps.Recorder.Start(t.ctx)
	if err != nil {
		if !o.fail(t, hard(domain.ErrorCodeRecording, domain.TurnReasonRecordingFailed, err)) {
			return domain.ErrCancelled
		}
		return err
	}

	o.mu.Lock()
	if o.current != t {
		o.mu.Unlock()
		_ = rec.Abort()
		return domain.ErrCancelled
	}
	t.recording = rec
	o.mu.Unlock()
	return nil
}

// StopListening finishes the recording and runs the rest of the turn.
func (o *Orchestrator) StopListening(ctx context.Context) (domain.TurnResult, error) {
	o.mu.Lock()
	t := o.current
	if o.state != domain.TurnStateListening || t == nil || t.recording == nil {
		o.mu.Unlock()
		return domain.TurnResult{}, domain.ErrNoActiveSession
	}
	rec := t.recording
	t.recording = nil
	o.state = domain.TurnStateTranscribing
	o.mu.Unlock()
	o.deps.Events.TurnStateChanged(domain.TurnStateTranscribing, domain.TurnReasonTranscribing)

	stop := context.AfterFunc(ctx, func() { o.abandon(t, domain.TurnReasonCancelled) })
	defer stop()

	clip, err := rec.Stop()
	if err != nil {
		return o.failResult(t, hard(domain.ErrorCodeRecording, domain.TurnReasonRecordingFailed, err))
	}
	if clip.Empty() {
		return o.failResult(t, hard(domain.ErrorCodeTranscription, domain.TurnReasonNoTranscript, domain.ErrEmptyTranscript))
	}

	text, err := o.deps.Transcriber.Transcribe(t.ctx, clip)
	if err != nil {
		return o.failResult(t, hard(domain.ErrorCodeTranscription, domain.TurnReasonTranscriptionFail, err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return o.failResult(t, hard(domain.ErrorCodeTranscription, domain.TurnReasonNoTranscript, domain.ErrEmptyTranscript))
	}
	return o.respond(t, text)
}

// SubmitText runs a turn for typed input.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) (domain.TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.TurnResult{}, domain.ErrEmptyTranscript
	}
	t, err := o.begin(ctx, domain.TurnStateResponding)
	if err != nil {
		return domain.TurnResult{}, err
	}
	o.deps.Events.TurnStateChanged(domain.TurnStateResponding, domain.TurnReasonAnswering)
	o.quiet()

	stop := context.AfterFunc(ctx, func() { o.abandon(t, domain.TurnReasonCancelled) })
	defer stop()
	return o.respond(t, text)
}

// Cancel abandons the in-flight turn. Entries already written stay.
func (o *Orchestrator) Cancel() {
	o.stopSpeech()

	o.mu.Lock()
	t := o.current
	o.mu.Unlock()
	o.abandon(t, domain.TurnReasonCancelled)
}

// Reset returns a finished or failed turn to idle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()
	if state.InFlight() {
		return domain.ErrTurnInFlight
	}
	o.settle(domain.TurnReasonReset)
	return nil
}

// Status returns the current state with the answer shown so far.
func (o *Orchestrator) Status() domain.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.Status{
		State:   o.state,
		Active:  o.state.InFlight(),
		Display: o.display,
		Message: o.message,
	}
}

// WaitSpeech blocks until the latest spoken answer has finished or been
// stopped.
func (o *Orchestrator) WaitSpeech() {
	for {
		o.mu.Lock()
		u := o.voice
		o.mu.Unlock()
		if u == nil {
			return
		}
		<-u.done

		o.mu.Lock()
		if o.voice == u {
			o.voice = nil
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) respond(t *turn, text string) (domain.TurnResult, error) {
	if !o.alive(t) {
		return domain.TurnResult{}, domain.ErrCancelled
	}
	question := domain.HistoryEntry{
		ID:        t.id,
		Timestamp: o.timestamp(),
		Role:      domain.RoleUser,
		Content:   text,
	}
	if err := o.deps.History.Append(t.ctx, question); err != nil {
		return o.failResult(t, hard(domain.ErrorCodeStorage, domain.TurnReasonHistoryWriteFailed, err))
	}
	if !o.enter(t, domain.TurnStateResponding, domain.TurnReasonAnswering) {
		return domain.TurnResult{}, domain.ErrCancelled
	}

	parsed := o.classifier.Classify(text)
	o.log.Debug("turn classified", "turn", t.id, "kind", parsed.Kind)
	if parsed.Kind == domain.IntentNote {
		return o.saveNote(t, text, parsed)
	}
	return o.answer(t, text, parsed)
}

func (o *Orchestrator) saveNote(t *turn, question string, parsed domain.ParsedIntent) (domain.TurnResult, error) {
	o.appendDisplay(t, notedReply)

	step := o.cleanNote(t, parsed.Payload)
	if !o.alive(t) {
		return domain.TurnResult{}, domain.ErrCancelled
	}
	if step.kind == stepSoft {
		o.log.Warn("note cleanup failed, keeping raw text", "turn", t.id, "code", step.code, "err", step.err)
	}

	entry := domain.HistoryEntry{
		ID:        t.id + "-note",
		Timestamp: o.timestamp(),
		Role:      domain.RoleNote,
		Content:   step.text,
	}
	if err := o.deps.History.Append(t.ctx, entry); err != nil {
		return o.failResult(t, hard(domain.ErrorCodeStorage, domain.TurnReasonHistoryWriteFailed, err))
	}

	result := domain.TurnResult{Question: question, Intent: parsed, Answer: notedReply, Entry: entry}
	if !o.complete(t, &result, domain.TurnReasonNoteSaved) {
		return domain.TurnResult{}, domain.ErrCancelled
	}
	o.settle(domain.TurnReasonNoteSaved)
	return result, nil
}

func (o *Orchestrator) cleanNote(t *turn, note string) stepResult {
	if strings.TrimSpace(note) == "" {
		return okStep(note)
	}
	cleaned, err := o.deps.Completer.Complete(t.ctx, domain.CompletionRequest{
		Prompt:  noteCleanupPrompt(note),
		Economy: true,
	})
	if err != nil {
		return soft(note, domain.ErrorCodeNoteCleanup, err)
	}
	if cleaned = strings.TrimSpace(cleaned); cleaned == "" {
		return soft(note, domain.ErrorCodeNoteCleanup, domain.ErrMalformedResponse)
	}
	return okStep(cleaned)
}

func (o *Orchestrator) answer(t *turn, question string, parsed domain.ParsedIntent) (domain.TurnResult, error) {
	settings := o.deps.Settings.Get()
	req, meta := o.request(t.ctx, parsed, settings)

	step := o.generate(t, req)
	if step.kind == stepHard {
		return o.failResult(t, step)
	}
	if !o.alive(t) {
		return domain.TurnResult{}, domain.ErrCancelled
	}

	entry := domain.HistoryEntry{
		ID:        t.id + "-r",
		Timestamp: o.timestamp(),
		Role:      domain.RoleSidekick,
		Content:   step.text,
		Meta:      meta,
	}
	if err := o.deps.History.Append(t.ctx, entry); err != nil {
		return o.failResult(t, hard(domain.ErrorCodeStorage, domain.TurnReasonHistoryWriteFailed, err))
	}

	result := domain.TurnResult{
		Question: question,
		Intent:   parsed,
		Answer:   step.text,
		Entry:    entry,
		Spoken:   !settings.Silent,
	}
	if result.Spoken {
		t.voice = newUtterance(t)
	}
	if !o.complete(t, &result, domain.TurnReasonAnswered) {
		if t.voice != nil {
			t.voice.cancel()
		}
		return domain.TurnResult{}, domain.ErrCancelled
	}
	if t.voice != nil {
		o.speak(t.voice, step.text, settings.VoiceID)
	}
	return result, nil
}

func (o *Orchestrator) request(ctx context.Context, parsed domain.ParsedIntent, settings domain.Settings) (domain.CompletionRequest, *domain.EntryMeta) {
	req := domain.CompletionRequest{
		SystemPrompt: settings.SystemPrompt,
		Prompt:       parsed.Payload,
		Economy:      settings.EconomyMode,
	}
	var meta *domain.EntryMeta
	if settings.CurrentBookID != "" {
		meta = &domain.EntryMeta{BookID: settings.CurrentBookID}
	}

	switch parsed.Kind {
	case domain.IntentDefine:
		req.Prompt, req.Economy = definePrompt(parsed.Payload), true
	case domain.IntentFact:
		req.Prompt, req.Economy = factPrompt(parsed.Payload), true
	case domain.IntentBook:
		if title, grounding, found := o.grounding(ctx, parsed.BookID, settings); found {
			req.Prompt = bookPrompt(title, grounding, parsed.Payload)
			meta = &domain.EntryMeta{BookID: parsed.BookID, UsedContext: true}
		}
	}
	return req, meta
}

// grounding picks the user's saved context for the book, falling back to the
// catalog summary, and fits it under the configured ceiling.
func (o *Orchestrator) grounding(ctx context.Context, bookID string, settings domain.Settings) (string, string, bool) {
	if !settings.UseBookContext || bookID == "" {
		return "", "", false
	}
	book, found := o.deps.Catalog.Get(bookID)
	title, text := book.Title, book.Summary
	if !found {
		title = settings.CurrentBookTitle
	}
	if title == "" {
		title = bookID
	}

	if o.deps.BookContexts != nil {
		saved, has, err := o.deps.BookContexts.Get(ctx, bookID)
		switch {
		case err != nil:
			o.log.Warn("load book context failed", "book", bookID, "err", err)
		case has && strings.TrimSpace(saved.Markdown) != "":
			text = saved.Markdown
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", "", false
	}

	text, truncated := truncateGrounding(text, o.cfg.GroundingMaxChars)
	if truncated {
		o.log.Debug("book context truncated", "book", bookID, "limit", o.cfg.GroundingMaxChars)
	}
	return title, text, true
}

func (o *Orchestrator) generate(t *turn, req domain.CompletionRequest) stepResult {
	var (
		text string
		err  error
	)
	if o.cfg.Streaming {
		text, err = o.deps.Completer.CompleteStream(t.ctx, req, func(fragment string) {
			o.appendDisplay(t, fragment)
		})
	} else {
		text, err = o.deps.Completer.Complete(t.ctx, req)
		if err == nil {
			o.reveal(t, text)
		}
	}
	if err != nil {
		return hard(domain.ErrorCodeCompletion, domain.TurnReasonCompletionFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return hard(domain.ErrorCodeCompletion, domain.TurnReasonCompletionFailed, domain.ErrMalformedResponse)
	}
	return okStep(text)
}

// reveal paces an already complete answer into the display buffer.
func (o *Orchestrator) reveal(t *turn, text string) {
	if o.cfg.RevealDelay <= 0 {
		o.appendDisplay(t, text)
		return
	}
	for i, word := range strings.SplitAfter(text, " ") {
		if i > 0 {
			timer := time.NewTimer(o.cfg.RevealDelay)
			select {
			case <-timer.C:
			case <-t.ctx.Done():
				timer.Stop()
				return
			}
		}
		o.appendDisplay(t, word)
	}
}

// speak synthesizes and plays u in the background. The utterance outlives
// its turn and is stopped by stopSpeech or by the next spoken answer.
func (o *Orchestrator) speak(u *utterance, text string, voice string) {
	go func() {
		defer close(u.done)
		defer u.cancel()

		audio, err := o.deps.Synthesizer.Synthesize(u.ctx, text, voice)
		if u.ctx.Err() != nil {
			return
		}
		if err != nil {
			o.log.Warn("speech synthesis failed", "turn", u.turnID, "err", err)
			o.deps.Events.TurnError(domain.ErrorCodeSpeech, domain.ErrorMessage(err))
			return
		}
		if len(audio) == 0 {
			return
		}
		if err := o.deps.Player.Play(u.ctx, audio); err != nil && u.ctx.Err() == nil {
			o.log.Warn("speech playback failed", "turn", u.turnID, "err", err)
		}
	}()
}

// stopSpeech cancels the current utterance and silences the player.
func (o *Orchestrator) stopSpeech() {
	o.mu.Lock()
	u := o.voice
	o.mu.Unlock()
	if u != nil {
		u.cancel()
	}
	o.deps.Player.Stop()
}

// linkMarker attaches the finished entry to the marker opened for this ask
// session. The marker is consumed either way.
func (o *Orchestrator) linkMarker(t *turn, entry domain.HistoryEntry) *domain.NoteMarker {
	o.mu.Lock()
	marker := o.marker
	o.marker = nil
	o.mu.Unlock()
	if marker == nil {
		return nil
	}

	linked, err := o.deps.Markers.Link(context.WithoutCancel(t.ctx), marker.ID, entry.ID, preview(entry.Content))
	if err != nil {
		o.log.Warn("link note marker failed", "marker", marker.ID, "entry", entry.ID, "err", err)
		return nil
	}
	return &linked
}

func (o *Orchestrator) begin(ctx context.Context, state domain.TurnState) (*turn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case domain.TurnStateIdle, domain.TurnStateComplete:
	case domain.TurnStateError:
		return nil, ErrResetRequired
	default:
		return nil, domain.ErrTurnInFlight
	}

	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &turn{id: o.deps.NewID(), ctx: turnCtx, cancel: cancel, started: o.deps.Now()}
	o.current = t
	o.state = state
	o.display = ""
	o.message = ""
	return t, nil
}

func (o *Orchestrator) position() float64 {
	if o.deps.Playback == nil {
		return 0
	}
	return max(0, o.deps.Playback.Snapshot().CurrentTime)
}

// quiet silences speech and pauses the audiobook before the user talks.
func (o *Orchestrator) quiet() {
	o.stopSpeech()
	if o.deps.Playback != nil {
		o.deps.Playback.Pause()
	}
}

func (o *Orchestrator) alive(t *turn) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current == t && t.ctx.Err() == nil
}

func (o *Orchestrator) enter(t *turn, state domain.TurnState, reason domain.TurnStateReason) bool {
	o.mu.Lock()
	if o.current != t {
		o.mu.Unlock()
		return false
	}
	if o.state == state {
		o.mu.Unlock()
		return true
	}
	o.state = state
	o.mu.Unlock()

	o.deps.Events.TurnStateChanged(state, reason)
	return true
}

func (o *Orchestrator) appendDisplay(t *turn, fragment string) {
	o.mu.Lock()
	if o.current != t {
		o.mu.Unlock()
		return
	}
	o.display += fragment
	display := o.display
	o.mu.Unlock()

	o.deps.Events.AnswerChunk(fragment, display)
}

func (o *Orchestrator) complete(t *turn, result *domain.TurnResult, reason domain.TurnStateReason) bool {
	if !o.alive(t) {
		return false
	}
	result.Marker = o.linkMarker(t, result.Entry)
	result.Elapsed = o.deps.Now().Sub(t.started)

	o.mu.Lock()
	if o.current != t {
		o.mu.Unlock()
		return false
	}
	o.current = nil
	o.state = domain.TurnStateComplete
	o.message = ""
	prev := o.voice
	if t.voice != nil {
		o.voice = t.voice
	}
	o.mu.Unlock()
	t.cancel()
	if prev != nil && t.voice != nil {
		prev.cancel()
	}

	o.deps.Events.TurnStateChanged(domain.TurnStateComplete, reason)
	o.deps.Events.TurnCompleted(*result)
	return true
}

// fail moves t to the error state. It reports false when t was already
// abandoned, in which case nothing is written.
func (o *Orchestrator) fail(t *turn, step stepResult) bool {
	message := domain.ErrorMessage(step.err)

	o.mu.Lock()
	if o.current != t {
		o.mu.Unlock()
		return false
	}
	o.current = nil
	o.state = domain.TurnStateError
	o.display = ""
	o.message = message
	rec := t.recording
	t.recording = nil
	o.mu.Unlock()

	t.cancel()
	if rec != nil {
		_ = rec.Abort()
	}
	o.log.Warn("turn failed", "turn", t.id, "code", step.code, "err", step.err)
	o.deps.Events.TurnStateChanged(domain.TurnStateError, step.reason)
	o.deps.Events.TurnError(step.code, message)
	return true
}

func (o *Orchestrator) failResult(t *turn, step stepResult) (domain.TurnResult, error) {
	if !o.fail(t, step) {
		return domain.TurnResult{}, domain.ErrCancelled
	}
	return domain.TurnResult{}, step.err
}

// abandon drops t without writing anything further.
func (o *Orchestrator) abandon(t *turn, reason domain.TurnStateReason) bool {
	if t == nil {
		return false
	}
	o.mu.Lock()
	if o.current != t {
		o.mu.Unlock()
		return false
	}
	o.current = nil
	o.state = domain.TurnStateIdle
	o.display = ""
	o.message = ""
	rec := t.recording
	t.recording = nil
	o.mu.Unlock()

	t.cancel()
	if rec != nil {
		if err := rec.Abort(); err != nil {
			o.log.Warn("abort recording failed", "turn", t.id, "err", err)
		}
	}
	o.log.Info("turn abandoned", "turn", t.id, "reason", reason)
	o.deps.Events.TurnStateChanged(domain.TurnStateIdle, reason)
	return true
}

// settle returns a finished turn to idle. In-flight turns are left alone.
func (o *Orchestrator) settle(reason domain.TurnStateReason) {
	o.mu.Lock()
	if o.current != nil || o.state == domain.TurnStateIdle && reason != domain.TurnReasonAskClosed {
		o.mu.Unlock()
		return
	}
	o.state = domain.TurnStateIdle
	o.message = ""
	if reason != domain.TurnReasonNoteSaved {
		o.display = ""
	}
	o.mu.Unlock()

	o.deps.Events.TurnStateChanged(domain.TurnStateIdle, reason)
}

func (o *Orchestrator) timestamp() string {
	return o.deps.Now().Format("3:04:05 PM")
}

type discardEvents struct{}

func (discardEvents) TurnStateChanged(domain.TurnState, domain.TurnStateReason) {}
func (discardEvents) AnswerChunk(string, string)                                {}
func (discardEvents) TurnCompleted(domain.TurnResult)                           {}
func (discardEvents) TurnError(domain.ErrorCode, string)                        {}

type silentPlayer struct{}

func (silentPlayer) Play(context.Context, []byte) error { return nil }
func (silentPlayer) Stop()                              {}
