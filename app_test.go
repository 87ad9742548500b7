package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"sidekick/internal/domain"
)

func TestTurnReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.TurnStateReason]string{
		domain.TurnReasonAskOpened:          "Ask away",
		domain.TurnReasonListeningStarted:   "Listening...",
		domain.TurnReasonTranscribing:       "Transcribing...",
		domain.TurnReasonAnswering:          "Thinking...",
		domain.TurnReasonNoteSaved:          "Noted.",
		domain.TurnReasonNoTranscript:       "Didn't catch that",
		domain.TurnReasonCompletionFailed:   "Couldn't get an answer",
		domain.TurnReasonHistoryWriteFailed: "Couldn't save the conversation",
	}

	for reason, want := range cases {
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := turnReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := turnReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:       "Startup failed",
		domain.ErrorCodeRecording:     "Microphone problem",
		domain.ErrorCodeTranscription: "Transcription error",
		domain.ErrorCodeSpeech:        "Speech playback issue",
		domain.ErrorCodeNoteCleanup:   "Note cleanup skipped",
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.SubmitText("what is a doubloon"); !errors.Is(err, bootErr) {
		t.Fatalf("expected bound methods to report boot error, got %v", err)
	}
}

func TestGetStatusBeforeStartup(t *testing.T) {
	t.Parallel()

	app := &App{}
	if status := app.GetStatus(); status.State != domain.TurnStateIdle || status.Active {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("no data dir")
	status := app.GetStatus()
	if status.State != domain.TurnStateError || status.Message != "no data dir" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "no data dir" {
		t.Fatalf("unexpected runtime info: %+v", info)
	}
	if playback := app.GetPlayback(); playback.Status != domain.PlaybackIdle {
		t.Fatalf("unexpected playback: %+v", playback)
	}
}

func TestWebviewSpeechReleasesOnEnded(t *testing.T) {
	t.Parallel()

	speech := &webviewSpeech{app: &App{}}
	done := make(chan error, 1)
	go func() { done <- speech.Play(context.Background(), []byte("mp3")) }()

	deadline := time.After(time.Second)
	for {
		speech.mu.Lock()
		waiting := speech.done != nil
		speech.mu.Unlock()
		if waiting {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("play never started")
		case <-time.After(time.Millisecond):
		}
	}

	speech.ended()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected play error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("play did not return after ended")
	}
}

func TestWebviewSpeechStopsOnContext(t *testing.T) {
	t.Parallel()

	speech := &webviewSpeech{app: &App{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := speech.Play(ctx, []byte("mp3")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	speech.Stop()
}
