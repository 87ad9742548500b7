package main

import (
	"context"
	"encoding/base64"
	"sync"
)

const (
	eventSpeech    = "sidekick:speech"
	eventTransport = "sidekick:transport"
)

// webviewSpeech plays synthesized answers through the webview audio element.
// Play blocks until the frontend reports the clip ended, Stop is called or
// ctx is done.
type webviewSpeech struct {
	app *App

	mu   sync.Mutex
	done chan struct{}
}

func (s *webviewSpeech) Play(ctx context.Context, audio []byte) error {
	done := make(chan struct{})
	s.mu.Lock()
	s.release()
	s.done = done
	s.mu.Unlock()

	s.app.emit(eventSpeech, map[string]string{
		"command": "play",
		"mime":    "audio/mpeg",
		"audio":   base64.StdEncoding.EncodeToString(audio),
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		current := s.done == done
		if current {
			s.release()
		}
		s.mu.Unlock()
		if current {
			s.app.emit(eventSpeech, map[string]string{"command": "stop"})
		}
		return ctx.Err()
	}
}

func (s *webviewSpeech) Stop() {
	s.mu.Lock()
	wasPlaying := s.done != nil
	s.release()
	s.mu.Unlock()

	if wasPlaying {
		s.app.emit(eventSpeech, map[string]string{"command": "stop"})
	}
}

// ended is called when the frontend finishes the current clip.
func (s *webviewSpeech) ended() {
	s.mu.Lock()
	s.release()
	s.mu.Unlock()
}

// release must be called with mu held.
func (s *webviewSpeech) release() {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

// webviewTransport forwards audiobook transport commands to the webview
// audio element. Progress flows back through App.ReportProgress.
type webviewTransport struct {
	app *App
}

func (t webviewTransport) Play() error {
	t.app.emit(eventTransport, map[string]any{"command": "play"})
	return nil
}

func (t webviewTransport) Pause() {
	t.app.emit(eventTransport, map[string]any{"command": "pause"})
}

func (t webviewTransport) Seek(seconds float64) {
	t.app.emit(eventTransport, map[string]any{"command": "seek", "seconds": seconds})
}
