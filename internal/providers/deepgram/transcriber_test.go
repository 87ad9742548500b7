package deepgram

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sidekick/internal/domain"
)

var upgrader = websocket.Upgrader{}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// fakeListen records the audio it receives and replies with the given frames
// once the client sends CloseStream.
func fakeListen(t *testing.T, received *syncBuffer, frames ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token dg-test" {
			w.Header().Set("dg-error", "Invalid credentials.")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				received.Write(payload)
				continue
			}
			if strings.Contains(string(payload), "CloseStream") {
				break
			}
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTranscribeJoinsFinalResults(t *testing.T) {
	t.Parallel()

	var received syncBuffer
	server := fakeListen(t, &received,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"who is"}]}}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"jim"}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"jim hawkins"}]}}`,
		`{"type":"Metadata"}`,
	)

	pcm := bytes.Repeat([]byte{1, 2}, sendChunkSize)
	tr := NewTranscriber(Config{APIKey: "dg-test", APIBaseURL: server.URL})
	text, err := tr.Transcribe(context.Background(), domain.Clip{PCM: pcm, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "who is jim hawkins" {
		t.Fatalf("unexpected text %q", text)
	}
	if !bytes.Equal(received.Bytes(), pcm) {
		t.Fatalf("server received %d bytes, want %d", len(received.Bytes()), len(pcm))
	}
}

func TestTranscribeProviderErrorFrame(t *testing.T) {
	t.Parallel()

	var received syncBuffer
	server := fakeListen(t, &received, `{"type":"Error","message":"unsupported encoding"}`)

	tr := NewTranscriber(Config{APIKey: "dg-test", APIBaseURL: server.URL})
	_, err := tr.Transcribe(context.Background(), domain.Clip{PCM: []byte{0, 0}})
	var svcErr *domain.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Message != "unsupported encoding" {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestTranscribeRejectedHandshake(t *testing.T) {
	t.Parallel()

	var received syncBuffer
	server := fakeListen(t, &received)

	tr := NewTranscriber(Config{APIKey: "wrong", APIBaseURL: server.URL})
	_, err := tr.Transcribe(context.Background(), domain.Clip{PCM: []byte{0, 0}})
	var svcErr *domain.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Status != http.StatusUnauthorized || svcErr.Message != "Invalid credentials." {
		t.Fatalf("expected 401 service error, got %v", err)
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewTranscriber(Config{}).Transcribe(context.Background(), domain.Clip{})
	if !errors.Is(err, domain.ErrAuthMissing) {
		t.Fatalf("expected ErrAuthMissing, got %v", err)
	}
}

func TestTranscribeTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	tr := NewTranscriber(Config{APIKey: "dg-test", APIBaseURL: server.URL, Timeout: 100 * time.Millisecond})
	_, err := tr.Transcribe(context.Background(), domain.Clip{PCM: []byte{0, 0}})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestBuildListenURL(t *testing.T) {
	t.Parallel()

	u, err := buildListenURL(Config{APIBaseURL: "https://api.deepgram.com/v1/", Model: "nova-2", Language: "en-US", SmartFormat: true}, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"wss://api.deepgram.com/v1/listen", "encoding=linear16", "sample_rate=16000", "channels=1", "language=en-US", "smart_format=true"} {
		if !strings.Contains(u, want) {
			t.Fatalf("expected %q in %s", want, u)
		}
	}

	if _, err := buildListenURL(Config{APIBaseURL: ":// bad"}, 0, 0); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestTranscriptAggregatorFallsBackToInterim(t *testing.T) {
	t.Parallel()

	var agg transcriptAggregator
	agg.Add("", true)
	agg.Add("partial words", false)
	if got := agg.Text(); got != "partial words" {
		t.Fatalf("expected interim fallback, got %q", got)
	}

	agg.Add("final", true)
	if got := agg.Text(); got != "final" {
		t.Fatalf("expected finals once present, got %q", got)
	}
}
