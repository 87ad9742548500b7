package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sidekick/internal/domain"
	"sidekick/internal/ports"
)

func TestFFMPEGCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 || !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected read n=%d err=%v bytes=%q", n, readErr, buf[:n])
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestFFMPEGCaptureEarlyExitIsUnavailable(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no such device' 1>&2\nexit 1\n")
	_, err := NewFFMPEGCapture(script).Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrRecordingUnavailable) {
		t.Fatalf("expected ErrRecordingUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("did not expect permission error: %v", err)
	}
}

func TestFFMPEGCapturePermissionDenied(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho 'default: Permission denied' 1>&2\nexit 1\n")
	_, err := NewFFMPEGCapture(script).Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrRecordingUnavailable) || !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied recording error, got %v", err)
	}
}

func TestFFMPEGCaptureMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewFFMPEGCapture(filepath.Join(t.TempDir(), "missing")).Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrRecordingUnavailable) {
		t.Fatalf("expected ErrRecordingUnavailable, got %v", err)
	}
}

func TestRecorderConcatenatesFramesAndStopsOnce(t *testing.T) {
	t.Parallel()

	stream := newFakeStream([]byte("ab"), []byte("cd"), []byte("ef"))
	rec := NewRecorder(&fakeCapture{stream: stream}, ports.AudioConfig{SampleRate: 8000})

	session, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.waitDrained(t)

	clip, err := session.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if string(clip.PCM) != "abcdef" || clip.SampleRate != 8000 || clip.Channels != 1 {
		t.Fatalf("unexpected clip: %q rate=%d ch=%d", clip.PCM, clip.SampleRate, clip.Channels)
	}
	if _, err := session.Stop(); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession on second stop, got %v", err)
	}
	if err := session.Abort(); err != nil {
		t.Fatalf("abort after stop should be a no-op: %v", err)
	}
}

func TestRecorderStartFailureWrapsUnavailable(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(&fakeCapture{err: errors.New("device busy")}, ports.AudioConfig{})
	if _, err := rec.Start(context.Background()); !errors.Is(err, domain.ErrRecordingUnavailable) {
		t.Fatalf("expected ErrRecordingUnavailable, got %v", err)
	}
}

func TestRecorderEmptyCaptureWithReadError(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.readErr = errors.New("device unplugged")
	rec := NewRecorder(&fakeCapture{stream: stream}, ports.AudioConfig{})

	session, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.waitDrained(t)

	if _, err := session.Stop(); !errors.Is(err, domain.ErrRecordingUnavailable) {
		t.Fatalf("expected ErrRecordingUnavailable, got %v", err)
	}
}

func TestFFPlayPlayerStopInterruptsPlayback(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "play.sh", "#!/usr/bin/env bash\ncat >/dev/null\nsleep 5\n")
	player := NewFFPlayPlayer(script)

	done := make(chan error, 1)
	go func() { done <- player.Play(context.Background(), []byte("mp3")) }()

	time.Sleep(100 * time.Millisecond)
	player.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stopped playback should not error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("playback did not stop")
	}
}

func TestFFPlayPlayerReportsFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "bad.sh", "#!/usr/bin/env bash\ncat >/dev/null\necho 'invalid data' 1>&2\nexit 1\n")
	err := NewFFPlayPlayer(script).Play(context.Background(), []byte("junk"))
	if err == nil || !strings.Contains(err.Error(), "invalid data") {
		t.Fatalf("expected decode failure, got %v", err)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

type fakeCapture struct {
	stream ports.AudioSession
	err    error
}

func (f *fakeCapture) Start(context.Context, ports.AudioConfig) (ports.AudioSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

// fakeStream yields its chunks, then blocks until Stop.
type fakeStream struct {
	mu      sync.Mutex
	chunks  [][]byte
	readErr error

	drained chan struct{}
	stopped chan struct{}
	once    sync.Once
	dOnce   sync.Once
}

func newFakeStream(chunks ...[]byte) *fakeStream {
	return &fakeStream{chunks: chunks, drained: make(chan struct{}), stopped: make(chan struct{})}
}

func (s *fakeStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.chunks) > 0 {
		n := copy(p, s.chunks[0])
		s.chunks = s.chunks[1:]
		s.mu.Unlock()
		return n, nil
	}
	err := s.readErr
	s.mu.Unlock()

	s.dOnce.Do(func() { close(s.drained) })
	if err != nil {
		return 0, err
	}
	<-s.stopped
	return 0, io.EOF
}

func (s *fakeStream) Close() error { return s.Stop() }

func (s *fakeStream) Stop() error {
	s.once.Do(func() { close(s.stopped) })
	return nil
}

func (s *fakeStream) waitDrained(t *testing.T) {
	t.Helper()
	select {
	case <-s.drained:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream was not drained")
	}
}
