package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"sidekick/internal/domain"
	"sidekick/internal/ports"
)

const readChunkSize = 4096

// Recorder buffers a whole capture in memory and hands it back as one clip.
type Recorder struct {
	capture ports.AudioCapture
	cfg     ports.AudioConfig
}

func NewRecorder(capture ports.AudioCapture, cfg ports.AudioConfig) *Recorder {
	return &Recorder{capture: capture, cfg: withCaptureDefaults(cfg)}
}

// Start opens the microphone. Exclusivity is the caller's concern.
func (r *Recorder) Start(ctx context.Context) (ports.RecordingSession, error) {
	stream, err := r.capture.Start(ctx, r.cfg)
	if err != nil {
		if errors.Is(err, domain.ErrRecordingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrRecordingUnavailable, err)
	}

	s := &recording{
		stream:     stream,
		sampleRate: r.cfg.SampleRate,
		channels:   r.cfg.Channels,
		done:       make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

type recording struct {
	stream     ports.AudioSession
	sampleRate int
	channels   int

	done chan struct{}

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error
	closed  bool
}

func (s *recording) pump() {
	defer close(s.done)

	chunk := make([]byte, readChunkSize)
	for {
		n, err := s.stream.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// Stop ends the capture and returns every buffered frame in order.
func (s *recording) Stop() (domain.Clip, error) {
	if !s.close() {
		return domain.Clip{}, domain.ErrNoActiveSession
	}
	stopErr := s.stream.Stop()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	clip := domain.Clip{
		PCM:        bytes.Clone(s.buf.Bytes()),
		SampleRate: s.sampleRate,
		Channels:   s.channels,
	}
	s.buf.Reset()

	// A read or stop error only matters when nothing usable was captured.
	if clip.Empty() {
		if err := errors.Join(s.readErr, stopErr); err != nil {
			return domain.Clip{}, fmt.Errorf("%w: %w", domain.ErrRecordingUnavailable, err)
		}
	}
	return clip, nil
}

// Abort ends the capture and drops the buffered audio.
func (s *recording) Abort() error {
	if !s.close() {
		return nil
	}
	err := s.stream.Stop()
	<-s.done

	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
	return err
}

func (s *recording) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}
