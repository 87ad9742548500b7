package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// FFPlayPlayer plays encoded speech through one ffplay process at a time.
// Starting a new utterance stops the previous one.
type FFPlayPlayer struct {
	command string

	mu      sync.Mutex
	current *exec.Cmd
	cancel  context.CancelFunc
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command}
}

// Play blocks until the audio finished, was stopped, or ctx ended.
func (p *FFPlayPlayer) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	playCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(playCtx, p.command, "-nodisp", "-autoexit", "-loglevel", "error", "-i", "pipe:0")
	cmd.Stdin = bytes.NewReader(audio)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.mu.Lock()
	p.stopLocked()
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("start %s: %w", p.command, err)
	}
	p.current = cmd
	p.cancel = cancel
	p.mu.Unlock()

	err := cmd.Wait()

	p.mu.Lock()
	if p.current == cmd {
		p.current = nil
		p.cancel = nil
	}
	p.mu.Unlock()
	cancel()

	if playCtx.Err() != nil {
		// Stopped or superseded.
		return nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return fmt.Errorf("%s: %w: %s", p.command, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("%s: %w", p.command, err)
	}
	return nil
}

// Stop interrupts whatever is playing. It is safe to call when idle.
func (p *FFPlayPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *FFPlayPlayer) stopLocked() {
	if p.cancel != nil {
		p.cancel()
	}
	p.current = nil
	p.cancel = nil
}

// Silent discards audio. It backs the player when speech output is unavailable.
type Silent struct{}

func (Silent) Play(context.Context, []byte) error { return nil }
func (Silent) Stop()                              {}
