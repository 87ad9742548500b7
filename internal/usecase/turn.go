package usecase

import (
	"context"
	"time"

	"sidekick/internal/domain"
	"sidekick/internal/ports"
)

// turn is one utterance-to-answer cycle. Its context is cancelled when the
// turn finishes or is abandoned; every suspension point checks it before
// touching orchestrator state.
type turn struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	// recording is guarded by Orchestrator.mu.
	recording ports.RecordingSession
	// voice becomes the current utterance when the turn completes.
	voice     *utterance
}

// utterance is one spoken answer. done is closed once synthesis and playback
// have both returned.
type utterance struct {
	turnID string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newUtterance(t *turn) *utterance {
	ctx, cancel := context.WithCancel(context.WithoutCancel(t.ctx))
	return &utterance{turnID: t.id, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// stepKind tags the outcome of a single turn step.
type stepKind int

const (
	stepOK stepKind = iota
	// stepSoft is logged and replaced by a fallback; the turn continues.
	stepSoft
	// stepHard moves the turn to the error state.
	stepHard
)

type stepResult struct {
	kind   stepKind
	text   string
	err    error
	code   domain.ErrorCode
	reason domain.TurnStateReason
}

func okStep(text string) stepResult {
	return stepResult{kind: stepOK, text: text}
}

func soft(fallback string, code domain.ErrorCode, err error) stepResult {
	return stepResult{kind: stepSoft, text: fallback, err: err, code: code}
}

func hard(code domain.ErrorCode, reason domain.TurnStateReason, err error) stepResult {
	return stepResult{kind: stepHard, err: err, code: code, reason: reason}
}
