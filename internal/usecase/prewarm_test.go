package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"sidekick/internal/domain"
)

type countingWarmer struct {
	calls atomic.Int32
}

func (w *countingWarmer) Prewarm(context.Context) {
	w.calls.Add(1)
}

func TestKeepWarmRunsImmediatelyAndOnTick(t *testing.T) {
	t.Parallel()

	warmer := &countingWarmer{}
	settings := &fakeSettings{settings: domain.Settings{APIKey: "sk-test", Prewarm: true}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		KeepWarm(ctx, warmer, settings, 10*time.Millisecond, nil)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for warmer.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated prewarm, got %d", warmer.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestKeepWarmSkipsWithoutKeyOrWhenDisabled(t *testing.T) {
	t.Parallel()

	for _, s := range []domain.Settings{
		{Prewarm: true},
		{APIKey: "sk-test", Prewarm: false},
	} {
		warmer := &countingWarmer{}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		KeepWarm(ctx, warmer, &fakeSettings{settings: s}, 5*time.Millisecond, nil)
		cancel()
		if n := warmer.calls.Load(); n != 0 {
			t.Fatalf("expected no prewarm for %+v, got %d", s, n)
		}
	}
}
