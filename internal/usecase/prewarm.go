package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sidekick/internal/ports"
)

// DefaultPrewarmInterval is how often idle connections are re-warmed.
const DefaultPrewarmInterval = 10 * time.Minute

// KeepWarm pre-warms the AI endpoints now and then every interval until ctx
// ends. Rounds are skipped while pre-warm is off or no API key is set.
func KeepWarm(ctx context.Context, warmer ports.Prewarmer, settings ports.SettingsSource, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultPrewarmInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	warm := func() {
		current := settings.Get()
		if !current.Prewarm || strings.TrimSpace(current.APIKey) == "" {
			return
		}
		logger.Debug("prewarming endpoints")
		warmer.Prewarm(ctx)
	}

	warm()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			warm()
		}
	}
}
