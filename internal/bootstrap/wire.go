package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"sidekick/internal/audio"
	"sidekick/internal/books"
	"sidekick/internal/config"
	"sidekick/internal/domain"
	"sidekick/internal/kv"
	"sidekick/internal/playback"
	"sidekick/internal/ports"
	"sidekick/internal/providers/deepgram"
	"sidekick/internal/providers/openai"
	"sidekick/internal/store"
	"sidekick/internal/usecase"
)

// Surface is what the hosting UI contributes to the graph. Nil fields fall
// back to headless implementations.
type Surface struct {
	Events    ports.EventSink
	Player    ports.SpeechPlayer
	Transport playback.Transport
}

// Services is the assembled runtime graph.
type Services struct {
	Config       config.Config
	Logger       *slog.Logger
	LogLevel     *slog.LevelVar
	KV           kv.Store
	Catalog      *books.Catalog
	Settings     *store.Settings
	History      *store.History
	Notes        *store.Notes
	BookContexts *store.BookContexts
	Playback     *playback.Coordinator
	AI           *openai.Client
	Orchestrator *usecase.Orchestrator
}

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, surface Surface) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	catalog, err := books.Load(cfg.Books.CatalogPath)
	if err != nil {
		return Services{}, err
	}

	if cfg.Storage.Backend != kv.BackendMemory {
		if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
			return Services{}, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := kv.Open(cfg.Storage.Backend, cfg.Storage.Dir, logger)
	if err != nil {
		return Services{}, err
	}

	services, err := assemble(ctx, cfg, logger, level, catalog, db, surface)
	if err != nil {
		return Services{}, errors.Join(err, db.Close())
	}
	return services, nil
}

func assemble(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	level *slog.LevelVar,
	catalog *books.Catalog,
	db kv.Store,
	surface Surface,
) (Services, error) {
	settings, err := store.OpenSettings(ctx, db)
	if err != nil {
		return Services{}, fmt.Errorf("load settings: %w", err)
	}
	if cfg.OpenAI.APIKey != "" && settings.Get().APIKey == "" {
		if _, err := settings.Update(ctx, func(s *domain.Settings) { s.APIKey = cfg.OpenAI.APIKey }); err != nil {
			return Services{}, fmt.Errorf("seed api key: %w", err)
		}
	}
	applyDebug := func() {
		if settings.Get().Debug {
			level.Set(slog.LevelDebug)
		} else {
			level.Set(cfg.LogLevel)
		}
	}
	applyDebug()
	settings.Subscribe(applyDebug)

	history, err := store.OpenHistory(ctx, db)
	if err != nil {
		return Services{}, fmt.Errorf("load history: %w", err)
	}
	notes, err := store.OpenNotes(ctx, db)
	if err != nil {
		return Services{}, fmt.Errorf("load notes: %w", err)
	}
	bookContexts := store.NewBookContexts(db)

	transport := surface.Transport
	if transport == nil {
		transport = playback.NopTransport{}
	}
	coordinator := playback.New(transport, store.NewPosition(db), playback.Options{Logger: logger})
	coordinator.Restore(ctx)

	ai := openai.New(openai.Options{
		APIKey:            func() string { return settings.Get().APIKey },
		BaseURL:           cfg.OpenAI.BaseURL,
		TranscribeModel:   cfg.OpenAI.TranscribeModel,
		ChatModel:         cfg.OpenAI.ChatModel,
		EconomyModel:      cfg.OpenAI.EconomyModel,
		SpeechModel:       cfg.OpenAI.SpeechModel,
		MaxTokens:         int64(cfg.OpenAI.MaxTokens),
		EconomyMaxTokens:  int64(cfg.OpenAI.EconomyMaxTokens),
		TranscribeTimeout: cfg.OpenAI.TranscribeTimeout,
		CompleteTimeout:   cfg.OpenAI.CompleteTimeout,
		SpeechTimeout:     cfg.OpenAI.SpeechTimeout,
		Logger:            logger,
	})

	var transcriber ports.Transcriber = ai
	if cfg.Transcription.Provider == config.TranscriberDeepgram {
		transcriber = deepgram.NewTranscriber(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Timeout:     cfg.OpenAI.TranscribeTimeout,
			Logger:      logger,
		})
	}

	player := surface.Player
	if player == nil {
		player = audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand)
	}

	recorder := audio.NewRecorder(audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand), ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	})

	orchestrator := usecase.NewOrchestrator(usecase.Deps{
		Recorder:     recorder,
		Transcriber:  transcriber,
		Completer:    ai,
		Synthesizer:  ai,
		Player:       player,
		Playback:     coordinator,
		History:      history,
		Markers:      notes,
		Settings:     settings,
		BookContexts: bookContexts,
		Catalog:      catalog,
		Events:       surface.Events,
		Logger:       logger,
	}, usecase.Config{
		Streaming:         cfg.Answer.Streaming,
		RevealDelay:       cfg.Answer.RevealDelay,
		GroundingMaxChars: cfg.Answer.GroundingMaxChars,
	})

	return Services{
		Config:       cfg,
		Logger:       logger,
		LogLevel:     level,
		KV:           db,
		Catalog:      catalog,
		Settings:     settings,
		History:      history,
		Notes:        notes,
		BookContexts: bookContexts,
		Playback:     coordinator,
		AI:           ai,
		Orchestrator: orchestrator,
	}, nil
}

// Close releases the data store.
func (s Services) Close() error {
	if s.KV == nil {
		return nil
	}
	return s.KV.Close()
}
