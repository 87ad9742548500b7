package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transcription backends.
const (
	TranscriberOpenAI   = "openai"
	TranscriberDeepgram = "deepgram"
)

// Config stores process configuration. User-editable settings live in the
// data store, not here.
type Config struct {
	Storage       StorageConfig
	OpenAI        OpenAIConfig
	Transcription TranscriptionConfig
	Deepgram      DeepgramConfig
	Audio         AudioConfig
	Answer        AnswerConfig
	Books         BooksConfig
	Prewarm       PrewarmConfig
	LogLevel      slog.Level
}

type StorageConfig struct {
	Dir     string
	Backend string
}

type OpenAIConfig struct {
	// APIKey seeds the stored settings on first run.
	APIKey           string
	BaseURL          string
	TranscribeModel  string
	ChatModel        string
	EconomyModel     string
	SpeechModel      string
	MaxTokens        int
	EconomyMaxTokens int

	TranscribeTimeout time.Duration
	CompleteTimeout   time.Duration
	SpeechTimeout     time.Duration
}

type TranscriptionConfig struct {
	Provider string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type AnswerConfig struct {
	Streaming         bool
	RevealDelay       time.Duration
	GroundingMaxChars int
}

type BooksConfig struct {
	CatalogPath string
}

type PrewarmConfig struct {
	Interval time.Duration
}

// Load reads an optional dotenv file, then resolves configuration from
// environment variables and defaults. Variables already set win over the file.
func Load() (Config, error) {
	if err := loadDotenv(); err != nil {
		return Config{}, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Config{
		Storage: StorageConfig{
			Dir:     envOrDefault("SIDEKICK_DATA_DIR", filepath.Join(home, ".config", "sidekick")),
			Backend: strings.ToLower(envOrDefault("SIDEKICK_KV_BACKEND", "badger")),
		},
		OpenAI: OpenAIConfig{
			APIKey:            strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL:           envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			TranscribeModel:   envOrDefault("SIDEKICK_TRANSCRIBE_MODEL", "whisper-1"),
			ChatModel:         envOrDefault("SIDEKICK_CHAT_MODEL", "gpt-4o"),
			EconomyModel:      envOrDefault("SIDEKICK_ECONOMY_MODEL", "gpt-4o-mini"),
			SpeechModel:       envOrDefault("SIDEKICK_SPEECH_MODEL", "tts-1"),
			MaxTokens:         envOrDefaultInt("SIDEKICK_MAX_TOKENS", 300),
			EconomyMaxTokens:  envOrDefaultInt("SIDEKICK_ECONOMY_MAX_TOKENS", 80),
			TranscribeTimeout: envOrDefaultMillis("SIDEKICK_TRANSCRIBE_TIMEOUT_MS", 15*time.Second),
			CompleteTimeout:   envOrDefaultMillis("SIDEKICK_COMPLETE_TIMEOUT_MS", 20*time.Second),
			SpeechTimeout:     envOrDefaultMillis("SIDEKICK_SPEECH_TIMEOUT_MS", 15*time.Second),
		},
		Transcription: TranscriptionConfig{
			Provider: strings.ToLower(envOrDefault("SIDEKICK_TRANSCRIBER", TranscriberOpenAI)),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("SIDEKICK_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   envOrDefault("SIDEKICK_FFPLAY_COMMAND", "ffplay"),
			InputFormat:     strings.TrimSpace(os.Getenv("SIDEKICK_AUDIO_INPUT_FORMAT")),
			InputDevice:     strings.TrimSpace(os.Getenv("SIDEKICK_AUDIO_INPUT_DEVICE")),
			SampleRate:      envOrDefaultInt("SIDEKICK_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("SIDEKICK_CHANNELS", 1),
		},
		Answer: AnswerConfig{
			Streaming:         envOrDefaultBool("SIDEKICK_STREAMING", true),
			RevealDelay:       envOrDefaultMillis("SIDEKICK_REVEAL_DELAY_MS", 0),
			GroundingMaxChars: envOrDefaultInt("SIDEKICK_GROUNDING_MAX_CHARS", 10000),
		},
		Books: BooksConfig{
			CatalogPath: strings.TrimSpace(os.Getenv("SIDEKICK_BOOK_CATALOG")),
		},
		Prewarm: PrewarmConfig{
			Interval: envOrDefaultMillis("SIDEKICK_PREWARM_INTERVAL_MS", 10*time.Minute),
		},
		LogLevel: envOrDefaultLevel("SIDEKICK_LOG_LEVEL", slog.LevelInfo),
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Answer.GroundingMaxChars <= 0 {
		cfg.Answer.GroundingMaxChars = 10000
	}

	switch cfg.Transcription.Provider {
	case TranscriberOpenAI, TranscriberDeepgram:
	default:
		return Config{}, fmt.Errorf("unknown transcriber %q (want %s or %s)", cfg.Transcription.Provider, TranscriberOpenAI, TranscriberDeepgram)
	}
	switch cfg.Storage.Backend {
	case "badger", "sqlite", "memory":
	default:
		return Config{}, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	return cfg, nil
}

// loadDotenv reads SIDEKICK_ENV_FILE when set, otherwise an optional .env in
// the working directory.
func loadDotenv() error {
	if path := strings.TrimSpace(os.Getenv("SIDEKICK_ENV_FILE")); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	ms := envOrDefaultInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envOrDefaultLevel(key string, fallback slog.Level) slog.Level {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return fallback
	}
	return level
}
