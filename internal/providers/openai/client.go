// Package openai implements transcription, completion, speech synthesis and
// connection pre-warming against the OpenAI HTTP API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"sidekick/internal/domain"
)

const (
	DefaultTranscribeModel = "whisper-1"
	DefaultChatModel       = "gpt-4o"
	DefaultEconomyModel    = "gpt-4o-mini"
	DefaultSpeechModel     = "tts-1"
	DefaultVoice           = "alloy"

	defaultMaxTokens        = 300
	defaultEconomyMaxTokens = 80
)

var (
	timeNow   = time.Now
	timeSince = time.Since
)

// Options configures Client. Zero values fall back to defaults.
type Options struct {
	// APIKey is read on every call so settings changes apply immediately.
	APIKey     func() string
	BaseURL    string
	HTTPClient *http.Client

	TranscribeModel  string
	ChatModel        string
	EconomyModel     string
	SpeechModel      string
	MaxTokens        int64
	EconomyMaxTokens int64

	TranscribeTimeout time.Duration
	CompleteTimeout   time.Duration
	SpeechTimeout     time.Duration

	Logger *slog.Logger
}

// Client talks to the three AI endpoints. It never retries.
type Client struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Client {
	if opts.APIKey == nil {
		opts.APIKey = func() string { return "" }
	}
	if opts.TranscribeModel == "" {
		opts.TranscribeModel = DefaultTranscribeModel
	}
	if opts.ChatModel == "" {
		opts.ChatModel = DefaultChatModel
	}
	if opts.EconomyModel == "" {
		opts.EconomyModel = DefaultEconomyModel
	}
	if opts.SpeechModel == "" {
		opts.SpeechModel = DefaultSpeechModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.EconomyMaxTokens <= 0 {
		opts.EconomyMaxTokens = defaultEconomyMaxTokens
	}
	if opts.TranscribeTimeout <= 0 {
		opts.TranscribeTimeout = 15 * time.Second
	}
	if opts.CompleteTimeout <= 0 {
		opts.CompleteTimeout = 20 * time.Second
	}
	if opts.SpeechTimeout <= 0 {
		opts.SpeechTimeout = 15 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{opts: opts, log: log.With("provider", "openai")}
}

func (c *Client) sdk() (oai.Client, error) {
	key := strings.TrimSpace(c.opts.APIKey())
	if key == "" {
		return oai.Client{}, domain.ErrAuthMissing
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if c.opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.opts.BaseURL))
	}
	if c.opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(c.opts.HTTPClient))
	}
	return oai.NewClient(reqOpts...), nil
}

// mapError translates SDK and transport failures into the domain taxonomy.
// ctx is the per-call context, so its error tells a timeout from a cancel.
func mapError(ctx context.Context, service string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.FromContext(ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.FromContext(err)
	}

	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &domain.ServiceError{
			Service: service,
			Status:  apiErr.StatusCode,
			Message: apiErrorMessage(apiErr),
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %s: %v", domain.ErrMalformedResponse, service, err)
	}
	return fmt.Errorf("%s: %w", service, err)
}

func apiErrorMessage(apiErr *oai.Error) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &envelope) == nil {
		return envelope.Error.Message
	}
	return ""
}
