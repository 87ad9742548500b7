package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"sidekick/internal/domain"
)

const sendChunkSize = 8192

// Config controls the Deepgram live-listen connection.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Transcriber streams a finished clip through a live-listen websocket and
// joins the final results.
type Transcriber struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger
}

func NewTranscriber(cfg Config) *Transcriber {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Transcriber{cfg: cfg, dialer: websocket.DefaultDialer, log: log.With("provider", "deepgram")}
}

func (t *Transcriber) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return "", domain.ErrAuthMissing
	}

	listenURL, err := buildListenURL(t.cfg, clip.SampleRate, clip.Channels)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.cfg.APIKey)

	conn, resp, err := t.dialer.DialContext(ctx, listenURL, headers)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", domain.FromContext(ctxErr)
		}
		if resp != nil {
			return "", &domain.ServiceError{Service: "transcription", Status: resp.StatusCode, Message: dialFailureMessage(resp)}
		}
		return "", fmt.Errorf("transcription: connect: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- sendClip(conn, clip.PCM)
	}()

	text, readErr := readResults(conn)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", domain.FromContext(ctxErr)
	}
	if readErr != nil {
		return "", readErr
	}
	if err := <-sendErr; err != nil {
		return "", fmt.Errorf("transcription: send audio: %w", err)
	}
	t.log.Debug("transcription finished", "audio", clip.Duration(), "chars", len(text))
	return text, nil
}

func sendClip(conn *websocket.Conn, pcm []byte) error {
	for len(pcm) > 0 {
		n := min(sendChunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[:n]); err != nil {
			return err
		}
		pcm = pcm[n:]
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

// readResults consumes provider events until the server closes the stream or
// sends its trailing metadata.
func readResults(conn *websocket.Conn) (string, error) {
	var agg transcriptAggregator
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return agg.Text(), nil
			}
			return "", fmt.Errorf("transcription: read: %w", err)
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			return "", fmt.Errorf("%w: transcription: %v", domain.ErrMalformedResponse, err)
		}

		switch {
		case strings.EqualFold(response.Type, "Error"):
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			return "", &domain.ServiceError{Service: "transcription", Message: message}
		case strings.EqualFold(response.Type, "Metadata"):
			return agg.Text(), nil
		}

		agg.Add(extractTranscript(response), response.IsFinal || response.SpeechFinal)
	}
}

func dialFailureMessage(resp *http.Response) string {
	if msg := resp.Header.Get("dg-error"); msg != "" {
		return msg
	}
	return ""
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type alternative struct {
	Transcript string `json:"transcript"`
}

func extractTranscript(response listenResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

// transcriptAggregator joins final segments, falling back to the last interim
// text when the stream ended before anything was finalized.
type transcriptAggregator struct {
	finals     []string
	lastSpoken string
}

func (a *transcriptAggregator) Add(text string, final bool) {
	if text == "" {
		return
	}
	a.lastSpoken = text
	if final {
		a.finals = append(a.finals, text)
	}
}

func (a *transcriptAggregator) Text() string {
	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	switch {
	case joined == "":
		return a.lastSpoken
	case a.lastSpoken == "", strings.HasSuffix(joined, a.lastSpoken):
		return joined
	case len(a.lastSpoken) > len(joined):
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	default:
		return joined
	}
}

func buildListenURL(cfg Config, sampleRate int, channels int) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", strconv.Itoa(channels))
	query.Set("interim_results", "false")
	query.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
