package openai

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	oai "github.com/openai/openai-go"

	"sidekick/internal/domain"
)

// Synthesize renders text as mp3 audio.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) ([]byte, error) {
	client, err := c.sdk()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(voice) == "" {
		voice = DefaultVoice
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.SpeechTimeout)
	defer cancel()

	resp, err := client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(c.opts.SpeechModel),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, mapError(ctx, "speech", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapError(ctx, "speech", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: speech returned no audio", domain.ErrMalformedResponse)
	}
	return audio, nil
}

// Prewarm fires one cheap request at each endpoint concurrently so the first
// real call reuses warm connections. Every failure is ignored.
func (c *Client) Prewarm(ctx context.Context) {
	if strings.TrimSpace(c.opts.APIKey()) == "" {
		return
	}

	silence := domain.Clip{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	warmups := map[string]func(context.Context) error{
		"transcription": func(ctx context.Context) error {
			_, err := c.Transcribe(ctx, silence)
			return err
		},
		"completion": func(ctx context.Context) error {
			_, err := c.Complete(ctx, domain.CompletionRequest{Prompt: "ping", Economy: true})
			return err
		},
		"speech": func(ctx context.Context) error {
			_, err := c.Synthesize(ctx, ".", DefaultVoice)
			return err
		},
	}

	var wg sync.WaitGroup
	for name, warm := range warmups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := warm(ctx); err != nil {
				c.log.Debug("prewarm failed", "endpoint", name, "err", err)
			}
		}()
	}
	wg.Wait()
}
