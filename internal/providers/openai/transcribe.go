package openai

import (
	"bytes"
	"context"
	"strings"

	oai "github.com/openai/openai-go"

	"sidekick/internal/domain"
)

// Transcribe uploads the clip as a WAV file and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	client, err := c.sdk()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.TranscribeTimeout)
	defer cancel()

	started := timeNow()
	resp, err := client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(clip.WAV()), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(c.opts.TranscribeModel),
	})
	if err != nil {
		return "", mapError(ctx, "transcription", err)
	}

	c.log.Debug("transcription finished", "audio", clip.Duration(), "elapsed", timeSince(started))
	return strings.TrimSpace(resp.Text), nil
}
