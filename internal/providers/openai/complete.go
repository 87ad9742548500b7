package openai

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"

	"sidekick/internal/domain"
)

func (c *Client) chatParams(req domain.CompletionRequest) oai.ChatCompletionNewParams {
	model, maxTokens := c.opts.ChatModel, c.opts.MaxTokens
	if req.Economy {
		model, maxTokens = c.opts.EconomyModel, c.opts.EconomyMaxTokens
	}

	var messages []oai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, oai.UserMessage(req.Prompt))

	return oai.ChatCompletionNewParams{
		Model:       model,
		Messages:    messages,
		MaxTokens:   oai.Int(maxTokens),
		Temperature: oai.Float(0),
	}
}

// Complete performs one blocking chat completion.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	client, err := c.sdk()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.CompleteTimeout)
	defer cancel()

	resp, err := client.Chat.Completions.New(ctx, c.chatParams(req))
	if err != nil {
		return "", mapError(ctx, "completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", domain.ErrMalformedResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CompleteStream consumes a server-sent event stream, calling onChunk for every
// non-empty content delta in arrival order, and returns their concatenation.
// Cancelling ctx closes the underlying HTTP stream.
func (c *Client) CompleteStream(ctx context.Context, req domain.CompletionRequest, onChunk func(string)) (string, error) {
	client, err := c.sdk()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.CompleteTimeout)
	defer cancel()

	stream := client.Chat.Completions.NewStreaming(ctx, c.chatParams(req))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		fragment := chunk.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		sb.WriteString(fragment)
		if onChunk != nil {
			onChunk(fragment)
		}
	}
	if err := stream.Err(); err != nil {
		return "", mapError(ctx, "completion", err)
	}
	if err := ctx.Err(); err != nil {
		return "", domain.FromContext(err)
	}
	return sb.String(), nil
}
