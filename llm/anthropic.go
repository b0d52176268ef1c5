package llm

import (
	"context"
	"io"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
)

// AnthropicLLMClient is a client for the Anthropic API.
type AnthropicLLMClient struct {
	client *anthropic.Client
	apiKey string
}

// NewAnthropicLLMClient creates a new AnthropicLLMClient.
// The key is read from the ANTHROPIC_API_KEY environment variable.
func NewAnthropicLLMClient() *AnthropicLLMClient {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	return &AnthropicLLMClient{
		client: &client,
		apiKey: apiKey,
	}
}

// Stream starts a streamed message.
func (a *AnthropicLLMClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	if a.apiKey == "" {
		return nil, errors.Configuration("ANTHROPIC_API_KEY environment variable not set")
	}

	ctx, cancel := context.WithCancel(ctx)
	stream := a.client.Messages.NewStreaming(ctx, anthropicParams(req))

	recv := func() (string, error) {
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					return delta.Text, nil
				}
			}
		}
		if err := stream.Err(); err != nil {
			return "", errors.Service(err, "anthropic stream failed")
		}
		return "", io.EOF
	}
	closeFn := func() error {
		cancel()
		return stream.Close()
	}
	return NewStream(recv, closeFn), nil
}

// Complete sends a non-streaming message and returns its text.
func (a *AnthropicLLMClient) Complete(ctx context.Context, req Request) (string, error) {
	if a.apiKey == "" {
		return "", errors.Configuration("ANTHROPIC_API_KEY environment variable not set")
	}

	resp, err := a.client.Messages.New(ctx, anthropicParams(req))
	if err != nil {
		return "", errors.Service(err, "failed to send message to Anthropic")
	}
	return processAnthropicResponse(resp), nil
}

func (a *AnthropicLLMClient) Close() error { return nil }

func anthropicParams(req Request) anthropic.MessageNewParams {
	systemPrompt, rest := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    convertMessagesToAnthropicMessages(rest),
		Temperature: anthropic.Float(req.Temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	return params
}

// convertMessagesToAnthropicMessages converts our internal message format to Anthropic's format.
// System messages must already have been removed.
func convertMessagesToAnthropicMessages(messages []session.Message) []anthropic.MessageParam {
	anthropicMessages := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
			anthropic.NewTextBlock(msg.Content),
		))
	}
	return anthropicMessages
}

// processAnthropicResponse concatenates the text blocks of a response.
func processAnthropicResponse(resp *anthropic.Message) string {
	var responseContent string
	for _, content := range resp.Content {
		if c, ok := content.AsAny().(anthropic.TextBlock); ok {
			responseContent += c.Text
		}
	}
	return responseContent
}
