package llm

import (
	"context"
	"io"
	"os"

	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// CerebrasBaseURL is the OpenAI-compatible endpoint of Cerebras Inference.
const CerebrasBaseURL = "https://api.cerebras.ai/v1"

// OpenAILLMClient is a client for the OpenAI Chat Completion API and for
// services that expose the same API, such as Cerebras.
type OpenAILLMClient struct {
	client *openai.Client
	name   string
	keyEnv string
	apiKey string
}

// NewOpenAILLMClient creates a client for OpenAI. The key is read from
// OPENAI_API_KEY; OPENAI_BASE_URL selects a custom endpoint.
func NewOpenAILLMClient() *OpenAILLMClient {
	return NewOpenAICompatibleClient("openai", "OPENAI_API_KEY", os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"))
}

// NewCerebrasLLMClient creates a client for Cerebras. The key is read from
// CEREBRAS_API_KEY; CEREBRAS_BASE_URL overrides the endpoint.
func NewCerebrasLLMClient() *OpenAILLMClient {
	baseURL := os.Getenv("CEREBRAS_BASE_URL")
	if baseURL == "" {
		baseURL = CerebrasBaseURL
	}
	return NewOpenAICompatibleClient("cerebras", "CEREBRAS_API_KEY", os.Getenv("CEREBRAS_API_KEY"), baseURL)
}

// NewOpenAICompatibleClient creates a client for any OpenAI-compatible
// endpoint. An empty apiKey is accepted here; calls then fail with a
// configuration error naming keyEnv.
func NewOpenAICompatibleClient(name, keyEnv, apiKey, baseURL string) *OpenAILLMClient {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Every completion is sent once.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK uses functional options for configuration.
	c := openai.NewClient(options...)
	return &OpenAILLMClient{client: &c, name: name, keyEnv: keyEnv, apiKey: apiKey}
}

// Stream starts a streamed chat completion.
func (o *OpenAILLMClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	if o.apiKey == "" {
		return nil, errors.Configuration("%s environment variable not set", o.keyEnv)
	}

	ctx, cancel := context.WithCancel(ctx)
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(req))

	recv := func() (string, error) {
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				return chunk.Choices[0].Delta.Content, nil
			}
		}
		if err := stream.Err(); err != nil {
			return "", errors.Service(err, "%s stream failed", o.name)
		}
		return "", io.EOF
	}
	closeFn := func() error {
		cancel()
		return stream.Close()
	}
	return NewStream(recv, closeFn), nil
}

// Complete sends a non-streaming chat completion and returns its text.
func (o *OpenAILLMClient) Complete(ctx context.Context, req Request) (string, error) {
	if o.apiKey == "" {
		return "", errors.Configuration("%s environment variable not set", o.keyEnv)
	}

	resp, err := o.client.Chat.Completions.New(ctx, o.params(req))
	if err != nil {
		return "", errors.Service(err, "failed to send message to %s", o.name)
	}
	return processOpenaiResponse(resp), nil
}

func (o *OpenAILLMClient) Close() error { return nil }

func (o *OpenAILLMClient) params(req Request) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    convertMessagesToOpenaiContent(req.Messages),
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	}
}

// processOpenaiResponse extracts the assistant text of the first choice.
func processOpenaiResponse(resp *openai.ChatCompletion) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// convertMessagesToOpenaiContent converts our internal message format to OpenAI's.
func convertMessagesToOpenaiContent(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	chatMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}
