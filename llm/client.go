package llm

import (
	"context"

	"github.com/m4xw311/homework-helper/config"
	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
)

// Request is one completion call.
type Request struct {
	// Agent names the template that built the request. It is only used for
	// logging and is never sent to the provider.
	Agent       string
	Model       string
	Messages    []session.Message
	Temperature float64
	MaxTokens   int
	// Stream selects how Send calls the client. A request with Stream unset
	// is answered by Complete and handed back as a single fragment.
	Stream bool
}

// LLMClient is the interface for interacting with a Large Language Model.
//
// A missing credential is reported as errors.ErrConfiguration before any
// network call. Remote failures are reported as errors.ErrService, either
// directly or through Stream.Err.
type LLMClient interface {
	Stream(ctx context.Context, req Request) (*Stream, error)
	Complete(ctx context.Context, req Request) (string, error)
	Close() error
}

// Send issues req through client, streaming only when req.Stream is set.
func Send(ctx context.Context, client LLMClient, req Request) (*Stream, error) {
	if req.Stream {
		return client.Stream(ctx, req)
	}
	text, err := client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return FromFragments([]string{text}, nil), nil
}

// New creates the client selected by cfg.LLMClient.
func New(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	switch cfg.LLMClient {
	case "cerebras":
		return NewCerebrasLLMClient(), nil
	case "openai":
		return NewOpenAILLMClient(), nil
	case "anthropic":
		return NewAnthropicLLMClient(), nil
	case "gemini":
		c, err := NewGeminiLLMClient(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "bedrock":
		c, err := NewBedrockLLMClient(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "mock":
		return NewMockLLMClient(), nil
	default:
		return nil, errors.Configuration("unknown llm %q", cfg.LLMClient)
	}
}

// splitSystem separates the system instruction from the conversation for
// providers that take it as a separate field. The last system message wins.
func splitSystem(messages []session.Message) (string, []session.Message) {
	var system string
	rest := make([]session.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == session.RoleSystem {
			system = msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}
