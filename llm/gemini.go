package llm

import (
	"context"
	"io"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	client *genai.Client
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// The key is read from the GEMINI_API_KEY environment variable. Without it
// the client is still returned and every call reports a configuration error.
func NewGeminiLLMClient(ctx context.Context) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return &GeminiLLMClient{}, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiLLMClient{client: client}, nil
}

// Stream starts a streamed generation.
func (g *GeminiLLMClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	if g.client == nil {
		return nil, errors.Configuration("GEMINI_API_KEY environment variable not set")
	}

	ctx, cancel := context.WithCancel(ctx)
	chatSession, last := g.startChat(req)
	iter := chatSession.SendMessageStream(ctx, last.Parts...)

	recv := func() (string, error) {
		resp, err := iter.Next()
		if err == iterator.Done {
			return "", io.EOF
		}
		if err != nil {
			return "", errors.Service(err, "gemini stream failed")
		}
		return processGeminiResponse(resp), nil
	}
	closeFn := func() error {
		cancel()
		return nil
	}
	return NewStream(recv, closeFn), nil
}

// Complete sends a non-streaming generation request and returns its text.
func (g *GeminiLLMClient) Complete(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", errors.Configuration("GEMINI_API_KEY environment variable not set")
	}

	chatSession, last := g.startChat(req)
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", errors.Service(err, "failed to send message to Gemini")
	}
	return processGeminiResponse(resp), nil
}

// Close releases the underlying gRPC connection.
func (g *GeminiLLMClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// startChat builds a model configured for req. A fresh GenerativeModel per
// call keeps concurrent requests from sharing generation settings.
func (g *GeminiLLMClient) startChat(req Request) (*genai.ChatSession, *genai.Content) {
	model := g.client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	model.SetMaxOutputTokens(int32(req.MaxTokens))

	systemPrompt, rest := splitSystem(req.Messages)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	history := convertMessagesToGeminiContent(rest)
	if len(history) == 0 {
		history = []*genai.Content{{Role: "user", Parts: []genai.Part{genai.Text("")}}}
	}

	// The last message is the new prompt.
	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]
	return chatSession, history[len(history)-1]
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		contents = append(contents, &genai.Content{
			Role:  "user",
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

// processGeminiResponse concatenates the text parts of the first candidate.
func processGeminiResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var responseContent string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseContent += string(text)
		}
	}
	return responseContent
}
