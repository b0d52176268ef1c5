package llm

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client      *bedrockruntime.Client
	credentials aws.CredentialsProvider
	region      string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// AWS credentials come from the default credential chain and are checked on
// each call, not here.
func NewBedrockLLMClient(ctx context.Context) (*BedrockLLMClient, error) {
	// Get region from environment
	region := os.Getenv("AWS_DEFAULT_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1" // Default region
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	// Get custom endpoint if specified (useful for testing)
	endpoint := os.Getenv("BEDROCK_ENDPOINT_URL")
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.RetryMaxAttempts = 1
	})

	return &BedrockLLMClient{
		client:      client,
		credentials: cfg.Credentials,
		region:      region,
	}, nil
}

// Stream invokes the model with a response stream.
func (b *BedrockLLMClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	body, err := b.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		cancel()
		return nil, errors.Service(err, "failed to invoke Bedrock model")
	}

	eventStream := out.GetStream()
	events := eventStream.Events()

	recv := func() (string, error) {
		for event := range events {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			text, err := parseBedrockChunk(chunk.Value.Bytes)
			if err != nil {
				return "", errors.Service(err, "bad Bedrock stream chunk")
			}
			if text != "" {
				return text, nil
			}
		}
		if err := eventStream.Err(); err != nil {
			return "", errors.Service(err, "bedrock stream failed")
		}
		return "", io.EOF
	}
	closeFn := func() error {
		cancel()
		return eventStream.Close()
	}
	return NewStream(recv, closeFn), nil
}

// Complete invokes the model and returns the whole response text.
func (b *BedrockLLMClient) Complete(ctx context.Context, req Request) (string, error) {
	body, err := b.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", errors.Service(err, "failed to invoke Bedrock model")
	}
	return processBedrockResponse(resp.Body)
}

func (b *BedrockLLMClient) Close() error { return nil }

func (b *BedrockLLMClient) prepare(ctx context.Context, req Request) ([]byte, error) {
	if b.credentials == nil {
		return nil, errors.Configuration("AWS credentials are not configured for region %s", b.region)
	}
	if _, err := b.credentials.Retrieve(ctx); err != nil {
		return nil, errors.Configuration("AWS credentials are not configured for region %s: %v", b.region, err)
	}

	systemPrompt, rest := splitSystem(req.Messages)
	body, err := createAnthropicRequest(convertMessagesToAnthropicFormat(rest), systemPrompt, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}
	return body, nil
}

// convertMessagesToAnthropicFormat converts our internal message format to the
// Bedrock Anthropic messages format. System messages must already have been removed.
func convertMessagesToAnthropicFormat(messages []session.Message) []map[string]interface{} {
	var anthropicMessages []map[string]interface{}
	for _, msg := range messages {
		anthropicMessages = append(anthropicMessages, map[string]interface{}{
			"role": "user",
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": msg.Content,
				},
			},
		})
	}
	return anthropicMessages
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(messages []map[string]interface{}, systemPrompt string, temperature float64, maxTokens int) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"temperature":       temperature,
		"messages":          messages,
	}

	if systemPrompt != "" {
		request["system"] = systemPrompt
	}

	return json.Marshal(request)
}

// parseBedrockChunk returns the text carried by one streamed event payload.
// Only content_block_delta events with a text delta carry text.
func parseBedrockChunk(payload []byte) (string, error) {
	var event struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", err
	}
	if event.Type == "error" && event.Error != nil {
		return "", errors.New("Bedrock stream error: %s", event.Error.Message)
	}
	if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" {
		return event.Delta.Text, nil
	}
	return "", nil
}

// processBedrockResponse extracts the response text from an InvokeModel body.
func processBedrockResponse(body []byte) (string, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Service(err, "failed to unmarshal Bedrock response")
	}

	// Check for error in response
	if errMsg, ok := response["error"]; ok {
		return "", errors.Service(errors.New("%v", errMsg), "Bedrock API error")
	}

	// Extract content from response
	content, ok := response["content"]
	if !ok {
		return "", nil
	}

	contentArray, ok := content.([]interface{})
	if !ok {
		return "", errors.Service(errors.New("content is %T", content), "unexpected content format in Bedrock response")
	}

	var responseContent string
	for _, item := range contentArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if itemMap["type"] != "text" {
			continue
		}
		if text, ok := itemMap["text"].(string); ok {
			responseContent += text
		}
	}
	return responseContent, nil
}
