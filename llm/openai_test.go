package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCompletionServer fakes an OpenAI-compatible chat completion endpoint
// that answers text, either streamed in pieces or as one message.
func newCompletionServer(t *testing.T, pieces []string, hits *atomic.Int32, seen chan<- map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if seen != nil {
			seen <- body
		}

		if stream, _ := body["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			for _, p := range pieces {
				chunk := map[string]any{
					"id":      "chatcmpl-1",
					"object":  "chat.completion.chunk",
					"created": 1,
					"model":   "llama-3.3-70b",
					"choices": []map[string]any{{
						"index":         0,
						"delta":         map[string]any{"content": p},
						"finish_reason": nil,
					}},
				}
				data, _ := json.Marshal(chunk)
				fmt.Fprintf(w, "data: %s\n\n", data)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		full := ""
		for _, p := range pieces {
			full += p
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "llama-3.3-70b",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": full},
				"finish_reason": "stop",
			}},
		})
	}))
}

func testRequest() Request {
	return Request{
		Agent: "solution",
		Model: "llama-3.3-70b",
		Messages: []session.Message{
			{Role: session.RoleSystem, Content: "You are an expert tutor."},
			{Role: session.RoleUser, Content: "Provide a detailed solution for this question: 2+2"},
		},
		Temperature: 0.2,
		MaxTokens:   2048,
		Stream:      true,
	}
}

func TestOpenAICompatibleStreamMatchesComplete(t *testing.T) {
	var hits atomic.Int32
	pieces := []string{"Two ", "plus two ", "is ", "four."}
	server := newCompletionServer(t, pieces, &hits, nil)
	defer server.Close()

	client := NewOpenAICompatibleClient("cerebras", "CEREBRAS_API_KEY", "test-key", server.URL)

	stream, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	var got []string
	for stream.Next() {
		got = append(got, stream.Fragment())
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())
	assert.Equal(t, pieces, got)

	complete, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Two plus two is four.", complete)
	assert.Equal(t, int32(2), hits.Load())
}

func TestOpenAICompatibleSendsGenerationParameters(t *testing.T) {
	var hits atomic.Int32
	seen := make(chan map[string]any, 1)
	server := newCompletionServer(t, []string{"ok"}, &hits, seen)
	defer server.Close()

	client := NewOpenAICompatibleClient("cerebras", "CEREBRAS_API_KEY", "test-key", server.URL)
	stream, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	_, err = Collect(stream)
	require.NoError(t, err)

	body := <-seen
	assert.Equal(t, "llama-3.3-70b", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)
	assert.EqualValues(t, 2048, body["max_tokens"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestOpenAICompatibleMissingKeyFailsFast(t *testing.T) {
	var hits atomic.Int32
	server := newCompletionServer(t, []string{"unused"}, &hits, nil)
	defer server.Close()

	client := NewOpenAICompatibleClient("cerebras", "CEREBRAS_API_KEY", "", server.URL)

	_, err := client.Stream(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.Contains(t, err.Error(), "CEREBRAS_API_KEY")

	_, err = client.Complete(context.Background(), testRequest())
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	assert.Equal(t, int32(0), hits.Load())
}

func TestOpenAICompatibleServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient("cerebras", "CEREBRAS_API_KEY", "bad-key", server.URL)

	stream, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	_, err = Collect(stream)
	assert.True(t, errors.Is(err, errors.ErrService))

	_, err = client.Complete(context.Background(), testRequest())
	assert.True(t, errors.Is(err, errors.ErrService))
}

func TestConvertMessagesToOpenaiContent(t *testing.T) {
	converted := convertMessagesToOpenaiContent(testRequest().Messages)
	require.Len(t, converted, 2)
	assert.NotNil(t, converted[0].OfSystem)
	assert.NotNil(t, converted[1].OfUser)
}
