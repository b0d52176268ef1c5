package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
)

// MockLLMClient answers from a script instead of a remote service. It backs
// the "mock" provider and the tests.
type MockLLMClient struct {
	// Respond produces the full completion for a request. A non-empty text
	// returned together with an error is streamed first and the error ends
	// the stream; an error with no text fails the call itself.
	Respond func(req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{}
}

func (m *MockLLMClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	m.record(req)
	text, err := m.respond(req)
	if err != nil && text == "" {
		return nil, err
	}

	frags := strings.SplitAfter(text, " ")
	i := 0
	recv := func() (string, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Service(ctxErr, "mock stream interrupted")
		}
		if i < len(frags) {
			i++
			return frags[i-1], nil
		}
		if err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return NewStream(recv, nil), nil
}

func (m *MockLLMClient) Complete(ctx context.Context, req Request) (string, error) {
	m.record(req)
	if err := ctx.Err(); err != nil {
		return "", errors.Service(err, "mock request interrupted")
	}
	text, err := m.respond(req)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (m *MockLLMClient) Close() error { return nil }

// Calls returns the requests received so far, in order.
func (m *MockLLMClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns how many requests were built by the named agent.
func (m *MockLLMClient) CallCount(agent string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Agent == agent {
			n++
		}
	}
	return n
}

func (m *MockLLMClient) record(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
}

func (m *MockLLMClient) respond(req Request) (string, error) {
	if m.Respond != nil {
		return m.Respond(req)
	}
	if req.Agent == "clarification" {
		return "The question is clear.", nil
	}
	var last string
	for _, msg := range req.Messages {
		if msg.Role == session.RoleUser {
			last = msg.Content
		}
	}
	return fmt.Sprintf("I am a mock %s agent. You said: %q", req.Agent, last), nil
}
