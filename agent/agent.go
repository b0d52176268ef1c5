package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/m4xw311/homework-helper/config"
	"github.com/m4xw311/homework-helper/llm"
	"github.com/m4xw311/homework-helper/session"
)

// ClarityMarker is the phrase the clarification agent is told to answer with
// when a question can be answered as asked. Matching ignores case.
const ClarityMarker = "the question is clear"

const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2048
)

// Params are the generation settings shared by every agent.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ParamsFromConfig reads the generation settings from cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// Agent is a fixed prompt template: a system instruction and a user message
// format with a single %s for the input text.
type Agent struct {
	Name       string
	System     string
	UserFormat string
}

var (
	Clarification = Agent{
		Name: "clarification",
		System: "You are a helpful teaching assistant. Your role is to analyze a student's question for clarity. " +
			"Only ask for clarification if the question is truly impossible to answer or critically ambiguous. " +
			"For questions that can be reasonably interpreted (even if slightly vague), respond with 'The question is clear.' " +
			"Be generous in your interpretation and assume the most common or obvious meaning. " +
			"Only ask clarifying questions when absolutely necessary.",
		UserFormat: "Student's question: '%s'",
	}

	Solution = Agent{
		Name: "solution",
		System: "You are an expert tutor. Your goal is to provide a comprehensive, step-by-step solution to the student's homework question. " +
			"If the question is slightly vague, make reasonable assumptions about what the student is asking (and mention those assumptions). " +
			"Start by explaining the core concepts, then walk through the solution process. Be clear, thorough, and encouraging.",
		UserFormat: "Provide a detailed solution for this question: %s",
	}

	QualityReview = Agent{
		Name: "review",
		System: "You are a meticulous quality assurance assistant. Your task is to review a provided solution for accuracy, clarity, and completeness. " +
			"Identify any errors, logical fallacies, or areas that could be explained better. Provide constructive feedback. " +
			"If the solution is perfect, state that it is accurate and well-explained.",
		UserFormat: "Please review the following solution:\n\n---\n%s\n---",
	}

	ConciseSummary = Agent{
		Name: "summary",
		System: "You are an expert summarizer. Your job is to distill a detailed solution into a concise, easy-to-understand final answer. " +
			"Extract the key result or main point and present it clearly. Keep it brief but informative.",
		UserFormat: "Summarize the final answer from this detailed solution:\n\n---\n%s\n---",
	}
)

// Prompt builds the two-message prompt for input.
func (a Agent) Prompt(input string) []session.Message {
	return []session.Message{
		{Role: session.RoleSystem, Content: a.System},
		{Role: session.RoleUser, Content: fmt.Sprintf(a.UserFormat, input)},
	}
}

// Request builds the streamed completion request for input.
func (a Agent) Request(input string, p Params) llm.Request {
	return llm.Request{
		Agent:       a.Name,
		Model:       p.Model,
		Messages:    a.Prompt(input),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      true,
	}
}

// Run sends the agent's request for input and returns the streamed answer.
func (a Agent) Run(ctx context.Context, client llm.LLMClient, input string, p Params) (*llm.Stream, error) {
	return llm.Send(ctx, client, a.Request(input, p))
}

// IsClear reports whether a clarification response contains ClarityMarker.
func IsClear(clarification string) bool {
	return strings.Contains(strings.ToLower(clarification), ClarityMarker)
}
