package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/m4xw311/homework-helper/analysis"
	"github.com/m4xw311/homework-helper/config"
	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/llm"
	"github.com/m4xw311/homework-helper/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const testSolution = "Gravity is the force by which a planet or other body draws objects toward its center."

// scripted answers each agent with a fixed text; agents missing from
// answers get the matching error from errs.
func scripted(answers map[string]string, errs map[string]error) *llm.MockLLMClient {
	mock := llm.NewMockLLMClient()
	mock.Respond = func(req llm.Request) (string, error) {
		if err, ok := errs[req.Agent]; ok {
			return "", err
		}
		return answers[req.Agent], nil
	}
	return mock
}

func clearAnswers() map[string]string {
	return map[string]string{
		Clarification.Name:  "The question is clear.",
		Solution.Name:       testSolution,
		QualityReview.Name:  "The solution is accurate and well-explained.",
		ConciseSummary.Name: "Gravity pulls objects toward each other.",
	}
}

func newTestPipeline(t *testing.T, client llm.LLMClient, parallel bool) *Pipeline {
	cfg := config.Default()
	cfg.ParallelReview = parallel
	return NewPipeline(cfg, client, zaptest.NewLogger(t))
}

func userContent(req llm.Request) string {
	return req.Messages[len(req.Messages)-1].Content
}

func TestPipelineClearQuestion(t *testing.T) {
	mock := scripted(clearAnswers(), nil)
	p := newTestPipeline(t, mock, false)

	run, err := p.Run(context.Background(), "What is gravity?", ProcessCallbacks{})
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, session.StateDone, run.State)
	assert.Equal(t, "The question is clear.", run.Clarification)
	assert.Equal(t, testSolution, run.Solution)
	assert.Equal(t, "The solution is accurate and well-explained.", run.Review)
	assert.Equal(t, "Gravity pulls objects toward each other.", run.Summary)
	assert.False(t, run.FinishedAt.IsZero())

	for _, name := range []string{Clarification.Name, Solution.Name, QualityReview.Name, ConciseSummary.Name} {
		assert.Equal(t, 1, mock.CallCount(name), name)
	}

	calls := mock.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "Student's question: 'What is gravity?'", userContent(calls[0]))
	assert.Equal(t, "Provide a detailed solution for this question: What is gravity?", userContent(calls[1]))
	assert.Contains(t, userContent(calls[2]), testSolution)
	assert.Contains(t, userContent(calls[3]), testSolution)

	assert.Equal(t, analysis.TypeDefinition, run.QuestionAnalysis.QuestionType)
	require.NotNil(t, run.SolutionAnalysis)
	assert.Equal(t, len(strings.Fields(testSolution)), run.SolutionAnalysis.WordCount)
	require.NotNil(t, run.Comparison)
	assert.Equal(t, run.SolutionAnalysis.WordCount/3, run.Comparison.LengthRatio)
}

func TestPipelineRequestsUseSharedParameters(t *testing.T) {
	mock := scripted(clearAnswers(), nil)
	p := newTestPipeline(t, mock, false)

	_, err := p.Run(context.Background(), "What is gravity?", ProcessCallbacks{})
	require.NoError(t, err)

	for _, req := range mock.Calls() {
		assert.Equal(t, 0.2, req.Temperature, req.Agent)
		assert.Equal(t, 2048, req.MaxTokens, req.Agent)
		assert.True(t, req.Stream, req.Agent)
		require.Len(t, req.Messages, 2, req.Agent)
		assert.Equal(t, session.RoleSystem, req.Messages[0].Role)
		assert.Equal(t, session.RoleUser, req.Messages[1].Role)
	}
}

func TestPipelineNeedsClarification(t *testing.T) {
	answers := clearAnswers()
	answers[Clarification.Name] = "Which triangle do you mean? Please give the side lengths."
	mock := scripted(answers, nil)
	p := newTestPipeline(t, mock, false)

	run, err := p.Run(context.Background(), "Solve the triangle", ProcessCallbacks{})
	require.NoError(t, err)
	assert.True(t, run.NeedsClarification())
	assert.Equal(t, answers[Clarification.Name], run.Clarification)
	assert.Empty(t, run.Solution)
	assert.Empty(t, run.Review)
	assert.Empty(t, run.Summary)
	assert.Nil(t, run.SolutionAnalysis)

	assert.Len(t, mock.Calls(), 1)
	assert.Equal(t, 0, mock.CallCount(Solution.Name))
}

func TestPipelineMarkerIgnoresCase(t *testing.T) {
	answers := clearAnswers()
	answers[Clarification.Name] = "THE QUESTION IS CLEAR."
	mock := scripted(answers, nil)
	p := newTestPipeline(t, mock, false)

	run, err := p.Run(context.Background(), "What is gravity?", ProcessCallbacks{})
	require.NoError(t, err)
	assert.Equal(t, session.StateDone, run.State)
	assert.Equal(t, 1, mock.CallCount(Solution.Name))
}

func TestPipelineFailures(t *testing.T) {
	testCases := []struct {
		name      string
		answers   func() map[string]string
		errs      map[string]error
		wantKind  error
		wantCalls map[string]int
	}{
		{
			name:     "MissingCredentialAtClarification",
			answers:  clearAnswers,
			errs:     map[string]error{Clarification.Name: errors.Configuration("CEREBRAS_API_KEY is not set")},
			wantKind: errors.ErrConfiguration,
			wantCalls: map[string]int{
				Clarification.Name: 1, Solution.Name: 0, QualityReview.Name: 0, ConciseSummary.Name: 0,
			},
		},
		{
			name:     "ServiceErrorWhileSolving",
			answers:  clearAnswers,
			errs:     map[string]error{Solution.Name: errors.Service(fmt.Errorf("status 500"), "cerebras request failed")},
			wantKind: errors.ErrService,
			wantCalls: map[string]int{
				Clarification.Name: 1, Solution.Name: 1, QualityReview.Name: 0, ConciseSummary.Name: 0,
			},
		},
		{
			name: "EmptySummary",
			answers: func() map[string]string {
				a := clearAnswers()
				a[ConciseSummary.Name] = "   "
				return a
			},
			wantKind: errors.ErrEmptyGeneration,
			wantCalls: map[string]int{
				Clarification.Name: 1, Solution.Name: 1, QualityReview.Name: 1, ConciseSummary.Name: 1,
			},
		},
		{
			name: "EmptyClarification",
			answers: func() map[string]string {
				a := clearAnswers()
				a[Clarification.Name] = ""
				return a
			},
			wantKind: errors.ErrEmptyGeneration,
			wantCalls: map[string]int{
				Clarification.Name: 1, Solution.Name: 0, QualityReview.Name: 0, ConciseSummary.Name: 0,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := scripted(tc.answers(), tc.errs)
			p := newTestPipeline(t, mock, false)

			run, err := p.Run(context.Background(), "What is gravity?", ProcessCallbacks{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantKind), "got %v", err)
			require.NotNil(t, run)
			assert.Equal(t, session.StateFailed, run.State)
			for agent, want := range tc.wantCalls {
				assert.Equal(t, want, mock.CallCount(agent), agent)
			}
		})
	}
}

func TestPipelineKeepsPartialResultsOnFailure(t *testing.T) {
	errs := map[string]error{QualityReview.Name: errors.Service(fmt.Errorf("timeout"), "review request failed")}
	mock := scripted(clearAnswers(), errs)
	p := newTestPipeline(t, mock, false)

	run, err := p.Run(context.Background(), "What is gravity?", ProcessCallbacks{})
	require.Error(t, err)
	assert.Equal(t, testSolution, run.Solution)
	assert.Empty(t, run.Review)
	assert.Empty(t, run.Summary)
	assert.Equal(t, 0, mock.CallCount(ConciseSummary.Name))
}

func TestPipelineEmptyQuestion(t *testing.T) {
	for _, question := range []string{"", "   \n\t"} {
		mock := llm.NewMockLLMClient()
		p := newTestPipeline(t, mock, false)

		run, err := p.Run(context.Background(), question, ProcessCallbacks{})
		assert.True(t, errors.Is(err, errors.ErrEmptyQuestion))
		assert.Equal(t, session.StateFailed, run.State)
		assert.Empty(t, mock.Calls())
	}
}

func TestPipelineStateSequence(t *testing.T) {
	testCases := []struct {
		name     string
		answers  func() map[string]string
		parallel bool
		want     []session.State
	}{
		{
			name:    "Sequential",
			answers: clearAnswers,
			want: []session.State{
				session.StateClarifying, session.StateSolving, session.StateReviewing,
				session.StateSummarizing, session.StateDone,
			},
		},
		{
			name:     "Parallel",
			answers:  clearAnswers,
			parallel: true,
			want: []session.State{
				session.StateClarifying, session.StateSolving, session.StateReviewing,
				session.StateSummarizing, session.StateDone,
			},
		},
		{
			name: "NeedsClarification",
			answers: func() map[string]string {
				a := clearAnswers()
				a[Clarification.Name] = "Which planet?"
				return a
			},
			want: []session.State{session.StateClarifying, session.StateNeedsClarification},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPipeline(t, scripted(tc.answers(), nil), tc.parallel)

			var mu sync.Mutex
			var states []session.State
			var questionType analysis.QuestionType
			cb := ProcessCallbacks{
				OnQuestionAnalysis: func(r analysis.Record) { questionType = r.QuestionType },
				OnStateChange: func(s session.State) {
					mu.Lock()
					defer mu.Unlock()
					states = append(states, s)
				},
			}

			_, err := p.Run(context.Background(), "What is gravity?", cb)
			require.NoError(t, err)
			assert.Equal(t, tc.want, states)
			assert.Equal(t, analysis.TypeDefinition, questionType)
		})
	}
}

func TestPipelineFragmentsRebuildResults(t *testing.T) {
	p := newTestPipeline(t, scripted(clearAnswers(), nil), false)

	var mu sync.Mutex
	streamed := map[string]*strings.Builder{}
	results := map[string]string{}
	cb := ProcessCallbacks{
		OnFragment: func(agent, fragment string) {
			mu.Lock()
			defer mu.Unlock()
			if streamed[agent] == nil {
				streamed[agent] = &strings.Builder{}
			}
			streamed[agent].WriteString(fragment)
		},
		OnAgentResult: func(agent, text string) {
			mu.Lock()
			defer mu.Unlock()
			results[agent] = text
		},
	}

	run, err := p.Run(context.Background(), "What is gravity?", cb)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for agent, text := range results {
		assert.Equal(t, text, streamed[agent].String(), agent)
	}
	assert.Equal(t, run.Solution, results[Solution.Name])
}

func TestPipelineParallel(t *testing.T) {
	mock := scripted(clearAnswers(), nil)
	p := newTestPipeline(t, mock, true)

	run, err := p.Run(context.Background(), "What is gravity?", ProcessCallbacks{})
	require.NoError(t, err)
	assert.Equal(t, session.StateDone, run.State)
	assert.Equal(t, "The solution is accurate and well-explained.", run.Review)
	assert.Equal(t, "Gravity pulls objects toward each other.", run.Summary)
	assert.Equal(t, 1, mock.CallCount(QualityReview.Name))
	assert.Equal(t, 1, mock.CallCount(ConciseSummary.Name))
}

func TestPipelineParallelFailure(t *testing.T) {
	errs := map[string]error{QualityReview.Name: errors.Service(fmt.Errorf("status 503"), "review request failed")}
	mock := scripted(clearAnswers(), errs)
	p := newTestPipeline(t, mock, true)

	run, err := p.Run(context.Background(), "What is gravity?", ProcessCallbacks{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrService))
	assert.Equal(t, session.StateFailed, run.State)
	assert.Empty(t, run.Review)
	assert.Empty(t, run.Summary)
}

func TestPipelineCancelledContext(t *testing.T) {
	mock := scripted(clearAnswers(), nil)
	p := newTestPipeline(t, mock, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := p.Run(ctx, "What is gravity?", ProcessCallbacks{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrService))
	assert.Equal(t, session.StateFailed, run.State)
	assert.Equal(t, 0, mock.CallCount(Solution.Name))
}

func TestPipelineLogsQuestionLengthInCharacters(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewPipeline(config.Default(), scripted(clearAnswers(), nil), zap.New(core))

	question := "Qu'est-ce que la gravité ? Expliquez en détail, s'il vous plaît."
	_, err := p.Run(context.Background(), question, ProcessCallbacks{})
	require.NoError(t, err)

	started := logs.FilterMessage("run started").All()
	require.Len(t, started, 1)
	assert.EqualValues(t, 64, started[0].ContextMap()["question_chars"])
	assert.Less(t, 64, len(question))
}
