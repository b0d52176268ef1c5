package agent

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m4xw311/homework-helper/analysis"
	"github.com/m4xw311/homework-helper/config"
	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/llm"
	"github.com/m4xw311/homework-helper/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProcessCallbacks let a presenter follow a run while it happens. Any field
// may be nil. With parallel review enabled, OnFragment and OnAgentResult are
// called from two goroutines at once.
type ProcessCallbacks struct {
	OnQuestionAnalysis func(record analysis.Record)
	OnStateChange      func(state session.State)
	OnFragment         func(agent, fragment string)
	OnAgentResult      func(agent, text string)
}

func (cb ProcessCallbacks) questionAnalysis(r analysis.Record) {
	if cb.OnQuestionAnalysis != nil {
		cb.OnQuestionAnalysis(r)
	}
}

func (cb ProcessCallbacks) state(s session.State) {
	if cb.OnStateChange != nil {
		cb.OnStateChange(s)
	}
}

func (cb ProcessCallbacks) fragment(agent, frag string) {
	if cb.OnFragment != nil {
		cb.OnFragment(agent, frag)
	}
}

func (cb ProcessCallbacks) result(agent, text string) {
	if cb.OnAgentResult != nil {
		cb.OnAgentResult(agent, text)
	}
}

// Pipeline runs the four agents for a question. It holds no per-question
// state and can serve concurrent runs.
type Pipeline struct {
	client   llm.LLMClient
	params   Params
	parallel bool
	logger   *zap.Logger
}

func NewPipeline(cfg *config.Config, client llm.LLMClient, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		client:   client,
		params:   ParamsFromConfig(cfg),
		parallel: cfg.ParallelReview,
		logger:   logger,
	}
}

// Run answers one question. The returned run is never nil; on error it is in
// StateFailed and holds whatever was produced before the failure. A question
// that needs clarification is not an error: the run ends in
// StateNeedsClarification with only the clarification text set.
func (p *Pipeline) Run(ctx context.Context, question string, cb ProcessCallbacks) (*session.Run, error) {
	run := session.New(question)
	log := p.logger.With(zap.String("run_id", run.ID))

	fail := func(err error) (*session.Run, error) {
		run.Finish(session.StateFailed)
		cb.state(run.State)
		log.Error("run failed", zap.Error(err))
		return run, err
	}
	transition := func(s session.State) {
		run.State = s
		cb.state(s)
		log.Debug("state changed", zap.String("state", string(s)))
	}

	if strings.TrimSpace(question) == "" {
		return fail(errors.ErrEmptyQuestion)
	}

	log.Info("run started", zap.Int("question_chars", utf8.RuneCountInString(question)))
	run.QuestionAnalysis = analysis.Analyze(question)
	cb.questionAnalysis(run.QuestionAnalysis)

	transition(session.StateClarifying)
	clarification, err := p.invoke(ctx, log, Clarification, question, cb)
	if err != nil {
		return fail(err)
	}
	run.Clarification = clarification
	if !IsClear(clarification) {
		run.Finish(session.StateNeedsClarification)
		cb.state(run.State)
		log.Info("run needs clarification")
		return run, nil
	}

	transition(session.StateSolving)
	solution, err := p.invoke(ctx, log, Solution, question, cb)
	if err != nil {
		return fail(err)
	}
	run.Solution = solution
	solutionAnalysis := analysis.Analyze(solution)
	comparison := analysis.Compare(run.QuestionAnalysis, solutionAnalysis)
	run.SolutionAnalysis = &solutionAnalysis
	run.Comparison = &comparison

	var review, summary string
	if p.parallel {
		// Both agents read only the solution. The run is reported as
		// summarizing while the two calls are in flight.
		transition(session.StateReviewing)
		transition(session.StateSummarizing)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			review, err = p.invoke(gctx, log, QualityReview, solution, cb)
			return err
		})
		g.Go(func() error {
			var err error
			summary, err = p.invoke(gctx, log, ConciseSummary, solution, cb)
			return err
		})
		if err := g.Wait(); err != nil {
			return fail(err)
		}
	} else {
		transition(session.StateReviewing)
		if review, err = p.invoke(ctx, log, QualityReview, solution, cb); err != nil {
			return fail(err)
		}
		transition(session.StateSummarizing)
		if summary, err = p.invoke(ctx, log, ConciseSummary, solution, cb); err != nil {
			return fail(err)
		}
	}
	run.Review = review
	run.Summary = summary

	run.Finish(session.StateDone)
	cb.state(run.State)
	log.Info("run finished", zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))
	return run, nil
}

// invoke runs one agent and drains its stream. Text that is empty after
// trimming counts as a failed generation.
func (p *Pipeline) invoke(ctx context.Context, log *zap.Logger, a Agent, input string, cb ProcessCallbacks) (string, error) {
	log = log.With(zap.String("agent", a.Name))
	start := time.Now()
	log.Debug("agent started")

	stream, err := a.Run(ctx, p.client, input, p.params)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		frag := stream.Fragment()
		sb.WriteString(frag)
		cb.fragment(a.Name, frag)
	}
	if err := stream.Err(); err != nil {
		return "", err
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.EmptyGeneration(a.Name)
	}

	log.Info("agent finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("chars", len(text)),
	)
	cb.result(a.Name, text)
	return text, nil
}
