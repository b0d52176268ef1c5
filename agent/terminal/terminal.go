package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/m4xw311/homework-helper/agent"
	"github.com/m4xw311/homework-helper/analysis"
	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
)

var stageTitles = map[string]string{
	agent.Clarification.Name:  "Clarification",
	agent.Solution.Name:       "Detailed Solution",
	agent.QualityReview.Name:  "Quality Review",
	agent.ConciseSummary.Name: "Final Answer",
}

var stateStatus = map[session.State]string{
	session.StateClarifying:  "Checking whether the question is clear...",
	session.StateSolving:     "Working out the solution...",
	session.StateReviewing:   "Reviewing the solution...",
	session.StateSummarizing: "Summarizing the final answer...",
}

// Terminal answers questions typed on the command line.
type Terminal struct {
	pipeline *agent.Pipeline
	in       io.Reader
	out      io.Writer
	renderer *glamour.TermRenderer
	copyText func(string) error

	// mu guards out while review and summary print concurrently.
	mu   sync.Mutex
	last *session.Run
}

type Option func(*Terminal)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(t *Terminal) {
		t.in = in
		t.out = out
	}
}

// WithPlainText prints agent output as it arrives without markdown rendering.
func WithPlainText() Option {
	return func(t *Terminal) {
		t.renderer = nil
	}
}

// WithClipboard replaces the system clipboard used by /copy.
func WithClipboard(copyText func(string) error) Option {
	return func(t *Terminal) {
		t.copyText = copyText
	}
}

// New creates a Terminal reading stdin and writing markdown to stdout.
func New(p *agent.Pipeline, opts ...Option) *Terminal {
	t := &Terminal{
		pipeline: p,
		in:       os.Stdin,
		out:      os.Stdout,
		copyText: clipboard.WriteAll,
	}
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
		t.renderer = r
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run answers initialQuestion if given and then reads questions until EOF,
// /quit or /exit. Failed questions are reported and the loop continues.
func (t *Terminal) Run(ctx context.Context, initialQuestion string) error {
	if initialQuestion != "" {
		if err := t.Ask(ctx, initialQuestion); err != nil {
			t.printError(err)
		}
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "Question: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}
		if strings.HasPrefix(input, "/copy") {
			t.copyResult(strings.TrimSpace(strings.TrimPrefix(input, "/copy")))
			continue
		}

		if err := t.Ask(ctx, input); err != nil {
			t.printError(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return scanner.Err()
}

// Ask runs the pipeline for one question and prints each stage as it
// completes.
func (t *Terminal) Ask(ctx context.Context, question string) error {
	t.last = nil
	callbacks := agent.ProcessCallbacks{
		OnQuestionAnalysis: func(r analysis.Record) {
			t.println(statusStyle.Render(fmt.Sprintf("%s question, %d words, %s",
				r.QuestionType.Label(), r.WordCount, r.ComplexityLabel)))
		},
		OnStateChange: func(s session.State) {
			if status, ok := stateStatus[s]; ok {
				t.println(statusStyle.Render(status))
			}
			if t.renderer == nil && s == session.StateSolving {
				t.println(headerStyle.Render("## " + stageTitles[agent.Solution.Name]))
			}
		},
		OnFragment: func(name, fragment string) {
			if t.renderer == nil && name == agent.Solution.Name {
				t.print(fragment)
			}
		},
		OnAgentResult: func(name, text string) {
			if name == agent.Clarification.Name && agent.IsClear(text) {
				return
			}
			if t.renderer == nil && name == agent.Solution.Name {
				t.println("")
				return
			}
			t.printStage(name, text)
		},
	}

	run, err := t.pipeline.Run(ctx, question, callbacks)
	if err != nil {
		return err
	}
	t.last = run

	if run.NeedsClarification() {
		t.println(noteStyle.Render("Please rephrase the question with more detail and ask again."))
		return nil
	}
	if run.Comparison != nil {
		t.println(noteStyle.Render(fmt.Sprintf("Solution is %dx the length of the question. %s",
			run.Comparison.LengthRatio, run.Comparison.Style.Note())))
	}
	return nil
}

func (t *Terminal) printStage(name, text string) {
	title := stageTitles[name]
	body := text
	if t.renderer != nil {
		if rendered, err := t.renderer.Render(text); err == nil {
			body = rendered
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, headerStyle.Render("## "+title))
	fmt.Fprintln(t.out, strings.TrimRight(body, "\n"))
	fmt.Fprintln(t.out)
}

// copyResult copies the summary, or the solution when asked, of the last
// answered question.
func (t *Terminal) copyResult(which string) {
	if t.last == nil || t.last.State != session.StateDone {
		t.println(noteStyle.Render("Nothing to copy yet."))
		return
	}

	text := t.last.Summary
	switch which {
	case "", "summary":
	case "solution":
		text = t.last.Solution
	default:
		t.println(noteStyle.Render("Usage: /copy [summary|solution]"))
		return
	}

	if err := t.copyText(text); err != nil {
		t.printError(errors.Wrapf(err, "failed to copy to clipboard"))
		return
	}
	t.println(noteStyle.Render("Copied to clipboard."))
}

func (t *Terminal) printError(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, errors.ErrEmptyQuestion):
		msg = errors.ErrEmptyQuestion.Error()
	case errors.Is(err, errors.ErrEmptyGeneration):
		msg = "The model returned an empty answer, please try again."
	}
	t.println(errorStyle.Render("Error: ") + msg)
}

func (t *Terminal) print(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, s)
}

func (t *Terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}
