package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/homework-helper/analysis"
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// State is a step of the question pipeline.
type State string

const (
	StateStart              State = "start"
	StateClarifying         State = "clarifying"
	StateNeedsClarification State = "needs_clarification"
	StateSolving            State = "solving"
	StateReviewing          State = "reviewing"
	StateSummarizing        State = "summarizing"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateNeedsClarification || s == StateDone || s == StateFailed
}

// Run holds everything produced for one submitted question. It lives only
// as long as the submission; nothing is carried over to the next one.
type Run struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	State    State  `json:"state"`

	Clarification string `json:"clarification,omitempty"`
	Solution      string `json:"solution,omitempty"`
	Review        string `json:"review,omitempty"`
	Summary       string `json:"summary,omitempty"`

	QuestionAnalysis analysis.Record      `json:"question_analysis"`
	SolutionAnalysis *analysis.Record     `json:"solution_analysis,omitempty"`
	Comparison       *analysis.Comparison `json:"comparison,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// New starts a run for question.
func New(question string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Question:  question,
		State:     StateStart,
		StartedAt: time.Now(),
	}
}

// NeedsClarification reports whether the run stopped after the clarity check.
func (r *Run) NeedsClarification() bool {
	return r.State == StateNeedsClarification
}

// Finish moves the run to a terminal state.
func (r *Run) Finish(s State) {
	r.State = s
	r.FinishedAt = time.Now()
}
