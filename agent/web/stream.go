package web

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/m4xw311/homework-helper/agent"
	"github.com/m4xw311/homework-helper/analysis"
	"github.com/m4xw311/homework-helper/session"
	"go.uber.org/zap"
)

// Event types sent over the websocket.
const (
	EventState    = "state"
	EventAnalysis = "analysis"
	EventFragment = "fragment"
	EventStage    = "stage"
	EventResult   = "result"
	EventError    = "error"
)

// Event is one message of a streamed run. Only the fields that belong to
// Type are set.
type Event struct {
	Type     string           `json:"type"`
	State    session.State    `json:"state,omitempty"`
	Stage    string           `json:"stage,omitempty"`
	Text     string           `json:"text,omitempty"`
	Analysis *analysis.Record `json:"analysis,omitempty"`
	Run      *session.Run     `json:"run,omitempty"`
	Status   int              `json:"status,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// eventWriter serializes writes to one connection. After the first failed
// write it cancels the run that feeds it and drops further events.
type eventWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	broken bool
}

func (e *eventWriter) send(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken {
		return
	}
	if err := e.conn.WriteJSON(ev); err != nil {
		e.broken = true
		e.cancel()
	}
}

// HandleStream upgrades to a websocket and answers each {"question": ...}
// message with a stream of events that ends in a result or error event.
// Questions on one connection are answered one after another.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var req askRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		out := &eventWriter{conn: conn, cancel: cancel}
		s.streamRun(ctx, req.Question, out)
		cancel()
		if out.broken {
			return
		}
	}
}

func (s *Server) streamRun(ctx context.Context, question string, out *eventWriter) {
	if !s.limiter.Allow() {
		out.send(Event{
			Type:   EventError,
			Status: http.StatusTooManyRequests,
			Error:  "too many questions, please wait a moment",
		})
		return
	}

	callbacks := agent.ProcessCallbacks{
		OnQuestionAnalysis: func(rec analysis.Record) {
			out.send(Event{Type: EventAnalysis, Stage: "question", Analysis: &rec})
		},
		OnStateChange: func(st session.State) {
			out.send(Event{Type: EventState, State: st})
		},
		OnFragment: func(stage, fragment string) {
			out.send(Event{Type: EventFragment, Stage: stage, Text: fragment})
		},
		OnAgentResult: func(stage, text string) {
			out.send(Event{Type: EventStage, Stage: stage, Text: text})
		},
	}

	run, err := s.pipeline.Run(ctx, question, callbacks)
	if err != nil {
		out.send(Event{Type: EventError, Status: statusFor(err), Error: messageFor(err)})
		return
	}
	if run.SolutionAnalysis != nil {
		out.send(Event{Type: EventAnalysis, Stage: agent.Solution.Name, Analysis: run.SolutionAnalysis})
	}
	out.send(Event{Type: EventResult, Run: run})
}
