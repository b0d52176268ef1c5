package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/m4xw311/homework-helper/agent"
	"github.com/m4xw311/homework-helper/errors"
	"github.com/m4xw311/homework-helper/session"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const ToolName = "ask_homework_question"

// AskParams are the arguments of the ask_homework_question tool.
type AskParams struct {
	Question string `json:"question" jsonschema:"the homework question to answer"`
}

// Server exposes the pipeline as an MCP tool.
type Server struct {
	pipeline *agent.Pipeline
	logger   *zap.Logger
	server   *mcpsdk.Server
}

// NewServer builds the MCP server and registers its tool.
func NewServer(p *agent.Pipeline, version string, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: p,
		logger:   logger,
		server:   mcpsdk.NewServer(&mcpsdk.Implementation{Name: "homework-helper", Version: version}, nil),
	}
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name: ToolName,
		Description: "Answer a homework question. The question is first checked for clarity; " +
			"a clear question gets a concise answer, a detailed solution and a quality review.",
	}, s.ask)
	return s
}

// Run serves over stdin and stdout until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	if err := s.server.Run(ctx, mcpsdk.NewStdioTransport()); err != nil && ctx.Err() == nil {
		return errors.Wrapf(err, "MCP server failed")
	}
	return nil
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, t)
}

// ask runs the pipeline for one tool call. Pipeline errors become tool
// results flagged IsError so the client sees the message.
func (s *Server) ask(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[AskParams]) (*mcpsdk.CallToolResultFor[any], error) {
	run, err := s.pipeline.Run(ctx, params.Arguments.Question, agent.ProcessCallbacks{})
	if err != nil {
		s.logger.Warn("tool call failed", zap.String("run_id", run.ID), zap.Error(err))
		return &mcpsdk.CallToolResultFor[any]{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: errorText(err)}},
			IsError: true,
		}, nil
	}
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: FormatRun(run)}},
	}, nil
}

func errorText(err error) string {
	switch {
	case errors.Is(err, errors.ErrEmptyQuestion):
		return errors.ErrEmptyQuestion.Error()
	case errors.Is(err, errors.ErrEmptyGeneration):
		return errors.ErrEmptyGeneration.Error()
	default:
		return err.Error()
	}
}

// FormatRun renders a finished run as markdown.
func FormatRun(run *session.Run) string {
	if run.NeedsClarification() {
		return "## Clarification Needed\n\n" + run.Clarification + "\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Concise Answer\n\n%s\n\n", run.Summary)
	fmt.Fprintf(&sb, "## Detailed Solution\n\n%s\n\n", run.Solution)
	fmt.Fprintf(&sb, "## Quality Review\n\n%s\n", run.Review)
	if run.Comparison != nil {
		fmt.Fprintf(&sb, "\n_Question type: %s. Answer is %dx the length of the question. %s_\n",
			run.QuestionAnalysis.QuestionType.Label(), run.Comparison.LengthRatio, run.Comparison.Style.Note())
	}
	return sb.String()
}
