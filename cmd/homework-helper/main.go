package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/m4xw311/homework-helper/agent"
	"github.com/m4xw311/homework-helper/agent/mcp"
	"github.com/m4xw311/homework-helper/agent/terminal"
	"github.com/m4xw311/homework-helper/agent/web"
	"github.com/m4xw311/homework-helper/config"
	"github.com/m4xw311/homework-helper/llm"
	"github.com/m4xw311/homework-helper/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

type options struct {
	configPath string
	provider   string
	model      string
	addr       string
	plain      bool
}

// app is everything a subcommand needs, built once per process.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   llm.LLMClient
	pipeline *agent.Pipeline
}

func (a *app) Close() {
	if err := a.client.Close(); err != nil {
		a.logger.Warn("failed to close LLM client", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func setup(ctx context.Context, opts *options) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.provider != "" {
		cfg.LLMClient = opts.provider
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	client, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("LLM client ready",
		zap.String("provider", cfg.LLMClient),
		zap.String("model", cfg.Model),
		zap.Bool("parallel_review", cfg.ParallelReview),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		pipeline: agent.NewPipeline(cfg, client, logger),
	}, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "homework-helper",
		Short: "Answer homework questions with a team of LLM agents",
		Long: `Answer homework questions with a team of LLM agents.

Every question is checked for clarity, solved step by step, reviewed
for quality and summarized into a concise answer.

Providers: cerebras (default), openai, anthropic, gemini, bedrock, mock

Examples:
  homework-helper                         # serve the web page on :8501
  homework-helper ask "What is gravity?"
  homework-helper ask                     # interactive
  homework-helper mcp                     # MCP server on stdio`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (defaults to ~/.homework-helper/config.yaml and ./.homework-helper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.provider, "llm", "", "LLM provider, overrides the config file")
	rootCmd.PersistentFlags().StringVarP(&opts.model, "model", "m", "", "Model name, overrides the config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web page and API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	serveCmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address, overrides server.addr")

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question in the terminal, or start an interactive session",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), opts, strings.Join(args, " "))
		},
	}
	askCmd.Flags().BoolVar(&opts.plain, "plain", false, "Stream plain text instead of rendered markdown")

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask_homework_question tool over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context(), opts)
		},
	}

	rootCmd.AddCommand(serveCmd, askCmd, mcpCmd)
	return rootCmd
}

func runServe(ctx context.Context, opts *options) error {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := web.NewServer(a.pipeline, a.cfg.Server, a.logger)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}

func runAsk(ctx context.Context, opts *options, question string) error {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	var termOpts []terminal.Option
	if opts.plain {
		termOpts = append(termOpts, terminal.WithPlainText())
	}
	term := terminal.New(a.pipeline, termOpts...)
	if question != "" {
		return term.Ask(ctx, question)
	}
	fmt.Println("Homework Helper is ready. Type your question, /copy to copy the last answer, /quit to leave.")
	return term.Run(ctx, "")
}

func runMCP(ctx context.Context, opts *options) error {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	return mcp.NewServer(a.pipeline, version, a.logger).Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
