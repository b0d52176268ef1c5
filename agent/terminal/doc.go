// Package terminal answers homework questions from the command line.
//
// A Terminal reads one question per line and runs each through the agent
// pipeline on its own; nothing from an earlier question is sent with the
// next. Stage results are rendered as markdown with glamour, or streamed as
// plain text with WithPlainText.
//
// # Usage
//
//	pipeline := agent.NewPipeline(cfg, client, logger)
//	term := terminal.New(pipeline)
//	err := term.Run(ctx, initialQuestion)
//
// # Commands
//
//   - /copy [summary|solution] copies a part of the last answer to the clipboard
//   - /quit, /exit end the session
package terminal
