// Package agent runs a homework question through four fixed LLM agents.
//
// Each agent is a prompt template (a system instruction plus a user message
// format) sent to the shared llm.LLMClient:
//
//   - Clarification decides whether the question can be answered as asked.
//   - Solution writes a step-by-step answer.
//   - QualityReview critiques the solution.
//   - ConciseSummary distills the solution into a short final answer.
//
// # Pipeline
//
// Pipeline.Run drives one question through the agents. The clarification
// text is checked for ClarityMarker, ignoring case. Without it the run stops
// in session.StateNeedsClarification and the remaining agents are never
// called. Otherwise the solution is generated and handed, unchanged, to the
// review and summary agents. Every stage drains its stream before the next
// one starts. With parallel_review set, review and summary run together.
//
// The first configuration or service error ends the run in
// session.StateFailed and is returned along with whatever was produced
// before it. A stage whose text is blank fails with errors.ErrEmptyGeneration.
//
// # Callbacks
//
// ProcessCallbacks let each presenter follow a run as it happens: state
// changes, the question analysis, streamed fragments and completed stage
// texts. The web server forwards them as websocket events and the terminal
// prints them.
//
// # Subpackages
//
// agent/web serves the browser page, the JSON API and the websocket stream.
//
// agent/terminal answers questions from the command line.
//
// agent/mcp exposes the pipeline as a tool over the Model Context Protocol.
package agent
