// Package provider runs agent queries against the Anthropic API and streams
// their progress back to the orchestrator.
package provider

import "context"

// QueryRequest describes a single agent query.
type QueryRequest struct {
	// SystemPrompt is the system message for the conversation.
	SystemPrompt string
	// Prompt is the initial user message.
	Prompt string
	// WorkDir is the directory tools operate in.
	WorkDir string
	// Model overrides the client's default model when non-empty.
	Model string
	// AllowedTools restricts the tool set by name. Empty means all tools.
	AllowedTools []string
	// MaxIterations caps the number of API round trips (0 = default).
	MaxIterations int
}

// Provider executes agent queries. Implementations must close the returned
// channel after emitting a terminal Result or ErrorEvent, and must stop
// promptly when ctx is cancelled.
type Provider interface {
	ExecuteQuery(ctx context.Context, req QueryRequest) (<-chan Event, error)
}
