package provider

import "encoding/json"

// Event is an item on a query's event stream. The stream carries assistant
// text and tool activity as they happen and ends with exactly one Result or
// ErrorEvent, after which the channel is closed.
type Event interface {
	isEvent()
}

// AssistantText carries a chunk of assistant output text.
type AssistantText struct {
	Text string
}

// ToolUse reports a tool invocation made by the agent.
type ToolUse struct {
	Name  string
	Input json.RawMessage
}

// ToolResult reports the outcome of a tool invocation.
type ToolResult struct {
	Name    string
	Content string
	IsError bool
}

// Result terminates a successful stream with the final output and usage.
type Result struct {
	Output    string
	TokensIn  int64
	TokensOut int64
	ToolCalls int
	CostUSD   float64
}

// ErrorEvent terminates a failed stream.
type ErrorEvent struct {
	Err error
}

func (AssistantText) isEvent() {}
func (ToolUse) isEvent()       {}
func (ToolResult) isEvent()    {}
func (Result) isEvent()        {}
func (ErrorEvent) isEvent()    {}
