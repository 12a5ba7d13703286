package provider

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
)

// defaultMaxIterations caps API round trips when the request does not set one.
const defaultMaxIterations = 50

// AnthropicProvider executes queries against the Anthropic Messages API,
// running tool calls locally until the model ends its turn.
type AnthropicProvider struct {
	client *Client
}

// Verify AnthropicProvider implements Provider at compile time.
var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider backed by the given client.
func NewAnthropicProvider(client *Client) *AnthropicProvider {
	return &AnthropicProvider{client: client}
}

// Tracker returns the client's cumulative token tracker.
func (p *AnthropicProvider) Tracker() *TokenTracker {
	return p.client.Tracker()
}

// ExecuteQuery starts the agent loop for a request. Events are delivered on
// the returned channel, which is closed after a terminal Result or ErrorEvent.
func (p *AnthropicProvider) ExecuteQuery(ctx context.Context, req QueryRequest) (<-chan Event, error) {
	if req.WorkDir == "" {
		return nil, fmt.Errorf("query request missing work dir")
	}

	events := make(chan Event, 64)
	go p.run(ctx, req, events)
	return events, nil
}

// sendEvent delivers an event unless the context ends first. A consumer that
// stopped draining the channel must not wedge the loop goroutine forever.
func sendEvent(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// run drives the message/tool loop and always closes the event channel.
func (p *AnthropicProvider) run(ctx context.Context, req QueryRequest, events chan<- Event) {
	defer close(events)

	executor := NewRestrictedToolExecutor(req.WorkDir, req.AllowedTools)
	tools := ToolDefinitionsFor(req.AllowedTools)
	model := p.client.ResolveModel(req.Model)

	maxIterations := req.MaxIterations
	if maxIterations == 0 {
		maxIterations = defaultMaxIterations
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
	}

	var (
		tokensIn  int64
		tokensOut int64
		toolCalls int
	)

	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			sendEvent(ctx, events, ErrorEvent{Err: err})
			return
		}

		resp, err := p.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
			Model:     model,
			MaxTokens: 8192,
			System: []anthropic.TextBlockParam{
				{Text: req.SystemPrompt},
			},
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			sendEvent(ctx, events, ErrorEvent{Err: fmt.Errorf("API call failed: %w", err)})
			return
		}

		tokensIn += resp.Usage.InputTokens
		tokensOut += resp.Usage.OutputTokens
		p.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var textOutput string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				textOutput += variant.Text
				if !sendEvent(ctx, events, AssistantText{Text: variant.Text}) {
					return
				}
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				toolCalls++
				if !sendEvent(ctx, events, ToolUse{Name: variant.Name, Input: variant.Input}) {
					return
				}
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				result := executor.Execute(ctx, variant.Name, variant.Input)
				if !sendEvent(ctx, events, ToolResult{Name: variant.Name, Content: result.Content, IsError: result.IsError}) {
					return
				}

				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, result.Content, result.IsError))
			}
		}

		// Done when the model stops requesting tools
		if resp.StopReason == anthropic.StopReasonEndTurn {
			sendEvent(ctx, events, Result{
				Output:    textOutput,
				TokensIn:  tokensIn,
				TokensOut: tokensOut,
				ToolCalls: toolCalls,
				CostUSD:   p.client.Tracker().Cost(),
			})
			return
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	log.Printf("[provider] query hit iteration cap (%d) in %s", maxIterations, req.WorkDir)
	sendEvent(ctx, events, ErrorEvent{Err: fmt.Errorf("max iterations (%d) reached", maxIterations)})
}
