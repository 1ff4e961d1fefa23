// Package orchestrator runs one assistant turn: completion, tool
// execution, the uncertainty-triggered search fallback and best-effort
// usage accounting.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"aide/internal/config"
	"aide/internal/llm"
	"aide/internal/models"
	"aide/internal/tools"
	"aide/pkg/logger"
)

// MaxIterations caps provider round-trips per turn. Some providers keep
// emitting tool calls after reading a tool result, so the loop must be
// bounded.
const MaxIterations = 5

const exhaustedReply = "I couldn't finish working through the tools for this request. Please try rephrasing it."

// Searcher is the web-search capability used by the fallback. Nil means
// no fallback.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// UsageRecorder receives the turn's token totals. Nil disables
// accounting.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, userID, model string, u models.Usage) error
}

// Orchestrator drives turns against any provider variant.
type Orchestrator struct {
	registry    *tools.Registry
	search      Searcher
	ledger      UsageRecorder
	uncertainty config.UncertaintyConfig
}

func New(registry *tools.Registry, search Searcher, ledger UsageRecorder, uncertainty config.UncertaintyConfig) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		search:      search,
		ledger:      ledger,
		uncertainty: uncertainty,
	}
}

// TurnRequest is one user turn with its full message context.
type TurnRequest struct {
	UserID      string
	TurnID      string
	Model       string
	Temperature float32
	// Messages holds the system prompt, prior history and the new user
	// message, in order.
	Messages []models.Message
}

// lastUserMessage finds the query driving this turn.
func lastUserMessage(msgs []models.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// RunTurn executes the tool-calling loop and returns the final assistant
// text. Cancellation aborts with the context error and no partial
// output; tool failures never abort the turn.
func (o *Orchestrator) RunTurn(ctx context.Context, provider llm.Provider, req *TurnRequest) (string, error) {
	log := logger.New("orchestrator", req.TurnID, req.UserID)

	msgs := make([]models.Message, len(req.Messages))
	copy(msgs, req.Messages)
	decls := o.registry.Declarations()

	var totalUsage models.Usage
	var searchResults []models.SearchResult
	usedTool := false
	finalText := ""

	for i := 0; i < MaxIterations; i++ {
		res, err := provider.Complete(ctx, &llm.CompletionRequest{
			Model:       req.Model,
			Messages:    msgs,
			Tools:       decls,
			Temperature: req.Temperature,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			return "", fmt.Errorf("%s completion: %w", provider.Name(), err)
		}
		totalUsage.Add(res.Usage)

		if len(res.ToolCalls) == 0 {
			finalText = res.Text
			break
		}

		usedTool = true
		msgs = append(msgs, models.Message{
			Role:      models.RoleAssistant,
			Content:   res.Text,
			ToolCalls: res.ToolCalls,
		})

		results := o.executeCalls(ctx, res.ToolCalls, log)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		for j, call := range res.ToolCalls {
			if call.Name == "web_search" {
				searchResults = append(searchResults, parseSearchResults(results[j])...)
			}
			msgs = append(msgs, models.Message{
				Role:       models.RoleTool,
				Content:    string(results[j]),
				ToolCallID: call.ID,
			})
		}

		// cap reached with tool calls still coming: settle for the last
		// text rather than another round-trip
		if i == MaxIterations-1 {
			finalText = res.Text
			if finalText == "" {
				finalText = exhaustedReply
			}
			log.WithField("iterations", MaxIterations).Warn("tool loop cap reached")
		}
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if !usedTool {
		if replaced, u, ok := o.maybeFallback(ctx, provider, req, msgs, finalText, log); ok {
			finalText = replaced
			totalUsage.Add(u)
		}
	} else if len(searchResults) > 0 {
		finalText = renderSearchBlock(searchResults) + "\n\n" + finalText
	}

	if o.ledger != nil {
		if err := o.ledger.RecordUsage(ctx, req.UserID, req.Model, totalUsage); err != nil {
			log.WithError(err).Warn("usage accounting failed")
		}
	}
	return finalText, nil
}

// executeCalls runs the calls of one response concurrently and returns
// the results in call order.
func (o *Orchestrator) executeCalls(ctx context.Context, calls []models.ToolCall, log *logger.Logger) []json.RawMessage {
	results := make([]json.RawMessage, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			args, err := call.ArgsMap()
			if err != nil {
				msg, _ := json.Marshal(map[string]string{
					"error": fmt.Sprintf("malformed arguments for %q: %v", call.Name, err),
				})
				results[i] = msg
				return
			}
			log.WithField("tool", call.Name).Info("executing tool call")
			results[i] = o.registry.Execute(ctx, call.Name, args)
		}(i, call)
	}
	wg.Wait()
	return results
}

// parseSearchResults pulls the result list back out of a serialized
// web_search tool result.
func parseSearchResults(raw json.RawMessage) []models.SearchResult {
	var payload struct {
		Results []models.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload.Results
}
