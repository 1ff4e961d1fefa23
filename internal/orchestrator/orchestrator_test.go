package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/config"
	"aide/internal/llm"
	"aide/internal/models"
	"aide/internal/tools"
)

// scriptedProvider replays canned results and records what it was asked.
type scriptedProvider struct {
	mu       sync.Mutex
	script   []*llm.CompletionResult
	requests []*llm.CompletionRequest
	calls    int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	idx := p.calls
	p.calls++
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	return p.script[idx], nil
}

func toolCall(id, name, args string) models.ToolCall {
	return models.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

type namedTool struct {
	name    string
	execute func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (n namedTool) Declaration() mcp.Tool {
	return mcp.NewTool(n.name, mcp.WithDescription("test tool"))
}

func (n namedTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return n.execute(ctx, args)
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	results []models.SearchResult
	err     error
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]models.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeLedger struct {
	mu    sync.Mutex
	total models.Usage
}

func (f *fakeLedger) RecordUsage(_ context.Context, _, _ string, u models.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total.Add(u)
	return nil
}

func uncertaintyOn() config.UncertaintyConfig {
	return config.UncertaintyConfig{Enabled: true, Phrases: config.DefaultUncertaintyPhrases()}
}

func turnReq(content string) *TurnRequest {
	return &TurnRequest{
		UserID: "u1",
		Model:  "test-model",
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: "You are helpful."},
			{Role: models.RoleUser, Content: content},
		},
	}
}

func TestLoopTerminatesAtCap(t *testing.T) {
	echo := namedTool{name: "echo", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}}
	provider := &scriptedProvider{script: []*llm.CompletionResult{
		{ToolCalls: []models.ToolCall{toolCall("c", "echo", `{}`)}, Text: "still working"},
	}}
	o := New(tools.NewRegistry(echo), nil, nil, config.UncertaintyConfig{})

	text, err := o.RunTurn(context.Background(), provider, turnReq("loop forever"))
	require.NoError(t, err)
	assert.Equal(t, MaxIterations, provider.calls)
	assert.Equal(t, "still working", text)
}

func TestToolErrorIsSerializedNotRaised(t *testing.T) {
	broken := namedTool{name: "broken", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("backend down")
	}}
	provider := &scriptedProvider{script: []*llm.CompletionResult{
		{ToolCalls: []models.ToolCall{toolCall("c1", "broken", `{}`)}},
		{Text: "Sorry, the backend is down right now."},
	}}
	o := New(tools.NewRegistry(broken), nil, nil, config.UncertaintyConfig{})

	text, err := o.RunTurn(context.Background(), provider, turnReq("do the thing"))
	require.NoError(t, err)
	assert.Equal(t, "Sorry, the backend is down right now.", text)

	// the second request must carry the serialized error as a tool message
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, models.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Contains(t, last.Content, "backend down")
}

func TestConcurrentCallsKeepOrder(t *testing.T) {
	slow := namedTool{name: "slow", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		time.Sleep(30 * time.Millisecond)
		return map[string]any{"which": "slow"}, nil
	}}
	fast := namedTool{name: "fast", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"which": "fast"}, nil
	}}
	provider := &scriptedProvider{script: []*llm.CompletionResult{
		{ToolCalls: []models.ToolCall{
			toolCall("a", "slow", `{}`),
			toolCall("b", "fast", `{}`),
		}},
		{Text: "done"},
	}}
	o := New(tools.NewRegistry(slow, fast), nil, nil, config.UncertaintyConfig{})

	_, err := o.RunTurn(context.Background(), provider, turnReq("race"))
	require.NoError(t, err)

	second := provider.requests[1]
	n := len(second.Messages)
	first, then := second.Messages[n-2], second.Messages[n-1]
	assert.Equal(t, "a", first.ToolCallID)
	assert.Contains(t, first.Content, "slow")
	assert.Equal(t, "b", then.ToolCallID)
	assert.Contains(t, then.Content, "fast")
}

func TestWebSearchPrefixesRenderedBlock(t *testing.T) {
	search := namedTool{name: "web_search", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"results": []models.SearchResult{
			{Title: "Go 1.24", URL: "https://go.dev/blog", Snippet: "released", Source: "go.dev"},
		}}, nil
	}}
	provider := &scriptedProvider{script: []*llm.CompletionResult{
		{ToolCalls: []models.ToolCall{toolCall("s1", "web_search", `{"query":"go release"}`)}},
		{Text: "Go 1.24 is out."},
	}}
	o := New(tools.NewRegistry(search), nil, nil, config.UncertaintyConfig{})

	text, err := o.RunTurn(context.Background(), provider, turnReq("latest go release?"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "### Search results"), text)
	assert.Contains(t, text, "go.dev")
	assert.Contains(t, text, "Go 1.24 is out.")
}

func TestUncertaintyFallbackRunsExactlyOnce(t *testing.T) {
	provider := &scriptedProvider{script: []*llm.CompletionResult{
		{Text: "I don't know what happened there.", Usage: models.Usage{InputTokens: 10, OutputTokens: 5}},
		// the replacement answer hedges again; no second search may happen
		{Text: "I don't know for sure, but reports say it shipped.", Usage: models.Usage{InputTokens: 20, OutputTokens: 8}},
	}}
	search := &fakeSearch{results: []models.SearchResult{
		{Title: "Shipped", URL: "https://news.example.com/a", Snippet: "it shipped", Source: "news.example.com"},
	}}
	ledger := &fakeLedger{}
	o := New(tools.NewRegistry(), search, ledger, uncertaintyOn())

	longQuestion := strings.Repeat("what happened with the launch? ", 20)
	text, err := o.RunTurn(context.Background(), provider, turnReq(longQuestion))
	require.NoError(t, err)

	require.Len(t, search.queries, 1)
	assert.LessOrEqual(t, len([]rune(search.queries[0])), 200)
	assert.Equal(t, 2, provider.calls)
	assert.True(t, strings.HasPrefix(text, "### Search results"))
	assert.Contains(t, text, "reports say it shipped")

	// fallback round must not offer tools
	assert.Empty(t, provider.requests[1].Tools)
	// both rounds accounted
	assert.Equal(t, 30, ledger.total.InputTokens)
	assert.Equal(t, 13, ledger.total.OutputTokens)
}

func TestNoFallbackAfterToolUse(t *testing.T) {
	search := &fakeSearch{results: []models.SearchResult{{Title: "x", URL: "https://x"}}}
	echo := namedTool{name: "echo", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}}
	provider := &scriptedProvider{script: []*llm.CompletionResult{
		{ToolCalls: []models.ToolCall{toolCall("c", "echo", `{}`)}},
		{Text: "I don't know, the tool was unhelpful."},
	}}
	o := New(tools.NewRegistry(echo), search, nil, uncertaintyOn())

	_, err := o.RunTurn(context.Background(), provider, turnReq("hmm"))
	require.NoError(t, err)
	assert.Empty(t, search.queries)
}

func TestFallbackSearchFailureKeepsOriginalAnswer(t *testing.T) {
	provider := &scriptedProvider{script: []*llm.CompletionResult{
		{Text: "I don't know."},
	}}
	search := &fakeSearch{err: fmt.Errorf("search offline")}
	o := New(tools.NewRegistry(), search, nil, uncertaintyOn())

	text, err := o.RunTurn(context.Background(), provider, turnReq("question"))
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", text)
	assert.Equal(t, 1, provider.calls)
}

func TestCancellationSuppressesOutput(t *testing.T) {
	provider := &scriptedProvider{script: []*llm.CompletionResult{{Text: "never seen"}}}
	o := New(tools.NewRegistry(), nil, nil, config.UncertaintyConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	text, err := o.RunTurn(ctx, provider, turnReq("stop"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, text)
}
