package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/config"
	"aide/internal/models"
)

func searchTool() mcp.Tool {
	return mcp.NewTool("web_search",
		mcp.WithDescription("Search the web."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query.")),
	)
}

func TestGatewayCompletePassesToolsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		tools, _ := req["tools"].([]any)
		require.Len(t, tools, 1)

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "resp-1",
			"model": "test-model",
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call-1",
						"type": "function",
						"function": map[string]any{
							"name":      "web_search",
							"arguments": `{"query":"golang"}`,
						},
					}},
				},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	g := NewGateway(config.GatewayConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "test-model"})
	result, err := g.Complete(context.Background(), &CompletionRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "find golang news"}},
		Tools:    []mcp.Tool{searchTool()},
	})
	require.NoError(t, err)

	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call-1", result.ToolCalls[0].ID)
	assert.Equal(t, "web_search", result.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"golang"}`, string(result.ToolCalls[0].Arguments))
	assert.Equal(t, 12, result.Usage.InputTokens)
	assert.Equal(t, 3, result.Usage.OutputTokens)
}

func TestGatewayRetriesOnceWithoutToolsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if calls.Add(1) == 1 {
			require.Contains(t, req, "tools")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"message": "this model does not support tool use",
					"type":    "invalid_request_error",
				},
			})
			return
		}

		assert.NotContains(t, req, "tools")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "resp-2",
			"choices": []map[string]any{{
				"message": map[string]any{"role": "assistant", "content": "plain answer"},
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 2},
		})
	}))
	defer srv.Close()

	g := NewGateway(config.GatewayConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "m"})
	result, err := g.Complete(context.Background(), &CompletionRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Tools:    []mcp.Tool{searchTool()},
	})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", result.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGatewayTemperatureZeroOmitted(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		bodies = append(bodies, req)

		json.NewEncoder(w).Encode(map[string]any{
			"id": "resp-3",
			"choices": []map[string]any{{
				"message": map[string]any{"role": "assistant", "content": "ok"},
			}},
		})
	}))
	defer srv.Close()

	g := NewGateway(config.GatewayConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "m"})

	_, err := g.Complete(context.Background(), &CompletionRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), &CompletionRequest{
		Messages:    []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Temperature: 0.7,
	})
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.NotContains(t, bodies[0], "temperature")
	assert.InDelta(t, 0.7, bodies[1]["temperature"], 0.001)
}

func TestNewProviderClosedVariantSet(t *testing.T) {
	cfg := config.ProvidersConfig{}

	for _, kind := range []models.ProviderKind{models.ProviderGateway, models.ProviderSelfHosted, models.ProviderWorkflow} {
		p, err := NewProvider(models.AgentConfig{Provider: kind}, cfg)
		require.NoError(t, err, "variant %s", kind)
		assert.NotNil(t, p)
	}

	_, err := NewProvider(models.AgentConfig{Provider: "mystery"}, cfg)
	assert.Error(t, err)
}
