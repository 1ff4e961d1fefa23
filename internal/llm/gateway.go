package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"aide/internal/config"
	"aide/internal/errs"
	"aide/internal/models"
)

// Gateway talks to the hosted multi-model gateway, which speaks the OpenAI
// chat-completion shape with native structured tool calling.
type Gateway struct {
	client *openai.Client
	model  string
}

// NewGateway creates a Gateway client. An empty BaseURL uses the SDK default.
func NewGateway(cfg config.GatewayConfig) *Gateway {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Gateway{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Name identifies the variant.
func (g *Gateway) Name() string { return "gateway" }

// Complete runs one completion. When a model rejects the tools parameter with
// a client error the request is retried once without tools instead of failing
// the turn.
func (g *Gateway) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	openaiReq := g.toOpenAIRequest(req)

	resp, err := g.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil && len(openaiReq.Tools) > 0 && isToolsUnsupported(err) {
		openaiReq.Tools = nil
		resp, err = g.client.CreateChatCompletion(ctx, openaiReq)
	}
	if err != nil {
		return nil, &errs.ProviderError{Provider: g.Name(), Err: err}
	}

	return g.toCompletionResult(&resp), nil
}

func (g *Gateway) toOpenAIRequest(req *CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Arguments),
				},
			})
		}
		messages = append(messages, m)
	}

	model := req.Model
	if model == "" {
		model = g.model
	}

	out := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Tools:    ConvertMCPToolsToOpenAI(req.Tools),
	}
	// zero means "not set"; the server default applies
	if req.Temperature > 0 {
		temp := req.Temperature
		out.Temperature = &temp
	}
	return out
}

func (g *Gateway) toCompletionResult(resp *openai.ChatCompletionResponse) *CompletionResult {
	result := &CompletionResult{
		Usage: models.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return result
	}

	msg := resp.Choices[0].Message
	result.Text = msg.Content
	for _, call := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}
	return result
}

// isToolsUnsupported reports whether err looks like a client-side rejection
// of the tools parameter, as opposed to a transient failure.
func isToolsUnsupported(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.HTTPStatusCode != http.StatusBadRequest && apiErr.HTTPStatusCode != http.StatusNotFound {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "tool") || strings.Contains(msg, "function")
}

var _ Provider = (*Gateway)(nil)
