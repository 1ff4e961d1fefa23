package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	olla "github.com/ollama/ollama/api"

	"aide/internal/config"
	"aide/internal/errs"
	"aide/internal/models"
)

// SelfHosted talks to a self-hosted OpenAI-compatible server through the
// Ollama client. The server has no native structured tool calling, so tools
// are negotiated through a prompt protocol: the tool list is injected as a
// system message and the response is scanned for a {"tool","params"} block.
type SelfHosted struct {
	client *olla.Client
	model  string
}

// NewSelfHosted creates a SelfHosted client. An empty baseURL defaults to the
// local Ollama address.
func NewSelfHosted(cfg config.SelfHostedConfig) (*SelfHosted, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	hc := &http.Client{Timeout: 120 * time.Second}
	return &SelfHosted{
		client: olla.NewClient(parsedURL, hc),
		model:  cfg.Model,
	}, nil
}

// Name identifies the variant.
func (s *SelfHosted) Name() string { return "selfhosted" }

// Complete runs one completion. A parsed tool call is removed from the
// user-visible text and surfaced as a structured ToolCall with a synthesized
// ID, matching the shape native providers return.
func (s *SelfHosted) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	ollamaReq := s.toOllamaRequest(req)

	var final *olla.ChatResponse
	stream := false
	ollamaReq.Stream = &stream

	err := s.client.Chat(ctx, ollamaReq, func(resp olla.ChatResponse) error {
		final = &resp
		return nil
	})
	if err != nil {
		return nil, &errs.ProviderError{Provider: s.Name(), Err: err}
	}
	if final == nil {
		return nil, &errs.ProviderError{Provider: s.Name(), Err: fmt.Errorf("empty response")}
	}

	result := &CompletionResult{
		Usage: models.Usage{
			InputTokens:  final.Metrics.PromptEvalCount,
			OutputTokens: final.Metrics.EvalCount,
		},
	}

	text := final.Message.Content
	if len(req.Tools) > 0 {
		call, cleaned, ok := ParseToolCall(text)
		text = cleaned
		if ok {
			result.ToolCalls = []models.ToolCall{{
				ID:        uuid.NewString(),
				Name:      call.Tool,
				Arguments: call.Params,
			}}
		}
	}
	result.Text = text
	return result, nil
}

func (s *SelfHosted) toOllamaRequest(req *CompletionRequest) *olla.ChatRequest {
	messages := make([]olla.Message, 0, len(req.Messages)+1)

	if len(req.Tools) > 0 {
		messages = append(messages, olla.Message{
			Role:    "system",
			Content: RenderToolProtocolPrompt(req.Tools),
		})
	}

	for _, msg := range req.Messages {
		role := string(msg.Role)
		content := msg.Content
		switch msg.Role {
		case models.RoleTool:
			// No tool role in the prompt protocol; feed results back as a
			// user-visible observation.
			role = "user"
			content = fmt.Sprintf("Tool result for %s:\n%s", msg.ToolCallID, msg.Content)
		case models.RoleAssistant:
			if content == "" && len(msg.ToolCalls) > 0 {
				// Reconstruct the protocol block the model emitted so the
				// transcript stays coherent across loop iterations.
				var sb strings.Builder
				for _, call := range msg.ToolCalls {
					sb.WriteString(fmt.Sprintf("{\"tool\": %q, \"params\": %s}\n", call.Name, string(call.Arguments)))
				}
				content = sb.String()
			}
		}
		messages = append(messages, olla.Message{Role: role, Content: content})
	}

	model := req.Model
	if model == "" {
		model = s.model
	}

	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}

	return &olla.ChatRequest{
		Model:    model,
		Messages: messages,
		Options:  options,
	}
}

var _ Provider = (*SelfHosted)(nil)
