package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"aide/internal/config"
	"aide/internal/errs"
	"aide/internal/models"
)

// Workflow executes a named remote workflow over JSON-RPC instead of a raw
// completion. Remote workflows disagree on the name of their input field, so
// the user message is sent under several redundant keys; the reply is mined
// for the first usable text field. Tool declarations are ignored: a workflow
// is itself the capability.
type Workflow struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	workflow   string
}

// NewWorkflow creates a Workflow client.
func NewWorkflow(cfg config.WorkflowConfig) *Workflow {
	return &Workflow{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		workflow:   cfg.Workflow,
	}
}

// Name identifies the variant.
func (w *Workflow) Name() string { return "workflow" }

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Complete sends the last user message to the remote workflow and normalizes
// whatever shape comes back into plain text. Workflows report no token
// counts, so usage stays zero and the ledger treats it as a no-op.
func (w *Workflow) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	message := lastUserMessage(req.Messages)

	rpcReq := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params: rpcParams{
			Name:      w.workflow,
			Arguments: redundantArguments(message),
		},
	}

	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, &errs.ProviderError{Provider: w.Name(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &errs.ProviderError{Provider: w.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errs.ProviderError{Provider: w.Name(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.ProviderError{Provider: w.Name(), Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &errs.ProviderError{
			Provider: w.Name(),
			Err:      fmt.Errorf("workflow endpoint returned status %d", resp.StatusCode),
		}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, &errs.ProviderError{Provider: w.Name(), Err: fmt.Errorf("invalid JSON-RPC response: %w", err)}
	}
	if rpcResp.Error != nil {
		return nil, &errs.ProviderError{
			Provider: w.Name(),
			Err:      fmt.Errorf("workflow error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message),
		}
	}

	return &CompletionResult{Text: ExtractWorkflowText(rpcResp.Result)}, nil
}

// redundantArguments wraps the message under every input key a remote
// workflow is known to look at, plus a nested data/items envelope.
func redundantArguments(message string) map[string]any {
	return map[string]any{
		"message": message,
		"query":   message,
		"input":   message,
		"text":    message,
		"data": map[string]any{
			"items": []map[string]any{{"message": message}},
		},
	}
}

func lastUserMessage(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// ExtractWorkflowText pulls the first usable text field out of a tolerant set
// of result shapes: content[].text, then output/result/response/data (string
// or nested object), then the stringified JSON as a last resort.
func ExtractWorkflowText(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(result, &asString); err == nil {
		return asString
	}

	var asObject map[string]any
	if err := json.Unmarshal(result, &asObject); err != nil {
		return string(result)
	}

	if text := contentText(asObject["content"]); text != "" {
		return text
	}
	for _, key := range []string{"output", "result", "response", "data"} {
		if text := valueText(asObject[key]); text != "" {
			return text
		}
	}

	raw, err := json.Marshal(asObject)
	if err != nil {
		return string(result)
	}
	return string(raw)
}

// contentText joins the text entries of a content[] list.
func contentText(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := entry["text"].(string); ok && text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return joinNonEmpty(parts)
}

// valueText extracts text from a string value or recurses one level into an
// object that itself carries one of the known keys.
func valueText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if text := contentText(t["content"]); text != "" {
			return text
		}
		for _, key := range []string{"output", "result", "response", "text"} {
			if s, ok := t[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func joinNonEmpty(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n" + p
	}
	return out
}

var _ Provider = (*Workflow)(nil)
