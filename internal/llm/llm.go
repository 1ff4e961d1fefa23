// Package llm normalizes the interchangeable completion providers behind one
// interface. The variant set is closed: a hosted multi-model gateway, a
// self-hosted OpenAI-compatible server, and a workflow-execution gateway.
// Response-shape sniffing is confined to each variant's own parser.
package llm

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"aide/internal/config"
	"aide/internal/models"
)

// CompletionRequest is the normalized request passed to any provider.
type CompletionRequest struct {
	Model       string
	Messages    []models.Message
	Tools       []mcp.Tool
	Temperature float32
}

// CompletionResult is the normalized provider response.
type CompletionResult struct {
	Text      string
	ToolCalls []models.ToolCall
	Usage     models.Usage
}

// Provider produces a chat completion from a message list. Implementations
// are state-free per call; all variant state lives in the constructor.
type Provider interface {
	// Name identifies the variant for logging and error reporting.
	Name() string
	// Complete runs one completion. Tool declarations are optional; variants
	// without native tool calling emulate them through a prompt protocol.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
}

// NewProvider builds the provider variant selected by the agent
// configuration. Per-agent endpoint/credential values override the
// corresponding process-level defaults.
func NewProvider(agent models.AgentConfig, cfg config.ProvidersConfig) (Provider, error) {
	switch agent.Provider {
	case models.ProviderGateway:
		gw := cfg.Gateway
		if agent.Endpoint != "" {
			gw.BaseURL = agent.Endpoint
		}
		if agent.Credential != "" {
			gw.APIKey = agent.Credential
		}
		return NewGateway(gw), nil
	case models.ProviderSelfHosted:
		sh := cfg.SelfHosted
		if agent.Endpoint != "" {
			sh.BaseURL = agent.Endpoint
		}
		return NewSelfHosted(sh)
	case models.ProviderWorkflow:
		wf := cfg.Workflow
		if agent.Endpoint != "" {
			wf.Endpoint = agent.Endpoint
		}
		if agent.Credential != "" {
			wf.APIKey = agent.Credential
		}
		return NewWorkflow(wf), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", agent.Provider)
	}
}
