package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"aide/internal/config"
	"aide/pkg/httpclient"
)

// Deployment talks to an internal deployment service over REST with a
// bearer credential. Mutating actions echo back the deployment ID and
// its canonical URL.
type Deployment struct {
	baseURL string
	token   string
	client  *httpclient.Client
}

var _ Handler = (*Deployment)(nil)

func NewDeployment(cfg config.DeploymentToolConfig, client *httpclient.Client) *Deployment {
	return &Deployment{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  client,
	}
}

func (d *Deployment) Declaration() mcp.Tool {
	return mcp.NewTool("deployment_action",
		mcp.WithDescription("Trigger a deployment, check its status, or roll it back."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of: trigger, status, rollback."),
		),
		mcp.WithString("service", mcp.Description("Service to deploy (trigger).")),
		mcp.WithString("environment", mcp.Description("Target environment (trigger).")),
		mcp.WithString("id", mcp.Description("Deployment ID (status, rollback).")),
	)
}

type deploymentResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (d *Deployment) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	action, err := stringArg(args, "action")
	if err != nil {
		return nil, err
	}

	switch action {
	case "trigger":
		service, err := stringArg(args, "service")
		if err != nil {
			return nil, err
		}
		env := optionalStringArg(args, "environment")
		if env == "" {
			env = "staging"
		}
		payload := map[string]string{"service": service, "environment": env}
		resp, err := d.call(ctx, http.MethodPost, "/api/deployments", payload)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": resp.ID, "url": resp.URL, "status": resp.Status}, nil

	case "status":
		id, err := stringArg(args, "id")
		if err != nil {
			return nil, err
		}
		resp, err := d.call(ctx, http.MethodGet, "/api/deployments/"+id, nil)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": resp.ID, "url": resp.URL, "status": resp.Status}, nil

	case "rollback":
		id, err := stringArg(args, "id")
		if err != nil {
			return nil, err
		}
		resp, err := d.call(ctx, http.MethodPost, "/api/deployments/"+id+"/rollback", nil)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": resp.ID, "url": resp.URL, "status": resp.Status}, nil

	default:
		return nil, fmt.Errorf("unsupported action %q", action)
	}
}

func (d *Deployment) call(ctx context.Context, method, path string, payload any) (*deploymentResponse, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode deployment request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build deployment request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deployment request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read deployment response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("deployment service returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed deploymentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode deployment response: %w", err)
	}
	return &parsed, nil
}
