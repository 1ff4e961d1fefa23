package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"aide/internal/config"
	"aide/internal/models"
	"aide/pkg/httpclient"
)

// WebSearch queries a SearxNG-compatible endpoint.
type WebSearch struct {
	baseURL    string
	maxResults int
	client     *httpclient.Client
}

var _ Handler = (*WebSearch)(nil)

func NewWebSearch(cfg config.SearchToolConfig, client *httpclient.Client) *WebSearch {
	max := cfg.MaxResults
	if max <= 0 {
		max = 5
	}
	return &WebSearch{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxResults: max,
		client:     client,
	}
}

func (w *WebSearch) Declaration() mcp.Tool {
	return mcp.NewTool("web_search",
		mcp.WithDescription("Search the web for current information. Use for questions about recent events or anything outside your training data."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query."),
		),
	)
}

func (w *WebSearch) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	results, err := w.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results}, nil
}

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs the query and returns the capped result list. It is also
// called directly by the uncertainty fallback.
func (w *WebSearch) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", w.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	var parsed searxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]models.SearchResult, 0, w.maxResults)
	for _, r := range parsed.Results {
		if len(results) >= w.maxResults {
			break
		}
		results = append(results, models.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Source:  domainOf(r.URL),
		})
	}
	return results, nil
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
