package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	gh "github.com/google/go-github/v80/github"
	"github.com/mark3labs/mcp-go/mcp"

	"aide/internal/config"
)

// Repository performs issue operations against GitHub. Every target repo
// must match one of the configured allowlist patterns; mutations report
// the affected resource ID and its canonical URL so the caller can
// render a confirmation.
type Repository struct {
	client   *gh.Client
	patterns []glob.Glob
}

var _ Handler = (*Repository)(nil)

func NewRepository(cfg config.RepositoryToolConfig) (*Repository, error) {
	patterns := make([]glob.Glob, 0, len(cfg.AllowedRepos))
	for _, p := range cfg.AllowedRepos {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad repository allowlist pattern %q: %w", p, err)
		}
		patterns = append(patterns, g)
	}

	client := gh.NewClient(nil)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	return &Repository{client: client, patterns: patterns}, nil
}

func (r *Repository) Declaration() mcp.Tool {
	return mcp.NewTool("repository_action",
		mcp.WithDescription("Operate on a source repository: create an issue, comment on an issue, or list open issues."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of: create_issue, comment_issue, list_issues."),
		),
		mcp.WithString("repo",
			mcp.Required(),
			mcp.Description("Target repository as owner/name."),
		),
		mcp.WithString("title", mcp.Description("Issue title (create_issue).")),
		mcp.WithString("body", mcp.Description("Issue or comment body.")),
		mcp.WithString("number", mcp.Description("Issue number (comment_issue).")),
	)
}

func (r *Repository) allowed(repo string) bool {
	for _, g := range r.patterns {
		if g.Match(repo) {
			return true
		}
	}
	return false
}

func splitRepo(repo string) (string, string, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo must be owner/name, got %q", repo)
	}
	return parts[0], parts[1], nil
}

func (r *Repository) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	action, err := stringArg(args, "action")
	if err != nil {
		return nil, err
	}
	repo, err := stringArg(args, "repo")
	if err != nil {
		return nil, err
	}
	if !r.allowed(repo) {
		return nil, fmt.Errorf("repository %q is not in the allowed list", repo)
	}
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	switch action {
	case "create_issue":
		title, err := stringArg(args, "title")
		if err != nil {
			return nil, err
		}
		body := optionalStringArg(args, "body")
		issue, _, err := r.client.Issues.Create(ctx, owner, name, &gh.IssueRequest{
			Title: gh.Ptr(title),
			Body:  gh.Ptr(body),
		})
		if err != nil {
			return nil, fmt.Errorf("create issue in %s: %w", repo, err)
		}
		return map[string]any{
			"id":  issue.GetNumber(),
			"url": issue.GetHTMLURL(),
		}, nil

	case "comment_issue":
		numStr, err := stringArg(args, "number")
		if err != nil {
			return nil, err
		}
		var number int
		if _, err := fmt.Sscanf(numStr, "%d", &number); err != nil {
			return nil, fmt.Errorf("issue number must be numeric, got %q", numStr)
		}
		body, err := stringArg(args, "body")
		if err != nil {
			return nil, err
		}
		comment, _, err := r.client.Issues.CreateComment(ctx, owner, name, number, &gh.IssueComment{
			Body: gh.Ptr(body),
		})
		if err != nil {
			return nil, fmt.Errorf("comment on %s#%d: %w", repo, number, err)
		}
		return map[string]any{
			"id":  comment.GetID(),
			"url": comment.GetHTMLURL(),
		}, nil

	case "list_issues":
		issues, _, err := r.client.Issues.ListByRepo(ctx, owner, name, &gh.IssueListByRepoOptions{
			State:       "open",
			ListOptions: gh.ListOptions{PerPage: 20},
		})
		if err != nil {
			return nil, fmt.Errorf("list issues in %s: %w", repo, err)
		}
		items := make([]map[string]any, 0, len(issues))
		for _, is := range issues {
			if is.IsPullRequest() {
				continue
			}
			items = append(items, map[string]any{
				"number": is.GetNumber(),
				"title":  is.GetTitle(),
				"url":    is.GetHTMLURL(),
			})
		}
		return map[string]any{"issues": items}, nil

	default:
		return nil, fmt.Errorf("unsupported action %q", action)
	}
}
