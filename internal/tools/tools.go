// Package tools declares the callable tools offered to the model and
// executes their invocations. A tool result is always a JSON document,
// `{"success": true, ...}` or `{"error": "..."}`; execution never
// returns an error to the calling loop, so the model can read the
// failure and recover.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"aide/internal/errs"
	"aide/pkg/logger"
)

// Handler is one callable tool.
type Handler interface {
	Declaration() mcp.Tool
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry holds the registered tools in declaration order.
type Registry struct {
	order    []string
	handlers map[string]Handler
	log      *logger.Logger
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		log:      logger.New("tools", "", ""),
	}
	for _, h := range handlers {
		name := h.Declaration().Name
		if _, dup := r.handlers[name]; !dup {
			r.order = append(r.order, name)
		}
		r.handlers[name] = h
	}
	return r
}

// Declarations returns the tool list passed to the provider.
func (r *Registry) Declarations() []mcp.Tool {
	decls := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.handlers[name].Declaration())
	}
	return decls
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Execute runs one tool call and serializes the outcome. Failures are
// folded into the result document instead of being raised.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) json.RawMessage {
	h, ok := r.handlers[name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", name))
	}
	r.log.WithField("tool", name).WithPayload(args).Debug("executing tool")

	result, err := h.Execute(ctx, args)
	if err != nil {
		terr := &errs.ToolError{Tool: name, Err: err}
		r.log.WithError(terr).WithField("tool", name).Warn("tool execution failed")
		return errorResult(err.Error())
	}

	if result == nil {
		result = map[string]any{}
	}
	if _, has := result["success"]; !has {
		result["success"] = true
	}
	b, err := json.Marshal(result)
	if err != nil {
		return errorResult(fmt.Sprintf("encode result of %q: %v", name, err))
	}
	return b
}

func errorResult(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

// stringArg extracts a required string parameter.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

// optionalStringArg extracts an optional string parameter.
func optionalStringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
