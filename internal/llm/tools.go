package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	openai "github.com/meguminnnnnnnnn/go-openai"
)

// ConvertMCPToolsToOpenAI converts tool declarations to the function
// definition list required by the OpenAI chat-completion shape.
func ConvertMCPToolsToOpenAI(tools []mcp.Tool) []openai.Tool {
	openAITools := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		openAITools = append(openAITools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  convertMCPParamsToOpenAISchema(tool.InputSchema),
			},
		})
	}
	return openAITools
}

// convertMCPParamsToOpenAISchema converts mcp.ToolInputSchema to the JSON
// schema map the OpenAI shape expects.
func convertMCPParamsToOpenAISchema(mcpParams mcp.ToolInputSchema) map[string]interface{} {
	if len(mcpParams.Properties) == 0 {
		return nil
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": mcpParams.Properties,
		"required":   mcpParams.Required,
	}
}

// RenderToolProtocolPrompt builds the system-prompt fragment that teaches a
// provider without native tool calling how to request a tool. The model is
// told to answer with a fenced JSON block {"tool": ..., "params": ...} when
// it wants a capability, and with plain text otherwise.
func RenderToolProtocolPrompt(tools []mcp.Tool) string {
	var sb strings.Builder
	sb.WriteString("You can use external tools. The available tools are:\n\n")
	for _, tool := range tools {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			schema = []byte("{}")
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n  parameters: %s\n", tool.Name, tool.Description, schema))
	}
	sb.WriteString("\nTo call a tool, reply with ONLY a fenced code block containing a JSON object:\n")
	sb.WriteString("```json\n{\"tool\": \"<tool name>\", \"params\": { ... }}\n```\n")
	sb.WriteString("If no tool is needed, answer the user directly in plain text and never mention this protocol.")
	return sb.String()
}
