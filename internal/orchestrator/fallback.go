package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"aide/internal/llm"
	"aide/internal/models"
	"aide/pkg/logger"
)

// maxFallbackQueryLen truncates the search query built from the user's
// message; search backends choke on whole paragraphs.
const maxFallbackQueryLen = 200

// soundsUncertain reports whether the answer matches one of the
// configured hedging phrases. This is a heuristic; false positives and
// negatives are acceptable.
func soundsUncertain(answer string, phrases []string) bool {
	lower := strings.ToLower(answer)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func truncateQuery(q string) string {
	runes := []rune(strings.TrimSpace(q))
	if len(runes) <= maxFallbackQueryLen {
		return string(runes)
	}
	return string(runes[:maxFallbackQueryLen])
}

// maybeFallback runs the uncertainty-triggered search: when the model
// hedged without having used a tool, one web search is issued and the
// model is re-prompted with the raw results. It runs at most once per
// turn and never recurses into another hedging check.
func (o *Orchestrator) maybeFallback(ctx context.Context, provider llm.Provider, req *TurnRequest, msgs []models.Message, answer string, log *logger.Logger) (string, models.Usage, bool) {
	var noUsage models.Usage
	if o.search == nil || !o.uncertainty.Enabled {
		return "", noUsage, false
	}
	if !soundsUncertain(answer, o.uncertainty.Phrases) {
		return "", noUsage, false
	}

	query := truncateQuery(lastUserMessage(req.Messages))
	if query == "" {
		return "", noUsage, false
	}

	log.WithField("query", query).Info("hedged answer, searching the web")
	results, err := o.search.Search(ctx, query)
	if err != nil || len(results) == 0 {
		if err != nil {
			log.WithError(err).Warn("fallback search failed, keeping original answer")
		}
		return "", noUsage, false
	}

	retry := append(msgs,
		models.Message{Role: models.RoleAssistant, Content: answer},
		models.Message{Role: models.RoleUser, Content: fallbackPrompt(query, results)},
	)
	// no tool declarations here: this is a single forced answer round
	res, err := provider.Complete(ctx, &llm.CompletionRequest{
		Model:       req.Model,
		Messages:    retry,
		Temperature: req.Temperature,
	})
	if err != nil {
		log.WithError(err).Warn("fallback completion failed, keeping original answer")
		return "", noUsage, false
	}

	return renderSearchBlock(results) + "\n\n" + res.Text, res.Usage, true
}

func fallbackPrompt(query string, results []models.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I searched the web for %q and found:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	b.WriteString("Answer my original question using these results. Cite sources where relevant.")
	return b.String()
}

// renderSearchBlock formats raw search results for the UI so it does not
// have to re-derive them from the tool transcript.
func renderSearchBlock(results []models.SearchResult) string {
	var b strings.Builder
	b.WriteString("### Search results\n")
	for i, r := range results {
		source := r.Source
		if source == "" {
			source = "web"
		}
		fmt.Fprintf(&b, "%d. [%s](%s) (%s)\n", i+1, r.Title, r.URL, source)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
