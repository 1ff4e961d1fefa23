// Package assembler builds the per-turn system prompt fragment out of
// the user profile, remembered facts and retrieved document chunks.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"aide/internal/config"
	"aide/internal/embedding"
	"aide/internal/knowledge"
	"aide/internal/models"
	"aide/pkg/logger"
)

// Searcher is the slice of the knowledge store the assembler needs.
type Searcher interface {
	ListMemories(ctx context.Context, userID string) ([]models.MemoryFact, error)
	VectorSearch(ctx context.Context, userID string, queryVec []float32, k int) ([]models.Chunk, error)
	KeywordSearch(ctx context.Context, userID, term string, k int) ([]models.Chunk, error)
}

var _ Searcher = (*knowledge.Store)(nil)

// Assembler produces the context block prepended to each turn.
type Assembler struct {
	store    Searcher
	embedder embedding.Embedding
	cfg      config.RetrievalConfig
	log      *logger.Logger
}

// New builds an assembler. embedder may be nil; retrieval then uses
// keyword search only.
func New(store Searcher, embedder embedding.Embedding, cfg config.RetrievalConfig) *Assembler {
	return &Assembler{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		log:      logger.New("assembler", "", ""),
	}
}

// priorityTypes are high-value and rare; they are always included ahead
// of keyword-matched memories.
var priorityTypes = map[models.MemoryType]bool{
	models.MemoryPersonalDetail: true,
	models.MemoryPreference:     true,
	models.MemoryFactType:       true,
}

// Assemble returns the system prompt fragment for the query. Retrieval
// failures degrade to smaller context rather than failing the turn, so
// the only errors surfaced are none at all.
func (a *Assembler) Assemble(ctx context.Context, userID, query string, profile *models.UserProfile) string {
	var sections []string

	if block := renderProfile(profile); block != "" {
		sections = append(sections, block)
	}
	if block := a.memoryBlock(ctx, userID, query); block != "" {
		sections = append(sections, block)
	}
	if block := a.documentBlock(ctx, userID, query); block != "" {
		sections = append(sections, block)
	}
	return strings.Join(sections, "\n\n")
}

func renderProfile(profile *models.UserProfile) string {
	if profile == nil || (profile.DisplayName == "" && profile.About == "") {
		return ""
	}
	var b strings.Builder
	b.WriteString("## User profile\n")
	if profile.DisplayName != "" {
		fmt.Fprintf(&b, "Name: %s\n", profile.DisplayName)
	}
	if profile.About != "" {
		fmt.Fprintf(&b, "About: %s\n", profile.About)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Assembler) memoryBlock(ctx context.Context, userID, query string) string {
	facts, err := a.store.ListMemories(ctx, userID)
	if err != nil {
		a.log.WithError(err).Warn("memory listing failed, continuing without memories")
		return ""
	}
	selected := selectMemories(facts, query, a.cfg.MemoryLimit)
	if len(selected) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Known about the user\n")
	for _, f := range selected {
		fmt.Fprintf(&b, "- [%s] %s\n", f.Type, f.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// selectMemories applies the retrieval policy: priority-type facts are
// always kept (most confident first), the rest compete on keyword
// overlap with the query, and the combined list never exceeds limit.
func selectMemories(facts []models.MemoryFact, query string, limit int) []models.MemoryFact {
	if limit <= 0 {
		limit = 40
	}

	var priority, other []models.MemoryFact
	for _, f := range facts {
		if priorityTypes[f.Type] {
			priority = append(priority, f)
		} else {
			other = append(other, f)
		}
	}

	sort.SliceStable(priority, func(i, j int) bool {
		return priority[i].Confidence > priority[j].Confidence
	})
	if len(priority) > limit {
		priority = priority[:limit]
	}

	remaining := limit - len(priority)
	if remaining <= 0 || len(other) == 0 {
		return priority
	}

	queryWords := tokenize(query)
	type scored struct {
		fact  models.MemoryFact
		score int
	}
	var ranked []scored
	for _, f := range other {
		s := overlap(queryWords, tokenize(f.Content))
		if s > 0 {
			ranked = append(ranked, scored{fact: f, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].fact.Confidence > ranked[j].fact.Confidence
	})

	out := priority
	for _, r := range ranked {
		if len(out) >= limit {
			break
		}
		out = append(out, r.fact)
	}
	return out
}

func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) >= 3 {
			words[w] = true
		}
	}
	return words
}

func overlap(a, b map[string]bool) int {
	n := 0
	for w := range b {
		if a[w] {
			n++
		}
	}
	return n
}

func (a *Assembler) documentBlock(ctx context.Context, userID, query string) string {
	chunks := a.retrieveChunks(ctx, userID, query)
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant documents\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(c.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

// retrieveChunks prefers vector search and falls back to keyword search
// on any provider or index failure.
func (a *Assembler) retrieveChunks(ctx context.Context, userID, query string) []models.Chunk {
	k := a.cfg.ChunkLimit
	if k <= 0 {
		k = 6
	}

	if a.embedder != nil {
		vec, err := a.embedder.Embed(ctx, query)
		if err == nil {
			chunks, serr := a.store.VectorSearch(ctx, userID, vec, k)
			if serr == nil {
				return chunks
			}
			a.log.WithError(serr).Warn("vector search failed, falling back to keyword search")
		} else {
			a.log.WithError(err).Warn("query embedding failed, falling back to keyword search")
		}
	}

	chunks, err := a.store.KeywordSearch(ctx, userID, query, k)
	if err != nil {
		a.log.WithError(err).Warn("keyword search failed, continuing without documents")
		return nil
	}
	return chunks
}
