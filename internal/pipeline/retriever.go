package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/memory"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

const (
	// similarityHitsPerEntity bounds the fan-in from the similarity index.
	similarityHitsPerEntity = 5
	// relatedTermsPerEntity bounds the fan-in from the relationship graph.
	relatedTermsPerEntity = 5
	// snippetMaxChars bounds each similarity hit before synthesis.
	snippetMaxChars = 300
)

// MemoryRetriever fans entity-scoped queries out to the similarity index
// and the relationship graph, and always folds in the rolling summary.
// A tier that fails degrades to no results from that tier.
type MemoryRetriever struct {
	summaries memory.SummaryStore
	index     memory.SimilarityIndex
	graph     memory.RelationshipGraph
	logger    *logrus.Logger
}

func NewMemoryRetriever(summaries memory.SummaryStore, index memory.SimilarityIndex, graph memory.RelationshipGraph, logger *logrus.Logger) *MemoryRetriever {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryRetriever{
		summaries: summaries,
		index:     index,
		graph:     graph,
		logger:    logger,
	}
}

// Retrieve returns an ordered, deduplicated snippet list for the session.
// The rolling summary is fetched unconditionally; the similarity and graph
// tiers are only consulted when there are entities to scope the queries
// with. No entities means no long-term lookup.
func (r *MemoryRetriever) Retrieve(ctx context.Context, sessionID string, entities []string, traceID string) []models.MemorySnippet {
	log := r.logger.WithFields(logrus.Fields{"trace_id": traceID, "session_id": sessionID})

	var candidates []models.MemorySnippet

	summary, err := r.summaries.GetSummary(ctx, sessionID)
	if err != nil {
		log.WithError(err).Warn("Rolling summary lookup failed")
	} else if summary != nil && summary.Text != "" {
		candidates = append(candidates, models.MemorySnippet{
			Text:   summary.Text,
			Source: models.SnippetSummary,
		})
	}

	if len(entities) == 0 {
		log.Info("No entities extracted, skipping long-term memory lookup")
		return Dedup(candidates)
	}

	for _, entity := range entities {
		query := fmt.Sprintf("What relevant information is there about %s?", entity)
		docs, err := r.index.Query(ctx, query, similarityHitsPerEntity, sessionID)
		if err != nil {
			log.WithError(err).WithField("entity", entity).Warn("Similarity query failed")
			continue
		}
		for _, doc := range docs {
			candidates = append(candidates, models.MemorySnippet{
				Text:   truncateSnippet(doc.Text),
				Source: models.SnippetSimilarity,
			})
		}
	}

	if r.graph != nil {
		var sentences []string
		for _, entity := range entities {
			related, err := r.graph.RelatedEntities(ctx, entity, sessionID, relatedTermsPerEntity)
			if err != nil {
				log.WithError(err).WithField("entity", entity).Warn("Graph query failed")
				continue
			}
			if len(related) == 0 {
				continue
			}
			sentences = append(sentences, fmt.Sprintf(
				"Regarding the concept '%s', the system also knows these related topics: %s.",
				entity, strings.Join(related, ", ")))
		}
		// All graph facts travel as one combined snippet, not one per entity.
		if len(sentences) > 0 {
			candidates = append(candidates, models.MemorySnippet{
				Text:   strings.Join(sentences, " "),
				Source: models.SnippetGraph,
			})
		}
	}

	unique := Dedup(candidates)
	log.WithField("snippets", len(unique)).Info("Memory retrieval complete")
	return unique
}

// Dedup removes snippets whose text already appeared, keeping the first
// occurrence and its order.
func Dedup(snippets []models.MemorySnippet) []models.MemorySnippet {
	seen := make(map[string]struct{}, len(snippets))
	unique := make([]models.MemorySnippet, 0, len(snippets))
	for _, snippet := range snippets {
		if _, ok := seen[snippet.Text]; ok {
			continue
		}
		seen[snippet.Text] = struct{}{}
		unique = append(unique, snippet)
	}
	return unique
}

// truncateSnippet bounds a snippet to snippetMaxChars characters, never
// cutting inside a multi-byte rune.
func truncateSnippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetMaxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetMaxChars]) + "..."
}
