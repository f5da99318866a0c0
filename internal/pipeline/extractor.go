// Package pipeline contains the per-turn context assembly stages: entity
// extraction, memory retrieval, context synthesis and prompt assembly.
// Every stage degrades to a neutral result on failure so a broken backend
// never takes the whole turn down with it.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/llm"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

const extractionPromptTemplate = `Analyze the following text and extract the most important concepts and entities.
Focus on the main intent of the question.
Return the result as a JSON list of strings.
For example, for "What AI fields remain unexplored?", a good extraction would be ["fields", "unexplored", "artificial intelligence"].
If you find no relevant entity, return an empty JSON list: [].
Text: "%s"
Entities (ONLY the JSON):`

// EntityExtractor derives salient terms from free text through a cheap
// utility model. It is used on the user prompt before retrieval and on
// the assistant's answer afterwards, so both ends of the turn land in
// the relationship graph.
type EntityExtractor struct {
	resolver llm.Resolver
	provider string
	model    string
	logger   *logrus.Logger
}

func NewEntityExtractor(resolver llm.Resolver, provider, model string, logger *logrus.Logger) *EntityExtractor {
	if logger == nil {
		logger = logrus.New()
	}
	return &EntityExtractor{
		resolver: resolver,
		provider: provider,
		model:    model,
		logger:   logger,
	}
}

// Extract returns the entities the model found in text. Any failure,
// from an unreachable provider to a malformed reply, yields an empty
// slice and never an error.
func (e *EntityExtractor) Extract(ctx context.Context, text, traceID string) []string {
	log := e.logger.WithField("trace_id", traceID)

	provider, err := e.resolver.Get(e.provider, e.model)
	if err != nil {
		log.WithError(err).Error("Failed to resolve provider for entity extraction")
		return nil
	}

	resp, err := provider.GenerateResponse(ctx, &models.CompletionRequest{
		Model:  e.model,
		Prompt: fmt.Sprintf(extractionPromptTemplate, text),
	})
	if err != nil {
		log.WithError(err).Error("Entity extraction call failed")
		return nil
	}

	raw := strings.TrimSpace(resp.Content)
	log.WithField("raw", raw).Debug("Raw entity extraction response")

	if raw == "" || !strings.HasPrefix(raw, "[") {
		log.Warn("Entity extraction response is empty or not a JSON array")
		return nil
	}

	var parsed []any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.WithError(err).Warn("Entity extraction response is not valid JSON")
		return nil
	}

	entities := make([]string, 0, len(parsed))
	for _, element := range parsed {
		name, ok := element.(string)
		if !ok {
			log.WithField("raw", raw).Warn("Entity extraction response is not a list of strings")
			return nil
		}
		entities = append(entities, name)
	}

	log.WithField("entities", entities).Info("Entities extracted")
	return entities
}
