package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/llm"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

const (
	// Compression wants a colder temperature than conversation.
	synthesisTemperature = 0.3
	synthesisMaxTokens   = 300
)

const synthesisPromptTemplate = `Summarize the following information fragments into one concise, coherent paragraph.
This summary will be used as context for an AI assistant.
Fragments:
%s
Summary:`

// ContextSynthesizer compresses the retrieved snippets into a single
// paragraph through a utility model call.
type ContextSynthesizer struct {
	resolver llm.Resolver
	provider string
	model    string
	logger   *logrus.Logger
}

func NewContextSynthesizer(resolver llm.Resolver, provider, model string, logger *logrus.Logger) *ContextSynthesizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &ContextSynthesizer{
		resolver: resolver,
		provider: provider,
		model:    model,
		logger:   logger,
	}
}

// Synthesize returns one paragraph covering all snippets, or the empty
// string. No snippets means no model call; a failed call also yields the
// empty string since the assistant can answer context-free.
func (s *ContextSynthesizer) Synthesize(ctx context.Context, snippets []models.MemorySnippet, traceID string) string {
	if len(snippets) == 0 {
		return ""
	}
	log := s.logger.WithField("trace_id", traceID)

	texts := make([]string, len(snippets))
	for i, snippet := range snippets {
		texts[i] = snippet.Text
	}

	provider, err := s.resolver.Get(s.provider, s.model)
	if err != nil {
		log.WithError(err).Error("Failed to resolve provider for context synthesis")
		return ""
	}

	resp, err := provider.GenerateResponse(ctx, &models.CompletionRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(synthesisPromptTemplate, strings.Join(texts, "\n")),
		Params: models.SamplingParams{
			Temperature: synthesisTemperature,
			MaxTokens:   synthesisMaxTokens,
		},
	})
	if err != nil {
		log.WithError(err).Error("Context synthesis call failed")
		return ""
	}

	synthesized := strings.TrimSpace(resp.Content)
	log.Info("Context synthesized")
	return synthesized
}
