package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/llm"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/memory"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/observability"
)

const (
	summarizeTemperature = 0.2
	summarizeMaxTokens   = 250

	firstSummaryMarker = "This is the first summary of the conversation."
)

const summarizePromptTemplate = `%s

Based on the previous summary and the following excerpt of the recent conversation, update the summary concisely, capturing only the key information or conclusions in one or two sentences.

Recent Conversation:
%s

Updated concise summary:`

// Summarizer condenses the older portion of the turn buffer into the
// rolling summary and prunes the buffer. It runs off the request path.
type Summarizer struct {
	turns     memory.TurnStore
	summaries memory.SummaryStore
	resolver  llm.Resolver
	provider  string
	model     string
	metrics   *observability.Metrics
	logger    *logrus.Logger
}

func NewSummarizer(turns memory.TurnStore, summaries memory.SummaryStore, resolver llm.Resolver, provider, model string, metrics *observability.Metrics, logger *logrus.Logger) *Summarizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Summarizer{
		turns:     turns,
		summaries: summaries,
		resolver:  resolver,
		provider:  provider,
		model:     model,
		metrics:   metrics,
		logger:    logger,
	}
}

// Condense folds everything except the most recent turns into an updated
// summary, then trims the buffer. Any failure leaves both the summary
// and the buffer untouched; the next threshold crossing retries.
func (s *Summarizer) Condense(ctx context.Context, sessionID, traceID string) {
	log := s.logger.WithFields(logrus.Fields{"trace_id": traceID, "session_id": sessionID})

	all, err := s.turns.ReadLast(ctx, sessionID, 0)
	if err != nil {
		log.WithError(err).Error("Failed to read turn buffer for summarization")
		s.count("error")
		return
	}

	condensable := len(all) - recentTurnWindow
	if condensable <= 0 {
		log.Debug("Not enough turns to summarize")
		return
	}

	lines := make([]string, condensable)
	for i, turn := range all[:condensable] {
		lines[i] = fmt.Sprintf("%s: %s", turn.Role, turn.Content)
	}

	preamble := firstSummaryMarker
	previous, err := s.summaries.GetSummary(ctx, sessionID)
	if err != nil {
		log.WithError(err).Warn("Previous summary lookup failed, treating as first summary")
	} else if previous != nil && previous.Text != "" {
		preamble = "Previous summary: " + previous.Text
	}

	provider, err := s.resolver.Get(s.provider, s.model)
	if err != nil {
		log.WithError(err).Error("Failed to resolve provider for summarization")
		s.count("error")
		return
	}

	resp, err := provider.GenerateResponse(ctx, &models.CompletionRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(summarizePromptTemplate, preamble, strings.Join(lines, "\n")),
		Params: models.SamplingParams{
			Temperature: summarizeTemperature,
			MaxTokens:   summarizeMaxTokens,
		},
	})
	if err != nil {
		log.WithError(err).Error("Summarization call failed, leaving buffer untouched")
		s.count("error")
		return
	}

	summaryText := strings.TrimSpace(resp.Content)
	// The watermark is the buffer length observed at the start of the run.
	if err := s.summaries.PutSummary(ctx, sessionID, summaryText, len(all)); err != nil {
		log.WithError(err).Error("Failed to store updated summary, leaving buffer untouched")
		s.count("error")
		return
	}
	if err := s.turns.TruncateToLast(ctx, sessionID, recentTurnWindow); err != nil {
		log.WithError(err).Error("Failed to prune turn buffer after summarization")
		s.count("error")
		return
	}

	log.WithFields(logrus.Fields{
		"condensed_turns": condensable,
		"watermark":       len(all),
	}).Info("Rolling summary updated and buffer pruned")
	s.count("ok")
}

func (s *Summarizer) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Summarizations.WithLabelValues(outcome).Inc()
	}
}
