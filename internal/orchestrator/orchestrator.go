// Package orchestrator drives a user turn end to end: context assembly,
// the model/tool round loop, persistence across the memory tiers and the
// background summarization dispatch.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/background"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/llm"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/memory"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/observability"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/personality"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/pipeline"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/plugins"
)

const (
	// recentTurnWindow is how many buffer turns travel with each request
	// and survive background pruning.
	recentTurnWindow = 10

	// fallbackAnswer is returned when the model cannot produce a final
	// answer at all. The caller always gets text, never an exception.
	fallbackAnswer = "I was unable to generate a response right now. Please try again."
)

// Orchestrator wires the pipeline stages to the memory tiers and the
// tool registry. One instance serves all sessions.
type Orchestrator struct {
	turns     memory.TurnStore
	summaries memory.SummaryStore
	index     memory.SimilarityIndex
	graph     memory.RelationshipGraph

	extractor   *pipeline.EntityExtractor
	retriever   *pipeline.MemoryRetriever
	synthesizer *pipeline.ContextSynthesizer
	assembler   *pipeline.PromptAssembler
	persona     *personality.Engine

	registry   *plugins.Registry
	resolver   llm.Resolver
	settings   *llm.SettingsStore
	summarizer *Summarizer
	dispatcher *background.Dispatcher
	metrics    *observability.Metrics

	maxToolRounds int
	logger        *logrus.Logger
}

// Deps carries everything an Orchestrator needs. All fields are required
// except Metrics and Logger.
type Deps struct {
	Turns     memory.TurnStore
	Summaries memory.SummaryStore
	Index     memory.SimilarityIndex
	Graph     memory.RelationshipGraph

	Extractor   *pipeline.EntityExtractor
	Retriever   *pipeline.MemoryRetriever
	Synthesizer *pipeline.ContextSynthesizer
	Assembler   *pipeline.PromptAssembler
	Persona     *personality.Engine

	Registry   *plugins.Registry
	Resolver   llm.Resolver
	Settings   *llm.SettingsStore
	Summarizer *Summarizer
	Dispatcher *background.Dispatcher
	Metrics    *observability.Metrics

	MaxToolRounds int
	Logger        *logrus.Logger
}

func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.MaxToolRounds <= 0 {
		deps.MaxToolRounds = 8
	}
	return &Orchestrator{
		turns:         deps.Turns,
		summaries:     deps.Summaries,
		index:         deps.Index,
		graph:         deps.Graph,
		extractor:     deps.Extractor,
		retriever:     deps.Retriever,
		synthesizer:   deps.Synthesizer,
		assembler:     deps.Assembler,
		persona:       deps.Persona,
		registry:      deps.Registry,
		resolver:      deps.Resolver,
		settings:      deps.Settings,
		summarizer:    deps.Summarizer,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		maxToolRounds: deps.MaxToolRounds,
		logger:        deps.Logger,
	}
}

// HandleUserTurn processes one user prompt and returns the final answer
// text. override, when non-nil, adjusts the LLM settings for this request
// only; the process-wide settings are untouched.
func (o *Orchestrator) HandleUserTurn(ctx context.Context, sessionID, userPrompt string, override *models.LLMSettingsPatch) (string, error) {
	traceID := uuid.NewString()
	log := o.logger.WithFields(logrus.Fields{"trace_id": traceID, "session_id": sessionID})
	started := time.Now()

	settings := o.requestSettings(override)

	log.WithFields(logrus.Fields{
		"provider": settings.Provider,
		"model":    settings.Model,
	}).Info("Handling user turn")

	directives := o.persona.AnalyzeUserInput(userPrompt, traceID)
	entities := o.extractor.Extract(ctx, userPrompt, traceID)
	snippets := o.retriever.Retrieve(ctx, sessionID, entities, traceID)
	synthesized := o.synthesizer.Synthesize(ctx, snippets, traceID)

	history, err := o.turns.ReadLast(ctx, sessionID, recentTurnWindow)
	if err != nil {
		log.WithError(err).Warn("Recent-turn read failed, continuing without history")
		o.tierFailure("turns")
		history = nil
	}

	state := o.assembler.Assemble(directives, synthesized, turnsToMessages(history), o.registry.AllTools())

	provider, err := o.resolver.Get(settings.Provider, settings.Model)
	if err != nil {
		o.countTurn("provider_error")
		return "", fmt.Errorf("provider %q not available: %w", settings.Provider, err)
	}

	finalText, rounds := o.runToolLoop(ctx, provider, settings, state, userPrompt, traceID)

	o.persistTurn(ctx, sessionID, userPrompt, finalText, entities, traceID)
	o.maybeScheduleSummarization(ctx, sessionID, traceID)

	if o.metrics != nil {
		o.metrics.TurnDuration.Observe(time.Since(started).Seconds())
		o.metrics.ToolRounds.Observe(float64(rounds))
	}
	o.countTurn("ok")

	log.WithFields(logrus.Fields{
		"rounds":      rounds,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("User turn handled")
	return finalText, nil
}

// requestSettings overlays the present fields of override on a snapshot
// of the process settings. The snapshot keeps concurrent requests from
// seeing each other's overrides.
func (o *Orchestrator) requestSettings(override *models.LLMSettingsPatch) models.LLMSettings {
	settings := o.settings.Snapshot()
	if override == nil {
		return settings
	}
	return override.Apply(settings)
}

// runToolLoop drives the model until it answers without tool calls or
// the round budget runs out. The budget exists because nothing stops a
// model from requesting tools forever.
func (o *Orchestrator) runToolLoop(ctx context.Context, provider llm.Provider, settings models.LLMSettings, state *pipeline.PromptState, userPrompt, traceID string) (string, int) {
	log := o.logger.WithField("trace_id", traceID)

	conversation := append(state.History, models.ChatMessage{Role: "user", Content: userPrompt})
	params := models.SamplingParams{Temperature: settings.Temperature, MaxTokens: settings.MaxTokens}

	rounds := 0
	for rounds < o.maxToolRounds {
		rounds++
		resp, err := provider.GenerateResponse(ctx, &models.CompletionRequest{
			Model:   settings.Model,
			History: conversation,
			Tools:   state.Tools,
			Params:  params,
		})
		if err != nil {
			log.WithError(err).Error("Model call failed, returning fallback answer")
			o.countTurn("model_error")
			return fallbackAnswer, rounds
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, rounds
		}

		log.WithField("tool_calls", len(resp.ToolCalls)).Info("Tool calls requested by the model")
		conversation = append(conversation, *resp)
		conversation = append(conversation, o.executeToolCalls(ctx, resp.ToolCalls, traceID)...)
	}

	// Round budget exhausted while the model still wants tools: one last
	// tool-free call for a best-effort answer.
	log.WithField("max_rounds", o.maxToolRounds).Warn("Tool round budget exhausted, requesting final answer without tools")
	resp, err := provider.GenerateResponse(ctx, &models.CompletionRequest{
		Model:   settings.Model,
		History: conversation,
		Params:  params,
	})
	if err != nil {
		log.WithError(err).Error("Final tool-free call failed, returning fallback answer")
		o.countTurn("model_error")
		return fallbackAnswer, rounds
	}
	return resp.Content, rounds + 1
}

// executeToolCalls runs every requested invocation in order and returns
// the tool result messages. An unresolvable tool name is skipped;
// unparseable arguments degrade to an empty argument set.
func (o *Orchestrator) executeToolCalls(ctx context.Context, calls []models.ToolCall, traceID string) []models.ChatMessage {
	log := o.logger.WithField("trace_id", traceID)

	results := make([]models.ChatMessage, 0, len(calls))
	for _, call := range calls {
		owner := o.registry.FindOwner(call.Name)
		if owner == "" {
			log.WithField("tool", call.Name).Error("No plugin owns the requested tool, skipping invocation")
			continue
		}

		args := map[string]any{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				log.WithError(err).WithField("tool", call.Name).Error("Failed to decode tool arguments, using empty set")
				args = map[string]any{}
			}
		}

		log.WithFields(logrus.Fields{"plugin": owner, "tool": call.Name}).Info("Executing tool")
		result := o.registry.Execute(ctx, owner, call.Name, args)
		if o.metrics != nil {
			o.metrics.ToolCallsTotal.WithLabelValues(call.Name, result.Status).Inc()
		}

		payload, err := json.Marshal(result)
		if err != nil {
			payload = []byte(fmt.Sprintf(`{"status":"error","error_message":%q}`, err.Error()))
		}
		results = append(results, models.ChatMessage{
			Role:       "tool",
			Name:       call.Name,
			Content:    string(payload),
			ToolCallID: call.ID,
		})
	}
	return results
}

// persistTurn writes the completed exchange into all four tiers. Tier
// failures are logged and counted, not surfaced; the answer has already
// been produced.
func (o *Orchestrator) persistTurn(ctx context.Context, sessionID, userPrompt, assistantText string, userEntities []string, traceID string) {
	log := o.logger.WithFields(logrus.Fields{"trace_id": traceID, "session_id": sessionID})

	userTurnID := fmt.Sprintf("%s_%s", sessionID, uuid.NewString())
	assistantTurnID := fmt.Sprintf("%s_%s", sessionID, uuid.NewString())

	if err := o.turns.Append(ctx, sessionID, models.Turn{Role: "user", Content: userPrompt}); err != nil {
		log.WithError(err).Error("Failed to append user turn")
		o.tierFailure("turns")
	}
	if err := o.turns.Append(ctx, sessionID, models.Turn{Role: "assistant", Content: assistantText}); err != nil {
		log.WithError(err).Error("Failed to append assistant turn")
		o.tierFailure("turns")
	}

	if err := o.index.Upsert(ctx, sessionID, assistantText, assistantTurnID, map[string]string{"role": "assistant"}); err != nil {
		log.WithError(err).Error("Failed to index assistant response")
		o.tierFailure("index")
	}

	if o.graph != nil {
		// The assistant's own answer goes through extraction too, so both
		// sides of the exchange land in the graph.
		assistantEntities := o.extractor.Extract(ctx, assistantText, traceID)

		if err := o.graph.AddMessage(ctx, sessionID, userTurnID, "user", userPrompt, userEntities); err != nil {
			log.WithError(err).Error("Failed to record user message in graph")
			o.tierFailure("graph")
		}
		if err := o.graph.AddMessage(ctx, sessionID, assistantTurnID, "assistant", assistantText, assistantEntities); err != nil {
			log.WithError(err).Error("Failed to record assistant message in graph")
			o.tierFailure("graph")
		}
	}
}

// maybeScheduleSummarization dispatches a background condensation run
// when the buffer has outgrown the recent-turn window. Fire and forget:
// the response has already been returned.
func (o *Orchestrator) maybeScheduleSummarization(ctx context.Context, sessionID, traceID string) {
	total, err := o.turns.Len(ctx, sessionID)
	if err != nil {
		o.logger.WithError(err).WithField("trace_id", traceID).Warn("Buffer length check failed")
		o.tierFailure("turns")
		return
	}
	if total <= recentTurnWindow {
		return
	}

	o.logger.WithFields(logrus.Fields{
		"trace_id":   traceID,
		"session_id": sessionID,
		"turns":      total,
	}).Info("Summarization threshold crossed, dispatching background task")

	o.dispatcher.Submit(func(taskCtx context.Context) {
		o.summarizer.Condense(taskCtx, sessionID, traceID)
	})
}

func (o *Orchestrator) countTurn(outcome string) {
	if o.metrics != nil {
		o.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) tierFailure(tier string) {
	if o.metrics != nil {
		o.metrics.TierFailuresTotal.WithLabelValues(tier).Inc()
	}
}

func turnsToMessages(turns []models.Turn) []models.ChatMessage {
	messages := make([]models.ChatMessage, len(turns))
	for i, turn := range turns {
		messages[i] = models.ChatMessage{Role: turn.Role, Content: turn.Content}
	}
	return messages
}

// --- Session lifecycle ---

// CreateSession registers a new session in the relational store and the
// relationship graph. A graph failure is tolerated; the session still
// exists.
func (o *Orchestrator) CreateSession(ctx context.Context, name string) (models.Session, error) {
	sessionID := uuid.NewString()
	if name == "" {
		name = "Session " + sessionID[:8]
	}

	if err := o.summaries.CreateSession(ctx, sessionID, name); err != nil {
		return models.Session{}, fmt.Errorf("failed to create session record: %w", err)
	}
	if o.graph != nil {
		if err := o.graph.CreateSessionNode(ctx, sessionID, name); err != nil {
			o.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to create session graph node")
			o.tierFailure("graph")
		}
	}

	o.logger.WithFields(logrus.Fields{"session_id": sessionID, "name": name}).Info("Session created")
	return models.Session{ID: sessionID, Name: name, CreatedAt: time.Now()}, nil
}

// ListSessions returns all sessions, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]models.Session, error) {
	sessions, err := o.summaries.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// DeletionReport records which tiers completed during a cascading
// session delete.
type DeletionReport struct {
	Graph  bool `json:"graph"`
	Index  bool `json:"similarity_index"`
	Turns  bool `json:"turn_buffer"`
	Record bool `json:"session_record"`
}

// Complete reports whether every tier was cleaned.
func (r DeletionReport) Complete() bool {
	return r.Graph && r.Index && r.Turns && r.Record
}

// DeleteSession removes a session from all four tiers. Deletion order is
// graph, index, turn buffer, and the relational record last: the record
// is the marker that the session exists, so it only goes away once the
// other tiers are clean. A failed delete leaves a re-deletable state and
// reports overall failure.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) (DeletionReport, error) {
	log := o.logger.WithField("session_id", sessionID)
	var report DeletionReport
	var failures []error

	if o.graph == nil {
		report.Graph = true
	} else if err := o.graph.DeleteSessionSubgraph(ctx, sessionID); err != nil {
		log.WithError(err).Error("Graph deletion failed")
		o.tierFailure("graph")
		failures = append(failures, fmt.Errorf("graph: %w", err))
	} else {
		report.Graph = true
	}

	if err := o.index.DeleteBySession(ctx, sessionID); err != nil {
		log.WithError(err).Error("Similarity index deletion failed")
		o.tierFailure("index")
		failures = append(failures, fmt.Errorf("similarity index: %w", err))
	} else {
		report.Index = true
	}

	if err := o.turns.Delete(ctx, sessionID); err != nil {
		log.WithError(err).Error("Turn buffer deletion failed")
		o.tierFailure("turns")
		failures = append(failures, fmt.Errorf("turn buffer: %w", err))
	} else {
		report.Turns = true
	}

	if len(failures) == 0 {
		if err := o.summaries.DeleteSession(ctx, sessionID); err != nil {
			log.WithError(err).Error("Session record deletion failed")
			o.tierFailure("summary")
			failures = append(failures, fmt.Errorf("session record: %w", err))
		} else {
			report.Record = true
		}
	} else {
		log.Warn("Keeping session record so the delete can be retried")
	}

	if len(failures) > 0 {
		return report, fmt.Errorf("session %s deletion incomplete: %w", sessionID, errors.Join(failures...))
	}
	log.Info("Session deleted from all tiers")
	return report, nil
}
