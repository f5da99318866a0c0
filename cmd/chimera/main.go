// Chimera is a conversational assistant core: it augments every user
// turn with context drawn from four memory tiers and drives a bounded
// tool-call loop against a configurable LLM backend.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/background"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/config"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/llm"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/memory"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/observability"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/orchestrator"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/personality"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/pipeline"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/plugins"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := newLogger(cfg)

	logger.Info("Starting Chimera core")

	manager := llm.NewManager(logger)
	registerProviders(manager, cfg, logger)

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	turns := buildTurnStore(bootCtx, cfg, logger)
	summaries := buildSummaryStore(cfg, logger)
	index, embedderOK := buildSimilarityIndex(bootCtx, cfg, manager, logger)
	graph := buildGraph(bootCtx, cfg, logger)

	settings := llm.NewSettingsStore(models.LLMSettings{
		Provider:    cfg.LLM.DefaultProvider,
		Model:       cfg.LLM.DefaultModel,
		Temperature: cfg.LLM.DefaultTemperature,
		MaxTokens:   cfg.LLM.DefaultMaxTokens,
	})

	metrics := observability.NewMetrics(nil)
	dispatcher := background.NewDispatcher(2, 64, logger)
	defer dispatcher.Stop()

	registry := plugins.NewRegistry(logger)
	if err := registerPlugins(bootCtx, registry, cfg, manager, embedderOK, logger); err != nil {
		return err
	}

	utilProvider := cfg.LLM.UtilityProvider
	utilModel := cfg.LLM.UtilityModel

	orch := orchestrator.New(orchestrator.Deps{
		Turns:         turns,
		Summaries:     summaries,
		Index:         index,
		Graph:         graph,
		Extractor:     pipeline.NewEntityExtractor(manager, utilProvider, utilModel, logger),
		Retriever:     pipeline.NewMemoryRetriever(summaries, index, graph, logger),
		Synthesizer:   pipeline.NewContextSynthesizer(manager, utilProvider, utilModel, logger),
		Assembler:     pipeline.NewPromptAssembler(),
		Persona:       personality.NewEngine(logger),
		Registry:      registry,
		Resolver:      manager,
		Settings:      settings,
		Summarizer:    orchestrator.NewSummarizer(turns, summaries, manager, utilProvider, utilModel, metrics, logger),
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		MaxToolRounds: cfg.Pipeline.MaxToolRounds,
		Logger:        logger,
	})

	srv := server.New(orch, manager, settings, index, nil, logger)
	return srv.Run(cfg.Server.Host + ":" + cfg.Server.Port)
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func registerProviders(manager *llm.Manager, cfg *config.Config, logger *logrus.Logger) {
	if cfg.LLM.OpenAIAPIKey != "" {
		manager.Register("openai", func(model string) (llm.Provider, error) {
			return llm.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL, model, cfg.LLM.Timeout, logger)
		})
	} else {
		logger.Warn("OPENAI_API_KEY not set, openai provider unavailable")
	}

	if cfg.LLM.GeminiAPIKey != "" {
		manager.Register("gemini", func(model string) (llm.Provider, error) {
			return llm.NewGeminiProvider(cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiBaseURL, model, cfg.LLM.Timeout, logger)
		})
	}
}

// buildTurnStore prefers Redis and degrades to the in-memory buffer so
// the process still serves turns with an unreachable backend.
func buildTurnStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) memory.TurnStore {
	store := memory.NewRedisTurnStore(cfg.Redis, logger)
	if err := store.Ping(ctx); err != nil {
		logger.WithError(err).Warn("Redis unreachable, falling back to in-memory turn buffer")
		return memory.NewInMemoryTurnStore()
	}
	logger.WithField("addr", cfg.Redis.Addr()).Info("Turn buffer backed by Redis")
	return store
}

func buildSummaryStore(cfg *config.Config, logger *logrus.Logger) memory.SummaryStore {
	store, err := memory.NewSQLiteSummaryStore(cfg.SQLite.Path, logger)
	if err != nil {
		logger.WithError(err).Warn("SQLite unavailable, falling back to in-memory summary store")
		return memory.NewInMemorySummaryStore()
	}
	logger.WithField("path", cfg.SQLite.Path).Info("Summary store backed by SQLite")
	return store
}

// buildSimilarityIndex returns the index and whether a real embedder
// backs it. The second value gates the knowledge base plugin, which is
// pointless without embeddings.
func buildSimilarityIndex(ctx context.Context, cfg *config.Config, manager *llm.Manager, logger *logrus.Logger) (memory.SimilarityIndex, bool) {
	embedder, err := manager.Get(cfg.LLM.UtilityProvider, cfg.LLM.UtilityModel)
	if err != nil {
		logger.WithError(err).Warn("No embedding provider available, falling back to in-memory similarity index")
		return memory.NewInMemorySimilarityIndex(), false
	}

	index := memory.NewQdrantIndex(cfg.Qdrant, embedder, logger)
	if err := index.EnsureCollection(ctx); err != nil {
		logger.WithError(err).Warn("Qdrant unreachable, falling back to in-memory similarity index")
		return memory.NewInMemorySimilarityIndex(), false
	}
	logger.WithField("collection", cfg.Qdrant.Collection).Info("Similarity index backed by Qdrant")
	return index, true
}

func buildGraph(ctx context.Context, cfg *config.Config, logger *logrus.Logger) memory.RelationshipGraph {
	graph, err := memory.NewNeo4jGraph(ctx, cfg.Neo4j, logger)
	if err != nil {
		logger.WithError(err).Warn("Neo4j unreachable, falling back to in-memory relationship graph")
		return memory.NewInMemoryGraph()
	}
	logger.WithField("uri", cfg.Neo4j.URI).Info("Relationship graph backed by Neo4j")
	return graph
}

func registerPlugins(ctx context.Context, registry *plugins.Registry, cfg *config.Config, manager *llm.Manager, embedderOK bool, logger *logrus.Logger) error {
	fsPlugin, err := plugins.NewFileSystemPlugin(cfg.Plugins.FilesystemRoot)
	if err != nil {
		return fmt.Errorf("failed to build filesystem plugin: %w", err)
	}
	if err := registry.Register(fsPlugin); err != nil {
		return err
	}

	// The knowledge base rides a dedicated Qdrant collection, separate
	// from the conversational memory.
	if embedderOK {
		embedder, err := manager.Get(cfg.LLM.UtilityProvider, cfg.LLM.UtilityModel)
		if err != nil {
			return err
		}
		kbIndex := memory.NewQdrantCollectionIndex(cfg.Qdrant, cfg.Plugins.KnowledgeBaseCollection, embedder, logger)
		if err := kbIndex.EnsureCollection(ctx); err != nil {
			logger.WithError(err).Warn("Knowledge base collection unavailable, plugin disabled")
			return nil
		}
		if err := registry.Register(plugins.NewKnowledgeBasePlugin(kbIndex)); err != nil {
			return err
		}
	} else {
		logger.Warn("Knowledge base plugin disabled without an embedding backend")
	}
	return nil
}
