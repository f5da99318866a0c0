// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	Qdrant    QdrantConfig
	Neo4j     Neo4jConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig
	Plugins   PluginConfig
	LogLevel  string
	LogFormat string
}

type ServerConfig struct {
	Host         string
	Port         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Timeout  time.Duration
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type SQLiteConfig struct {
	Path string
}

type QdrantConfig struct {
	Host       string
	Port       string
	APIKey     string
	Collection string
	VectorSize int
	Timeout    time.Duration
}

func (q QdrantConfig) BaseURL() string {
	return "http://" + q.Host + ":" + q.Port
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
}

type LLMConfig struct {
	// Conversational defaults; mutable at runtime through the settings store.
	DefaultProvider    string
	DefaultModel       string
	DefaultTemperature float64
	DefaultMaxTokens   int

	// Utility model used for entity extraction, context synthesis and
	// rolling summarization.
	UtilityProvider string
	UtilityModel    string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiBaseURL string
	Timeout       time.Duration
}

type PipelineConfig struct {
	// MaxToolRounds bounds the tool-call loop. When exceeded, one final
	// tool-free completion is requested for a best-effort answer.
	MaxToolRounds int
}

type PluginConfig struct {
	FilesystemRoot          string
	KnowledgeBaseCollection string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("PORT", "8000"),
			Mode:         getEnv("GIN_MODE", "release"),
			ReadTimeout:  getDurationEnv("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Timeout:  getDurationEnv("REDIS_TIMEOUT", 5*time.Second),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "chimera_memory.db"),
		},
		Qdrant: QdrantConfig{
			Host:       getEnv("QDRANT_HOST", "localhost"),
			Port:       getEnv("QDRANT_PORT", "6333"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "chimera_semantic_memory"),
			VectorSize: getIntEnv("QDRANT_VECTOR_SIZE", 1536),
			Timeout:    getDurationEnv("QDRANT_TIMEOUT", 10*time.Second),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnv("NEO4J_USER", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", "password"),
		},
		LLM: LLMConfig{
			DefaultProvider:    getEnv("LLM_PROVIDER", "openai"),
			DefaultModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			DefaultTemperature: getFloatEnv("LLM_TEMPERATURE", 0.7),
			DefaultMaxTokens:   getIntEnv("LLM_MAX_TOKENS", 1500),
			UtilityProvider:    getEnv("LLM_UTILITY_PROVIDER", "openai"),
			UtilityModel:       getEnv("LLM_UTILITY_MODEL", "gpt-3.5-turbo"),
			OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
			GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
			GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Timeout:            getDurationEnv("LLM_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			MaxToolRounds: getIntEnv("MAX_TOOL_ROUNDS", 8),
		},
		Plugins: PluginConfig{
			FilesystemRoot:          getEnv("PLUGIN_FS_ROOT", "."),
			KnowledgeBaseCollection: getEnv("PLUGIN_KB_COLLECTION", "chimera_knowledge_base"),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
