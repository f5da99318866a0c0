// Package llm contains the model backend contract, the concrete REST
// providers and the provider instance cache.
package llm

import (
	"context"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// Provider is the contract every model backend satisfies. GenerateResponse
// appends req.Prompt as a trailing user message when it is non-empty;
// tool invocation requests come back on the returned message.
type Provider interface {
	Name() string
	GenerateResponse(ctx context.Context, req *models.CompletionRequest) (*models.ChatMessage, error)
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Resolver hands out a provider instance for a (provider, model) pair.
// The Manager satisfies it; tests substitute stubs.
type Resolver interface {
	Get(providerName, model string) (Provider, error)
}
