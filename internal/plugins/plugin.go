// Package plugins holds the tool registry and the shipped tool plugins.
// Plugins are registered explicitly at startup; there is no runtime
// discovery.
package plugins

import (
	"context"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// Plugin is the capability contract every tool provider satisfies. Name
// must be unique within the registry; Tools declares what the model may
// call; Execute runs one of the declared tools.
type Plugin interface {
	Name() string
	Tools() []models.ToolSignature
	Execute(ctx context.Context, toolName string, args map[string]any) models.ToolResult
}

func errorResult(message string) models.ToolResult {
	return models.ToolResult{Status: models.ToolStatusError, ErrorMessage: message}
}

func successResult(result any) models.ToolResult {
	return models.ToolResult{Status: models.ToolStatusSuccess, Result: result}
}
