package plugins

import (
	"context"
	"fmt"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/memory"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

const defaultKnowledgeBaseResults = 3

// KnowledgeBasePlugin searches a dedicated vector collection, separate
// from the conversational memory index.
type KnowledgeBasePlugin struct {
	index memory.SimilarityIndex
}

func NewKnowledgeBasePlugin(index memory.SimilarityIndex) *KnowledgeBasePlugin {
	return &KnowledgeBasePlugin{index: index}
}

func (p *KnowledgeBasePlugin) Name() string { return "knowledge_base" }

func (p *KnowledgeBasePlugin) Tools() []models.ToolSignature {
	return []models.ToolSignature{
		{
			Name:        "query_knowledge_base",
			Description: "Searches the internal knowledge base for information relevant to the user's question. Use it when the user asks about policies, procedures, technical data or any organization-specific information.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":     map[string]any{"type": "string", "description": "The question or topic to search the knowledge base for."},
					"n_results": map[string]any{"type": "integer", "description": "The number of relevant results to return.", "default": defaultKnowledgeBaseResults},
				},
				"required": []string{"query"},
			},
		},
	}
}

func (p *KnowledgeBasePlugin) Execute(ctx context.Context, toolName string, args map[string]any) models.ToolResult {
	if toolName != "query_knowledge_base" {
		return errorResult(fmt.Sprintf("tool %q is not provided by the %s plugin", toolName, p.Name()))
	}

	query, _ := args["query"].(string)
	if query == "" {
		return errorResult("a 'query' is required to search the knowledge base")
	}

	topN := defaultKnowledgeBaseResults
	// JSON numbers decode as float64.
	if n, ok := args["n_results"].(float64); ok && int(n) > 0 {
		topN = int(n)
	}

	docs, err := p.index.Query(ctx, query, topN, "")
	if err != nil {
		return errorResult(fmt.Sprintf("knowledge base query failed: %v", err))
	}

	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Text)
	}
	return successResult(texts)
}
