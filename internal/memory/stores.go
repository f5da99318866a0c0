// Package memory defines the contracts for the four conversation memory
// tiers (recent-turn buffer, rolling summary, similarity index,
// relationship graph) and the concrete backend adapters for each.
package memory

import (
	"context"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// TurnStore is the recent-turn buffer: an ordered, append-only list of
// turns per session, trimmed from the front by the background summarizer.
type TurnStore interface {
	Append(ctx context.Context, sessionID string, turn models.Turn) error

	// ReadLast returns the last n turns in append order. n <= 0 returns
	// the whole buffer.
	ReadLast(ctx context.Context, sessionID string, n int) ([]models.Turn, error)

	// Len reports the buffer length without reading the turns.
	Len(ctx context.Context, sessionID string) (int, error)

	// TruncateToLast keeps only the most recent n turns.
	TruncateToLast(ctx context.Context, sessionID string, n int) error

	Delete(ctx context.Context, sessionID string) error
}

// SummaryStore holds the per-session rolling summary and the session
// records themselves.
type SummaryStore interface {
	// GetSummary returns nil (no error) when the session has no summary yet.
	GetSummary(ctx context.Context, sessionID string) (*models.RollingSummary, error)

	// PutSummary replaces the stored summary wholesale.
	PutSummary(ctx context.Context, sessionID, text string, turnCount int) error

	CreateSession(ctx context.Context, sessionID, name string) error
	ListSessions(ctx context.Context) ([]models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// SimilarityIndex is the long-term semantic memory tier.
type SimilarityIndex interface {
	Upsert(ctx context.Context, sessionID, text, id string, metadata map[string]string) error

	// Query returns up to topN documents ranked by similarity, scoped to
	// sessionID when non-empty.
	Query(ctx context.Context, text string, topN int, sessionID string) ([]models.ScoredDocument, error)

	DeleteBySession(ctx context.Context, sessionID string) error

	// Reset drops and recreates the whole collection. Destructive.
	Reset(ctx context.Context) error
}

// RelationshipGraph is the structural memory tier: messages linked to the
// entities they mention. Entity nodes are process-wide, keyed by
// normalized name.
type RelationshipGraph interface {
	AddMessage(ctx context.Context, sessionID, turnID, role, text string, entities []string) error

	// RelatedEntities returns up to limit entity names co-mentioned with
	// the given entity within the session, most frequent first.
	RelatedEntities(ctx context.Context, entity, sessionID string, limit int) ([]string, error)

	DeleteSessionSubgraph(ctx context.Context, sessionID string) error
	CreateSessionNode(ctx context.Context, sessionID, name string) error
}
