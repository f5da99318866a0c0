package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/config"
)

// Neo4jGraph implements RelationshipGraph on Neo4j. Sessions own messages,
// messages mention entities; entity nodes are global and keyed by
// lowercased name.
type Neo4jGraph struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewNeo4jGraph(ctx context.Context, cfg config.Neo4jConfig, logger *logrus.Logger) (*Neo4jGraph, error) {
	if logger == nil {
		logger = logrus.New()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	g := &Neo4jGraph{driver: driver, logger: logger}
	if err := g.ensureConstraints(ctx); err != nil {
		logger.WithError(err).Warn("Failed to ensure graph constraints")
	}
	return g, nil
}

func (g *Neo4jGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *Neo4jGraph) ensureConstraints(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	constraints := []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (s:Session) REQUIRE s.session_id IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (m:Message) REQUIRE (m.session_id, m.turn_id) IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (e:Entity) REQUIRE e.name IS UNIQUE",
	}
	for _, stmt := range constraints {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

func (g *Neo4jGraph) AddMessage(ctx context.Context, sessionID, turnID, role, text string, entities []string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	normalized := make([]string, 0, len(entities))
	for _, e := range entities {
		if name := strings.ToLower(strings.TrimSpace(e)); name != "" {
			normalized = append(normalized, name)
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (s:Session {session_id: $session_id})
			MERGE (m:Message {session_id: $session_id, turn_id: $turn_id})
			ON CREATE SET m.role = $role, m.text = $text, m.timestamp = datetime()
			ON MATCH SET m.role = $role, m.text = $text
			MERGE (s)-[:HAS_MESSAGE]->(m)`,
			map[string]any{
				"session_id": sessionID,
				"turn_id":    turnID,
				"role":       role,
				"text":       text,
			})
		if err != nil {
			return nil, err
		}

		if len(normalized) == 0 {
			return nil, nil
		}
		_, err = tx.Run(ctx, `
			MATCH (m:Message {session_id: $session_id, turn_id: $turn_id})
			UNWIND $entities AS name
			MERGE (e:Entity {name: name})
			MERGE (m)-[:MENTIONS]->(e)`,
			map[string]any{
				"session_id": sessionID,
				"turn_id":    turnID,
				"entities":   normalized,
			})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to add message to graph: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"turn_id":    turnID,
		"entities":   len(normalized),
	}).Debug("Message linked in relationship graph")
	return nil
}

func (g *Neo4jGraph) RelatedEntities(ctx context.Context, entity, sessionID string, limit int) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, `
			MATCH (s:Session {session_id: $session_id})-[:HAS_MESSAGE]->(m:Message)-[:MENTIONS]->(target:Entity)
			WHERE toLower(target.name) CONTAINS toLower($name)
			WITH m, target
			MATCH (m)-[:MENTIONS]->(related:Entity)
			WHERE related <> target
			RETURN related.name AS name, COUNT(related) AS frequency
			ORDER BY frequency DESC
			LIMIT $limit`,
			map[string]any{
				"session_id": sessionID,
				"name":       entity,
				"limit":      limit,
			})
		if err != nil {
			return nil, err
		}

		var names []string
		for records.Next(ctx) {
			if name, ok := records.Record().Get("name"); ok {
				if s, ok := name.(string); ok {
					names = append(names, s)
				}
			}
		}
		return names, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query related entities: %w", err)
	}

	names, _ := result.([]string)
	g.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"entity":     entity,
		"related":    len(names),
	}).Debug("Co-mentioned entities retrieved")
	return names, nil
}

func (g *Neo4jGraph) DeleteSessionSubgraph(ctx context.Context, sessionID string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	// Entity nodes are shared across sessions and survive; only the
	// session node and its messages are detached.
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (s:Session {session_id: $session_id})
			OPTIONAL MATCH (s)-[:HAS_MESSAGE]->(m:Message)
			DETACH DELETE s, m`,
			map[string]any{"session_id": sessionID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to delete session subgraph: %w", err)
	}

	g.logger.WithField("session_id", sessionID).Info("Session subgraph deleted")
	return nil
}

func (g *Neo4jGraph) CreateSessionNode(ctx context.Context, sessionID, name string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (s:Session {session_id: $session_id})
			ON CREATE SET s.name = $name`,
			map[string]any{"session_id": sessionID, "name": name})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to create session node: %w", err)
	}
	return nil
}
