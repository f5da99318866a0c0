package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// In-memory implementations of the four tier contracts. Used as test
// doubles and as a degraded fallback when a backend is unreachable at
// startup: the assistant keeps working, memory just does not survive a
// restart.

// InMemoryTurnStore implements TurnStore.
type InMemoryTurnStore struct {
	mu    sync.RWMutex
	turns map[string][]models.Turn
}

func NewInMemoryTurnStore() *InMemoryTurnStore {
	return &InMemoryTurnStore{turns: make(map[string][]models.Turn)}
}

func (s *InMemoryTurnStore) Append(_ context.Context, sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

func (s *InMemoryTurnStore) ReadLast(_ context.Context, sessionID string, n int) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buffer := s.turns[sessionID]
	if n > 0 && n < len(buffer) {
		buffer = buffer[len(buffer)-n:]
	}
	out := make([]models.Turn, len(buffer))
	copy(out, buffer)
	return out, nil
}

func (s *InMemoryTurnStore) Len(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[sessionID]), nil
}

func (s *InMemoryTurnStore) TruncateToLast(_ context.Context, sessionID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffer := s.turns[sessionID]
	if n < len(buffer) {
		kept := make([]models.Turn, n)
		copy(kept, buffer[len(buffer)-n:])
		s.turns[sessionID] = kept
	}
	return nil
}

func (s *InMemoryTurnStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
	return nil
}

// InMemorySummaryStore implements SummaryStore.
type InMemorySummaryStore struct {
	mu        sync.RWMutex
	summaries map[string]models.RollingSummary
	sessions  []models.Session
}

func NewInMemorySummaryStore() *InMemorySummaryStore {
	return &InMemorySummaryStore{summaries: make(map[string]models.RollingSummary)}
}

func (s *InMemorySummaryStore) GetSummary(_ context.Context, sessionID string) (*models.RollingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[sessionID]
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

func (s *InMemorySummaryStore) PutSummary(_ context.Context, sessionID, text string, turnCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sessionID] = models.RollingSummary{Text: text, TurnCount: turnCount}
	return nil
}

func (s *InMemorySummaryStore) CreateSession(_ context.Context, sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, models.Session{ID: sessionID, Name: name, CreatedAt: time.Now()})
	return nil
}

func (s *InMemorySummaryStore) ListSessions(_ context.Context) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Session, len(s.sessions))
	copy(out, s.sessions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemorySummaryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.summaries, sessionID)
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.ID != sessionID {
			kept = append(kept, sess)
		}
	}
	s.sessions = kept
	return nil
}

// InMemorySimilarityIndex implements SimilarityIndex with token-overlap
// scoring. Good enough for tests and degraded operation; not a real
// vector search.
type InMemorySimilarityIndex struct {
	mu   sync.RWMutex
	docs map[string]inmemDoc // keyed by doc id
}

type inmemDoc struct {
	sessionID string
	text      string
	metadata  map[string]string
}

func NewInMemorySimilarityIndex() *InMemorySimilarityIndex {
	return &InMemorySimilarityIndex{docs: make(map[string]inmemDoc)}
}

func (s *InMemorySimilarityIndex) Upsert(_ context.Context, sessionID, text, id string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = inmemDoc{sessionID: sessionID, text: text, metadata: metadata}
	return nil
}

func (s *InMemorySimilarityIndex) Query(_ context.Context, text string, topN int, sessionID string) ([]models.ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryTokens := tokenize(text)
	var hits []models.ScoredDocument
	for id, doc := range s.docs {
		if sessionID != "" && doc.sessionID != sessionID {
			continue
		}
		score := overlapScore(queryTokens, tokenize(doc.text))
		if score <= 0 {
			continue
		}
		hits = append(hits, models.ScoredDocument{
			ID:       id,
			Text:     doc.text,
			Score:    score,
			Metadata: doc.metadata,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topN > 0 && len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

func (s *InMemorySimilarityIndex) DeleteBySession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, doc := range s.docs {
		if doc.sessionID == sessionID {
			delete(s.docs, id)
		}
	}
	return nil
}

func (s *InMemorySimilarityIndex) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]inmemDoc)
	return nil
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		token := strings.Trim(field, ".,;:!?\"'()[]")
		if len(token) > 2 {
			tokens[token] = struct{}{}
		}
	}
	return tokens
}

func overlapScore(query, doc map[string]struct{}) float32 {
	if len(query) == 0 {
		return 0
	}
	var shared int
	for token := range query {
		if _, ok := doc[token]; ok {
			shared++
		}
	}
	return float32(shared) / float32(len(query))
}

// InMemoryGraph implements RelationshipGraph by counting entity
// co-mentions per message.
type InMemoryGraph struct {
	mu       sync.RWMutex
	sessions map[string]string // session id -> name
	messages map[string][]graphMessage
}

type graphMessage struct {
	turnID   string
	entities []string // normalized
}

func NewInMemoryGraph() *InMemoryGraph {
	return &InMemoryGraph{
		sessions: make(map[string]string),
		messages: make(map[string][]graphMessage),
	}
}

func (g *InMemoryGraph) AddMessage(_ context.Context, sessionID, turnID, _ string, _ string, entities []string) error {
	normalized := make([]string, 0, len(entities))
	for _, e := range entities {
		if name := strings.ToLower(strings.TrimSpace(e)); name != "" {
			normalized = append(normalized, name)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages[sessionID] = append(g.messages[sessionID], graphMessage{turnID: turnID, entities: normalized})
	return nil
}

func (g *InMemoryGraph) RelatedEntities(_ context.Context, entity, sessionID string, limit int) ([]string, error) {
	target := strings.ToLower(strings.TrimSpace(entity))

	g.mu.RLock()
	defer g.mu.RUnlock()

	frequency := make(map[string]int)
	for _, msg := range g.messages[sessionID] {
		var mentionsTarget bool
		for _, name := range msg.entities {
			if strings.Contains(name, target) {
				mentionsTarget = true
				break
			}
		}
		if !mentionsTarget {
			continue
		}
		for _, name := range msg.entities {
			if !strings.Contains(name, target) {
				frequency[name]++
			}
		}
	}

	names := make([]string, 0, len(frequency))
	for name := range frequency {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		if frequency[names[i]] != frequency[names[j]] {
			return frequency[names[i]] > frequency[names[j]]
		}
		return names[i] < names[j]
	})
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (g *InMemoryGraph) DeleteSessionSubgraph(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.messages, sessionID)
	delete(g.sessions, sessionID)
	return nil
}

func (g *InMemoryGraph) CreateSessionNode(_ context.Context, sessionID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID] = name
	return nil
}
