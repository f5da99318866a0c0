package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/config"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// Embedder turns text into a vector for similarity search. The active
// LLM provider satisfies this.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// QdrantIndex implements SimilarityIndex against Qdrant's REST API.
// Session scoping is done with a session_id payload filter.
type QdrantIndex struct {
	cfg        config.QdrantConfig
	collection string
	embedder   Embedder
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewQdrantIndex(cfg config.QdrantConfig, embedder Embedder, logger *logrus.Logger) *QdrantIndex {
	if logger == nil {
		logger = logrus.New()
	}

	return &QdrantIndex{
		cfg:        cfg,
		collection: cfg.Collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// NewQdrantCollectionIndex returns an index over a collection other than
// the configured default (used by the knowledge base plugin).
func NewQdrantCollectionIndex(cfg config.QdrantConfig, collection string, embedder Embedder, logger *logrus.Logger) *QdrantIndex {
	idx := NewQdrantIndex(cfg, embedder, logger)
	idx.collection = collection
	return idx
}

func (q *QdrantIndex) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	url := q.cfg.BaseURL() + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// EnsureCollection creates the backing collection if it does not exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	if _, err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collection, nil); err == nil {
		return nil
	}
	return q.createCollection(ctx)
}

func (q *QdrantIndex) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.cfg.VectorSize,
			"distance": "Cosine",
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collection, body); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	q.logger.WithField("collection", q.collection).Info("Qdrant collection created")
	return nil
}

// pointID derives a deterministic UUID from the caller-supplied document
// id. Qdrant only accepts UUIDs or integers as point ids.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func sessionFilter(sessionID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "session_id", "match": map[string]any{"value": sessionID}},
		},
	}
}

func (q *QdrantIndex) Upsert(ctx context.Context, sessionID, text, id string, metadata map[string]string) error {
	vector, err := q.embedder.GetEmbedding(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}

	payload := map[string]any{
		"text":       text,
		"session_id": sessionID,
		"doc_id":     id,
	}
	for k, v := range metadata {
		payload[k] = v
	}

	body := map[string]any{
		"points": []map[string]any{
			{"id": pointID(id), "vector": vector, "payload": payload},
		},
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if _, err := q.doRequest(ctx, http.MethodPut, path, body); err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"doc_id":     id,
	}).Debug("Document added to semantic memory")
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, text string, topN int, sessionID string) ([]models.ScoredDocument, error) {
	vector, err := q.embedder.GetEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topN,
		"with_payload": true,
	}
	if sessionID != "" {
		body["filter"] = sessionFilter(sessionID)
	}

	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	respBody, err := q.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	var response struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	docs := make([]models.ScoredDocument, 0, len(response.Result))
	for _, hit := range response.Result {
		doc := models.ScoredDocument{
			Score:    hit.Score,
			Metadata: make(map[string]string),
		}
		for k, v := range hit.Payload {
			s, ok := v.(string)
			if !ok {
				continue
			}
			switch k {
			case "text":
				doc.Text = s
			case "doc_id":
				doc.ID = s
			default:
				doc.Metadata[k] = s
			}
		}
		docs = append(docs, doc)
	}

	q.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"hits":       len(docs),
	}).Debug("Similarity search completed")
	return docs, nil
}

func (q *QdrantIndex) DeleteBySession(ctx context.Context, sessionID string) error {
	body := map[string]any{"filter": sessionFilter(sessionID)}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection)
	if _, err := q.doRequest(ctx, http.MethodPost, path, body); err != nil {
		return fmt.Errorf("failed to delete session documents: %w", err)
	}

	q.logger.WithField("session_id", sessionID).Info("Session documents deleted from semantic memory")
	return nil
}

func (q *QdrantIndex) Reset(ctx context.Context) error {
	if _, err := q.doRequest(ctx, http.MethodDelete, "/collections/"+q.collection, nil); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := q.createCollection(ctx); err != nil {
		return err
	}

	q.logger.WithField("collection", q.collection).Warn("Semantic memory collection reset")
	return nil
}
