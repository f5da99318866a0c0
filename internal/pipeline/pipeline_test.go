package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/llm"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/personality"
)

// stubProvider returns canned completions and records every request.
type stubProvider struct {
	reply    string
	err      error
	requests []*models.CompletionRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) GenerateResponse(_ context.Context, req *models.CompletionRequest) (*models.ChatMessage, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ChatMessage{Role: "assistant", Content: s.reply}, nil
}

func (s *stubProvider) GetEmbedding(_ context.Context, _ string) ([]float32, error) {
	return []float32{0}, nil
}

func (s *stubProvider) ListModels(_ context.Context) ([]string, error) { return nil, nil }

type stubResolver struct {
	provider *stubProvider
	err      error
}

func (s *stubResolver) Get(_, _ string) (llm.Provider, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.provider, nil
}

// --- EntityExtractor ---

func TestExtract_ValidArray(t *testing.T) {
	provider := &stubProvider{reply: `["fields", "unexplored", "artificial intelligence"]`}
	extractor := NewEntityExtractor(&stubResolver{provider: provider}, "openai", "gpt-3.5-turbo", nil)

	entities := extractor.Extract(context.Background(), "What AI fields remain unexplored?", "trace-1")

	assert.Equal(t, []string{"fields", "unexplored", "artificial intelligence"}, entities)
	require.Len(t, provider.requests, 1)
	assert.Contains(t, provider.requests[0].Prompt, "What AI fields remain unexplored?")
}

func TestExtract_EmptyArray(t *testing.T) {
	provider := &stubProvider{reply: `[]`}
	extractor := NewEntityExtractor(&stubResolver{provider: provider}, "openai", "gpt-3.5-turbo", nil)

	assert.Empty(t, extractor.Extract(context.Background(), "hmm", "trace-1"))
}

func TestExtract_InvalidResponsesYieldEmpty(t *testing.T) {
	cases := []struct {
		name  string
		reply string
	}{
		{"empty response", ""},
		{"prose instead of json", "The entities are fields and AI."},
		{"malformed json", `["fields", "unex`},
		{"object instead of array", `{"entities": ["fields"]}`},
		{"non-string element", `["fields", 42]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &stubProvider{reply: tc.reply}
			extractor := NewEntityExtractor(&stubResolver{provider: provider}, "openai", "gpt-3.5-turbo", nil)
			assert.Empty(t, extractor.Extract(context.Background(), "text", "trace-1"))
		})
	}
}

func TestExtract_ProviderFailureYieldsEmpty(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("backend down")}
	extractor := NewEntityExtractor(&stubResolver{provider: provider}, "openai", "gpt-3.5-turbo", nil)
	assert.Empty(t, extractor.Extract(context.Background(), "text", "trace-1"))

	extractor = NewEntityExtractor(&stubResolver{err: fmt.Errorf("no such provider")}, "openai", "gpt-3.5-turbo", nil)
	assert.Empty(t, extractor.Extract(context.Background(), "text", "trace-1"))
}

// --- MemoryRetriever ---

// countingSummaryStore serves a fixed summary and counts lookups.
type countingSummaryStore struct {
	summary *models.RollingSummary
	err     error
	calls   int
}

func (s *countingSummaryStore) GetSummary(_ context.Context, _ string) (*models.RollingSummary, error) {
	s.calls++
	return s.summary, s.err
}

func (s *countingSummaryStore) PutSummary(_ context.Context, _, _ string, _ int) error { return nil }
func (s *countingSummaryStore) CreateSession(_ context.Context, _, _ string) error     { return nil }
func (s *countingSummaryStore) ListSessions(_ context.Context) ([]models.Session, error) {
	return nil, nil
}
func (s *countingSummaryStore) DeleteSession(_ context.Context, _ string) error { return nil }

type countingIndex struct {
	docs    []models.ScoredDocument
	err     error
	queries []string
}

func (s *countingIndex) Upsert(_ context.Context, _, _, _ string, _ map[string]string) error {
	return nil
}

func (s *countingIndex) Query(_ context.Context, text string, _ int, _ string) ([]models.ScoredDocument, error) {
	s.queries = append(s.queries, text)
	return s.docs, s.err
}

func (s *countingIndex) DeleteBySession(_ context.Context, _ string) error { return nil }
func (s *countingIndex) Reset(_ context.Context) error                     { return nil }

type countingGraph struct {
	related map[string][]string
	err     error
	queries []string
}

func (s *countingGraph) AddMessage(_ context.Context, _, _, _, _ string, _ []string) error {
	return nil
}

func (s *countingGraph) RelatedEntities(_ context.Context, entity, _ string, _ int) ([]string, error) {
	s.queries = append(s.queries, entity)
	return s.related[entity], s.err
}

func (s *countingGraph) DeleteSessionSubgraph(_ context.Context, _ string) error { return nil }
func (s *countingGraph) CreateSessionNode(_ context.Context, _, _ string) error  { return nil }

func TestRetrieve_NoEntitiesStillFetchesSummary(t *testing.T) {
	summaries := &countingSummaryStore{summary: &models.RollingSummary{Text: "prior context", TurnCount: 12}}
	index := &countingIndex{}
	graph := &countingGraph{}
	retriever := NewMemoryRetriever(summaries, index, graph, nil)

	snippets := retriever.Retrieve(context.Background(), "s1", nil, "trace-1")

	require.Len(t, snippets, 1)
	assert.Equal(t, "prior context", snippets[0].Text)
	assert.Equal(t, models.SnippetSummary, snippets[0].Source)
	assert.Equal(t, 1, summaries.calls)
	assert.Empty(t, index.queries, "no entities must mean no similarity queries")
	assert.Empty(t, graph.queries, "no entities must mean no graph queries")
}

func TestRetrieve_OneSimilarityQueryPerEntity(t *testing.T) {
	summaries := &countingSummaryStore{}
	index := &countingIndex{}
	graph := &countingGraph{}
	retriever := NewMemoryRetriever(summaries, index, graph, nil)

	retriever.Retrieve(context.Background(), "s1", []string{"fields", "unexplored", "artificial intelligence"}, "trace-1")

	require.Len(t, index.queries, 3)
	assert.Equal(t, "What relevant information is there about fields?", index.queries[0])
	assert.Equal(t, "What relevant information is there about artificial intelligence?", index.queries[2])
}

func TestRetrieve_TruncatesLongDocuments(t *testing.T) {
	long := strings.Repeat("a", 400)
	summaries := &countingSummaryStore{}
	index := &countingIndex{docs: []models.ScoredDocument{{ID: "d1", Text: long}}}
	retriever := NewMemoryRetriever(summaries, index, nil, nil)

	snippets := retriever.Retrieve(context.Background(), "s1", []string{"topic"}, "trace-1")

	require.Len(t, snippets, 1)
	assert.Equal(t, strings.Repeat("a", 300)+"...", snippets[0].Text)
	assert.Len(t, snippets[0].Text, 303)
}

func TestRetrieve_TruncatesOnRuneBoundaries(t *testing.T) {
	// 299 ASCII runes followed by 101 two-byte runes: 400 characters, so
	// the cut lands one rune into the accented tail.
	long := strings.Repeat("a", 299) + strings.Repeat("é", 101)
	summaries := &countingSummaryStore{}
	index := &countingIndex{docs: []models.ScoredDocument{{ID: "d1", Text: long}}}
	retriever := NewMemoryRetriever(summaries, index, nil, nil)

	snippets := retriever.Retrieve(context.Background(), "s1", []string{"topic"}, "trace-1")

	require.Len(t, snippets, 1)
	assert.True(t, utf8.ValidString(snippets[0].Text))
	assert.Equal(t, strings.Repeat("a", 299)+"é"+"...", snippets[0].Text)
	assert.Equal(t, 303, utf8.RuneCountInString(snippets[0].Text))
}

func TestRetrieve_ShortMultiByteDocumentsKeptVerbatim(t *testing.T) {
	// 300 two-byte runes is 600 bytes but exactly the character bound.
	text := strings.Repeat("ñ", 300)
	summaries := &countingSummaryStore{}
	index := &countingIndex{docs: []models.ScoredDocument{{ID: "d1", Text: text}}}
	retriever := NewMemoryRetriever(summaries, index, nil, nil)

	snippets := retriever.Retrieve(context.Background(), "s1", []string{"topic"}, "trace-1")

	require.Len(t, snippets, 1)
	assert.Equal(t, text, snippets[0].Text)
}

func TestRetrieve_ShortDocumentsKeptVerbatim(t *testing.T) {
	summaries := &countingSummaryStore{}
	index := &countingIndex{docs: []models.ScoredDocument{{ID: "d1", Text: "short fact"}}}
	retriever := NewMemoryRetriever(summaries, index, nil, nil)

	snippets := retriever.Retrieve(context.Background(), "s1", []string{"topic"}, "trace-1")

	require.Len(t, snippets, 1)
	assert.Equal(t, "short fact", snippets[0].Text)
}

func TestRetrieve_GraphFactsBecomeOneCombinedSnippet(t *testing.T) {
	summaries := &countingSummaryStore{}
	index := &countingIndex{}
	graph := &countingGraph{related: map[string][]string{
		"go":    {"channels", "goroutines"},
		"redis": {"cache"},
	}}
	retriever := NewMemoryRetriever(summaries, index, graph, nil)

	snippets := retriever.Retrieve(context.Background(), "s1", []string{"go", "redis"}, "trace-1")

	require.Len(t, snippets, 1)
	assert.Equal(t, models.SnippetGraph, snippets[0].Source)
	assert.Equal(t,
		"Regarding the concept 'go', the system also knows these related topics: channels, goroutines. "+
			"Regarding the concept 'redis', the system also knows these related topics: cache.",
		snippets[0].Text)
}

func TestRetrieve_TierFailuresDegrade(t *testing.T) {
	summaries := &countingSummaryStore{err: fmt.Errorf("sqlite locked")}
	index := &countingIndex{err: fmt.Errorf("qdrant unreachable")}
	graph := &countingGraph{related: map[string][]string{"go": {"channels"}}}
	retriever := NewMemoryRetriever(summaries, index, graph, nil)

	snippets := retriever.Retrieve(context.Background(), "s1", []string{"go"}, "trace-1")

	// The graph tier still contributes even with the other two down.
	require.Len(t, snippets, 1)
	assert.Equal(t, models.SnippetGraph, snippets[0].Source)
}

func TestRetrieve_DeduplicatesByText(t *testing.T) {
	summaries := &countingSummaryStore{summary: &models.RollingSummary{Text: "repeated fact"}}
	index := &countingIndex{docs: []models.ScoredDocument{
		{ID: "d1", Text: "repeated fact"},
		{ID: "d2", Text: "unique fact"},
	}}
	retriever := NewMemoryRetriever(summaries, index, nil, nil)

	snippets := retriever.Retrieve(context.Background(), "s1", []string{"topic"}, "trace-1")

	require.Len(t, snippets, 2)
	assert.Equal(t, "repeated fact", snippets[0].Text)
	assert.Equal(t, models.SnippetSummary, snippets[0].Source, "first occurrence wins")
	assert.Equal(t, "unique fact", snippets[1].Text)
}

func TestDedup_IdempotentAndOrderPreserving(t *testing.T) {
	input := []models.MemorySnippet{
		{Text: "b"}, {Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "a"},
	}

	once := Dedup(input)
	twice := Dedup(once)

	assert.Equal(t, []models.MemorySnippet{{Text: "b"}, {Text: "a"}, {Text: "c"}}, once)
	assert.Equal(t, once, twice)
}

// --- ContextSynthesizer ---

func TestSynthesize_EmptyInputMakesNoCall(t *testing.T) {
	provider := &stubProvider{reply: "should never appear"}
	synthesizer := NewContextSynthesizer(&stubResolver{provider: provider}, "openai", "gpt-3.5-turbo", nil)

	out := synthesizer.Synthesize(context.Background(), nil, "trace-1")

	assert.Equal(t, "", out)
	assert.Empty(t, provider.requests, "empty snippet list must not reach the model")
}

func TestSynthesize_JoinsSnippetsAndUsesColdSampling(t *testing.T) {
	provider := &stubProvider{reply: "A coherent paragraph."}
	synthesizer := NewContextSynthesizer(&stubResolver{provider: provider}, "openai", "gpt-3.5-turbo", nil)

	out := synthesizer.Synthesize(context.Background(), []models.MemorySnippet{
		{Text: "fact one"}, {Text: "fact two"},
	}, "trace-1")

	assert.Equal(t, "A coherent paragraph.", out)
	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Contains(t, req.Prompt, "fact one\nfact two")
	assert.Equal(t, 0.3, req.Params.Temperature)
	assert.Equal(t, 300, req.Params.MaxTokens)
}

func TestSynthesize_FailureYieldsEmptyString(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("backend down")}
	synthesizer := NewContextSynthesizer(&stubResolver{provider: provider}, "openai", "gpt-3.5-turbo", nil)

	assert.Equal(t, "", synthesizer.Synthesize(context.Background(), []models.MemorySnippet{{Text: "x"}}, "trace-1"))
}

// --- PromptAssembler ---

func TestAssemble_FullPrompt(t *testing.T) {
	assembler := NewPromptAssembler()
	history := []models.ChatMessage{{Role: "user", Content: "hi"}}
	tools := []models.ToolSignature{{Name: "read_file"}}

	state := assembler.Assemble(
		map[string]string{"intent": personality.IntentTechnicalQuestion},
		"The user previously discussed goroutines.",
		history, tools)

	require.Len(t, state.History, 2)
	system := state.History[0]
	assert.Equal(t, "system", system.Role)
	assert.Equal(t,
		"You are Chimera, an advanced AI assistant.\n"+
			"The user has asked a technical question. Be precise and detailed in your answer.\n"+
			"--- LONG-TERM MEMORY CONTEXT ---\nThe user previously discussed goroutines.\n"+
			"Respond in a helpful and coherent manner.",
		system.Content)
	assert.Equal(t, history[0], state.History[1])
	assert.Equal(t, tools, state.Tools)
}

func TestAssemble_ElidesBlankSegments(t *testing.T) {
	assembler := NewPromptAssembler()

	state := assembler.Assemble(nil, "", nil, nil)

	require.Len(t, state.History, 1)
	assert.Equal(t,
		"You are Chimera, an advanced AI assistant.\nRespond in a helpful and coherent manner.",
		state.History[0].Content)
	assert.NotContains(t, state.History[0].Content, "\n\n")
}

func TestAssemble_UnknownIntentAddsNothing(t *testing.T) {
	assembler := NewPromptAssembler()

	state := assembler.Assemble(map[string]string{"intent": "interpretive_dance"}, "", nil, nil)

	assert.Equal(t,
		"You are Chimera, an advanced AI assistant.\nRespond in a helpful and coherent manner.",
		state.History[0].Content)
}
