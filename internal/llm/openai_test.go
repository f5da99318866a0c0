package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewOpenAIProvider("test-key", server.URL, "gpt-4o-mini", 0, nil)
	require.NoError(t, err)
	return provider
}

// --- GenerateResponse ---

func TestOpenAIProvider_GenerateResponse(t *testing.T) {
	var captured openAIChatRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "The answer is 42."}},
			},
		})
	})

	resp, err := provider.GenerateResponse(context.Background(), &models.CompletionRequest{
		History: []models.ChatMessage{
			{Role: "system", Content: "You are helpful."},
			{Role: "user", Content: "What is the answer?"},
		},
		Params: models.SamplingParams{Temperature: 0.3, MaxTokens: 300},
	})
	require.NoError(t, err)

	assert.Equal(t, "assistant", resp.Role)
	assert.Equal(t, "The answer is 42.", resp.Content)
	assert.Empty(t, resp.ToolCalls)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, 0.3, captured.Temperature)
	assert.Equal(t, 300, captured.MaxTokens)
	assert.Empty(t, captured.Tools)
	assert.Empty(t, captured.ToolChoice)
}

func TestOpenAIProvider_GenerateResponsePromptAppendedAsUserMessage(t *testing.T) {
	var captured openAIChatRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "ok"}}},
		})
	})

	_, err := provider.GenerateResponse(context.Background(), &models.CompletionRequest{
		History: []models.ChatMessage{{Role: "system", Content: "persona"}},
		Prompt:  "hello there",
	})
	require.NoError(t, err)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "hello there", captured.Messages[1].Content)
}

func TestOpenAIProvider_GenerateResponseParsesToolCalls(t *testing.T) {
	var captured openAIChatRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      "read_file",
								"arguments": `{"path":"notes.txt"}`,
							},
						},
					},
				}},
			},
		})
	})

	resp, err := provider.GenerateResponse(context.Background(), &models.CompletionRequest{
		History: []models.ChatMessage{{Role: "user", Content: "read my notes"}},
		Tools: []models.ToolSignature{
			{Name: "read_file", Description: "Reads a file", Parameters: map[string]any{"type": "object"}},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"path":"notes.txt"}`, resp.ToolCalls[0].Arguments)

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, "read_file", captured.Tools[0].Function.Name)
	assert.Equal(t, "auto", captured.ToolChoice)
}

func TestOpenAIProvider_GenerateResponseForwardsToolResults(t *testing.T) {
	var captured openAIChatRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "done"}}},
		})
	})

	_, err := provider.GenerateResponse(context.Background(), &models.CompletionRequest{
		History: []models.ChatMessage{
			{Role: "assistant", ToolCalls: []models.ToolCall{{ID: "call_1", Name: "read_file", Arguments: "{}"}}},
			{Role: "tool", Name: "read_file", ToolCallID: "call_1", Content: `{"status":"success"}`},
		},
	})
	require.NoError(t, err)

	require.Len(t, captured.Messages, 2)
	require.Len(t, captured.Messages[0].ToolCalls, 1)
	assert.Equal(t, "call_1", captured.Messages[0].ToolCalls[0].ID)
	assert.Equal(t, "tool", captured.Messages[1].Role)
	assert.Equal(t, "call_1", captured.Messages[1].ToolCallID)
}

func TestOpenAIProvider_GenerateResponseAPIError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})

	_, err := provider.GenerateResponse(context.Background(), &models.CompletionRequest{
		History: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIProvider_GenerateResponseNoChoices(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := provider.GenerateResponse(context.Background(), &models.CompletionRequest{
		History: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

// --- GetEmbedding ---

func TestOpenAIProvider_GetEmbedding(t *testing.T) {
	var captured map[string]any
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	})

	vector, err := provider.GetEmbedding(context.Background(), "line one\nline two")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)

	inputs, ok := captured["input"].([]any)
	require.True(t, ok)
	assert.Equal(t, "line one line two", inputs[0])
}

// --- ListModels ---

func TestOpenAIProvider_ListModelsFiltersChatModels(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "gpt-4o-mini"},
				{"id": "gpt-3.5-turbo-instruct"},
				{"id": "text-embedding-3-small"},
				{"id": "gpt-4-turbo"},
			},
		})
	})

	names, err := provider.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4-turbo", "gpt-4o-mini"}, names)
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider("", "", "", 0, nil)
	require.Error(t, err)
}
