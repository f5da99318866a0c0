package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

const (
	openAIDefaultModel     = "gpt-4o-mini"
	openAIEmbeddingModel   = "text-embedding-3-small"
	openAIDefaultMaxTokens = 1500
)

// OpenAIProvider talks to the OpenAI chat completions API (or any
// compatible endpoint) and supports the tool-calling protocol.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewOpenAIProvider(apiKey, baseURL, model string, timeout time.Duration, logger *logrus.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = openAIDefaultModel
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAITool struct {
	Type     string               `json:"type"`
	Function models.ToolSignature `json:"function"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) GenerateResponse(ctx context.Context, req *models.CompletionRequest) (*models.ChatMessage, error) {
	messages := make([]openAIMessage, 0, len(req.History)+1)
	for _, msg := range req.History {
		out := openAIMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			tc := openAIToolCall{ID: call.ID, Type: "function"}
			tc.Function.Name = call.Name
			tc.Function.Arguments = call.Arguments
			out.ToolCalls = append(out.ToolCalls, tc)
		}
		messages = append(messages, out)
	}
	if req.Prompt != "" {
		messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.Params.MaxTokens
	if maxTokens == 0 {
		maxTokens = openAIDefaultMaxTokens
	}

	chatReq := openAIChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Params.Temperature,
		MaxTokens:   maxTokens,
	}
	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openAITool{Type: "function", Function: tool})
	}
	if len(chatReq.Tools) > 0 {
		chatReq.ToolChoice = "auto"
	}

	respBody, err := p.doRequest(ctx, http.MethodPost, "/v1/chat/completions", chatReq)
	if err != nil {
		return nil, err
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse completion response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("openai api error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("completion response carried no choices")
	}

	choice := chatResp.Choices[0].Message
	result := &models.ChatMessage{Role: choice.Role, Content: choice.Content}
	for _, call := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	p.logger.WithFields(logrus.Fields{
		"model":      model,
		"tool_calls": len(result.ToolCalls),
	}).Debug("Completion received")
	return result, nil
}

func (p *OpenAIProvider) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	// The embeddings API recommends collapsing newlines.
	body := map[string]any{
		"model": openAIEmbeddingModel,
		"input": []string{strings.ReplaceAll(text, "\n", " ")},
	}

	respBody, err := p.doRequest(ctx, http.MethodPost, "/v1/embeddings", body)
	if err != nil {
		return nil, err
	}

	var embResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("embedding response carried no data")
	}
	return embResp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	respBody, err := p.doRequest(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, err
	}

	var listResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &listResp); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}

	var names []string
	for _, m := range listResp.Data {
		if strings.Contains(m.ID, "gpt") && !strings.Contains(m.ID, "instruct") {
			names = append(names, m.ID)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (p *OpenAIProvider) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
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
