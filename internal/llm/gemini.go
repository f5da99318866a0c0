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
	geminiDefaultModel   = "gemini-1.5-flash"
	geminiEmbeddingModel = "embedding-001"
)

// GeminiProvider talks to the Google Generative Language REST API.
// Tool calling is not wired for this provider; declared tools are
// ignored and the conversation degrades to plain completion.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewGeminiProvider(apiKey, baseURL, model string, timeout time.Duration, logger *logrus.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if model == "" {
		model = geminiDefaultModel
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *GeminiProvider) GenerateResponse(ctx context.Context, req *models.CompletionRequest) (*models.ChatMessage, error) {
	// Gemini has no system role inside chat contents and uses "model"
	// for the assistant; system prompts ride along as user content.
	var contents []geminiContent
	for _, msg := range req.History {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		text := msg.Content
		if msg.Role == "tool" {
			text = fmt.Sprintf("Tool %s returned: %s", msg.Name, msg.Content)
		}
		if text == "" {
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: text}}})
	}
	if req.Prompt != "" {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.Params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 800
	}

	genReq := geminiRequest{Contents: contents}
	genReq.GenerationConfig.Temperature = req.Params.Temperature
	genReq.GenerationConfig.MaxOutputTokens = maxTokens

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", model)
	respBody, err := p.doRequest(ctx, http.MethodPost, path, genReq)
	if err != nil {
		return nil, err
	}

	var genResp geminiResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}
	if len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("generation response carried no candidates")
	}

	var builder strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		builder.WriteString(part.Text)
	}

	return &models.ChatMessage{Role: "assistant", Content: builder.String()}, nil
}

func (p *GeminiProvider) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model":   "models/" + geminiEmbeddingModel,
		"content": map[string]any{"parts": []map[string]any{{"text": text}}},
	}

	path := fmt.Sprintf("/v1beta/models/%s:embedContent", geminiEmbeddingModel)
	respBody, err := p.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	var embResp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	return embResp.Embedding.Values, nil
}

func (p *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	respBody, err := p.doRequest(ctx, http.MethodGet, "/v1beta/models", nil)
	if err != nil {
		return nil, err
	}

	var listResp struct {
		Models []struct {
			Name                       string   `json:"name"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.Unmarshal(respBody, &listResp); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}

	var names []string
	for _, m := range listResp.Models {
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				names = append(names, strings.TrimPrefix(m.Name, "models/"))
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (p *GeminiProvider) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	url := p.baseURL + path + "?key=" + p.apiKey
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
