// Package models defines the shared data model for the Chimera core:
// sessions, turns, memory snippets, tool declarations and the types
// exchanged with LLM providers.
package models

import "time"

// Session is a single conversation. Deleting a session cascades across
// all four memory tiers.
type Session struct {
	ID        string    `json:"session_id"`
	Name      string    `json:"session_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one entry in the recent-turn buffer. Turns are immutable once
// appended.
type Turn struct {
	Role    string `json:"role"` // user, assistant, tool
	Content string `json:"content"`
}

// RollingSummary is the mid-term memory for a session. TurnCount is the
// watermark: the buffer length observed when the summary was produced.
// It never decreases.
type RollingSummary struct {
	Text      string `json:"text"`
	TurnCount int    `json:"turn_count"`
}

// SnippetSource tags where a memory snippet came from.
type SnippetSource string

const (
	SnippetSummary    SnippetSource = "summary"
	SnippetSimilarity SnippetSource = "similarity"
	SnippetGraph      SnippetSource = "graph"
)

// MemorySnippet is a bounded text fragment drawn from a memory tier.
// Snippets are constructed per-request and never persisted.
type MemorySnippet struct {
	Text   string        `json:"text"`
	Source SnippetSource `json:"source"`
}

// ToolSignature declares a tool to the model: a unique name, a
// human-readable description and a JSON-schema parameter object.
type ToolSignature struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model. Arguments is the
// raw JSON payload as returned by the provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	Status       string `json:"status"` // success or error
	Result       any    `json:"result,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// ChatMessage is one entry in the conversation state sent to a provider.
// Assistant messages may carry ToolCalls; tool messages carry the
// originating ToolCallID.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SamplingParams bounds a single completion call.
type SamplingParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// LLMSettings selects the provider and model used for conversational
// completions. A request may carry its own settings; those override the
// process settings for that request only.
type LLMSettings struct {
	Provider    string  `json:"provider_name"`
	Model       string  `json:"model_name"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// LLMSettingsPatch is a partial settings change. Nil fields are absent,
// so a caller can set a field to its zero value (temperature 0 is a
// legitimate deterministic-sampling choice) and still leave the rest
// untouched.
type LLMSettingsPatch struct {
	Provider    *string  `json:"provider_name,omitempty"`
	Model       *string  `json:"model_name,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Apply overlays the present fields on base and returns the result.
func (p LLMSettingsPatch) Apply(base LLMSettings) LLMSettings {
	if p.Provider != nil {
		base.Provider = *p.Provider
	}
	if p.Model != nil {
		base.Model = *p.Model
	}
	if p.Temperature != nil {
		base.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		base.MaxTokens = *p.MaxTokens
	}
	return base
}

// CompletionRequest is the provider-facing request. When Prompt is
// non-empty the provider appends it as a trailing user message after
// History.
type CompletionRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt,omitempty"`
	History []ChatMessage   `json:"history"`
	Tools   []ToolSignature `json:"tools,omitempty"`
	Params  SamplingParams  `json:"params"`
}

// ScoredDocument is a ranked hit from the similarity index.
type ScoredDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
