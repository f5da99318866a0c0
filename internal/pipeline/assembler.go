package pipeline

import (
	"strings"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/personality"
)

const (
	personaPreamble    = "You are Chimera, an advanced AI assistant."
	contextHeader      = "--- LONG-TERM MEMORY CONTEXT ---"
	closingInstruction = "Respond in a helpful and coherent manner."
)

// intentInstructions translates a detected intent into a behavioral
// instruction for the system prompt. Unknown intents add nothing.
var intentInstructions = map[string]string{
	personality.IntentTechnicalQuestion: "The user has asked a technical question. Be precise and detailed in your answer.",
	personality.IntentHumor:             "The user is in the mood for jokes. Respond in a light and playful way.",
}

// PromptState is the fully assembled conversation state handed to the
// tool-call loop. The system prompt is already the first history entry.
type PromptState struct {
	History []models.ChatMessage
	Tools   []models.ToolSignature
}

// PromptAssembler builds the leading system instruction and prepends it
// to the conversation history.
type PromptAssembler struct{}

func NewPromptAssembler() *PromptAssembler {
	return &PromptAssembler{}
}

// Assemble composes persona, intent instruction, synthesized context and
// closing instruction into one system message. Blank segments are elided
// so the prompt carries no empty lines.
func (a *PromptAssembler) Assemble(directives map[string]string, synthesizedContext string, history []models.ChatMessage, tools []models.ToolSignature) *PromptState {
	contextBlock := ""
	if synthesizedContext != "" {
		contextBlock = contextHeader + "\n" + synthesizedContext
	}

	parts := []string{
		personaPreamble,
		intentInstructions[directives["intent"]],
		contextBlock,
		closingInstruction,
	}

	nonEmpty := parts[:0]
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	systemPrompt := strings.Join(nonEmpty, "\n")

	assembled := make([]models.ChatMessage, 0, len(history)+1)
	assembled = append(assembled, models.ChatMessage{Role: "system", Content: systemPrompt})
	assembled = append(assembled, history...)

	return &PromptState{History: assembled, Tools: tools}
}
