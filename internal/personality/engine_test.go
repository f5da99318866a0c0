package personality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeUserInput_EmptyPrompt(t *testing.T) {
	engine := NewEngine(nil)

	assert.Empty(t, engine.AnalyzeUserInput("", "trace-1"))
	assert.Empty(t, engine.AnalyzeUserInput("   ", "trace-1"))
}

func TestAnalyzeUserInput_IntentLabels(t *testing.T) {
	engine := NewEngine(nil)

	cases := []struct {
		prompt string
		intent string
	}{
		{"How does the garbage collector work?", IntentTechnicalQuestion},
		{"Explain the difference between a mutex and a channel", IntentTechnicalQuestion},
		{"Tell me a joke about compilers", IntentHumor},
		{"This is still broken and I am fed up", IntentFrustration},
		{"Can you suggest some ideas for the project name?", IntentBrainstorm},
		{"Good morning!", IntentGreeting},
	}

	for _, tc := range cases {
		directives := engine.AnalyzeUserInput(tc.prompt, "trace-1")
		assert.Equal(t, tc.intent, directives["intent"], "prompt: %s", tc.prompt)
	}
}

func TestAnalyzeUserInput_FrustrationOutranksOtherCues(t *testing.T) {
	engine := NewEngine(nil)

	// Carries both a technical cue and a frustration cue.
	directives := engine.AnalyzeUserInput("The api is useless, nothing works", "trace-1")
	assert.Equal(t, IntentFrustration, directives["intent"])
}

func TestAnalyzeUserInput_NoCueYieldsNoDirective(t *testing.T) {
	engine := NewEngine(nil)

	directives := engine.AnalyzeUserInput("The weather today seems pleasant", "trace-1")
	assert.Empty(t, directives)
}
