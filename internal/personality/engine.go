// Package personality derives behavioral directives from the raw user
// prompt before any model call happens. The analysis is lexical on
// purpose: it must be cheap enough to run on every turn.
package personality

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Intent labels emitted under the "intent" directive key.
const (
	IntentTechnicalQuestion = "technical_question"
	IntentHumor             = "humor"
	IntentFrustration       = "frustration"
	IntentGreeting          = "greeting"
	IntentBrainstorm        = "brainstorming"
)

var frustrationCues = []string{
	"not working", "doesn't work", "does not work", "still broken",
	"broken", "useless", "frustrated", "frustrating", "annoying",
	"fed up", "i hate", "this is terrible", "waste of time",
}

var technicalCues = []string{
	"how do", "how does", "how can", "why does", "why is", "what is",
	"explain", "error", "exception", "bug", "implement", "algorithm",
	"configure", "install", "compile", "deploy", "database", "function",
	"api", "code",
}

var humorCues = []string{
	"joke", "funny", "haha", "lol", "make me laugh", "pun",
}

var greetingCues = []string{
	"hello", "hi there", "hey", "good morning", "good afternoon",
	"good evening", "how are you",
}

var brainstormCues = []string{
	"brainstorm", "ideas for", "suggest some", "suggestions for",
	"what could i", "alternatives to",
}

// Engine classifies the user's intent from surface cues.
type Engine struct {
	logger *logrus.Logger
}

func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{logger: logger}
}

// AnalyzeUserInput returns the directives map consumed by the prompt
// assembler. An empty prompt or no recognizable cue yields an empty map.
// Frustration wins over everything else so the assistant can change
// register before answering.
func (e *Engine) AnalyzeUserInput(prompt, traceID string) map[string]string {
	directives := make(map[string]string)
	lowered := strings.ToLower(strings.TrimSpace(prompt))
	if lowered == "" {
		return directives
	}

	intent := classify(lowered)
	if intent == "" {
		e.logger.WithField("trace_id", traceID).Debug("No intent cue matched")
		return directives
	}

	directives["intent"] = intent
	e.logger.WithFields(logrus.Fields{
		"trace_id": traceID,
		"intent":   intent,
	}).Info("Intent detected")
	return directives
}

func classify(lowered string) string {
	if matchesAny(lowered, frustrationCues) {
		return IntentFrustration
	}
	if matchesAny(lowered, humorCues) {
		return IntentHumor
	}
	if matchesAny(lowered, brainstormCues) {
		return IntentBrainstorm
	}
	if matchesAny(lowered, technicalCues) {
		return IntentTechnicalQuestion
	}
	if matchesAny(lowered, greetingCues) {
		return IntentGreeting
	}
	return ""
}

func matchesAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}
