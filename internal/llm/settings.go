package llm

import (
	"sync"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// SettingsStore holds the process-wide conversational LLM settings behind
// a lock. Per-request overrides never land here: a request that carries
// its own settings uses them for that request's calls only, and the store
// changes only through an explicit Update (the settings endpoint).
type SettingsStore struct {
	mu      sync.RWMutex
	current models.LLMSettings
}

func NewSettingsStore(initial models.LLMSettings) *SettingsStore {
	return &SettingsStore{current: initial}
}

// Snapshot returns a copy of the current settings.
func (s *SettingsStore) Snapshot() models.LLMSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies a partial change to the process settings. Absent patch
// fields keep their previous value, so explicit zero values go through.
func (s *SettingsStore) Update(patch models.LLMSettingsPatch) models.LLMSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = patch.Apply(s.current)
	return s.current
}
