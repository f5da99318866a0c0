package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Factory builds a provider instance bound to a specific model.
type Factory func(model string) (Provider, error)

type instanceKey struct {
	provider string
	model    string
}

// Manager registers provider factories and caches instances per
// (provider, model) key. The cache is append-only and read-mostly;
// instances are never invalidated.
type Manager struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[instanceKey]Provider
	logger    *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		factories: make(map[string]Factory),
		instances: make(map[instanceKey]Provider),
		logger:    logger,
	}
}

// Register installs a factory under a provider name. Registration happens
// at startup; later registrations for the same name overwrite.
func (m *Manager) Register(name string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = factory
	m.logger.WithField("provider", name).Info("LLM provider registered")
}

// Get returns the cached instance for the (provider, model) pair,
// building one on first use.
func (m *Manager) Get(providerName, model string) (Provider, error) {
	key := instanceKey{provider: providerName, model: model}

	m.mu.RLock()
	if instance, ok := m.instances[key]; ok {
		m.mu.RUnlock()
		return instance, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if instance, ok := m.instances[key]; ok {
		return instance, nil
	}

	factory, ok := m.factories[providerName]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", providerName)
	}

	instance, err := factory(model)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider %q: %w", providerName, err)
	}

	m.instances[key] = instance
	m.logger.WithFields(logrus.Fields{
		"provider": providerName,
		"model":    model,
	}).Info("LLM provider instance created")
	return instance, nil
}

// Providers lists the registered provider names, sorted.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderModels lists the models a provider reports as available. An
// unreachable provider degrades to an empty list.
func (m *Manager) ProviderModels(ctx context.Context, providerName string) []string {
	instance, err := m.Get(providerName, "")
	if err != nil {
		return nil
	}

	modelNames, err := instance.ListModels(ctx)
	if err != nil {
		m.logger.WithError(err).WithField("provider", providerName).
			Warn("Failed to list provider models")
		return nil
	}
	return modelNames
}
