package plugins

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// Registry maps plugin names to plugins and tool names to their owners.
// Registration happens at startup; afterwards the registry is read-only,
// so the lock only matters during boot.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
	logger  *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		plugins: make(map[string]Plugin),
		logger:  logger,
	}
}

// Register installs a plugin. A duplicate name is an error so tool
// ownership stays unambiguous.
func (r *Registry) Register(plugin Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := plugin.Name()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.plugins[name] = plugin
	r.order = append(r.order, name)
	r.logger.WithField("plugin", name).Info("Plugin registered")
	return nil
}

// AllTools collects every declared tool, in plugin registration order.
func (r *Registry) AllTools() []models.ToolSignature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tools []models.ToolSignature
	for _, name := range r.order {
		tools = append(tools, r.plugins[name].Tools()...)
	}
	return tools
}

// FindOwner returns the name of the plugin declaring toolName, or "".
func (r *Registry) FindOwner(toolName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		for _, tool := range r.plugins[name].Tools() {
			if tool.Name == toolName {
				return name
			}
		}
	}
	return ""
}

// Execute runs toolName on the named plugin. Missing plugins and plugin
// panics come back as error results, never as Go errors or crashes.
func (r *Registry) Execute(ctx context.Context, pluginName, toolName string, args map[string]any) (result models.ToolResult) {
	r.mu.RLock()
	plugin, ok := r.plugins[pluginName]
	r.mu.RUnlock()

	if !ok {
		return errorResult(fmt.Sprintf("plugin %q not found", pluginName))
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.WithFields(logrus.Fields{
				"plugin": pluginName,
				"tool":   toolName,
				"panic":  recovered,
			}).Error("Plugin panicked during tool execution")
			result = errorResult(fmt.Sprintf("tool %q failed: %v", toolName, recovered))
		}
	}()

	return plugin.Execute(ctx, toolName, args)
}
