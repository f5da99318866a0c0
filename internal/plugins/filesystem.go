package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// FileSystemPlugin exposes read-only filesystem tools sandboxed under a
// root directory. Paths escaping the root are rejected before touching
// the disk.
type FileSystemPlugin struct {
	root string
}

func NewFileSystemPlugin(root string) (*FileSystemPlugin, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	return &FileSystemPlugin{root: abs}, nil
}

func (p *FileSystemPlugin) Name() string { return "file_system" }

func (p *FileSystemPlugin) Tools() []models.ToolSignature {
	return []models.ToolSignature{
		{
			Name:        "list_directory",
			Description: "Lists the contents (files and directories) of a path relative to the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "The directory path to list."},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "read_file",
			Description: "Reads and returns the contents of a specific text file.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "The file path to read."},
				},
				"required": []string{"path"},
			},
		},
	}
}

func (p *FileSystemPlugin) Execute(_ context.Context, toolName string, args map[string]any) models.ToolResult {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}

	fullPath, err := p.resolve(path)
	if err != nil {
		return errorResult(fmt.Sprintf("access denied: path %q is outside the workspace", path))
	}

	switch toolName {
	case "list_directory":
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return errorResult(fmt.Sprintf("path %q is not a readable directory", path))
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		return successResult(names)

	case "read_file":
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return errorResult(fmt.Sprintf("file %q could not be read", path))
		}
		return successResult(string(content))

	default:
		return errorResult(fmt.Sprintf("tool %q is not provided by the %s plugin", toolName, p.Name()))
	}
}

// resolve joins path under the sandbox root and rejects escapes.
func (p *FileSystemPlugin) resolve(path string) (string, error) {
	full := filepath.Clean(filepath.Join(p.root, path))
	if full != p.root && !strings.HasPrefix(full, p.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox root")
	}
	return full, nil
}
