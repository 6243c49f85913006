// Package mcp provides Model Context Protocol server implementation
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/shibukawa/authrelay/internal/docs"
)

// Static errors for MCP operations.
var (
	ErrConfigPathNotSet   = errors.New("configuration path not set")
	ErrConfigPathRequired = errors.New("config_path is required and must be a string")
	ErrConfigExists       = errors.New("configuration file already exists")
	ErrUpdatesRequired    = errors.New("updates is required and must be an object")
	ErrInvalidUpdate      = errors.New("invalid update")
	ErrCallbackRequired   = errors.New("callback is required and must be a string")
)

// registerResources registers all available MCP resources.
func (s *MCPServer) registerResources() {
	for _, resource := range []Resource{
		&CurrentConfigResource{server: s},
		&UsageResource{},
	} {
		s.resources[resource.URI()] = resource
	}
}

// CurrentConfigResource exposes the configuration file.
type CurrentConfigResource struct {
	server *MCPServer
}

func (r *CurrentConfigResource) URI() string         { return "authrelay://config" }
func (r *CurrentConfigResource) Name() string        { return "Current Configuration" }
func (r *CurrentConfigResource) Description() string { return "Auth relay configuration file" }
func (r *CurrentConfigResource) MimeType() string    { return "application/yaml" }

// Content returns the raw file, or the defaults rendered as YAML when the
// file does not exist yet.
func (r *CurrentConfigResource) Content(_ context.Context) ([]byte, error) {
	if r.server.configPath == "" {
		return nil, ErrConfigPathNotSet
	}

	content, err := os.ReadFile(r.server.configPath)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := r.server.loadConfig()
	if err != nil {
		return nil, err
	}
	yamlContent, err := cfg.YAML()
	if err != nil {
		return nil, err
	}
	return []byte(yamlContent), nil
}

// UsageResource exposes the usage guide.
type UsageResource struct{}

func (r *UsageResource) URI() string         { return "authrelay://usage" }
func (r *UsageResource) Name() string        { return "Usage Guide" }
func (r *UsageResource) Description() string { return "Callback parameters and response formats" }
func (r *UsageResource) MimeType() string    { return "text/markdown" }

func (r *UsageResource) Content(_ context.Context) ([]byte, error) {
	return docs.Markdown(), nil
}
