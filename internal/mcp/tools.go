package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shibukawa/authrelay/internal/config"
	"github.com/shibukawa/authrelay/internal/relay"
)

// registerTools registers all available MCP tools
func (s *MCPServer) registerTools() {
	for _, tool := range []Tool{
		&InitTool{server: s},
		&QueryConfigTool{server: s},
		&ModifyConfigTool{server: s},
		&PreviewRedirectTool{server: s},
	} {
		s.tools[tool.Name()] = tool
	}
}

var configPathProperty = map[string]any{
	"type":        "string",
	"description": "Path to configuration file",
}

// InitTool writes a fresh configuration file.
type InitTool struct {
	server *MCPServer
}

func (t *InitTool) Name() string { return "authrelay_init" }

func (t *InitTool) Description() string {
	return "Create an auth relay configuration file"
}

func (t *InitTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"config_path": configPathProperty,
			"base_url": map[string]any{
				"type":        "string",
				"description": "Public URL of the relay",
			},
			"default_scheme": map[string]any{
				"type":        "string",
				"description": "App URL scheme used when source_app is absent",
				"default":     relay.DefaultScheme,
			},
			"dev_tunnel_url": map[string]any{
				"type":        "string",
				"description": "Expo Go address used when dev_mode=true",
				"default":     relay.DefaultDevTunnelURL,
			},
			"presentation": map[string]any{
				"type":        "string",
				"description": "How callbacks are answered",
				"enum":        []string{string(relay.PresentationInterstitial), string(relay.PresentationRedirect)},
				"default":     string(relay.PresentationInterstitial),
			},
			"overwrite": map[string]any{
				"type":        "boolean",
				"description": "Replace an existing file",
				"default":     false,
			},
		},
		"required": []string{"config_path"},
	}
}

func (t *InitTool) Execute(_ context.Context, args map[string]any) (any, error) {
	configPath, ok := args["config_path"].(string)
	if !ok || configPath == "" {
		return nil, ErrConfigPathRequired
	}
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	if overwrite, _ := args["overwrite"].(bool); !overwrite {
		if _, err := os.Stat(absPath); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrConfigExists, absPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to check config path: %w", err)
		}
	}

	cfg := config.Default()
	opts := &config.InitOptions{}
	opts.BaseURL, _ = args["base_url"].(string)
	opts.DefaultScheme, _ = args["default_scheme"].(string)
	opts.DevTunnelURL, _ = args["dev_tunnel_url"].(string)
	opts.Presentation, _ = args["presentation"].(string)
	cfg.ApplyInitOptions(opts)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := config.SaveConfig(absPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}
	t.server.configPath = absPath

	return map[string]any{
		"status":      "success",
		"config_path": absPath,
		"message":     "Configuration initialized successfully",
	}, nil
}

// QueryConfigTool reports the effective configuration.
type QueryConfigTool struct {
	server *MCPServer
}

func (t *QueryConfigTool) Name() string { return "authrelay_query_config" }

func (t *QueryConfigTool) Description() string {
	return "Show the effective auth relay configuration, including defaults and environment overrides"
}

func (t *QueryConfigTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"config_path": configPathProperty,
		},
	}
}

func (t *QueryConfigTool) Execute(_ context.Context, args map[string]any) (any, error) {
	t.server.useConfigPath(args)

	cfg, err := t.server.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	result := map[string]any{
		"relay": map[string]any{
			"base_url":        cfg.Relay.BaseURL,
			"redirect_path":   cfg.Relay.RedirectPath,
			"default_scheme":  cfg.Relay.DefaultScheme,
			"dev_tunnel_url":  cfg.Relay.DevTunnelURL,
			"presentation":    cfg.Relay.Presentation,
			"countdown_ms":    cfg.Relay.CountdownMS,
			"hide_code":       cfg.Relay.HideCode,
			"verbose_logging": cfg.Relay.VerboseLogging,
		},
	}
	if cfg.CORS != nil {
		result["cors"] = map[string]any{
			"enabled":         cfg.CORS.Enabled,
			"allowed_origins": cfg.CORS.AllowedOrigins,
		}
	}
	if cfg.Autocert != nil && cfg.Autocert.Enabled {
		result["autocert"] = map[string]any{
			"domains": cfg.Autocert.Domains,
			"staging": cfg.Autocert.Staging,
		}
	}
	return result, nil
}

// ModifyConfigTool updates relay settings in the configuration file.
type ModifyConfigTool struct {
	server *MCPServer
}

func (t *ModifyConfigTool) Name() string { return "authrelay_modify_config" }

func (t *ModifyConfigTool) Description() string {
	return "Update relay settings in the configuration file"
}

func (t *ModifyConfigTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"config_path": configPathProperty,
			"updates": map[string]any{
				"type":        "object",
				"description": "Relay fields to change: base_url, default_scheme, dev_tunnel_url, presentation, countdown_ms, hide_code, verbose_logging",
			},
		},
		"required": []string{"updates"},
	}
}

func (t *ModifyConfigTool) Execute(_ context.Context, args map[string]any) (any, error) {
	updates, ok := args["updates"].(map[string]any)
	if !ok {
		return nil, ErrUpdatesRequired
	}
	t.server.useConfigPath(args)

	cfg, err := t.server.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var applied []string
	for key, value := range updates {
		if err := applyRelayUpdate(&cfg.Relay, key, value); err != nil {
			return nil, err
		}
		applied = append(applied, key)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.SaveConfig(t.server.configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	return map[string]any{
		"status":  "success",
		"updated": len(applied),
		"message": "Configuration updated successfully",
	}, nil
}

// applyRelayUpdate sets one relay field from a JSON value
func applyRelayUpdate(rc *config.RelayConfig, key string, value any) error {
	switch key {
	case "base_url", "default_scheme", "dev_tunnel_url", "presentation":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", ErrInvalidUpdate, key)
		}
		switch key {
		case "base_url":
			rc.BaseURL = s
		case "default_scheme":
			rc.DefaultScheme = s
		case "dev_tunnel_url":
			rc.DevTunnelURL = s
		default:
			rc.Presentation = s
		}
	case "countdown_ms":
		n, ok := value.(float64)
		if !ok {
			return fmt.Errorf("%w: %s must be a number", ErrInvalidUpdate, key)
		}
		rc.CountdownMS = int(n)
	case "hide_code", "verbose_logging":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidUpdate, key)
		}
		if key == "hide_code" {
			rc.HideCode = b
		} else {
			rc.VerboseLogging = b
		}
	default:
		return fmt.Errorf("%w: unknown field %s", ErrInvalidUpdate, key)
	}
	return nil
}

// PreviewRedirectTool resolves a callback offline and reports where it would go.
type PreviewRedirectTool struct {
	server *MCPServer
}

func (t *PreviewRedirectTool) Name() string { return "authrelay_preview_redirect" }

func (t *PreviewRedirectTool) Description() string {
	return "Preview where a callback URL or query string would be relayed, without serving it"
}

func (t *PreviewRedirectTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"config_path": configPathProperty,
			"callback": map[string]any{
				"type":        "string",
				"description": "Callback URL (https://host/google-auth-redirect?code=...) or bare query string",
			},
		},
		"required": []string{"callback"},
	}
}

func (t *PreviewRedirectTool) Execute(_ context.Context, args map[string]any) (any, error) {
	callback, ok := args["callback"].(string)
	if !ok {
		return nil, ErrCallbackRequired
	}
	t.server.useConfigPath(args)

	cfg, err := t.server.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := relay.NewResolver(cfg.ResolverOptions()).Resolve(relay.ParseCallback(callback))
	return d.Summary(), nil
}
