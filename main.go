// Package main provides the authrelay command-line interface
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/shibukawa/authrelay/internal/config"
	"github.com/shibukawa/authrelay/internal/mcp"
	"github.com/shibukawa/authrelay/internal/relay"
)

// Static errors for main.
var (
	ErrInvalidPresentationChoice = errors.New("invalid presentation choice")
	ErrFilesExist                = errors.New("files already exist and would be overwritten")
	ErrHealthCheckFailed         = errors.New("health check failed")
)

// cli is the main command-line interface structure.
var cli struct {
	Init    InitCmd    `cmd:"" help:"Initialize configuration file"`
	Serve   ServeCmd   `cmd:"" help:"Start the OAuth callback relay" default:"1"`
	Resolve ResolveCmd `cmd:"" help:"Show where a callback would be relayed without serving it"`
	MCP     MCPCmd     `cmd:"" help:"Start MCP (Model Context Protocol) server"`
	Health  HealthCmd  `cmd:"" help:"Check server health"`
}

// MCPCmd represents the command to start MCP server
type MCPCmd struct {
	Port   int    `help:"Port to listen on for HTTP mode (stdin/stdout when zero)" default:"0"`
	Config string `short:"c" help:"Configuration file path" default:"authrelay.yaml"`
}

// Run executes the MCP server command
func (cmd *MCPCmd) Run() error {
	mcpServer := mcp.NewMCPServer(cmd.Config)
	ctx := context.Background()

	if cmd.Port != 0 {
		color.Cyan("🌐 Starting MCP HTTP server on port %d", cmd.Port)
		return mcpServer.ServeHTTP(ctx, fmt.Sprintf("%d", cmd.Port))
	}

	// stdout carries the protocol, so the banner goes to stderr
	fmt.Fprintln(os.Stderr, color.CyanString("🔌 Starting MCP server in stdin/stdout mode"))
	return mcpServer.ServeStdioProcess(ctx)
}

// ResolveCmd previews the relay decision for a callback URL or query string
type ResolveCmd struct {
	Callback string `arg:"" help:"Callback URL or query string, e.g. 'code=abc&source_app=myapp'"`
	Config   string `short:"c" help:"Configuration file path" default:"authrelay.yaml"`

	out io.Writer `kong:"-"`
}

// Run executes the resolve command
func (cmd *ResolveCmd) Run() error {
	cfg, err := config.LoadConfig(cmd.Config, false)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	d := relay.NewResolver(cfg.ResolverOptions()).Resolve(relay.ParseCallback(cmd.Callback))

	out := cmd.out
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d.Summary()); err != nil {
		return fmt.Errorf("failed to write decision: %w", err)
	}

	if !d.Outcome.Healthy() {
		fmt.Fprintln(os.Stderr, color.YellowString("⚠️  Callback carries no credentials (%s)", d.Outcome))
	}
	return nil
}

// HealthCmd represents the command to check server health
type HealthCmd struct {
	URL     string        `help:"Server URL to check (auto-detects protocol/port if not specified)" default:""`
	Port    string        `help:"Port to check (overrides URL port)" default:"" env:"PORT"`
	Config  string        `short:"c" help:"Configuration file path for auto-detection" default:"authrelay.yaml"`
	Timeout time.Duration `help:"Request timeout" default:"10s"`
}

// Run executes the health check command
func (cmd *HealthCmd) Run() error {
	healthURL := cmd.buildHealthURL()

	// Self-signed and local certificates are common for health checks
	client := &http.Client{
		Timeout: cmd.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	color.Cyan("🔍 Checking server health at %s", healthURL)

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		color.Red("❌ Failed to connect to server: %v", err)
		return fmt.Errorf("%w: %w", ErrHealthCheckFailed, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			color.Yellow("⚠️  Warning: failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusOK {
		color.Green("✅ Server is healthy")
		return nil
	}
	color.Red("❌ Server returned status: %d", resp.StatusCode)
	return fmt.Errorf("%w: status %d", ErrHealthCheckFailed, resp.StatusCode)
}

// buildHealthURL constructs the health check URL with auto-detection
func (cmd *HealthCmd) buildHealthURL() string {
	if cmd.URL != "" {
		return strings.TrimRight(cmd.URL, "/") + "/health"
	}

	protocol := "http"
	port := config.DefaultPort
	hostname := "localhost"

	if _, err := os.Stat(cmd.Config); err == nil {
		if cfg, err := config.LoadConfig(cmd.Config, false); err == nil {
			switch {
			case cfg.Autocert != nil && cfg.Autocert.Enabled:
				protocol = "https"
				port = "443"
				if len(cfg.Autocert.Domains) > 0 {
					hostname = cfg.Autocert.Domains[0]
				}
			case cfg.Relay.TLSCertFile != "":
				protocol = "https"
			}
		}
	}

	if cmd.Port != "" {
		port = cmd.Port
	}

	return fmt.Sprintf("%s://%s:%s/health", protocol, hostname, port)
}

func main() {
	execName := filepath.Base(os.Args[0])

	ctx := kong.Parse(&cli,
		kong.Name(execName),
		kong.Description("OAuth callback relay for mobile apps"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	if err := ctx.Run(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
