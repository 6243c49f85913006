package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/shibukawa/authrelay/internal/config"
	"github.com/shibukawa/authrelay/internal/server"
)

var ErrAutocertConflictProvidedFiles = errors.New("autocert is configured; do not provide TLS cert/key files when using autocert")

// ServeCmd represents the command to start the relay
type ServeCmd struct {
	Config        string `short:"c" help:"Configuration file path (missing file means defaults)" default:"authrelay.yaml"`
	Port          string `short:"p" help:"Port to listen on" default:"8000" env:"PORT"`
	Watch         bool   `short:"w" help:"Watch configuration file for changes and reload automatically"`
	HTTPS         bool   `help:"Enable HTTPS server"`
	CertFile      string `help:"Path to TLS certificate file (for HTTPS)"`
	KeyFile       string `help:"Path to TLS private key file (for HTTPS)"`
	ChallengePort string `help:"Port for ACME HTTP-01 challenges when autocert is enabled (empty to disable)" default:"80"`
	Verbose       bool   `short:"v" help:"Enable verbose logging (including health check logs)" env:"AUTHRELAY_VERBOSE"`
}

// Run executes the serve command to start the relay
func (cmd *ServeCmd) Run() error {
	cfg, err := config.LoadConfig(cmd.Config, cmd.Verbose)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	useHTTPS, msg := cfg.PrepareForServe(&config.ServeOptions{Port: cmd.Port, PreferHTTPS: cmd.HTTPS, Verbose: cmd.Verbose})
	if msg != "" {
		color.Cyan(msg)
	}
	cmd.HTTPS = useHTTPS

	if cfg.Autocert != nil && cfg.Autocert.Enabled {
		color.Cyan("🔁 Autocert renewal threshold: %d days", cfg.Autocert.RenewalThreshold)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if insecurePublicURL(cfg.Relay.BaseURL) {
		srv.GetPrettyLogger().Warning("Base URL is plain HTTP on a public host; most OAuth providers only accept HTTPS redirect URIs there")
	}

	if cmd.Watch {
		srv.GetPrettyLogger().Info("Watch mode enabled - configuration will be reloaded automatically on changes")
		if err := cmd.setupConfigWatcher(srv); err != nil {
			return fmt.Errorf("failed to setup config watcher: %w", err)
		}
	}

	if !cmd.HTTPS {
		color.Cyan("🔄 Starting relay with HTTP...")
		return srv.Start(cmd.Port)
	}

	if srv.SupportsAutocert() {
		if cmd.CertFile != "" || cmd.KeyFile != "" {
			return ErrAutocertConflictProvidedFiles
		}
		if cmd.ChallengePort != "" {
			cmd.startChallengeListener(srv)
		}
		color.Cyan("🔄 Starting relay with HTTPS using autocert...")
		return srv.StartTLS(cmd.Port, "", "")
	}

	certFile, keyFile := cmd.CertFile, cmd.KeyFile
	if certFile == "" && keyFile == "" {
		certFile, keyFile = cfg.Relay.TLSCertFile, cfg.Relay.TLSKeyFile
	}
	color.Cyan("🔄 Starting relay with TLS certificates...")
	return srv.StartTLS(cmd.Port, certFile, keyFile)
}

// insecurePublicURL reports whether baseURL is plain HTTP on a non-loopback host
func insecurePublicURL(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return false
	}
	ip := net.ParseIP(host)
	return ip == nil || !ip.IsLoopback()
}

// startChallengeListener answers ACME HTTP-01 challenges and redirects all
// other plain HTTP traffic to HTTPS.
func (cmd *ServeCmd) startChallengeListener(srv *server.Server) {
	challenge := &http.Server{
		Addr:              ":" + cmd.ChallengePort,
		Handler:           srv.ChallengeHandler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.GetPrettyLogger().Error("ACME challenge listener stopped", err)
		}
	}()
}

// setupConfigWatcher sets up file system watching for configuration changes
func (cmd *ServeCmd) setupConfigWatcher(srv *server.Server) error {
	_, err := watchConfigFile(cmd.Config, 500*time.Millisecond, func() {
		cmd.reloadConfig(srv)
	})
	return err
}

// watchConfigFile calls onChange after writes to configPath settle. The
// parent directory is watched so that files replaced by rename, as
// config.SaveConfig does, keep being followed.
func watchConfigFile(configPath string, debounceDelay time.Duration, onChange func()) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	name := filepath.Base(configPath)

	go func() {
		// Debounce timer to avoid multiple rapid reloads
		var debounceTimer *time.Timer

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isConfigEvent(event, name) {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, onChange)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				color.Red("❌ File watcher error: %v", err)
			}
		}
	}()

	return watcher.Close, nil
}

// isConfigEvent reports whether event writes or recreates the file called name
func isConfigEvent(event fsnotify.Event, name string) bool {
	if filepath.Base(event.Name) != name {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

// reloadConfig reloads the configuration and updates the server
func (cmd *ServeCmd) reloadConfig(srv *server.Server) {
	color.Cyan("\n🔄 Configuration file changed, reloading...")

	newCfg, err := config.LoadConfig(cmd.Config, cmd.Verbose)
	if err != nil {
		srv.GetPrettyLogger().ConfigReloadFailed(cmd.Config, err)
		return
	}
	newCfg.PrepareForServe(&config.ServeOptions{Port: cmd.Port, PreferHTTPS: cmd.HTTPS, Verbose: cmd.Verbose})

	if err := srv.UpdateConfig(newCfg); err != nil {
		srv.GetPrettyLogger().ConfigReloadFailed(cmd.Config, err)
		return
	}
}
