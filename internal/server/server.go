// Package server exposes the callback relay over HTTP.
package server

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shibukawa/authrelay/internal/config"
	"github.com/shibukawa/authrelay/internal/relay"
)

var (
	ErrConfigurationCannotBeNil     = errors.New("configuration cannot be nil")
	ErrRedirectPathCannotBeChanged  = errors.New("redirect path cannot be changed at runtime")
	ErrAutocertConflictProvidedCert = errors.New("autocert is configured AND TLS certificate/key were provided; choose one")
	ErrNoCertificate                = errors.New("no autocert configured and TLS certificate/key not provided")
)

// Server serves the callback relay.
type Server struct {
	mu       sync.RWMutex
	config   *config.Config
	resolver *relay.Resolver

	logger       *slog.Logger
	prettyLog    *Logger
	interstitial *template.Template
	startedAt    time.Time

	// Autocert manager (optional)
	autocertManager *AutocertManager
}

// SupportsAutocert reports whether this Server has an initialized autocert manager.
func (s *Server) SupportsAutocert() bool {
	return s != nil && s.autocertManager != nil
}

// New creates a relay server that writes structured logs to slog.Default()
func New(cfg *config.Config) (*Server, error) {
	return NewServer(cfg, slog.Default())
}

// NewServer creates a relay server with an explicit structured logger
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, ErrConfigurationCannotBeNil
	}

	tmpl, err := parseInterstitialTemplate()
	if err != nil {
		return nil, fmt.Errorf("failed to parse interstitial template: %w", err)
	}

	server := &Server{
		config:       cfg,
		resolver:     relay.NewResolver(cfg.ResolverOptions()),
		logger:       logger,
		prettyLog:    NewLogger(),
		interstitial: tmpl,
		startedAt:    time.Now(),
	}

	if cfg.Autocert != nil && cfg.Autocert.Enabled {
		am, err := NewAutocertManager(cfg.Autocert, server.prettyLog)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize autocert manager: %w", err)
		}
		server.autocertManager = am
	}

	return server, nil
}

// snapshot returns the configuration and resolver currently in effect
func (s *Server) snapshot() (*config.Config, *relay.Resolver) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, s.resolver
}

// Handler returns the HTTP handler with all relay routes and middleware.
func (s *Server) Handler() http.Handler {
	cfg, _ := s.snapshot()

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Relay.RedirectPath, s.handleRedirect)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/docs", s.handleDocs)
	mux.HandleFunc("/", s.handleRoot)

	// CORS first (outermost), then logging, request id and the HEAD catch-all
	handler := headMiddleware(mux)
	handler = requestIDMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return newCORSMiddleware(func() *config.CORSConfig {
		cfg, _ := s.snapshot()
		return cfg.CORS
	})(handler)
}

// Start starts the relay over plain HTTP
func (s *Server) Start(port string) error {
	addr := fmt.Sprintf(":%s", port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	cfg, resolver := s.snapshot()
	s.prettyLog.ServerStarting(addr, cfg.Relay.BaseURL, cfg.Relay.RedirectPath, resolver.Options(), false)
	return server.ListenAndServe()
}

// StartTLS starts the relay with TLS. Autocert is used when configured,
// otherwise certFile and keyFile are required.
func (s *Server) StartTLS(port, certFile, keyFile string) error {
	addr := fmt.Sprintf(":%s", port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	cfg, resolver := s.snapshot()
	s.prettyLog.ServerStarting(addr, cfg.Relay.BaseURL, cfg.Relay.RedirectPath, resolver.Options(), true)

	if s.autocertManager != nil {
		if certFile != "" || keyFile != "" {
			return ErrAutocertConflictProvidedCert
		}
		server.TLSConfig = s.autocertManager.GetTLSConfig()
		return server.ListenAndServeTLS("", "")
	}

	if certFile == "" || keyFile == "" {
		return ErrNoCertificate
	}
	return server.ListenAndServeTLS(certFile, keyFile)
}

// ChallengeHandler wraps fallback with the ACME HTTP-01 challenge responder
// when autocert is configured.
func (s *Server) ChallengeHandler(fallback http.Handler) http.Handler {
	if s.autocertManager == nil {
		return fallback
	}
	return s.autocertManager.HTTPHandler(fallback)
}

// UpdateConfig swaps the relay settings at runtime. Routes are fixed once the
// handler is built, so the redirect path must stay the same.
func (s *Server) UpdateConfig(newConfig *config.Config) error {
	if newConfig == nil {
		return ErrConfigurationCannotBeNil
	}

	s.mu.Lock()
	old := s.config
	if old.Relay.RedirectPath != newConfig.Relay.RedirectPath {
		s.mu.Unlock()
		return fmt.Errorf("%w: old=%s, new=%s",
			ErrRedirectPathCannotBeChanged, old.Relay.RedirectPath, newConfig.Relay.RedirectPath)
	}
	s.config = newConfig
	s.resolver = relay.NewResolver(newConfig.ResolverOptions())
	s.mu.Unlock()

	s.prettyLog.ConfigReloaded("configuration", configChanges(old, newConfig))
	return nil
}

// configChanges describes what differs between two relay configurations
func configChanges(old, updated *config.Config) []string {
	var changes []string
	diff := func(name string, before, after any) {
		if before != after {
			changes = append(changes, fmt.Sprintf("%s: %v → %v", name, before, after))
		}
	}
	diff("Default Scheme", old.Relay.DefaultScheme, updated.Relay.DefaultScheme)
	diff("Dev Tunnel", old.Relay.DevTunnelURL, updated.Relay.DevTunnelURL)
	diff("Presentation", old.Relay.Presentation, updated.Relay.Presentation)
	diff("Countdown (ms)", old.Relay.CountdownMS, updated.Relay.CountdownMS)
	diff("Hide Code", old.Relay.HideCode, updated.Relay.HideCode)
	diff("Verbose Logging", old.Relay.VerboseLogging, updated.Relay.VerboseLogging)
	diff("CORS", describeCORS(old.CORS), describeCORS(updated.CORS))
	return changes
}

func describeCORS(c *config.CORSConfig) string {
	c = applyCORSDefaults(c)
	if !c.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("origins=%s methods=%s headers=%s",
		strings.Join(c.AllowedOrigins, ","), strings.Join(c.AllowedMethods, ","), strings.Join(c.AllowedHeaders, ","))
}

// GetPrettyLogger returns the colorful logger for external use
func (s *Server) GetPrettyLogger() *Logger {
	return s.prettyLog
}

// loggingMiddleware provides colorful HTTP request logging with CORS debugging info
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		// Health probes are noisy; only log them in verbose mode
		if r.URL.Path == "/health" {
			if cfg, _ := s.snapshot(); !cfg.Relay.VerboseLogging {
				return
			}
		}

		origin := r.Header.Get("Origin")
		corsOrigin := wrapper.Header().Get("Access-Control-Allow-Origin")
		if origin != "" || corsOrigin != "" {
			s.prettyLog.RequestLogWithCORS(r.Method, r.URL.Path, wrapper.statusCode, duration, origin, corsOrigin)
		} else {
			s.prettyLog.RequestLog(r.Method, r.URL.Path, wrapper.statusCode, duration)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// headMiddleware answers HEAD on every path with an empty 200.
func headMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
