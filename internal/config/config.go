// Package config provides functionality to manage authrelay configuration
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	neturl "net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/goccy/go-yaml"
	"github.com/shibukawa/authrelay/internal/relay"
)

var (
	ErrAutocertDomainsRequired = errors.New("autocert.domains is required when autocert is enabled")
	ErrAutocertEmailRequired   = errors.New("autocert.email is required when autocert is enabled")
	ErrAutocertAgreeTOS        = errors.New("autocert.agree_tos must be true when autocert is enabled")
	ErrAutocertConflict        = errors.New("autocert is enabled but TLS cert/key are also configured in relay config; choose one method")
	ErrInvalidRenewalThreshold = errors.New("autocert renewal threshold must be a positive number of days")
)

// Static errors for better error handling.
var (
	ErrInvalidRedirectPath = errors.New("relay.redirect_path must start with '/'")
	ErrInvalidCountdown    = errors.New("relay.countdown_ms must not be negative")
	ErrInvalidDevTunnelURL = errors.New("relay.dev_tunnel_url must be an absolute URL")
	ErrReservedPath        = errors.New("relay.redirect_path collides with a built-in endpoint")
	ErrRedirectPathChars   = errors.New("relay.redirect_path must not contain whitespace, control characters, '{', '}', '?' or '#'")
)

// Defaults used when the configuration file leaves a value unset.
const (
	DefaultPort         = "8000"
	DefaultRedirectPath = "/google-auth-redirect"
	DefaultCountdownMS  = 1000
	DefaultConfigFile   = "authrelay.yaml"
)

// ReservedPaths are served by the relay itself and cannot be used as the
// redirect path.
var ReservedPaths = []string{"/", "/health", "/docs"}

// Config represents the authrelay configuration.
type Config struct {
	Relay    RelayConfig     `yaml:"relay"`
	CORS     *CORSConfig     `yaml:"cors,omitempty"`
	Autocert *AutocertConfig `yaml:"autocert,omitempty"`
}

// RelayConfig represents the redirect relay settings.
type RelayConfig struct {
	// BaseURL is the public URL of this service, used for display only.
	BaseURL       string `yaml:"base_url,omitempty"`
	RedirectPath  string `yaml:"redirect_path,omitempty"`
	DefaultScheme string `yaml:"default_scheme,omitempty"`
	DevTunnelURL  string `yaml:"dev_tunnel_url,omitempty"`
	// Presentation is "interstitial" (HTML page) or "redirect" (302).
	Presentation string `yaml:"presentation,omitempty"`
	CountdownMS  int    `yaml:"countdown_ms,omitempty"`
	HideCode     bool   `yaml:"hide_code,omitempty"`
	// TLS certificate file paths for serving HTTPS when not using autocert.
	TLSCertFile    string `yaml:"tls_cert_file,omitempty"`
	TLSKeyFile     string `yaml:"tls_key_file,omitempty"`
	VerboseLogging bool   `yaml:"verbose_logging,omitempty"`
}

// CORSConfig represents Cross-Origin Resource Sharing configuration.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty"`
}

// AutocertConfig represents automatic HTTPS certificate configuration.
type AutocertConfig struct {
	Enabled            bool     `yaml:"enabled,omitempty"`
	Domains            []string `yaml:"domains,omitempty"`
	Email              string   `yaml:"email,omitempty"`
	AgreeTOS           bool     `yaml:"agree_tos,omitempty"`
	CacheDir           string   `yaml:"cache_dir,omitempty"`
	ACMEServer         string   `yaml:"acme_server,omitempty"`
	Staging            bool     `yaml:"staging,omitempty"`
	RenewalThreshold   int      `yaml:"renewal_threshold,omitempty"` // Days before expiry to renew
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify,omitempty"`
}

// Default returns the configuration used when no file is present. It mirrors
// the behavior of the hosted relay: interstitial page, permissive CORS.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			RedirectPath:  DefaultRedirectPath,
			DefaultScheme: relay.DefaultScheme,
			DevTunnelURL:  relay.DefaultDevTunnelURL,
			Presentation:  string(relay.PresentationInterstitial),
			CountdownMS:   DefaultCountdownMS,
		},
		CORS: &CORSConfig{
			Enabled: true,
		},
	}
}

// ResolverOptions converts the relay section into resolver options
func (c *Config) ResolverOptions() relay.Options {
	// Validate has already rejected unknown presentations
	p, _ := relay.ParsePresentation(c.Relay.Presentation)
	return relay.Options{
		DefaultScheme: c.Relay.DefaultScheme,
		DevTunnelURL:  c.Relay.DevTunnelURL,
		Presentation:  p,
	}
}

// Validate checks the relay section and fills defaults for empty values.
func (c *Config) Validate() error {
	if c.Relay.RedirectPath == "" {
		c.Relay.RedirectPath = DefaultRedirectPath
	}
	if !strings.HasPrefix(c.Relay.RedirectPath, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRedirectPath, c.Relay.RedirectPath)
	}
	if strings.ContainsFunc(c.Relay.RedirectPath, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("{}?#", r)
	}) {
		return fmt.Errorf("%w: %q", ErrRedirectPathChars, c.Relay.RedirectPath)
	}
	if slices.Contains(ReservedPaths, c.Relay.RedirectPath) {
		return fmt.Errorf("%w: %q", ErrReservedPath, c.Relay.RedirectPath)
	}
	if c.Relay.DefaultScheme == "" {
		c.Relay.DefaultScheme = relay.DefaultScheme
	}
	if c.Relay.DevTunnelURL == "" {
		c.Relay.DevTunnelURL = relay.DefaultDevTunnelURL
	}
	if u, err := neturl.Parse(c.Relay.DevTunnelURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidDevTunnelURL, c.Relay.DevTunnelURL)
	}
	p, err := relay.ParsePresentation(c.Relay.Presentation)
	if err != nil {
		return fmt.Errorf("relay.presentation: %w", err)
	}
	c.Relay.Presentation = string(p)
	if c.Relay.CountdownMS < 0 {
		return ErrInvalidCountdown
	}
	if c.Relay.CountdownMS == 0 {
		c.Relay.CountdownMS = DefaultCountdownMS
	}
	return c.ValidateAutocertConfig()
}

// loadConfig loads configuration from a YAML file on top of the defaults.
// A missing file yields the defaults.
func loadConfig(configPath string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a YAML file using text template.
func SaveConfig(configPath string, config *Config) error {
	// Resolve the absolute path
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	// Ensure the directory exists
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	yamlContent, err := generateConfigYAML(config)
	if err != nil {
		return fmt.Errorf("failed to generate config YAML: %w", err)
	}

	// Write to file atomically
	tempFile := absPath + ".tmp"
	if err := os.WriteFile(tempFile, []byte(yamlContent), 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, absPath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// InitializeConfig creates a new configuration file with default settings.
func InitializeConfig(configPath string) error {
	return SaveConfig(configPath, Default())
}

// InitOptions contains the values coming from the CLI init command.
type InitOptions struct {
	BaseURL       string
	DefaultScheme string
	DevTunnelURL  string
	Presentation  string
	Autocert      bool
	ACMEServer    string
	Domains       []string
	Email         string
	CacheDir      string
}

// ApplyInitOptions applies initialization options (from CLI) to the configuration.
func (c *Config) ApplyInitOptions(opts *InitOptions) {
	if opts == nil {
		return
	}
	if opts.BaseURL != "" {
		c.Relay.BaseURL = opts.BaseURL
	}
	if opts.DefaultScheme != "" {
		c.Relay.DefaultScheme = opts.DefaultScheme
	}
	if opts.DevTunnelURL != "" {
		c.Relay.DevTunnelURL = opts.DevTunnelURL
	}
	if opts.Presentation != "" {
		c.Relay.Presentation = opts.Presentation
	}

	if opts.Autocert {
		if c.Autocert == nil {
			c.Autocert = &AutocertConfig{}
		}
		c.Autocert.Enabled = true
		c.Autocert.AgreeTOS = true
		if opts.ACMEServer != "" {
			c.Autocert.ACMEServer = opts.ACMEServer
		}
		if opts.Email != "" {
			c.Autocert.Email = opts.Email
		}
		if opts.CacheDir != "" {
			c.Autocert.CacheDir = opts.CacheDir
		} else if c.Autocert.CacheDir == "" {
			c.Autocert.CacheDir = "/tmp/autocert"
		}
		if len(opts.Domains) > 0 {
			c.Autocert.Domains = opts.Domains
		}
	}
}

// ServeOptions contains parameters used by the serve command to prepare the
// configuration before starting the server.
type ServeOptions struct {
	Port        string
	PreferHTTPS bool
	Verbose     bool
}

// PrepareForServe applies serve-time defaults to the configuration and returns
// whether HTTPS should be used and an optional message (e.g., auto-enable hint).
func (c *Config) PrepareForServe(opts *ServeOptions) (useHTTPS bool, message string) {
	if opts == nil {
		return false, ""
	}

	useHTTPS = opts.PreferHTTPS
	if strings.HasPrefix(c.Relay.BaseURL, "https://") {
		useHTTPS = true
	}
	if c.Autocert != nil && c.Autocert.Enabled {
		useHTTPS = true
		message = "🔧 Auto-enabling HTTPS mode due to autocert configuration"
	}
	if opts.Verbose {
		c.Relay.VerboseLogging = true
	}

	if c.Relay.BaseURL == "" {
		if useHTTPS {
			c.Relay.BaseURL = fmt.Sprintf("https://localhost:%s", opts.Port)
		} else {
			c.Relay.BaseURL = fmt.Sprintf("http://localhost:%s", opts.Port)
		}
	}
	c.Relay.BaseURL = synchronizeLocalPort(c.Relay.BaseURL, opts.Port)

	return useHTTPS, message
}

func synchronizeLocalPort(baseURL, port string) string {
	if baseURL == "" || port == "" {
		return baseURL
	}
	parsed, err := neturl.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return baseURL
	}
	host := parsed.Hostname()
	if !isLocalLoopbackHost(host) {
		return baseURL
	}
	parsed.Host = net.JoinHostPort(host, port)
	return parsed.String()
}

func isLocalLoopbackHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// generateConfigYAML generates YAML configuration using text template
func generateConfigYAML(config *Config) (string, error) {
	tmpl := `# Auth redirect relay settings
relay:{{if .Relay.BaseURL}}
  base_url: "{{.Relay.BaseURL}}"{{else}}
  # base_url: "https://auth.example.com"{{end}}
  redirect_path: "{{.Relay.RedirectPath}}"   # Callback path registered with the OAuth provider
  default_scheme: "{{.Relay.DefaultScheme}}"          # App scheme used when source_app is absent
  dev_tunnel_url: "{{.Relay.DevTunnelURL}}"   # Expo Go address used when dev_mode=true
  presentation: "{{.Relay.Presentation}}"          # interstitial (HTML page) or redirect (302)
  countdown_ms: {{.Relay.CountdownMS}}                      # Delay before the interstitial page follows the link
  hide_code: {{.Relay.HideCode}}                       # Hide the manual copy code on the interstitial page{{if .Relay.TLSCertFile}}
  tls_cert_file: "{{.Relay.TLSCertFile}}"{{end}}{{if .Relay.TLSKeyFile}}
  tls_key_file: "{{.Relay.TLSKeyFile}}"{{end}}{{if .Relay.VerboseLogging}}
  verbose_logging: true{{end}}
{{if .Autocert}}
# Automatic HTTPS certificate configuration
autocert:
  enabled: {{.Autocert.Enabled}}{{if .Autocert.Domains}}
  domains:{{range .Autocert.Domains}}
    - "{{.}}"{{end}}{{end}}{{if .Autocert.Email}}
  email: "{{.Autocert.Email}}"{{end}}
  agree_tos: {{.Autocert.AgreeTOS}}{{if .Autocert.CacheDir}}
  cache_dir: "{{.Autocert.CacheDir}}"{{end}}{{if .Autocert.ACMEServer}}
  acme_server: "{{.Autocert.ACMEServer}}"{{end}}
  staging: {{.Autocert.Staging}}
  renewal_threshold: {{.Autocert.RenewalThreshold}}{{if .Autocert.InsecureSkipVerify}}
  insecure_skip_verify: true{{end}}
{{end}}{{if .CORS}}
# CORS (Cross-Origin Resource Sharing) settings
cors:
  enabled: {{.CORS.Enabled}}{{if .CORS.AllowedOrigins}}
  allowed_origins:{{range .CORS.AllowedOrigins}}
    - "{{.}}"{{end}}{{end}}{{if .CORS.AllowedMethods}}
  allowed_methods:{{range .CORS.AllowedMethods}}
    - "{{.}}"{{end}}{{end}}{{if .CORS.AllowedHeaders}}
  allowed_headers:{{range .CORS.AllowedHeaders}}
    - "{{.}}"{{end}}{{end}}
{{end}}`

	t, err := template.New("config").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var result strings.Builder
	if err := t.Execute(&result, config); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return result.String(), nil
}

// ValidateAutocertConfig validates the autocert configuration.
func (c *Config) ValidateAutocertConfig() error {
	if c.Autocert == nil || !c.Autocert.Enabled {
		return nil // Disabled or nil autocert is valid
	}

	if len(c.Autocert.Domains) == 0 {
		return ErrAutocertDomainsRequired
	}

	if c.Autocert.Email == "" {
		return ErrAutocertEmailRequired
	}

	if !c.Autocert.AgreeTOS {
		return ErrAutocertAgreeTOS
	}

	if c.Autocert.CacheDir == "" {
		c.Autocert.CacheDir = "./autocert-cache"
	}

	if c.Autocert.RenewalThreshold <= 0 {
		c.Autocert.RenewalThreshold = 30
	}

	// Set ACME server based on staging flag if not explicitly set
	if c.Autocert.ACMEServer == "" {
		if c.Autocert.Staging {
			c.Autocert.ACMEServer = "https://acme-staging-v02.api.letsencrypt.org/directory"
		} else {
			c.Autocert.ACMEServer = "https://acme-v02.api.letsencrypt.org/directory"
		}
	}

	if c.Relay.TLSCertFile != "" || c.Relay.TLSKeyFile != "" {
		return ErrAutocertConflict
	}
	return nil
}

// LoadConfig loads configuration from file, applying environment overrides
// (AUTHRELAY_ prefixed vars) and optional verbose logging, then validates it.
func LoadConfig(configPath string, verbose bool) (*Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if verbose {
		cfg.Relay.VerboseLogging = true
	}

	applyRelayOverrides(cfg)

	// Collect environment-based autocert overrides
	o := &AutocertOverrides{}

	if v := os.Getenv("AUTHRELAY_ACME_DIRECTORY_URL"); v != "" {
		o.ACMEDirectoryURL = v
	}
	if v := os.Getenv("AUTHRELAY_ACME_EMAIL"); v != "" {
		o.Email = v
	}
	if v := os.Getenv("AUTHRELAY_ACME_DOMAIN"); v != "" {
		o.Domain = v
	}
	if v := os.Getenv("AUTHRELAY_ACME_CACHE_DIR"); v != "" {
		o.CacheDir = v
	}
	if v := os.Getenv("AUTHRELAY_ACME_AGREE_TOS"); v != "" {
		b, _ := strconv.ParseBool(v)
		o.AgreeTOS = b
	}
	if v := os.Getenv("AUTHRELAY_ACME_INSECURE_SKIP_VERIFY"); v != "" {
		b, _ := strconv.ParseBool(v)
		o.InsecureSkipVerify = b
	}
	if v := os.Getenv("AUTHRELAY_ACME_RENEWAL_THRESHOLD"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("%w: AUTHRELAY_ACME_RENEWAL_THRESHOLD=%q", ErrInvalidRenewalThreshold, v)
		}
		o.RenewalThreshold = days
	}
	applyAutocertOverrides(cfg, o)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyRelayOverrides applies AUTHRELAY_ relay settings from the environment
func applyRelayOverrides(cfg *Config) {
	if v := os.Getenv("AUTHRELAY_BASE_URL"); v != "" {
		cfg.Relay.BaseURL = v
	}
	if v := os.Getenv("AUTHRELAY_DEFAULT_SCHEME"); v != "" {
		cfg.Relay.DefaultScheme = v
	}
	if v := os.Getenv("AUTHRELAY_DEV_TUNNEL_URL"); v != "" {
		cfg.Relay.DevTunnelURL = v
	}
	if v := os.Getenv("AUTHRELAY_PRESENTATION"); v != "" {
		cfg.Relay.Presentation = v
	}
}

// AutocertOverrides represents environment variable overrides for autocert
type AutocertOverrides struct {
	ACMEDirectoryURL   string
	Email              string
	Domain             string
	CacheDir           string
	AgreeTOS           bool
	InsecureSkipVerify bool
	RenewalThreshold   int
}

// applyAutocertOverrides applies autocert environment variable overrides to
// configuration. Directory, email, domain or cache settings enable autocert
// even when the file disables it; InsecureSkipVerify and RenewalThreshold
// only tune an autocert section that exists.
func applyAutocertOverrides(cfg *Config, overrides *AutocertOverrides) {
	if overrides == nil {
		return
	}
	enabling := overrides.ACMEDirectoryURL != "" || overrides.Email != "" || overrides.Domain != "" || overrides.CacheDir != ""
	if !enabling && cfg.Autocert == nil {
		return
	}

	if cfg.Autocert == nil {
		cfg.Autocert = &AutocertConfig{}
	}
	if enabling {
		cfg.Autocert.Enabled = true
	}

	if overrides.ACMEDirectoryURL != "" {
		cfg.Autocert.ACMEServer = overrides.ACMEDirectoryURL
	}
	if overrides.Email != "" {
		cfg.Autocert.Email = overrides.Email
	}
	if overrides.Domain != "" {
		domains := strings.Split(overrides.Domain, ",")
		for i, domain := range domains {
			domains[i] = strings.TrimSpace(domain)
		}
		cfg.Autocert.Domains = domains
	}
	if overrides.CacheDir != "" {
		cfg.Autocert.CacheDir = overrides.CacheDir
	}
	if overrides.AgreeTOS {
		cfg.Autocert.AgreeTOS = true
	}
	if overrides.InsecureSkipVerify {
		cfg.Autocert.InsecureSkipVerify = true
	}
	if overrides.RenewalThreshold > 0 {
		cfg.Autocert.RenewalThreshold = overrides.RenewalThreshold
	}
	if cfg.Autocert.Enabled && cfg.Autocert.CacheDir == "" {
		cfg.Autocert.CacheDir = "/tmp/autocert"
	}
}

// YAML renders the configuration in the commented file format written by init
func (c *Config) YAML() (string, error) {
	return generateConfigYAML(c)
}
