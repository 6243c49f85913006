package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/shibukawa/authrelay/internal/config"
)

var (
	ErrAutocertDisabled   = errors.New("autocert is not enabled")
	ErrNoCertificateFound = errors.New("no certificate in cache entry")
)

// AutocertManager obtains and renews the relay's HTTPS certificates.
type AutocertManager struct {
	config  *config.AutocertConfig
	manager *autocert.Manager
	logger  *Logger
}

// NewAutocertManager creates a new autocert manager with the given configuration.
func NewAutocertManager(cfg *config.AutocertConfig, logger *Logger) (*AutocertManager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, ErrAutocertDisabled
	}

	tempConfig := &config.Config{Autocert: cfg}
	if err := tempConfig.ValidateAutocertConfig(); err != nil {
		return nil, fmt.Errorf("invalid autocert configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.CacheDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", cfg.CacheDir, err)
	}

	manager := &autocert.Manager{
		Cache:       autocert.DirCache(cfg.CacheDir),
		Prompt:      autocert.AcceptTOS,
		HostPolicy:  autocert.HostWhitelist(cfg.Domains...),
		Email:       cfg.Email,
		RenewBefore: time.Duration(cfg.RenewalThreshold) * 24 * time.Hour,
		Client:      &acme.Client{DirectoryURL: cfg.ACMEServer},
	}

	if cfg.InsecureSkipVerify {
		manager.Client.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	return &AutocertManager{
		config:  cfg,
		manager: manager,
		logger:  logger,
	}, nil
}

// GetTLSConfig returns a TLS configuration that uses autocert for certificate management.
func (am *AutocertManager) GetTLSConfig() *tls.Config {
	tlsConfig := am.manager.TLSConfig()
	tlsConfig.GetCertificate = am.GetCertificate
	return tlsConfig
}

// HTTPHandler returns an HTTP handler for ACME HTTP-01 challenges.
func (am *AutocertManager) HTTPHandler(fallback http.Handler) http.Handler {
	return am.manager.HTTPHandler(fallback)
}

// GetCertificate returns a certificate for the given hello info.
func (am *AutocertManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert, err := am.manager.GetCertificate(hello)
	if err != nil {
		am.logger.Error(fmt.Sprintf("Failed to get certificate for %s", hello.ServerName), err)
		return nil, err
	}

	if cert.Leaf != nil {
		color.Green("🔐 Certificate obtained: %s (expires: %s)", hello.ServerName, cert.Leaf.NotAfter.Format("2006-01-02 15:04:05"))
	} else {
		color.Green("🔐 Certificate obtained: %s", hello.ServerName)
	}
	return cert, nil
}

// CertificateInfo describes the cached certificate of one domain.
type CertificateInfo struct {
	Domain       string    `json:"domain"`
	Status       string    `json:"status"` // "valid", "expiring_soon", "expired", "not_found", "error"
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	DaysToExpiry int       `json:"days_to_expiry,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// CertificateInfo reports the cache state of every configured domain.
func (am *AutocertManager) CertificateInfo(ctx context.Context) []CertificateInfo {
	infos := make([]CertificateInfo, 0, len(am.config.Domains))
	for _, domain := range am.config.Domains {
		infos = append(infos, am.domainCertificateInfo(ctx, domain))
	}
	return infos
}

func (am *AutocertManager) domainCertificateInfo(ctx context.Context, domain string) CertificateInfo {
	data, err := am.manager.Cache.Get(ctx, domain)
	if err != nil {
		return CertificateInfo{Domain: domain, Status: "not_found", Error: err.Error()}
	}

	leaf, err := parseCachedLeaf(data)
	if err != nil {
		return CertificateInfo{Domain: domain, Status: "error", Error: err.Error()}
	}

	daysToExpiry := int(time.Until(leaf.NotAfter).Hours() / 24)
	status := "valid"
	switch {
	case !time.Now().Before(leaf.NotAfter):
		status = "expired"
	case daysToExpiry <= am.config.RenewalThreshold:
		status = "expiring_soon"
	}

	return CertificateInfo{
		Domain:       domain,
		Status:       status,
		ExpiresAt:    leaf.NotAfter,
		DaysToExpiry: daysToExpiry,
	}
}

// parseCachedLeaf extracts the leaf certificate from an autocert cache entry,
// which holds the private key followed by the certificate chain in PEM form.
func parseCachedLeaf(data []byte) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrNoCertificateFound
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}
