package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/shibukawa/authrelay/internal/config"
)

func validAutocertConfig(t *testing.T) *config.AutocertConfig {
	t.Helper()
	return &config.AutocertConfig{
		Enabled:  true,
		Domains:  []string{"auth.example.com"},
		Email:    "admin@example.com",
		AgreeTOS: true,
		CacheDir: filepath.Join(t.TempDir(), "autocert-cache"),
	}
}

func TestNewAutocertManager(t *testing.T) {
	tests := []struct {
		name   string
		config *config.AutocertConfig
		target error
	}{
		{"Nil config", nil, ErrAutocertDisabled},
		{"Disabled config", &config.AutocertConfig{Enabled: false}, ErrAutocertDisabled},
		{"Missing domains", &config.AutocertConfig{Enabled: true}, config.ErrAutocertDomainsRequired},
		{"Missing email", &config.AutocertConfig{Enabled: true, Domains: []string{"auth.example.com"}}, config.ErrAutocertEmailRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewAutocertManager(tt.config, NewLogger())
			assert.IsError(t, err, tt.target)
			assert.Zero(t, manager)
		})
	}
}

func TestNewAutocertManager_Valid(t *testing.T) {
	cfg := validAutocertConfig(t)
	cfg.Staging = true
	cfg.InsecureSkipVerify = true

	manager, err := NewAutocertManager(cfg, NewLogger())
	assert.NoError(t, err)

	_, err = os.Stat(cfg.CacheDir)
	assert.NoError(t, err)
	assert.Equal(t, "https://acme-staging-v02.api.letsencrypt.org/directory", manager.manager.Client.DirectoryURL)
	assert.Equal(t, 30*24*time.Hour, manager.manager.RenewBefore)
	assert.NotZero(t, manager.manager.Client.HTTPClient)
}

func TestAutocertManager_GetTLSConfig(t *testing.T) {
	manager, err := NewAutocertManager(validAutocertConfig(t), NewLogger())
	assert.NoError(t, err)

	tlsConfig := manager.GetTLSConfig()
	assert.NotZero(t, tlsConfig.GetCertificate)
	assert.True(t, slices.Contains(tlsConfig.NextProtos, acme.ALPNProto))
}

func TestAutocertManager_HTTPHandler(t *testing.T) {
	manager, err := NewAutocertManager(validAutocertConfig(t), NewLogger())
	assert.NoError(t, err)

	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := manager.HTTPHandler(fallback)

	// Non-challenge requests reach the fallback
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://auth.example.com/health", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestAutocertManager_CertificateInfo(t *testing.T) {
	cfg := validAutocertConfig(t)
	cfg.Domains = []string{"auth.example.com", "soon.example.com", "missing.example.com"}
	manager, err := NewAutocertManager(cfg, NewLogger())
	assert.NoError(t, err)

	ctx := context.Background()
	cache := autocert.DirCache(cfg.CacheDir)
	assert.NoError(t, cache.Put(ctx, "auth.example.com", selfSignedCacheEntry(t, "auth.example.com", 90*24*time.Hour)))
	assert.NoError(t, cache.Put(ctx, "soon.example.com", selfSignedCacheEntry(t, "soon.example.com", 5*24*time.Hour)))

	infos := manager.CertificateInfo(ctx)

	assert.Equal(t, 3, len(infos))
	assert.Equal(t, "valid", infos[0].Status)
	assert.True(t, infos[0].DaysToExpiry >= 89)
	assert.Equal(t, "expiring_soon", infos[1].Status)
	assert.Equal(t, "missing.example.com", infos[2].Domain)
	assert.Equal(t, "not_found", infos[2].Status)
}

func TestParseCachedLeaf_NoCertificate(t *testing.T) {
	_, err := parseCachedLeaf([]byte("garbage"))
	assert.IsError(t, err, ErrNoCertificateFound)
}

// selfSignedCacheEntry builds a cache entry in autocert's layout: the private
// key followed by the certificate.
func selfSignedCacheEntry(t *testing.T, domain string, validFor time.Duration) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validFor),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	assert.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	assert.NoError(t, err)

	entry := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return append(entry, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
}
