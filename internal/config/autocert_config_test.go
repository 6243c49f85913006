package config

import (
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestAutocertConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		target error
	}{
		{
			name:   "nil autocert should pass validation",
			config: &Config{},
		},
		{
			name: "disabled autocert should pass validation",
			config: &Config{
				Autocert: &AutocertConfig{Enabled: false},
			},
		},
		{
			name: "valid autocert config",
			config: &Config{
				Autocert: &AutocertConfig{
					Enabled:  true,
					Domains:  []string{"relay.example.com"},
					Email:    "admin@example.com",
					AgreeTOS: true,
				},
			},
		},
		{
			name: "missing domains should fail",
			config: &Config{
				Autocert: &AutocertConfig{Enabled: true, Email: "admin@example.com", AgreeTOS: true},
			},
			target: ErrAutocertDomainsRequired,
		},
		{
			name: "missing email should fail",
			config: &Config{
				Autocert: &AutocertConfig{Enabled: true, Domains: []string{"relay.example.com"}, AgreeTOS: true},
			},
			target: ErrAutocertEmailRequired,
		},
		{
			name: "terms not accepted should fail",
			config: &Config{
				Autocert: &AutocertConfig{Enabled: true, Domains: []string{"relay.example.com"}, Email: "admin@example.com"},
			},
			target: ErrAutocertAgreeTOS,
		},
		{
			name: "explicit TLS files conflict with autocert",
			config: &Config{
				Relay: RelayConfig{TLSCertFile: "cert.pem", TLSKeyFile: "key.pem"},
				Autocert: &AutocertConfig{
					Enabled:  true,
					Domains:  []string{"relay.example.com"},
					Email:    "admin@example.com",
					AgreeTOS: true,
				},
			},
			target: ErrAutocertConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.ValidateAutocertConfig()
			if tt.target == nil {
				assert.NoError(t, err)
				return
			}
			assert.IsError(t, err, tt.target)
		})
	}
}

func TestAutocertConfig_DefaultValues(t *testing.T) {
	config := &Config{
		Autocert: &AutocertConfig{
			Enabled:  true,
			Domains:  []string{"relay.example.com"},
			Email:    "admin@example.com",
			AgreeTOS: true,
		},
	}

	if err := config.ValidateAutocertConfig(); err != nil {
		t.Fatalf("validation failed: %v", err)
	}

	if config.Autocert.ACMEServer != "https://acme-v02.api.letsencrypt.org/directory" {
		t.Errorf("expected default ACME server, got %s", config.Autocert.ACMEServer)
	}
	if config.Autocert.CacheDir != "./autocert-cache" {
		t.Errorf("expected default cache dir, got %s", config.Autocert.CacheDir)
	}
	if config.Autocert.RenewalThreshold != 30 {
		t.Errorf("expected default renewal threshold 30, got %d", config.Autocert.RenewalThreshold)
	}
}

func TestAutocertConfig_StagingDefaults(t *testing.T) {
	config := &Config{
		Autocert: &AutocertConfig{
			Enabled:  true,
			Domains:  []string{"relay-staging.example.com"},
			Email:    "staging@example.com",
			AgreeTOS: true,
			Staging:  true,
		},
	}

	if err := config.ValidateAutocertConfig(); err != nil {
		t.Fatalf("validation failed: %v", err)
	}

	expected := "https://acme-staging-v02.api.letsencrypt.org/directory"
	if config.Autocert.ACMEServer != expected {
		t.Errorf("expected staging ACME server %s, got %s", expected, config.Autocert.ACMEServer)
	}
}

func TestAutocertEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTHRELAY_ACME_DIRECTORY_URL", "https://acme.local/directory")
	t.Setenv("AUTHRELAY_ACME_EMAIL", "ops@example.com")
	t.Setenv("AUTHRELAY_ACME_DOMAIN", "relay.example.com, api.example.com")
	t.Setenv("AUTHRELAY_ACME_AGREE_TOS", "true")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.NoError(t, err)

	assert.True(t, config.Autocert != nil && config.Autocert.Enabled)
	assert.Equal(t, "https://acme.local/directory", config.Autocert.ACMEServer)
	assert.Equal(t, "ops@example.com", config.Autocert.Email)
	assert.Equal(t, []string{"relay.example.com", "api.example.com"}, config.Autocert.Domains)
	assert.Equal(t, "/tmp/autocert", config.Autocert.CacheDir)
	assert.True(t, config.Autocert.AgreeTOS)
}

func TestAutocertEnvironmentTuning(t *testing.T) {
	t.Setenv("AUTHRELAY_ACME_DOMAIN", "relay.example.com")
	t.Setenv("AUTHRELAY_ACME_EMAIL", "ops@example.com")
	t.Setenv("AUTHRELAY_ACME_AGREE_TOS", "true")
	t.Setenv("AUTHRELAY_ACME_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("AUTHRELAY_ACME_RENEWAL_THRESHOLD", "14")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.NoError(t, err)

	assert.True(t, config.Autocert.InsecureSkipVerify)
	assert.Equal(t, 14, config.Autocert.RenewalThreshold)
}

func TestAutocertEnvironmentTuningWithoutAutocert(t *testing.T) {
	t.Setenv("AUTHRELAY_ACME_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("AUTHRELAY_ACME_RENEWAL_THRESHOLD", "14")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.NoError(t, err)
	assert.Zero(t, config.Autocert)
}

func TestAutocertEnvironmentInvalidThreshold(t *testing.T) {
	for _, value := range []string{"soon", "0", "-3"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("AUTHRELAY_ACME_RENEWAL_THRESHOLD", value)

			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
			assert.IsError(t, err, ErrInvalidRenewalThreshold)
		})
	}
}
