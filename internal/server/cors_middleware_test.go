package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/authrelay/internal/config"
)

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		corsConfig      *config.CORSConfig
		method          string
		origin          string
		requestHeaders  string
		expectCORS      bool
		expectedOrigin  string
		expectedMethods string
		expectedHeaders string
	}{
		{
			name: "CORS disabled - no headers added",
			corsConfig: &config.CORSConfig{
				Enabled: false,
			},
			method:     "GET",
			origin:     "http://localhost:19006",
			expectCORS: false,
		},
		{
			name: "CORS enabled with wildcard origin",
			corsConfig: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
			method:          "GET",
			origin:          "http://localhost:19006",
			expectCORS:      true,
			expectedOrigin:  "*",
			expectedMethods: "GET, POST, OPTIONS",
			expectedHeaders: "Content-Type, Authorization",
		},
		{
			name: "CORS enabled with specific origin",
			corsConfig: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:19006", "https://example.com"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Content-Type"},
			},
			method:          "GET",
			origin:          "http://localhost:19006",
			expectCORS:      true,
			expectedOrigin:  "http://localhost:19006",
			expectedMethods: "GET, POST",
			expectedHeaders: "Content-Type",
		},
		{
			name: "CORS enabled but origin not allowed",
			corsConfig: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://example.com"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Content-Type"},
			},
			method:     "GET",
			origin:     "http://localhost:19006",
			expectCORS: false,
		},
		{
			name: "OPTIONS preflight request",
			corsConfig: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
			method:          "OPTIONS",
			origin:          "http://localhost:19006",
			requestHeaders:  "Content-Type, Authorization",
			expectCORS:      true,
			expectedOrigin:  "*",
			expectedMethods: "GET, POST, OPTIONS",
			expectedHeaders: "Content-Type, Authorization",
		},
		{
			name: "Default CORS configuration echoes requested headers",
			corsConfig: &config.CORSConfig{
				Enabled: true,
			},
			method:          "GET",
			origin:          "http://localhost:19006",
			requestHeaders:  "X-Custom, Content-Type",
			expectCORS:      true,
			expectedOrigin:  "*",
			expectedMethods: "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS",
			expectedHeaders: "X-Custom, Content-Type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Stand-in for the relay
			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("test response"))
			})

			// Create CORS middleware
			corsMiddleware := createCORSMiddleware(tt.corsConfig)
			handler := corsMiddleware(testHandler)

			// Create test request
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.requestHeaders != "" {
				req.Header.Set("Access-Control-Request-Headers", tt.requestHeaders)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}

			// Create response recorder
			w := httptest.NewRecorder()

			// Execute request
			handler.ServeHTTP(w, req)

			// Check CORS headers
			if tt.expectCORS {
				assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, tt.expectedMethods, w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, tt.expectedHeaders, w.Header().Get("Access-Control-Allow-Headers"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Equal(t, "", w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "", w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "", w.Header().Get("Access-Control-Allow-Headers"))
			}

			// OPTIONS requests should return 200 and not call the next handler
			if tt.method == "OPTIONS" && tt.expectCORS {
				assert.Equal(t, http.StatusOK, w.Code)
				assert.Equal(t, "", w.Body.String()) // Empty body for preflight
			} else if tt.method != "OPTIONS" {
				assert.Equal(t, http.StatusOK, w.Code)
				assert.Equal(t, "test response", w.Body.String())
			}
		})
	}
}

func TestCORSMiddlewareIntegration(t *testing.T) {
	cfg := config.Default()
	cfg.CORS = &config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:19006"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}
	assert.NoError(t, cfg.Validate())

	server, err := New(cfg)
	assert.NoError(t, err)
	handler := server.Handler()

	// Callback with CORS
	req := httptest.NewRequest(http.MethodGet, "/google-auth-redirect?code=ABC123&test_mode=true", nil)
	req.Header.Set("Origin", "http://localhost:19006")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:19006", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	// Preflight never reaches the relay
	req = httptest.NewRequest(http.MethodOptions, "/google-auth-redirect", nil)
	req.Header.Set("Origin", "http://localhost:19006")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", w.Body.String())
	assert.Equal(t, "http://localhost:19006", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfigDefaults(t *testing.T) {
	tests := []struct {
		name     string
		config   *config.CORSConfig
		expected *config.CORSConfig
	}{
		{
			name:   "nil config",
			config: nil,
			expected: &config.CORSConfig{
				Enabled: false,
			},
		},
		{
			name: "enabled with no other settings",
			config: &config.CORSConfig{
				Enabled: true,
			},
			expected: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"*"},
				AllowedHeaders: []string{"*"},
			},
		},
		{
			name: "partial configuration",
			config: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:19006"},
			},
			expected: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:19006"},
				AllowedMethods: []string{"*"},
				AllowedHeaders: []string{"*"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := applyCORSDefaults(tt.config)
			assert.Equal(t, tt.expected, result)
		})
	}
}
