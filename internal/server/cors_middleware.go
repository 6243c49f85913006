package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/shibukawa/authrelay/internal/config"
)

const corsWildcard = "*"

// createCORSMiddleware creates a CORS middleware with the given configuration
func createCORSMiddleware(corsConfig *config.CORSConfig) func(http.Handler) http.Handler {
	return newCORSMiddleware(func() *config.CORSConfig { return corsConfig })
}

// newCORSMiddleware creates a CORS middleware that reads its configuration
// on every request, so reloaded settings apply without rebuilding routes.
func newCORSMiddleware(current func() *config.CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corsConfig := applyCORSDefaults(current())
			if !corsConfig.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if !isOriginAllowed(origin, corsConfig.AllowedOrigins) {
				next.ServeHTTP(w, r)
				return
			}

			setCORSHeaders(w, r, corsConfig, origin)

			// Preflight requests never reach the relay
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// applyCORSDefaults applies default values to CORS configuration. An enabled
// configuration without explicit lists allows everything.
func applyCORSDefaults(corsConfig *config.CORSConfig) *config.CORSConfig {
	if corsConfig == nil {
		return &config.CORSConfig{Enabled: false}
	}

	result := &config.CORSConfig{
		Enabled:        corsConfig.Enabled,
		AllowedOrigins: corsConfig.AllowedOrigins,
		AllowedMethods: corsConfig.AllowedMethods,
		AllowedHeaders: corsConfig.AllowedHeaders,
	}

	if result.Enabled {
		if len(result.AllowedOrigins) == 0 {
			result.AllowedOrigins = []string{corsWildcard}
		}
		if len(result.AllowedMethods) == 0 {
			result.AllowedMethods = []string{corsWildcard}
		}
		if len(result.AllowedHeaders) == 0 {
			result.AllowedHeaders = []string{corsWildcard}
		}
	}

	return result
}

// isOriginAllowed checks if the given origin is allowed
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}
	return slices.Contains(allowedOrigins, corsWildcard) || slices.Contains(allowedOrigins, origin)
}

// setCORSHeaders sets the appropriate CORS headers. Wildcard method and
// header lists echo what the preflight asked for.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, corsConfig *config.CORSConfig, origin string) {
	if slices.Contains(corsConfig.AllowedOrigins, corsWildcard) {
		w.Header().Set("Access-Control-Allow-Origin", corsWildcard)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}

	methods := corsConfig.AllowedMethods
	if slices.Contains(methods, corsWildcard) {
		methods = []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	}
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))

	if slices.Contains(corsConfig.AllowedHeaders, corsWildcard) {
		if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
			w.Header().Set("Access-Control-Allow-Headers", requested)
		}
	} else {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsConfig.AllowedHeaders, ", "))
	}

	w.Header().Set("Access-Control-Allow-Credentials", "true")
}
