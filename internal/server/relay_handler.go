package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shibukawa/authrelay/internal/docs"
	"github.com/shibukawa/authrelay/internal/relay"
)

const serviceName = "Auth Redirect Service"

// handleRedirect relays an OAuth provider callback to the mobile app.
// HEAD never reaches this handler.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, resolver := s.snapshot()
	d := resolver.Resolve(relay.ParseQuery(r.URL.RawQuery))

	relay.Report(r.Context(), s.logger.With("request_id", RequestID(r.Context())), d)
	if cfg.Relay.VerboseLogging {
		s.prettyLog.CallbackRelayed(d)
	}

	switch d.Kind {
	case relay.KindDiagnostic:
		writeJSON(w, http.StatusOK, d.Diagnostic())
	case relay.KindRedirect:
		// http.Redirect would rewrite non-ASCII bytes of the target
		w.Header().Set("Location", d.Target)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusFound)
	default:
		s.renderInterstitial(w, r, d, cfg.Relay.CountdownMS, cfg.Relay.HideCode)
	}
}

// rootInfo is the informational payload served at "/".
type rootInfo struct {
	Message   string   `json:"message"`
	Endpoints []string `json:"endpoints"`
}

// handleRoot reports that the service is running and lists the callback path
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg, _ := s.snapshot()
	writeJSON(w, http.StatusOK, rootInfo{
		Message:   serviceName + " Running",
		Endpoints: []string{cfg.Relay.RedirectPath},
	})
}

// healthStatus is the /health response body.
type healthStatus struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Timestamp    string            `json:"timestamp"`
	Uptime       string            `json:"uptime"`
	Presentation string            `json:"presentation"`
	Certificates []CertificateInfo `json:"certificates,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, resolver := s.snapshot()
	status := healthStatus{
		Status:       "healthy",
		Service:      "authrelay",
		Timestamp:    time.Now().Format(time.RFC3339),
		Uptime:       time.Since(s.startedAt).Round(time.Second).String(),
		Presentation: string(resolver.Options().Presentation),
	}
	if s.autocertManager != nil {
		status.Certificates = s.autocertManager.CertificateInfo(r.Context())
	}
	writeJSON(w, http.StatusOK, status)
}

// handleDocs renders the usage guide
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := docs.HTML()
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to render docs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n", serviceName, body)
}

// writeJSON writes v as a pretty-printed JSON response. URLs are left
// unescaped so redirect targets stay readable.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
