// Package relay turns an OAuth provider callback into a hand-off to a mobile
// application, either through its custom URL scheme or an Expo dev tunnel.
package relay

import (
	"errors"
	"fmt"
	"strings"
)

// Control parameters consumed by the relay. They are never forwarded.
const (
	ParamTestMode  = "test_mode"
	ParamSourceApp = "source_app"
	ParamDevMode   = "dev_mode"
)

const (
	// DefaultScheme is used when the callback carries no source_app
	DefaultScheme = "expogoogleauth"
	// DefaultDevTunnelURL is the Expo Go address used under dev_mode
	DefaultDevTunnelURL = "exp://127.0.0.1:8081"
	// MaskToken replaces sensitive values in observability output
	MaskToken = "***"

	redirectHost    = "redirect"
	devRedirectPath = "/--/redirect"
	diagnosticNote  = "Test mode - would redirect to:"
)

var ErrUnknownPresentation = errors.New("unknown presentation")

// Presentation selects how a non-test callback is answered.
type Presentation string

// Supported presentations.
const (
	PresentationInterstitial Presentation = "interstitial"
	PresentationRedirect     Presentation = "redirect"
)

// ParsePresentation validates a presentation name. Empty means interstitial.
func ParsePresentation(s string) (Presentation, error) {
	switch p := Presentation(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PresentationInterstitial, nil
	case PresentationInterstitial, PresentationRedirect:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPresentation, s)
	}
}

// ResponseKind tags the response variant carried by a Decision.
type ResponseKind string

// Response variants.
const (
	KindRedirect     ResponseKind = "redirect"
	KindInterstitial ResponseKind = "interstitial"
	KindDiagnostic   ResponseKind = "diagnostic"
)

// Options configures a Resolver.
type Options struct {
	DefaultScheme string
	DevTunnelURL  string
	Presentation  Presentation
}

// Resolver computes redirect decisions. It holds only immutable options and
// is safe for concurrent use.
type Resolver struct {
	opts Options
}

// NewResolver creates a resolver, filling unset options with defaults
func NewResolver(opts Options) *Resolver {
	if opts.DefaultScheme == "" {
		opts.DefaultScheme = DefaultScheme
	}
	if opts.DevTunnelURL == "" {
		opts.DevTunnelURL = DefaultDevTunnelURL
	}
	opts.DevTunnelURL = strings.TrimRight(opts.DevTunnelURL, "/")
	if opts.Presentation == "" {
		opts.Presentation = PresentationInterstitial
	}
	return &Resolver{opts: opts}
}

// Options returns the effective options
func (r *Resolver) Options() Options {
	return r.opts
}

// Decision is the outcome of resolving one callback.
type Decision struct {
	Kind   ResponseKind
	Target string
	// SafeTarget is Target built from the redacted payload.
	SafeTarget string
	Scheme     string
	DevMode    bool
	TestMode   bool
	// Payload is forwarded verbatim; Redacted is its masked copy for logs.
	Payload  *Params
	Redacted *Params
	// Code is the raw authorization code shown on the interstitial page.
	Code    string
	Outcome Outcome
}

// Diagnostic is the test-mode response body.
type Diagnostic struct {
	Message     string  `json:"message"`
	RedirectURL string  `json:"redirect_url"`
	Params      *Params `json:"params"`
	Scheme      string  `json:"scheme"`
	DevMode     bool    `json:"dev_mode"`
}

// Diagnostic returns the test-mode view of the decision
func (d *Decision) Diagnostic() Diagnostic {
	return Diagnostic{
		Message:     diagnosticNote,
		RedirectURL: d.Target,
		Params:      d.Redacted,
		Scheme:      d.Scheme,
		DevMode:     d.DevMode,
	}
}

// Resolve decides where the callback goes and how to answer it. The input
// set is not modified.
func (r *Resolver) Resolve(params *Params) *Decision {
	payload := params.Clone()
	testMode, _ := payload.Take(ParamTestMode)
	sourceApp, hasSourceApp := payload.Take(ParamSourceApp)
	devMode, _ := payload.Take(ParamDevMode)

	d := &Decision{
		Scheme:   r.opts.DefaultScheme,
		DevMode:  parseFlag(devMode),
		TestMode: parseFlag(testMode),
		Payload:  payload,
		Redacted: Redact(payload),
		Outcome:  Classify(payload),
	}
	if hasSourceApp {
		d.Scheme = sourceApp
	}
	d.Target = r.target(d.Scheme, d.DevMode, payload)
	d.SafeTarget = r.target(d.Scheme, d.DevMode, d.Redacted)

	switch {
	case d.TestMode:
		d.Kind = KindDiagnostic
	case r.opts.Presentation == PresentationRedirect:
		d.Kind = KindRedirect
	default:
		d.Kind = KindInterstitial
		d.Code, _ = payload.Get("code")
	}
	return d
}

func (r *Resolver) target(scheme string, devMode bool, payload *Params) string {
	if devMode {
		return r.opts.DevTunnelURL + devRedirectPath + "?" + payload.Encode()
	}
	return scheme + "://" + redirectHost + "?" + payload.Encode()
}

// parseFlag treats only a case-insensitive "true" as set
func parseFlag(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
