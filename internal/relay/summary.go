package relay

import "strings"

// Summary is a serializable view of a Decision for tooling output. It carries
// the real target alongside the masked one, so it must not be logged.
type Summary struct {
	Kind        ResponseKind `json:"kind"`
	RedirectURL string       `json:"redirect_url"`
	SafeURL     string       `json:"safe_redirect_url"`
	Scheme      string       `json:"scheme"`
	DevMode     bool         `json:"dev_mode"`
	TestMode    bool         `json:"test_mode"`
	Outcome     Outcome      `json:"outcome"`
	Params      *Params      `json:"params"`
}

// Summary returns the tooling view of the decision
func (d *Decision) Summary() Summary {
	return Summary{
		Kind:        d.Kind,
		RedirectURL: d.Target,
		SafeURL:     d.SafeTarget,
		Scheme:      d.Scheme,
		DevMode:     d.DevMode,
		TestMode:    d.TestMode,
		Outcome:     d.Outcome,
		Params:      d.Redacted,
	}
}

// ParseCallback accepts a full callback URL, a path with a query, or a bare
// query string, and returns its parameters. Fragments are ignored.
func ParseCallback(s string) *Params {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "?"):
		s = s[1:]
	case strings.Contains(s, "://"), strings.HasPrefix(s, "/"):
		_, s, _ = strings.Cut(s, "?")
	}
	s, _, _ = strings.Cut(s, "#")
	return ParseQuery(s)
}
