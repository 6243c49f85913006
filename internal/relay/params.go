package relay

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"slices"
	"strings"
)

// Params is an ordered set of query parameters. Keys keep the order of their
// first occurrence; a repeated key keeps its last value.
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams creates an empty parameter set
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// ParseQuery parses a raw query string into an ordered parameter set.
// Parsing never fails: pairs that cannot be unescaped are kept verbatim.
func ParseQuery(rawQuery string) *Params {
	p := NewParams()
	for part := range strings.SplitSeq(rawQuery, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		p.Set(unescape(key), unescape(value))
	}
	return p
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// Set stores value under key, appending the key if it is new
func (p *Params) Set(key, value string) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key and whether it was present
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Take removes key from the set and returns its value
func (p *Params) Take(key string) (string, bool) {
	v, ok := p.values[key]
	if !ok {
		return "", false
	}
	delete(p.values, key)
	p.keys = slices.DeleteFunc(p.keys, func(k string) bool { return k == key })
	return v, true
}

// Len returns the number of parameters
func (p *Params) Len() int {
	return len(p.keys)
}

// Keys returns the keys in order
func (p *Params) Keys() []string {
	return slices.Clone(p.keys)
}

// Clone returns an independent copy
func (p *Params) Clone() *Params {
	c := NewParams()
	for _, k := range p.keys {
		c.Set(k, p.values[k])
	}
	return c
}

// Map returns the parameters as a plain map
func (p *Params) Map() map[string]string {
	m := make(map[string]string, len(p.keys))
	for _, k := range p.keys {
		m[k] = p.values[k]
	}
	return m
}

// Encode returns the parameters in application/x-www-form-urlencoded form,
// preserving order.
func (p *Params) Encode() string {
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.values[k]))
	}
	return b.String()
}

// MarshalJSON renders the parameters as a JSON object in key order
func (p *Params) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range p.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, value...)
	}
	return append(buf, '}'), nil
}

// LogValue renders the parameters as an slog group
func (p *Params) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(p.keys))
	for _, k := range p.keys {
		attrs = append(attrs, slog.String(k, p.values[k]))
	}
	return slog.GroupValue(attrs...)
}
