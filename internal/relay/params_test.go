package relay

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseQuery(t *testing.T) {
	t.Run("Keeps first occurrence order", func(t *testing.T) {
		p := ParseQuery("state=xyz&code=ABC123&scope=openid")
		assert.Equal(t, []string{"state", "code", "scope"}, p.Keys())
	})

	t.Run("Repeated key keeps last value", func(t *testing.T) {
		p := ParseQuery("a=1&b=2&a=3")
		assert.Equal(t, []string{"a", "b"}, p.Keys())
		v, ok := p.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "3", v)
	})

	t.Run("Blank and bare values", func(t *testing.T) {
		p := ParseQuery("code=&flag&&")
		assert.Equal(t, 2, p.Len())
		v, _ := p.Get("code")
		assert.Equal(t, "", v)
		_, ok := p.Get("flag")
		assert.True(t, ok)
	})

	t.Run("Unescapes plus and percent", func(t *testing.T) {
		p := ParseQuery("scope=openid+email&redirect=https%3A%2F%2Fexample.com%2Fcb")
		v, _ := p.Get("scope")
		assert.Equal(t, "openid email", v)
		v, _ = p.Get("redirect")
		assert.Equal(t, "https://example.com/cb", v)
	})

	t.Run("Invalid escape is kept verbatim", func(t *testing.T) {
		p := ParseQuery("code=%zz")
		v, _ := p.Get("code")
		assert.Equal(t, "%zz", v)
	})

	t.Run("Empty query", func(t *testing.T) {
		assert.Equal(t, 0, ParseQuery("").Len())
	})
}

func TestParams_Take(t *testing.T) {
	p := ParseQuery("a=1&b=2&c=3")

	v, ok := p.Take("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, []string{"a", "c"}, p.Keys())

	_, ok = p.Take("b")
	assert.False(t, ok)
}

func TestParams_Encode(t *testing.T) {
	tests := []struct {
		name     string
		params   [][2]string
		expected string
	}{
		{"Empty", nil, ""},
		{"Simple", [][2]string{{"code", "ABC123"}, {"state", "xyz"}}, "code=ABC123&state=xyz"},
		{"Space becomes plus", [][2]string{{"scope", "openid email"}}, "scope=openid+email"},
		{"Reserved characters escaped", [][2]string{{"next", "a/b?c=d&e"}}, "next=a%2Fb%3Fc%3Dd%26e"},
		{"Unreserved kept", [][2]string{{"t", "A-z_0.9~"}}, "t=A-z_0.9~"},
		{"Escaped key", [][2]string{{"a b", "1"}}, "a+b=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParams()
			for _, kv := range tt.params {
				p.Set(kv[0], kv[1])
			}
			assert.Equal(t, tt.expected, p.Encode())
		})
	}
}

func TestParams_EncodeRoundTrip(t *testing.T) {
	payloads := []map[string]string{
		{"code": "4/0AX4XfWj-abc_def", "state": "x y z"},
		{"access_token": "ya29.a0+/=", "id_token": "eyJhbGciOi.eyJzdWIi.sig"},
		{"error": "access_denied", "error_description": "User denied & left"},
		{"unicode": "こんにちは", "empty": ""},
	}

	for _, payload := range payloads {
		p := NewParams()
		for k, v := range payload {
			p.Set(k, v)
		}

		decoded, err := url.ParseQuery(p.Encode())
		assert.NoError(t, err)
		assert.Equal(t, len(payload), len(decoded))
		for k, v := range payload {
			assert.Equal(t, v, decoded.Get(k))
		}
	}
}

func TestParams_MarshalJSON(t *testing.T) {
	p := ParseQuery("state=xyz&code=%22quoted%22")

	data, err := json.Marshal(p)
	assert.NoError(t, err)
	assert.Equal(t, `{"state":"xyz","code":"\"quoted\""}`, string(data))

	data, err = json.Marshal(NewParams())
	assert.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}
