package docs

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestHTML(t *testing.T) {
	out, err := HTML()
	assert.NoError(t, err)

	html := string(out)
	assert.True(t, strings.Contains(html, "<h1>Auth Redirect Relay</h1>"))
	assert.True(t, strings.Contains(html, "<table>"), "GFM tables should render")
	assert.True(t, strings.Contains(html, "<code>source_app</code>"))
}

func TestMarkdown(t *testing.T) {
	assert.True(t, strings.HasPrefix(string(Markdown()), "# Auth Redirect Relay"))
}
