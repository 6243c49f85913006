// Package docs holds the usage guide served by the relay.
package docs

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed usage.md
var usage []byte

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown returns the raw usage guide
func Markdown() []byte {
	return usage
}

// HTML renders the usage guide to an HTML fragment
func HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(usage, &buf); err != nil {
		return nil, fmt.Errorf("failed to render usage guide: %w", err)
	}
	return buf.Bytes(), nil
}
