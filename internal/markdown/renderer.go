// Package markdown renders thought content to HTML for the share surface.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown thought content to HTML.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer constructs a GFM renderer. Raw HTML inside thought content is
// not passed through; entries may embed an image reference, which GFM covers.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// RenderHTML converts the supplied markdown to an HTML fragment.
func (r *Renderer) RenderHTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
