package markdown

import (
	"bytes"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var languagePattern = regexp.MustCompile(`^[A-Za-z0-9_+#.-]+$`)

// Renderer converts model markdown to HTML. Tables get the compact table
// class; fenced code is emitted as <pre class="hljs language-X"> for client
// side highlighting.
type Renderer struct{}

// NewRenderer creates a markdown renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render is safe to call on partial markdown; it never fails.
func (r *Renderer) Render(md string) string {
	// parsers keep state, so each call needs a fresh one
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags:          mdhtml.CommonFlags,
		RenderNodeHook: renderHook,
	})
	return string(bytes.TrimSpace(markdown.ToHTML([]byte(md), p, renderer)))
}

func renderHook(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
	switch n := node.(type) {
	case *ast.Table:
		if entering {
			io.WriteString(w, `<table class="table table-sm">`)
		} else {
			io.WriteString(w, "</table>\n")
		}
		return ast.GoToNext, true
	case *ast.CodeBlock:
		io.WriteString(w, `<pre class="hljs language-`+language(n.Info)+`"><code>`)
		io.WriteString(w, html.EscapeString(strings.TrimSpace(string(n.Literal))))
		io.WriteString(w, "</code></pre>\n")
		return ast.GoToNext, true
	}
	return ast.GoToNext, false
}

func language(info []byte) string {
	fields := strings.Fields(string(info))
	if len(fields) == 0 || !languagePattern.MatchString(fields[0]) {
		return "plaintext"
	}
	return strings.ToLower(fields[0])
}
