package convert

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// DefaultStyle is the chroma style used for highlighted code.
const DefaultStyle = "github"

// RenderOptions configures a Renderer.
type RenderOptions struct {
	// HighlightCode renders fenced code with inline-styled syntax colours.
	HighlightCode bool
	// Style names a chroma style; empty selects DefaultStyle.
	Style string
}

// Renderer converts Markdown into XHTML accepted inside an <en-note>.
// It is stateless after construction and safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer builds a goldmark engine with GFM, XHTML output, raw HTML
// passthrough (for <en-media>) and ENML node renderers.
func NewRenderer(opts RenderOptions) *Renderer {
	nr := &enmlRenderer{highlight: opts.HighlightCode}
	if opts.HighlightCode {
		name := opts.Style
		if name == "" {
			name = DefaultStyle
		}
		nr.style = styles.Get(name)
		if nr.style == nil {
			nr.style = styles.Fallback
		}
		nr.formatter = chromahtml.New(
			chromahtml.WithClasses(false),
			chromahtml.WithPreWrapper(enmlPre{}),
		)
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(nr, 100)),
		),
	)
	return &Renderer{md: md}
}

// Render converts Markdown to XHTML.
func (r *Renderer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("convert: render markdown: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// enmlRenderer overrides task check boxes and fenced code.
type enmlRenderer struct {
	highlight bool
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func (r *enmlRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(extast.KindTaskCheckBox, r.renderTaskCheckBox)
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
}

func (r *enmlRenderer) renderTaskCheckBox(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*extast.TaskCheckBox)
	if n.IsChecked {
		_, _ = w.WriteString(`<en-todo checked="true"/>`)
	} else {
		_, _ = w.WriteString(`<en-todo checked="false"/>`)
	}
	return ast.WalkContinue, nil
}

func (r *enmlRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	if r.highlight && r.writeHighlighted(w, string(n.Language(source)), code.String()) {
		return ast.WalkSkipChildren, nil
	}
	// ENML rejects class attributes, so plain code carries no language.
	_, _ = w.WriteString("<pre><code>")
	_, _ = w.Write(util.EscapeHTML(code.Bytes()))
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkSkipChildren, nil
}

func (r *enmlRenderer) writeHighlighted(w util.BufWriter, lang, code string) bool {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return false
	}
	var out bytes.Buffer
	if err := r.formatter.Format(&out, r.style, it); err != nil {
		return false
	}
	_, _ = w.Write(out.Bytes())
	_ = w.WriteByte('\n')
	return true
}

// enmlPre wraps highlighted code without attributes ENML rejects.
type enmlPre struct{}

func (enmlPre) Start(code bool, styleAttr string) string {
	if code {
		return "<pre" + styleAttr + "><code>"
	}
	return "<pre" + styleAttr + ">"
}

func (enmlPre) End(code bool) string {
	if code {
		return "</code></pre>"
	}
	return "</pre>"
}
