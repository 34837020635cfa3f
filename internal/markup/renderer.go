// Package markup turns article markdown into sanitized HTML. It resolves internal references,
// applies the configured extensions and reports which extension assets a document needs.
package markup

import (
	"bytes"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

// Renderer is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	ext    Extensions
	policy *bluemonday.Policy
	assets map[string][]byte
}

// New builds a renderer for the given extension set.
func New(ext Extensions) (*Renderer, error) {
	if ext.HighlightStyle == "" {
		ext.HighlightStyle = DefaultExtensions().HighlightStyle
	}

	var css []byte
	if ext.Highlight {
		var buf bytes.Buffer
		formatter := chromahtml.New(chromahtml.WithClasses(true))
		if err := formatter.WriteCSS(&buf, styles.Get(ext.HighlightStyle)); err != nil {
			return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to generate highlight stylesheet").
				WithContext("style", ext.HighlightStyle).Build()
		}
		css = buf.Bytes()
	}
	assets, err := loadAssets(ext, css)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "failed to load markup assets").Build()
	}

	return &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extensions(ext)...), goldmark.WithParserOptions(parserOptions()...), goldmark.WithRendererOptions(html.WithUnsafe())),
		ext:    ext,
		policy: newPolicy(ext),
		assets: assets,
	}, nil
}

func parserOptions() []parser.Option {
	return []parser.Option{
		parser.WithAutoHeadingID(),
		parser.WithASTTransformers(util.Prioritized(refTransformer{}, 50)),
	}
}

func extensions(ext Extensions) []goldmark.Extender {
	var out []goldmark.Extender
	if ext.Table {
		out = append(out, extension.NewTable(extension.WithTableCellAlignMethod(extension.TableCellAlignAttribute)))
	}
	if ext.Strikethrough {
		out = append(out, extension.Strikethrough)
	}
	if ext.TaskList {
		out = append(out, extension.TaskList)
	}
	if ext.Footnote {
		out = append(out, extension.Footnote)
	}
	if ext.Linkify {
		out = append(out, extension.Linkify)
	}
	if ext.DefinitionList {
		out = append(out, extension.DefinitionList)
	}
	if ext.Typographer {
		out = append(out, extension.Typographer)
	}
	if ext.Highlight {
		out = append(out, highlighting.NewHighlighting(
			highlighting.WithStyle(ext.HighlightStyle),
			highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
		))
	}
	if ext.Math {
		out = append(out, mathExtension{})
	}
	if ext.Mermaid {
		out = append(out, mermaidExtension{})
	}
	if ext.Mark {
		out = append(out, markExtension{})
	}
	return out
}

// Extensions returns the enabled extension set.
func (r *Renderer) Extensions() Extensions {
	return r.ext
}

// Render converts markdown to sanitized HTML. It does not touch the filesystem.
func (r *Renderer) Render(src string, opts RenderOptions) (*Result, error) {
	state := newRefState(opts)
	pc := parser.NewContext()
	pc.Set(refStateKey, state)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf, parser.WithContext(pc)); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to convert markdown").Build()
	}

	out := r.policy.Sanitize(rewriteRawReferences(buf.String(), state))
	scripts, css := detect(out).assets(r.ext)

	return &Result{
		HTML:       out,
		Resources:  state.resources,
		Unresolved: state.unresolved,
		Scripts:    scripts,
		CSS:        css,
	}, nil
}
