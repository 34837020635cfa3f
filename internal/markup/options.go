package markup

import "strings"

// Extensions toggles optional markup features. Each one is independent.
type Extensions struct {
	Table          bool
	Strikethrough  bool
	TaskList       bool
	Footnote       bool
	Linkify        bool
	DefinitionList bool
	Typographer    bool
	Highlight      bool
	Math           bool
	Mermaid        bool
	Mark           bool
	// HighlightStyle names the chroma style used for the generated stylesheet.
	HighlightStyle string
}

// DefaultExtensions enables every extension.
func DefaultExtensions() Extensions {
	return Extensions{
		Table:          true,
		Strikethrough:  true,
		TaskList:       true,
		Footnote:       true,
		Linkify:        true,
		DefinitionList: true,
		Typographer:    true,
		Highlight:      true,
		Math:           true,
		Mermaid:        true,
		Mark:           true,
		HighlightStyle: "github",
	}
}

// Lookup resolves reference targets. Implementations must be safe for concurrent reads.
type Lookup interface {
	// ArticleURL returns the public URL of a published article.
	ArticleURL(id string) (string, bool)
	// ResourceExtension returns the file extension (without dot) of a resource.
	ResourceExtension(id string) (string, bool)
}

// MapLookup is a Lookup backed by maps that are not modified after construction.
type MapLookup struct {
	Articles  map[string]string
	Resources map[string]string
}

func (m MapLookup) ArticleURL(id string) (string, bool) {
	u, ok := m.Articles[strings.ToLower(id)]
	return u, ok
}

func (m MapLookup) ResourceExtension(id string) (string, bool) {
	ext, ok := m.Resources[strings.ToLower(id)]
	return ext, ok
}

// RenderOptions are per-call inputs to Render.
type RenderOptions struct {
	// BaseURL prefixes generated resource URLs, e.g. "/blog" for a site served below a path.
	BaseURL string
	Lookup  Lookup
}

// Result is the output of rendering one document.
type Result struct {
	HTML string
	// Resources lists referenced resource ids in first-reference order.
	Resources []string
	// Unresolved lists reference ids that matched neither an article nor a resource.
	Unresolved []string
	// Scripts and CSS name the extension assets the document exercises.
	Scripts []string
	CSS     []string
}

// AssetDir is the output directory extension assets are copied to.
const AssetDir = "_markdown_plugin_assets"

// ResourceDir is the output directory resources are copied to.
const ResourceDir = "_resources"
