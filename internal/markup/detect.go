package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// usage records which extensions a document exercises.
type usage struct {
	highlight bool
	math      bool
	mermaid   bool
}

// detect scans sanitized HTML for extension marker classes.
func detect(doc string) usage {
	var u usage
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return u
		case html.StartTagToken, html.SelfClosingTagToken:
			_, hasAttr := z.TagName()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) != "class" {
					continue
				}
				for _, class := range strings.Fields(string(val)) {
					switch class {
					case "chroma":
						u.highlight = true
					case "math":
						u.math = true
					case mermaidClass:
						u.mermaid = true
					}
				}
			}
		}
	}
}

// assets maps usage to the asset names that must accompany the document.
func (u usage) assets(ext Extensions) (scripts, css []string) {
	if u.highlight && ext.Highlight {
		css = append(css, highlightCSSName)
	}
	if u.math && ext.Math {
		css = append(css, mathCSSName)
		scripts = append(scripts, mathScriptName)
	}
	if u.mermaid && ext.Mermaid {
		scripts = append(scripts, mermaidScriptName)
	}
	return scripts, css
}
