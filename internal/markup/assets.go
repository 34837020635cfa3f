package markup

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

// Extension asset file names under AssetDir.
const (
	highlightCSSName  = "highlight.css"
	mathCSSName       = "math.css"
	mathScriptName    = "math.js"
	mermaidScriptName = "mermaid.js"
)

//go:embed assets/*
var assetFS embed.FS

// AssetNames lists every asset the renderer can provide for its extension set.
func (r *Renderer) AssetNames() []string {
	names := make([]string, 0, len(r.assets))
	for n := range r.assets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Asset returns the content of a named extension asset.
func (r *Renderer) Asset(name string) ([]byte, error) {
	data, ok := r.assets[name]
	if !ok {
		return nil, fmt.Errorf("unknown markup asset %q: %w", name, fs.ErrNotExist)
	}
	return data, nil
}

func loadAssets(ext Extensions, highlightCSS []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if ext.Highlight {
		out[highlightCSSName] = highlightCSS
	}
	var embedded []string
	if ext.Math {
		embedded = append(embedded, mathCSSName, mathScriptName)
	}
	if ext.Mermaid {
		embedded = append(embedded, mermaidScriptName)
	}
	for _, name := range embedded {
		data, err := assetFS.ReadFile("assets/" + name)
		if err != nil {
			return nil, err
		}
		out[name] = data
	}
	return out, nil
}
