package theme

import (
	"context"

	"github.com/pagepress/pagepress/internal/store"
)

// PageValues is the resolved field set of one page.
type PageValues map[string]any

// MergeFields resolves every declared field: the stored value wins unless it is absent, nil
// or the empty string, in which case the field default applies. Stored keys without a
// declared field are dropped.
func MergeFields(fields []Field, stored map[string]any) PageValues {
	out := make(PageValues, len(fields))
	for _, f := range fields {
		v, ok := stored[f.Name]
		if !ok || v == nil || v == "" {
			v = f.Default
		}
		out[f.Name] = v
	}
	return out
}

// ResolvePages merges stored values with the schema of every declared page.
func ResolvePages(ctx context.Context, t *Theme, cs store.ConfigStore) (map[string]PageValues, error) {
	out := make(map[string]PageValues, len(t.Pages))
	for _, p := range t.Pages {
		stored, err := store.LoadMap(ctx, cs, store.PageValuesPath(t.Name, p.Name))
		if err != nil {
			return nil, t.configError("failed to read page configuration", map[string]any{"page": p.Name, "error": err.Error()})
		}
		out[p.Name] = MergeFields(t.Schema(p.Name), stored)
	}
	return out, nil
}

// ResolveSiteFields merges stored custom site fields with the theme's site field schema.
func ResolveSiteFields(t *Theme, stored map[string]any) PageValues {
	return MergeFields(t.SiteFields, stored)
}
