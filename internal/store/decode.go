package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pagepress/pagepress/internal/model"
)

// Decode converts a stored value (typically map[string]any after a JSON round-trip) into out.
func Decode(value any, out any) error {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode stored value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode stored value: %w", err)
	}
	return nil
}

// LoadSite reads the site settings from the configuration store. ok is false when nothing
// has been stored yet.
func LoadSite(ctx context.Context, cs ConfigStore) (site model.Site, ok bool, err error) {
	v, err := cs.Get(ctx, SitePath)
	if err != nil {
		return model.Site{}, false, err
	}
	if v == nil {
		return model.Site{}, false, nil
	}
	if err := Decode(v, &site); err != nil {
		return model.Site{}, false, err
	}
	return site, true, nil
}

// LoadMap reads a map value from the configuration store, returning nil when absent.
func LoadMap(ctx context.Context, cs ConfigStore, path []string) (map[string]any, error) {
	v, err := cs.Get(ctx, path)
	if err != nil || v == nil {
		return nil, err
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	var m map[string]any
	if err := Decode(v, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", JoinPath(path), err)
	}
	return m, nil
}
