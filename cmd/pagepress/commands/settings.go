package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

// SettingsCmd groups the settings subcommands.
type SettingsCmd struct {
	Get SettingsGetCmd `cmd:"" help:"Print the JSON value stored at a path"`
	Set SettingsSetCmd `cmd:"" help:"Store a JSON value at a path"`
}

// SettingsGetCmd implements 'settings get'.
type SettingsGetCmd struct {
	Path string `arg:"" help:"Slash separated path, for example site or themes/default/pages/home"`
}

// SettingsSetCmd implements 'settings set'.
type SettingsSetCmd struct {
	Path  string `arg:"" help:"Slash separated path"`
	Value string `arg:"" help:"JSON value; null removes the entry"`
}

func (s *SettingsGetCmd) Run(_ *Global, root *CLI) error {
	a, err := loadApp(root)
	if err != nil {
		return err
	}
	if err := a.openStores(); err != nil {
		return err
	}
	defer a.Close()

	v, err := a.settings.Get(context.Background(), splitPath(s.Path))
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryStore, "failed to read setting").
			WithContext("path", s.Path).Build()
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "failed to encode setting").Build()
	}
	_, _ = fmt.Fprintln(a.out, string(out))
	return nil
}

func (s *SettingsSetCmd) Run(_ *Global, root *CLI) error {
	var v any
	if err := json.Unmarshal([]byte(s.Value), &v); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "value is not valid JSON").Build()
	}
	path := splitPath(s.Path)
	if len(path) == 0 {
		return foundationerrors.ValidationError("path must not be empty").Build()
	}
	a, err := loadApp(root)
	if err != nil {
		return err
	}
	if err := a.openStores(); err != nil {
		return err
	}
	defer a.Close()

	if err := a.settings.Set(context.Background(), path, v); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryStore, "failed to store setting").
			WithContext("path", s.Path).Build()
	}
	return nil
}

func splitPath(p string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '.' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
