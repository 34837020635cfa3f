package theme

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
)

// DefaultName is the built-in theme shipped inside the binary.
const DefaultName = "default"

//go:embed all:builtin
var builtinFS embed.FS

// Store resolves themes from a directory of theme packages, falling back to the built-in
// themes. A directory theme shadows a built-in theme of the same name.
type Store struct {
	dir     string
	builtin fs.FS
}

// NewStore creates a store rooted at dir. An empty dir serves only built-in themes.
func NewStore(dir string) *Store {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}
	return &Store{dir: dir, builtin: sub}
}

// Load returns the named theme after validation.
func (s *Store) Load(name string) (*Theme, error) {
	if name == "" {
		name = DefaultName
	}
	fsys, err := s.open(name)
	if err != nil {
		return nil, err
	}
	t, err := Parse(name, fsys)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "invalid theme").
			WithContext("theme", name).Fatal().Build()
	}
	t.Name = name
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// List loads every available theme. Broken themes are reported in the error slice without
// stopping the enumeration.
func (s *Store) List() ([]*Theme, []error) {
	var (
		themes []*Theme
		errs   []error
	)
	for _, name := range s.names() {
		t, err := s.Load(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		themes = append(themes, t)
	}
	return themes, errs
}

func (s *Store) open(name string) (fs.FS, error) {
	if !fs.ValidPath(name) || filepath.Base(name) != name {
		return nil, foundationerrors.ConfigError("invalid theme name").WithContext("theme", name).Build()
	}
	if s.dir != "" {
		dir := filepath.Join(s.dir, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir), nil
		}
	}
	if info, err := fs.Stat(s.builtin, name); err == nil && info.IsDir() {
		return fs.Sub(s.builtin, name)
	}
	return nil, foundationerrors.NewError(foundationerrors.CategoryNotFound, "theme not found").
		WithContext("theme", name).UserAction().Build()
}

func (s *Store) names() []string {
	seen := make(map[string]bool)
	collect := func(entries []fs.DirEntry) {
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
			}
		}
	}
	if entries, err := fs.ReadDir(s.builtin, "."); err == nil {
		collect(entries)
	}
	if s.dir != "" {
		entries, err := os.ReadDir(s.dir)
		if err == nil {
			collect(entries)
		} else if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Cannot read themes directory", logfields.Path(s.dir), logfields.Error(err))
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
