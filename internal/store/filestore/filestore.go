// Package filestore reads articles from a directory of markdown files with YAML front matter.
//
// Layout:
//
//	<dir>/**/*.md                 articles
//	<dir>/_resources/<id>.<ext>   resources referenced as :/<id>
//	<dir>/settings.yaml           configuration store
//
// Directories and files whose name starts with "." or "_" (other than _resources) are ignored.
package filestore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/markup"
	"github.com/pagepress/pagepress/internal/model"
	"github.com/pagepress/pagepress/internal/store"
)

// SettingsFile holds the configuration store values.
const SettingsFile = "settings.yaml"

// Store implements store.ContentStore and store.ConfigStore over a directory.
type Store struct {
	dir string

	mu        sync.RWMutex
	articles  map[string]model.Article
	paths     map[string]string
	resources map[string]string

	settingsMu sync.Mutex
}

var (
	_ store.ContentStore = (*Store)(nil)
	_ store.ConfigStore  = (*Store)(nil)
)

// Open returns a store over dir. The directory is scanned lazily on the first listing.
func Open(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("content directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content directory %s is not a directory", abs)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute content directory.
func (s *Store) Dir() string { return s.dir }

// scan re-reads every article file. Unreadable documents are logged and skipped.
func (s *Store) scan(ctx context.Context) error {
	articles := make(map[string]model.Article)
	paths := make(map[string]string)
	resources := make(map[string]string)

	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, _ := filepath.Rel(s.dir, p)
		rel = filepath.ToSlash(rel)
		name := d.Name()
		if d.IsDir() {
			if p != s.dir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) && rel != markup.ResourceDir {
				return filepath.SkipDir
			}
			return nil
		}
		if path.Dir(rel) == markup.ResourceDir {
			id := strings.ToLower(strings.TrimSuffix(name, path.Ext(name)))
			resources[id] = p
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || !strings.EqualFold(path.Ext(name), ".md") {
			return nil
		}
		a, err := s.readArticle(p, rel)
		if err != nil {
			slog.Warn("Skipping unreadable article", logfields.Path(rel), logfields.Error(err))
			return nil
		}
		if prev, dup := paths[a.ID]; dup {
			slog.Warn("Skipping article with duplicate id", logfields.Path(rel), logfields.Article(a.ID),
				slog.String("first", prev))
			return nil
		}
		articles[a.ID] = a
		paths[a.ID] = rel
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", s.dir, err)
	}

	s.mu.Lock()
	s.articles, s.paths, s.resources = articles, paths, resources
	s.mu.Unlock()
	return nil
}

func (s *Store) readArticle(p, rel string) (model.Article, error) {
	info, err := os.Stat(p)
	if err != nil {
		return model.Article{}, err
	}
	content, err := os.ReadFile(p) // #nosec G304 -- path comes from walking the content directory
	if err != nil {
		return model.Article{}, err
	}
	return parseDocument(rel, content, info.ModTime())
}

func (s *Store) ensureScanned(ctx context.Context) error {
	s.mu.RLock()
	scanned := s.articles != nil
	s.mu.RUnlock()
	if scanned {
		return nil
	}
	return s.scan(ctx)
}

// ListPublishedArticles rescans the directory and returns the published articles in path order.
func (s *Store) ListPublishedArticles(ctx context.Context) ([]model.Article, error) {
	if err := s.scan(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.articles))
	for id, a := range s.articles {
		if a.Published {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.paths[ids[i]] < s.paths[ids[j]] })
	out := make([]model.Article, 0, len(ids))
	for _, id := range ids {
		a := s.articles[id]
		a.Tags = append([]string(nil), a.Tags...)
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) article(ctx context.Context, id string) (model.Article, error) {
	if err := s.ensureScanned(ctx); err != nil {
		return model.Article{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return model.Article{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) DocumentBody(ctx context.Context, id string) (string, error) {
	a, err := s.article(ctx, id)
	return a.Content, err
}

func (s *Store) Tags(ctx context.Context, id string) ([]string, error) {
	a, err := s.article(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), a.Tags...), nil
}

// Resources returns the files under _resources referenced by the article body.
func (s *Store) Resources(ctx context.Context, id string) ([]model.Resource, error) {
	a, err := s.article(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	files := make(map[string]string, len(s.resources))
	for k, v := range s.resources {
		files[k] = v
	}
	s.mu.RUnlock()

	var out []model.Resource
	for _, ref := range markup.ExtractReferences(a.Content) {
		p, ok := files[ref]
		if !ok {
			continue
		}
		data, err := os.ReadFile(p) // #nosec G304 -- path comes from walking the content directory
		if err != nil {
			return nil, fmt.Errorf("read resource %s: %w", ref, err)
		}
		ext := path.Ext(p)
		out = append(out, model.Resource{
			ID:        ref,
			Title:     filepath.Base(p),
			MimeType:  mime.TypeByExtension(ext),
			Extension: strings.TrimPrefix(ext, "."),
			Data:      data,
		})
	}
	return out, nil
}

// Get returns the value stored at path in settings.yaml, or nil.
func (s *Store) Get(_ context.Context, p []string) (any, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	values, err := s.readSettings()
	if err != nil {
		return nil, err
	}
	return values[store.JoinPath(p)], nil
}

// Set writes value at path into settings.yaml. A nil value removes the entry.
func (s *Store) Set(_ context.Context, p []string, value any) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	values, err := s.readSettings()
	if err != nil {
		return err
	}
	key := store.JoinPath(p)
	if value == nil {
		delete(values, key)
	} else {
		// Round-trip through JSON so stored structs read back as maps.
		var plain any
		if err := store.Decode(value, &plain); err != nil {
			return err
		}
		values[key] = plain
	}
	raw, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	target := filepath.Join(s.dir, SettingsFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (s *Store) readSettings() (map[string]any, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, SettingsFile))
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", SettingsFile, err)
	}
	return values, nil
}
