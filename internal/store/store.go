// Package store declares the collaborator contracts the build engine reads from: the content
// store (articles, tags, resources) and the path-addressed configuration store. Concrete
// implementations live in the sqlitestore and filestore subpackages; Memory is an in-process
// implementation used by tests and by the import command.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/pagepress/pagepress/internal/model"
)

// ErrNotFound is returned when a document or resource does not exist.
var ErrNotFound = errors.New("not found")

// ContentStore provides read access to articles and their attachments.
type ContentStore interface {
	// ListPublishedArticles returns every published article. A failure to load a single
	// document must be logged and skipped rather than failing the listing.
	ListPublishedArticles(ctx context.Context) ([]model.Article, error)
	DocumentBody(ctx context.Context, id string) (string, error)
	Tags(ctx context.Context, id string) ([]string, error)
	Resources(ctx context.Context, id string) ([]model.Resource, error)
}

// ConfigStore is a path-addressed key/value store. It performs no schema enforcement.
type ConfigStore interface {
	// Get returns nil without error when nothing is stored at path.
	Get(ctx context.Context, path []string) (any, error)
	Set(ctx context.Context, path []string, value any) error
}

// JoinPath renders a config path as the flat key used by the persistent stores.
func JoinPath(path []string) string {
	return strings.Join(path, "/")
}

// Well-known configuration paths.
var (
	SitePath = []string{"site"}
)

// PageValuesPath is where stored field values for one theme page live.
func PageValuesPath(theme, page string) []string {
	return []string{"themes", theme, "pages", page}
}
