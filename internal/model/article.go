package model

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Article is one unit of content owned by the content store.
type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Slug      string    `json:"slug"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Published bool      `json:"published"`
	// Revision fingerprints the article source; empty when the store does not track it.
	Revision string `json:"revision,omitempty"`
}

// URLSlug returns the slug used in the output path, derived from the title when unset.
func (a Article) URLSlug() string {
	if s := Slugify(a.Slug); s != "" {
		return s
	}
	if s := Slugify(a.Title); s != "" {
		return s
	}
	return a.ID
}

// SortNewestFirst orders articles by creation time, newest first; ties are broken by ID so
// the order is stable across builds.
func SortNewestFirst(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].CreatedAt.Equal(articles[j].CreatedAt) {
			return articles[i].CreatedAt.After(articles[j].CreatedAt)
		}
		return articles[i].ID < articles[j].ID
	})
}

// FilterPublished returns only the articles flagged as published.
func FilterPublished(articles []Article) []Article {
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if a.Published {
			out = append(out, a)
		}
	}
	return out
}

// Resource is a binary attachment referenced from article content.
type Resource struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Data      []byte `json:"-"`
}

// FileExtension returns the extension (without dot) used for the published file.
func (r Resource) FileExtension() string {
	if ext := strings.TrimPrefix(r.Extension, "."); ext != "" {
		return strings.ToLower(ext)
	}
	if ext := strings.TrimPrefix(path.Ext(r.Title), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if ext, ok := mimeExtensions[strings.ToLower(r.MimeType)]; ok {
		return ext
	}
	return "bin"
}

var mimeExtensions = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"image/svg+xml":   "svg",
	"image/x-icon":    "ico",
	"application/pdf": "pdf",
	"audio/mpeg":      "mp3",
	"video/mp4":       "mp4",
	"text/plain":      "txt",
}
