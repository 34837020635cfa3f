package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"

	"github.com/pagepress/pagepress/internal/model"
)

// ErrMissingClosingDelimiter indicates a document opened a front matter block without closing it.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

// frontMatter is the YAML header of an article file.
type frontMatter struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Slug      string   `yaml:"slug"`
	Tags      []string `yaml:"tags"`
	Date      string   `yaml:"date"`
	Updated   string   `yaml:"updated"`
	Draft     bool     `yaml:"draft"`
	Published *bool    `yaml:"published"`
}

var idNamespace = uuid.MustParse("6f0d5c3e-1b4a-5f7e-9a42-7d1c2b3e4f50")

// splitFrontMatter separates a `---` delimited YAML header from the markdown body. Documents
// without a header return the whole input as body.
func splitFrontMatter(content []byte) (header, body []byte, err error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, nil
	}
	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return []byte{}, rest[len(open):], nil
	}
	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(rest, closing)
	if idx < 0 {
		if bytes.HasSuffix(rest, []byte(nl+"---")) {
			return rest[:len(rest)-3], nil, nil
		}
		return nil, nil, ErrMissingClosingDelimiter
	}
	return rest[:idx+len(nl)], rest[idx+len(closing):], nil
}

// parseDocument decodes one article file. rel is the slash path below the content root and
// modTime the fallback timestamp.
func parseDocument(rel string, content []byte, modTime time.Time) (model.Article, error) {
	header, body, err := splitFrontMatter(content)
	if err != nil {
		return model.Article{}, err
	}
	var fm frontMatter
	if len(header) > 0 {
		if err := yaml.Unmarshal(header, &fm); err != nil {
			return model.Article{}, fmt.Errorf("parse front matter: %w", err)
		}
	}

	a := model.Article{
		ID:        strings.ToLower(strings.TrimSpace(fm.ID)),
		Title:     strings.TrimSpace(fm.Title),
		Slug:      fm.Slug,
		Tags:      fm.Tags,
		Content:   string(body),
		Published: !fm.Draft,
		Revision:  mdfp.CalculateFingerprintFromParts(strings.TrimRight(string(header), "\r\n"), string(body)),
	}
	if fm.Published != nil {
		a.Published = *fm.Published
	}
	if a.ID == "" {
		a.ID = deriveID(rel)
	}
	if a.Title == "" {
		a.Title = titleFromPath(rel)
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}

	if a.CreatedAt, err = parseTime(fm.Date, modTime); err != nil {
		return model.Article{}, fmt.Errorf("date: %w", err)
	}
	if a.UpdatedAt, err = parseTime(fm.Updated, modTime); err != nil {
		return model.Article{}, fmt.Errorf("updated: %w", err)
	}
	if a.UpdatedAt.Before(a.CreatedAt) {
		a.UpdatedAt = a.CreatedAt
	}
	return a, nil
}

// deriveID maps a file path to a stable 32 character hex id.
func deriveID(rel string) string {
	return strings.ReplaceAll(uuid.NewSHA1(idNamespace, []byte(rel)).String(), "-", "")
}

func titleFromPath(rel string) string {
	base := rel[strings.LastIndex(rel, "/")+1:]
	base = strings.TrimSuffix(base, ".md")
	return strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(base))
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(v string, fallback time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback.UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}
