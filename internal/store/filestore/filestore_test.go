package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepress/pagepress/internal/model"
	"github.com/pagepress/pagepress/internal/store"
)

const logoID = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func writeFile(t *testing.T, dir, rel, body string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
}

func newContentDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "posts/hello.md", "---\n"+
		"id: 0123456789ABCDEF0123456789abcdef\n"+
		"title: Hello\n"+
		"tags: [go, web]\n"+
		"date: 2024-03-01\n"+
		"---\n"+
		"# Hello\n\n![logo](:/"+logoID+")\n")
	writeFile(t, dir, "posts/draft.md", "---\ntitle: Draft\ndraft: true\n---\nwip\n")
	writeFile(t, dir, "plain-notes.md", "no header here\n")
	writeFile(t, dir, "broken.md", "---\ntitle: [unclosed\n---\nbody\n")
	writeFile(t, dir, "_drafts/skip.md", "ignored\n")
	writeFile(t, dir, "_resources/"+logoID+".png", "PNG")
	return dir
}

func TestListPublishedArticles(t *testing.T) {
	s, err := Open(newContentDir(t))
	require.NoError(t, err)

	articles, err := s.ListPublishedArticles(t.Context())
	require.NoError(t, err)
	require.Len(t, articles, 2)

	plain := articles[0]
	assert.Equal(t, "plain notes", plain.Title)
	assert.Len(t, plain.ID, 32)
	assert.Equal(t, deriveID("plain-notes.md"), plain.ID)

	hello := articles[1]
	assert.Equal(t, "0123456789abcdef0123456789abcdef", hello.ID)
	assert.Equal(t, []string{"go", "web"}, hello.Tags)
	assert.True(t, hello.CreatedAt.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.NotEmpty(t, hello.Revision)
	assert.Contains(t, hello.Content, "# Hello")
}

func TestResourcesFollowReferences(t *testing.T) {
	s, err := Open(newContentDir(t))
	require.NoError(t, err)

	res, err := s.Resources(t.Context(), "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, logoID, res[0].ID)
	assert.Equal(t, "image/png", res[0].MimeType)
	assert.Equal(t, []byte("PNG"), res[0].Data)

	_, err = s.DocumentBody(t.Context(), "ffffffffffffffffffffffffffffffff")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevisionTracksContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "---\ntitle: A\n---\none\n")
	s, err := Open(dir)
	require.NoError(t, err)

	first, err := s.ListPublishedArticles(t.Context())
	require.NoError(t, err)
	again, err := s.ListPublishedArticles(t.Context())
	require.NoError(t, err)
	assert.Equal(t, first[0].Revision, again[0].Revision)

	writeFile(t, dir, "a.md", "---\ntitle: A\n---\ntwo\n")
	changed, err := s.ListPublishedArticles(t.Context())
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Revision, changed[0].Revision)
	assert.Equal(t, first[0].ID, changed[0].ID)
}

func TestSplitFrontMatter(t *testing.T) {
	cases := []struct {
		in, header, body string
	}{
		{"# Title\n", "", "# Title\n"},
		{"---\nkey: value\n---\n# Title\n", "key: value\n", "# Title\n"},
		{"---\n---\nbody\n", "", "body\n"},
		{"---\r\nkey: value\r\n---\r\nbody\r\n", "key: value\r\n", "body\r\n"},
		{"---\nkey: value\n---", "key: value\n", ""},
	}
	for _, tc := range cases {
		header, body, err := splitFrontMatter([]byte(tc.in))
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.header, string(header), tc.in)
		assert.Equal(t, tc.body, string(body), tc.in)
	}

	_, _, err := splitFrontMatter([]byte("---\nkey: value\n# Title\n"))
	assert.ErrorIs(t, err, ErrMissingClosingDelimiter)
}

func TestParseDocumentRejectsBadDate(t *testing.T) {
	_, err := parseDocument("x.md", []byte("---\ndate: yesterday\n---\n"), time.Now())
	assert.Error(t, err)

	a, err := parseDocument("x.md", []byte("---\npublished: false\ndate: 2024-01-02 10:00:00\n---\n"), time.Now())
	require.NoError(t, err)
	assert.False(t, a.Published)
	assert.Equal(t, 10, a.CreatedAt.Hour())
}

func TestSettingsFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	ctx := t.Context()

	v, err := s.Get(ctx, store.SitePath)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Set(ctx, store.SitePath, model.Site{Name: "Notes", Feed: model.Feed{Mode: model.FeedFull}}))
	site, ok, err := store.LoadSite(ctx, s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Notes", site.Name)
	assert.Equal(t, model.FeedFull, site.Feed.Mode)
	assert.FileExists(t, filepath.Join(dir, SettingsFile))

	require.NoError(t, s.Set(ctx, store.SitePath, nil))
	v, err = s.Get(ctx, store.SitePath)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestOpenRejectsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "file.md", "x")
	_, err := Open(filepath.Join(dir, "file.md"))
	assert.Error(t, err)
}
