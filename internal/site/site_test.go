package site

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/markup"
	"github.com/pagepress/pagepress/internal/model"
	"github.com/pagepress/pagepress/internal/store"
	"github.com/pagepress/pagepress/internal/theme"
	"github.com/pagepress/pagepress/internal/tmpl"
)

const (
	firstID    = "0123456789abcdef0123456789abcdef"
	secondID   = "fedcba9876543210fedcba9876543210"
	resourceID = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type fixture struct {
	mem       *store.Memory
	themesDir string
	outputDir string
	reportDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		mem:       store.NewMemory(),
		themesDir: filepath.Join(root, "themes"),
		outputDir: filepath.Join(root, "public"),
		reportDir: filepath.Join(root, "reports"),
	}
	ctx := context.Background()
	require.NoError(t, f.mem.Set(ctx, store.SitePath, model.Site{
		Name:         "Test Blog",
		Description:  "Notes",
		Theme:        "default",
		CustomDomain: "blog.example.com",
		Feed:         model.Feed{Mode: model.FeedFull, Length: 10},
	}))
	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	f.mem.PutArticle(model.Article{
		ID:        firstID,
		Title:     "First Post",
		Content:   "Hello [next](:/" + secondID + ")\n\n![pic](:/" + resourceID + ")\n\n```go\nfunc main() {}\n```\n",
		Tags:      []string{"Go"},
		CreatedAt: day(1),
		UpdatedAt: day(2),
		Published: true,
	})
	f.mem.PutArticle(model.Article{
		ID:        secondID,
		Title:     "Second Post",
		Content:   "Plain *text* with ==mark==.",
		Tags:      []string{"go", "notes"},
		CreatedAt: day(5),
		Published: true,
	})
	f.mem.PutArticle(model.Article{ID: "draft", Title: "Draft", Content: "wip"})
	f.mem.AttachResource(firstID, model.Resource{ID: resourceID, MimeType: "image/png", Extension: "png", Data: []byte("PNG")})
	return f
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{
		OutputDir:     f.outputDir,
		ReportDir:     f.reportDir,
		RenderWorkers: 2,
		Markdown:      markup.DefaultExtensions(),
		Content:       f.mem,
		Settings:      f.mem,
		Themes:        theme.NewStore(f.themesDir),
	})
	require.NoError(t, err)
	return e
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err, rel)
	return string(data)
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		out = append(out, p)
		return nil
	}))
	sort.Strings(out)
	return out
}

func TestBuildTwoArticles(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	res, err := e.Build(context.Background())
	require.NoError(t, err)

	out := res.OutputDir
	for _, rel := range []string{
		"index.html",
		"archive.html",
		"tags.html",
		"posts/first-post.html",
		"posts/second-post.html",
		"rss.xml",
		"atom.xml",
		"feed.json",
		"CNAME",
		"sitemap.xml",
		"_assets/style.css",
		"_resources/" + resourceID + ".png",
		"_markdown_plugin_assets/highlight.css",
	} {
		assert.FileExists(t, filepath.Join(out, filepath.FromSlash(rel)))
	}
	assert.NoFileExists(t, filepath.Join(out, "posts", "draft.html"))

	first := readFile(t, out, "posts/first-post.html")
	assert.Contains(t, first, `href="/posts/second-post.html"`)
	assert.Contains(t, first, "/_markdown_plugin_assets/highlight.css")
	assert.NotContains(t, first, ":/"+secondID)

	home := readFile(t, out, "index.html")
	assert.Less(t, strings.Index(home, "Second Post"), strings.Index(home, "First Post"), "newest article first")
	assert.Equal(t, "blog.example.com\n", readFile(t, out, "CNAME"))
	assert.Contains(t, readFile(t, out, "rss.xml"), "https://blog.example.com/posts/first-post.html")
	assert.Contains(t, readFile(t, out, "sitemap.xml"), "<loc>https://blog.example.com/</loc>")
	assert.Contains(t, readFile(t, out, "tags.html"), "notes")

	assert.Equal(t, listFiles(t, out), res.Manifest.Files, "manifest lists exactly the output files")
	assert.True(t, res.Manifest.Contains("posts/first-post.html"))

	snap := e.Progress()
	assert.Equal(t, string(PhaseSucceeded), snap.Phase)
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 5, snap.Current)

	assert.FileExists(t, filepath.Join(f.reportDir, res.BuildID+".json"))
	assert.Equal(t, OutcomeSuccess, res.Report.Outcome)
	assert.Equal(t, 2, res.Report.Articles)
	assert.NoDirExists(t, f.outputDir+stageSuffix)
	assert.NoDirExists(t, f.outputDir+backupSuffix)
}

func TestRebuildReplacesOutput(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	_, err := e.Build(context.Background())
	require.NoError(t, err)

	stale := filepath.Join(f.outputDir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	res, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.Equal(t, listFiles(t, f.outputDir), res.Manifest.Files)
}

func writeTheme(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(dir, name, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestBuildMinimalThemeWithoutFeeds(t *testing.T) {
	root := t.TempDir()
	themesDir := filepath.Join(root, "themes")
	writeTheme(t, themesDir, "minimal", map[string]string{
		"config.yaml":            "pages:\n  home: []\n  article: []\n",
		"templates/home.html":    "{{range .Site.Articles}}{{.Title}};{{end}}",
		"templates/article.html": "<h1>{{.Article.Title}}</h1>{{.Article.HTML}}",
	})

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Set(ctx, store.SitePath, model.Site{Name: "Minimal", Theme: "minimal"}))
	day := func(d int) time.Time { return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC) }
	mem.PutArticle(model.Article{ID: firstID, Title: "Day One", Content: "First.", CreatedAt: day(1), Published: true})
	mem.PutArticle(model.Article{ID: secondID, Title: "Day Two", Content: "Second.", CreatedAt: day(2), Published: true})

	e, err := New(Options{
		OutputDir: filepath.Join(root, "public"),
		Markdown:  markup.DefaultExtensions(),
		Content:   mem,
		Settings:  mem,
		Themes:    theme.NewStore(themesDir),
	})
	require.NoError(t, err)

	res, err := e.Build(ctx)
	require.NoError(t, err)

	rel, err := res.Manifest.Relative()
	require.NoError(t, err)
	assert.Equal(t, []string{"article/day-one.html", "article/day-two.html", "index.html"}, rel)
	assert.Equal(t, "Day Two;Day One;", readFile(t, res.OutputDir, "index.html"))
	assert.Contains(t, readFile(t, res.OutputDir, "article/day-one.html"), "<h1>Day One</h1>")
	assert.NoFileExists(t, filepath.Join(res.OutputDir, "sitemap.xml"))
}

func TestTemplateFailureKeepsPreviousOutput(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	_, err := e.Build(context.Background())
	require.NoError(t, err)
	before := listFiles(t, f.outputDir)
	home := readFile(t, f.outputDir, "index.html")

	writeTheme(t, f.themesDir, "broken", map[string]string{
		"config.yaml":          "pages:\n  home: []\n  about: []\n",
		"templates/home.html":  "ok",
		"templates/about.html": "{{.Helpers.Missing}}",
	})
	require.NoError(t, f.mem.Set(context.Background(), store.SitePath, model.Site{Name: "x", Theme: "broken"}))

	_, err = e.Build(context.Background())
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryRender), err.Error())

	assert.Equal(t, before, listFiles(t, f.outputDir))
	assert.Equal(t, home, readFile(t, f.outputDir, "index.html"))
	assert.NoDirExists(t, f.outputDir+stageSuffix)
	assert.Equal(t, string(PhaseFailed), e.Progress().Phase)
}

func TestConfigErrorWritesNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.Set(context.Background(), store.PageValuesPath("default", "article"), map[string]any{"url": "Not Valid!"}))

	_, err := f.engine(t).Build(context.Background())
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig), err.Error())
	assert.NoDirExists(t, f.outputDir)
	assert.NoDirExists(t, f.outputDir+stageSuffix)
}

func TestMissingTemplateIsFatal(t *testing.T) {
	f := newFixture(t)
	writeTheme(t, f.themesDir, "partial", map[string]string{
		"config.yaml":         "pages:\n  home: []\n  about: []\n",
		"templates/home.html": "ok",
	})
	require.NoError(t, f.mem.Set(context.Background(), store.SitePath, model.Site{Name: "x", Theme: "partial"}))

	_, err := f.engine(t).Build(context.Background())
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryRender))
	assert.NoDirExists(t, f.outputDir)
}

func TestCanceledBuildLeavesOutputUntouched(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine(t).Build(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoDirExists(t, f.outputDir)
}

func TestRepairInterruptedPromotion(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	require.NoError(t, os.MkdirAll(e.backupDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.backupDir(), "old.html"), []byte("old"), 0o644))
	require.NoError(t, os.MkdirAll(e.stageDir(), 0o755))

	require.NoError(t, e.repairOutput())
	assert.FileExists(t, filepath.Join(f.outputDir, "old.html"))
	assert.NoDirExists(t, e.backupDir())
	assert.NoDirExists(t, e.stageDir())

	_, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(f.outputDir, "old.html"))
}

type blockingContent struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingContent) ListPublishedArticles(ctx context.Context) ([]model.Article, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.Memory.ListPublishedArticles(ctx)
}

func TestConcurrentBuildRejected(t *testing.T) {
	f := newFixture(t)
	content := &blockingContent{Memory: f.mem, entered: make(chan struct{}), release: make(chan struct{})}
	e, err := New(Options{
		OutputDir: f.outputDir,
		Content:   content,
		Settings:  f.mem,
		Themes:    theme.NewStore(""),
		Markdown:  markup.DefaultExtensions(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.Build(context.Background())
		done <- err
	}()
	<-content.entered

	_, err = e.Build(context.Background())
	require.ErrorIs(t, err, ErrBuildInProgress)
	assert.Equal(t, string(PhaseInitializing), e.Progress().Phase)

	close(content.release)
	require.NoError(t, <-done)
}

func TestDefaultsWithoutStoredSite(t *testing.T) {
	f := newFixture(t)
	f.mem = store.NewMemory()
	res, err := f.engine(t).Build(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(res.OutputDir, "index.html"))
	assert.NoFileExists(t, filepath.Join(res.OutputDir, "rss.xml"))
	assert.NoFileExists(t, filepath.Join(res.OutputDir, "CNAME"))
	assert.NoFileExists(t, filepath.Join(res.OutputDir, "sitemap.xml"))
}

func TestManifestRelative(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "site")
	m := &Manifest{Root: root, Files: []string{filepath.Join(root, "a", "b.html"), filepath.Join(root, "index.html")}}
	rel, err := m.Relative()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b.html", "index.html"}, rel)

	m.Files = append(m.Files, filepath.Join(string(filepath.Separator), "etc", "passwd"))
	_, err = m.Relative()
	require.Error(t, err)
}

func TestScanManifestMatchesBuild(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine(t).Build(context.Background())
	require.NoError(t, err)

	scanned, err := ScanManifest(res.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, res.Manifest.Files, scanned.Files)
	assert.True(t, scanned.Contains("sitemap.xml"))

	_, err = ScanManifest(t.TempDir())
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryNotFound))
}

func TestGroupTagsMergesBySlug(t *testing.T) {
	views := []tmpl.ArticleView{
		{Article: model.Article{ID: "1", Tags: []string{"Go", "web"}}},
		{Article: model.Article{ID: "2", Tags: []string{"go", "GO"}}},
	}
	groups := groupTags(views)
	require.Len(t, groups, 2)
	assert.Equal(t, "Go", groups[0].Name)
	assert.Equal(t, "go", groups[0].Slug)
	assert.Len(t, groups[0].Articles, 2)
	assert.Equal(t, "web", groups[1].Name)
	assert.Empty(t, groupTags(nil))
}
