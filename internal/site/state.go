package site

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/markup"
	"github.com/pagepress/pagepress/internal/model"
	"github.com/pagepress/pagepress/internal/store"
	"github.com/pagepress/pagepress/internal/theme"
	"github.com/pagepress/pagepress/internal/tmpl"
)

// Output layout names.
const (
	assetsDir    = "_assets"
	rssFile      = "rss.xml"
	atomFile     = "atom.xml"
	jsonFeedFile = "feed.json"
	sitemapFile  = "sitemap.xml"
	cnameFile    = "CNAME"
	indexFile    = "index.html"
)

// buildState carries everything one build reads and produces. It is discarded afterwards.
type buildState struct {
	engine      *Engine
	id          string
	phase       Phase
	report      *BuildReport
	generatedAt time.Time

	site         model.Site
	theme        *theme.Theme
	templates    *tmpl.Engine
	pages        map[string]theme.PageValues
	customFields theme.PageValues
	articles     []model.Article
	resources    map[string]model.Resource
	lookup       markup.MapLookup
	icon         *iconSource

	// prefix is the root-relative URL prefix without trailing slash ("" or "/blog").
	prefix string
	// absBase is the absolute site URL, empty when the site has no base URL or domain.
	absBase string
	links   tmpl.LinkTable

	views    []tmpl.ArticleView
	files    []string // output-relative article file per view
	siteData tmpl.SiteData

	stageDir string
	assets   *assetTracker
	manifest *Manifest
}

type iconSource struct {
	ext      string
	resource *model.Resource
	path     string
}

func newBuildState(e *Engine, id string, start time.Time) *buildState {
	return &buildState{
		engine:      e,
		id:          id,
		phase:       PhaseIdle,
		report:      newBuildReport(id, start),
		generatedAt: start,
	}
}

func defaultSite() model.Site {
	return model.Site{
		Name:  "My Site",
		Theme: theme.DefaultName,
		Feed:  model.Feed{Mode: model.FeedNone},
	}
}

// stageLoadInputs reads and validates every input of the build. It writes nothing.
func stageLoadInputs(ctx context.Context, bs *buildState) error {
	e := bs.engine
	site, ok, err := store.LoadSite(ctx, e.settings)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to read site settings").Fatal().Build()
	}
	if !ok {
		slog.Info("No site settings stored, using defaults", logfields.BuildID(bs.id))
		site = defaultSite()
	}
	if err := normalizeSite(&site); err != nil {
		return err
	}
	bs.site = site

	th, err := e.themes.Load(site.Theme)
	if err != nil {
		return err
	}
	bs.theme = th
	bs.report.Theme = th.Name

	pages, err := theme.ResolvePages(ctx, th, e.settings)
	if err != nil {
		return err
	}
	if err := th.ValidateValues(pages); err != nil {
		return err
	}
	bs.pages = pages
	bs.customFields = theme.ResolveSiteFields(th, site.ThemeFields(th.Name))
	if err := th.ValidateSiteValues(bs.customFields); err != nil {
		return err
	}

	bs.templates = tmpl.NewEngine(th.FS)
	for _, name := range th.PageNames() {
		if !bs.templates.Has(name) {
			return foundationerrors.WrapError(tmpl.ErrTemplateNotFound, foundationerrors.CategoryRender, "theme page has no template").
				WithContext("theme", th.Name).WithContext("page", name).Fatal().Build()
		}
	}

	if bs.prefix, bs.absBase, err = urlBase(site); err != nil {
		return err
	}
	if err := bs.loadArticles(ctx); err != nil {
		return err
	}
	bs.icon = resolveIcon(site.Icon, bs.resources)
	bs.assignURLs()

	total := len(th.Pages)
	if th.HasPage(theme.ArticlePage) {
		total = total - 1 + len(bs.articles)
	}
	e.progress.SetTotal(total)
	slog.Info("Loaded build inputs", logfields.BuildID(bs.id), logfields.Theme(th.Name),
		slog.Int("pages", len(th.Pages)), slog.Int("articles", len(bs.articles)))
	return nil
}

func normalizeSite(site *model.Site) error {
	if site.Theme == "" {
		site.Theme = theme.DefaultName
	}
	switch site.Feed.Mode {
	case "":
		site.Feed.Mode = model.FeedNone
	case model.FeedNone, model.FeedAbstract, model.FeedFull:
	default:
		return foundationerrors.ConfigError("invalid feed mode").WithContext("mode", string(site.Feed.Mode)).Build()
	}
	if site.Feed.Enabled() && site.Feed.Length <= 0 {
		site.Feed.Length = model.DefaultFeedLength
	}
	return nil
}

// urlBase splits the configured site URL into the root-relative prefix used for links and the
// absolute base used by feeds and the sitemap.
func urlBase(site model.Site) (prefix, absolute string, err error) {
	base := site.AbsoluteBase()
	if base == "" {
		return "", "", nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", "", foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "invalid site base url").
			WithContext("url", base).Fatal().Build()
	}
	prefix = strings.TrimRight(u.Path, "/")
	if u.Scheme != "" && u.Host != "" {
		absolute = base
	}
	return prefix, absolute, nil
}

// loadArticles lists published articles newest first and loads their bodies, tags and
// resources. A document that cannot be loaded is skipped with a warning.
func (bs *buildState) loadArticles(ctx context.Context) error {
	cs := bs.engine.content
	listed, err := cs.ListPublishedArticles(ctx)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryStore, "failed to list articles").Fatal().Build()
	}
	listed = model.FilterPublished(listed)
	model.SortNewestFirst(listed)

	bs.resources = make(map[string]model.Resource)
	articles := make([]model.Article, 0, len(listed))
	for _, a := range listed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.Content == "" {
			body, err := cs.DocumentBody(ctx, a.ID)
			if err != nil {
				bs.warn(fmt.Sprintf("skipped article %s: %v", a.ID, err), logfields.Article(a.ID), logfields.Error(err))
				continue
			}
			a.Content = body
		}
		if a.Tags == nil {
			tags, err := cs.Tags(ctx, a.ID)
			if err != nil {
				bs.warn(fmt.Sprintf("tags of article %s: %v", a.ID, err), logfields.Article(a.ID), logfields.Error(err))
			}
			a.Tags = tags
		}
		a.Tags = slices.Clone(a.Tags)
		res, err := cs.Resources(ctx, a.ID)
		if err != nil {
			bs.warn(fmt.Sprintf("resources of article %s: %v", a.ID, err), logfields.Article(a.ID), logfields.Error(err))
		}
		for _, r := range res {
			bs.resources[strings.ToLower(r.ID)] = r
		}
		articles = append(articles, a)
	}
	bs.articles = articles
	bs.report.Articles = len(articles)
	return nil
}

func (bs *buildState) warn(msg string, attrs ...any) {
	slog.Warn(msg, append([]any{logfields.BuildID(bs.id)}, attrs...)...)
	bs.report.addWarning(msg)
}

// assignURLs computes page links and article locations and builds the reference lookup.
func (bs *buildState) assignURLs() {
	links := tmpl.LinkTable{
		theme.HomePage: bs.prefix + "/",
		assetsDir:      bs.prefix + "/" + assetsDir,
	}
	if bs.absBase != "" {
		links["sitemap"] = bs.prefix + "/" + sitemapFile
	}
	for _, p := range bs.theme.Pages {
		if p.Name == theme.HomePage {
			continue
		}
		u := theme.PageURL(p.Name, bs.pages[p.Name])
		if p.Name == theme.ArticlePage {
			links[p.Name] = bs.prefix + "/" + u
			continue
		}
		links[p.Name] = bs.prefix + "/" + u + ".html"
	}
	if bs.site.Feed.Enabled() {
		links["rss"] = bs.prefix + "/" + rssFile
		links["atom"] = bs.prefix + "/" + atomFile
		links["feed"] = bs.prefix + "/" + jsonFeedFile
	}
	if bs.icon != nil {
		links["favicon"] = bs.prefix + "/favicon." + bs.icon.ext
	}
	bs.links = links

	articleDir := theme.PageURL(theme.ArticlePage, bs.pages[theme.ArticlePage])
	lookup := markup.MapLookup{
		Articles:  make(map[string]string, len(bs.articles)),
		Resources: make(map[string]string, len(bs.resources)),
	}
	used := make(map[string]bool, len(bs.articles))
	bs.views = make([]tmpl.ArticleView, len(bs.articles))
	bs.files = make([]string, len(bs.articles))
	for i, a := range bs.articles {
		slug := a.URLSlug()
		if used[slug] {
			slug = slug + "-" + shortID(a.ID)
		}
		used[slug] = true
		file := path.Join(articleDir, slug+".html")
		v := tmpl.ArticleView{Article: a, URL: bs.prefix + "/" + file}
		v.AbsoluteURL = v.URL
		if bs.absBase != "" {
			v.AbsoluteURL = bs.absBase + "/" + file
		}
		bs.views[i] = v
		bs.files[i] = file
		if bs.theme.HasPage(theme.ArticlePage) {
			lookup.Articles[strings.ToLower(a.ID)] = v.URL
		}
	}
	for id, r := range bs.resources {
		lookup.Resources[id] = r.FileExtension()
	}
	bs.lookup = lookup
}

func shortID(id string) string {
	s := model.Slugify(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func resolveIcon(icon string, resources map[string]model.Resource) *iconSource {
	icon = strings.TrimSpace(icon)
	if icon == "" {
		return nil
	}
	if r, ok := resources[strings.ToLower(strings.TrimPrefix(icon, ":/"))]; ok {
		return &iconSource{ext: r.FileExtension(), resource: &r}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(icon), "."))
	if ext == "" {
		slog.Warn("Site icon has no file extension, skipping", logfields.Path(icon))
		return nil
	}
	return &iconSource{ext: ext, path: icon}
}

// stagePrepareOutput repairs an interrupted previous build and opens a fresh staging
// directory.
func stagePrepareOutput(_ context.Context, bs *buildState) error {
	e := bs.engine
	if err := e.repairOutput(); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to repair output directory").
			WithContext("path", e.outputDir).Fatal().Build()
	}
	dir, err := e.beginStaging()
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to create staging directory").
			WithContext("path", e.stageDir()).Fatal().Build()
	}
	bs.stageDir = dir
	bs.assets = newAssetTracker(dir)
	return nil
}
