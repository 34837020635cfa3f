package site

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/markup"
	"github.com/pagepress/pagepress/internal/model"
	"github.com/pagepress/pagepress/internal/theme"
	"github.com/pagepress/pagepress/internal/tmpl"
)

const summaryLength = 280

// assetTracker de-duplicates resource and extension asset copies across concurrently
// rendered articles.
type assetTracker struct {
	mu        sync.Mutex
	root      string
	written   map[string]bool
	resources int
	assets    int
}

func newAssetTracker(root string) *assetTracker {
	return &assetTracker{root: root, written: make(map[string]bool)}
}

// claim reports whether the caller is the first to write rel.
func (t *assetTracker) claim(rel string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.written[rel] {
		return false
	}
	t.written[rel] = true
	return true
}

func (t *assetTracker) count(resource bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if resource {
		t.resources++
	} else {
		t.assets++
	}
}

func (t *assetTracker) totals() (resources, assets int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resources, t.assets
}

// stageConvertArticles turns every article's markup into sanitized HTML and copies the
// resources and extension assets each article uses.
func stageConvertArticles(ctx context.Context, bs *buildState) error {
	e := bs.engine
	opts := markup.RenderOptions{BaseURL: bs.prefix, Lookup: bs.lookup}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range bs.views {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v := &bs.views[i]
			res, err := e.renderer.Render(v.Content, opts)
			if err != nil {
				return foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to render article").
					WithContext("article", v.ID).Fatal().Build()
			}
			v.HTML = template.HTML(res.HTML) // #nosec G203 -- sanitized by the markup renderer
			v.Summary = markup.Summary(res.HTML, summaryLength)
			for _, name := range res.CSS {
				v.Stylesheets = append(v.Stylesheets, bs.prefix+"/"+markup.AssetDir+"/"+name)
			}
			for _, name := range res.Scripts {
				v.Scripts = append(v.Scripts, bs.prefix+"/"+markup.AssetDir+"/"+name)
			}
			bs.copyResources(v.ID, res.Resources)
			bs.copyExtensionAssets(slices.Concat(res.CSS, res.Scripts))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	bs.siteData = tmpl.SiteData{
		Settings:     bs.site,
		Articles:     bs.views,
		Tags:         groupTags(bs.views),
		GeneratedAt:  bs.generatedAt,
		CustomFields: bs.customFields,
	}
	return nil
}

func (bs *buildState) copyResources(article string, ids []string) {
	for _, id := range ids {
		r, ok := bs.resources[id]
		if !ok {
			continue
		}
		rel := markup.ResourceDir + "/" + id + "." + r.FileExtension()
		if !bs.assets.claim(rel) {
			continue
		}
		if err := writeFile(bs.stageDir, rel, r.Data); err != nil {
			ae := foundationerrors.WrapError(err, foundationerrors.CategoryAsset, "failed to copy resource").
				WithContext("resource", id).Warning().Build()
			bs.warn(ae.Error(), logfields.Resource(id), logfields.Article(article))
			continue
		}
		bs.assets.count(true)
	}
}

func (bs *buildState) copyExtensionAssets(names []string) {
	for _, name := range names {
		rel := markup.AssetDir + "/" + name
		if !bs.assets.claim(rel) {
			continue
		}
		data, err := bs.engine.renderer.Asset(name)
		if err == nil {
			err = writeFile(bs.stageDir, rel, data)
		}
		if err != nil {
			ae := foundationerrors.WrapError(err, foundationerrors.CategoryAsset, "failed to copy markup asset").
				WithContext("asset", name).Warning().Build()
			bs.warn(ae.Error(), logfields.Asset(name))
			continue
		}
		bs.assets.count(false)
	}
}

// groupTags indexes articles by tag. Tags that slugify identically are merged under the first
// spelling seen.
func groupTags(views []tmpl.ArticleView) []tmpl.TagGroup {
	bySlug := make(map[string]*tmpl.TagGroup)
	var order []string
	for _, v := range views {
		seen := make(map[string]bool, len(v.Tags))
		for _, tag := range v.Tags {
			slug := model.Slugify(tag)
			if slug == "" || seen[slug] {
				continue
			}
			seen[slug] = true
			g, ok := bySlug[slug]
			if !ok {
				g = &tmpl.TagGroup{Name: strings.TrimSpace(tag), Slug: slug}
				bySlug[slug] = g
				order = append(order, slug)
			}
			g.Articles = append(g.Articles, v)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		return strings.ToLower(bySlug[order[i]].Name) < strings.ToLower(bySlug[order[j]].Name)
	})
	out := make([]tmpl.TagGroup, 0, len(order))
	for _, slug := range order {
		out = append(out, *bySlug[slug])
	}
	return out
}

func (bs *buildState) env(page string, article *tmpl.ArticleView) tmpl.Env {
	return tmpl.Env{
		PageName: page,
		Page:     bs.pages[page],
		Site:     bs.siteData,
		Links:    bs.links,
		Article:  article,
		Helpers:  tmpl.Helpers{},
	}
}

func (bs *buildState) renderTo(rel, page string, article *tmpl.ArticleView) error {
	var buf bytes.Buffer
	if err := bs.templates.Render(&buf, page, bs.env(page, article)); err != nil {
		return err
	}
	if err := writeFile(bs.stageDir, rel, buf.Bytes()); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to write page").
			WithContext("path", rel).Fatal().Build()
	}
	return nil
}

// stageRenderPages renders every non-article page once.
func stageRenderPages(ctx context.Context, bs *buildState) error {
	rendered := 0
	for _, p := range bs.theme.Pages {
		if p.Name == theme.ArticlePage {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := indexFile
		if p.Name != theme.HomePage {
			rel = theme.PageURL(p.Name, bs.pages[p.Name]) + ".html"
		}
		if err := bs.renderTo(rel, p.Name, nil); err != nil {
			return err
		}
		rendered++
		bs.engine.progress.Advance(fmt.Sprintf("rendered %s", rel))
		slog.Debug("Rendered page", logfields.BuildID(bs.id), logfields.Page(p.Name), logfields.Path(rel))
	}
	bs.report.Pages = rendered
	bs.engine.recorder.AddPagesRendered("page", rendered)
	return nil
}

// stageRenderArticles renders the article page once per article.
func stageRenderArticles(ctx context.Context, bs *buildState) error {
	if !bs.theme.HasPage(theme.ArticlePage) {
		slog.Debug("Theme declares no article page, skipping articles", logfields.BuildID(bs.id))
		return nil
	}
	e := bs.engine
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range bs.views {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v := bs.views[i]
			if err := bs.renderTo(bs.files[i], theme.ArticlePage, &v); err != nil {
				if ce, ok := foundationerrors.AsClassified(err); ok {
					return ce.WithContext("article", v.ID)
				}
				return err
			}
			e.progress.Advance("rendered " + path.Base(bs.files[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.recorder.AddPagesRendered("article", len(bs.views))
	return nil
}
