package sqlitestore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/store"
)

// ImportResult counts the outcome of Import.
type ImportResult struct {
	Imported  int
	Unchanged int
	Failed    int
}

// Import copies every published article of src, with its resources, into the store.
// Articles whose revision matches the stored one are skipped. Per-article failures are
// logged and counted; only a failure to list src aborts the import.
func (s *Store) Import(ctx context.Context, src store.ContentStore) (ImportResult, error) {
	var res ImportResult
	articles, err := src.ListPublishedArticles(ctx)
	if err != nil {
		return res, fmt.Errorf("list source articles: %w", err)
	}
	revs, err := s.Revisions(ctx)
	if err != nil {
		return res, err
	}
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if a.Revision != "" && revs[a.ID] == a.Revision {
			res.Unchanged++
			continue
		}
		resources, err := src.Resources(ctx, a.ID)
		if err == nil {
			err = s.PutArticle(ctx, a, resources)
		}
		if err != nil {
			slog.Warn("Failed to import article", logfields.Article(a.ID), logfields.Error(err))
			res.Failed++
			continue
		}
		res.Imported++
	}
	slog.Info("Import completed", slog.Int("imported", res.Imported), slog.Int("unchanged", res.Unchanged),
		slog.Int("failed", res.Failed))
	return res, nil
}
