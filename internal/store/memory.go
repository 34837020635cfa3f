package store

import (
	"context"
	"sync"

	"github.com/pagepress/pagepress/internal/model"
)

// Memory is a concurrency-safe in-process ContentStore and ConfigStore.
type Memory struct {
	mu        sync.RWMutex
	articles  map[string]model.Article
	order     []string
	resources map[string][]model.Resource
	settings  map[string]any
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		articles:  make(map[string]model.Article),
		resources: make(map[string][]model.Resource),
		settings:  make(map[string]any),
	}
}

// PutArticle inserts or replaces an article.
func (m *Memory) PutArticle(a model.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[a.ID]; !ok {
		m.order = append(m.order, a.ID)
	}
	m.articles[a.ID] = a
}

// AttachResource attaches a resource to an article.
func (m *Memory) AttachResource(articleID string, r model.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[articleID] = append(m.resources[articleID], r)
}

func (m *Memory) ListPublishedArticles(_ context.Context) ([]model.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Article, 0, len(m.order))
	for _, id := range m.order {
		if a := m.articles[id]; a.Published {
			a.Tags = append([]string(nil), a.Tags...)
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) DocumentBody(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[id]
	if !ok {
		return "", ErrNotFound
	}
	return a.Content, nil
}

func (m *Memory) Tags(_ context.Context, id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), a.Tags...), nil
}

func (m *Memory) Resources(_ context.Context, id string) ([]model.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Resource(nil), m.resources[id]...), nil
}

func (m *Memory) Get(_ context.Context, path []string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[JoinPath(path)], nil
}

func (m *Memory) Set(_ context.Context, path []string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[JoinPath(path)] = value
	return nil
}
