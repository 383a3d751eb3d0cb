package search

import (
	"context"
	"log/slog"
	"sync"

	"contextflow/api/internal/logger"
	"contextflow/api/internal/model"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili Indexer
	pgfts Searcher
	log   *slog.Logger

	mu      sync.Mutex
	indexed map[string]map[string]bool // project id -> context keys in the index
}

// Indexer is the Meilisearch surface the service drives.
type Indexer interface {
	Searcher
	IndexProject(p ProjectRecord) error
	IndexProjects(projects []ProjectRecord) error
	IndexContexts(contexts []ContextRecord) error
	DeleteProject(id string) error
	DeleteContext(key string) error
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili Indexer, pgfts Searcher, log *slog.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, log: log, indexed: map[string]map[string]bool{}}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn("meilisearch error, falling back to pgfts", logger.Error(err))
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.log.Error("pgfts search failed", logger.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject pushes p and its contexts to Meilisearch and drops contexts
// that no longer exist. PG FTS rows are maintained by the project store.
func (s *Service) IndexProject(p model.Project) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	rec, contexts := RecordsFor(p)
	stale := s.track(p.ID, contexts)

	if err := s.meili.IndexProject(rec); err != nil {
		s.log.Warn("index project", slog.String("project_id", p.ID), logger.Error(err))
	}
	if err := s.meili.IndexContexts(contexts); err != nil {
		s.log.Warn("index contexts", slog.String("project_id", p.ID), logger.Error(err))
	}
	for _, key := range stale {
		if err := s.meili.DeleteContext(key); err != nil {
			s.log.Warn("delete context", slog.String("key", key), logger.Error(err))
		}
	}
}

// DeleteProject removes a project and every context indexed for it.
func (s *Service) DeleteProject(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	stale := s.track(id, nil)
	if err := s.meili.DeleteProject(id); err != nil {
		s.log.Warn("delete project", slog.String("project_id", id), logger.Error(err))
	}
	for _, key := range stale {
		if err := s.meili.DeleteContext(key); err != nil {
			s.log.Warn("delete context", slog.String("key", key), logger.Error(err))
		}
	}
}

// track records the context keys now indexed for a project and returns the
// ones indexed before that are gone.
func (s *Service) track(projectID string, contexts []ContextRecord) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]bool, len(contexts))
	for _, c := range contexts {
		next[c.Key] = true
	}
	var stale []string
	for key := range s.indexed[projectID] {
		if !next[key] {
			stale = append(stale, key)
		}
	}
	if len(next) == 0 {
		delete(s.indexed, projectID)
	} else {
		s.indexed[projectID] = next
	}
	return stale
}

// ReindexAll pushes every record to Meilisearch.
func (s *Service) ReindexAll(projects []ProjectRecord, contexts []ContextRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexProjects(projects); err != nil {
		s.log.Error("reindex projects", logger.Error(err))
	}
	if err := s.meili.IndexContexts(contexts); err != nil {
		s.log.Error("reindex contexts", logger.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contexts {
		if s.indexed[c.ProjectID] == nil {
			s.indexed[c.ProjectID] = map[string]bool{}
		}
		s.indexed[c.ProjectID][c.Key] = true
	}
}

// Loader reads every searchable record from the source of truth.
type Loader interface {
	LoadAllRecords(ctx context.Context) ([]ProjectRecord, []ContextRecord, error)
}

// ReindexFrom loads all records and reindexes them into Meilisearch.
func (s *Service) ReindexFrom(ctx context.Context, loader Loader) error {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	projects, contexts, err := loader.LoadAllRecords(ctx)
	if err != nil {
		return err
	}
	s.ReindexAll(projects, contexts)
	s.log.Info("search reindexed", slog.Int("projects", len(projects)), slog.Int("contexts", len(contexts)))
	return nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
