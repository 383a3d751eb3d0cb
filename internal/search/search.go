package search

import (
	"context"
	"strings"

	"contextflow/api/internal/model"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultContext ResultType = "context"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContextCount int    `json:"contextCount"`
}

// ContextRecord is the data we index for a bounded context. Key is unique
// across projects.
type ContextRecord struct {
	Key            string `json:"key"`
	ID             string `json:"id"`
	ProjectID      string `json:"projectId"`
	Name           string `json:"name"`
	Purpose        string `json:"purpose"`
	Classification string `json:"classification"`
}

// RecordsFor projects p into its searchable records.
func RecordsFor(p model.Project) (ProjectRecord, []ContextRecord) {
	contexts := make([]ContextRecord, 0, len(p.Contexts))
	for _, c := range p.Contexts {
		rec := ContextRecord{
			Key:       contextKey(p.ID, c.ID),
			ID:        c.ID,
			ProjectID: p.ID,
			Name:      c.Name,
		}
		if c.Purpose != nil {
			rec.Purpose = *c.Purpose
		}
		if c.StrategicClassification != nil {
			rec.Classification = string(*c.StrategicClassification)
		}
		contexts = append(contexts, rec)
	}
	return ProjectRecord{ID: p.ID, Name: p.Name, ContextCount: len(p.Contexts)}, contexts
}

// contextKey builds a Meilisearch-safe document id: only alphanumerics,
// hyphens and underscores are allowed.
func contextKey(projectID, contextID string) string {
	safe := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
				return r
			default:
				return '-'
			}
		}, s)
	}
	return safe(projectID) + "__" + safe(contextID)
}
