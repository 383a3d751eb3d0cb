package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a project id has no row.
var ErrNotFound = errors.New("not found")

// ProjectSummary is the listing row for a stored project.
type ProjectSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContextCount int       `json:"contextCount"`
	Revision     int64     `json:"revision"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ContextRow is one bounded context projected out of a project for search.
type ContextRow struct {
	ProjectID               string
	ContextID               string
	Name                    string
	Purpose                 string
	StrategicClassification string
}
