package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"contextflow/api/internal/model"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, context_count, revision, created_at, updated_at
		FROM projects
		ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]ProjectSummary, 0)
	for rows.Next() {
		var p ProjectSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.ContextCount, &p.Revision, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (model.Project, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM projects WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("get project: %w", err)
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Project{}, fmt.Errorf("decode project %s: %w", id, err)
	}
	return p, nil
}

// SaveProject upserts the project document and refreshes its searchable
// context rows in one transaction. The returned summary carries the new
// revision.
func (s *PostgresStore) SaveProject(ctx context.Context, p model.Project) (ProjectSummary, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return ProjectSummary{}, fmt.Errorf("encode project %s: %w", p.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ProjectSummary{}, fmt.Errorf("begin save project tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	summary := ProjectSummary{ID: p.ID, Name: p.Name, ContextCount: len(p.Contexts)}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO projects (id, name, data, context_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			data = EXCLUDED.data,
			context_count = EXCLUDED.context_count,
			revision = projects.revision + 1,
			updated_at = NOW()
		RETURNING revision, created_at, updated_at
	`, p.ID, p.Name, data, len(p.Contexts)).Scan(&summary.Revision, &summary.CreatedAt, &summary.UpdatedAt)
	if err != nil {
		return ProjectSummary{}, fmt.Errorf("upsert project %s: %w", p.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_contexts WHERE project_id = $1`, p.ID); err != nil {
		return ProjectSummary{}, fmt.Errorf("clear project contexts: %w", err)
	}
	for _, row := range ContextRows(p) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_contexts (project_id, context_id, name, purpose, strategic_classification)
			VALUES ($1, $2, $3, $4, $5)
		`, row.ProjectID, row.ContextID, row.Name, row.Purpose, row.StrategicClassification); err != nil {
			return ProjectSummary{}, fmt.Errorf("insert project context %s: %w", row.ContextID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ProjectSummary{}, fmt.Errorf("commit save project: %w", err)
	}
	return summary, nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// ContextRows flattens the project's bounded contexts into search rows.
func ContextRows(p model.Project) []ContextRow {
	rows := make([]ContextRow, 0, len(p.Contexts))
	for _, c := range p.Contexts {
		row := ContextRow{ProjectID: p.ID, ContextID: c.ID, Name: c.Name}
		if c.Purpose != nil {
			row.Purpose = *c.Purpose
		}
		if c.StrategicClassification != nil {
			row.StrategicClassification = string(*c.StrategicClassification)
		}
		rows = append(rows, row)
	}
	return rows
}
