package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"contextflow/api/internal/model"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs one UNION ALL query across projects and project_contexts
// ranked with ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	projectFilter := ""
	if q.FilterProjectID != "" {
		args = append(args, q.FilterProjectID)
		projectFilter = fmt.Sprintf(" AND %%s = $%d", len(args))
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultProject {
		where := "pr.fts @@ " + tsQuery
		if projectFilter != "" {
			where += fmt.Sprintf(projectFilter, "pr.id")
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, pr.id, pr.name AS title,
				''::text AS snippet,
				pr.id AS project_id,
				ts_rank(pr.fts, %s) AS rank
			FROM projects pr
			WHERE %s`, tsQuery, where))
	}
	if q.FilterType == "" || q.FilterType == ResultContext {
		where := "pc.fts @@ " + tsQuery
		if projectFilter != "" {
			where += fmt.Sprintf(projectFilter, "pc.project_id")
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'context'::text AS type, pc.context_id AS id, pc.name AS title,
				ts_headline('english', coalesce(pc.purpose, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				pc.project_id,
				ts_rank(pc.fts, %s) AS rank
			FROM project_contexts pc
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id
		FROM (%s) sub
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []ContextRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT data FROM projects ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer rows.Close()

	projects := make([]ProjectRecord, 0)
	contexts := make([]ContextRecord, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		var proj model.Project
		if err := json.Unmarshal(data, &proj); err != nil {
			return nil, nil, fmt.Errorf("decode project: %w", err)
		}
		rec, ctxs := RecordsFor(proj)
		projects = append(projects, rec)
		contexts = append(contexts, ctxs...)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, contexts, nil
}
