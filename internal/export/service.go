package export

import (
	"context"
	"fmt"
	"time"

	"contextflow/api/internal/model"
)

// ProjectSource loads the project to export. An empty revision means the
// current project.
type ProjectSource interface {
	ExportProject(ctx context.Context, id, revision string) (model.Project, error)
}

type converter func(ctx context.Context, html, title string) (*Result, error)

// Service provides project report export
type Service struct {
	source ProjectSource
	pdf    converter
	docx   converter
	now    func() time.Time
}

// NewService creates a new export service
func NewService(source ProjectSource) *Service {
	return &Service{source: source, pdf: exportPDF, docx: exportDOCX, now: time.Now}
}

// Export renders the report in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	p, err := s.source.ExportProject(ctx, req.ProjectID, req.Revision)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	html, err := RenderReportHTML(BuildReport(p, req.Revision, s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := p.Name
	if req.Revision != "" {
		title += " " + req.Revision
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, title)
	case FormatDOCX:
		return s.docx(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
