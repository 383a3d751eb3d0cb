package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contextflow/api/internal/backup"
	"contextflow/api/internal/export"
	"contextflow/api/internal/gitrepo"
	"contextflow/api/internal/logger"
	"contextflow/api/internal/metrics"
	"contextflow/api/internal/model"
	"contextflow/api/internal/schema"
	"contextflow/api/internal/search"
	"contextflow/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *slog.Logger
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = logger.Discard()
	}
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		log:        log.With(logger.Scope("http")),
		metrics:    promhttp.Handler(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Checks(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "session" {
		s.handleSession(w, r, parts[2:])
		return
	}

	if len(parts) == 2 && parts[0] == "api" && parts[1] == "projects" {
		switch r.Method {
		case http.MethodGet:
			projects, err := s.service.ListProjects(r.Context())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			if projects == nil {
				projects = []store.ProjectSummary{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
			return
		case http.MethodPost:
			var body struct {
				Name   string `json:"name"`
				Author string `json:"author"`
				Blank  bool   `json:"blank"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.CreateProject(r.Context(), body.Name, body.Author, body.Blank)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, project)
			return
		}
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "projects" {
		s.handleProject(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProject(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.service.GetProject(ctx, projectID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, project)
			return
		case http.MethodDelete:
			if err := s.service.DeleteProject(ctx, projectID); err != nil {
				writeMappedError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	if len(rest) == 1 && rest[0] == "history" && r.Method == http.MethodGet {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		history, err := s.service.History(ctx, projectID, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
		return
	}

	if len(rest) == 1 && rest[0] == "versions" && r.Method == http.MethodPost {
		var body struct {
			Name   string `json:"name"`
			Author string `json:"author"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		saved, err := s.service.SaveVersion(ctx, projectID, body.Name, body.Author)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		status := http.StatusOK
		if saved.Changed {
			status = http.StatusCreated
		}
		writeJSON(w, status, saved)
		return
	}

	if len(rest) == 2 && rest[0] == "versions" && r.Method == http.MethodGet {
		version, err := s.service.Version(ctx, projectID, rest[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, version)
		return
	}

	if len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		result, err := s.service.Export(ctx, export.Request{
			ProjectID: projectID,
			Revision:  r.URL.Query().Get("revision"),
			Format:    format,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(rest) == 1 && rest[0] == "backups" {
		switch r.Method {
		case http.MethodGet:
			snapshots, err := s.service.Backups(ctx, projectID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			if snapshots == nil {
				snapshots = []backup.Snapshot{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"backups": snapshots})
			return
		case http.MethodPost:
			snapshot, err := s.service.Backup(ctx, projectID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, snapshot)
			return
		}
	}

	if len(rest) == 2 && rest[0] == "backups" && rest[1] == "restore" && r.Method == http.MethodPost {
		var body struct {
			Key    string `json:"key"`
			Author string `json:"author"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Key) == "" {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "key is required", nil)
			return
		}
		project, err := s.service.RestoreBackup(ctx, projectID, body.Key, body.Author)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.service.Session())
			return
		case http.MethodPost:
			var body struct {
				ProjectID string `json:"projectId"`
				Join      bool   `json:"join"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if strings.TrimSpace(body.ProjectID) == "" {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "projectId is required", nil)
				return
			}
			state, err := s.service.StartSession(ctx, body.ProjectID, body.Join)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, state)
			return
		case http.MethodDelete:
			var body struct {
				Author string `json:"author"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			commit, err := s.service.EndSession(ctx, body.Author)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ended": true, "commit": commit})
			return
		}
	}

	if len(rest) == 1 {
		switch {
		case rest[0] == "mutations" && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"ops": MutationNames()})
			return
		case rest[0] == "mutations" && r.Method == http.MethodPost:
			var body struct {
				Op   string          `json:"op"`
				Args json.RawMessage `json:"args"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			state, err := s.service.ApplyMutation(body.Op, body.Args)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, state)
			return
		case rest[0] == "undo" && r.Method == http.MethodPost:
			s.writeSessionResult(w, s.service.Undo)
			return
		case rest[0] == "redo" && r.Method == http.MethodPost:
			s.writeSessionResult(w, s.service.Redo)
			return
		case rest[0] == "sync" && r.Method == http.MethodPost:
			s.writeSessionResult(w, func() (SessionState, error) { return s.service.Sync(ctx) })
			return
		case rest[0] == "state" && r.Method == http.MethodGet:
			state, err := s.service.EncodeState()
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, state)
			return
		case rest[0] == "updates" && r.Method == http.MethodPost:
			var update schema.Update
			if err := decodeBody(r, &update); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.writeSessionResult(w, func() (SessionState, error) { return s.service.ApplyRemoteUpdate(ctx, update) })
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) writeSessionResult(w http.ResponseWriter, fn func() (SessionState, error)) {
	state, err := fn()
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "q is required", nil)
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	q := search.Query{
		Text:            text,
		FilterType:      search.ResultType(query.Get("type")),
		FilterProjectID: query.Get("projectId"),
		Limit:           limit,
		Offset:          offset,
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		metrics.Requests.WithLabelValues(r.Method, strconv.Itoa(writer.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())
		s.log.Info("request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", writer.status),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

// decodeBody decodes a JSON body. An empty body leaves target untouched.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *model.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Error(), map[string]any{
			"field": validationErr.Field,
			"value": validationErr.Value,
		}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Project not found", nil
	case errors.Is(err, gitrepo.ErrNoHistory), errors.Is(err, gitrepo.ErrUnknownRevision):
		return http.StatusNotFound, "VERSION_NOT_FOUND", "Version not found", nil
	case errors.Is(err, backup.ErrNotFound):
		return http.StatusNotFound, "BACKUP_NOT_FOUND", "Backup not found", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
