package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"contextflow/api/internal/backup"
	"contextflow/api/internal/collab"
	"contextflow/api/internal/export"
	"contextflow/api/internal/gitrepo"
	"contextflow/api/internal/logger"
	"contextflow/api/internal/model"
	"contextflow/api/internal/schema"
	"contextflow/api/internal/search"
	"contextflow/api/internal/session"
	"contextflow/api/internal/store"
)

const (
	defaultAuthor   = "contextflow"
	persistTimeout  = 10 * time.Second
	historyPageSize = 50
	// maxLogEntries is the log length past which a local update folds the
	// whole log into one state.
	maxLogEntries = 64
)

type projectStore interface {
	Ping(context.Context) error
	ListProjects(context.Context) ([]store.ProjectSummary, error)
	GetProject(context.Context, string) (model.Project, error)
	SaveProject(context.Context, model.Project) (store.ProjectSummary, error)
	DeleteProject(context.Context, string) error
}

// documentLog persists the replicated document so other replicas can join.
type documentLog interface {
	Ping(context.Context) error
	AppendUpdate(context.Context, string, schema.Update) error
	LoadState(context.Context, string) (schema.Update, error)
	Compact(context.Context, string, schema.Update) error
	Length(context.Context, string) (int64, error)
	Drop(context.Context, string) error
}

type versionStore interface {
	CommitProject(model.Project, string, string) (gitrepo.Commit, bool, error)
	History(string, int) ([]gitrepo.Commit, error)
	ProjectAt(string, string) (model.Project, error)
	CreateTag(string, string, string) (gitrepo.Tag, error)
	Tags(string) ([]gitrepo.Tag, error)
	Remove(string) error
}

type projectIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexProject(model.Project)
	DeleteProject(string)
}

type snapshotStore interface {
	Put(context.Context, model.Project) (backup.Snapshot, error)
	Get(context.Context, string) (model.Project, error)
	List(context.Context, string) ([]backup.Snapshot, error)
}

type exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

// Dependencies are the collaborators of a Service. Backups is optional.
type Dependencies struct {
	Store   *store.PostgresStore
	Docs    *session.RedisStore
	Git     *gitrepo.Service
	Search  *search.Service
	Backups *backup.Minio
	Logger  *slog.Logger
}

// Service drives the collaborative session of this process and keeps the
// durable copies of the project in step with it.
type Service struct {
	store    projectStore
	docs     documentLog
	git      versionStore
	search   projectIndex
	backups  snapshotStore
	exporter exporter
	log      *slog.Logger

	controller *collab.Controller

	mu        sync.Mutex
	projectID string
}

func New(deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	s := &Service{
		store:  deps.Store,
		docs:   deps.Docs,
		git:    deps.Git,
		search: deps.Search,
		log:    log.With(logger.Scope("app")),
	}
	if deps.Backups != nil {
		s.backups = deps.Backups
	}
	s.controller = collab.NewController(collab.ControllerOptions{Logger: log})
	s.exporter = export.NewService(s)
	return s
}

// SessionState describes the collaborative session of this process.
type SessionState struct {
	Active    bool           `json:"active"`
	Joined    bool           `json:"joined,omitempty"`
	ProjectID string         `json:"projectId,omitempty"`
	CanUndo   *bool          `json:"canUndo"`
	CanRedo   *bool          `json:"canRedo"`
	Project   *model.Project `json:"project,omitempty"`
}

func (s *Service) Session() SessionState {
	snapshot, ok := s.controller.Snapshot()
	ur := s.controller.UndoRedo()
	state := SessionState{Active: ok, CanUndo: ur.CanUndo, CanRedo: ur.CanRedo}
	if ok {
		state.ProjectID = snapshot.ID
		state.Project = &snapshot
	}
	return state
}

// StartSession installs a store for projectID, replacing any session this
// process already runs. With join set the store is rebuilt from the shared
// document log; a project without a shared document starts fresh from the
// database instead.
func (s *Service) StartSession(ctx context.Context, projectID string, join bool) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := collab.Options{
		OnProjectChange: s.onProjectChange,
		OnUpdate:        s.onLocalUpdate(projectID),
		NodeID:          uuid.NewString(),
	}

	if join {
		state, err := s.docs.LoadState(ctx, projectID)
		switch {
		case err == nil:
			doc, err := schema.NewDocFromUpdate(state, opts.NodeID)
			if err != nil {
				return SessionState{}, fmt.Errorf("rebuild shared document: %w", err)
			}
			if err := s.controller.Attach(doc, opts); err != nil {
				return SessionState{}, err
			}
			s.projectID = projectID
			out := s.Session()
			out.Joined = true
			return out, nil
		case errors.Is(err, session.ErrNoDocument):
			s.log.Info("no shared document, starting a new one", slog.String("project_id", projectID))
		default:
			return SessionState{}, fmt.Errorf("load shared document: %w", err)
		}
	}

	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return SessionState{}, err
	}
	if err := s.controller.Initialize(p, opts); err != nil {
		return SessionState{}, err
	}
	s.projectID = projectID
	if state, ok := s.controller.EncodeState(); ok {
		if err := s.docs.Compact(ctx, projectID, state); err != nil {
			s.log.Error("publish shared document", slog.String("project_id", projectID), logger.Error(err))
		}
	}
	return s.Session(), nil
}

// EndSession compacts the shared log, records the final state in the
// version history and tears the store down.
func (s *Service) EndSession(ctx context.Context, author string) (*gitrepo.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.controller.Snapshot()
	if !ok {
		return nil, errNoSession
	}
	if state, ok := s.controller.EncodeState(); ok {
		if err := s.docs.Compact(ctx, snapshot.ID, state); err != nil {
			s.log.Error("compact shared document", slog.String("project_id", snapshot.ID), logger.Error(err))
		}
	}
	s.controller.Destroy()
	s.projectID = ""

	commit, _, err := s.git.CommitProject(snapshot, authorOrDefault(author), "End collaborative session")
	if err != nil {
		return nil, fmt.Errorf("record session history: %w", err)
	}
	return &commit, nil
}

// ApplyMutation runs one named edit against the active store.
func (s *Service) ApplyMutation(op string, args []byte) (SessionState, error) {
	if !s.controller.IsActive() {
		return SessionState{}, errNoSession
	}
	if err := dispatchMutation(s.controller.Mutations(), op, args); err != nil {
		return SessionState{}, err
	}
	return s.Session(), nil
}

func (s *Service) Undo() (SessionState, error) {
	if !s.controller.IsActive() {
		return SessionState{}, errNoSession
	}
	s.controller.UndoRedo().Undo()
	return s.Session(), nil
}

func (s *Service) Redo() (SessionState, error) {
	if !s.controller.IsActive() {
		return SessionState{}, errNoSession
	}
	s.controller.UndoRedo().Redo()
	return s.Session(), nil
}

// ApplyRemoteUpdate integrates an update produced by another replica and
// appends it to the shared log.
func (s *Service) ApplyRemoteUpdate(ctx context.Context, update schema.Update) (SessionState, error) {
	snapshot, ok := s.controller.Snapshot()
	if !ok {
		return SessionState{}, errNoSession
	}
	if err := s.docs.AppendUpdate(ctx, snapshot.ID, update); err != nil {
		return SessionState{}, fmt.Errorf("append remote update: %w", err)
	}
	s.controller.ApplyRemoteUpdate(update)
	return s.Session(), nil
}

// Sync pulls the shared log and integrates whatever other replicas wrote.
// Ops this replica already holds are skipped.
func (s *Service) Sync(ctx context.Context) (SessionState, error) {
	snapshot, ok := s.controller.Snapshot()
	if !ok {
		return SessionState{}, errNoSession
	}
	state, err := s.docs.LoadState(ctx, snapshot.ID)
	if err != nil && !errors.Is(err, session.ErrNoDocument) {
		return SessionState{}, fmt.Errorf("load shared document: %w", err)
	}
	if err == nil {
		s.controller.ApplyRemoteUpdate(state)
	}
	return s.Session(), nil
}

// EncodeState returns the full replicated state of the active session.
func (s *Service) EncodeState() (schema.Update, error) {
	state, ok := s.controller.EncodeState()
	if !ok {
		return schema.Update{}, errNoSession
	}
	return state, nil
}

func (s *Service) onProjectChange(p model.Project) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := s.store.SaveProject(ctx, p); err != nil {
		s.log.Error("persist project", slog.String("project_id", p.ID), logger.Error(err))
		return
	}
	s.search.IndexProject(p)
}

func (s *Service) onLocalUpdate(projectID string) func(schema.Update) {
	return func(u schema.Update) {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.docs.AppendUpdate(ctx, projectID, u); err != nil {
			s.log.Error("append local update", slog.String("project_id", projectID), logger.Error(err))
			return
		}
		if n, err := s.docs.Length(ctx, projectID); err == nil && n > maxLogEntries {
			s.compactLog(ctx, projectID)
		}
	}
}

// compactLog folds every state in the log into one. A state another replica
// appends in between is covered again by its next append.
func (s *Service) compactLog(ctx context.Context, projectID string) {
	state, err := s.docs.LoadState(ctx, projectID)
	if err == nil {
		err = s.docs.Compact(ctx, projectID, state)
	}
	if err != nil {
		s.log.Warn("compact shared document", slog.String("project_id", projectID), logger.Error(err))
	}
}

// live returns the session snapshot when id is the project being edited.
func (s *Service) live(id string) (model.Project, bool) {
	snapshot, ok := s.controller.Snapshot()
	if !ok || snapshot.ID != id {
		return model.Project{}, false
	}
	return snapshot, true
}

func (s *Service) ListProjects(ctx context.Context) ([]store.ProjectSummary, error) {
	return s.store.ListProjects(ctx)
}

func (s *Service) GetProject(ctx context.Context, id string) (model.Project, error) {
	if p, ok := s.live(id); ok {
		return p, nil
	}
	return s.store.GetProject(ctx, id)
}

// CreateProject stores a new project, seeded with the default flow stages
// unless blank is set, and records its first version.
func (s *Service) CreateProject(ctx context.Context, name, author string, blank bool) (model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Project{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Project name is required", nil)
	}
	p := model.Template(name)
	if blank {
		p = model.NewProject(name)
	}
	if err := model.Validate(p); err != nil {
		return model.Project{}, err
	}
	if _, err := s.store.SaveProject(ctx, p); err != nil {
		return model.Project{}, err
	}
	s.search.IndexProject(p)
	if _, _, err := s.git.CommitProject(p, authorOrDefault(author), "Create project"); err != nil {
		s.log.Error("record initial version", slog.String("project_id", p.ID), logger.Error(err))
	}
	return p, nil
}

// DeleteProject removes a project everywhere it is kept. An active session
// on the project is closed first.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.projectID == id {
		s.controller.Destroy()
		s.projectID = ""
	}
	s.mu.Unlock()

	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.search.DeleteProject(id)
	if err := s.docs.Drop(ctx, id); err != nil {
		s.log.Warn("drop shared document", slog.String("project_id", id), logger.Error(err))
	}
	if err := s.git.Remove(id); err != nil {
		s.log.Warn("remove history", slog.String("project_id", id), logger.Error(err))
	}
	return nil
}

type History struct {
	Commits []gitrepo.Commit `json:"commits"`
	Tags    []gitrepo.Tag    `json:"tags"`
}

func (s *Service) History(ctx context.Context, id string, limit int) (History, error) {
	if _, err := s.GetProject(ctx, id); err != nil {
		return History{}, err
	}
	if limit <= 0 {
		limit = historyPageSize
	}
	commits, err := s.git.History(id, limit)
	if errors.Is(err, gitrepo.ErrNoHistory) {
		return History{Commits: []gitrepo.Commit{}, Tags: []gitrepo.Tag{}}, nil
	}
	if err != nil {
		return History{}, err
	}
	tags, err := s.git.Tags(id)
	if err != nil {
		return History{}, err
	}
	if tags == nil {
		tags = []gitrepo.Tag{}
	}
	return History{Commits: commits, Tags: tags}, nil
}

type SavedVersion struct {
	Commit  gitrepo.Commit `json:"commit"`
	Changed bool           `json:"changed"`
	Tag     *gitrepo.Tag   `json:"tag,omitempty"`
}

// SaveVersion commits the current project and, when name is set, tags the
// commit with it.
func (s *Service) SaveVersion(ctx context.Context, id, name, author string) (SavedVersion, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return SavedVersion{}, err
	}
	name = strings.TrimSpace(name)
	message := "Save version"
	if name != "" {
		message = "Save version " + name
	}
	commit, changed, err := s.git.CommitProject(p, authorOrDefault(author), message)
	if err != nil {
		return SavedVersion{}, err
	}
	out := SavedVersion{Commit: commit, Changed: changed}
	if name != "" {
		tag, err := s.git.CreateTag(id, commit.Hash, name)
		if err != nil {
			return SavedVersion{}, err
		}
		out.Tag = &tag
	}
	return out, nil
}

type Version struct {
	Revision string           `json:"revision"`
	Project  model.Project    `json:"project"`
	Changes  []gitrepo.Change `json:"changes"`
}

// Version returns the project at revision and how the current project
// differs from it.
func (s *Service) Version(ctx context.Context, id, revision string) (Version, error) {
	current, err := s.GetProject(ctx, id)
	if err != nil {
		return Version{}, err
	}
	past, err := s.git.ProjectAt(id, revision)
	if err != nil {
		return Version{}, err
	}
	return Version{Revision: revision, Project: past, Changes: gitrepo.Diff(past, current)}, nil
}

// ExportProject resolves the project content an export is rendered from.
func (s *Service) ExportProject(ctx context.Context, id, revision string) (model.Project, error) {
	if revision == "" {
		return s.GetProject(ctx, id)
	}
	return s.git.ProjectAt(id, revision)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}

func (s *Service) Backup(ctx context.Context, id string) (backup.Snapshot, error) {
	if s.backups == nil {
		return backup.Snapshot{}, errBackupDisabled
	}
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return backup.Snapshot{}, err
	}
	return s.backups.Put(ctx, p)
}

func (s *Service) Backups(ctx context.Context, id string) ([]backup.Snapshot, error) {
	if s.backups == nil {
		return nil, errBackupDisabled
	}
	if _, err := s.GetProject(ctx, id); err != nil {
		return nil, err
	}
	return s.backups.List(ctx, id)
}

// RestoreBackup replaces the stored project with a snapshot. Projects in an
// active session are refused; restoring under live editors would fork the
// shared document.
func (s *Service) RestoreBackup(ctx context.Context, id, key, author string) (model.Project, error) {
	if s.backups == nil {
		return model.Project{}, errBackupDisabled
	}
	if _, ok := s.live(id); ok {
		return model.Project{}, errSessionActive
	}
	p, err := s.backups.Get(ctx, key)
	if err != nil {
		return model.Project{}, err
	}
	if p.ID != id {
		return model.Project{}, domainError(http.StatusBadRequest, "BACKUP_MISMATCH", "Snapshot belongs to another project", map[string]any{"projectId": p.ID})
	}
	if err := model.Validate(p); err != nil {
		return model.Project{}, err
	}
	if _, err := s.store.SaveProject(ctx, p); err != nil {
		return model.Project{}, err
	}
	s.search.IndexProject(p)
	if err := s.docs.Drop(ctx, id); err != nil {
		s.log.Warn("drop shared document", slog.String("project_id", id), logger.Error(err))
	}
	if _, _, err := s.git.CommitProject(p, authorOrDefault(author), "Restore backup "+key); err != nil {
		s.log.Error("record restored version", slog.String("project_id", id), logger.Error(err))
	}
	return p, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

// Checks pings the backing stores by name. A nil error means healthy.
func (s *Service) Checks(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.store.Ping(ctx),
		"redis":    s.docs.Ping(ctx),
	}
}

// Close ends the session without recording history. Used on shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller.Destroy()
	s.projectID = ""
}

func authorOrDefault(author string) string {
	if a := strings.TrimSpace(author); a != "" {
		return a
	}
	return defaultAuthor
}
