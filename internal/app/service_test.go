package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextflow/api/internal/backup"
	"contextflow/api/internal/collab"
	"contextflow/api/internal/export"
	"contextflow/api/internal/gitrepo"
	"contextflow/api/internal/logger"
	"contextflow/api/internal/model"
	"contextflow/api/internal/search"
	"contextflow/api/internal/session"
	"contextflow/api/internal/store"
)

type fakeProjects struct {
	mu       sync.Mutex
	projects map[string]model.Project
	saves    int
	pingErr  error
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{projects: map[string]model.Project{}}
}

func (f *fakeProjects) Ping(context.Context) error { return f.pingErr }

func (f *fakeProjects) ListProjects(context.Context) ([]store.ProjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.ProjectSummary, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, store.ProjectSummary{ID: p.ID, Name: p.Name, ContextCount: len(p.Contexts)})
	}
	return out, nil
}

func (f *fakeProjects) GetProject(_ context.Context, id string) (model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return model.Project{}, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	return p, nil
}

func (f *fakeProjects) SaveProject(_ context.Context, p model.Project) (store.ProjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	f.saves++
	return store.ProjectSummary{ID: p.ID, Name: p.Name, ContextCount: len(p.Contexts)}, nil
}

func (f *fakeProjects) DeleteProject(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeProjects) stored(id string) model.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projects[id]
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[string]model.Project
	deleted []string
}

func (f *fakeIndex) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := []search.Result{}
	for _, p := range f.indexed {
		if p.Name == q.Text {
			results = append(results, search.Result{Type: search.ResultProject, ID: p.ID, Title: p.Name, ProjectID: p.ID})
		}
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

func (f *fakeIndex) IndexProject(p model.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string]model.Project{}
	}
	f.indexed[p.ID] = p
}

func (f *fakeIndex) DeleteProject(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, id)
	f.deleted = append(f.deleted, id)
}

type fakeBackups struct {
	snapshots map[string]model.Project
}

func (f *fakeBackups) Put(_ context.Context, p model.Project) (backup.Snapshot, error) {
	if f.snapshots == nil {
		f.snapshots = map[string]model.Project{}
	}
	key := fmt.Sprintf("projects/%s/%d.json", p.ID, len(f.snapshots))
	f.snapshots[key] = p
	return backup.Snapshot{Key: key, ProjectID: p.ID, CreatedAt: time.Now()}, nil
}

func (f *fakeBackups) Get(_ context.Context, key string) (model.Project, error) {
	p, ok := f.snapshots[key]
	if !ok {
		return model.Project{}, backup.ErrNotFound
	}
	return p, nil
}

func (f *fakeBackups) List(_ context.Context, projectID string) ([]backup.Snapshot, error) {
	var out []backup.Snapshot
	for key, p := range f.snapshots {
		if p.ID == projectID {
			out = append(out, backup.Snapshot{Key: key, ProjectID: projectID})
		}
	}
	return out, nil
}

type testEnv struct {
	projects *fakeProjects
	docs     *session.RedisStore
	git      *gitrepo.Service
	index    *fakeIndex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	docs, err := session.NewRedisStore("redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })
	return &testEnv{
		projects: newFakeProjects(),
		docs:     docs,
		git:      gitrepo.New(t.TempDir()),
		index:    &fakeIndex{},
	}
}

// service returns a new replica sharing the environment's backing stores.
func (e *testEnv) service(t *testing.T) *Service {
	t.Helper()
	s := &Service{
		store:      e.projects,
		docs:       e.docs,
		git:        e.git,
		search:     e.index,
		log:        logger.Discard(),
		controller: collab.NewController(collab.ControllerOptions{}),
	}
	s.exporter = export.NewService(s)
	t.Cleanup(s.Close)
	return s
}

func (e *testEnv) seed(t *testing.T) model.Project {
	t.Helper()
	p := model.Template("Shop")
	p.ID = "proj-1"
	p.Contexts = append(p.Contexts, model.NewContext("ctx-1", "Orders"))
	_, err := e.projects.SaveProject(context.Background(), p)
	require.NoError(t, err)
	return p
}

func TestStartSessionPublishesSharedDocument(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.False(t, state.Joined)
	assert.Equal(t, "proj-1", state.ProjectID)
	require.NotNil(t, state.CanUndo)
	assert.False(t, *state.CanUndo)

	n, err := env.docs.Length(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "initial state is compacted into one entry")
}

func TestStartSessionUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service(t)

	_, err := svc.StartSession(context.Background(), "missing", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, svc.Session().Active)
}

func TestMutationsPersistIndexAndReplicate(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	ctx := context.Background()
	_, err := svc.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	savesBefore := env.projects.saves

	state, err := svc.ApplyMutation("addContext", []byte(`{"value":{"id":"ctx-2","name":"Billing","positions":{"strategic":{"x":10},"flow":{"x":20},"distillation":{"x":30,"y":40},"shared":{"y":50}},"evolutionStage":"genesis"}}`))
	require.NoError(t, err)
	assert.True(t, *state.CanUndo)
	require.Len(t, state.Project.Contexts, 2)

	stored := env.projects.stored("proj-1")
	assert.Len(t, stored.Contexts, 2)
	assert.Equal(t, savesBefore+1, env.projects.saves)
	assert.Len(t, env.index.indexed["proj-1"].Contexts, 2)

	n, err := env.docs.Length(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "local update appended after the initial state")
}

func TestUndoRedoThroughService(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	_, err := svc.StartSession(context.Background(), "proj-1", false)
	require.NoError(t, err)

	_, err = svc.ApplyMutation("renameProject", []byte(`{"name":"Store"}`))
	require.NoError(t, err)

	state, err := svc.Undo()
	require.NoError(t, err)
	assert.Equal(t, "Shop", state.Project.Name)
	assert.True(t, *state.CanRedo)
	assert.Equal(t, "Shop", env.projects.stored("proj-1").Name)

	state, err = svc.Redo()
	require.NoError(t, err)
	assert.Equal(t, "Store", state.Project.Name)
}

func TestSessionOperationsRequireActiveSession(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service(t)
	ctx := context.Background()

	_, err := svc.ApplyMutation("renameProject", []byte(`{"name":"x"}`))
	assert.Same(t, errNoSession, err)
	_, err = svc.Undo()
	assert.Same(t, errNoSession, err)
	_, err = svc.Redo()
	assert.Same(t, errNoSession, err)
	_, err = svc.Sync(ctx)
	assert.Same(t, errNoSession, err)
	_, err = svc.EncodeState()
	assert.Same(t, errNoSession, err)
	_, err = svc.EndSession(ctx, "")
	assert.Same(t, errNoSession, err)
}

func TestJoinAndSyncConverge(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()
	host := env.service(t)
	guest := env.service(t)

	_, err := host.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	_, err = host.ApplyMutation("addGroup", []byte(`{"value":{"id":"g-1","label":"Core","contextIds":[]}}`))
	require.NoError(t, err)

	joined, err := guest.StartSession(ctx, "proj-1", true)
	require.NoError(t, err)
	assert.True(t, joined.Joined)
	hostState := host.Session()
	assert.Equal(t, *hostState.Project, *joined.Project)
	assert.False(t, *joined.CanUndo, "joining does not inherit the host's history")

	_, err = guest.ApplyMutation("addContextToGroup", []byte(`{"groupId":"g-1","contextId":"ctx-1"}`))
	require.NoError(t, err)

	synced, err := host.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, synced.Project.Groups, 1)
	assert.Equal(t, []string{"ctx-1"}, synced.Project.Groups[0].ContextIDs)
	assert.True(t, *synced.CanUndo)

	// The host's undo only covers its own edit.
	undone, err := host.Undo()
	require.NoError(t, err)
	assert.Empty(t, undone.Project.Groups)
}

func TestJoinWithoutSharedDocumentStartsFresh(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)

	state, err := svc.StartSession(context.Background(), "proj-1", true)
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.False(t, state.Joined)
}

func TestApplyRemoteUpdateAppendsToLog(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()
	host := env.service(t)
	peer := env.service(t)

	_, err := host.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	_, err = peer.StartSession(ctx, "proj-1", true)
	require.NoError(t, err)
	_, err = host.ApplyMutation("renameProject", []byte(`{"name":"Store"}`))
	require.NoError(t, err)
	state, err := host.EncodeState()
	require.NoError(t, err)

	before, err := env.docs.Length(ctx, "proj-1")
	require.NoError(t, err)
	out, err := peer.ApplyRemoteUpdate(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "Store", out.Project.Name)
	assert.False(t, *out.CanUndo)
	after, err := env.docs.Length(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}

func TestEndSessionRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	_, err = svc.ApplyMutation("deleteContext", []byte(`{"id":"ctx-1"}`))
	require.NoError(t, err)

	commit, err := svc.EndSession(ctx, "Avery")
	require.NoError(t, err)
	require.NotNil(t, commit)
	assert.Equal(t, "Avery", commit.Author)
	assert.False(t, svc.Session().Active)

	n, err := env.docs.Length(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "log compacted on end")

	history, err := svc.History(ctx, "proj-1", 0)
	require.NoError(t, err)
	require.Len(t, history.Commits, 1)
	past, err := env.git.ProjectAt("proj-1", commit.Hash)
	require.NoError(t, err)
	assert.Empty(t, past.Contexts)
}

func TestCreateProjectRecordsFirstVersion(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, "  Payments ", "", false)
	require.NoError(t, err)
	assert.Equal(t, "Payments", p.Name)
	assert.Len(t, p.ViewConfig.FlowStages, 5)

	blank, err := svc.CreateProject(ctx, "Empty", "", true)
	require.NoError(t, err)
	assert.Empty(t, blank.ViewConfig.FlowStages)

	history, err := svc.History(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, history.Commits, 1)
	assert.Equal(t, defaultAuthor, history.Commits[0].Author)
	assert.Contains(t, env.index.indexed, p.ID)

	_, err = svc.CreateProject(ctx, "   ", "", false)
	var derr *DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "VALIDATION_ERROR", derr.Code)
}

func TestSaveVersionTagsAndDiffs(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	ctx := context.Background()

	saved, err := svc.SaveVersion(ctx, "proj-1", "baseline", "Avery")
	require.NoError(t, err)
	assert.True(t, saved.Changed)
	require.NotNil(t, saved.Tag)
	assert.Equal(t, "baseline", saved.Tag.Name)

	_, err = svc.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	_, err = svc.ApplyMutation("addTeam", []byte(`{"value":{"id":"team-1","name":"Platform"}}`))
	require.NoError(t, err)

	version, err := svc.Version(ctx, "proj-1", "baseline")
	require.NoError(t, err)
	assert.Empty(t, version.Project.Teams)
	require.NotEmpty(t, version.Changes)
	var teams *gitrepo.Change
	for i := range version.Changes {
		if version.Changes[i].Field == "teams" {
			teams = &version.Changes[i]
		}
	}
	require.NotNil(t, teams)
	assert.Equal(t, []string{"team-1"}, teams.Added)

	again, err := svc.SaveVersion(ctx, "proj-1", "", "")
	require.NoError(t, err)
	assert.True(t, again.Changed, "live snapshot differs from the baseline")
	unchanged, err := svc.SaveVersion(ctx, "proj-1", "", "")
	require.NoError(t, err)
	assert.False(t, unchanged.Changed)
	assert.Equal(t, again.Commit.Hash, unchanged.Commit.Hash)

	_, err = svc.Version(ctx, "proj-1", "nope")
	assert.ErrorIs(t, err, gitrepo.ErrUnknownRevision)
}

func TestHistoryOfUncommittedProjectIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)

	history, err := svc.History(context.Background(), "proj-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history.Commits)
	assert.NotNil(t, history.Tags)
}

func TestDeleteProjectClosesSessionAndCleansUp(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteProject(ctx, "proj-1"))

	assert.False(t, svc.Session().Active)
	assert.Equal(t, []string{"proj-1"}, env.index.deleted)
	_, err = env.docs.LoadState(ctx, "proj-1")
	assert.ErrorIs(t, err, session.ErrNoDocument)
	assert.ErrorIs(t, svc.DeleteProject(ctx, "proj-1"), store.ErrNotFound)
}

func TestExportProjectResolvesRevision(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	ctx := context.Background()

	_, err := svc.SaveVersion(ctx, "proj-1", "v1", "")
	require.NoError(t, err)
	_, err = svc.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	_, err = svc.ApplyMutation("renameProject", []byte(`{"name":"Store"}`))
	require.NoError(t, err)

	current, err := svc.ExportProject(ctx, "proj-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Store", current.Name)
	past, err := svc.ExportProject(ctx, "proj-1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "Shop", past.Name)

	result, err := svc.Export(ctx, export.Request{ProjectID: "proj-1", Revision: "v1", Format: export.FormatHTML})
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), "Shop")
}

func TestBackupsDisabledWithoutStore(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	ctx := context.Background()

	_, err := svc.Backup(ctx, "proj-1")
	assert.Same(t, errBackupDisabled, err)
	_, err = svc.Backups(ctx, "proj-1")
	assert.Same(t, errBackupDisabled, err)
	_, err = svc.RestoreBackup(ctx, "proj-1", "k", "")
	assert.Same(t, errBackupDisabled, err)
}

func TestBackupAndRestore(t *testing.T) {
	env := newTestEnv(t)
	original := env.seed(t)
	svc := env.service(t)
	svc.backups = &fakeBackups{}
	ctx := context.Background()

	snap, err := svc.Backup(ctx, "proj-1")
	require.NoError(t, err)
	list, err := svc.Backups(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.StartSession(ctx, "proj-1", false)
	require.NoError(t, err)
	_, err = svc.ApplyMutation("deleteContext", []byte(`{"id":"ctx-1"}`))
	require.NoError(t, err)

	_, err = svc.RestoreBackup(ctx, "proj-1", snap.Key, "")
	assert.Same(t, errSessionActive, err)

	_, err = svc.EndSession(ctx, "")
	require.NoError(t, err)
	restored, err := svc.RestoreBackup(ctx, "proj-1", snap.Key, "")
	require.NoError(t, err)
	assert.Equal(t, original.Contexts, restored.Contexts)
	assert.Len(t, env.projects.stored("proj-1").Contexts, 1)

	_, err = svc.RestoreBackup(ctx, "proj-1", "projects/proj-1/missing.json", "")
	assert.ErrorIs(t, err, backup.ErrNotFound)
}

func TestChecksReportEachDependency(t *testing.T) {
	env := newTestEnv(t)
	env.projects.pingErr = errors.New("connection refused")
	svc := env.service(t)

	checks := svc.Checks(context.Background())
	assert.EqualError(t, checks["database"], "connection refused")
	assert.NoError(t, checks["redis"])

	_ = env.docs.Close()
	checks = svc.Checks(context.Background())
	assert.Error(t, checks["redis"])
}

func TestSwapRelationshipDirectionByID(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	svc := env.service(t)
	_, err := svc.StartSession(context.Background(), "proj-1", false)
	require.NoError(t, err)

	_, err = svc.ApplyMutation("addContext", []byte(`{"value":{"id":"ctx-2","name":"Billing"}}`))
	require.NoError(t, err)
	_, err = svc.ApplyMutation("addRelationship", []byte(`{"value":{"id":"rel-1","fromContextId":"ctx-1","toContextId":"ctx-2","pattern":"conformist"}}`))
	require.NoError(t, err)

	state, err := svc.ApplyMutation("swapRelationshipDirection", []byte(`{"id":"rel-1"}`))
	require.NoError(t, err)
	require.Len(t, state.Project.Relationships, 1)
	assert.Equal(t, "ctx-2", state.Project.Relationships[0].FromContextID)
	assert.Equal(t, "ctx-1", state.Project.Relationships[0].ToContextID)

	_, err = svc.ApplyMutation("swapRelationshipDirection", []byte(`{}`))
	var derr *DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "INVALID_ARGS", derr.Code)
}
