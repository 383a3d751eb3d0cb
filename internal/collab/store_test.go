package collab

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextflow/api/internal/model"
	"contextflow/api/internal/schema"
)

type changes struct {
	mu       sync.Mutex
	projects []model.Project
}

func (c *changes) record(p model.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = append(c.projects, p)
}

func (c *changes) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.projects)
}

func (c *changes) last() model.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projects[len(c.projects)-1]
}

type missingLog struct {
	entries []string
}

func (m *missingLog) MissingEntity(op, kind, id string) {
	m.entries = append(m.entries, fmt.Sprintf("%s:%s:%s", op, kind, id))
}

func fixture() model.Project {
	p := model.Template("Shop")
	p.ID = "proj-1"
	p.Contexts = []model.BoundedContext{
		model.NewContext("ctx-1", "Orders"),
		model.NewContext("ctx-2", "Billing"),
	}
	p.Groups = []model.Group{{ID: "g-1", Label: "Core", ContextIDs: []string{}}}
	return p
}

func newStore(t *testing.T, p model.Project) (*Store, *changes, *missingLog) {
	t.Helper()
	rec := &changes{}
	diag := &missingLog{}
	s, err := New(p, Options{OnProjectChange: rec.record, NodeID: "node-1", Diagnostics: diag})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, rec, diag
}

func stateOf(t *testing.T, s *Store) schema.Update {
	t.Helper()
	state, err := s.EncodeState()
	require.NoError(t, err)
	return state
}

func join(t *testing.T, state schema.Update, node string) *schema.Doc {
	t.Helper()
	doc, err := schema.NewDocFromUpdate(state, node)
	require.NoError(t, err)
	return doc
}

// replicaOf builds a second store sharing the current document of s.
func replicaOf(t *testing.T, s *Store, rec *changes) *Store {
	t.Helper()
	opts := Options{NodeID: "node-2"}
	if rec != nil {
		opts.OnProjectChange = rec.record
	}
	r, err := Attach(join(t, stateOf(t, s), "node-2"), opts)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestAddContextThenUndo(t *testing.T) {
	p := model.NewProject("Empty")
	s, rec, _ := newStore(t, p)

	s.AddContext(model.BoundedContext{
		ID:             "ctx-1",
		Name:           "Orders",
		EvolutionStage: model.StageGenesis,
		Positions: model.Positions{
			Flow:         model.AxisX{X: 50},
			Strategic:    model.AxisX{X: 50},
			Distillation: model.Point{X: 50, Y: 50},
			Shared:       model.AxisY{Y: 50},
		},
	})

	snap := s.Snapshot()
	require.Len(t, snap.Contexts, 1)
	assert.Equal(t, "Orders", snap.Contexts[0].Name)
	assert.Equal(t, 1, rec.count())
	assert.True(t, s.CanUndo())

	s.Undo()
	assert.Empty(t, s.Snapshot().Contexts)
	assert.False(t, s.CanUndo())
	assert.True(t, s.CanRedo())
	assert.Equal(t, 2, rec.count())
}

func TestBatchGroupAddIsOneTransaction(t *testing.T) {
	s, rec, _ := newStore(t, fixture())

	s.AddContextsToGroup("g-1", []string{"ctx-1", "ctx-2", "ctx-1"})

	require.Equal(t, 1, rec.count(), "one callback for the whole batch")
	assert.Equal(t, []string{"ctx-1", "ctx-2"}, rec.last().Groups[0].ContextIDs)
	assert.Equal(t, 1, s.UndoDepth())

	s.Undo()
	assert.Empty(t, s.Snapshot().Groups[0].ContextIDs)
	assert.False(t, s.CanUndo())
}

func TestUndoAllThenRedoAll(t *testing.T) {
	s, rec, _ := newStore(t, fixture())
	base := s.Snapshot()

	steps := []func(){
		func() { s.AddContext(model.NewContext("ctx-3", "Shipping")) },
		func() {
			s.UpdateContext("ctx-3", model.ContextPatch{Name: model.Some("Delivery"), Notes: model.Some(model.Ptr("busy"))})
		},
		func() {
			s.AddRelationship(model.Relationship{ID: "rel-1", FromContextID: "ctx-1", ToContextID: "ctx-3", Pattern: model.PatternConformist})
		},
		func() {
			s.UpdateContextPosition("ctx-1", model.Positions{Flow: model.AxisX{X: 10}, Strategic: model.AxisX{X: 20}, Distillation: model.Point{X: 30, Y: 40}, Shared: model.AxisY{Y: 60}})
		},
		func() {
			s.AddContextIssue("ctx-1", model.Issue{ID: "iss-1", Title: "Slow", Severity: model.SeverityCritical})
		},
		func() { s.AddContextsToGroup("g-1", []string{"ctx-1", "ctx-3"}) },
		func() { s.SwapRelationshipDirection("rel-1") },
		func() { s.RenameProject("Store") },
		func() { require.NoError(t, s.AddFlowStage(model.FlowStageMarker{Name: "Return", Position: 95})) },
		func() { s.ToggleTemporalMode(true) },
		func() {
			s.AddKeyframe(model.TemporalKeyframe{ID: "kf-1", Date: "2027", Positions: map[string]model.Point{"ctx-1": {X: 5, Y: 5}}, ActiveContextIDs: []string{"ctx-1", "ctx-3"}})
		},
		func() { s.UpdateKeyframeContextPosition("kf-1", "ctx-3", model.Point{X: 70, Y: 80}) },
		func() { s.DeleteContext("ctx-3") },
		func() { s.DeleteFlowStage(0) },
	}
	for i, step := range steps {
		step()
		require.Equal(t, i+1, rec.count(), "step %d must commit exactly once", i)
		require.Equal(t, i+1, s.UndoDepth(), "step %d must record one undo step", i)
	}
	final := s.Snapshot()

	for range steps {
		s.Undo()
	}
	assert.Equal(t, base, s.Snapshot())
	assert.False(t, s.CanUndo())

	for range steps {
		s.Redo()
	}
	assert.Equal(t, final, s.Snapshot())
	assert.False(t, s.CanRedo())
}

func TestDeleteUserNeedRemovesItsConnections(t *testing.T) {
	p := fixture()
	p.Users = []model.User{{ID: "u-1", Name: "Shopper", Position: 20}}
	p.UserNeeds = []model.UserNeed{{ID: "n-1", Name: "Track", Position: 40}, {ID: "n-2", Name: "Pay", Position: 60}}
	p.UserNeedConnections = []model.UserNeedConnection{{ID: "unc-1", UserID: "u-1", UserNeedID: "n-1"}}
	p.NeedContextConnections = []model.NeedContextConnection{
		{ID: "ncc-1", UserNeedID: "n-1", ContextID: "ctx-1"},
		{ID: "ncc-2", UserNeedID: "n-2", ContextID: "ctx-2"},
	}
	s, rec, _ := newStore(t, p)

	s.DeleteUserNeed("n-1")

	require.Equal(t, 1, rec.count())
	snap := rec.last()
	assert.Len(t, snap.UserNeeds, 1)
	assert.Empty(t, snap.UserNeedConnections)
	require.Len(t, snap.NeedContextConnections, 1)
	assert.Equal(t, "ncc-2", snap.NeedContextConnections[0].ID)
	assert.Equal(t, 1, s.UndoDepth())

	s.Undo()
	assert.Equal(t, p.UserNeedConnections, s.Snapshot().UserNeedConnections)
	assert.Equal(t, p.NeedContextConnections, s.Snapshot().NeedContextConnections)
}

func TestFlowStageCollisionsFailBeforeWriting(t *testing.T) {
	s, rec, _ := newStore(t, fixture())
	before := s.Snapshot()

	err := s.UpdateFlowStage(1, model.FlowStagePatch{Position: model.Some(10.0)})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "position", verr.Field)

	err = s.UpdateFlowStage(1, model.FlowStagePatch{Name: model.Some("Discover")})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)

	err = s.AddFlowStage(model.FlowStageMarker{Name: "Support", Position: 99})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)

	assert.Equal(t, before.ViewConfig, s.Snapshot().ViewConfig)
	assert.Zero(t, rec.count())
	assert.Zero(t, s.UndoDepth())

	require.NoError(t, s.UpdateFlowStage(1, model.FlowStagePatch{Name: model.Some("Choose"), Position: model.Some(30.0)}))
	assert.Equal(t, "Choose", s.Snapshot().ViewConfig.FlowStages[1].Name)
	assert.Equal(t, 1, rec.count())
}

func TestMissingIDsAreSilentNoOps(t *testing.T) {
	s, rec, diag := newStore(t, fixture())

	s.DeleteContext("nope")
	s.UpdateTeam("ghost", model.TeamPatch{Name: model.Some("x")})
	s.DeleteContextIssue("ctx-1", "iss-9")
	s.UpdateKeyframeContextPosition("kf-9", "ctx-1", model.Point{X: 1, Y: 1})
	s.DeleteFlowStage(42)
	s.RemoveContextFromGroup("g-1", "ctx-1")

	assert.Zero(t, rec.count())
	assert.Zero(t, s.UndoDepth())
	assert.Equal(t, []string{
		"delete_context:context:nope",
		"update_team:team:ghost",
		"delete_context_issue:issue:iss-9",
		"update_keyframe_context_position:keyframe:kf-9",
		"delete_flow_stage:flowStage:42",
		"remove_context_from_group:groupMember:ctx-1",
	}, diag.entries)
}

func TestUnchangedUpdatesAreSilent(t *testing.T) {
	s, rec, _ := newStore(t, fixture())

	s.RenameProject("Shop")
	s.UpdateContext("ctx-1", model.ContextPatch{Name: model.Some("Orders")})
	s.UpdateContext("ctx-1", model.ContextPatch{})
	s.ToggleTemporalMode(false)

	assert.Zero(t, rec.count())
	assert.Zero(t, s.UndoDepth())
}

func TestUpdateDistinguishesNullFromUnset(t *testing.T) {
	p := fixture()
	p.Contexts[0].Purpose = model.Ptr("Take orders")
	p.Contexts[0].Notes = model.Ptr("keep")
	s, _, _ := newStore(t, p)

	s.UpdateContext("ctx-1", model.ContextPatch{Purpose: model.Null[string]()})

	ctx, ok := s.Snapshot().FindContext("ctx-1")
	require.True(t, ok)
	assert.Nil(t, ctx.Purpose)
	assert.Equal(t, model.Ptr("keep"), ctx.Notes)
}

func TestDeleteContextCascades(t *testing.T) {
	p := fixture()
	p.Contexts = append(p.Contexts, model.NewContext("ctx-3", "Shipping"))
	p.Relationships = []model.Relationship{
		{ID: "rel-1", FromContextID: "ctx-1", ToContextID: "ctx-2", Pattern: model.PatternPartnership},
		{ID: "rel-2", FromContextID: "ctx-3", ToContextID: "ctx-1", Pattern: model.PatternConformist},
		{ID: "rel-3", FromContextID: "ctx-2", ToContextID: "ctx-3", Pattern: model.PatternSharedKernel},
	}
	p.Groups[0].ContextIDs = []string{"ctx-1", "ctx-2"}
	p.UserNeeds = []model.UserNeed{{ID: "n-1", Name: "Track", Position: 10}}
	p.NeedContextConnections = []model.NeedContextConnection{{ID: "ncc-1", UserNeedID: "n-1", ContextID: "ctx-1"}}
	p.Repos = []model.Repo{{ID: "repo-1", Name: "orders", ContextID: model.Ptr("ctx-1"), TeamIDs: []string{}}}
	p.Temporal = &model.TemporalState{Enabled: true, Keyframes: []model.TemporalKeyframe{
		{ID: "kf-1", Date: "2027", Positions: map[string]model.Point{"ctx-1": {X: 1, Y: 2}, "ctx-2": {X: 3, Y: 4}}, ActiveContextIDs: []string{"ctx-1", "ctx-2"}},
	}}
	s, rec, _ := newStore(t, p)

	s.DeleteContext("ctx-1")

	require.Equal(t, 1, rec.count())
	snap := rec.last()
	require.Len(t, snap.Relationships, 1)
	assert.Equal(t, "rel-3", snap.Relationships[0].ID)
	assert.Equal(t, []string{"ctx-2"}, snap.Groups[0].ContextIDs)
	assert.Empty(t, snap.NeedContextConnections)
	assert.Nil(t, snap.Repos[0].ContextID)
	assert.Equal(t, map[string]model.Point{"ctx-2": {X: 3, Y: 4}}, snap.Temporal.Keyframes[0].Positions)
	assert.Equal(t, []string{"ctx-2"}, snap.Temporal.Keyframes[0].ActiveContextIDs)

	s.Undo()
	assert.Equal(t, p.Relationships, s.Snapshot().Relationships)
	assert.Equal(t, p.Temporal, s.Snapshot().Temporal)
	assert.Equal(t, p.Contexts, s.Snapshot().Contexts)
}

func TestDeleteTeamPersonAndUserCascade(t *testing.T) {
	p := fixture()
	p.Contexts[0].TeamID = model.Ptr("team-1")
	p.Teams = []model.Team{{ID: "team-1", Name: "Checkout"}, {ID: "team-2", Name: "Platform"}}
	p.People = []model.Person{{ID: "p-1", DisplayName: "Ada", Emails: []string{}, TeamIDs: []string{"team-1", "team-2"}}}
	p.Repos = []model.Repo{{ID: "repo-1", Name: "orders", TeamIDs: []string{"team-1"}, Contributors: []model.Contributor{{PersonID: "p-1"}}}}
	p.Users = []model.User{{ID: "u-1", Name: "Shopper", Position: 20}}
	p.UserNeeds = []model.UserNeed{{ID: "n-1", Name: "Track", Position: 40}}
	p.UserNeedConnections = []model.UserNeedConnection{{ID: "unc-1", UserID: "u-1", UserNeedID: "n-1"}}
	s, rec, _ := newStore(t, p)

	s.DeleteTeam("team-1")
	snap := rec.last()
	assert.Nil(t, snap.Contexts[0].TeamID)
	assert.Empty(t, snap.Repos[0].TeamIDs)
	assert.Equal(t, []string{"team-2"}, snap.People[0].TeamIDs)

	s.DeletePerson("p-1")
	assert.Empty(t, rec.last().Repos[0].Contributors)

	s.DeleteUser("u-1")
	assert.Empty(t, rec.last().UserNeedConnections)
	assert.Len(t, rec.last().UserNeeds, 1)

	assert.Equal(t, 3, rec.count())
	assert.Equal(t, 3, s.UndoDepth())
}

func TestPositionsAreClamped(t *testing.T) {
	s, _, _ := newStore(t, fixture())

	s.UpdateContextPosition("ctx-1", model.Positions{
		Flow:         model.AxisX{X: 150},
		Strategic:    model.AxisX{X: -5},
		Distillation: model.Point{X: 50, Y: 101},
		Shared:       model.AxisY{Y: 99.5},
	})

	ctx, _ := s.Snapshot().FindContext("ctx-1")
	assert.Equal(t, 100.0, ctx.Positions.Flow.X)
	assert.Equal(t, 0.0, ctx.Positions.Strategic.X)
	assert.Equal(t, 100.0, ctx.Positions.Distillation.Y)
	assert.Equal(t, 99.5, ctx.Positions.Shared.Y)
}

func TestAddKeyframeEnablesTemporalMode(t *testing.T) {
	s, rec, _ := newStore(t, fixture())
	require.Nil(t, s.Snapshot().Temporal)

	s.AddKeyframe(model.TemporalKeyframe{ID: "kf-1", Date: "2027-Q1", Positions: map[string]model.Point{}, ActiveContextIDs: []string{}})

	temporal := rec.last().Temporal
	require.NotNil(t, temporal)
	assert.True(t, temporal.Enabled)
	require.Len(t, temporal.Keyframes, 1)

	s.UpdateKeyframe("kf-1", model.KeyframePatch{Label: model.Some(model.Ptr("Next year"))})
	assert.Equal(t, model.Ptr("Next year"), rec.last().Temporal.Keyframes[0].Label)

	s.Undo()
	s.Undo()
	assert.Nil(t, s.Snapshot().Temporal)
}

func TestSwapRelationshipDirection(t *testing.T) {
	p := fixture()
	p.Relationships = []model.Relationship{{ID: "rel-1", FromContextID: "ctx-1", ToContextID: "ctx-2", Pattern: model.PatternCustomerSupplier}}
	s, rec, _ := newStore(t, p)

	s.SwapRelationshipDirection("rel-1")

	rel := rec.last().Relationships[0]
	assert.Equal(t, "ctx-2", rel.FromContextID)
	assert.Equal(t, "ctx-1", rel.ToContextID)
	assert.Equal(t, 1, s.UndoDepth())
}

func TestRemoteUpdatesNotifyWithoutUndo(t *testing.T) {
	a, recA, _ := newStore(t, fixture())
	recB := &changes{}
	b := replicaOf(t, a, recB)

	a.AddContext(model.NewContext("ctx-9", "Audit"))
	b.ApplyRemoteUpdate(stateOf(t, a))

	assert.Equal(t, 1, recA.count())
	assert.Equal(t, 1, recB.count())
	assert.Equal(t, a.Snapshot(), b.Snapshot())
	assert.Zero(t, b.UndoDepth())

	b.ApplyRemoteUpdate(stateOf(t, a))
	assert.Equal(t, 1, recB.count(), "re-applying known state changes nothing")

	b.ApplyRemoteUpdate(schema.Update{})
	assert.Equal(t, 1, recB.count())
}

func TestLocalUpdatesReachAReplica(t *testing.T) {
	var replica *Store
	a, err := New(fixture(), Options{NodeID: "node-1", OnUpdate: func(u schema.Update) { replica.ApplyRemoteUpdate(u) }})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	recB := &changes{}
	replica = replicaOf(t, a, recB)

	a.AddContextsToGroup("g-1", []string{"ctx-1", "ctx-2"})
	a.Undo()

	assert.Equal(t, 2, recB.count())
	assert.Equal(t, a.Snapshot(), replica.Snapshot())
	assert.Empty(t, replica.Snapshot().Groups[0].ContextIDs)
}

func TestConcurrentEditsOnTwoReplicasConverge(t *testing.T) {
	a, _, _ := newStore(t, fixture())
	b := replicaOf(t, a, nil)

	a.UpdateContextPosition("ctx-1", model.Positions{Flow: model.AxisX{X: 90}, Strategic: model.AxisX{X: 50}, Distillation: model.Point{X: 50, Y: 50}, Shared: model.AxisY{Y: 50}})
	a.AddContextIssue("ctx-2", model.Issue{ID: "iss-a", Title: "A", Severity: model.SeverityInfo})
	b.UpdateContext("ctx-1", model.ContextPatch{Notes: model.Some(model.Ptr("from b"))})
	b.AddContextIssue("ctx-2", model.Issue{ID: "iss-b", Title: "B", Severity: model.SeverityWarning})
	b.DeleteFlowStage(0)

	sa, sb := stateOf(t, a), stateOf(t, b)
	a.ApplyRemoteUpdate(sb)
	b.ApplyRemoteUpdate(sa)

	pa, pb := a.Snapshot(), b.Snapshot()
	assert.Equal(t, pa, pb)
	ctx, _ := pa.FindContext("ctx-1")
	assert.Equal(t, 90.0, ctx.Positions.Flow.X)
	assert.Equal(t, model.Ptr("from b"), ctx.Notes)
	ctx, _ = pa.FindContext("ctx-2")
	assert.Len(t, ctx.Issues, 2)
	assert.Len(t, pa.ViewConfig.FlowStages, 4)
}

func TestUndoLeavesRemoteChangesAlone(t *testing.T) {
	a, rec, _ := newStore(t, fixture())
	a.UpdateContext("ctx-1", model.ContextPatch{Name: model.Some("Ordering")})
	a.AddContext(model.NewContext("ctx-3", "Shipping"))

	b := replicaOf(t, a, nil)
	b.UpdateContext("ctx-1", model.ContextPatch{Name: model.Some("Sales")})
	b.UpdateContext("ctx-2", model.ContextPatch{Notes: model.Some(model.Ptr("remote note"))})
	a.ApplyRemoteUpdate(stateOf(t, b))
	require.Equal(t, 3, rec.count())

	a.Undo()
	snap := a.Snapshot()
	_, ok := snap.FindContext("ctx-3")
	assert.False(t, ok, "the local add is undone")
	ctx, _ := snap.FindContext("ctx-2")
	assert.Equal(t, model.Ptr("remote note"), ctx.Notes)
	assert.Equal(t, 4, rec.count())

	a.Undo()
	ctx, _ = a.Snapshot().FindContext("ctx-1")
	assert.Equal(t, "Sales", ctx.Name, "a remote rename is not reverted by a local undo")
	assert.Equal(t, 4, rec.count())
	assert.False(t, a.CanUndo())
}

func TestUndoRemovesLocalAddEditedRemotely(t *testing.T) {
	a, _, _ := newStore(t, fixture())
	a.AddGroup(model.Group{ID: "g-2", Label: "Edge", ContextIDs: []string{}})

	b := replicaOf(t, a, nil)
	b.AddContextToGroup("g-2", "ctx-1")
	a.ApplyRemoteUpdate(stateOf(t, b))
	groups := a.Snapshot().Groups
	require.Len(t, groups, 2)
	require.Equal(t, []string{"ctx-1"}, groups[1].ContextIDs)

	a.Undo()
	groups = a.Snapshot().Groups
	require.Len(t, groups, 1)
	assert.Equal(t, "g-1", groups[0].ID)
}

func TestUpdateKeyframeReplacesPositions(t *testing.T) {
	p := fixture()
	p.Temporal = &model.TemporalState{Enabled: true, Keyframes: []model.TemporalKeyframe{{
		ID:               "kf-1",
		Date:             "2027",
		Positions:        map[string]model.Point{"ctx-1": {X: 10, Y: 10}, "ctx-2": {X: 20, Y: 20}},
		ActiveContextIDs: []string{"ctx-1", "ctx-2"},
	}}}
	s, rec, _ := newStore(t, p)

	s.UpdateKeyframe("kf-1", model.KeyframePatch{Positions: model.Some(map[string]model.Point{"ctx-1": {X: 15, Y: 150}})})

	require.Equal(t, 1, rec.count())
	kf := rec.last().Temporal.Keyframes[0]
	assert.Equal(t, map[string]model.Point{"ctx-1": {X: 15, Y: 100}}, kf.Positions)
	assert.Equal(t, []string{"ctx-1", "ctx-2"}, kf.ActiveContextIDs)

	s.Undo()
	assert.Equal(t, p.Temporal, s.Snapshot().Temporal)
}

func TestConcurrentEditsDeliverSnapshotsInCommitOrder(t *testing.T) {
	var mu sync.Mutex
	var delivered []model.Project
	s, err := New(model.NewProject("Busy"), Options{OnProjectChange: func(p model.Project) {
		time.Sleep(time.Duration(rand.IntN(6)) * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, p)
	}})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddContext(model.NewContext(fmt.Sprintf("ctx-%d", i), "Context"))
		}()
	}
	wg.Wait()

	final := s.Snapshot()
	require.Len(t, final.Contexts, 50)
	require.Len(t, delivered, 50)
	assert.Equal(t, final, delivered[len(delivered)-1])
	for i, p := range delivered {
		assert.Len(t, p.Contexts, i+1, "snapshot %d is out of order", i)
	}
}

func TestClosedStoreIgnoresCalls(t *testing.T) {
	s, rec, _ := newStore(t, fixture())
	s.Close()

	s.AddContext(model.NewContext("ctx-3", "Late"))
	s.Undo()
	assert.NoError(t, s.AddFlowStage(model.FlowStageMarker{Name: "Late", Position: 1}))

	assert.Zero(t, rec.count())
	assert.False(t, s.CanUndo())
	assert.True(t, s.Closed())
}
