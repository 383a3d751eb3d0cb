package collab

import (
	"log/slog"
	"slices"
	"strconv"

	"github.com/brunoga/deep/v3"

	"contextflow/api/internal/model"
	"contextflow/api/internal/schema"
)

// Mutations is the full edit surface of a project. Store implements it
// directly; Controller.Mutations returns a variant that does nothing while
// no store is installed.
type Mutations interface {
	RenameProject(name string)

	AddContext(ctx model.BoundedContext)
	UpdateContext(id string, patch model.ContextPatch)
	DeleteContext(id string)
	UpdateContextPosition(id string, positions model.Positions)
	AddContextIssue(contextID string, issue model.Issue)
	UpdateContextIssue(contextID, issueID string, patch model.IssuePatch)
	DeleteContextIssue(contextID, issueID string)

	AddRelationship(rel model.Relationship)
	UpdateRelationship(id string, patch model.RelationshipPatch)
	DeleteRelationship(id string)
	SwapRelationshipDirection(id string)

	AddGroup(group model.Group)
	UpdateGroup(id string, patch model.GroupPatch)
	DeleteGroup(id string)
	AddContextToGroup(groupID, contextID string)
	AddContextsToGroup(groupID string, contextIDs []string)
	RemoveContextFromGroup(groupID, contextID string)

	AddFlowStage(stage model.FlowStageMarker) error
	UpdateFlowStage(index int, patch model.FlowStagePatch) error
	DeleteFlowStage(index int)

	AddUser(user model.User)
	UpdateUser(id string, patch model.UserPatch)
	DeleteUser(id string)

	AddUserNeed(need model.UserNeed)
	UpdateUserNeed(id string, patch model.UserNeedPatch)
	DeleteUserNeed(id string)

	AddTeam(team model.Team)
	UpdateTeam(id string, patch model.TeamPatch)
	DeleteTeam(id string)

	AddRepo(repo model.Repo)
	UpdateRepo(id string, patch model.RepoPatch)
	DeleteRepo(id string)

	AddPerson(person model.Person)
	UpdatePerson(id string, patch model.PersonPatch)
	DeletePerson(id string)

	AddUserNeedConnection(conn model.UserNeedConnection)
	UpdateUserNeedConnection(id string, patch model.UserNeedConnectionPatch)
	DeleteUserNeedConnection(id string)

	AddNeedContextConnection(conn model.NeedContextConnection)
	UpdateNeedContextConnection(id string, patch model.NeedContextConnectionPatch)
	DeleteNeedContextConnection(id string)

	AddKeyframe(kf model.TemporalKeyframe)
	UpdateKeyframe(id string, patch model.KeyframePatch)
	DeleteKeyframe(id string)
	UpdateKeyframeContextPosition(keyframeID, contextID string, p model.Point)
	ToggleTemporalMode(enabled bool)
}

var _ Mutations = (*Store)(nil)

// add appends item to a collection unless its id is taken.
func add[T any](s *Store, op, id string, list func(*schema.Tree) *schema.List[T], item T) {
	s.edit(op, func(t *schema.Tree) {
		l := list(t)
		if l.Has(id) {
			s.log.Warn("id already in use, add skipped", slog.String("op", op), slog.String("id", id))
			return
		}
		l.Append(item)
	})
}

// update copies the set slots of patch onto the entity with the given id.
func update[T any](s *Store, op, kind, id string, list func(*schema.Tree) *schema.List[T], patch any) {
	patch = deep.MustCopy(patch)
	s.edit(op, func(t *schema.Tree) {
		item, ok := list(t).Get(id)
		if !ok {
			s.missing(op, kind, id)
			return
		}
		model.Apply(item, patch)
	})
}

// updateVia is update for entities whose tree form differs from the plain
// one: the patch is applied to the plain form, which then replaces the
// tree entity. Fields the patch leaves alone compare equal and stay
// untouched in the document.
func updateVia[T, M any](s *Store, op, kind, id string, list func(*schema.Tree) *schema.List[T],
	toModel func(T) M, fromModel func(M) T, patch any) {
	patch = deep.MustCopy(patch)
	s.edit(op, func(t *schema.Tree) {
		item, ok := list(t).Get(id)
		if !ok {
			s.missing(op, kind, id)
			return
		}
		plain := toModel(*item)
		model.Apply(&plain, patch)
		*item = fromModel(plain)
	})
}

// remove deletes the entity with the given id and runs cascade in the same
// edit.
func remove[T any](s *Store, op, kind, id string, list func(*schema.Tree) *schema.List[T], cascade func(*schema.Tree)) {
	s.edit(op, func(t *schema.Tree) {
		if !list(t).Remove(id) {
			s.missing(op, kind, id)
			return
		}
		if cascade != nil {
			cascade(t)
		}
	})
}

func (s *Store) RenameProject(name string) {
	s.edit("rename_project", func(t *schema.Tree) {
		t.Name = name
	})
}

func (s *Store) AddContext(ctx model.BoundedContext) {
	ctx.Positions = clampPositions(ctx.Positions)
	add(s, "add_context", ctx.ID, contextList, schema.FromContext(ctx))
}

func (s *Store) UpdateContext(id string, patch model.ContextPatch) {
	if positions, ok := patch.Positions.Get(); ok {
		patch.Positions = model.Some(clampPositions(positions))
	}
	updateVia(s, "update_context", "context", id, contextList, schema.Context.Model, schema.FromContext, patch)
}

// DeleteContext removes the context together with the relationships that
// touch it, its group memberships, its need connections and its keyframe
// entries. Repos pointing at it lose their contextId.
func (s *Store) DeleteContext(id string) {
	remove(s, "delete_context", "context", id, contextList, func(t *schema.Tree) {
		t.Relationships.RemoveWhere(func(r *model.Relationship) bool {
			return r.FromContextID == id || r.ToContextID == id
		})
		t.Groups.Each(func(g *model.Group) {
			g.ContextIDs = without(g.ContextIDs, id)
		})
		t.NeedContextConnections.RemoveWhere(func(c *model.NeedContextConnection) bool {
			return c.ContextID == id
		})
		t.Repos.Each(func(r *schema.Repo) {
			if strEquals(r.ContextID, id) {
				r.ContextID = nil
			}
		})
		t.Temporal.Keyframes.Each(func(kf *schema.Keyframe) {
			delete(kf.Positions.Entries, id)
			kf.ActiveContextIDs = without(kf.ActiveContextIDs, id)
		})
	})
}

func (s *Store) UpdateContextPosition(id string, positions model.Positions) {
	positions = clampPositions(positions)
	s.edit("update_context_position", func(t *schema.Tree) {
		ctx, ok := t.Contexts.Get(id)
		if !ok {
			s.missing("update_context_position", "context", id)
			return
		}
		ctx.Positions = positions
	})
}

func (s *Store) AddContextIssue(contextID string, issue model.Issue) {
	const op = "add_context_issue"
	s.edit(op, func(t *schema.Tree) {
		ctx, ok := t.Contexts.Get(contextID)
		if !ok {
			s.missing(op, "context", contextID)
			return
		}
		if ctx.Issues.Has(issue.ID) {
			s.log.Warn("id already in use, add skipped", slog.String("op", op), slog.String("id", issue.ID))
			return
		}
		ctx.Issues.Append(issue)
	})
}

func (s *Store) UpdateContextIssue(contextID, issueID string, patch model.IssuePatch) {
	const op = "update_context_issue"
	s.edit(op, func(t *schema.Tree) {
		ctx, ok := t.Contexts.Get(contextID)
		if !ok {
			s.missing(op, "context", contextID)
			return
		}
		issue, ok := ctx.Issues.Get(issueID)
		if !ok {
			s.missing(op, "issue", issueID)
			return
		}
		model.Apply(issue, patch)
	})
}

func (s *Store) DeleteContextIssue(contextID, issueID string) {
	const op = "delete_context_issue"
	s.edit(op, func(t *schema.Tree) {
		ctx, ok := t.Contexts.Get(contextID)
		if !ok {
			s.missing(op, "context", contextID)
			return
		}
		if !ctx.Issues.Remove(issueID) {
			s.missing(op, "issue", issueID)
		}
	})
}

func (s *Store) AddRelationship(rel model.Relationship) {
	add(s, "add_relationship", rel.ID, relationshipList, rel)
}

func (s *Store) UpdateRelationship(id string, patch model.RelationshipPatch) {
	update(s, "update_relationship", "relationship", id, relationshipList, patch)
}

func (s *Store) DeleteRelationship(id string) {
	remove(s, "delete_relationship", "relationship", id, relationshipList, nil)
}

// SwapRelationshipDirection exchanges the upstream and downstream ends.
func (s *Store) SwapRelationshipDirection(id string) {
	const op = "swap_relationship_direction"
	s.edit(op, func(t *schema.Tree) {
		rel, ok := t.Relationships.Get(id)
		if !ok {
			s.missing(op, "relationship", id)
			return
		}
		rel.FromContextID, rel.ToContextID = rel.ToContextID, rel.FromContextID
	})
}

func (s *Store) AddGroup(group model.Group) {
	group.ContextIDs = slices.Clone(group.ContextIDs)
	add(s, "add_group", group.ID, groupList, group)
}

func (s *Store) UpdateGroup(id string, patch model.GroupPatch) {
	update(s, "update_group", "group", id, groupList, patch)
}

func (s *Store) DeleteGroup(id string) {
	remove(s, "delete_group", "group", id, groupList, nil)
}

func (s *Store) AddContextToGroup(groupID, contextID string) {
	s.addToGroup("add_context_to_group", groupID, []string{contextID})
}

// AddContextsToGroup adds every listed context in one edit. Contexts
// already in the group and unknown contexts are skipped.
func (s *Store) AddContextsToGroup(groupID string, contextIDs []string) {
	s.addToGroup("add_contexts_to_group", groupID, contextIDs)
}

func (s *Store) addToGroup(op, groupID string, contextIDs []string) {
	s.edit(op, func(t *schema.Tree) {
		group, ok := t.Groups.Get(groupID)
		if !ok {
			s.missing(op, "group", groupID)
			return
		}
		seen := map[string]bool{}
		var extra []string
		for _, id := range contextIDs {
			if seen[id] || slices.Contains(group.ContextIDs, id) {
				continue
			}
			seen[id] = true
			if !t.Contexts.Has(id) {
				s.missing(op, "context", id)
				continue
			}
			extra = append(extra, id)
		}
		if len(extra) > 0 {
			group.ContextIDs = withAll(group.ContextIDs, extra...)
		}
	})
}

func (s *Store) RemoveContextFromGroup(groupID, contextID string) {
	const op = "remove_context_from_group"
	s.edit(op, func(t *schema.Tree) {
		group, ok := t.Groups.Get(groupID)
		if !ok {
			s.missing(op, "group", groupID)
			return
		}
		if !slices.Contains(group.ContextIDs, contextID) {
			s.missing(op, "groupMember", contextID)
			return
		}
		group.ContextIDs = without(group.ContextIDs, contextID)
	})
}

// AddFlowStage appends a stage. A name or position already used by another
// stage fails with *ValidationError before anything is written.
func (s *Store) AddFlowStage(stage model.FlowStageMarker) error {
	var verr error
	s.edit("add_flow_stage", func(t *schema.Tree) {
		stages := t.ViewConfig.FlowStages
		if verr = model.CheckFlowStage(stages, -1, stage.Name, stage.Position); verr != nil {
			return
		}
		t.ViewConfig.FlowStages = append(slices.Clone(stages), stage)
	})
	return verr
}

// UpdateFlowStage applies patch to the stage at index after checking the
// resulting name and position against every other stage.
func (s *Store) UpdateFlowStage(index int, patch model.FlowStagePatch) error {
	const op = "update_flow_stage"
	var verr error
	s.edit(op, func(t *schema.Tree) {
		stages := t.ViewConfig.FlowStages
		if index < 0 || index >= len(stages) {
			s.missing(op, "flowStage", strconv.Itoa(index))
			return
		}
		stage := stages[index]
		model.Apply(&stage, patch)
		if verr = model.CheckFlowStage(stages, index, stage.Name, stage.Position); verr != nil {
			return
		}
		stages = slices.Clone(stages)
		stages[index] = stage
		t.ViewConfig.FlowStages = stages
	})
	return verr
}

func (s *Store) DeleteFlowStage(index int) {
	const op = "delete_flow_stage"
	s.edit(op, func(t *schema.Tree) {
		stages := t.ViewConfig.FlowStages
		if index < 0 || index >= len(stages) {
			s.missing(op, "flowStage", strconv.Itoa(index))
			return
		}
		t.ViewConfig.FlowStages = slices.Delete(slices.Clone(stages), index, index+1)
	})
}

func (s *Store) AddUser(user model.User) {
	user.Position = clamp(user.Position)
	add(s, "add_user", user.ID, userList, user)
}

func (s *Store) UpdateUser(id string, patch model.UserPatch) {
	if v, ok := patch.Position.Get(); ok {
		patch.Position = model.Some(clamp(v))
	}
	update(s, "update_user", "user", id, userList, patch)
}

func (s *Store) DeleteUser(id string) {
	remove(s, "delete_user", "user", id, userList, func(t *schema.Tree) {
		t.UserNeedConnections.RemoveWhere(func(c *model.UserNeedConnection) bool {
			return c.UserID == id
		})
	})
}

func (s *Store) AddUserNeed(need model.UserNeed) {
	need.Position = clamp(need.Position)
	add(s, "add_user_need", need.ID, userNeedList, need)
}

func (s *Store) UpdateUserNeed(id string, patch model.UserNeedPatch) {
	if v, ok := patch.Position.Get(); ok {
		patch.Position = model.Some(clamp(v))
	}
	update(s, "update_user_need", "userNeed", id, userNeedList, patch)
}

// DeleteUserNeed also removes every connection that references the need.
func (s *Store) DeleteUserNeed(id string) {
	remove(s, "delete_user_need", "userNeed", id, userNeedList, func(t *schema.Tree) {
		t.UserNeedConnections.RemoveWhere(func(c *model.UserNeedConnection) bool {
			return c.UserNeedID == id
		})
		t.NeedContextConnections.RemoveWhere(func(c *model.NeedContextConnection) bool {
			return c.UserNeedID == id
		})
	})
}

func (s *Store) AddTeam(team model.Team) {
	add(s, "add_team", team.ID, teamList, team)
}

func (s *Store) UpdateTeam(id string, patch model.TeamPatch) {
	update(s, "update_team", "team", id, teamList, patch)
}

// DeleteTeam clears the team from contexts, repos and people.
func (s *Store) DeleteTeam(id string) {
	remove(s, "delete_team", "team", id, teamList, func(t *schema.Tree) {
		t.Contexts.Each(func(ctx *schema.Context) {
			if strEquals(ctx.TeamID, id) {
				ctx.TeamID = nil
			}
		})
		t.Repos.Each(func(r *schema.Repo) {
			r.TeamIDs = without(r.TeamIDs, id)
		})
		t.People.Each(func(p *model.Person) {
			p.TeamIDs = without(p.TeamIDs, id)
		})
	})
}

func (s *Store) AddRepo(repo model.Repo) {
	add(s, "add_repo", repo.ID, repoList, schema.FromRepo(repo))
}

func (s *Store) UpdateRepo(id string, patch model.RepoPatch) {
	updateVia(s, "update_repo", "repo", id, repoList, schema.Repo.Model, schema.FromRepo, patch)
}

func (s *Store) DeleteRepo(id string) {
	remove(s, "delete_repo", "repo", id, repoList, nil)
}

func (s *Store) AddPerson(person model.Person) {
	person.Emails = slices.Clone(person.Emails)
	person.TeamIDs = slices.Clone(person.TeamIDs)
	add(s, "add_person", person.ID, personList, person)
}

func (s *Store) UpdatePerson(id string, patch model.PersonPatch) {
	update(s, "update_person", "person", id, personList, patch)
}

func (s *Store) DeletePerson(id string) {
	remove(s, "delete_person", "person", id, personList, func(t *schema.Tree) {
		t.Repos.Each(func(r *schema.Repo) {
			r.Contributors.Remove(id)
		})
	})
}

func (s *Store) AddUserNeedConnection(conn model.UserNeedConnection) {
	add(s, "add_user_need_connection", conn.ID, userNeedConnectionList, conn)
}

func (s *Store) UpdateUserNeedConnection(id string, patch model.UserNeedConnectionPatch) {
	update(s, "update_user_need_connection", "userNeedConnection", id, userNeedConnectionList, patch)
}

func (s *Store) DeleteUserNeedConnection(id string) {
	remove(s, "delete_user_need_connection", "userNeedConnection", id, userNeedConnectionList, nil)
}

func (s *Store) AddNeedContextConnection(conn model.NeedContextConnection) {
	add(s, "add_need_context_connection", conn.ID, needContextConnectionList, conn)
}

func (s *Store) UpdateNeedContextConnection(id string, patch model.NeedContextConnectionPatch) {
	update(s, "update_need_context_connection", "needContextConnection", id, needContextConnectionList, patch)
}

func (s *Store) DeleteNeedContextConnection(id string) {
	remove(s, "delete_need_context_connection", "needContextConnection", id, needContextConnectionList, nil)
}

// AddKeyframe appends a keyframe, enabling temporal mode when the project
// has none yet.
func (s *Store) AddKeyframe(kf model.TemporalKeyframe) {
	const op = "add_keyframe"
	kf.Positions = clampPoints(kf.Positions)
	node := schema.FromKeyframe(kf)
	s.edit(op, func(t *schema.Tree) {
		if t.Temporal.Keyframes.Has(kf.ID) {
			s.log.Warn("id already in use, add skipped", slog.String("op", op), slog.String("id", kf.ID))
			return
		}
		temporal(t).Keyframes.Append(node)
	})
}

// UpdateKeyframe applies patch to the keyframe. A positions slot replaces
// the whole coordinate map: contexts missing from it lose their entry.
func (s *Store) UpdateKeyframe(id string, patch model.KeyframePatch) {
	if positions, ok := patch.Positions.Get(); ok {
		patch.Positions = model.Some(clampPoints(positions))
	}
	updateVia(s, "update_keyframe", "keyframe", id, keyframeList, schema.Keyframe.Model, schema.FromKeyframe, patch)
}

func (s *Store) DeleteKeyframe(id string) {
	remove(s, "delete_keyframe", "keyframe", id, keyframeList, nil)
}

// UpdateKeyframeContextPosition moves one context inside one keyframe and
// leaves every other keyframe alone.
func (s *Store) UpdateKeyframeContextPosition(keyframeID, contextID string, p model.Point) {
	const op = "update_keyframe_context_position"
	p = clampPoint(p)
	s.edit(op, func(t *schema.Tree) {
		kf, ok := t.Temporal.Keyframes.Get(keyframeID)
		if !ok {
			s.missing(op, "keyframe", keyframeID)
			return
		}
		kf.Positions.Set(contextID, p)
	})
}

func (s *Store) ToggleTemporalMode(enabled bool) {
	s.edit("toggle_temporal_mode", func(t *schema.Tree) {
		if t.Temporal.Null && !enabled {
			return
		}
		temporal(t).Enabled = enabled
	})
}
