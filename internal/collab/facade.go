package collab

import "contextflow/api/internal/model"

// facade forwards to the installed store and does nothing without one.
type facade struct {
	c *Controller
}

var _ Mutations = facade{}

func (f facade) RenameProject(name string) {
	if s := f.c.active(); s != nil {
		s.RenameProject(name)
	}
}

func (f facade) AddContext(ctx model.BoundedContext) {
	if s := f.c.active(); s != nil {
		s.AddContext(ctx)
	}
}

func (f facade) UpdateContext(id string, patch model.ContextPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateContext(id, patch)
	}
}

func (f facade) DeleteContext(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteContext(id)
	}
}

func (f facade) UpdateContextPosition(id string, positions model.Positions) {
	if s := f.c.active(); s != nil {
		s.UpdateContextPosition(id, positions)
	}
}

func (f facade) AddContextIssue(contextID string, issue model.Issue) {
	if s := f.c.active(); s != nil {
		s.AddContextIssue(contextID, issue)
	}
}

func (f facade) UpdateContextIssue(contextID, issueID string, patch model.IssuePatch) {
	if s := f.c.active(); s != nil {
		s.UpdateContextIssue(contextID, issueID, patch)
	}
}

func (f facade) DeleteContextIssue(contextID, issueID string) {
	if s := f.c.active(); s != nil {
		s.DeleteContextIssue(contextID, issueID)
	}
}

func (f facade) AddRelationship(rel model.Relationship) {
	if s := f.c.active(); s != nil {
		s.AddRelationship(rel)
	}
}

func (f facade) UpdateRelationship(id string, patch model.RelationshipPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateRelationship(id, patch)
	}
}

func (f facade) DeleteRelationship(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteRelationship(id)
	}
}

func (f facade) SwapRelationshipDirection(id string) {
	if s := f.c.active(); s != nil {
		s.SwapRelationshipDirection(id)
	}
}

func (f facade) AddGroup(group model.Group) {
	if s := f.c.active(); s != nil {
		s.AddGroup(group)
	}
}

func (f facade) UpdateGroup(id string, patch model.GroupPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateGroup(id, patch)
	}
}

func (f facade) DeleteGroup(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteGroup(id)
	}
}

func (f facade) AddContextToGroup(groupID, contextID string) {
	if s := f.c.active(); s != nil {
		s.AddContextToGroup(groupID, contextID)
	}
}

func (f facade) AddContextsToGroup(groupID string, contextIDs []string) {
	if s := f.c.active(); s != nil {
		s.AddContextsToGroup(groupID, contextIDs)
	}
}

func (f facade) RemoveContextFromGroup(groupID, contextID string) {
	if s := f.c.active(); s != nil {
		s.RemoveContextFromGroup(groupID, contextID)
	}
}

func (f facade) AddFlowStage(stage model.FlowStageMarker) error {
	if s := f.c.active(); s != nil {
		return s.AddFlowStage(stage)
	}
	return nil
}

func (f facade) UpdateFlowStage(index int, patch model.FlowStagePatch) error {
	if s := f.c.active(); s != nil {
		return s.UpdateFlowStage(index, patch)
	}
	return nil
}

func (f facade) DeleteFlowStage(index int) {
	if s := f.c.active(); s != nil {
		s.DeleteFlowStage(index)
	}
}

func (f facade) AddUser(user model.User) {
	if s := f.c.active(); s != nil {
		s.AddUser(user)
	}
}

func (f facade) UpdateUser(id string, patch model.UserPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateUser(id, patch)
	}
}

func (f facade) DeleteUser(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteUser(id)
	}
}

func (f facade) AddUserNeed(need model.UserNeed) {
	if s := f.c.active(); s != nil {
		s.AddUserNeed(need)
	}
}

func (f facade) UpdateUserNeed(id string, patch model.UserNeedPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateUserNeed(id, patch)
	}
}

func (f facade) DeleteUserNeed(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteUserNeed(id)
	}
}

func (f facade) AddTeam(team model.Team) {
	if s := f.c.active(); s != nil {
		s.AddTeam(team)
	}
}

func (f facade) UpdateTeam(id string, patch model.TeamPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateTeam(id, patch)
	}
}

func (f facade) DeleteTeam(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteTeam(id)
	}
}

func (f facade) AddRepo(repo model.Repo) {
	if s := f.c.active(); s != nil {
		s.AddRepo(repo)
	}
}

func (f facade) UpdateRepo(id string, patch model.RepoPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateRepo(id, patch)
	}
}

func (f facade) DeleteRepo(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteRepo(id)
	}
}

func (f facade) AddPerson(person model.Person) {
	if s := f.c.active(); s != nil {
		s.AddPerson(person)
	}
}

func (f facade) UpdatePerson(id string, patch model.PersonPatch) {
	if s := f.c.active(); s != nil {
		s.UpdatePerson(id, patch)
	}
}

func (f facade) DeletePerson(id string) {
	if s := f.c.active(); s != nil {
		s.DeletePerson(id)
	}
}

func (f facade) AddUserNeedConnection(conn model.UserNeedConnection) {
	if s := f.c.active(); s != nil {
		s.AddUserNeedConnection(conn)
	}
}

func (f facade) UpdateUserNeedConnection(id string, patch model.UserNeedConnectionPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateUserNeedConnection(id, patch)
	}
}

func (f facade) DeleteUserNeedConnection(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteUserNeedConnection(id)
	}
}

func (f facade) AddNeedContextConnection(conn model.NeedContextConnection) {
	if s := f.c.active(); s != nil {
		s.AddNeedContextConnection(conn)
	}
}

func (f facade) UpdateNeedContextConnection(id string, patch model.NeedContextConnectionPatch) {
	if s := f.c.active(); s != nil {
		s.UpdateNeedContextConnection(id, patch)
	}
}

func (f facade) DeleteNeedContextConnection(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteNeedContextConnection(id)
	}
}

func (f facade) AddKeyframe(kf model.TemporalKeyframe) {
	if s := f.c.active(); s != nil {
		s.AddKeyframe(kf)
	}
}

func (f facade) UpdateKeyframe(id string, patch model.KeyframePatch) {
	if s := f.c.active(); s != nil {
		s.UpdateKeyframe(id, patch)
	}
}

func (f facade) DeleteKeyframe(id string) {
	if s := f.c.active(); s != nil {
		s.DeleteKeyframe(id)
	}
}

func (f facade) UpdateKeyframeContextPosition(keyframeID, contextID string, p model.Point) {
	if s := f.c.active(); s != nil {
		s.UpdateKeyframeContextPosition(keyframeID, contextID, p)
	}
}

func (f facade) ToggleTemporalMode(enabled bool) {
	if s := f.c.active(); s != nil {
		s.ToggleTemporalMode(enabled)
	}
}
