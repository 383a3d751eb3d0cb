package collab

import (
	"slices"

	"contextflow/api/internal/model"
	"contextflow/api/internal/schema"
)

// Id lists and optional values in a tree are replaced whole on every write,
// never mutated in place: earlier snapshots still share them.

// without returns a fresh copy of ids minus every occurrence of id, or ids
// itself when id is absent.
func without(ids []string, id string) []string {
	if !slices.Contains(ids, id) {
		return ids
	}
	return slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id })
}

// withAll returns a fresh copy of ids with extra appended, turning a nil
// list into a present one.
func withAll(ids []string, extra ...string) []string {
	out := make([]string, 0, len(ids)+len(extra))
	out = append(out, ids...)
	return append(out, extra...)
}

func strEquals(p *string, v string) bool {
	return p != nil && *p == v
}

// temporal returns the temporal state of t, creating an enabled one with
// no keyframes when the project has none.
func temporal(t *schema.Tree) *schema.Temporal {
	if t.Temporal.Null {
		t.Temporal = schema.Temporal{Enabled: true, Keyframes: schema.ListOf([]schema.Keyframe{})}
	}
	return &t.Temporal
}

func clamp(v float64) float64 {
	return min(max(v, 0), 100)
}

func clampPositions(p model.Positions) model.Positions {
	p.Strategic.X = clamp(p.Strategic.X)
	p.Flow.X = clamp(p.Flow.X)
	p.Distillation.X = clamp(p.Distillation.X)
	p.Distillation.Y = clamp(p.Distillation.Y)
	p.Shared.Y = clamp(p.Shared.Y)
	return p
}

func clampPoint(p model.Point) model.Point {
	return model.Point{X: clamp(p.X), Y: clamp(p.Y)}
}

func clampPoints(points map[string]model.Point) map[string]model.Point {
	if points == nil {
		return nil
	}
	out := make(map[string]model.Point, len(points))
	for id, p := range points {
		out[id] = clampPoint(p)
	}
	return out
}

func contextList(t *schema.Tree) *schema.List[schema.Context]          { return &t.Contexts }
func relationshipList(t *schema.Tree) *schema.List[model.Relationship] { return &t.Relationships }
func repoList(t *schema.Tree) *schema.List[schema.Repo]                { return &t.Repos }
func personList(t *schema.Tree) *schema.List[model.Person]             { return &t.People }
func teamList(t *schema.Tree) *schema.List[model.Team]                 { return &t.Teams }
func groupList(t *schema.Tree) *schema.List[model.Group]               { return &t.Groups }
func userList(t *schema.Tree) *schema.List[model.User]                 { return &t.Users }
func userNeedList(t *schema.Tree) *schema.List[model.UserNeed]         { return &t.UserNeeds }
func userNeedConnectionList(t *schema.Tree) *schema.List[model.UserNeedConnection] {
	return &t.UserNeedConnections
}
func needContextConnectionList(t *schema.Tree) *schema.List[model.NeedContextConnection] {
	return &t.NeedContextConnections
}
func keyframeList(t *schema.Tree) *schema.List[schema.Keyframe] { return &t.Temporal.Keyframes }
