package gitrepo

import (
	"sort"

	"contextflow/api/internal/model"
)

// Change summarizes how one part of a project differs between versions.
type Change struct {
	Field   string   `json:"field"`
	Before  string   `json:"before,omitempty"`
	After   string   `json:"after,omitempty"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Diff lists renamed projects and entities added to or removed from each
// collection, sorted by field.
func Diff(from, to model.Project) []Change {
	changes := make([]Change, 0)
	if from.Name != to.Name {
		changes = append(changes, Change{Field: "name", Before: from.Name, After: to.Name})
	}

	collections := []struct {
		field    string
		from, to []string
	}{
		{"contexts", ids(from.Contexts, func(v model.BoundedContext) string { return v.ID }), ids(to.Contexts, func(v model.BoundedContext) string { return v.ID })},
		{"relationships", ids(from.Relationships, func(v model.Relationship) string { return v.ID }), ids(to.Relationships, func(v model.Relationship) string { return v.ID })},
		{"groups", ids(from.Groups, func(v model.Group) string { return v.ID }), ids(to.Groups, func(v model.Group) string { return v.ID })},
		{"teams", ids(from.Teams, func(v model.Team) string { return v.ID }), ids(to.Teams, func(v model.Team) string { return v.ID })},
		{"repos", ids(from.Repos, func(v model.Repo) string { return v.ID }), ids(to.Repos, func(v model.Repo) string { return v.ID })},
		{"people", ids(from.People, func(v model.Person) string { return v.ID }), ids(to.People, func(v model.Person) string { return v.ID })},
		{"users", ids(from.Users, func(v model.User) string { return v.ID }), ids(to.Users, func(v model.User) string { return v.ID })},
		{"userNeeds", ids(from.UserNeeds, func(v model.UserNeed) string { return v.ID }), ids(to.UserNeeds, func(v model.UserNeed) string { return v.ID })},
	}
	for _, c := range collections {
		added, removed := setDiff(c.from, c.to)
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		changes = append(changes, Change{Field: c.field, Added: added, Removed: removed})
	}

	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}

func setDiff(from, to []string) (added, removed []string) {
	before := make(map[string]bool, len(from))
	for _, id := range from {
		before[id] = true
	}
	after := make(map[string]bool, len(to))
	for _, id := range to {
		after[id] = true
		if !before[id] {
			added = append(added, id)
		}
	}
	for _, id := range from {
		if !after[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}
