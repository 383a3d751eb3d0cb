package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError reports a constraint the caller could have checked before
// calling. Field names the JSON field that failed.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a whole project: field constraints from struct tags, id
// uniqueness per collection and flow-stage uniqueness.
func Validate(p Project) error {
	if err := validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				Field:   fe.Namespace(),
				Value:   fe.Value(),
				Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
			}
		}
		return fmt.Errorf("validate project: %w", err)
	}

	checks := []struct {
		field string
		ids   []string
	}{
		{"contexts", idsOf(p.Contexts, func(v BoundedContext) string { return v.ID })},
		{"relationships", idsOf(p.Relationships, func(v Relationship) string { return v.ID })},
		{"repos", idsOf(p.Repos, func(v Repo) string { return v.ID })},
		{"people", idsOf(p.People, func(v Person) string { return v.ID })},
		{"teams", idsOf(p.Teams, func(v Team) string { return v.ID })},
		{"groups", idsOf(p.Groups, func(v Group) string { return v.ID })},
		{"users", idsOf(p.Users, func(v User) string { return v.ID })},
		{"userNeeds", idsOf(p.UserNeeds, func(v UserNeed) string { return v.ID })},
		{"userNeedConnections", idsOf(p.UserNeedConnections, func(v UserNeedConnection) string { return v.ID })},
		{"needContextConnections", idsOf(p.NeedContextConnections, func(v NeedContextConnection) string { return v.ID })},
	}
	if p.Temporal != nil {
		checks = append(checks, struct {
			field string
			ids   []string
		}{"temporal.keyframes", idsOf(p.Temporal.Keyframes, func(v TemporalKeyframe) string { return v.ID })})
	}
	for _, check := range checks {
		if dup, ok := firstDuplicate(check.ids); ok {
			return &ValidationError{Field: check.field, Value: dup, Message: "duplicate id"}
		}
	}

	for i, stage := range p.ViewConfig.FlowStages {
		if err := CheckFlowStage(p.ViewConfig.FlowStages, i, stage.Name, stage.Position); err != nil {
			return err
		}
	}
	return nil
}

// CheckFlowStage verifies that name and position do not collide with any
// stage other than the one at index skip. Pass skip < 0 for a new stage.
func CheckFlowStage(stages []FlowStageMarker, skip int, name string, position float64) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Value: name, Message: "must not be empty"}
	}
	if position < 0 || position > 100 {
		return &ValidationError{Field: "position", Value: position, Message: "must be between 0 and 100"}
	}
	for i, other := range stages {
		if i == skip {
			continue
		}
		if other.Name == name {
			return &ValidationError{Field: "name", Value: name, Message: fmt.Sprintf("flow stage named %q already exists", name)}
		}
		if other.Position == position {
			return &ValidationError{Field: "position", Value: position, Message: fmt.Sprintf("a flow stage already sits at position %v", position)}
		}
	}
	return nil
}

func idsOf[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}
