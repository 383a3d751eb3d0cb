package model

import (
	"time"

	"github.com/google/uuid"
)

// NewProject returns an empty, valid project. Collections are non-nil so the
// project serializes with empty arrays.
func NewProject(name string) Project {
	now := time.Now().UTC().Truncate(time.Millisecond)
	version := 1
	return Project{
		ID:                     uuid.NewString(),
		Name:                   name,
		Version:                &version,
		CreatedAt:              now,
		UpdatedAt:              now,
		Contexts:               []BoundedContext{},
		Relationships:          []Relationship{},
		Repos:                  []Repo{},
		People:                 []Person{},
		Teams:                  []Team{},
		Groups:                 []Group{},
		Users:                  []User{},
		UserNeeds:              []UserNeed{},
		UserNeedConnections:    []UserNeedConnection{},
		NeedContextConnections: []NeedContextConnection{},
		ViewConfig:             ViewConfig{FlowStages: []FlowStageMarker{}},
	}
}

// Template returns a project seeded with the default value-stream stages.
func Template(name string) Project {
	p := NewProject(name)
	p.ViewConfig.FlowStages = []FlowStageMarker{
		{Name: "Discover", Position: 10},
		{Name: "Select", Position: 30},
		{Name: "Purchase", Position: 50},
		{Name: "Fulfil", Position: 70},
		{Name: "Support", Position: 90},
	}
	return p
}

// NewContext returns a context centred in every view.
func NewContext(id, name string) BoundedContext {
	return BoundedContext{
		ID:             id,
		Name:           name,
		EvolutionStage: StageCustomBuilt,
		Positions: Positions{
			Strategic:    AxisX{X: 50},
			Flow:         AxisX{X: 50},
			Distillation: Point{X: 50, Y: 50},
			Shared:       AxisY{Y: 50},
		},
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
