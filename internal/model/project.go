// Package model holds the plain Project document edited by the collaborative
// store. Values of these types are snapshots: they are rebuilt from the
// replicated document after every transaction and must be treated as
// read-only by callers.
package model

import "time"

// Optional fields are pointers without omitempty so an absent value is
// written as an explicit null and survives a round trip through the
// replicated document unchanged.
//
// The deep tags drive replica merges. A key field identifies a list element
// across replicas; an atomic field is replaced as a whole, never merged.

type Project struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name"`
	Version   *int      `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	IsBuiltIn *bool     `json:"isBuiltIn"`

	Contexts               []BoundedContext        `json:"contexts" validate:"dive"`
	Relationships          []Relationship          `json:"relationships" validate:"dive"`
	Repos                  []Repo                  `json:"repos" validate:"dive"`
	People                 []Person                `json:"people" validate:"dive"`
	Teams                  []Team                  `json:"teams" validate:"dive"`
	Groups                 []Group                 `json:"groups" validate:"dive"`
	Users                  []User                  `json:"users" validate:"dive"`
	UserNeeds              []UserNeed              `json:"userNeeds" validate:"dive"`
	UserNeedConnections    []UserNeedConnection    `json:"userNeedConnections" validate:"dive"`
	NeedContextConnections []NeedContextConnection `json:"needContextConnections" validate:"dive"`

	ViewConfig ViewConfig     `json:"viewConfig"`
	Temporal   *TemporalState `json:"temporal"`
}

// BoundedContext is the primary node of every view.
type BoundedContext struct {
	ID                      string                   `json:"id" validate:"required" deep:"key"`
	Name                    string                   `json:"name"`
	Purpose                 *string                  `json:"purpose" deep:"atomic"`
	StrategicClassification *StrategicClassification `json:"strategicClassification" validate:"omitempty,oneof=core supporting generic" deep:"atomic"`
	Ownership               *Ownership               `json:"ownership" validate:"omitempty,oneof=ours internal external" deep:"atomic"`
	BoundaryIntegrity       *BoundaryIntegrity       `json:"boundaryIntegrity" validate:"omitempty,oneof=strong moderate weak" deep:"atomic"`
	BoundaryNotes           *string                  `json:"boundaryNotes" deep:"atomic"`
	Positions               Positions                `json:"positions"`
	EvolutionStage          EvolutionStage           `json:"evolutionStage" validate:"oneof=genesis custom-built product/rental commodity/utility"`
	CodeSize                *CodeSize                `json:"codeSize" deep:"atomic"`
	IsLegacy                *bool                    `json:"isLegacy" deep:"atomic"`
	Notes                   *string                  `json:"notes" deep:"atomic"`
	Issues                  []Issue                  `json:"issues" validate:"dive"`
	TeamID                  *string                  `json:"teamId" deep:"atomic"`
}

// Positions keeps one independent coordinate per view. Every value is a
// percentage in [0,100].
type Positions struct {
	Strategic    AxisX `json:"strategic"`
	Flow         AxisX `json:"flow"`
	Distillation Point `json:"distillation"`
	Shared       AxisY `json:"shared"`
}

type AxisX struct {
	X float64 `json:"x" validate:"gte=0,lte=100"`
}

type AxisY struct {
	Y float64 `json:"y" validate:"gte=0,lte=100"`
}

type Point struct {
	X float64 `json:"x" validate:"gte=0,lte=100"`
	Y float64 `json:"y" validate:"gte=0,lte=100"`
}

type CodeSize struct {
	LOC    *int    `json:"loc" deep:"atomic"`
	Bucket *string `json:"bucket" validate:"omitempty,oneof=tiny small medium large huge" deep:"atomic"`
}

type Issue struct {
	ID          string        `json:"id" validate:"required" deep:"key"`
	Title       string        `json:"title"`
	Description *string       `json:"description" deep:"atomic"`
	Severity    IssueSeverity `json:"severity" validate:"oneof=info warning critical"`
}

// Relationship points from the downstream context (FromContextID) to the
// upstream one (ToContextID).
type Relationship struct {
	ID                string              `json:"id" validate:"required" deep:"key"`
	FromContextID     string              `json:"fromContextId" validate:"required"`
	ToContextID       string              `json:"toContextId" validate:"required"`
	Pattern           RelationshipPattern `json:"pattern" validate:"oneof=customer-supplier conformist anti-corruption-layer open-host-service published-language shared-kernel partnership separate-ways"`
	CommunicationMode *string             `json:"communicationMode" deep:"atomic"`
	Description       *string             `json:"description" deep:"atomic"`
}

type Group struct {
	ID         string   `json:"id" validate:"required" deep:"key"`
	Label      string   `json:"label"`
	Color      *string  `json:"color" deep:"atomic"`
	ContextIDs []string `json:"contextIds" deep:"atomic"`
	Notes      *string  `json:"notes" deep:"atomic"`
}

type Repo struct {
	ID           string        `json:"id" validate:"required" deep:"key"`
	Name         string        `json:"name"`
	RemoteURL    *string       `json:"remoteUrl" deep:"atomic"`
	ContextID    *string       `json:"contextId" deep:"atomic"`
	TeamIDs      []string      `json:"teamIds" deep:"atomic"`
	Contributors []Contributor `json:"contributors" validate:"dive"`
}

type Contributor struct {
	PersonID string `json:"personId" validate:"required" deep:"key"`
}

type Person struct {
	ID          string   `json:"id" validate:"required" deep:"key"`
	DisplayName string   `json:"displayName"`
	Emails      []string `json:"emails" deep:"atomic"`
	TeamIDs     []string `json:"teamIds" deep:"atomic"`
}

type Team struct {
	ID           string        `json:"id" validate:"required" deep:"key"`
	Name         string        `json:"name"`
	JiraBoard    *string       `json:"jiraBoard" deep:"atomic"`
	TopologyType *TopologyType `json:"topologyType" validate:"omitempty,oneof=stream-aligned platform enabling complicated-subsystem unknown" deep:"atomic"`
}

type User struct {
	ID          string  `json:"id" validate:"required" deep:"key"`
	Name        string  `json:"name"`
	Description *string `json:"description" deep:"atomic"`
	Position    float64 `json:"position" validate:"gte=0,lte=100"`
	IsExternal  *bool   `json:"isExternal" deep:"atomic"`
}

type UserNeed struct {
	ID          string  `json:"id" validate:"required" deep:"key"`
	Name        string  `json:"name"`
	Description *string `json:"description" deep:"atomic"`
	Position    float64 `json:"position" validate:"gte=0,lte=100"`
	Visibility  *bool   `json:"visibility" deep:"atomic"`
}

type UserNeedConnection struct {
	ID         string  `json:"id" validate:"required" deep:"key"`
	UserID     string  `json:"userId" validate:"required"`
	UserNeedID string  `json:"userNeedId" validate:"required"`
	Notes      *string `json:"notes" deep:"atomic"`
}

type NeedContextConnection struct {
	ID         string  `json:"id" validate:"required" deep:"key"`
	UserNeedID string  `json:"userNeedId" validate:"required"`
	ContextID  string  `json:"contextId" validate:"required"`
	Notes      *string `json:"notes" deep:"atomic"`
}

type ViewConfig struct {
	FlowStages []FlowStageMarker `json:"flowStages" validate:"dive" deep:"atomic"`
}

// FlowStageMarker has no id; stages are addressed by their index in
// ViewConfig.FlowStages.
type FlowStageMarker struct {
	Name        string  `json:"name" validate:"required"`
	Position    float64 `json:"position" validate:"gte=0,lte=100"`
	Description *string `json:"description" deep:"atomic"`
	Owner       *string `json:"owner" deep:"atomic"`
}

type TemporalState struct {
	Enabled   bool               `json:"enabled"`
	Keyframes []TemporalKeyframe `json:"keyframes" validate:"dive"`
}

// TemporalKeyframe snapshots context coordinates at a point in time. Date is
// a year ("2027") or a quarter ("2027-Q3").
type TemporalKeyframe struct {
	ID               string           `json:"id" validate:"required" deep:"key"`
	Date             string           `json:"date" validate:"required"`
	Label            *string          `json:"label" deep:"atomic"`
	Positions        map[string]Point `json:"positions" validate:"dive"`
	ActiveContextIDs []string         `json:"activeContextIds" deep:"atomic"`
}

// FindContext returns the context with the given id.
func (p Project) FindContext(id string) (BoundedContext, bool) {
	for _, item := range p.Contexts {
		if item.ID == id {
			return item, true
		}
	}
	return BoundedContext{}, false
}
