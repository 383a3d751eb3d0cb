package schema

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"contextflow/api/internal/model"
)

// Tree is the replicated form of a model.Project.
//
// Every collection and map in a tree is non-nil. A null collection is
// recorded by its Null flag instead, so two replicas inserting into the same
// empty collection merge element by element rather than racing to create it.
type Tree struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   *int      `json:"version" deep:"atomic"`
	CreatedAt time.Time `json:"createdAt" deep:"atomic"`
	UpdatedAt time.Time `json:"updatedAt" deep:"atomic"`
	IsBuiltIn *bool     `json:"isBuiltIn" deep:"atomic"`

	Contexts               List[Context]                     `json:"contexts"`
	Relationships          List[model.Relationship]          `json:"relationships"`
	Repos                  List[Repo]                        `json:"repos"`
	People                 List[model.Person]                `json:"people"`
	Teams                  List[model.Team]                  `json:"teams"`
	Groups                 List[model.Group]                 `json:"groups"`
	Users                  List[model.User]                  `json:"users"`
	UserNeeds              List[model.UserNeed]              `json:"userNeeds"`
	UserNeedConnections    List[model.UserNeedConnection]    `json:"userNeedConnections"`
	NeedContextConnections List[model.NeedContextConnection] `json:"needContextConnections"`

	ViewConfig model.ViewConfig `json:"viewConfig"`
	Temporal   Temporal         `json:"temporal"`
}

type Context struct {
	ID                      string                         `json:"id" deep:"key"`
	Name                    string                         `json:"name"`
	Purpose                 *string                        `json:"purpose" deep:"atomic"`
	StrategicClassification *model.StrategicClassification `json:"strategicClassification" deep:"atomic"`
	Ownership               *model.Ownership               `json:"ownership" deep:"atomic"`
	BoundaryIntegrity       *model.BoundaryIntegrity       `json:"boundaryIntegrity" deep:"atomic"`
	BoundaryNotes           *string                        `json:"boundaryNotes" deep:"atomic"`
	Positions               model.Positions                `json:"positions"`
	EvolutionStage          model.EvolutionStage           `json:"evolutionStage"`
	CodeSize                *model.CodeSize                `json:"codeSize" deep:"atomic"`
	IsLegacy                *bool                          `json:"isLegacy" deep:"atomic"`
	Notes                   *string                        `json:"notes" deep:"atomic"`
	Issues                  List[model.Issue]              `json:"issues"`
	TeamID                  *string                        `json:"teamId" deep:"atomic"`
}

type Repo struct {
	ID           string                  `json:"id" deep:"key"`
	Name         string                  `json:"name"`
	RemoteURL    *string                 `json:"remoteUrl" deep:"atomic"`
	ContextID    *string                 `json:"contextId" deep:"atomic"`
	TeamIDs      []string                `json:"teamIds" deep:"atomic"`
	Contributors List[model.Contributor] `json:"contributors"`
}

type Temporal struct {
	Null      bool           `json:"null"`
	Enabled   bool           `json:"enabled"`
	Keyframes List[Keyframe] `json:"keyframes"`
}

type Keyframe struct {
	ID               string   `json:"id" deep:"key"`
	Date             string   `json:"date"`
	Label            *string  `json:"label" deep:"atomic"`
	Positions        Points   `json:"positions"`
	ActiveContextIDs []string `json:"activeContextIds" deep:"atomic"`
}

// Points holds keyframe coordinates by context id.
type Points struct {
	Null    bool                   `json:"null"`
	Entries map[string]model.Point `json:"entries"`
}

// List is a keyed collection that may be null. Elements are matched across
// replicas by the field tagged deep:"key".
type List[T any] struct {
	Null  bool `json:"null"`
	Items []T  `json:"items"`
}

// ListOf wraps items, recording nil as a null list.
func ListOf[T any](items []T) List[T] {
	if items == nil {
		return List[T]{Null: true, Items: []T{}}
	}
	return List[T]{Items: items}
}

// Slice returns the items, or nil for a null list.
func (l List[T]) Slice() []T {
	if l.Null {
		return nil
	}
	if l.Items == nil {
		return []T{}
	}
	return l.Items
}

func (l List[T]) Len() int {
	return len(l.Items)
}

// Get returns the element with the given key. The pointer aliases the list.
func (l *List[T]) Get(id string) (*T, bool) {
	for i := range l.Items {
		if keyOf(&l.Items[i]) == id {
			return &l.Items[i], true
		}
	}
	return nil, false
}

func (l *List[T]) Has(id string) bool {
	_, ok := l.Get(id)
	return ok
}

// Append adds item at the end, turning a null list into a present one.
func (l *List[T]) Append(item T) {
	l.Null = false
	l.Items = append(l.Items, item)
}

// Remove deletes the element with the given key.
func (l *List[T]) Remove(id string) bool {
	return l.RemoveWhere(func(item *T) bool { return keyOf(item) == id }) > 0
}

// RemoveWhere deletes every element matching pred and reports how many
// went.
func (l *List[T]) RemoveWhere(pred func(*T) bool) int {
	kept := make([]T, 0, len(l.Items))
	for i := range l.Items {
		if !pred(&l.Items[i]) {
			kept = append(kept, l.Items[i])
		}
	}
	removed := len(l.Items) - len(kept)
	if removed > 0 {
		l.Items = kept
	}
	return removed
}

// Each calls fn with a pointer to every element in order.
func (l *List[T]) Each(fn func(*T)) {
	for i := range l.Items {
		fn(&l.Items[i])
	}
}

var keyFields sync.Map

// keyOf reads the deep:"key" field of an element.
func keyOf[T any](item *T) string {
	v := reflect.ValueOf(item).Elem()
	idx, ok := keyFields.Load(v.Type())
	if !ok {
		idx = keyIndex(v.Type())
		keyFields.Store(v.Type(), idx)
	}
	i := idx.(int)
	if i < 0 {
		return ""
	}
	return v.Field(i).String()
}

func keyIndex(t reflect.Type) int {
	if t.Kind() != reflect.Struct {
		return -1
	}
	for i := 0; i < t.NumField(); i++ {
		if slices.Contains(strings.Split(t.Field(i).Tag.Get("deep"), ","), "key") {
			return i
		}
	}
	return -1
}

// PointsOf wraps positions, recording nil as null.
func PointsOf(positions map[string]model.Point) Points {
	if positions == nil {
		return Points{Null: true, Entries: map[string]model.Point{}}
	}
	return Points{Entries: maps.Clone(positions)}
}

// Map returns the coordinates, or nil when null.
func (p Points) Map() map[string]model.Point {
	if p.Null {
		return nil
	}
	if p.Entries == nil {
		return map[string]model.Point{}
	}
	return maps.Clone(p.Entries)
}

// Set stores one coordinate, turning null coordinates into present ones.
func (p *Points) Set(contextID string, point model.Point) {
	if p.Entries == nil {
		p.Entries = map[string]model.Point{}
	}
	p.Null = false
	p.Entries[contextID] = point
}

// FromContext converts a context into its tree form.
func FromContext(c model.BoundedContext) Context {
	return Context{
		ID:                      c.ID,
		Name:                    c.Name,
		Purpose:                 c.Purpose,
		StrategicClassification: c.StrategicClassification,
		Ownership:               c.Ownership,
		BoundaryIntegrity:       c.BoundaryIntegrity,
		BoundaryNotes:           c.BoundaryNotes,
		Positions:               c.Positions,
		EvolutionStage:          c.EvolutionStage,
		CodeSize:                c.CodeSize,
		IsLegacy:                c.IsLegacy,
		Notes:                   c.Notes,
		Issues:                  ListOf(slices.Clone(c.Issues)),
		TeamID:                  c.TeamID,
	}
}

// Model converts the context back into its plain form.
func (c Context) Model() model.BoundedContext {
	return model.BoundedContext{
		ID:                      c.ID,
		Name:                    c.Name,
		Purpose:                 c.Purpose,
		StrategicClassification: c.StrategicClassification,
		Ownership:               c.Ownership,
		BoundaryIntegrity:       c.BoundaryIntegrity,
		BoundaryNotes:           c.BoundaryNotes,
		Positions:               c.Positions,
		EvolutionStage:          c.EvolutionStage,
		CodeSize:                c.CodeSize,
		IsLegacy:                c.IsLegacy,
		Notes:                   c.Notes,
		Issues:                  slices.Clone(c.Issues.Slice()),
		TeamID:                  c.TeamID,
	}
}

func FromRepo(r model.Repo) Repo {
	return Repo{
		ID:           r.ID,
		Name:         r.Name,
		RemoteURL:    r.RemoteURL,
		ContextID:    r.ContextID,
		TeamIDs:      slices.Clone(r.TeamIDs),
		Contributors: ListOf(slices.Clone(r.Contributors)),
	}
}

func (r Repo) Model() model.Repo {
	return model.Repo{
		ID:           r.ID,
		Name:         r.Name,
		RemoteURL:    r.RemoteURL,
		ContextID:    r.ContextID,
		TeamIDs:      slices.Clone(r.TeamIDs),
		Contributors: slices.Clone(r.Contributors.Slice()),
	}
}

func FromKeyframe(kf model.TemporalKeyframe) Keyframe {
	return Keyframe{
		ID:               kf.ID,
		Date:             kf.Date,
		Label:            kf.Label,
		Positions:        PointsOf(kf.Positions),
		ActiveContextIDs: slices.Clone(kf.ActiveContextIDs),
	}
}

func (kf Keyframe) Model() model.TemporalKeyframe {
	return model.TemporalKeyframe{
		ID:               kf.ID,
		Date:             kf.Date,
		Label:            kf.Label,
		Positions:        kf.Positions.Map(),
		ActiveContextIDs: slices.Clone(kf.ActiveContextIDs),
	}
}

func FromTemporal(t *model.TemporalState) Temporal {
	if t == nil {
		return Temporal{Null: true, Keyframes: ListOf([]Keyframe{})}
	}
	return Temporal{Enabled: t.Enabled, Keyframes: ListOf(convert(t.Keyframes, FromKeyframe))}
}

func (t Temporal) Model() *model.TemporalState {
	if t.Null {
		return nil
	}
	return &model.TemporalState{
		Enabled:   t.Enabled,
		Keyframes: convert(t.Keyframes.Slice(), Keyframe.Model),
	}
}

// FromProject converts a project into its tree form. The tree shares no
// slices or maps with p.
func FromProject(p model.Project) Tree {
	return Tree{
		ID:        p.ID,
		Name:      p.Name,
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		IsBuiltIn: p.IsBuiltIn,

		Contexts:               ListOf(convert(p.Contexts, FromContext)),
		Relationships:          ListOf(slices.Clone(p.Relationships)),
		Repos:                  ListOf(convert(p.Repos, FromRepo)),
		People:                 ListOf(convert(p.People, clonePerson)),
		Teams:                  ListOf(slices.Clone(p.Teams)),
		Groups:                 ListOf(convert(p.Groups, cloneGroup)),
		Users:                  ListOf(slices.Clone(p.Users)),
		UserNeeds:              ListOf(slices.Clone(p.UserNeeds)),
		UserNeedConnections:    ListOf(slices.Clone(p.UserNeedConnections)),
		NeedContextConnections: ListOf(slices.Clone(p.NeedContextConnections)),

		ViewConfig: model.ViewConfig{FlowStages: slices.Clone(p.ViewConfig.FlowStages)},
		Temporal:   FromTemporal(p.Temporal),
	}
}

// Project converts the tree back into a plain project sharing no slices or
// maps with t.
func (t Tree) Project() model.Project {
	return model.Project{
		ID:        t.ID,
		Name:      t.Name,
		Version:   t.Version,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		IsBuiltIn: t.IsBuiltIn,

		Contexts:               convert(t.Contexts.Slice(), Context.Model),
		Relationships:          slices.Clone(t.Relationships.Slice()),
		Repos:                  convert(t.Repos.Slice(), Repo.Model),
		People:                 convert(t.People.Slice(), clonePerson),
		Teams:                  slices.Clone(t.Teams.Slice()),
		Groups:                 convert(t.Groups.Slice(), cloneGroup),
		Users:                  slices.Clone(t.Users.Slice()),
		UserNeeds:              slices.Clone(t.UserNeeds.Slice()),
		UserNeedConnections:    slices.Clone(t.UserNeedConnections.Slice()),
		NeedContextConnections: slices.Clone(t.NeedContextConnections.Slice()),

		ViewConfig: model.ViewConfig{FlowStages: slices.Clone(t.ViewConfig.FlowStages)},
		Temporal:   t.Temporal.Model(),
	}
}

func clonePerson(p model.Person) model.Person {
	p.Emails = slices.Clone(p.Emails)
	p.TeamIDs = slices.Clone(p.TeamIDs)
	return p
}

func cloneGroup(g model.Group) model.Group {
	g.ContextIDs = slices.Clone(g.ContextIDs)
	return g
}

// convert maps items through fn, keeping nil apart from empty.
func convert[S, D any](items []S, fn func(S) D) []D {
	if items == nil {
		return nil
	}
	out := make([]D, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}
