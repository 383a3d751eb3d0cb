package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Opt is one slot of a field mask. An unset slot leaves the stored field
// alone; a set slot overwrites it. For nullable fields (Opt[*T]) a set slot
// holding nil clears the field, which is not the same as leaving it unset.
type Opt[T any] struct {
	set bool
	val T
}

// Some returns a set slot holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{set: true, val: v}
}

// Null returns a set slot that clears a nullable field.
func Null[T any]() Opt[*T] {
	return Opt[*T]{set: true}
}

func (o Opt[T]) Get() (T, bool) {
	return o.val, o.set
}

func (o Opt[T]) IsSet() bool {
	return o.set
}

// UnmarshalJSON marks the slot as set whenever its key is present in the
// input. An explicit null is accepted only by nullable slots: pointers,
// slices and maps.
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) && !nullable(reflect.TypeFor[T]()) {
		return fmt.Errorf("null is not a valid %s", reflect.TypeFor[T]())
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.set = true
	o.val = value
	return nil
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.val)
}

func (o Opt[T]) slot() (any, bool) {
	return o.val, o.set
}

type slotter interface {
	slot() (any, bool)
}

func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// Apply copies the set slots of patch onto the same-named fields of the
// struct dst points to. Slots with no matching assignable field are
// ignored.
func Apply(dst, patch any) {
	d := reflect.ValueOf(dst)
	if d.Kind() != reflect.Pointer || d.IsNil() || d.Elem().Kind() != reflect.Struct {
		return
	}
	d = d.Elem()
	v := reflect.ValueOf(patch)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		s, ok := v.Field(i).Interface().(slotter)
		if !ok {
			continue
		}
		value, set := s.slot()
		if !set {
			continue
		}
		target := d.FieldByName(field.Name)
		if !target.IsValid() || !target.CanSet() {
			continue
		}
		val := reflect.ValueOf(value)
		if !val.IsValid() {
			target.SetZero()
			continue
		}
		if val.Type().AssignableTo(target.Type()) {
			target.Set(val)
		}
	}
}

type ContextPatch struct {
	Name                    Opt[string]                   `json:"name"`
	Purpose                 Opt[*string]                  `json:"purpose"`
	StrategicClassification Opt[*StrategicClassification] `json:"strategicClassification"`
	Ownership               Opt[*Ownership]               `json:"ownership"`
	BoundaryIntegrity       Opt[*BoundaryIntegrity]       `json:"boundaryIntegrity"`
	BoundaryNotes           Opt[*string]                  `json:"boundaryNotes"`
	Positions               Opt[Positions]                `json:"positions"`
	EvolutionStage          Opt[EvolutionStage]           `json:"evolutionStage"`
	CodeSize                Opt[*CodeSize]                `json:"codeSize"`
	IsLegacy                Opt[*bool]                    `json:"isLegacy"`
	Notes                   Opt[*string]                  `json:"notes"`
	Issues                  Opt[[]Issue]                  `json:"issues"`
	TeamID                  Opt[*string]                  `json:"teamId"`
}

type IssuePatch struct {
	Title       Opt[string]        `json:"title"`
	Description Opt[*string]       `json:"description"`
	Severity    Opt[IssueSeverity] `json:"severity"`
}

type RelationshipPatch struct {
	FromContextID     Opt[string]              `json:"fromContextId"`
	ToContextID       Opt[string]              `json:"toContextId"`
	Pattern           Opt[RelationshipPattern] `json:"pattern"`
	CommunicationMode Opt[*string]             `json:"communicationMode"`
	Description       Opt[*string]             `json:"description"`
}

type GroupPatch struct {
	Label      Opt[string]   `json:"label"`
	Color      Opt[*string]  `json:"color"`
	ContextIDs Opt[[]string] `json:"contextIds"`
	Notes      Opt[*string]  `json:"notes"`
}

type FlowStagePatch struct {
	Name        Opt[string]  `json:"name"`
	Position    Opt[float64] `json:"position"`
	Description Opt[*string] `json:"description"`
	Owner       Opt[*string] `json:"owner"`
}

type UserPatch struct {
	Name        Opt[string]  `json:"name"`
	Description Opt[*string] `json:"description"`
	Position    Opt[float64] `json:"position"`
	IsExternal  Opt[*bool]   `json:"isExternal"`
}

type UserNeedPatch struct {
	Name        Opt[string]  `json:"name"`
	Description Opt[*string] `json:"description"`
	Position    Opt[float64] `json:"position"`
	Visibility  Opt[*bool]   `json:"visibility"`
}

type TeamPatch struct {
	Name         Opt[string]        `json:"name"`
	JiraBoard    Opt[*string]       `json:"jiraBoard"`
	TopologyType Opt[*TopologyType] `json:"topologyType"`
}

type RepoPatch struct {
	Name         Opt[string]        `json:"name"`
	RemoteURL    Opt[*string]       `json:"remoteUrl"`
	ContextID    Opt[*string]       `json:"contextId"`
	TeamIDs      Opt[[]string]      `json:"teamIds"`
	Contributors Opt[[]Contributor] `json:"contributors"`
}

type PersonPatch struct {
	DisplayName Opt[string]   `json:"displayName"`
	Emails      Opt[[]string] `json:"emails"`
	TeamIDs     Opt[[]string] `json:"teamIds"`
}

type UserNeedConnectionPatch struct {
	UserID     Opt[string]  `json:"userId"`
	UserNeedID Opt[string]  `json:"userNeedId"`
	Notes      Opt[*string] `json:"notes"`
}

type NeedContextConnectionPatch struct {
	UserNeedID Opt[string]  `json:"userNeedId"`
	ContextID  Opt[string]  `json:"contextId"`
	Notes      Opt[*string] `json:"notes"`
}

type KeyframePatch struct {
	Date             Opt[string]           `json:"date"`
	Label            Opt[*string]          `json:"label"`
	Positions        Opt[map[string]Point] `json:"positions"`
	ActiveContextIDs Opt[[]string]         `json:"activeContextIds"`
}
