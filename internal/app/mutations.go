package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sort"

	"contextflow/api/internal/collab"
	"contextflow/api/internal/model"
)

// mutationArgs is the argument envelope of POST /api/session/mutations.
// Each op reads the fields it needs; value carries a whole entity or
// coordinate and patch the fields of an update.
type mutationArgs struct {
	ID         string          `json:"id"`
	ContextID  string          `json:"contextId"`
	ContextIDs []string        `json:"contextIds"`
	GroupID    string          `json:"groupId"`
	IssueID    string          `json:"issueId"`
	KeyframeID string          `json:"keyframeId"`
	Index      *int            `json:"index"`
	Name       *string         `json:"name"`
	Enabled    *bool           `json:"enabled"`
	Value      json.RawMessage `json:"value"`
	Patch      json.RawMessage `json:"patch"`
}

type mutation func(m collab.Mutations, a mutationArgs) error

var mutations = map[string]mutation{
	"renameProject": func(m collab.Mutations, a mutationArgs) error {
		if a.Name == nil {
			return invalidArgs("name is required")
		}
		m.RenameProject(*a.Name)
		return nil
	},

	"addContext":    add(collab.Mutations.AddContext),
	"updateContext": update(collab.Mutations.UpdateContext),
	"deleteContext": byID(collab.Mutations.DeleteContext),
	"updateContextPosition": func(m collab.Mutations, a mutationArgs) error {
		if a.ID == "" {
			return invalidArgs("id is required")
		}
		positions, err := decodeArg[model.Positions]("value", a.Value)
		if err != nil {
			return err
		}
		m.UpdateContextPosition(a.ID, positions)
		return nil
	},
	"addContextIssue": func(m collab.Mutations, a mutationArgs) error {
		if a.ContextID == "" {
			return invalidArgs("contextId is required")
		}
		issue, err := decodeEntity[model.Issue](a.Value)
		if err != nil {
			return err
		}
		m.AddContextIssue(a.ContextID, issue)
		return nil
	},
	"updateContextIssue": func(m collab.Mutations, a mutationArgs) error {
		if a.ContextID == "" || a.IssueID == "" {
			return invalidArgs("contextId and issueId are required")
		}
		patch, err := decodeArg[model.IssuePatch]("patch", a.Patch)
		if err != nil {
			return err
		}
		m.UpdateContextIssue(a.ContextID, a.IssueID, patch)
		return nil
	},
	"deleteContextIssue": func(m collab.Mutations, a mutationArgs) error {
		if a.ContextID == "" || a.IssueID == "" {
			return invalidArgs("contextId and issueId are required")
		}
		m.DeleteContextIssue(a.ContextID, a.IssueID)
		return nil
	},

	"addRelationship":           add(collab.Mutations.AddRelationship),
	"updateRelationship":        update(collab.Mutations.UpdateRelationship),
	"deleteRelationship":        byID(collab.Mutations.DeleteRelationship),
	"swapRelationshipDirection": byID(collab.Mutations.SwapRelationshipDirection),

	"addGroup":    add(collab.Mutations.AddGroup),
	"updateGroup": update(collab.Mutations.UpdateGroup),
	"deleteGroup": byID(collab.Mutations.DeleteGroup),
	"addContextToGroup": func(m collab.Mutations, a mutationArgs) error {
		if a.GroupID == "" || a.ContextID == "" {
			return invalidArgs("groupId and contextId are required")
		}
		m.AddContextToGroup(a.GroupID, a.ContextID)
		return nil
	},
	"addContextsToGroup": func(m collab.Mutations, a mutationArgs) error {
		if a.GroupID == "" {
			return invalidArgs("groupId is required")
		}
		m.AddContextsToGroup(a.GroupID, a.ContextIDs)
		return nil
	},
	"removeContextFromGroup": func(m collab.Mutations, a mutationArgs) error {
		if a.GroupID == "" || a.ContextID == "" {
			return invalidArgs("groupId and contextId are required")
		}
		m.RemoveContextFromGroup(a.GroupID, a.ContextID)
		return nil
	},

	"addFlowStage": func(m collab.Mutations, a mutationArgs) error {
		stage, err := decodeArg[model.FlowStageMarker]("value", a.Value)
		if err != nil {
			return err
		}
		return m.AddFlowStage(stage)
	},
	"updateFlowStage": func(m collab.Mutations, a mutationArgs) error {
		if a.Index == nil {
			return invalidArgs("index is required")
		}
		patch, err := decodeArg[model.FlowStagePatch]("patch", a.Patch)
		if err != nil {
			return err
		}
		return m.UpdateFlowStage(*a.Index, patch)
	},
	"deleteFlowStage": func(m collab.Mutations, a mutationArgs) error {
		if a.Index == nil {
			return invalidArgs("index is required")
		}
		m.DeleteFlowStage(*a.Index)
		return nil
	},

	"addUser":    add(collab.Mutations.AddUser),
	"updateUser": update(collab.Mutations.UpdateUser),
	"deleteUser": byID(collab.Mutations.DeleteUser),

	"addUserNeed":    add(collab.Mutations.AddUserNeed),
	"updateUserNeed": update(collab.Mutations.UpdateUserNeed),
	"deleteUserNeed": byID(collab.Mutations.DeleteUserNeed),

	"addTeam":    add(collab.Mutations.AddTeam),
	"updateTeam": update(collab.Mutations.UpdateTeam),
	"deleteTeam": byID(collab.Mutations.DeleteTeam),

	"addRepo":    add(collab.Mutations.AddRepo),
	"updateRepo": update(collab.Mutations.UpdateRepo),
	"deleteRepo": byID(collab.Mutations.DeleteRepo),

	"addPerson":    add(collab.Mutations.AddPerson),
	"updatePerson": update(collab.Mutations.UpdatePerson),
	"deletePerson": byID(collab.Mutations.DeletePerson),

	"addUserNeedConnection":    add(collab.Mutations.AddUserNeedConnection),
	"updateUserNeedConnection": update(collab.Mutations.UpdateUserNeedConnection),
	"deleteUserNeedConnection": byID(collab.Mutations.DeleteUserNeedConnection),

	"addNeedContextConnection":    add(collab.Mutations.AddNeedContextConnection),
	"updateNeedContextConnection": update(collab.Mutations.UpdateNeedContextConnection),
	"deleteNeedContextConnection": byID(collab.Mutations.DeleteNeedContextConnection),

	"addKeyframe":    add(collab.Mutations.AddKeyframe),
	"updateKeyframe": update(collab.Mutations.UpdateKeyframe),
	"deleteKeyframe": byID(collab.Mutations.DeleteKeyframe),
	"updateKeyframeContextPosition": func(m collab.Mutations, a mutationArgs) error {
		if a.KeyframeID == "" || a.ContextID == "" {
			return invalidArgs("keyframeId and contextId are required")
		}
		point, err := decodeArg[model.Point]("value", a.Value)
		if err != nil {
			return err
		}
		m.UpdateKeyframeContextPosition(a.KeyframeID, a.ContextID, point)
		return nil
	},
	"toggleTemporalMode": func(m collab.Mutations, a mutationArgs) error {
		if a.Enabled == nil {
			return invalidArgs("enabled is required")
		}
		m.ToggleTemporalMode(*a.Enabled)
		return nil
	},
}

// dispatchMutation decodes args for op and runs it against m.
func dispatchMutation(m collab.Mutations, op string, args []byte) error {
	fn, ok := mutations[op]
	if !ok {
		return domainError(http.StatusBadRequest, "UNKNOWN_MUTATION", "Unknown mutation", map[string]any{"op": op})
	}
	var a mutationArgs
	if len(bytes.TrimSpace(args)) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return invalidArgs("args must be an object")
		}
	}
	return fn(m, a)
}

// MutationNames lists the supported ops in sorted order.
func MutationNames() []string {
	names := make([]string, 0, len(mutations))
	for name := range mutations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func add[T any](fn func(collab.Mutations, T)) mutation {
	return func(m collab.Mutations, a mutationArgs) error {
		entity, err := decodeEntity[T](a.Value)
		if err != nil {
			return err
		}
		fn(m, entity)
		return nil
	}
}

func update[P any](fn func(collab.Mutations, string, P)) mutation {
	return func(m collab.Mutations, a mutationArgs) error {
		if a.ID == "" {
			return invalidArgs("id is required")
		}
		patch, err := decodeArg[P]("patch", a.Patch)
		if err != nil {
			return err
		}
		fn(m, a.ID, patch)
		return nil
	}
}

// byID adapts a mutation whose only argument is an entity id.
func byID(fn func(collab.Mutations, string)) mutation {
	return func(m collab.Mutations, a mutationArgs) error {
		if a.ID == "" {
			return invalidArgs("id is required")
		}
		fn(m, a.ID)
		return nil
	}
}

func decodeArg[T any](field string, raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, invalidArgs(field + " is required")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, invalidArgs(field + " is malformed")
	}
	return out, nil
}

// decodeEntity decodes an entity that must carry a non-empty id.
func decodeEntity[T any](raw json.RawMessage) (T, error) {
	out, err := decodeArg[T]("value", raw)
	if err != nil {
		return out, err
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.ID == "" {
		return out, invalidArgs("value.id is required")
	}
	return out, nil
}
