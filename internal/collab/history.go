package collab

import (
	"log/slog"
	"reflect"
	"strings"

	"github.com/brunoga/deep/v3"

	"contextflow/api/internal/logger"
	"contextflow/api/internal/schema"
)

// maxUndoSteps bounds the local history; the oldest step goes first.
const maxUndoSteps = 200

// step is one local edit: the tree on either side of it and the paths
// remote merges have changed since it was recorded.
type step struct {
	before schema.Tree
	after  schema.Tree
	remote map[string]struct{}
}

// history tracks local edits only. Remote merges never become steps; the
// paths they touch are kept out of every pending undo and redo.
type history struct {
	undoStack []*step
	redoStack []*step
	limit     int
}

func newHistory(limit int) *history {
	return &history{limit: limit}
}

// record pushes a local edit and forgets everything that could be redone.
func (h *history) record(before, after schema.Tree) {
	h.undoStack = append(h.undoStack, &step{before: before, after: after, remote: map[string]struct{}{}})
	if len(h.undoStack) > h.limit {
		h.undoStack = h.undoStack[len(h.undoStack)-h.limit:]
	}
	h.redoStack = nil
}

func (h *history) touched(paths []string) {
	for _, stack := range [][]*step{h.undoStack, h.redoStack} {
		for _, st := range stack {
			for _, p := range paths {
				st.remote[p] = struct{}{}
			}
		}
	}
}

func (h *history) canUndo() bool { return len(h.undoStack) > 0 }
func (h *history) canRedo() bool { return len(h.redoStack) > 0 }

func (h *history) clear() {
	h.undoStack, h.redoStack = nil, nil
}

// undo reverts the newest step as a new local edit and reports whether the
// document changed.
func (h *history) undo(doc *schema.Doc, log *slog.Logger) bool {
	if len(h.undoStack) == 0 {
		return false
	}
	st := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	h.redoStack = append(h.redoStack, st)
	return rewind(doc, st.after, st.before, st.remote, log)
}

func (h *history) redo(doc *schema.Doc, log *slog.Logger) bool {
	if len(h.redoStack) == 0 {
		return false
	}
	st := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	h.undoStack = append(h.undoStack, st)
	return rewind(doc, st.before, st.after, st.remote, log)
}

// rewind moves the document from one side of a step to the other. When
// nothing else changed the document in between, the target tree is restored
// exactly. Otherwise the difference between the two sides is replayed onto
// the current tree, skipping every path a remote merge has touched.
func rewind(doc *schema.Doc, from, to schema.Tree, remote map[string]struct{}, log *slog.Logger) bool {
	delta := doc.Edit(func(t *schema.Tree) {
		if deep.Equal(*t, from) {
			*t = deep.MustCopy(to)
			return
		}
		patch := deep.Diff(from, to)
		if patch == nil {
			return
		}
		if err := patch.ApplyResolved(t, keepRemote(remote)); err != nil {
			log.Warn("history step partly applied", logger.Error(err))
		}
	})
	return delta.Patch != nil
}

// keepRemote rejects operations on paths a remote merge has changed and on
// anything below them. Removing an entity a remote replica edited inside
// still goes through.
type keepRemote map[string]struct{}

func (k keepRemote) Resolve(path string, _ deep.OpKind, _, _ any, _ reflect.Value) bool {
	for p := range k {
		if within(path, p) {
			return false
		}
	}
	return true
}

func within(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}
