// Package collab owns the live replicated document of the active project.
// Store exposes one method per logical edit; each runs as a single
// document edit, produces one undo step and delivers one fresh snapshot.
// Controller installs and tears down stores.
package collab

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"contextflow/api/internal/logger"
	"contextflow/api/internal/metrics"
	"contextflow/api/internal/model"
	"contextflow/api/internal/schema"
)

type ValidationError = model.ValidationError

var ErrClosed = errors.New("store closed")

// Diagnostics receives mutations that were skipped because their target
// does not exist. Remote deletes racing local edits land here, as do
// callers holding stale ids.
type Diagnostics interface {
	MissingEntity(op, kind, id string)
}

type Options struct {
	// OnProjectChange receives the snapshot after every edit that changed
	// the document: local mutations, undo, redo and remote updates.
	// Snapshots arrive in the order the edits were committed.
	OnProjectChange func(model.Project)
	// OnUpdate receives the document state after every local edit.
	OnUpdate func(schema.Update)
	// NodeID names this replica in document clocks. A random id is used
	// when empty.
	NodeID      string
	Logger      *slog.Logger
	Diagnostics Diagnostics
}

type Store struct {
	// deliverMu is held from commit until the callbacks return so
	// concurrent edits are observed in commit order.
	deliverMu sync.Mutex
	mu        sync.Mutex
	doc       *schema.Doc
	history   *history
	opts      Options
	log       *slog.Logger

	tree     schema.Tree
	snapshot model.Project
	closed   bool
}

// New builds a store around a fresh document holding p.
func New(p model.Project, opts Options) (*Store, error) {
	if opts.NodeID == "" {
		opts.NodeID = uuid.NewString()
	}
	return Attach(schema.ProjectToDoc(p, opts.NodeID), opts)
}

// Attach builds a store around an existing document, typically one rebuilt
// from a shared session. The store takes ownership of doc.
func Attach(doc *schema.Doc, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	tree := doc.View()
	s := &Store{
		doc:      doc,
		history:  newHistory(maxUndoSteps),
		opts:     opts,
		tree:     tree,
		snapshot: tree.Project(),
	}
	s.log = log.With(logger.Scope("collab"), slog.String("project_id", s.snapshot.ID))
	if s.opts.Diagnostics == nil {
		s.opts.Diagnostics = logDiagnostics{log: s.log}
	}
	return s, nil
}

// change is what one committed edit hands to the callbacks.
type change struct {
	project model.Project
	update  *schema.Update
}

// commit runs fn under the lock. fn reports whether it changed the
// document; if so the snapshot is rebuilt and delivered before the next
// commit may start. Callbacks may read from the store but must not edit it.
func (s *Store) commit(op string, local bool, fn func() bool) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed || !fn() {
		s.mu.Unlock()
		return
	}
	c := s.refresh(local)
	s.mu.Unlock()

	if op != "" {
		metrics.Mutations.WithLabelValues(op).Inc()
	}
	if c.update != nil {
		s.opts.OnUpdate(*c.update)
	}
	if s.opts.OnProjectChange != nil {
		s.opts.OnProjectChange(c.project)
	}
}

func (s *Store) refresh(local bool) change {
	s.tree = s.doc.View()
	s.snapshot = s.tree.Project()
	c := change{project: s.snapshot}
	if local && s.opts.OnUpdate != nil {
		u, err := schema.EncodeState(s.doc)
		if err != nil {
			s.log.Error("encode document state", logger.Error(err))
		} else {
			c.update = &u
		}
	}
	return c
}

// edit runs fn against a working copy of the tree as one local, undoable
// change. Leaving the copy untouched commits nothing.
func (s *Store) edit(op string, fn func(t *schema.Tree)) {
	s.commit(op, true, func() bool {
		before := s.tree
		if s.doc.Edit(fn).Patch == nil {
			return false
		}
		s.history.record(before, s.doc.View())
		return true
	})
}

func (s *Store) missing(op, kind, id string) {
	s.opts.Diagnostics.MissingEntity(op, kind, id)
}

// ApplyRemoteUpdate merges the state of another replica. It notifies like a
// local edit but never enters the undo history; paths it changes are left
// alone by later undo and redo.
func (s *Store) ApplyRemoteUpdate(update schema.Update) {
	s.commit("", false, func() bool {
		paths, err := schema.Merge(s.doc, update)
		if err != nil {
			s.log.Warn("remote update rejected", logger.Error(err))
			return false
		}
		if len(paths) == 0 {
			return false
		}
		s.history.touched(paths)
		return true
	})
	metrics.RemoteUpdates.Inc()
}

// EncodeState returns the full document state for a joining replica.
func (s *Store) EncodeState() (schema.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return schema.Update{}, ErrClosed
	}
	return schema.EncodeState(s.doc)
}

func (s *Store) Snapshot() model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Store) Undo() {
	s.commit("", true, func() bool {
		if !s.history.undo(s.doc, s.log) {
			return false
		}
		metrics.History.WithLabelValues("undo").Inc()
		return true
	})
}

func (s *Store) Redo() {
	s.commit("", true, func() bool {
		if !s.history.redo(s.doc, s.log) {
			return false
		}
		metrics.History.WithLabelValues("redo").Inc()
		return true
	})
}

func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.history.canUndo()
}

func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.history.canRedo()
}

func (s *Store) UndoDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history.undoStack)
}

func (s *Store) RedoDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history.redoStack)
}

// Close releases the document and its history. Later calls on the store do
// nothing.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.history.clear()
	s.doc = nil
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type logDiagnostics struct {
	log *slog.Logger
}

func (d logDiagnostics) MissingEntity(op, kind, id string) {
	metrics.MissingEntities.WithLabelValues(op, kind).Inc()
	d.log.Debug("mutation skipped, entity not found",
		slog.String("op", op), slog.String("kind", kind), slog.String("id", id))
}
