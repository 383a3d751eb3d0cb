package collab

import (
	"log/slog"
	"sync"

	"contextflow/api/internal/logger"
	"contextflow/api/internal/metrics"
	"contextflow/api/internal/model"
	"contextflow/api/internal/schema"
)

type ControllerOptions struct {
	Logger      *slog.Logger
	Diagnostics Diagnostics
}

// Controller holds at most one live Store. It is the entry point the rest
// of the application uses for collaboration; every method is safe to call
// with no store installed.
type Controller struct {
	mu         sync.RWMutex
	store      *Store
	generation uint64
	opts       ControllerOptions
	log        *slog.Logger
}

func NewController(opts ControllerOptions) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Controller{opts: opts, log: log.With(logger.Scope("collab.controller"))}
}

// UndoRedo is the undo state of the active store. CanUndo and CanRedo are
// nil while no store is installed.
type UndoRedo struct {
	CanUndo *bool
	CanRedo *bool
	Undo    func()
	Redo    func()
}

// Initialize validates p and replaces any installed store with a new one
// built from it. An invalid project leaves the current store in place.
func (c *Controller) Initialize(p model.Project, opts Options) error {
	if err := model.Validate(p); err != nil {
		return err
	}
	return c.install(opts, func(o Options) (*Store, error) {
		return New(p, o)
	})
}

// Attach installs a store around an existing shared document, for joining a
// session someone else started.
func (c *Controller) Attach(doc *schema.Doc, opts Options) error {
	return c.install(opts, func(o Options) (*Store, error) {
		s, err := Attach(doc, o)
		if err != nil {
			return nil, err
		}
		if err := model.Validate(s.Snapshot()); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	})
}

func (c *Controller) install(opts Options, build func(Options) (*Store, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.generation + 1
	guarded := c.guard(gen, opts)
	s, err := build(guarded)
	if err != nil {
		return err
	}
	c.closeLocked()
	c.store = s
	c.generation = gen
	metrics.ActiveSessions.Inc()
	c.log.Info("collaborative session started", slog.String("project_id", s.Snapshot().ID))
	return nil
}

// guard wraps the callbacks so they fire only while the store built for
// generation gen is still the installed one.
func (c *Controller) guard(gen uint64, opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = c.opts.Logger
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = c.opts.Diagnostics
	}
	if onChange := opts.OnProjectChange; onChange != nil {
		opts.OnProjectChange = func(p model.Project) {
			if c.current(gen) {
				onChange(p)
			}
		}
	}
	if onUpdate := opts.OnUpdate; onUpdate != nil {
		opts.OnUpdate = func(u schema.Update) {
			if c.current(gen) {
				onUpdate(u)
			}
		}
	}
	return opts
}

func (c *Controller) current(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store != nil && c.generation == gen
}

// Destroy releases the installed store, its document and history.
func (c *Controller) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.generation++
}

func (c *Controller) closeLocked() {
	if c.store == nil {
		return
	}
	c.store.Close()
	c.store = nil
	metrics.ActiveSessions.Dec()
	c.log.Info("collaborative session closed")
}

func (c *Controller) IsActive() bool {
	return c.active() != nil
}

func (c *Controller) active() *Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Mutations returns the edit surface. Calls made while no store is
// installed do nothing.
func (c *Controller) Mutations() Mutations {
	return facade{c: c}
}

func (c *Controller) UndoRedo() UndoRedo {
	ur := UndoRedo{
		Undo: func() {
			if s := c.active(); s != nil {
				s.Undo()
			}
		},
		Redo: func() {
			if s := c.active(); s != nil {
				s.Redo()
			}
		},
	}
	if s := c.active(); s != nil {
		canUndo, canRedo := s.CanUndo(), s.CanRedo()
		ur.CanUndo, ur.CanRedo = &canUndo, &canRedo
	}
	return ur
}

func (c *Controller) Snapshot() (model.Project, bool) {
	s := c.active()
	if s == nil {
		return model.Project{}, false
	}
	return s.Snapshot(), true
}

func (c *Controller) ApplyRemoteUpdate(update schema.Update) {
	if s := c.active(); s != nil {
		s.ApplyRemoteUpdate(update)
	}
}

func (c *Controller) EncodeState() (schema.Update, bool) {
	s := c.active()
	if s == nil {
		return schema.Update{}, false
	}
	state, err := s.EncodeState()
	if err != nil {
		return schema.Update{}, false
	}
	return state, true
}
