// Package task implements the named task registry: build actions and the
// composite tasks that run them in series or in parallel.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapstyle/internal/dag"
	"golang.org/x/sync/errgroup"
)

// DefaultTask is run when no task name is given.
const DefaultTask = "default"

var (
	// ErrTaskNotFound is returned for names that are not registered.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask is returned when a name is registered twice.
	ErrDuplicateTask = errors.New("task already registered")
	// ErrCycle is returned when task dependencies form a cycle.
	ErrCycle = errors.New("task dependency cycle")
)

// Action is the work a task performs once its dependencies have finished.
type Action func(ctx context.Context) error

// Mode controls how a task's dependencies are run.
type Mode int

const (
	// Parallel runs dependencies concurrently with no ordering guarantee.
	Parallel Mode = iota
	// Series runs dependencies one after another in declaration order.
	Series
)

func (m Mode) String() string {
	if m == Series {
		return "series"
	}
	return "parallel"
}

// ParseMode maps a config value to a Mode. Empty selects Parallel.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "parallel":
		return Parallel, nil
	case "series":
		return Series, nil
	default:
		return Parallel, fmt.Errorf("unknown task mode %q (want series or parallel)", s)
	}
}

// Task is a registered entry.
type Task struct {
	Name        string
	Description string
	Deps        []string
	Mode        Mode
	Action      Action
}

// Option customises a task at registration.
type Option func(*Task)

// WithMode sets how dependencies are run.
func WithMode(m Mode) Option {
	return func(t *Task) { t.Mode = m }
}

// WithDescription sets the text shown by `list`.
func WithDescription(desc string) Option {
	return func(t *Task) { t.Description = desc }
}

// Registry maps task names to tasks. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		tasks:  make(map[string]*Task),
		logger: logger,
	}
}

// Register adds a task. deps may name tasks registered later; they are
// checked by Validate and Run. action may be nil for pure composites.
func (r *Registry) Register(name string, deps []string, action Action, opts ...Option) error {
	if name == "" {
		return errors.New("task name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}

	t := &Task{
		Name:   name,
		Deps:   append([]string(nil), deps...),
		Action: action,
	}
	for _, opt := range opts {
		opt(t)
	}
	r.tasks[name] = t
	return nil
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return t, nil
}

// Names returns the registered task names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graphLocked().Tasks()
}

// graphLocked builds the dependency graph, skipping edges to unknown tasks.
func (r *Registry) graphLocked() *dag.Graph {
	g := dag.NewGraph()
	for name := range r.tasks {
		g.AddTask(name)
	}
	for name, t := range r.tasks {
		for _, dep := range t.Deps {
			if g.HasTask(dep) && dep != name {
				_ = g.AddDependency(name, dep)
			}
		}
	}
	return g
}

// Graph returns the full dependency graph after validating it.
func (r *Registry) Graph() (*dag.Graph, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graphLocked(), nil
}

// Validate checks that every dependency exists and that there are no cycles.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.graphLocked().Tasks() {
		for _, dep := range r.tasks[name].Deps {
			if dep == name {
				return fmt.Errorf("%w: %s -> %s", ErrCycle, name, name)
			}
			if _, ok := r.tasks[dep]; !ok {
				return fmt.Errorf("%w: %s (dependency of %s)", ErrTaskNotFound, dep, name)
			}
		}
	}

	if cycle := r.graphLocked().FindCycle(); cycle != nil {
		return fmt.Errorf("%w: %w", ErrCycle, &dag.CycleError{Path: cycle})
	}
	return nil
}

// Plan returns the tasks reached from name grouped by execution level.
func (r *Registry) Plan(name string) ([][]string, error) {
	if name == "" {
		name = DefaultTask
	}
	if _, err := r.Lookup(name); err != nil {
		return nil, err
	}
	g, err := r.Graph()
	if err != nil {
		return nil, err
	}
	return g.Subgraph(g.Closure(name)).Levels()
}

// Run executes the named task after its dependencies. An empty name selects
// DefaultTask. The whole dependency closure is validated before any action
// starts, so an unknown name produces no side effects.
func (r *Registry) Run(ctx context.Context, name string) error {
	if name == "" {
		name = DefaultTask
	}
	if _, err := r.Lookup(name); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}

	inv := &invocation{registry: r, once: make(map[string]*onceResult)}
	return inv.run(ctx, name)
}

// RunAll runs several tasks in series within one invocation, so shared
// dependencies still run only once.
func (r *Registry) RunAll(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return r.Run(ctx, "")
	}
	for _, name := range names {
		if _, err := r.Lookup(name); err != nil {
			return err
		}
	}
	if err := r.Validate(); err != nil {
		return err
	}

	inv := &invocation{registry: r, once: make(map[string]*onceResult)}
	for _, name := range names {
		if err := inv.run(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

type onceResult struct {
	once sync.Once
	err  error
}

// invocation tracks which tasks already ran during one Run call.
type invocation struct {
	registry *Registry
	mu       sync.Mutex
	once     map[string]*onceResult
}

func (inv *invocation) run(ctx context.Context, name string) error {
	inv.mu.Lock()
	res, ok := inv.once[name]
	if !ok {
		res = &onceResult{}
		inv.once[name] = res
	}
	inv.mu.Unlock()

	res.once.Do(func() {
		res.err = inv.execute(ctx, name)
	})
	return res.err
}

func (inv *invocation) execute(ctx context.Context, name string) error {
	t, err := inv.registry.Lookup(name)
	if err != nil {
		return err
	}
	logger := inv.registry.logger.With(slog.String("task", name))

	if err := inv.runDeps(ctx, t); err != nil {
		return err
	}
	if t.Action == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Info("starting task")
	start := time.Now()
	if err := t.Action(ctx); err != nil {
		logger.Error("task failed", slog.Any("error", err))
		return fmt.Errorf("task %s: %w", name, err)
	}
	logger.Info("finished task", slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}

func (inv *invocation) runDeps(ctx context.Context, t *Task) error {
	if len(t.Deps) == 0 {
		return nil
	}

	if t.Mode == Series {
		for _, dep := range t.Deps {
			if err := inv.run(ctx, dep); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egctx := errgroup.WithContext(ctx)
	for _, dep := range t.Deps {
		eg.Go(func() error {
			return inv.run(egctx, dep)
		})
	}
	return eg.Wait()
}
