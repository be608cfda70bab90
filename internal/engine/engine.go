// Package engine wires configured tasks into a runnable build: it owns the
// stylesheet compiler, the task registry, the asset groups and the optional
// build history store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapstyle/internal/pipeline"
	"github.com/leapstack-labs/leapstyle/internal/sass"
	"github.com/leapstack-labs/leapstyle/internal/state"
	"github.com/leapstack-labs/leapstyle/internal/task"
)

// TaskConfig describes one task. A task with Src is a build task; a task
// without Src only runs its dependencies.
type TaskConfig struct {
	Name        string
	Description string
	Src         string
	Dest        string
	Depends     []string
	Mode        task.Mode
	// Minify overrides Config.Minify for this task when set.
	Minify *bool
}

// CompilerFactory starts a compiler. Tests substitute fakes.
type CompilerFactory func(opts sass.Options, logger *slog.Logger) (sass.Compiler, error)

// Config holds engine configuration.
type Config struct {
	// Root anchors relative globs and destinations.
	Root     string
	Tasks    []TaskConfig
	Compiler sass.Options
	// Minify runs esbuild's minifier over compiled CSS.
	Minify bool
	// StatePath is the build history database. Empty disables history.
	StatePath string
	Logger    *slog.Logger

	NewCompiler CompilerFactory
}

// Engine runs build tasks.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	registry *task.Registry
	groups   map[string]*pipeline.Group
	store    state.Store

	compilerOnce sync.Once
	compiler     sass.Compiler
	compilerErr  error

	storeOnce sync.Once
	storeErr  error

	resultsMu sync.Mutex
	results   []*pipeline.Result
}

// New builds the task registry from cfg. The compiler is started on the
// first build and the history store is opened on first use.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.NewCompiler == nil {
		cfg.NewCompiler = sass.New
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: task.NewRegistry(logger),
		groups:   make(map[string]*pipeline.Group),
	}

	for _, tc := range cfg.Tasks {
		if err := e.register(tc); err != nil {
			return nil, err
		}
	}
	if err := e.registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task configuration: %w", err)
	}

	logger.Debug("initialized engine", slog.Int("tasks", len(cfg.Tasks)), slog.String("root", cfg.Root))
	return e, nil
}

func (e *Engine) register(tc TaskConfig) error {
	opts := []task.Option{task.WithMode(tc.Mode)}
	if tc.Description != "" {
		opts = append(opts, task.WithDescription(tc.Description))
	}

	if tc.Src == "" {
		if len(tc.Depends) == 0 {
			return fmt.Errorf("task %s: needs src or depends", tc.Name)
		}
		return e.registry.Register(tc.Name, tc.Depends, nil, opts...)
	}
	if tc.Dest == "" {
		return fmt.Errorf("task %s: dest is required when src is set", tc.Name)
	}

	group := &pipeline.Group{
		Name:   tc.Name,
		Src:    tc.Src,
		Dest:   tc.Dest,
		Root:   e.cfg.Root,
		Logger: e.logger,
	}
	minify := e.cfg.Minify
	if tc.Minify != nil {
		minify = *tc.Minify
	}
	switch {
	case minify && e.cfg.Compiler.SourceMap:
		// Post-processing invalidates the compiler's source map.
		e.logger.Warn("minify is ignored when source maps are enabled; use output_style compressed instead",
			slog.String("task", tc.Name))
	case minify:
		group.Post = []sass.PostProcessor{sass.Minifier{}}
	}
	e.groups[tc.Name] = group

	if tc.Description == "" {
		opts = append(opts, task.WithDescription(fmt.Sprintf("compile %s -> %s", tc.Src, tc.Dest)))
	}
	return e.registry.Register(tc.Name, tc.Depends, e.buildAction(group), opts...)
}

func (e *Engine) buildAction(g *pipeline.Group) task.Action {
	return func(ctx context.Context) error {
		compiler, err := e.ensureCompiler()
		if err != nil {
			return err
		}
		g.Compiler = compiler

		res, err := g.Build(ctx)
		if res != nil {
			e.resultsMu.Lock()
			e.results = append(e.results, res)
			e.resultsMu.Unlock()
		}
		return err
	}
}

func (e *Engine) ensureCompiler() (sass.Compiler, error) {
	e.compilerOnce.Do(func() {
		e.compiler, e.compilerErr = e.cfg.NewCompiler(e.cfg.Compiler, e.logger)
	})
	return e.compiler, e.compilerErr
}

// Registry exposes the task registry.
func (e *Engine) Registry() *task.Registry {
	return e.registry
}

// Store opens the history store on first call. It returns nil and no error
// when history is disabled.
func (e *Engine) Store() (state.Store, error) {
	e.storeOnce.Do(func() {
		if e.cfg.StatePath == "" {
			return
		}
		store := state.NewSQLiteStore(e.logger)
		if err := store.Open(e.cfg.StatePath); err != nil {
			e.storeErr = fmt.Errorf("failed to open state store: %w", err)
			return
		}
		e.store = store
	})
	return e.store, e.storeErr
}

// Group returns the asset group behind a build task.
func (e *Engine) Group(name string) (*pipeline.Group, bool) {
	g, ok := e.groups[name]
	return g, ok
}

// Groups returns all asset groups sorted by name.
func (e *Engine) Groups() []*pipeline.Group {
	groups := make([]*pipeline.Group, 0, len(e.groups))
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// Plan returns the execution levels for a task.
func (e *Engine) Plan(name string) ([][]string, error) {
	return e.registry.Plan(name)
}

// Report is the outcome of one Run.
type Report struct {
	RunID   string
	Tasks   []string
	Results []*pipeline.Result
}

// Failed returns the number of files that failed to compile.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		n += res.Count(pipeline.StatusFailed)
	}
	return n
}

// Count returns the number of files with the given status across all groups.
func (r *Report) Count(status pipeline.FileStatus) int {
	n := 0
	for _, res := range r.Results {
		n += res.Count(status)
	}
	return n
}

// Run executes the named tasks in one invocation; no names selects the
// default task. Unknown names fail with task.ErrTaskNotFound before anything
// is built or recorded.
func (e *Engine) Run(ctx context.Context, names []string) (*Report, error) {
	if len(names) == 0 {
		names = []string{task.DefaultTask}
	}
	for _, name := range names {
		if _, err := e.registry.Lookup(name); err != nil {
			return nil, err
		}
	}

	e.resultsMu.Lock()
	e.results = nil
	e.resultsMu.Unlock()

	store, err := e.Store()
	if err != nil {
		return nil, err
	}

	report := &Report{Tasks: names}
	var runID string
	if store != nil {
		run, err := store.CreateRun(names)
		if err != nil {
			return nil, err
		}
		runID = run.ID
		report.RunID = runID
	}

	runErr := e.registry.RunAll(ctx, names)

	e.resultsMu.Lock()
	report.Results = append(report.Results, e.results...)
	e.resultsMu.Unlock()
	sort.Slice(report.Results, func(i, j int) bool { return report.Results[i].Task < report.Results[j].Task })

	if store != nil {
		if err := e.record(store, runID, report, runErr); err != nil {
			e.logger.Warn("failed to record build history", slog.Any("error", err))
		}
	}
	return report, runErr
}

func (e *Engine) record(store state.Store, runID string, report *Report, runErr error) error {
	var files []state.FileRecord
	for _, res := range report.Results {
		for _, f := range res.Files {
			rec := state.FileRecord{
				Task:   res.Task,
				Source: f.Source,
				Output: f.Output,
				Status: string(f.Status),
				Hash:   f.Hash,
			}
			if f.Err != nil {
				rec.Error = f.Err.Error()
			}
			files = append(files, rec)
		}
	}

	status := state.RunStatusCompleted
	errMsg := ""
	switch {
	case runErr != nil:
		status = state.RunStatusFailed
		errMsg = runErr.Error()
	case report.Failed() > 0:
		status = state.RunStatusPartial
	}

	return errors.Join(
		store.RecordFiles(runID, files),
		store.CompleteRun(runID, status, errMsg),
	)
}

// Close stops the compiler and closes the history store.
func (e *Engine) Close() error {
	var errs []error
	if e.compiler != nil {
		errs = append(errs, e.compiler.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
