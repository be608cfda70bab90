package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/leapstack-labs/leapstyle/internal/cli/config"
	"github.com/leapstack-labs/leapstyle/internal/cli/output"
	"github.com/leapstack-labs/leapstyle/internal/engine"
	"github.com/leapstack-labs/leapstyle/internal/sass"
	"github.com/leapstack-labs/leapstyle/internal/task"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close engine", slog.Any("error", err))
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't build anything.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when the
// root command did not load one.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg := config.DefaultConfig()
	if cwd, err := os.Getwd(); err == nil {
		cfg.ProjectRoot = cwd
	}
	cfg.StatePath = ""
	return cfg
}

// engineConfig converts CLI configuration to engine configuration.
func engineConfig(cfg *config.Config, logger *slog.Logger) (engine.Config, error) {
	style, err := sass.ParseOutputStyle(cfg.Compiler.OutputStyle)
	if err != nil {
		return engine.Config{}, err
	}

	names := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	tasks := make([]engine.TaskConfig, 0, len(names))
	for _, name := range names {
		def := cfg.Tasks[name]
		mode, err := task.ParseMode(def.Mode)
		if err != nil {
			return engine.Config{}, fmt.Errorf("task %s: %w", name, err)
		}
		tasks = append(tasks, engine.TaskConfig{
			Name:        name,
			Description: def.Description,
			Src:         def.Src,
			Dest:        def.Dest,
			Depends:     def.Depends,
			Mode:        mode,
			Minify:      def.Minify,
		})
	}

	return engine.Config{
		Root:  cfg.ProjectRoot,
		Tasks: tasks,
		Compiler: sass.Options{
			Backend:      cfg.Compiler.Backend,
			Binary:       cfg.Compiler.Binary,
			OutputStyle:  style,
			IncludePaths: cfg.Compiler.IncludePaths,
			Timeout:      cfg.Compiler.Timeout,
			SourceMap:    cfg.Compiler.SourceMap,
		},
		Minify:    cfg.Compiler.Minify,
		StatePath: cfg.StatePath,
		Logger:    logger,
	}, nil
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	engineCfg, err := engineConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine.New(engineCfg)
}

// displayPath shortens p relative to the project root for output.
func displayPath(cfg *config.Config, p string) string {
	if cfg.ProjectRoot == "" || p == "" {
		return p
	}
	rel, err := filepath.Rel(cfg.ProjectRoot, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}
