package commands

import (
	"strings"

	"github.com/leapstack-labs/leapstyle/internal/cli/output"
	"github.com/leapstack-labs/leapstyle/internal/engine"
	"github.com/leapstack-labs/leapstyle/internal/task"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with their sources, destinations and dependencies",
		Long: `List every configured task. Build tasks show the glob they read and the
directory they write; composite tasks show their dependencies and whether
those run in series or in parallel.

Use --output json for machine-readable output.`,
		Example: `  # List tasks
  leapstyle list

  # List tasks as JSON
  leapstyle list --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	tasks, err := taskInfos(eng)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(output.ListOutput{Tasks: tasks})
	}

	rows := make([][]any, 0, len(tasks))
	for _, t := range tasks {
		name := t.Name
		if t.Default {
			name += " *"
		}
		rows = append(rows, []any{name, t.Src, t.Dest, strings.Join(t.Depends, ", "), t.Mode, t.Description})
	}
	r.Table([]string{"Task", "Src", "Dest", "Depends", "Mode", "Description"}, rows)
	return nil
}

func taskInfos(eng *engine.Engine) ([]output.TaskInfo, error) {
	reg := eng.Registry()
	names := reg.Names()
	infos := make([]output.TaskInfo, 0, len(names))
	for _, name := range names {
		t, err := reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		info := output.TaskInfo{
			Name:        name,
			Description: t.Description,
			Depends:     t.Deps,
			Default:     name == task.DefaultTask,
		}
		if len(t.Deps) > 0 {
			info.Mode = t.Mode.String()
		}
		if g, ok := eng.Group(name); ok {
			info.Src = g.Src
			info.Dest = g.Dest
		}
		infos = append(infos, info)
	}
	return infos, nil
}
