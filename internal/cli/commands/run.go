package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapstyle/internal/cli/output"
	"github.com/leapstack-labs/leapstyle/internal/engine"
	"github.com/leapstack-labs/leapstyle/internal/pipeline"
	"github.com/leapstack-labs/leapstyle/internal/task"
	"github.com/spf13/cobra"
)

// ErrCompileFailed is returned with --fail-on-error when any stylesheet failed.
var ErrCompileFailed = errors.New("stylesheets failed to compile")

// RunOptions holds options for the run command.
type RunOptions struct {
	DryRun bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run build tasks",
		Long: `Run the named tasks after their dependencies. With no task names the
"default" task runs.

Stylesheets that fail to compile are logged and skipped; the remaining files
are still written. Pass --fail-on-error to exit non-zero in that case.`,
		Example: `  # Build everything
  leapstyle run

  # Build only the page stylesheets
  leapstyle run page-sass

  # Show what would run
  leapstyle run --dry-run`,
		Aliases:           []string{"build"},
		ValidArgsFunction: completeTaskNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunTasks(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the execution plan without building")

	return cmd
}

// RunTasks builds the named tasks and renders the outcome. The root command
// delegates here.
func RunTasks(cmd *cobra.Command, names []string, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts != nil && opts.DryRun {
		return renderPlan(cmdCtx, names)
	}

	start := time.Now()
	report, runErr := cmdCtx.Engine.Run(cmd.Context(), names)
	if report == nil {
		return runErr
	}

	if cmdCtx.Renderer.EffectiveMode() == output.ModeJSON {
		if err := cmdCtx.Renderer.JSON(runOutput(cmdCtx, report, runErr, time.Since(start))); err != nil {
			return err
		}
	} else {
		renderRunText(cmdCtx, report, time.Since(start))
	}

	if runErr != nil {
		return runErr
	}
	if failed := report.Failed(); failed > 0 && cmdCtx.Cfg.FailOnError {
		return fmt.Errorf("%w: %d file(s)", ErrCompileFailed, failed)
	}
	return nil
}

func renderPlan(cmdCtx *CommandContext, names []string) error {
	if len(names) == 0 {
		names = []string{task.DefaultTask}
	}
	r := cmdCtx.Renderer

	plans := make([]output.PlanOutput, 0, len(names))
	for _, name := range names {
		levels, err := cmdCtx.Engine.Plan(name)
		if err != nil {
			return err
		}
		plans = append(plans, output.PlanOutput{Tasks: []string{name}, Levels: levels})
	}

	if r.EffectiveMode() == output.ModeJSON {
		if len(plans) == 1 {
			return r.JSON(plans[0])
		}
		return r.JSON(plans)
	}

	for _, plan := range plans {
		r.Header(fmt.Sprintf("Plan for %s", plan.Tasks[0]))
		for i, level := range plan.Levels {
			r.Printf("  %d. %s\n", i+1, strings.Join(level, ", "))
		}
	}
	return nil
}

func renderRunText(cmdCtx *CommandContext, report *engine.Report, elapsed time.Duration) {
	r := cmdCtx.Renderer
	for _, res := range report.Results {
		r.Header(res.Task)
		if len(res.Files) == 0 {
			r.Println(r.Styles().Muted.Render("  no stylesheets matched"))
			continue
		}
		for _, f := range res.Files {
			detail := ""
			if f.Err != nil {
				detail = f.Err.Error()
			}
			r.StatusLine(displayPath(cmdCtx.Cfg, fileLabel(f)), string(f.Status), detail)
		}
	}

	summary := fmt.Sprintf("%d compiled, %d unchanged, %d failed in %s",
		report.Count(pipeline.StatusCompiled),
		report.Count(pipeline.StatusUnchanged),
		report.Failed(),
		elapsed.Round(time.Millisecond))
	if report.Failed() > 0 {
		r.Warning(summary)
	} else {
		r.Success(summary)
	}
	if report.RunID != "" {
		r.Println(r.Styles().Muted.Render("run " + report.RunID))
	}
}

func fileLabel(f pipeline.FileResult) string {
	if f.Status == pipeline.StatusFailed {
		return f.Source
	}
	return f.Output
}

func runOutput(cmdCtx *CommandContext, report *engine.Report, runErr error, elapsed time.Duration) output.RunOutput {
	out := output.RunOutput{
		RunID:  report.RunID,
		Tasks:  report.Tasks,
		Status: "completed",
		Files:  []output.FileInfo{},
		Summary: output.RunSummary{
			Compiled:  report.Count(pipeline.StatusCompiled),
			Unchanged: report.Count(pipeline.StatusUnchanged),
			Failed:    report.Failed(),
			TotalMS:   elapsed.Milliseconds(),
		},
	}
	for _, res := range report.Results {
		for _, f := range res.Files {
			info := output.FileInfo{
				Task:   res.Task,
				Source: displayPath(cmdCtx.Cfg, f.Source),
				Output: displayPath(cmdCtx.Cfg, f.Output),
				Status: string(f.Status),
			}
			if f.Err != nil {
				info.Error = f.Err.Error()
			}
			out.Files = append(out.Files, info)
		}
	}
	switch {
	case runErr != nil:
		out.Status = "failed"
		out.Error = runErr.Error()
	case out.Summary.Failed > 0:
		out.Status = "partial"
	}
	return out
}

// completeTaskNames offers configured task names for shell completion.
func completeTaskNames(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	cfg := getConfig()
	names := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		names = append(names, name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
