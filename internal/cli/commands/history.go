package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapstyle/internal/cli/output"
	"github.com/leapstack-labs/leapstyle/internal/state"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent builds",
		Long: `Show recent builds recorded in the state database, newest first.
Use --run to list the files of one build.`,
		Example: `  # Last 10 builds
  leapstyle history

  # Files compiled by one build
  leapstyle history --run 7f9c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			store, err := cmdCtx.Engine.Store()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("build history is disabled (state_path is empty or --no-state was given)")
			}
			logStore(cmdCtx.Logger, store)
			if runID != "" {
				return renderRunFiles(cmdCtx, store, runID)
			}
			return renderHistory(cmdCtx, store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of builds to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the files of one build")

	return cmd
}

// logStore reports where history is read from and its schema version.
func logStore(logger *slog.Logger, store state.Store) {
	version, err := store.SchemaVersion()
	if err != nil {
		logger.Warn("failed to read state schema version", slog.Any("error", err))
		return
	}
	logger.Debug("reading build history",
		slog.String("path", store.Path()),
		slog.Int64("schema_version", version))
}

func renderHistory(cmdCtx *CommandContext, store state.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list builds: %w", err)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		entries := make([]output.HistoryEntry, 0, len(runs))
		for _, run := range runs {
			entry := output.HistoryEntry{
				ID:        run.ID,
				Tasks:     run.Tasks,
				Status:    string(run.Status),
				StartedAt: run.StartedAt.Format(time.RFC3339),
				Compiled:  run.Compiled,
				Unchanged: run.Unchanged,
				Failed:    run.Failed,
				Error:     run.Error,
			}
			if run.CompletedAt != nil {
				entry.CompletedAt = run.CompletedAt.Format(time.RFC3339)
			}
			entries = append(entries, entry)
		}
		return r.JSON(entries)
	}

	if len(runs) == 0 {
		r.Println("No builds recorded yet")
		return nil
	}

	rows := make([][]any, 0, len(runs))
	for _, run := range runs {
		duration := ""
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []any{
			run.ID,
			strings.Join(run.Tasks, ", "),
			string(run.Status),
			run.StartedAt.Local().Format(time.DateTime),
			duration,
			run.Compiled,
			run.Unchanged,
			run.Failed,
		})
	}
	r.Table([]string{"Run", "Tasks", "Status", "Started", "Duration", "Compiled", "Unchanged", "Failed"}, rows)
	return nil
}

func renderRunFiles(cmdCtx *CommandContext, store state.Store, runID string) error {
	if _, err := store.GetRun(runID); err != nil {
		return err
	}
	files, err := store.FilesForRun(runID)
	if err != nil {
		return fmt.Errorf("failed to list files for run %s: %w", runID, err)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]output.FileInfo, 0, len(files))
		for _, f := range files {
			infos = append(infos, output.FileInfo{
				Task:   f.Task,
				Source: displayPath(cmdCtx.Cfg, f.Source),
				Output: displayPath(cmdCtx.Cfg, f.Output),
				Status: f.Status,
				Error:  f.Error,
			})
		}
		return r.JSON(infos)
	}

	for _, f := range files {
		r.StatusLine(displayPath(cmdCtx.Cfg, f.Source), f.Status, f.Error)
	}
	return nil
}
