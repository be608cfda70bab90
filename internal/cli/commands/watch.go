package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [task]",
		Short: "Build, then rebuild when stylesheets change",
		Long: `Run a task once, then watch the source directories of every build task it
reaches and rebuild the affected task when files change. Stops on Ctrl-C.`,
		Example: `  # Watch everything
  leapstyle watch

  # Watch only the page stylesheets
  leapstyle watch page-sass --debounce 500ms`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeTaskNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			if !cmd.Flags().Changed("debounce") {
				debounce = cmdCtx.Cfg.Watch.Debounce
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmdCtx.Logger.Info("watching for changes", slog.String("task", name), slog.Duration("debounce", debounce))
			return cmdCtx.Engine.Watch(ctx, name, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Wait this long for changes to settle before rebuilding")

	return cmd
}
