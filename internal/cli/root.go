// Package cli provides the command-line interface for leapstyle.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/leapstyle/internal/cli/commands"
	"github.com/leapstack-labs/leapstyle/internal/cli/config"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	runOpts := &commands.RunOptions{}

	rootCmd := &cobra.Command{
		Use:   "leapstyle [task...]",
		Short: "leapstyle - stylesheet build runner",
		Long: `leapstyle compiles SCSS and Sass stylesheets into CSS.

Builds are described as named tasks. A build task reads a glob of stylesheets
and writes mirrored .css files under a destination directory; a composite task
runs other tasks in series or in parallel. Running leapstyle without a task
name runs the "default" task.`,
		Example: `  # Build everything
  leapstyle

  # Build one task
  leapstyle page-sass

  # Rebuild on change
  leapstyle watch`,
		Version:           Version,
		Args:              cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger, err := cfg.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = context.WithValue(ctx, configKey{}, cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", slog.String("path", configFile))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunTasks(cmd, args, runOpts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./leapstyle.yaml, searched upward)")
	pf.String("state", "", "Path to the build history database")
	pf.Bool("no-state", false, "Do not record build history")
	pf.String("backend", "", "Stylesheet compiler backend (dart-sass|esbuild)")
	pf.Bool("minify", false, "Minify compiled CSS")
	pf.Bool("fail-on-error", false, "Exit non-zero when any stylesheet fails to compile")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (text|json)")
	pf.BoolP("verbose", "v", false, "Verbose output (debug logging)")
	pf.StringP("output", "o", "", "Output format (auto|text|json)")

	rootCmd.Flags().BoolVar(&runOpts.DryRun, "dry-run", false, "Print the execution plan without building")

	// Register completion for enum flags
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dart-sass", "esbuild"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	// Return default config if none in context
	return config.DefaultConfig()
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapstyle.

To load completions:

Bash:
  $ source <(leapstyle completion bash)

Zsh:
  $ leapstyle completion zsh > "${fpath[1]}/_leapstyle"

Fish:
  $ leapstyle completion fish | source

PowerShell:
  PS> leapstyle completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
