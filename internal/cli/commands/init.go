package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapstyle/internal/cli/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configHeader is written above the generated YAML.
const configHeader = `# leapstyle configuration.
#
# Each task under "tasks" either compiles a glob of stylesheets (src -> dest)
# or runs other tasks (depends, with mode series or parallel).
# Paths are relative to this file.
`

// scaffold is the file layout written by init. Durations are kept as
// strings so they read naturally in YAML.
type scaffold struct {
	Tasks    map[string]config.TaskDef `yaml:"tasks"`
	Compiler scaffoldCompiler          `yaml:"compiler"`
	Watch    scaffoldWatch             `yaml:"watch"`
	State    string                    `yaml:"state_path"`
	LogLevel string                    `yaml:"log_level"`
}

type scaffoldCompiler struct {
	Backend     string `yaml:"backend"`
	OutputStyle string `yaml:"output_style"`
	Timeout     string `yaml:"timeout"`
	Minify      bool   `yaml:"minify"`
	SourceMap   bool   `yaml:"source_map"`
}

type scaffoldWatch struct {
	Debounce string `yaml:"debounce"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a leapstyle.yaml with the default tasks",
		Long: `Write a leapstyle.yaml describing the stock tasks: the Unify core
stylesheets, the page stylesheets and the default task that builds both.`,
		Example: `  # Initialize in current directory
  leapstyle init

  # Force overwrite existing config
  leapstyle init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			cmdCtx := NewCommandContextWithoutEngine(cmd)

			path, err := writeConfigFile(dir, force)
			if err != nil {
				return err
			}
			cmdCtx.Renderer.StatusLine(path, "success", "")
			cmdCtx.Renderer.Success("leapstyle project initialized")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func defaultScaffold() scaffold {
	d := config.DefaultConfig()
	return scaffold{
		Tasks: d.Tasks,
		Compiler: scaffoldCompiler{
			Backend:     d.Compiler.Backend,
			OutputStyle: d.Compiler.OutputStyle,
			Timeout:     d.Compiler.Timeout.String(),
		},
		Watch:    scaffoldWatch{Debounce: d.Watch.Debounce.String()},
		State:    d.StatePath,
		LogLevel: d.LogLevel,
	}
}

func writeConfigFile(dir string, force bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, config.ConfigFileNames[0])
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists. Use --force to overwrite", path)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(defaultScaffold()); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
