package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapstyle/internal/task"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFlags mirrors the persistent flags of the root command.
func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("state", "", "")
	fs.Bool("no-state", false, "")
	fs.String("log-level", "", "")
	fs.String("log-format", "", "")
	fs.StringP("output", "o", "", "")
	fs.Bool("fail-on-error", false, "")
	fs.BoolP("verbose", "v", false, "")
	fs.String("backend", "", "")
	fs.Bool("minify", false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "leapstyle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	ResetConfig()

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultTasks(), cfg.Tasks)
	assert.Equal(t, "dart-sass", cfg.Compiler.Backend)
	assert.Equal(t, "expanded", cfg.Compiler.OutputStyle)
	assert.Equal(t, DefaultTimeout, cfg.Compiler.Timeout)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.False(t, cfg.FailOnError)

	root, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	gotRoot, err := filepath.EvalSymlinks(cfg.ProjectRoot)
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, DefaultStateFile), cfg.StatePath)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_FileReplacesDefaultTasks(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
tasks:
  styles:
    src: ./scss/**/*.scss
    dest: ./css
    minify: true
  default:
    depends: [styles]
    mode: series
compiler:
  backend: esbuild
  output_style: compressed
  include_paths: [node_modules]
  timeout: 5s
watch:
  debounce: 1s
state_path: build/history.db
`)
	t.Chdir(dir)
	ResetConfig()

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	require.Len(t, cfg.Tasks, 2)
	styles := cfg.Tasks["styles"]
	assert.Equal(t, "./scss/**/*.scss", styles.Src)
	require.NotNil(t, styles.Minify)
	assert.True(t, *styles.Minify)
	assert.Equal(t, []string{"styles"}, cfg.Tasks[task.DefaultTask].Depends)
	assert.Equal(t, "series", cfg.Tasks[task.DefaultTask].Mode)

	assert.Equal(t, "esbuild", cfg.Compiler.Backend)
	assert.Equal(t, "compressed", cfg.Compiler.OutputStyle)
	assert.Equal(t, 5*time.Second, cfg.Compiler.Timeout)
	assert.Equal(t, []string{filepath.Join(cfg.ProjectRoot, "node_modules")}, cfg.Compiler.IncludePaths)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "build", "history.db"), cfg.StatePath)
	assert.NotEmpty(t, GetConfigFileUsed())
}

func TestLoadConfig_UpwardSearch(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "log_level: debug\n")
	nested := filepath.Join(dir, "public", "assets")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)
	ResetConfig()

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Base(dir), filepath.Base(cfg.ProjectRoot))
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: json\n"), 0o644))
	t.Chdir(t.TempDir())
	ResetConfig()

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, dir, cfg.ProjectRoot)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "log_level: warn\ncompiler:\n  backend: dart-sass\n")
	t.Chdir(dir)
	ResetConfig()

	t.Setenv("LEAPSTYLE_LOG_LEVEL", "error")
	t.Setenv("LEAPSTYLE_COMPILER_BACKEND", "esbuild")
	t.Setenv("LEAPSTYLE_FAIL_ON_ERROR", "true")

	cfg, err := LoadConfig("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel, "env overrides file")
	assert.Equal(t, "esbuild", cfg.Compiler.Backend)
	assert.True(t, cfg.FailOnError)

	cfg, err = LoadConfig("", newFlags(t, "--log-level", "debug", "--backend", "dart-sass", "--minify"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "flags override env")
	assert.Equal(t, "dart-sass", cfg.Compiler.Backend)
	assert.True(t, cfg.Compiler.Minify)
}

func TestLoadConfig_StateFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	ResetConfig()

	cfg, err := LoadConfig("", newFlags(t, "--state", "other.db"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.StatePath))
	assert.Equal(t, "other.db", filepath.Base(cfg.StatePath))

	cfg, err = LoadConfig("", newFlags(t, "--no-state"))
	require.NoError(t, err)
	assert.Empty(t, cfg.StatePath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{"bad backend", "compiler:\n  backend: libsass\n", "compiler.backend"},
		{"bad style", "compiler:\n  output_style: fancy\n", "output_style"},
		{"bad log level", "log_level: loud\n", "log_level"},
		{"bad output", "output: xml\n", "output must be"},
		{"bad mode", "tasks:\n  default:\n    depends: [a]\n    mode: sideways\n  a:\n    src: a/*.scss\n    dest: out\n", "unknown task mode"},
		{"missing dest", "tasks:\n  a:\n    src: a/*.scss\n", "dest is required"},
		{"empty task", "tasks:\n  a:\n    description: nothing\n", "needs src or depends"},
		{"dotted task name", "tasks:\n  styles.min:\n    src: a/*.scss\n    dest: out\n", "task names must not contain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			t.Chdir(dir)
			ResetConfig()

			_, err := LoadConfig("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestValidate_DottedTaskName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tasks["styles.min"] = TaskDef{Src: "scss/*.scss", Dest: "css"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tasks.styles.min")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"LEAPSTYLE_LOG_LEVEL", "log_level"},
		{"LEAPSTYLE_STATE_PATH", "state_path"},
		{"LEAPSTYLE_COMPILER_OUTPUT_STYLE", "compiler.output_style"},
		{"LEAPSTYLE_WATCH_DEBOUNCE", "watch.debounce"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envKey(tt.in), tt.in)
	}
}

func TestFlagKey(t *testing.T) {
	assert.Equal(t, "", flagKey("config"))
	assert.Equal(t, "state_path", flagKey("state"))
	assert.Equal(t, "compiler.backend", flagKey("backend"))
	assert.Equal(t, "fail_on_error", flagKey("fail-on-error"))
	assert.Equal(t, "no_state", flagKey("no-state"))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"chatty", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("file", "a.scss"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"file":"a.scss"`)

	buf.Reset()
	cfg = &Config{LogLevel: "error", Verbose: true}
	logger, err = cfg.NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug("debugging")
	assert.Contains(t, buf.String(), "msg=debugging")
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	logger := slog.New(slog.DiscardHandler)
	ctx := context.WithValue(context.Background(), LoggerKey(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}
