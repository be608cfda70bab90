// Package config provides configuration management for the leapstyle CLI.
//
// Configuration is layered with koanf: built-in defaults, then
// leapstyle.yaml, then LEAPSTYLE_ environment variables, then command-line
// flags. Task definitions live under the "tasks" key; when none are given the
// two stock asset groups and the default composite are used.
package config

import (
	"time"

	"github.com/leapstack-labs/leapstyle/internal/sass"
	"github.com/leapstack-labs/leapstyle/internal/task"
)

// TaskDef is one entry of the tasks map.
type TaskDef struct {
	Description string   `koanf:"description" yaml:"description,omitempty"`
	Src         string   `koanf:"src" yaml:"src,omitempty"`
	Dest        string   `koanf:"dest" yaml:"dest,omitempty"`
	Depends     []string `koanf:"depends" yaml:"depends,omitempty"`
	Mode        string   `koanf:"mode" yaml:"mode,omitempty"`
	Minify      *bool    `koanf:"minify" yaml:"minify,omitempty"`
}

// CompilerConfig selects and tunes the stylesheet compiler.
type CompilerConfig struct {
	Backend      string        `koanf:"backend" yaml:"backend"`
	Binary       string        `koanf:"binary" yaml:"binary,omitempty"`
	OutputStyle  string        `koanf:"output_style" yaml:"output_style"`
	IncludePaths []string      `koanf:"include_paths" yaml:"include_paths,omitempty"`
	Timeout      time.Duration `koanf:"timeout" yaml:"timeout"`
	Minify       bool          `koanf:"minify" yaml:"minify"`
	SourceMap    bool          `koanf:"source_map" yaml:"source_map"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce" yaml:"debounce"`
}

// Config holds all CLI configuration options.
type Config struct {
	Tasks       map[string]TaskDef `koanf:"tasks" yaml:"tasks"`
	Compiler    CompilerConfig     `koanf:"compiler" yaml:"compiler"`
	Watch       WatchConfig        `koanf:"watch" yaml:"watch"`
	StatePath   string             `koanf:"state_path" yaml:"state_path"`
	NoState     bool               `koanf:"no_state" yaml:"-"`
	LogLevel    string             `koanf:"log_level" yaml:"log_level"`
	LogFormat   string             `koanf:"log_format" yaml:"log_format"`
	Output      string             `koanf:"output" yaml:"output"`
	FailOnError bool               `koanf:"fail_on_error" yaml:"fail_on_error"`
	Verbose     bool               `koanf:"verbose" yaml:"-"`

	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-" yaml:"-"`
}

// Default configuration values.
const (
	DefaultStateFile     = ".leapstyle/state.db"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultOutput        = "auto" // Auto-detect: TTY=styled text, non-TTY=plain text
	DefaultTimeout       = 30 * time.Second
	DefaultWatchDebounce = 200 * time.Millisecond
)

// Stock task names.
const (
	CoreSassTask = "unify-core-sass"
	PageSassTask = "page-sass"
)

// DefaultTasks returns the two stock asset groups and the default composite.
func DefaultTasks() map[string]TaskDef {
	return map[string]TaskDef{
		CoreSassTask: {
			Description: "Compile the Unify template core stylesheets",
			Src:         "./public/unify-template-core-assets/include/scss/**/*.scss",
			Dest:        "./public/unify-template-core-assets/css",
		},
		PageSassTask: {
			Description: "Compile the page stylesheets",
			Src:         "./public/assets/scss/**/*.scss",
			Dest:        "./public/assets/css",
		},
		task.DefaultTask: {
			Description: "Build all stylesheets",
			Depends:     []string{CoreSassTask, PageSassTask},
			Mode:        task.Parallel.String(),
		},
	}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Tasks: DefaultTasks(),
		Compiler: CompilerConfig{
			Backend:     sass.BackendDartSass,
			OutputStyle: string(sass.StyleExpanded),
			Timeout:     DefaultTimeout,
		},
		Watch:     WatchConfig{Debounce: DefaultWatchDebounce},
		StatePath: DefaultStateFile,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Output:    DefaultOutput,
	}
}
