package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix is the prefix of environment variables read into the config.
const EnvPrefix = "LEAPSTYLE_"

// ConfigFileNames are the file names searched for, in order.
var ConfigFileNames = []string{"leapstyle.yaml", "leapstyle.yml"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// configExistsIn returns the config file in dir, or "".
func configExistsIn(dir string) string {
	for _, name := range ConfigFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a leapstyle config file.
// Returns empty strings if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) (root, cfgFile string) {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if f := configExistsIn(dir); f != "" {
			return dir, f
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return "", ""
}

// locate determines the project root and config file.
// Priority:
//  1. Explicit --config file (its directory is the root)
//  2. Search upward from CWD for leapstyle.yaml
//  3. Current working directory, no file
func locate(cfgFile string) (root, cfgPath string, err error) {
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return "", "", err
		}
		if _, err := os.Stat(abs); err != nil {
			return "", "", fmt.Errorf("config file %s: %w", cfgFile, err)
		}
		return filepath.Dir(abs), abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if root, f := findProjectRootUpward(cwd); root != "" {
		return root, f, nil
	}
	return cwd, "", nil
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// envKey maps LEAPSTYLE_COMPILER_OUTPUT_STYLE to compiler.output_style.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range []string{"compiler", "watch"} {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// flagKey maps a changed flag to its config key. Flags without a config key
// map to "".
func flagKey(name string) string {
	switch name {
	case "config":
		return ""
	case "state":
		// The CLI uses --state for brevity, the config key is state_path.
		return "state_path"
	case "backend":
		return "compiler.backend"
	case "minify":
		return "compiler.minify"
	}
	return strings.ReplaceAll(name, "-", "_")
}

func defaultsMap() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"compiler.backend":      d.Compiler.Backend,
		"compiler.output_style": d.Compiler.OutputStyle,
		"compiler.timeout":      d.Compiler.Timeout.String(),
		"compiler.minify":       false,
		"compiler.source_map":   false,
		"watch.debounce":        d.Watch.Debounce.String(),
		"state_path":            d.StatePath,
		"log_level":             d.LogLevel,
		"log_format":            d.LogFormat,
		"output":                d.Output,
		"fail_on_error":         false,
		"verbose":               false,
	}
}

// readConfigFile parses a YAML config file into a nested map.
func readConfigFile(path string) (map[string]interface{}, error) {
	data, err := file.Provider(path).ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	raw, err := yaml.Parser().Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return raw, nil
}

// checkTaskNames rejects task names containing the koanf key delimiter.
func checkTaskNames(raw map[string]interface{}) error {
	tasks, ok := raw["tasks"].(map[string]interface{})
	if !ok {
		return nil
	}
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(tasks)) {
		if strings.Contains(name, ".") {
			errs = append(errs, fmt.Errorf("tasks.%s: task names must not contain %q", name, "."))
		}
	}
	return errors.Join(errs...)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")
	configFileUsed = ""

	projectRoot, found, err := locate(cfgFile)
	if err != nil {
		return nil, err
	}

	// A --state flag is relative to CWD, not to the project root.
	var flagStatePath string
	if flags != nil && flags.Changed("state") {
		if v, _ := flags.GetString("state"); v != "" {
			flagStatePath, _ = filepath.Abs(v)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load config file. Task names are checked before koanf splits keys
	// on the delimiter.
	if found != "" {
		raw, err := readConfigFile(found)
		if err != nil {
			return nil, err
		}
		if err := checkTaskNames(raw); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		if err := k.Load(confmap.Provider(raw, ""), nil); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", found, err)
		}
		configFileUsed = found
	}

	// 3. Load environment variables (LEAPSTYLE_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key := flagKey(f.Name)
			if key == "" {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Metadata:         nil,
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Fill in the stock tasks. They are applied after unmarshalling so a
	// configured tasks map replaces them instead of merging with them.
	if len(cfg.Tasks) == 0 {
		cfg.Tasks = DefaultTasks()
	}

	// 7. Set project root and resolve relative paths
	cfg.ProjectRoot = projectRoot
	switch {
	case cfg.NoState:
		cfg.StatePath = ""
	case flagStatePath != "":
		cfg.StatePath = flagStatePath
	default:
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}
	for i, p := range cfg.Compiler.IncludePaths {
		cfg.Compiler.IncludePaths[i] = resolvePathRelativeTo(p, projectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}
