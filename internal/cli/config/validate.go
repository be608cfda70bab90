package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapstyle/internal/sass"
	"github.com/leapstack-labs/leapstyle/internal/task"
)

// Validate checks if the configuration is valid. Dependency cycles and
// unknown dependencies are reported by the task registry.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch c.Output {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("output must be auto, text or json, got %q", c.Output))
	}

	switch c.Compiler.Backend {
	case "", sass.BackendDartSass, sass.BackendESBuild:
	default:
		errs = append(errs, fmt.Errorf("compiler.backend must be %s or %s, got %q",
			sass.BackendDartSass, sass.BackendESBuild, c.Compiler.Backend))
	}
	if _, err := sass.ParseOutputStyle(c.Compiler.OutputStyle); err != nil {
		errs = append(errs, fmt.Errorf("compiler.output_style: %w", err))
	}
	if c.Compiler.Timeout < 0 {
		errs = append(errs, errors.New("compiler.timeout must not be negative"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch.debounce must not be negative"))
	}

	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.Tasks[name].validate(name); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t TaskDef) validate(name string) error {
	if name == "" {
		return errors.New("tasks: empty task name")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("tasks.%s: task names must not contain %q", name, ".")
	}
	if _, err := task.ParseMode(t.Mode); err != nil {
		return fmt.Errorf("tasks.%s: %w", name, err)
	}
	if t.Src == "" && len(t.Depends) == 0 {
		return fmt.Errorf("tasks.%s: needs src or depends", name)
	}
	if t.Src != "" && t.Dest == "" {
		return fmt.Errorf("tasks.%s: dest is required when src is set", name)
	}
	return nil
}
