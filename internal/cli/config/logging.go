package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel maps a config value to a slog level. Empty selects info.
func ParseLogLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
	return level, nil
}

// NewLogger builds the CLI logger. Verbose forces debug level.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	if c.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
