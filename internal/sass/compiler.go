// Package sass wraps the stylesheet compilers used by build tasks.
//
// Two backends are available. The dart-sass backend drives the Dart Sass
// embedded compiler and understands SCSS and the indented syntax. The esbuild
// backend handles plain CSS sources (including native nesting) and doubles as
// the minifier applied after compilation.
package sass

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Syntax is the dialect of a source file.
type Syntax string

const (
	SyntaxSCSS     Syntax = "scss"
	SyntaxIndented Syntax = "sass"
	SyntaxCSS      Syntax = "css"
)

// SyntaxFromPath picks the dialect from the file extension.
func SyntaxFromPath(path string) Syntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sass":
		return SyntaxIndented
	case ".css":
		return SyntaxCSS
	default:
		return SyntaxSCSS
	}
}

// OutputStyle controls formatting of the generated CSS.
type OutputStyle string

const (
	StyleExpanded   OutputStyle = "expanded"
	StyleCompressed OutputStyle = "compressed"
)

// ParseOutputStyle accepts the config spellings, including the libsass
// legacy names "nested" and "compact" which map to expanded.
func ParseOutputStyle(s string) (OutputStyle, error) {
	switch strings.ToLower(s) {
	case "", "expanded", "nested", "compact":
		return StyleExpanded, nil
	case "compressed":
		return StyleCompressed, nil
	default:
		return "", fmt.Errorf("unknown output style %q", s)
	}
}

// Source is one stylesheet handed to a compiler.
type Source struct {
	// Path is the file path, used for error messages and relative imports.
	Path    string
	Content []byte
	Syntax  Syntax
}

// Output is the compiled result.
type Output struct {
	CSS       []byte
	SourceMap []byte
}

// Compiler translates a stylesheet dialect into plain CSS.
type Compiler interface {
	Compile(ctx context.Context, src Source) (Output, error)
	Close() error
}

// PostProcessor rewrites compiled CSS, e.g. to minify it.
type PostProcessor interface {
	Process(ctx context.Context, path string, css []byte) ([]byte, error)
}

// CompileError is a per-file compilation failure. Build tasks log it and
// move on to the next file.
type CompileError struct {
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *CompileError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Options configure a compiler backend.
type Options struct {
	// Backend is "dart-sass" or "esbuild".
	Backend      string
	Binary       string
	OutputStyle  OutputStyle
	IncludePaths []string
	Timeout      time.Duration
	SourceMap    bool
}

// Backend names.
const (
	BackendDartSass = "dart-sass"
	BackendESBuild  = "esbuild"
)

// New starts the compiler for opts.Backend.
func New(opts Options, logger *slog.Logger) (Compiler, error) {
	switch opts.Backend {
	case "", BackendDartSass:
		c, err := NewDartSass(opts, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendESBuild:
		return NewESBuild(opts), nil
	default:
		return nil, fmt.Errorf("unknown compiler backend %q (want %s or %s)", opts.Backend, BackendDartSass, BackendESBuild)
	}
}
