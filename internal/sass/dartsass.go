package sass

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bep/godartsass/v2"
)

// DefaultBinary is the Dart Sass executable looked up on PATH.
const DefaultBinary = "sass"

// DartSass compiles SCSS and Sass through a long-running Dart Sass process
// speaking the embedded protocol. One transpiler serves concurrent callers.
type DartSass struct {
	transpiler   *godartsass.Transpiler
	style        godartsass.OutputStyle
	includePaths []string
	sourceMap    bool
}

// NewDartSass starts the Dart Sass embedded compiler.
func NewDartSass(opts Options, logger *slog.Logger) (*DartSass, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	if resolved, err := exec.LookPath(binary); err == nil {
		binary = resolved
	} else {
		return nil, fmt.Errorf("dart sass executable %q not found: %w", binary, err)
	}

	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: binary,
		Timeout:                  opts.Timeout,
		LogEventHandler: func(e godartsass.LogEvent) {
			switch e.Type {
			case godartsass.LogEventTypeDebug:
				logger.Debug("sass @debug", slog.String("message", e.Message))
			default:
				logger.Warn("sass warning", slog.String("message", e.Message))
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start dart sass: %w", err)
	}

	style := godartsass.OutputStyleExpanded
	if opts.OutputStyle == StyleCompressed {
		style = godartsass.OutputStyleCompressed
	}

	return &DartSass{
		transpiler:   t,
		style:        style,
		includePaths: opts.IncludePaths,
		sourceMap:    opts.SourceMap,
	}, nil
}

// Compile implements Compiler.
func (d *DartSass) Compile(ctx context.Context, src Source) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	abs, err := filepath.Abs(src.Path)
	if err != nil {
		abs = src.Path
	}

	args := godartsass.Args{
		Source:          string(src.Content),
		URL:             (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		OutputStyle:     d.style,
		SourceSyntax:    dartSyntax(src.Syntax),
		IncludePaths:    append([]string{filepath.Dir(abs)}, d.includePaths...),
		EnableSourceMap: d.sourceMap,
	}

	res, err := d.transpiler.Execute(args)
	if err != nil {
		return Output{}, &CompileError{
			File:    src.Path,
			Message: strings.TrimSpace(err.Error()),
			Err:     err,
		}
	}

	out := Output{CSS: []byte(res.CSS)}
	if res.SourceMap != "" {
		out.SourceMap = []byte(res.SourceMap)
	}
	return out, nil
}

// Close stops the Dart Sass process.
func (d *DartSass) Close() error {
	return d.transpiler.Close()
}

func dartSyntax(s Syntax) godartsass.SourceSyntax {
	switch s {
	case SyntaxIndented:
		return godartsass.SourceSyntaxSASS
	case SyntaxCSS:
		return godartsass.SourceSyntaxCSS
	default:
		return godartsass.SourceSyntaxSCSS
	}
}
