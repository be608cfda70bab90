package sass

import (
	"context"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// cssEngines is the browser floor for generated CSS. None of these support
// native nesting, so esbuild flattens nested rules.
var cssEngines = []api.Engine{
	{Name: api.EngineChrome, Version: "100"},
	{Name: api.EngineEdge, Version: "100"},
	{Name: api.EngineFirefox, Version: "100"},
	{Name: api.EngineSafari, Version: "15"},
}

// ESBuild compiles plain CSS sources with esbuild's CSS loader. It lowers
// native nesting and other modern syntax; it does not understand Sass
// variables, mixins or @use.
type ESBuild struct {
	minify    bool
	sourceMap bool
}

// NewESBuild creates the esbuild backend.
func NewESBuild(opts Options) *ESBuild {
	return &ESBuild{
		minify:    opts.OutputStyle == StyleCompressed,
		sourceMap: opts.SourceMap,
	}
}

// Compile implements Compiler.
func (e *ESBuild) Compile(ctx context.Context, src Source) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	result := api.Transform(string(src.Content), transformOptions(src.Path, e.minify, e.sourceMap))
	if len(result.Errors) > 0 {
		return Output{}, compileErrorFromMessages(src.Path, result.Errors)
	}

	return Output{CSS: result.Code, SourceMap: result.Map}, nil
}

// Close implements Compiler. esbuild holds no resources.
func (e *ESBuild) Close() error {
	return nil
}

// Minifier is a PostProcessor that minifies CSS with esbuild.
type Minifier struct{}

// Process implements PostProcessor.
func (Minifier) Process(ctx context.Context, path string, css []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := api.Transform(string(css), transformOptions(path, true, false))
	if len(result.Errors) > 0 {
		return nil, compileErrorFromMessages(path, result.Errors)
	}
	return result.Code, nil
}

func transformOptions(path string, minify, sourceMap bool) api.TransformOptions {
	opts := api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcefile:       path,
		Engines:          cssEngines,
		MinifyWhitespace: minify,
		MinifySyntax:     minify,
		LogLevel:         api.LogLevelSilent,
	}
	if sourceMap {
		opts.Sourcemap = api.SourceMapExternal
	}
	return opts
}

// compileErrorFromMessages reports the first esbuild error with its
// location and folds the rest into the message.
func compileErrorFromMessages(path string, msgs []api.Message) *CompileError {
	first := msgs[0]
	cerr := &CompileError{File: path, Message: first.Text}
	if first.Location != nil {
		cerr.Line = first.Location.Line
		cerr.Column = first.Location.Column + 1
	}
	if len(msgs) > 1 {
		rest := make([]string, 0, len(msgs)-1)
		for _, m := range msgs[1:] {
			rest = append(rest, m.Text)
		}
		cerr.Message += " (also: " + strings.Join(rest, "; ") + ")"
	}
	return cerr
}
