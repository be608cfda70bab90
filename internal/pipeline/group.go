// Package pipeline implements the build action behind each stylesheet task:
// stream the files matched by a glob, compile them, and write the CSS into a
// destination directory that mirrors the source layout.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/leapstyle/internal/sass"
)

// Group is one asset group: a source glob compiled into a destination directory.
type Group struct {
	Name string
	// Src is a glob such as "public/assets/scss/**/*.scss".
	Src string
	// Dest is the output directory.
	Dest string
	// Root anchors relative Src and Dest. Empty means the working directory.
	Root string

	Compiler sass.Compiler
	Post     []sass.PostProcessor
	Logger   *slog.Logger
}

func (g *Group) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return g.Logger
}

// DestDir returns the resolved output directory.
func (g *Group) DestDir() string {
	if filepath.IsAbs(g.Dest) || g.Root == "" {
		return filepath.Clean(g.Dest)
	}
	return filepath.Join(g.Root, g.Dest)
}

// OutputPath maps a source path relative to the glob base to its CSS output.
func (g *Group) OutputPath(rel string) string {
	name := strings.TrimSuffix(rel, path.Ext(rel)) + ".css"
	return filepath.Join(g.DestDir(), filepath.FromSlash(name))
}

// Build compiles every matching file. A file that fails to compile is logged
// and recorded in the result; the remaining files are still built. Read and
// write failures abort the build and are returned.
func (g *Group) Build(ctx context.Context) (*Result, error) {
	if g.Compiler == nil {
		return nil, fmt.Errorf("group %s has no compiler", g.Name)
	}

	start := time.Now()
	res := &Result{Task: g.Name}
	logger := g.logger().With(slog.String("task", g.Name))

	for src, err := range g.Sources(ctx) {
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		fr, err := g.buildFile(ctx, src)
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		res.Files = append(res.Files, fr)

		switch fr.Status {
		case StatusFailed:
			logger.Error("stylesheet compilation failed",
				slog.String("file", src.Path),
				slog.String("error", fr.Err.Error()))
		case StatusCompiled:
			logger.Debug("wrote stylesheet", slog.String("file", src.Path), slog.String("output", fr.Output))
		default:
			logger.Debug("stylesheet unchanged", slog.String("output", fr.Output))
		}
	}

	res.Duration = time.Since(start)
	logger.Info("built stylesheets",
		slog.Int("compiled", res.Count(StatusCompiled)),
		slog.Int("unchanged", res.Count(StatusUnchanged)),
		slog.Int("failed", res.Count(StatusFailed)),
		slog.Duration("duration", res.Duration.Round(time.Millisecond)))
	return res, nil
}

// buildFile compiles and writes one file. Compilation problems are reported
// through the FileResult; only context and I/O errors are returned.
func (g *Group) buildFile(ctx context.Context, src SourceFile) (FileResult, error) {
	fr := FileResult{Source: src.Path, Output: g.OutputPath(src.Rel)}

	out, err := g.Compiler.Compile(ctx, sass.Source{
		Path:    src.Path,
		Content: src.Content,
		Syntax:  sass.SyntaxFromPath(src.Path),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fr, ctxErr
		}
		fr.Status = StatusFailed
		fr.Err = asCompileError(src.Path, err)
		return fr, nil
	}

	css := out.CSS
	for _, p := range g.Post {
		css, err = p.Process(ctx, src.Path, css)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fr, ctxErr
			}
			fr.Status = StatusFailed
			fr.Err = asCompileError(src.Path, err)
			return fr, nil
		}
	}

	if len(out.SourceMap) > 0 {
		mapPath := fr.Output + ".map"
		css = append(bytes.TrimRight(css, "\n"), []byte("\n/*# sourceMappingURL="+filepath.Base(mapPath)+" */\n")...)
		if _, err := writeIfChanged(mapPath, out.SourceMap); err != nil {
			return fr, err
		}
	}

	changed, err := writeIfChanged(fr.Output, css)
	if err != nil {
		return fr, err
	}

	sum := sha256.Sum256(css)
	fr.Hash = hex.EncodeToString(sum[:])
	fr.Status = StatusUnchanged
	if changed {
		fr.Status = StatusCompiled
	}
	return fr, nil
}

func asCompileError(file string, err error) error {
	var cerr *sass.CompileError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &sass.CompileError{File: file, Message: err.Error(), Err: err}
}

// writeIfChanged writes data unless the file already holds exactly data.
func writeIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) { //nolint:gosec // G304: output path is derived from configured dest
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: stylesheets are world readable
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
