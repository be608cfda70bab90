package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SourceFile is one stylesheet matched by a group's glob.
type SourceFile struct {
	// Path is the file path on disk.
	Path string
	// Rel is the slash-separated path relative to the glob base.
	Rel     string
	Content []byte
}

// errStopWalk ends a glob walk early when the consumer stops iterating.
var errStopWalk = errors.New("stop walk")

// splitGlob resolves pattern against root and splits it into the static base
// directory and the remaining pattern.
func splitGlob(root, pattern string) (base, rest string) {
	if !filepath.IsAbs(pattern) && root != "" {
		pattern = filepath.Join(root, pattern)
	}
	base, rest = doublestar.SplitPattern(filepath.ToSlash(filepath.Clean(pattern)))
	return filepath.FromSlash(base), rest
}

// isPartial reports whether a Sass file is a partial. Partials are only
// imported by other files and never emitted on their own.
func isPartial(rel string) bool {
	return strings.HasPrefix(path.Base(rel), "_")
}

// Base returns the directory the group's glob is rooted at.
func (g *Group) Base() string {
	base, _ := splitGlob(g.Root, g.Src)
	return base
}

// Sources lazily yields the files matching the group's glob in lexical order.
// A missing base directory yields nothing. Read failures are yielded as errors.
func (g *Group) Sources(ctx context.Context) iter.Seq2[SourceFile, error] {
	return func(yield func(SourceFile, error) bool) {
		base, pattern := splitGlob(g.Root, g.Src)
		if !doublestar.ValidatePattern(pattern) {
			yield(SourceFile{}, fmt.Errorf("invalid glob %q", g.Src))
			return
		}

		info, err := os.Stat(base)
		if errors.Is(err, fs.ErrNotExist) {
			g.logger().Warn("source directory does not exist", "dir", base)
			return
		}
		if err != nil {
			yield(SourceFile{}, fmt.Errorf("failed to stat source directory: %w", err))
			return
		}
		if !info.IsDir() {
			yield(SourceFile{}, fmt.Errorf("source base %s is not a directory", base))
			return
		}

		walkErr := doublestar.GlobWalk(os.DirFS(base), pattern, func(rel string, d fs.DirEntry) error {
			if d.IsDir() || isPartial(rel) {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			full := filepath.Join(base, filepath.FromSlash(rel))
			content, err := os.ReadFile(full) //nolint:gosec // G304: path comes from the configured glob
			if err != nil {
				if !yield(SourceFile{}, fmt.Errorf("failed to read %s: %w", full, err)) {
					return errStopWalk
				}
				return nil
			}

			if !yield(SourceFile{Path: full, Rel: rel, Content: content}, nil) {
				return errStopWalk
			}
			return nil
		}, doublestar.WithFilesOnly())

		if walkErr != nil && !errors.Is(walkErr, errStopWalk) {
			yield(SourceFile{}, walkErr)
		}
	}
}
