package sass

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntaxFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Syntax
	}{
		{"public/assets/scss/main.scss", SyntaxSCSS},
		{"theme/base.SASS", SyntaxIndented},
		{"vendor/reset.css", SyntaxCSS},
		{"noext", SyntaxSCSS},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, SyntaxFromPath(tt.path))
		})
	}
}

func TestParseOutputStyle(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputStyle
		wantErr bool
	}{
		{in: "", want: StyleExpanded},
		{in: "nested", want: StyleExpanded},
		{in: "Compressed", want: StyleCompressed},
		{in: "pretty", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputStyle(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileError(t *testing.T) {
	cause := errors.New("expected \"}\"")
	err := &CompileError{File: "a.scss", Line: 3, Column: 7, Message: "expected \"}\"", Err: cause}

	assert.Equal(t, `a.scss:3:7: expected "}"`, err.Error())
	assert.ErrorIs(t, err, cause)

	noLine := &CompileError{File: "b.scss", Message: "boom"}
	assert.Equal(t, "b.scss: boom", noLine.Error())
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "libsass"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown compiler backend")
}

func TestESBuild_CompileFlattensNesting(t *testing.T) {
	c := NewESBuild(Options{})
	defer c.Close()

	out, err := c.Compile(context.Background(), Source{
		Path:    "page.css",
		Content: []byte(".card {\n  color: red;\n  .title { font-weight: bold; }\n}\n"),
		Syntax:  SyntaxCSS,
	})
	require.NoError(t, err)

	css := string(out.CSS)
	assert.Contains(t, css, ".card .title")
	assert.Contains(t, css, "color: red")
}

func TestESBuild_CompileIsDeterministic(t *testing.T) {
	c := NewESBuild(Options{OutputStyle: StyleCompressed})
	src := Source{Path: "a.css", Content: []byte("a { color: #ff0000; }\nb { margin: 0px; }\n")}

	first, err := c.Compile(context.Background(), src)
	require.NoError(t, err)
	second, err := c.Compile(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, first.CSS, second.CSS)
	assert.NotContains(t, string(first.CSS), "\n  ")
}

func TestESBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewESBuild(Options{}).Compile(ctx, Source{Path: "a.css", Content: []byte("a{}")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMinifier_Process(t *testing.T) {
	in := []byte(".page {\n  margin: 0 auto;\n  color: #ffffff;\n}\n")

	out, err := Minifier{}.Process(context.Background(), "page.css", in)
	require.NoError(t, err)

	assert.Less(t, len(out), len(in))
	assert.Contains(t, string(out), ".page{")
}

func TestDartSass_Compile(t *testing.T) {
	if _, err := exec.LookPath(DefaultBinary); err != nil {
		t.Skip("dart sass not installed")
	}

	c, err := NewDartSass(Options{}, nil)
	require.NoError(t, err)
	defer c.Close()

	dir := t.TempDir()
	out, err := c.Compile(context.Background(), Source{
		Path:    filepath.Join(dir, "main.scss"),
		Content: []byte("$brand: #336699;\n.btn { color: $brand; &:hover { color: darken($brand, 10%); } }\n"),
		Syntax:  SyntaxSCSS,
	})
	require.NoError(t, err)
	assert.Contains(t, string(out.CSS), ".btn:hover")

	_, err = c.Compile(context.Background(), Source{
		Path:    filepath.Join(dir, "broken.scss"),
		Content: []byte(".btn { color: $missing; "),
		Syntax:  SyntaxSCSS,
	})
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, strings.HasSuffix(cerr.File, "broken.scss"))
}

func TestNewDartSass_MissingBinary(t *testing.T) {
	_, err := NewDartSass(Options{Binary: "definitely-not-a-sass-binary"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
