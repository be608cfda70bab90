package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/leapstyle/internal/cli/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name     string
		setupDir func(t *testing.T, dir string)
		args     []string
		wantErr  bool
	}{
		{
			name: "init empty directory",
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapstyle.yaml"), []byte("existing"), 0o600)
			},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapstyle.yaml"), []byte("existing"), 0o600)
			},
			args: []string{"--force"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.setupDir != nil {
				tt.setupDir(t, dir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(append([]string{dir}, tt.args...))

			err := cmd.Execute()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "already exists")
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "initialized")

			data, err := os.ReadFile(filepath.Join(dir, "leapstyle.yaml"))
			require.NoError(t, err)
			assert.Contains(t, string(data), "# leapstyle configuration.")
			assert.Contains(t, string(data), "unify-core-sass")
		})
	}
}

func TestWriteConfigFile_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path, err := writeConfigFile(dir, false)
	require.NoError(t, err)

	k := koanf.New(".")
	require.NoError(t, k.Load(file.Provider(path), yaml.Parser()))

	assert.Equal(t, "./public/assets/scss/**/*.scss", k.String("tasks.page-sass.src"))
	assert.Equal(t, "./public/assets/css", k.String("tasks.page-sass.dest"))
	assert.Equal(t, []string{config.CoreSassTask, config.PageSassTask}, k.Strings("tasks.default.depends"))
	assert.Equal(t, "parallel", k.String("tasks.default.mode"))
	assert.Equal(t, "dart-sass", k.String("compiler.backend"))
	assert.Equal(t, "30s", k.String("compiler.timeout"))
	assert.Equal(t, "200ms", k.String("watch.debounce"))
}
