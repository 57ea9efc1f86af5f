package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrules/internal/errors"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costrules.yaml")
	body := `
engine:
  workers: 2
rules:
  paths:
    - rules/cdn.hcl
    - rules/transfer.yaml
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, int64(100_000), cfg.Engine.CacheMaxEntries)
	assert.Equal(t, []string{"rules/cdn.hcl", "rules/transfer.yaml"}, cfg.Rules.Paths)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costrules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine":{"workers":3},"output":{"indent":true}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.Workers)
	assert.True(t, cfg.Output.Indent)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType errors.Type
	}{
		{name: "zero workers", body: `{"engine":{"workers":0}}`, wantType: errors.TypeConfig},
		{name: "negative cache", body: `{"engine":{"workers":1,"cache_max_entries":-1}}`, wantType: errors.TypeConfig},
		{name: "malformed", body: `{"engine":`, wantType: errors.TypeParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "costrules.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestSaveRoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "costrules.yml")
	cfg := Default()
	cfg.Rules.Paths = []string{"a.hcl"}

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
