package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/engine"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeFile(t, "manifest.yaml", `
stagingDir: /tmp/burrow/staging
storePath: /tmp/burrow/blobs.db
dataset: dataset.yaml
cycleInterval: 10s
numStatesBetweenSnapshots: 4
targetMaxTypeShardSize: 16MB
compression: snappy
log:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/burrow/staging", cfg.StagingDir)
	assert.Equal(t, 10*time.Second, cfg.CycleInterval)
	assert.Equal(t, 4, cfg.NumStatesBetweenSnapshots)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	size, err := cfg.ShardSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(16<<20), size)
}

func TestLoadManifestDefaults(t *testing.T) {
	path := writeFile(t, "manifest.yaml", `
stagingDir: /tmp/staging
storePath: /tmp/blobs.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.CycleInterval)
	assert.Equal(t, "none", cfg.Compression)
	assert.Equal(t, 0, cfg.NumStatesBetweenSnapshots)

	size, err := cfg.ShardSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size, "unset size defers to the engine default")
}

func TestLoadManifestRejectsBadInput(t *testing.T) {
	_, err := Load(writeFile(t, "m.yaml", "storePath: /tmp/blobs.db"))
	assert.Error(t, err, "stagingDir required")

	_, err = Load(writeFile(t, "m.yaml", "stagingDir: /tmp/s"))
	assert.Error(t, err, "storePath required")

	_, err = Load(writeFile(t, "m.yaml", `
stagingDir: /tmp/s
storePath: /tmp/b
compression: zstd
`))
	assert.Error(t, err, "unknown compression")

	_, err = Load(writeFile(t, "m.yaml", `
stagingDir: /tmp/s
storePath: /tmp/b
targetMaxTypeShardSize: a-few-megabytes
`))
	assert.Error(t, err, "unparseable shard size")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDataset(t *testing.T) {
	path := writeFile(t, "dataset.yaml", `
types:
  - name: movie
    fields:
      - {name: id, type: int}
      - {name: title, type: string}
      - {name: rating, type: float}
    records:
      - {id: 1, title: Heat, rating: 8.3}
      - {id: 2, title: Ronin, rating: 7.2}
`)

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, ds.Types, 1)

	s, err := ds.Types[0].Schema()
	require.NoError(t, err)
	assert.Equal(t, "movie", s.Name)
	assert.Equal(t, engine.FieldFloat, s.Fields[2].Type)
	assert.Len(t, ds.Types[0].Records, 2)
}

func TestDatasetRejectsUnknownFieldType(t *testing.T) {
	dt := DatasetType{Name: "movie"}
	dt.Fields = append(dt.Fields, struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	}{Name: "id", Type: "decimal"})

	_, err := dt.Schema()
	assert.Error(t, err)
}
