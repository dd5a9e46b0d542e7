package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_loadConfig(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "rowagg.toml")
	content := `
[log]
level = "debug"

[aggregate]
initialCapacity = 256
workers = 4
radixBits = 2

[input]
path = "data.csv"
groupBy = ["k"]
aggregates = ["sum(v)", "count(*)"]

[[input.columns]]
name = "k"
type = "varchar"

[[input.columns]]
name = "v"
type = "bigint"
`
	require.NoError(t, os.WriteFile(fpath, []byte(content), 0644))
	cfg, err := LoadConfig(fpath)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 256, cfg.Aggregate.InitialCapacity)
	assert.Equal(t, 4, cfg.Aggregate.Workers)
	assert.Equal(t, 2, cfg.Aggregate.RadixBits)
	assert.Equal(t, []string{"k"}, cfg.Input.GroupBy)
	assert.Len(t, cfg.Input.Columns, 2)
	assert.Equal(t, "bigint", cfg.Input.Columns[1].Type)
	//defaults survive
	assert.Equal(t, "csv", cfg.Input.Format)
	assert.Equal(t, 12, cfg.Sort.PrefixLen)
}

func Test_loadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(fpath, []byte("[aggregate]\ninitialCapacity = 100\n"), 0644))
	_, err := LoadConfig(fpath)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func Test_defaultConfigIsCopy(t *testing.T) {
	a := DefaultConfig()
	a.Input.GroupBy = append(a.Input.GroupBy, "x")
	a.Aggregate.Workers = 9
	b := DefaultConfig()
	assert.Empty(t, b.Input.GroupBy)
	assert.Equal(t, 1, b.Aggregate.Workers)
}
