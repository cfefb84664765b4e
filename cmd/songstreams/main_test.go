package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

func TestResolveFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed = 9

[data]
path = "from-file.csv"

[output]
dir = "file-out"
`), 0o644))

	seed := uint64(3)
	cfg, err := resolve(args{Config: path, Out: "flag-out", NoPlots: true, Seed: &seed, LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "from-file.csv", cfg.Data.Path)
	assert.Equal(t, "flag-out", cfg.Output.Dir)
	assert.False(t, cfg.Output.Plots)
	assert.Equal(t, uint64(3), cfg.Seed)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestResolveDefaults(t *testing.T) {
	cfg, err := resolve(args{})
	require.NoError(t, err)
	assert.Equal(t, "spotify-2023.csv", cfg.Data.Path)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.True(t, cfg.Output.Plots)
}

func TestRunReportsFailingStage(t *testing.T) {
	err := run(args{
		Data:      filepath.Join(t.TempDir(), "missing.csv"),
		Out:       t.TempDir(),
		LogFormat: "json",
		LogLevel:  "error",
	})
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "load", se.Stage)
}

func TestRunRejectsBadLogFormat(t *testing.T) {
	err := run(args{LogFormat: "xml"})
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "config", se.Stage)
}
