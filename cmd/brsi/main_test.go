package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"fetch-daily", "merge", "upload", "geocode", "spotcheck", "serve"}, names)
}

func TestGeocodeCmd_RequiresPanelArg(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"geocode"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestPick(t *testing.T) {
	assert.Equal(t, "flag", pick("flag", "env"))
	assert.Equal(t, "env", pick("", "env"))
	assert.Equal(t, 5, pickInt(5, 10))
	assert.Equal(t, 10, pickInt(0, 10))
}

func TestAppInit_InstallsProcessLogger(t *testing.T) {
	t.Setenv("LOG_FORMAT", "text")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	a := &app{envFile: filepath.Join(t.TempDir(), "missing.env")}
	require.NoError(t, a.init())

	require.NotNil(t, a.logger)
	assert.Same(t, a.logger, slog.Default())
	assert.NotNil(t, a.metrics)
}
