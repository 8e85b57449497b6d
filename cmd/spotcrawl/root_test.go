package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerrors "spotcrawl/internal/errors"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func TestFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "task", "start", "end", "validate", "schedule", "list-tasks", "metrics-addr"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "config.yaml", cmd.Flags().Lookup("config").DefValue)
}

func TestMissingConfigIsConfigError(t *testing.T) {
	err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "--list-tasks")
	require.Error(t, err)
	assert.Equal(t, crawlerrors.KindConfig, crawlerrors.KindOf(err))
}

func TestModesAreExclusive(t *testing.T) {
	err := execute(t, "--validate", "--schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestRejectsPositionalArgs(t *testing.T) {
	require.Error(t, execute(t, "日前出清"))
}
