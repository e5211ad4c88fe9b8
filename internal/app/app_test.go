package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskroster/internal/config"
	"taskroster/internal/db"
	"taskroster/internal/engine"
)

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("query:\n  task_default_limit: 5\n"), 0o644))

	a, err := Open(context.Background(), Options{Workspace: dir})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 5, a.Config.Query.TaskDefaultLimit)
	assert.Equal(t, "127.0.0.1:8080", a.Config.Server.Addr)
	_, err = os.Stat(db.Path(dir))
	require.NoError(t, err)

	task, err := a.Engine.CreateTask(context.Background(), engine.TaskInput{Name: "x", Deadline: "2030-01-01"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = ""
	_, err := Open(context.Background(), Options{Workspace: t.TempDir(), Config: cfg})
	assert.Error(t, err)
}
