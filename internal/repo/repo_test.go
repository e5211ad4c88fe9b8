package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskroster/internal/db"
	"taskroster/internal/domain"
	"taskroster/internal/migrate"
	"taskroster/internal/query"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return Repo{DB: conn}
}

var created = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func seed(t *testing.T, r Repo) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertUser(ctx, tx, domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com", DateCreated: created}))
	require.NoError(t, r.InsertUser(ctx, tx, domain.User{ID: "u2", Name: "Bob", Email: "bob@example.com", DateCreated: created.Add(time.Second)}))
	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, r.InsertTask(ctx, tx, domain.Task{
			ID:               id,
			Name:             "task " + id,
			Deadline:         created.Add(time.Duration(i) * time.Hour),
			AssignedUserName: domain.UnassignedName,
			DateCreated:      created.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, tx.Commit())
}

func TestTaskRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	got, err := r.GetTask(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "task t2", got.Name)
	assert.Equal(t, created.Add(time.Hour), got.Deadline)
	assert.Equal(t, domain.UnassignedName, got.AssignedUserName)

	_, err = r.GetTask(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	got.Completed = true
	require.NoError(t, r.UpdateTask(ctx, tx, got))
	require.NoError(t, r.SetTaskOwner(ctx, tx, "t2", "u1", "Ada"))
	assert.ErrorIs(t, r.SetTaskOwner(ctx, tx, "missing", "u1", "Ada"), ErrNotFound)
	require.NoError(t, tx.Commit())

	got, err = r.GetTask(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, "u1", got.AssignedUser)
	assert.Equal(t, "Ada", got.AssignedUserName)
}

func TestPendingSetIsKeyedByTask(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.AddPendingTask(ctx, tx, "u1", "t1"))
	require.NoError(t, r.AddPendingTask(ctx, tx, "u1", "t1"))
	require.NoError(t, r.AddPendingTask(ctx, tx, "u1", "t2"))
	require.NoError(t, r.AddPendingTask(ctx, tx, "u2", "t2"))
	require.NoError(t, r.RemovePendingTask(ctx, tx, "u2", "t3"))
	require.NoError(t, tx.Commit())

	u1, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, u1.PendingTasks)
	u2, err := r.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, u2.PendingTasks)

	owner, err := r.PendingOwner(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, "", owner)
}

func TestResyncPendingTasks(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.SetTaskOwner(ctx, tx, "t1", "u1", "Ada"))
	require.NoError(t, r.SetTaskOwner(ctx, tx, "t2", "u1", "Ada"))
	t2, err := r.GetTaskTx(ctx, tx, "t2")
	require.NoError(t, err)
	t2.Completed = true
	require.NoError(t, r.UpdateTask(ctx, tx, t2))
	require.NoError(t, r.AddPendingTask(ctx, tx, "u1", "t3"))
	require.NoError(t, r.ResyncPendingTasks(ctx, tx, "u1"))
	require.NoError(t, tx.Commit())

	u1, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, u1.PendingTasks)
}

func TestViolations(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	v, err := r.Violations(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.SetTaskOwner(ctx, tx, "t1", "u1", "Ada"))
	require.NoError(t, r.AddPendingTask(ctx, tx, "u2", "t3"))
	require.NoError(t, tx.Commit())

	v, err = r.Violations(ctx)
	require.NoError(t, err)
	require.Len(t, v, 2)
	assert.Equal(t, "t1", v[0].TaskID)
	assert.Equal(t, "pending-listed", v[0].Rule)
	assert.Equal(t, "t3", v[1].TaskID)
	assert.Equal(t, "no-stray-pending", v[1].Rule)
}

func TestFindWithCompiledQuery(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	q, err := query.Parse(query.Params{Where: `{"name":{"$ne":"task t1"}}`, Sort: `{"deadline":-1}`, Limit: "1"})
	require.NoError(t, err)
	st, err := query.Compile(q, TaskSchema)
	require.NoError(t, err)
	tasks, err := r.FindTasks(ctx, st)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t3", tasks[0].ID)

	n, err := r.CountTasks(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.AddPendingTask(ctx, tx, "u2", "t1"))
	require.NoError(t, tx.Commit())

	q, err = query.Parse(query.Params{Where: `{"pendingTasks":"t1"}`})
	require.NoError(t, err)
	st, err = query.Compile(q, UserSchema)
	require.NoError(t, err)
	users, err := r.FindUsers(ctx, st)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u2", users[0].ID)
}

func TestEmailIsUnique(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	err = r.InsertUser(ctx, tx, domain.User{ID: "u3", Name: "Eve", Email: "ada@example.com", DateCreated: created})
	assert.Error(t, err)

	u, err := r.FindUserByEmailTx(ctx, tx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", u.ID)
	assert.Equal(t, []string{}, u.PendingTasks)
}
