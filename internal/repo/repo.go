package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskroster/internal/query"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TaskSchema exposes the task columns to the query translator.
var TaskSchema = query.Schema{
	Entity: "task",
	Table:  "tasks",
	Fields: map[string]query.Field{
		"id":               {Column: "id"},
		"name":             {Column: "name"},
		"description":      {Column: "description"},
		"deadline":         {Column: "deadline", Kind: query.Time},
		"completed":        {Column: "completed", Kind: query.Bool},
		"assignedUser":     {Column: "assigned_user"},
		"assignedUserName": {Column: "assigned_user_name"},
		"dateCreated":      {Column: "date_created", Kind: query.Time},
	},
}

// UserSchema exposes the user columns to the query translator.
var UserSchema = query.Schema{
	Entity: "user",
	Table:  "users",
	Fields: map[string]query.Field{
		"id":          {Column: "id"},
		"name":        {Column: "name"},
		"email":       {Column: "email"},
		"dateCreated": {Column: "date_created", Kind: query.Time},
		"pendingTasks": {Column: "id", Kind: query.Set, Set: &query.SetRelation{
			Table:       "pending_tasks",
			OwnerColumn: "user_id",
			ValueColumn: "task_id",
		}},
	},
}

func formatTime(t time.Time) string {
	return t.UTC().Format(query.TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(query.TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
