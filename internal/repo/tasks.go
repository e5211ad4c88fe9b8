package repo

import (
	"context"
	"database/sql"
	"errors"

	"taskroster/internal/domain"
	"taskroster/internal/query"
)

const taskColumns = `tasks.id,tasks.name,tasks.description,tasks.deadline,tasks.completed,tasks.assigned_user,tasks.assigned_user_name,tasks.date_created`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var deadline, created string
	var completed int
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &deadline, &completed, &t.AssignedUser, &t.AssignedUserName, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	var err error
	if t.Deadline, err = parseTime(deadline); err != nil {
		return t, err
	}
	if t.DateCreated, err = parseTime(created); err != nil {
		return t, err
	}
	t.Completed = completed != 0
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,name,description,deadline,completed,assigned_user,assigned_user_name,date_created) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.Description, formatTime(t.Deadline), boolInt(t.Completed), t.AssignedUser, t.AssignedUserName, formatTime(t.DateCreated))
	return err
}

// UpdateTask rewrites every mutable field; date_created is left alone.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET name=?, description=?, deadline=?, completed=?, assigned_user=?, assigned_user_name=? WHERE id=?`,
		t.Name, t.Description, formatTime(t.Deadline), boolInt(t.Completed), t.AssignedUser, t.AssignedUserName, t.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// SetTaskOwner updates only the owner reference and its cached name.
func (r Repo) SetTaskOwner(ctx context.Context, tx *sql.Tx, taskID, userID, userName string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET assigned_user=?, assigned_user_name=? WHERE id=?`, userID, userName, taskID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return getTask(ctx, tx, id)
}

func getTask(ctx context.Context, q queryer, id string) (domain.Task, error) {
	return scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// FindTasks runs a compiled query statement against the tasks table.
func (r Repo) FindTasks(ctx context.Context, st query.Statement) ([]domain.Task, error) {
	tail, args := st.Tail()
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasks(ctx context.Context, st query.Statement) (int, error) {
	st.Count = true
	tail, args := st.Tail()
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks`+tail, args...).Scan(&n)
	return n, err
}

// ListTasksByIDTx loads the given tasks inside tx, in the order requested.
// Missing ids are reported through ErrNotFound wrapped with the id.
func (r Repo) ListTasksByIDTx(ctx context.Context, tx *sql.Tx, ids []string) ([]domain.Task, error) {
	res := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := getTask(ctx, tx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &MissingError{Kind: "task", ID: id}
			}
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// MissingError names a referenced record that does not exist.
type MissingError struct {
	Kind string
	ID   string
}

func (e *MissingError) Error() string { return e.Kind + " " + e.ID + " not found" }

func (e *MissingError) Unwrap() error { return ErrNotFound }
