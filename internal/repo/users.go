package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"taskroster/internal/domain"
	"taskroster/internal/query"
)

const userColumns = `users.id,users.name,users.email,users.date_created,
(SELECT json_group_array(p.task_id) FROM pending_tasks p WHERE p.user_id=users.id) AS pending_tasks`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var created string
	var pending sql.NullString
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &created, &pending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, ErrNotFound
		}
		return u, err
	}
	var err error
	if u.DateCreated, err = parseTime(created); err != nil {
		return u, err
	}
	u.PendingTasks = []string{}
	if pending.Valid && pending.String != "" {
		if err := json.Unmarshal([]byte(pending.String), &u.PendingTasks); err != nil {
			return u, fmt.Errorf("decode pending tasks of %s: %w", u.ID, err)
		}
	}
	return u, nil
}

// InsertUser stores the user row only; pending tasks are written through
// AddPendingTask.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,name,email,date_created) VALUES (?,?,?,?)`,
		u.ID, u.Name, u.Email, formatTime(u.DateCreated))
	return err
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET name=?, email=? WHERE id=?`, u.Name, u.Email, u.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return getUser(ctx, r.DB, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return getUser(ctx, tx, id)
}

func getUser(ctx context.Context, q queryer, id string) (domain.User, error) {
	return scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// FindUserByEmailTx looks up a user by normalized email.
func (r Repo) FindUserByEmailTx(ctx context.Context, tx *sql.Tx, email string) (domain.User, error) {
	return scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

// FindUsers runs a compiled query statement against the users table.
func (r Repo) FindUsers(ctx context.Context, st query.Statement) ([]domain.User, error) {
	tail, args := st.Tail()
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) CountUsers(ctx context.Context, st query.Statement) (int, error) {
	st.Count = true
	tail, args := st.Tail()
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`+tail, args...).Scan(&n)
	return n, err
}
