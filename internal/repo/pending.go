package repo

import (
	"context"
	"database/sql"
)

// AddPendingTask puts taskID in userID's pending set. A task is pending for
// at most one user, so an existing row is moved rather than duplicated.
func (r Repo) AddPendingTask(ctx context.Context, tx *sql.Tx, userID, taskID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pending_tasks(task_id,user_id) VALUES (?,?)
ON CONFLICT(task_id) DO UPDATE SET user_id=excluded.user_id`, taskID, userID)
	return err
}

// RemovePendingTask drops taskID from userID's pending set. Removing an
// absent member is not an error.
func (r Repo) RemovePendingTask(ctx context.Context, tx *sql.Tx, userID, taskID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM pending_tasks WHERE task_id=? AND user_id=?`, taskID, userID)
	return err
}

// ResyncPendingTasks rebuilds userID's pending set from the tasks it owns
// that are not completed.
func (r Repo) ResyncPendingTasks(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_tasks WHERE user_id=?`, userID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO pending_tasks(task_id,user_id)
SELECT id, assigned_user FROM tasks WHERE assigned_user=? AND completed=0
ON CONFLICT(task_id) DO UPDATE SET user_id=excluded.user_id`, userID)
	return err
}

// PendingOwner returns the user whose pending set holds taskID, or "".
func (r Repo) PendingOwner(ctx context.Context, taskID string) (string, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx, `SELECT user_id FROM pending_tasks WHERE task_id=?`, taskID).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return userID, err
}

// Violation is one disagreement between the task side and the pending sets.
type Violation struct {
	TaskID string `json:"task_id"`
	UserID string `json:"user_id,omitempty"`
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// Violations scans both sides of the ownership relation. Pending rows are
// keyed by task id, so a task can never sit in two sets; the remaining
// checks cover missing and stray memberships.
func (r Repo) Violations(ctx context.Context) ([]Violation, error) {
	var res []Violation
	missing, err := r.DB.QueryContext(ctx, `SELECT t.id, t.assigned_user, COALESCE(p.user_id,'')
FROM tasks t LEFT JOIN pending_tasks p ON p.task_id=t.id
WHERE t.assigned_user<>'' AND t.completed=0 AND COALESCE(p.user_id,'')<>t.assigned_user
ORDER BY t.rowid`)
	if err != nil {
		return nil, err
	}
	defer missing.Close()
	for missing.Next() {
		var taskID, owner, holder string
		if err := missing.Scan(&taskID, &owner, &holder); err != nil {
			return nil, err
		}
		detail := "owner does not list the task as pending"
		if holder != "" {
			detail = "task is pending for " + holder
		}
		res = append(res, Violation{TaskID: taskID, UserID: owner, Rule: "pending-listed", Detail: detail})
	}
	if err := missing.Err(); err != nil {
		return nil, err
	}

	stray, err := r.DB.QueryContext(ctx, `SELECT p.task_id, p.user_id, t.completed
FROM pending_tasks p JOIN tasks t ON t.id=p.task_id
WHERE t.assigned_user='' OR t.completed<>0
ORDER BY p.rowid`)
	if err != nil {
		return nil, err
	}
	defer stray.Close()
	for stray.Next() {
		var taskID, userID string
		var completed int
		if err := stray.Scan(&taskID, &userID, &completed); err != nil {
			return nil, err
		}
		detail := "unassigned task is listed as pending"
		if completed != 0 {
			detail = "completed task is listed as pending"
		}
		res = append(res, Violation{TaskID: taskID, UserID: userID, Rule: "no-stray-pending", Detail: detail})
	}
	return res, stray.Err()
}
