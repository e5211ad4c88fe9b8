// Package relation keeps the two sides of task ownership in agreement: the
// owner reference stored on a task and the pending set stored per user.
//
// A task is pending for its owner exactly when it has an owner and is not
// completed. Every operation here is idempotent and touches one row per
// store call; callers run them inside the transaction of the mutation that
// made them necessary.
package relation

import (
	"context"
	"database/sql"

	"taskroster/internal/domain"
)

// Store is the subset of the entity store the synchronizer writes through.
type Store interface {
	SetTaskOwner(ctx context.Context, tx *sql.Tx, taskID, userID, userName string) error
	AddPendingTask(ctx context.Context, tx *sql.Tx, userID, taskID string) error
	RemovePendingTask(ctx context.Context, tx *sql.Tx, userID, taskID string) error
}

// Ownership is the part of a task's state the pending sets depend on.
type Ownership struct {
	UserID    string
	Completed bool
}

func (o Ownership) pending() bool {
	return o.UserID != "" && !o.Completed
}

// Of returns the ownership state of t.
func Of(t domain.Task) Ownership {
	return Ownership{UserID: t.AssignedUser, Completed: t.Completed}
}

// Synchronizer keeps a task's owner reference and its owner's pending set in step.
type Synchronizer struct {
	Store Store
}

// Claim points task at user, refreshing the cached owner name, and sets the
// task's membership in the user's pending set from its completion state.
func (s Synchronizer) Claim(ctx context.Context, tx *sql.Tx, task domain.Task, user domain.User) error {
	if task.AssignedUser != user.ID || task.AssignedUserName != user.Name {
		if err := s.Store.SetTaskOwner(ctx, tx, task.ID, user.ID, user.Name); err != nil {
			return err
		}
	}
	return s.setMembership(ctx, tx, user.ID, task.ID, !task.Completed)
}

// Release drops taskID from the pending set of its previous owner. The task
// record is not touched.
func (s Synchronizer) Release(ctx context.Context, tx *sql.Tx, taskID, previousOwner string) error {
	if previousOwner == "" {
		return nil
	}
	return s.Store.RemovePendingTask(ctx, tx, previousOwner, taskID)
}

// Reconcile restores pending-set membership after a task moved from prev to
// next. The task record itself must already hold next.
func (s Synchronizer) Reconcile(ctx context.Context, tx *sql.Tx, taskID string, prev, next Ownership) error {
	if prev.UserID != "" && prev.UserID != next.UserID {
		if err := s.Store.RemovePendingTask(ctx, tx, prev.UserID, taskID); err != nil {
			return err
		}
	}
	if next.UserID == "" {
		return nil
	}
	return s.setMembership(ctx, tx, next.UserID, taskID, next.pending())
}

// Transfer moves task to user, releasing it from a different current owner
// first.
func (s Synchronizer) Transfer(ctx context.Context, tx *sql.Tx, task domain.Task, user domain.User) error {
	if task.AssignedUser != user.ID {
		if err := s.Release(ctx, tx, task.ID, task.AssignedUser); err != nil {
			return err
		}
	}
	return s.Claim(ctx, tx, task, user)
}

// Unassign clears the owner of taskID. Pending sets are left to the caller.
func (s Synchronizer) Unassign(ctx context.Context, tx *sql.Tx, taskID string) error {
	return s.Store.SetTaskOwner(ctx, tx, taskID, "", domain.UnassignedName)
}

func (s Synchronizer) setMembership(ctx context.Context, tx *sql.Tx, userID, taskID string, present bool) error {
	if present {
		return s.Store.AddPendingTask(ctx, tx, userID, taskID)
	}
	return s.Store.RemovePendingTask(ctx, tx, userID, taskID)
}
