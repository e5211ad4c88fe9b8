package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"taskroster/internal/domain"
	"taskroster/internal/events"
	"taskroster/internal/query"
	"taskroster/internal/repo"
)

// UserInput is the client-supplied state of a user. PendingTasks names the
// tasks the user should own; the stored set is derived from task state.
type UserInput struct {
	Name         string
	Email        string
	PendingTasks []string
}

type userFields struct {
	name    string
	email   string
	pending []string
}

func validateUser(in UserInput) (userFields, error) {
	f := userFields{
		name:  strings.TrimSpace(in.Name),
		email: strings.ToLower(strings.TrimSpace(in.Email)),
	}
	if f.name == "" {
		return f, domain.InvalidArgument("user name is required")
	}
	if f.email == "" {
		return f, domain.InvalidArgument("user email is required")
	}
	seen := map[string]bool{}
	for _, raw := range in.PendingTasks {
		id, err := parseID("task", raw)
		if err != nil {
			return f, err
		}
		if !seen[id] {
			seen[id] = true
			f.pending = append(f.pending, id)
		}
	}
	return f, nil
}

// ensureEmailFree fails with Conflict when another user holds email.
func (e Engine) ensureEmailFree(ctx context.Context, tx *sql.Tx, email, self string) error {
	other, err := e.Repo.FindUserByEmailTx(ctx, tx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.Internal("check email", err)
	}
	if other.ID != self {
		return domain.Conflict("email already exists")
	}
	return nil
}

// loadTasks resolves task ids named in a user payload.
func (e Engine) loadTasks(ctx context.Context, tx *sql.Tx, ids []string) ([]domain.Task, error) {
	tasks, err := e.Repo.ListTasksByIDTx(ctx, tx, ids)
	if err != nil {
		var missing *repo.MissingError
		if errors.As(err, &missing) {
			return nil, domain.InvalidArgument("task %s does not exist", missing.ID)
		}
		return nil, domain.Internal("load tasks", err)
	}
	return tasks, nil
}

func (e Engine) ListUsers(ctx context.Context, q query.Query) (query.Result, error) {
	st, err := query.Compile(q, repo.UserSchema)
	if err != nil {
		return query.Result{}, err
	}
	if q.Count {
		n, err := e.Repo.CountUsers(ctx, st)
		if err != nil {
			return query.Result{}, domain.Internal("count users", err)
		}
		return query.Result{CountOnly: true, Count: n}, nil
	}
	st.Limit = e.effectiveLimit(q, e.queryConfig().UserDefaultLimit)
	users, err := e.Repo.FindUsers(ctx, st)
	if err != nil {
		return query.Result{}, domain.Internal("list users", err)
	}
	docs, err := project(users, st.Projection)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{Count: len(docs), Items: docs}, nil
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	id, err := parseID("user", id)
	if err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, lookupErr("user", id, err)
	}
	return u, nil
}

func (e Engine) SelectUser(ctx context.Context, id string, p query.Projection) (query.Document, error) {
	p, err := projectionFor(p, repo.UserSchema)
	if err != nil {
		return nil, err
	}
	u, err := e.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := query.Project(u, p)
	if err != nil {
		return nil, domain.Internal("render user", err)
	}
	return doc, nil
}

// CreateUser stores a new user and transfers every listed task to it.
// Listed tasks that are already completed change owner but do not become
// pending.
func (e Engine) CreateUser(ctx context.Context, in UserInput) (domain.User, error) {
	f, err := validateUser(in)
	if err != nil {
		return domain.User{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.ensureEmailFree(ctx, tx, f.email, ""); err != nil {
		return domain.User{}, err
	}
	tasks, err := e.loadTasks(ctx, tx, f.pending)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           e.newID(),
		Name:         f.name,
		Email:        f.email,
		PendingTasks: []string{},
		DateCreated:  e.now(),
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.Conflict("email already exists")
		}
		return domain.User{}, domain.Internal("insert user", err)
	}
	if err := e.Events.Append(ctx, tx, events.UserCreated, "user", u.ID, events.Payload{"name": u.Name, "email": u.Email}); err != nil {
		return domain.User{}, domain.Internal("append event", err)
	}
	if err := e.transferAll(ctx, tx, tasks, u); err != nil {
		return domain.User{}, err
	}
	created, err := e.Repo.GetUserTx(ctx, tx, u.ID)
	if err != nil {
		return domain.User{}, domain.Internal("reload user", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.User{}, err
	}
	e.log().Debug("user created", slog.String("user_id", u.ID), slog.Int("claimed", len(tasks)))
	return created, nil
}

func (e Engine) transferAll(ctx context.Context, tx *sql.Tx, tasks []domain.Task, u domain.User) error {
	for _, t := range tasks {
		if err := e.Sync.Transfer(ctx, tx, t, u); err != nil {
			return domain.Internal("transfer task", err)
		}
		payload := events.Payload{"user_id": u.ID}
		if t.AssignedUser != "" && t.AssignedUser != u.ID {
			payload["previous_user_id"] = t.AssignedUser
		}
		if err := e.Events.Append(ctx, tx, events.TaskClaimed, "task", t.ID, payload); err != nil {
			return domain.Internal("append event", err)
		}
	}
	return nil
}

// UpdateUser replaces the user's name and email and applies the difference
// between the stored and requested pending sets: dropped tasks are
// unassigned, new ones are transferred to the user. Tasks in both sets are
// left alone, so their cached owner name keeps its old value after a rename.
// The stored pending set is then rebuilt from the tasks the user owns.
func (e Engine) UpdateUser(ctx context.Context, id string, in UserInput) (domain.User, error) {
	id, err := parseID("user", id)
	if err != nil {
		return domain.User{}, err
	}
	f, err := validateUser(in)
	if err != nil {
		return domain.User{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	prev, err := e.Repo.GetUserTx(ctx, tx, id)
	if err != nil {
		return domain.User{}, lookupErr("user", id, err)
	}
	if err := e.ensureEmailFree(ctx, tx, f.email, id); err != nil {
		return domain.User{}, err
	}
	removed, added := diff(prev.PendingTasks, f.pending)
	addedTasks, err := e.loadTasks(ctx, tx, added)
	if err != nil {
		return domain.User{}, err
	}

	next := prev
	next.Name, next.Email = f.name, f.email
	if err := e.Repo.UpdateUser(ctx, tx, next); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.Conflict("email already exists")
		}
		return domain.User{}, lookupErr("user", id, err)
	}
	if err := e.Events.Append(ctx, tx, events.UserUpdated, "user", id, events.Payload{
		"name":    next.Name,
		"email":   next.Email,
		"removed": removed,
		"added":   added,
	}); err != nil {
		return domain.User{}, domain.Internal("append event", err)
	}
	for _, taskID := range removed {
		if err := e.dropPending(ctx, tx, id, taskID); err != nil {
			return domain.User{}, err
		}
	}
	if err := e.transferAll(ctx, tx, addedTasks, next); err != nil {
		return domain.User{}, err
	}
	if err := e.Repo.ResyncPendingTasks(ctx, tx, id); err != nil {
		return domain.User{}, domain.Internal("resync pending tasks", err)
	}
	updated, err := e.Repo.GetUserTx(ctx, tx, id)
	if err != nil {
		return domain.User{}, domain.Internal("reload user", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.User{}, err
	}
	e.log().Debug("user updated", slog.String("user_id", id),
		slog.Int("removed", len(removed)), slog.Int("added", len(added)))
	return updated, nil
}

// dropPending takes taskID out of userID's pending set and clears the
// task's owner if it still points at userID.
func (e Engine) dropPending(ctx context.Context, tx *sql.Tx, userID, taskID string) error {
	if err := e.Sync.Release(ctx, tx, taskID, userID); err != nil {
		return domain.Internal("release task", err)
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.Internal("load task", err)
	}
	if t.AssignedUser != userID {
		return nil
	}
	if err := e.Sync.Unassign(ctx, tx, taskID); err != nil {
		return domain.Internal("unassign task", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskUnassigned, "task", taskID, events.Payload{"user_id": userID}); err != nil {
		return domain.Internal("append event", err)
	}
	return nil
}

// DeleteUser unassigns every pending task of the user and removes it. The
// deleted record is returned. Completed tasks keep their owner reference.
func (e Engine) DeleteUser(ctx context.Context, id string) (domain.User, error) {
	id, err := parseID("user", id)
	if err != nil {
		return domain.User{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	prev, err := e.Repo.GetUserTx(ctx, tx, id)
	if err != nil {
		return domain.User{}, lookupErr("user", id, err)
	}
	for _, taskID := range prev.PendingTasks {
		if err := e.dropPending(ctx, tx, id, taskID); err != nil {
			return domain.User{}, err
		}
	}
	if err := e.Repo.DeleteUser(ctx, tx, id); err != nil {
		return domain.User{}, lookupErr("user", id, err)
	}
	if err := e.Events.Append(ctx, tx, events.UserDeleted, "user", id, events.Payload{"unassigned": prev.PendingTasks}); err != nil {
		return domain.User{}, domain.Internal("append event", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.User{}, err
	}
	e.log().Debug("user deleted", slog.String("user_id", id), slog.Int("unassigned", len(prev.PendingTasks)))
	return prev, nil
}

// diff returns the members of stored missing from requested and the members
// of requested missing from stored, each in input order.
func diff(stored, requested []string) (removed, added []string) {
	inStored := make(map[string]bool, len(stored))
	for _, id := range stored {
		inStored[id] = true
	}
	inRequested := make(map[string]bool, len(requested))
	for _, id := range requested {
		inRequested[id] = true
		if !inStored[id] {
			added = append(added, id)
		}
	}
	for _, id := range stored {
		if !inRequested[id] {
			removed = append(removed, id)
		}
	}
	return removed, added
}
