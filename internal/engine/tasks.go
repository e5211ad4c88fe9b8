package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"taskroster/internal/domain"
	"taskroster/internal/engine/relation"
	"taskroster/internal/events"
	"taskroster/internal/query"
	"taskroster/internal/repo"
)

// TaskInput is the client-supplied state of a task. Updates replace the
// whole record, so absent fields fall back to their defaults.
type TaskInput struct {
	Name         string
	Description  string
	Deadline     string
	Completed    bool
	AssignedUser string
}

type taskFields struct {
	name        string
	description string
	deadline    time.Time
	owner       string
}

func validateTask(in TaskInput) (taskFields, error) {
	f := taskFields{
		name:        strings.TrimSpace(in.Name),
		description: in.Description,
	}
	if f.name == "" {
		return f, domain.InvalidArgument("task name is required")
	}
	if strings.TrimSpace(in.Deadline) == "" {
		return f, domain.InvalidArgument("task deadline is required")
	}
	deadline, err := domain.ParseInstant(in.Deadline)
	if err != nil {
		return f, domain.InvalidArgument("task deadline: %v", err)
	}
	f.deadline = deadline.Truncate(time.Millisecond)
	if owner := strings.TrimSpace(in.AssignedUser); owner != "" {
		if f.owner, err = parseID("user", owner); err != nil {
			return f, err
		}
	}
	return f, nil
}

// ownerOf loads the user a task is being assigned to.
func (e Engine) ownerOf(ctx context.Context, tx *sql.Tx, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, nil
	}
	u, err := e.Repo.GetUserTx(ctx, tx, userID)
	if err != nil {
		return nil, referenceErr("assigned user", userID, err)
	}
	return &u, nil
}

func (e Engine) ListTasks(ctx context.Context, q query.Query) (query.Result, error) {
	st, err := query.Compile(q, repo.TaskSchema)
	if err != nil {
		return query.Result{}, err
	}
	if q.Count {
		n, err := e.Repo.CountTasks(ctx, st)
		if err != nil {
			return query.Result{}, domain.Internal("count tasks", err)
		}
		return query.Result{CountOnly: true, Count: n}, nil
	}
	st.Limit = e.effectiveLimit(q, e.queryConfig().TaskDefaultLimit)
	tasks, err := e.Repo.FindTasks(ctx, st)
	if err != nil {
		return query.Result{}, domain.Internal("list tasks", err)
	}
	docs, err := project(tasks, st.Projection)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{Count: len(docs), Items: docs}, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	id, err := parseID("task", id)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, lookupErr("task", id, err)
	}
	return t, nil
}

// SelectTask is GetTask rendered through a projection.
func (e Engine) SelectTask(ctx context.Context, id string, p query.Projection) (query.Document, error) {
	p, err := projectionFor(p, repo.TaskSchema)
	if err != nil {
		return nil, err
	}
	t, err := e.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := query.Project(t, p)
	if err != nil {
		return nil, domain.Internal("render task", err)
	}
	return doc, nil
}

func (e Engine) CreateTask(ctx context.Context, in TaskInput) (domain.Task, error) {
	f, err := validateTask(in)
	if err != nil {
		return domain.Task{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	owner, err := e.ownerOf(ctx, tx, f.owner)
	if err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:               e.newID(),
		Name:             f.name,
		Description:      f.description,
		Deadline:         f.deadline,
		Completed:        in.Completed,
		AssignedUserName: domain.UnassignedName,
		DateCreated:      e.now(),
	}
	if owner != nil {
		t.AssignedUser, t.AssignedUserName = owner.ID, owner.Name
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, domain.Internal("insert task", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskCreated, "task", t.ID, events.Payload{"name": t.Name, "completed": t.Completed}); err != nil {
		return domain.Task{}, domain.Internal("append event", err)
	}
	if owner != nil {
		if err := e.Sync.Claim(ctx, tx, t, *owner); err != nil {
			return domain.Task{}, domain.Internal("claim task", err)
		}
		if err := e.Events.Append(ctx, tx, events.TaskClaimed, "task", t.ID, events.Payload{"user_id": owner.ID}); err != nil {
			return domain.Task{}, domain.Internal("append event", err)
		}
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	e.log().Debug("task created", slog.String("task_id", t.ID), slog.String("assigned_user", t.AssignedUser))
	return t, nil
}

// UpdateTask replaces every mutable field of the task and moves it between
// pending sets as its owner and completion state require.
func (e Engine) UpdateTask(ctx context.Context, id string, in TaskInput) (domain.Task, error) {
	id, err := parseID("task", id)
	if err != nil {
		return domain.Task{}, err
	}
	f, err := validateTask(in)
	if err != nil {
		return domain.Task{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	prev, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, lookupErr("task", id, err)
	}
	owner, err := e.ownerOf(ctx, tx, f.owner)
	if err != nil {
		return domain.Task{}, err
	}
	next := prev
	next.Name = f.name
	next.Description = f.description
	next.Deadline = f.deadline
	next.Completed = in.Completed
	next.AssignedUser, next.AssignedUserName = "", domain.UnassignedName
	if owner != nil {
		next.AssignedUser, next.AssignedUserName = owner.ID, owner.Name
	}
	if err := e.Repo.UpdateTask(ctx, tx, next); err != nil {
		return domain.Task{}, lookupErr("task", id, err)
	}
	if err := e.Sync.Reconcile(ctx, tx, id, relation.Of(prev), relation.Of(next)); err != nil {
		return domain.Task{}, domain.Internal("reconcile pending tasks", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskUpdated, "task", id, events.Payload{
		"completed":     next.Completed,
		"assigned_user": next.AssignedUser,
	}); err != nil {
		return domain.Task{}, domain.Internal("append event", err)
	}
	if prev.AssignedUser != next.AssignedUser {
		if prev.AssignedUser != "" {
			if err := e.Events.Append(ctx, tx, events.TaskReleased, "task", id, events.Payload{"user_id": prev.AssignedUser}); err != nil {
				return domain.Task{}, domain.Internal("append event", err)
			}
		}
		if next.AssignedUser != "" {
			if err := e.Events.Append(ctx, tx, events.TaskClaimed, "task", id, events.Payload{"user_id": next.AssignedUser}); err != nil {
				return domain.Task{}, domain.Internal("append event", err)
			}
		}
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	e.log().Debug("task updated", slog.String("task_id", id),
		slog.String("previous_owner", prev.AssignedUser), slog.String("owner", next.AssignedUser),
		slog.Bool("completed", next.Completed))
	return next, nil
}

// DeleteTask removes the task and releases it from its owner's pending set.
// The deleted record is returned.
func (e Engine) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	id, err := parseID("task", id)
	if err != nil {
		return domain.Task{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	prev, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, lookupErr("task", id, err)
	}
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return domain.Task{}, lookupErr("task", id, err)
	}
	if err := e.Sync.Release(ctx, tx, id, prev.AssignedUser); err != nil {
		return domain.Task{}, domain.Internal("release task", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskDeleted, "task", id, events.Payload{"assigned_user": prev.AssignedUser}); err != nil {
		return domain.Task{}, domain.Internal("append event", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Task{}, err
	}
	e.log().Debug("task deleted", slog.String("task_id", id))
	return prev, nil
}
