package engine

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskroster/internal/config"
	"taskroster/internal/domain"
	"taskroster/internal/engine/relation"
	"taskroster/internal/events"
	"taskroster/internal/query"
	"taskroster/internal/repo"
)

// Engine runs the task and user operations. Each mutation executes in a
// single transaction: validation, the primary write, the ownership writes
// on the other entity kind and the event log entries commit together.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Sync   relation.Synchronizer
	Events events.Writer
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Sync:   relation.Synchronizer{Store: r},
		Events: events.Writer{},
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC().Truncate(time.Millisecond)
	}
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e Engine) queryConfig() config.QueryConfig {
	if e.Config == nil {
		return config.Default().Query
	}
	return e.Config.Query
}

// begin opens the write transaction for one mutation.
func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Internal("begin transaction", err)
	}
	return tx, nil
}

func (e Engine) commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return domain.Internal("commit", err)
	}
	return nil
}

// parseID rejects identifiers that could never name a record.
func parseID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.InvalidArgument("%s id is required", kind)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", domain.InvalidArgument("malformed %s id %q", kind, id)
	}
	return u.String(), nil
}

// lookupErr turns a store lookup failure into a caller-facing error.
func lookupErr(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFound("%s %s not found", kind, id)
	}
	return domain.Internal("load "+kind, err)
}

// referenceErr is lookupErr for records named inside a payload, which are
// argument errors rather than missing targets.
func referenceErr(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.InvalidArgument("%s %s does not exist", kind, id)
	}
	return domain.Internal("load "+kind, err)
}

// effectiveLimit resolves the page size of a list call: the caller's limit
// when given (0 meaning unbounded), the per-kind default otherwise, both
// capped by max_limit when it is set.
func (e Engine) effectiveLimit(q query.Query, def int) int {
	limit := def
	if q.HasLimit {
		limit = q.Limit
	}
	if ceiling := e.queryConfig().MaxLimit; ceiling > 0 && (limit == 0 || limit > ceiling) {
		limit = ceiling
	}
	return limit
}

func project[T any](items []T, p query.Projection) ([]query.Document, error) {
	docs := make([]query.Document, 0, len(items))
	for _, item := range items {
		doc, err := query.Project(item, p)
		if err != nil {
			return nil, domain.Internal("render document", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// projectionFor validates the projection's field names against schema.
func projectionFor(p query.Projection, schema query.Schema) (query.Projection, error) {
	st, err := query.Compile(query.Query{Projection: p}, schema)
	if err != nil {
		return query.Projection{}, err
	}
	return st.Projection, nil
}

// CheckConsistency reports tasks whose owner reference and the pending sets
// disagree. An empty result means every ownership invariant holds.
func (e Engine) CheckConsistency(ctx context.Context) ([]repo.Violation, error) {
	v, err := e.Repo.Violations(ctx)
	if err != nil {
		return nil, domain.Internal("check consistency", err)
	}
	return v, nil
}

// ListEvents returns the event log newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	evts, err := e.Repo.LatestEvents(ctx, f)
	if err != nil {
		return nil, domain.Internal("list events", err)
	}
	return evts, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
