// Package app wires a workspace into a running engine: database, schema,
// configuration and logger.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"taskroster/internal/config"
	"taskroster/internal/db"
	"taskroster/internal/engine"
	"taskroster/internal/logging"
	"taskroster/internal/migrate"
)

type App struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Logger    *slog.Logger
	Engine    engine.Engine

	logCloser io.Closer
}

// Options controls Open. A nil Config is loaded from the workspace, falling
// back to defaults when taskroster.yml is absent.
type Options struct {
	Workspace string
	Config    *config.Config
	LogOutput io.Writer
}

// Open prepares the workspace database, applies pending migrations and
// builds the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOptional(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := opts.LogOutput
	if out == nil {
		out = io.Discard
	}
	logger, closer, err := logging.New(cfg.Log, out)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		closer.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("workspace opened", slog.String("db", db.Path(opts.Workspace)))
	return &App{
		Workspace: opts.Workspace,
		DB:        conn,
		Config:    cfg,
		Logger:    logger,
		Engine:    engine.New(conn, cfg, logger),
		logCloser: closer,
	}, nil
}

func (a *App) Close() error {
	err := a.DB.Close()
	if cerr := a.logCloser.Close(); err == nil {
		err = cerr
	}
	return err
}
