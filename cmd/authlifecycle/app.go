package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-auth-lifecycle/activitymap"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// App holds the wired lifecycle for one CLI invocation.
type App struct {
	config    AppConfig
	logger    *glog.BaseLogger
	db        *bun.DB
	repo      auth.RepositoryManager
	postman   *auth.Postman
	lifecycle *auth.Lifecycle
}

func newLogger() *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("authlifecycle"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func newApp(cfg AppConfig, lgr *glog.BaseLogger) (*App, error) {
	app := &App{config: cfg, logger: lgr}

	db, err := openDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	app.db = db

	activity := app.GetLogger("activity")
	opts := []auth.Option{
		auth.WithLoggerProvider(app),
		auth.WithActivitySink(activitymap.NewSink(func(_ context.Context, record activitymap.Normalized) error {
			activity.Info(record.Verb,
				"actor_id", record.ActorID,
				"object_id", record.ObjectID,
				"metadata", record.Metadata,
			)
			return nil
		})),
	}

	app.repo = auth.NewRepositoryManager(db,
		auth.WithHashidIDs(cfg.UseHashid),
		auth.WithPrincipalsOptions(opts...),
	)
	app.repo.MustValidate()

	renderer, err := auth.NewRenderer(cfg.Mail.From, nil)
	if err != nil {
		return nil, err
	}

	var transport auth.Transport = auth.LogTransport{Logger: app.GetLogger("mail")}
	if cfg.Mail.Transport == "smtp" {
		smtpCfg := cfg.Mail.SMTP
		if smtpCfg.From == "" {
			smtpCfg.From = cfg.Mail.From
		}
		transport = auth.NewSMTPTransport(smtpCfg)
	}

	app.postman = auth.NewPostman(renderer, transport,
		auth.WithDeliverLater(cfg.Lifecycle.DeliverLater),
		auth.WithPostmanWorkers(cfg.Mail.Workers),
		auth.WithPostmanBuffer(cfg.Mail.Buffer),
		auth.WithPostmanLogger(app.GetLogger("postman")),
	)

	app.lifecycle, err = auth.NewLifecycle(cfg.Lifecycle, app.repo.Principals(), app.postman, opts...)
	if err != nil {
		return nil, err
	}

	return app, nil
}

func openDB(cfg DatabaseConfig) (*bun.DB, error) {
	var db *bun.DB

	switch cfg.Driver {
	case "sqlite", "sqlite3", "":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite database")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case "postgres", "pgx":
		sqldb, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open postgres database")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, errors.New(fmt.Sprintf("unsupported database driver %q", cfg.Driver), errors.CategoryBadInput)
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return db, nil
}

// Close drains deferred mail and closes the database.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.postman != nil {
		if err := a.postman.Close(ctx); err != nil {
			a.GetLogger("app").Warn("mail queue not drained", "error", err)
		}
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
