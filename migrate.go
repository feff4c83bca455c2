package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// Migrate applies the embedded principals schema to db. Migration output
// goes to the logger configured through opts.
func Migrate(ctx context.Context, db *bun.DB, opts ...Option) error {
	name := db.Dialect().Name()
	logger := newSettings("migrations", opts...).logger

	migrations, err := MigrationsFor(name)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load migrations")
	}

	gooseDialect := "sqlite3"
	if name == dialect.PG {
		gooseDialect = "pgx"
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(gooseLogger{logger: logger})
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect").
			WithMetadata(map[string]any{"dialect": gooseDialect})
	}

	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations").
			WithMetadata(map[string]any{"dialect": gooseDialect})
	}

	return nil
}

// gooseLogger routes goose output to a Logger. Fatalf is logged as an error;
// goose returns the failure to UpContext callers.
type gooseLogger struct {
	logger Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
