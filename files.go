package auth

import (
	"embed"
	"io/fs"

	"github.com/uptrace/bun/dialect"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsFor returns the migrations written for the given dialect.
func MigrationsFor(name dialect.Name) (fs.FS, error) {
	dir := "data/sql/migrations/sqlite"
	if name == dialect.PG {
		dir = "data/sql/migrations/postgres"
	}
	return fs.Sub(migrationsFS, dir)
}
