// Package migrate applies the embedded authority schema (principals, principal_grants).
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/riffid/migrations"
)

// Command is a supported goose command.
type Command string

const (
	CommandUp   Command = "up"
	CommandDown Command = "down"
)

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Run executes cmd against the database at dsn.
func Run(ctx context.Context, dsn string, cmd Command) error {
	db, err := open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	switch cmd {
	case CommandUp:
		return goose.UpContext(ctx, db, ".")
	case CommandDown:
		return goose.DownContext(ctx, db, ".")
	default:
		return fmt.Errorf("migrate: unknown command %q", cmd)
	}
}

// Up runs all pending migrations.
func Up(ctx context.Context, dsn string) error { return Run(ctx, dsn, CommandUp) }

// Version reports the applied schema version.
func Version(ctx context.Context, dsn string) (int64, error) {
	db, err := open(dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return goose.GetDBVersionContext(ctx, db)
}
