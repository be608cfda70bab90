package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// newMigrator returns a goose provider over the embedded schema files.
func newMigrator(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return p, nil
}

// Migrate applies pending schema migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	p, err := newMigrator(s.db)
	if err != nil {
		return err
	}

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Debug("applied migration",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration))
	}
	return nil
}

// SchemaVersion returns the latest applied migration version.
func (s *SQLiteStore) SchemaVersion() (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	p, err := newMigrator(s.db)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(context.Background())
}

// Path returns the database file the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}
