package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Migrator applies embedded SQL files in name order (001_x.sql, 002_y.sql, ...).
// Applied files are recorded in schema_migrations and skipped on later runs.
type Migrator struct {
	db      *sql.DB
	dialect Dialect
	files   fs.FS
	dir     string
}

func NewMigrator(db *sql.DB, dialect Dialect, files fs.FS, dir string) *Migrator {
	return &Migrator{db: db, dialect: dialect, files: files, dir: dir}
}

func (m *Migrator) Up(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
  version VARCHAR(191) NOT NULL PRIMARY KEY,
  applied_at BIGINT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := LoadMigrations(m.files, m.dir)
	if err != nil {
		return err
	}
	for _, mig := range migrations {
		if err := ctx.Err(); err != nil {
			return err
		}
		applied, err := m.applied(ctx, mig.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return err
		}
	}
	return nil
}

// Migration is one embedded SQL file split into executable statements.
type Migration struct {
	Version    string
	Statements []string
}

// LoadMigrations reads the .sql files under dir in name order.
func LoadMigrations(files fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		raw, err := fs.ReadFile(files, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		stmts := splitStatements(string(raw))
		if len(stmts) == 0 {
			return nil, fmt.Errorf("migration %s has no statements", entry.Name())
		}
		out = append(out, Migration{Version: entry.Name(), Statements: stmts})
	}
	return out, nil
}

func (m *Migrator) applied(ctx context.Context, version string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx, m.dialect.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), version).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return n > 0, nil
}

// apply runs statements one by one; mysql rejects multi-statement Exec by default.
func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range mig.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %s: %w", mig.Version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, m.dialect.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
		mig.Version, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("record migration %s: %w", mig.Version, err)
	}
	return tx.Commit()
}

func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		lines := strings.Split(s, "\n")
		kept := lines[:0]
		for _, l := range lines {
			if strings.HasPrefix(strings.TrimSpace(l), "--") {
				continue
			}
			kept = append(kept, l)
		}
		if stmt := strings.TrimSpace(strings.Join(kept, "\n")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
