package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bryanwahyu/adguardian/internal/infra/db/sqlstore"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var dialect = sqlstore.SQLite.WithUniqueViolation(isUniqueViolation)

// Connect opens (and creates) the database file at path and applies the embedded migrations.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := sqlstore.NewMigrator(db, dialect, migrationFS, "migrations").Up(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewHistoryRepository(db *sql.DB) *sqlstore.HistoryRepository {
	return sqlstore.NewHistoryRepository(db, dialect)
}

func NewLibraryRepository(db *sql.DB) *sqlstore.LibraryRepository {
	return sqlstore.NewLibraryRepository(db, dialect)
}

// isUniqueViolation matches SQLITE_CONSTRAINT_UNIQUE, or the primary constraint code
// when extended codes are off.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
