package mysql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/adguardian/internal/infra/db/sqlstore"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var dialect = sqlstore.MySQL.WithUniqueViolation(isUniqueViolation)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
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

// isUniqueViolation matches ER_DUP_ENTRY.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
