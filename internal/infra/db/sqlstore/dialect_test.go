package sqlstore

import (
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `DELETE FROM audit_history WHERE tenant_id=? AND id=?`
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, q, MySQL.Rebind(q))
	assert.Equal(t, `DELETE FROM audit_history WHERE tenant_id=$1 AND id=$2`, Postgres.Rebind(q))
}

func TestSplitStatements(t *testing.T) {
	script := "-- schema\nCREATE TABLE a (x INT);\n\nCREATE INDEX i ON a (x);\n"
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, splitStatements(script))
}

func TestUniqueViolation(t *testing.T) {
	dup := errors.New("duplicate")
	d := SQLite.WithUniqueViolation(func(err error) bool { return errors.Is(err, dup) })

	assert.True(t, d.IsUniqueViolation(fmt.Errorf("exec: %w", dup)))
	assert.False(t, d.IsUniqueViolation(errors.New("disk full")))
	assert.False(t, d.IsUniqueViolation(nil))
	assert.False(t, SQLite.IsUniqueViolation(dup), "no detector configured")
}

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"migrations/002_b.sql":   {Data: []byte("-- second\nALTER TABLE a ADD COLUMN y INT;\n")},
		"migrations/001_a.sql":   {Data: []byte("CREATE TABLE a (x INT);\nCREATE INDEX i ON a (x);\n")},
		"migrations/README.md":   {Data: []byte("not sql")},
		"migrations/sub/003.sql": {Data: []byte("CREATE TABLE z (x INT);")},
	}
	migs, err := LoadMigrations(files, "migrations")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, "001_a.sql", migs[0].Version)
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, migs[0].Statements)
	assert.Equal(t, "002_b.sql", migs[1].Version)
	assert.Equal(t, []string{"ALTER TABLE a ADD COLUMN y INT"}, migs[1].Statements)

	_, err = LoadMigrations(fstest.MapFS{"migrations/001.sql": {Data: []byte("-- only a comment\n")}}, "migrations")
	assert.Error(t, err)
	_, err = LoadMigrations(fstest.MapFS{}, "missing")
	assert.Error(t, err)
}
