package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/adguardian/internal/infra/db/sqlstore"
)

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := sqlstore.LoadMigrations(migrationFS, "migrations")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, "001_init.sql", migs[0].Version)
	assert.Equal(t, "002_complainee_name_unique.sql", migs[1].Version)

	var tables []string
	for _, m := range migs {
		for _, stmt := range m.Statements {
			upper := strings.ToUpper(stmt)
			assert.True(t, strings.HasPrefix(upper, "CREATE"), stmt)
			assert.NotContains(t, stmt, "?")
			assert.NotContains(t, upper, "AUTOINCREMENT", "sqlite syntax in postgres migration")
			assert.NotContains(t, upper, "ENGINE=", "mysql syntax in postgres migration")
			if strings.HasPrefix(upper, "CREATE TABLE") {
				assert.Contains(t, upper, "IF NOT EXISTS")
				tables = append(tables, strings.Fields(stmt)[5])
			}
		}
	}
	assert.Equal(t, []string{"audit_history", "complainees"}, tables)
	assert.Contains(t, migs[1].Statements[0], "(tenant_id, lower(name))")
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "uq_complainees_tenant_name"`}
	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.True(t, dialect.IsUniqueViolation(dup))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23502", Message: "null value"}))
	assert.False(t, isUniqueViolation(errors.New("duplicate key")))
}
