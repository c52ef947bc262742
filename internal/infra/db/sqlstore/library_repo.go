package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
)

type LibraryRepository struct {
	db *sql.DB
	d  Dialect
}

func NewLibraryRepository(db *sql.DB, d Dialect) *LibraryRepository {
	return &LibraryRepository{db: db, d: d}
}

// List returns the tenant's complainees, most recently added first.
func (r *LibraryRepository) List(ctx context.Context, tenant string) ([]*domain.Complainee, error) {
	const q = `
SELECT id, name, note, added_at
FROM complainees
WHERE tenant_id=?
ORDER BY added_at DESC, seq DESC`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Complainee{}
	for rows.Next() {
		var c domain.Complainee
		if err := rows.Scan(&c.ID, &c.Name, &c.Note, &c.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Add inserts c. Names are unique per tenant regardless of case; a clash reports
// domain.ErrComplaineeExists even when two requests race past the service check.
func (r *LibraryRepository) Add(ctx context.Context, tenant string, c *domain.Complainee) error {
	const q = `INSERT INTO complainees (id, tenant_id, name, note, added_at) VALUES (?,?,?,?,?)`
	if _, err := r.db.ExecContext(ctx, r.d.Rebind(q), c.ID, tenant, c.Name, c.Note, c.AddedAt); err != nil {
		if r.d.IsUniqueViolation(err) {
			return domain.ErrComplaineeExists
		}
		return fmt.Errorf("insert complainee: %w", err)
	}
	return nil
}

func (r *LibraryRepository) Delete(ctx context.Context, tenant, id string) error {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`DELETE FROM complainees WHERE tenant_id=? AND id=?`), tenant, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
