package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
)

// SchemaVersion tags every stored result_json payload.
const SchemaVersion = 1

type HistoryRepository struct {
	db *sql.DB
	d  Dialect
}

func NewHistoryRepository(db *sql.DB, d Dialect) *HistoryRepository {
	return &HistoryRepository{db: db, d: d}
}

// Append inserts item as the newest entry and trims rows beyond capacity, atomically.
func (r *HistoryRepository) Append(ctx context.Context, tenant string, item *domain.HistoryItem, capacity int) error {
	result, err := json.Marshal(item.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	evidence, err := json.Marshal(nonNil(item.Evidence))
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const ins = `
INSERT INTO audit_history
  (id, tenant_id, product_name, summary, result_json, evidence_json, schema_version, created_at)
VALUES (?,?,?,?,?,?,?,?)`
	if _, err := tx.ExecContext(ctx, r.d.Rebind(ins),
		item.ID, tenant, item.ProductName, item.Summary, string(result), string(evidence), SchemaVersion, item.Timestamp); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if capacity > 0 {
		// mysql cannot LIMIT inside IN (subquery), so collect the overflow ids first
		rows, err := tx.QueryContext(ctx, r.d.Rebind(`
SELECT id FROM audit_history
WHERE tenant_id=?
ORDER BY created_at DESC, seq DESC
LIMIT ? OFFSET ?`), tenant, 1<<30, capacity)
		if err != nil {
			return fmt.Errorf("select overflow: %w", err)
		}
		var stale []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			stale = append(stale, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, r.d.Rebind(`DELETE FROM audit_history WHERE tenant_id=? AND id=?`), tenant, id); err != nil {
				return fmt.Errorf("trim history: %w", err)
			}
		}
	}
	return tx.Commit()
}

// List returns the tenant's history, newest first.
func (r *HistoryRepository) List(ctx context.Context, tenant string) ([]*domain.HistoryItem, error) {
	const q = `
SELECT id, product_name, summary, result_json, evidence_json, created_at
FROM audit_history
WHERE tenant_id=?
ORDER BY created_at DESC, seq DESC`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.HistoryItem{}
	for rows.Next() {
		it, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Get returns sql.ErrNoRows when the item does not exist for tenant.
func (r *HistoryRepository) Get(ctx context.Context, tenant, id string) (*domain.HistoryItem, error) {
	const q = `
SELECT id, product_name, summary, result_json, evidence_json, created_at
FROM audit_history
WHERE tenant_id=? AND id=?`
	return scanHistory(r.db.QueryRowContext(ctx, r.d.Rebind(q), tenant, id))
}

func (r *HistoryRepository) Delete(ctx context.Context, tenant, id string) error {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`DELETE FROM audit_history WHERE tenant_id=? AND id=?`), tenant, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *HistoryRepository) Clear(ctx context.Context, tenant string) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`DELETE FROM audit_history WHERE tenant_id=?`), tenant)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(s scanner) (*domain.HistoryItem, error) {
	var (
		it       domain.HistoryItem
		result   string
		evidence sql.NullString
	)
	if err := s.Scan(&it.ID, &it.ProductName, &it.Summary, &result, &evidence, &it.Timestamp); err != nil {
		return nil, err
	}
	var res domain.AnalysisResult
	if err := json.Unmarshal([]byte(result), &res); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", it.ID, err)
	}
	it.Result = &res
	if evidence.Valid && evidence.String != "" {
		if err := json.Unmarshal([]byte(evidence.String), &it.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence %s: %w", it.ID, err)
		}
		if len(it.Evidence) == 0 {
			it.Evidence = nil
		}
	}
	return &it, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
