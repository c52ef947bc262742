package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
	"github.com/bryanwahyu/adguardian/internal/infra/db/sqlstore"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Connect(context.Background(), filepath.Join(t.TempDir(), "data", "adguardian.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleResult() *domain.AnalysisResult {
	old := true
	dup := false
	return &domain.AnalysisResult{
		IsAd:        true,
		ProductName: "某某降糖茶",
		Violations: []domain.Violation{
			{Type: "普通食品宣称疗效", Law: "《广告法》第十七条", Explanation: "宣称缓解糖尿病", OriginalText: "有效缓解糖尿病"},
			{Type: "绝对化用语", Law: "《广告法》第九条", Explanation: "使用“第一”", OriginalText: "销量第一"},
		},
		Summary:         "违法事实：……\n投诉请求：\n1. ……\n2. ……\n3. ……",
		PublicationDate: "2024-12-01",
		IsOldArticle:    &old,
		IsDuplicate:     &dup,
	}
}

func TestHistoryRoundTripKeepsResult(t *testing.T) {
	repo := NewHistoryRepository(openTestDB(t))
	ctx := context.Background()

	want := sampleResult()
	item := &domain.HistoryItem{
		ID:          "h1",
		Timestamp:   1735689600000,
		ProductName: want.ProductName,
		Summary:     want.Summary,
		Result:      want,
		Evidence:    []string{"http://minio/a.png"},
	}
	require.NoError(t, repo.Append(ctx, "acme", item, 10))

	got, err := repo.Get(ctx, "acme", "h1")
	require.NoError(t, err)
	assert.Equal(t, item, got)

	minimal := &domain.AnalysisResult{IsAd: false, ProductName: "无", Violations: []domain.Violation{}, Summary: "非广告"}
	require.NoError(t, repo.Append(ctx, "acme", &domain.HistoryItem{ID: "h2", Timestamp: 1, ProductName: "无", Summary: "非广告", Result: minimal}, 10))
	got, err = repo.Get(ctx, "acme", "h2")
	require.NoError(t, err)
	assert.Equal(t, minimal, got.Result)
	assert.Nil(t, got.Evidence)
}

func TestHistoryAppendTrimsOldest(t *testing.T) {
	repo := NewHistoryRepository(openTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		// identical timestamps: insertion order decides recency
		require.NoError(t, repo.Append(ctx, "acme", &domain.HistoryItem{ID: id, Timestamp: 42, Result: sampleResult()}, 3))
	}
	require.NoError(t, repo.Append(ctx, "other", &domain.HistoryItem{ID: "x", Timestamp: 42, Result: sampleResult()}, 3))

	items, err := repo.List(ctx, "acme")
	require.NoError(t, err)
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"e", "d", "c"}, ids)

	others, err := repo.List(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestHistoryDeleteAndClear(t *testing.T) {
	repo := NewHistoryRepository(openTestDB(t))
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, repo.Append(ctx, "acme", &domain.HistoryItem{ID: id, Timestamp: 1, Result: sampleResult()}, 10))
	}

	require.NoError(t, repo.Delete(ctx, "acme", "a"))
	assert.ErrorIs(t, repo.Delete(ctx, "acme", "a"), sql.ErrNoRows)
	assert.ErrorIs(t, repo.Delete(ctx, "other", "b"), sql.ErrNoRows)

	_, err := repo.Get(ctx, "acme", "a")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, repo.Clear(ctx, "acme"))
	items, err := repo.List(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLibraryRepository(t *testing.T) {
	repo := NewLibraryRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, "acme", &domain.Complainee{ID: "1", Name: "Acme Health", AddedAt: 100}))
	require.NoError(t, repo.Add(ctx, "acme", &domain.Complainee{ID: "2", Name: "Globex", AddedAt: 200, Note: "已举报"}))

	list, err := repo.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Globex", list[0].Name)
	assert.Equal(t, "已举报", list[0].Note)
	assert.True(t, domain.IsDuplicate("Acme Health Co., Ltd.", list))

	// names are unique per tenant, case-insensitively, at the storage level too
	assert.ErrorIs(t, repo.Add(ctx, "acme", &domain.Complainee{ID: "3", Name: "ACME health", AddedAt: 300}), domain.ErrComplaineeExists)
	require.NoError(t, repo.Add(ctx, "globex", &domain.Complainee{ID: "4", Name: "Acme Health", AddedAt: 300}))
	list, err = repo.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, repo.Delete(ctx, "acme", "1"))
	assert.ErrorIs(t, repo.Delete(ctx, "acme", "1"), sql.ErrNoRows)
	list, err = repo.List(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	db, err := Connect(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Connect(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestConcurrentAddsKeepOneName(t *testing.T) {
	repo := NewLibraryRepository(openTestDB(t))
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.Add(ctx, "acme", &domain.Complainee{ID: fmt.Sprintf("c%d", i), Name: "某某生物科技", AddedAt: int64(i)})
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrComplaineeExists)
	}
	assert.Equal(t, 1, ok)

	list, err := repo.List(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := sqlstore.LoadMigrations(migrationFS, "migrations")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, "001_init.sql", migs[0].Version)
	assert.Equal(t, "002_complainee_name_unique.sql", migs[1].Version)
	assert.Contains(t, migs[1].Statements[0], "lower(name)")
}
