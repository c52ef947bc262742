package audit

import "context"

// HistoryRepository persists the bounded, most-recent-first history per tenant.
// Append inserts the item and trims the oldest rows beyond capacity in one transaction.
type HistoryRepository interface {
	Append(ctx context.Context, tenant string, item *HistoryItem, capacity int) error
	List(ctx context.Context, tenant string) ([]*HistoryItem, error)
	Get(ctx context.Context, tenant, id string) (*HistoryItem, error)
	Delete(ctx context.Context, tenant, id string) error
	Clear(ctx context.Context, tenant string) error
}

// LibraryRepository stores the complainee library per tenant.
type LibraryRepository interface {
	List(ctx context.Context, tenant string) ([]*Complainee, error)
	Add(ctx context.Context, tenant string, c *Complainee) error
	Delete(ctx context.Context, tenant, id string) error
}

// EvidenceStore archives submitted screenshots and returns their URLs.
type EvidenceStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// PageFetcher returns the readable text of a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
