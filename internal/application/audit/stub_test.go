package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
)

type reply struct {
	text      string
	err       error
	citations []ai.Citation
}

// stubClient replays replies in order; the last one repeats.
type stubClient struct {
	mu      sync.Mutex
	replies []reply
	reqs    []*ai.Request
	noKey   bool
	// gate, when set, blocks each call until a value is received.
	gate chan struct{}
}

func newStub(replies ...reply) *stubClient { return &stubClient{replies: replies} }

func (s *stubClient) Generate(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.reqs)
	s.reqs = append(s.reqs, req)
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	r := s.replies[i]
	if r.err != nil {
		return nil, r.err
	}
	return &ai.Response{Text: r.text, Citations: r.citations}, nil
}

func (s *stubClient) HasCredential() bool { return !s.noKey }

func (s *stubClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func (s *stubClient) Request(i int) *ai.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[i]
}

// sleeper records requested delays without waiting.
type sleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }
func (f fixedRand) Intn(n int) int   { return 0 }

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
	retries  int
}

func (r *countingRecorder) Analysis(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}
func (r *countingRecorder) ModelCall(string, string) {}
func (r *countingRecorder) Retry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func rateLimited() error { return ai.NewError(ai.KindRateLimited, 429, "quota", nil) }

// memHistory and memLibrary are in-memory repositories.
type memHistory struct {
	mu    sync.Mutex
	items map[string][]*domain.HistoryItem
	fail  error
}

func newMemHistory() *memHistory { return &memHistory{items: map[string][]*domain.HistoryItem{}} }

func (m *memHistory) Append(_ context.Context, tenant string, item *domain.HistoryItem, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	list := append([]*domain.HistoryItem{item}, m.items[tenant]...)
	if len(list) > capacity {
		list = list[:capacity]
	}
	m.items[tenant] = list
	return nil
}

func (m *memHistory) List(_ context.Context, tenant string) ([]*domain.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.HistoryItem{}, m.items[tenant]...), nil
}

func (m *memHistory) Get(_ context.Context, tenant, id string) (*domain.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items[tenant] {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, errNotFound
}

func (m *memHistory) Delete(_ context.Context, tenant, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.items[tenant][:0]
	for _, it := range m.items[tenant] {
		if it.ID != id {
			list = append(list, it)
		}
	}
	m.items[tenant] = list
	return nil
}

func (m *memHistory) Clear(_ context.Context, tenant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, tenant)
	return nil
}

type memLibrary struct {
	mu    sync.Mutex
	items map[string][]*domain.Complainee
}

func newMemLibrary() *memLibrary { return &memLibrary{items: map[string][]*domain.Complainee{}} }

func (m *memLibrary) List(_ context.Context, tenant string) ([]*domain.Complainee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*domain.Complainee{}, m.items[tenant]...)
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt > out[j].AddedAt })
	return out, nil
}

func (m *memLibrary) Add(_ context.Context, tenant string, c *domain.Complainee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[tenant] = append(m.items[tenant], c)
	return nil
}

func (m *memLibrary) Delete(_ context.Context, tenant, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.items[tenant][:0]
	for _, c := range m.items[tenant] {
		if c.ID != id {
			list = append(list, c)
		}
	}
	m.items[tenant] = list
	return nil
}

type memEvidence struct {
	mu   sync.Mutex
	keys []string
}

func (m *memEvidence) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "http://evidence/" + key, nil
}

type fetcherFunc func(ctx context.Context, url string) (string, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }
