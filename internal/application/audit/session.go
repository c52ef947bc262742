package audit

import (
	"errors"
	"sync"
	"time"

	"github.com/bryanwahyu/adguardian/internal/application"
	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
)

var ErrSessionNotFound = errors.New("session not found or expired")

const DefaultSessionTTL = 2 * time.Hour

// Session holds what the original single-page app kept in memory: the model settings,
// the current result with its correction dialogue, and the last submitted request.
type Session struct {
	ID        string
	Tenant    string
	Settings  ai.Settings
	CreatedAt time.Time

	auditor *Auditor
	chat    *Conversation
	hasKey  bool

	// analyzeMu serializes analyses within one session.
	analyzeMu sync.Mutex

	mu       sync.Mutex
	last     *domain.AnalysisRequest
	lastSeen time.Time
}

// SessionView is the public shape of a session. The API key is never echoed.
type SessionView struct {
	ID            string `json:"id"`
	Tenant        string `json:"tenant"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	BaseURL       string `json:"baseUrl,omitempty"`
	HasCredential bool   `json:"hasCredential"`
	CreatedAt     int64  `json:"createdAt"`
}

func (s *Session) View() SessionView {
	return SessionView{
		ID:            s.ID,
		Tenant:        s.Tenant,
		Provider:      s.Settings.Provider,
		Model:         s.Settings.Model,
		BaseURL:       s.Settings.BaseURL,
		HasCredential: s.hasKey,
		CreatedAt:     s.CreatedAt.UnixMilli(),
	}
}

func (s *Session) setLast(req domain.AnalysisRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := req
	r.Images = append([]string(nil), req.Images...)
	s.last = &r
}

func (s *Session) lastRequest() *domain.AnalysisRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// Sessions is an in-memory registry with idle expiry.
type Sessions struct {
	mu    sync.Mutex
	items map[string]*Session
	ttl   time.Duration
	clock application.Clock
}

func NewSessions(ttl time.Duration, clock application.Clock) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Sessions{items: make(map[string]*Session), ttl: ttl, clock: clock}
}

func (r *Sessions) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	r.sweep(now)
	s.lastSeen = now
	r.items[s.ID] = s
}

// Get returns the tenant's session and refreshes its idle timer.
func (r *Sessions) Get(tenant, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	s, ok := r.items[id]
	if !ok || s.Tenant != tenant {
		return nil, ErrSessionNotFound
	}
	if now.Sub(s.lastSeen) > r.ttl {
		delete(r.items, id)
		return nil, ErrSessionNotFound
	}
	s.lastSeen = now
	return s, nil
}

func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Sessions) sweep(now time.Time) {
	for id, s := range r.items {
		if now.Sub(s.lastSeen) > r.ttl {
			delete(r.items, id)
		}
	}
}
