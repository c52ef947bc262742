package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/adguardian/internal/application"
	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/prompt"
)

const (
	DefaultHistoryCapacity = 10
	// maxPageRunes bounds fetched page text fed into the prompt.
	maxPageRunes = 8000
)

var (
	ErrInvalidSettings  = errors.New("invalid model settings")
	ErrNothingToReaudit = errors.New("no previous request in this session")
	ErrNoAnchor         = errors.New("no analysis result to discuss, analyze or load a history item first")
	ErrReportsDisabled  = errors.New("complaint export is not configured")
	ErrUnknownCategory  = errors.New("unknown discovery category")
)

// AuditorFactory builds the auditor bound to one session's model settings.
type AuditorFactory func(settings ai.Settings) (*Auditor, error)

// ComplaintRenderer turns a stored audit into a printable complaint.
type ComplaintRenderer interface {
	Render(item *domain.HistoryItem) ([]byte, error)
}

// Service implements the audit use cases. Evidence, Fetcher and Reports are optional.
// Service is safe for concurrent use.
type Service struct {
	HistoryRepo domain.HistoryRepository
	LibraryRepo domain.LibraryRepository
	Evidence    domain.EvidenceStore
	Fetcher     domain.PageFetcher
	Reports     ComplaintRenderer

	Auditors        AuditorFactory
	Defaults        ai.Settings
	HistoryCapacity int
	Sessions        *Sessions
	Clock           application.Clock
	Logger          logrus.FieldLogger
}

// AnalyzeOutcome is returned by Analyze and Reaudit.
// HistoryID is empty for graceful failures and when the history write failed.
type AnalyzeOutcome struct {
	Result    *domain.AnalysisResult `json:"result"`
	HistoryID string                 `json:"historyId,omitempty"`
	Quality   domain.Quality         `json:"quality"`
}

//
// ==== SESSIONS ====
//

// OpenSession creates a session whose settings fall back to the server defaults.
// A missing API key is accepted here and reported on the first analysis.
func (s *Service) OpenSession(tenant string, settings ai.Settings) (SessionView, error) {
	merged := settings.Merge(s.Defaults)
	auditor, err := s.Auditors(merged)
	if err != nil {
		return SessionView{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Settings:  ai.Settings{Provider: merged.Provider, BaseURL: merged.BaseURL, Model: merged.Model},
		CreatedAt: s.clock().Now(),
		auditor:   auditor,
		hasKey:    ai.HasCredential(auditor.client),
	}
	sess.chat = NewConversation(auditor, s.clock(), s.logger().WithField("session", sess.ID))
	s.Sessions.Put(sess)

	s.logger().WithFields(logrus.Fields{
		"tenant":   tenant,
		"session":  sess.ID,
		"provider": merged.Provider,
		"model":    merged.Model,
	}).Info("session opened")
	return sess.View(), nil
}

//
// ==== ANALYSIS ====
//

// Analyze audits req within the session, enriches the result, re-anchors the chat and
// records it in the tenant's history.
func (s *Service) Analyze(ctx context.Context, tenant, sessionID string, req domain.AnalysisRequest) (*AnalyzeOutcome, error) {
	sess, err := s.Sessions.Get(tenant, sessionID)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.run(ctx, sess, req)
}

// Reaudit runs the session's last request again.
func (s *Service) Reaudit(ctx context.Context, tenant, sessionID string) (*AnalyzeOutcome, error) {
	sess, err := s.Sessions.Get(tenant, sessionID)
	if err != nil {
		return nil, err
	}
	last := sess.lastRequest()
	if last == nil {
		return nil, ErrNothingToReaudit
	}
	return s.run(ctx, sess, *last)
}

func (s *Service) run(ctx context.Context, sess *Session, req domain.AnalysisRequest) (*AnalyzeOutcome, error) {
	sess.analyzeMu.Lock()
	defer sess.analyzeMu.Unlock()

	log := s.logger().WithFields(logrus.Fields{"tenant": sess.Tenant, "session": sess.ID})
	sess.setLast(req)
	// the old transcript belongs to the previous result, even if this analysis fails
	sess.chat.Reset(nil)
	s.fillPageText(ctx, &req, log)

	res, err := sess.auditor.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	s.enrich(ctx, sess.Tenant, res, log)
	sess.chat.Reset(res)

	out := &AnalyzeOutcome{Result: res, Quality: domain.Inspect(res.Summary)}
	if res.IsFailure() {
		return out, nil
	}

	item := &domain.HistoryItem{
		ID:          uuid.NewString(),
		Timestamp:   application.Millis(s.clock()),
		ProductName: res.ProductName,
		Summary:     res.Summary,
		Result:      res.Clone(),
	}
	item.Evidence = s.archive(ctx, sess.Tenant, item.ID, req.Images, log)
	if err := s.HistoryRepo.Append(ctx, sess.Tenant, item, s.capacity()); err != nil {
		log.WithError(err).Error("history append failed")
		return out, nil
	}
	out.HistoryID = item.ID
	log.WithFields(logrus.Fields{
		"history":    item.ID,
		"violations": len(res.Violations),
		"chars":      out.Quality.Chars,
	}).Info("audit recorded")
	return out, nil
}

// fillPageText fetches the article body for URL requests that came without text.
func (s *Service) fillPageText(ctx context.Context, req *domain.AnalysisRequest, log logrus.FieldLogger) {
	if s.Fetcher == nil || req.Mode != domain.ModeURL || strings.TrimSpace(req.Text) != "" {
		return
	}
	text, err := s.Fetcher.Fetch(ctx, req.SourceURL)
	if err != nil {
		log.WithError(err).WithField("url", req.SourceURL).Warn("page fetch failed, auditing by url only")
		return
	}
	req.Text = truncateRunes(strings.TrimSpace(text), maxPageRunes)
}

// enrich sets the duplicate and staleness flags. Library errors leave IsDuplicate unset.
func (s *Service) enrich(ctx context.Context, tenant string, res *domain.AnalysisResult, log logrus.FieldLogger) {
	if res.IsFailure() {
		return
	}
	if lib, err := s.LibraryRepo.List(ctx, tenant); err != nil {
		log.WithError(err).Warn("library lookup failed, duplicate flag skipped")
	} else {
		dup := domain.IsDuplicate(res.ProductName, lib)
		res.IsDuplicate = &dup
	}
	if stale, ok := domain.IsStale(res.PublicationDate, s.clock().Now()); ok {
		res.IsOldArticle = &stale
	}
}

// archive stores decodable images and returns their URLs. Failures are logged and skipped.
func (s *Service) archive(ctx context.Context, tenant, id string, images []string, log logrus.FieldLogger) []string {
	if s.Evidence == nil || len(images) == 0 {
		return nil
	}
	var urls []string
	for i, img := range images {
		part, err := prompt.DecodeImage(img)
		if err != nil {
			continue
		}
		ext := ".img"
		if m := mimetype.Lookup(part.MIMEType); m != nil && m.Extension() != "" {
			ext = m.Extension()
		}
		key := fmt.Sprintf("%s/%s/%02d%s", tenant, id, i+1, ext)
		u, err := s.Evidence.Put(ctx, key, part.MIMEType, part.Data)
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("evidence upload failed")
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

//
// ==== CHAT ====
//

// Chat sends a correction request about the session's current result.
func (s *Service) Chat(ctx context.Context, tenant, sessionID, text string) (domain.ChatMessage, error) {
	sess, err := s.Sessions.Get(tenant, sessionID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if sess.chat.Anchor() == nil {
		return domain.ChatMessage{}, ErrNoAnchor
	}
	return sess.chat.Send(ctx, text)
}

// Transcript returns the session's chat so far.
func (s *Service) Transcript(tenant, sessionID string) ([]domain.ChatMessage, error) {
	sess, err := s.Sessions.Get(tenant, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.chat.Transcript(), nil
}

//
// ==== HISTORY ====
//

func (s *Service) History(ctx context.Context, tenant string) ([]*domain.HistoryItem, error) {
	return s.HistoryRepo.List(ctx, tenant)
}

func (s *Service) HistoryItem(ctx context.Context, tenant, id string) (*domain.HistoryItem, error) {
	return s.HistoryRepo.Get(ctx, tenant, id)
}

// LoadHistory makes a stored result the session's current one and starts a fresh chat on it.
// The last submitted request is kept, so Reaudit still repeats it.
func (s *Service) LoadHistory(ctx context.Context, tenant, sessionID, id string) (*domain.HistoryItem, error) {
	sess, err := s.Sessions.Get(tenant, sessionID)
	if err != nil {
		return nil, err
	}
	item, err := s.HistoryRepo.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	sess.chat.Reset(item.Result)
	return item, nil
}

func (s *Service) DeleteHistory(ctx context.Context, tenant, id string) error {
	return s.HistoryRepo.Delete(ctx, tenant, id)
}

func (s *Service) ClearHistory(ctx context.Context, tenant string) error {
	return s.HistoryRepo.Clear(ctx, tenant)
}

// ComplaintPDF renders the stored complaint document of a history item.
func (s *Service) ComplaintPDF(ctx context.Context, tenant, id string) ([]byte, *domain.HistoryItem, error) {
	if s.Reports == nil {
		return nil, nil, ErrReportsDisabled
	}
	item, err := s.HistoryRepo.Get(ctx, tenant, id)
	if err != nil {
		return nil, nil, err
	}
	pdf, err := s.Reports.Render(item)
	if err != nil {
		return nil, nil, fmt.Errorf("render complaint: %w", err)
	}
	return pdf, item, nil
}

//
// ==== LIBRARY ====
//

func (s *Service) Library(ctx context.Context, tenant string) ([]*domain.Complainee, error) {
	return s.LibraryRepo.List(ctx, tenant)
}

// AddComplainee adds a trimmed, case-insensitively unique name to the library.
func (s *Service) AddComplainee(ctx context.Context, tenant, name, note string) (*domain.Complainee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyName
	}
	lib, err := s.LibraryRepo.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if domain.HasName(lib, name) {
		return nil, domain.ErrComplaineeExists
	}
	c := &domain.Complainee{
		ID:      uuid.NewString(),
		Name:    name,
		AddedAt: application.Millis(s.clock()),
		Note:    strings.TrimSpace(note),
	}
	if err := s.LibraryRepo.Add(ctx, tenant, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) DeleteComplainee(ctx context.Context, tenant, id string) error {
	return s.LibraryRepo.Delete(ctx, tenant, id)
}

//
// ==== DISCOVERY ====
//

// Discover searches for risky articles in category. Provider failures yield an empty list.
func (s *Service) Discover(ctx context.Context, tenant, sessionID, category string) ([]domain.DiscoveryItem, error) {
	sess, err := s.Sessions.Get(tenant, sessionID)
	if err != nil {
		return nil, err
	}
	category = strings.ToUpper(strings.TrimSpace(category))
	if category == "" {
		category = domain.CategoryGeneral
	}
	if !knownCategory(category) {
		return nil, ErrUnknownCategory
	}
	return sess.auditor.Discover(ctx, category), nil
}

func knownCategory(c string) bool {
	for _, k := range prompt.Categories() {
		if k == c {
			return true
		}
	}
	return false
}

func (s *Service) capacity() int {
	if s.HistoryCapacity <= 0 {
		return DefaultHistoryCapacity
	}
	return s.HistoryCapacity
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		return l
	}
	return s.Logger
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
