package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/adguardian/internal/application"
	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/parser"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/prompt"
)

const (
	DefaultTemperature    = 0.1
	DefaultMaxAttempts    = 5
	DefaultDiscoveryLimit = 10

	stagePrimary   = "primary"
	stageDegraded  = "degraded"
	stageRevision  = "revision"
	stageDiscovery = "discovery"
)

// Options tune an Auditor. Zero values fall back to defaults.
type Options struct {
	Model       string
	Temperature float32
	// MaxAttempts is the retry ceiling per stage while the provider is rate limiting.
	MaxAttempts int
	Backoff     Backoff
	Sleep       SleepFunc
	Rand        Random
	Clock       application.Clock
	Logger      logrus.FieldLogger
	Recorder    Recorder
	// DiscoveryHost keeps only citations from this host suffix; empty keeps all.
	DiscoveryHost  string
	DiscoveryLimit int
}

// Auditor drives one model client through the retry and fallback chain.
type Auditor struct {
	client ai.Client
	opts   Options
}

func NewAuditor(client ai.Client, opts Options) *Auditor {
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Rand == nil {
		opts.Rand = NewRandom(application.Millis(opts.Clock))
	}
	if opts.Clock == nil {
		opts.Clock = application.SystemClock{}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = l
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.DiscoveryLimit <= 0 {
		opts.DiscoveryLimit = DefaultDiscoveryLimit
	}
	return &Auditor{client: client, opts: opts}
}

// Analyze runs the primary audit, retrying on rate limits, then the degraded extraction
// prompt when the model refuses or answers with unusable text. When both fail it returns a
// graceful-failure result instead of an error. Only a missing/invalid credential, an
// exhausted retry ceiling, a transport failure or a cancelled context are returned as errors.
func (a *Auditor) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	if !ai.HasCredential(a.client) {
		a.opts.Recorder.Analysis(OutcomeError)
		return nil, ai.ErrMissingCredential
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := a.opts.Clock.Now()
	log := a.opts.Logger.WithFields(logrus.Fields{"mode": req.Mode, "images": len(req.Images)})

	primary, err := prompt.Build(req, now)
	if err != nil {
		return nil, err
	}
	res, cause, err := a.attempt(ctx, primary, stagePrimary)
	if err != nil {
		a.opts.Recorder.Analysis(OutcomeError)
		return nil, err
	}
	if res != nil {
		a.opts.Recorder.Analysis(OutcomeOK)
		return res, nil
	}
	log.WithError(cause).Warn("primary audit unusable, switching to extraction prompt")

	degraded, err := prompt.BuildExtraction(req, now)
	if err != nil {
		return nil, err
	}
	res, cause, err = a.attempt(ctx, degraded, stageDegraded)
	if err != nil {
		a.opts.Recorder.Analysis(OutcomeError)
		return nil, err
	}
	if res != nil {
		a.opts.Recorder.Analysis(OutcomeDegraded)
		return res, nil
	}

	log.WithError(cause).Error("extraction prompt unusable, returning graceful failure")
	a.opts.Recorder.Analysis(OutcomeFailure)
	return domain.FailureResult(cause.Error()), nil
}

// attempt returns a parsed result, or a recoverable cause, or a terminal error.
func (a *Auditor) attempt(ctx context.Context, p *prompt.Prompt, stage string) (*domain.AnalysisResult, error, error) {
	resp, err := a.call(ctx, &ai.Request{
		Model:       a.opts.Model,
		System:      p.System,
		Messages:    []ai.Message{{Role: ai.RoleUser, Parts: p.Parts}},
		Temperature: a.opts.Temperature,
		JSON:        true,
		Schema:      prompt.ResponseSchema(),
	}, stage)
	if err != nil {
		if terr := terminal(err, a.opts.MaxAttempts); terr != nil {
			return nil, nil, terr
		}
		return nil, err, nil
	}

	res, perr := parser.Parse(resp.FirstText())
	if perr != nil {
		return nil, perr, nil
	}
	return res, nil, nil
}

// terminal returns the error to surface when err must not trigger prompt degradation.
func terminal(err error, attempts int) error {
	switch ai.KindOf(err) {
	case ai.KindAuth:
		return err
	case ai.KindNetwork:
		return fmt.Errorf("model endpoint unreachable, check network connectivity or the proxy/base url setting: %w", err)
	case ai.KindRateLimited:
		return fmt.Errorf("%w after %d attempts, wait for the quota window or check the key's billing: %w", ai.ErrQuotaExceeded, attempts, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// call issues one logical request, retrying with backoff while the provider rate limits.
func (a *Auditor) call(ctx context.Context, req *ai.Request, stage string) (*ai.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		resp, err := a.client.Generate(ctx, req)
		if err == nil {
			a.opts.Recorder.ModelCall(stage, "ok")
			return resp, nil
		}
		kind := ai.KindOf(err)
		a.opts.Recorder.ModelCall(stage, kind.String())
		lastErr = err
		if kind != ai.KindRateLimited || attempt == a.opts.MaxAttempts {
			break
		}

		delay := a.opts.Backoff.Delay(attempt, a.opts.Rand.Float64())
		a.opts.Logger.WithFields(logrus.Fields{
			"stage":   stage,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("model rate limited, backing off")
		a.opts.Recorder.Retry(stage)
		if serr := a.opts.Sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

// Revise asks for a revised complaint document given the anchor and the transcript so far.
// The transcript must end with the user's newest message.
func (a *Auditor) Revise(ctx context.Context, anchor *domain.AnalysisResult, transcript []domain.ChatMessage) (string, error) {
	if !ai.HasCredential(a.client) {
		return "", ai.ErrMissingCredential
	}
	msgs := make([]ai.Message, 0, len(transcript))
	for _, m := range transcript {
		role := ai.RoleUser
		if m.Role == domain.ChatModel {
			role = ai.RoleModel
		}
		msgs = append(msgs, ai.TextMessage(role, m.Text))
	}
	resp, err := a.call(ctx, &ai.Request{
		Model:       a.opts.Model,
		System:      prompt.RevisionInstruction(anchor),
		Messages:    msgs,
		Temperature: a.opts.Temperature,
	}, stageRevision)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.FirstText())
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

// Discover runs a grounded search for category and returns leads taken only from citations.
// Any failure yields an empty list.
func (a *Auditor) Discover(ctx context.Context, category string) []domain.DiscoveryItem {
	items := []domain.DiscoveryItem{}
	if !ai.HasCredential(a.client) {
		a.opts.Logger.Warn("discovery skipped, api key not set")
		return items
	}
	query := prompt.DiscoveryQuery(category, a.opts.Rand)
	resp, err := a.call(ctx, &ai.Request{
		Model:       a.opts.Model,
		Messages:    []ai.Message{ai.TextMessage(ai.RoleUser, prompt.DiscoveryMessage(query))},
		Temperature: a.opts.Temperature,
		Search:      true,
	}, stageDiscovery)
	if err != nil {
		a.opts.Logger.WithError(err).WithField("category", category).Warn("discovery failed")
		return items
	}
	return CollectLeads(resp.Citations, a.opts.DiscoveryHost, a.opts.DiscoveryLimit)
}

// CollectLeads filters citations by host suffix, dedupes by URL and caps at limit.
func CollectLeads(citations []ai.Citation, hostSuffix string, limit int) []domain.DiscoveryItem {
	hostSuffix = strings.ToLower(strings.TrimSpace(hostSuffix))
	seen := make(map[string]bool, len(citations))
	out := []domain.DiscoveryItem{}
	for _, c := range citations {
		uri := strings.TrimSpace(c.URI)
		title := strings.TrimSpace(c.Title)
		if uri == "" || title == "" || seen[uri] {
			continue
		}
		host := ""
		if u, err := url.Parse(uri); err == nil {
			host = strings.ToLower(u.Hostname())
		}
		if hostSuffix != "" && !hostMatches(host, hostSuffix) && !strings.Contains(strings.ToLower(title), hostSuffix) {
			continue
		}
		seen[uri] = true

		source := host
		if hostMatches(host, "qq.com") || strings.Contains(strings.ToLower(title), "qq.com") {
			source = "微信公众号"
		}
		out = append(out, domain.DiscoveryItem{
			Title:   title,
			URL:     uri,
			Source:  source,
			Snippet: "来源：搜索引用 (智能风险匹配)",
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func hostMatches(host, suffix string) bool {
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}
