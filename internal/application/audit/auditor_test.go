package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/adguardian/internal/application"
	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/prompt"
)

const scenarioText = "本品为SC12345食品，宣传：有效缓解糖尿病"

const scenarioSummary = "该企业在微信公众号发布“某某降糖茶”推广文章，其宣传内容涉嫌违反《中华人民共和国广告法》。\n" +
	"违法事实：该商品标注食品生产许可编号SC12345，属于普通食品，却宣称“有效缓解糖尿病”，使用医疗用语。\n" +
	"法律依据：上述行为涉嫌违反《中华人民共和国广告法》第十七条、第二十八条之规定。\n" +
	"数据证据：文章阅读量较高，存在一定传播范围。\n\n" +
	"投诉请求：\n1. 请监管部门联系本人、涉事企业三方，协调配合处理此事；\n" +
	"2. 恳请贵局严格依法履职，予以立案查处，并在法定时限内告知结果；\n" +
	"3. 请依法落实相关投诉奖励事项。"

func scenarioJSON() string {
	return "```json\n{\"isAd\":true,\"productName\":\"某某降糖茶\",\"violations\":[{\"type\":\"普通食品宣称疗效\",\"law\":\"《中华人民共和国广告法》第十七条\",\"explanation\":\"普通食品宣称缓解糖尿病\",\"originalText\":\"有效缓解糖尿病\"}]," +
		"\"summary\":" + quote(scenarioSummary) + ",\"publicationDate\":\"2025-06-01\",\"isOldArticle\":false}\n```"
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + strings.ReplaceAll(s, "\n", `\n`) + `"`
}

var testNow = time.Date(2025, 7, 15, 10, 0, 0, 0, time.Local)

func newTestAuditor(c ai.Client, sl *sleeper, rec Recorder) *Auditor {
	return NewAuditor(c, Options{
		Model:         "test-model",
		Sleep:         sl.Sleep,
		Rand:          fixedRand(0.5),
		Clock:         application.FixedClock{T: testNow},
		Recorder:      rec,
		DiscoveryHost: "qq.com",
	})
}

func textRequest() domain.AnalysisRequest {
	return domain.AnalysisRequest{Mode: domain.ModeText, Text: scenarioText}
}

func TestAnalyzeScenario(t *testing.T) {
	stub := newStub(reply{text: scenarioJSON()})
	rec := &countingRecorder{}
	a := newTestAuditor(stub, &sleeper{}, rec)

	res, err := a.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	assert.True(t, res.IsAd)
	require.NotEmpty(t, res.Violations)
	assert.Contains(t, res.Violations[0].Type, "普通食品")
	assert.Contains(t, res.Summary, "《中华人民共和国广告法》")
	assert.True(t, domain.Inspect(res.Summary).ClosingRequests)
	assert.Equal(t, []string{OutcomeOK}, rec.outcomes)

	require.Equal(t, 1, stub.Calls())
	req := stub.Request(0)
	assert.Equal(t, prompt.SystemInstruction(), req.System)
	assert.Equal(t, "test-model", req.Model)
	assert.True(t, req.JSON)
	assert.NotNil(t, req.Schema)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Parts[0].Text, scenarioText)
}

func TestAnalyzeRetryCeiling(t *testing.T) {
	stub := newStub(reply{err: rateLimited()})
	sl := &sleeper{}
	a := newTestAuditor(stub, sl, nil)

	res, err := a.Analyze(context.Background(), textRequest())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
	assert.Equal(t, ai.KindRateLimited, ai.KindOf(err))
	assert.Equal(t, DefaultMaxAttempts, stub.Calls(), "degraded prompt must not run after quota exhaustion")
	assert.Len(t, sl.Delays(), DefaultMaxAttempts-1)
}

func TestAnalyzeRecoversAfterRateLimits(t *testing.T) {
	stub := newStub(
		reply{err: rateLimited()},
		reply{err: rateLimited()},
		reply{err: rateLimited()},
		reply{text: scenarioJSON()},
	)
	sl := &sleeper{}
	rec := &countingRecorder{}
	a := newTestAuditor(stub, sl, rec)

	res, err := a.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "某某降糖茶", res.ProductName)
	assert.Equal(t, 4, stub.Calls())
	assert.Equal(t, 3, rec.retries)

	delays := sl.Delays()
	require.Len(t, delays, 3)
	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1])
	}
	assert.Equal(t, DefaultBackoff.Delay(1, 0.5), delays[0])
}

func TestAnalyzeGracefulDegradation(t *testing.T) {
	stub := newStub(reply{text: "抱歉，我无法完成这个请求。"})
	rec := &countingRecorder{}
	a := newTestAuditor(stub, &sleeper{}, rec)

	res, err := a.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.IsFailure())
	assert.Equal(t, domain.FailureProductName, res.ProductName)
	assert.NotEmpty(t, res.Violations)
	assert.Equal(t, 2, stub.Calls())
	assert.Equal(t, prompt.ExtractionInstruction(), stub.Request(1).System)
	assert.Equal(t, []string{OutcomeFailure}, rec.outcomes)
}

func TestAnalyzeBlockedThenDegradedSucceeds(t *testing.T) {
	stub := newStub(
		reply{err: ai.NewError(ai.KindBlocked, 0, "SAFETY", ai.ErrEmptyResponse)},
		reply{text: scenarioJSON()},
	)
	rec := &countingRecorder{}
	a := newTestAuditor(stub, &sleeper{}, rec)

	res, err := a.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "某某降糖茶", res.ProductName)
	assert.Equal(t, 2, stub.Calls())
	assert.Equal(t, []string{OutcomeDegraded}, rec.outcomes)
}

func TestAnalyzeTerminalErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		kind ai.Kind
	}{
		"auth":    {ai.NewError(ai.KindAuth, 401, "API key not valid", nil), ai.KindAuth},
		"network": {ai.NewError(ai.KindNetwork, 0, "dial tcp: timeout", nil), ai.KindNetwork},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			stub := newStub(reply{err: tc.err})
			sl := &sleeper{}
			a := newTestAuditor(stub, sl, nil)

			_, err := a.Analyze(context.Background(), textRequest())
			require.Error(t, err)
			assert.Equal(t, tc.kind, ai.KindOf(err))
			assert.Equal(t, 1, stub.Calls())
			assert.Empty(t, sl.Delays())
		})
	}
}

func TestAnalyzeMissingCredentialMakesNoCalls(t *testing.T) {
	stub := newStub(reply{text: scenarioJSON()})
	stub.noKey = true
	a := newTestAuditor(stub, &sleeper{}, nil)

	_, err := a.Analyze(context.Background(), textRequest())
	assert.ErrorIs(t, err, ai.ErrMissingCredential)
	assert.Equal(t, 0, stub.Calls())
}

func TestAnalyzeInvalidRequestMakesNoCalls(t *testing.T) {
	stub := newStub(reply{text: scenarioJSON()})
	a := newTestAuditor(stub, &sleeper{}, nil)

	_, err := a.Analyze(context.Background(), domain.AnalysisRequest{Mode: domain.ModeText, Text: "  "})
	assert.ErrorIs(t, err, domain.ErrEmptyRequest)
	assert.Equal(t, 0, stub.Calls())
}

func TestAnalyzeCancelledDuringBackoff(t *testing.T) {
	stub := newStub(reply{err: rateLimited()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewAuditor(stub, Options{Rand: fixedRand(0), Clock: application.FixedClock{T: testNow}})

	_, err := a.Analyze(ctx, textRequest())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, stub.Calls())
}

func TestRevisePassesTranscript(t *testing.T) {
	stub := newStub(reply{text: "  修订版报告  "})
	a := newTestAuditor(stub, &sleeper{}, nil)
	anchor := &domain.AnalysisResult{IsAd: true, ProductName: "某某降糖茶", Summary: "原报告"}

	out, err := a.Revise(context.Background(), anchor, []domain.ChatMessage{
		{Role: domain.ChatUser, Text: "第一问"},
		{Role: domain.ChatModel, Text: "第一答"},
		{Role: domain.ChatUser, Text: "第二问"},
	})
	require.NoError(t, err)
	assert.Equal(t, "修订版报告", out)

	req := stub.Request(0)
	assert.Contains(t, req.System, "某某降糖茶")
	assert.False(t, req.JSON)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, ai.RoleModel, req.Messages[1].Role)
	assert.Equal(t, "第二问", req.Messages[2].Parts[0].Text)
}

func TestDiscoverFiltersCitations(t *testing.T) {
	stub := newStub(reply{citations: []ai.Citation{
		{Title: "降糖茶真相", URI: "https://mp.weixin.qq.com/s/a"},
		{Title: "降糖茶真相", URI: "https://mp.weixin.qq.com/s/a"},
		{Title: "别处的文章", URI: "https://example.com/x"},
		{Title: "mp.weixin.qq.com", URI: "https://vertexaisearch.cloud.google.com/grounding-api-redirect/abc"},
		{Title: "", URI: "https://mp.weixin.qq.com/s/b"},
	}})
	a := newTestAuditor(stub, &sleeper{}, nil)

	items := a.Discover(context.Background(), domain.CategoryMedical)
	require.Len(t, items, 2)
	assert.Equal(t, "https://mp.weixin.qq.com/s/a", items[0].URL)
	assert.Equal(t, "微信公众号", items[0].Source)
	assert.Contains(t, items[1].URL, "grounding-api-redirect")

	req := stub.Request(0)
	assert.True(t, req.Search)
	assert.False(t, req.JSON)
	assert.Contains(t, req.Messages[0].Parts[0].Text, "site:mp.weixin.qq.com")
}

func TestDiscoverFailureReturnsEmpty(t *testing.T) {
	stub := newStub(reply{err: ai.NewError(ai.KindOther, 500, "boom", nil)})
	a := newTestAuditor(stub, &sleeper{}, nil)

	items := a.Discover(context.Background(), domain.CategoryFood)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCollectLeadsLimitAndEmptySuffix(t *testing.T) {
	var cites []ai.Citation
	for _, u := range []string{"https://a.com/1", "https://b.com/2", "https://c.com/3"} {
		cites = append(cites, ai.Citation{Title: "t", URI: u})
	}
	assert.Len(t, CollectLeads(cites, "", 2), 2)
	assert.Empty(t, CollectLeads(cites, "qq.com", 10))
	assert.Equal(t, "b.com", CollectLeads(cites, "", 10)[1].Source)
}

func TestSeededDiscoveryIsReproducible(t *testing.T) {
	pick := func(seed int64) []string {
		r := NewRandom(seed)
		var out []string
		for i := 0; i < 6; i++ {
			out = append(out, prompt.DiscoveryQuery(domain.CategoryBeauty, r))
		}
		return out
	}
	assert.Equal(t, pick(42), pick(42))
}

func TestBackoffDelays(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 4 * time.Second, Jitter: 0.5}
	assert.Equal(t, time.Second, b.Delay(1, 0))
	assert.Equal(t, 2500*time.Millisecond, b.Delay(2, 0.5))
	assert.Equal(t, 4*time.Second, b.Delay(5, 0))
	assert.Less(t, b.Delay(1, 0.999), b.Delay(2, 0))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
