package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/signal-engine/config"
	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/quota"
	"github.com/seo-optimizer/signal-engine/signal"
)

// fastLimits keeps retries and backoff cheap for tests.
func fastLimits() config.ProviderLimits {
	return config.ProviderLimits{
		Concurrency:    1,
		RatePerSecond:  1000,
		Burst:          1000,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func testConfig(limits map[string]config.ProviderLimits) config.Config {
	cfg := config.Default()
	cfg.Providers = limits
	return cfg
}

func testStorage(t *testing.T) *quota.Storage {
	t.Helper()
	s, err := quota.NewStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown() })
	return s
}

type fakeKeywordProvider struct {
	name  string
	calls atomic.Int64
	err   error
	// failUntil makes the first N calls fail with err, then succeed.
	failUntil int64
	delay     time.Duration
}

func (p *fakeKeywordProvider) Name() string { return p.name }

func (p *fakeKeywordProvider) FetchKeywordData(ctx context.Context, keywords []string, locale string) (*signal.RawResponse, error) {
	call := p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil && (p.failUntil == 0 || call <= p.failUntil) {
		return nil, p.err
	}
	rows := make([]interface{}, 0, len(keywords))
	for _, kw := range keywords {
		rows = append(rows, map[string]interface{}{
			"keyword": kw, "vol": float64(100), "competition": 0.5,
		})
	}
	return &signal.RawResponse{
		Provider:   p.name,
		Call:       signal.CallKeywordData,
		Locale:     locale,
		Payload:    map[string]interface{}{"data": rows},
		ReceivedAt: time.Now(),
	}, nil
}

func (p *fakeKeywordProvider) FetchRelatedKeywords(ctx context.Context, seed, locale string) (*signal.RawResponse, error) {
	p.calls.Add(1)
	return &signal.RawResponse{
		Provider: p.name,
		Call:     signal.CallRelatedKeywords,
		Locale:   locale,
		Payload: map[string]interface{}{
			"data": []interface{}{
				map[string]interface{}{"keyword": "best " + seed, "vol": float64(40)},
			},
		},
		ReceivedAt: time.Now(),
	}, nil
}

type fakeSerpProvider struct {
	name  string
	calls atomic.Int64
	err   error
	delay time.Duration
}

func (p *fakeSerpProvider) Name() string { return p.name }

func (p *fakeSerpProvider) FetchSerp(ctx context.Context, keyword, locale string) (*signal.RawResponse, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return nil, p.err
	}
	return &signal.RawResponse{
		Provider: p.name,
		Call:     signal.CallSerp,
		Keyword:  keyword,
		Locale:   locale,
		Payload: map[string]interface{}{
			"organic_results": []interface{}{
				map[string]interface{}{"position": float64(1), "link": "https://competitor-one.com/post"},
				map[string]interface{}{"position": float64(2), "link": "https://me.com/post"},
			},
		},
		ReceivedAt: time.Now(),
	}, nil
}

type fakeAuditProvider struct {
	name  string
	calls atomic.Int64
	err   error
}

func (p *fakeAuditProvider) Name() string { return p.name }

func (p *fakeAuditProvider) FetchAudit(ctx context.Context, url string) (*signal.RawResponse, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &signal.RawResponse{
		Provider:   p.name,
		Call:       signal.CallPageAudit,
		URL:        url,
		HTML:       "<html><body><h1>Post</h1><h2>Details</h2></body></html>",
		ReceivedAt: time.Now(),
	}, nil
}

func TestCollectHappyPath(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderLimits{
		"kw": fastLimits(), "serp": fastLimits(), "audit": fastLimits(),
	})
	c := New(cfg, testStorage(t), nil)
	kw := &fakeKeywordProvider{name: "kw"}
	serp := &fakeSerpProvider{name: "serp"}
	audit := &fakeAuditProvider{name: "audit"}
	c.RegisterKeywordProvider(kw)
	c.RegisterSerpProvider(serp)
	c.RegisterAuditProvider(audit)

	res, err := c.Collect(context.Background(), Request{
		Keywords:  []string{"Email Marketing"},
		TargetURL: "https://me.com/post",
	})
	require.NoError(t, err)
	assert.False(t, res.Partial)

	e, ok := res.Store.Keyword("email marketing", "us")
	require.True(t, ok)
	require.NotNil(t, e.Volume)
	assert.Equal(t, int64(100), *e.Volume)
	require.NotNil(t, e.LatestSnapshot())

	// Competitors come from the snapshot with the target excluded.
	assert.Equal(t, []string{"https://competitor-one.com/post"}, res.CompetitorURLs)

	// Target plus one competitor audited.
	assert.Equal(t, int64(2), audit.calls.Load())
	_, ok = res.Store.Page("https://me.com/post")
	assert.True(t, ok)
	_, ok = res.Store.Page("https://competitor-one.com/post")
	assert.True(t, ok)
}

func TestCollectOneProviderTimesOutOthersProceed(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderLimits{
		"kw": fastLimits(), "serp": fastLimits(),
	})
	c := New(cfg, testStorage(t), nil)
	kw := &fakeKeywordProvider{name: "kw", err: fmt.Errorf("upstream: %w", errs.ErrTimeout)}
	serp := &fakeSerpProvider{name: "serp"}
	c.RegisterKeywordProvider(kw)
	c.RegisterSerpProvider(serp)

	res, err := c.Collect(context.Background(), Request{Keywords: []string{"email marketing"}})
	require.NoError(t, err)

	// Three attempts against the failing provider, then give up.
	assert.Equal(t, int64(3), kw.calls.Load())
	assert.True(t, res.Partial)

	// The run still completes with the SERP data that did arrive.
	e, ok := res.Store.Keyword("email marketing", "us")
	require.True(t, ok)
	assert.True(t, e.Degraded)
	assert.Contains(t, e.DegradedBy, "kw")
	assert.NotNil(t, e.LatestSnapshot())
	assert.Nil(t, e.Volume)
}

func TestCollectRetriesRateLimitedThenSucceeds(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderLimits{"kw": fastLimits()})
	c := New(cfg, testStorage(t), nil)
	kw := &fakeKeywordProvider{name: "kw", err: errs.ErrRateLimited, failUntil: 2}
	c.RegisterKeywordProvider(kw)

	res, err := c.Collect(context.Background(), Request{Keywords: []string{"email marketing"}})
	require.NoError(t, err)

	assert.Equal(t, int64(3), kw.calls.Load())
	assert.False(t, res.Partial)
	e, _ := res.Store.Keyword("email marketing", "us")
	require.NotNil(t, e.Volume)
}

func TestCollectNonRetryableFailsFast(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderLimits{"kw": fastLimits()})
	c := New(cfg, testStorage(t), nil)
	kw := &fakeKeywordProvider{name: "kw", err: errs.Malformedf("kw", "garbage body")}
	c.RegisterKeywordProvider(kw)

	res, err := c.Collect(context.Background(), Request{Keywords: []string{"email marketing"}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), kw.calls.Load())
	assert.True(t, res.Partial)
}

func TestCollectAuthErrorLatchesProvider(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderLimits{"kw": fastLimits()})
	c := New(cfg, testStorage(t), nil)
	kw := &fakeKeywordProvider{name: "kw", err: errs.ErrAuthError}
	c.RegisterKeywordProvider(kw)

	res, err := c.Collect(context.Background(), Request{Keywords: []string{"email marketing"}})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, int64(1), kw.calls.Load())

	// The latch holds for later runs in the same process: no upstream call.
	res, err = c.Collect(context.Background(), Request{Keywords: []string{"crm tools"}})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, int64(1), kw.calls.Load())
}

func TestCollectMonthlyBudgetExhausted(t *testing.T) {
	limits := fastLimits()
	limits.MonthlyBudget = 1
	cfg := testConfig(map[string]config.ProviderLimits{"serp": limits})
	c := New(cfg, testStorage(t), nil)
	serp := &fakeSerpProvider{name: "serp"}
	c.RegisterSerpProvider(serp)

	res, err := c.Collect(context.Background(), Request{
		Keywords: []string{"email marketing", "crm tools"},
	})
	require.NoError(t, err)

	// One call fits the budget; the second fails without an upstream call
	// and without retries.
	assert.Equal(t, int64(1), serp.calls.Load())
	assert.True(t, res.Partial)

	degraded := 0
	for _, e := range res.Store.Keywords() {
		if e.Degraded {
			degraded++
		}
	}
	assert.Equal(t, 1, degraded)
}

func TestCollectCoalescesIdenticalCalls(t *testing.T) {
	limits := fastLimits()
	limits.Concurrency = 4
	cfg := testConfig(map[string]config.ProviderLimits{"serp": limits})
	c := New(cfg, testStorage(t), nil)
	serp := &fakeSerpProvider{name: "serp", delay: 150 * time.Millisecond}
	c.RegisterSerpProvider(serp)

	// The same keyword in two spellings normalizes to one identity, so the
	// two in-flight SERP calls share one upstream request.
	res, err := c.Collect(context.Background(), Request{
		Keywords: []string{"Email Marketing", "email  marketing"},
	})
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, int64(1), serp.calls.Load())
}

func TestCollectCancellationKeepsObtainedSignals(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderLimits{"kw": fastLimits(), "serp": fastLimits()})
	c := New(cfg, testStorage(t), nil)
	kw := &fakeKeywordProvider{name: "kw"}
	serp := &fakeSerpProvider{name: "serp", delay: 300 * time.Millisecond}
	c.RegisterKeywordProvider(kw)
	c.RegisterSerpProvider(serp)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := c.Collect(ctx, Request{Keywords: []string{"email marketing"}})
	require.NoError(t, err)
	assert.True(t, res.Partial)

	// The fast provider's data survives the cancellation.
	e, ok := res.Store.Keyword("email marketing", "us")
	require.True(t, ok)
	assert.NotNil(t, e.Volume)
}

func TestCollectAuditFailureMarksPageDegraded(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderLimits{"serp": fastLimits(), "audit": fastLimits()})
	c := New(cfg, testStorage(t), nil)
	serp := &fakeSerpProvider{name: "serp"}
	audit := &fakeAuditProvider{name: "audit", err: errs.ErrPageUnreachable}
	c.RegisterSerpProvider(serp)
	c.RegisterAuditProvider(audit)

	res, err := c.Collect(context.Background(), Request{
		Keywords:  []string{"email marketing"},
		TargetURL: "https://me.com/post",
	})
	require.NoError(t, err)
	assert.True(t, res.Partial)

	// Unreachable is not retryable: one attempt per page.
	assert.Equal(t, int64(2), audit.calls.Load())
	p, ok := res.Store.Page("https://me.com/post")
	require.True(t, ok)
	assert.True(t, p.Degraded)
	assert.Contains(t, p.DegradedBy, "audit")
}

func TestCollectRejectsEmptyInput(t *testing.T) {
	c := New(testConfig(nil), testStorage(t), nil)
	_, err := c.Collect(context.Background(), Request{})
	assert.ErrorIs(t, err, errs.ErrInvalidEntity)

	_, err = c.Collect(context.Background(), Request{Keywords: []string{"   "}})
	assert.ErrorIs(t, err, errs.ErrInvalidEntity)
}
