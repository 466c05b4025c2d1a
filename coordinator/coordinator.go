package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/seo-optimizer/signal-engine/config"
	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/logging"
	"github.com/seo-optimizer/signal-engine/quota"
	"github.com/seo-optimizer/signal-engine/resolver"
	"github.com/seo-optimizer/signal-engine/signal"
)

const defaultMaxCompetitors = 5

// Coordinator fans collection requests out to the configured providers
// and folds everything they return into a resolver store. Every provider
// gets its own concurrency cap, token bucket and monthly budget;
// identical in-flight calls are coalesced so concurrent runs asking for
// the same keyword cost one upstream call.
type Coordinator struct {
	keyword []KeywordDataProvider
	serp    []SerpDataProvider
	audit   []PageAuditProvider

	norm   *signal.Normalizer
	usage  *quota.Storage
	cfg    config.Config
	log    logging.Logger
	flight singleflight.Group

	mu     sync.Mutex
	states map[string]*providerState
}

type providerState struct {
	limits  config.ProviderLimits
	limiter *rate.Limiter
	sem     chan struct{}
	// authFailed latches on the first ErrAuthError and fails every later
	// call to this provider without going upstream.
	authFailed atomic.Bool
}

// Result is what a collection run produced. Partial is set whenever any
// signal could not be obtained; everything that was obtained is still in
// the store.
type Result struct {
	Store          *resolver.Store
	Partial        bool
	CompetitorURLs []string
}

func New(cfg config.Config, usage *quota.Storage, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Coordinator{
		norm:   signal.NewNormalizer(log),
		usage:  usage,
		cfg:    cfg,
		log:    log,
		states: make(map[string]*providerState),
	}
}

func (c *Coordinator) RegisterKeywordProvider(p KeywordDataProvider) { c.keyword = append(c.keyword, p) }
func (c *Coordinator) RegisterSerpProvider(p SerpDataProvider) { c.serp = append(c.serp, p) }
func (c *Coordinator) RegisterAuditProvider(p PageAuditProvider) { c.audit = append(c.audit, p) }

func (c *Coordinator) state(provider string) *providerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[provider]; ok {
		return st
	}
	limits := c.cfg.Limits(provider)
	st := &providerState{
		limits:  limits,
		limiter: rate.NewLimiter(rate.Limit(limits.RatePerSecond), limits.Burst),
		sem:     make(chan struct{}, limits.Concurrency),
	}
	c.states[provider] = st
	return st
}

// Collect runs a full collection pass: keyword data and SERP snapshots
// first, then audits of the target and its competitors. Cancellation
// stops outstanding calls but keeps whatever already landed in the
// store, reported as a partial result.
func (c *Coordinator) Collect(ctx context.Context, req Request) (*Result, error) {
	if len(req.Keywords) == 0 {
		return nil, errs.Invalid("collect: no keywords")
	}
	locale := signal.NormalizeLocale(req.Locale)
	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		norm := signal.NormalizeKeyword(kw)
		if norm == "" {
			return nil, errs.Invalid("collect: empty keyword")
		}
		keywords = append(keywords, norm)
	}

	store := resolver.NewStore(c.log)
	var partial atomic.Bool

	// Zero-value group: one provider failing must not cancel the others.
	var g errgroup.Group

	for _, p := range c.keyword {
		p := p
		g.Go(func() error {
			c.collectKeywordData(ctx, p, store, keywords, locale, &partial)
			return nil
		})
		if req.DiscoverRelated {
			for _, kw := range keywords {
				kw := kw
				g.Go(func() error {
					c.collectRelated(ctx, p, store, kw, locale, &partial)
					return nil
				})
			}
		}
	}
	for _, p := range c.serp {
		p := p
		for _, kw := range keywords {
			kw := kw
			g.Go(func() error {
				c.collectSerp(ctx, p, store, kw, locale, &partial)
				return nil
			})
		}
	}
	_ = g.Wait()

	competitors := req.CompetitorURLs
	if len(competitors) == 0 {
		competitors = c.competitorsFromSerps(store, keywords, locale, req.TargetURL, req.MaxCompetitors)
	}

	var g2 errgroup.Group
	urls := make([]string, 0, len(competitors)+1)
	if req.TargetURL != "" {
		urls = append(urls, req.TargetURL)
	}
	urls = append(urls, competitors...)
	for _, p := range c.audit {
		p := p
		for _, u := range urls {
			u := u
			g2.Go(func() error {
				c.collectAudit(ctx, p, store, u, &partial)
				return nil
			})
		}
	}
	_ = g2.Wait()

	if ctx.Err() != nil {
		partial.Store(true)
	}
	return &Result{Store: store, Partial: partial.Load(), CompetitorURLs: competitors}, nil
}

func (c *Coordinator) collectKeywordData(ctx context.Context, p KeywordDataProvider, store *resolver.Store, keywords []string, locale string, partial *atomic.Bool) {
	key := locale + "|" + strings.Join(keywords, ",")
	raw, err := c.call(ctx, p.Name(), signal.CallKeywordData, key, func(ctx context.Context) (*signal.RawResponse, error) {
		return p.FetchKeywordData(ctx, keywords, locale)
	})
	if err != nil {
		partial.Store(true)
		for _, kw := range keywords {
			store.MarkKeywordDegraded(kw, locale, p.Name())
		}
		c.log.Warn("keyword data collection failed",
			logging.String("provider", p.Name()), logging.Error(err))
		return
	}
	c.apply(store, raw, partial)
}

func (c *Coordinator) collectRelated(ctx context.Context, p KeywordDataProvider, store *resolver.Store, seed, locale string, partial *atomic.Bool) {
	raw, err := c.call(ctx, p.Name(), signal.CallRelatedKeywords, seed+"|"+locale, func(ctx context.Context) (*signal.RawResponse, error) {
		return p.FetchRelatedKeywords(ctx, seed, locale)
	})
	if err != nil {
		// Discovery is best effort: the seed keyword itself is not degraded
		// by a failed expansion.
		partial.Store(true)
		c.log.Warn("related keyword discovery failed",
			logging.String("provider", p.Name()), logging.String("seed", seed), logging.Error(err))
		return
	}
	c.apply(store, raw, partial)
}

func (c *Coordinator) collectSerp(ctx context.Context, p SerpDataProvider, store *resolver.Store, keyword, locale string, partial *atomic.Bool) {
	raw, err := c.call(ctx, p.Name(), signal.CallSerp, signal.KeywordKey(keyword, locale), func(ctx context.Context) (*signal.RawResponse, error) {
		return p.FetchSerp(ctx, keyword, locale)
	})
	if err != nil {
		partial.Store(true)
		store.MarkKeywordDegraded(keyword, locale, p.Name())
		c.log.Warn("serp collection failed",
			logging.String("provider", p.Name()), logging.String("keyword", keyword), logging.Error(err))
		return
	}
	c.apply(store, raw, partial)
}

func (c *Coordinator) collectAudit(ctx context.Context, p PageAuditProvider, store *resolver.Store, url string, partial *atomic.Bool) {
	canonical := signal.CanonicalURL(url)
	raw, err := c.call(ctx, p.Name(), signal.CallPageAudit, canonical, func(ctx context.Context) (*signal.RawResponse, error) {
		return p.FetchAudit(ctx, url)
	})
	if err != nil {
		partial.Store(true)
		store.MarkPageDegraded(canonical, p.Name())
		if errors.Is(err, errs.ErrPageNoContent) {
			c.log.Info("page has no auditable content",
				logging.String("provider", p.Name()), logging.String("url", canonical))
		} else {
			c.log.Warn("page audit failed",
				logging.String("provider", p.Name()), logging.String("url", canonical), logging.Error(err))
		}
		return
	}
	c.apply(store, raw, partial)
}

func (c *Coordinator) apply(store *resolver.Store, raw *signal.RawResponse, partial *atomic.Bool) {
	batch, err := c.norm.Normalize(*raw)
	if err != nil {
		partial.Store(true)
		c.log.Warn("discarding malformed provider response",
			logging.String("provider", raw.Provider), logging.String("call", string(raw.Call)), logging.Error(err))
		return
	}
	if err := store.ApplyBatch(batch); err != nil {
		partial.Store(true)
		c.log.Warn("failed to apply provider batch",
			logging.String("provider", raw.Provider), logging.Error(err))
	}
}

// call wraps one upstream request with the provider's budget check, rate
// limit, concurrency cap, retry policy and in-flight coalescing.
func (c *Coordinator) call(ctx context.Context, provider string, callType signal.CallType, key string, fn func(context.Context) (*signal.RawResponse, error)) (*signal.RawResponse, error) {
	st := c.state(provider)
	if st.authFailed.Load() {
		return nil, fmt.Errorf("%s: %w", provider, errs.ErrAuthError)
	}

	flightKey := provider + "|" + string(callType) + "|" + key
	v, err, _ := c.flight.Do(flightKey, func() (interface{}, error) {
		select {
		case st.sem <- struct{}{}:
			defer func() { <-st.sem }()
		case <-ctx.Done():
			return nil, fmt.Errorf("%s %s: %w", provider, callType, errs.ErrTimeout)
		}
		return c.callWithRetry(ctx, st, provider, callType, fn)
	})
	if err != nil {
		return nil, err
	}
	return v.(*signal.RawResponse), nil
}

func (c *Coordinator) callWithRetry(ctx context.Context, st *providerState, provider string, callType signal.CallType, fn func(context.Context) (*signal.RawResponse, error)) (*signal.RawResponse, error) {
	var lastErr error
	backoff := st.limits.InitialBackoff
	for attempt := 1; attempt <= st.limits.MaxAttempts; attempt++ {
		if c.usage.Remaining(provider, st.limits.MonthlyBudget) == 0 {
			// A monthly budget does not recover within a run, so there is
			// no point retrying.
			return nil, fmt.Errorf("%s: monthly budget exhausted: %w", provider, errs.ErrRateLimited)
		}
		if err := st.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: %w", provider, callType, errs.ErrTimeout)
		}

		resp, err := fn(ctx)
		c.usage.Record(provider, err == nil)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s %s: %w", provider, callType, errs.ErrTimeout)
		}
		if errors.Is(err, errs.ErrAuthError) {
			st.authFailed.Store(true)
			c.log.Error("provider credential rejected, disabling provider",
				logging.String("provider", provider))
			return nil, err
		}
		lastErr = err
		if !errs.Retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < st.limits.MaxAttempts {
			select {
			case <-time.After(jitter(backoff)):
			case <-ctx.Done():
				return nil, fmt.Errorf("%s %s: %w", provider, callType, errs.ErrTimeout)
			}
			backoff *= 2
			if backoff > st.limits.MaxBackoff {
				backoff = st.limits.MaxBackoff
			}
		}
	}
	return nil, fmt.Errorf("%s %s: attempts exhausted: %w", provider, callType, lastErr)
}

// jitter spreads a backoff delay across 75% to 125% of its nominal value
// so retries from parallel calls do not land together.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}

// competitorsFromSerps picks audit candidates from the freshest snapshot
// of each keyword: top organic entries, target excluded, deduplicated
// across keywords.
func (c *Coordinator) competitorsFromSerps(store *resolver.Store, keywords []string, locale, targetURL string, max int) []string {
	if max <= 0 {
		max = defaultMaxCompetitors
	}
	target := signal.CanonicalURL(targetURL)
	seen := make(map[string]bool)
	var urls []string
	for _, kw := range keywords {
		entity, ok := store.Keyword(kw, locale)
		if !ok {
			continue
		}
		snapshot := entity.LatestSnapshot()
		if snapshot == nil {
			continue
		}
		for _, entry := range snapshot.Entries {
			u := signal.CanonicalURL(entry.URL)
			if u == "" || u == target || seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
			if len(urls) >= max {
				return urls
			}
		}
	}
	return urls
}
