package coordinator

import (
	"context"

	"github.com/seo-optimizer/signal-engine/signal"
)

// KeywordDataProvider returns volume, CPC and competition figures for a
// batch of keywords. Keywords the provider has no data for must still
// appear in the payload so the normalizer can record them as seen.
type KeywordDataProvider interface {
	Name() string
	FetchKeywordData(ctx context.Context, keywords []string, locale string) (*signal.RawResponse, error)
	FetchRelatedKeywords(ctx context.Context, seed, locale string) (*signal.RawResponse, error)
}

// SerpDataProvider returns a search result snapshot for one keyword.
type SerpDataProvider interface {
	Name() string
	FetchSerp(ctx context.Context, keyword, locale string) (*signal.RawResponse, error)
}

// PageAuditProvider fetches and audits a single page. Implementations
// must return errs.ErrPageUnreachable when the page cannot be fetched and
// errs.ErrPageNoContent when it loads but has nothing to audit, so the
// two cases stay distinguishable downstream.
type PageAuditProvider interface {
	Name() string
	FetchAudit(ctx context.Context, url string) (*signal.RawResponse, error)
}

// Request describes one collection run.
type Request struct {
	Keywords       []string
	Locale         string
	TargetURL      string
	CompetitorURLs []string
	// DiscoverRelated adds a related-keyword round for each seed keyword
	// before SERP collection.
	DiscoverRelated bool
	// MaxCompetitors caps how many SERP competitors get audited when
	// CompetitorURLs is empty. Zero means the default of 5.
	MaxCompetitors int
}
