// Package resolver merges canonical signals into deduplicated entities.
// It owns the entity store for the duration of one analysis run.
package resolver

import (
	"sort"
	"time"

	"github.com/seo-optimizer/signal-engine/signal"
)

// KeywordEntity is the merged record for one keyword identity plus the
// history of every signal that contributed to it.
type KeywordEntity struct {
	Key          string                 `json:"key"`
	Keyword      string                 `json:"keyword"`
	Locale       string                 `json:"locale"`
	Volume       *int64                 `json:"volume"`
	Competition  *float64               `json:"competition"`
	CPC          *float64               `json:"cpc"`
	Intent       signal.Intent          `json:"intent"`
	RelatedTerms []string               `json:"relatedTerms,omitempty"`
	History      []signal.KeywordSignal `json:"history"`
	Snapshots    []signal.SerpSignal    `json:"snapshots,omitempty"`
	Degraded     bool                   `json:"degraded"`
	DegradedBy   []string               `json:"degradedBy,omitempty"`

	volumeAt      time.Time
	competitionAt time.Time
	cpcAt         time.Time
	intentAt      time.Time
}

// LatestSnapshot returns the snapshot with the newest provider timestamp,
// or nil when no SERP data was collected. Older snapshots stay on the
// entity for historical comparison.
func (e *KeywordEntity) LatestSnapshot() *signal.SerpSignal {
	var latest *signal.SerpSignal
	for i := range e.Snapshots {
		if latest == nil || e.Snapshots[i].SnapshotAt.After(latest.SnapshotAt) {
			latest = &e.Snapshots[i]
		}
	}
	return latest
}

// PageEntity is the merged audit record for one canonical URL.
type PageEntity struct {
	Key                 string                   `json:"key"`
	URL                 string                   `json:"url"`
	WordCount           *int                     `json:"wordCount"`
	Headings            []signal.Heading         `json:"headings,omitempty"`
	SchemaTypes         []string                 `json:"schemaTypes,omitempty"`
	Desktop             *signal.WebVitals        `json:"desktop,omitempty"`
	Mobile              *signal.WebVitals        `json:"mobile,omitempty"`
	StructuredDataValid *bool                    `json:"structuredDataValid,omitempty"`
	Topics              []string                 `json:"topics,omitempty"`
	HasFAQSection       *bool                    `json:"hasFaqSection,omitempty"`
	MobileFriendly      *bool                    `json:"mobileFriendly,omitempty"`
	History             []signal.PageAuditSignal `json:"history"`
	Degraded            bool                     `json:"degraded"`
	DegradedBy          []string                 `json:"degradedBy,omitempty"`

	wordCountAt time.Time
	headingsAt  time.Time
	desktopAt   time.Time
	mobileAt    time.Time
	validAt     time.Time
	faqAt       time.Time
	mobileOkAt  time.Time
}

// Audit reconstructs a merged PageAuditSignal view of the entity, used by
// the gap synthesizer so it can consume targets and competitors uniformly.
func (e *PageEntity) Audit() signal.PageAuditSignal {
	return signal.PageAuditSignal{
		URL:                 e.URL,
		WordCount:           e.WordCount,
		Headings:            e.Headings,
		SchemaTypes:         e.SchemaTypes,
		Desktop:             e.Desktop,
		Mobile:              e.Mobile,
		StructuredDataValid: e.StructuredDataValid,
		Topics:              e.Topics,
		HasFAQSection:       e.HasFAQSection,
		MobileFriendly:      e.MobileFriendly,
	}
}

// mergeValue applies the fill-never-erase rule for one field: an incoming
// nil never erases a known value, and when both sides are known the value
// with the newer collection timestamp wins. Comparing collection times
// rather than arrival order keeps the merge commutative.
func mergeValue[T any](cur *T, curAt time.Time, in *T, inAt time.Time) (*T, time.Time) {
	if in == nil {
		return cur, curAt
	}
	if cur == nil || inAt.After(curAt) {
		return in, inAt
	}
	return cur, curAt
}

// unionTerms merges two string sets, keeping output sorted so repeated
// merges stay deterministic.
func unionTerms(cur, in []string) []string {
	if len(in) == 0 {
		return cur
	}
	seen := make(map[string]bool, len(cur)+len(in))
	out := make([]string, 0, len(cur)+len(in))
	for _, lists := range [][]string{cur, in} {
		for _, t := range lists {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
