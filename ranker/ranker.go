// Package ranker merges opportunity scores and content gaps into the final
// prioritized target list.
package ranker

import (
	"sort"

	"github.com/seo-optimizer/signal-engine/gapsynth"
	"github.com/seo-optimizer/signal-engine/scorer"
)

// Tier is the run-level priority tier of a target.
type Tier string

const (
	TierCritical  Tier = "critical"
	TierHigh      Tier = "high"
	TierStrategic Tier = "strategic"
)

// PriorityTarget is one entry of the final recommendation list: a keyword
// (optionally tied to a page) with its score, the gaps closing it requires,
// and an implementation-effort estimate.
type PriorityTarget struct {
	Keyword         string                   `json:"keyword"`
	Locale          string                   `json:"locale"`
	TargetURL       string                   `json:"targetUrl,omitempty"`
	Tier            Tier                     `json:"tier"`
	Score           *scorer.OpportunityScore `json:"score"`
	Gaps            []gapsynth.Gap           `json:"gaps,omitempty"`
	EstimatedEffort float64                  `json:"estimatedEffort"`
}

// Candidate is one input to the ranker. EstimatedEffort <= 0 means the
// caller supplied none and a default is derived from the gap count.
type Candidate struct {
	TargetURL       string
	Score           *scorer.OpportunityScore
	Gaps            []gapsynth.Gap
	EstimatedEffort float64
}

// Rank orders candidates into the final list: score bucket first (via the
// score ordering), ties broken by lower estimated effort. Candidates
// without a score are dropped.
func Rank(candidates []Candidate) []PriorityTarget {
	targets := make([]PriorityTarget, 0, len(candidates))
	for _, c := range candidates {
		if c.Score == nil {
			continue
		}
		effort := c.EstimatedEffort
		if effort <= 0 {
			// Each gap to close is a unit of work; a baseline unit covers
			// on-page tuning that is needed regardless.
			effort = 1 + float64(len(c.Gaps))
		}
		targets = append(targets, PriorityTarget{
			Keyword:         c.Score.Keyword,
			Locale:          c.Score.Locale,
			TargetURL:       c.TargetURL,
			Tier:            tierFor(c.Score.Bucket),
			Score:           c.Score,
			Gaps:            c.Gaps,
			EstimatedEffort: effort,
		})
	}

	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.Score.Bucket != b.Score.Bucket {
			return bucketRank(a.Score.Bucket) < bucketRank(b.Score.Bucket)
		}
		if a.Score.Score != b.Score.Score || a.Score.Confidence != b.Score.Confidence {
			return scorer.Less(a.Score, b.Score)
		}
		if a.EstimatedEffort != b.EstimatedEffort {
			return a.EstimatedEffort < b.EstimatedEffort
		}
		return scorer.Less(a.Score, b.Score)
	})
	return targets
}

// tierFor collapses the four score buckets onto the three workflow tiers:
// medium and low opportunities are strategic, longer-horizon work.
func tierFor(b scorer.Bucket) Tier {
	switch b {
	case scorer.BucketCritical:
		return TierCritical
	case scorer.BucketHigh:
		return TierHigh
	default:
		return TierStrategic
	}
}

func bucketRank(b scorer.Bucket) int {
	switch b {
	case scorer.BucketCritical:
		return 0
	case scorer.BucketHigh:
		return 1
	case scorer.BucketMedium:
		return 2
	default:
		return 3
	}
}
