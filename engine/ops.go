package engine

import (
	"sort"

	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/gapsynth"
	"github.com/seo-optimizer/signal-engine/ranker"
	"github.com/seo-optimizer/signal-engine/resolver"
	"github.com/seo-optimizer/signal-engine/scorer"
	"github.com/seo-optimizer/signal-engine/signal"
)

// KeywordInput is one keyword with caller-supplied signal values, for
// scoring without a collection run. A nil RankingPosition means the
// ranking is unknown; zero means confirmed not ranking.
type KeywordInput struct {
	Keyword         string   `json:"keyword" binding:"required"`
	Locale          string   `json:"locale"`
	Volume          *int64   `json:"volume"`
	Competition     *float64 `json:"competition"`
	CPC             *float64 `json:"cpc"`
	Intent          string   `json:"intent"`
	RankingPosition *int     `json:"rankingPosition"`
	StrategicWeight float64  `json:"strategicWeight"`
}

type ScoreRequest struct {
	Keywords []KeywordInput `json:"keywords" binding:"required"`
}

// ScoreKeywords scores caller-supplied keyword data without touching any
// provider. It is deterministic for a given request and weight set.
func (e *Engine) ScoreKeywords(req ScoreRequest) ([]*scorer.OpportunityScore, error) {
	if len(req.Keywords) == 0 {
		return nil, errs.Invalid("score: no keywords")
	}
	scores := make([]*scorer.OpportunityScore, 0, len(req.Keywords))
	for _, in := range req.Keywords {
		keyword := signal.NormalizeKeyword(in.Keyword)
		intent := signal.ParseIntent(in.Intent)
		if intent == signal.IntentUnknown && in.Intent == "" {
			intent = signal.ClassifyIntent(keyword)
		}
		entity := &resolver.KeywordEntity{
			Keyword:     keyword,
			Locale:      signal.NormalizeLocale(in.Locale),
			Volume:      in.Volume,
			Competition: in.Competition,
			CPC:         in.CPC,
			Intent:      intent,
		}
		var ranking *scorer.Ranking
		if in.RankingPosition != nil {
			ranking = &scorer.Ranking{Position: *in.RankingPosition}
		}
		score, err := scorer.Score(scorer.Input{
			Entity:          entity,
			Ranking:         ranking,
			StrategicWeight: in.StrategicWeight,
		}, e.weights)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	sortScores(scores)
	return scores, nil
}

type GapsRequest struct {
	Target      signal.PageAuditSignal   `json:"target" binding:"required"`
	Competitors []signal.PageAuditSignal `json:"competitors" binding:"required"`
	Snapshot    *signal.SerpSignal       `json:"snapshot"`
}

// SynthesizeGaps compares explicit audits without a collection run.
func (e *Engine) SynthesizeGaps(req GapsRequest) ([]gapsynth.Gap, error) {
	return gapsynth.Synthesize(req.Target, req.Competitors, req.Snapshot, e.gapCfg)
}

type RankCandidate struct {
	TargetURL       string                   `json:"targetUrl"`
	Score           *scorer.OpportunityScore `json:"score" binding:"required"`
	Gaps            []gapsynth.Gap           `json:"gaps"`
	EstimatedEffort float64                  `json:"estimatedEffort"`
}

type RankRequest struct {
	Candidates []RankCandidate `json:"candidates" binding:"required"`
}

// RankTargets orders explicit scored candidates without a collection run.
func (e *Engine) RankTargets(req RankRequest) ([]ranker.PriorityTarget, error) {
	if len(req.Candidates) == 0 {
		return nil, errs.Invalid("rank: no candidates")
	}
	candidates := make([]ranker.Candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		candidates = append(candidates, ranker.Candidate{
			TargetURL:       c.TargetURL,
			Score:           c.Score,
			Gaps:            c.Gaps,
			EstimatedEffort: c.EstimatedEffort,
		})
	}
	return ranker.Rank(candidates), nil
}

func sortScores(scores []*scorer.OpportunityScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scorer.Less(scores[i], scores[j])
	})
}
