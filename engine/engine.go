// Package engine ties collection, resolution, scoring, gap synthesis and
// ranking together into the operations the HTTP layer exposes.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/seo-optimizer/signal-engine/coordinator"
	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/gapsynth"
	"github.com/seo-optimizer/signal-engine/logging"
	"github.com/seo-optimizer/signal-engine/ranker"
	"github.com/seo-optimizer/signal-engine/resolver"
	"github.com/seo-optimizer/signal-engine/scorer"
	"github.com/seo-optimizer/signal-engine/signal"
)

type Engine struct {
	coord   *coordinator.Coordinator
	weights scorer.Weights
	gapCfg  gapsynth.Config
	log     logging.Logger
}

func New(coord *coordinator.Coordinator, weights scorer.Weights, gapCfg gapsynth.Config, log logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{coord: coord, weights: weights, gapCfg: gapCfg, log: log}
}

// AnalysisRequest drives a full collect-and-analyze run.
type AnalysisRequest struct {
	Keywords       []string `json:"keywords" binding:"required"`
	Locale         string   `json:"locale"`
	TargetURL      string   `json:"targetUrl"`
	CompetitorURLs []string `json:"competitorUrls"`
	// StrategicWeights maps normalized keyword text to a business
	// multiplier between 1.0 and 3.0. Unlisted keywords get 1.0.
	StrategicWeights map[string]float64 `json:"strategicWeights"`
	DiscoverRelated  bool               `json:"discoverRelated"`
	MaxCompetitors   int                `json:"maxCompetitors"`
}

// AnalysisResult is the full output of one run. Partial means at least
// one signal could not be collected; the result still covers everything
// that was.
type AnalysisResult struct {
	RunID          string                     `json:"runId"`
	GeneratedAt    time.Time                  `json:"generatedAt"`
	Partial        bool                       `json:"partial"`
	Scores         []*scorer.OpportunityScore `json:"scores"`
	Gaps           []gapsynth.Gap             `json:"gaps,omitempty"`
	Targets        []ranker.PriorityTarget    `json:"targets"`
	CompetitorURLs []string                   `json:"competitorUrls,omitempty"`
	Degraded       []string                   `json:"degraded,omitempty"`
}

// Run executes the whole pipeline. Cancellation mid-run yields a partial
// result over whatever signals had landed, not an error.
func (e *Engine) Run(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	runID := uuid.NewString()
	log := e.log.With(logging.String("run_id", runID))
	log.Info("starting analysis run",
		logging.Int("keywords", len(req.Keywords)), logging.String("target", req.TargetURL))

	collected, err := e.coord.Collect(ctx, coordinator.Request{
		Keywords:        req.Keywords,
		Locale:          req.Locale,
		TargetURL:       req.TargetURL,
		CompetitorURLs:  req.CompetitorURLs,
		DiscoverRelated: req.DiscoverRelated,
		MaxCompetitors:  req.MaxCompetitors,
	})
	if err != nil {
		return nil, err
	}
	store := collected.Store

	result := &AnalysisResult{
		RunID:          runID,
		GeneratedAt:    time.Now().UTC(),
		Partial:        collected.Partial,
		CompetitorURLs: collected.CompetitorURLs,
	}

	var candidates []ranker.Candidate
	for _, entity := range store.Keywords() {
		if entity.Degraded {
			result.Degraded = append(result.Degraded, entity.Key)
		}
		snapshot := entity.LatestSnapshot()
		in := scorer.Input{
			Entity:          entity,
			Snapshot:        snapshot,
			Ranking:         rankingFor(snapshot, req.TargetURL),
			StrategicWeight: req.StrategicWeights[signal.NormalizeKeyword(entity.Keyword)],
		}
		score, err := scorer.Score(in, e.weights)
		if err != nil {
			log.Warn("skipping unscorable keyword",
				logging.String("keyword", entity.Keyword), logging.Error(err))
			continue
		}
		result.Scores = append(result.Scores, score)
	}
	sortScores(result.Scores)

	if req.TargetURL != "" {
		gaps, gerr := e.synthesizeGaps(store, req.TargetURL, collected.CompetitorURLs, latestSnapshot(store))
		if gerr != nil {
			log.Warn("gap synthesis skipped", logging.Error(gerr))
		} else {
			result.Gaps = gaps
		}
	}

	for _, score := range result.Scores {
		candidates = append(candidates, ranker.Candidate{
			TargetURL: req.TargetURL,
			Score:     score,
			Gaps:      result.Gaps,
		})
	}
	result.Targets = ranker.Rank(candidates)

	log.Info("analysis run complete",
		logging.Int("scores", len(result.Scores)),
		logging.Int("gaps", len(result.Gaps)),
		logging.Bool("partial", result.Partial))
	return result, nil
}

func (e *Engine) synthesizeGaps(store *resolver.Store, targetURL string, competitorURLs []string, snapshot *signal.SerpSignal) ([]gapsynth.Gap, error) {
	target, ok := store.Page(signal.CanonicalURL(targetURL))
	if !ok {
		return nil, errs.Invalid("no audit collected for target %s", targetURL)
	}
	var competitors []signal.PageAuditSignal
	for _, u := range competitorURLs {
		if page, ok := store.Page(signal.CanonicalURL(u)); ok {
			competitors = append(competitors, page.Audit())
		}
	}
	return gapsynth.Synthesize(target.Audit(), competitors, snapshot, e.gapCfg)
}

// rankingFor derives the scoring ranking input from a snapshot. No
// snapshot means unknown; a snapshot without the target means confirmed
// not ranking.
func rankingFor(snapshot *signal.SerpSignal, targetURL string) *scorer.Ranking {
	if targetURL == "" {
		return nil
	}
	pos, known := scorer.PositionOf(snapshot, targetURL)
	if !known {
		return nil
	}
	return &scorer.Ranking{Position: pos}
}

// latestSnapshot picks the newest SERP snapshot across all keywords, for
// feature-gap eligibility checks.
func latestSnapshot(store *resolver.Store) *signal.SerpSignal {
	var latest *signal.SerpSignal
	for _, entity := range store.Keywords() {
		if snap := entity.LatestSnapshot(); snap != nil {
			if latest == nil || snap.SnapshotAt.After(latest.SnapshotAt) {
				latest = snap
			}
		}
	}
	return latest
}
