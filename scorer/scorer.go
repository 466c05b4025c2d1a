// Package scorer computes explainable opportunity scores for keyword
// entities. Scoring is pure: all weights and thresholds arrive as
// configuration, never as constants buried in the formula.
package scorer

import (
	"math"
	"sort"

	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/resolver"
	"github.com/seo-optimizer/signal-engine/signal"
)

// Bucket is the priority bucket an opportunity score maps to.
type Bucket string

const (
	BucketCritical Bucket = "critical"
	BucketHigh     Bucket = "high"
	BucketMedium   Bucket = "medium"
	BucketLow      Bucket = "low"
)

// Confidence reports whether every required signal was present at scoring
// time.
type Confidence string

const (
	ConfidenceFull    Confidence = "full"
	ConfidencePartial Confidence = "partial"
)

// RankBand maps a current ranking position range onto a feasibility
// multiplier. Position 0 stands for "not ranking".
type RankBand struct {
	MinPosition int     `yaml:"min" json:"min"`
	MaxPosition int     `yaml:"max" json:"max"`
	Multiplier  float64 `yaml:"multiplier" json:"multiplier"`
}

// Thresholds are the score bucket boundaries, checked highest first.
type Thresholds struct {
	Critical float64 `yaml:"critical" json:"critical"`
	High     float64 `yaml:"high" json:"high"`
	Medium   float64 `yaml:"medium" json:"medium"`
}

// Weights is the full scoring configuration.
type Weights struct {
	IntentValues map[signal.Intent]float64 `yaml:"intent_values" json:"intentValues"`

	// NotRankingMultiplier applies when the page confirmedly does not rank;
	// RankBands apply when it does.
	NotRankingMultiplier float64    `yaml:"not_ranking_multiplier" json:"notRankingMultiplier"`
	RankBands            []RankBand `yaml:"rank_bands" json:"rankBands"`

	ConfidencePenalty float64    `yaml:"confidence_penalty" json:"confidencePenalty"`
	Thresholds        Thresholds `yaml:"thresholds" json:"thresholds"`

	// Neutral stand-ins used when a required signal is missing, so a partial
	// score is still the full formula evaluated over defined inputs.
	MissingVolumeAssumption      int64   `yaml:"missing_volume_assumption" json:"missingVolumeAssumption"`
	MissingCompetitionAssumption float64 `yaml:"missing_competition_assumption" json:"missingCompetitionAssumption"`
}

// DefaultWeights returns the documented default scoring configuration.
func DefaultWeights() Weights {
	return Weights{
		IntentValues: map[signal.Intent]float64{
			signal.IntentTransactional: 3.0,
			signal.IntentCommercial:    2.0,
			signal.IntentInformational: 1.5,
			signal.IntentNavigational:  1.0,
			signal.IntentUnknown:       1.0,
		},
		NotRankingMultiplier: 1.0,
		RankBands: []RankBand{
			{MinPosition: 1, MaxPosition: 3, Multiplier: 0.1},
			{MinPosition: 4, MaxPosition: 7, Multiplier: 1.3},
			{MinPosition: 8, MaxPosition: 20, Multiplier: 1.5},
			{MinPosition: 21, MaxPosition: 50, Multiplier: 1.2},
		},
		ConfidencePenalty:            0.6,
		Thresholds:                   Thresholds{Critical: 8.0, High: 3.0, Medium: 1.0},
		MissingVolumeAssumption:      100,
		MissingCompetitionAssumption: 0.5,
	}
}

// Ranking is the target page's current position for the keyword.
// Position 0 means confirmed not ranking. A nil *Ranking in Input means
// the position is unknown, which degrades confidence.
type Ranking struct {
	Position int `json:"position"`
}

// Input is everything one scoring call consumes. Snapshot is optional and
// informational; Ranking nil means unknown.
type Input struct {
	Entity          *resolver.KeywordEntity
	Snapshot        *signal.SerpSignal
	Ranking         *Ranking
	StrategicWeight float64
}

// Factor is one weighted contribution to the final score, in application
// order, so callers can reproduce the arithmetic.
type Factor struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// OpportunityScore is the computed, explainable result for one keyword.
type OpportunityScore struct {
	Keyword       string     `json:"keyword"`
	Locale        string     `json:"locale"`
	Score         float64    `json:"score"`
	Bucket        Bucket     `json:"bucket"`
	Confidence    Confidence `json:"confidence"`
	MissingInputs []string   `json:"missingInputs,omitempty"`
	Factors       []Factor   `json:"factors"`
	Volume        *int64     `json:"volume,omitempty"`
	Ranking       *Ranking   `json:"ranking,omitempty"`
}

// Score computes the opportunity score for one keyword entity. Missing
// optional inputs never fail; only a missing keyword identity does.
func Score(in Input, w Weights) (*OpportunityScore, error) {
	if in.Entity == nil || signal.NormalizeKeyword(in.Entity.Keyword) == "" {
		return nil, errs.Invalid("scoring requires a keyword entity with identity")
	}

	var missing []string

	volume := w.MissingVolumeAssumption
	if in.Entity.Volume != nil {
		volume = *in.Entity.Volume
	} else {
		missing = append(missing, "volume")
	}

	competition := w.MissingCompetitionAssumption
	if in.Entity.Competition != nil {
		competition = *in.Entity.Competition
	} else {
		missing = append(missing, "competition")
	}

	rankMultiplier := w.NotRankingMultiplier
	if in.Ranking == nil {
		missing = append(missing, "ranking")
	} else if in.Ranking.Position > 0 {
		rankMultiplier = w.rankMultiplierFor(in.Ranking.Position)
	}

	intent := in.Entity.Intent
	if intent == "" {
		intent = signal.IntentUnknown
	}
	intentWeight, ok := w.IntentValues[intent]
	if !ok {
		intentWeight = w.IntentValues[signal.IntentUnknown]
	}

	// Log scaling dampens outlier volumes so one head term does not drown
	// every other opportunity.
	logVolume := math.Log10(1 + float64(volume))
	demand := logVolume * intentWeight

	inverseCompetition := 1 - competition
	feasibility := inverseCompetition * rankMultiplier

	strategic := in.StrategicWeight
	if strategic == 0 {
		strategic = 1.0
	}
	strategic = math.Min(3.0, math.Max(1.0, strategic))

	penalty := 1.0
	confidence := ConfidenceFull
	if len(missing) > 0 {
		penalty = w.ConfidencePenalty
		confidence = ConfidencePartial
	} else if in.Entity.Degraded {
		confidence = ConfidencePartial
	}

	score := demand * feasibility * strategic * penalty

	sort.Strings(missing)
	result := &OpportunityScore{
		Keyword:       in.Entity.Keyword,
		Locale:        in.Entity.Locale,
		Score:         score,
		Bucket:        w.bucketFor(score),
		Confidence:    confidence,
		MissingInputs: missing,
		Volume:        in.Entity.Volume,
		Ranking:       in.Ranking,
		Factors: []Factor{
			{Name: "demand", Value: logVolume, Weight: intentWeight, Contribution: demand},
			{Name: "feasibility", Value: inverseCompetition, Weight: rankMultiplier, Contribution: feasibility},
			{Name: "strategic", Value: 1, Weight: strategic, Contribution: strategic},
			{Name: "confidence", Value: 1, Weight: penalty, Contribution: penalty},
		},
	}
	return result, nil
}

// rankMultiplierFor resolves position against the configured band table.
// Positions beyond every band behave like not ranking.
func (w Weights) rankMultiplierFor(position int) float64 {
	for _, band := range w.RankBands {
		if position >= band.MinPosition && position <= band.MaxPosition {
			return band.Multiplier
		}
	}
	return w.NotRankingMultiplier
}

func (w Weights) bucketFor(score float64) Bucket {
	switch {
	case score >= w.Thresholds.Critical:
		return BucketCritical
	case score >= w.Thresholds.High:
		return BucketHigh
	case score >= w.Thresholds.Medium:
		return BucketMedium
	default:
		return BucketLow
	}
}

// Less orders two scores for ranking: higher score first, then full
// confidence before partial, then higher raw volume.
func Less(a, b *OpportunityScore) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Confidence != b.Confidence {
		return a.Confidence == ConfidenceFull
	}
	av, bv := int64(-1), int64(-1)
	if a.Volume != nil {
		av = *a.Volume
	}
	if b.Volume != nil {
		bv = *b.Volume
	}
	if av != bv {
		return av > bv
	}
	return a.Keyword < b.Keyword
}

// PositionOf finds the target URL's organic position in a snapshot.
// Returns 0 (not ranking) when the URL is absent, and false when there is
// no snapshot to consult at all.
func PositionOf(snapshot *signal.SerpSignal, targetURL string) (int, bool) {
	if snapshot == nil {
		return 0, false
	}
	canon := signal.CanonicalURL(targetURL)
	for _, entry := range snapshot.Entries {
		if signal.CanonicalURL(entry.URL) == canon {
			return entry.Position, true
		}
	}
	return 0, true
}
