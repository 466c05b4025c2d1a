// Package gapsynth diffs a target page's coverage against an aggregated
// competitor corpus and reports the gaps, deterministically ordered.
package gapsynth

import (
	"sort"
	"strings"

	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/signal"
)

// GapType classifies what kind of coverage is missing.
type GapType string

const (
	GapTopic       GapType = "topic"
	GapSerpFeature GapType = "serp-feature"
	GapStructural  GapType = "structural"
)

// Config holds the synthesizer's named thresholds and impact weights.
type Config struct {
	// MinCoverageCount is how many competitors must exhibit an item before
	// its absence on the target is reported.
	MinCoverageCount int `yaml:"min_coverage_count" json:"minCoverageCount"`

	// ImpactWeights scale each gap type's rank score.
	TopicImpact      float64 `yaml:"topic_impact" json:"topicImpact"`
	FeatureImpact    float64 `yaml:"feature_impact" json:"featureImpact"`
	StructuralImpact float64 `yaml:"structural_impact" json:"structuralImpact"`
}

// DefaultConfig returns the documented default gap configuration.
func DefaultConfig() Config {
	return Config{
		MinCoverageCount: 2,
		TopicImpact:      1.0,
		FeatureImpact:    1.1,
		StructuralImpact: 1.0,
	}
}

// Gap is one item present across competitors but missing from the target.
type Gap struct {
	Type            GapType `json:"type"`
	Item            string  `json:"item"`
	CoverageRatio   float64 `json:"coverageRatio"`
	ImpactWeight    float64 `json:"impactWeight"`
	RankScore       float64 `json:"rankScore"`
	CompetitorCount int     `json:"competitorCount"`
}

// Synthesize compares the target audit against 1..n competitor audits and
// returns gaps ordered by rank score descending, ties broken by lexical
// item key so identical inputs always produce identical output.
func Synthesize(target signal.PageAuditSignal, competitors []signal.PageAuditSignal, snapshot *signal.SerpSignal, cfg Config) ([]Gap, error) {
	if signal.CanonicalURL(target.URL) == "" {
		return nil, errs.Invalid("gap synthesis requires a target page URL")
	}
	if cfg.MinCoverageCount <= 0 {
		cfg.MinCoverageCount = DefaultConfig().MinCoverageCount
	}
	n := len(competitors)
	if n == 0 {
		return nil, nil
	}

	var gaps []Gap

	// Topic gaps: union competitor topic tags weighted by how many
	// competitors carry each, subtract the target's own set.
	targetTopics := toSet(target.Topics)
	topicCounts := make(map[string]int)
	for _, c := range competitors {
		for _, t := range toSetSlice(c.Topics) {
			topicCounts[t]++
		}
	}
	for topic, count := range topicCounts {
		if count < cfg.MinCoverageCount || targetTopics[topic] {
			continue
		}
		ratio := float64(count) / float64(n)
		gaps = append(gaps, Gap{
			Type:            GapTopic,
			Item:            topic,
			CoverageRatio:   ratio,
			ImpactWeight:    cfg.TopicImpact,
			RankScore:       ratio * cfg.TopicImpact,
			CompetitorCount: count,
		})
	}

	// Structural gaps come from direct attribute comparison, not set
	// difference: FAQ section presence and recognized schema types.
	faqCount := 0
	schemaCounts := make(map[string]int)
	for _, c := range competitors {
		if c.HasFAQSection != nil && *c.HasFAQSection {
			faqCount++
		}
		for _, st := range c.SchemaTypes {
			if signal.IsKnownSchemaType(st) {
				schemaCounts[st]++
			}
		}
	}
	targetHasFAQ := target.HasFAQSection != nil && *target.HasFAQSection
	if faqCount >= cfg.MinCoverageCount && !targetHasFAQ {
		ratio := float64(faqCount) / float64(n)
		gaps = append(gaps, Gap{
			Type:            GapStructural,
			Item:            "faq-section",
			CoverageRatio:   ratio,
			ImpactWeight:    cfg.StructuralImpact,
			RankScore:       ratio * cfg.StructuralImpact,
			CompetitorCount: faqCount,
		})
	}
	targetSchemas := toSet(target.SchemaTypes)
	for schemaType, count := range schemaCounts {
		if count < cfg.MinCoverageCount || targetSchemas[schemaType] {
			continue
		}
		ratio := float64(count) / float64(n)
		gaps = append(gaps, Gap{
			Type:            GapStructural,
			Item:            "schema:" + schemaType,
			CoverageRatio:   ratio,
			ImpactWeight:    cfg.StructuralImpact,
			RankScore:       ratio * cfg.StructuralImpact,
			CompetitorCount: count,
		})
	}

	// SERP-feature gaps: features present on the live snapshot that the
	// target page's structure cannot currently win.
	if snapshot != nil {
		for _, feature := range snapshot.Features {
			if eligible(target, feature) {
				continue
			}
			gaps = append(gaps, Gap{
				Type:            GapSerpFeature,
				Item:            string(feature),
				CoverageRatio:   1.0,
				ImpactWeight:    cfg.FeatureImpact,
				RankScore:       cfg.FeatureImpact,
				CompetitorCount: n,
			})
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].RankScore != gaps[j].RankScore {
			return gaps[i].RankScore > gaps[j].RankScore
		}
		return gaps[i].Item < gaps[j].Item
	})
	return gaps, nil
}

// eligible reports whether the target page already has the structure a
// SERP feature rewards, so no gap needs reporting for it.
func eligible(target signal.PageAuditSignal, feature signal.SerpFeature) bool {
	switch feature {
	case signal.FeaturePeopleAlsoAsk:
		return target.HasFAQSection != nil && *target.HasFAQSection
	case signal.FeatureFeaturedSnippet:
		// A snippet needs a direct-answer block; question-styled headings
		// are the cheapest proxy the audit gives us.
		for _, h := range target.Headings {
			if strings.HasSuffix(strings.TrimSpace(h.Text), "?") {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// toSetSlice dedupes a slice in place of counting one competitor twice for
// a repeated tag.
func toSetSlice(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
