package signal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/logging"
)

// Normalizer converts raw provider responses into canonical signal records.
// It is a pure transform: no I/O, no retained state beyond the logger.
type Normalizer struct {
	log logging.Logger
}

// NewNormalizer creates a Normalizer. A nil logger falls back to a nop one.
func NewNormalizer(log logging.Logger) *Normalizer {
	if log == nil {
		log = logging.NewNop()
	}
	return &Normalizer{log: log}
}

// Normalize parses one raw response into zero or more canonical signals.
// Missing optional fields become explicit nils, never defaults. It fails
// with errs.ErrMalformedResponse only when the payload fits no expected
// shape for its call type.
func (n *Normalizer) Normalize(raw RawResponse) (*Batch, error) {
	if raw.ReceivedAt.IsZero() {
		raw.ReceivedAt = time.Now()
	}

	switch raw.Call {
	case CallKeywordData, CallRelatedKeywords:
		return n.normalizeKeywordData(raw)
	case CallSerp:
		return n.normalizeSerp(raw)
	case CallPageAudit:
		return n.normalizeAudit(raw)
	default:
		return nil, errs.Malformedf(raw.Provider, "unknown call type %q", raw.Call)
	}
}

// keywordPayload is the keyword-data provider shape. Volume, CPC and
// competition arrive in several encodings across providers, so they decode
// into interface{} and are coerced below.
type keywordPayload struct {
	Data     []keywordRow `mapstructure:"data"`
	NotFound []string     `mapstructure:"not_found"`
}

type keywordRow struct {
	Keyword     string      `mapstructure:"keyword"`
	Volume      interface{} `mapstructure:"vol"`
	CPC         interface{} `mapstructure:"cpc"`
	Competition interface{} `mapstructure:"competition"`
	Intent      string      `mapstructure:"intent"`
	Related     []string    `mapstructure:"related"`
}

func (n *Normalizer) normalizeKeywordData(raw RawResponse) (*Batch, error) {
	var payload keywordPayload
	if err := decode(raw.Payload, &payload); err != nil {
		return nil, errs.Malformed(raw.Provider, err)
	}
	if payload.Data == nil && payload.NotFound == nil {
		return nil, errs.Malformedf(raw.Provider, "keyword payload has neither data nor not_found")
	}

	batch := &Batch{}
	for _, row := range payload.Data {
		if strings.TrimSpace(row.Keyword) == "" {
			n.log.Warn("dropping keyword row without keyword text", logging.String("provider", raw.Provider))
			continue
		}
		intent := ParseIntent(row.Intent)
		if intent == IntentUnknown {
			intent = ClassifyIntent(row.Keyword)
		}
		batch.Keywords = append(batch.Keywords, KeywordSignal{
			SignalID:     uuid.NewString(),
			Provider:     raw.Provider,
			Keyword:      NormalizeKeyword(row.Keyword),
			Locale:       NormalizeLocale(raw.Locale),
			Volume:       intValue(row.Volume),
			Competition:  competitionValue(row.Competition),
			CPC:          cpcValue(row.CPC),
			Intent:       intent,
			RelatedTerms: normalizeTerms(row.Related),
			CollectedAt:  raw.ReceivedAt,
		})
	}

	// Keywords the provider could not resolve still produce a signal: an
	// all-nil record registers the entity so its confidence is reported as
	// partial instead of the keyword silently disappearing.
	for _, kw := range payload.NotFound {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		batch.Keywords = append(batch.Keywords, KeywordSignal{
			SignalID:    uuid.NewString(),
			Provider:    raw.Provider,
			Keyword:     NormalizeKeyword(kw),
			Locale:      NormalizeLocale(raw.Locale),
			Intent:      ClassifyIntent(kw),
			CollectedAt: raw.ReceivedAt,
		})
	}
	return batch, nil
}

// serpPayload is the SERP provider shape (SerpAPI-style keys).
type serpPayload struct {
	SnapshotAt      string                   `mapstructure:"snapshot_at"`
	OrganicResults  []serpResultRow          `mapstructure:"organic_results"`
	AnswerBox       map[string]interface{}   `mapstructure:"answer_box"`
	PeopleAlsoAsk   []map[string]interface{} `mapstructure:"people_also_ask"`
	ImagesResults   []interface{}            `mapstructure:"images_results"`
	Videos          []interface{}            `mapstructure:"videos"`
	KnowledgeGraph  map[string]interface{}   `mapstructure:"knowledge_graph"`
	ShoppingResults []interface{}            `mapstructure:"shopping_results"`
	LocalResults    []interface{}            `mapstructure:"local_results"`
	RelatedSearches []map[string]interface{} `mapstructure:"related_searches"`
}

type serpResultRow struct {
	Position      interface{} `mapstructure:"position"`
	Link          string      `mapstructure:"link"`
	URL           string      `mapstructure:"url"`
	Title         string      `mapstructure:"title"`
	Snippet       string      `mapstructure:"snippet"`
	SnippetType   string      `mapstructure:"snippet_type"`
	ContentLength interface{} `mapstructure:"content_length"`
	TopicTags     []string    `mapstructure:"topic_tags"`
}

func (n *Normalizer) normalizeSerp(raw RawResponse) (*Batch, error) {
	if strings.TrimSpace(raw.Keyword) == "" {
		return nil, errs.Invalid("serp response without a keyword context")
	}
	var payload serpPayload
	if err := decode(raw.Payload, &payload); err != nil {
		return nil, errs.Malformed(raw.Provider, err)
	}
	if payload.OrganicResults == nil {
		return nil, errs.Malformedf(raw.Provider, "serp payload has no organic_results")
	}

	sig := SerpSignal{
		SignalID:   uuid.NewString(),
		Provider:   raw.Provider,
		Keyword:    NormalizeKeyword(raw.Keyword),
		Locale:     NormalizeLocale(raw.Locale),
		SnapshotAt: parseSnapshotTime(payload.SnapshotAt, raw.ReceivedAt),
	}

	for i, row := range payload.OrganicResults {
		link := row.Link
		if link == "" {
			link = row.URL
		}
		if link == "" {
			continue
		}
		pos := i + 1
		if p := intValue(row.Position); p != nil {
			pos = int(*p)
		}
		var contentLen *int
		if c := intValue(row.ContentLength); c != nil {
			v := int(*c)
			contentLen = &v
		}
		sig.Entries = append(sig.Entries, SerpEntry{
			Position:      pos,
			URL:           CanonicalURL(link),
			Title:         row.Title,
			Snippet:       row.Snippet,
			SnippetType:   row.SnippetType,
			ContentLength: contentLen,
			TopicTags:     normalizeTerms(row.TopicTags),
		})
	}

	if len(payload.AnswerBox) > 0 {
		sig.Features = append(sig.Features, FeatureFeaturedSnippet)
	}
	if len(payload.PeopleAlsoAsk) > 0 {
		sig.Features = append(sig.Features, FeaturePeopleAlsoAsk)
		for _, paa := range payload.PeopleAlsoAsk {
			if q, ok := paa["question"].(string); ok && q != "" {
				sig.PAAQuestions = append(sig.PAAQuestions, q)
			}
		}
	}
	if len(payload.ImagesResults) > 0 {
		sig.Features = append(sig.Features, FeatureImagePack)
	}
	if len(payload.Videos) > 0 {
		sig.Features = append(sig.Features, FeatureVideoPack)
	}
	if len(payload.KnowledgeGraph) > 0 {
		sig.Features = append(sig.Features, FeatureKnowledgePanel)
	}
	if len(payload.ShoppingResults) > 0 {
		sig.Features = append(sig.Features, FeatureShoppingResults)
	}
	if len(payload.LocalResults) > 0 {
		sig.Features = append(sig.Features, FeatureLocalPack)
	}
	for _, rs := range payload.RelatedSearches {
		if q, ok := rs["query"].(string); ok && q != "" {
			sig.RelatedSearches = append(sig.RelatedSearches, NormalizeKeyword(q))
		}
	}

	return &Batch{Serps: []SerpSignal{sig}}, nil
}

func decode(payload map[string]interface{}, out interface{}) error {
	if payload == nil {
		return fmt.Errorf("empty payload")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(payload)
}

// cpcValue coerces the CPC encodings seen in the wild: a bare number, a
// numeric string, or a nested {"currency": "$", "value": "0.09"} object.
func cpcValue(v interface{}) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return cpcValue(t["value"])
	default:
		return floatValue(v)
	}
}

// competitionValue coerces a 0-1 number or the Low/Medium/High labels some
// providers return instead.
func competitionValue(v interface{}) *float64 {
	if s, ok := v.(string); ok {
		var c float64
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "low":
			c = 0.2
		case "medium":
			c = 0.5
		case "high":
			c = 0.8
		default:
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return clampUnit(f)
			}
			return nil
		}
		return &c
	}
	if f := floatValue(v); f != nil {
		return clampUnit(*f)
	}
	return nil
}

func clampUnit(f float64) *float64 {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return &f
}

func floatValue(v interface{}) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func intValue(v interface{}) *int64 {
	f := floatValue(v)
	if f == nil {
		return nil
	}
	i := int64(*f)
	return &i
}

func normalizeTerms(terms []string) []string {
	var out []string
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		norm := NormalizeKeyword(term)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}

func parseSnapshotTime(s string, fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}
