// Package signal defines the canonical signal records produced by the
// normalizer and consumed by the resolver, plus the normalizer itself.
package signal

import "time"

// Intent is the inferred purpose behind a search query.
type Intent string

const (
	IntentInformational Intent = "informational"
	IntentCommercial    Intent = "commercial"
	IntentTransactional Intent = "transactional"
	IntentNavigational  Intent = "navigational"
	IntentUnknown       Intent = "unknown"
)

// CallType tags which collaborator call produced a raw response.
type CallType string

const (
	CallKeywordData     CallType = "keyword_data"
	CallRelatedKeywords CallType = "related_keywords"
	CallSerp            CallType = "serp"
	CallPageAudit       CallType = "page_audit"
)

// KeywordSignal is one provider's view of one keyword. Optional fields stay
// nil when the provider omitted them; a nil competition is never treated as 0.
type KeywordSignal struct {
	SignalID     string    `json:"signalId"`
	Provider     string    `json:"provider"`
	Keyword      string    `json:"keyword"`
	Locale       string    `json:"locale"`
	Volume       *int64    `json:"volume"`
	Competition  *float64  `json:"competition"`
	CPC          *float64  `json:"cpc"`
	Intent       Intent    `json:"intent"`
	RelatedTerms []string  `json:"relatedTerms,omitempty"`
	CollectedAt  time.Time `json:"collectedAt"`
}

// SerpFeature is a feature block present on a results page.
type SerpFeature string

const (
	FeatureFeaturedSnippet SerpFeature = "featured_snippet"
	FeaturePeopleAlsoAsk   SerpFeature = "people_also_ask"
	FeatureImagePack       SerpFeature = "image_pack"
	FeatureVideoPack       SerpFeature = "video_pack"
	FeatureKnowledgePanel  SerpFeature = "knowledge_panel"
	FeatureShoppingResults SerpFeature = "shopping_results"
	FeatureLocalPack       SerpFeature = "local_pack"
)

// SerpEntry is one organic result on a snapshot.
type SerpEntry struct {
	Position      int      `json:"position"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Snippet       string   `json:"snippet"`
	SnippetType   string   `json:"snippetType,omitempty"`
	ContentLength *int     `json:"contentLength,omitempty"`
	TopicTags     []string `json:"topicTags,omitempty"`
}

// SerpSignal is the ranked result set for one keyword at one point in time.
// Snapshots for the same keyword are kept distinct, never merged.
type SerpSignal struct {
	SignalID        string        `json:"signalId"`
	Provider        string        `json:"provider"`
	Keyword         string        `json:"keyword"`
	Locale          string        `json:"locale"`
	Entries         []SerpEntry   `json:"entries"`
	Features        []SerpFeature `json:"features"`
	PAAQuestions    []string      `json:"paaQuestions,omitempty"`
	RelatedSearches []string      `json:"relatedSearches,omitempty"`
	SnapshotAt      time.Time     `json:"snapshotAt"`
}

// HasFeature reports whether f is present on the snapshot.
func (s *SerpSignal) HasFeature(f SerpFeature) bool {
	for _, have := range s.Features {
		if have == f {
			return true
		}
	}
	return false
}

// Heading is one entry of a page's heading outline, in document order.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// WebVitals holds Core-Web-Vitals style figures for one device class.
// Every figure is independently nullable.
type WebVitals struct {
	LCP              *float64 `json:"largestContentfulPaint,omitempty"`
	FCP              *float64 `json:"firstContentfulPaint,omitempty"`
	CLS              *float64 `json:"cumulativeLayoutShift,omitempty"`
	TTI              *float64 `json:"timeToInteractive,omitempty"`
	PerformanceScore *float64 `json:"performanceScore,omitempty"`
}

// PageAuditSignal holds technical and content facts about one URL.
type PageAuditSignal struct {
	SignalID            string     `json:"signalId"`
	Provider            string     `json:"provider"`
	URL                 string     `json:"url"`
	WordCount           *int       `json:"wordCount"`
	Headings            []Heading  `json:"headings"`
	SchemaTypes         []string   `json:"schemaTypes"`
	Desktop             *WebVitals `json:"desktop,omitempty"`
	Mobile              *WebVitals `json:"mobile,omitempty"`
	StructuredDataValid *bool      `json:"structuredDataValid,omitempty"`
	Topics              []string   `json:"topics"`
	HasFAQSection       *bool      `json:"hasFaqSection,omitempty"`
	MobileFriendly      *bool      `json:"mobileFriendly,omitempty"`
	CollectedAt         time.Time  `json:"collectedAt"`
}

// RawResponse is one raw provider response tagged with the request context
// it was collected for.
type RawResponse struct {
	Provider   string                 `json:"provider"`
	Call       CallType               `json:"call"`
	Keyword    string                 `json:"keyword,omitempty"`
	Locale     string                 `json:"locale,omitempty"`
	URL        string                 `json:"url,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	HTML       string                 `json:"html,omitempty"`
	ReceivedAt time.Time              `json:"receivedAt"`
}

// Batch is the set of canonical signals produced from one raw response.
type Batch struct {
	Keywords []KeywordSignal
	Serps    []SerpSignal
	Audits   []PageAuditSignal
}

// Empty reports whether the batch carries no signals at all.
func (b *Batch) Empty() bool {
	return len(b.Keywords) == 0 && len(b.Serps) == 0 && len(b.Audits) == 0
}
