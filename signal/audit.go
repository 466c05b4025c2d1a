package signal

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/seo-optimizer/signal-engine/errs"
)

// Schema types the gap engine recognises as structural signals. Keeping the
// list here means the audit normalizer and the gap synthesizer agree on
// spelling.
var knownSchemaTypes = map[string]bool{
	"Article": true, "NewsArticle": true, "BlogPosting": true,
	"Product": true, "Recipe": true, "Event": true, "Organization": true,
	"LocalBusiness": true, "Person": true, "WebSite": true, "VideoObject": true,
	"FAQPage": true, "HowTo": true, "BreadcrumbList": true,
}

// auditPayload is the structured page-audit provider shape, used when the
// provider pre-digests the page instead of shipping raw HTML.
type auditPayload struct {
	URL                 string                 `mapstructure:"url"`
	WordCount           interface{}            `mapstructure:"word_count"`
	Headings            []auditHeadingRow      `mapstructure:"headings"`
	SchemaTypes         []string               `mapstructure:"schema_types"`
	CoreWebVitals       map[string]vitalsRow   `mapstructure:"core_web_vitals"`
	StructuredDataValid *bool                  `mapstructure:"structured_data_valid"`
	Topics              []string               `mapstructure:"topics"`
	HasFAQSection       *bool                  `mapstructure:"has_faq_section"`
	MobileFriendly      *bool                  `mapstructure:"mobile_friendly"`
	MetaTags            map[string]interface{} `mapstructure:"meta_tags"`
}

type auditHeadingRow struct {
	Level interface{} `mapstructure:"level"`
	Text  string      `mapstructure:"text"`
}

type vitalsRow struct {
	LCP              interface{} `mapstructure:"largest_contentful_paint"`
	FCP              interface{} `mapstructure:"first_contentful_paint"`
	CLS              interface{} `mapstructure:"cumulative_layout_shift"`
	TTI              interface{} `mapstructure:"time_to_interactive"`
	PerformanceScore interface{} `mapstructure:"performance_score"`
}

func (n *Normalizer) normalizeAudit(raw RawResponse) (*Batch, error) {
	if strings.TrimSpace(raw.URL) == "" {
		return nil, errs.Invalid("page audit response without a URL context")
	}

	if raw.HTML != "" {
		sig, err := n.auditFromHTML(raw)
		if err != nil {
			return nil, err
		}
		return &Batch{Audits: []PageAuditSignal{*sig}}, nil
	}

	var payload auditPayload
	if err := decode(raw.Payload, &payload); err != nil {
		return nil, errs.Malformed(raw.Provider, err)
	}
	if payload.WordCount == nil && payload.Headings == nil && payload.CoreWebVitals == nil {
		return nil, errs.Malformedf(raw.Provider, "audit payload carries no recognizable fields")
	}

	sig := PageAuditSignal{
		SignalID:            uuid.NewString(),
		Provider:            raw.Provider,
		URL:                 CanonicalURL(raw.URL),
		SchemaTypes:         dedupeSchemaTypes(payload.SchemaTypes),
		StructuredDataValid: payload.StructuredDataValid,
		Topics:              normalizeTerms(payload.Topics),
		HasFAQSection:       payload.HasFAQSection,
		MobileFriendly:      payload.MobileFriendly,
		CollectedAt:         raw.ReceivedAt,
	}
	if wc := intValue(payload.WordCount); wc != nil {
		v := int(*wc)
		sig.WordCount = &v
	}
	for _, h := range payload.Headings {
		level := int64(2)
		if l := intValue(h.Level); l != nil {
			level = *l
		}
		if h.Text == "" || level < 1 || level > 6 {
			continue
		}
		sig.Headings = append(sig.Headings, Heading{Level: int(level), Text: strings.TrimSpace(h.Text)})
	}
	if d, ok := payload.CoreWebVitals["desktop"]; ok {
		sig.Desktop = vitalsFromRow(d)
	}
	if m, ok := payload.CoreWebVitals["mobile"]; ok {
		sig.Mobile = vitalsFromRow(m)
	}
	if sig.HasFAQSection == nil {
		faq := detectFAQ(sig.Headings, sig.SchemaTypes)
		sig.HasFAQSection = &faq
	}
	if len(sig.Topics) == 0 {
		sig.Topics = topicsFromHeadings(sig.Headings, payload.MetaTags)
	}
	return &Batch{Audits: []PageAuditSignal{sig}}, nil
}

// vitalsFromRow coerces one device's Core-Web-Vitals figures, each field
// independently nullable.
func vitalsFromRow(row vitalsRow) *WebVitals {
	return &WebVitals{
		LCP:              floatValue(row.LCP),
		FCP:              floatValue(row.FCP),
		CLS:              floatValue(row.CLS),
		TTI:              floatValue(row.TTI),
		PerformanceScore: floatValue(row.PerformanceScore),
	}
}

// auditFromHTML extracts audit facts directly from a raw HTML document.
func (n *Normalizer) auditFromHTML(raw RawResponse) (*PageAuditSignal, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw.HTML))
	if err != nil {
		return nil, errs.Malformed(raw.Provider, err)
	}

	sig := &PageAuditSignal{
		SignalID:    uuid.NewString(),
		Provider:    raw.Provider,
		URL:         CanonicalURL(raw.URL),
		CollectedAt: raw.ReceivedAt,
	}

	// Schema types come from JSON-LD blocks, including @graph containers.
	structuredValid := true
	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		types, ok := schemaTypesFromJSONLD(s.Text())
		if !ok {
			structuredValid = false
			return
		}
		sig.SchemaTypes = append(sig.SchemaTypes, types...)
	})
	sig.SchemaTypes = dedupeSchemaTypes(sig.SchemaTypes)
	sig.StructuredDataValid = &structuredValid

	// Mobile friendliness mirrors the viewport check the analyzer used.
	mobileFriendly := false
	doc.Find("meta[name='viewport']").Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok && strings.Contains(strings.ToLower(content), "width=device-width") {
			mobileFriendly = true
		}
	})
	sig.MobileFriendly = &mobileFriendly

	metaKeywords, _ := doc.Find("meta[name='keywords']").Attr("content")

	// Headings in document order.
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		level, convErr := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		if convErr != nil {
			return
		}
		sig.Headings = append(sig.Headings, Heading{Level: level, Text: text})
	})

	// Word count over visible text, scripts and styles stripped.
	doc.Find("script, style, noscript").Remove()
	words := len(strings.Fields(doc.Find("body").Text()))
	sig.WordCount = &words

	faq := detectFAQ(sig.Headings, sig.SchemaTypes)
	sig.HasFAQSection = &faq

	meta := map[string]interface{}{}
	if metaKeywords != "" {
		meta["keywords"] = metaKeywords
	}
	sig.Topics = topicsFromHeadings(sig.Headings, meta)

	return sig, nil
}

// schemaTypesFromJSONLD pulls every @type out of one JSON-LD block. The
// second return is false when the block is not valid JSON.
func schemaTypesFromJSONLD(text string) ([]string, bool) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, false
	}
	return collectTypes(parsed), true
}

func collectTypes(node interface{}) []string {
	var types []string
	switch t := node.(type) {
	case map[string]interface{}:
		if typ, ok := t["@type"].(string); ok {
			types = append(types, typ)
		}
		if graph, ok := t["@graph"].([]interface{}); ok {
			for _, item := range graph {
				types = append(types, collectTypes(item)...)
			}
		}
	case []interface{}:
		for _, item := range t {
			types = append(types, collectTypes(item)...)
		}
	}
	return types
}

func dedupeSchemaTypes(types []string) []string {
	var out []string
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// detectFAQ looks for an FAQ section the way the original page analysis
// did: FAQ-named headings, a cluster of question headings, or FAQPage schema.
func detectFAQ(headings []Heading, schemaTypes []string) bool {
	for _, t := range schemaTypes {
		if t == "FAQPage" {
			return true
		}
	}
	questionHeadings := 0
	for _, h := range headings {
		lower := strings.ToLower(h.Text)
		if strings.Contains(lower, "faq") || strings.Contains(lower, "frequently asked") {
			return true
		}
		if strings.HasSuffix(strings.TrimSpace(h.Text), "?") {
			questionHeadings++
		}
	}
	return questionHeadings >= 2
}

// topicsFromHeadings derives topic tags from h2/h3 texts plus any meta
// keywords, as a fallback when the provider supplies no topic set.
func topicsFromHeadings(headings []Heading, metaTags map[string]interface{}) []string {
	var terms []string
	for _, h := range headings {
		if h.Level == 2 || h.Level == 3 {
			terms = append(terms, h.Text)
		}
	}
	if metaTags != nil {
		if kw, ok := metaTags["keywords"].(string); ok {
			terms = append(terms, strings.Split(kw, ",")...)
		}
	}
	return normalizeTerms(terms)
}

// IsKnownSchemaType reports whether t is one of the schema types the gap
// engine treats as a structural signal.
func IsKnownSchemaType(t string) bool {
	return knownSchemaTypes[t]
}
