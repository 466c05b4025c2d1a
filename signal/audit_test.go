package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/signal-engine/errs"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head>
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="keywords" content="email marketing, automation">
<script type="application/ld+json">
{"@context": "https://schema.org", "@graph": [
  {"@type": "Organization", "name": "Acme"},
  {"@type": "FAQPage"}
]}
</script>
</head>
<body>
<h1>Email Marketing Guide</h1>
<h2>Getting Started</h2>
<h3>Choosing a Platform</h3>
<h2>Frequently Asked Questions</h2>
<script>var tracking = "should not count";</script>
<p>One two three four five.</p>
</body>
</html>`

func TestAuditFromHTML(t *testing.T) {
	n := NewNormalizer(nil)
	batch, err := n.Normalize(RawResponse{
		Provider:   "audit-x",
		Call:       CallPageAudit,
		URL:        "https://Example.com/guide/",
		HTML:       sampleHTML,
		ReceivedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, batch.Audits, 1)
	sig := batch.Audits[0]

	assert.Equal(t, "https://example.com/guide", sig.URL)
	assert.ElementsMatch(t, []string{"Organization", "FAQPage"}, sig.SchemaTypes)
	require.NotNil(t, sig.StructuredDataValid)
	assert.True(t, *sig.StructuredDataValid)
	require.NotNil(t, sig.MobileFriendly)
	assert.True(t, *sig.MobileFriendly)
	require.NotNil(t, sig.HasFAQSection)
	assert.True(t, *sig.HasFAQSection)

	require.Len(t, sig.Headings, 4)
	assert.Equal(t, Heading{Level: 1, Text: "Email Marketing Guide"}, sig.Headings[0])
	assert.Equal(t, 2, sig.Headings[3].Level)

	// Script text must not count toward the word total.
	require.NotNil(t, sig.WordCount)
	assert.Less(t, *sig.WordCount, 20)
	assert.Greater(t, *sig.WordCount, 0)

	assert.Contains(t, sig.Topics, "getting started")
	assert.Contains(t, sig.Topics, "email marketing")
}

func TestAuditFromHTMLInvalidJSONLD(t *testing.T) {
	n := NewNormalizer(nil)
	html := `<html><head><script type="application/ld+json">{not json</script></head>` +
		`<body><h1>Title</h1></body></html>`
	batch, err := n.Normalize(RawResponse{
		Provider: "audit-x",
		Call:     CallPageAudit,
		URL:      "https://example.com",
		HTML:     html,
	})
	require.NoError(t, err)
	sig := batch.Audits[0]
	require.NotNil(t, sig.StructuredDataValid)
	assert.False(t, *sig.StructuredDataValid)
}

func TestAuditStructuredPayload(t *testing.T) {
	n := NewNormalizer(nil)
	batch, err := n.Normalize(RawResponse{
		Provider: "audit-x",
		Call:     CallPageAudit,
		URL:      "https://example.com/page",
		Payload: map[string]interface{}{
			"word_count": float64(850),
			"headings": []interface{}{
				map[string]interface{}{"level": float64(1), "text": "Main"},
				map[string]interface{}{"level": float64(2), "text": "How does it work?"},
				map[string]interface{}{"level": float64(2), "text": "Is it free?"},
			},
			"schema_types": []interface{}{"Article"},
			"core_web_vitals": map[string]interface{}{
				"mobile": map[string]interface{}{
					"largest_contentful_paint": 2.4,
					"performance_score":        float64(88),
				},
			},
		},
		ReceivedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	sig := batch.Audits[0]

	require.NotNil(t, sig.WordCount)
	assert.Equal(t, 850, *sig.WordCount)
	require.NotNil(t, sig.Mobile)
	require.NotNil(t, sig.Mobile.LCP)
	assert.Equal(t, 2.4, *sig.Mobile.LCP)
	require.NotNil(t, sig.Mobile.PerformanceScore)
	assert.Equal(t, 88.0, *sig.Mobile.PerformanceScore)
	assert.Nil(t, sig.Mobile.CLS, "absent vitals stay nil, not zero")
	assert.Nil(t, sig.Desktop)

	// Two question headings count as an FAQ section.
	require.NotNil(t, sig.HasFAQSection)
	assert.True(t, *sig.HasFAQSection)
}

func TestAuditRejectsMissingURL(t *testing.T) {
	n := NewNormalizer(nil)
	_, err := n.Normalize(RawResponse{Provider: "audit-x", Call: CallPageAudit, HTML: "<html></html>"})
	assert.ErrorIs(t, err, errs.ErrInvalidEntity)
}

func TestAuditRejectsEmptyPayload(t *testing.T) {
	n := NewNormalizer(nil)
	_, err := n.Normalize(RawResponse{
		Provider: "audit-x",
		Call:     CallPageAudit,
		URL:      "https://example.com",
		Payload:  map[string]interface{}{"irrelevant": true},
	})
	assert.ErrorIs(t, err, errs.ErrMalformedResponse)
}
