package resolver

import (
	"sort"
	"sync"

	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/logging"
	"github.com/seo-optimizer/signal-engine/signal"
)

// Store is the canonical entity store for one analysis run. Signals may be
// applied from concurrent coordinator workers; reads are expected once the
// fan-out has finished, so accessors return snapshots sorted by identity
// key for deterministic downstream processing.
type Store struct {
	mu       sync.Mutex
	keywords map[string]*KeywordEntity
	pages    map[string]*PageEntity
	seen     map[string]bool
	log      logging.Logger
}

// NewStore creates an empty store scoped to a single run.
func NewStore(log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNop()
	}
	return &Store{
		keywords: make(map[string]*KeywordEntity),
		pages:    make(map[string]*PageEntity),
		seen:     make(map[string]bool),
		log:      log,
	}
}

// ApplyBatch applies every signal in a normalizer batch. A failure on one
// signal does not stop the rest; the first error is returned after all
// signals were attempted.
func (s *Store) ApplyBatch(b *signal.Batch) error {
	var first error
	for i := range b.Keywords {
		if err := s.ApplyKeyword(b.Keywords[i]); err != nil && first == nil {
			first = err
		}
	}
	for i := range b.Serps {
		if err := s.ApplySerp(b.Serps[i]); err != nil && first == nil {
			first = err
		}
	}
	for i := range b.Audits {
		if err := s.ApplyAudit(b.Audits[i]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ApplyKeyword merges one keyword signal into its entity, creating the
// entity when the identity is new. Replaying an identical signal leaves
// the entity unchanged.
func (s *Store) ApplyKeyword(sig signal.KeywordSignal) error {
	key := signal.KeywordKey(sig.Keyword, sig.Locale)
	if signal.NormalizeKeyword(sig.Keyword) == "" {
		return errs.Invalid("keyword signal with empty keyword text")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.SignalID != "" && s.seen[sig.SignalID] {
		return nil
	}

	e, ok := s.keywords[key]
	if !ok {
		e = &KeywordEntity{
			Key:     key,
			Keyword: signal.NormalizeKeyword(sig.Keyword),
			Locale:  signal.NormalizeLocale(sig.Locale),
		}
		s.keywords[key] = e
	}

	e.Volume, e.volumeAt = mergeValue(e.Volume, e.volumeAt, sig.Volume, sig.CollectedAt)
	e.Competition, e.competitionAt = mergeValue(e.Competition, e.competitionAt, sig.Competition, sig.CollectedAt)
	e.CPC, e.cpcAt = mergeValue(e.CPC, e.cpcAt, sig.CPC, sig.CollectedAt)

	// Intent follows the same rule with unknown standing in for null.
	if sig.Intent != "" && sig.Intent != signal.IntentUnknown {
		if e.Intent == "" || e.Intent == signal.IntentUnknown || sig.CollectedAt.After(e.intentAt) {
			e.Intent = sig.Intent
			e.intentAt = sig.CollectedAt
		}
	} else if e.Intent == "" {
		e.Intent = signal.IntentUnknown
	}

	// Provider-flagged synonyms never merge identities; they accumulate as
	// related terms and feed scoring instead.
	e.RelatedTerms = unionTerms(e.RelatedTerms, sig.RelatedTerms)

	e.History = append(e.History, sig)
	if sig.SignalID != "" {
		s.seen[sig.SignalID] = true
	}
	return nil
}

// ApplySerp attaches a SERP snapshot to its keyword entity. Snapshots stay
// distinct; only LatestSnapshot feeds live scoring.
func (s *Store) ApplySerp(sig signal.SerpSignal) error {
	if signal.NormalizeKeyword(sig.Keyword) == "" {
		return errs.Invalid("serp signal with empty keyword text")
	}
	key := signal.KeywordKey(sig.Keyword, sig.Locale)

	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.SignalID != "" && s.seen[sig.SignalID] {
		return nil
	}

	e, ok := s.keywords[key]
	if !ok {
		e = &KeywordEntity{
			Key:     key,
			Keyword: signal.NormalizeKeyword(sig.Keyword),
			Locale:  signal.NormalizeLocale(sig.Locale),
			Intent:  signal.IntentUnknown,
		}
		s.keywords[key] = e
	}

	e.Snapshots = append(e.Snapshots, sig)
	e.RelatedTerms = unionTerms(e.RelatedTerms, sig.RelatedSearches)
	if sig.SignalID != "" {
		s.seen[sig.SignalID] = true
	}
	return nil
}

// ApplyAudit merges one page audit signal into its page entity.
func (s *Store) ApplyAudit(sig signal.PageAuditSignal) error {
	key := signal.CanonicalURL(sig.URL)
	if key == "" {
		return errs.Invalid("page audit signal with empty URL")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.SignalID != "" && s.seen[sig.SignalID] {
		return nil
	}

	e, ok := s.pages[key]
	if !ok {
		e = &PageEntity{Key: key, URL: key}
		s.pages[key] = e
	}

	e.WordCount, e.wordCountAt = mergeValue(e.WordCount, e.wordCountAt, sig.WordCount, sig.CollectedAt)
	e.Desktop, e.desktopAt = mergeValue(e.Desktop, e.desktopAt, sig.Desktop, sig.CollectedAt)
	e.Mobile, e.mobileAt = mergeValue(e.Mobile, e.mobileAt, sig.Mobile, sig.CollectedAt)
	e.StructuredDataValid, e.validAt = mergeValue(e.StructuredDataValid, e.validAt, sig.StructuredDataValid, sig.CollectedAt)
	e.HasFAQSection, e.faqAt = mergeValue(e.HasFAQSection, e.faqAt, sig.HasFAQSection, sig.CollectedAt)
	e.MobileFriendly, e.mobileOkAt = mergeValue(e.MobileFriendly, e.mobileOkAt, sig.MobileFriendly, sig.CollectedAt)

	// The heading outline is ordered, so it replaces wholesale rather than
	// unioning; an absent outline never erases a known one.
	if len(sig.Headings) > 0 && (len(e.Headings) == 0 || sig.CollectedAt.After(e.headingsAt)) {
		e.Headings = sig.Headings
		e.headingsAt = sig.CollectedAt
	}

	e.SchemaTypes = unionTerms(e.SchemaTypes, sig.SchemaTypes)
	e.Topics = unionTerms(e.Topics, sig.Topics)

	e.History = append(e.History, sig)
	if sig.SignalID != "" {
		s.seen[sig.SignalID] = true
	}
	return nil
}

// MarkKeywordDegraded records that a provider failed for this keyword so
// downstream consumers surface partial confidence instead of dropping it.
func (s *Store) MarkKeywordDegraded(keyword, locale, provider string) {
	key := signal.KeywordKey(keyword, locale)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.keywords[key]
	if !ok {
		e = &KeywordEntity{
			Key:     key,
			Keyword: signal.NormalizeKeyword(keyword),
			Locale:  signal.NormalizeLocale(locale),
			Intent:  signal.IntentUnknown,
		}
		s.keywords[key] = e
	}
	e.Degraded = true
	e.DegradedBy = unionTerms(e.DegradedBy, []string{provider})
}

// MarkPageDegraded is the page-entity analogue of MarkKeywordDegraded.
func (s *Store) MarkPageDegraded(url, provider string) {
	key := signal.CanonicalURL(url)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pages[key]
	if !ok {
		e = &PageEntity{Key: key, URL: key}
		s.pages[key] = e
	}
	e.Degraded = true
	e.DegradedBy = unionTerms(e.DegradedBy, []string{provider})
}

// Keyword looks up one keyword entity by text and locale.
func (s *Store) Keyword(text, locale string) (*KeywordEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.keywords[signal.KeywordKey(text, locale)]
	return e, ok
}

// Page looks up one page entity by URL.
func (s *Store) Page(url string) (*PageEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pages[signal.CanonicalURL(url)]
	return e, ok
}

// Keywords returns every keyword entity sorted by identity key.
func (s *Store) Keywords() []*KeywordEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*KeywordEntity, 0, len(s.keywords))
	for _, e := range s.keywords {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Pages returns every page entity sorted by identity key.
func (s *Store) Pages() []*PageEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PageEntity, 0, len(s.pages))
	for _, e := range s.pages {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
