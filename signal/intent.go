package signal

import "strings"

// Phrase markers used to classify intent when the provider supplies none.
// Order matters: transactional markers are the strongest signal, then
// commercial, then informational.
var (
	transactionalMarkers = []string{"buy", "price", "cost", "cheap", "discount", "coupon", "order", "pricing"}
	commercialMarkers    = []string{"best", "top", "review", "vs", "versus", "compare", "comparison", "alternatives"}
	informationalMarkers = []string{"how to", "what is", "what are", "why", "when", "where", "who", "guide", "tutorial", "examples", "tips", "definition", "meaning"}
	navigationalMarkers  = []string{"login", "log in", "sign in", "signin", "www.", ".com", ".org", "website", "official site"}
)

// ClassifyIntent infers intent from the keyword text alone. A provider-
// supplied intent always wins over this heuristic; the normalizer only
// calls it when the provider omitted one.
func ClassifyIntent(keyword string) Intent {
	kw := " " + NormalizeKeyword(keyword) + " "

	for _, m := range transactionalMarkers {
		if strings.Contains(kw, " "+m+" ") {
			return IntentTransactional
		}
	}
	for _, m := range navigationalMarkers {
		if strings.Contains(strings.TrimSpace(kw), m) {
			return IntentNavigational
		}
	}
	for _, m := range commercialMarkers {
		if strings.Contains(kw, " "+m+" ") {
			return IntentCommercial
		}
	}
	for _, m := range informationalMarkers {
		if strings.Contains(kw, " "+m+" ") {
			return IntentInformational
		}
	}
	return IntentUnknown
}

// ParseIntent maps a provider-supplied intent string onto the enum,
// falling back to unknown for anything unrecognized.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentInformational, IntentCommercial, IntentTransactional, IntentNavigational:
		return Intent(strings.ToLower(strings.TrimSpace(s)))
	default:
		return IntentUnknown
	}
}
