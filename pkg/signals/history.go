package signals

import (
	"strings"
	"unicode"

	"github.com/capgate-project/capgate/pkg/config"
)

// recencyDecay controls how fast the history boost falls off per step back
// in the session.
const recencyDecay = 0.75

// HistoryExtractor boosts categories used recently in-session and detects
// query continuations by lexical similarity, pre-seeding the categories that
// followed similar past queries.
type HistoryExtractor struct {
	boostCap               float64
	continuationSimilarity float64
}

func NewHistoryExtractor(cfg config.SignalConfig) *HistoryExtractor {
	return &HistoryExtractor{
		boostCap:               cfg.HistoryBoostCap,
		continuationSimilarity: cfg.ContinuationSimilarity,
	}
}

func (e *HistoryExtractor) Name() string { return SignalHistory }

func (e *HistoryExtractor) Extract(req *Request) (ConfidenceMap, error) {
	out := make(ConfidenceMap)
	if len(req.History) == 0 {
		return out, nil
	}

	// Recency boost: the most recent entry contributes the cap, each step
	// back decays it. merge keeps the max per category.
	boost := e.boostCap
	for i := len(req.History) - 1; i >= 0; i-- {
		for _, cat := range req.History[i].Categories {
			out.merge(cat, boost)
		}
		boost *= recencyDecay
	}

	// Continuation: when the query lexically overlaps a recent one, pre-seed
	// the categories that followed it at reduced confidence.
	queryTokens := tokenize(req.Query)
	if len(queryTokens) == 0 {
		return out, nil
	}
	for i := len(req.History) - 1; i >= 0; i-- {
		entry := req.History[i]
		if jaccard(queryTokens, tokenize(entry.Query)) >= e.continuationSimilarity {
			for _, cat := range entry.Categories {
				out.merge(cat, e.boostCap*0.8)
			}
			break
		}
	}

	return out, nil
}

// tokenize lowercases and splits on non-alphanumerics.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens[strings.ToLower(b.String())] = true
			b.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// jaccard computes the token-set similarity of two queries.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
