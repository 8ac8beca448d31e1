package signals

import (
	"fmt"
	"regexp"
	"unicode"

	"github.com/capgate-project/capgate/pkg/config"
)

// preppedCategory stores the compiled keyword patterns for one category,
// one pattern set per keyword class.
type preppedCategory struct {
	id         string
	direct     []*regexp.Regexp
	contextual []*regexp.Regexp
	action     []*regexp.Regexp
}

// KeywordExtractor matches per-category keyword tiers against the query.
// Each class carries a fixed base confidence (direct > contextual > action);
// multiple matches within a category take the max, never the sum.
type KeywordExtractor struct {
	categories []preppedCategory

	directConfidence     float64
	contextualConfidence float64
	actionConfidence     float64
}

// NewKeywordExtractor compiles the keyword patterns for every catalog
// category. Keywords are matched case-insensitively on word boundaries.
func NewKeywordExtractor(categories []config.Category, cfg config.SignalConfig) (*KeywordExtractor, error) {
	ke := &KeywordExtractor{
		directConfidence:     cfg.DirectConfidence,
		contextualConfidence: cfg.ContextualConfidence,
		actionConfidence:     cfg.ActionConfidence,
	}

	for _, cat := range categories {
		prepped := preppedCategory{id: cat.ID}

		var err error
		if prepped.direct, err = compileKeywords(cat.Keywords.Direct); err != nil {
			return nil, fmt.Errorf("category %q direct keywords: %w", cat.ID, err)
		}
		if prepped.contextual, err = compileKeywords(cat.Keywords.Contextual); err != nil {
			return nil, fmt.Errorf("category %q contextual keywords: %w", cat.ID, err)
		}
		if prepped.action, err = compileKeywords(cat.Keywords.Action); err != nil {
			return nil, fmt.Errorf("category %q action keywords: %w", cat.ID, err)
		}

		ke.categories = append(ke.categories, prepped)
	}

	return ke, nil
}

// compileKeywords builds case-insensitive word-boundary patterns. Keywords
// without word characters (pure punctuation like "&&") skip the boundary
// anchors, which would otherwise never match.
func compileKeywords(keywords []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(keywords))
	for _, keyword := range keywords {
		quoted := regexp.QuoteMeta(keyword)

		hasWordChar := false
		for _, r := range keyword {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				hasWordChar = true
				break
			}
		}

		pattern := "(?i)" + quoted
		if hasWordChar {
			pattern = "(?i)\\b" + quoted + "\\b"
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", keyword, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func (e *KeywordExtractor) Name() string { return SignalKeyword }

// Extract scans the query against every category's keyword classes.
func (e *KeywordExtractor) Extract(req *Request) (ConfidenceMap, error) {
	out := make(ConfidenceMap)
	if req.Query == "" {
		return out, nil
	}

	for _, cat := range e.categories {
		if matchesAny(req.Query, cat.direct) {
			out.merge(cat.id, e.directConfidence)
			continue // direct is the max possible for this category
		}
		if matchesAny(req.Query, cat.contextual) {
			out.merge(cat.id, e.contextualConfidence)
		}
		if matchesAny(req.Query, cat.action) {
			out.merge(cat.id, e.actionConfidence)
		}
	}
	return out, nil
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
