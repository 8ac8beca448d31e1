package signals

import (
	"regexp"

	"github.com/capgate-project/capgate/pkg/config"
)

// preppedClue is one compiled context-clue pattern.
type preppedClue struct {
	kind       string
	re         *regexp.Regexp
	category   string
	confidence float64
}

// ContextClueExtractor maps file-extension, error-token and performance-token
// patterns in the query and environment output to fixed per-category
// confidences.
type ContextClueExtractor struct {
	clues []preppedClue
}

// NewContextClueExtractor compiles the configured clue table.
func NewContextClueExtractor(cfg config.SignalConfig) (*ContextClueExtractor, error) {
	ce := &ContextClueExtractor{}
	for _, clue := range cfg.ContextClues {
		pattern := "(?i)" + regexp.QuoteMeta(clue.Pattern)
		if clue.Kind != "extension" {
			// Tokens match on word boundaries; extensions can be mid-path.
			pattern = "(?i)\\b" + regexp.QuoteMeta(clue.Pattern) + "\\b"
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		ce.clues = append(ce.clues, preppedClue{
			kind:       clue.Kind,
			re:         re,
			category:   clue.Category,
			confidence: clue.Confidence,
		})
	}
	return ce, nil
}

func (e *ContextClueExtractor) Name() string { return SignalContext }

// Extract scans the query for configured clues. Error-token clues also
// consult the environment's recent output, so a query like "fix this" still
// surfaces debugging when a panic just scrolled by.
func (e *ContextClueExtractor) Extract(req *Request) (ConfidenceMap, error) {
	out := make(ConfidenceMap)

	for _, clue := range e.clues {
		if req.Query != "" && clue.re.MatchString(req.Query) {
			out.merge(clue.category, clue.confidence)
			continue
		}
		if clue.kind == "error" && req.Environment.RecentErrorOutput != "" &&
			clue.re.MatchString(req.Environment.RecentErrorOutput) {
			out.merge(clue.category, clue.confidence)
		}
	}
	return out, nil
}
