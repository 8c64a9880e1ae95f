package query

import (
	"regexp"
	"strings"
)

// PreprocessDecision is the Smart Query Preprocessor's structured output
// for Auto mode: which field/search-type to use and why, so the caller
// (and the response's Reason) can explain the routing decision.
type PreprocessDecision struct {
	Field      string // "content", "content_symbols", "type_names", "filename", "path"
	SearchType string // "term", "phrase", "wildcard", "fuzzy", "regex", "symbol"
	Reason     string
}

var (
	wildcardChars   = regexp.MustCompile(`[*?]`)
	regexOperators  = regexp.MustCompile(`[\[\]\(\)\|\\\^\$\+]`)
	camelCasePattern = regexp.MustCompile(`[a-z][A-Z]`)
)

// SmartQueryPreprocessor inspects raw query text and picks a field and
// search type the way Auto mode routes in spec §4.2: presence of
// operators, camelCase, quoted phrases, length, and punctuation all factor
// into the decision, each returned with a human-readable reason.
func SmartQueryPreprocessor(text string) PreprocessDecision {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) && len(trimmed) > 1 {
		return PreprocessDecision{
			Field: "content", SearchType: "phrase",
			Reason: "quoted text detected, using exact phrase match",
		}
	}

	if wildcardChars.MatchString(trimmed) {
		return PreprocessDecision{
			Field: "content", SearchType: "wildcard",
			Reason: "wildcard characters (* or ?) present, using wildcard search",
		}
	}

	if regexOperators.MatchString(trimmed) {
		return PreprocessDecision{
			Field: "content", SearchType: "regex",
			Reason: "regex metacharacters present, using regex search",
		}
	}

	if !strings.Contains(trimmed, " ") && camelCasePattern.MatchString(trimmed) {
		return PreprocessDecision{
			Field: "content_symbols", SearchType: "symbol",
			Reason: "single camelCase token, treating as a symbol/identifier lookup",
		}
	}

	if !strings.Contains(trimmed, " ") && len(trimmed) <= 40 && trimmed != "" {
		return PreprocessDecision{
			Field: "content_symbols", SearchType: "symbol",
			Reason: "short single token, trying symbol field before full-text",
		}
	}

	if len(trimmed) > 60 {
		return PreprocessDecision{
			Field: "content", SearchType: "fuzzy",
			Reason: "long free-text query, using fuzzy term matching for recall",
		}
	}

	return PreprocessDecision{
		Field: "content", SearchType: "term",
		Reason: "default term query on content",
	}
}
