// Package sanitize implements the Gateway's query sanitizer (spec.md
// §4.10, §8 property 8): strip <script> tags, reject queries over the
// length cap, and flag queries matching configured injection patterns.
// Grounded on cmd/agentflow/middleware.go's regexp-based validation idiom.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxQueryLength is the hard cap on query length (spec.md §4.10: "query
// length ≤ 1000").
const MaxQueryLength = 1000

var scriptTagPattern = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)

// DefaultInjectionPatterns catches the most common prompt-injection and
// SQL-injection phrasing seen at the gateway boundary. Operators can
// extend this list via Config.
var DefaultInjectionPatterns = []string{
	`(?i)ignore\s+(all\s+)?previous\s+instructions`,
	`(?i)disregard\s+(the\s+)?(system|above)\s+prompt`,
	`(?i)\bunion\s+select\b`,
	`(?i)\bdrop\s+table\b`,
	`(?i);\s*--`,
}

// Sanitizer strips unsafe markup and flags injection attempts.
type Sanitizer struct {
	maxLength int
	patterns  []*regexp.Regexp
}

// New compiles patterns (falling back to DefaultInjectionPatterns when
// nil) into a ready Sanitizer.
func New(patterns []string) (*Sanitizer, error) {
	if patterns == nil {
		patterns = DefaultInjectionPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Sanitizer{maxLength: MaxQueryLength, patterns: compiled}, nil
}

// Result is the outcome of sanitizing one query.
type Result struct {
	Clean          string
	InjectionFound bool
	MatchedPattern string
	TooLong        bool
}

// Check strips <script> tags and reports whether the (stripped) query is
// too long or matches an injection pattern. Callers treat InjectionFound
// or TooLong as a validation_error (spec.md §7).
func (s *Sanitizer) Check(query string) Result {
	clean := scriptTagPattern.ReplaceAllString(query, "")
	clean = strings.TrimSpace(clean)

	res := Result{Clean: clean}
	if len(clean) > s.maxLength {
		res.TooLong = true
	}
	for _, re := range s.patterns {
		if re.MatchString(clean) {
			res.InjectionFound = true
			res.MatchedPattern = re.String()
			break
		}
	}
	return res
}
