package stage

import (
	"regexp"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
)

// regexPatterns is a small secondary pass run alongside the LLM's PII
// detection; regex findings are merged with the LLM's JSON list by
// (type, text) so neither source's misses drop coverage on their own.
var regexPatterns = []struct {
	typ string
	re  *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"phone", regexp.MustCompile(`\b\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)},
}

// allowList contains known-benign matches that should never be reported
// as findings (common placeholder SSNs).
var allowList = map[string]bool{
	"000-00-0000": true,
	"123-45-6789": true,
}

// RegexFindings runs the secondary pattern pass over text.
func RegexFindings(text string) []domain.PIIFinding {
	var out []domain.PIIFinding
	for _, p := range regexPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			if allowList[match] {
				continue
			}
			out = append(out, domain.PIIFinding{Type: p.typ, Text: match, Start: loc[0]})
		}
	}
	return out
}
