package nl2sql

import (
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	fenceRe    = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	sqlStartRe = regexp.MustCompile(`(?i)\b(SELECT|WITH)\b`)
)

// ExtractSQL pulls the first well-formed SQL statement out of a model reply,
// tolerating surrounding prose and markdown code fences. The second return
// value is the remaining natural-language text. An empty SQL result means
// the model answered conversationally.
func ExtractSQL(content string) (string, string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ""
	}

	if match := fenceRe.FindStringSubmatchIndex(trimmed); match != nil {
		candidate := strings.TrimSpace(trimmed[match[2]:match[3]])
		if isParseable(candidate) {
			prose := strings.TrimSpace(trimmed[:match[0]] + " " + trimmed[match[1]:])
			return candidate, prose
		}
	}

	loc := sqlStartRe.FindStringIndex(trimmed)
	if loc == nil {
		return "", trimmed
	}
	candidate := trimmed[loc[0]:]
	tail := ""
	if i := strings.Index(candidate, ";"); i >= 0 {
		tail = strings.TrimSpace(candidate[i+1:])
		candidate = candidate[:i]
	}
	candidate = strings.TrimSpace(candidate)
	if !isParseable(candidate) {
		return "", trimmed
	}
	prose := strings.TrimSpace(strings.TrimSpace(trimmed[:loc[0]]) + " " + tail)
	return candidate, prose
}

func isParseable(candidate string) bool {
	if candidate == "" {
		return false
	}
	_, err := pg_query.Parse(candidate)
	return err == nil
}
