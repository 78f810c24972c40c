package ingest

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	groupPrefix      = regexp.MustCompile(`(?i)^group\s+`)
	nonAlphanumeric  = regexp.MustCompile(`[^A-Za-z0-9]`)
	businessSuffixes = regexp.MustCompile(`\b(inc|llc|corp|consulting|management|service|company)\b\.?`)
	payerPunctuation = regexp.MustCompile(`[,.\-&]`)
)

// CanonicalizeGroupCode turns "group a", " b-2 " or "A" into "A", "B2", "A".
func CanonicalizeGroupCode(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = groupPrefix.ReplaceAllString(s, "")
	return strings.ToUpper(nonAlphanumeric.ReplaceAllString(s, ""))
}

// ParseAliases accepts a JSON array string, a comma separated string, []string or []any.
func ParseAliases(raw any) []string {
	var items []string
	switch v := raw.(type) {
	case nil:
		return []string{}
	case []string:
		items = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case []byte:
		return ParseAliases(string(v))
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []string
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				items = decoded
				break
			}
		}
		items = strings.Split(trimmed, ",")
	default:
		return []string{}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NormalizePayerName reduces a bank payer name to its first meaningful word:
// lower-cased, business suffixes and punctuation removed, at least three letters when possible.
func NormalizePayerName(name string) string {
	if name == "" {
		return ""
	}
	s := strings.ToLower(name)
	s = businessSuffixes.ReplaceAllString(s, "")
	s = payerPunctuation.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	for _, word := range strings.Fields(s) {
		if len(word) >= 3 {
			return word
		}
	}
	return s
}

// NamesMatch reports whether a payer name and a student name (or alias) refer to the same person.
func NamesMatch(payer, candidate string) bool {
	a := NormalizePayerName(payer)
	b := NormalizePayerName(candidate)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}
