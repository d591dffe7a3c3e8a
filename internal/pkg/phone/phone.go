package phone

import "strings"

// Normalize strips every character except digits and a leading '+', then
// ensures the result carries the leading '+'. Formatting variance (spaces,
// dashes, parentheses) disappears, so "+1 (555) 123-4567" and "15551234567"
// index the same bucket. Country-code correctness is not validated.
// Returns "" when the input contains no digits.
func Normalize(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "+" {
		return ""
	}
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	return "+" + cleaned
}
