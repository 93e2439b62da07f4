package engine

import "strings"

func joinSegments(parts []string) string {
	var b strings.Builder
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(trimmed)
	}
	return b.String()
}

func normaliseLanguage(candidate, fallback string) string {
	if trimmed := strings.ToLower(strings.TrimSpace(candidate)); trimmed != "" {
		return trimmed
	}
	if trimmed := strings.ToLower(strings.TrimSpace(fallback)); trimmed != "" {
		return trimmed
	}
	return "auto"
}
