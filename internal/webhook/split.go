package webhook

import "strings"

const ellipsis = "…"

// splitText cuts text into chunks of at most limit runes, preferring to
// break after a newline in the second half of each chunk.
func splitText(text string, limit int) []string {
	runes := []rune(strings.TrimSpace(text))
	var parts []string

	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}

	if part := strings.TrimSpace(string(runes)); part != "" {
		parts = append(parts, part)
	}
	return parts
}

// capMessages keeps at most n parts and marks the last kept part as
// truncated when some were dropped.
func capMessages(parts []string, n, limit int) []string {
	if len(parts) <= n {
		return parts
	}

	parts = parts[:n:n]
	last := []rune(parts[n-1])
	keep := min(len(last), limit-len([]rune(ellipsis)))
	parts[n-1] = string(last[:keep]) + ellipsis
	return parts
}
