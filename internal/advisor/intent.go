package advisor

import "strings"

// intentKeywords signal that the user wants a learning plan.
var intentKeywords = []string{
	"learn",
	"learning",
	"i want to learn",
	"recommend me a course",
	"recommend courses",
	"recommend course",
	"course for",
	"teach me",
	"i want to study",
	"want to study",
	"suggest a course",
	"recommend",
}

// DetectIntent reports whether utterance contains any learning-intent keyword,
// ignoring case.
func DetectIntent(utterance string) bool {
	u := normalizeUtterance(utterance)
	for _, k := range intentKeywords {
		if strings.Contains(u, k) {
			return true
		}
	}
	return false
}
