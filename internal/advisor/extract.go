package advisor

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type vocabEntry struct {
	pattern   *regexp.Regexp
	canonical string
}

func word(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
}

// fieldVocabulary is checked in order; the first hit wins.
// "python" is a skill, not a field.
var fieldVocabulary = []vocabEntry{
	{word("machine learning"), "machine learning"},
	{word("ml"), "machine learning"},
	{word("web development"), "web development"},
	{word("web dev"), "web development"},
	{word("cybersecurity"), "cybersecurity"},
	{word("ui design"), "ui design"},
	{word("data science"), "data science"},
	{word("cloud computing"), "cloud computing"},
	{word("ai"), "ai"},
	{word("java"), "java"},
}

var skillPattern = regexp.MustCompile(`\b(` + strings.Join([]string{
	"python", "react", "node", "sql", "javascript", "html", "css", "nlp",
	"dl", "ml", "data science", "java", "pandas", "numpy", "pytorch",
	"machine learning", "deep learning", "tensorflow",
}, "|") + `)\b`)

var (
	videoPattern = regexp.MustCompile(`\bvideos?\b`)
	textPattern  = regexp.MustCompile(`\b(text|books?|articles?|reading)\b`)

	careerPattern       = regexp.MustCompile(`\bbecome (?:an? )?([a-z ]+)`)
	availabilityPattern = regexp.MustCompile(`(\d+)\s*(?:hours|hrs|hour)\b(?:\s*(?:per|/|a)?\s*(?:week|weekly)\b)?`)
)

// levels are checked in priority order.
var levels = []vocabEntry{
	{regexp.MustCompile(`\bbeginners?\b`), "beginner"},
	{word("intermediate"), "intermediate"},
	{word("advanced"), "advanced"},
}

// normalizeUtterance folds compatibility forms (full-width digits and
// letters) and lower-cases the text.
func normalizeUtterance(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// Extract parses the profile slots mentioned in utterance.
// Slots that are not mentioned stay empty.
func Extract(utterance string) Profile {
	u := normalizeUtterance(utterance)
	if strings.TrimSpace(u) == "" {
		return Profile{}
	}

	return Profile{
		FieldOfInterest: extractField(u),
		SkillsToMaster:  extractSkills(u),
		Preference:      extractPreference(u),
		Level:           extractLevel(u),
		Availability:    extractAvailability(u),
		CareerGoal:      extractCareerGoal(u),
	}
}

func extractField(u string) string {
	for _, e := range fieldVocabulary {
		if e.pattern.MatchString(u) {
			return e.canonical
		}
	}
	return ""
}

func extractSkills(u string) string {
	found := skillPattern.FindAllString(u, -1)
	if len(found) == 0 {
		return ""
	}
	slices.Sort(found)
	return strings.Join(slices.Compact(found), ", ")
}

func extractPreference(u string) string {
	switch {
	case videoPattern.MatchString(u):
		return "video courses"
	case textPattern.MatchString(u):
		return "text-based learning"
	}
	return ""
}

func extractLevel(u string) string {
	for _, l := range levels {
		if l.pattern.MatchString(u) {
			return l.canonical
		}
	}
	return ""
}

func extractCareerGoal(u string) string {
	m := careerPattern.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func extractAvailability(u string) string {
	m := availabilityPattern.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1] + " hours/week"
}
