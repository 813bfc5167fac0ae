package roadmap

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/garyellow/edu-advisor/internal/retrieval"
)

// Course is the canonical description of a retrieved course.
// Missing attributes are empty strings.
type Course struct {
	Title       string
	URL         string
	Site        string
	Rating      string
	Skills      string
	Instructors string
	Category    string
	Intro       string
}

// Accepted payload keys per attribute, first non-empty wins.
var (
	titleKeys       = []string{"title", "course_title"}
	urlKeys         = []string{"url", "course_url", "final_url"}
	siteKeys        = []string{"site"}
	ratingKeys      = []string{"rating"}
	skillsKeys      = []string{"skills"}
	instructorsKeys = []string{"instructors"}
	categoryKeys    = []string{"category", "sub-category"}
	introKeys       = []string{"short_intro", "course_short_intro", "Short Intro"}
)

// Normalize maps each candidate payload to a Course, keeping length and order.
func Normalize(candidates []retrieval.Candidate) []Course {
	courses := make([]Course, len(candidates))
	for i, c := range candidates {
		courses[i] = normalizeOne(c.Payload)
	}
	return courses
}

func normalizeOne(p map[string]any) Course {
	return Course{
		Title:       first(p, titleKeys),
		URL:         first(p, urlKeys),
		Site:        first(p, siteKeys),
		Rating:      first(p, ratingKeys),
		Skills:      first(p, skillsKeys),
		Instructors: first(p, instructorsKeys),
		Category:    first(p, categoryKeys),
		Intro:       plainText(first(p, introKeys)),
	}
}

func first(p map[string]any, keys []string) string {
	for _, k := range keys {
		if v := stringify(p[k]); v != "" {
			return v
		}
	}
	return ""
}

// stringify renders scalar payload values. Anything else is treated as absent.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := stringify(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// plainText strips markup that scraped course intros often carry.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
