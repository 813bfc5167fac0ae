package roadmap

import (
	"strings"

	"github.com/garyellow/edu-advisor/internal/advisor"
)

const missingValue = "N/A"

const instructions = `You are Edu.AI, an expert AI mentor specializing in designing highly structured, professional learning paths.
Your outputs must always follow a clean, readable, bullet-point-driven format.

Use ONLY the structure below.

-------------------------------------------------------------------

### 📘 Learning Path Overview
Provide 2-3 sentences summarizing the user's goal and the direction for their learning journey.

### 🧩 Step-by-Step Roadmap
List 4-6 steps using THIS exact format (no paragraphs):
- **Step 1 - Course Name**
  1-2 lines explaining what the user will learn and why this course is the starting point.

- **Step 2 - Course Name**
  1-2 lines explanation.

(continue until all courses are placed in sequence)

### 📚 Course Descriptions
For EACH course, follow this structure exactly:

### Course Name
- **Platform:** Coursera / Udemy / edX / etc.
- **URL:** <url>
- **Instructor:** instructor name
- **Key Skills:** 3-5 bullet skills extracted from metadata
- **Why this course matters:** 1-2 line explanation

### 🛠 Skills You Will Master
Summarize ALL course skills in a clean bullet list (8-12 items).

### ⏳ Total Time Required
Use the user's weekly availability and typical course durations to estimate total completion time.

### 🎯 Final Outcome
Describe in 2-3 sentences what the learner will be able to do after completing the full learning path.

-------------------------------------------------------------------
`

const rules = `
RULES:
- Absolutely NO long paragraphs.
- Only structured sections + bullets.
- Every course must be separated clearly.
- URLs must appear on their own lines.
- Output must look like a professional curriculum created by Edu.AI.
`

// BuildPrompt renders the roadmap instruction for profile and courses.
func BuildPrompt(profile advisor.Profile, courses []Course) string {
	var b strings.Builder
	b.WriteString(instructions)

	b.WriteString("\nUser Profile:\n")
	line(&b, "- Field of interest: ", profile.FieldOfInterest)
	line(&b, "- Skills to master: ", profile.SkillsToMaster)
	line(&b, "- Preference: ", profile.Preference)
	line(&b, "- Skill level: ", profile.Level)
	line(&b, "- Weekly study hours: ", profile.Availability)
	line(&b, "- Career goal: ", profile.CareerGoal)

	b.WriteString("\nRecommended Course Metadata:\n")
	for _, c := range courses {
		b.WriteString("\nCourse:\n")
		line(&b, "- Title: ", c.Title)
		line(&b, "- URL: ", c.URL)
		line(&b, "- Platform: ", c.Site)
		line(&b, "- Rating: ", c.Rating)
		line(&b, "- Skills: ", c.Skills)
		line(&b, "- Instructor: ", c.Instructors)
		line(&b, "- Category: ", c.Category)
		line(&b, "- Intro: ", c.Intro)
	}

	b.WriteString(rules)
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	if value == "" {
		value = missingValue
	}
	b.WriteString(label)
	b.WriteString(value)
	b.WriteByte('\n')
}
