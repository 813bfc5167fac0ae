package advisor

import "strings"

const (
	followUpPreamble = "I need a few more details before I can recommend courses:"
	followUpFallback = "I need a few more details before I can advise you."
)

var followUpQuestions = map[Slot]string{
	SlotField:        "Which field do you want to learn? (e.g. machine learning, web development, data science, Java...)\n",
	SlotSkills:       "What specific skills do you want to master? (e.g. Python, SQL, React, NLP)\n",
	SlotPreference:   "Do you prefer video courses or text-based learning?\n",
	SlotLevel:        "What is your current skill level? (Beginner / Intermediate / Advanced)\n",
	SlotCareerGoal:   "What career goal are you aiming for (e.g. data scientist, backend developer)?\n",
	SlotAvailability: "How many hours per week can you study? (e.g. 10 hours)\n",
}

// ComposeFollowUp asks for the missing slots in the given order.
// Slots without a question are skipped.
func ComposeFollowUp(missing []Slot) string {
	questions := make([]string, 0, len(missing))
	for _, s := range missing {
		if q, ok := followUpQuestions[s]; ok {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return followUpFallback
	}
	return followUpPreamble + "\n" + strings.Join(questions, "\n")
}
