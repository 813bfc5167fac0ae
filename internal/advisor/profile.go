package advisor

import "strings"

// Slot names one field of the learner profile.
type Slot string

const (
	SlotField        Slot = "field_of_interest"
	SlotSkills       Slot = "skills_to_master"
	SlotPreference   Slot = "preference"
	SlotLevel        Slot = "level"
	SlotAvailability Slot = "availability"
	SlotCareerGoal   Slot = "career_goal"
)

// RequiredSlots lists the slots needed before a roadmap, in the order they are asked for.
var RequiredSlots = []Slot{SlotField, SlotSkills, SlotPreference, SlotLevel, SlotAvailability}

// AllSlots lists every profile slot.
var AllSlots = []Slot{SlotField, SlotSkills, SlotPreference, SlotLevel, SlotAvailability, SlotCareerGoal}

// Profile is the structured learner profile. An empty string means unset.
type Profile struct {
	FieldOfInterest string `json:"field_of_interest,omitempty"`
	SkillsToMaster  string `json:"skills_to_master,omitempty"`
	Preference      string `json:"preference,omitempty"`
	Level           string `json:"level,omitempty"`
	Availability    string `json:"availability,omitempty"`
	CareerGoal      string `json:"career_goal,omitempty"`
}

// Get returns the value of slot s.
func (p Profile) Get(s Slot) string {
	switch s {
	case SlotField:
		return p.FieldOfInterest
	case SlotSkills:
		return p.SkillsToMaster
	case SlotPreference:
		return p.Preference
	case SlotLevel:
		return p.Level
	case SlotAvailability:
		return p.Availability
	case SlotCareerGoal:
		return p.CareerGoal
	}
	return ""
}

func (p *Profile) set(s Slot, v string) {
	switch s {
	case SlotField:
		p.FieldOfInterest = v
	case SlotSkills:
		p.SkillsToMaster = v
	case SlotPreference:
		p.Preference = v
	case SlotLevel:
		p.Level = v
	case SlotAvailability:
		p.Availability = v
	case SlotCareerGoal:
		p.CareerGoal = v
	}
}

// Merge fills unset slots from partial. A set slot is never overwritten.
func (p *Profile) Merge(partial Profile) {
	for _, s := range AllSlots {
		if p.Get(s) != "" {
			continue
		}
		if v := strings.TrimSpace(partial.Get(s)); v != "" {
			p.set(s, v)
		}
	}
}

// Missing returns the unset required slots in asking order.
func (p Profile) Missing() []Slot {
	var missing []Slot
	for _, s := range RequiredSlots {
		if p.Get(s) == "" {
			missing = append(missing, s)
		}
	}
	return missing
}

// Complete reports whether every required slot is set.
func (p Profile) Complete() bool {
	return len(p.Missing()) == 0
}

// Query builds the retrieval query from the field and skills.
func (p Profile) Query() string {
	return strings.TrimSpace(p.FieldOfInterest + " " + p.SkillsToMaster)
}

// Map returns the set slots keyed by slot name.
func (p Profile) Map() map[string]string {
	m := make(map[string]string, len(AllSlots))
	for _, s := range AllSlots {
		if v := p.Get(s); v != "" {
			m[string(s)] = v
		}
	}
	return m
}

// ProfileFromMap is the inverse of Map. Unknown keys are ignored.
func ProfileFromMap(m map[string]string) Profile {
	var p Profile
	for _, s := range AllSlots {
		p.set(s, m[string(s)])
	}
	return p
}
