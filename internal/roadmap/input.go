package roadmap

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxRoleLength   = 120
	maxSkillLength  = 60
	maxSkills       = 30
	maxTextLength   = 2000
	maxYears        = 60
	maxTimeline     = 60
	defaultTimeline = 12
)

// ErrInvalidInput wraps every validation failure; the wrapped message names
// the offending field and is safe to show to users.
var ErrInvalidInput = errors.New("invalid roadmap input")

// Input is what a user fills in to get a roadmap. It is stored verbatim
// with the roadmap and copied into revision requests.
type Input struct {
	CurrentRole     string   `json:"currentRole"`
	TargetRole      string   `json:"targetRole"`
	YearsExperience int      `json:"yearsExperience"`
	Skills          []string `json:"skills,omitempty"`
	TimelineMonths  int      `json:"timelineMonths"`
	Goals           string   `json:"goals,omitempty"`
	Constraints     string   `json:"constraints,omitempty"`
}

// Validate trims the fields in place, fills the default timeline and drops
// blank skills, then checks the limits.
func (in *Input) Validate() error {
	in.CurrentRole = strings.TrimSpace(in.CurrentRole)
	in.TargetRole = strings.TrimSpace(in.TargetRole)
	in.Goals = strings.TrimSpace(in.Goals)
	in.Constraints = strings.TrimSpace(in.Constraints)

	skills := in.Skills[:0]
	for _, s := range in.Skills {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	in.Skills = skills

	if in.TimelineMonths == 0 {
		in.TimelineMonths = defaultTimeline
	}

	switch {
	case in.CurrentRole == "":
		return invalid("current role is required")
	case in.TargetRole == "":
		return invalid("target role is required")
	case utf8.RuneCountInString(in.CurrentRole) > maxRoleLength:
		return invalid("current role must be at most %d characters", maxRoleLength)
	case utf8.RuneCountInString(in.TargetRole) > maxRoleLength:
		return invalid("target role must be at most %d characters", maxRoleLength)
	case in.YearsExperience < 0 || in.YearsExperience > maxYears:
		return invalid("years of experience must be between 0 and %d", maxYears)
	case in.TimelineMonths < 1 || in.TimelineMonths > maxTimeline:
		return invalid("timeline must be between 1 and %d months", maxTimeline)
	case len(in.Skills) > maxSkills:
		return invalid("at most %d skills may be listed", maxSkills)
	case utf8.RuneCountInString(in.Goals) > maxTextLength:
		return invalid("goals must be at most %d characters", maxTextLength)
	case utf8.RuneCountInString(in.Constraints) > maxTextLength:
		return invalid("constraints must be at most %d characters", maxTextLength)
	}
	for _, s := range in.Skills {
		if utf8.RuneCountInString(s) > maxSkillLength {
			return invalid("skill %q is longer than %d characters", s, maxSkillLength)
		}
	}
	return nil
}

// Title is the display name of a roadmap generated from in.
func (in Input) Title() string {
	return in.CurrentRole + " to " + in.TargetRole
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
