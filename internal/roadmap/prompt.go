package roadmap

import (
	"fmt"
	"strings"

	"careershift/internal/db"
)

// Prompt is one model call: a system instruction, the user turn and an
// output budget.
type Prompt struct {
	System    string
	User      string
	MaxTokens int32
}

const systemPrompt = `You are a career transition coach. You write practical, honest roadmaps
for people changing roles. Use Markdown with headings per phase. Be specific:
name concrete skills, kinds of projects and resources. Never invent
credentials, salaries or guarantees.`

// BuildPrompt shapes the request by tier. Higher tiers get more phases and
// more sections, and a larger output budget.
func BuildPrompt(in Input, tier db.Tier) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "Current role: %s\n", in.CurrentRole)
	fmt.Fprintf(&b, "Target role: %s\n", in.TargetRole)
	fmt.Fprintf(&b, "Years of experience: %d\n", in.YearsExperience)
	fmt.Fprintf(&b, "Timeline: %d months\n", in.TimelineMonths)
	if len(in.Skills) > 0 {
		fmt.Fprintf(&b, "Current skills: %s\n", strings.Join(in.Skills, ", "))
	}
	if in.Goals != "" {
		fmt.Fprintf(&b, "Goals: %s\n", in.Goals)
	}
	if in.Constraints != "" {
		fmt.Fprintf(&b, "Constraints: %s\n", in.Constraints)
	}
	b.WriteString("\n")

	p := Prompt{System: systemPrompt}
	switch tier {
	case db.TierPremium:
		b.WriteString("Write a detailed plan in 6 phases spread across the timeline. For each phase list\n")
		b.WriteString("the skills to build, recommended resources and a portfolio project.\n")
		b.WriteString("Include a skills gap analysis against the target role.\n")
		b.WriteString("Add month-by-month milestones covering the whole timeline.\n")
		b.WriteString("Add a networking plan (communities, people to reach, events).\n")
		b.WriteString("Finish with interview preparation: likely questions, how to tell the transition story, and a mock interview schedule.\n")
		p.MaxTokens = 8192
	case db.TierProfessional:
		b.WriteString("Write a plan in 6 phases spread across the timeline. For each phase list\n")
		b.WriteString("the skills to build and recommended resources.\n")
		b.WriteString("Include a skills gap analysis against the target role.\n")
		p.MaxTokens = 4096
	default:
		b.WriteString("Write a short overview in 3 phases. For each phase give one paragraph\n")
		b.WriteString("and the two or three most important skills.\n")
		p.MaxTokens = 1536
	}

	p.User = b.String()
	return p
}
