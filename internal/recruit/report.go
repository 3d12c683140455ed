package recruit

import (
	"fmt"
	"log"
	"strings"

	"github.com/Nanomace/Nyx/internal/platform"
)

// redFlagCategory pairs a label with the keywords that trigger it. The
// scan is a plain case-insensitive substring match per keyword.
type redFlagCategory struct {
	Name  string
	Words []string
}

// redFlagCategories are fixed. The slurs list ships empty on purpose:
// the keyword set is deployment-specific and must be filled in by the
// operator, which the scan logs as a configuration gap.
var redFlagCategories = []redFlagCategory{
	{Name: "aggression", Words: []string{"fuck", "kill", "attack", "revenge", "hurt", "beat", "destroy"}},
	{Name: "toxicity", Words: []string{"idiot", "stupid", "moron", "trash"}},
	{Name: "hostility", Words: []string{"i'll get them", "i will get them", "i'm going to get them"}},
	{Name: "slurs", Words: nil},
}

const officerChecklist = "• Review each answer for tone and honesty\n" +
	"• Check the risk assessment against your own read\n" +
	"• Use `$accept` or `$reject` in the interview channel"

// ScanRedFlags runs the keyword scan over every answer and returns one
// line per match, grouped by answer in interview order.
func ScanRedFlags(answers []string) []string {
	for _, cat := range redFlagCategories {
		if len(cat.Words) == 0 {
			log.Printf("[recruit] red-flag category %q has no keywords configured", cat.Name)
		}
	}

	var flags []string
	for i, answer := range answers {
		lower := strings.ToLower(answer)
		for _, cat := range redFlagCategories {
			for _, word := range cat.Words {
				if strings.Contains(lower, word) {
					flags = append(flags, fmt.Sprintf("Q%d: '%s' — matched **%s** (%s)", i+1, answer, word, cat.Name))
				}
			}
		}
	}
	return flags
}

// RiskLevel bands a match count: 0 low, 1-2 medium, 3+ high.
func RiskLevel(matches int) string {
	switch {
	case matches == 0:
		return "🟢 Low"
	case matches <= 2:
		return "🟡 Medium"
	default:
		return "🔴 High"
	}
}

// BuildReport assembles the officer-facing summary of a completed
// interview: every question/answer pair, the red-flag scan, the risk
// band, and the review checklist.
func BuildReport(questions, answers []string, applicantName string) platform.Embed {
	embed := platform.Embed{
		Title: fmt.Sprintf("Application Report: %s", applicantName),
		Color: platform.ColorPurple,
	}

	for i, q := range questions {
		answer := "*No answer recorded*"
		if i < len(answers) && strings.TrimSpace(answers[i]) != "" {
			answer = answers[i]
		}
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  fmt.Sprintf("Q%d: %s", i+1, q),
			Value: answer,
		})
	}

	flags := ScanRedFlags(answers)
	embed.Fields = append(embed.Fields, platform.EmbedField{
		Name:  "Risk Assessment",
		Value: RiskLevel(len(flags)),
	})
	if len(flags) > 0 {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  "Red Flags",
			Value: strings.Join(flags, "\n"),
		})
	}
	embed.Fields = append(embed.Fields, platform.EmbedField{
		Name:  "Officer Checklist",
		Value: officerChecklist,
	})
	return embed
}
