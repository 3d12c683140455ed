// Package moderation runs the automated rule check on one watched
// channel. Only messages from the configured target author are evaluated;
// allowlist patterns exempt known-benign trade and ignore postings before
// any model call is made.
package moderation

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/Nanomace/Nyx/internal/bus"
	"github.com/Nanomace/Nyx/internal/config"
	"github.com/Nanomace/Nyx/internal/corpus"
	"github.com/Nanomace/Nyx/internal/llm"
	"github.com/Nanomace/Nyx/internal/platform"
)

var (
	// Trade posts offering something for free are an accepted convention.
	allowWTSFree = regexp.MustCompile(`(?i)^\[WTS\].*\bfree\b.*`)

	// A short bracketed character name directly followed by [Ignore].
	allowNameIgnore = regexp.MustCompile(`(?i)\[[A-Za-z]{3,12}\]\s*\[Ignore\]`)
)

type Filter struct {
	cfg    config.ModerationConfig
	corpus *corpus.Corpus
	client *llm.Client
	bus    *bus.MessageBus
}

func NewFilter(cfg config.ModerationConfig, c *corpus.Corpus, client *llm.Client, b *bus.MessageBus) *Filter {
	return &Filter{cfg: cfg, corpus: c, client: client, bus: b}
}

// Handle evaluates one inbound message, sending a verdict embed (and a
// moderator ping on violations) back to the channel. Messages outside
// the configured channel/author, or matching an exemption, are skipped.
func (f *Filter) Handle(ctx context.Context, msg bus.InboundMessage) {
	if msg.ChannelID != f.cfg.ChannelID {
		return
	}
	if !strings.EqualFold(msg.AuthorName, f.cfg.TargetAuthor) {
		return
	}

	for _, name := range f.cfg.IgnoreNames {
		if strings.Contains(msg.Content, name) {
			return
		}
	}

	text := ExtractText(msg)
	if Allowlisted(text) {
		return
	}

	verdict := f.client.ClassifyModeration(ctx, f.corpus.Guidance, f.corpus.Rules, text)

	if verdict.Violation && f.cfg.ModeratorRoleID != "" {
		f.bus.Outbound <- bus.OutboundMessage{
			Platform:     msg.Platform,
			ChannelID:    msg.ChannelID,
			Content:      "<@&" + f.cfg.ModeratorRoleID + ">",
			MentionRoles: true,
		}
	}

	embed := VerdictEmbed(verdict)
	f.bus.Outbound <- bus.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Embed:     &embed,
	}

	if verdict.Violation {
		log.Printf("[moderation] violation flagged in %s: %s", msg.ChannelID, verdict.Rule)
	}
}

// Allowlisted reports whether the text matches an exemption pattern and
// should bypass classification entirely.
func Allowlisted(text string) bool {
	return allowWTSFree.MatchString(text) || allowNameIgnore.MatchString(text)
}

// ExtractText joins the message body with any embed titles, descriptions,
// fields and footers, newline separated.
func ExtractText(msg bus.InboundMessage) string {
	var parts []string
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for _, e := range msg.Embeds {
		if e.Title != "" {
			parts = append(parts, e.Title)
		}
		if e.Description != "" {
			parts = append(parts, e.Description)
		}
		for _, field := range e.Fields {
			parts = append(parts, field.Name+": "+field.Value)
		}
		if e.Footer != "" {
			parts = append(parts, e.Footer)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// VerdictEmbed renders a classification result as a red or green card.
func VerdictEmbed(v llm.Verdict) platform.Embed {
	embed := platform.Embed{
		Title:       "No Violation Detected",
		Description: v.ShortSummary,
		Color:       platform.ColorGreen,
	}
	if v.Violation {
		embed.Title = "Violation Detected"
		embed.Color = platform.ColorRed
	}

	rule := v.Rule
	if rule == "" {
		rule = "None"
	}
	reason := v.Reason
	if reason == "" {
		reason = "None"
	}
	action := v.RecommendedAction
	if action == "" {
		action = "None"
	}

	embed.Fields = []platform.EmbedField{
		{Name: "Rule", Value: rule},
		{Name: "Reason", Value: reason},
		{Name: "Recommended Action", Value: action},
		{Name: "Confidence", Value: fmt.Sprintf("%.2f", v.Confidence)},
	}
	return embed
}
