// Package summary implements the $summary command family. Each
// invocation is stateless: parse the sub-command, gather messages from
// the cache and/or a history fetch, route to the model or a local
// aggregation, and deliver the result as a direct message to the invoker.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Nanomace/Nyx/internal/bus"
	"github.com/Nanomace/Nyx/internal/cache"
	"github.com/Nanomace/Nyx/internal/config"
	"github.com/Nanomace/Nyx/internal/llm"
	"github.com/Nanomace/Nyx/internal/platform"
)

// History fetch windows per sub-command.
const (
	dailyFetchLimit   = 1000
	weeklyFetchLimit  = 3000
	monthlyFetchLimit = 5000
	keywordFetchLimit = 500
	userFetchLimit    = 2000
	activeFetchLimit  = 1000
	topicsFetchLimit  = 500
)

const usageText = "Usage:\n" +
	"`$summary <number>`\n" +
	"`$summary daily`\n" +
	"`$summary weekly`\n" +
	"`$summary monthly`\n" +
	"`$summary keyword <word>`\n" +
	"`$summary user <nickname>`\n" +
	"`$summary active`\n" +
	"`$summary topics`"

// HistoryFetcher is the slice of platform.Actions the dispatcher needs.
type HistoryFetcher interface {
	FetchHistory(channelID string, limit int) []platform.HistoryMessage
}

type Dispatcher struct {
	cfg     config.SummaryConfig
	cache   *cache.Store
	client  *llm.Client
	history HistoryFetcher
	bus     *bus.MessageBus
}

func NewDispatcher(cfg config.SummaryConfig, store *cache.Store, client *llm.Client, history HistoryFetcher, b *bus.MessageBus) *Dispatcher {
	return &Dispatcher{cfg: cfg, cache: store, client: client, history: history, bus: b}
}

// Handle processes a $summary invocation. The caller has already matched
// the command prefix.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage) {
	if !msg.HasAnyRole(d.cfg.AllowedRoles...) {
		d.reply(msg, "You don't have permission to use this command.")
		return
	}

	parts := strings.Fields(msg.Content)
	channelName := msg.ChannelName
	if channelName == "" {
		channelName = msg.ChannelID
	}

	switch {
	case len(parts) == 2 && isDigits(parts[1]):
		d.lastN(ctx, msg, channelName, atoi(parts[1]))
	case len(parts) == 2 && strings.EqualFold(parts[1], "daily"):
		d.window(ctx, msg, channelName, "Daily", 24*time.Hour, dailyFetchLimit, "No messages found in the last 24 hours.")
	case len(parts) == 2 && strings.EqualFold(parts[1], "weekly"):
		d.window(ctx, msg, channelName, "Weekly", 7*24*time.Hour, weeklyFetchLimit, "No messages found in the last 7 days.")
	case len(parts) == 2 && strings.EqualFold(parts[1], "monthly"):
		d.window(ctx, msg, channelName, "Monthly", 30*24*time.Hour, monthlyFetchLimit, "No messages found in the last 30 days.")
	case len(parts) == 3 && strings.EqualFold(parts[1], "keyword"):
		d.keyword(ctx, msg, channelName, parts[2])
	case len(parts) == 3 && strings.EqualFold(parts[1], "user"):
		d.user(ctx, msg, channelName, parts[2])
	case len(parts) == 2 && strings.EqualFold(parts[1], "active"):
		d.active(msg, channelName)
	case len(parts) == 2 && strings.EqualFold(parts[1], "topics"):
		d.topics(ctx, msg, channelName)
	default:
		d.reply(msg, usageText)
	}
}

// lastN summarizes the most recent count messages, topping the cache up
// from history when it holds fewer than requested. The +1 on the
// shortfall absorbs the command message itself appearing in history.
func (d *Dispatcher) lastN(ctx context.Context, msg bus.InboundMessage, channelName string, count int) {
	snap := d.cache.Snapshot(msg.ChannelID)

	var history []cache.Message
	if len(snap) >= count {
		history = snap[len(snap)-count:]
	} else {
		missing := count - len(snap)
		fetched := fromHistory(d.history.FetchHistory(msg.ChannelID, missing+1))
		history = append(fetched, snap...)
		if len(history) > count {
			history = history[len(history)-count:]
		}
	}

	summary := d.summarize(ctx, history)
	d.dm(msg, platform.Embed{
		Title:       fmt.Sprintf("Summary of #%s — Last %d Messages", channelName, count),
		Description: summary,
		Color:       platform.ColorBlue,
	})
}

func (d *Dispatcher) window(ctx context.Context, msg bus.InboundMessage, channelName, label string, span time.Duration, limit int, emptyNotice string) {
	history := d.Gather(msg.ChannelID, span, limit)
	if len(history) == 0 {
		d.dmText(msg, emptyNotice)
		return
	}

	summary := d.summarize(ctx, history)
	d.dm(msg, platform.Embed{
		Title:       fmt.Sprintf("%s Summary of #%s", label, channelName),
		Description: summary,
		Color:       platform.ColorBlue,
	})
}

func (d *Dispatcher) keyword(ctx context.Context, msg bus.InboundMessage, channelName, word string) {
	keyword := strings.ToLower(word)
	fetched := fromHistory(d.history.FetchHistory(msg.ChannelID, keywordFetchLimit))

	var history []cache.Message
	for _, m := range fetched {
		if strings.Contains(strings.ToLower(m.Content), keyword) {
			history = append(history, m)
		}
	}
	if len(history) == 0 {
		d.dmText(msg, fmt.Sprintf("No messages found containing '%s'.", keyword))
		return
	}

	summary := d.summarize(ctx, history)
	d.dm(msg, platform.Embed{
		Title:       fmt.Sprintf("Keyword Summary of #%s: %s", channelName, keyword),
		Description: summary,
		Color:       platform.ColorBlue,
	})
}

func (d *Dispatcher) user(ctx context.Context, msg bus.InboundMessage, channelName, name string) {
	target := strings.ToLower(name)
	fetched := fromHistory(d.history.FetchHistory(msg.ChannelID, userFetchLimit))

	var history []cache.Message
	for _, m := range fetched {
		if strings.ToLower(m.Author) == target {
			history = append(history, m)
		}
	}
	if len(history) == 0 {
		d.dmText(msg, fmt.Sprintf("No messages found from user '%s'.", target))
		return
	}

	summary := d.summarize(ctx, history)
	d.dm(msg, platform.Embed{
		Title:       fmt.Sprintf("User Summary of #%s: %s", channelName, target),
		Description: summary,
		Color:       platform.ColorBlue,
	})
}

// active tallies messages per author and lists the top ten. No model
// call is involved.
func (d *Dispatcher) active(msg bus.InboundMessage, channelName string) {
	fetched := d.history.FetchHistory(msg.ChannelID, activeFetchLimit)
	if len(fetched) == 0 {
		d.dmText(msg, "No activity found.")
		return
	}

	counts := make(map[string]int)
	for _, m := range fetched {
		counts[m.Author]++
	}

	type tally struct {
		name  string
		count int
	}
	ranked := make([]tally, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, tally{name, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}

	lines := make([]string, 0, len(ranked))
	for _, t := range ranked {
		lines = append(lines, fmt.Sprintf("**%s** — %d messages", t.name, t.count))
	}

	d.dm(msg, platform.Embed{
		Title:       fmt.Sprintf("Most Active Users in #%s", channelName),
		Description: strings.Join(lines, "\n"),
		Color:       platform.ColorBlue,
	})
}

func (d *Dispatcher) topics(ctx context.Context, msg bus.InboundMessage, channelName string) {
	fetched := d.history.FetchHistory(msg.ChannelID, topicsFetchLimit)

	lines := make([]string, 0, len(fetched))
	for _, m := range fetched {
		lines = append(lines, m.Content)
	}
	topics := d.client.ExtractTopics(ctx, strings.Join(lines, "\n"))

	d.dm(msg, platform.Embed{
		Title:       fmt.Sprintf("Topic Analysis of #%s", channelName),
		Description: topics,
		Color:       platform.ColorBlue,
	})
}

// Gather fetches up to limit messages and keeps those within span of now.
// Shared with the scheduled digest service.
func (d *Dispatcher) Gather(channelID string, span time.Duration, limit int) []cache.Message {
	cutoff := time.Now().UTC().Add(-span)
	fetched := fromHistory(d.history.FetchHistory(channelID, limit))

	var history []cache.Message
	for _, m := range fetched {
		if m.Timestamp.After(cutoff) {
			history = append(history, m)
		}
	}
	return history
}

// Summarize runs the model over a gathered message block. Exposed for
// the digest service.
func (d *Dispatcher) Summarize(ctx context.Context, history []cache.Message) string {
	return d.summarize(ctx, history)
}

func (d *Dispatcher) summarize(ctx context.Context, history []cache.Message) string {
	if len(history) == 0 {
		return "No messages available to summarize."
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, m.Author+": "+m.Content)
	}
	return d.client.Summarize(ctx, strings.Join(lines, "\n"))
}

func (d *Dispatcher) reply(msg bus.InboundMessage, content string) {
	d.bus.Outbound <- bus.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   content,
	}
}

func (d *Dispatcher) dm(msg bus.InboundMessage, embed platform.Embed) {
	d.bus.Outbound <- bus.OutboundMessage{
		Platform: msg.Platform,
		DirectTo: msg.AuthorID,
		Embed:    &embed,
	}
}

func (d *Dispatcher) dmText(msg bus.InboundMessage, content string) {
	d.bus.Outbound <- bus.OutboundMessage{
		Platform: msg.Platform,
		DirectTo: msg.AuthorID,
		Content:  content,
	}
}

func fromHistory(fetched []platform.HistoryMessage) []cache.Message {
	out := make([]cache.Message, 0, len(fetched))
	for _, m := range fetched {
		out = append(out, cache.Message{Author: m.Author, Content: m.Content, Timestamp: m.Timestamp})
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
