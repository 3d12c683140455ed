package summary

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cexll/agentsdk-go/pkg/api"

	"github.com/Nanomace/Nyx/internal/bus"
	"github.com/Nanomace/Nyx/internal/cache"
	"github.com/Nanomace/Nyx/internal/config"
	"github.com/Nanomace/Nyx/internal/llm"
	"github.com/Nanomace/Nyx/internal/platform"
)

type mockRuntime struct {
	output  string
	err     error
	calls   int
	prompts []string
}

func (m *mockRuntime) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)
	if m.err != nil {
		return nil, m.err
	}
	return &api.Response{Result: &api.Result{Output: m.output}}, nil
}

func (m *mockRuntime) Close() {}

type fakeHistory struct {
	messages []platform.HistoryMessage
	requests []int
}

func (f *fakeHistory) FetchHistory(channelID string, limit int) []platform.HistoryMessage {
	f.requests = append(f.requests, limit)
	if limit > len(f.messages) {
		return f.messages
	}
	return f.messages[:limit]
}

func newTestDispatcher(rt *mockRuntime, history *fakeHistory) (*Dispatcher, *cache.Store, *bus.MessageBus) {
	b := bus.NewMessageBus(10)
	store := cache.NewStore()
	cfg := config.SummaryConfig{AllowedRoles: []string{"officer", "general"}}
	d := NewDispatcher(cfg, store, llm.NewClient(rt), history, b)
	return d, store, b
}

func officerMessage(content string) bus.InboundMessage {
	return bus.InboundMessage{
		Platform:    "discord",
		ChannelID:   "ch-1",
		ChannelName: "generals",
		AuthorID:    "user-1",
		Roles:       []string{"Officer"},
		Content:     content,
	}
}

func receive(t *testing.T, b *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	select {
	case msg := <-b.Outbound:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no outbound message")
		return bus.OutboundMessage{}
	}
}

func TestHandleDeniesMissingRole(t *testing.T) {
	rt := &mockRuntime{output: "summary"}
	d, _, b := newTestDispatcher(rt, &fakeHistory{})

	msg := officerMessage("$summary 5")
	msg.Roles = []string{"Member"}
	d.Handle(context.Background(), msg)

	out := receive(t, b)
	if out.Content != "You don't have permission to use this command." {
		t.Errorf("Content = %q", out.Content)
	}
	if out.DirectTo != "" {
		t.Errorf("denial should go to the channel, not DM")
	}
	if rt.calls != 0 {
		t.Errorf("model called despite denial")
	}
}

func TestHandleUsage(t *testing.T) {
	d, _, b := newTestDispatcher(&mockRuntime{}, &fakeHistory{})

	d.Handle(context.Background(), officerMessage("$summary bogus sub command"))

	out := receive(t, b)
	if !strings.Contains(out.Content, "Usage:") {
		t.Errorf("expected usage text, got %q", out.Content)
	}
}

func TestLastNFromCacheOnly(t *testing.T) {
	rt := &mockRuntime{output: "the summary"}
	history := &fakeHistory{}
	d, store, b := newTestDispatcher(rt, history)

	now := time.Now()
	for i := 0; i < 5; i++ {
		store.Append("ch-1", "alice", fmt.Sprintf("msg-%d", i), now)
	}

	d.Handle(context.Background(), officerMessage("$summary 3"))

	out := receive(t, b)
	if out.DirectTo != "user-1" {
		t.Errorf("summary must arrive as a DM, got %+v", out)
	}
	if out.Embed == nil || out.Embed.Description != "the summary" {
		t.Errorf("embed = %+v", out.Embed)
	}
	if len(history.requests) != 0 {
		t.Errorf("history fetched despite sufficient cache: %v", history.requests)
	}
	// Only the newest three cached messages reach the prompt.
	if p := rt.prompts[0]; strings.Contains(p, "msg-1") || !strings.Contains(p, "msg-4") {
		t.Errorf("prompt window wrong: %q", p)
	}
}

func TestLastNTopsUpFromHistory(t *testing.T) {
	rt := &mockRuntime{output: "combined"}
	history := &fakeHistory{messages: []platform.HistoryMessage{
		{Author: "bob", Content: "older-1", Timestamp: time.Now()},
		{Author: "bob", Content: "older-2", Timestamp: time.Now()},
		{Author: "bob", Content: "older-3", Timestamp: time.Now()},
	}}
	d, store, b := newTestDispatcher(rt, history)

	now := time.Now()
	store.Append("ch-1", "alice", "cached-1", now)
	store.Append("ch-1", "alice", "cached-2", now)
	store.Append("ch-1", "alice", "cached-3", now)

	d.Handle(context.Background(), officerMessage("$summary 5"))

	receive(t, b)
	if len(history.requests) != 1 {
		t.Fatalf("history fetches = %v, want one", history.requests)
	}
	// Shortfall of 2 plus one to absorb the command message itself.
	if history.requests[0] != 3 {
		t.Errorf("fetch limit = %d, want 3", history.requests[0])
	}
}

func TestWindowEmptyResultSkipsModel(t *testing.T) {
	rt := &mockRuntime{output: "should not be used"}
	old := time.Now().Add(-48 * time.Hour)
	history := &fakeHistory{messages: []platform.HistoryMessage{
		{Author: "bob", Content: "stale", Timestamp: old},
	}}
	d, _, b := newTestDispatcher(rt, history)

	d.Handle(context.Background(), officerMessage("$summary daily"))

	out := receive(t, b)
	if out.Content != "No messages found in the last 24 hours." {
		t.Errorf("Content = %q", out.Content)
	}
	if out.DirectTo != "user-1" {
		t.Errorf("notice should be a DM")
	}
	if rt.calls != 0 {
		t.Errorf("model called on empty window")
	}
}

func TestKeywordFiltersCaseInsensitive(t *testing.T) {
	rt := &mockRuntime{output: "keyword summary"}
	history := &fakeHistory{messages: []platform.HistoryMessage{
		{Author: "bob", Content: "talking about Dragons today", Timestamp: time.Now()},
		{Author: "eve", Content: "unrelated chatter", Timestamp: time.Now()},
	}}
	d, _, b := newTestDispatcher(rt, history)

	d.Handle(context.Background(), officerMessage("$summary keyword dragons"))

	out := receive(t, b)
	if out.Embed == nil || !strings.Contains(out.Embed.Title, "dragons") {
		t.Errorf("embed = %+v", out.Embed)
	}
	if p := rt.prompts[0]; strings.Contains(p, "unrelated") {
		t.Errorf("unfiltered message reached the prompt: %q", p)
	}
}

func TestKeywordNoMatches(t *testing.T) {
	rt := &mockRuntime{}
	history := &fakeHistory{messages: []platform.HistoryMessage{
		{Author: "bob", Content: "nothing relevant", Timestamp: time.Now()},
	}}
	d, _, b := newTestDispatcher(rt, history)

	d.Handle(context.Background(), officerMessage("$summary keyword unicorn"))

	out := receive(t, b)
	if out.Content != "No messages found containing 'unicorn'." {
		t.Errorf("Content = %q", out.Content)
	}
	if rt.calls != 0 {
		t.Errorf("model called with no matches")
	}
}

func TestUserFilter(t *testing.T) {
	rt := &mockRuntime{output: "user summary"}
	history := &fakeHistory{messages: []platform.HistoryMessage{
		{Author: "Alice", Content: "from alice", Timestamp: time.Now()},
		{Author: "Bob", Content: "from bob", Timestamp: time.Now()},
	}}
	d, _, b := newTestDispatcher(rt, history)

	d.Handle(context.Background(), officerMessage("$summary user alice"))

	receive(t, b)
	if p := rt.prompts[0]; strings.Contains(p, "from bob") || !strings.Contains(p, "from alice") {
		t.Errorf("user filter wrong: %q", p)
	}
}

func TestActiveRanksWithoutModel(t *testing.T) {
	rt := &mockRuntime{}
	history := &fakeHistory{messages: []platform.HistoryMessage{
		{Author: "alice", Content: "1"},
		{Author: "alice", Content: "2"},
		{Author: "bob", Content: "3"},
	}}
	d, _, b := newTestDispatcher(rt, history)

	d.Handle(context.Background(), officerMessage("$summary active"))

	out := receive(t, b)
	if rt.calls != 0 {
		t.Errorf("active tally should not call the model")
	}
	if out.Embed == nil {
		t.Fatal("expected an embed")
	}
	lines := strings.Split(out.Embed.Description, "\n")
	if !strings.Contains(lines[0], "alice") || !strings.Contains(lines[0], "2 messages") {
		t.Errorf("ranking wrong: %q", out.Embed.Description)
	}
}

func TestTopicsUsesTopicPrompt(t *testing.T) {
	rt := &mockRuntime{output: "1. raids\n2. trading"}
	history := &fakeHistory{messages: []platform.HistoryMessage{
		{Author: "alice", Content: "raid tonight?"},
	}}
	d, _, b := newTestDispatcher(rt, history)

	d.Handle(context.Background(), officerMessage("$summary topics"))

	out := receive(t, b)
	if out.Embed == nil || out.Embed.Description != "1. raids\n2. trading" {
		t.Errorf("embed = %+v", out.Embed)
	}
}

func TestGatherRespectsSpan(t *testing.T) {
	history := &fakeHistory{messages: []platform.HistoryMessage{
		{Author: "a", Content: "fresh", Timestamp: time.Now().Add(-time.Hour)},
		{Author: "a", Content: "stale", Timestamp: time.Now().Add(-72 * time.Hour)},
	}}
	d, _, _ := newTestDispatcher(&mockRuntime{}, history)

	got := d.Gather("ch-1", 24*time.Hour, 100)
	if len(got) != 1 || got[0].Content != "fresh" {
		t.Errorf("Gather = %+v", got)
	}
}
