package discord

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Nanomace/Nyx/internal/bus"
	"github.com/Nanomace/Nyx/internal/platform"
)

type fakeSession struct {
	selfID string

	sentText    map[string][]string
	sentEmbeds  map[string][]*discordgo.MessageEmbed
	sentComplex map[string][]*discordgo.MessageSend

	history     []*discordgo.Message
	historyErr  error
	historyReqs []int

	channels       []*discordgo.Channel
	createdChans   []discordgo.GuildChannelCreateData
	deletedChans   []string
	roles          []*discordgo.Role
	rolesAdded     []string
	membersRemoved []string
	dmChannels     map[string]string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		selfID:      "bot-id",
		sentText:    make(map[string][]string),
		sentEmbeds:  make(map[string][]*discordgo.MessageEmbed),
		sentComplex: make(map[string][]*discordgo.MessageSend),
		dmChannels:  make(map[string]string),
	}
}

func (f *fakeSession) Open() error  { return nil }
func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) AddHandler(handler interface{}) func() { return func() {} }

func (f *fakeSession) SelfID() string { return f.selfID }

func (f *fakeSession) ChannelMessageSend(channelID, content string) error {
	f.sentText[channelID] = append(f.sentText[channelID], content)
	return nil
}

func (f *fakeSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	f.sentEmbeds[channelID] = append(f.sentEmbeds[channelID], embed)
	return nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) error {
	f.sentComplex[channelID] = append(f.sentComplex[channelID], data)
	return nil
}

func (f *fakeSession) UserChannelCreate(userID string) (string, error) {
	id, ok := f.dmChannels[userID]
	if !ok {
		return "", fmt.Errorf("dms closed")
	}
	return id, nil
}

func (f *fakeSession) ChannelMessages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	f.historyReqs = append(f.historyReqs, limit)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if beforeID != "" {
		return nil, nil
	}
	if limit > len(f.history) {
		limit = len(f.history)
	}
	return f.history[:limit], nil
}

func (f *fakeSession) Channel(channelID string) (*discordgo.Channel, error) {
	for _, ch := range f.channels {
		if ch.ID == channelID {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("unknown channel")
}

func (f *fakeSession) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return f.channels, nil
}

func (f *fakeSession) GuildChannelCreate(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.createdChans = append(f.createdChans, data)
	return &discordgo.Channel{ID: "created-ch", Name: data.Name}, nil
}

func (f *fakeSession) ChannelDelete(channelID string) error {
	f.deletedChans = append(f.deletedChans, channelID)
	return nil
}

func (f *fakeSession) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string) error {
	f.rolesAdded = append(f.rolesAdded, userID+"/"+roleID)
	return nil
}

func (f *fakeSession) GuildMemberDelete(guildID, userID string) error {
	f.membersRemoved = append(f.membersRemoved, userID)
	return nil
}

func newTestAdapter(t *testing.T, session *fakeSession) (*Adapter, *bus.MessageBus) {
	t.Helper()
	b := bus.NewMessageBus(10)
	cfg := Config{
		Token:            "token",
		RecruitPrefix:    "recruit-",
		RecruitViewRoles: []string{"Officer"},
	}
	a, err := NewWithFactory(cfg, b, func(token string) (Session, error) {
		return session, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	a.SetSession(session)
	return a, b
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, bus.NewMessageBus(1)); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestHandleInboundMapsFields(t *testing.T) {
	session := newFakeSession()
	session.channels = []*discordgo.Channel{{ID: "ch-1", Name: "generals"}}
	session.roles = []*discordgo.Role{
		{ID: "r1", Name: "Officer"},
		{ID: "r2", Name: "Member"},
	}
	a, b := newTestAdapter(t, session)

	ts := time.Now()
	a.HandleInbound(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		GuildID:   "guild",
		ChannelID: "ch-1",
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		Member:    &discordgo.Member{Nick: "Ali", Roles: []string{"r1"}},
		Content:   "hello",
		Timestamp: ts,
	}})

	select {
	case msg := <-b.Inbound:
		if msg.Platform != PlatformName || msg.ChannelID != "ch-1" {
			t.Errorf("msg = %+v", msg)
		}
		if msg.ChannelName != "generals" {
			t.Errorf("ChannelName = %q", msg.ChannelName)
		}
		if msg.DisplayName != "Ali" || msg.AuthorName != "alice" {
			t.Errorf("names = %q / %q", msg.DisplayName, msg.AuthorName)
		}
		if len(msg.Roles) != 1 || msg.Roles[0] != "Officer" {
			t.Errorf("Roles = %v", msg.Roles)
		}
		if msg.DM {
			t.Error("guild message flagged as DM")
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
	}
}

func TestHandleInboundDropsSelfAndFlagsDM(t *testing.T) {
	session := newFakeSession()
	a, b := newTestAdapter(t, session)

	a.HandleInbound(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:     "m1",
		Author: &discordgo.User{ID: "bot-id", Username: "nyx"},
	}})
	select {
	case msg := <-b.Inbound:
		t.Fatalf("self message not dropped: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	a.HandleInbound(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m2",
		ChannelID: "dm-1",
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		Content:   "hi",
	}})
	select {
	case msg := <-b.Inbound:
		if !msg.DM {
			t.Error("guildless message not flagged as DM")
		}
	case <-time.After(time.Second):
		t.Fatal("dm not delivered")
	}
}

func TestSendDirectMessage(t *testing.T) {
	session := newFakeSession()
	session.dmChannels["u1"] = "dm-1"
	a, _ := newTestAdapter(t, session)

	_ = a.Send(bus.OutboundMessage{DirectTo: "u1", Content: "hello"})

	if got := session.sentText["dm-1"]; len(got) != 1 || got[0] != "hello" {
		t.Errorf("sentText = %v", session.sentText)
	}
}

func TestSendDirectMessageClosedDMsAbsorbed(t *testing.T) {
	session := newFakeSession()
	a, _ := newTestAdapter(t, session)

	if err := a.Send(bus.OutboundMessage{DirectTo: "nobody", Content: "hello"}); err != nil {
		t.Errorf("closed DMs must not surface an error, got %v", err)
	}
}

func TestSendRoleMentionUsesAllowedMentions(t *testing.T) {
	session := newFakeSession()
	a, _ := newTestAdapter(t, session)

	_ = a.Send(bus.OutboundMessage{ChannelID: "ch", Content: "<@&r1>", MentionRoles: true})

	sent := session.sentComplex["ch"]
	if len(sent) != 1 {
		t.Fatalf("sentComplex = %v", sent)
	}
	if sent[0].AllowedMentions == nil || len(sent[0].AllowedMentions.Parse) != 1 {
		t.Errorf("AllowedMentions = %+v", sent[0].AllowedMentions)
	}
}

func TestSendEmbedConversion(t *testing.T) {
	session := newFakeSession()
	a, _ := newTestAdapter(t, session)

	_ = a.Send(bus.OutboundMessage{ChannelID: "ch", Embed: &platform.Embed{
		Title:       "T",
		Description: "D",
		Color:       0x123456,
		Fields:      []platform.EmbedField{{Name: "n", Value: "v", Inline: true}},
		Footer:      "foot",
	}})

	sent := session.sentEmbeds["ch"]
	if len(sent) != 1 {
		t.Fatalf("sentEmbeds = %v", sent)
	}
	e := sent[0]
	if e.Title != "T" || e.Description != "D" || e.Color != 0x123456 {
		t.Errorf("embed = %+v", e)
	}
	if len(e.Fields) != 1 || !e.Fields[0].Inline {
		t.Errorf("fields = %+v", e.Fields)
	}
	if e.Footer == nil || e.Footer.Text != "foot" {
		t.Errorf("footer = %+v", e.Footer)
	}
}

func TestFetchHistoryPaginates(t *testing.T) {
	session := newFakeSession()
	for i := 0; i < 100; i++ {
		session.history = append(session.history, &discordgo.Message{
			ID:      fmt.Sprintf("m%d", i),
			Author:  &discordgo.User{Username: "alice"},
			Content: fmt.Sprintf("c%d", i),
		})
	}
	a, _ := newTestAdapter(t, session)

	got := a.FetchHistory("ch", 150)
	if len(got) != 100 {
		t.Errorf("fetched %d messages", len(got))
	}
	// First page capped at 100, second page stops on empty result.
	if len(session.historyReqs) != 2 || session.historyReqs[0] != 100 {
		t.Errorf("historyReqs = %v", session.historyReqs)
	}
}

func TestFetchHistoryPartialOnError(t *testing.T) {
	session := newFakeSession()
	session.historyErr = fmt.Errorf("transport down")
	a, _ := newTestAdapter(t, session)

	got := a.FetchHistory("ch", 50)
	if len(got) != 0 {
		t.Errorf("expected empty partial result, got %d", len(got))
	}
}

func TestEnsureRecruitChannelReusesExisting(t *testing.T) {
	session := newFakeSession()
	session.channels = []*discordgo.Channel{
		{ID: "existing", Name: "recruit-alice", Type: discordgo.ChannelTypeGuildText},
	}
	a, _ := newTestAdapter(t, session)

	id, err := a.EnsureRecruitChannel("guild", "u1", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if id != "existing" {
		t.Errorf("id = %q, want existing channel", id)
	}
	if len(session.createdChans) != 0 {
		t.Errorf("channel created despite existing one")
	}
}

func TestEnsureRecruitChannelCreatesWithOverwrites(t *testing.T) {
	session := newFakeSession()
	session.roles = []*discordgo.Role{{ID: "officer-id", Name: "Officer"}}
	a, _ := newTestAdapter(t, session)

	id, err := a.EnsureRecruitChannel("guild", "u1", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if id != "created-ch" {
		t.Errorf("id = %q", id)
	}
	if len(session.createdChans) != 1 {
		t.Fatalf("createdChans = %v", session.createdChans)
	}
	data := session.createdChans[0]
	if data.Name != "recruit-alice" {
		t.Errorf("channel name = %q", data.Name)
	}
	// @everyone deny + applicant allow + officer role allow
	if len(data.PermissionOverwrites) != 3 {
		t.Errorf("overwrites = %d", len(data.PermissionOverwrites))
	}
}

func TestAddRoleByName(t *testing.T) {
	session := newFakeSession()
	session.roles = []*discordgo.Role{{ID: "member-id", Name: "Member"}}
	a, _ := newTestAdapter(t, session)

	if err := a.AddRoleByName("guild", "u1", "member"); err != nil {
		t.Fatal(err)
	}
	if len(session.rolesAdded) != 1 || session.rolesAdded[0] != "u1/member-id" {
		t.Errorf("rolesAdded = %v", session.rolesAdded)
	}

	if err := a.AddRoleByName("guild", "u1", "Nonexistent"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestRoleMentionByName(t *testing.T) {
	session := newFakeSession()
	session.roles = []*discordgo.Role{{ID: "officer-id", Name: "Officer"}}
	a, _ := newTestAdapter(t, session)

	if got := a.RoleMentionByName("guild", "officer"); got != "<@&officer-id>" {
		t.Errorf("RoleMentionByName = %q", got)
	}
	if got := a.RoleMentionByName("guild", "missing"); got != "" {
		t.Errorf("unknown role mention = %q", got)
	}
}

func TestWrapForbidden(t *testing.T) {
	restErr := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	if err := wrapForbidden(restErr); !errors.Is(err, platform.ErrForbidden) {
		t.Errorf("403 not mapped to ErrForbidden: %v", err)
	}

	plain := fmt.Errorf("other failure")
	if err := wrapForbidden(plain); errors.Is(err, platform.ErrForbidden) {
		t.Errorf("non-403 mapped to ErrForbidden")
	}
}
