package discord

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Nanomace/Nyx/internal/bus"
	"github.com/Nanomace/Nyx/internal/platform"
)

const PlatformName = "discord"

// historyPageSize is the Discord API cap per history request.
const historyPageSize = 100

// Session is the slice of the Discord API the adapter needs. It exists so
// tests can inject a fake instead of a live gateway connection.
type Session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	SelfID() string
	ChannelMessageSend(channelID, content string) error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) error
	UserChannelCreate(userID string) (string, error)
	ChannelMessages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error)
	Channel(channelID string) (*discordgo.Channel, error)
	GuildChannels(guildID string) ([]*discordgo.Channel, error)
	GuildChannelCreate(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	ChannelDelete(channelID string) error
	GuildRoles(guildID string) ([]*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string) error
	GuildMemberDelete(guildID, userID string) error
}

// sessionWrapper adapts *discordgo.Session to the Session interface.
type sessionWrapper struct {
	s *discordgo.Session
}

func (w *sessionWrapper) Open() error  { return w.s.Open() }
func (w *sessionWrapper) Close() error { return w.s.Close() }

func (w *sessionWrapper) AddHandler(handler interface{}) func() {
	return w.s.AddHandler(handler)
}

func (w *sessionWrapper) SelfID() string {
	if w.s.State != nil && w.s.State.User != nil {
		return w.s.State.User.ID
	}
	return ""
}

func (w *sessionWrapper) ChannelMessageSend(channelID, content string) error {
	_, err := w.s.ChannelMessageSend(channelID, content)
	return err
}

func (w *sessionWrapper) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := w.s.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func (w *sessionWrapper) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) error {
	_, err := w.s.ChannelMessageSendComplex(channelID, data)
	return err
}

func (w *sessionWrapper) UserChannelCreate(userID string) (string, error) {
	ch, err := w.s.UserChannelCreate(userID)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (w *sessionWrapper) ChannelMessages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	return w.s.ChannelMessages(channelID, limit, beforeID, "", "")
}

func (w *sessionWrapper) Channel(channelID string) (*discordgo.Channel, error) {
	return w.s.Channel(channelID)
}

func (w *sessionWrapper) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return w.s.GuildChannels(guildID)
}

func (w *sessionWrapper) GuildChannelCreate(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return w.s.GuildChannelCreateComplex(guildID, data)
}

func (w *sessionWrapper) ChannelDelete(channelID string) error {
	_, err := w.s.ChannelDelete(channelID)
	return err
}

func (w *sessionWrapper) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	return w.s.GuildRoles(guildID)
}

func (w *sessionWrapper) GuildMemberRoleAdd(guildID, userID, roleID string) error {
	return w.s.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (w *sessionWrapper) GuildMemberDelete(guildID, userID string) error {
	return w.s.GuildMemberDelete(guildID, userID)
}

// SessionFactory creates Session instances (allows mocking).
type SessionFactory func(token string) (Session, error)

var defaultSessionFactory SessionFactory = func(token string) (Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	return &sessionWrapper{s: s}, nil
}

// Config for the Discord adapter.
type Config struct {
	Token string
	// RecruitPrefix names private interview channels (prefix + applicant name).
	RecruitPrefix string
	// RecruitViewRoles are role names allowed to see interview channels.
	RecruitViewRoles []string
}

// Adapter connects a Discord gateway session to the message bus and
// implements platform.Actions.
type Adapter struct {
	cfg     Config
	bus     *bus.MessageBus
	session Session
	factory SessionFactory

	mu           sync.RWMutex
	roleNames    map[string]map[string]string // guild ID -> role ID -> name
	channelNames map[string]string
}

func New(cfg Config, b *bus.MessageBus) (*Adapter, error) {
	return NewWithFactory(cfg, b, defaultSessionFactory)
}

// NewWithFactory creates an Adapter with a custom session factory (for testing).
func NewWithFactory(cfg Config, b *bus.MessageBus, factory SessionFactory) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	return &Adapter{
		cfg:          cfg,
		bus:          b,
		factory:      factory,
		roleNames:    make(map[string]map[string]string),
		channelNames: make(map[string]string),
	}, nil
}

func (a *Adapter) Start() error {
	session, err := a.factory(a.cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	a.session = session

	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	log.Printf("[discord] gateway connected")
	return nil
}

func (a *Adapter) Stop() error {
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			return fmt.Errorf("close discord session: %w", err)
		}
	}
	log.Printf("[discord] stopped")
	return nil
}

// SetSession sets the session (for testing).
func (a *Adapter) SetSession(s Session) {
	a.session = s
}

func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.session.SelfID() {
		return
	}

	display := m.Author.Username
	var roleIDs []string
	if m.Member != nil {
		if m.Member.Nick != "" {
			display = m.Member.Nick
		}
		roleIDs = m.Member.Roles
	}

	a.bus.Inbound <- bus.InboundMessage{
		Platform:    PlatformName,
		MessageID:   m.ID,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		ChannelName: a.channelName(m.ChannelID),
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		DisplayName: display,
		Roles:       a.resolveRoleNames(m.GuildID, roleIDs),
		Content:     m.Content,
		Embeds:      fromDiscordEmbeds(m.Embeds),
		Timestamp:   m.Timestamp,
		DM:          m.GuildID == "",
	}
}

// HandleInbound exposes message ingestion for tests.
func (a *Adapter) HandleInbound(m *discordgo.MessageCreate) {
	a.handleMessage(m)
}

// Send delivers an outbound bus message. Failures are logged, not returned:
// the bus contract is fire-and-forget and no send failure is fatal.
func (a *Adapter) Send(msg bus.OutboundMessage) error {
	channelID := msg.ChannelID
	if msg.DirectTo != "" {
		dm, err := a.session.UserChannelCreate(msg.DirectTo)
		if err != nil {
			// Recipient has DMs closed; silently absorbed by design.
			log.Printf("[discord] open dm with %s failed: %v", msg.DirectTo, err)
			return nil
		}
		channelID = dm
	}

	if msg.Content != "" {
		var err error
		if msg.MentionRoles {
			err = a.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
				Content: msg.Content,
				AllowedMentions: &discordgo.MessageAllowedMentions{
					Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles},
				},
			})
		} else {
			err = a.session.ChannelMessageSend(channelID, msg.Content)
		}
		if err != nil {
			log.Printf("[discord] send to %s failed: %v", channelID, wrapForbidden(err))
			return nil
		}
	}

	if msg.Embed != nil {
		if err := a.session.ChannelMessageSendEmbed(channelID, toDiscordEmbed(msg.Embed)); err != nil {
			log.Printf("[discord] send embed to %s failed: %v", channelID, wrapForbidden(err))
		}
	}
	return nil
}

// FetchHistory pages through channel history, newest first. A transport
// fault ends the fetch: after a short delay whatever was collected is
// returned, per the best-effort contract.
func (a *Adapter) FetchHistory(channelID string, limit int) []platform.HistoryMessage {
	var out []platform.HistoryMessage
	beforeID := ""
	for len(out) < limit {
		page := limit - len(out)
		if page > historyPageSize {
			page = historyPageSize
		}
		msgs, err := a.session.ChannelMessages(channelID, page, beforeID)
		if err != nil {
			log.Printf("[discord] history fetch for %s failed after %d messages: %v", channelID, len(out), err)
			time.Sleep(time.Second)
			break
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			if m.Author == nil {
				continue
			}
			out = append(out, platform.HistoryMessage{
				Author:    m.Author.Username,
				Content:   m.Content,
				Timestamp: m.Timestamp,
			})
		}
		beforeID = msgs[len(msgs)-1].ID
	}
	return out
}

func (a *Adapter) EnsureRecruitChannel(guildID, applicantID, applicantName string) (string, error) {
	name := a.cfg.RecruitPrefix + strings.ToLower(applicantName)

	channels, err := a.session.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("list guild channels: %w", wrapForbidden(err))
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == name {
			return ch.ID, nil
		}
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{
			// @everyone shares the guild ID.
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    applicantID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		},
	}
	for _, roleName := range a.cfg.RecruitViewRoles {
		roleID, ok := a.roleIDByName(guildID, roleName)
		if !ok {
			continue
		}
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		})
	}

	ch, err := a.session.GuildChannelCreate(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", fmt.Errorf("create recruit channel: %w", wrapForbidden(err))
	}
	return ch.ID, nil
}

func (a *Adapter) DeleteChannel(channelID, reason string) error {
	if err := a.session.ChannelDelete(channelID); err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, wrapForbidden(err))
	}
	log.Printf("[discord] deleted channel %s (%s)", channelID, reason)
	return nil
}

func (a *Adapter) AddRoleByName(guildID, userID, roleName string) error {
	roleID, ok := a.roleIDByName(guildID, roleName)
	if !ok {
		return fmt.Errorf("role %q not found in guild %s", roleName, guildID)
	}
	if err := a.session.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
		return fmt.Errorf("add role %q to %s: %w", roleName, userID, wrapForbidden(err))
	}
	return nil
}

func (a *Adapter) KickMember(guildID, userID, reason string) error {
	if err := a.session.GuildMemberDelete(guildID, userID); err != nil {
		return fmt.Errorf("kick member %s: %w", userID, wrapForbidden(err))
	}
	log.Printf("[discord] kicked %s (%s)", userID, reason)
	return nil
}

func (a *Adapter) RoleMentionByName(guildID, roleName string) string {
	roleID, ok := a.roleIDByName(guildID, roleName)
	if !ok {
		return ""
	}
	return "<@&" + roleID + ">"
}

func (a *Adapter) channelName(channelID string) string {
	a.mu.RLock()
	name, ok := a.channelNames[channelID]
	a.mu.RUnlock()
	if ok {
		return name
	}

	ch, err := a.session.Channel(channelID)
	if err != nil || ch == nil {
		return ""
	}
	a.mu.Lock()
	a.channelNames[channelID] = ch.Name
	a.mu.Unlock()
	return ch.Name
}

func (a *Adapter) resolveRoleNames(guildID string, roleIDs []string) []string {
	if guildID == "" || len(roleIDs) == 0 {
		return nil
	}

	a.mu.RLock()
	byID, ok := a.roleNames[guildID]
	a.mu.RUnlock()
	if !ok {
		byID = a.refreshRoles(guildID)
	}

	names := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		if name, found := byID[id]; found {
			names = append(names, name)
		}
	}
	return names
}

func (a *Adapter) roleIDByName(guildID, name string) (string, bool) {
	a.mu.RLock()
	byID, ok := a.roleNames[guildID]
	a.mu.RUnlock()
	if !ok {
		byID = a.refreshRoles(guildID)
	}
	for id, have := range byID {
		if strings.EqualFold(have, name) {
			return id, true
		}
	}
	return "", false
}

func (a *Adapter) refreshRoles(guildID string) map[string]string {
	roles, err := a.session.GuildRoles(guildID)
	if err != nil {
		log.Printf("[discord] fetch roles for guild %s failed: %v", guildID, err)
		return nil
	}
	byID := make(map[string]string, len(roles))
	for _, r := range roles {
		byID[r.ID] = r.Name
	}
	a.mu.Lock()
	a.roleNames[guildID] = byID
	a.mu.Unlock()
	return byID
}

func wrapForbidden(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", platform.ErrForbidden, err)
	}
	return err
}

func toDiscordEmbed(e *platform.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return out
}

func fromDiscordEmbeds(embeds []*discordgo.MessageEmbed) []platform.Embed {
	if len(embeds) == 0 {
		return nil
	}
	out := make([]platform.Embed, 0, len(embeds))
	for _, e := range embeds {
		if e == nil {
			continue
		}
		pe := platform.Embed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		for _, f := range e.Fields {
			if f == nil {
				continue
			}
			pe.Fields = append(pe.Fields, platform.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		if e.Footer != nil {
			pe.Footer = e.Footer.Text
		}
		out = append(out, pe)
	}
	return out
}
