package bus

import (
	"strings"
	"time"

	"github.com/Nanomace/Nyx/internal/platform"
)

// InboundMessage is a chat message delivered by a platform adapter.
type InboundMessage struct {
	Platform    string
	MessageID   string
	GuildID     string
	ChannelID   string
	ChannelName string
	AuthorID    string
	AuthorName  string
	DisplayName string
	Roles       []string // role display names of the author
	Content     string
	Embeds      []platform.Embed
	Timestamp   time.Time
	DM          bool
}

func (m *InboundMessage) SessionKey() string {
	return m.Platform + ":" + m.ChannelID
}

// HasAnyRole reports whether the author holds any of the named roles.
// Role names are compared case-insensitively.
func (m *InboundMessage) HasAnyRole(names ...string) bool {
	for _, have := range m.Roles {
		for _, want := range names {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// OutboundMessage is a send request routed to a platform adapter.
// Exactly one destination applies: DirectTo for a private message,
// otherwise ChannelID.
type OutboundMessage struct {
	Platform  string
	ChannelID string
	DirectTo  string // user ID for a direct message
	Content   string
	Embed     *platform.Embed
	// MentionRoles allows role mentions in Content (moderator pings).
	MentionRoles bool
}
