package platform

import (
	"errors"
	"time"
)

// ErrForbidden marks a send or management call rejected for missing
// permissions. Callers treat it as log-and-continue, never fatal.
var ErrForbidden = errors.New("platform: insufficient permissions")

// Embed is a platform-neutral structured message card.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed colors, matching the palette the bot uses everywhere.
const (
	ColorRed    = 0xED4245
	ColorGreen  = 0x57F287
	ColorBlue   = 0x3498DB
	ColorTeal   = 0x1ABC9C
	ColorPurple = 0x5865F2
	ColorWhite  = 0xFFFFFF
)

// HistoryMessage is one entry from a channel history fetch.
type HistoryMessage struct {
	Author    string // display name
	Content   string
	Timestamp time.Time
}

// Actions is the management surface of the chat platform beyond plain
// message delivery (which flows through the bus). Implementations are
// best-effort where noted; see each method.
type Actions interface {
	// FetchHistory returns up to limit recent messages, newest first.
	// Transport faults are absorbed: after a short delay whatever was
	// retrieved so far is returned, possibly nothing.
	FetchHistory(channelID string, limit int) []HistoryMessage

	// EnsureRecruitChannel returns the ID of the private interview channel
	// for the applicant, creating it when absent.
	EnsureRecruitChannel(guildID, applicantID, applicantName string) (string, error)

	DeleteChannel(channelID, reason string) error

	// AddRoleByName grants the named role to the member.
	AddRoleByName(guildID, userID, roleName string) error

	KickMember(guildID, userID, reason string) error

	// RoleMentionByName returns the mention string for the named role, or
	// "" when the role cannot be resolved.
	RoleMentionByName(guildID, roleName string) string
}
