// Package recruit runs the application interview: a readiness gate, a
// fixed question sequence with a consent sub-gate on the first question,
// a concluding officer report, and the $accept/$reject decision flow.
// Applicant input is buffered and only committed as an answer after a
// quiet period, so multi-message answers arrive as one turn.
package recruit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Nanomace/Nyx/internal/bus"
	"github.com/Nanomace/Nyx/internal/config"
	"github.com/Nanomace/Nyx/internal/llm"
	"github.com/Nanomace/Nyx/internal/platform"
)

// Timings are the machine's pacing knobs, shortened in tests.
type Timings struct {
	// Poll is the watcher tick interval.
	Poll time.Duration
	// AnswerQuiet is how long the applicant must stay silent before the
	// buffered input is committed as an answer.
	AnswerQuiet time.Duration
	// WelcomePause separates the welcome embed from the readiness question.
	WelcomePause time.Duration
	// QuestionPause separates a readiness confirmation from question one.
	QuestionPause time.Duration
	// AdvancePause separates an acknowledgement from the next question.
	AdvancePause time.Duration
	// DeleteDelay is how long a decided interview channel lingers.
	DeleteDelay time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Poll:          time.Second,
		AnswerQuiet:   10 * time.Second,
		WelcomePause:  2 * time.Second,
		QuestionPause: time.Second,
		AdvancePause:  5 * time.Second,
		DeleteDelay:   30 * time.Second,
	}
}

var (
	readinessPositive = []string{
		"yes", "yeah", "yep", "yup", "y", "ready", "sure",
		"ok", "okay", "absolutely", "lets go", "let's go", "start",
	}
	readinessNegative = []string{"no", "not yet", "hold on", "wait", "stop", "later"}

	// Substring tokens; the committed consent text must contain one.
	consentTokens = []string{"yes", "i agree", "agree", "yep", "yeah", "y"}
)

type Machine struct {
	cfg     config.RecruitConfig
	store   *Store
	client  *llm.Client
	actions platform.Actions
	bus     *bus.MessageBus
	timings Timings
	ctx     context.Context
}

func NewMachine(cfg config.RecruitConfig, store *Store, client *llm.Client, actions platform.Actions, b *bus.MessageBus) *Machine {
	return &Machine{
		cfg:     cfg,
		store:   store,
		client:  client,
		actions: actions,
		bus:     b,
		timings: DefaultTimings(),
		ctx:     context.Background(),
	}
}

// SetTimings replaces the pacing knobs; call before any interview starts.
func (m *Machine) SetTimings(t Timings) {
	m.timings = t
}

// Start binds the machine's watchers to the given lifetime context.
func (m *Machine) Start(ctx context.Context) {
	m.ctx = ctx
}

// Handle offers an inbound message to the machine. It returns true when
// the message belongs to an interview flow and must not reach the rest
// of the dispatcher.
func (m *Machine) Handle(ctx context.Context, msg bus.InboundMessage) bool {
	content := strings.TrimSpace(msg.Content)
	lower := strings.ToLower(content)

	if msg.DM {
		if !m.cfg.TestMode {
			return false
		}
		if strings.HasPrefix(lower, "$apply") {
			m.sendText(msg.Platform, msg.ChannelID, "Test mode: the interview will run right here in this conversation.")
			m.StartInterview(msg.Platform, msg.ChannelID, msg.GuildID, msg.AuthorID, msg.DisplayName, true)
			return true
		}
		if strings.HasPrefix(lower, "$accept") {
			m.decide(msg, true)
			return true
		}
		if strings.HasPrefix(lower, "$reject") {
			m.decide(msg, false)
			return true
		}
		if m.store.Exists(msg.ChannelID) {
			if m.store.Buffer(msg.ChannelID, msg.AuthorID, content) {
				m.ensureWatcher(msg.Platform, msg.ChannelID)
			}
			return true
		}
		return false
	}

	if strings.HasPrefix(lower, "$apply") {
		m.apply(msg)
		return true
	}

	inRecruit := m.store.Exists(msg.ChannelID) || m.store.Concluded(msg.ChannelID) ||
		(msg.ChannelName != "" && strings.HasPrefix(msg.ChannelName, m.cfg.ChannelPrefix))
	if !inRecruit {
		return false
	}

	switch {
	case strings.HasPrefix(lower, "$accept"):
		m.decide(msg, true)
	case strings.HasPrefix(lower, "$reject"):
		m.decide(msg, false)
	default:
		if m.store.Buffer(msg.ChannelID, msg.AuthorID, content) {
			m.ensureWatcher(msg.Platform, msg.ChannelID)
		}
	}
	return true
}

func (m *Machine) apply(msg bus.InboundMessage) {
	if m.cfg.LandingChannelID != "" && msg.ChannelID != m.cfg.LandingChannelID {
		m.sendText(msg.Platform, msg.ChannelID, "Please use this command in the recruitment channel.")
		return
	}

	if m.cfg.TestMode {
		m.sendText(msg.Platform, msg.ChannelID, "Test mode: running the interview here instead of a private channel.")
		m.StartInterview(msg.Platform, msg.ChannelID, msg.GuildID, msg.AuthorID, msg.DisplayName, false)
		return
	}

	channelID, err := m.actions.EnsureRecruitChannel(msg.GuildID, msg.AuthorID, msg.DisplayName)
	if err != nil {
		log.Printf("[recruit] create interview channel for %s failed: %v", msg.DisplayName, err)
		m.sendText(msg.Platform, msg.ChannelID, "I couldn't create your interview channel. Please contact an officer.")
		return
	}

	m.sendText(msg.Platform, msg.ChannelID, fmt.Sprintf("<@%s> your interview is ready in <#%s>.", msg.AuthorID, channelID))
	m.StartInterview(msg.Platform, channelID, msg.GuildID, msg.AuthorID, msg.DisplayName, false)
}

// StartInterview opens a session in the channel and kicks off the
// readiness gate after a short pause.
func (m *Machine) StartInterview(platformName, channelID, guildID, applicantID, applicantName string, dmMode bool) {
	m.store.Create(channelID, guildID, applicantID, applicantName, dmMode)
	log.Printf("[recruit] interview started for %s in %s", applicantName, channelID)

	m.sendEmbed(platformName, channelID, platform.Embed{
		Title: "Welcome to the Interview",
		Description: fmt.Sprintf("Hi <@%s>! I'm Nyx, and I'll guide you through a short application interview.\n"+
			"There are %d questions. Take your time with each answer.", applicantID, len(m.cfg.Questions)),
		Color: platform.ColorPurple,
	})

	go func() {
		if !m.sleep(m.timings.WelcomePause) {
			return
		}
		m.askReadiness(platformName, channelID)
	}()
}

func (m *Machine) askReadiness(platformName, channelID string) {
	applicantID, _, ok := m.store.Applicant(channelID)
	if !ok {
		return
	}
	m.sendEmbed(platformName, channelID, platform.Embed{
		Title:       "Before We Begin",
		Description: fmt.Sprintf("Are you ready to start, <@%s>? Just say the word when you are.", applicantID),
		Color:       platform.ColorTeal,
	})
	m.store.ResetPrompt(channelID)
	m.startReadinessWatcher(platformName, channelID)
}

// startReadinessWatcher polls the buffer and flushes any input as a
// readiness reply. Positive moves to question one; negative or
// unrecognized re-prompts and stays.
func (m *Machine) startReadinessWatcher(platformName, channelID string) {
	ctx, cancel := context.WithCancel(m.ctx)
	gen := m.store.SetWatcher(channelID, cancel)

	go func() {
		defer m.store.ReleaseWatcher(channelID, gen)

		ticker := time.NewTicker(m.timings.Poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !m.store.Exists(channelID) {
				return
			}
			text, ok := m.store.TakeBuffer(channelID)
			if !ok {
				continue
			}
			switch {
			case matchesToken(text, readinessNegative):
				m.sendText(platformName, channelID, "That's totally fine, take your time. Let me know whenever you're ready.")
				m.store.TouchPrompt(channelID)
			case matchesToken(text, readinessPositive):
				m.store.SetIndex(channelID, 0)
				if !m.sleep(m.timings.QuestionPause) {
					return
				}
				m.askQuestion(platformName, channelID)
				return
			default:
				m.sendText(platformName, channelID, "Whenever you're ready, just say \"yes\" and we'll begin.")
				m.store.TouchPrompt(channelID)
			}
		}
	}()
}

func (m *Machine) askQuestion(platformName, channelID string) {
	index := m.store.Index(channelID)
	if index < 0 {
		return
	}
	if index >= len(m.cfg.Questions) {
		m.conclude(platformName, channelID)
		return
	}

	desc := m.cfg.Questions[index]
	if index == 0 {
		if m.cfg.ConsentLink != "" {
			desc += "\n\n" + m.cfg.ConsentLink
		}
		desc += "\n\nPlease answer \"yes\" to continue."
	} else {
		desc += "\n\nAnswer in your own words; multiple messages are fine."
	}

	m.sendEmbed(platformName, channelID, platform.Embed{
		Title:       fmt.Sprintf("Question %d of %d", index+1, len(m.cfg.Questions)),
		Description: desc,
		Color:       platform.ColorBlue,
	})
	m.store.ResetPrompt(channelID)
	m.startAnswerWatcher(platformName, channelID)
}

// startAnswerWatcher commits the buffered input once the quiet window
// has elapsed. Question zero additionally requires an affirmative
// consent token; a refusal re-prompts without advancing.
func (m *Machine) startAnswerWatcher(platformName, channelID string) {
	ctx, cancel := context.WithCancel(m.ctx)
	gen := m.store.SetWatcher(channelID, cancel)

	go func() {
		defer m.store.ReleaseWatcher(channelID, gen)

		ticker := time.NewTicker(m.timings.Poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !m.store.Exists(channelID) {
				return
			}
			text, index, ok := m.store.TakeBufferAfter(channelID, m.timings.AnswerQuiet)
			if !ok {
				continue
			}
			if index < 0 || index >= len(m.cfg.Questions) {
				return
			}

			if index == 0 && !consentGiven(text) {
				m.sendEmbed(platformName, channelID, platform.Embed{
					Title:       "Consent Required",
					Description: "I need an explicit \"yes\" to the Code of Conduct before we can continue.",
					Color:       platform.ColorRed,
				})
				m.store.TouchPrompt(channelID)
				continue
			}

			_, applicantName, _ := m.store.Applicant(channelID)
			ack := m.client.Acknowledge(ctx, text,
				fmt.Sprintf("Question: %s\nApplicant: %s", m.cfg.Questions[index], applicantName))
			m.sendEmbed(platformName, channelID, platform.Embed{
				Description: ack,
				Color:       platform.ColorTeal,
			})

			m.store.CommitAnswer(channelID, text)
			log.Printf("[recruit] answer %d committed in %s", index+1, channelID)

			if !m.sleep(m.timings.AdvancePause) {
				return
			}
			m.askQuestion(platformName, channelID)
			return
		}
	}()
}

// conclude closes the interview, delivers the officer report, and
// discards the session state. The applicant stays on record for the
// $accept/$reject decision.
func (m *Machine) conclude(platformName, channelID string) {
	_, applicantName, ok := m.store.Applicant(channelID)
	if !ok {
		return
	}
	answers := m.store.Answers(channelID)
	guildID := m.store.GuildID(channelID)
	dmMode := m.store.IsDM(channelID)

	m.sendEmbed(platformName, channelID, platform.Embed{
		Title: "Application Complete",
		Description: fmt.Sprintf("Thanks, %s! That's everything I need. "+
			"An officer will review your application and follow up soon.", applicantName),
		Color: platform.ColorGreen,
	})

	report := BuildReport(m.cfg.Questions, answers, applicantName)

	if m.cfg.TestMode || dmMode {
		report.Footer = "Test mode preview; in production this report goes to the officer channel."
		m.sendEmbed(platformName, channelID, report)
	} else if m.cfg.OfficerChannelID != "" {
		mention := ""
		if len(m.cfg.OfficerRoles) > 0 {
			mention = m.actions.RoleMentionByName(guildID, m.cfg.OfficerRoles[0])
		}
		m.bus.Outbound <- bus.OutboundMessage{
			Platform:     platformName,
			ChannelID:    m.cfg.OfficerChannelID,
			Content:      mention,
			Embed:        &report,
			MentionRoles: mention != "",
		}
	}

	m.store.Conclude(channelID)
	log.Printf("[recruit] interview concluded for %s in %s", applicantName, channelID)
}

// decide applies an officer $accept or $reject.
func (m *Machine) decide(msg bus.InboundMessage, accept bool) {
	if !msg.HasAnyRole(m.cfg.OfficerRoles...) {
		m.sendText(msg.Platform, msg.ChannelID, "You don't have permission to use this command.")
		return
	}

	applicantID, applicantName, ok := m.store.Applicant(msg.ChannelID)
	if !ok {
		m.sendText(msg.Platform, msg.ChannelID, "I couldn't find an applicant for this channel.")
		return
	}
	guildID := m.store.GuildID(msg.ChannelID)

	if m.cfg.TestMode || m.store.IsDM(msg.ChannelID) {
		if accept {
			m.sendText(msg.Platform, msg.ChannelID, fmt.Sprintf(
				"Test mode: I would accept %s, grant the %s role, log the decision, and delete this channel.",
				applicantName, m.cfg.MemberRole))
		} else {
			m.sendText(msg.Platform, msg.ChannelID, fmt.Sprintf(
				"Test mode: I would reject %s, log the decision, remove them from the server, and delete this channel.",
				applicantName))
		}
		m.store.Clear(msg.ChannelID)
		return
	}

	if accept {
		if err := m.actions.AddRoleByName(guildID, applicantID, m.cfg.MemberRole); err != nil {
			log.Printf("[recruit] grant %s role to %s failed: %v", m.cfg.MemberRole, applicantName, err)
		}
		m.logDecision(msg, fmt.Sprintf("%s was **accepted** by %s.", applicantName, msg.DisplayName), platform.ColorGreen)
		m.sendEmbed(msg.Platform, msg.ChannelID, platform.Embed{
			Title:       "Application Accepted",
			Description: fmt.Sprintf("Welcome aboard, <@%s>! You've been granted the %s role.", applicantID, m.cfg.MemberRole),
			Color:       platform.ColorGreen,
		})
	} else {
		m.logDecision(msg, fmt.Sprintf("%s was **rejected** by %s.", applicantName, msg.DisplayName), platform.ColorRed)
		m.sendEmbed(msg.Platform, msg.ChannelID, platform.Embed{
			Title:       "Application Rejected",
			Description: fmt.Sprintf("Thank you for your interest, %s. Unfortunately your application was not accepted at this time.", applicantName),
			Color:       platform.ColorRed,
		})
		if err := m.actions.KickMember(guildID, applicantID, "application rejected"); err != nil {
			log.Printf("[recruit] kick %s failed: %v", applicantName, err)
		}
	}

	verdict := "rejected"
	if accept {
		verdict = "accepted"
	}
	log.Printf("[recruit] %s %s by %s", applicantName, verdict, msg.DisplayName)

	m.store.Clear(msg.ChannelID)

	channelID := msg.ChannelID
	time.AfterFunc(m.timings.DeleteDelay, func() {
		if err := m.actions.DeleteChannel(channelID, "interview closed"); err != nil {
			log.Printf("[recruit] delete interview channel %s failed: %v", channelID, err)
		}
	})
}

func (m *Machine) logDecision(msg bus.InboundMessage, description string, color int) {
	if m.cfg.OfficerChannelID == "" {
		return
	}
	m.bus.Outbound <- bus.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: m.cfg.OfficerChannelID,
		Embed: &platform.Embed{
			Title:       "Recruitment Decision",
			Description: description,
			Color:       color,
		},
	}
}

// ensureWatcher restarts the stage-appropriate watcher when none is
// running, so buffered input never sits unwatched.
func (m *Machine) ensureWatcher(platformName, channelID string) {
	if m.store.HasWatcher(channelID) {
		return
	}
	if m.store.Index(channelID) < 0 {
		m.startReadinessWatcher(platformName, channelID)
	} else {
		m.startAnswerWatcher(platformName, channelID)
	}
}

// sleep pauses for d, returning false when the machine context ends first.
func (m *Machine) sleep(d time.Duration) bool {
	select {
	case <-m.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (m *Machine) sendText(platformName, channelID, content string) {
	m.bus.Outbound <- bus.OutboundMessage{
		Platform:  platformName,
		ChannelID: channelID,
		Content:   content,
	}
}

func (m *Machine) sendEmbed(platformName, channelID string, embed platform.Embed) {
	m.bus.Outbound <- bus.OutboundMessage{
		Platform:  platformName,
		ChannelID: channelID,
		Embed:     &embed,
	}
}

// matchesToken reports whether the cleaned text equals one of the tokens
// or starts with a token followed by a space or "!". Leading "!" and
// whitespace are stripped first. A token must end at a word boundary:
// "ready when you are" matches, "you there?" does not.
func matchesToken(text string, tokens []string) bool {
	s := strings.TrimLeft(strings.ToLower(strings.TrimSpace(text)), "! ")
	for _, tok := range tokens {
		if s == tok || strings.HasPrefix(s, tok+" ") || strings.HasPrefix(s, tok+"!") {
			return true
		}
	}
	return false
}

func consentGiven(text string) bool {
	s := strings.ToLower(text)
	for _, tok := range consentTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
