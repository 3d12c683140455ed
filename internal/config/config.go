package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 2048
	DefaultBufSize   = 100

	DefaultRecruitPrefix = "recruit-"
	DefaultMemberRole    = "Member"
	DefaultConsentLink   = "https://www.athenpaladins.org/forums/viewtopic.php?t=69"

	DefaultRulesFile    = "rules.txt"
	DefaultGuidanceFile = "moderationguide.txt"
	DefaultQuotesFile   = "wisdom.txt"
)

// DefaultQuestions is the fixed interview sequence. The first question
// carries the mandatory consent gate on the code of conduct.
var DefaultQuestions = []string{
	"Do you agree to our Code of Conduct?",
	"What do you do if someone kills a mob you were waiting for?",
	"What do you do if killed by a fellow clan member?",
	"What do you do if you get offended in org chat?",
	"Do you have any questions for me or about the organization?",
}

// DefaultSummaryRoles may invoke $summary commands.
var DefaultSummaryRoles = []string{"officer", "general"}

// DefaultIgnoreNames are names that exempt a message from moderation
// entirely when they appear in its content.
var DefaultIgnoreNames = []string{"Macer", "Peacehammer"}

type Config struct {
	Discord    DiscordConfig    `json:"discord"`
	Provider   ProviderConfig   `json:"provider"`
	Agent      AgentConfig      `json:"agent"`
	Watch      WatchConfig      `json:"watch"`
	Moderation ModerationConfig `json:"moderation"`
	Summary    SummaryConfig    `json:"summary"`
	Recruit    RecruitConfig    `json:"recruit"`
	Corpus     CorpusConfig     `json:"corpus"`
	Digests    []DigestJob      `json:"digests,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type AgentConfig struct {
	Workspace string `json:"workspace"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens"`
}

// WatchConfig names the channels whose messages are cached for summaries.
type WatchConfig struct {
	GeneralsChannelID string `json:"generalsChannelId"`
	OfficerChannelID  string `json:"officerChannelId"`
}

type ModerationConfig struct {
	ChannelID       string   `json:"channelId"`
	TargetAuthor    string   `json:"targetAuthor"`
	ModeratorRoleID string   `json:"moderatorRoleId"`
	IgnoreNames     []string `json:"ignoreNames,omitempty"`
}

type SummaryConfig struct {
	AllowedRoles []string `json:"allowedRoles,omitempty"`
}

type RecruitConfig struct {
	TestMode         bool     `json:"testMode"`
	LandingChannelID string   `json:"landingChannelId"`
	OfficerChannelID string   `json:"officerChannelId"`
	ChannelPrefix    string   `json:"channelPrefix,omitempty"`
	OfficerRoles     []string `json:"officerRoles,omitempty"`
	MemberRole       string   `json:"memberRole,omitempty"`
	Questions        []string `json:"questions,omitempty"`
	ConsentLink      string   `json:"consentLink,omitempty"`
}

type CorpusConfig struct {
	RulesFile    string `json:"rulesFile,omitempty"`
	GuidanceFile string `json:"guidanceFile,omitempty"`
	QuotesFile   string `json:"quotesFile,omitempty"`
}

// DigestJob schedules an automatic channel summary.
type DigestJob struct {
	Name      string `json:"name"`
	Expr      string `json:"expr"` // cron expression with seconds field
	ChannelID string `json:"channelId"`
	Window    string `json:"window"` // "daily" or "weekly"
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Agent: AgentConfig{
			Workspace: filepath.Join(home, ".nyx", "workspace"),
			Model:     DefaultModel,
			MaxTokens: DefaultMaxTokens,
		},
		Provider: ProviderConfig{},
		Moderation: ModerationConfig{
			IgnoreNames: append([]string(nil), DefaultIgnoreNames...),
		},
		Summary: SummaryConfig{
			AllowedRoles: append([]string(nil), DefaultSummaryRoles...),
		},
		Recruit: RecruitConfig{
			TestMode:      true,
			ChannelPrefix: DefaultRecruitPrefix,
			OfficerRoles:  []string{"Officer", "General"},
			MemberRole:    DefaultMemberRole,
			ConsentLink:   DefaultConsentLink,
			Questions:     append([]string(nil), DefaultQuestions...),
		},
		Corpus: CorpusConfig{
			RulesFile:    DefaultRulesFile,
			GuidanceFile: DefaultGuidanceFile,
			QuotesFile:   DefaultQuotesFile,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".nyx")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("NYX_DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if key := os.Getenv("NYX_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_AUTH_TOKEN"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("NYX_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if workspace := os.Getenv("NYX_WORKSPACE"); workspace != "" {
		cfg.Agent.Workspace = workspace
	}

	applyFallbacks(cfg)
	return cfg, nil
}

func applyFallbacks(cfg *Config) {
	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = DefaultConfig().Agent.Workspace
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = DefaultModel
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = DefaultMaxTokens
	}
	if len(cfg.Summary.AllowedRoles) == 0 {
		cfg.Summary.AllowedRoles = append([]string(nil), DefaultSummaryRoles...)
	}
	if cfg.Recruit.ChannelPrefix == "" {
		cfg.Recruit.ChannelPrefix = DefaultRecruitPrefix
	}
	if len(cfg.Recruit.OfficerRoles) == 0 {
		cfg.Recruit.OfficerRoles = []string{"Officer", "General"}
	}
	if cfg.Recruit.MemberRole == "" {
		cfg.Recruit.MemberRole = DefaultMemberRole
	}
	if cfg.Recruit.ConsentLink == "" {
		cfg.Recruit.ConsentLink = DefaultConsentLink
	}
	if len(cfg.Recruit.Questions) == 0 {
		cfg.Recruit.Questions = append([]string(nil), DefaultQuestions...)
	}
	if cfg.Corpus.RulesFile == "" {
		cfg.Corpus.RulesFile = DefaultRulesFile
	}
	if cfg.Corpus.GuidanceFile == "" {
		cfg.Corpus.GuidanceFile = DefaultGuidanceFile
	}
	if cfg.Corpus.QuotesFile == "" {
		cfg.Corpus.QuotesFile = DefaultQuotesFile
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
