package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Nanomace/Nyx/internal/config"
	"github.com/Nanomace/Nyx/internal/corpus"
	"github.com/Nanomace/Nyx/internal/gateway"
)

var rootCmd = &cobra.Command{
	Use:   "nyx",
	Short: "nyx - moderation and recruitment bot",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Connect to Discord and run the bot",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show nyx status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord token not set. Run 'nyx onboard' or set NYX_DISCORD_TOKEN")
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'nyx onboard' or set NYX_API_KEY / ANTHROPIC_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, _ := config.LoadConfig()
	ws := cfg.Agent.Workspace
	if err := os.MkdirAll(ws, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	writeIfNotExists(filepath.Join(ws, cfg.Corpus.RulesFile), defaultRules)
	writeIfNotExists(filepath.Join(ws, cfg.Corpus.GuidanceFile), defaultGuidance)
	writeIfNotExists(filepath.Join(ws, cfg.Corpus.QuotesFile), defaultWisdom)

	fmt.Printf("Workspace ready: %s\n", ws)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set the Discord token and API key\n", cfgPath)
	fmt.Println("  2. Or set NYX_DISCORD_TOKEN and NYX_API_KEY environment variables")
	fmt.Printf("  3. Fill in the channel and role IDs in %s\n", cfgPath)
	fmt.Println("  4. Run 'nyx gateway' to connect")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.Agent.Workspace)
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Discord token: %s\n", maskKey(cfg.Discord.Token))
	fmt.Printf("Recruit test mode: %v\n", cfg.Recruit.TestMode)
	fmt.Printf("Digest jobs: %d\n", len(cfg.Digests))

	if _, err := os.Stat(cfg.Agent.Workspace); err != nil {
		fmt.Println("Workspace: not found (run 'nyx onboard')")
		return nil
	}

	c := corpus.Load(cfg.Agent.Workspace, cfg.Corpus)
	fmt.Printf("Rules: %d bytes\n", len(c.Rules))
	fmt.Printf("Guidance: %d bytes\n", len(c.Guidance))
	fmt.Printf("Wisdom quotes: %d\n", len(c.Quotes))

	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func maskKey(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return "set"
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultRules = `1. Be respectful. No harassment, hate speech, or personal attacks.
2. No spam or repeated advertising outside the trade channel.
3. Trade posts belong in the trade channel and must use the [WTS]/[WTB] tags.
4. Keep arguments out of public channels; take disputes to an officer.
5. No sharing of other members' personal information.
`

const defaultGuidance = `You are an automated moderation system for a gaming community.
Evaluate the message against the numbered rules and answer with a single
JSON object with keys: violation (bool), rule (string), reason (string),
recommended_action (string), short_summary (string), confidence (0..1).
Only report a violation when the message clearly breaks a rule.
`

const defaultWisdom = `Patience is bitter, but its fruit is sweet.
A smooth sea never made a skilled sailor.
The best time to plant a tree was twenty years ago. The second best time is now.
`
