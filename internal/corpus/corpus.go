// Package corpus loads the text assets the bot needs at startup: the rule
// set and moderation guidance fed into classification prompts, and the
// quote list behind $wisdom. A missing file is not a fault; each loader
// falls back to a usable default.
package corpus

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nanomace/Nyx/internal/config"
)

const (
	FallbackRules    = "No rules found."
	FallbackGuidance = "You are an automated moderation system."
)

type Corpus struct {
	Rules    string
	Guidance string
	Quotes   []string
}

// Load reads all corpus files from the workspace directory.
func Load(workspace string, cfg config.CorpusConfig) *Corpus {
	c := &Corpus{
		Rules:    LoadText(filepath.Join(workspace, cfg.RulesFile), FallbackRules),
		Guidance: LoadText(filepath.Join(workspace, cfg.GuidanceFile), FallbackGuidance),
		Quotes:   LoadQuotes(filepath.Join(workspace, cfg.QuotesFile)),
	}
	log.Printf("[corpus] loaded %d quotes, rules %d bytes", len(c.Quotes), len(c.Rules))
	return c
}

// LoadText returns the trimmed file contents, or fallback when the file
// is absent or unreadable.
func LoadText(path, fallback string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	return strings.TrimSpace(string(data))
}

// LoadQuotes returns the non-empty trimmed lines of the file, or an empty
// list when the file is absent.
func LoadQuotes(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var quotes []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			quotes = append(quotes, line)
		}
	}
	return quotes
}
