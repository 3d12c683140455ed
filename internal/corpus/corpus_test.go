package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Nanomace/Nyx/internal/config"
)

func TestLoadTextFallback(t *testing.T) {
	got := LoadText(filepath.Join(t.TempDir(), "missing.txt"), "fallback text")
	if got != "fallback text" {
		t.Errorf("LoadText = %q, want fallback", got)
	}
}

func TestLoadTextTrims(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.txt")
	if err := os.WriteFile(path, []byte("\n  rule one\nrule two  \n\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got := LoadText(path, "fallback")
	if got != "rule one\nrule two" {
		t.Errorf("LoadText = %q", got)
	}
}

func TestLoadQuotes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wisdom.txt")
	if err := os.WriteFile(path, []byte("first\n\n  second  \n\n"), 0644); err != nil {
		t.Fatal(err)
	}

	quotes := LoadQuotes(path)
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d: %v", len(quotes), quotes)
	}
	if quotes[0] != "first" || quotes[1] != "second" {
		t.Errorf("quotes = %v", quotes)
	}
}

func TestLoadQuotesMissingFile(t *testing.T) {
	quotes := LoadQuotes(filepath.Join(t.TempDir(), "missing.txt"))
	if len(quotes) != 0 {
		t.Errorf("expected no quotes, got %v", quotes)
	}
}

func TestLoadUsesFallbacksForEmptyWorkspace(t *testing.T) {
	c := Load(t.TempDir(), config.CorpusConfig{
		RulesFile:    "rules.txt",
		GuidanceFile: "moderationguide.txt",
		QuotesFile:   "wisdom.txt",
	})

	if c.Rules != FallbackRules {
		t.Errorf("Rules = %q, want %q", c.Rules, FallbackRules)
	}
	if c.Guidance != FallbackGuidance {
		t.Errorf("Guidance = %q, want %q", c.Guidance, FallbackGuidance)
	}
	if len(c.Quotes) != 0 {
		t.Errorf("Quotes = %v, want empty", c.Quotes)
	}
}
