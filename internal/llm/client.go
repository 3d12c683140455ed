// Package llm wraps the model runtime behind the four prompt operations
// the bot needs: moderation classification, message summarization, topic
// extraction, and interview acknowledgements. Every operation degrades to
// a safe textual result on failure; no caller ever sees an error.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
)

const (
	summaryPrompt = "Summarize the following chat messages in under 100 words. " +
		"Include usernames when relevant. Focus on the main themes and actions.\n\n%s"

	topicsPrompt = "Identify the main discussion topics in the following chat messages. " +
		"List 3-6 themes with short explanations. " +
		"Do NOT include usernames.\n\n%s"

	acknowledgePrompt = "You are Nyx, a warm, friendly, professional recruitment assistant.\n" +
		"Respond briefly and positively. Do NOT ask follow-up questions. Do NOT ask for clarification. " +
		"Do NOT repeat the question. Respond to the applicant's answer in a supportive and human-like way.\n\n" +
		"Context: %s\nApplicant's answer:\n%s\n\nYour response:"

	// Degraded results surfaced to users when the model call fails.
	SummaryUnavailable = "Summary unavailable due to AI error."
	TopicsUnavailable  = "Topic analysis unavailable due to AI error."
	ackFallback        = "Thank you, I've noted your answer."
)

// Verdict is a moderation classification of one message.
type Verdict struct {
	Violation         bool    `json:"violation"`
	Rule              string  `json:"rule"`
	Reason            string  `json:"reason"`
	RecommendedAction string  `json:"recommended_action"`
	ShortSummary      string  `json:"short_summary"`
	Confidence        float64 `json:"confidence"`
}

// SafeVerdict is returned whenever classification cannot complete.
// Moderation fails open: a missed violation beats a false accusation.
func SafeVerdict() Verdict {
	return Verdict{
		Violation:         false,
		Rule:              "",
		Reason:            "AI service error",
		RecommendedAction: "No Action",
		ShortSummary:      "No violation detected.",
		Confidence:        0.0,
	}
}

type Client struct {
	rt Runtime
}

func NewClient(rt Runtime) *Client {
	return &Client{rt: rt}
}

func (c *Client) Close() {
	if c.rt != nil {
		c.rt.Close()
	}
}

// ClassifyModeration evaluates a message against the rule set. Any
// failure (transport, malformed response, missing fields) yields the
// safe default verdict.
func (c *Client) ClassifyModeration(ctx context.Context, guidance, rules, messageText string) Verdict {
	prompt := guidance + "\n\nRules:\n" + rules + "\n\nMessage:\n" + messageText

	raw, err := c.generate(ctx, "moderation", prompt)
	if err != nil {
		log.Printf("[llm] moderation call failed: %v", err)
		return SafeVerdict()
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		log.Printf("[llm] moderation response unparseable: %v", err)
		return SafeVerdict()
	}
	return verdict
}

// Summarize condenses a message block to under 100 words.
func (c *Client) Summarize(ctx context.Context, text string) string {
	raw, err := c.generate(ctx, "summary", fmt.Sprintf(summaryPrompt, text))
	if err != nil {
		log.Printf("[llm] summarize call failed: %v", err)
		return SummaryUnavailable
	}
	return raw
}

// ExtractTopics lists the main discussion themes of a message block.
func (c *Client) ExtractTopics(ctx context.Context, text string) string {
	raw, err := c.generate(ctx, "topics", fmt.Sprintf(topicsPrompt, text))
	if err != nil {
		log.Printf("[llm] topics call failed: %v", err)
		return TopicsUnavailable
	}
	return raw
}

// Acknowledge produces a short empathetic reply to an interview answer.
func (c *Client) Acknowledge(ctx context.Context, answerText, questionContext string) string {
	raw, err := c.generate(ctx, "recruit", fmt.Sprintf(acknowledgePrompt, questionContext, answerText))
	if err != nil {
		log.Printf("[llm] acknowledge call failed: %v", err)
		return ackFallback
	}
	return raw
}

func (c *Client) generate(ctx context.Context, sessionID, prompt string) (string, error) {
	resp, err := c.rt.Run(ctx, api.Request{
		Prompt:    prompt,
		SessionID: sessionID,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Result == nil {
		return "", fmt.Errorf("empty response")
	}
	out := strings.TrimSpace(resp.Result.Output)
	if out == "" {
		return "", fmt.Errorf("empty output")
	}
	return out, nil
}

// parseVerdict decodes a JSON-shaped verdict from free model text,
// tolerating code fences and a leading language tag.
func parseVerdict(raw string) (Verdict, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimSpace(strings.Trim(raw, "`"))
	}
	if len(raw) >= 4 && strings.EqualFold(raw[:4], "json") {
		raw = strings.TrimSpace(raw[4:])
	}

	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if v.ShortSummary == "" {
		v.ShortSummary = "No summary provided."
	}
	return v, nil
}
