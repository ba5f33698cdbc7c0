package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"linkreach/config"
)

// CategoryResult is the parsed output of a reply classification call.
type CategoryResult struct {
	Category        ReplyCategory `json:"category"`
	Confidence      float64       `json:"confidence"`
	Summary         string        `json:"summary"`
	SuggestedAction string        `json:"suggested_action"`
}

// LLMClient is the capability contract: retryable, and callers must
// tolerate errors and degenerate output without blocking.
type LLMClient interface {
	CategorizeReply(ctx context.Context, text, langHint string) (*CategoryResult, error)
	Personalize(ctx context.Context, lang, domain, name, country string) (string, error)
}

const categorizeSystemPrompt = `You classify replies to backlink outreach emails.
Respond with a single JSON object and nothing else:
{"category": one of [interested, not-interested, asking-price, asking-questions, already-linked, out-of-office, bounce, unsubscribe, spam, other],
 "confidence": number between 0 and 1,
 "summary": one short English sentence,
 "suggested_action": one short English sentence}
The reply may be in any language.`

// AnthropicLLM implements LLMClient on the Anthropic messages API.
// Reload swaps credentials without rebuilding dependents.
type AnthropicLLM struct {
	mu     sync.RWMutex
	client sdk.Client
	model  string
}

func NewAnthropicLLM(cfg config.LLMConfig) *AnthropicLLM {
	return &AnthropicLLM{
		client: sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}
}

// Reload replaces the underlying client after a settings change.
func (a *AnthropicLLM) Reload(cfg config.LLMConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	a.model = cfg.Model
}

func (a *AnthropicLLM) CategorizeReply(ctx context.Context, text, langHint string) (*CategoryResult, error) {
	prompt := fmt.Sprintf("Reply language hint: %s\n\nReply text:\n%s", langHint, text)

	raw, err := a.complete(ctx, categorizeSystemPrompt, prompt, 400)
	if err != nil {
		return nil, err
	}

	var result CategoryResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return nil, fmt.Errorf("llm: unparseable classification %q: %w", raw, err)
	}
	if !result.Category.Valid() {
		return nil, fmt.Errorf("llm: unknown category %q", result.Category)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("llm: confidence %v out of range", result.Confidence)
	}
	return &result, nil
}

// Personalize returns a single opening line for an outreach email, in
// the campaign language. Empty string on any failure; enrollment never
// blocks on this.
func (a *AnthropicLLM) Personalize(ctx context.Context, lang, domain, name, country string) (string, error) {
	system := "You write one short, natural opening line for a polite backlink outreach email. " +
		"Answer with the line only, no quotes, in the requested language."
	prompt := fmt.Sprintf("Language: %s\nWebsite: %s\nContact name: %s\nCountry: %s", lang, domain, name, country)

	raw, err := a.complete(ctx, system, prompt, 120)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return line, nil
}

func (a *AnthropicLLM) complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error) {
	a.mu.RLock()
	client, model := a.client, a.model
	a.mu.RUnlock()

	msg, err := client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("llm: empty completion")
	}
	return sb.String(), nil
}

// extractJSON trims any prose around the first top-level JSON object.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
