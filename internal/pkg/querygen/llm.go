package querygen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/internal/pkg/ticker"
)

const (
	DefaultLLMModel   = "gpt-4o-mini"
	defaultConfidence = 0.7
	maxSearchTerms    = 4
)

const systemPrompt = `You generate search terms for a real-time news tracker used by prediction market traders.
Return ONLY a JSON object of the form:
{"searchTerms": ["term1", "term2"], "category": "crypto|economic|politics|other", "confidence": 0.0-1.0}

Rules:
- Use full official names ("Federal Reserve", not "Fed").
- Return between 1 and 4 terms; fewer terms means less noise.
- Prefer entities whose news moves the market: asset name plus symbol for crypto,
  event plus agency for economic releases, candidates and offices for politics.
- Never return generic words such as "news", "update", "price" on their own.
- Set confidence to how well you understood the event (0.3 unsure, 0.9 certain).
- If you cannot identify the event, return the ticker itself as the only term with low confidence.

Examples:
Ticker: KXBTC-25DEC05 -> {"searchTerms": ["Bitcoin", "BTC price"], "category": "crypto", "confidence": 0.9}
Ticker: KXFED-25JAN -> {"searchTerms": ["Federal Reserve", "interest rate decision", "FOMC"], "category": "economic", "confidence": 0.85}`

var errEmptyCompletion = errors.New("empty completion")

// ChatCompleter is the subset of the OpenAI client used for query generation.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type llmResponse struct {
	SearchTerms []string `json:"searchTerms"`
	Category    string   `json:"category"`
	Confidence  *float64 `json:"confidence"`
}

// LLMGenerator asks a chat model for search terms and falls back to the rule
// based generator on any failure.
type LLMGenerator struct {
	client   ChatCompleter
	model    string
	timeout  time.Duration
	tables   *ticker.Tables
	fallback *RuleGenerator
	logger   *zap.Logger
}

// NewLLMGenerator creates an LLM generator. A nil client disables the model
// call and every request is served by the fallback.
func NewLLMGenerator(client ChatCompleter, model string, timeout time.Duration, fallback *RuleGenerator, logger *zap.Logger) *LLMGenerator {
	if model == "" {
		model = DefaultLLMModel
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if fallback == nil {
		fallback = NewRuleGenerator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{
		client:   client,
		model:    model,
		timeout:  timeout,
		tables:   fallback.tables,
		fallback: fallback,
		logger:   logger,
	}
}

// NewOpenAIGenerator wires the OpenAI client. An empty API key yields a
// generator that always uses the rules.
func NewOpenAIGenerator(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) *LLMGenerator {
	if strings.TrimSpace(apiKey) == "" {
		return NewLLMGenerator(nil, model, timeout, nil, logger)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return NewLLMGenerator(openai.NewClientWithConfig(cfg), model, timeout, nil, logger)
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, eventTicker, titleHint string) Result {
	if g.client == nil {
		g.logger.Debug("llm query generation disabled, using rules", zap.String("event_ticker", eventTicker))
		return g.fallback.Generate(ctx, eventTicker, titleHint)
	}

	res, err := g.complete(ctx, eventTicker, titleHint)
	if err != nil {
		g.logger.Warn("llm query generation failed, using rules",
			zap.String("event_ticker", eventTicker),
			zap.Error(err),
		)
		return g.fallback.Generate(ctx, eventTicker, titleHint)
	}

	g.logger.Info("llm query generated",
		zap.String("event_ticker", eventTicker),
		zap.Strings("search_terms", res.SearchTerms),
		zap.String("category", res.Category),
		zap.Float64("confidence", res.Confidence),
	)
	return res
}

func (g *LLMGenerator) complete(ctx context.Context, eventTicker, titleHint string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: g.userPrompt(eventTicker, titleHint)},
		},
		Temperature: 0.3,
		MaxTokens:   150,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Result{}, errEmptyCompletion
	}

	var parsed llmResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return Result{}, fmt.Errorf("decode completion: %w", err)
	}

	terms := cleanTerms(parsed.SearchTerms)
	if len(terms) == 0 {
		return Result{}, errors.New("completion contained no search terms")
	}

	confidence := defaultConfidence
	if parsed.Confidence != nil {
		confidence = clamp(*parsed.Confidence)
	}
	category := strings.ToLower(strings.TrimSpace(parsed.Category))
	if category == "" {
		category = CategoryOther
	}

	return Result{
		Query:       assemble([]string{orGroup(terms)}),
		SearchTerms: terms,
		Category:    category,
		Strategy:    StrategyLLM,
		Confidence:  confidence,
	}, nil
}

func (g *LLMGenerator) userPrompt(eventTicker, titleHint string) string {
	var b strings.Builder
	b.WriteString("Event Ticker: ")
	b.WriteString(eventTicker)
	if t := strings.TrimSpace(titleHint); t != "" {
		b.WriteString("\nEvent Title: ")
		b.WriteString(t)
	}
	if p, err := g.tables.Parse(eventTicker); err == nil {
		for _, code := range p.Entities {
			if e, ok := g.tables.Entity(p.Category, code); ok {
				fmt.Fprintf(&b, "\nContext: This is about %s (%s).", e.Name, p.Category)
			}
		}
	}
	return b.String()
}

func cleanTerms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		term := strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, term)
		if len(out) == maxSearchTerms {
			break
		}
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
