package querygen

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exclusionSuffix = `-fantasy -mock -draft -"all time" -history -reddit -rumor popularity:medium`

func TestRuleGenerator(t *testing.T) {
	g := NewRuleGenerator()
	ctx := context.Background()

	tests := []struct {
		name         string
		ticker       string
		wantQuery    string
		wantTerms    []string
		wantCategory string
	}{
		{
			name:         "crypto uses canonical term",
			ticker:       "KXBTC-25DEC05",
			wantQuery:    `"bitcoin" ` + exclusionSuffix,
			wantTerms:    []string{"bitcoin"},
			wantCategory: "crypto",
		},
		{
			name:         "economic ORs two terms",
			ticker:       "KXFED-25JAN",
			wantQuery:    `("federal reserve" | "fed rate") ` + exclusionSuffix,
			wantTerms:    []string{"federal reserve", "fed rate"},
			wantCategory: "economic",
		},
		{
			name:         "unknown event quotes the ticker",
			ticker:       "KXCABOUT-29",
			wantQuery:    `"KXCABOUT-29" ` + exclusionSuffix,
			wantTerms:    []string{"KXCABOUT-29"},
			wantCategory: CategoryOther,
		},
		{
			name:         "malformed ticker still yields a query",
			ticker:       "KXCABOUT",
			wantQuery:    `"KXCABOUT" ` + exclusionSuffix,
			wantTerms:    []string{"KXCABOUT"},
			wantCategory: CategoryOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.Generate(ctx, tt.ticker, "")
			assert.Equal(t, tt.wantQuery, res.Query)
			assert.Equal(t, tt.wantTerms, res.SearchTerms)
			assert.Equal(t, tt.wantCategory, res.Category)
			assert.Equal(t, StrategyRule, res.Strategy)
		})
	}
}

func TestRuleGeneratorIsDeterministic(t *testing.T) {
	assert.Equal(t, GenerateQuery("KXETH-25DEC05"), GenerateQuery("KXETH-25DEC05"))
}

func TestBuildTopicURL(t *testing.T) {
	query := `"bitcoin" -"all time" popularity:medium`
	topic := BuildTopicURL(query)

	assert.True(t, strings.HasPrefix(topic, "http://track.superfeedr.com/?query="))
	assert.NotContains(t, topic, " ")
	assert.NotContains(t, topic, "+")

	u, err := url.Parse(topic)
	require.NoError(t, err)
	assert.Equal(t, query, u.Query().Get("query"))
}

type fakeChat struct {
	content string
	err     error
	calls   int
	lastReq openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content}},
		},
	}, nil
}

func TestLLMGeneratorUsesModelTerms(t *testing.T) {
	chat := &fakeChat{content: `{"searchTerms":["Bitcoin","BTC price"],"category":"crypto","confidence":0.9}`}
	g := NewLLMGenerator(chat, "", time.Second, nil, nil)

	res := g.Generate(context.Background(), "KXBTC-25DEC05", "Bitcoin price on Dec 5")

	assert.Equal(t, StrategyLLM, res.Strategy)
	assert.Equal(t, `("Bitcoin" | "BTC price") `+exclusionSuffix, res.Query)
	assert.Equal(t, []string{"Bitcoin", "BTC price"}, res.SearchTerms)
	assert.Equal(t, "crypto", res.Category)
	assert.InDelta(t, 0.9, res.Confidence, 0.0001)

	require.Equal(t, 1, chat.calls)
	assert.Equal(t, DefaultLLMModel, chat.lastReq.Model)
	require.Len(t, chat.lastReq.Messages, 2)
	assert.Contains(t, chat.lastReq.Messages[1].Content, "Event Title: Bitcoin price on Dec 5")
	assert.Contains(t, chat.lastReq.Messages[1].Content, "Bitcoin (crypto)")
}

func TestLLMGeneratorDefaultsAndLimits(t *testing.T) {
	chat := &fakeChat{content: `{"searchTerms":["A","a"," B ","C","D","E"],"category":""}`}
	g := NewLLMGenerator(chat, "gpt-test", time.Second, nil, nil)

	res := g.Generate(context.Background(), "KXCABOUT-29", "")

	assert.Equal(t, []string{"A", "B", "C", "D"}, res.SearchTerms)
	assert.Equal(t, CategoryOther, res.Category)
	assert.InDelta(t, defaultConfidence, res.Confidence, 0.0001)
}

func TestLLMGeneratorFallsBackToRules(t *testing.T) {
	rules := NewRuleGenerator()
	want := rules.Generate(context.Background(), "KXFED-25JAN", "")

	tests := []struct {
		name string
		chat ChatCompleter
	}{
		{name: "no client", chat: nil},
		{name: "transport error", chat: &fakeChat{err: errors.New("connection refused")}},
		{name: "malformed json", chat: &fakeChat{content: `{"searchTerms": [`}},
		{name: "empty response", chat: &fakeChat{content: "  "}},
		{name: "no terms", chat: &fakeChat{content: `{"searchTerms":[],"category":"economic"}`}},
		{name: "terms missing", chat: &fakeChat{content: `{"category":"economic"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLLMGenerator(tt.chat, "", time.Second, rules, nil)
			assert.Equal(t, want, g.Generate(context.Background(), "KXFED-25JAN", ""))
		})
	}
}

func TestNewOpenAIGeneratorWithoutKeyUsesRules(t *testing.T) {
	g := NewOpenAIGenerator("", "", "", 0, nil)
	res := g.Generate(context.Background(), "KXBTC-25DEC05", "")
	assert.Equal(t, StrategyRule, res.Strategy)
}
