// Package querygen builds Superfeedr track queries for market events.
package querygen

import (
	"context"
	"net/url"
	"strings"
)

const (
	StrategyRule = "rule"
	StrategyLLM  = "llm"

	// CategoryOther is reported when no category could be determined.
	CategoryOther = "other"

	PopularityQualifier = "popularity:medium"
	TrackFeedURL        = "http://track.superfeedr.com/"
)

// Exclusions are appended to every query to filter noise.
var Exclusions = []string{
	"-fantasy",
	"-mock",
	"-draft",
	`-"all time"`,
	"-history",
	"-reddit",
	"-rumor",
}

// Result is the output of every query strategy.
type Result struct {
	Query       string
	SearchTerms []string
	Category    string
	Strategy    string
	Confidence  float64
}

// Generator turns an event ticker (and an optional human title) into a query.
// Implementations never fail; they degrade to a weaker query instead.
type Generator interface {
	Generate(ctx context.Context, eventTicker, titleHint string) Result
}

// BuildTopicURL returns the Superfeedr track feed URL for a query.
func BuildTopicURL(query string) string {
	return TrackFeedURL + "?query=" + strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
}

// quote wraps a term for exact matching.
func quote(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, "") + `"`
}

// orGroup quotes terms and ORs them when there is more than one.
func orGroup(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, quote(t))
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return "(" + strings.Join(quoted, " | ") + ")"
}

// assemble appends exclusions and the popularity qualifier to the search part.
func assemble(parts []string) string {
	all := make([]string, 0, len(parts)+len(Exclusions)+1)
	all = append(all, parts...)
	all = append(all, Exclusions...)
	all = append(all, PopularityQualifier)
	return strings.TrimSpace(strings.Join(all, " "))
}
