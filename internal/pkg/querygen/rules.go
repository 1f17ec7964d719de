package querygen

import (
	"context"

	"github.com/ManuelReschke/TickerFox/internal/pkg/ticker"
)

// termsPerEntity is the number of search terms ORed per entity. Categories not
// listed use only the canonical term.
var termsPerEntity = map[string]int{
	ticker.CategoryEconomic: 2,
}

// RuleGenerator builds queries from the static ticker tables.
type RuleGenerator struct {
	tables *ticker.Tables
}

// NewRuleGenerator creates a rule-based generator over the embedded tables.
func NewRuleGenerator() *RuleGenerator {
	return &RuleGenerator{tables: ticker.DefaultTables()}
}

// NewRuleGeneratorWithTables creates a rule-based generator over custom tables.
func NewRuleGeneratorWithTables(tables *ticker.Tables) *RuleGenerator {
	return &RuleGenerator{tables: tables}
}

// Generate is deterministic: the same ticker always yields the same query.
func (g *RuleGenerator) Generate(_ context.Context, eventTicker, _ string) Result {
	category := CategoryOther
	var parts, terms []string

	if p, err := g.tables.Parse(eventTicker); err == nil {
		if p.Category != "" {
			category = p.Category
		}
		n := termsPerEntity[p.Category]
		if n == 0 {
			n = 1
		}
		for _, code := range p.Entities {
			e, ok := g.tables.Entity(p.Category, code)
			if !ok {
				continue
			}
			selected := e.Terms
			if len(selected) > n {
				selected = selected[:n]
			}
			parts = append(parts, orGroup(selected))
			terms = append(terms, selected...)
		}
	}

	// Unknown events still get a distinct query.
	if len(parts) == 0 {
		parts = []string{quote(eventTicker)}
		terms = []string{eventTicker}
	}

	return Result{
		Query:       assemble(parts),
		SearchTerms: terms,
		Category:    category,
		Strategy:    StrategyRule,
		Confidence:  0.5,
	}
}

// GenerateQuery returns only the rule-based query string for an event ticker.
func GenerateQuery(eventTicker string) string {
	return NewRuleGenerator().Generate(context.Background(), eventTicker, "").Query
}
