// Package ticker parses Kalshi-style market tickers.
//
// Ticker hierarchy:
//
//	series  KXBTC
//	event   KXBTC-25DEC05
//	market  KXBTC-25DEC05-T100000
//
// Alerts are stored per market but subscriptions are kept per event.
package ticker

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	CategoryCrypto   = "crypto"
	CategoryEconomic = "economic"
)

var namespacedCode = regexp.MustCompile(`^KX([A-Z]+)`)

// MalformedTickerError is returned for identifiers with fewer than two dash segments.
type MalformedTickerError struct {
	Ticker string
}

func (e *MalformedTickerError) Error() string {
	return fmt.Sprintf("malformed ticker %q: expected <series>-<event>[-<outcome>]", e.Ticker)
}

// Parsed is the result of parsing a market or event ticker.
type Parsed struct {
	Series       string
	EventTicker  string
	EventDate    string
	MarketTicker string
	Category     string
	Entities     []string
}

// Parse parses a ticker using the embedded tables.
func Parse(raw string) (Parsed, error) {
	return defaultTables.Parse(raw)
}

// Parse splits raw into series, event and outcome segments and resolves
// category and entity codes.
func (t *Tables) Parse(raw string) (Parsed, error) {
	normalized := Normalize(raw)
	parts := strings.Split(normalized, "-")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Parsed{}, &MalformedTickerError{Ticker: raw}
	}

	series := parts[0]
	p := Parsed{
		Series:       series,
		EventTicker:  series + "-" + parts[1],
		MarketTicker: normalized,
		Entities:     []string{},
	}

	prefix, category := t.matchSeries(series)
	p.Category = category

	switch category {
	case CategoryCrypto, CategoryEconomic:
		p.EventDate = parts[1]
		if code, ok := t.resolveCode(category, series, prefix); ok {
			p.Entities = append(p.Entities, code)
		}
	}

	return p, nil
}

// resolveCode extracts the alphabetic run after the KX namespace. Series with
// a suffix (KXBTCD) fall back to the code of the matched prefix (KXBTC).
func (t *Tables) resolveCode(category, series, prefix string) (string, bool) {
	for _, candidate := range []string{series, prefix} {
		m := namespacedCode.FindStringSubmatch(candidate)
		if len(m) < 2 {
			continue
		}
		if _, ok := t.Entity(category, m[1]); ok {
			return m[1], true
		}
	}
	return "", false
}

// Normalize trims and upper-cases a ticker.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ExtractEventTicker returns the first two segments of a market ticker, or the
// normalized input when it has fewer segments.
func ExtractEventTicker(marketTicker string) string {
	normalized := Normalize(marketTicker)
	parts := strings.Split(normalized, "-")
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return normalized
}

// LookupEntity returns the entity for code in category from the embedded tables.
func LookupEntity(category, code string) (Entity, bool) {
	return defaultTables.Entity(category, code)
}

// FormatEventTitle renders a human readable title for an event ticker,
// e.g. "KXBTC-25DEC05" -> "Bitcoin Price". Unknown events keep the ticker.
func FormatEventTitle(eventTicker string) string {
	p, err := Parse(eventTicker)
	if err != nil {
		return eventTicker
	}
	for _, code := range p.Entities {
		if e, ok := LookupEntity(p.Category, code); ok && e.Title != "" {
			return e.Title
		}
	}
	return p.EventTicker
}
