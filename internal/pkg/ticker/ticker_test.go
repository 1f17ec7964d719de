package ticker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		in           string
		wantEvent    string
		wantCategory string
		wantEntities []string
		wantDate     string
	}{
		{
			name:         "crypto event",
			in:           "KXBTC-25DEC05",
			wantEvent:    "KXBTC-25DEC05",
			wantCategory: CategoryCrypto,
			wantEntities: []string{"BTC"},
			wantDate:     "25DEC05",
		},
		{
			name:         "crypto market with outcome",
			in:           "KXETH-25DEC05-T4000",
			wantEvent:    "KXETH-25DEC05",
			wantCategory: CategoryCrypto,
			wantEntities: []string{"ETH"},
			wantDate:     "25DEC05",
		},
		{
			name:         "suffixed series falls back to prefix code",
			in:           "KXBTCD-25DEC0517",
			wantEvent:    "KXBTCD-25DEC0517",
			wantCategory: CategoryCrypto,
			wantEntities: []string{"BTC"},
			wantDate:     "25DEC0517",
		},
		{
			name:         "economic market",
			in:           "KXFED-25JAN-Y",
			wantEvent:    "KXFED-25JAN",
			wantCategory: CategoryEconomic,
			wantEntities: []string{"FED"},
			wantDate:     "25JAN",
		},
		{
			name:         "unknown series",
			in:           "KXNFLGAME-25DEC07DALDET",
			wantEvent:    "KXNFLGAME-25DEC07DALDET",
			wantCategory: "",
			wantEntities: []string{},
		},
		{
			name:         "lower case input is normalized",
			in:           "  kxcpi-25nov ",
			wantEvent:    "KXCPI-25NOV",
			wantCategory: CategoryEconomic,
			wantEntities: []string{"CPI"},
			wantDate:     "25NOV",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, p.EventTicker)
			assert.Equal(t, tt.wantCategory, p.Category)
			assert.Equal(t, tt.wantEntities, p.Entities)
			assert.Equal(t, tt.wantDate, p.EventDate)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"", "KXBTC", "KXBTC-", "-25DEC05"} {
		_, err := Parse(in)
		var malformed *MalformedTickerError
		require.True(t, errors.As(err, &malformed), "input %q", in)
		assert.Equal(t, in, malformed.Ticker)
	}
}

func TestExtractEventTicker(t *testing.T) {
	assert.Equal(t, "KXFED-25JAN", ExtractEventTicker("KXFED-25JAN-Y"))
	assert.Equal(t, "KXBTC-25DEC05", ExtractEventTicker("KXBTC-25DEC05"))
	assert.Equal(t, "KXBTC", ExtractEventTicker("KXBTC"))
}

func TestFormatEventTitle(t *testing.T) {
	assert.Equal(t, "Bitcoin Price", FormatEventTitle("KXBTC-25DEC05"))
	assert.Equal(t, "Federal Reserve", FormatEventTitle("KXFED-25JAN"))
	assert.Equal(t, "CPI / Inflation", FormatEventTitle("KXCPI-25NOV"))
	assert.Equal(t, "KXCABOUT-29", FormatEventTitle("KXCABOUT-29"))
	assert.Equal(t, "garbage", FormatEventTitle("garbage"))
}

func TestLongestPrefixWins(t *testing.T) {
	tables, err := LoadTables([]byte(`
series:
  KX: other
  KXBTC: crypto
entities:
  crypto:
    BTC: {name: Bitcoin, title: Bitcoin Price, terms: [bitcoin]}
`))
	require.NoError(t, err)

	p, err := tables.Parse("KXBTC-25DEC05")
	require.NoError(t, err)
	assert.Equal(t, "crypto", p.Category)

	p, err = tables.Parse("KXOIL-25DEC05")
	require.NoError(t, err)
	assert.Equal(t, "other", p.Category)
	assert.Empty(t, p.Entities)
}

func TestLoadTablesRejectsEntityWithoutTerms(t *testing.T) {
	_, err := LoadTables([]byte(`
series:
  KXBTC: crypto
entities:
  crypto:
    BTC: {name: Bitcoin}
`))
	require.Error(t, err)
}
