package ticker

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

// Entity is a searchable subject (asset, economic topic) referenced by a ticker.
type Entity struct {
	Code  string   `yaml:"-"`
	Name  string   `yaml:"name"`
	Title string   `yaml:"title"`
	Terms []string `yaml:"terms"`
}

type tableFile struct {
	Series   map[string]string            `yaml:"series"`
	Entities map[string]map[string]Entity `yaml:"entities"`
}

// Tables holds the immutable series and entity lookup data.
type Tables struct {
	// prefixes sorted by length, longest first
	prefixes []string
	series   map[string]string
	entities map[string]map[string]Entity
}

var defaultTables = mustLoadTables(tablesYAML)

// LoadTables parses a series/entity YAML document.
func LoadTables(data []byte) (*Tables, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ticker tables: %w", err)
	}
	if len(f.Series) == 0 {
		return nil, fmt.Errorf("ticker tables: no series defined")
	}

	t := &Tables{
		series:   make(map[string]string, len(f.Series)),
		entities: make(map[string]map[string]Entity, len(f.Entities)),
	}
	for prefix, category := range f.Series {
		p := strings.ToUpper(strings.TrimSpace(prefix))
		t.series[p] = strings.ToLower(strings.TrimSpace(category))
		t.prefixes = append(t.prefixes, p)
	}
	sort.Slice(t.prefixes, func(i, j int) bool {
		if len(t.prefixes[i]) != len(t.prefixes[j]) {
			return len(t.prefixes[i]) > len(t.prefixes[j])
		}
		return t.prefixes[i] < t.prefixes[j]
	})

	for category, byCode := range f.Entities {
		c := strings.ToLower(strings.TrimSpace(category))
		m := make(map[string]Entity, len(byCode))
		for code, e := range byCode {
			e.Code = strings.ToUpper(strings.TrimSpace(code))
			if len(e.Terms) == 0 {
				return nil, fmt.Errorf("ticker tables: entity %s/%s has no search terms", c, e.Code)
			}
			m[e.Code] = e
		}
		t.entities[c] = m
	}
	return t, nil
}

func mustLoadTables(data []byte) *Tables {
	t, err := LoadTables(data)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTables returns the embedded tables.
func DefaultTables() *Tables {
	return defaultTables
}

// matchSeries returns the longest configured prefix of series and its category.
func (t *Tables) matchSeries(series string) (prefix, category string) {
	for _, p := range t.prefixes {
		if strings.HasPrefix(series, p) {
			return p, t.series[p]
		}
	}
	return "", ""
}

// Entity looks up an entity code within a category.
func (t *Tables) Entity(category, code string) (Entity, bool) {
	byCode, ok := t.entities[category]
	if !ok {
		return Entity{}, false
	}
	e, ok := byCode[strings.ToUpper(code)]
	return e, ok
}
