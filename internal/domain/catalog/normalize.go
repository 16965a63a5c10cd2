package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeKey lowercases, trims, collapses non-alphanumeric runs to "_"
// and strips leading and trailing underscores.
func NormalizeKey(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	key = nonAlphanumeric.ReplaceAllString(key, "_")
	return strings.Trim(key, "_")
}

// TitleLabel renders "TECHNICAL_SKILLS" or "technical-skills" as "Technical Skills".
func TitleLabel(label string) string {
	words := strings.FieldsFunc(label, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '\t'
	})
	if len(words) == 0 {
		return ""
	}
	// cases.Caser is stateful, so each call gets its own.
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// DefaultAliases maps canonical labels to historical spellings.
var DefaultAliases = map[string][]string{
	"Technical Skills": {"technical_skills", "technical_excellence"},
	"Problem Solving":  {"problem_solving"},
	"Quality Focus":    {"quality_focus", "quality"},
	"Time Management":  {"time_management", "reliability"},
	"Teamwork":         {"teamwork"},
	"Leadership":       {"leadership", "initiative"},
	"Adaptability":     {"adaptability"},
	"Communication":    {"communication"},
}

type AliasTable struct {
	targets map[string]string
}

// NewAliasTable validates the table: every target is non-empty and no
// alias resolves to two different targets.
func NewAliasTable(entries map[string][]string) (AliasTable, error) {
	table := AliasTable{targets: map[string]string{}}

	labels := make([]string, 0, len(entries))
	for label := range entries {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		target := strings.TrimSpace(label)
		if target == "" {
			return AliasTable{}, fmt.Errorf("alias table: empty target label")
		}
		keys := append([]string{target}, entries[label]...)
		for _, alias := range keys {
			key := NormalizeKey(alias)
			if key == "" {
				return AliasTable{}, fmt.Errorf("alias table: empty alias for %q", target)
			}
			if existing, ok := table.targets[key]; ok && existing != target {
				return AliasTable{}, fmt.Errorf("alias table: %q maps to both %q and %q", alias, existing, target)
			}
			table.targets[key] = target
		}
	}
	return table, nil
}

func MustAliasTable(entries map[string][]string) AliasTable {
	table, err := NewAliasTable(entries)
	if err != nil {
		panic(err)
	}
	return table
}

func (a AliasTable) Resolve(label string) (string, bool) {
	target, ok := a.targets[NormalizeKey(label)]
	return target, ok
}

// Canonical returns the alias target for label, or its title-cased form.
func (a AliasTable) Canonical(label string) string {
	if target, ok := a.Resolve(label); ok {
		return target
	}
	return TitleLabel(label)
}

func (a AliasTable) Len() int {
	return len(a.targets)
}
