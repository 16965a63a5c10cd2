package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownCompetency = errors.New("unknown competency")

// Catalog is an immutable snapshot of the KEQ list plus the alias table
// used to match free-form rating keys against it.
type Catalog struct {
	items   []Competency
	aliases AliasTable
}

func New(items []Competency, aliases AliasTable) *Catalog {
	sorted := make([]Competency, len(items))
	copy(sorted, items)
	sortByOrder(sorted)
	return &Catalog{items: sorted, aliases: aliases}
}

func (c *Catalog) All() []Competency {
	out := make([]Competency, len(c.items))
	copy(out, c.items)
	return out
}

// Columns lists every active competency regardless of effective period.
// Tables render these so older evaluations stay comparable.
func (c *Catalog) Columns() []Competency {
	out := make([]Competency, 0, len(c.items))
	for _, item := range c.items {
		if item.IsActive {
			out = append(out, item)
		}
	}
	return out
}

func (c *Catalog) ListActive(asOf Period) []Competency {
	return ListActive(c.items, asOf)
}

// ListActive keeps active competencies effective at asOf, ordered by orderIndex.
func ListActive(items []Competency, asOf Period) []Competency {
	out := make([]Competency, 0, len(items))
	for _, item := range items {
		if item.IsActive && item.EffectiveAt(asOf) {
			out = append(out, item)
		}
	}
	sortByOrder(out)
	return out
}

// Lookup finds the score recorded for label in ratings. Candidates are
// tried in order: title-cased label, raw label, alias table, then
// containment between normalized keys. Zero or out-of-range values count
// as not rated.
func (c *Catalog) Lookup(ratings map[string]int, label string) (int, bool) {
	if len(ratings) == 0 || strings.TrimSpace(label) == "" {
		return 0, false
	}
	if score, ok := rated(ratings, TitleLabel(label)); ok {
		return score, true
	}
	if score, ok := rated(ratings, label); ok {
		return score, true
	}

	keys := sortedKeys(ratings)
	target := c.aliases.Canonical(label)
	for _, key := range keys {
		if key == OverallKey {
			continue
		}
		if c.aliases.Canonical(key) == target {
			if score, ok := rated(ratings, key); ok {
				return score, true
			}
		}
	}

	want := NormalizeKey(label)
	if want == "" {
		return 0, false
	}
	for _, key := range keys {
		if key == OverallKey {
			continue
		}
		have := NormalizeKey(key)
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			if score, ok := rated(ratings, key); ok {
				return score, true
			}
		}
	}
	return 0, false
}

// Canonicalize maps a submitted label onto the catalog's label for it.
// Only exact, title-cased and alias matches count; anything else fails.
// An empty catalog accepts any label in its canonical alias form.
func (c *Catalog) Canonicalize(label string) (string, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty label", ErrUnknownCompetency)
	}
	if len(c.items) == 0 {
		canonical := c.aliases.Canonical(trimmed)
		if NormalizeKey(canonical) == "" {
			return "", fmt.Errorf("%w: %q", ErrUnknownCompetency, trimmed)
		}
		return canonical, nil
	}

	wantKey := NormalizeKey(trimmed)
	wantAlias := c.aliases.Canonical(trimmed)
	for _, item := range c.items {
		if item.Category == trimmed || NormalizeKey(item.Category) == wantKey {
			return TitleLabel(item.Category), nil
		}
	}
	for _, item := range c.items {
		if c.aliases.Canonical(item.Category) == wantAlias {
			return TitleLabel(item.Category), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCompetency, trimmed)
}

// CanonicalizeRatings rewrites every key through Canonicalize. Keys that
// collapse onto the same competency are merged by their rounded mean.
func (c *Catalog) CanonicalizeRatings(ratings map[string]int) (map[string]int, error) {
	sums := map[string]int{}
	counts := map[string]int{}
	for _, key := range sortedKeys(ratings) {
		label, err := c.Canonicalize(key)
		if err != nil {
			return nil, err
		}
		sums[label] += ratings[key]
		counts[label]++
	}
	out := make(map[string]int, len(sums))
	for label, sum := range sums {
		n := counts[label]
		out[label] = (2*sum + n) / (2 * n)
	}
	return out, nil
}

func rated(ratings map[string]int, key string) (int, bool) {
	score, ok := ratings[key]
	if !ok || score < 1 || score > 5 {
		return 0, false
	}
	return score, true
}

func sortedKeys(ratings map[string]int) []string {
	keys := make([]string, 0, len(ratings))
	for key := range ratings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortByOrder(items []Competency) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].OrderIndex == items[j].OrderIndex {
			return items[i].ID < items[j].ID
		}
		return items[i].OrderIndex < items[j].OrderIndex
	})
}
