package catalog

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func sampleCatalog() *Catalog {
	return New([]Competency{
		{ID: "k3", Category: "Teamwork", OrderIndex: 3, IsActive: true},
		{ID: "k1", Category: "TECHNICAL SKILLS", OrderIndex: 1, IsActive: true},
		{ID: "k2", Category: "Communication", OrderIndex: 2, IsActive: true, EffectiveFromYear: intPtr(2025), EffectiveFromQuarter: intPtr(3)},
		{ID: "k4", Category: "QUALITY", OrderIndex: 4, IsActive: true, EffectiveFromYear: intPtr(2026)},
		{ID: "k5", Category: "Retired", OrderIndex: 0, IsActive: false},
	}, MustAliasTable(DefaultAliases))
}

func ids(items []Competency) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestListActiveFiltersByPeriodAndOrders(t *testing.T) {
	cat := sampleCatalog()
	cases := []struct {
		asOf Period
		want []string
	}{
		{Period{Year: 2025, Quarter: 2}, []string{"k1", "k3"}},
		{Period{Year: 2025, Quarter: 3}, []string{"k1", "k2", "k3"}},
		{Period{Year: 2026, Quarter: 1}, []string{"k1", "k2", "k3", "k4"}},
	}
	for _, tc := range cases {
		got := ids(cat.ListActive(tc.asOf))
		if len(got) != len(tc.want) {
			t.Fatalf("%+v: expected %v, got %v", tc.asOf, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%+v: expected %v, got %v", tc.asOf, tc.want, got)
			}
		}
	}
}

func TestColumnsIgnoreEffectivePeriod(t *testing.T) {
	got := ids(sampleCatalog().Columns())
	want := []string{"k1", "k2", "k3", "k4"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLookupOrder(t *testing.T) {
	cat := sampleCatalog()
	cases := []struct {
		name    string
		ratings map[string]int
		label   string
		want    int
		found   bool
	}{
		{"title cased", map[string]int{"Technical Skills": 4}, "TECHNICAL SKILLS", 4, true},
		{"raw label", map[string]int{"QUALITY": 2}, "QUALITY", 2, true},
		{"title beats raw", map[string]int{"Teamwork": 5, "teamwork": 1}, "teamwork", 5, true},
		{"alias to newer name", map[string]int{"Quality Focus": 3}, "QUALITY", 3, true},
		{"alias to older key", map[string]int{"technical_excellence": 5}, "Technical Skills", 5, true},
		{"fuzzy containment", map[string]int{"Communication Skills": 4}, "Communication", 4, true},
		{"zero is not rated", map[string]int{"Teamwork": 0}, "Teamwork", 0, false},
		{"overall never matches", map[string]int{"overall": 4}, "Overall Rating", 0, false},
		{"no match", map[string]int{"Teamwork": 3}, "Leadership", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := cat.Lookup(tc.ratings, tc.label)
			if ok != tc.found || got != tc.want {
				t.Fatalf("expected (%d, %v), got (%d, %v)", tc.want, tc.found, got, ok)
			}
		})
	}
}

func TestCanonicalize(t *testing.T) {
	cat := sampleCatalog()
	cases := map[string]string{
		"technical_skills":     "Technical Skills",
		"Technical Excellence": "Technical Skills",
		"quality_focus":        "Quality",
		"teamwork":             "Teamwork",
	}
	for in, want := range cases {
		got, err := cat.Canonicalize(in)
		if err != nil || got != want {
			t.Fatalf("Canonicalize(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := cat.Canonicalize("Team"); !errors.Is(err, ErrUnknownCompetency) {
		t.Fatalf("expected unknown competency for partial label, got %v", err)
	}
}

func TestCanonicalizeWithEmptyCatalogFallsBackToAliases(t *testing.T) {
	cat := New(nil, MustAliasTable(DefaultAliases))
	got, err := cat.Canonicalize("reliability")
	if err != nil || got != "Time Management" {
		t.Fatalf("expected alias fallback, got %q, %v", got, err)
	}
}

func TestCanonicalizeWithEmptyCatalogRejectsBlankKeys(t *testing.T) {
	cat := New(nil, MustAliasTable(DefaultAliases))
	for _, label := range []string{"---", "!!!", " _ "} {
		if got, err := cat.Canonicalize(label); !errors.Is(err, ErrUnknownCompetency) {
			t.Fatalf("%q: expected unknown competency, got %q, %v", label, got, err)
		}
	}
	if got, err := cat.CanonicalizeRatings(map[string]int{"---": 4, "teamwork": 2}); err == nil {
		t.Fatalf("expected punctuation-only key to fail, got %+v", got)
	}
}

func TestCanonicalizeRatingsMergesDuplicates(t *testing.T) {
	cat := sampleCatalog()
	got, err := cat.CanonicalizeRatings(map[string]int{"technical_skills": 3, "Technical Excellence": 4, "teamwork": 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["Technical Skills"] != 4 || got["Teamwork"] != 5 || len(got) != 2 {
		t.Fatalf("unexpected canonical ratings: %+v", got)
	}
	if _, err := cat.CanonicalizeRatings(map[string]int{"Mystery": 3}); err == nil {
		t.Fatal("expected unmapped label to fail")
	}
}
