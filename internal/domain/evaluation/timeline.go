package evaluation

import (
	"fmt"
	"sort"
	"strings"
)

const NoTimeline = "No Timeline"

type Bucket struct {
	Key         string       `json:"key"`
	Year        int          `json:"year,omitempty"`
	Quarter     int          `json:"quarter,omitempty"`
	Evaluations []Evaluation `json:"evaluations"`
}

// TimelineOf returns the record's year and quarter, falling back to the
// calendar quarter of submittedAt when either is missing.
func TimelineOf(e Evaluation) (year, quarter int, ok bool) {
	if e.EvaluationYear > 0 && e.EvaluationQuarter >= 1 && e.EvaluationQuarter <= 4 {
		return e.EvaluationYear, e.EvaluationQuarter, true
	}
	if e.SubmittedAt != nil && !e.SubmittedAt.IsZero() {
		return e.SubmittedAt.Year(), (int(e.SubmittedAt.Month())-1)/3 + 1, true
	}
	return 0, 0, false
}

func BucketKey(e Evaluation) string {
	year, quarter, ok := TimelineOf(e)
	if !ok {
		return NoTimeline
	}
	return bucketLabel(year, quarter)
}

func bucketLabel(year, quarter int) string {
	return fmt.Sprintf("Q%d %d", quarter, year)
}

// GroupByTimeline buckets evaluations most recent quarter first, with
// "No Timeline" last. Input order is kept inside each bucket.
func GroupByTimeline(items []Evaluation) []Bucket {
	index := map[string]int{}
	var buckets []Bucket
	for _, e := range items {
		key := BucketKey(e)
		i, ok := index[key]
		if !ok {
			year, quarter, _ := TimelineOf(e)
			buckets = append(buckets, Bucket{Key: key, Year: year, Quarter: quarter})
			i = len(buckets) - 1
			index[key] = i
		}
		buckets[i].Evaluations = append(buckets[i].Evaluations, e)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if (a.Key == NoTimeline) != (b.Key == NoTimeline) {
			return b.Key == NoTimeline
		}
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.Quarter > b.Quarter
	})
	return buckets
}

// FilterByTimeline keeps evaluations in the bucket named by key
// ("Q3 2025", case and spacing insensitive). An empty key keeps everything.
func FilterByTimeline(items []Evaluation, key string) []Evaluation {
	want := normalizeBucketKey(key)
	if want == "" {
		return items
	}
	out := make([]Evaluation, 0, len(items))
	for _, e := range items {
		if normalizeBucketKey(BucketKey(e)) == want {
			out = append(out, e)
		}
	}
	return out
}

// SortRecentFirst orders by timeline bucket, then by submission time.
func SortRecentFirst(items []Evaluation) {
	sort.SliceStable(items, func(i, j int) bool {
		yi, qi, oki := TimelineOf(items[i])
		yj, qj, okj := TimelineOf(items[j])
		if oki != okj {
			return oki
		}
		if yi != yj {
			return yi > yj
		}
		if qi != qj {
			return qi > qj
		}
		si, sj := items[i].SubmittedAt, items[j].SubmittedAt
		switch {
		case si != nil && sj != nil:
			return si.After(*sj)
		case si != nil:
			return true
		default:
			return false
		}
	})
}

func normalizeBucketKey(key string) string {
	return strings.ToLower(strings.Join(strings.Fields(key), " "))
}
