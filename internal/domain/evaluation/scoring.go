package evaluation

import "math"

// ComputeAverage averages the in-range scores of ratings, skipping
// excludeKey. The result is rounded to one decimal and clamped to [1,5];
// nil means nothing is rated.
func ComputeAverage(ratings RatingMap, excludeKey string) *float64 {
	mean, ok := meanOf(ratings, excludeKey)
	if !ok {
		return nil
	}
	avg := clamp(math.Round(mean*10)/10, MinScore, MaxScore)
	return &avg
}

// RoundedOverall is the persisted overall: the mean rounded to the nearest
// integer and clamped to [1,5].
func RoundedOverall(ratings RatingMap, excludeKey string) *int {
	mean, ok := meanOf(ratings, excludeKey)
	if !ok {
		return nil
	}
	overall := int(clamp(math.Round(mean), MinScore, MaxScore))
	return &overall
}

// EmployeeDisplayOverall prefers the stored overall, then the computed average.
func EmployeeDisplayOverall(e Evaluation) *float64 {
	if e.EmployeeOverall != nil {
		v := clamp(float64(*e.EmployeeOverall), MinScore, MaxScore)
		return &v
	}
	return ComputeAverage(e.EmployeeRatings, OverallKey)
}

// ManagerDisplayOverall prefers the average of the manager's competency
// scores, so a stale stored overall never wins over fresher ratings.
func ManagerDisplayOverall(e Evaluation) *float64 {
	if avg := ComputeAverage(e.ManagerRatings, OverallKey); avg != nil {
		return avg
	}
	if e.ManagerOverall != nil {
		v := clamp(float64(*e.ManagerOverall), MinScore, MaxScore)
		return &v
	}
	return nil
}

// ValidateRatings checks an employee submission map.
func ValidateRatings(field string, ratings RatingMap) *ValidationError {
	verr := &ValidationError{}
	if len(ratings) == 0 {
		verr.add(field, "at least one competency must be rated")
		return verr
	}
	for _, key := range ratings.sortedKeys() {
		if key == OverallKey {
			verr.add(field+"."+key, "overall is computed and cannot be submitted")
			continue
		}
		if !InRange(ratings[key]) {
			verr.add(field+"."+key, "must be between 1 and 5")
		}
	}
	return verr
}

func InRange(score int) bool {
	return score >= MinScore && score <= MaxScore
}

func meanOf(ratings RatingMap, excludeKey string) (float64, bool) {
	sum, n := 0, 0
	for key, score := range ratings {
		if key == excludeKey || !InRange(score) {
			continue
		}
		sum += score
		n++
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
