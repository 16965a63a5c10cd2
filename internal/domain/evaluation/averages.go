package evaluation

import (
	"math"

	"evalhub/internal/domain/catalog"
)

type CompetencyAverage struct {
	Competency string   `json:"competency"`
	Employee   *float64 `json:"employee"`
	Manager    *float64 `json:"manager"`
}

type Averages struct {
	EmployeeID      string              `json:"employeeId"`
	Evaluations     int                 `json:"evaluations"`
	Competencies    []CompetencyAverage `json:"competencies"`
	EmployeeOverall *float64            `json:"employeeOverall"`
	ManagerOverall  *float64            `json:"managerOverall"`
}

// ComputeAverages summarizes one employee's evaluations per catalog column,
// separately for the employee and manager tracks. When the catalog has no
// columns the rated labels themselves are used.
func ComputeAverages(employeeID string, items []Evaluation, cat *catalog.Catalog) Averages {
	out := Averages{EmployeeID: employeeID, Evaluations: len(items)}
	if cat == nil {
		cat = catalog.New(nil, catalog.MustAliasTable(catalog.DefaultAliases))
	}

	labels := columnLabels(cat)
	if len(labels) == 0 {
		labels = ratedLabels(items)
	}
	for _, label := range labels {
		var selfScores, managerScores []float64
		for _, e := range items {
			if score, ok := cat.Lookup(e.EmployeeRatings, label); ok {
				selfScores = append(selfScores, float64(score))
			}
			if score, ok := cat.Lookup(e.ManagerRatings, label); ok {
				managerScores = append(managerScores, float64(score))
			}
		}
		out.Competencies = append(out.Competencies, CompetencyAverage{
			Competency: label,
			Employee:   averageOf(selfScores),
			Manager:    averageOf(managerScores),
		})
	}

	var selfOverall, managerOverall []float64
	for _, e := range items {
		if v := EmployeeDisplayOverall(e); v != nil {
			selfOverall = append(selfOverall, *v)
		}
		if v := ManagerDisplayOverall(e); v != nil {
			managerOverall = append(managerOverall, *v)
		}
	}
	out.EmployeeOverall = averageOf(selfOverall)
	out.ManagerOverall = averageOf(managerOverall)
	return out
}

func columnLabels(cat *catalog.Catalog) []string {
	var labels []string
	for _, c := range cat.Columns() {
		labels = append(labels, catalog.TitleLabel(c.Category))
	}
	return labels
}

func ratedLabels(items []Evaluation) []string {
	seen := map[string]bool{}
	var labels []string
	for _, e := range items {
		for _, m := range []RatingMap{e.EmployeeRatings, e.ManagerRatings} {
			for _, key := range m.sortedKeys() {
				if key == OverallKey || seen[key] {
					continue
				}
				seen[key] = true
				labels = append(labels, key)
			}
		}
	}
	return labels
}

func averageOf(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := clamp(math.Round(sum/float64(len(values))*10)/10, MinScore, MaxScore)
	return &avg
}
