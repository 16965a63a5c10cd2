package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RatingMap maps a competency label to a score in [1,5]. Missing, null and
// zero entries mean "not rated" and are dropped while decoding.
type RatingMap map[string]int

func (m *RatingMap) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(RatingMap, len(raw))
	for key, value := range raw {
		score, ok, err := coerceScore(value)
		if err != nil {
			return fmt.Errorf("rating %q: %w", key, err)
		}
		if ok {
			out[key] = score
		}
	}
	*m = out
	return nil
}

// coerceScore accepts JSON numbers and numeric strings such as "4".
func coerceScore(value any) (int, bool, error) {
	var f float64
	var err error
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		f, err = v.Float64()
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false, nil
		}
		f, err = strconv.ParseFloat(trimmed, 64)
	default:
		return 0, false, errors.New("must be a number")
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, errors.New("must be a number")
	}
	if f == 0 {
		return 0, false, nil
	}
	if f != math.Trunc(f) {
		return 0, false, errors.New("must be a whole number")
	}
	if math.Abs(f) > 1000 {
		return 0, false, errors.New("out of range")
	}
	return int(f), true, nil
}

func (m RatingMap) Clone() RatingMap {
	if m == nil {
		return nil
	}
	out := make(RatingMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Competencies returns the map without the reserved overall key.
func (m RatingMap) Competencies() RatingMap {
	out := make(RatingMap, len(m))
	for k, v := range m {
		if k != OverallKey {
			out[k] = v
		}
	}
	return out
}

type Narrative struct {
	Achievements string `json:"achievements"`
	Challenges   string `json:"challenges"`
	Learnings    string `json:"learnings"`
	Goals        string `json:"goals"`
	Feedback     string `json:"feedback"`
}

type Evaluation struct {
	ID                string     `json:"id"`
	EmployeeID        string     `json:"employeeId"`
	EmployeeName      string     `json:"employeeName"`
	EmployeeEmail     string     `json:"employeeEmail"`
	ProjectID         string     `json:"projectId"`
	ProjectName       string     `json:"projectName,omitempty"`
	EvaluationYear    int        `json:"evaluationYear,omitempty"`
	EvaluationQuarter int        `json:"evaluationQuarter,omitempty"`
	EmployeeRatings   RatingMap  `json:"employeeRatings"`
	EmployeeOverall   *int       `json:"employeeOverall"`
	ManagerRatings    RatingMap  `json:"managerRatings"`
	ManagerOverall    *int       `json:"managerOverall"`
	Status            Status     `json:"status"`
	ManagerFeedback   string     `json:"managerFeedback,omitempty"`
	Recommendations   string     `json:"recommendations,omitempty"`
	ReviewerName      *string    `json:"reviewerName"`
	SubmittedAt       *time.Time `json:"submittedAt,omitempty"`
	ReviewedAt        *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	Narrative
}

// View is the read-path shape: the stored record plus derived display fields.
type View struct {
	Evaluation
	EffectiveStatus        Status   `json:"effectiveStatus"`
	Timeline               string   `json:"timeline"`
	EmployeeOverallDisplay *float64 `json:"employeeOverallDisplay"`
	ManagerOverallDisplay  *float64 `json:"managerOverallDisplay"`
}

func NewView(e Evaluation) View {
	return View{
		Evaluation:             e,
		EffectiveStatus:        EffectiveStatus(e),
		Timeline:               BucketKey(e),
		EmployeeOverallDisplay: EmployeeDisplayOverall(e),
		ManagerOverallDisplay:  ManagerDisplayOverall(e),
	}
}

func NewViews(items []Evaluation) []View {
	out := make([]View, 0, len(items))
	for _, e := range items {
		out = append(out, NewView(e))
	}
	return out
}

// Submission is an employee's self-assessment for one project and quarter.
// EvaluationID targets an existing draft.
type Submission struct {
	EvaluationID      string    `json:"evaluationId"`
	ProjectID         string    `json:"projectId"`
	EvaluationYear    int       `json:"evaluationYear"`
	EvaluationQuarter int       `json:"evaluationQuarter"`
	CompetencyRatings RatingMap `json:"competencyRatings"`
	Narrative
}

type Review struct {
	ReviewerName    string
	ManagerFeedback string
	Recommendations string
	ReviewedAt      time.Time
}

type ReviewInput struct {
	ManagerFeedback string `json:"managerFeedback" validate:"max=10000"`
	Recommendations string `json:"recommendations" validate:"max=10000"`
}

type Filter struct {
	Status     Status
	ProjectID  string
	EmployeeID string
	Timeline   string
	Limit      int
	Offset     int
}

type Page struct {
	Items []Evaluation
	Total int
}

type CheckResult struct {
	Exists       bool       `json:"exists"`
	EvaluationID string     `json:"evaluationId,omitempty"`
	Status       Status     `json:"status,omitempty"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
}

type Period struct {
	Year    int `json:"year" validate:"required,min=2000,max=2100"`
	Quarter int `json:"quarter" validate:"required,min=1,max=4"`
}

type DraftResult struct {
	Period    Period   `json:"period"`
	Created   int      `json:"created"`
	Skipped   int      `json:"skipped"`
	Employees []string `json:"employeeIds"`
}

func (m RatingMap) sortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
