package catalog

import "time"

// OverallKey is the reserved rating-map key holding a summary score.
const OverallKey = "overall"

// Competency is one key evaluation question (KEQ).
type Competency struct {
	ID                   string    `json:"id"`
	Text                 string    `json:"text"`
	Category             string    `json:"category"`
	OrderIndex           int       `json:"orderIndex"`
	EffectiveFromYear    *int      `json:"effectiveFromYear,omitempty"`
	EffectiveFromQuarter *int      `json:"effectiveFromQuarter,omitempty"`
	IsActive             bool      `json:"isActive"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

type Period struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

func (p Period) Compare(o Period) int {
	switch {
	case p.Year != o.Year:
		if p.Year < o.Year {
			return -1
		}
		return 1
	case p.Quarter < o.Quarter:
		return -1
	case p.Quarter > o.Quarter:
		return 1
	default:
		return 0
	}
}

// EffectiveFrom returns the first period the competency applies to.
// A competency without a year has always been effective.
func (c Competency) EffectiveFrom() (Period, bool) {
	if c.EffectiveFromYear == nil {
		return Period{}, false
	}
	quarter := 1
	if c.EffectiveFromQuarter != nil {
		quarter = *c.EffectiveFromQuarter
	}
	return Period{Year: *c.EffectiveFromYear, Quarter: quarter}, true
}

func (c Competency) EffectiveAt(asOf Period) bool {
	from, ok := c.EffectiveFrom()
	if !ok {
		return true
	}
	return from.Compare(asOf) <= 0
}

type Input struct {
	Text                 string `json:"text" validate:"required,max=2000"`
	Category             string `json:"category" validate:"required,max=120"`
	OrderIndex           *int   `json:"orderIndex" validate:"omitempty,min=1"`
	EffectiveFromYear    *int   `json:"effectiveFromYear" validate:"omitempty,min=2000,max=2100"`
	EffectiveFromQuarter *int   `json:"effectiveFromQuarter" validate:"omitempty,min=1,max=4"`
	IsActive             *bool  `json:"isActive"`
}

// Apply fills a competency from the input, defaulting order to 1 and active to true.
func (in Input) Apply(c Competency) Competency {
	c.Text = in.Text
	c.Category = in.Category
	c.OrderIndex = 1
	if in.OrderIndex != nil {
		c.OrderIndex = *in.OrderIndex
	}
	c.EffectiveFromYear = in.EffectiveFromYear
	c.EffectiveFromQuarter = in.EffectiveFromQuarter
	if c.EffectiveFromYear == nil {
		c.EffectiveFromQuarter = nil
	}
	c.IsActive = true
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	return c
}
