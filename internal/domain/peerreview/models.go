package peerreview

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("peer review not found")
	ErrForbidden    = errors.New("not permitted")
	ErrDuplicate    = errors.New("peer review already submitted for this evaluation")
	ErrInvalidState = errors.New("evaluation is not open for peer review")
)

// Ratings are the four peer dimensions, each 1..5 when set.
type Ratings struct {
	Collaboration *int `json:"collaborationRating"`
	Communication *int `json:"communicationRating"`
	Technical     *int `json:"technicalRating"`
	Leadership    *int `json:"leadershipRating"`
}

type PeerReview struct {
	ID            string `json:"id"`
	EvaluationID  string `json:"evaluationId"`
	ReviewerID    string `json:"reviewerId"`
	ReviewerName  string `json:"reviewerName"`
	ReviewerEmail string `json:"reviewerEmail"`
	Strengths     string `json:"strengths"`
	Weaknesses    string `json:"weaknesses"`
	Suggestions   string `json:"suggestions"`
	Ratings
	OverallRating *int      `json:"overallRating"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Input creates a review or patches one; nil fields are left untouched on
// update.
type Input struct {
	EvaluationID string  `json:"evaluationId"`
	Strengths    *string `json:"strengths" validate:"omitempty,max=4000"`
	Weaknesses   *string `json:"weaknesses" validate:"omitempty,max=4000"`
	Suggestions  *string `json:"suggestions" validate:"omitempty,max=4000"`
	Ratings
}

type Averages struct {
	Collaboration *float64 `json:"collaboration"`
	Communication *float64 `json:"communication"`
	Technical     *float64 `json:"technical"`
	Leadership    *float64 `json:"leadership"`
	Overall       *float64 `json:"overall"`
}

type Summary struct {
	EvaluationID string   `json:"evaluationId"`
	ReviewCount  int      `json:"reviewCount"`
	Averages     Averages `json:"averages"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Suggestions  []string `json:"suggestions"`
	Summary      string   `json:"summary"`
}
