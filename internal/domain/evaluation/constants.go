package evaluation

import (
	"strings"

	"evalhub/internal/domain/catalog"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusReviewed  Status = "REVIEWED"
	StatusArchived  Status = "ARCHIVED"
)

// OverallKey is the reserved rating key carrying the summary score.
const OverallKey = catalog.OverallKey

const (
	SourceEmployee = "employee"
	SourceManager  = "manager"
)

const (
	FollowUpManagerOverall = "manager_overall_recompute"
	JobOpenDrafts          = "open_evaluation_drafts"
)

const (
	MinScore = 1
	MaxScore = 5
)

func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusDraft:
		return StatusDraft, true
	case StatusSubmitted:
		return StatusSubmitted, true
	case StatusReviewed:
		return StatusReviewed, true
	case StatusArchived:
		return StatusArchived, true
	}
	return "", false
}
