package notifications

const (
	TypeEvaluationSubmitted = "evaluation_submitted"
	TypeEvaluationReviewed  = "evaluation_reviewed"
	TypeEvaluationArchived  = "evaluation_archived"
	TypeDraftOpened         = "evaluation_draft_opened"
	TypePeerReviewReceived  = "peer_review_received"
)
