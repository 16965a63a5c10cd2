package peerreview

import "context"

type StoreAPI interface {
	Create(ctx context.Context, r PeerReview) (PeerReview, error)
	Get(ctx context.Context, id string) (PeerReview, error)
	Update(ctx context.Context, r PeerReview) (PeerReview, error)
	Delete(ctx context.Context, id string) error
	ListByEvaluation(ctx context.Context, evaluationID string) ([]PeerReview, error)
	ListByReviewer(ctx context.Context, reviewerID string) ([]PeerReview, error)
	Find(ctx context.Context, evaluationID, reviewerID string) (PeerReview, error)
}
