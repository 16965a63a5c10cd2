package evaluation

import "context"

type StoreAPI interface {
	List(ctx context.Context, scope Scope, filter Filter) ([]Evaluation, error)
	Get(ctx context.Context, id string) (Evaluation, error)
	FindByTuple(ctx context.Context, employeeID, projectID string, year, quarter int) (Evaluation, error)
	Create(ctx context.Context, e Evaluation) (Evaluation, error)
	SubmitDraft(ctx context.Context, id string, e Evaluation) (Evaluation, error)
	PutManagerScore(ctx context.Context, id, competency string, score int) (Evaluation, error)
	MarkReviewed(ctx context.Context, id string, review Review) (Evaluation, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) (Evaluation, error)
	Delete(ctx context.Context, id string) error
	CreateDrafts(ctx context.Context, drafts []Evaluation) (int, error)
}
