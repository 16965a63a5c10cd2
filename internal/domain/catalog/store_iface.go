package catalog

import "context"

type StoreAPI interface {
	List(ctx context.Context) ([]Competency, error)
	Get(ctx context.Context, id string) (Competency, error)
	Create(ctx context.Context, c Competency) (Competency, error)
	Update(ctx context.Context, c Competency) (Competency, error)
	Delete(ctx context.Context, id string) error
}
