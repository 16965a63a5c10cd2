package project

import "context"

type StoreAPI interface {
	List(ctx context.Context, filter Filter) ([]Project, error)
	Get(ctx context.Context, id string) (Project, error)
	Create(ctx context.Context, in Input) (Project, error)
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, projectID, userID string) error
	AddManager(ctx context.Context, projectID, userID string) error
	ManagedProjectIDs(ctx context.Context, userID string) ([]string, error)
	MemberProjectIDs(ctx context.Context, userID string) ([]string, error)
	ManagerUserIDs(ctx context.Context, projectID string) ([]string, error)
	MemberUserIDs(ctx context.Context, projectID string) ([]string, error)
	ReplaceMemberships(ctx context.Context, userID string, projectIDs []string) error
	ManagerContacts(ctx context.Context, projectID string) ([]Contact, error)
	EmployeeContacts(ctx context.Context, projectID string) ([]Contact, error)
}
