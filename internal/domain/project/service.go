package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"evalhub/internal/domain/auth"
)

var ErrForbidden = errors.New("project not visible")

type Service struct {
	Store StoreAPI
}

func NewService(store StoreAPI) *Service {
	return &Service{Store: store}
}

// VisibleIDs returns the project ids the identity may see; all is true for admins.
func (s *Service) VisibleIDs(ctx context.Context, id auth.Identity) (ids []string, all bool, err error) {
	if id.HasRole(auth.RoleAdmin) {
		return nil, true, nil
	}
	seen := map[string]bool{}
	if id.HasRole(auth.RoleManager) {
		managed, err := s.Store.ManagedProjectIDs(ctx, id.UserID)
		if err != nil {
			return nil, false, err
		}
		for _, pid := range managed {
			seen[pid] = true
		}
	}
	member, err := s.Store.MemberProjectIDs(ctx, id.UserID)
	if err != nil {
		return nil, false, err
	}
	for _, pid := range member {
		seen[pid] = true
	}

	ids = make([]string, 0, len(seen))
	for pid := range seen {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	return ids, false, nil
}

func (s *Service) ListFor(ctx context.Context, id auth.Identity) ([]Project, error) {
	ids, all, err := s.VisibleIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Store.List(ctx, Filter{All: all, IDs: ids})
}

func (s *Service) GetFor(ctx context.Context, id auth.Identity, projectID string) (Project, error) {
	p, err := s.Store.Get(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	if id.HasRole(auth.RoleAdmin) || p.HasMember(id.UserID) || p.HasManager(id.UserID) {
		return p, nil
	}
	return Project{}, ErrForbidden
}

func (s *Service) Create(ctx context.Context, in Input) (Project, error) {
	return s.Store.Create(ctx, in)
}

func (s *Service) Delete(ctx context.Context, projectID string) error {
	return s.Store.Delete(ctx, projectID)
}

func (s *Service) AddMember(ctx context.Context, projectID, userID string) error {
	if _, err := s.Store.Get(ctx, projectID); err != nil {
		return err
	}
	return s.Store.AddMember(ctx, projectID, userID)
}

func (s *Service) AddManager(ctx context.Context, projectID, userID string) error {
	if _, err := s.Store.Get(ctx, projectID); err != nil {
		return err
	}
	return s.Store.AddManager(ctx, projectID, userID)
}

func (s *Service) ManagedProjectIDs(ctx context.Context, userID string) ([]string, error) {
	return s.Store.ManagedProjectIDs(ctx, userID)
}

func (s *Service) MemberProjectIDs(ctx context.Context, userID string) ([]string, error) {
	return s.Store.MemberProjectIDs(ctx, userID)
}

func (s *Service) ManagerUserIDs(ctx context.Context, projectID string) ([]string, error) {
	return s.Store.ManagerUserIDs(ctx, projectID)
}

func (s *Service) MemberUserIDs(ctx context.Context, projectID string) ([]string, error) {
	return s.Store.MemberUserIDs(ctx, projectID)
}

// SetMemberships replaces the projects the user belongs to. Unknown project
// ids fail the whole request and leave existing memberships untouched.
func (s *Service) SetMemberships(ctx context.Context, userID string, projectIDs []string) ([]Project, error) {
	seen := map[string]bool{}
	ids := make([]string, 0, len(projectIDs))
	for _, raw := range projectIDs {
		pid := strings.TrimSpace(raw)
		if pid == "" || seen[pid] {
			continue
		}
		seen[pid] = true
		ids = append(ids, pid)
	}
	sort.Strings(ids)

	for _, pid := range ids {
		if _, err := s.Store.Get(ctx, pid); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, pid)
			}
			return nil, err
		}
	}
	if err := s.Store.ReplaceMemberships(ctx, userID, ids); err != nil {
		return nil, err
	}
	return s.Store.List(ctx, Filter{IDs: ids})
}

// MembershipsWithManagers lists the user's projects with who manages each.
func (s *Service) MembershipsWithManagers(ctx context.Context, userID string) ([]Membership, error) {
	ids, err := s.Store.MemberProjectIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	projects, err := s.Store.List(ctx, Filter{IDs: ids})
	if err != nil {
		return nil, err
	}

	out := make([]Membership, 0, len(projects))
	for _, p := range projects {
		managers, err := s.Store.ManagerContacts(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if managers == nil {
			managers = []Contact{}
		}
		out = append(out, Membership{ProjectID: p.ID, ProjectName: p.Name, Managers: managers})
	}
	return out, nil
}

// TeamFor lists the employees of a project the identity manages.
func (s *Service) TeamFor(ctx context.Context, id auth.Identity, projectID string) ([]Contact, error) {
	p, err := s.Store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !id.HasRole(auth.RoleAdmin) && !p.HasManager(id.UserID) {
		return nil, ErrForbidden
	}
	team, err := s.Store.EmployeeContacts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		team = []Contact{}
	}
	return team, nil
}
