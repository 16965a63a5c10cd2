package evaluation

import (
	"context"

	"evalhub/internal/domain/auth"
)

// Dashboard is a manager's workload over the projects they manage. The
// manager's own records are not counted.
type Dashboard struct {
	Projects         int    `json:"projects"`
	TeamMembers      int    `json:"teamMembers"`
	PendingReviews   int    `json:"pendingReviews"`
	OverdueReviews   int    `json:"overdueReviews"`
	CompletedReviews int    `json:"completedReviews"`
	OpenDrafts       int    `json:"openDrafts"`
	CurrentPeriod    Period `json:"currentPeriod"`
}

// ManagerDashboard counts review work for the caller's managed projects.
// A submission is overdue once its period is before the current quarter.
func (s *Service) ManagerDashboard(ctx context.Context, id auth.Identity) (Dashboard, error) {
	if !id.HasRole(auth.RoleManager) {
		return Dashboard{}, ErrForbidden
	}
	managed, err := s.Projects.ManagedProjectIDs(ctx, id.UserID)
	if err != nil {
		return Dashboard{}, storeErr("managed projects", err)
	}

	now := s.now()
	current := Period{Year: now.Year(), Quarter: (int(now.Month())-1)/3 + 1}
	out := Dashboard{Projects: len(managed), CurrentPeriod: current}
	if len(managed) == 0 {
		return out, nil
	}

	team := map[string]bool{}
	for _, projectID := range managed {
		members, err := s.Projects.MemberUserIDs(ctx, projectID)
		if err != nil {
			return Dashboard{}, storeErr("project members", err)
		}
		for _, userID := range members {
			if userID != id.UserID {
				team[userID] = true
			}
		}
	}
	out.TeamMembers = len(team)

	items, err := s.Store.List(ctx, Scope{ProjectIDs: managed}, Filter{})
	if err != nil {
		return Dashboard{}, storeErr("list evaluations", err)
	}
	for _, e := range items {
		if e.EmployeeID == id.UserID {
			continue
		}
		switch EffectiveStatus(e) {
		case StatusDraft:
			out.OpenDrafts++
		case StatusSubmitted:
			out.PendingReviews++
			if year, quarter, ok := TimelineOf(e); ok && (year < current.Year || (year == current.Year && quarter < current.Quarter)) {
				out.OverdueReviews++
			}
		case StatusReviewed, StatusArchived:
			out.CompletedReviews++
		}
	}
	return out, nil
}
