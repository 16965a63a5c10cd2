package evaluation

// Scope is the capability a caller's identity grants over evaluation records.
// Every store listing carries one; nothing filters after the fact for access.
type Scope struct {
	All        bool
	EmployeeID string
	ProjectIDs []string
}

func (s Scope) Allows(e Evaluation) bool {
	if s.All {
		return true
	}
	if s.EmployeeID != "" && e.EmployeeID == s.EmployeeID {
		return true
	}
	return s.Manages(e.ProjectID)
}

// Manages reports whether projectID is one of the scope's managed projects.
func (s Scope) Manages(projectID string) bool {
	for _, id := range s.ProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}
