package project

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("project not found")
	ErrNameTaken = errors.New("project name already exists")
)

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ManagerIDs  []string  `json:"managerIds"`
	MemberIDs   []string  `json:"memberIds"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (p Project) HasMember(userID string) bool {
	return contains(p.MemberIDs, userID)
}

func (p Project) HasManager(userID string) bool {
	return contains(p.ManagerIDs, userID)
}

type Input struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// Contact is the directory view of a user attached to a project.
type Contact struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

type Membership struct {
	ProjectID   string    `json:"projectId"`
	ProjectName string    `json:"projectName"`
	Managers    []Contact `json:"managers"`
}

// Filter narrows List. All ignores IDs; an empty IDs with All unset matches nothing.
type Filter struct {
	All bool
	IDs []string
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
