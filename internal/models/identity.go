package models

import "strings"

// Role enumerates the platform roles.
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleJudge      Role = "judge"
	RoleVolunteer  Role = "volunteer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// ParseRole normalises a role claim. Unknown values map to the empty role.
func ParseRole(value string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleStudent, RoleTeacher, RoleJudge, RoleVolunteer, RoleAdmin, RoleSuperAdmin:
		return role
	case "super_admin", "super-admin":
		return RoleSuperAdmin
	default:
		return ""
	}
}

// IsAdministrative reports whether the role may manage reviewers and projects.
func (r Role) IsAdministrative() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Affiliation is the role-specific part of an identity. Exactly one concrete type
// applies per role; roles without extra data carry nil.
type Affiliation interface {
	affiliationRole() Role
}

// StudentAffiliation ties a student to the project they work on.
type StudentAffiliation struct {
	ProjectID string `json:"project_id"`
}

func (StudentAffiliation) affiliationRole() Role { return RoleStudent }

// TeacherAffiliation ties a teacher to a class.
type TeacherAffiliation struct {
	ClassID string `json:"class_id"`
}

func (TeacherAffiliation) affiliationRole() Role { return RoleTeacher }

// JudgeAffiliation records the category a judge scores.
type JudgeAffiliation struct {
	Category string `json:"category"`
}

func (JudgeAffiliation) affiliationRole() Role { return RoleJudge }

// Identity is the caller as resolved from the bearer token.
type Identity struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        Role        `json:"role"`
	Affiliation Affiliation `json:"affiliation,omitempty"`
}

// NewAffiliation builds the affiliation variant matching the role from raw claim values.
func NewAffiliation(role Role, attrs map[string]string) Affiliation {
	switch role {
	case RoleStudent:
		if id := strings.TrimSpace(attrs["project_id"]); id != "" {
			return StudentAffiliation{ProjectID: id}
		}
	case RoleTeacher:
		if id := strings.TrimSpace(attrs["class_id"]); id != "" {
			return TeacherAffiliation{ClassID: id}
		}
	case RoleJudge:
		if category := strings.TrimSpace(attrs["category"]); category != "" {
			return JudgeAffiliation{Category: category}
		}
	}
	return nil
}

// ProjectID returns the affiliated project for students.
func (i Identity) ProjectID() string {
	if affiliation, ok := i.Affiliation.(StudentAffiliation); ok {
		return affiliation.ProjectID
	}
	return ""
}

// Name returns the best human readable label for the caller.
func (i Identity) Name() string {
	if strings.TrimSpace(i.DisplayName) != "" {
		return i.DisplayName
	}
	if i.Email != "" {
		return i.Email
	}
	return i.UserID
}
