package model

import (
	"time"

	"github.com/google/uuid"
)

// Seed role names. The model supports arbitrary roles; these three are
// created by the seed migration.
const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleProfessional = "PROFESSIONAL"
	RolePatient      = "PATIENT"
)

// Seeded permission names gating individual routes on top of the
// role-level checks.
const (
	PermissionPatientsDelete  = "patients:delete"
	PermissionPatientsApprove = "patients:approve"
	PermissionUsersApprove    = "users:approve"
)

type Role struct {
	Base
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	IsActive    bool   `db:"is_active" json:"is_active"`
}

// Permission names follow the "resource:action" convention.
type Permission struct {
	Base
	Name        string `db:"name" json:"name"`
	Resource    string `db:"resource" json:"resource"`
	Action      string `db:"action" json:"action"`
	Description string `db:"description" json:"description"`
}

// UserRole links a user to a role. Unique on (user_id, role_id);
// membership is additive, never exclusive.
type UserRole struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	UserID     uuid.UUID  `db:"user_id" json:"user_id"`
	RoleID     uuid.UUID  `db:"role_id" json:"role_id"`
	AssignedBy *uuid.UUID `db:"assigned_by" json:"assigned_by,omitempty"`
	AssignedAt time.Time  `db:"assigned_at" json:"assigned_at"`
}

// RolePermission links a role to a permission. Unique on
// (role_id, permission_id).
type RolePermission struct {
	ID           uuid.UUID `db:"id" json:"id"`
	RoleID       uuid.UUID `db:"role_id" json:"role_id"`
	PermissionID uuid.UUID `db:"permission_id" json:"permission_id"`
}

// AssignRoleRequest represents role assignment parameters. The target
// user comes from the URL path.
type AssignRoleRequest struct {
	RoleName string `json:"role_name" binding:"required"`
}
