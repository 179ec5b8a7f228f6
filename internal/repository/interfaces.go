package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saludpro/backoffice-api/internal/model"
)

type (
	// UserRepository handles account persistence. Get and GetByEmail
	// return soft-deleted rows too; callers inspect the flags.
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
		UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
		SetApproved(ctx context.Context, id uuid.UUID) error
		SoftDelete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, includeDeleted bool) ([]*model.User, error)
		ListPendingApproval(ctx context.Context) ([]*model.User, error)
	}

	// RBACRepository handles the users-roles-permissions graph.
	RBACRepository interface {
		GetRoleByName(ctx context.Context, name string) (*model.Role, error)
		ListRoles(ctx context.Context) ([]*model.Role, error)
		ListPermissions(ctx context.Context) ([]*model.Permission, error)
		GetUserRoles(ctx context.Context, userID uuid.UUID) ([]*model.Role, error)
		GetRolePermissions(ctx context.Context, roleID uuid.UUID) ([]*model.Permission, error)
		GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]*model.Permission, error)
		GetUserRole(ctx context.Context, userID, roleID uuid.UUID) (*model.UserRole, error)
		CreateUserRole(ctx context.Context, link *model.UserRole) error
		DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID) error
		UserHasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error)
		UserHasAnyRole(ctx context.Context, userID uuid.UUID, roleNames []string) (bool, error)
		UserHasPermission(ctx context.Context, userID uuid.UUID, permissionName string) (bool, error)
	}

	// PatientRepository handles the patient aggregate. All multi-table
	// writes run inside a single transaction so a patient is never
	// observable without its dependents.
	PatientRepository interface {
		Get(ctx context.Context, id, professionalID uuid.UUID) (*model.Patient, error)
		GetByDNI(ctx context.Context, dni string, professionalID uuid.UUID) (*model.Patient, error)
		GetAggregate(ctx context.Context, id, professionalID uuid.UUID) (*model.PatientAggregate, error)
		CreateAggregate(ctx context.Context, agg *PatientWrite) error
		UpdateAggregate(ctx context.Context, upd *PatientUpdate) error
		List(ctx context.Context, filters *model.PatientFilters) ([]*model.PatientAggregate, int, error)
		SetDeleted(ctx context.Context, id uuid.UUID, at time.Time, event *model.OutboxEvent) error
		SetActive(ctx context.Context, id uuid.UUID, active bool, deactivatedAt *time.Time) error
		SetApproved(ctx context.Context, id, approvedBy uuid.UUID, at time.Time, event *model.OutboxEvent) error
		Stats(ctx context.Context, professionalID uuid.UUID, monthStart time.Time) (*model.PatientStats, error)
	}

	// OutboxRepository exposes the pending-event queue to the publisher
	// worker.
	OutboxRepository interface {
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	}
)

// PatientWrite is the full aggregate to insert in one transaction.
// Nil dependents are skipped; the event row, when present, is written in
// the same transaction.
type PatientWrite struct {
	Patient         *model.Patient
	Guardians       []*model.Guardian
	HealthInsurance *model.HealthInsurance
	SchoolInfo      *model.SchoolInfo
	BillingInfo     *model.BillingInfo
	Event           *model.OutboxEvent
}

// PatientUpdate is the change set applied to an existing aggregate in one
// transaction. For each 0..1 dependent either Set* (upsert) or Clear*
// (delete all rows) applies; both unset leaves it untouched.
// ReplaceGuardians deletes the stored set and recreates Guardians.
type PatientUpdate struct {
	Patient          *model.Patient
	SetInsurance     *model.HealthInsurance
	ClearInsurance   bool
	SetSchoolInfo    *model.SchoolInfo
	ClearSchoolInfo  bool
	SetBillingInfo   *model.BillingInfo
	ClearBillingInfo bool
	ReplaceGuardians bool
	Guardians        []*model.Guardian
	Event            *model.OutboxEvent
}
