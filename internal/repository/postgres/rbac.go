package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/repository"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
)

type rbacRepository struct {
	BaseRepository
}

func NewRBACRepository(base BaseRepository) repository.RBACRepository {
	return &rbacRepository{base}
}

func (r *rbacRepository) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	query := `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM roles
		WHERE name = $1
	`
	var role model.Role
	if err := r.db.GetContext(ctx, &role, query, name); err != nil {
		return nil, mapNotFound(err)
	}
	return &role, nil
}

func (r *rbacRepository) ListRoles(ctx context.Context) ([]*model.Role, error) {
	query := `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM roles
		ORDER BY name ASC
	`
	roles := []*model.Role{}
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

func (r *rbacRepository) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	query := `
		SELECT id, name, resource, action, description, created_at, updated_at
		FROM permissions
		ORDER BY name ASC
	`
	permissions := []*model.Permission{}
	if err := r.db.SelectContext(ctx, &permissions, query); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return permissions, nil
}

func (r *rbacRepository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]*model.Role, error) {
	query := `
		SELECT r.id, r.name, r.description, r.is_active, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name ASC
	`
	roles := []*model.Role{}
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	return roles, nil
}

func (r *rbacRepository) GetRolePermissions(ctx context.Context, roleID uuid.UUID) ([]*model.Permission, error) {
	query := `
		SELECT p.id, p.name, p.resource, p.action, p.description, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name ASC
	`
	permissions := []*model.Permission{}
	if err := r.db.SelectContext(ctx, &permissions, query, roleID); err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	return permissions, nil
}

// GetUserPermissions returns the deduplicated union of permissions across
// all the user's active roles.
func (r *rbacRepository) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]*model.Permission, error) {
	query := `
		SELECT DISTINCT p.id, p.name, p.resource, p.action, p.description, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		JOIN user_roles ur ON rp.role_id = ur.role_id
		JOIN roles r ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.is_active
		ORDER BY p.name ASC
	`
	permissions := []*model.Permission{}
	if err := r.db.SelectContext(ctx, &permissions, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user permissions: %w", err)
	}
	return permissions, nil
}

func (r *rbacRepository) GetUserRole(ctx context.Context, userID, roleID uuid.UUID) (*model.UserRole, error) {
	query := `
		SELECT id, user_id, role_id, assigned_by, assigned_at
		FROM user_roles
		WHERE user_id = $1 AND role_id = $2
	`
	var link model.UserRole
	if err := r.db.GetContext(ctx, &link, query, userID, roleID); err != nil {
		return nil, mapNotFound(err)
	}
	return &link, nil
}

func (r *rbacRepository) CreateUserRole(ctx context.Context, link *model.UserRole) error {
	query := `
		INSERT INTO user_roles (id, user_id, role_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	link.ID = uuid.New()
	link.AssignedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		link.ID,
		link.UserID,
		link.RoleID,
		link.AssignedBy,
		link.AssignedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrap(apperrors.KindAlreadyExists, err)
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (r *rbacRepository) DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`

	_, err := r.db.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return nil
}

func (r *rbacRepository) UserHasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN roles r ON ur.role_id = r.id
			WHERE ur.user_id = $1 AND r.name = $2 AND r.is_active
		)
	`
	var has bool
	if err := r.db.GetContext(ctx, &has, query, userID, roleName); err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return has, nil
}

func (r *rbacRepository) UserHasAnyRole(ctx context.Context, userID uuid.UUID, roleNames []string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN roles r ON ur.role_id = r.id
			WHERE ur.user_id = $1 AND r.name = ANY($2) AND r.is_active
		)
	`
	var has bool
	if err := r.db.GetContext(ctx, &has, query, userID, pq.Array(roleNames)); err != nil {
		return false, fmt.Errorf("failed to check roles: %w", err)
	}
	return has, nil
}

func (r *rbacRepository) UserHasPermission(ctx context.Context, userID uuid.UUID, permissionName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN roles r ON ur.role_id = r.id
			JOIN role_permissions rp ON ur.role_id = rp.role_id
			JOIN permissions p ON rp.permission_id = p.id
			WHERE ur.user_id = $1 AND p.name = $2 AND r.is_active
		)
	`
	var has bool
	if err := r.db.GetContext(ctx, &has, query, userID, permissionName); err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return has, nil
}
