package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/repository"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
)

// Role definitions are seed data that changes rarely; user-role links are
// never cached because authorization must observe revocations immediately.
const (
	roleCacheTTL     = 5 * time.Minute
	roleCacheCleanup = 10 * time.Minute
)

type Service struct {
	repo      repository.RBACRepository
	roleCache *gocache.Cache
}

func NewService(repo repository.RBACRepository) *Service {
	return &Service{
		repo:      repo,
		roleCache: gocache.New(roleCacheTTL, roleCacheCleanup),
	}
}

// HasRole reports whether an active role with the given name is linked to
// the user.
func (s *Service) HasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	has, err := s.repo.UserHasRole(ctx, userID, roleName)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return has, nil
}

// HasAnyRole reports whether the user holds at least one active role from
// the set. Used by route-level gating.
func (s *Service) HasAnyRole(ctx context.Context, userID uuid.UUID, roleNames []string) (bool, error) {
	if len(roleNames) == 0 {
		return false, nil
	}
	has, err := s.repo.UserHasAnyRole(ctx, userID, roleNames)
	if err != nil {
		return false, fmt.Errorf("failed to check roles: %w", err)
	}
	return has, nil
}

// HasPermission reports whether any of the user's active roles carries the
// named permission.
func (s *Service) HasPermission(ctx context.Context, userID uuid.UUID, permissionName string) (bool, error) {
	has, err := s.repo.UserHasPermission(ctx, userID, permissionName)
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return has, nil
}

// GetUserRoles returns the roles linked to the user.
func (s *Service) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]*model.Role, error) {
	roles, err := s.repo.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	return roles, nil
}

// GetUserRoleNames returns the user's role names, for token claims and
// response projections.
func (s *Service) GetUserRoleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	roles, err := s.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

// GetUserPermissions returns the union of permissions across all the
// user's roles, deduplicated by name and role-order-independent.
func (s *Service) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]*model.Permission, error) {
	permissions, err := s.repo.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	return permissions, nil
}

// AssignRole links a role to a user. Idempotent: an existing link is
// returned unchanged.
func (s *Service) AssignRole(ctx context.Context, userID uuid.UUID, roleName string, assignedBy *uuid.UUID) (*model.UserRole, error) {
	role, err := s.getRoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetUserRole(ctx, userID, role.ID)
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		return nil, fmt.Errorf("failed to look up role link: %w", err)
	}

	link := &model.UserRole{
		UserID:     userID,
		RoleID:     role.ID,
		AssignedBy: assignedBy,
	}
	if err := s.repo.CreateUserRole(ctx, link); err != nil {
		// Concurrent assignment of the same link loses the insert race;
		// return the existing row instead.
		if apperrors.IsKind(err, apperrors.KindAlreadyExists) {
			return s.repo.GetUserRole(ctx, userID, role.ID)
		}
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}
	return link, nil
}

// RemoveRole deletes the user-role link if present; removing an absent
// link is a no-op. An undefined role name fails with RoleNotFound.
func (s *Service) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	role, err := s.getRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUserRole(ctx, userID, role.ID); err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return nil
}

// ListRoles returns the role catalog.
func (s *Service) ListRoles(ctx context.Context) ([]*model.Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetRolePermissions returns the permissions granted to one role.
func (s *Service) GetRolePermissions(ctx context.Context, roleName string) ([]*model.Permission, error) {
	role, err := s.getRoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	return s.repo.GetRolePermissions(ctx, role.ID)
}

func (s *Service) getRoleByName(ctx context.Context, name string) (*model.Role, error) {
	if cached, ok := s.roleCache.Get(name); ok {
		return cached.(*model.Role), nil
	}

	role, err := s.repo.GetRoleByName(ctx, name)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.Wrap(apperrors.KindRoleNotFound, err)
		}
		return nil, fmt.Errorf("failed to get role %q: %w", name, err)
	}

	s.roleCache.Set(name, role, gocache.DefaultExpiration)
	return role, nil
}
