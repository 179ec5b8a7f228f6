package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saludpro/backoffice-api/internal/model"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
)

type fakeRBACRepository struct {
	roles       map[string]*model.Role
	permsByRole map[uuid.UUID][]*model.Permission
	links       map[uuid.UUID]map[uuid.UUID]*model.UserRole
	roleLookups int
}

func newFakeRBACRepository() *fakeRBACRepository {
	return &fakeRBACRepository{
		roles:       make(map[string]*model.Role),
		permsByRole: make(map[uuid.UUID][]*model.Permission),
		links:       make(map[uuid.UUID]map[uuid.UUID]*model.UserRole),
	}
}

func (f *fakeRBACRepository) addRole(name string, perms ...*model.Permission) *model.Role {
	role := &model.Role{Name: name, IsActive: true}
	role.ID = uuid.New()
	f.roles[name] = role
	f.permsByRole[role.ID] = perms
	return role
}

func (f *fakeRBACRepository) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	f.roleLookups++
	role, ok := f.roles[name]
	if !ok {
		return nil, apperrors.E(apperrors.KindNotFound)
	}
	return role, nil
}

func (f *fakeRBACRepository) ListRoles(ctx context.Context) ([]*model.Role, error) {
	var out []*model.Role
	for _, r := range f.roles {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRBACRepository) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	seen := map[string]bool{}
	var out []*model.Permission
	for _, perms := range f.permsByRole {
		for _, p := range perms {
			if !seen[p.Name] {
				seen[p.Name] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeRBACRepository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]*model.Role, error) {
	var out []*model.Role
	for _, role := range f.roles {
		if _, ok := f.links[userID][role.ID]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (f *fakeRBACRepository) GetRolePermissions(ctx context.Context, roleID uuid.UUID) ([]*model.Permission, error) {
	return f.permsByRole[roleID], nil
}

func (f *fakeRBACRepository) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]*model.Permission, error) {
	seen := map[string]bool{}
	var out []*model.Permission
	for roleID := range f.links[userID] {
		for _, p := range f.permsByRole[roleID] {
			if !seen[p.Name] {
				seen[p.Name] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeRBACRepository) GetUserRole(ctx context.Context, userID, roleID uuid.UUID) (*model.UserRole, error) {
	if link, ok := f.links[userID][roleID]; ok {
		return link, nil
	}
	return nil, apperrors.E(apperrors.KindNotFound)
}

func (f *fakeRBACRepository) CreateUserRole(ctx context.Context, link *model.UserRole) error {
	if _, ok := f.links[link.UserID][link.RoleID]; ok {
		return apperrors.E(apperrors.KindAlreadyExists)
	}
	link.ID = uuid.New()
	if f.links[link.UserID] == nil {
		f.links[link.UserID] = make(map[uuid.UUID]*model.UserRole)
	}
	f.links[link.UserID][link.RoleID] = link
	return nil
}

func (f *fakeRBACRepository) DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	delete(f.links[userID], roleID)
	return nil
}

func (f *fakeRBACRepository) UserHasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	role, ok := f.roles[roleName]
	if !ok {
		return false, nil
	}
	_, has := f.links[userID][role.ID]
	return has, nil
}

func (f *fakeRBACRepository) UserHasAnyRole(ctx context.Context, userID uuid.UUID, roleNames []string) (bool, error) {
	for _, name := range roleNames {
		if has, _ := f.UserHasRole(ctx, userID, name); has {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRBACRepository) UserHasPermission(ctx context.Context, userID uuid.UUID, permissionName string) (bool, error) {
	perms, _ := f.GetUserPermissions(ctx, userID)
	for _, p := range perms {
		if p.Name == permissionName {
			return true, nil
		}
	}
	return false, nil
}

func perm(name string) *model.Permission {
	p := &model.Permission{Name: name}
	p.ID = uuid.New()
	return p
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	repo := newFakeRBACRepository()
	repo.addRole(model.RoleProfessional)
	svc := NewService(repo)
	userID := uuid.New()

	first, err := svc.AssignRole(context.Background(), userID, model.RoleProfessional, nil)
	require.NoError(t, err)

	second, err := svc.AssignRole(context.Background(), userID, model.RoleProfessional, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.links[userID], 1)
}

func TestAssignRoleUnknownRole(t *testing.T) {
	repo := newFakeRBACRepository()
	svc := NewService(repo)

	_, err := svc.AssignRole(context.Background(), uuid.New(), "GHOST", nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRoleNotFound))
}

func TestRemoveRoleAbsentLinkIsNoop(t *testing.T) {
	repo := newFakeRBACRepository()
	repo.addRole(model.RoleProfessional)
	svc := NewService(repo)

	err := svc.RemoveRole(context.Background(), uuid.New(), model.RoleProfessional)
	assert.NoError(t, err)
}

func TestRemoveRoleUnknownRole(t *testing.T) {
	repo := newFakeRBACRepository()
	svc := NewService(repo)

	err := svc.RemoveRole(context.Background(), uuid.New(), "GHOST")
	assert.True(t, apperrors.IsKind(err, apperrors.KindRoleNotFound))
}

func TestHasAnyRoleEmptySet(t *testing.T) {
	repo := newFakeRBACRepository()
	svc := NewService(repo)

	has, err := svc.HasAnyRole(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHasPermission(t *testing.T) {
	repo := newFakeRBACRepository()
	repo.addRole(model.RoleProfessional, perm(model.PermissionPatientsDelete))
	svc := NewService(repo)
	userID := uuid.New()

	_, err := svc.AssignRole(context.Background(), userID, model.RoleProfessional, nil)
	require.NoError(t, err)

	has, err := svc.HasPermission(context.Background(), userID, model.PermissionPatientsDelete)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasPermission(context.Background(), userID, model.PermissionUsersApprove)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGetUserPermissionsUnionIsDeduplicated(t *testing.T) {
	repo := newFakeRBACRepository()
	read := perm("patients:read")
	repo.addRole(model.RoleSuperAdmin, read, perm("users:delete"))
	repo.addRole(model.RoleProfessional, read)
	svc := NewService(repo)
	userID := uuid.New()

	_, err := svc.AssignRole(context.Background(), userID, model.RoleSuperAdmin, nil)
	require.NoError(t, err)
	_, err = svc.AssignRole(context.Background(), userID, model.RoleProfessional, nil)
	require.NoError(t, err)

	perms, err := svc.GetUserPermissions(context.Background(), userID)
	require.NoError(t, err)

	names := make(map[string]int)
	for _, p := range perms {
		names[p.Name]++
	}
	assert.Equal(t, 1, names["patients:read"])
	assert.Equal(t, 1, names["users:delete"])
}

func TestRoleDefinitionIsCached(t *testing.T) {
	repo := newFakeRBACRepository()
	repo.addRole(model.RoleProfessional)
	svc := NewService(repo)

	_, err := svc.AssignRole(context.Background(), uuid.New(), model.RoleProfessional, nil)
	require.NoError(t, err)
	lookupsAfterFirst := repo.roleLookups

	_, err = svc.AssignRole(context.Background(), uuid.New(), model.RoleProfessional, nil)
	require.NoError(t, err)

	assert.Equal(t, lookupsAfterFirst, repo.roleLookups, "second assignment should hit the role cache")
}
