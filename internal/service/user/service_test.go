package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/service/rbac"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
	"github.com/saludpro/backoffice-api/pkg/logger"
)

type fakeUserRepository struct {
	users map[uuid.UUID]*model.User
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[uuid.UUID]*model.User)}
}

func (f *fakeUserRepository) add(user *model.User) *model.User {
	user.ID = uuid.New()
	f.users[user.ID] = user
	return user
}

func (f *fakeUserRepository) Create(ctx context.Context, user *model.User) error {
	f.add(user)
	return nil
}

func (f *fakeUserRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.E(apperrors.KindNotFound)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperrors.E(apperrors.KindNotFound)
}

func (f *fakeUserRepository) Update(ctx context.Context, user *model.User) error {
	if _, ok := f.users[user.ID]; !ok {
		return apperrors.E(apperrors.KindNotFound)
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return nil
}

func (f *fakeUserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeUserRepository) SetApproved(ctx context.Context, id uuid.UUID) error {
	u, ok := f.users[id]
	if !ok || u.IsDeleted {
		return apperrors.E(apperrors.KindNotFound)
	}
	u.IsApproved = true
	return nil
}

func (f *fakeUserRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	u, ok := f.users[id]
	if !ok || u.IsDeleted {
		return apperrors.E(apperrors.KindNotFound)
	}
	u.IsDeleted = true
	return nil
}

func (f *fakeUserRepository) List(ctx context.Context, includeDeleted bool) ([]*model.User, error) {
	var out []*model.User
	for _, u := range f.users {
		if !includeDeleted && u.IsDeleted {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUserRepository) ListPendingApproval(ctx context.Context) ([]*model.User, error) {
	var out []*model.User
	for _, u := range f.users {
		if !u.IsApproved && !u.IsDeleted {
			out = append(out, u)
		}
	}
	return out, nil
}

type emptyRolesRepo struct{}

func (emptyRolesRepo) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	return nil, apperrors.E(apperrors.KindNotFound)
}
func (emptyRolesRepo) ListRoles(ctx context.Context) ([]*model.Role, error) { return nil, nil }
func (emptyRolesRepo) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	return nil, nil
}
func (emptyRolesRepo) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]*model.Role, error) {
	return nil, nil
}
func (emptyRolesRepo) GetRolePermissions(ctx context.Context, roleID uuid.UUID) ([]*model.Permission, error) {
	return nil, nil
}
func (emptyRolesRepo) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]*model.Permission, error) {
	return nil, nil
}
func (emptyRolesRepo) GetUserRole(ctx context.Context, userID, roleID uuid.UUID) (*model.UserRole, error) {
	return nil, apperrors.E(apperrors.KindNotFound)
}
func (emptyRolesRepo) CreateUserRole(ctx context.Context, link *model.UserRole) error { return nil }
func (emptyRolesRepo) DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return nil
}
func (emptyRolesRepo) UserHasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	return false, nil
}
func (emptyRolesRepo) UserHasAnyRole(ctx context.Context, userID uuid.UUID, roleNames []string) (bool, error) {
	return false, nil
}
func (emptyRolesRepo) UserHasPermission(ctx context.Context, userID uuid.UUID, permissionName string) (bool, error) {
	return false, nil
}

// recordingMailer captures approval notifications and can be told to fail.
type recordingMailer struct {
	sentTo []string
	fail   bool
}

func (m *recordingMailer) SendAccountApproved(ctx context.Context, to, firstName string) error {
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.sentTo = append(m.sentTo, to)
	return nil
}

func (m *recordingMailer) SendCustom(ctx context.Context, to, subject, body string) error {
	return nil
}

func newTestService(repo *fakeUserRepository, mailer *recordingMailer) *Service {
	rbacSvc := rbac.NewService(emptyRolesRepo{})
	return NewService(repo, rbacSvc, mailer, logger.NewLogger(nil))
}

func pendingUser(email string) *model.User {
	return &model.User{
		Email:     email,
		FirstName: "Ana",
		LastName:  "Garcia",
		IsActive:  true,
	}
}

func TestApproveUserSendsNotification(t *testing.T) {
	repo := newFakeUserRepository()
	mailer := &recordingMailer{}
	svc := newTestService(repo, mailer)
	u := repo.add(pendingUser("ana@example.com"))

	resp, err := svc.ApproveUser(context.Background(), u.ID)
	require.NoError(t, err)

	assert.True(t, resp.IsApproved)
	assert.Equal(t, []string{"ana@example.com"}, mailer.sentTo)
}

func TestApproveUserSurvivesMailFailure(t *testing.T) {
	repo := newFakeUserRepository()
	mailer := &recordingMailer{fail: true}
	svc := newTestService(repo, mailer)
	u := repo.add(pendingUser("ana@example.com"))

	resp, err := svc.ApproveUser(context.Background(), u.ID)
	require.NoError(t, err)

	assert.True(t, resp.IsApproved)
	assert.True(t, repo.users[u.ID].IsApproved)
}

func TestApproveUnknownUser(t *testing.T) {
	svc := newTestService(newFakeUserRepository(), &recordingMailer{})

	_, err := svc.ApproveUser(context.Background(), uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestUpdateUserMergesOnlyProvidedFields(t *testing.T) {
	repo := newFakeUserRepository()
	svc := newTestService(repo, &recordingMailer{})
	u := repo.add(pendingUser("ana@example.com"))

	firstName := "Anabel"
	specialization := "Pediatría"
	resp, err := svc.UpdateUser(context.Background(), u.ID, &model.UpdateUserRequest{
		FirstName:      &firstName,
		Specialization: &specialization,
	})
	require.NoError(t, err)

	assert.Equal(t, "Anabel", resp.FirstName)
	assert.Equal(t, "Garcia", resp.LastName)
	require.NotNil(t, resp.Specialization)
	assert.Equal(t, "Pediatría", *resp.Specialization)
}

func TestListPendingApprovalExcludesApprovedAndDeleted(t *testing.T) {
	repo := newFakeUserRepository()
	svc := newTestService(repo, &recordingMailer{})

	repo.add(pendingUser("pending@example.com"))
	approved := repo.add(pendingUser("approved@example.com"))
	approved.IsApproved = true
	deleted := repo.add(pendingUser("deleted@example.com"))
	deleted.IsDeleted = true

	pending, err := svc.ListPendingApproval(context.Background())
	require.NoError(t, err)

	require.Len(t, pending, 1)
	assert.Equal(t, "pending@example.com", pending[0].Email)
}

func TestDeleteUserHidesFromDefaultListing(t *testing.T) {
	repo := newFakeUserRepository()
	svc := newTestService(repo, &recordingMailer{})
	u := repo.add(pendingUser("ana@example.com"))

	require.NoError(t, svc.DeleteUser(context.Background(), u.ID))

	visible, err := svc.ListUsers(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := svc.ListUsers(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
