package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saludpro/backoffice-api/internal/email"
	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/repository"
	"github.com/saludpro/backoffice-api/internal/service/rbac"
	"github.com/saludpro/backoffice-api/pkg/logger"
)

// Service handles account administration: listing, approval, profile
// updates and soft deletion.
type Service struct {
	userRepo repository.UserRepository
	rbacSvc  *rbac.Service
	mailer   email.Service
	logger   *logger.Logger
}

func NewService(userRepo repository.UserRepository, rbacSvc *rbac.Service,
	mailer email.Service, logger *logger.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		rbacSvc:  rbacSvc,
		mailer:   mailer,
		logger:   logger,
	}
}

// GetUser returns the public projection of one user.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.UserResponse, error) {
	user, err := s.userRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, user)
}

// ListUsers returns all users, optionally including soft-deleted ones.
func (s *Service) ListUsers(ctx context.Context, includeDeleted bool) ([]*model.UserResponse, error) {
	users, err := s.userRepo.List(ctx, includeDeleted)
	if err != nil {
		return nil, err
	}
	return s.projectAll(ctx, users)
}

// ListPendingApproval returns users awaiting admin approval.
func (s *Service) ListPendingApproval(ctx context.Context) ([]*model.UserResponse, error) {
	users, err := s.userRepo.ListPendingApproval(ctx)
	if err != nil {
		return nil, err
	}
	return s.projectAll(ctx, users)
}

// UpdateUser applies the non-nil profile fields and returns the refreshed
// projection.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, req *model.UpdateUserRequest) (*model.UserResponse, error) {
	user, err := s.userRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.OrganizationName != nil {
		user.OrganizationName = req.OrganizationName
	}
	if req.Address != nil {
		user.Address = req.Address
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.ProfessionalType != nil {
		user.ProfessionalType = req.ProfessionalType
	}
	if req.LicenseNumber != nil {
		user.LicenseNumber = req.LicenseNumber
	}
	if req.Specialization != nil {
		user.Specialization = req.Specialization
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return s.project(ctx, user)
}

// ApproveUser marks the account approved and notifies the owner by email.
// The notification is best-effort and never fails the approval.
func (s *Service) ApproveUser(ctx context.Context, id uuid.UUID) (*model.UserResponse, error) {
	user, err := s.userRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.SetApproved(ctx, id); err != nil {
		return nil, err
	}
	user.IsApproved = true

	if err := s.mailer.SendAccountApproved(ctx, user.Email, user.FirstName); err != nil {
		s.logger.Error(err, "failed to send approval email", "user_id", id.String())
	}

	return s.project(ctx, user)
}

// DeleteUser soft-deletes the account.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.userRepo.SoftDelete(ctx, id)
}

func (s *Service) project(ctx context.Context, user *model.User) (*model.UserResponse, error) {
	roleNames, err := s.rbacSvc.GetUserRoleNames(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}
	return user.ToResponse(roleNames), nil
}

func (s *Service) projectAll(ctx context.Context, users []*model.User) ([]*model.UserResponse, error) {
	responses := make([]*model.UserResponse, 0, len(users))
	for _, user := range users {
		resp, err := s.project(ctx, user)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}
