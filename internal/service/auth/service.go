package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/repository"
	"github.com/saludpro/backoffice-api/internal/service/rbac"
	"github.com/saludpro/backoffice-api/pkg/auth"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
	"github.com/saludpro/backoffice-api/pkg/security"
)

// Service handles registration, credential verification and password
// changes. Role assignment is delegated to the authorization engine.
type Service struct {
	userRepo repository.UserRepository
	rbacSvc  *rbac.Service
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
}

func NewService(userRepo repository.UserRepository, rbacSvc *rbac.Service,
	jwtSvc auth.JWTService, hasher security.PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		rbacSvc:  rbacSvc,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
	}
}

// Register creates an account, assigns the requested roles (default
// PROFESSIONAL) and issues a session token.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	existing, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if existing != nil {
		return nil, apperrors.E(apperrors.KindEmailAlreadyExists)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:            req.Email,
		PasswordHash:     passwordHash,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		OrganizationName: req.OrganizationName,
		Address:          req.Address,
		PhoneNumber:      req.PhoneNumber,
		ProfessionalType: req.ProfessionalType,
		LicenseNumber:    req.LicenseNumber,
		Specialization:   req.Specialization,
		IsActive:         true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	rolesToAssign := req.Roles
	if len(rolesToAssign) == 0 {
		rolesToAssign = []string{model.RoleProfessional}
	}
	for _, roleName := range rolesToAssign {
		if _, err := s.rbacSvc.AssignRole(ctx, user.ID, roleName, nil); err != nil {
			return nil, err
		}
	}

	roleNames, err := s.rbacSvc.GetUserRoleNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.jwtSvc.GenerateToken(&model.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  roleNames,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &model.AuthResponse{
		User:  user.ToResponse(roleNames),
		Token: token,
	}, nil
}

// Login verifies credentials and account state. Approval and activation
// are checked before the password comparison; this mirrors the existing
// backoffice behavior and is kept deliberately.
func (s *Service) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.E(apperrors.KindInvalidCredentials)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user.IsDeleted {
		return nil, apperrors.E(apperrors.KindInvalidCredentials)
	}
	if !user.IsActive {
		return nil, apperrors.E(apperrors.KindAccountInactive)
	}
	if !user.IsApproved {
		return nil, apperrors.E(apperrors.KindAccountPendingApproval)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.E(apperrors.KindInvalidCredentials)
	}

	now := time.Now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	roleNames, err := s.rbacSvc.GetUserRoleNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.jwtSvc.GenerateToken(&model.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  roleNames,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &model.AuthResponse{
		User:  user.ToResponse(roleNames),
		Token: token,
	}, nil
}

// ChangePassword re-hashes and stores the new password after verifying
// the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return apperrors.E(apperrors.KindCurrentPasswordIncorrect)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.userRepo.UpdatePassword(ctx, userID, passwordHash)
}

// ValidateToken parses and verifies a session token.
func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	return s.jwtSvc.ValidateToken(token)
}
