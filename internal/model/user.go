package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a backoffice account, usually a healthcare professional.
// Users are soft-deleted, never removed.
type User struct {
	Base
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	FirstName        string     `json:"first_name" db:"first_name"`
	LastName         string     `json:"last_name" db:"last_name"`
	OrganizationName *string    `json:"organization_name" db:"organization_name"`
	Address          *string    `json:"address" db:"address"`
	PhoneNumber      *string    `json:"phone_number" db:"phone_number"`
	ProfessionalType *string    `json:"professional_type" db:"professional_type"`
	LicenseNumber    *string    `json:"license_number" db:"license_number"`
	Specialization   *string    `json:"specialization" db:"specialization"`
	IsApproved       bool       `json:"is_approved" db:"is_approved"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	IsDeleted        bool       `json:"is_deleted" db:"is_deleted"`
	EmailVerified    bool       `json:"email_verified" db:"email_verified"`
	LastLoginAt      *time.Time `json:"last_login_at" db:"last_login_at"`
}

// UserResponse is the public projection of a user, password excluded and
// roles flattened to their names.
type UserResponse struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	OrganizationName *string    `json:"organization_name,omitempty"`
	Address          *string    `json:"address,omitempty"`
	PhoneNumber      *string    `json:"phone_number,omitempty"`
	ProfessionalType *string    `json:"professional_type,omitempty"`
	LicenseNumber    *string    `json:"license_number,omitempty"`
	Specialization   *string    `json:"specialization,omitempty"`
	IsApproved       bool       `json:"is_approved"`
	IsActive         bool       `json:"is_active"`
	IsDeleted        bool       `json:"is_deleted"`
	EmailVerified    bool       `json:"email_verified"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	Roles            []string   `json:"roles"`
}

// ToResponse projects a user for API output.
func (u *User) ToResponse(roles []string) *UserResponse {
	if roles == nil {
		roles = []string{}
	}
	return &UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		OrganizationName: u.OrganizationName,
		Address:          u.Address,
		PhoneNumber:      u.PhoneNumber,
		ProfessionalType: u.ProfessionalType,
		LicenseNumber:    u.LicenseNumber,
		Specialization:   u.Specialization,
		IsApproved:       u.IsApproved,
		IsActive:         u.IsActive,
		IsDeleted:        u.IsDeleted,
		EmailVerified:    u.EmailVerified,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
		LastLoginAt:      u.LastLoginAt,
		Roles:            roles,
	}
}

// RegisterRequest represents registration parameters.
type RegisterRequest struct {
	Email            string   `json:"email" binding:"required,email"`
	Password         string   `json:"password" binding:"required,min=8"`
	FirstName        string   `json:"first_name" binding:"required,min=2"`
	LastName         string   `json:"last_name" binding:"required,min=2"`
	OrganizationName *string  `json:"organization_name"`
	Address          *string  `json:"address"`
	PhoneNumber      *string  `json:"phone_number"`
	ProfessionalType *string  `json:"professional_type"`
	LicenseNumber    *string  `json:"license_number"`
	Specialization   *string  `json:"specialization"`
	Roles            []string `json:"roles"`
}

// LoginRequest represents login parameters.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest represents password change parameters.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// UpdateUserRequest represents profile update parameters. Nil fields are
// left untouched.
type UpdateUserRequest struct {
	FirstName        *string `json:"first_name" binding:"omitempty,min=2"`
	LastName         *string `json:"last_name" binding:"omitempty,min=2"`
	OrganizationName *string `json:"organization_name"`
	Address          *string `json:"address"`
	PhoneNumber      *string `json:"phone_number"`
	ProfessionalType *string `json:"professional_type"`
	LicenseNumber    *string `json:"license_number"`
	Specialization   *string `json:"specialization"`
}

// AuthResponse bundles the public user projection with a session token.
type AuthResponse struct {
	User  *UserResponse `json:"user"`
	Token string        `json:"token"`
}

// TokenClaims are the fields embedded in a session token.
type TokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Roles  []string  `json:"roles"`
}
