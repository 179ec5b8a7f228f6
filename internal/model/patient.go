package model

import (
	"time"

	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusPending  PatientStatus = "PENDING"
	PatientStatusApproved PatientStatus = "APPROVED"
	PatientStatusInactive PatientStatus = "INACTIVE"
)

// Guardian slots. A patient carries up to two guardians, one per type.
const (
	GuardianTypeA = "A"
	GuardianTypeB = "B"
)

// Tax condition values accepted for billing info.
const (
	TaxConditionResponsableInscripto = "RESPONSABLE_INSCRIPTO"
	TaxConditionMonotributo          = "MONOTRIBUTO"
	TaxConditionExento               = "EXENTO"
	TaxConditionConsumidorFinal      = "CONSUMIDOR_FINAL"
)

// Patient is owned exclusively by one professional. The same DNI may
// exist under different professionals; (dni, professional_id) is unique
// among non-deleted rows.
type Patient struct {
	Base
	ProfessionalID uuid.UUID     `db:"professional_id" json:"professional_id"`
	DNI            string        `db:"dni" json:"dni"`
	CUT            *string       `db:"cut" json:"cut,omitempty"`
	FirstName      string        `db:"first_name" json:"first_name"`
	LastName       string        `db:"last_name" json:"last_name"`
	DateOfBirth    time.Time     `db:"date_of_birth" json:"date_of_birth"`
	Address        string        `db:"address" json:"address"`
	PhoneNumber    *string       `db:"phone_number" json:"phone_number,omitempty"`
	Email          *string       `db:"email" json:"email,omitempty"`
	Status         PatientStatus `db:"status" json:"status"`
	IsActive       bool          `db:"is_active" json:"is_active"`
	IsDeleted      bool          `db:"is_deleted" json:"is_deleted"`
	CreatedBy      *uuid.UUID    `db:"created_by" json:"created_by,omitempty"`
	LastModifiedBy *uuid.UUID    `db:"last_modified_by" json:"last_modified_by,omitempty"`
	ApprovedAt     *time.Time    `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy     *uuid.UUID    `db:"approved_by" json:"approved_by,omitempty"`
	DeactivatedAt  *time.Time    `db:"deactivated_at" json:"deactivated_at,omitempty"`
	DeletedAt      *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Age computes full years from the date of birth relative to now,
// decremented when the birthday has not yet occurred this year.
func (p *Patient) Age(now time.Time) int {
	age := now.Year() - p.DateOfBirth.Year()
	if now.Month() < p.DateOfBirth.Month() ||
		(now.Month() == p.DateOfBirth.Month() && now.Day() < p.DateOfBirth.Day()) {
		age--
	}
	return age
}

type Guardian struct {
	Base
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	Type            string    `db:"type" json:"type"`
	FirstName       string    `db:"first_name" json:"first_name"`
	LastName        string    `db:"last_name" json:"last_name"`
	DNI             *string   `db:"dni" json:"dni,omitempty"`
	PhoneNumber     *string   `db:"phone_number" json:"phone_number,omitempty"`
	Email           *string   `db:"email" json:"email,omitempty"`
	Occupation      *string   `db:"occupation" json:"occupation,omitempty"`
	IsLegalGuardian bool      `db:"is_legal_guardian" json:"is_legal_guardian"`
}

type HealthInsurance struct {
	Base
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	InsuranceName   string    `db:"insurance_name" json:"insurance_name"`
	AffiliateNumber *string   `db:"affiliate_number" json:"affiliate_number,omitempty"`
}

type SchoolInfo struct {
	Base
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	SchoolName    string    `db:"school_name" json:"school_name"`
	SchoolAddress string    `db:"school_address" json:"school_address"`
	Grade         string    `db:"grade" json:"grade"`
	Observations  *string   `db:"observations" json:"observations,omitempty"`
}

type BillingInfo struct {
	Base
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	RequiresBilling bool      `db:"requires_billing" json:"requires_billing"`
	BusinessName    string    `db:"business_name" json:"business_name"`
	TaxID           string    `db:"tax_id" json:"tax_id"`
	TaxCondition    string    `db:"tax_condition" json:"tax_condition"`
	FiscalAddress   string    `db:"fiscal_address" json:"fiscal_address"`
	BillingEmail    *string   `db:"billing_email" json:"billing_email,omitempty"`
}

// ProfessionalSummary is the minimal owner projection attached to a
// patient aggregate.
type ProfessionalSummary struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
}

// PatientAggregate is a patient with its dependent sub-records, always
// read and written as a unit.
type PatientAggregate struct {
	Patient
	Age             int                  `json:"age"`
	Guardians       []*Guardian          `json:"guardians"`
	HealthInsurance *HealthInsurance     `json:"health_insurance,omitempty"`
	SchoolInfo      *SchoolInfo          `json:"school_info,omitempty"`
	BillingInfo     *BillingInfo         `json:"billing_info,omitempty"`
	Professional    *ProfessionalSummary `json:"professional,omitempty"`
}

// GuardianInput is one guardian block of a create/update request.
type GuardianInput struct {
	Type        string  `json:"type" binding:"required,oneof=A B"`
	FirstName   string  `json:"first_name" binding:"required"`
	LastName    string  `json:"last_name" binding:"required"`
	DNI         *string `json:"dni"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"email" binding:"omitempty,email"`
	Occupation  *string `json:"occupation"`
}

// HealthInsuranceInput governs the 0..1 insurance dependent. When
// HasInsurance is set, InsuranceName must be present.
type HealthInsuranceInput struct {
	HasInsurance    bool    `json:"has_insurance"`
	InsuranceName   *string `json:"insurance_name"`
	AffiliateNumber *string `json:"affiliate_number"`
}

// Complete reports whether the block carries everything needed to persist
// an insurance row.
func (in *HealthInsuranceInput) Complete() bool {
	return in.HasInsurance && in.InsuranceName != nil && *in.InsuranceName != ""
}

type SchoolInfoInput struct {
	AttendsSchool bool    `json:"attends_school"`
	SchoolName    *string `json:"school_name"`
	SchoolAddress *string `json:"school_address"`
	Grade         *string `json:"grade"`
	Observations  *string `json:"observations"`
}

func (in *SchoolInfoInput) Complete() bool {
	return in.AttendsSchool &&
		in.SchoolName != nil && *in.SchoolName != "" &&
		in.SchoolAddress != nil && *in.SchoolAddress != "" &&
		in.Grade != nil && *in.Grade != ""
}

type BillingInfoInput struct {
	RequiresBilling bool    `json:"requires_billing"`
	BusinessName    *string `json:"business_name"`
	TaxID           *string `json:"tax_id"`
	TaxCondition    *string `json:"tax_condition" binding:"omitempty,oneof=RESPONSABLE_INSCRIPTO MONOTRIBUTO EXENTO CONSUMIDOR_FINAL"`
	FiscalAddress   *string `json:"fiscal_address"`
	BillingEmail    *string `json:"billing_email" binding:"omitempty,email"`
}

func (in *BillingInfoInput) Complete() bool {
	return in.RequiresBilling &&
		in.BusinessName != nil && *in.BusinessName != "" &&
		in.TaxID != nil && *in.TaxID != "" &&
		in.TaxCondition != nil && *in.TaxCondition != "" &&
		in.FiscalAddress != nil && *in.FiscalAddress != ""
}

// CreatePatientRequest mirrors the public intake form: personal data, the
// optional dependent blocks and at least one guardian.
type CreatePatientRequest struct {
	DNI               string                `json:"dni" binding:"required,min=7"`
	CUT               *string               `json:"cut"`
	FirstName         string                `json:"first_name" binding:"required,min=2"`
	LastName          string                `json:"last_name" binding:"required,min=2"`
	DateOfBirth       time.Time             `json:"date_of_birth" binding:"required"`
	Address           string                `json:"address" binding:"required,min=5"`
	PhoneNumber       *string               `json:"phone_number"`
	Email             *string               `json:"email" binding:"omitempty,email"`
	HealthInsurance   *HealthInsuranceInput `json:"health_insurance"`
	Guardians         []GuardianInput       `json:"guardians" binding:"required,min=1,dive"`
	LegalGuardianType *string               `json:"legal_guardian_type" binding:"omitempty,oneof=A B"`
	SchoolInfo        *SchoolInfoInput      `json:"school_info"`
	BillingInfo       *BillingInfoInput     `json:"billing_info"`
	Status            *PatientStatus        `json:"status" binding:"omitempty,oneof=PENDING APPROVED INACTIVE"`
	IsFromPublicSite  bool                  `json:"is_from_public_site"`
}

// UpdatePatientRequest carries partial update semantics: nil scalar fields
// are left untouched; nil dependent blocks leave the dependent unchanged,
// while a present block either upserts (complete) or removes (incomplete)
// it. A present guardian list fully replaces the stored set.
type UpdatePatientRequest struct {
	DNI               *string               `json:"dni" binding:"omitempty,min=7"`
	CUT               *string               `json:"cut"`
	FirstName         *string               `json:"first_name" binding:"omitempty,min=2"`
	LastName          *string               `json:"last_name" binding:"omitempty,min=2"`
	DateOfBirth       *time.Time            `json:"date_of_birth"`
	Address           *string               `json:"address" binding:"omitempty,min=5"`
	PhoneNumber       *string               `json:"phone_number"`
	Email             *string               `json:"email" binding:"omitempty,email"`
	HealthInsurance   *HealthInsuranceInput `json:"health_insurance"`
	Guardians         *[]GuardianInput      `json:"guardians" binding:"omitempty,dive"`
	LegalGuardianType *string               `json:"legal_guardian_type" binding:"omitempty,oneof=A B"`
	SchoolInfo        *SchoolInfoInput      `json:"school_info"`
	BillingInfo       *BillingInfoInput     `json:"billing_info"`
	Status            *PatientStatus        `json:"status" binding:"omitempty,oneof=PENDING APPROVED INACTIVE"`
}

// PatientFilters is the explicit filter set for patient listings. All
// fields except ProfessionalID are optional.
type PatientFilters struct {
	ProfessionalID uuid.UUID
	Status         *PatientStatus
	IsActive       *bool
	HasInsurance   *bool
	Search         string
	Page           int
	Limit          int
	SortBy         string
	SortOrder      string
}

// ListPatientsQuery binds the listing query string.
type ListPatientsQuery struct {
	Page         int     `form:"page,default=1" binding:"omitempty,min=1"`
	Limit        int     `form:"limit,default=10" binding:"omitempty,min=1,max=100"`
	Search       string  `form:"search"`
	Status       *string `form:"status" binding:"omitempty,oneof=PENDING APPROVED INACTIVE"`
	IsActive     *string `form:"is_active" binding:"omitempty,oneof=true false"`
	HasInsurance *string `form:"has_insurance" binding:"omitempty,oneof=true false"`
	SortBy       string  `form:"sort_by,default=created_at" binding:"omitempty,oneof=created_at first_name last_name date_of_birth"`
	SortOrder    string  `form:"sort_order,default=desc" binding:"omitempty,oneof=asc desc"`
}

// PatientList is one page of patient aggregates plus pagination metadata.
type PatientList struct {
	Data []*PatientAggregate `json:"data"`
	Meta ListMeta            `json:"meta"`
}

// PatientStats is the professional dashboard summary.
type PatientStats struct {
	TotalPatients         int `json:"total_patients"`
	ActivePatients        int `json:"active_patients"`
	PendingPatients       int `json:"pending_patients"`
	PatientsWithInsurance int `json:"patients_with_insurance"`
	InsurancePercentage   int `json:"insurance_percentage"`
	PatientsThisMonth     int `json:"patients_this_month"`
}
