package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/repository"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
)

// Service manages the patient aggregate: the patient row plus guardians,
// health insurance, school info and billing info, written as a unit.
type Service struct {
	repo repository.PatientRepository
	now  func() time.Time
}

func NewService(repo repository.PatientRepository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// CreatePatient inserts a patient with all provided dependents in one
// transaction. Duplicate (dni, professional) pairs fail with
// AlreadyExists. Patients arriving from the public site are always
// PENDING regardless of the requested status.
func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest, professionalID uuid.UUID, isFromPublicSite bool) (*model.PatientAggregate, error) {
	existing, err := s.repo.GetByDNI(ctx, req.DNI, professionalID)
	if err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
		return nil, fmt.Errorf("failed to check for existing patient: %w", err)
	}
	if existing != nil {
		return nil, apperrors.E(apperrors.KindAlreadyExists)
	}

	status := model.PatientStatusApproved
	if req.Status != nil {
		status = *req.Status
	}
	if isFromPublicSite {
		status = model.PatientStatusPending
	}

	now := s.now()
	patient := &model.Patient{
		ProfessionalID: professionalID,
		DNI:            req.DNI,
		CUT:            req.CUT,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		DateOfBirth:    req.DateOfBirth,
		Address:        req.Address,
		PhoneNumber:    req.PhoneNumber,
		Email:          req.Email,
		Status:         status,
		IsActive:       true,
		CreatedBy:      &professionalID,
	}
	if status == model.PatientStatusApproved {
		patient.ApprovedAt = &now
		patient.ApprovedBy = &professionalID
	}

	write := &repository.PatientWrite{
		Patient:   patient,
		Guardians: buildGuardians(req.Guardians, req.LegalGuardianType),
	}
	if req.HealthInsurance != nil && req.HealthInsurance.Complete() {
		write.HealthInsurance = buildInsurance(req.HealthInsurance)
	}
	if req.SchoolInfo != nil && req.SchoolInfo.Complete() {
		write.SchoolInfo = buildSchoolInfo(req.SchoolInfo)
	}
	if req.BillingInfo != nil && req.BillingInfo.Complete() {
		write.BillingInfo = buildBillingInfo(req.BillingInfo)
	}
	write.Event = s.event(model.EventPatientCreated, patient)

	if err := s.repo.CreateAggregate(ctx, write); err != nil {
		return nil, err
	}
	return s.GetPatientByID(ctx, patient.ID, professionalID)
}

// GetPatientByID returns one aggregate scoped to the owning professional.
func (s *Service) GetPatientByID(ctx context.Context, id, professionalID uuid.UUID) (*model.PatientAggregate, error) {
	agg, err := s.repo.GetAggregate(ctx, id, professionalID)
	if err != nil {
		return nil, err
	}
	agg.Age = agg.Patient.Age(s.now())
	return agg, nil
}

// GetPatients lists the professional's patients with filters, sorting and
// pagination. Listing is strictly scoped to the owning professional.
func (s *Service) GetPatients(ctx context.Context, professionalID uuid.UUID, query *model.ListPatientsQuery) (*model.PatientList, error) {
	filters := &model.PatientFilters{
		ProfessionalID: professionalID,
		Search:         query.Search,
		Page:           query.Page,
		Limit:          query.Limit,
		SortBy:         query.SortBy,
		SortOrder:      query.SortOrder,
	}
	if query.Status != nil {
		status := model.PatientStatus(*query.Status)
		filters.Status = &status
	}
	if query.IsActive != nil {
		isActive := *query.IsActive == "true"
		filters.IsActive = &isActive
	}
	if query.HasInsurance != nil {
		hasInsurance := *query.HasInsurance == "true"
		filters.HasInsurance = &hasInsurance
	}

	aggregates, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, agg := range aggregates {
		agg.Age = agg.Patient.Age(now)
	}

	return &model.PatientList{
		Data: aggregates,
		Meta: model.NewListMeta(total, filters.Page, filters.Limit),
	}, nil
}

// UpdatePatient applies a partial update to the patient row and replaces
// dependents per the request blocks, all in one transaction. A present
// guardian list fully replaces the stored set; an omitted list leaves it
// untouched.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest, professionalID uuid.UUID) (*model.PatientAggregate, error) {
	patient, err := s.repo.Get(ctx, id, professionalID)
	if err != nil {
		return nil, err
	}

	if req.DNI != nil {
		patient.DNI = *req.DNI
	}
	if req.CUT != nil {
		patient.CUT = req.CUT
	}
	if req.FirstName != nil {
		patient.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		patient.LastName = *req.LastName
	}
	if req.DateOfBirth != nil {
		patient.DateOfBirth = *req.DateOfBirth
	}
	if req.Address != nil {
		patient.Address = *req.Address
	}
	if req.PhoneNumber != nil {
		patient.PhoneNumber = req.PhoneNumber
	}
	if req.Email != nil {
		patient.Email = req.Email
	}
	if req.Status != nil {
		patient.Status = *req.Status
	}
	patient.LastModifiedBy = &professionalID

	upd := &repository.PatientUpdate{Patient: patient}

	if req.HealthInsurance != nil {
		if req.HealthInsurance.Complete() {
			upd.SetInsurance = buildInsurance(req.HealthInsurance)
		} else {
			upd.ClearInsurance = true
		}
	}
	if req.Guardians != nil {
		upd.ReplaceGuardians = true
		upd.Guardians = buildGuardians(*req.Guardians, req.LegalGuardianType)
	}
	if req.SchoolInfo != nil {
		if req.SchoolInfo.Complete() {
			upd.SetSchoolInfo = buildSchoolInfo(req.SchoolInfo)
		} else {
			upd.ClearSchoolInfo = true
		}
	}
	if req.BillingInfo != nil {
		if req.BillingInfo.Complete() {
			upd.SetBillingInfo = buildBillingInfo(req.BillingInfo)
		} else {
			upd.ClearBillingInfo = true
		}
	}
	upd.Event = s.event(model.EventPatientUpdated, patient)

	if err := s.repo.UpdateAggregate(ctx, upd); err != nil {
		return nil, err
	}
	return s.GetPatientByID(ctx, id, professionalID)
}

// DeletePatient soft-deletes the patient.
func (s *Service) DeletePatient(ctx context.Context, id, professionalID uuid.UUID) error {
	patient, err := s.repo.Get(ctx, id, professionalID)
	if err != nil {
		return err
	}
	return s.repo.SetDeleted(ctx, patient.ID, s.now(), s.event(model.EventPatientDeleted, patient))
}

// ToggleActiveStatus flips is_active and returns the new state. The
// deactivation timestamp is stamped on the way down and cleared on the
// way back up.
func (s *Service) ToggleActiveStatus(ctx context.Context, id, professionalID uuid.UUID) (bool, error) {
	patient, err := s.repo.Get(ctx, id, professionalID)
	if err != nil {
		return false, err
	}

	newActive := !patient.IsActive
	var deactivatedAt *time.Time
	if !newActive {
		now := s.now()
		deactivatedAt = &now
	}

	if err := s.repo.SetActive(ctx, patient.ID, newActive, deactivatedAt); err != nil {
		return false, err
	}
	return newActive, nil
}

// ApprovePatient approves a pending patient. Approving an already
// approved patient fails without writing.
func (s *Service) ApprovePatient(ctx context.Context, id, professionalID uuid.UUID) (*model.PatientAggregate, error) {
	patient, err := s.repo.Get(ctx, id, professionalID)
	if err != nil {
		return nil, err
	}
	if patient.Status == model.PatientStatusApproved {
		return nil, apperrors.E(apperrors.KindAlreadyApproved)
	}

	if err := s.repo.SetApproved(ctx, patient.ID, professionalID, s.now(), s.event(model.EventPatientApproved, patient)); err != nil {
		return nil, err
	}
	return s.GetPatientByID(ctx, id, professionalID)
}

// GetPatientStats computes the dashboard counters for one professional.
func (s *Service) GetPatientStats(ctx context.Context, professionalID uuid.UUID) (*model.PatientStats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats, err := s.repo.Stats(ctx, professionalID, monthStart)
	if err != nil {
		return nil, err
	}

	if stats.TotalPatients > 0 {
		stats.InsurancePercentage = int(math.Round(
			float64(stats.PatientsWithInsurance) / float64(stats.TotalPatients) * 100,
		))
	}
	return stats, nil
}

// buildGuardians maps guardian inputs to rows. Exactly the guardians whose
// type matches legalGuardianType are flagged as legal guardian.
func buildGuardians(inputs []model.GuardianInput, legalGuardianType *string) []*model.Guardian {
	guardians := make([]*model.Guardian, 0, len(inputs))
	for _, in := range inputs {
		guardians = append(guardians, &model.Guardian{
			Type:            in.Type,
			FirstName:       in.FirstName,
			LastName:        in.LastName,
			DNI:             in.DNI,
			PhoneNumber:     in.PhoneNumber,
			Email:           in.Email,
			Occupation:      in.Occupation,
			IsLegalGuardian: legalGuardianType != nil && *legalGuardianType == in.Type,
		})
	}
	return guardians
}

func buildInsurance(in *model.HealthInsuranceInput) *model.HealthInsurance {
	return &model.HealthInsurance{
		InsuranceName:   *in.InsuranceName,
		AffiliateNumber: in.AffiliateNumber,
	}
}

func buildSchoolInfo(in *model.SchoolInfoInput) *model.SchoolInfo {
	return &model.SchoolInfo{
		SchoolName:    *in.SchoolName,
		SchoolAddress: *in.SchoolAddress,
		Grade:         *in.Grade,
		Observations:  in.Observations,
	}
}

func buildBillingInfo(in *model.BillingInfoInput) *model.BillingInfo {
	return &model.BillingInfo{
		RequiresBilling: true,
		BusinessName:    *in.BusinessName,
		TaxID:           *in.TaxID,
		TaxCondition:    *in.TaxCondition,
		FiscalAddress:   *in.FiscalAddress,
		BillingEmail:    in.BillingEmail,
	}
}

// event serializes the patient row into an outbox event. Marshalling a
// model never fails; a nil event is returned on the off chance it does so
// the write path is never blocked by event plumbing.
func (s *Service) event(eventType string, patient *model.Patient) *model.OutboxEvent {
	payload, err := json.Marshal(patient)
	if err != nil {
		return nil
	}
	return &model.OutboxEvent{
		EventType: eventType,
		Payload:   payload,
	}
}
