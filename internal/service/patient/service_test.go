package patient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/repository"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
)

// fakePatientRepository keeps aggregates in memory and mimics the
// transactional semantics of the Postgres implementation.
type fakePatientRepository struct {
	patients   map[uuid.UUID]*model.Patient
	guardians  map[uuid.UUID][]*model.Guardian
	insurances map[uuid.UUID]*model.HealthInsurance
	schools    map[uuid.UUID]*model.SchoolInfo
	billings   map[uuid.UUID]*model.BillingInfo
	events     []*model.OutboxEvent
}

func newFakePatientRepository() *fakePatientRepository {
	return &fakePatientRepository{
		patients:   make(map[uuid.UUID]*model.Patient),
		guardians:  make(map[uuid.UUID][]*model.Guardian),
		insurances: make(map[uuid.UUID]*model.HealthInsurance),
		schools:    make(map[uuid.UUID]*model.SchoolInfo),
		billings:   make(map[uuid.UUID]*model.BillingInfo),
	}
}

func (f *fakePatientRepository) Get(ctx context.Context, id, professionalID uuid.UUID) (*model.Patient, error) {
	p, ok := f.patients[id]
	if !ok || p.IsDeleted || p.ProfessionalID != professionalID {
		return nil, apperrors.E(apperrors.KindNotFound)
	}
	copied := *p
	return &copied, nil
}

func (f *fakePatientRepository) GetByDNI(ctx context.Context, dni string, professionalID uuid.UUID) (*model.Patient, error) {
	for _, p := range f.patients {
		if p.DNI == dni && p.ProfessionalID == professionalID && !p.IsDeleted {
			copied := *p
			return &copied, nil
		}
	}
	return nil, apperrors.E(apperrors.KindNotFound)
}

func (f *fakePatientRepository) GetAggregate(ctx context.Context, id, professionalID uuid.UUID) (*model.PatientAggregate, error) {
	p, err := f.Get(ctx, id, professionalID)
	if err != nil {
		return nil, err
	}
	return &model.PatientAggregate{
		Patient:         *p,
		Guardians:       f.guardians[id],
		HealthInsurance: f.insurances[id],
		SchoolInfo:      f.schools[id],
		BillingInfo:     f.billings[id],
	}, nil
}

func (f *fakePatientRepository) CreateAggregate(ctx context.Context, agg *repository.PatientWrite) error {
	for _, p := range f.patients {
		if p.DNI == agg.Patient.DNI && p.ProfessionalID == agg.Patient.ProfessionalID && !p.IsDeleted {
			return apperrors.E(apperrors.KindAlreadyExists)
		}
	}

	agg.Patient.ID = uuid.New()
	copied := *agg.Patient
	f.patients[copied.ID] = &copied
	for _, g := range agg.Guardians {
		g.PatientID = copied.ID
		f.guardians[copied.ID] = append(f.guardians[copied.ID], g)
	}
	if agg.HealthInsurance != nil {
		agg.HealthInsurance.PatientID = copied.ID
		f.insurances[copied.ID] = agg.HealthInsurance
	}
	if agg.SchoolInfo != nil {
		f.schools[copied.ID] = agg.SchoolInfo
	}
	if agg.BillingInfo != nil {
		f.billings[copied.ID] = agg.BillingInfo
	}
	if agg.Event != nil {
		f.events = append(f.events, agg.Event)
	}
	return nil
}

func (f *fakePatientRepository) UpdateAggregate(ctx context.Context, upd *repository.PatientUpdate) error {
	id := upd.Patient.ID
	if _, ok := f.patients[id]; !ok {
		return apperrors.E(apperrors.KindNotFound)
	}
	copied := *upd.Patient
	f.patients[id] = &copied

	if upd.SetInsurance != nil {
		upd.SetInsurance.PatientID = id
		f.insurances[id] = upd.SetInsurance
	} else if upd.ClearInsurance {
		delete(f.insurances, id)
	}
	if upd.SetSchoolInfo != nil {
		f.schools[id] = upd.SetSchoolInfo
	} else if upd.ClearSchoolInfo {
		delete(f.schools, id)
	}
	if upd.SetBillingInfo != nil {
		f.billings[id] = upd.SetBillingInfo
	} else if upd.ClearBillingInfo {
		delete(f.billings, id)
	}
	if upd.ReplaceGuardians {
		f.guardians[id] = nil
		for _, g := range upd.Guardians {
			g.PatientID = id
			f.guardians[id] = append(f.guardians[id], g)
		}
	}
	if upd.Event != nil {
		f.events = append(f.events, upd.Event)
	}
	return nil
}

func (f *fakePatientRepository) List(ctx context.Context, filters *model.PatientFilters) ([]*model.PatientAggregate, int, error) {
	var out []*model.PatientAggregate
	for id, p := range f.patients {
		if p.IsDeleted || p.ProfessionalID != filters.ProfessionalID {
			continue
		}
		if filters.Status != nil && p.Status != *filters.Status {
			continue
		}
		agg, _ := f.GetAggregate(ctx, id, filters.ProfessionalID)
		out = append(out, agg)
	}
	return out, len(out), nil
}

func (f *fakePatientRepository) SetDeleted(ctx context.Context, id uuid.UUID, at time.Time, event *model.OutboxEvent) error {
	p, ok := f.patients[id]
	if !ok {
		return apperrors.E(apperrors.KindNotFound)
	}
	p.IsDeleted = true
	p.DeletedAt = &at
	if event != nil {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakePatientRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, deactivatedAt *time.Time) error {
	p, ok := f.patients[id]
	if !ok {
		return apperrors.E(apperrors.KindNotFound)
	}
	p.IsActive = active
	p.DeactivatedAt = deactivatedAt
	return nil
}

func (f *fakePatientRepository) SetApproved(ctx context.Context, id, approvedBy uuid.UUID, at time.Time, event *model.OutboxEvent) error {
	p, ok := f.patients[id]
	if !ok {
		return apperrors.E(apperrors.KindNotFound)
	}
	p.Status = model.PatientStatusApproved
	p.ApprovedAt = &at
	p.ApprovedBy = &approvedBy
	if event != nil {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakePatientRepository) Stats(ctx context.Context, professionalID uuid.UUID, monthStart time.Time) (*model.PatientStats, error) {
	stats := &model.PatientStats{}
	for id, p := range f.patients {
		if p.IsDeleted || p.ProfessionalID != professionalID {
			continue
		}
		stats.TotalPatients++
		if p.IsActive && p.Status == model.PatientStatusApproved {
			stats.ActivePatients++
		}
		if p.Status == model.PatientStatusPending {
			stats.PendingPatients++
		}
		if f.insurances[id] != nil {
			stats.PatientsWithInsurance++
		}
		if !p.CreatedAt.Before(monthStart) {
			stats.PatientsThisMonth++
		}
	}
	return stats, nil
}

func strPtr(s string) *string { return &s }

func validCreateRequest() *model.CreatePatientRequest {
	return &model.CreatePatientRequest{
		DNI:         "40111222",
		FirstName:   "Juana",
		LastName:    "Moreno",
		DateOfBirth: time.Date(2015, time.June, 10, 0, 0, 0, 0, time.UTC),
		Address:     "Av. Siempreviva 742",
		Guardians: []model.GuardianInput{
			{Type: model.GuardianTypeA, FirstName: "Laura", LastName: "Moreno", PhoneNumber: strPtr("1155550000")},
			{Type: model.GuardianTypeB, FirstName: "Diego", LastName: "Moreno", PhoneNumber: strPtr("1155551111")},
		},
		LegalGuardianType: strPtr(model.GuardianTypeA),
	}
}

func newTestService(repo *fakePatientRepository, now time.Time) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return now }
	return svc
}

func TestCreatePatientDefaultsToApproved(t *testing.T) {
	repo := newFakePatientRepository()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	professionalID := uuid.New()

	agg, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	assert.Equal(t, model.PatientStatusApproved, agg.Status)
	require.NotNil(t, agg.ApprovedAt)
	assert.Equal(t, now, *agg.ApprovedAt)
	require.NotNil(t, agg.ApprovedBy)
	assert.Equal(t, professionalID, *agg.ApprovedBy)
	assert.True(t, agg.IsActive)
}

func TestCreatePatientFromPublicSiteForcesPending(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())

	req := validCreateRequest()
	approved := model.PatientStatusApproved
	req.Status = &approved

	agg, err := svc.CreatePatient(context.Background(), req, uuid.New(), true)
	require.NoError(t, err)

	assert.Equal(t, model.PatientStatusPending, agg.Status)
	assert.Nil(t, agg.ApprovedAt)
	assert.Nil(t, agg.ApprovedBy)
}

func TestCreatePatientDuplicateDNISameProfessional(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	_, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	_, err = svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAlreadyExists))
}

func TestCreatePatientSameDNIDifferentProfessionals(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())

	_, err := svc.CreatePatient(context.Background(), validCreateRequest(), uuid.New(), false)
	require.NoError(t, err)

	_, err = svc.CreatePatient(context.Background(), validCreateRequest(), uuid.New(), false)
	assert.NoError(t, err)
}

func TestCreatePatientLegalGuardianFlag(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())

	agg, err := svc.CreatePatient(context.Background(), validCreateRequest(), uuid.New(), false)
	require.NoError(t, err)
	require.Len(t, agg.Guardians, 2)

	for _, g := range agg.Guardians {
		assert.Equal(t, g.Type == model.GuardianTypeA, g.IsLegalGuardian,
			"guardian type %s", g.Type)
	}
}

func TestCreatePatientGuardianWithoutDNIOrPhone(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())

	req := validCreateRequest()
	req.Guardians = []model.GuardianInput{
		{Type: model.GuardianTypeA, FirstName: "Laura", LastName: "Moreno"},
	}

	agg, err := svc.CreatePatient(context.Background(), req, uuid.New(), false)
	require.NoError(t, err)
	require.Len(t, agg.Guardians, 1)

	assert.Nil(t, agg.Guardians[0].DNI)
	assert.Nil(t, agg.Guardians[0].PhoneNumber)
}

func TestCreatePatientIncompleteBlocksAreSkipped(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())

	req := validCreateRequest()
	// has_insurance set but no name: nothing should be persisted
	req.HealthInsurance = &model.HealthInsuranceInput{HasInsurance: true}
	req.SchoolInfo = &model.SchoolInfoInput{AttendsSchool: false, SchoolName: strPtr("Escuela 12")}

	agg, err := svc.CreatePatient(context.Background(), req, uuid.New(), false)
	require.NoError(t, err)
	assert.Nil(t, agg.HealthInsurance)
	assert.Nil(t, agg.SchoolInfo)
}

func TestUpdatePatientGuardiansOmittedLeavesStoredSet(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	updated, err := svc.UpdatePatient(context.Background(), created.ID, &model.UpdatePatientRequest{
		FirstName: strPtr("Juana Beatriz"),
	}, professionalID)
	require.NoError(t, err)

	assert.Equal(t, "Juana Beatriz", updated.FirstName)
	assert.Len(t, updated.Guardians, 2)
}

func TestUpdatePatientEmptyGuardianListRemovesAll(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	empty := []model.GuardianInput{}
	updated, err := svc.UpdatePatient(context.Background(), created.ID, &model.UpdatePatientRequest{
		Guardians: &empty,
	}, professionalID)
	require.NoError(t, err)

	assert.Empty(t, updated.Guardians)
}

func TestUpdatePatientReplacesGuardians(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	replacement := []model.GuardianInput{
		{Type: model.GuardianTypeB, FirstName: "Marta", LastName: "Suarez"},
	}
	updated, err := svc.UpdatePatient(context.Background(), created.ID, &model.UpdatePatientRequest{
		Guardians:         &replacement,
		LegalGuardianType: strPtr(model.GuardianTypeB),
	}, professionalID)
	require.NoError(t, err)

	require.Len(t, updated.Guardians, 1)
	assert.Equal(t, "Marta", updated.Guardians[0].FirstName)
	assert.True(t, updated.Guardians[0].IsLegalGuardian)
}

func TestUpdatePatientIncompleteInsuranceRemovesRow(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	req := validCreateRequest()
	req.HealthInsurance = &model.HealthInsuranceInput{
		HasInsurance:  true,
		InsuranceName: strPtr("OSDE"),
	}
	created, err := svc.CreatePatient(context.Background(), req, professionalID, false)
	require.NoError(t, err)
	require.NotNil(t, created.HealthInsurance)

	updated, err := svc.UpdatePatient(context.Background(), created.ID, &model.UpdatePatientRequest{
		HealthInsurance: &model.HealthInsuranceInput{HasInsurance: false},
	}, professionalID)
	require.NoError(t, err)

	assert.Nil(t, updated.HealthInsurance)
}

func TestUpdatePatientStampsLastModifiedBy(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	updated, err := svc.UpdatePatient(context.Background(), created.ID, &model.UpdatePatientRequest{
		Address: strPtr("Calle Falsa 123"),
	}, professionalID)
	require.NoError(t, err)

	require.NotNil(t, updated.LastModifiedBy)
	assert.Equal(t, professionalID, *updated.LastModifiedBy)
}

func TestToggleActiveStatus(t *testing.T) {
	repo := newFakePatientRepository()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	active, err := svc.ToggleActiveStatus(context.Background(), created.ID, professionalID)
	require.NoError(t, err)
	assert.False(t, active)

	stored, err := svc.GetPatientByID(context.Background(), created.ID, professionalID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeactivatedAt)
	assert.Equal(t, now, *stored.DeactivatedAt)

	active, err = svc.ToggleActiveStatus(context.Background(), created.ID, professionalID)
	require.NoError(t, err)
	assert.True(t, active)

	stored, err = svc.GetPatientByID(context.Background(), created.ID, professionalID)
	require.NoError(t, err)
	assert.Nil(t, stored.DeactivatedAt)
}

func TestApprovePatientAlreadyApproved(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	eventsBefore := len(repo.events)
	_, err = svc.ApprovePatient(context.Background(), created.ID, professionalID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAlreadyApproved))
	assert.Equal(t, eventsBefore, len(repo.events), "no event should be written for a rejected approval")
}

func TestApprovePendingPatient(t *testing.T) {
	repo := newFakePatientRepository()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, true)
	require.NoError(t, err)
	require.Equal(t, model.PatientStatusPending, created.Status)

	approved, err := svc.ApprovePatient(context.Background(), created.ID, professionalID)
	require.NoError(t, err)

	assert.Equal(t, model.PatientStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, now, *approved.ApprovedAt)
}

func TestDeletePatientHidesFromReads(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	require.NoError(t, svc.DeletePatient(context.Background(), created.ID, professionalID))

	_, err = svc.GetPatientByID(context.Background(), created.ID, professionalID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestDeletedPatientFreesDNI(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	created, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)
	require.NoError(t, svc.DeletePatient(context.Background(), created.ID, professionalID))

	_, err = svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	assert.NoError(t, err)
}

func TestGetPatientStatsZeroPatients(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())

	stats, err := svc.GetPatientStats(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.TotalPatients)
	assert.Equal(t, 0, stats.InsurancePercentage)
}

func TestGetPatientStatsInsurancePercentage(t *testing.T) {
	repo := newFakePatientRepository()
	svc := newTestService(repo, time.Now())
	professionalID := uuid.New()

	withInsurance := validCreateRequest()
	withInsurance.HealthInsurance = &model.HealthInsuranceInput{
		HasInsurance:  true,
		InsuranceName: strPtr("OSDE"),
	}
	_, err := svc.CreatePatient(context.Background(), withInsurance, professionalID, false)
	require.NoError(t, err)

	second := validCreateRequest()
	second.DNI = "40999888"
	_, err = svc.CreatePatient(context.Background(), second, professionalID, false)
	require.NoError(t, err)

	third := validCreateRequest()
	third.DNI = "41000111"
	_, err = svc.CreatePatient(context.Background(), third, professionalID, false)
	require.NoError(t, err)

	stats, err := svc.GetPatientStats(context.Background(), professionalID)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalPatients)
	assert.Equal(t, 1, stats.PatientsWithInsurance)
	assert.Equal(t, 33, stats.InsurancePercentage)
}

func TestGetPatientsAnnotatesAge(t *testing.T) {
	repo := newFakePatientRepository()
	now := time.Date(2026, time.June, 9, 0, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now)
	professionalID := uuid.New()

	// born 2015-06-10: the 11th birthday is tomorrow
	_, err := svc.CreatePatient(context.Background(), validCreateRequest(), professionalID, false)
	require.NoError(t, err)

	list, err := svc.GetPatients(context.Background(), professionalID, &model.ListPatientsQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, 10, list.Data[0].Age)
}
