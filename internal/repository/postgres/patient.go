package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/repository"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

const patientColumns = `
	id, professional_id, dni, cut, first_name, last_name, date_of_birth,
	address, phone_number, email, status, is_active, is_deleted,
	created_by, last_modified_by, approved_at, approved_by,
	deactivated_at, deleted_at, created_at, updated_at
`

func (r *patientRepository) Get(ctx context.Context, id, professionalID uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE id = $1 AND professional_id = $2 AND NOT is_deleted
	`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, id, professionalID); err != nil {
		return nil, mapNotFound(err)
	}
	return &patient, nil
}

func (r *patientRepository) GetByDNI(ctx context.Context, dni string, professionalID uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE dni = $1 AND professional_id = $2 AND NOT is_deleted
	`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, dni, professionalID); err != nil {
		return nil, mapNotFound(err)
	}
	return &patient, nil
}

func (r *patientRepository) GetAggregate(ctx context.Context, id, professionalID uuid.UUID) (*model.PatientAggregate, error) {
	patient, err := r.Get(ctx, id, professionalID)
	if err != nil {
		return nil, err
	}

	agg := &model.PatientAggregate{Patient: *patient}

	guardians := []*model.Guardian{}
	guardianQuery := `
		SELECT id, patient_id, type, first_name, last_name, dni, phone_number,
		       email, occupation, is_legal_guardian, created_at, updated_at
		FROM guardians
		WHERE patient_id = $1
		ORDER BY type ASC
	`
	if err := r.db.SelectContext(ctx, &guardians, guardianQuery, id); err != nil {
		return nil, fmt.Errorf("failed to load guardians: %w", err)
	}
	agg.Guardians = guardians

	var insurance model.HealthInsurance
	insuranceQuery := `
		SELECT id, patient_id, insurance_name, affiliate_number, created_at, updated_at
		FROM health_insurances
		WHERE patient_id = $1
	`
	switch err := r.db.GetContext(ctx, &insurance, insuranceQuery, id); {
	case err == nil:
		agg.HealthInsurance = &insurance
	case apperrors.IsKind(mapNotFound(err), apperrors.KindNotFound):
	default:
		return nil, fmt.Errorf("failed to load health insurance: %w", err)
	}

	var school model.SchoolInfo
	schoolQuery := `
		SELECT id, patient_id, school_name, school_address, grade, observations, created_at, updated_at
		FROM school_infos
		WHERE patient_id = $1
	`
	switch err := r.db.GetContext(ctx, &school, schoolQuery, id); {
	case err == nil:
		agg.SchoolInfo = &school
	case apperrors.IsKind(mapNotFound(err), apperrors.KindNotFound):
	default:
		return nil, fmt.Errorf("failed to load school info: %w", err)
	}

	var billing model.BillingInfo
	billingQuery := `
		SELECT id, patient_id, requires_billing, business_name, tax_id,
		       tax_condition, fiscal_address, billing_email, created_at, updated_at
		FROM billing_infos
		WHERE patient_id = $1
	`
	switch err := r.db.GetContext(ctx, &billing, billingQuery, id); {
	case err == nil:
		agg.BillingInfo = &billing
	case apperrors.IsKind(mapNotFound(err), apperrors.KindNotFound):
	default:
		return nil, fmt.Errorf("failed to load billing info: %w", err)
	}

	var professional model.ProfessionalSummary
	professionalQuery := `SELECT id, first_name, last_name, email FROM users WHERE id = $1`
	switch err := r.db.GetContext(ctx, &professional, professionalQuery, professionalID); {
	case err == nil:
		agg.Professional = &professional
	case apperrors.IsKind(mapNotFound(err), apperrors.KindNotFound):
	default:
		return nil, fmt.Errorf("failed to load professional: %w", err)
	}

	return agg, nil
}

func (r *patientRepository) CreateAggregate(ctx context.Context, agg *repository.PatientWrite) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertPatient(ctx, tx, agg.Patient); err != nil {
			return err
		}
		if agg.HealthInsurance != nil {
			agg.HealthInsurance.PatientID = agg.Patient.ID
			if err := upsertInsurance(ctx, tx, agg.HealthInsurance); err != nil {
				return err
			}
		}
		for _, guardian := range agg.Guardians {
			guardian.PatientID = agg.Patient.ID
			if err := insertGuardian(ctx, tx, guardian); err != nil {
				return err
			}
		}
		if agg.SchoolInfo != nil {
			agg.SchoolInfo.PatientID = agg.Patient.ID
			if err := upsertSchoolInfo(ctx, tx, agg.SchoolInfo); err != nil {
				return err
			}
		}
		if agg.BillingInfo != nil {
			agg.BillingInfo.PatientID = agg.Patient.ID
			if err := upsertBillingInfo(ctx, tx, agg.BillingInfo); err != nil {
				return err
			}
		}
		return insertOutboxEvent(ctx, tx, agg.Event)
	})
}

func (r *patientRepository) UpdateAggregate(ctx context.Context, upd *repository.PatientUpdate) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := updatePatient(ctx, tx, upd.Patient); err != nil {
			return err
		}

		patientID := upd.Patient.ID

		switch {
		case upd.SetInsurance != nil:
			upd.SetInsurance.PatientID = patientID
			if err := upsertInsurance(ctx, tx, upd.SetInsurance); err != nil {
				return err
			}
		case upd.ClearInsurance:
			if _, err := tx.ExecContext(ctx, `DELETE FROM health_insurances WHERE patient_id = $1`, patientID); err != nil {
				return fmt.Errorf("failed to clear health insurance: %w", err)
			}
		}

		if upd.ReplaceGuardians {
			if _, err := tx.ExecContext(ctx, `DELETE FROM guardians WHERE patient_id = $1`, patientID); err != nil {
				return fmt.Errorf("failed to clear guardians: %w", err)
			}
			for _, guardian := range upd.Guardians {
				guardian.PatientID = patientID
				if err := insertGuardian(ctx, tx, guardian); err != nil {
					return err
				}
			}
		}

		switch {
		case upd.SetSchoolInfo != nil:
			upd.SetSchoolInfo.PatientID = patientID
			if err := upsertSchoolInfo(ctx, tx, upd.SetSchoolInfo); err != nil {
				return err
			}
		case upd.ClearSchoolInfo:
			if _, err := tx.ExecContext(ctx, `DELETE FROM school_infos WHERE patient_id = $1`, patientID); err != nil {
				return fmt.Errorf("failed to clear school info: %w", err)
			}
		}

		switch {
		case upd.SetBillingInfo != nil:
			upd.SetBillingInfo.PatientID = patientID
			if err := upsertBillingInfo(ctx, tx, upd.SetBillingInfo); err != nil {
				return err
			}
		case upd.ClearBillingInfo:
			if _, err := tx.ExecContext(ctx, `DELETE FROM billing_infos WHERE patient_id = $1`, patientID); err != nil {
				return fmt.Errorf("failed to clear billing info: %w", err)
			}
		}

		return insertOutboxEvent(ctx, tx, upd.Event)
	})
}

func insertPatient(ctx context.Context, tx *sqlx.Tx, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			id, professional_id, dni, cut, first_name, last_name,
			date_of_birth, address, phone_number, email, status, is_active,
			is_deleted, created_by, approved_at, approved_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	patient.ID = uuid.New()
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = patient.CreatedAt

	_, err := tx.ExecContext(ctx, query,
		patient.ID,
		patient.ProfessionalID,
		patient.DNI,
		patient.CUT,
		patient.FirstName,
		patient.LastName,
		patient.DateOfBirth,
		patient.Address,
		patient.PhoneNumber,
		patient.Email,
		patient.Status,
		patient.IsActive,
		patient.IsDeleted,
		patient.CreatedBy,
		patient.ApprovedAt,
		patient.ApprovedBy,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrap(apperrors.KindAlreadyExists, err)
		}
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func updatePatient(ctx context.Context, tx *sqlx.Tx, patient *model.Patient) error {
	query := `
		UPDATE patients SET
			dni = $1, cut = $2, first_name = $3, last_name = $4,
			date_of_birth = $5, address = $6, phone_number = $7, email = $8,
			status = $9, last_modified_by = $10, updated_at = $11
		WHERE id = $12 AND NOT is_deleted
	`
	result, err := tx.ExecContext(ctx, query,
		patient.DNI,
		patient.CUT,
		patient.FirstName,
		patient.LastName,
		patient.DateOfBirth,
		patient.Address,
		patient.PhoneNumber,
		patient.Email,
		patient.Status,
		patient.LastModifiedBy,
		time.Now(),
		patient.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrap(apperrors.KindAlreadyExists, err)
		}
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return requireRowsAffected(result, apperrors.KindNotFound)
}

func insertGuardian(ctx context.Context, tx *sqlx.Tx, guardian *model.Guardian) error {
	query := `
		INSERT INTO guardians (
			id, patient_id, type, first_name, last_name, dni, phone_number,
			email, occupation, is_legal_guardian, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	guardian.ID = uuid.New()
	guardian.CreatedAt = time.Now()
	guardian.UpdatedAt = guardian.CreatedAt

	_, err := tx.ExecContext(ctx, query,
		guardian.ID,
		guardian.PatientID,
		guardian.Type,
		guardian.FirstName,
		guardian.LastName,
		guardian.DNI,
		guardian.PhoneNumber,
		guardian.Email,
		guardian.Occupation,
		guardian.IsLegalGuardian,
		guardian.CreatedAt,
		guardian.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create guardian: %w", err)
	}
	return nil
}

func upsertInsurance(ctx context.Context, tx *sqlx.Tx, insurance *model.HealthInsurance) error {
	query := `
		INSERT INTO health_insurances (id, patient_id, insurance_name, affiliate_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (patient_id) DO UPDATE SET
			insurance_name = EXCLUDED.insurance_name,
			affiliate_number = EXCLUDED.affiliate_number,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.New(),
		insurance.PatientID,
		insurance.InsuranceName,
		insurance.AffiliateNumber,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert health insurance: %w", err)
	}
	return nil
}

func upsertSchoolInfo(ctx context.Context, tx *sqlx.Tx, school *model.SchoolInfo) error {
	query := `
		INSERT INTO school_infos (id, patient_id, school_name, school_address, grade, observations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (patient_id) DO UPDATE SET
			school_name = EXCLUDED.school_name,
			school_address = EXCLUDED.school_address,
			grade = EXCLUDED.grade,
			observations = EXCLUDED.observations,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.New(),
		school.PatientID,
		school.SchoolName,
		school.SchoolAddress,
		school.Grade,
		school.Observations,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert school info: %w", err)
	}
	return nil
}

func upsertBillingInfo(ctx context.Context, tx *sqlx.Tx, billing *model.BillingInfo) error {
	query := `
		INSERT INTO billing_infos (id, patient_id, requires_billing, business_name, tax_id, tax_condition, fiscal_address, billing_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (patient_id) DO UPDATE SET
			requires_billing = EXCLUDED.requires_billing,
			business_name = EXCLUDED.business_name,
			tax_id = EXCLUDED.tax_id,
			tax_condition = EXCLUDED.tax_condition,
			fiscal_address = EXCLUDED.fiscal_address,
			billing_email = EXCLUDED.billing_email,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.New(),
		billing.PatientID,
		billing.RequiresBilling,
		billing.BusinessName,
		billing.TaxID,
		billing.TaxCondition,
		billing.FiscalAddress,
		billing.BillingEmail,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert billing info: %w", err)
	}
	return nil
}

func (r *patientRepository) List(ctx context.Context, filters *model.PatientFilters) ([]*model.PatientAggregate, int, error) {
	where := []string{"professional_id = $1", "NOT is_deleted"}
	args := []interface{}{filters.ProfessionalID}

	if filters.Status != nil {
		args = append(args, *filters.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filters.HasInsurance != nil {
		clause := "EXISTS (SELECT 1 FROM health_insurances hi WHERE hi.patient_id = patients.id)"
		if !*filters.HasInsurance {
			clause = "NOT " + clause
		}
		where = append(where, clause)
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(dni ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)", n, n, n))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM patients WHERE " + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	sortBy := sortColumn(filters.SortBy)
	sortOrder := "DESC"
	if strings.EqualFold(filters.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 10
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(
		"SELECT %s FROM patients WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		patientColumns, whereClause, sortBy, sortOrder, len(args)-1, len(args),
	)

	patients := []*model.Patient{}
	if err := r.db.SelectContext(ctx, &patients, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}

	aggregates, err := r.loadDependents(ctx, patients)
	if err != nil {
		return nil, 0, err
	}
	return aggregates, total, nil
}

// sortColumn whitelists sortable columns; anything else falls back to
// created_at.
func sortColumn(field string) string {
	switch field {
	case "first_name", "last_name", "date_of_birth", "created_at":
		return field
	default:
		return "created_at"
	}
}

// loadDependents attaches guardians and the 0..1 dependents to one page of
// patients with a single query per table.
func (r *patientRepository) loadDependents(ctx context.Context, patients []*model.Patient) ([]*model.PatientAggregate, error) {
	aggregates := make([]*model.PatientAggregate, 0, len(patients))
	if len(patients) == 0 {
		return aggregates, nil
	}

	ids := make([]uuid.UUID, 0, len(patients))
	byID := make(map[uuid.UUID]*model.PatientAggregate, len(patients))
	for _, patient := range patients {
		agg := &model.PatientAggregate{Patient: *patient, Guardians: []*model.Guardian{}}
		aggregates = append(aggregates, agg)
		byID[patient.ID] = agg
		ids = append(ids, patient.ID)
	}

	guardians := []*model.Guardian{}
	guardianQuery := `
		SELECT id, patient_id, type, first_name, last_name, dni, phone_number,
		       email, occupation, is_legal_guardian, created_at, updated_at
		FROM guardians
		WHERE patient_id = ANY($1)
		ORDER BY type ASC
	`
	if err := r.db.SelectContext(ctx, &guardians, guardianQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load guardians: %w", err)
	}
	for _, guardian := range guardians {
		if agg, ok := byID[guardian.PatientID]; ok {
			agg.Guardians = append(agg.Guardians, guardian)
		}
	}

	insurances := []*model.HealthInsurance{}
	insuranceQuery := `
		SELECT id, patient_id, insurance_name, affiliate_number, created_at, updated_at
		FROM health_insurances
		WHERE patient_id = ANY($1)
	`
	if err := r.db.SelectContext(ctx, &insurances, insuranceQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load health insurances: %w", err)
	}
	for _, insurance := range insurances {
		if agg, ok := byID[insurance.PatientID]; ok {
			agg.HealthInsurance = insurance
		}
	}

	schools := []*model.SchoolInfo{}
	schoolQuery := `
		SELECT id, patient_id, school_name, school_address, grade, observations, created_at, updated_at
		FROM school_infos
		WHERE patient_id = ANY($1)
	`
	if err := r.db.SelectContext(ctx, &schools, schoolQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load school infos: %w", err)
	}
	for _, school := range schools {
		if agg, ok := byID[school.PatientID]; ok {
			agg.SchoolInfo = school
		}
	}

	billings := []*model.BillingInfo{}
	billingQuery := `
		SELECT id, patient_id, requires_billing, business_name, tax_id,
		       tax_condition, fiscal_address, billing_email, created_at, updated_at
		FROM billing_infos
		WHERE patient_id = ANY($1)
	`
	if err := r.db.SelectContext(ctx, &billings, billingQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load billing infos: %w", err)
	}
	for _, billing := range billings {
		if agg, ok := byID[billing.PatientID]; ok {
			agg.BillingInfo = billing
		}
	}

	return aggregates, nil
}

func (r *patientRepository) SetDeleted(ctx context.Context, id uuid.UUID, at time.Time, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE patients
			SET is_deleted = TRUE, deleted_at = $1, updated_at = $1
			WHERE id = $2 AND NOT is_deleted
		`
		result, err := tx.ExecContext(ctx, query, at, id)
		if err != nil {
			return fmt.Errorf("failed to delete patient: %w", err)
		}
		if err := requireRowsAffected(result, apperrors.KindNotFound); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *patientRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, deactivatedAt *time.Time) error {
	query := `
		UPDATE patients
		SET is_active = $1, deactivated_at = $2, updated_at = $3
		WHERE id = $4 AND NOT is_deleted
	`
	result, err := r.db.ExecContext(ctx, query, active, deactivatedAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle patient: %w", err)
	}
	return requireRowsAffected(result, apperrors.KindNotFound)
}

func (r *patientRepository) SetApproved(ctx context.Context, id, approvedBy uuid.UUID, at time.Time, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE patients
			SET status = $1, approved_at = $2, approved_by = $3, updated_at = $2
			WHERE id = $4 AND NOT is_deleted
		`
		result, err := tx.ExecContext(ctx, query, model.PatientStatusApproved, at, approvedBy, id)
		if err != nil {
			return fmt.Errorf("failed to approve patient: %w", err)
		}
		if err := requireRowsAffected(result, apperrors.KindNotFound); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

// Stats runs the five dashboard counts concurrently.
func (r *patientRepository) Stats(ctx context.Context, professionalID uuid.UUID, monthStart time.Time) (*model.PatientStats, error) {
	stats := &model.PatientStats{}
	g, ctx := errgroup.WithContext(ctx)

	count := func(dst *int, query string, args ...interface{}) func() error {
		return func() error {
			return r.db.GetContext(ctx, dst, query, args...)
		}
	}

	g.Go(count(&stats.TotalPatients,
		`SELECT COUNT(*) FROM patients WHERE professional_id = $1 AND NOT is_deleted`,
		professionalID))
	g.Go(count(&stats.ActivePatients,
		`SELECT COUNT(*) FROM patients WHERE professional_id = $1 AND NOT is_deleted AND is_active AND status = $2`,
		professionalID, model.PatientStatusApproved))
	g.Go(count(&stats.PendingPatients,
		`SELECT COUNT(*) FROM patients WHERE professional_id = $1 AND NOT is_deleted AND status = $2`,
		professionalID, model.PatientStatusPending))
	g.Go(count(&stats.PatientsWithInsurance,
		`SELECT COUNT(*) FROM patients p WHERE p.professional_id = $1 AND NOT p.is_deleted
		 AND EXISTS (SELECT 1 FROM health_insurances hi WHERE hi.patient_id = p.id)`,
		professionalID))
	g.Go(count(&stats.PatientsThisMonth,
		`SELECT COUNT(*) FROM patients WHERE professional_id = $1 AND NOT is_deleted AND created_at >= $2`,
		professionalID, monthStart))

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute patient stats: %w", err)
	}
	return stats, nil
}
