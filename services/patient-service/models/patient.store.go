package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

const patientColumns = `id, op_number, first_name, last_name, date_of_birth, age, gender, phone_number,
	area, next_of_kin, next_of_kin_phone, insurance_type, insurance_number, registration_type,
	registered_by, created_at, updated_at`

// opNumberLock serialises op number allocation across connections.
const opNumberLock int64 = 0x4f504e554d

var ErrInvalidDateOfBirth = errors.New("date of birth must be YYYY-MM-DD")

type PatientStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPatientStore(db *sqlx.DB) *PatientStore {
	return &PatientStore{db: db, now: time.Now}
}

func parseDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil, ErrInvalidDateOfBirth
	}
	return &t, nil
}

// CreatePatient registers a patient. When no op number is supplied the next
// one of the current year is allocated under an advisory lock.
func (s *PatientStore) CreatePatient(ctx context.Context, input CreatePatientInput, registeredBy string) (*Patient, error) {
	dob, err := parseDate(input.DateOfBirth)
	if err != nil {
		return nil, err
	}
	registration := input.RegistrationType
	if registration == "" {
		registration = RegistrationNew
	}

	var p Patient
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		now := s.now()
		opNumber := ""
		if input.OpNumber != nil {
			opNumber = strings.TrimSpace(*input.OpNumber)
		}
		if opNumber == "" {
			next, err := s.nextOpNumber(ctx, tx, now.Year())
			if err != nil {
				return err
			}
			opNumber = next
		}

		err := tx.GetContext(ctx, &p, `
			INSERT INTO patients (id, op_number, first_name, last_name, date_of_birth, age, gender,
				phone_number, area, next_of_kin, next_of_kin_phone, insurance_type, insurance_number,
				registration_type, registered_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
			RETURNING `+patientColumns,
			uuid.NewString(), opNumber, strings.TrimSpace(input.FirstName), strings.TrimSpace(input.LastName),
			dob, input.Age, input.Gender, input.PhoneNumber, input.Area, input.NextOfKin, input.NextOfKinPhone,
			input.InsuranceType, input.InsuranceNumber, registration, database.NullString(registeredBy), now)
		if database.IsUniqueViolation(err) {
			return ErrDuplicateOpNumber
		}
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PatientStore) nextOpNumber(ctx context.Context, tx *sqlx.Tx, year int) (string, error) {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", opNumberLock); err != nil {
		return "", fmt.Errorf("lock op numbers: %w", err)
	}
	var last int
	err := tx.GetContext(ctx, &last, `
		SELECT COALESCE(MAX(CAST(split_part(op_number, '-', 3) AS INTEGER)), 0)
		FROM patients
		WHERE op_number ~ $1`,
		fmt.Sprintf("^OP-%d-[0-9]+$", year))
	if err != nil {
		return "", fmt.Errorf("last op number: %w", err)
	}
	return FormatOpNumber(year, last+1), nil
}

// ImportPatients registers each row on its own. Rows that clash with an
// existing op number or carry bad data are reported back; a database failure
// stops the import.
func (s *PatientStore) ImportPatients(ctx context.Context, rows []CreatePatientInput, registeredBy string) (*ImportResult, error) {
	result := &ImportResult{Successful: []Patient{}, Failed: []ImportFailure{}, Total: len(rows)}
	for _, row := range rows {
		name := strings.TrimSpace(row.FirstName + " " + row.LastName)
		if row.OpNumber == nil || strings.TrimSpace(*row.OpNumber) == "" {
			result.Failed = append(result.Failed, ImportFailure{Name: name, Error: "op number is required"})
			continue
		}
		row.RegistrationType = RegistrationImport

		p, err := s.CreatePatient(ctx, row, registeredBy)
		if errors.Is(err, ErrDuplicateOpNumber) || errors.Is(err, ErrInvalidDateOfBirth) {
			result.Failed = append(result.Failed, ImportFailure{OpNumber: *row.OpNumber, Name: name, Error: err.Error()})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", *row.OpNumber, err)
		}
		result.Successful = append(result.Successful, *p)
	}
	return result, nil
}

func (s *PatientStore) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.getPatient(ctx, "id", id)
}

func (s *PatientStore) GetPatientByOpNumber(ctx context.Context, opNumber string) (*Patient, error) {
	return s.getPatient(ctx, "op_number", opNumber)
}

func (s *PatientStore) getPatient(ctx context.Context, column, value string) (*Patient, error) {
	var p Patient
	err := s.db.GetContext(ctx, &p, "SELECT "+patientColumns+" FROM patients WHERE "+column+" = $1", value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (s *PatientStore) ListPatients(ctx context.Context, filter PatientFilter) ([]Patient, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM patients"); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	patients := []Patient{}
	err := s.db.SelectContext(ctx, &patients,
		"SELECT "+patientColumns+" FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		filter.Limit, (filter.Page-1)*filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	return patients, total, nil
}

// SearchPatients matches op number, either name, the full name or the phone number.
func (s *PatientStore) SearchPatients(ctx context.Context, q string, limit int) ([]Patient, error) {
	patients := []Patient{}
	err := s.db.SelectContext(ctx, &patients, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE op_number ILIKE $1
			OR first_name ILIKE $1
			OR last_name ILIKE $1
			OR phone_number ILIKE $1
			OR first_name || ' ' || last_name ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2`,
		"%"+strings.TrimSpace(q)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return patients, nil
}

func (s *PatientStore) UpdatePatient(ctx context.Context, id string, input UpdatePatientInput) (*Patient, error) {
	sets := []string{}
	args := []interface{}{}
	argIndex := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}
	if input.FirstName != nil {
		add("first_name", strings.TrimSpace(*input.FirstName))
	}
	if input.LastName != nil {
		add("last_name", strings.TrimSpace(*input.LastName))
	}
	if input.DateOfBirth != nil {
		dob, err := parseDate(input.DateOfBirth)
		if err != nil {
			return nil, err
		}
		add("date_of_birth", dob)
	}
	if input.Age != nil {
		add("age", *input.Age)
	}
	if input.Gender != nil {
		add("gender", *input.Gender)
	}
	if input.PhoneNumber != nil {
		add("phone_number", *input.PhoneNumber)
	}
	if input.Area != nil {
		add("area", *input.Area)
	}
	if input.NextOfKin != nil {
		add("next_of_kin", *input.NextOfKin)
	}
	if input.NextOfKinPhone != nil {
		add("next_of_kin_phone", *input.NextOfKinPhone)
	}
	if input.InsuranceType != nil {
		add("insurance_type", *input.InsuranceType)
	}
	if input.InsuranceNumber != nil {
		add("insurance_number", *input.InsuranceNumber)
	}

	if len(sets) == 0 {
		return s.GetPatient(ctx, id)
	}

	query := "UPDATE patients SET " + strings.Join(sets, ", ") +
		fmt.Sprintf(", updated_at = $%d WHERE id = $%d RETURNING ", argIndex, argIndex+1) + patientColumns
	args = append(args, s.now(), id)

	var p Patient
	err := s.db.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return &p, nil
}
