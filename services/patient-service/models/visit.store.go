package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

const visitColumns = `id, patient_id, op_number, visit_date, status, chief_complaint, triage_category,
	payment_type, payment_reference, created_by, created_at, updated_at`

const triageOrder = `CASE triage_category WHEN 'EMERGENCY' THEN 1 WHEN 'URGENT' THEN 2 ELSE 3 END`

type VisitStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewVisitStore(db *sqlx.DB) *VisitStore {
	return &VisitStore{db: db, now: time.Now}
}

func (s *VisitStore) today() string {
	return s.now().Format("2006-01-02")
}

// CreateVisit opens today's visit for a patient. The patient row is locked so
// two desks cannot register the same patient twice on one day.
func (s *VisitStore) CreateVisit(ctx context.Context, input CreateVisitInput, createdBy string) (*Visit, error) {
	triage := input.TriageCategory
	if triage == "" {
		triage = TriageNormal
	}

	var v Visit
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var opNumber string
		err := tx.GetContext(ctx, &opNumber, "SELECT op_number FROM patients WHERE id = $1 FOR UPDATE", input.PatientID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPatientNotFound
		}
		if err != nil {
			return fmt.Errorf("lock patient: %w", err)
		}

		today := s.today()
		var exists bool
		err = tx.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM visits WHERE patient_id = $1 AND visit_date = $2)", input.PatientID, today)
		if err != nil {
			return fmt.Errorf("check visit: %w", err)
		}
		if exists {
			return ErrVisitExistsToday
		}

		now := s.now()
		err = tx.GetContext(ctx, &v, `
			INSERT INTO visits (id, patient_id, op_number, visit_date, status, chief_complaint, triage_category,
				payment_type, payment_reference, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			RETURNING `+visitColumns,
			uuid.NewString(), input.PatientID, opNumber, today, VisitRegistered, input.ChiefComplaint, triage,
			input.PaymentType, input.PaymentReference, database.NullString(createdBy), now)
		if database.IsUniqueViolation(err) {
			return ErrVisitExistsToday
		}
		if err != nil {
			return fmt.Errorf("insert visit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *VisitStore) GetVisit(ctx context.Context, id string) (*Visit, error) {
	var v Visit
	err := s.db.GetContext(ctx, &v, "SELECT "+visitColumns+" FROM visits WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return &v, nil
}

func (s *VisitStore) ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.TriageCategory != "" {
		where += fmt.Sprintf(" AND triage_category = $%d", argIndex)
		args = append(args, filter.TriageCategory)
		argIndex++
	}
	if filter.Date != nil {
		where += fmt.Sprintf(" AND visit_date = $%d", argIndex)
		args = append(args, filter.Date.Format("2006-01-02"))
		argIndex++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM visits"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count visits: %w", err)
	}

	query := "SELECT " + visitColumns + " FROM visits" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	visits := []Visit{}
	if err := s.db.SelectContext(ctx, &visits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}
	return visits, total, nil
}

func (s *VisitStore) ListPatientVisits(ctx context.Context, patientID string, limit int) ([]Visit, error) {
	visits := []Visit{}
	err := s.db.SelectContext(ctx, &visits,
		"SELECT "+visitColumns+" FROM visits WHERE patient_id = $1 ORDER BY visit_date DESC, created_at DESC LIMIT $2",
		patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list patient visits: %w", err)
	}
	return visits, nil
}

// Queue lists today's open visits, emergencies first and then by arrival.
func (s *VisitStore) Queue(ctx context.Context) ([]QueueEntry, error) {
	entries := []QueueEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT v.id AS visit_id, v.patient_id, v.op_number,
			p.first_name || ' ' || p.last_name AS patient_name,
			v.status, v.triage_category,
			ROW_NUMBER() OVER (ORDER BY `+triageOrder+`, v.created_at ASC) AS queue_position,
			v.created_at
		FROM visits v
		JOIN patients p ON p.id = v.patient_id
		WHERE v.visit_date = $1 AND v.status NOT IN ($2, $3)
		ORDER BY queue_position`,
		s.today(), VisitCompleted, VisitCancelled)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	return entries, nil
}

func (s *VisitStore) Stats(ctx context.Context) (*VisitStats, error) {
	var stats VisitStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS today,
			COUNT(*) FILTER (WHERE status IN ($2, $3, $4, $5, $6)) AS waiting,
			COUNT(*) FILTER (WHERE status IN ($7, $8)) AS in_progress,
			COUNT(*) FILTER (WHERE status = $9) AS completed
		FROM visits
		WHERE visit_date = $1`,
		s.today(),
		VisitRegistered, VisitTriaged, VisitWaitingConsultation, VisitWaitingLab, VisitWaitingPharmacy,
		VisitInConsultation, VisitLabResultsReady,
		VisitCompleted)
	if err != nil {
		return nil, fmt.Errorf("visit stats: %w", err)
	}
	return &stats, nil
}

func (s *VisitStore) UpdateStatus(ctx context.Context, id, status string) (*Visit, error) {
	var v Visit
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var current string
		err := tx.GetContext(ctx, &current, "SELECT status FROM visits WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVisitNotFound
		}
		if err != nil {
			return fmt.Errorf("lock visit: %w", err)
		}
		if !CanSetVisitStatus(current, status) {
			return fmt.Errorf("%s to %s: %w", current, status, ErrInvalidStatusTransition)
		}

		err = tx.GetContext(ctx, &v,
			"UPDATE visits SET status = $1, updated_at = $2 WHERE id = $3 RETURNING "+visitColumns,
			status, s.now(), id)
		if err != nil {
			return fmt.Errorf("update visit status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}
