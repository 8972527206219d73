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
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

const labRequestColumns = `id, patient_id, visit_id, requested_by, urgency, status, clinical_notes,
	specimen_collected_at, collected_by, expected_completion_at, completed_at, requested_at, updated_at`

const labItemColumns = `id, lab_request_id, test_id, test_name, test_code, specimen_type, clinical_notes,
	status, result_data, reference_ranges, abnormal_flags, technician_notes, verified_by, verified_at,
	reported_at, created_at, updated_at`

const labTestColumns = `id, test_code, test_name, test_category, description, specimen_type,
	turnaround_time, price, is_active, reference_ranges, instructions, created_at, updated_at`

const pendingOrder = ` ORDER BY CASE urgency WHEN 'STAT' THEN 1 WHEN 'URGENT' THEN 2 ELSE 3 END, requested_at ASC`

// LabStore owns lab requests, their items and the test catalog.
type LabStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewLabStore(db *sqlx.DB) *LabStore {
	return &LabStore{db: db, now: time.Now}
}

// CreateRequest snapshots name, code and specimen of each ordered test from the catalog.
func (s *LabStore) CreateRequest(ctx context.Context, input CreateLabRequestInput, requestedBy string) (*LabRequest, error) {
	urgency := input.Urgency
	if urgency == "" {
		urgency = "ROUTINE"
	}
	ids := make([]string, len(input.Items))
	for i, item := range input.Items {
		ids[i] = item.TestID
	}

	var req LabRequest
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		tests := []LabTest{}
		err := tx.SelectContext(ctx, &tests,
			"SELECT "+labTestColumns+" FROM clinical_lab_tests WHERE id = ANY($1)", pq.Array(ids))
		if err != nil {
			return fmt.Errorf("load lab tests: %w", err)
		}
		catalog := make(map[string]LabTest, len(tests))
		for _, t := range tests {
			catalog[t.ID] = t
		}
		for _, id := range ids {
			t, ok := catalog[id]
			if !ok {
				return fmt.Errorf("%s: %w", id, ErrLabTestNotFound)
			}
			if !t.IsActive {
				return fmt.Errorf("%s: %w", t.TestCode, ErrLabTestInactive)
			}
		}

		now := s.now()
		err = tx.GetContext(ctx, &req, `
			INSERT INTO lab_requests (id, patient_id, visit_id, requested_by, urgency, status, clinical_notes,
				requested_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			RETURNING `+labRequestColumns,
			uuid.NewString(), input.PatientID, input.VisitID, database.NullString(requestedBy), urgency,
			LabRequested, input.ClinicalNotes, now)
		if database.IsForeignKeyViolation(err) {
			return ErrUnknownPatientOrVisit
		}
		if err != nil {
			return fmt.Errorf("insert lab request: %w", err)
		}

		req.Items = make([]LabRequestItem, 0, len(input.Items))
		for _, in := range input.Items {
			t := catalog[in.TestID]
			var item LabRequestItem
			err := tx.GetContext(ctx, &item, `
				INSERT INTO lab_request_items (id, lab_request_id, test_id, test_name, test_code, specimen_type,
					clinical_notes, status, reference_ranges, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
				RETURNING `+labItemColumns,
				uuid.NewString(), req.ID, t.ID, t.TestName, t.TestCode, t.SpecimenType, in.ClinicalNotes,
				LabRequested, t.ReferenceRanges, now)
			if err != nil {
				return fmt.Errorf("insert lab request item: %w", err)
			}
			req.Items = append(req.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *LabStore) GetRequest(ctx context.Context, id string) (*LabRequest, error) {
	var req LabRequest
	err := s.db.GetContext(ctx, &req, "SELECT "+labRequestColumns+" FROM lab_requests WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLabRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lab request: %w", err)
	}

	req.Items, err = s.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *LabStore) ListItems(ctx context.Context, requestID string) ([]LabRequestItem, error) {
	items := []LabRequestItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT "+labItemColumns+" FROM lab_request_items WHERE lab_request_id = $1 ORDER BY created_at", requestID)
	if err != nil {
		return nil, fmt.Errorf("list lab request items: %w", err)
	}
	return items, nil
}

func (s *LabStore) ListRequests(ctx context.Context, filter LabRequestFilter) ([]LabRequest, error) {
	where := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.Urgency != "" {
		where = append(where, fmt.Sprintf("urgency = $%d", argIndex))
		args = append(args, filter.Urgency)
	}

	query := "SELECT " + labRequestColumns + " FROM lab_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY requested_at DESC"

	return s.selectRequests(ctx, query, args...)
}

// ListPending returns open requests, most urgent first.
func (s *LabStore) ListPending(ctx context.Context) ([]LabRequest, error) {
	query := "SELECT " + labRequestColumns + " FROM lab_requests WHERE status IN ($1, $2, $3)" + pendingOrder
	return s.selectRequests(ctx, query, LabRequested, LabSampleCollected, LabInProgress)
}

// ListCompleted filters on completed_at within [from, to).
func (s *LabStore) ListCompleted(ctx context.Context, from, to *time.Time) ([]LabRequest, error) {
	query := "SELECT " + labRequestColumns + " FROM lab_requests WHERE status = $1"
	args := []interface{}{LabCompleted}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND completed_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND completed_at < $%d", len(args))
	}
	query += " ORDER BY completed_at DESC"
	return s.selectRequests(ctx, query, args...)
}

func (s *LabStore) ListByPatient(ctx context.Context, patientID string) ([]LabRequest, error) {
	return s.selectRequests(ctx,
		"SELECT "+labRequestColumns+" FROM lab_requests WHERE patient_id = $1 ORDER BY requested_at DESC", patientID)
}

func (s *LabStore) ListByVisit(ctx context.Context, visitID string) ([]LabRequest, error) {
	return s.selectRequests(ctx,
		"SELECT "+labRequestColumns+" FROM lab_requests WHERE visit_id = $1 ORDER BY requested_at DESC", visitID)
}

func (s *LabStore) selectRequests(ctx context.Context, query string, args ...interface{}) ([]LabRequest, error) {
	requests := []LabRequest{}
	if err := s.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list lab requests: %w", err)
	}
	return requests, nil
}

// UpdateRequestStatus moves a request along the workflow. Cancelling a
// request also cancels its unfinished items.
func (s *LabStore) UpdateRequestStatus(ctx context.Context, id string, input UpdateLabStatusInput, userID string) (*LabRequest, error) {
	var req LabRequest
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var current LabRequest
		err := tx.GetContext(ctx, &current,
			"SELECT "+labRequestColumns+" FROM lab_requests WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLabRequestNotFound
		}
		if err != nil {
			return fmt.Errorf("lock lab request: %w", err)
		}
		if !CanTransitionLab(current.Status, input.Status) {
			return fmt.Errorf("%s to %s: %w", current.Status, input.Status, ErrInvalidStatusTransition)
		}

		now := s.now()
		collectedAt, collectedBy := current.SpecimenCollectedAt, current.CollectedBy
		if input.Status != LabCancelled && collectedAt == nil {
			collectedAt = &now
			collectedBy = input.CollectedBy
			if collectedBy == nil {
				collectedBy = database.NullString(userID)
			}
		}
		completedAt := current.CompletedAt
		if input.Status == LabCompleted {
			completedAt = &now
		}
		expected := current.ExpectedCompletionAt
		if input.ExpectedCompletionAt != nil {
			expected = input.ExpectedCompletionAt
		}

		err = tx.GetContext(ctx, &req, `
			UPDATE lab_requests SET status = $1, specimen_collected_at = $2, collected_by = $3,
				expected_completion_at = $4, completed_at = $5, updated_at = $6
			WHERE id = $7
			RETURNING `+labRequestColumns,
			input.Status, collectedAt, collectedBy, expected, completedAt, now, id)
		if err != nil {
			return fmt.Errorf("update lab request status: %w", err)
		}

		if input.Status == LabCancelled {
			_, err = tx.ExecContext(ctx, `
				UPDATE lab_request_items SET status = $1, updated_at = $2
				WHERE lab_request_id = $3 AND status NOT IN ($4, $1)`,
				LabCancelled, now, id, LabCompleted)
			if err != nil {
				return fmt.Errorf("cancel lab request items: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateItemResult records results for a single test. Result fields left out
// of the input keep their stored values.
func (s *LabStore) UpdateItemResult(ctx context.Context, itemID string, input UpdateLabItemInput, userID string) (*LabRequestItem, error) {
	var item LabRequestItem
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var current LabRequestItem
		err := tx.GetContext(ctx, &current,
			"SELECT "+labItemColumns+" FROM lab_request_items WHERE id = $1 FOR UPDATE", itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLabItemNotFound
		}
		if err != nil {
			return fmt.Errorf("lock lab request item: %w", err)
		}
		if !canUpdateLabItem(current.Status, input.Status) {
			return fmt.Errorf("%s to %s: %w", current.Status, input.Status, ErrInvalidStatusTransition)
		}

		now := s.now()
		result, ranges, flags := current.ResultData, current.ReferenceRanges, current.AbnormalFlags
		if input.ResultData != nil {
			result = input.ResultData
		}
		if input.ReferenceRanges != nil {
			ranges = input.ReferenceRanges
		}
		if input.AbnormalFlags != nil {
			flags = input.AbnormalFlags
		}
		notes := current.TechnicianNotes
		if input.TechnicianNotes != nil {
			notes = input.TechnicianNotes
		}
		verifiedBy, verifiedAt := current.VerifiedBy, current.VerifiedAt
		if input.Verified {
			verifiedBy, verifiedAt = database.NullString(userID), &now
		}
		reportedAt := current.ReportedAt
		if input.Status == LabCompleted && reportedAt == nil {
			reportedAt = &now
		}

		err = tx.GetContext(ctx, &item, `
			UPDATE lab_request_items SET status = $1, result_data = $2, reference_ranges = $3,
				abnormal_flags = $4, technician_notes = $5, verified_by = $6, verified_at = $7,
				reported_at = $8, updated_at = $9
			WHERE id = $10
			RETURNING `+labItemColumns,
			input.Status, result, ranges, flags, notes, verifiedBy, verifiedAt, reportedAt, now, itemID)
		if err != nil {
			return fmt.Errorf("update lab result: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *LabStore) ListTests(ctx context.Context, activeOnly bool, category string) ([]LabTest, error) {
	where := []string{}
	args := []interface{}{}
	if activeOnly {
		where = append(where, "is_active = true")
	}
	if category != "" {
		args = append(args, category)
		where = append(where, fmt.Sprintf("test_category = $%d", len(args)))
	}

	query := "SELECT " + labTestColumns + " FROM clinical_lab_tests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY test_category, test_name"

	tests := []LabTest{}
	if err := s.db.SelectContext(ctx, &tests, query, args...); err != nil {
		return nil, fmt.Errorf("list lab tests: %w", err)
	}
	return tests, nil
}

func (s *LabStore) SearchTests(ctx context.Context, q string) ([]LabTest, error) {
	tests := []LabTest{}
	err := s.db.SelectContext(ctx, &tests, `
		SELECT `+labTestColumns+` FROM clinical_lab_tests
		WHERE is_active = true AND (test_name ILIKE $1 OR test_code ILIKE $1 OR test_category ILIKE $1)
		ORDER BY test_name
		LIMIT 50`, "%"+q+"%")
	if err != nil {
		return nil, fmt.Errorf("search lab tests: %w", err)
	}
	return tests, nil
}

func (s *LabStore) Categories(ctx context.Context) ([]string, error) {
	categories := []string{}
	err := s.db.SelectContext(ctx, &categories,
		"SELECT DISTINCT test_category FROM clinical_lab_tests WHERE is_active = true ORDER BY test_category")
	if err != nil {
		return nil, fmt.Errorf("list lab test categories: %w", err)
	}
	return categories, nil
}

func (s *LabStore) GetTest(ctx context.Context, id string) (*LabTest, error) {
	var t LabTest
	err := s.db.GetContext(ctx, &t, "SELECT "+labTestColumns+" FROM clinical_lab_tests WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLabTestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lab test: %w", err)
	}
	return &t, nil
}

func (s *LabStore) CreateTest(ctx context.Context, input CreateLabTestInput) (*LabTest, error) {
	turnaround := 24
	if input.TurnaroundTime != nil {
		turnaround = *input.TurnaroundTime
	}
	price := decimal.Zero
	if input.Price != nil {
		price = *input.Price
	}

	var t LabTest
	err := s.db.GetContext(ctx, &t, `
		INSERT INTO clinical_lab_tests (id, test_code, test_name, test_category, description, specimen_type,
			turnaround_time, price, is_active, reference_ranges, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9, $10)
		RETURNING `+labTestColumns,
		uuid.NewString(), strings.ToUpper(input.TestCode), input.TestName, input.TestCategory,
		input.Description, input.SpecimenType, turnaround, price, input.ReferenceRanges, input.Instructions)
	if database.IsUniqueViolation(err) {
		return nil, ErrDuplicateTestCode
	}
	if err != nil {
		return nil, fmt.Errorf("insert lab test: %w", err)
	}
	return &t, nil
}

func (s *LabStore) UpdateTest(ctx context.Context, id string, input UpdateLabTestInput) (*LabTest, error) {
	sets := []string{}
	args := []interface{}{}
	argIndex := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}
	if input.TestName != nil {
		add("test_name", *input.TestName)
	}
	if input.TestCategory != nil {
		add("test_category", *input.TestCategory)
	}
	if input.Description != nil {
		add("description", *input.Description)
	}
	if input.SpecimenType != nil {
		add("specimen_type", *input.SpecimenType)
	}
	if input.TurnaroundTime != nil {
		add("turnaround_time", *input.TurnaroundTime)
	}
	if input.Price != nil {
		add("price", *input.Price)
	}
	if input.IsActive != nil {
		add("is_active", *input.IsActive)
	}
	if input.ReferenceRanges != nil {
		add("reference_ranges", input.ReferenceRanges)
	}
	if input.Instructions != nil {
		add("instructions", *input.Instructions)
	}

	if len(sets) == 0 {
		return s.GetTest(ctx, id)
	}

	query := "UPDATE clinical_lab_tests SET " + strings.Join(sets, ", ") +
		fmt.Sprintf(", updated_at = NOW() WHERE id = $%d RETURNING ", argIndex) + labTestColumns
	args = append(args, id)

	var t LabTest
	err := s.db.GetContext(ctx, &t, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLabTestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update lab test: %w", err)
	}
	return &t, nil
}

// DeactivateTest hides a test from ordering; existing requests keep their snapshot.
func (s *LabStore) DeactivateTest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE clinical_lab_tests SET is_active = false, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate lab test: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate lab test: %w", err)
	}
	if n == 0 {
		return ErrLabTestNotFound
	}
	return nil
}
