package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

const prescriptionColumns = `id, patient_id, visit_id, op_number, prescribed_by, status, notes,
	created_at, updated_at`

const prescriptionItemColumns = `id, prescription_id, inventory_item_id, item_name, dosage, frequency,
	duration, quantity_prescribed, quantity_dispensed, instructions, created_at, updated_at`

type PrescriptionStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPrescriptionStore(db *sqlx.DB) *PrescriptionStore {
	return &PrescriptionStore{db: db, now: time.Now}
}

func (s *PrescriptionStore) Create(ctx context.Context, input CreatePrescriptionInput, prescribedBy string) (*Prescription, error) {
	var p Prescription
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		now := s.now()
		err := tx.GetContext(ctx, &p, `
			INSERT INTO prescriptions (id, patient_id, visit_id, op_number, prescribed_by, status, notes,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			RETURNING `+prescriptionColumns,
			uuid.NewString(), input.PatientID, input.VisitID, input.OpNumber,
			database.NullString(prescribedBy), PrescriptionPending, input.Notes, now)
		if database.IsForeignKeyViolation(err) {
			return ErrUnknownPatientOrVisit
		}
		if err != nil {
			return fmt.Errorf("insert prescription: %w", err)
		}

		p.Items = make([]PrescriptionItem, 0, len(input.Items))
		for _, in := range input.Items {
			var item PrescriptionItem
			err := tx.GetContext(ctx, &item, `
				INSERT INTO prescription_items (id, prescription_id, inventory_item_id, item_name, dosage,
					frequency, duration, quantity_prescribed, quantity_dispensed, instructions,
					created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $10)
				RETURNING `+prescriptionItemColumns,
				uuid.NewString(), p.ID, in.InventoryItemID, in.ItemName, in.Dosage, in.Frequency,
				in.Duration, in.QuantityPrescribed, in.Instructions, now)
			if database.IsForeignKeyViolation(err) {
				return ErrUnknownInventoryItem
			}
			if err != nil {
				return fmt.Errorf("insert prescription item: %w", err)
			}
			p.Items = append(p.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PrescriptionStore) GetByID(ctx context.Context, id string) (*Prescription, error) {
	var p Prescription
	err := s.db.GetContext(ctx, &p, "SELECT "+prescriptionColumns+" FROM prescriptions WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrescriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prescription: %w", err)
	}

	list := []Prescription{p}
	if err := s.attachItems(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *PrescriptionStore) ListByPatient(ctx context.Context, patientID string) ([]Prescription, error) {
	return s.list(ctx, "patient_id", patientID)
}

func (s *PrescriptionStore) ListByVisit(ctx context.Context, visitID string) ([]Prescription, error) {
	return s.list(ctx, "visit_id", visitID)
}

func (s *PrescriptionStore) list(ctx context.Context, column, value string) ([]Prescription, error) {
	list := []Prescription{}
	query := "SELECT " + prescriptionColumns + " FROM prescriptions WHERE " + column + " = $1 ORDER BY created_at DESC"
	if err := s.db.SelectContext(ctx, &list, query, value); err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	if err := s.attachItems(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *PrescriptionStore) attachItems(ctx context.Context, list []Prescription) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.ID
	}

	items := []PrescriptionItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT "+prescriptionItemColumns+" FROM prescription_items WHERE prescription_id = ANY($1) ORDER BY created_at",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list prescription items: %w", err)
	}

	byPrescription := make(map[string][]PrescriptionItem, len(list))
	for _, item := range items {
		byPrescription[item.PrescriptionID] = append(byPrescription[item.PrescriptionID], item)
	}
	for i := range list {
		list[i].Items = byPrescription[list[i].ID]
		if list[i].Items == nil {
			list[i].Items = []PrescriptionItem{}
		}
	}
	return nil
}

// UpdateStatus applies a manual status change under a row lock.
func (s *PrescriptionStore) UpdateStatus(ctx context.Context, id, status string) (*Prescription, error) {
	var p Prescription
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := lockPrescription(ctx, tx, id)
		if err != nil {
			return err
		}
		if !CanSetPrescriptionStatus(current.Status, status) {
			return fmt.Errorf("%s to %s: %w", current.Status, status, ErrInvalidStatusTransition)
		}

		err = tx.GetContext(ctx, &p,
			"UPDATE prescriptions SET status = $1, updated_at = $2 WHERE id = $3 RETURNING "+prescriptionColumns,
			status, s.now(), id)
		if err != nil {
			return fmt.Errorf("update prescription status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordItemDispense adds qty to a line's dispensed count and re-derives the
// prescription status from all of its lines.
func (s *PrescriptionStore) RecordItemDispense(ctx context.Context, itemID string, qty int) (*Prescription, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var p Prescription
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var prescriptionID string
		err := tx.GetContext(ctx, &prescriptionID, "SELECT prescription_id FROM prescription_items WHERE id = $1", itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPrescriptionItemNotFound
		}
		if err != nil {
			return fmt.Errorf("find prescription item: %w", err)
		}

		current, err := lockPrescription(ctx, tx, prescriptionID)
		if err != nil {
			return err
		}
		if current.Status == PrescriptionCancelled || current.Status == PrescriptionFullyDispensed {
			return ErrPrescriptionClosed
		}

		var item PrescriptionItem
		err = tx.GetContext(ctx, &item,
			"SELECT "+prescriptionItemColumns+" FROM prescription_items WHERE id = $1 FOR UPDATE", itemID)
		if err != nil {
			return fmt.Errorf("lock prescription item: %w", err)
		}
		if qty > item.Remaining() {
			return ErrOverDispense
		}

		now := s.now()
		_, err = tx.ExecContext(ctx,
			"UPDATE prescription_items SET quantity_dispensed = quantity_dispensed + $1, updated_at = $2 WHERE id = $3",
			qty, now, itemID)
		if err != nil {
			return fmt.Errorf("update dispensed quantity: %w", err)
		}

		items := []PrescriptionItem{}
		err = tx.SelectContext(ctx, &items,
			"SELECT "+prescriptionItemColumns+" FROM prescription_items WHERE prescription_id = $1 ORDER BY created_at",
			prescriptionID)
		if err != nil {
			return fmt.Errorf("reload prescription items: %w", err)
		}

		err = tx.GetContext(ctx, &p,
			"UPDATE prescriptions SET status = $1, updated_at = $2 WHERE id = $3 RETURNING "+prescriptionColumns,
			DispenseStatus(items), now, prescriptionID)
		if err != nil {
			return fmt.Errorf("update prescription status: %w", err)
		}
		p.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func lockPrescription(ctx context.Context, tx *sqlx.Tx, id string) (*Prescription, error) {
	var p Prescription
	err := tx.GetContext(ctx, &p, "SELECT "+prescriptionColumns+" FROM prescriptions WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrescriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock prescription: %w", err)
	}
	return &p, nil
}
