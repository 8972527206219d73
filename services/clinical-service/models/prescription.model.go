package models

import (
	"errors"
	"time"
)

var (
	ErrPrescriptionNotFound     = errors.New("prescription not found")
	ErrPrescriptionItemNotFound = errors.New("prescription item not found")
	ErrPrescriptionClosed       = errors.New("prescription is cancelled or fully dispensed")
	ErrOverDispense             = errors.New("quantity exceeds what remains to be dispensed")
	ErrInvalidQuantity          = errors.New("quantity must be greater than 0")
	ErrInvalidStatusTransition  = errors.New("status transition is not allowed")
	ErrUnknownPatientOrVisit    = errors.New("patient or visit does not exist, or the visit belongs to another patient")
	ErrUnknownInventoryItem     = errors.New("inventory item does not exist")
)

const (
	PrescriptionPending            = "PENDING"
	PrescriptionPartiallyDispensed = "PARTIALLY_DISPENSED"
	PrescriptionFullyDispensed     = "FULLY_DISPENSED"
	PrescriptionCancelled          = "CANCELLED"
)

type Prescription struct {
	ID           string    `json:"id" db:"id"`
	PatientID    string    `json:"patient_id" db:"patient_id"`
	VisitID      *string   `json:"visit_id" db:"visit_id"`
	OpNumber     *string   `json:"op_number" db:"op_number"`
	PrescribedBy *string   `json:"prescribed_by" db:"prescribed_by"`
	Status       string    `json:"status" db:"status"`
	Notes        *string   `json:"notes" db:"notes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	Items []PrescriptionItem `json:"items" db:"-"`
}

type PrescriptionItem struct {
	ID                 string    `json:"id" db:"id"`
	PrescriptionID     string    `json:"prescription_id" db:"prescription_id"`
	InventoryItemID    *string   `json:"inventory_item_id" db:"inventory_item_id"`
	ItemName           string    `json:"item_name" db:"item_name"`
	Dosage             string    `json:"dosage" db:"dosage"`
	Frequency          string    `json:"frequency" db:"frequency"`
	Duration           string    `json:"duration" db:"duration"`
	QuantityPrescribed int       `json:"quantity_prescribed" db:"quantity_prescribed"`
	QuantityDispensed  int       `json:"quantity_dispensed" db:"quantity_dispensed"`
	Instructions       *string   `json:"instructions" db:"instructions"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Remaining is what is still to be handed over for this line.
func (i PrescriptionItem) Remaining() int {
	return i.QuantityPrescribed - i.QuantityDispensed
}

// DispenseStatus derives the prescription status from its lines.
func DispenseStatus(items []PrescriptionItem) string {
	if len(items) == 0 {
		return PrescriptionPending
	}
	complete, touched := true, false
	for _, item := range items {
		if item.QuantityDispensed < item.QuantityPrescribed {
			complete = false
		}
		if item.QuantityDispensed > 0 {
			touched = true
		}
	}
	switch {
	case complete:
		return PrescriptionFullyDispensed
	case touched:
		return PrescriptionPartiallyDispensed
	default:
		return PrescriptionPending
	}
}

// CanSetPrescriptionStatus guards manual status changes. Dispensing states are
// only ever derived from the lines, so the one manual move is to CANCELLED.
func CanSetPrescriptionStatus(from, to string) bool {
	if to != PrescriptionCancelled {
		return false
	}
	return from == PrescriptionPending || from == PrescriptionPartiallyDispensed
}

type PrescriptionItemInput struct {
	InventoryItemID    *string `json:"inventory_item_id" binding:"omitempty,uuid"`
	ItemName           string  `json:"item_name" binding:"required,min=1,max=200"`
	Dosage             string  `json:"dosage" binding:"required,min=1,max=100"`
	Frequency          string  `json:"frequency" binding:"required,min=1,max=100"`
	Duration           string  `json:"duration" binding:"required,min=1,max=100"`
	QuantityPrescribed int     `json:"quantity_prescribed" binding:"required,gt=0"`
	Instructions       *string `json:"instructions" binding:"omitempty,max=500"`
}

type CreatePrescriptionInput struct {
	PatientID string                  `json:"patient_id" binding:"required,uuid"`
	VisitID   *string                 `json:"visit_id" binding:"omitempty,uuid"`
	OpNumber  *string                 `json:"op_number" binding:"omitempty,max=50"`
	Notes     *string                 `json:"notes" binding:"omitempty,max=1000"`
	Items     []PrescriptionItemInput `json:"items" binding:"required,min=1,dive"`
}

type UpdatePrescriptionStatusInput struct {
	Status string `json:"status" binding:"required,oneof=PENDING PARTIALLY_DISPENSED FULLY_DISPENSED CANCELLED"`
}

type DispenseItemInput struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}
