package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

var (
	ErrLabRequestNotFound = errors.New("lab request not found")
	ErrLabItemNotFound    = errors.New("lab request item not found")
	ErrLabTestNotFound    = errors.New("lab test not found")
	ErrLabTestInactive    = errors.New("lab test is not active")
	ErrDuplicateTestCode  = errors.New("test code already exists")
)

const (
	LabRequested       = "REQUESTED"
	LabSampleCollected = "SAMPLE_COLLECTED"
	LabInProgress      = "IN_PROGRESS"
	LabCompleted       = "COMPLETED"
	LabCancelled       = "CANCELLED"
)

var labStage = map[string]int{
	LabRequested:       0,
	LabSampleCollected: 1,
	LabInProgress:      2,
	LabCompleted:       3,
}

// CanTransitionLab allows forward moves along the workflow, skipping steps is
// permitted, and cancellation from any open state.
func CanTransitionLab(from, to string) bool {
	if from == LabCompleted || from == LabCancelled {
		return false
	}
	if to == LabCancelled {
		return true
	}
	fromStage, ok := labStage[from]
	if !ok {
		return false
	}
	toStage, ok := labStage[to]
	return ok && toStage > fromStage
}

// canUpdateLabItem also lets a technician amend results without moving the item.
func canUpdateLabItem(from, to string) bool {
	if from == to {
		return from != LabCancelled
	}
	return CanTransitionLab(from, to)
}

type LabRequest struct {
	ID                   string     `json:"id" db:"id"`
	PatientID            string     `json:"patient_id" db:"patient_id"`
	VisitID              *string    `json:"visit_id" db:"visit_id"`
	RequestedBy          *string    `json:"requested_by" db:"requested_by"`
	Urgency              string     `json:"urgency" db:"urgency"`
	Status               string     `json:"status" db:"status"`
	ClinicalNotes        *string    `json:"clinical_notes" db:"clinical_notes"`
	SpecimenCollectedAt  *time.Time `json:"specimen_collected_at" db:"specimen_collected_at"`
	CollectedBy          *string    `json:"collected_by" db:"collected_by"`
	ExpectedCompletionAt *time.Time `json:"expected_completion_at" db:"expected_completion_at"`
	CompletedAt          *time.Time `json:"completed_at" db:"completed_at"`
	RequestedAt          time.Time  `json:"requested_at" db:"requested_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`

	Items []LabRequestItem `json:"items,omitempty" db:"-"`
}

type LabRequestItem struct {
	ID              string         `json:"id" db:"id"`
	LabRequestID    string         `json:"lab_request_id" db:"lab_request_id"`
	TestID          string         `json:"test_id" db:"test_id"`
	TestName        string         `json:"test_name" db:"test_name"`
	TestCode        string         `json:"test_code" db:"test_code"`
	SpecimenType    string         `json:"specimen_type" db:"specimen_type"`
	ClinicalNotes   *string        `json:"clinical_notes" db:"clinical_notes"`
	Status          string         `json:"status" db:"status"`
	ResultData      database.JSONB `json:"result_data" db:"result_data"`
	ReferenceRanges database.JSONB `json:"reference_ranges" db:"reference_ranges"`
	AbnormalFlags   database.JSONB `json:"abnormal_flags" db:"abnormal_flags"`
	TechnicianNotes *string        `json:"technician_notes" db:"technician_notes"`
	VerifiedBy      *string        `json:"verified_by" db:"verified_by"`
	VerifiedAt      *time.Time     `json:"verified_at" db:"verified_at"`
	ReportedAt      *time.Time     `json:"reported_at" db:"reported_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

type LabTest struct {
	ID              string          `json:"id" db:"id"`
	TestCode        string          `json:"test_code" db:"test_code"`
	TestName        string          `json:"test_name" db:"test_name"`
	TestCategory    string          `json:"test_category" db:"test_category"`
	Description     *string         `json:"description" db:"description"`
	SpecimenType    string          `json:"specimen_type" db:"specimen_type"`
	TurnaroundTime  int             `json:"turnaround_time" db:"turnaround_time"`
	Price           decimal.Decimal `json:"price" db:"price"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	ReferenceRanges database.JSONB  `json:"reference_ranges" db:"reference_ranges"`
	Instructions    *string         `json:"instructions" db:"instructions"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

type LabRequestFilter struct {
	Status  string
	Urgency string
}

type LabRequestItemInput struct {
	TestID        string  `json:"test_id" binding:"required,uuid"`
	ClinicalNotes *string `json:"clinical_notes" binding:"omitempty,max=500"`
}

type CreateLabRequestInput struct {
	PatientID     string                `json:"patient_id" binding:"required,uuid"`
	VisitID       *string               `json:"visit_id" binding:"omitempty,uuid"`
	Urgency       string                `json:"urgency" binding:"omitempty,oneof=ROUTINE URGENT STAT"`
	ClinicalNotes *string               `json:"clinical_notes" binding:"omitempty,max=1000"`
	Items         []LabRequestItemInput `json:"items" binding:"required,min=1,dive"`
}

type UpdateLabStatusInput struct {
	Status               string     `json:"status" binding:"required,oneof=REQUESTED SAMPLE_COLLECTED IN_PROGRESS COMPLETED CANCELLED"`
	CollectedBy          *string    `json:"collected_by" binding:"omitempty,uuid"`
	ExpectedCompletionAt *time.Time `json:"expected_completion_at"`
}

type UpdateLabItemInput struct {
	Status          string         `json:"status" binding:"required,oneof=REQUESTED SAMPLE_COLLECTED IN_PROGRESS COMPLETED CANCELLED"`
	ResultData      database.JSONB `json:"result_data"`
	ReferenceRanges database.JSONB `json:"reference_ranges"`
	AbnormalFlags   database.JSONB `json:"abnormal_flags"`
	TechnicianNotes *string        `json:"technician_notes" binding:"omitempty,max=2000"`
	Verified        bool           `json:"verified"`
}

type CreateLabTestInput struct {
	TestCode        string           `json:"test_code" binding:"required,min=1,max=50"`
	TestName        string           `json:"test_name" binding:"required,min=1,max=200"`
	TestCategory    string           `json:"test_category" binding:"required,min=1,max=100"`
	Description     *string          `json:"description" binding:"omitempty,max=1000"`
	SpecimenType    string           `json:"specimen_type" binding:"required,min=1,max=100"`
	TurnaroundTime  *int             `json:"turnaround_time" binding:"omitempty,min=1"`
	Price           *decimal.Decimal `json:"price"`
	ReferenceRanges database.JSONB   `json:"reference_ranges"`
	Instructions    *string          `json:"instructions" binding:"omitempty,max=1000"`
}

type UpdateLabTestInput struct {
	TestName        *string          `json:"test_name" binding:"omitempty,min=1,max=200"`
	TestCategory    *string          `json:"test_category" binding:"omitempty,min=1,max=100"`
	Description     *string          `json:"description" binding:"omitempty,max=1000"`
	SpecimenType    *string          `json:"specimen_type" binding:"omitempty,min=1,max=100"`
	TurnaroundTime  *int             `json:"turnaround_time" binding:"omitempty,min=1"`
	Price           *decimal.Decimal `json:"price"`
	IsActive        *bool            `json:"is_active"`
	ReferenceRanges database.JSONB   `json:"reference_ranges"`
	Instructions    *string          `json:"instructions" binding:"omitempty,max=1000"`
}
