package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPatientNotFound         = errors.New("patient not found")
	ErrVisitNotFound           = errors.New("visit not found")
	ErrDuplicateOpNumber       = errors.New("a patient with this op number already exists")
	ErrVisitExistsToday        = errors.New("patient already has a visit registered for today")
	ErrInvalidStatusTransition = errors.New("visit is completed or cancelled")
)

const (
	InsuranceSHA     = "SHA"
	InsurancePrivate = "PRIVATE"
	InsuranceCash    = "CASH"

	RegistrationNew    = "NEW_PATIENT"
	RegistrationImport = "IMPORT_PATIENT"
)

// Visit statuses, in the order a patient normally moves through the clinic.
const (
	VisitRegistered          = "REGISTERED"
	VisitTriaged             = "TRIAGED"
	VisitWaitingConsultation = "WAITING_CONSULTATION"
	VisitInConsultation      = "IN_CONSULTATION"
	VisitWaitingLab          = "WAITING_LAB"
	VisitLabResultsReady     = "LAB_RESULTS_READY"
	VisitWaitingPharmacy     = "WAITING_PHARMACY"
	VisitCompleted           = "COMPLETED"
	VisitCancelled           = "CANCELLED"
)

const (
	TriageEmergency = "EMERGENCY"
	TriageUrgent    = "URGENT"
	TriageNormal    = "NORMAL"
)

// CanSetVisitStatus allows any move between open statuses; a completed or
// cancelled visit is frozen.
func CanSetVisitStatus(from, to string) bool {
	return from != VisitCompleted && from != VisitCancelled && to != ""
}

// FormatOpNumber renders the yearly outpatient number, e.g. OP-2026-007.
func FormatOpNumber(year, seq int) string {
	return fmt.Sprintf("OP-%d-%03d", year, seq)
}

type Patient struct {
	ID               string     `json:"id" db:"id"`
	OpNumber         string     `json:"op_number" db:"op_number"`
	FirstName        string     `json:"first_name" db:"first_name"`
	LastName         string     `json:"last_name" db:"last_name"`
	DateOfBirth      *time.Time `json:"date_of_birth" db:"date_of_birth"`
	Age              *int       `json:"age" db:"age"`
	Gender           string     `json:"gender" db:"gender"`
	PhoneNumber      *string    `json:"phone_number" db:"phone_number"`
	Area             *string    `json:"area" db:"area"`
	NextOfKin        *string    `json:"next_of_kin" db:"next_of_kin"`
	NextOfKinPhone   *string    `json:"next_of_kin_phone" db:"next_of_kin_phone"`
	InsuranceType    string     `json:"insurance_type" db:"insurance_type"`
	InsuranceNumber  *string    `json:"insurance_number" db:"insurance_number"`
	RegistrationType string     `json:"registration_type" db:"registration_type"`
	RegisteredBy     *string    `json:"registered_by" db:"registered_by"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

type Visit struct {
	ID               string    `json:"id" db:"id"`
	PatientID        string    `json:"patient_id" db:"patient_id"`
	OpNumber         string    `json:"op_number" db:"op_number"`
	VisitDate        time.Time `json:"visit_date" db:"visit_date"`
	Status           string    `json:"status" db:"status"`
	ChiefComplaint   *string   `json:"chief_complaint" db:"chief_complaint"`
	TriageCategory   string    `json:"triage_category" db:"triage_category"`
	PaymentType      *string   `json:"payment_type" db:"payment_type"`
	PaymentReference *string   `json:"payment_reference" db:"payment_reference"`
	CreatedBy        *string   `json:"created_by" db:"created_by"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// QueueEntry is an open visit of today with its position in the triage queue.
type QueueEntry struct {
	VisitID        string    `json:"visit_id" db:"visit_id"`
	PatientID      string    `json:"patient_id" db:"patient_id"`
	OpNumber       string    `json:"op_number" db:"op_number"`
	PatientName    string    `json:"patient_name" db:"patient_name"`
	Status         string    `json:"status" db:"status"`
	TriageCategory string    `json:"triage_category" db:"triage_category"`
	QueuePosition  int       `json:"queue_position" db:"queue_position"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type VisitStats struct {
	Today      int `json:"today" db:"today"`
	Waiting    int `json:"waiting" db:"waiting"`
	InProgress int `json:"in_progress" db:"in_progress"`
	Completed  int `json:"completed" db:"completed"`
}

type PatientFilter struct {
	Page  int
	Limit int
}

type VisitFilter struct {
	Status         string
	TriageCategory string
	Date           *time.Time
	Page           int
	Limit          int
}

type CreatePatientInput struct {
	OpNumber         *string `json:"op_number" binding:"omitempty,min=1,max=50"`
	FirstName        string  `json:"first_name" binding:"required,min=1,max=100"`
	LastName         string  `json:"last_name" binding:"required,min=1,max=100"`
	DateOfBirth      *string `json:"date_of_birth" binding:"omitempty,datetime=2006-01-02"`
	Age              *int    `json:"age" binding:"omitempty,min=0,max=150"`
	Gender           string  `json:"gender" binding:"required,oneof=MALE FEMALE OTHER"`
	PhoneNumber      *string `json:"phone_number" binding:"omitempty,msisdn"`
	Area             *string `json:"area" binding:"omitempty,max=100"`
	NextOfKin        *string `json:"next_of_kin" binding:"omitempty,max=200"`
	NextOfKinPhone   *string `json:"next_of_kin_phone" binding:"omitempty,msisdn"`
	InsuranceType    string  `json:"insurance_type" binding:"required,oneof=SHA PRIVATE CASH"`
	InsuranceNumber  *string `json:"insurance_number" binding:"omitempty,max=50"`
	RegistrationType string  `json:"registration_type" binding:"omitempty,oneof=NEW_PATIENT IMPORT_PATIENT"`
}

type UpdatePatientInput struct {
	FirstName       *string `json:"first_name" binding:"omitempty,min=1,max=100"`
	LastName        *string `json:"last_name" binding:"omitempty,min=1,max=100"`
	DateOfBirth     *string `json:"date_of_birth" binding:"omitempty,datetime=2006-01-02"`
	Age             *int    `json:"age" binding:"omitempty,min=0,max=150"`
	Gender          *string `json:"gender" binding:"omitempty,oneof=MALE FEMALE OTHER"`
	PhoneNumber     *string `json:"phone_number" binding:"omitempty,msisdn"`
	Area            *string `json:"area" binding:"omitempty,max=100"`
	NextOfKin       *string `json:"next_of_kin" binding:"omitempty,max=200"`
	NextOfKinPhone  *string `json:"next_of_kin_phone" binding:"omitempty,msisdn"`
	InsuranceType   *string `json:"insurance_type" binding:"omitempty,oneof=SHA PRIVATE CASH"`
	InsuranceNumber *string `json:"insurance_number" binding:"omitempty,max=50"`
}

// ImportPatientsInput carries rows exported from another register. Every row
// must bring its own op number.
type ImportPatientsInput struct {
	Patients []CreatePatientInput `json:"patients" binding:"required,min=1,max=500,dive"`
}

type ImportFailure struct {
	OpNumber string `json:"op_number"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

type ImportResult struct {
	Successful []Patient       `json:"successful"`
	Failed     []ImportFailure `json:"failed"`
	Total      int             `json:"total"`
}

type CreateVisitInput struct {
	PatientID        string  `json:"patient_id" binding:"required,uuid"`
	ChiefComplaint   *string `json:"chief_complaint" binding:"omitempty,min=1,max=1000"`
	TriageCategory   string  `json:"triage_category" binding:"omitempty,oneof=EMERGENCY URGENT NORMAL"`
	PaymentType      *string `json:"payment_type" binding:"omitempty,oneof=SHA PRIVATE CASH NHIF OTHER"`
	PaymentReference *string `json:"payment_reference" binding:"omitempty,max=100"`
}

type UpdateVisitStatusInput struct {
	Status string `json:"status" binding:"required,oneof=REGISTERED TRIAGED WAITING_CONSULTATION IN_CONSULTATION WAITING_LAB LAB_RESULTS_READY WAITING_PHARMACY COMPLETED CANCELLED"`
}
