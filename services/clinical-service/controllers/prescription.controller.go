package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NOVASWAY/Seth2.0-sub005/services/clinical-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

type PrescriptionController struct {
	store *models.PrescriptionStore
	log   zerolog.Logger
}

func NewPrescriptionController(store *models.PrescriptionStore) *PrescriptionController {
	return &PrescriptionController{store: store, log: logger.WithComponent("prescriptions")}
}

func (pc *PrescriptionController) Create(c *gin.Context) {
	var input models.CreatePrescriptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	p, err := pc.store.Create(c.Request.Context(), input, security.UserID(c))
	if err != nil {
		failClinical(c, pc.log, "create prescription", err)
		return
	}

	pc.log.Info().Str("prescription_id", p.ID).Int("items", len(p.Items)).Msg("Prescription created")
	security.SendSuccess(c, http.StatusCreated, p, "Prescription created successfully")
}

func (pc *PrescriptionController) GetByID(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	p, err := pc.store.GetByID(c.Request.Context(), id)
	if err != nil {
		failClinical(c, pc.log, "get prescription", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, p, "")
}

func (pc *PrescriptionController) ListByPatient(c *gin.Context) {
	patientID, ok := security.ParamUUID(c, "patientId")
	if !ok {
		return
	}

	list, err := pc.store.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		failClinical(c, pc.log, "list prescriptions", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, list, "")
}

func (pc *PrescriptionController) ListByVisit(c *gin.Context) {
	visitID, ok := security.ParamUUID(c, "visitId")
	if !ok {
		return
	}

	list, err := pc.store.ListByVisit(c.Request.Context(), visitID)
	if err != nil {
		failClinical(c, pc.log, "list prescriptions", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, list, "")
}

func (pc *PrescriptionController) UpdateStatus(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var input models.UpdatePrescriptionStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	p, err := pc.store.UpdateStatus(c.Request.Context(), id, input.Status)
	if err != nil {
		failClinical(c, pc.log, "update prescription status", err)
		return
	}

	pc.log.Info().Str("prescription_id", p.ID).Str("status", p.Status).Msg("Prescription status updated")
	security.SendSuccess(c, http.StatusOK, p, "Prescription status updated successfully")
}

func (pc *PrescriptionController) DispenseItem(c *gin.Context) {
	itemID, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var input models.DispenseItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	p, err := pc.store.RecordItemDispense(c.Request.Context(), itemID, input.Quantity)
	if err != nil {
		failClinical(c, pc.log, "dispense prescription item", err)
		return
	}

	pc.log.Info().
		Str("prescription_id", p.ID).
		Str("item_id", itemID).
		Int("quantity", input.Quantity).
		Str("status", p.Status).
		Msg("Prescription item dispensed")
	security.SendSuccess(c, http.StatusOK, p, "Item dispensed successfully")
}

// failClinical maps store errors onto the response envelope.
func failClinical(c *gin.Context, log zerolog.Logger, op string, err error) {
	switch {
	case errors.Is(err, models.ErrPrescriptionNotFound):
		security.SendNotFoundError(c, "prescription")
	case errors.Is(err, models.ErrPrescriptionItemNotFound):
		security.SendNotFoundError(c, "prescription item")
	case errors.Is(err, models.ErrLabRequestNotFound):
		security.SendNotFoundError(c, "lab request")
	case errors.Is(err, models.ErrLabItemNotFound):
		security.SendNotFoundError(c, "lab request item")
	case errors.Is(err, models.ErrLabTestNotFound):
		security.SendNotFoundError(c, "lab test")
	case errors.Is(err, models.ErrDuplicateTestCode):
		security.SendConflictError(c, "Test code already exists")
	case errors.Is(err, models.ErrOverDispense):
		security.SendBusinessError(c, "Quantity exceeds the amount left to dispense")
	case errors.Is(err, models.ErrInvalidQuantity):
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "quantity", Message: "must be greater than 0"},
		})
	case errors.Is(err, models.ErrPrescriptionClosed),
		errors.Is(err, models.ErrUnknownPatientOrVisit),
		errors.Is(err, models.ErrUnknownInventoryItem),
		errors.Is(err, models.ErrLabTestInactive),
		errors.Is(err, models.ErrInvalidStatusTransition):
		security.SendBusinessError(c, err.Error())
	default:
		log.Error().Err(err).Str("op", op).Msg("Clinical operation failed")
		security.SendDatabaseError(c, "Failed to "+op)
		return
	}
	log.Warn().Err(err).Str("op", op).Msg("Clinical request rejected")
}
