package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NOVASWAY/Seth2.0-sub005/services/patient-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

type PatientController struct {
	patients *models.PatientStore
	visits   *models.VisitStore
	log      zerolog.Logger
}

func NewPatientController(patients *models.PatientStore, visits *models.VisitStore) *PatientController {
	return &PatientController{patients: patients, visits: visits, log: logger.WithComponent("patients")}
}

func (pc *PatientController) Create(c *gin.Context) {
	var input models.CreatePatientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	p, err := pc.patients.CreatePatient(c.Request.Context(), input, security.UserID(c))
	if err != nil {
		failPatients(c, pc.log, "create patient", err)
		return
	}

	pc.log.Info().Str("patient_id", p.ID).Str("op_number", p.OpNumber).Msg("Patient registered")
	security.SendSuccess(c, http.StatusCreated, p, "Patient registered successfully")
}

type pageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q *pageQuery) defaults() {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
}

func pagination(page, limit, total int) gin.H {
	return gin.H{
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": (total + limit - 1) / limit,
	}
}

func (pc *PatientController) List(c *gin.Context) {
	var query pageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}
	query.defaults()

	patients, total, err := pc.patients.ListPatients(c.Request.Context(), models.PatientFilter{Page: query.Page, Limit: query.Limit})
	if err != nil {
		failPatients(c, pc.log, "list patients", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, gin.H{
		"patients":   patients,
		"pagination": pagination(query.Page, query.Limit, total),
	}, "")
}

type searchQuery struct {
	Q     string `form:"q" binding:"required,min=1,max=100"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=50"`
}

func (pc *PatientController) Search(c *gin.Context) {
	var query searchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = 10
	}

	patients, err := pc.patients.SearchPatients(c.Request.Context(), query.Q, query.Limit)
	if err != nil {
		failPatients(c, pc.log, "search patients", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, patients, "")
}

func (pc *PatientController) Get(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	p, err := pc.patients.GetPatient(c.Request.Context(), id)
	if err != nil {
		failPatients(c, pc.log, "get patient", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, p, "")
}

func (pc *PatientController) GetByOpNumber(c *gin.Context) {
	p, err := pc.patients.GetPatientByOpNumber(c.Request.Context(), c.Param("opNumber"))
	if err != nil {
		failPatients(c, pc.log, "get patient", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, p, "")
}

func (pc *PatientController) Update(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var input models.UpdatePatientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	p, err := pc.patients.UpdatePatient(c.Request.Context(), id, input)
	if err != nil {
		failPatients(c, pc.log, "update patient", err)
		return
	}

	pc.log.Info().Str("patient_id", p.ID).Msg("Patient updated")
	security.SendSuccess(c, http.StatusOK, p, "Patient updated successfully")
}

func (pc *PatientController) Import(c *gin.Context) {
	var input models.ImportPatientsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	result, err := pc.patients.ImportPatients(c.Request.Context(), input.Patients, security.UserID(c))
	if err != nil {
		failPatients(c, pc.log, "import patients", err)
		return
	}

	pc.log.Info().
		Int("total", result.Total).
		Int("imported", len(result.Successful)).
		Int("failed", len(result.Failed)).
		Msg("Patient import finished")
	security.SendSuccess(c, http.StatusOK, result, "Patient import finished")
}

type patientVisitsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (pc *PatientController) Visits(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var query patientVisitsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = 10
	}

	if _, err := pc.patients.GetPatient(c.Request.Context(), id); err != nil {
		failPatients(c, pc.log, "list patient visits", err)
		return
	}
	visits, err := pc.visits.ListPatientVisits(c.Request.Context(), id, query.Limit)
	if err != nil {
		failPatients(c, pc.log, "list patient visits", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, visits, "")
}

type VisitController struct {
	patients *models.PatientStore
	visits   *models.VisitStore
	log      zerolog.Logger
}

func NewVisitController(patients *models.PatientStore, visits *models.VisitStore) *VisitController {
	return &VisitController{patients: patients, visits: visits, log: logger.WithComponent("visits")}
}

func (vc *VisitController) Create(c *gin.Context) {
	var input models.CreateVisitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	v, err := vc.visits.CreateVisit(c.Request.Context(), input, security.UserID(c))
	if err != nil {
		failPatients(c, vc.log, "create visit", err)
		return
	}

	vc.log.Info().
		Str("visit_id", v.ID).
		Str("patient_id", v.PatientID).
		Str("triage", v.TriageCategory).
		Msg("Visit registered")
	security.SendSuccess(c, http.StatusCreated, v, "Visit registered successfully")
}

type listVisitsQuery struct {
	Page           int    `form:"page" binding:"omitempty,min=1"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Status         string `form:"status" binding:"omitempty,oneof=REGISTERED TRIAGED WAITING_CONSULTATION IN_CONSULTATION WAITING_LAB LAB_RESULTS_READY WAITING_PHARMACY COMPLETED CANCELLED"`
	TriageCategory string `form:"triage_category" binding:"omitempty,oneof=EMERGENCY URGENT NORMAL"`
	Date           string `form:"date" binding:"omitempty,datetime=2006-01-02"`
}

func (vc *VisitController) List(c *gin.Context) {
	var query listVisitsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 20
	}

	filter := models.VisitFilter{
		Status:         query.Status,
		TriageCategory: query.TriageCategory,
		Page:           query.Page,
		Limit:          query.Limit,
	}
	if query.Date != "" {
		d, err := time.Parse("2006-01-02", query.Date)
		if err != nil {
			security.SendValidationError(c, "Invalid input data", []security.FieldError{
				{Field: "date", Message: "must be a date in YYYY-MM-DD format"},
			})
			return
		}
		filter.Date = &d
	}

	visits, total, err := vc.visits.ListVisits(c.Request.Context(), filter)
	if err != nil {
		failPatients(c, vc.log, "list visits", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, gin.H{
		"visits":     visits,
		"pagination": pagination(query.Page, query.Limit, total),
	}, "")
}

func (vc *VisitController) Queue(c *gin.Context) {
	entries, err := vc.visits.Queue(c.Request.Context())
	if err != nil {
		failPatients(c, vc.log, "load queue", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, entries, "")
}

func (vc *VisitController) Stats(c *gin.Context) {
	stats, err := vc.visits.Stats(c.Request.Context())
	if err != nil {
		failPatients(c, vc.log, "load visit stats", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, stats, "")
}

func (vc *VisitController) Get(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	v, err := vc.visits.GetVisit(c.Request.Context(), id)
	if err != nil {
		failPatients(c, vc.log, "get visit", err)
		return
	}
	p, err := vc.patients.GetPatient(c.Request.Context(), v.PatientID)
	if err != nil {
		failPatients(c, vc.log, "get visit", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, gin.H{"visit": v, "patient": p}, "")
}

func (vc *VisitController) UpdateStatus(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateVisitStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	v, err := vc.visits.UpdateStatus(c.Request.Context(), id, input.Status)
	if err != nil {
		failPatients(c, vc.log, "update visit status", err)
		return
	}

	vc.log.Info().Str("visit_id", v.ID).Str("status", v.Status).Msg("Visit status updated")
	security.SendSuccess(c, http.StatusOK, v, "Visit status updated successfully")
}

// failPatients maps store errors onto the response envelope.
func failPatients(c *gin.Context, log zerolog.Logger, op string, err error) {
	switch {
	case errors.Is(err, models.ErrPatientNotFound):
		security.SendNotFoundError(c, "patient")
	case errors.Is(err, models.ErrVisitNotFound):
		security.SendNotFoundError(c, "visit")
	case errors.Is(err, models.ErrDuplicateOpNumber):
		security.SendConflictError(c, "A patient with this OP number already exists")
	case errors.Is(err, models.ErrVisitExistsToday):
		security.SendConflictError(c, "Patient already has a visit registered for today")
	case errors.Is(err, models.ErrInvalidDateOfBirth):
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "date_of_birth", Message: "must be a date in YYYY-MM-DD format"},
		})
	case errors.Is(err, models.ErrInvalidStatusTransition):
		security.SendBusinessError(c, "Visit is completed or cancelled and can no longer change status")
	default:
		log.Error().Err(err).Str("op", op).Msg("Patient operation failed")
		security.SendDatabaseError(c, "Failed to "+op)
		return
	}
	log.Warn().Err(err).Str("op", op).Msg("Patient request rejected")
}
