package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NOVASWAY/Seth2.0-sub005/services/clinical-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

type LabController struct {
	store *models.LabStore
	log   zerolog.Logger
}

func NewLabController(store *models.LabStore) *LabController {
	return &LabController{store: store, log: logger.WithComponent("lab")}
}

func (lc *LabController) CreateRequest(c *gin.Context) {
	var input models.CreateLabRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	req, err := lc.store.CreateRequest(c.Request.Context(), input, security.UserID(c))
	if err != nil {
		failClinical(c, lc.log, "create lab request", err)
		return
	}

	lc.log.Info().
		Str("lab_request_id", req.ID).
		Str("urgency", req.Urgency).
		Int("tests", len(req.Items)).
		Msg("Lab request created")
	security.SendSuccess(c, http.StatusCreated, req, "Lab request created successfully")
}

type listLabRequestsQuery struct {
	Status  string `form:"status" binding:"omitempty,oneof=REQUESTED SAMPLE_COLLECTED IN_PROGRESS COMPLETED CANCELLED"`
	Urgency string `form:"urgency" binding:"omitempty,oneof=ROUTINE URGENT STAT"`
}

func (lc *LabController) ListRequests(c *gin.Context) {
	var query listLabRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}

	list, err := lc.store.ListRequests(c.Request.Context(), models.LabRequestFilter{
		Status:  query.Status,
		Urgency: query.Urgency,
	})
	if err != nil {
		failClinical(c, lc.log, "list lab requests", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, list, "")
}

func (lc *LabController) ListPending(c *gin.Context) {
	list, err := lc.store.ListPending(c.Request.Context())
	if err != nil {
		failClinical(c, lc.log, "list pending lab requests", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, list, "")
}

type completedQuery struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

func (lc *LabController) ListCompleted(c *gin.Context) {
	var query completedQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}

	var from, to *time.Time
	if query.From != "" {
		t, _ := time.Parse("2006-01-02", query.From)
		from = &t
	}
	if query.To != "" {
		t, _ := time.Parse("2006-01-02", query.To)
		t = t.AddDate(0, 0, 1)
		to = &t
	}

	list, err := lc.store.ListCompleted(c.Request.Context(), from, to)
	if err != nil {
		failClinical(c, lc.log, "list completed lab requests", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, list, "")
}

func (lc *LabController) ListByPatient(c *gin.Context) {
	patientID, ok := security.ParamUUID(c, "patientId")
	if !ok {
		return
	}

	list, err := lc.store.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		failClinical(c, lc.log, "list lab requests", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, list, "")
}

func (lc *LabController) ListByVisit(c *gin.Context) {
	visitID, ok := security.ParamUUID(c, "visitId")
	if !ok {
		return
	}

	list, err := lc.store.ListByVisit(c.Request.Context(), visitID)
	if err != nil {
		failClinical(c, lc.log, "list lab requests", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, list, "")
}

func (lc *LabController) GetRequest(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	req, err := lc.store.GetRequest(c.Request.Context(), id)
	if err != nil {
		failClinical(c, lc.log, "get lab request", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, req, "")
}

func (lc *LabController) ListItems(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	req, err := lc.store.GetRequest(c.Request.Context(), id)
	if err != nil {
		failClinical(c, lc.log, "list lab request items", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, req.Items, "")
}

func (lc *LabController) UpdateStatus(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateLabStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	req, err := lc.store.UpdateRequestStatus(c.Request.Context(), id, input, security.UserID(c))
	if err != nil {
		failClinical(c, lc.log, "update lab request status", err)
		return
	}

	lc.log.Info().Str("lab_request_id", req.ID).Str("status", req.Status).Msg("Lab request status updated")
	security.SendSuccess(c, http.StatusOK, req, "Lab request status updated successfully")
}

func (lc *LabController) UpdateItem(c *gin.Context) {
	itemID, ok := security.ParamUUID(c, "itemId")
	if !ok {
		return
	}
	var input models.UpdateLabItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	item, err := lc.store.UpdateItemResult(c.Request.Context(), itemID, input, security.UserID(c))
	if err != nil {
		failClinical(c, lc.log, "update lab result", err)
		return
	}

	lc.log.Info().
		Str("lab_request_id", item.LabRequestID).
		Str("item_id", item.ID).
		Str("status", item.Status).
		Bool("verified", item.VerifiedAt != nil).
		Msg("Lab result updated")
	security.SendSuccess(c, http.StatusOK, item, "Lab result updated successfully")
}

type listLabTestsQuery struct {
	Category        string `form:"category" binding:"omitempty,max=100"`
	IncludeInactive bool   `form:"include_inactive"`
}

func (lc *LabController) ListTests(c *gin.Context) {
	var query listLabTestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}

	tests, err := lc.store.ListTests(c.Request.Context(), !query.IncludeInactive, query.Category)
	if err != nil {
		failClinical(c, lc.log, "list lab tests", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, tests, "")
}

func (lc *LabController) SearchTests(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 2 {
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "q", Message: "must be at least 2 characters"},
		})
		return
	}

	tests, err := lc.store.SearchTests(c.Request.Context(), q)
	if err != nil {
		failClinical(c, lc.log, "search lab tests", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, tests, "")
}

func (lc *LabController) Categories(c *gin.Context) {
	categories, err := lc.store.Categories(c.Request.Context())
	if err != nil {
		failClinical(c, lc.log, "list lab test categories", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, categories, "")
}

func (lc *LabController) GetTest(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	test, err := lc.store.GetTest(c.Request.Context(), id)
	if err != nil {
		failClinical(c, lc.log, "get lab test", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, test, "")
}

func (lc *LabController) CreateTest(c *gin.Context) {
	var input models.CreateLabTestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if input.Price != nil && input.Price.IsNegative() {
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "price", Message: "must be 0 or greater"},
		})
		return
	}

	test, err := lc.store.CreateTest(c.Request.Context(), input)
	if err != nil {
		failClinical(c, lc.log, "create lab test", err)
		return
	}

	lc.log.Info().Str("test_id", test.ID).Str("test_code", test.TestCode).Msg("Lab test created")
	security.SendSuccess(c, http.StatusCreated, test, "Lab test created successfully")
}

func (lc *LabController) UpdateTest(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateLabTestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if input.Price != nil && input.Price.IsNegative() {
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "price", Message: "must be 0 or greater"},
		})
		return
	}

	test, err := lc.store.UpdateTest(c.Request.Context(), id, input)
	if err != nil {
		failClinical(c, lc.log, "update lab test", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, test, "Lab test updated successfully")
}

func (lc *LabController) DeactivateTest(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := lc.store.DeactivateTest(c.Request.Context(), id); err != nil {
		failClinical(c, lc.log, "deactivate lab test", err)
		return
	}

	lc.log.Info().Str("test_id", id).Msg("Lab test deactivated")
	security.SendSuccess(c, http.StatusOK, nil, "Lab test deactivated successfully")
}
