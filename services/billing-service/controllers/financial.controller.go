package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/mpesa"
	"github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/utils"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

type FinancialController struct {
	store *models.BillingStore
	log   zerolog.Logger
}

func NewFinancialController(store *models.BillingStore) *FinancialController {
	return &FinancialController{store: store, log: logger.WithComponent("billing")}
}

func (fc *FinancialController) CreateInvoice(c *gin.Context) {
	var input models.CreateInvoiceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if errs := invoiceAmountErrors(input); len(errs) > 0 {
		security.SendValidationError(c, "Invalid input data", errs)
		return
	}

	invoice, err := fc.store.CreateInvoice(c.Request.Context(), input, security.UserID(c))
	if err != nil {
		failBilling(c, fc.log, "create invoice", err)
		return
	}

	fc.log.Info().
		Str("invoice_id", invoice.ID).
		Str("invoice_number", invoice.InvoiceNumber).
		Str("total", invoice.TotalAmount.StringFixed(2)).
		Msg("Invoice created")
	security.SendSuccess(c, http.StatusCreated, invoice, "Invoice created successfully")
}

type listInvoicesQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=unpaid partial paid"`
	PatientID string `form:"patient_id" binding:"omitempty,uuid"`
	From      string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To        string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (fc *FinancialController) ListInvoices(c *gin.Context) {
	var query listInvoicesQuery
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

	filter := models.InvoiceFilter{
		Status:    query.Status,
		PatientID: query.PatientID,
		Page:      query.Page,
		Limit:     query.Limit,
	}
	if query.From != "" {
		from, _ := time.Parse("2006-01-02", query.From)
		filter.From = &from
	}
	if query.To != "" {
		to, _ := time.Parse("2006-01-02", query.To)
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}

	invoices, total, err := fc.store.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		failBilling(c, fc.log, "list invoices", err)
		return
	}

	security.SendSuccess(c, http.StatusOK, gin.H{
		"invoices": invoices,
		"pagination": gin.H{
			"page":        query.Page,
			"limit":       query.Limit,
			"total":       total,
			"total_pages": (total + query.Limit - 1) / query.Limit,
		},
	}, "")
}

func (fc *FinancialController) GetInvoice(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	invoice, err := fc.store.GetInvoice(c.Request.Context(), id)
	if err != nil {
		failBilling(c, fc.log, "get invoice", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, invoice, "")
}

func (fc *FinancialController) ListInvoicePayments(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := fc.store.GetInvoiceHeader(ctx, id); err != nil {
		failBilling(c, fc.log, "list payments", err)
		return
	}
	payments, err := fc.store.ListPayments(ctx, id)
	if err != nil {
		failBilling(c, fc.log, "list payments", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, payments, "")
}

func (fc *FinancialController) RecordPayment(c *gin.Context) {
	var input models.RecordPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if !input.Amount.IsPositive() {
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "amount", Message: "must be greater than 0"},
		})
		return
	}
	if !utils.FitsCents(*input.Amount) {
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "amount", Message: "must have at most 2 decimal places"},
		})
		return
	}

	payment, invoice, err := fc.store.RecordPayment(c.Request.Context(), input, security.UserID(c))
	if err != nil {
		failBilling(c, fc.log, "record payment", err)
		return
	}

	fc.log.Info().
		Str("payment_reference", payment.PaymentReference).
		Str("invoice_id", invoice.ID).
		Str("amount", payment.Amount.StringFixed(2)).
		Str("status", invoice.Status).
		Msg("Payment recorded")
	security.SendSuccess(c, http.StatusCreated, gin.H{
		"payment": payment,
		"invoice": invoice,
	}, "Payment recorded successfully")
}

type receivablesQuery struct {
	Bucket  string `form:"bucket" binding:"omitempty,oneof=0-30 31-60 61-90 90+"`
	Refresh bool   `form:"refresh"`
}

func (fc *FinancialController) ListReceivables(c *gin.Context) {
	var query receivablesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}

	ctx := c.Request.Context()
	if query.Refresh {
		updated, err := fc.store.RefreshAging(ctx)
		if err != nil {
			failBilling(c, fc.log, "refresh aging", err)
			return
		}
		fc.log.Info().Int("updated", updated).Msg("Receivable aging refreshed")
	}

	receivables, err := fc.store.ListReceivables(ctx, query.Bucket)
	if err != nil {
		failBilling(c, fc.log, "list receivables", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, receivables, "")
}

func (fc *FinancialController) GetDashboard(c *gin.Context) {
	dashboard, err := fc.store.GetDashboard(c.Request.Context())
	if err != nil {
		failBilling(c, fc.log, "load dashboard", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, dashboard, "")
}

// invoiceAmountErrors reports quantities, prices and discounts that would not
// survive a NUMERIC(12,2) column unchanged.
func invoiceAmountErrors(input models.CreateInvoiceInput) []security.FieldError {
	var errs []security.FieldError
	for i, item := range input.Items {
		if !utils.FitsCents(*item.Quantity) {
			errs = append(errs, security.FieldError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must have at most 2 decimal places"})
		}
		if !utils.FitsCents(*item.UnitPrice) {
			errs = append(errs, security.FieldError{Field: fmt.Sprintf("items[%d].unit_price", i), Message: "must have at most 2 decimal places"})
		}
	}
	if input.DiscountAmount != nil && !utils.FitsCents(*input.DiscountAmount) {
		errs = append(errs, security.FieldError{Field: "discount_amount", Message: "must have at most 2 decimal places"})
	}
	return errs
}

// failBilling maps store and gateway errors onto the response envelope.
func failBilling(c *gin.Context, log zerolog.Logger, op string, err error) {
	var apiErr *mpesa.APIError
	switch {
	case errors.Is(err, models.ErrInvoiceNotFound):
		security.SendNotFoundError(c, "invoice")
	case errors.Is(err, models.ErrTransactionNotFound):
		security.SendNotFoundError(c, "transaction")
	case errors.Is(err, models.ErrPatientNotFound):
		security.SendBusinessError(c, "Patient does not exist")
	case errors.Is(err, models.ErrInvoicePaid):
		security.SendBusinessError(c, "Invoice is already paid")
	case errors.Is(err, mpesa.ErrLocked):
		security.SendConflictError(c, "A payment request for this invoice is already in progress")
	case errors.Is(err, mpesa.ErrNotConfigured):
		security.SendError(c, http.StatusServiceUnavailable, security.CodeServiceUnavailable, "M-Pesa payments are not configured", nil)
	case errors.Is(err, utils.ErrNoLineItems),
		errors.Is(err, utils.ErrInvalidLineItem),
		errors.Is(err, utils.ErrInvalidDiscount),
		errors.Is(err, utils.ErrInvalidPayAmount),
		errors.Is(err, utils.ErrTooManyDecimals),
		errors.Is(err, errAmountExceedsBalance),
		errors.Is(err, errAmountNotWhole):
		security.SendBusinessError(c, err.Error())
	case errors.As(err, &apiErr):
		log.Error().Err(err).Str("op", op).Int("status", apiErr.StatusCode).Str("gateway_code", apiErr.Code).Msg("M-Pesa gateway rejected the request")
		security.SendError(c, http.StatusBadGateway, security.CodeUpstreamError, "Payment gateway error: "+apiErr.Message, nil)
		return
	default:
		log.Error().Err(err).Str("op", op).Msg("Billing operation failed")
		security.SendDatabaseError(c, "Failed to "+op)
		return
	}
	log.Warn().Err(err).Str("op", op).Msg("Billing request rejected")
}
