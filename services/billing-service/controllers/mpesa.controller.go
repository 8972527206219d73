package controllers

import (
	"context"
	"errors"
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

const stkLockTTL = 60 * time.Second

var (
	errAmountExceedsBalance = errors.New("amount exceeds the outstanding balance")
	errAmountNotWhole       = errors.New("m-pesa amounts must be whole shillings")
)

type MpesaController struct {
	store  *models.BillingStore
	client *mpesa.Client
	locker mpesa.Locker
	log    zerolog.Logger
}

// NewMpesaController accepts a nil client; STK push then answers 503 while
// callbacks and status lookups keep working.
func NewMpesaController(store *models.BillingStore, client *mpesa.Client, locker mpesa.Locker) *MpesaController {
	if locker == nil {
		locker = mpesa.NewLocalLocker()
	}
	return &MpesaController{store: store, client: client, locker: locker, log: logger.WithComponent("mpesa")}
}

func (mc *MpesaController) InitiateSTKPush(c *gin.Context) {
	var input models.STKPushInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}
	amount := *input.Amount
	if !amount.IsPositive() {
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "amount", Message: "must be greater than 0"},
		})
		return
	}
	if !utils.IsWholeAmount(amount) {
		failBilling(c, mc.log, "initiate stk push", errAmountNotWhole)
		return
	}
	if mc.client == nil {
		failBilling(c, mc.log, "initiate stk push", mpesa.ErrNotConfigured)
		return
	}
	phone, err := security.NormalizeMSISDN(input.PhoneNumber)
	if err != nil {
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "phone_number", Message: "must be a valid phone number"},
		})
		return
	}

	ctx := c.Request.Context()
	invoice, err := mc.store.GetInvoiceHeader(ctx, input.InvoiceID)
	if err != nil {
		failBilling(c, mc.log, "initiate stk push", err)
		return
	}
	if invoice.Status == utils.InvoicePaid {
		failBilling(c, mc.log, "initiate stk push", models.ErrInvoicePaid)
		return
	}
	if amount.GreaterThan(invoice.Balance) {
		failBilling(c, mc.log, "initiate stk push", errAmountExceedsBalance)
		return
	}

	release, err := mc.locker.Obtain(ctx, mpesa.STKLockKey(invoice.ID), stkLockTTL)
	if err != nil {
		failBilling(c, mc.log, "initiate stk push", err)
		return
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			mc.log.Warn().Err(err).Str("invoice_id", invoice.ID).Msg("Failed to release STK push lock")
		}
	}()

	desc := "Payment for " + invoice.InvoiceNumber
	resp, err := mc.client.STKPush(ctx, mpesa.STKPushRequest{
		PhoneNumber:      phone,
		Amount:           amount.IntPart(),
		AccountReference: invoice.InvoiceNumber,
		TransactionDesc:  desc,
	})
	if err != nil {
		failBilling(c, mc.log, "initiate stk push", err)
		return
	}

	txn, err := mc.store.CreateSTKTransaction(ctx, models.MpesaTransaction{
		InvoiceID:         &invoice.ID,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		PhoneNumber:       phone,
		Amount:            amount,
		AccountReference:  invoice.InvoiceNumber,
		TransactionDesc:   &desc,
	})
	if err != nil {
		failBilling(c, mc.log, "save stk push", err)
		return
	}

	security.SendSuccess(c, http.StatusCreated, gin.H{
		"transaction":      txn,
		"customer_message": resp.CustomerMessage,
	}, "Payment request sent to customer's phone")
}

// Callback is called by the gateway. It acknowledges every well-formed
// delivery and only answers 500 when the result could not be stored, so the
// gateway retries.
func (mc *MpesaController) Callback(c *gin.Context) {
	var payload mpesa.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		mc.log.Warn().Err(err).Msg("Ignoring unreadable M-Pesa callback")
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}
	cb, err := payload.Callback()
	if err != nil {
		mc.log.Warn().Err(err).Msg("Ignoring malformed M-Pesa callback")
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	outcome, err := mc.store.ApplySTKResult(c.Request.Context(), models.STKResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		ReceiptNumber:     cb.MetadataPtr("MpesaReceiptNumber"),
		TransactionID:     cb.MetadataPtr("TransactionId"),
	})
	if err != nil {
		mc.log.Error().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).Msg("Failed to apply M-Pesa callback")
		c.JSON(http.StatusInternalServerError, gin.H{"ResultCode": 1, "ResultDesc": "Internal error"})
		return
	}

	switch {
	case outcome.Skipped:
		mc.log.Warn().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Int("result_code", cb.ResultCode).
			Msg("M-Pesa callback for an unknown or already resolved request")
	case outcome.Payment != nil:
		mc.log.Info().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Str("payment_reference", outcome.Payment.PaymentReference).
			Str("invoice_status", outcome.Invoice.Status).
			Msg("M-Pesa payment received")
	default:
		mc.log.Info().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Int("result_code", cb.ResultCode).
			Str("status", outcome.Transaction.Status).
			Msg("M-Pesa request resolved")
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (mc *MpesaController) GetTransactionStatus(c *gin.Context) {
	checkoutID := c.Param("checkoutRequestId")
	if checkoutID == "" || len(checkoutID) > 100 {
		security.SendValidationError(c, "Invalid input data", []security.FieldError{
			{Field: "checkoutRequestId", Message: "is required"},
		})
		return
	}

	txn, err := mc.store.GetTransaction(c.Request.Context(), checkoutID)
	if err != nil {
		failBilling(c, mc.log, "get transaction", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, txn, "")
}
