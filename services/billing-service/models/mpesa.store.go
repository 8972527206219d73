package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/utils"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

const mpesaColumns = `id, invoice_id, merchant_request_id, checkout_request_id, phone_number, amount,
	account_reference, transaction_desc, status, result_code, result_desc, mpesa_receipt_number,
	transaction_id, created_at, updated_at`

// CreateSTKTransaction records a prompt the gateway accepted; it stays pending until the callback.
func (s *BillingStore) CreateSTKTransaction(ctx context.Context, txn MpesaTransaction) (*MpesaTransaction, error) {
	var created MpesaTransaction
	err := s.db.GetContext(ctx, &created, `
		INSERT INTO mpesa_transactions (id, invoice_id, merchant_request_id, checkout_request_id, phone_number,
			amount, account_reference, transaction_desc, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+mpesaColumns,
		uuid.NewString(), txn.InvoiceID, txn.MerchantRequestID, txn.CheckoutRequestID, txn.PhoneNumber,
		txn.Amount, txn.AccountReference, txn.TransactionDesc, utils.STKPending)
	if err != nil {
		return nil, fmt.Errorf("insert mpesa transaction: %w", err)
	}
	return &created, nil
}

func (s *BillingStore) GetTransaction(ctx context.Context, checkoutRequestID string) (*MpesaTransaction, error) {
	var txn MpesaTransaction
	err := s.db.GetContext(ctx, &txn,
		"SELECT "+mpesaColumns+" FROM mpesa_transactions WHERE checkout_request_id = $1", checkoutRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mpesa transaction: %w", err)
	}
	return &txn, nil
}

// ApplySTKResult resolves a pending transaction exactly once. The status change
// is a compare-and-swap on status = 'pending', so a repeated delivery of the same
// callback matches no row and changes nothing. A successful result linked to an
// invoice creates the payment and reconciles the invoice in the same transaction.
func (s *BillingStore) ApplySTKResult(ctx context.Context, result STKResult) (*CallbackOutcome, error) {
	status := utils.STKStatus(result.ResultCode)
	outcome := &CallbackOutcome{}

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var txn MpesaTransaction
		err := tx.GetContext(ctx, &txn, `
			UPDATE mpesa_transactions
			SET status = $1, result_code = $2, result_desc = $3, mpesa_receipt_number = $4,
				transaction_id = $5, updated_at = NOW()
			WHERE checkout_request_id = $6 AND status = 'pending'
			RETURNING `+mpesaColumns,
			status, result.ResultCode, result.ResultDesc, result.ReceiptNumber, result.TransactionID,
			result.CheckoutRequestID)
		if errors.Is(err, sql.ErrNoRows) {
			outcome.Skipped = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve mpesa transaction: %w", err)
		}
		outcome.Transaction = &txn

		if status != utils.STKSuccess || txn.InvoiceID == nil {
			return nil
		}

		notes := "M-Pesa STK push " + txn.CheckoutRequestID
		outcome.Payment, outcome.Invoice, err = s.applyPayment(ctx, tx, newPayment{
			InvoiceID:    *txn.InvoiceID,
			Method:       MethodMpesa,
			Amount:       txn.Amount,
			MpesaReceipt: result.ReceiptNumber,
			ReceivedBy:   SystemUser,
			Notes:        &notes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
