package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/utils"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

const invoiceColumns = `id, invoice_number, op_number, patient_id, buyer_name, buyer_phone, invoice_date,
	due_date, subtotal, tax_amount, discount_amount, total_amount, amount_paid, balance, status,
	payment_terms, notes, created_by, created_at, updated_at`

const invoiceItemColumns = `id, invoice_id, item_type, item_id, description, quantity, unit_price,
	total_price, batch_id, created_at`

const paymentColumns = `id, invoice_id, payment_reference, payment_method, amount, mpesa_receipt,
	payment_date, received_by, notes, reconciled, created_at`

const receivableColumns = `ar.id, ar.invoice_id, i.invoice_number, ar.op_number, ar.patient_id, ar.amount,
	ar.remaining_amount, ar.due_date, ar.days_overdue, ar.aging_bucket, ar.status, ar.created_at, ar.updated_at`

// BillingStore owns invoices, payments, receivables and M-Pesa transactions.
type BillingStore struct {
	db      *sqlx.DB
	vatRate decimal.Decimal
	dueDays int
	now     func() time.Time
}

func NewBillingStore(db *sqlx.DB, vatRate decimal.Decimal, dueDays int) *BillingStore {
	if dueDays <= 0 {
		dueDays = 30
	}
	return &BillingStore{db: db, vatRate: vatRate, dueDays: dueDays, now: time.Now}
}

// CreateInvoice writes the invoice, its lines and its receivable in one transaction.
func (s *BillingStore) CreateInvoice(ctx context.Context, input CreateInvoiceInput, createdBy string) (*Invoice, error) {
	lines := make([]utils.LineItem, 0, len(input.Items))
	for _, item := range input.Items {
		line := utils.LineItem{}
		if item.Quantity != nil {
			line.Quantity = *item.Quantity
		}
		if item.UnitPrice != nil {
			line.UnitPrice = *item.UnitPrice
		}
		lines = append(lines, line)
	}
	discount := decimal.Zero
	if input.DiscountAmount != nil {
		discount = *input.DiscountAmount
	}
	totals, err := utils.CalculateInvoiceTotals(lines, discount, s.vatRate)
	if err != nil {
		return nil, err
	}

	terms := input.PaymentTerms
	if terms == "" {
		terms = "immediate"
	}
	now := s.now()
	dueDate := now.AddDate(0, 0, s.dueDays)

	var invoice Invoice
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var seq int64
		if err := tx.GetContext(ctx, &seq, `SELECT nextval('invoice_number_seq')`); err != nil {
			return fmt.Errorf("next invoice number: %w", err)
		}

		err := tx.GetContext(ctx, &invoice, `
			INSERT INTO invoices (id, invoice_number, op_number, patient_id, buyer_name, buyer_phone,
				invoice_date, due_date, subtotal, tax_amount, discount_amount, total_amount,
				amount_paid, balance, status, payment_terms, notes, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING `+invoiceColumns,
			uuid.NewString(), utils.FormatInvoiceNumber(now, seq), input.OpNumber, input.PatientID,
			input.BuyerName, input.BuyerPhone, now, dueDate, totals.Subtotal, totals.TaxAmount,
			totals.DiscountAmount, totals.TotalAmount, decimal.Zero, totals.TotalAmount,
			utils.InvoiceUnpaid, terms, input.Notes, database.NullString(createdBy))
		if database.IsForeignKeyViolation(err) {
			return ErrPatientNotFound
		}
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}

		invoice.Items = make([]InvoiceItem, 0, len(input.Items))
		for i, in := range input.Items {
			itemType := in.ItemType
			if itemType == "" {
				itemType = "other"
			}
			var item InvoiceItem
			err := tx.GetContext(ctx, &item, `
				INSERT INTO invoice_items (id, invoice_id, item_type, item_id, description, quantity,
					unit_price, total_price, batch_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING `+invoiceItemColumns,
				uuid.NewString(), invoice.ID, itemType, in.ItemID, in.Description,
				lines[i].Quantity, lines[i].UnitPrice, lines[i].Total(), in.BatchID)
			if err != nil {
				return fmt.Errorf("insert invoice item: %w", err)
			}
			invoice.Items = append(invoice.Items, item)
		}

		if !invoice.TotalAmount.IsPositive() {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO accounts_receivable (id, invoice_id, op_number, patient_id, amount, remaining_amount,
				due_date, days_overdue, aging_bucket, status)
			VALUES ($1, $2, $3, $4, $5, $5, $6, 0, $7, $8)`,
			uuid.NewString(), invoice.ID, invoice.OpNumber, invoice.PatientID, invoice.TotalAmount,
			invoice.DueDate, utils.AgingBucket(0), utils.ReceivableCurrent)
		if err != nil {
			return fmt.Errorf("insert receivable: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetInvoice returns the invoice with its lines and payments.
func (s *BillingStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	invoice, err := s.GetInvoiceHeader(ctx, id)
	if err != nil {
		return nil, err
	}

	invoice.Items = []InvoiceItem{}
	if err := s.db.SelectContext(ctx, &invoice.Items,
		"SELECT "+invoiceItemColumns+" FROM invoice_items WHERE invoice_id = $1 ORDER BY created_at ASC", id); err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	if invoice.Payments, err = s.ListPayments(ctx, id); err != nil {
		return nil, err
	}
	return invoice, nil
}

// GetInvoiceHeader returns the invoice row without lines or payments.
func (s *BillingStore) GetInvoiceHeader(ctx context.Context, id string) (*Invoice, error) {
	var invoice Invoice
	err := s.db.GetContext(ctx, &invoice, "SELECT "+invoiceColumns+" FROM invoices WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &invoice, nil
}

func (s *BillingStore) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.PatientID != "" {
		where += fmt.Sprintf(" AND patient_id = $%d", argIndex)
		args = append(args, filter.PatientID)
		argIndex++
	}
	if filter.From != nil {
		where += fmt.Sprintf(" AND invoice_date >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND invoice_date < $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM invoices"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	query := "SELECT " + invoiceColumns + " FROM invoices" + where +
		fmt.Sprintf(" ORDER BY invoice_date DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	invoices := []Invoice{}
	if err := s.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, total, nil
}

// RecordPayment stores a payment and reconciles the invoice and its receivable
// while holding a lock on the invoice row.
func (s *BillingStore) RecordPayment(ctx context.Context, input RecordPaymentInput, receivedBy string) (*Payment, *Invoice, error) {
	if input.Amount == nil || !input.Amount.IsPositive() {
		return nil, nil, utils.ErrInvalidPayAmount
	}
	if !utils.FitsCents(*input.Amount) {
		return nil, nil, utils.ErrTooManyDecimals
	}

	var (
		payment *Payment
		invoice *Invoice
	)
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		payment, invoice, err = s.applyPayment(ctx, tx, newPayment{
			InvoiceID:    input.InvoiceID,
			Method:       input.PaymentMethod,
			Amount:       *input.Amount,
			MpesaReceipt: input.MpesaReceipt,
			ReceivedBy:   receivedBy,
			Notes:        input.Notes,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return payment, invoice, nil
}

type newPayment struct {
	InvoiceID    string
	Method       string
	Amount       decimal.Decimal
	MpesaReceipt *string
	ReceivedBy   string
	Notes        *string
}

// applyPayment is the single reconciliation path shared by manual payments and
// M-Pesa callbacks. It must run inside the caller's transaction.
func (s *BillingStore) applyPayment(ctx context.Context, tx *sqlx.Tx, p newPayment) (*Payment, *Invoice, error) {
	var invoice Invoice
	err := tx.GetContext(ctx, &invoice, "SELECT "+invoiceColumns+" FROM invoices WHERE id = $1 FOR UPDATE", p.InvoiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock invoice: %w", err)
	}

	now := s.now()
	var payment Payment
	err = tx.GetContext(ctx, &payment, `
		INSERT INTO payments (id, invoice_id, payment_reference, payment_method, amount, mpesa_receipt,
			payment_date, received_by, notes, reconciled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+paymentColumns,
		uuid.NewString(), invoice.ID, utils.NewPaymentReference(now), p.Method, p.Amount, p.MpesaReceipt,
		now, p.ReceivedBy, p.Notes, p.Method != MethodCash)
	if err != nil {
		return nil, nil, fmt.Errorf("insert payment: %w", err)
	}

	var totalPaid decimal.Decimal
	if err := tx.GetContext(ctx, &totalPaid,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`, invoice.ID); err != nil {
		return nil, nil, fmt.Errorf("sum payments: %w", err)
	}

	status := utils.DeriveInvoiceStatus(invoice.TotalAmount, totalPaid)
	balance := utils.OutstandingBalance(invoice.TotalAmount, totalPaid)
	if err := tx.GetContext(ctx, &invoice, `
		UPDATE invoices SET amount_paid = $1, balance = $2, status = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING `+invoiceColumns, totalPaid, balance, status, invoice.ID); err != nil {
		return nil, nil, fmt.Errorf("update invoice: %w", err)
	}

	days := utils.DaysOverdue(invoice.DueDate, now)
	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts_receivable
		SET remaining_amount = $1, days_overdue = $2, aging_bucket = $3, status = $4, updated_at = NOW()
		WHERE invoice_id = $5`,
		balance, days, utils.AgingBucket(days), utils.ReceivableStatus(status, days), invoice.ID); err != nil {
		return nil, nil, fmt.Errorf("update receivable: %w", err)
	}

	return &payment, &invoice, nil
}

func (s *BillingStore) ListPayments(ctx context.Context, invoiceID string) ([]Payment, error) {
	payments := []Payment{}
	err := s.db.SelectContext(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments WHERE invoice_id = $1 ORDER BY payment_date DESC", invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

type agingRow struct {
	ID      string    `db:"id"`
	DueDate time.Time `db:"due_date"`
}

// RefreshAging recomputes days overdue, bucket and status for every open receivable.
// It returns the number of rows updated.
func (s *BillingStore) RefreshAging(ctx context.Context) (int, error) {
	now := s.now()
	updated := 0
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		rows := []agingRow{}
		if err := tx.SelectContext(ctx, &rows,
			`SELECT id, due_date FROM accounts_receivable WHERE status <> 'paid' FOR UPDATE`); err != nil {
			return fmt.Errorf("load receivables: %w", err)
		}

		for _, row := range rows {
			days := utils.DaysOverdue(row.DueDate, now)
			if _, err := tx.ExecContext(ctx, `
				UPDATE accounts_receivable
				SET days_overdue = $1, aging_bucket = $2, status = $3, updated_at = NOW()
				WHERE id = $4`,
				days, utils.AgingBucket(days), utils.ReceivableStatus(utils.InvoiceUnpaid, days), row.ID); err != nil {
				return fmt.Errorf("update receivable %s: %w", row.ID, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// ListReceivables returns open receivables, optionally limited to one aging bucket.
func (s *BillingStore) ListReceivables(ctx context.Context, bucket string) ([]AccountsReceivable, error) {
	query := "SELECT " + receivableColumns + `
		FROM accounts_receivable ar
		JOIN invoices i ON i.id = ar.invoice_id
		WHERE ar.status <> 'paid'`
	args := []interface{}{}
	if bucket != "" {
		query += " AND ar.aging_bucket = $1"
		args = append(args, bucket)
	}
	query += " ORDER BY ar.due_date ASC"

	receivables := []AccountsReceivable{}
	if err := s.db.SelectContext(ctx, &receivables, query, args...); err != nil {
		return nil, fmt.Errorf("list receivables: %w", err)
	}
	return receivables, nil
}

// GetDashboard summarises today's takings, open receivables and recent payments.
func (s *BillingStore) GetDashboard(ctx context.Context) (*Dashboard, error) {
	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	dashboard := Dashboard{RecentTransactions: []RecentPayment{}}
	if err := s.db.GetContext(ctx, &dashboard.TodayRevenue, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE payment_date >= $1 AND payment_date < $2`,
		startOfDay, startOfDay.Add(24*time.Hour)); err != nil {
		return nil, fmt.Errorf("today revenue: %w", err)
	}

	if err := s.db.GetContext(ctx, &dashboard.Receivables, `
		SELECT
			COALESCE(SUM(CASE WHEN aging_bucket = '0-30' THEN remaining_amount END), 0) AS current,
			COALESCE(SUM(CASE WHEN aging_bucket = '31-60' THEN remaining_amount END), 0) AS thirty_days,
			COALESCE(SUM(CASE WHEN aging_bucket = '61-90' THEN remaining_amount END), 0) AS sixty_days,
			COALESCE(SUM(CASE WHEN aging_bucket = '90+' THEN remaining_amount END), 0) AS ninety_plus
		FROM accounts_receivable
		WHERE status <> 'paid'`); err != nil {
		return nil, fmt.Errorf("receivable buckets: %w", err)
	}

	if err := s.db.SelectContext(ctx, &dashboard.RecentTransactions, `
		SELECT p.id, p.invoice_id, p.payment_reference, p.payment_method, p.amount, p.mpesa_receipt,
			p.payment_date, p.received_by, p.notes, p.reconciled, p.created_at,
			i.invoice_number, i.op_number
		FROM payments p
		LEFT JOIN invoices i ON i.id = p.invoice_id
		ORDER BY p.payment_date DESC
		LIMIT 10`); err != nil {
		return nil, fmt.Errorf("recent payments: %w", err)
	}
	return &dashboard, nil
}
