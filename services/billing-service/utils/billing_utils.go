package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice and receivable statuses.
const (
	InvoiceUnpaid  = "unpaid"
	InvoicePartial = "partial"
	InvoicePaid    = "paid"

	ReceivableCurrent = "current"
	ReceivableOverdue = "overdue"
	ReceivablePaid    = "paid"
)

// STK push transaction statuses.
const (
	STKPending   = "pending"
	STKSuccess   = "success"
	STKFailed    = "failed"
	STKCancelled = "cancelled"
)

// ResultCodeCancelled is returned by the gateway when the payer dismisses the prompt.
const ResultCodeCancelled = 1032

var (
	ErrNoLineItems      = errors.New("invoice must have at least one item")
	ErrInvalidLineItem  = errors.New("item quantity must be positive and unit price must not be negative")
	ErrInvalidDiscount  = errors.New("discount must be between 0 and the invoice total before discount")
	ErrInvalidVATRate   = errors.New("vat rate must be between 0 and 1")
	ErrInvalidPayAmount = errors.New("payment amount must be positive")
	ErrTooManyDecimals  = errors.New("amounts and quantities may have at most two decimal places")
)

type LineItem struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Total is quantity times unit price rounded to cents.
func (l LineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(2)
}

type InvoiceTotals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// CalculateInvoiceTotals computes subtotal, VAT on the subtotal and the
// discounted total. The discount may not exceed subtotal plus tax.
func CalculateInvoiceTotals(items []LineItem, discount, vatRate decimal.Decimal) (InvoiceTotals, error) {
	if len(items) == 0 {
		return InvoiceTotals{}, ErrNoLineItems
	}
	if vatRate.IsNegative() || vatRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return InvoiceTotals{}, ErrInvalidVATRate
	}

	subtotal := decimal.Zero
	for _, item := range items {
		if !item.Quantity.IsPositive() || item.UnitPrice.IsNegative() {
			return InvoiceTotals{}, ErrInvalidLineItem
		}
		if !FitsCents(item.Quantity) || !FitsCents(item.UnitPrice) {
			return InvoiceTotals{}, ErrTooManyDecimals
		}
		subtotal = subtotal.Add(item.Total())
	}

	tax := subtotal.Mul(vatRate).Round(2)
	gross := subtotal.Add(tax)
	if discount.IsNegative() || discount.GreaterThan(gross) {
		return InvoiceTotals{}, ErrInvalidDiscount
	}
	if !FitsCents(discount) {
		return InvoiceTotals{}, ErrTooManyDecimals
	}

	return InvoiceTotals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount.Round(2),
		TotalAmount:    gross.Sub(discount).Round(2),
	}, nil
}

// DeriveInvoiceStatus maps what has been paid against a total onto unpaid, partial or paid.
func DeriveInvoiceStatus(total, paid decimal.Decimal) string {
	switch {
	case total.Sub(paid).LessThanOrEqual(decimal.Zero):
		return InvoicePaid
	case paid.IsPositive():
		return InvoicePartial
	default:
		return InvoiceUnpaid
	}
}

// OutstandingBalance never goes below zero; overpayments are kept on the payment rows.
func OutstandingBalance(total, paid decimal.Decimal) decimal.Decimal {
	balance := total.Sub(paid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// DaysOverdue counts whole calendar days since the due date, zero when not yet due.
func DaysOverdue(due, now time.Time) int {
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !today.After(dueDay) {
		return 0
	}
	return int(today.Sub(dueDay).Hours() / 24)
}

func AgingBucket(daysOverdue int) string {
	switch {
	case daysOverdue <= 30:
		return "0-30"
	case daysOverdue <= 60:
		return "31-60"
	case daysOverdue <= 90:
		return "61-90"
	default:
		return "90+"
	}
}

// ReceivableStatus derives the AR row status from the invoice status and how late it is.
func ReceivableStatus(invoiceStatus string, daysOverdue int) string {
	switch {
	case invoiceStatus == InvoicePaid:
		return ReceivablePaid
	case daysOverdue > 0:
		return ReceivableOverdue
	default:
		return ReceivableCurrent
	}
}

// FormatInvoiceNumber renders INV-YYYYMMDD-NNNNNN from the invoice date and a sequence value.
func FormatInvoiceNumber(date time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%06d", date.Format("20060102"), seq)
}

// NewPaymentReference returns PAY-YYYYMMDD-XXXXXXXX; uniqueness is enforced by the payments table.
func NewPaymentReference(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("PAY-%s-%s", now.Format("20060102"), strings.ToUpper(id[:8]))
}

// STKStatus maps a gateway result code onto a transaction status.
func STKStatus(resultCode int) string {
	switch resultCode {
	case 0:
		return STKSuccess
	case ResultCodeCancelled:
		return STKCancelled
	default:
		return STKFailed
	}
}

// FitsCents reports whether v is stored unchanged in a NUMERIC(12,2) column.
func FitsCents(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}

// IsWholeAmount reports whether the amount has no cents, as required for STK push.
func IsWholeAmount(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(0))
}
