package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrInvoicePaid         = errors.New("invoice is already paid")
	ErrTransactionNotFound = errors.New("m-pesa transaction not found")
	ErrPatientNotFound     = errors.New("patient does not exist")
)

// Payment methods accepted by the payments table.
const (
	MethodCash         = "cash"
	MethodMpesa        = "mpesa"
	MethodBankTransfer = "bank_transfer"
	MethodInsurance    = "insurance"
	MethodOther        = "other"
)

// SystemUser is recorded as received_by for payments that arrive by callback.
const SystemUser = "system"

type Invoice struct {
	ID             string          `json:"id" db:"id"`
	InvoiceNumber  string          `json:"invoice_number" db:"invoice_number"`
	OpNumber       *string         `json:"op_number" db:"op_number"`
	PatientID      *string         `json:"patient_id" db:"patient_id"`
	BuyerName      *string         `json:"buyer_name" db:"buyer_name"`
	BuyerPhone     *string         `json:"buyer_phone" db:"buyer_phone"`
	InvoiceDate    time.Time       `json:"invoice_date" db:"invoice_date"`
	DueDate        time.Time       `json:"due_date" db:"due_date"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	Status         string          `json:"status" db:"status"`
	PaymentTerms   string          `json:"payment_terms" db:"payment_terms"`
	Notes          *string         `json:"notes" db:"notes"`
	CreatedBy      *string         `json:"created_by" db:"created_by"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`

	Items    []InvoiceItem `json:"items,omitempty" db:"-"`
	Payments []Payment     `json:"payments,omitempty" db:"-"`
}

type InvoiceItem struct {
	ID          string          `json:"id" db:"id"`
	InvoiceID   string          `json:"invoice_id" db:"invoice_id"`
	ItemType    string          `json:"item_type" db:"item_type"`
	ItemID      *string         `json:"item_id" db:"item_id"`
	Description string          `json:"description" db:"description"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price" db:"total_price"`
	BatchID     *string         `json:"batch_id" db:"batch_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type Payment struct {
	ID               string          `json:"id" db:"id"`
	InvoiceID        string          `json:"invoice_id" db:"invoice_id"`
	PaymentReference string          `json:"payment_reference" db:"payment_reference"`
	PaymentMethod    string          `json:"payment_method" db:"payment_method"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	MpesaReceipt     *string         `json:"mpesa_receipt" db:"mpesa_receipt"`
	PaymentDate      time.Time       `json:"payment_date" db:"payment_date"`
	ReceivedBy       string          `json:"received_by" db:"received_by"`
	Notes            *string         `json:"notes" db:"notes"`
	Reconciled       bool            `json:"reconciled" db:"reconciled"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

type AccountsReceivable struct {
	ID              string          `json:"id" db:"id"`
	InvoiceID       string          `json:"invoice_id" db:"invoice_id"`
	InvoiceNumber   *string         `json:"invoice_number,omitempty" db:"invoice_number"`
	OpNumber        *string         `json:"op_number" db:"op_number"`
	PatientID       *string         `json:"patient_id" db:"patient_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	DueDate         time.Time       `json:"due_date" db:"due_date"`
	DaysOverdue     int             `json:"days_overdue" db:"days_overdue"`
	AgingBucket     string          `json:"aging_bucket" db:"aging_bucket"`
	Status          string          `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

type MpesaTransaction struct {
	ID                 string          `json:"id" db:"id"`
	InvoiceID          *string         `json:"invoice_id" db:"invoice_id"`
	MerchantRequestID  string          `json:"merchant_request_id" db:"merchant_request_id"`
	CheckoutRequestID  string          `json:"checkout_request_id" db:"checkout_request_id"`
	PhoneNumber        string          `json:"phone_number" db:"phone_number"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	AccountReference   string          `json:"account_reference" db:"account_reference"`
	TransactionDesc    *string         `json:"transaction_desc" db:"transaction_desc"`
	Status             string          `json:"status" db:"status"`
	ResultCode         *int            `json:"result_code" db:"result_code"`
	ResultDesc         *string         `json:"result_desc" db:"result_desc"`
	MpesaReceiptNumber *string         `json:"mpesa_receipt_number" db:"mpesa_receipt_number"`
	TransactionID      *string         `json:"transaction_id" db:"transaction_id"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// STKResult is the outcome the gateway reported for one checkout request.
type STKResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	ReceiptNumber     *string
	TransactionID     *string
}

// CallbackOutcome describes what applying an STKResult changed.
type CallbackOutcome struct {
	Transaction *MpesaTransaction
	Payment     *Payment
	Invoice     *Invoice
	// Skipped is set when the checkout request was unknown or already resolved.
	Skipped bool
}

type ReceivableBuckets struct {
	Current    decimal.Decimal `json:"current" db:"current"`
	ThirtyDays decimal.Decimal `json:"thirty_days" db:"thirty_days"`
	SixtyDays  decimal.Decimal `json:"sixty_days" db:"sixty_days"`
	NinetyPlus decimal.Decimal `json:"ninety_plus" db:"ninety_plus"`
}

type RecentPayment struct {
	Payment
	InvoiceNumber *string `json:"invoice_number" db:"invoice_number"`
	OpNumber      *string `json:"op_number" db:"op_number"`
}

type Dashboard struct {
	TodayRevenue       decimal.Decimal   `json:"today_revenue"`
	Receivables        ReceivableBuckets `json:"receivables"`
	RecentTransactions []RecentPayment   `json:"recent_transactions"`
}

type InvoiceFilter struct {
	Status    string
	PatientID string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

type InvoiceItemInput struct {
	ItemType    string           `json:"item_type" binding:"omitempty,oneof=consultation medication lab_test procedure service other"`
	ItemID      *string          `json:"item_id" binding:"omitempty,uuid"`
	Description string           `json:"description" binding:"required,min=1,max=500"`
	Quantity    *decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   *decimal.Decimal `json:"unit_price" binding:"required"`
	BatchID     *string          `json:"batch_id" binding:"omitempty,uuid"`
}

type CreateInvoiceInput struct {
	OpNumber       *string            `json:"op_number" binding:"omitempty,max=50"`
	PatientID      *string            `json:"patient_id" binding:"omitempty,uuid"`
	BuyerName      *string            `json:"buyer_name" binding:"omitempty,max=200"`
	BuyerPhone     *string            `json:"buyer_phone" binding:"omitempty,max=20"`
	Items          []InvoiceItemInput `json:"items" binding:"required,min=1,dive"`
	DiscountAmount *decimal.Decimal   `json:"discount_amount"`
	PaymentTerms   string             `json:"payment_terms" binding:"omitempty,max=50"`
	Notes          *string            `json:"notes" binding:"omitempty,max=1000"`
}

type RecordPaymentInput struct {
	InvoiceID     string           `json:"invoice_id" binding:"required,uuid"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod string           `json:"payment_method" binding:"required,oneof=cash mpesa bank_transfer insurance other"`
	MpesaReceipt  *string          `json:"mpesa_receipt" binding:"omitempty,max=50"`
	Notes         *string          `json:"notes" binding:"omitempty,max=500"`
}

type STKPushInput struct {
	InvoiceID   string           `json:"invoice_id" binding:"required,uuid"`
	PhoneNumber string           `json:"phone_number" binding:"required,msisdn"`
	Amount      *decimal.Decimal `json:"amount" binding:"required"`
}
