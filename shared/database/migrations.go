package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
)

// Roles seeded by Migrate.
var Roles = []string{
	"ADMIN",
	"RECEPTIONIST",
	"NURSE",
	"CLINICAL_OFFICER",
	"PHARMACIST",
	"INVENTORY_MANAGER",
	"CLAIMS_MANAGER",
	"LAB_TECHNICIAN",
	"CASHIER",
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username TEXT NOT NULL UNIQUE,
		email TEXT UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS roles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id),
		role_id UUID NOT NULL REFERENCES roles(id),
		is_active BOOLEAN NOT NULL DEFAULT true,
		assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, role_id)
	);`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id),
		token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,

	`CREATE TABLE IF NOT EXISTS patients (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		op_number TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		date_of_birth DATE,
		age INTEGER CHECK (age BETWEEN 0 AND 150),
		gender TEXT NOT NULL CHECK (gender IN ('MALE','FEMALE','OTHER')),
		phone_number TEXT,
		area TEXT,
		next_of_kin TEXT,
		next_of_kin_phone TEXT,
		insurance_type TEXT NOT NULL CHECK (insurance_type IN ('SHA','PRIVATE','CASH')),
		insurance_number TEXT,
		registration_type TEXT NOT NULL DEFAULT 'NEW_PATIENT' CHECK (registration_type IN ('NEW_PATIENT','IMPORT_PATIENT')),
		registered_by UUID REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_patients_name ON patients (last_name, first_name);`,
	`CREATE TABLE IF NOT EXISTS visits (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		patient_id UUID NOT NULL REFERENCES patients(id),
		op_number TEXT NOT NULL,
		visit_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'REGISTERED' CHECK (status IN ('REGISTERED','TRIAGED','WAITING_CONSULTATION','IN_CONSULTATION','WAITING_LAB','LAB_RESULTS_READY','WAITING_PHARMACY','COMPLETED','CANCELLED')),
		chief_complaint TEXT,
		triage_category TEXT NOT NULL DEFAULT 'NORMAL' CHECK (triage_category IN ('EMERGENCY','URGENT','NORMAL')),
		payment_type TEXT CHECK (payment_type IN ('SHA','PRIVATE','CASH','NHIF','OTHER')),
		payment_reference TEXT,
		created_by UUID REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (patient_id, visit_date),
		UNIQUE (id, patient_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_visits_date ON visits (visit_date, status);`,

	`CREATE TABLE IF NOT EXISTS inventory_items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		generic_name TEXT,
		category TEXT NOT NULL,
		unit TEXT NOT NULL,
		description TEXT,
		reorder_level INTEGER NOT NULL DEFAULT 0 CHECK (reorder_level >= 0),
		max_stock_level INTEGER NOT NULL DEFAULT 1000 CHECK (max_stock_level >= 0),
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS inventory_batches (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		inventory_item_id UUID NOT NULL REFERENCES inventory_items(id),
		batch_number TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		original_quantity INTEGER NOT NULL CHECK (original_quantity > 0),
		unit_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		selling_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		expiry_date DATE NOT NULL,
		supplier TEXT,
		received_by UUID,
		received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_expired BOOLEAN NOT NULL DEFAULT false,
		UNIQUE (inventory_item_id, batch_number),
		CHECK (quantity <= original_quantity)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_batches_item ON inventory_batches (inventory_item_id, expiry_date);`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		inventory_item_id UUID NOT NULL REFERENCES inventory_items(id),
		batch_id UUID REFERENCES inventory_batches(id),
		movement_type TEXT NOT NULL CHECK (movement_type IN ('RECEIVE','DISPENSE','ADJUST','EXPIRE','TRANSFER')),
		quantity INTEGER NOT NULL,
		unit_cost NUMERIC(12,2),
		reference TEXT,
		notes TEXT,
		performed_by UUID,
		performed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_movements_batch ON inventory_movements (batch_id, movement_type);`,

	`CREATE SEQUENCE IF NOT EXISTS invoice_number_seq;`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		invoice_number TEXT NOT NULL UNIQUE,
		op_number TEXT,
		patient_id UUID REFERENCES patients(id),
		buyer_name TEXT,
		buyer_phone TEXT,
		invoice_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		due_date TIMESTAMPTZ NOT NULL,
		subtotal NUMERIC(12,2) NOT NULL,
		tax_amount NUMERIC(12,2) NOT NULL,
		discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		total_amount NUMERIC(12,2) NOT NULL,
		amount_paid NUMERIC(12,2) NOT NULL DEFAULT 0,
		balance NUMERIC(12,2) NOT NULL,
		status TEXT NOT NULL DEFAULT 'unpaid' CHECK (status IN ('unpaid','partial','paid')),
		payment_terms TEXT NOT NULL DEFAULT 'immediate',
		notes TEXT,
		created_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS invoice_items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		item_type TEXT NOT NULL DEFAULT 'other',
		item_id UUID,
		description TEXT NOT NULL,
		quantity NUMERIC(12,2) NOT NULL,
		unit_price NUMERIC(12,2) NOT NULL,
		total_price NUMERIC(12,2) NOT NULL,
		batch_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		invoice_id UUID NOT NULL REFERENCES invoices(id),
		payment_reference TEXT NOT NULL UNIQUE,
		payment_method TEXT NOT NULL CHECK (payment_method IN ('cash','mpesa','bank_transfer','insurance','other')),
		amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		mpesa_receipt TEXT,
		payment_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		received_by TEXT NOT NULL,
		notes TEXT,
		reconciled BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments (invoice_id);`,
	`CREATE TABLE IF NOT EXISTS accounts_receivable (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		invoice_id UUID NOT NULL UNIQUE REFERENCES invoices(id),
		op_number TEXT,
		patient_id UUID REFERENCES patients(id),
		amount NUMERIC(12,2) NOT NULL,
		remaining_amount NUMERIC(12,2) NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		days_overdue INTEGER NOT NULL DEFAULT 0,
		aging_bucket TEXT NOT NULL DEFAULT '0-30' CHECK (aging_bucket IN ('0-30','31-60','61-90','90+')),
		status TEXT NOT NULL DEFAULT 'current' CHECK (status IN ('current','overdue','paid')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS mpesa_transactions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		invoice_id UUID REFERENCES invoices(id),
		merchant_request_id TEXT NOT NULL,
		checkout_request_id TEXT NOT NULL UNIQUE,
		phone_number TEXT NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		account_reference TEXT NOT NULL,
		transaction_desc TEXT,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','success','failed','cancelled')),
		result_code INTEGER,
		result_desc TEXT,
		mpesa_receipt_number TEXT,
		transaction_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,

	`CREATE TABLE IF NOT EXISTS prescriptions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		patient_id UUID NOT NULL REFERENCES patients(id),
		visit_id UUID,
		op_number TEXT,
		prescribed_by UUID,
		status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','PARTIALLY_DISPENSED','FULLY_DISPENSED','CANCELLED')),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		FOREIGN KEY (visit_id, patient_id) REFERENCES visits(id, patient_id)
	);`,
	`CREATE TABLE IF NOT EXISTS prescription_items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		prescription_id UUID NOT NULL REFERENCES prescriptions(id) ON DELETE CASCADE,
		inventory_item_id UUID REFERENCES inventory_items(id),
		item_name TEXT NOT NULL,
		dosage TEXT NOT NULL,
		frequency TEXT NOT NULL,
		duration TEXT NOT NULL,
		quantity_prescribed INTEGER NOT NULL CHECK (quantity_prescribed > 0),
		quantity_dispensed INTEGER NOT NULL DEFAULT 0 CHECK (quantity_dispensed >= 0),
		instructions TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (quantity_dispensed <= quantity_prescribed)
	);`,
	`CREATE TABLE IF NOT EXISTS clinical_lab_tests (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		test_code TEXT NOT NULL UNIQUE,
		test_name TEXT NOT NULL,
		test_category TEXT NOT NULL,
		description TEXT,
		specimen_type TEXT NOT NULL,
		turnaround_time INTEGER NOT NULL DEFAULT 24,
		price NUMERIC(12,2) NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT true,
		reference_ranges JSONB,
		instructions TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS lab_requests (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		patient_id UUID NOT NULL REFERENCES patients(id),
		visit_id UUID,
		requested_by UUID,
		urgency TEXT NOT NULL DEFAULT 'ROUTINE' CHECK (urgency IN ('ROUTINE','URGENT','STAT')),
		status TEXT NOT NULL DEFAULT 'REQUESTED' CHECK (status IN ('REQUESTED','SAMPLE_COLLECTED','IN_PROGRESS','COMPLETED','CANCELLED')),
		clinical_notes TEXT,
		specimen_collected_at TIMESTAMPTZ,
		collected_by UUID,
		expected_completion_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		FOREIGN KEY (visit_id, patient_id) REFERENCES visits(id, patient_id)
	);`,
	`CREATE TABLE IF NOT EXISTS lab_request_items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		lab_request_id UUID NOT NULL REFERENCES lab_requests(id) ON DELETE CASCADE,
		test_id UUID NOT NULL REFERENCES clinical_lab_tests(id),
		test_name TEXT NOT NULL,
		test_code TEXT NOT NULL,
		specimen_type TEXT NOT NULL,
		clinical_notes TEXT,
		status TEXT NOT NULL DEFAULT 'REQUESTED' CHECK (status IN ('REQUESTED','SAMPLE_COLLECTED','IN_PROGRESS','COMPLETED','CANCELLED')),
		result_data JSONB,
		reference_ranges JSONB,
		abnormal_flags JSONB,
		technician_notes TEXT,
		verified_by UUID,
		verified_at TIMESTAMPTZ,
		reported_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

// Migrate creates the schema and seeds the role catalogue. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	log := logger.WithComponent("migrate")

	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO roles (name)
		SELECT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING
	`, pq.Array(Roles))
	if err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}

	log.Info().Int("statements", len(schema)).Int("roles", len(Roles)).Msg("Schema is up to date")
	return nil
}
