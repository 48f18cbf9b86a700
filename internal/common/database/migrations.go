package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema statements are idempotent and applied in order on every boot.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS system_settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS applications (
		id                            UUID PRIMARY KEY,
		application_number            TEXT NOT NULL,
		serial                        BIGINT NOT NULL,
		kind                          TEXT NOT NULL,
		parent_application_id         UUID REFERENCES applications(id),
		owner_user_id                 TEXT NOT NULL,
		district                      TEXT NOT NULL,
		tehsil                        TEXT NOT NULL DEFAULT '',
		property_name                 TEXT NOT NULL DEFAULT '',
		owner_name                    TEXT NOT NULL DEFAULT '',
		address                       TEXT NOT NULL DEFAULT '',
		room_count                    INTEGER NOT NULL DEFAULT 0,
		category                      TEXT NOT NULL DEFAULT '',
		status                        TEXT NOT NULL,
		reverted_from_state           TEXT NOT NULL DEFAULT '',
		current_page                  INTEGER NOT NULL DEFAULT 1,
		assigned_dealing_assistant_id TEXT NOT NULL DEFAULT '',
		dtdo_id                       TEXT NOT NULL DEFAULT '',
		correction_notes              TEXT NOT NULL DEFAULT '',
		correction_issues             TEXT[] NOT NULL DEFAULT '{}',
		inspection_date               TIMESTAMPTZ,
		submitted_at                  TIMESTAMPTZ,
		certificate_issued_date       TIMESTAMPTZ,
		documents                     JSONB,
		version                       BIGINT NOT NULL DEFAULT 1,
		created_at                    TIMESTAMPTZ NOT NULL,
		updated_at                    TIMESTAMPTZ NOT NULL,
		CONSTRAINT applications_number_key UNIQUE (application_number),
		CONSTRAINT applications_serial_key UNIQUE (serial)
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS applications_active_owner_kind_parent
		ON applications (owner_user_id, kind, COALESCE(parent_application_id, '00000000-0000-0000-0000-000000000000'::uuid))
		WHERE status NOT IN ('approved', 'rejected', 'superseded', 'certificate_cancelled')`,

	`CREATE INDEX IF NOT EXISTS applications_district_status ON applications (district, status)`,

	`CREATE TABLE IF NOT EXISTS application_actions (
		id              UUID PRIMARY KEY,
		seq             BIGSERIAL,
		application_id  UUID NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		actor_id        TEXT NOT NULL,
		actor_role      TEXT NOT NULL,
		action_kind     TEXT NOT NULL,
		from_status     TEXT NOT NULL DEFAULT '',
		to_status       TEXT NOT NULL,
		feedback        TEXT NOT NULL DEFAULT '',
		issues_found    TEXT[] NOT NULL DEFAULT '{}',
		idempotency_key TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS application_actions_idempotency
		ON application_actions (application_id, action_kind, idempotency_key)
		WHERE idempotency_key <> ''`,

	`CREATE TABLE IF NOT EXISTS inspection_orders (
		id                   UUID PRIMARY KEY,
		application_id       UUID NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		scheduled_by         TEXT NOT NULL,
		assigned_to          TEXT NOT NULL,
		scheduled_date       TIMESTAMPTZ NOT NULL,
		inspection_date      TIMESTAMPTZ NOT NULL,
		inspection_address   TEXT NOT NULL DEFAULT '',
		special_instructions TEXT NOT NULL DEFAULT '',
		status               TEXT NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS inspection_orders_one_active
		ON inspection_orders (application_id)
		WHERE status IN ('scheduled', 'acknowledged', 'in_progress')`,

	`CREATE TABLE IF NOT EXISTS inspection_reports (
		id                       UUID PRIMARY KEY,
		inspection_order_id      UUID NOT NULL REFERENCES inspection_orders(id) ON DELETE CASCADE,
		application_id           UUID NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		submitted_by             TEXT NOT NULL,
		actual_inspection_date   TIMESTAMPTZ NOT NULL,
		room_count_verified      BOOLEAN NOT NULL,
		category_meets_standards BOOLEAN NOT NULL,
		overall_satisfactory     BOOLEAN NOT NULL,
		recommendation           TEXT NOT NULL,
		detailed_findings        TEXT NOT NULL DEFAULT '',
		created_at               TIMESTAMPTZ NOT NULL,
		CONSTRAINT inspection_reports_order_key UNIQUE (inspection_order_id)
	)`,

	`CREATE TABLE IF NOT EXISTS certificates (
		id                 UUID PRIMARY KEY,
		certificate_number TEXT NOT NULL,
		serial             BIGINT NOT NULL,
		application_id     UUID NOT NULL REFERENCES applications(id),
		issued_by          TEXT NOT NULL,
		property_name      TEXT NOT NULL,
		owner_name         TEXT NOT NULL,
		address            TEXT NOT NULL,
		district           TEXT NOT NULL,
		room_count         INTEGER NOT NULL,
		category           TEXT NOT NULL,
		valid_from         TIMESTAMPTZ NOT NULL,
		valid_upto         TIMESTAMPTZ NOT NULL,
		issued_at          TIMESTAMPTZ NOT NULL,
		CONSTRAINT certificates_number_key UNIQUE (certificate_number),
		CONSTRAINT certificates_serial_key UNIQUE (serial),
		CONSTRAINT certificates_application_key UNIQUE (application_id)
	)`,

	`CREATE TABLE IF NOT EXISTS application_documents (
		id             UUID PRIMARY KEY,
		application_id UUID NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		document_type  TEXT NOT NULL,
		file_name      TEXT NOT NULL,
		storage_key    TEXT NOT NULL,
		mime_type      TEXT NOT NULL DEFAULT '',
		size_bytes     BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		CONSTRAINT application_documents_storage_key UNIQUE (application_id, storage_key)
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id            BIGSERIAL PRIMARY KEY,
		event_type    TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id   TEXT NOT NULL,
		details       JSONB,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
}

// MigrationCount is the number of statements ApplyMigrations executes.
func MigrationCount() int {
	return len(migrations)
}

// ApplyMigrations executes every schema statement in order.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
