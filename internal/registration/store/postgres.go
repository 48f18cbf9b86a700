package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"registration-workers/internal/models"

	"github.com/lib/pq"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Postgres is the production Store.
type Postgres struct {
	pgReader
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{pgReader: pgReader{q: db}, db: db}
}

func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &pgTx{pgReader: pgReader{q: sqlTx}}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// classify maps constraint violations onto the store sentinels.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		switch pqErr.Constraint {
		case "applications_number_key", "applications_serial_key",
			"certificates_number_key", "certificates_serial_key":
			return ErrSerialTaken
		case "applications_active_owner_kind_parent":
			return ErrActiveDuplicate
		case "application_actions_idempotency":
			return ErrDuplicateAction
		case "inspection_orders_one_active":
			return ErrActiveOrderExists
		case "inspection_reports_order_key":
			return ErrReportExists
		case "certificates_application_key":
			return ErrCertificateExists
		}
	case "23503":
		return ErrNotFound
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// textArray never binds NULL, the array columns are NOT NULL.
func textArray(values []string) interface{} {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// ==========================
// Reads
// ==========================

type pgReader struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const applicationColumns = `id, application_number, serial, kind, parent_application_id, owner_user_id,
	district, tehsil, property_name, owner_name, address, room_count, category,
	status, reverted_from_state, current_page, assigned_dealing_assistant_id, dtdo_id,
	correction_notes, correction_issues, inspection_date, submitted_at, certificate_issued_date,
	version, created_at, updated_at`

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		a                                    models.Application
		parent                               sql.NullString
		reverted                             models.NullableStatus
		inspectionDate, submitted, certIssue sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.ApplicationNumber, &a.Serial, &a.Kind, &parent, &a.OwnerUserID,
		&a.District, &a.Tehsil, &a.PropertyName, &a.OwnerName, &a.Address, &a.RoomCount, &a.Category,
		&a.Status, &reverted, &a.CurrentPage, &a.AssignedDealingAssistantID, &a.DTDOID,
		&a.CorrectionNotes, pq.Array(&a.CorrectionIssues), &inspectionDate, &submitted, &certIssue,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ParentApplicationID = parent.String
	a.RevertedFromState = reverted.Status
	a.InspectionDate = timePtr(inspectionDate)
	a.SubmittedAt = timePtr(submitted)
	a.CertificateIssuedDate = timePtr(certIssue)
	return &a, nil
}

func (r pgReader) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return scanApplication(r.q.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
}

func (r pgReader) FindActive(ctx context.Context, key models.ActiveKey) (*models.Application, error) {
	return scanApplication(r.q.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		WHERE owner_user_id = $1 AND kind = $2
		  AND parent_application_id IS NOT DISTINCT FROM $3
		  AND status NOT IN ('approved', 'rejected', 'superseded', 'certificate_cancelled')
		LIMIT 1`,
		key.OwnerUserID, key.Kind, nullString(key.ParentApplicationID)))
}

func (r pgReader) MaxSerial(ctx context.Context) (int64, error) {
	var max int64
	err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(serial), 0) FROM applications`).Scan(&max)
	return max, err
}

func (r pgReader) MaxCertificateSerial(ctx context.Context) (int64, error) {
	var max int64
	err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(serial), 0) FROM certificates`).Scan(&max)
	return max, err
}

func (r pgReader) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.q.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

const actionColumns = `id, application_id, actor_id, actor_role, action_kind, from_status, to_status,
	feedback, issues_found, idempotency_key, created_at`

func scanAction(row rowScanner) (*models.ApplicationAction, error) {
	var (
		a    models.ApplicationAction
		from models.NullableStatus
	)
	err := row.Scan(&a.ID, &a.ApplicationID, &a.ActorID, &a.ActorRole, &a.ActionKind, &from, &a.ToStatus,
		&a.Feedback, pq.Array(&a.IssuesFound), &a.IdempotencyKey, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.FromStatus = from.Status
	return &a, nil
}

func (r pgReader) FindActionByKey(ctx context.Context, applicationID string, kind models.ActionKind, idempotencyKey string) (*models.ApplicationAction, error) {
	if idempotencyKey == "" {
		return nil, ErrNotFound
	}
	return scanAction(r.q.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM application_actions
		WHERE application_id = $1 AND action_kind = $2 AND idempotency_key = $3`,
		applicationID, kind, idempotencyKey))
}

func (r pgReader) History(ctx context.Context, applicationID string) ([]models.ApplicationAction, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM application_actions
		WHERE application_id = $1 ORDER BY seq DESC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ApplicationAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const orderColumns = `id, application_id, scheduled_by, assigned_to, scheduled_date, inspection_date,
	inspection_address, special_instructions, status, created_at, updated_at`

func scanOrder(row rowScanner) (*models.InspectionOrder, error) {
	var o models.InspectionOrder
	err := row.Scan(&o.ID, &o.ApplicationID, &o.ScheduledBy, &o.AssignedTo, &o.ScheduledDate, &o.InspectionDate,
		&o.InspectionAddress, &o.SpecialInstructions, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r pgReader) GetInspectionOrder(ctx context.Context, id string) (*models.InspectionOrder, error) {
	return scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM inspection_orders WHERE id = $1`, id))
}

func (r pgReader) ActiveInspectionOrder(ctx context.Context, applicationID string) (*models.InspectionOrder, error) {
	return scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM inspection_orders
		WHERE application_id = $1 AND status IN ('scheduled', 'acknowledged', 'in_progress')`, applicationID))
}

const reportColumns = `id, inspection_order_id, application_id, submitted_by, actual_inspection_date,
	room_count_verified, category_meets_standards, overall_satisfactory, recommendation,
	detailed_findings, created_at`

func scanReport(row rowScanner) (*models.InspectionReport, error) {
	var r models.InspectionReport
	err := row.Scan(&r.ID, &r.InspectionOrderID, &r.ApplicationID, &r.SubmittedBy, &r.ActualInspectionDate,
		&r.RoomCountVerified, &r.CategoryMeetsStandards, &r.OverallSatisfactory, &r.Recommendation,
		&r.DetailedFindings, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r pgReader) ReportForOrder(ctx context.Context, orderID string) (*models.InspectionReport, error) {
	return scanReport(r.q.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM inspection_reports WHERE inspection_order_id = $1`, orderID))
}

func (r pgReader) LatestInspectionReport(ctx context.Context, applicationID string) (*models.InspectionReport, error) {
	return scanReport(r.q.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM inspection_reports
		WHERE application_id = $1 ORDER BY created_at DESC LIMIT 1`, applicationID))
}

const certificateColumns = `id, certificate_number, serial, application_id, issued_by, district,
	property_name, owner_name, address, room_count, category, valid_from, valid_upto, issued_at`

func (r pgReader) CertificateForApplication(ctx context.Context, applicationID string) (*models.Certificate, error) {
	var c models.Certificate
	err := r.q.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE application_id = $1`, applicationID).
		Scan(&c.ID, &c.CertificateNumber, &c.Serial, &c.ApplicationID, &c.IssuedBy, &c.District,
			&c.PropertyName, &c.OwnerName, &c.Address, &c.RoomCount, &c.Category,
			&c.ValidFrom, &c.ValidUpto, &c.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r pgReader) ListStaleDrafts(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Application, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		WHERE status = 'draft' AND updated_at < $1
		ORDER BY updated_at ASC LIMIT $2`, updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ==========================
// Writes
// ==========================

type pgTx struct {
	pgReader
}

func (t *pgTx) InsertApplication(ctx context.Context, a *models.Application) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO applications (
			id, application_number, serial, kind, parent_application_id, owner_user_id,
			district, tehsil, property_name, owner_name, address, room_count, category,
			status, reverted_from_state, current_page, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.ApplicationNumber, a.Serial, a.Kind, nullString(a.ParentApplicationID), a.OwnerUserID,
		a.District, a.Tehsil, a.PropertyName, a.OwnerName, a.Address, a.RoomCount, a.Category,
		a.Status, models.NullableStatus{Status: a.RevertedFromState}, a.CurrentPage, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	return classify(err)
}

func (t *pgTx) LockApplication(ctx context.Context, id string) (*models.Application, error) {
	return scanApplication(t.q.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateApplication(ctx context.Context, a *models.Application) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE applications SET
			tehsil = $3, property_name = $4, owner_name = $5, address = $6, room_count = $7, category = $8,
			status = $9, reverted_from_state = $10, current_page = $11,
			assigned_dealing_assistant_id = $12, dtdo_id = $13,
			correction_notes = $14, correction_issues = $15,
			inspection_date = $16, submitted_at = $17, certificate_issued_date = $18,
			version = version + 1, updated_at = $19
		WHERE id = $1 AND version = $2`,
		a.ID, a.Version,
		a.Tehsil, a.PropertyName, a.OwnerName, a.Address, a.RoomCount, a.Category,
		a.Status, models.NullableStatus{Status: a.RevertedFromState}, a.CurrentPage,
		a.AssignedDealingAssistantID, a.DTDOID,
		a.CorrectionNotes, textArray(a.CorrectionIssues),
		nullTime(a.InspectionDate), nullTime(a.SubmittedAt), nullTime(a.CertificateIssuedDate),
		a.UpdatedAt,
	)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	a.Version++
	return nil
}

func (t *pgTx) DeleteApplication(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendAction(ctx context.Context, a *models.ApplicationAction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO application_actions (
			id, application_id, actor_id, actor_role, action_kind, from_status, to_status,
			feedback, issues_found, idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.ApplicationID, a.ActorID, a.ActorRole, a.ActionKind,
		models.NullableStatus{Status: a.FromStatus}, a.ToStatus,
		a.Feedback, textArray(a.IssuesFound), a.IdempotencyKey, a.CreatedAt,
	)
	return classify(err)
}

func (t *pgTx) InsertInspectionOrder(ctx context.Context, o *models.InspectionOrder) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO inspection_orders (
			id, application_id, scheduled_by, assigned_to, scheduled_date, inspection_date,
			inspection_address, special_instructions, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.ApplicationID, o.ScheduledBy, o.AssignedTo, o.ScheduledDate, o.InspectionDate,
		o.InspectionAddress, o.SpecialInstructions, o.Status, o.CreatedAt, o.UpdatedAt,
	)
	return classify(err)
}

func (t *pgTx) LockInspectionOrder(ctx context.Context, id string) (*models.InspectionOrder, error) {
	return scanOrder(t.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM inspection_orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateInspectionOrder(ctx context.Context, o *models.InspectionOrder) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE inspection_orders SET status = $2, updated_at = $3 WHERE id = $1`,
		o.ID, o.Status, o.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertInspectionReport(ctx context.Context, r *models.InspectionReport) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO inspection_reports (
			id, inspection_order_id, application_id, submitted_by, actual_inspection_date,
			room_count_verified, category_meets_standards, overall_satisfactory, recommendation,
			detailed_findings, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.InspectionOrderID, r.ApplicationID, r.SubmittedBy, r.ActualInspectionDate,
		r.RoomCountVerified, r.CategoryMeetsStandards, r.OverallSatisfactory, r.Recommendation,
		r.DetailedFindings, r.CreatedAt,
	)
	return classify(err)
}

func (t *pgTx) InsertCertificate(ctx context.Context, c *models.Certificate) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO certificates (
			id, certificate_number, serial, application_id, issued_by, district,
			property_name, owner_name, address, room_count, category, valid_from, valid_upto, issued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.CertificateNumber, c.Serial, c.ApplicationID, c.IssuedBy, c.District,
		c.PropertyName, c.OwnerName, c.Address, c.RoomCount, c.Category, c.ValidFrom, c.ValidUpto, c.IssuedAt,
	)
	return classify(err)
}

func (t *pgTx) InsertAudit(ctx context.Context, eventType, resourceType, resourceID string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		eventType, resourceType, resourceID, detailsJSON, time.Now().UTC(),
	)
	return err
}
