// Package documents answers the document preconditions of submission.
// Documents live either as rows in application_documents or as entries of
// the legacy JSONB blob on the application; both are normalized on read.
package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/store"

	"github.com/google/uuid"
)

type Postgres struct {
	db       *sql.DB
	required []string
	logger   logger.Logger
}

func NewPostgres(db *sql.DB, required []string, log logger.Logger) *Postgres {
	return &Postgres{
		db:       db,
		required: required,
		logger:   log.WithFields(map[string]interface{}{"component": "documents"}),
	}
}

// List returns every document attached to the application. A structured
// row wins over an inline entry with the same storage key.
func (p *Postgres) List(ctx context.Context, applicationID string) ([]models.Document, error) {
	refs, rows, err := p.refs(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	out := make([]models.Document, 0, len(refs))
	for _, ref := range refs {
		var doc models.Document
		switch ref.Source {
		case models.DocumentStructured:
			doc = rows[ref.ID]
		case models.DocumentInline:
			doc, err = models.NormalizeInline(applicationID, ref.Blob)
			if err != nil {
				p.logger.Warn("Skipping malformed inline document", map[string]interface{}{
					"applicationId": applicationID,
					"error":         err.Error(),
				})
				continue
			}
		}
		if seen[doc.StorageKey] {
			continue
		}
		seen[doc.StorageKey] = true
		out = append(out, doc)
	}
	return out, nil
}

func (p *Postgres) HasRequiredDocuments(ctx context.Context, applicationID string) (bool, error) {
	docs, err := p.List(ctx, applicationID)
	if err != nil {
		return false, err
	}
	present := map[string]bool{}
	for _, d := range docs {
		present[d.DocumentType] = true
	}
	for _, t := range p.required {
		if !present[t] {
			return false, nil
		}
	}
	return true, nil
}

func (p *Postgres) PhotoCount(ctx context.Context, applicationID string) (int, error) {
	docs, err := p.List(ctx, applicationID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range docs {
		if d.DocumentType == models.DocumentTypePhoto {
			n++
		}
	}
	return n, nil
}

// refs lists structured rows first, then inline entries, in stored order.
func (p *Postgres) refs(ctx context.Context, applicationID string) ([]models.DocumentRef, map[string]models.Document, error) {
	var blob []byte
	err := p.db.QueryRowContext(ctx, `SELECT documents FROM applications WHERE id = $1`, applicationID).Scan(&blob)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil, store.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read inline documents: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, document_type, file_name, storage_key, mime_type, size_bytes, created_at
		FROM application_documents
		WHERE application_id = $1
		ORDER BY created_at`, applicationID)
	if err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var refs []models.DocumentRef
	structured := map[string]models.Document{}
	for rows.Next() {
		d := models.Document{ApplicationID: applicationID, Source: models.DocumentStructured}
		if err := rows.Scan(&d.ID, &d.DocumentType, &d.FileName, &d.StorageKey, &d.MimeType, &d.SizeBytes, &d.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		structured[d.ID] = d
		refs = append(refs, models.Structured(d.ID))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}

	inline, err := splitInline(blob)
	if err != nil {
		p.logger.Warn("Inline documents are not a JSON array", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	}
	for _, entry := range inline {
		refs = append(refs, models.Inline(entry))
	}
	return refs, structured, nil
}

func splitInline(blob []byte) ([]json.RawMessage, error) {
	if len(blob) == 0 || string(blob) == "null" {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SyncReport summarises one run of SyncFromJSONB.
type SyncReport struct {
	Applications int `json:"applications"`
	Copied       int `json:"copied"`
	Skipped      int `json:"skipped"`
}

// SyncFromJSONB copies inline documents into application_documents and
// clears the blob, one application per transaction. Re-running it is safe.
func (p *Postgres) SyncFromJSONB(ctx context.Context, batch int) (*SyncReport, error) {
	if batch <= 0 {
		batch = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, documents FROM applications
		WHERE documents IS NOT NULL AND jsonb_typeof(documents) = 'array' AND jsonb_array_length(documents) > 0
		ORDER BY created_at
		LIMIT $1`, batch)
	if err != nil {
		return nil, fmt.Errorf("list inline documents: %w", err)
	}
	type pending struct {
		id   string
		blob []byte
	}
	var todo []pending
	for rows.Next() {
		var item pending
		if err := rows.Scan(&item.id, &item.blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan inline documents: %w", err)
		}
		todo = append(todo, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list inline documents: %w", err)
	}

	report := &SyncReport{}
	for _, item := range todo {
		copied, skipped, err := p.syncOne(ctx, item.id, item.blob)
		if err != nil {
			return report, err
		}
		report.Applications++
		report.Copied += copied
		report.Skipped += skipped
	}
	p.logger.Info("Inline documents synced", map[string]interface{}{
		"applications": report.Applications,
		"copied":       report.Copied,
		"skipped":      report.Skipped,
	})
	return report, nil
}

func (p *Postgres) syncOne(ctx context.Context, applicationID string, blob []byte) (copied, skipped int, err error) {
	entries, err := splitInline(blob)
	if err != nil {
		return 0, 0, fmt.Errorf("application %s: %w", applicationID, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin sync: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, entry := range entries {
		doc, nerr := models.NormalizeInline(applicationID, entry)
		if nerr != nil {
			p.logger.Warn("Skipping malformed inline document", map[string]interface{}{
				"applicationId": applicationID,
				"error":         nerr.Error(),
			})
			skipped++
			continue
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO application_documents
				(id, application_id, document_type, file_name, storage_key, mime_type, size_bytes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (application_id, storage_key) DO NOTHING`,
			uuid.New().String(), applicationID, doc.DocumentType, doc.FileName, doc.StorageKey,
			doc.MimeType, doc.SizeBytes, now)
		if err != nil {
			return 0, 0, fmt.Errorf("copy document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			copied++
		} else {
			skipped++
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE applications SET documents = NULL WHERE id = $1`, applicationID); err != nil {
		return 0, 0, fmt.Errorf("clear inline documents: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit sync: %w", err)
	}
	return copied, skipped, nil
}
