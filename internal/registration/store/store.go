// Package store persists applications and everything hanging off them.
// All lifecycle writes go through a Tx obtained from Store.WithTx.
package store

import (
	"context"
	"errors"
	"time"

	"registration-workers/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSerialTaken       = errors.New("serial already allocated")
	ErrActiveDuplicate   = errors.New("active application exists for owner, kind and parent")
	ErrVersionConflict   = errors.New("application version changed")
	ErrDuplicateAction   = errors.New("action already recorded for idempotency key")
	ErrActiveOrderExists = errors.New("active inspection order exists")
	ErrReportExists      = errors.New("inspection report already exists")
	ErrCertificateExists = errors.New("certificate already issued")
)

// Settings keys read from system_settings.
const (
	SettingApplicationSerialSeed = "application_serial_seed"
	SettingCertificateSerialSeed = "certificate_serial_seed"
)

// Reader is available both inside and outside a transaction.
type Reader interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	// FindActive returns the non-terminal application occupying key, or ErrNotFound.
	FindActive(ctx context.Context, key models.ActiveKey) (*models.Application, error)
	MaxSerial(ctx context.Context) (int64, error)
	MaxCertificateSerial(ctx context.Context) (int64, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	FindActionByKey(ctx context.Context, applicationID string, kind models.ActionKind, idempotencyKey string) (*models.ApplicationAction, error)
	// History lists actions newest first.
	History(ctx context.Context, applicationID string) ([]models.ApplicationAction, error)
	GetInspectionOrder(ctx context.Context, id string) (*models.InspectionOrder, error)
	ActiveInspectionOrder(ctx context.Context, applicationID string) (*models.InspectionOrder, error)
	ReportForOrder(ctx context.Context, orderID string) (*models.InspectionReport, error)
	LatestInspectionReport(ctx context.Context, applicationID string) (*models.InspectionReport, error)
	CertificateForApplication(ctx context.Context, applicationID string) (*models.Certificate, error)
	ListStaleDrafts(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Application, error)
}

// Tx is a unit of work. Every method observes the writes made earlier in
// the same Tx; nothing is visible to others until WithTx returns nil.
type Tx interface {
	Reader
	// InsertApplication returns ErrSerialTaken on a serial or number
	// collision and ErrActiveDuplicate when the active slot is occupied.
	InsertApplication(ctx context.Context, app *models.Application) error
	// LockApplication reads the row and holds it until the Tx ends.
	LockApplication(ctx context.Context, id string) (*models.Application, error)
	// UpdateApplication writes app if its Version still matches and bumps it.
	UpdateApplication(ctx context.Context, app *models.Application) error
	DeleteApplication(ctx context.Context, id string) error
	// AppendAction returns ErrNotFound when the application does not exist.
	AppendAction(ctx context.Context, action *models.ApplicationAction) error
	InsertInspectionOrder(ctx context.Context, order *models.InspectionOrder) error
	LockInspectionOrder(ctx context.Context, id string) (*models.InspectionOrder, error)
	UpdateInspectionOrder(ctx context.Context, order *models.InspectionOrder) error
	InsertInspectionReport(ctx context.Context, report *models.InspectionReport) error
	InsertCertificate(ctx context.Context, cert *models.Certificate) error
	InsertAudit(ctx context.Context, eventType, resourceType, resourceID string, details map[string]interface{}) error
}

type Store interface {
	Reader
	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
