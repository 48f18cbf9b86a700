// Package certificate issues registration certificates. Issuance is the
// approve transition: the certificate row, the snapshot of the property
// facts and the application's approved status commit together.
package certificate

import (
	"context"
	stderrors "errors"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/common/metrics"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/sequence"
	"registration-workers/internal/registration/statemachine"
	"registration-workers/internal/registration/store"

	"github.com/google/uuid"
)

const defaultValidityYears = 3

type Issuer struct {
	store         store.Store
	machine       *statemachine.Machine
	allocator     *sequence.Allocator
	formatter     sequence.Formatter
	seed          int64
	validityYears int
	logger        logger.Logger
	now           func() time.Time
}

func NewIssuer(s store.Store, machine *statemachine.Machine, allocator *sequence.Allocator, cfg config.WorkflowConfig, log logger.Logger) *Issuer {
	years := cfg.CertificateValidity
	if years <= 0 {
		years = defaultValidityYears
	}
	return &Issuer{
		store:         s,
		machine:       machine,
		allocator:     allocator,
		formatter:     sequence.NewFormatter(cfg.DistrictCodes),
		seed:          cfg.CertificateSerialSeed,
		validityYears: years,
		logger:        log.WithFields(map[string]interface{}{"component": "certificate-issuer"}),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Issue approves a verified_for_payment application and writes its
// certificate. Calling it again for a certificated application returns the
// existing certificate.
func (i *Issuer) Issue(ctx context.Context, applicationID string, issuedBy models.Actor, idempotencyKey string) (*models.Certificate, error) {
	if existing, err := i.existing(ctx, applicationID); err != nil || existing != nil {
		return existing, err
	}

	var cert *models.Certificate
	_, err := i.allocator.Allocate(ctx, sequence.CertificateSource(i.store, i.seed),
		func(ctx context.Context, serial int64) error {
			cert = nil
			now := i.now()
			_, err := i.machine.ApplyWith(ctx, statemachine.Request{
				ApplicationID:  applicationID,
				Action:         models.ActionApprove,
				Actor:          issuedBy,
				IdempotencyKey: idempotencyKey,
			}, func(ctx context.Context, tx store.Tx, app *models.Application) error {
				c := &models.Certificate{
					ID:                uuid.New().String(),
					CertificateNumber: i.formatter.CertificateNumber(app.District, serial, now),
					Serial:            serial,
					ApplicationID:     app.ID,
					IssuedBy:          issuedBy.ID,
					District:          app.District,
					PropertyFacts:     app.PropertyFacts,
					ValidFrom:         now,
					ValidUpto:         now.AddDate(i.validityYears, 0, 0),
					IssuedAt:          now,
				}
				if err := tx.InsertCertificate(ctx, c); err != nil {
					return err
				}
				app.CertificateIssuedDate = &now
				cert = c
				return nil
			})
			return err
		})
	if err != nil {
		// A concurrent call may have approved the application after our first
		// lookup; its certificate is the answer.
		if existing, lookupErr := i.existing(ctx, applicationID); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	if cert == nil {
		// Replayed approval; the certificate was written by the first attempt.
		return i.existing(ctx, applicationID)
	}

	metrics.CertificatesIssued.Inc()
	i.logger.Info("Certificate issued", map[string]interface{}{
		"applicationId":     applicationID,
		"certificateNumber": cert.CertificateNumber,
		"validUpto":         cert.ValidUpto,
	})
	return cert, nil
}

func (i *Issuer) existing(ctx context.Context, applicationID string) (*models.Certificate, error) {
	cert, err := i.store.CertificateForApplication(ctx, applicationID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseOperationError("get certificate", err)
	}
	return cert, nil
}
