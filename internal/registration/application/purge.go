package application

import (
	"context"
	stderrors "errors"
	"time"

	"registration-workers/internal/common/errors"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/store"
)

// PurgeReport summarises one purge run.
type PurgeReport struct {
	Cutoff  time.Time `json:"cutoff"`
	DryRun  bool      `json:"dryRun"`
	Purged  []string  `json:"purged"`
	Skipped []string  `json:"skipped,omitempty"`
}

// PurgeAbandonedDrafts deletes drafts untouched for longer than olderThan.
// Drafts are otherwise kept forever; this is an explicit operator action
// and every deletion is written to the audit log.
func (s *Service) PurgeAbandonedDrafts(ctx context.Context, operator models.Actor, olderThan time.Duration, limit int, dryRun bool) (*PurgeReport, error) {
	if operator.Role != models.RoleStateAdmin || operator.ID == "" {
		return nil, errors.NewInvalidTransitionError("draft purge requires a state administrator")
	}
	if olderThan <= 0 {
		return nil, errors.NewPayloadValidationError("olderThan must be positive")
	}

	cutoff := s.now().Add(-olderThan)
	stale, err := s.store.ListStaleDrafts(ctx, cutoff, limit)
	if err != nil {
		return nil, errors.NewDatabaseOperationError("list stale drafts", err)
	}

	report := &PurgeReport{Cutoff: cutoff, DryRun: dryRun, Purged: []string{}}
	for _, candidate := range stale {
		if dryRun {
			report.Purged = append(report.Purged, candidate.ID)
			continue
		}
		purged, err := s.purgeOne(ctx, operator, candidate.ID, cutoff)
		if err != nil {
			return report, err
		}
		if purged {
			report.Purged = append(report.Purged, candidate.ID)
		} else {
			report.Skipped = append(report.Skipped, candidate.ID)
		}
	}

	s.logger.Info("Abandoned drafts purged", map[string]interface{}{
		"operatorId": operator.ID,
		"cutoff":     cutoff,
		"purged":     len(report.Purged),
		"skipped":    len(report.Skipped),
		"dryRun":     dryRun,
	})
	return report, nil
}

// purgeOne re-checks the draft under lock since the owner may have resumed it.
func (s *Service) purgeOne(ctx context.Context, operator models.Actor, id string, cutoff time.Time) (bool, error) {
	purged := false
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		app, err := tx.LockApplication(ctx, id)
		if stderrors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return errors.NewDatabaseOperationError("lock draft", err)
		}
		if app.Status != models.StatusDraft || !app.UpdatedAt.Before(cutoff) {
			return nil
		}
		if err := tx.DeleteApplication(ctx, id); err != nil {
			return errors.NewDatabaseOperationError("purge draft", err)
		}
		if err := tx.InsertAudit(ctx, "draft_purged", "application", id, map[string]interface{}{
			"applicationNumber": app.ApplicationNumber,
			"ownerUserId":       app.OwnerUserID,
			"lastUpdatedAt":     app.UpdatedAt,
			"operatorId":        operator.ID,
		}); err != nil {
			return errors.NewDatabaseOperationError("audit draft purge", err)
		}
		purged = true
		return nil
	})
	return purged, err
}
