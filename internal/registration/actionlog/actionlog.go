// Package actionlog is the append-only audit trail of application actions.
package actionlog

import (
	"context"
	stderrors "errors"
	"time"

	"registration-workers/internal/common/errors"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/store"

	"github.com/google/uuid"
)

// Append writes one action row inside tx. ID and CreatedAt are filled in
// when empty.
func Append(ctx context.Context, tx store.Tx, entry *models.ApplicationAction) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := tx.AppendAction(ctx, entry); err != nil {
		switch {
		case stderrors.Is(err, store.ErrNotFound):
			return errors.NewApplicationNotFoundError(entry.ApplicationID)
		case stderrors.Is(err, store.ErrDuplicateAction):
			return err
		}
		return errors.NewDatabaseOperationError("append action", err)
	}
	return nil
}

// Reader serves the audit history.
type Reader struct {
	store store.Reader
}

func NewReader(s store.Reader) *Reader {
	return &Reader{store: s}
}

// History returns the application's actions, newest first.
func (r *Reader) History(ctx context.Context, applicationID string) ([]models.ApplicationAction, error) {
	if _, err := r.store.GetApplication(ctx, applicationID); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewApplicationNotFoundError(applicationID)
		}
		return nil, errors.NewDatabaseOperationError("get application", err)
	}
	history, err := r.store.History(ctx, applicationID)
	if err != nil {
		return nil, errors.NewDatabaseOperationError("read history", err)
	}
	return history, nil
}
