// Package application owns the draft half of the lifecycle: creating
// applications under the one-active-per-slot rule, owner edits, discards
// and the operator purge of abandoned drafts.
package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/actionlog"
	"registration-workers/internal/registration/sequence"
	"registration-workers/internal/registration/store"

	"github.com/google/uuid"
)

type Service struct {
	store     store.Store
	allocator *sequence.Allocator
	formatter sequence.Formatter
	history   *actionlog.Reader
	cfg       config.WorkflowConfig
	logger    logger.Logger
	now       func() time.Time
}

func NewService(s store.Store, allocator *sequence.Allocator, cfg config.WorkflowConfig, log logger.Logger) *Service {
	return &Service{
		store:     s,
		allocator: allocator,
		formatter: sequence.NewFormatter(cfg.DistrictCodes),
		history:   actionlog.NewReader(s),
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "application-service"}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	OwnerUserID         string
	Kind                models.Kind
	ParentApplicationID string
	District            string
	Tehsil              string
	models.PropertyFacts
}

// Create persists a new draft with a freshly allocated application number.
// When the owner already has an active application for the same kind and
// parent it fails with DUPLICATE_ACTIVE_DRAFT carrying that application.
func (s *Service) Create(ctx context.Context, actor models.Actor, req CreateRequest) (*models.Application, error) {
	if err := s.validateCreate(ctx, actor, req); err != nil {
		return nil, err
	}

	key := models.ActiveKey{OwnerUserID: req.OwnerUserID, Kind: req.Kind, ParentApplicationID: req.ParentApplicationID}
	if err := s.conflictFor(ctx, key); err != nil {
		return nil, err
	}

	now := s.now()
	app := &models.Application{
		ID:                  uuid.New().String(),
		Kind:                req.Kind,
		ParentApplicationID: req.ParentApplicationID,
		OwnerUserID:         req.OwnerUserID,
		District:            req.District,
		Tehsil:              req.Tehsil,
		PropertyFacts:       req.PropertyFacts,
		Status:              models.StatusDraft,
		CurrentPage:         1,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	_, err := s.allocator.Allocate(ctx, sequence.ApplicationSource(s.store, s.cfg.SerialSeed),
		func(ctx context.Context, serial int64) error {
			app.Serial = serial
			app.ApplicationNumber = s.formatter.ApplicationNumber(app.Kind, app.District, serial, now)
			return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				if err := tx.InsertApplication(ctx, app); err != nil {
					return err
				}
				return actionlog.Append(ctx, tx, &models.ApplicationAction{
					ApplicationID: app.ID,
					ActorID:       actor.ID,
					ActorRole:     actor.Role,
					ActionKind:    models.LogDraftCreated,
					ToStatus:      models.StatusDraft,
					CreatedAt:     now,
				})
			})
		})
	if err != nil {
		if stderrors.Is(err, store.ErrActiveDuplicate) {
			// Lost the race to a concurrent create for the same slot.
			if cerr := s.conflictFor(ctx, key); cerr != nil {
				return nil, cerr
			}
			return nil, errors.NewConcurrentModificationError(app.ID)
		}
		if errors.CodeOf(err) == "" {
			return nil, errors.NewDatabaseOperationError("create application", err)
		}
		return nil, err
	}

	s.logger.Info("Draft created", map[string]interface{}{
		"applicationId":     app.ID,
		"applicationNumber": app.ApplicationNumber,
		"kind":              app.Kind,
	})
	return app, nil
}

func (s *Service) validateCreate(ctx context.Context, actor models.Actor, req CreateRequest) error {
	if actor.Role != models.RoleOwner || actor.ID == "" || actor.ID != req.OwnerUserID {
		return errors.NewInvalidTransitionError("applications are created by their owner")
	}
	if !req.Kind.Valid() {
		return errors.NewPayloadValidationError(fmt.Sprintf("unknown application kind %q", req.Kind))
	}
	if req.District == "" {
		return errors.NewPayloadValidationError("district is required")
	}
	if req.Kind.RequiresParent() != (req.ParentApplicationID != "") {
		if req.Kind.RequiresParent() {
			return errors.NewPayloadValidationError(fmt.Sprintf("%s requires parentApplicationId", req.Kind))
		}
		return errors.NewPayloadValidationError(fmt.Sprintf("%s does not take a parent application", req.Kind))
	}
	if req.ParentApplicationID == "" {
		return nil
	}

	parent, err := s.store.GetApplication(ctx, req.ParentApplicationID)
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.NewApplicationNotFoundError(req.ParentApplicationID)
	}
	if err != nil {
		return errors.NewDatabaseOperationError("get parent application", err)
	}
	if parent.OwnerUserID != req.OwnerUserID {
		return errors.NewInvalidTransitionError("parent application belongs to another owner")
	}
	if parent.Status != models.StatusApproved {
		return errors.NewPreconditionNotMetError(
			fmt.Sprintf("parent application %s is %s, not approved", parent.ApplicationNumber, parent.Status))
	}
	return nil
}

func (s *Service) conflictFor(ctx context.Context, key models.ActiveKey) error {
	existing, err := s.store.FindActive(ctx, key)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.NewDatabaseOperationError("find active application", err)
	}
	return errors.NewDuplicateActiveDraftError(errors.DraftConflict{
		ExistingApplicationID: existing.ID,
		Kind:                  string(existing.Kind),
		Status:                string(existing.Status),
	})
}

// DraftUpdate holds owner edits. Nil fields are left unchanged.
type DraftUpdate struct {
	Tehsil       *string `json:"tehsil,omitempty"`
	PropertyName *string `json:"propertyName,omitempty"`
	OwnerName    *string `json:"ownerName,omitempty"`
	Address      *string `json:"address,omitempty"`
	RoomCount    *int    `json:"roomCount,omitempty"`
	Category     *string `json:"category,omitempty"`
	CurrentPage  *int    `json:"currentPage,omitempty"`
}

// UpdateDraft applies owner edits while the application is a draft or
// waiting on corrections.
func (s *Service) UpdateDraft(ctx context.Context, actor models.Actor, id string, upd DraftUpdate) (*models.Application, error) {
	var out *models.Application
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		app, err := s.lockOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !app.Status.OwnerEditable() {
			return errors.NewInvalidTransitionError(fmt.Sprintf("application is %s and cannot be edited", app.Status))
		}
		if upd.RoomCount != nil && *upd.RoomCount < 0 {
			return errors.NewPayloadValidationError("roomCount cannot be negative")
		}
		if upd.CurrentPage != nil && *upd.CurrentPage < 1 {
			return errors.NewPayloadValidationError("currentPage starts at 1")
		}

		setString(&app.Tehsil, upd.Tehsil)
		setString(&app.PropertyName, upd.PropertyName)
		setString(&app.OwnerName, upd.OwnerName)
		setString(&app.Address, upd.Address)
		setString(&app.Category, upd.Category)
		if upd.RoomCount != nil {
			app.RoomCount = *upd.RoomCount
		}
		if upd.CurrentPage != nil {
			app.CurrentPage = *upd.CurrentPage
		}
		app.UpdatedAt = s.now()

		if err := tx.UpdateApplication(ctx, app); err != nil {
			if stderrors.Is(err, store.ErrVersionConflict) {
				return errors.NewConcurrentModificationError(app.ID)
			}
			return errors.NewDatabaseOperationError("update draft", err)
		}
		if err := actionlog.Append(ctx, tx, &models.ApplicationAction{
			ApplicationID: app.ID,
			ActorID:       actor.ID,
			ActorRole:     actor.Role,
			ActionKind:    models.LogDraftUpdated,
			FromStatus:    app.Status,
			ToStatus:      app.Status,
		}); err != nil {
			return err
		}
		out = app
		return nil
	})
	return out, err
}

// DeleteDraft discards a draft and its action rows. Anything past draft is
// retained permanently.
func (s *Service) DeleteDraft(ctx context.Context, actor models.Actor, id string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		app, err := s.lockOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if app.Status != models.StatusDraft {
			return errors.NewInvalidTransitionError(fmt.Sprintf("only drafts can be deleted, application is %s", app.Status))
		}
		if err := tx.DeleteApplication(ctx, id); err != nil {
			return errors.NewDatabaseOperationError("delete draft", err)
		}
		if err := tx.InsertAudit(ctx, "draft_deleted", "application", id, map[string]interface{}{
			"applicationNumber": app.ApplicationNumber,
			"actorId":           actor.ID,
		}); err != nil {
			return errors.NewDatabaseOperationError("audit draft deletion", err)
		}
		s.logger.Info("Draft deleted", map[string]interface{}{"applicationId": id})
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NewApplicationNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewDatabaseOperationError("get application", err)
	}
	return app, nil
}

// History returns the application's action log, newest first.
func (s *Service) History(ctx context.Context, id string) ([]models.ApplicationAction, error) {
	return s.history.History(ctx, id)
}

func (s *Service) lockOwned(ctx context.Context, tx store.Tx, actor models.Actor, id string) (*models.Application, error) {
	app, err := tx.LockApplication(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NewApplicationNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewDatabaseOperationError("lock application", err)
	}
	if !actor.Can(models.CapEditOwnApplication) || actor.ID != app.OwnerUserID {
		return nil, errors.NewInvalidTransitionError("only the owner may modify this application")
	}
	return app, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
