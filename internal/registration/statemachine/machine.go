// Package statemachine validates and applies role-gated application
// transitions. Every applied transition locks the application row, writes the
// new status with a version check, appends one action row and runs any
// subsystem side effect inside the same transaction.
package statemachine

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/common/metrics"
	"registration-workers/internal/common/observability"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/actionlog"
	"registration-workers/internal/registration/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DocumentChecker answers the document preconditions of submission.
type DocumentChecker interface {
	HasRequiredDocuments(ctx context.Context, applicationID string) (bool, error)
	PhotoCount(ctx context.Context, applicationID string) (int, error)
}

// PaymentChecker gates approval on a confirmed payment.
type PaymentChecker interface {
	PaymentConfirmed(ctx context.Context, applicationID string) (bool, error)
}

// Publisher receives domain events after commit.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// Effect runs inside the transition's transaction after validation and
// before the status write. It may modify app.
type Effect func(ctx context.Context, tx store.Tx, app *models.Application) error

type Config struct {
	MinPhotos      int
	IdempotencyTTL time.Duration
}

type Dependencies struct {
	Documents     DocumentChecker
	Payments      PaymentChecker
	Publisher     Publisher
	Cache         *redis.Client
	Observability *observability.Observability
}

type Payload struct {
	Feedback       string   `json:"feedback,omitempty"`
	IssuesFound    []string `json:"issuesFound,omitempty"`
	Override       bool     `json:"override,omitempty"`
	OverrideReason string   `json:"overrideReason,omitempty"`
}

type Request struct {
	ApplicationID  string
	Action         models.Action
	Actor          models.Actor
	Payload        Payload
	IdempotencyKey string
}

type Result struct {
	Status      models.Status
	Application *models.Application
	// Replayed is set when the idempotency key had already been applied.
	Replayed bool
}

type Machine struct {
	store     store.Store
	cfg       Config
	documents DocumentChecker
	payments  PaymentChecker
	publisher Publisher
	cache     *replayCache
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time
}

func New(s store.Store, cfg Config, deps Dependencies, log logger.Logger) *Machine {
	m := &Machine{
		store:     s,
		cfg:       cfg,
		documents: deps.Documents,
		payments:  deps.Payments,
		publisher: deps.Publisher,
		obs:       deps.Observability,
		logger:    log.WithFields(map[string]interface{}{"component": "statemachine"}),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if deps.Cache != nil {
		m.cache = &replayCache{client: deps.Cache, ttl: cfg.IdempotencyTTL}
	}
	return m
}

// Apply runs a transition that has no subsystem side effect.
func (m *Machine) Apply(ctx context.Context, req Request) (*Result, error) {
	return m.ApplyWith(ctx, req, nil)
}

// ApplyWith runs a transition together with effect. Transitions owned by
// the inspection subsystem or the certificate issuer require an effect.
func (m *Machine) ApplyWith(ctx context.Context, req Request, effect Effect) (*Result, error) {
	ctx, span := m.obs.StartSpan(ctx, "statemachine.apply",
		attribute.String("application.id", req.ApplicationID),
		attribute.String("action", string(req.Action)),
		attribute.String("actor.role", string(req.Actor.Role)),
	)
	defer span.End()

	log := m.logger.WithFields(map[string]interface{}{
		"applicationId": req.ApplicationID,
		"action":        req.Action,
		"actorId":       req.Actor.ID,
	})

	res, event, err := m.apply(ctx, req, effect, log)
	if err != nil {
		code := errors.CodeOf(err)
		metrics.TransitionsRejected.WithLabelValues(string(req.Action), string(code)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		log.Warn("Transition refused", map[string]interface{}{"errorCode": code, "error": err.Error()})
		return nil, err
	}
	span.SetAttributes(attribute.String("status.to", string(res.Status)), attribute.Bool("replayed", res.Replayed))

	if event != nil {
		m.publish(ctx, *event, log)
	}
	return res, nil
}

func (m *Machine) apply(ctx context.Context, req Request, effect Effect, log logger.Logger) (*Result, *models.Event, error) {
	if err := validateRequest(req); err != nil {
		return nil, nil, err
	}
	logKind := req.Action.LogKind()

	var cacheKey string
	if req.IdempotencyKey != "" {
		cacheKey = replayKey(req.ApplicationID, logKind, req.IdempotencyKey)
		status, hit, err := m.cache.get(ctx, cacheKey)
		if err != nil {
			log.Warn("Idempotency cache unavailable", map[string]interface{}{"error": err.Error()})
		}
		if hit {
			app, err := m.store.GetApplication(ctx, req.ApplicationID)
			if err != nil {
				return nil, nil, translateStoreError(err, req.ApplicationID, "get application")
			}
			metrics.TransitionsReplayed.WithLabelValues(string(req.Action), "cache").Inc()
			return &Result{Status: status, Application: app, Replayed: true}, nil, nil
		}
	}

	var (
		result *Result
		event  *models.Event
	)
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		app, err := tx.LockApplication(ctx, req.ApplicationID)
		if err != nil {
			return translateStoreError(err, req.ApplicationID, "lock application")
		}

		if req.IdempotencyKey != "" {
			prior, err := tx.FindActionByKey(ctx, app.ID, logKind, req.IdempotencyKey)
			if err == nil {
				metrics.TransitionsReplayed.WithLabelValues(string(req.Action), "log").Inc()
				result = &Result{Status: prior.ToStatus, Application: app, Replayed: true}
				return nil
			}
			if !stderrors.Is(err, store.ErrNotFound) {
				return errors.NewDatabaseOperationError("find action by idempotency key", err)
			}
		}

		tr, ok := lookup(app.Status, req.Action)
		if !ok {
			return withCorrectionContext(errors.NewInvalidTransitionError(
				fmt.Sprintf("%s is not permitted while the application is %s", req.Action, app.Status)), app)
		}
		if err := authorize(req.Actor, app, tr); err != nil {
			return withCorrectionContext(err, app)
		}
		if tr.viaSubsystem && effect == nil {
			return errors.NewInvalidTransitionError(
				fmt.Sprintf("%s must be issued through its subsystem", req.Action))
		}
		for _, g := range tr.guards {
			if err := g(ctx, m, tx, app, req); err != nil {
				if se, ok := err.(*errors.StandardError); ok {
					return withCorrectionContext(se, app)
				}
				return err
			}
		}

		from := app.Status
		m.mutate(app, tr, req)

		if effect != nil {
			if err := effect(ctx, tx, app); err != nil {
				if errors.CodeOf(err) != "" {
					return err
				}
				return errors.NewSideEffectFailedError(string(req.Action), err)
			}
		}

		if err := tx.UpdateApplication(ctx, app); err != nil {
			return translateStoreError(err, app.ID, "update application")
		}
		if err := actionlog.Append(ctx, tx, &models.ApplicationAction{
			ApplicationID:  app.ID,
			ActorID:        req.Actor.ID,
			ActorRole:      req.Actor.Role,
			ActionKind:     logKind,
			FromStatus:     from,
			ToStatus:       app.Status,
			Feedback:       req.Payload.Feedback,
			IssuesFound:    req.Payload.IssuesFound,
			IdempotencyKey: req.IdempotencyKey,
		}); err != nil {
			if stderrors.Is(err, store.ErrDuplicateAction) {
				return errors.NewConcurrentModificationError(app.ID)
			}
			return err
		}

		if app.Status == models.StatusApproved {
			if err := m.settleParent(ctx, tx, app, req.Actor); err != nil {
				return err
			}
		}

		metrics.TransitionsApplied.WithLabelValues(string(req.Action), string(from), string(app.Status)).Inc()
		result = &Result{Status: app.Status, Application: app}
		if evType, ok := models.EventFor(req.Action, app.Status); ok {
			event = m.eventFor(evType, app, req)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if cacheKey != "" {
		if err := m.cache.put(ctx, cacheKey, result.Status); err != nil {
			log.Warn("Failed to cache transition outcome", map[string]interface{}{"error": err.Error()})
		}
	}
	if !result.Replayed {
		log.Info("Transition applied", map[string]interface{}{
			"status":  result.Status,
			"version": result.Application.Version,
		})
	}
	return result, event, nil
}

// Allowed lists the actions actor could issue on app right now, ignoring
// payload and collaborator preconditions.
func (m *Machine) Allowed(app *models.Application, actor models.Actor) []models.Action {
	var out []models.Action
	for action, tr := range transitions[app.Status] {
		if authorize(actor, app, tr) == nil {
			out = append(out, action)
		}
	}
	return out
}

func validateRequest(req Request) error {
	if req.ApplicationID == "" {
		return errors.NewPayloadValidationError("applicationId is required")
	}
	if _, err := models.ParseAction(string(req.Action)); err != nil {
		return errors.NewPayloadValidationError(err.Error())
	}
	if req.Actor.ID == "" || !req.Actor.Role.Valid() {
		return errors.NewPayloadValidationError("actor id and a known role are required")
	}
	return nil
}

func authorize(actor models.Actor, app *models.Application, tr transition) *errors.StandardError {
	if !actor.Can(tr.capability) {
		return errors.NewInvalidTransitionError(
			fmt.Sprintf("role %s lacks capability %s", actor.Role, tr.capability))
	}
	if tr.capability == models.CapEditOwnApplication {
		if actor.ID != app.OwnerUserID {
			return errors.NewInvalidTransitionError("only the owner may act on this application")
		}
		return nil
	}
	if !actor.CoversDistrict(app.District) {
		return errors.NewInvalidTransitionError(
			fmt.Sprintf("actor is not assigned to district %s", app.District))
	}
	return nil
}

// mutate moves app to the transition target and records review state.
func (m *Machine) mutate(app *models.Application, tr transition, req Request) {
	now := m.now()
	from := app.Status

	switch req.Action {
	case models.ActionSubmit:
		app.Status = tr.next
		app.SubmittedAt = &now

	case models.ActionResubmitCorrection:
		app.Status = app.RevertedFromState
		if app.Status == "" {
			app.Status = models.StatusSubmitted
		}
		app.RevertedFromState = ""
		app.CorrectionNotes = ""
		app.CorrectionIssues = nil
		app.SubmittedAt = &now

	case models.ActionSendBackForCorrections, models.ActionRevertToApplicant:
		app.Status = tr.next
		app.RevertedFromState = from
		app.CorrectionNotes = req.Payload.Feedback
		app.CorrectionIssues = append([]string(nil), req.Payload.IssuesFound...)

	case models.ActionRaiseObjections:
		// The owner's fix re-enters at the completed inspection, the visit
		// itself is not repeated.
		app.Status = tr.next
		app.RevertedFromState = models.StatusInspectionCompleted
		app.CorrectionNotes = req.Payload.Feedback
		app.CorrectionIssues = append([]string(nil), req.Payload.IssuesFound...)

	default:
		app.Status = tr.next
	}

	switch {
	case req.Actor.Role == models.RoleDealingAssistant && app.AssignedDealingAssistantID == "":
		app.AssignedDealingAssistantID = req.Actor.ID
	case req.Actor.Role == models.RoleDistrictTourismOfficer && tr.capability == models.CapDistrictDecision:
		app.DTDOID = req.Actor.ID
	}
	app.UpdatedAt = now
}

// settleParent moves the approved child's parent to its settled status.
func (m *Machine) settleParent(ctx context.Context, tx store.Tx, child *models.Application, actor models.Actor) error {
	settled, ok := child.Kind.SettledParentStatus()
	if !ok || child.ParentApplicationID == "" {
		return nil
	}
	parent, err := tx.LockApplication(ctx, child.ParentApplicationID)
	if err != nil {
		return translateStoreError(err, child.ParentApplicationID, "lock parent application")
	}
	if parent.Status != models.StatusApproved {
		return errors.NewPreconditionNotMetError(
			fmt.Sprintf("parent application %s is %s, not approved", parent.ApplicationNumber, parent.Status))
	}

	parent.Status = settled
	parent.UpdatedAt = m.now()
	if err := tx.UpdateApplication(ctx, parent); err != nil {
		return translateStoreError(err, parent.ID, "update parent application")
	}

	kind := models.LogSuperseded
	if settled == models.StatusCertificateCancelled {
		kind = models.LogCertificateCancelled
	}
	return actionlog.Append(ctx, tx, &models.ApplicationAction{
		ApplicationID: parent.ID,
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		ActionKind:    kind,
		FromStatus:    models.StatusApproved,
		ToStatus:      settled,
		Feedback:      fmt.Sprintf("settled by %s", child.ApplicationNumber),
	})
}

func (m *Machine) eventFor(t models.EventType, app *models.Application, req Request) *models.Event {
	ev := &models.Event{
		ID:                uuid.New().String(),
		Type:              t,
		ApplicationID:     app.ID,
		ApplicationNumber: app.ApplicationNumber,
		OwnerUserID:       app.OwnerUserID,
		District:          app.District,
		Kind:              app.Kind,
		Status:            app.Status,
		ActorID:           req.Actor.ID,
		OccurredAt:        app.UpdatedAt,
	}
	if app.Status.IsCorrection() {
		ev.IssuesFound = append([]string(nil), app.CorrectionIssues...)
		ev.CorrectionNotes = app.CorrectionNotes
	}
	if t == models.EventInspectionScheduled && app.InspectionDate != nil {
		d := *app.InspectionDate
		ev.InspectionDate = &d
	}
	return ev
}

func (m *Machine) publish(ctx context.Context, event models.Event, log logger.Logger) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		log.Error("Failed to publish domain event", map[string]interface{}{
			"event": event.Type,
			"error": err.Error(),
		})
	}
}

// withCorrectionContext attaches what the owner must fix when the
// application is waiting on corrections.
func withCorrectionContext(err *errors.StandardError, app *models.Application) *errors.StandardError {
	if !app.Status.IsCorrection() {
		return err
	}
	return err.
		WithMetadata("correctionNotes", app.CorrectionNotes).
		WithMetadata("issuesFound", append([]string(nil), app.CorrectionIssues...))
}

func translateStoreError(err error, applicationID, op string) error {
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return errors.NewApplicationNotFoundError(applicationID)
	case stderrors.Is(err, store.ErrVersionConflict):
		return errors.NewConcurrentModificationError(applicationID)
	case stderrors.Is(err, store.ErrActiveDuplicate):
		return errors.NewPreconditionNotMetError("another active application occupies this owner, kind and parent")
	}
	return errors.NewDatabaseOperationError(op, err)
}
