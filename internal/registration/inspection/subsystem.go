// Package inspection manages site inspection orders and reports. Status
// changes on the application always go through the state machine so the
// order and report writes share the transition's transaction.
package inspection

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/actionlog"
	"registration-workers/internal/registration/statemachine"
	"registration-workers/internal/registration/store"

	"github.com/google/uuid"
)

type Subsystem struct {
	store   store.Store
	machine *statemachine.Machine
	logger  logger.Logger
	now     func() time.Time
}

func NewSubsystem(s store.Store, machine *statemachine.Machine, log logger.Logger) *Subsystem {
	return &Subsystem{
		store:   s,
		machine: machine,
		logger:  log.WithFields(map[string]interface{}{"component": "inspection"}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type ScheduleRequest struct {
	ApplicationID       string
	AssignedTo          string
	InspectionDate      time.Time
	InspectionAddress   string
	SpecialInstructions string
	ScheduledBy         models.Actor
	IdempotencyKey      string
}

// Schedule opens an inspection order and moves the application to
// inspection_scheduled.
func (s *Subsystem) Schedule(ctx context.Context, req ScheduleRequest) (*models.InspectionOrder, error) {
	if strings.TrimSpace(req.AssignedTo) == "" {
		return nil, errors.NewPayloadValidationError("assignedTo is required")
	}
	if req.InspectionDate.IsZero() {
		return nil, errors.NewPayloadValidationError("inspectionDate is required")
	}

	active, err := s.store.ActiveInspectionOrder(ctx, req.ApplicationID)
	switch {
	case err == nil:
		if s.alreadyApplied(ctx, req.ApplicationID, models.LogInspectionScheduled, req.IdempotencyKey) {
			return active, nil
		}
		return nil, errors.NewDuplicateActiveOrderError(active.ID)
	case !stderrors.Is(err, store.ErrNotFound):
		return nil, errors.NewDatabaseOperationError("find active inspection order", err)
	}

	now := s.now()
	order := &models.InspectionOrder{
		ID:                  uuid.New().String(),
		ApplicationID:       req.ApplicationID,
		ScheduledBy:         req.ScheduledBy.ID,
		AssignedTo:          req.AssignedTo,
		ScheduledDate:       now,
		InspectionDate:      req.InspectionDate.UTC(),
		InspectionAddress:   req.InspectionAddress,
		SpecialInstructions: req.SpecialInstructions,
		Status:              models.OrderScheduled,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	res, err := s.machine.ApplyWith(ctx, statemachine.Request{
		ApplicationID:  req.ApplicationID,
		Action:         models.ActionScheduleInspection,
		Actor:          req.ScheduledBy,
		IdempotencyKey: req.IdempotencyKey,
	}, func(ctx context.Context, tx store.Tx, app *models.Application) error {
		if order.InspectionAddress == "" {
			order.InspectionAddress = app.Address
		}
		if err := tx.InsertInspectionOrder(ctx, order); err != nil {
			if stderrors.Is(err, store.ErrActiveOrderExists) {
				existing, _ := tx.ActiveInspectionOrder(ctx, app.ID)
				if existing != nil {
					return errors.NewDuplicateActiveOrderError(existing.ID)
				}
				return errors.NewDuplicateActiveOrderError("")
			}
			return err
		}
		date := order.InspectionDate
		app.InspectionDate = &date
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		return s.activeOrder(ctx, req.ApplicationID)
	}

	s.logger.Info("Inspection scheduled", map[string]interface{}{
		"applicationId":  req.ApplicationID,
		"orderId":        order.ID,
		"assignedTo":     order.AssignedTo,
		"inspectionDate": order.InspectionDate,
	})
	return order, nil
}

// Acknowledge records that the assigned inspector has seen the order.
func (s *Subsystem) Acknowledge(ctx context.Context, orderID string, actor models.Actor) (*models.InspectionOrder, error) {
	return s.advance(ctx, orderID, actor, models.OrderAcknowledged, models.LogInspectionAcknowledged)
}

// Start marks the visit as under way.
func (s *Subsystem) Start(ctx context.Context, orderID string, actor models.Actor) (*models.InspectionOrder, error) {
	return s.advance(ctx, orderID, actor, models.OrderInProgress, models.LogInspectionStarted)
}

// advance moves an order forward without touching the application status.
// The step is still written to the application's action log.
func (s *Subsystem) advance(ctx context.Context, orderID string, actor models.Actor, next models.InspectionOrderStatus, kind models.ActionKind) (*models.InspectionOrder, error) {
	var out *models.InspectionOrder
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := checkInspector(actor, order); err != nil {
			return err
		}
		if !order.CanMoveTo(next) {
			return errors.NewInvalidTransitionError(
				fmt.Sprintf("inspection order is %s and cannot move to %s", order.Status, next))
		}
		app, err := tx.GetApplication(ctx, order.ApplicationID)
		if err != nil {
			return errors.NewDatabaseOperationError("get application", err)
		}

		order.Status = next
		order.UpdatedAt = s.now()
		if err := tx.UpdateInspectionOrder(ctx, order); err != nil {
			return errors.NewDatabaseOperationError("update inspection order", err)
		}
		if err := actionlog.Append(ctx, tx, &models.ApplicationAction{
			ApplicationID: app.ID,
			ActorID:       actor.ID,
			ActorRole:     actor.Role,
			ActionKind:    kind,
			FromStatus:    app.Status,
			ToStatus:      app.Status,
		}); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Inspection order updated", map[string]interface{}{"orderId": orderID, "status": next})
	return out, nil
}

// Cancel closes an order that has not been reported on and returns the
// application to the DTDO.
func (s *Subsystem) Cancel(ctx context.Context, orderID string, actor models.Actor, reason string) (*models.InspectionOrder, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var cancelled *models.InspectionOrder
	_, err = s.machine.ApplyWith(ctx, statemachine.Request{
		ApplicationID: order.ApplicationID,
		Action:        models.ActionCancelInspection,
		Actor:         actor,
		Payload:       statemachine.Payload{Feedback: reason},
	}, func(ctx context.Context, tx store.Tx, app *models.Application) error {
		locked, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !locked.CanMoveTo(models.OrderCancelled) {
			return errors.NewInvalidTransitionError(fmt.Sprintf("inspection order is %s", locked.Status))
		}
		locked.Status = models.OrderCancelled
		locked.UpdatedAt = s.now()
		if err := tx.UpdateInspectionOrder(ctx, locked); err != nil {
			return err
		}
		app.InspectionDate = nil
		cancelled = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Inspection cancelled", map[string]interface{}{"orderId": orderID, "applicationId": order.ApplicationID})
	return cancelled, nil
}

type ReportInput struct {
	ActualInspectionDate   time.Time
	RoomCountVerified      bool
	CategoryMeetsStandards bool
	OverallSatisfactory    bool
	Recommendation         models.Recommendation
	DetailedFindings       string
	IdempotencyKey         string
}

// SubmitReport completes the order, stores its one report and advances the
// application according to the recommendation. A repeat with the key that
// stored the report returns that report.
func (s *Subsystem) SubmitReport(ctx context.Context, orderID string, actor models.Actor, in ReportInput) (*models.InspectionReport, *statemachine.Result, error) {
	if _, err := models.ParseRecommendation(string(in.Recommendation)); err != nil {
		return nil, nil, errors.NewPayloadValidationError(err.Error())
	}
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkInspector(actor, order); err != nil {
		return nil, nil, err
	}
	if existing, err := s.store.ReportForOrder(ctx, orderID); err == nil {
		if res := s.replayedReport(ctx, existing, in.IdempotencyKey); res != nil {
			return existing, res, nil
		}
		return nil, nil, errors.NewDuplicateReportError(orderID)
	} else if !stderrors.Is(err, store.ErrNotFound) {
		return nil, nil, errors.NewDatabaseOperationError("find inspection report", err)
	}

	now := s.now()
	report := &models.InspectionReport{
		ID:                     uuid.New().String(),
		InspectionOrderID:      orderID,
		ApplicationID:          order.ApplicationID,
		SubmittedBy:            actor.ID,
		ActualInspectionDate:   in.ActualInspectionDate,
		RoomCountVerified:      in.RoomCountVerified,
		CategoryMeetsStandards: in.CategoryMeetsStandards,
		OverallSatisfactory:    in.OverallSatisfactory,
		Recommendation:         in.Recommendation,
		DetailedFindings:       in.DetailedFindings,
		CreatedAt:              now,
	}
	if report.ActualInspectionDate.IsZero() {
		report.ActualInspectionDate = order.InspectionDate
	}

	req := statemachine.Request{
		ApplicationID:  order.ApplicationID,
		Action:         models.ActionCompleteInspection,
		Actor:          actor,
		IdempotencyKey: in.IdempotencyKey,
	}
	if in.Recommendation == models.RecommendRaiseObjections {
		issues := report.Findings()
		if len(issues) == 0 {
			issues = []string{report.CorrectionNotes()}
		}
		req.Action = models.ActionRaiseObjections
		req.Payload = statemachine.Payload{Feedback: report.CorrectionNotes(), IssuesFound: issues}
	}

	res, err := s.machine.ApplyWith(ctx, req, func(ctx context.Context, tx store.Tx, app *models.Application) error {
		locked, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !locked.CanMoveTo(models.OrderCompleted) {
			return errors.NewInvalidTransitionError(fmt.Sprintf("inspection order is %s", locked.Status))
		}
		locked.Status = models.OrderCompleted
		locked.UpdatedAt = now
		if err := tx.UpdateInspectionOrder(ctx, locked); err != nil {
			return err
		}
		if err := tx.InsertInspectionReport(ctx, report); err != nil {
			if stderrors.Is(err, store.ErrReportExists) {
				return errors.NewDuplicateReportError(orderID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if res.Replayed {
		stored, err := s.store.ReportForOrder(ctx, orderID)
		if err != nil {
			return nil, nil, errors.NewDatabaseOperationError("find inspection report", err)
		}
		return stored, res, nil
	}

	s.logger.Info("Inspection report submitted", map[string]interface{}{
		"orderId":        orderID,
		"applicationId":  order.ApplicationID,
		"recommendation": report.Recommendation,
		"status":         res.Status,
	})
	return report, res, nil
}

// replayedReport returns the transition result when report was stored by
// the request carrying key, and nil otherwise.
func (s *Subsystem) replayedReport(ctx context.Context, report *models.InspectionReport, key string) *statemachine.Result {
	if key == "" {
		return nil
	}
	action := models.ActionCompleteInspection
	if report.Recommendation == models.RecommendRaiseObjections {
		action = models.ActionRaiseObjections
	}
	prior, err := s.store.FindActionByKey(ctx, report.ApplicationID, action.LogKind(), key)
	if err != nil {
		return nil
	}
	app, err := s.store.GetApplication(ctx, report.ApplicationID)
	if err != nil {
		return nil
	}
	return &statemachine.Result{Status: prior.ToStatus, Application: app, Replayed: true}
}

func (s *Subsystem) getOrder(ctx context.Context, orderID string) (*models.InspectionOrder, error) {
	order, err := s.store.GetInspectionOrder(ctx, orderID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NewInspectionOrderNotFoundError(orderID)
	}
	if err != nil {
		return nil, errors.NewDatabaseOperationError("get inspection order", err)
	}
	return order, nil
}

func (s *Subsystem) activeOrder(ctx context.Context, applicationID string) (*models.InspectionOrder, error) {
	order, err := s.store.ActiveInspectionOrder(ctx, applicationID)
	if err != nil {
		return nil, errors.NewDatabaseOperationError("find active inspection order", err)
	}
	return order, nil
}

func (s *Subsystem) alreadyApplied(ctx context.Context, applicationID string, kind models.ActionKind, key string) bool {
	if key == "" {
		return false
	}
	_, err := s.store.FindActionByKey(ctx, applicationID, kind, key)
	return err == nil
}

func lockOrder(ctx context.Context, tx store.Tx, orderID string) (*models.InspectionOrder, error) {
	order, err := tx.LockInspectionOrder(ctx, orderID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NewInspectionOrderNotFoundError(orderID)
	}
	if err != nil {
		return nil, errors.NewDatabaseOperationError("lock inspection order", err)
	}
	return order, nil
}

// checkInspector allows the assigned officer, or anyone with statewide reach.
func checkInspector(actor models.Actor, order *models.InspectionOrder) error {
	if !actor.Can(models.CapInspect) {
		return errors.NewInvalidTransitionError(fmt.Sprintf("role %s cannot inspect", actor.Role))
	}
	if actor.ID != order.AssignedTo && !actor.Can(models.CapCrossDistrict) {
		return errors.NewInvalidTransitionError("inspection order is assigned to another officer")
	}
	return nil
}
