package statemachine

import (
	"context"
	stderrors "errors"
	"fmt"

	"registration-workers/internal/common/errors"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/store"
)

// guard checks payload and collaborator preconditions once the transition
// is known to exist and the actor is authorized.
type guard func(ctx context.Context, m *Machine, tx store.Tx, app *models.Application, req Request) error

type transition struct {
	capability models.Capability
	// next is empty when the target is computed from the application.
	next models.Status
	// viaSubsystem transitions carry a side effect and are only reachable
	// through ApplyWith.
	viaSubsystem bool
	guards       []guard
}

var reviewStates = []models.Status{
	models.StatusSubmitted,
	models.StatusUnderScrutiny,
	models.StatusForwardedToDTDO,
	models.StatusInspectionCompleted,
	models.StatusVerifiedForPayment,
}

var transitions = buildTable()

func buildTable() map[models.Status]map[models.Action]transition {
	t := map[models.Status]map[models.Action]transition{}
	add := func(from []models.Status, action models.Action, tr transition) {
		for _, s := range from {
			if t[s] == nil {
				t[s] = map[models.Action]transition{}
			}
			t[s][action] = tr
		}
	}
	one := func(s models.Status) []models.Status { return []models.Status{s} }

	add(one(models.StatusDraft), models.ActionSubmit, transition{
		capability: models.CapEditOwnApplication,
		next:       models.StatusSubmitted,
		guards:     []guard{requireDocuments},
	})
	add(one(models.StatusSubmitted), models.ActionStartScrutiny, transition{
		capability: models.CapScrutinize,
		next:       models.StatusUnderScrutiny,
	})
	add(one(models.StatusUnderScrutiny), models.ActionVerifyDocuments, transition{
		capability: models.CapScrutinize,
		next:       models.StatusForwardedToDTDO,
	})
	add([]models.Status{models.StatusSubmitted, models.StatusUnderScrutiny}, models.ActionSendBackForCorrections, transition{
		capability: models.CapScrutinize,
		next:       models.StatusSentBackForCorrections,
		guards:     []guard{requireIssues},
	})
	add([]models.Status{models.StatusForwardedToDTDO, models.StatusInspectionCompleted}, models.ActionRevertToApplicant, transition{
		capability: models.CapDistrictDecision,
		next:       models.StatusRevertedByDTDO,
		guards:     []guard{requireIssues},
	})
	add([]models.Status{models.StatusSentBackForCorrections, models.StatusRevertedByDTDO}, models.ActionResubmitCorrection, transition{
		capability: models.CapEditOwnApplication,
		guards:     []guard{requireDocuments},
	})
	// inspection_completed covers re-inspection after objections are corrected.
	add([]models.Status{models.StatusForwardedToDTDO, models.StatusInspectionCompleted}, models.ActionScheduleInspection, transition{
		capability:   models.CapDistrictDecision,
		next:         models.StatusInspectionScheduled,
		viaSubsystem: true,
	})
	add(one(models.StatusInspectionScheduled), models.ActionCancelInspection, transition{
		capability:   models.CapDistrictDecision,
		next:         models.StatusForwardedToDTDO,
		viaSubsystem: true,
	})
	add(one(models.StatusInspectionScheduled), models.ActionCompleteInspection, transition{
		capability:   models.CapInspect,
		next:         models.StatusInspectionCompleted,
		viaSubsystem: true,
	})
	add(one(models.StatusInspectionScheduled), models.ActionRaiseObjections, transition{
		capability:   models.CapInspect,
		next:         models.StatusRevertedByDTDO,
		viaSubsystem: true,
		guards:       []guard{requireIssues},
	})
	add(one(models.StatusInspectionCompleted), models.ActionVerifyForPayment, transition{
		capability: models.CapDistrictDecision,
		next:       models.StatusVerifiedForPayment,
		guards:     []guard{requireSatisfactoryInspection},
	})
	add(one(models.StatusForwardedToDTDO), models.ActionVerifyForPayment, transition{
		capability: models.CapDistrictDecision,
		next:       models.StatusVerifiedForPayment,
		guards:     []guard{requireInspectionExempt},
	})
	add(one(models.StatusVerifiedForPayment), models.ActionApprove, transition{
		capability:   models.CapDistrictDecision,
		next:         models.StatusApproved,
		viaSubsystem: true,
		guards:       []guard{requireCertificateIssuingKind, requirePayment},
	})
	add(one(models.StatusForwardedToDTDO), models.ActionApproveCancellation, transition{
		capability: models.CapDistrictDecision,
		next:       models.StatusApproved,
		guards:     []guard{requireCancellationKind},
	})
	add(reviewStates, models.ActionReject, transition{
		capability: models.CapDistrictDecision,
		next:       models.StatusRejected,
	})
	return t
}

func lookup(from models.Status, action models.Action) (transition, bool) {
	tr, ok := transitions[from][action]
	return tr, ok
}

// Targets lists every status reachable from from in one step.
func Targets(from models.Status) []models.Status {
	seen := map[models.Status]bool{}
	var out []models.Status
	for _, tr := range transitions[from] {
		targets := []models.Status{tr.next}
		if tr.next == "" {
			targets = []models.Status{
				models.StatusSubmitted, models.StatusUnderScrutiny,
				models.StatusForwardedToDTDO, models.StatusInspectionCompleted,
			}
		}
		for _, s := range targets {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// ==========================
// Guards
// ==========================

func requireDocuments(ctx context.Context, m *Machine, _ store.Tx, app *models.Application, _ Request) error {
	if m.documents == nil {
		return nil
	}
	ok, err := m.documents.HasRequiredDocuments(ctx, app.ID)
	if err != nil {
		return errors.NewDatabaseOperationError("check required documents", err)
	}
	if !ok {
		return errors.NewPreconditionNotMetError("required documents are missing")
	}
	photos, err := m.documents.PhotoCount(ctx, app.ID)
	if err != nil {
		return errors.NewDatabaseOperationError("count property photos", err)
	}
	if photos < m.cfg.MinPhotos {
		return errors.NewPreconditionNotMetError(
			fmt.Sprintf("at least %d property photos are required, found %d", m.cfg.MinPhotos, photos))
	}
	return nil
}

func requireIssues(_ context.Context, _ *Machine, _ store.Tx, _ *models.Application, req Request) error {
	for _, issue := range req.Payload.IssuesFound {
		if issue != "" {
			return nil
		}
	}
	return errors.NewPayloadValidationError("issuesFound must list at least one issue")
}

// overrideAllowed reports whether the actor may bypass an inspection
// precondition. A reason is mandatory.
func overrideAllowed(req Request) (bool, error) {
	if !req.Payload.Override {
		return false, nil
	}
	if !req.Actor.Can(models.CapOverrideInspection) {
		return false, errors.NewInvalidTransitionError("actor may not override inspection outcome")
	}
	if req.Payload.OverrideReason == "" {
		return false, errors.NewPayloadValidationError("overrideReason is required when overriding")
	}
	return true, nil
}

func requireSatisfactoryInspection(ctx context.Context, _ *Machine, tx store.Tx, app *models.Application, req Request) error {
	override, err := overrideAllowed(req)
	if err != nil || override {
		return err
	}
	report, err := tx.LatestInspectionReport(ctx, app.ID)
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.NewPreconditionNotMetError("no inspection report on file")
	}
	if err != nil {
		return errors.NewDatabaseOperationError("read inspection report", err)
	}
	if !report.OverallSatisfactory || report.Recommendation != models.RecommendApprove {
		return errors.NewPreconditionNotMetError("latest inspection report is not satisfactory")
	}
	return nil
}

func requireInspectionExempt(_ context.Context, _ *Machine, _ store.Tx, app *models.Application, req Request) error {
	if !app.Kind.RequiresInspection() {
		return nil
	}
	override, err := overrideAllowed(req)
	if err != nil {
		return err
	}
	if !override {
		return errors.NewPreconditionNotMetError(
			fmt.Sprintf("%s applications require a site inspection before payment", app.Kind))
	}
	return nil
}

func requirePayment(ctx context.Context, m *Machine, _ store.Tx, app *models.Application, _ Request) error {
	if m.payments == nil {
		return errors.NewPreconditionNotMetError("payment confirmation unavailable")
	}
	ok, err := m.payments.PaymentConfirmed(ctx, app.ID)
	if err != nil {
		if errors.CodeOf(err) == "" {
			return errors.NewPaymentGatewayUnavailableError(err)
		}
		return err
	}
	if !ok {
		return errors.NewPreconditionNotMetError("payment not confirmed")
	}
	return nil
}

func requireCertificateIssuingKind(_ context.Context, _ *Machine, _ store.Tx, app *models.Application, _ Request) error {
	if !app.Kind.IssuesCertificate() {
		return errors.NewInvalidTransitionError("cancellation applications are approved with approve_cancellation")
	}
	return nil
}

func requireCancellationKind(_ context.Context, _ *Machine, _ store.Tx, app *models.Application, _ Request) error {
	if app.Kind != models.KindCancellation {
		return errors.NewInvalidTransitionError("approve_cancellation applies to cancellation applications only")
	}
	return nil
}
