package inspection

import (
	"context"
	"testing"
	"time"

	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/statemachine"
	"registration-workers/internal/registration/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var (
	dtdo      = models.Actor{ID: "dtdo-1", Role: models.RoleDistrictTourismOfficer, District: "shimla"}
	otherDTDO = models.Actor{ID: "dtdo-2", Role: models.RoleDistrictTourismOfficer, District: "shimla"}
	da        = models.Actor{ID: "da-1", Role: models.RoleDealingAssistant, District: "shimla"}
	admin     = models.Actor{ID: "admin-1", Role: models.RoleStateAdmin}
)

type alwaysPaid struct{}

func (alwaysPaid) PaymentConfirmed(context.Context, string) (bool, error) { return true, nil }

func newSubsystem(t *testing.T) (*Subsystem, *store.Memory) {
	mem := store.NewMemory()
	machine := statemachine.New(mem, statemachine.Config{MinPhotos: 5}, statemachine.Dependencies{
		Payments: alwaysPaid{},
	}, logger.NewTestLogger(t))
	return NewSubsystem(mem, machine, logger.NewTestLogger(t)), mem
}

func seedForwarded(t *testing.T, mem *store.Memory, id string, serial int64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, mem.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertApplication(ctx, &models.Application{
			ID: id, ApplicationNumber: "NR-" + id, Serial: serial,
			Kind: models.KindNewRegistration, OwnerUserID: "owner-" + id, District: "shimla",
			PropertyFacts: models.PropertyFacts{Address: "Mall Road, Shimla"},
			Status:        models.StatusForwardedToDTDO, Version: 1, CreatedAt: now, UpdatedAt: now,
		})
	}))
}

func inspectionDate() time.Time {
	return time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC)
}

func schedule(t *testing.T, sub *Subsystem, appID string) *models.InspectionOrder {
	t.Helper()
	order, err := sub.Schedule(context.Background(), ScheduleRequest{
		ApplicationID:  appID,
		AssignedTo:     dtdo.ID,
		InspectionDate: inspectionDate(),
		ScheduledBy:    dtdo,
	})
	require.NoError(t, err)
	return order
}

func statusOf(t *testing.T, mem *store.Memory, id string) models.Status {
	t.Helper()
	app, err := mem.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app.Status
}

// ==========================
// Schedule Tests
// ==========================

func TestSchedule_CreatesOrderAndMovesApplication(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)

	order := schedule(t, sub, "app-1")
	assert.Equal(t, models.OrderScheduled, order.Status)
	assert.Equal(t, "Mall Road, Shimla", order.InspectionAddress)

	app, err := mem.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInspectionScheduled, app.Status)
	require.NotNil(t, app.InspectionDate)
	assert.True(t, app.InspectionDate.Equal(inspectionDate()))

	history, err := mem.History(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.LogInspectionScheduled, history[0].ActionKind)
}

func TestSchedule_RejectsSecondActiveOrder(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	first := schedule(t, sub, "app-1")

	_, err := sub.Schedule(context.Background(), ScheduleRequest{
		ApplicationID: "app-1", AssignedTo: dtdo.ID, InspectionDate: inspectionDate(), ScheduledBy: dtdo,
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateActiveOrder))
	assert.Equal(t, first.ID, errors.AsStandard(err).Metadata["activeOrderId"])
}

func TestSchedule_IdempotentRetryReturnsExistingOrder(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	req := ScheduleRequest{
		ApplicationID: "app-1", AssignedTo: dtdo.ID, InspectionDate: inspectionDate(),
		ScheduledBy: dtdo, IdempotencyKey: "job-42",
	}

	first, err := sub.Schedule(context.Background(), req)
	require.NoError(t, err)
	again, err := sub.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestSchedule_Validation(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)

	_, err := sub.Schedule(context.Background(), ScheduleRequest{ApplicationID: "app-1", InspectionDate: inspectionDate(), ScheduledBy: dtdo})
	assert.True(t, errors.HasCode(err, errors.ErrCodePayloadValidationFailed))

	_, err = sub.Schedule(context.Background(), ScheduleRequest{ApplicationID: "app-1", AssignedTo: dtdo.ID, ScheduledBy: dtdo})
	assert.True(t, errors.HasCode(err, errors.ErrCodePayloadValidationFailed))

	_, err = sub.Schedule(context.Background(), ScheduleRequest{
		ApplicationID: "app-1", AssignedTo: dtdo.ID, InspectionDate: inspectionDate(), ScheduledBy: da,
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))
	assert.Equal(t, models.StatusForwardedToDTDO, statusOf(t, mem, "app-1"))
}

// ==========================
// Order Progress Tests
// ==========================

func TestAcknowledgeAndStart(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	order := schedule(t, sub, "app-1")
	ctx := context.Background()

	_, err := sub.Acknowledge(ctx, order.ID, otherDTDO)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))

	acked, err := sub.Acknowledge(ctx, order.ID, dtdo)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAcknowledged, acked.Status)

	_, err = sub.Acknowledge(ctx, order.ID, dtdo)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))

	started, err := sub.Start(ctx, order.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.OrderInProgress, started.Status)

	assert.Equal(t, models.StatusInspectionScheduled, statusOf(t, mem, "app-1"))
	history, err := mem.History(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.LogInspectionStarted, history[0].ActionKind)
	assert.Equal(t, models.LogInspectionAcknowledged, history[1].ActionKind)
	assert.False(t, history[0].ChangedStatus())

	_, err = sub.Acknowledge(ctx, "missing", dtdo)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInspectionOrderMissing))
}

func TestCancel_ReturnsApplicationToDTDO(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	order := schedule(t, sub, "app-1")
	ctx := context.Background()

	cancelled, err := sub.Cancel(ctx, order.ID, dtdo, "owner unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	app, err := mem.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusForwardedToDTDO, app.Status)
	assert.Nil(t, app.InspectionDate)

	// A fresh order can be opened once the first is closed.
	second := schedule(t, sub, "app-1")
	assert.NotEqual(t, order.ID, second.ID)
}

// ==========================
// Report Tests
// ==========================

func TestSubmitReport_ObjectionsRouteToCorrection(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	order := schedule(t, sub, "app-1")
	assert.Equal(t, models.StatusInspectionScheduled, statusOf(t, mem, "app-1"))

	report, res, err := sub.SubmitReport(context.Background(), order.ID, dtdo, ReportInput{
		RoomCountVerified:      false,
		CategoryMeetsStandards: true,
		OverallSatisfactory:    false,
		Recommendation:         models.RecommendRaiseObjections,
		DetailedFindings:       "Two rooms lack attached bathrooms",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevertedByDTDO, res.Status)
	assert.True(t, report.ActualInspectionDate.Equal(inspectionDate()))

	app := res.Application
	assert.True(t, app.Status.IsCorrection())
	assert.Equal(t, "Two rooms lack attached bathrooms", app.CorrectionNotes)
	assert.Equal(t, []string{"room count could not be verified", "overall inspection not satisfactory"}, app.CorrectionIssues)
	assert.Equal(t, models.StatusInspectionCompleted, app.RevertedFromState)

	stored, err := mem.GetInspectionOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, stored.Status)
}

func TestSubmitReport_ObjectionsWithoutFailedChecksStillCarryAnIssue(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	order := schedule(t, sub, "app-1")

	_, res, err := sub.SubmitReport(context.Background(), order.ID, dtdo, ReportInput{
		RoomCountVerified: true, CategoryMeetsStandards: true, OverallSatisfactory: true,
		Recommendation: models.RecommendRaiseObjections,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"objections raised during site inspection"}, res.Application.CorrectionIssues)
}

func TestSubmitReport_ApproveCompletesInspection(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	order := schedule(t, sub, "app-1")

	_, res, err := sub.SubmitReport(context.Background(), order.ID, dtdo, ReportInput{
		RoomCountVerified: true, CategoryMeetsStandards: true, OverallSatisfactory: true,
		Recommendation: models.RecommendApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInspectionCompleted, res.Status)

	latest, err := mem.LatestInspectionReport(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, latest.OverallSatisfactory)
}

func TestSubmitReport_SecondReportRejected(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	order := schedule(t, sub, "app-1")
	in := ReportInput{RoomCountVerified: true, CategoryMeetsStandards: true, OverallSatisfactory: true, Recommendation: models.RecommendApprove}

	_, _, err := sub.SubmitReport(context.Background(), order.ID, dtdo, in)
	require.NoError(t, err)

	_, _, err = sub.SubmitReport(context.Background(), order.ID, dtdo, in)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateReport))
}

func TestSubmitReport_RepeatWithSameKeyReturnsStoredReport(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	order := schedule(t, sub, "app-1")
	in := ReportInput{
		RoomCountVerified: false, CategoryMeetsStandards: true, OverallSatisfactory: false,
		Recommendation: models.RecommendRaiseObjections, IdempotencyKey: "job-7",
	}

	first, res, err := sub.SubmitReport(context.Background(), order.ID, dtdo, in)
	require.NoError(t, err)
	require.False(t, res.Replayed)

	again, res, err := sub.SubmitReport(context.Background(), order.ID, dtdo, in)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.StatusRevertedByDTDO, res.Status)

	history, err := mem.History(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	in.IdempotencyKey = "job-8"
	_, _, err = sub.SubmitReport(context.Background(), order.ID, dtdo, in)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateReport))
}

func TestReinspection_AfterCorrectedObjections(t *testing.T) {
	sub, mem := newSubsystem(t)
	base := time.Now().UTC()
	var tick time.Duration
	sub.now = func() time.Time {
		tick += time.Second
		return base.Add(tick)
	}
	seedForwarded(t, mem, "app-1", 1)
	owner := models.Actor{ID: "owner-app-1", Role: models.RoleOwner}

	first := schedule(t, sub, "app-1")
	_, _, err := sub.SubmitReport(context.Background(), first.ID, dtdo, ReportInput{
		RoomCountVerified: true, CategoryMeetsStandards: false, OverallSatisfactory: false,
		Recommendation: models.RecommendRaiseObjections,
	})
	require.NoError(t, err)

	res, err := sub.machine.Apply(context.Background(), statemachine.Request{
		ApplicationID: "app-1", Action: models.ActionResubmitCorrection, Actor: owner,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusInspectionCompleted, res.Status)

	second := schedule(t, sub, "app-1")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.StatusInspectionScheduled, statusOf(t, mem, "app-1"))

	_, res, err = sub.SubmitReport(context.Background(), second.ID, dtdo, ReportInput{
		RoomCountVerified: true, CategoryMeetsStandards: true, OverallSatisfactory: true,
		Recommendation: models.RecommendApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInspectionCompleted, res.Status)

	res, err = sub.machine.Apply(context.Background(), statemachine.Request{
		ApplicationID: "app-1", Action: models.ActionVerifyForPayment, Actor: dtdo,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerifiedForPayment, res.Status)
}

func TestSubmitReport_Validation(t *testing.T) {
	sub, mem := newSubsystem(t)
	seedForwarded(t, mem, "app-1", 1)
	order := schedule(t, sub, "app-1")

	_, _, err := sub.SubmitReport(context.Background(), order.ID, dtdo, ReportInput{Recommendation: "maybe"})
	assert.True(t, errors.HasCode(err, errors.ErrCodePayloadValidationFailed))

	_, _, err = sub.SubmitReport(context.Background(), order.ID, otherDTDO, ReportInput{Recommendation: models.RecommendApprove})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))

	_, _, err = sub.SubmitReport(context.Background(), "missing", dtdo, ReportInput{Recommendation: models.RecommendApprove})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInspectionOrderMissing))

	assert.Equal(t, models.StatusInspectionScheduled, statusOf(t, mem, "app-1"))
}
