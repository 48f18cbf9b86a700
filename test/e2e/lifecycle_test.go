// test/e2e/lifecycle_test.go
package e2e

import (
	"context"
	"sync"
	"testing"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/application"
	"registration-workers/internal/registration/certificate"
	"registration-workers/internal/registration/inspection"
	"registration-workers/internal/registration/sequence"
	"registration-workers/internal/registration/statemachine"
	"registration-workers/internal/registration/store"

	applyapplicationaction "registration-workers/internal/workers/application/apply-application-action"
	createapplicationrecord "registration-workers/internal/workers/application/create-application-record"
	issuecertificate "registration-workers/internal/workers/application/issue-certificate"
	scheduleinspection "registration-workers/internal/workers/application/schedule-inspection"
	sendnotification "registration-workers/internal/workers/application/send-notification"
	submitinspectionreport "registration-workers/internal/workers/application/submit-inspection-report"
	updateapplicationdraft "registration-workers/internal/workers/application/update-application-draft"
	updateinspectionorder "registration-workers/internal/workers/application/update-inspection-order"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var (
	owner = models.Actor{ID: "owner-001", Role: models.RoleOwner}
	da    = models.Actor{ID: "da-001", Role: models.RoleDealingAssistant, District: "shimla"}
	dtdo  = models.Actor{ID: "dtdo-001", Role: models.RoleDistrictTourismOfficer, District: "shimla"}
)

type allDocuments struct{}

func (allDocuments) HasRequiredDocuments(context.Context, string) (bool, error) { return true, nil }

func (allDocuments) PhotoCount(context.Context, string) (int, error) { return 6, nil }

type settledPayments struct{}

func (settledPayments) PaymentConfirmed(context.Context, string) (bool, error) { return true, nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type sesRecorder struct{ sent []*ses.SendEmailInput }

func (s *sesRecorder) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	s.sent = append(s.sent, in)
	return &ses.SendEmailOutput{}, nil
}

type snsRecorder struct{ sent []*sns.PublishInput }

func (s *snsRecorder) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.sent = append(s.sent, in)
	return &sns.PublishOutput{}, nil
}

// workflow wires every job worker over one in-memory store, the way
// worker-manager wires them over Postgres.
type workflow struct {
	mem       *store.Memory
	publisher *recordingPublisher

	create   *createapplicationrecord.Handler
	edit     *updateapplicationdraft.Handler
	act      *applyapplicationaction.Handler
	schedule *scheduleinspection.Handler
	order    *updateinspectionorder.Handler
	report   *submitinspectionreport.Handler
	issue    *issuecertificate.Handler
}

func newWorkflow(t *testing.T) *workflow {
	mem := store.NewMemory()
	log := logger.NewTestLogger(t)
	cfg := config.WorkflowConfig{
		AllocationMaxAttempts: 5,
		MinPhotos:             5,
		CertificateValidity:   3,
		DistrictCodes:         map[string]string{"shimla": "SML"},
	}
	publisher := &recordingPublisher{}
	allocator := sequence.NewAllocator(mem, cfg.AllocationMaxAttempts, log)
	machine := statemachine.New(mem, statemachine.Config{MinPhotos: cfg.MinPhotos}, statemachine.Dependencies{
		Documents: allDocuments{},
		Payments:  settledPayments{},
		Publisher: publisher,
	}, log)
	svc := application.NewService(mem, allocator, cfg, log)
	sub := inspection.NewSubsystem(mem, machine, log)
	issuer := certificate.NewIssuer(mem, machine, allocator, cfg, log)
	worker := config.WorkerConfig{}

	return &workflow{
		mem:       mem,
		publisher: publisher,
		create:    createapplicationrecord.NewHandler(createapplicationrecord.LoadConfig(worker), svc, log),
		edit:      updateapplicationdraft.NewHandler(updateapplicationdraft.LoadConfig(worker), svc, log),
		act:       applyapplicationaction.NewHandler(applyapplicationaction.LoadConfig(worker), machine, log),
		schedule:  scheduleinspection.NewHandler(scheduleinspection.LoadConfig(worker), sub, log),
		order:     updateinspectionorder.NewHandler(updateinspectionorder.LoadConfig(worker), sub, log),
		report:    submitinspectionreport.NewHandler(submitinspectionreport.LoadConfig(worker), sub, log),
		issue:     issuecertificate.NewHandler(issuecertificate.LoadConfig(worker), issuer, nil, log),
	}
}

func (w *workflow) apply(t *testing.T, id string, action models.Action, actor models.Actor, issues ...string) string {
	t.Helper()
	in := &applyapplicationaction.Input{ApplicationID: id, Action: string(action), Actor: actor, IssuesFound: issues}
	if len(issues) > 0 {
		in.Feedback = "Please fix the listed issues"
	}
	out, err := w.act.Execute(context.Background(), in)
	require.NoError(t, err, "%s by %s", action, actor.Role)
	return out.ApplicationStatus
}

// forwarded drives a draft up to forwarded_to_dtdo.
func (w *workflow) forwarded(t *testing.T, id string) {
	t.Helper()
	assert.Equal(t, "submitted", w.apply(t, id, models.ActionSubmit, owner))
	assert.Equal(t, "under_scrutiny", w.apply(t, id, models.ActionStartScrutiny, da))
	assert.Equal(t, "forwarded_to_dtdo", w.apply(t, id, models.ActionVerifyDocuments, da))
}

func (w *workflow) inspect(t *testing.T, id, recommendation string) *submitinspectionreport.Output {
	t.Helper()
	ctx := context.Background()
	date := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")

	scheduled, err := w.schedule.Execute(ctx, &scheduleinspection.Input{
		ApplicationID:  id,
		Actor:          dtdo,
		AssignedTo:     dtdo.ID,
		InspectionDate: date,
		IdempotencyKey: "schedule-" + id + "-" + recommendation,
	})
	require.NoError(t, err)
	assert.Equal(t, "inspection_scheduled", scheduled.ApplicationStatus)

	for _, op := range []string{"acknowledge", "start"} {
		_, err := w.order.Execute(ctx, &updateinspectionorder.Input{OrderID: scheduled.InspectionOrderID, Operation: op, Actor: dtdo})
		require.NoError(t, err, op)
	}

	report, err := w.report.Execute(ctx, &submitinspectionreport.Input{
		OrderID:                scheduled.InspectionOrderID,
		Actor:                  dtdo,
		ActualInspectionDate:   date,
		RoomCountVerified:      recommendation == "approve",
		CategoryMeetsStandards: recommendation == "approve",
		OverallSatisfactory:    recommendation == "approve",
		Recommendation:         recommendation,
		DetailedFindings:       "Site visit findings",
	})
	require.NoError(t, err)
	return report
}

// ==========================
// Lifecycle Tests
// ==========================

func TestLifecycle_NewRegistrationToCertificate(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	created, err := w.create.Execute(ctx, &createapplicationrecord.Input{
		Actor:    owner,
		Kind:     string(models.KindNewRegistration),
		District: "shimla",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^NR-\d{4}-SML-000001$`, created.ApplicationNumber)
	id := created.ApplicationID

	name, rooms, page := "Deodar Homestay", 4, 4
	_, err = w.edit.Execute(ctx, &updateapplicationdraft.Input{
		ApplicationID: id,
		Actor:         owner,
		Changes:       application.DraftUpdate{PropertyName: &name, RoomCount: &rooms, CurrentPage: &page},
	})
	require.NoError(t, err)

	w.forwarded(t, id)
	report := w.inspect(t, id, "approve")
	assert.Equal(t, "inspection_completed", report.ApplicationStatus)

	assert.Equal(t, "verified_for_payment", w.apply(t, id, models.ActionVerifyForPayment, dtdo))

	cert, err := w.issue.Execute(ctx, &issuecertificate.Input{ApplicationID: id, Actor: dtdo, IdempotencyKey: "issue-1"})
	require.NoError(t, err)
	assert.Regexp(t, `^RC-\d{4}-SML-000001$`, cert.CertificateNumber)
	assert.Equal(t, "approved", cert.ApplicationStatus)

	app, err := w.mem.GetApplication(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, app.Status)
	assert.Equal(t, "Deodar Homestay", app.PropertyName)
	require.NotNil(t, app.CertificateIssuedDate)

	assert.Equal(t, []models.EventType{
		models.EventApplicationSubmitted,
		models.EventInspectionScheduled,
		models.EventApproved,
	}, w.publisher.types())

	history, err := w.mem.History(ctx, id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(history), 9)
}

func TestLifecycle_ObjectionsThenCorrection(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	created, err := w.create.Execute(ctx, &createapplicationrecord.Input{
		Actor:    owner,
		Kind:     string(models.KindNewRegistration),
		District: "shimla",
	})
	require.NoError(t, err)
	id := created.ApplicationID

	w.forwarded(t, id)
	report := w.inspect(t, id, "raise_objections")
	assert.Equal(t, "reverted_by_dtdo", report.ApplicationStatus)
	assert.NotEmpty(t, report.IssuesFound)

	// The correction returns to the point the objection was raised from.
	assert.Equal(t, "inspection_completed", w.apply(t, id, models.ActionResubmitCorrection, owner))

	// The only report on file is unsatisfactory, so payment waits for a re-inspection.
	_, err = w.act.Execute(ctx, &applyapplicationaction.Input{
		ApplicationID: id, Action: string(models.ActionVerifyForPayment), Actor: dtdo,
	})
	require.Error(t, err)

	report = w.inspect(t, id, "approve")
	assert.Equal(t, "inspection_completed", report.ApplicationStatus)

	out, err := w.act.Execute(ctx, &applyapplicationaction.Input{
		ApplicationID: id, Action: string(models.ActionVerifyForPayment), Actor: dtdo,
	})
	require.NoError(t, err)
	assert.Equal(t, "verified_for_payment", out.ApplicationStatus)

	_, err = w.issue.Execute(ctx, &issuecertificate.Input{ApplicationID: id, Actor: dtdo, IdempotencyKey: "issue-2"})
	require.NoError(t, err)

	assert.Equal(t, []models.EventType{
		models.EventApplicationSubmitted,
		models.EventInspectionScheduled,
		models.EventSentBackForCorrections,
		models.EventApplicationSubmitted,
		models.EventInspectionScheduled,
		models.EventApproved,
	}, w.publisher.types())
}

func TestLifecycle_RenewalSupersedesParent(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	parent, err := w.create.Execute(ctx, &createapplicationrecord.Input{
		Actor: owner, Kind: string(models.KindNewRegistration), District: "shimla",
	})
	require.NoError(t, err)
	w.forwarded(t, parent.ApplicationID)
	w.inspect(t, parent.ApplicationID, "approve")
	w.apply(t, parent.ApplicationID, models.ActionVerifyForPayment, dtdo)
	_, err = w.issue.Execute(ctx, &issuecertificate.Input{ApplicationID: parent.ApplicationID, Actor: dtdo, IdempotencyKey: "issue-parent"})
	require.NoError(t, err)

	renewal, err := w.create.Execute(ctx, &createapplicationrecord.Input{
		Actor:               owner,
		Kind:                string(models.KindRenewal),
		ParentApplicationID: parent.ApplicationID,
		District:            "shimla",
	})
	require.NoError(t, err)
	assert.Regexp(t, `-SML-000002$`, renewal.ApplicationNumber)

	// Renewals skip the site visit.
	w.forwarded(t, renewal.ApplicationID)
	assert.Equal(t, "verified_for_payment", w.apply(t, renewal.ApplicationID, models.ActionVerifyForPayment, dtdo))

	cert, err := w.issue.Execute(ctx, &issuecertificate.Input{ApplicationID: renewal.ApplicationID, Actor: dtdo, IdempotencyKey: "issue-renewal"})
	require.NoError(t, err)
	assert.Regexp(t, `-SML-000002$`, cert.CertificateNumber)

	old, err := w.mem.GetApplication(ctx, parent.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuperseded, old.Status)
	assert.Len(t, w.mem.Certificates(), 2)
}

func TestLifecycle_EventsDriveNotifications(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	created, err := w.create.Execute(ctx, &createapplicationrecord.Input{
		Actor: owner, Kind: string(models.KindNewRegistration), District: "shimla",
	})
	require.NoError(t, err)
	id := created.ApplicationID
	w.apply(t, id, models.ActionSubmit, owner)
	w.apply(t, id, models.ActionStartScrutiny, da)
	w.apply(t, id, models.ActionSendBackForCorrections, da, "affidavit_section_29 unsigned")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mailer := &sesRecorder{}
	notifier := sendnotification.NewHandler(&sendnotification.Config{
		EmailEnabled: true,
		FromEmail:    "noreply@himachaltourism.gov.in",
		Timeout:      5 * time.Second,
	}, db, mailer, &snsRecorder{}, logger.NewTestLogger(t))

	for _, ev := range w.publisher.events {
		mock.ExpectQuery(`SELECT email, phone FROM users WHERE id = \$1`).
			WithArgs(owner.ID).
			WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).AddRow("owner@example.com", nil))

		out, err := notifier.Execute(ctx, &sendnotification.Input{
			EventType:         string(ev.Type),
			ApplicationID:     ev.ApplicationID,
			ApplicationNumber: ev.ApplicationNumber,
			OwnerUserID:       ev.OwnerUserID,
			Status:            string(ev.Status),
			CorrectionNotes:   ev.CorrectionNotes,
			IssuesFound:       ev.IssuesFound,
		})
		require.NoError(t, err, ev.Type)
		assert.Equal(t, "sent", out.Status)
	}

	require.Len(t, mailer.sent, 2)
	assert.Contains(t, *mailer.sent[1].Message.Body.Text.Data, "affidavit_section_29 unsigned")
	assert.NoError(t, mock.ExpectationsWereMet())
}
