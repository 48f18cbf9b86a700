package certificate

import (
	"context"
	"sync"
	"testing"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/inspection"
	"registration-workers/internal/registration/sequence"
	"registration-workers/internal/registration/statemachine"
	"registration-workers/internal/registration/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var dtdo = models.Actor{ID: "dtdo-1", Role: models.RoleDistrictTourismOfficer, District: "shimla"}

type togglePayments struct {
	mu        sync.Mutex
	confirmed bool
}

func (p *togglePayments) PaymentConfirmed(context.Context, string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmed, nil
}

func (p *togglePayments) set(v bool) {
	p.mu.Lock()
	p.confirmed = v
	p.mu.Unlock()
}

// lookupBarrier holds the first n certificate lookups until all n have
// arrived, so concurrent issuers all miss the existing certificate.
type lookupBarrier struct {
	*store.Memory
	mu      sync.Mutex
	waiting int
	release chan struct{}
}

func newLookupBarrier(mem *store.Memory, n int) *lookupBarrier {
	return &lookupBarrier{Memory: mem, waiting: n, release: make(chan struct{})}
}

func (b *lookupBarrier) CertificateForApplication(ctx context.Context, applicationID string) (*models.Certificate, error) {
	b.mu.Lock()
	if b.waiting > 0 {
		b.waiting--
		cert, err := b.Memory.CertificateForApplication(ctx, applicationID)
		if b.waiting == 0 {
			close(b.release)
		}
		b.mu.Unlock()
		<-b.release
		return cert, err
	}
	b.mu.Unlock()
	return b.Memory.CertificateForApplication(ctx, applicationID)
}

type fixture struct {
	mem        *store.Memory
	machine    *statemachine.Machine
	inspection *inspection.Subsystem
	issuer     *Issuer
	payments   *togglePayments
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{mem: store.NewMemory(), payments: &togglePayments{confirmed: true}}
	cfg := config.WorkflowConfig{
		CertificateValidity:   3,
		AllocationMaxAttempts: 10,
		DistrictCodes:         map[string]string{"shimla": "SML"},
	}
	log := logger.NewTestLogger(t)
	f.machine = statemachine.New(f.mem, statemachine.Config{MinPhotos: 5}, statemachine.Dependencies{Payments: f.payments}, log)
	f.inspection = inspection.NewSubsystem(f.mem, f.machine, log)
	f.issuer = NewIssuer(f.mem, f.machine, sequence.NewAllocator(f.mem, cfg.AllocationMaxAttempts, log), cfg, log)
	f.issuer.now = func() time.Time { return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) seed(t *testing.T, id string, serial int64, kind models.Kind, status models.Status, parent string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.mem.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertApplication(ctx, &models.Application{
			ID: id, ApplicationNumber: "APP-" + id, Serial: serial, Kind: kind,
			ParentApplicationID: parent, OwnerUserID: "owner-1", District: "shimla",
			PropertyFacts: models.PropertyFacts{PropertyName: "Pine View", OwnerName: "A. Thakur", RoomCount: 6, Category: "gold"},
			Status:        status, Version: 1, CreatedAt: now, UpdatedAt: now,
		})
	}))
}

func (f *fixture) status(t *testing.T, id string) models.Status {
	t.Helper()
	app, err := f.mem.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app.Status
}

// ==========================
// Issue Tests
// ==========================

func TestIssue_FullInspectionToCertificateFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "app-1", 1, models.KindNewRegistration, models.StatusForwardedToDTDO, "")

	order, err := f.inspection.Schedule(ctx, inspection.ScheduleRequest{
		ApplicationID: "app-1", AssignedTo: dtdo.ID, ScheduledBy: dtdo,
		InspectionDate: time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, res, err := f.inspection.SubmitReport(ctx, order.ID, dtdo, inspection.ReportInput{
		RoomCountVerified: true, CategoryMeetsStandards: true, OverallSatisfactory: true,
		Recommendation: models.RecommendApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInspectionCompleted, res.Status)

	_, err = f.machine.Apply(ctx, statemachine.Request{ApplicationID: "app-1", Action: models.ActionVerifyForPayment, Actor: dtdo})
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerifiedForPayment, f.status(t, "app-1"))

	cert, err := f.issuer.Issue(ctx, "app-1", dtdo, "")
	require.NoError(t, err)
	assert.Equal(t, "RC-2026-SML-000001", cert.CertificateNumber)
	assert.Equal(t, "app-1", cert.ApplicationID)
	assert.Equal(t, dtdo.ID, cert.IssuedBy)
	assert.Equal(t, "Pine View", cert.PropertyName)
	assert.Equal(t, 6, cert.RoomCount)
	assert.Equal(t, time.Date(2029, 1, 15, 10, 0, 0, 0, time.UTC), cert.ValidUpto)

	app, err := f.mem.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, app.Status)
	require.NotNil(t, app.CertificateIssuedDate)
	assert.True(t, app.CertificateIssuedDate.Equal(cert.IssuedAt))

	certs := f.mem.Certificates()
	require.Len(t, certs, 1)
	assert.Equal(t, "app-1", certs[0].ApplicationID)
}

func TestIssue_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "app-1", 1, models.KindNewRegistration, models.StatusVerifiedForPayment, "")

	first, err := f.issuer.Issue(context.Background(), "app-1", dtdo, "")
	require.NoError(t, err)
	second, err := f.issuer.Issue(context.Background(), "app-1", dtdo, "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CertificateNumber, second.CertificateNumber)
	assert.Len(t, f.mem.Certificates(), 1)
}

func TestIssue_UsesCertificateSeed(t *testing.T) {
	f := newFixture(t)
	f.mem.SetSetting(store.SettingCertificateSerialSeed, "1200")
	f.seed(t, "app-1", 1, models.KindNewRegistration, models.StatusVerifiedForPayment, "")
	f.seed(t, "app-2", 2, models.KindNewRegistration, models.StatusVerifiedForPayment, "")

	a, err := f.issuer.Issue(context.Background(), "app-1", dtdo, "")
	require.NoError(t, err)
	b, err := f.issuer.Issue(context.Background(), "app-2", dtdo, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1200), a.Serial)
	assert.Equal(t, int64(1201), b.Serial)
	assert.Equal(t, "RC-2026-SML-001201", b.CertificateNumber)
}

func TestIssue_ConcurrentIssuersGetDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	ids := []string{"a", "b", "c", "d"}
	for n, id := range ids {
		f.seed(t, id, int64(n+1), models.KindNewRegistration, models.StatusVerifiedForPayment, "")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for n, id := range ids {
		wg.Add(1)
		go func(n int, id string) {
			defer wg.Done()
			_, errs[n] = f.issuer.Issue(context.Background(), id, dtdo, "")
		}(n, id)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	numbers := map[string]bool{}
	for _, c := range f.mem.Certificates() {
		assert.False(t, numbers[c.CertificateNumber], c.CertificateNumber)
		numbers[c.CertificateNumber] = true
	}
	assert.Len(t, numbers, len(ids))
}

func TestIssue_ConcurrentCallsForOneApplicationShareCertificate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "app-1", 1, models.KindNewRegistration, models.StatusVerifiedForPayment, "")

	cfg := config.WorkflowConfig{CertificateValidity: 3, AllocationMaxAttempts: 10, DistrictCodes: map[string]string{"shimla": "SML"}}
	log := logger.NewTestLogger(t)
	issuer := NewIssuer(newLookupBarrier(f.mem, 2), f.machine, sequence.NewAllocator(f.mem, cfg.AllocationMaxAttempts, log), cfg, log)

	keys := []string{"job-101", "job-202"}
	certs := make([]*models.Certificate, len(keys))
	errs := make([]error, len(keys))
	var wg sync.WaitGroup
	for n, key := range keys {
		wg.Add(1)
		go func(n int, key string) {
			defer wg.Done()
			certs[n], errs[n] = issuer.Issue(context.Background(), "app-1", dtdo, key)
		}(n, key)
	}
	wg.Wait()

	for n := range keys {
		require.NoError(t, errs[n])
		require.NotNil(t, certs[n])
	}
	assert.Equal(t, certs[0].ID, certs[1].ID)
	assert.Len(t, f.mem.Certificates(), 1)
	assert.Equal(t, models.StatusApproved, f.status(t, "app-1"))
}

func TestIssue_Preconditions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "scrutiny", 1, models.KindNewRegistration, models.StatusUnderScrutiny, "")
	f.seed(t, "unpaid", 2, models.KindNewRegistration, models.StatusVerifiedForPayment, "")

	_, err := f.issuer.Issue(context.Background(), "scrutiny", dtdo, "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))

	f.payments.set(false)
	_, err = f.issuer.Issue(context.Background(), "unpaid", dtdo, "")
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionNotMet))
	assert.Equal(t, models.StatusVerifiedForPayment, f.status(t, "unpaid"))
	assert.Empty(t, f.mem.Certificates())

	_, err = f.issuer.Issue(context.Background(), "ghost", dtdo, "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeApplicationNotFound))
}

func TestIssue_RenewalSupersedesParent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "parent", 1, models.KindNewRegistration, models.StatusApproved, "")
	f.seed(t, "renewal", 2, models.KindRenewal, models.StatusVerifiedForPayment, "parent")

	_, err := f.issuer.Issue(context.Background(), "renewal", dtdo, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, f.status(t, "renewal"))
	assert.Equal(t, models.StatusSuperseded, f.status(t, "parent"))
}

func TestIssue_IdempotencyKeyReplayReturnsCertificate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "app-1", 1, models.KindNewRegistration, models.StatusVerifiedForPayment, "")

	first, err := f.issuer.Issue(context.Background(), "app-1", dtdo, "job-7")
	require.NoError(t, err)
	again, err := f.issuer.Issue(context.Background(), "app-1", dtdo, "job-7")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}
