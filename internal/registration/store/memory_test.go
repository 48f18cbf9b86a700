package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"registration-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draft(id string, serial int64, owner string, kind models.Kind, parent string) *models.Application {
	now := time.Now().UTC()
	return &models.Application{
		ID:                  id,
		ApplicationNumber:   "NR-2025-SML-" + id,
		Serial:              serial,
		Kind:                kind,
		ParentApplicationID: parent,
		OwnerUserID:         owner,
		District:            "shimla",
		Status:              models.StatusDraft,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func insert(t *testing.T, m *Memory, app *models.Application) error {
	t.Helper()
	return m.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertApplication(ctx, app)
	})
}

func TestMemory_InsertEnforcesSerialAndActiveSlot(t *testing.T) {
	m := NewMemory()
	require.NoError(t, insert(t, m, draft("a1", 1, "u1", models.KindNewRegistration, "")))

	err := insert(t, m, draft("a2", 1, "u2", models.KindNewRegistration, ""))
	assert.ErrorIs(t, err, ErrSerialTaken)

	err = insert(t, m, draft("a3", 2, "u1", models.KindNewRegistration, ""))
	assert.ErrorIs(t, err, ErrActiveDuplicate)

	active, err := m.FindActive(context.Background(), models.ActiveKey{OwnerUserID: "u1", Kind: models.KindNewRegistration})
	require.NoError(t, err)
	assert.Equal(t, "a1", active.ID)
}

func TestMemory_TerminalFreesActiveSlot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, insert(t, m, draft("a1", 1, "u1", models.KindNewRegistration, "")))

	err := m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		app, err := tx.LockApplication(ctx, "a1")
		if err != nil {
			return err
		}
		app.Status = models.StatusRejected
		return tx.UpdateApplication(ctx, app)
	})
	require.NoError(t, err)

	assert.NoError(t, insert(t, m, draft("a2", 2, "u1", models.KindNewRegistration, "")))
}

func TestMemory_RollbackRestoresState(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, insert(t, m, draft("a1", 1, "u1", models.KindNewRegistration, "")))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		app, _ := tx.LockApplication(ctx, "a1")
		app.Status = models.StatusSubmitted
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		if err := tx.AppendAction(ctx, &models.ApplicationAction{ID: "x", ApplicationID: "a1", ToStatus: models.StatusSubmitted}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	app, err := m.GetApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, app.Status)
	assert.Equal(t, int64(1), app.Version)
	history, _ := m.History(ctx, "a1")
	assert.Empty(t, history)
}

func TestMemory_UpdateRequiresCurrentVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, insert(t, m, draft("a1", 1, "u1", models.KindNewRegistration, "")))

	stale, err := m.GetApplication(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		app, _ := tx.LockApplication(ctx, "a1")
		app.CurrentPage = 2
		return tx.UpdateApplication(ctx, app)
	}))

	err = m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		stale.CurrentPage = 9
		return tx.UpdateApplication(ctx, stale)
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMemory_ActionsAndIdempotencyKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, insert(t, m, draft("a1", 1, "u1", models.KindNewRegistration, "")))

	appendAction := func(id, key string) error {
		return m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.AppendAction(ctx, &models.ApplicationAction{
				ID: id, ApplicationID: "a1", ActionKind: models.LogSubmitted, ToStatus: models.StatusSubmitted, IdempotencyKey: key,
			})
		})
	}
	require.NoError(t, appendAction("x1", "k1"))
	assert.ErrorIs(t, appendAction("x2", "k1"), ErrDuplicateAction)
	require.NoError(t, appendAction("x3", ""))
	require.NoError(t, appendAction("x4", ""))

	history, err := m.History(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "x4", history[0].ID)
	assert.Equal(t, "x1", history[2].ID)

	found, err := m.FindActionByKey(ctx, "a1", models.LogSubmitted, "k1")
	require.NoError(t, err)
	assert.Equal(t, "x1", found.ID)

	err = m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AppendAction(ctx, &models.ApplicationAction{ID: "y", ApplicationID: "ghost", ToStatus: models.StatusDraft})
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_DeleteCascadesActions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, insert(t, m, draft("a1", 1, "u1", models.KindNewRegistration, "")))
	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.AppendAction(ctx, &models.ApplicationAction{ID: "x", ApplicationID: "a1", ToStatus: models.StatusDraft}); err != nil {
			return err
		}
		return tx.DeleteApplication(ctx, "a1")
	}))

	_, err := m.GetApplication(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
	history, _ := m.History(ctx, "a1")
	assert.Empty(t, history)
}

func TestMemory_InspectionOrdersAndReports(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, insert(t, m, draft("a1", 1, "u1", models.KindNewRegistration, "")))

	order := func(id string) *models.InspectionOrder {
		return &models.InspectionOrder{ID: id, ApplicationID: "a1", Status: models.OrderScheduled}
	}
	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertInspectionOrder(ctx, order("o1"))
	}))
	err := m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertInspectionOrder(ctx, order("o2"))
	})
	assert.ErrorIs(t, err, ErrActiveOrderExists)

	report := &models.InspectionReport{ID: "r1", InspectionOrderID: "o1", ApplicationID: "a1", CreatedAt: time.Now()}
	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockInspectionOrder(ctx, "o1")
		if err != nil {
			return err
		}
		o.Status = models.OrderCompleted
		if err := tx.UpdateInspectionOrder(ctx, o); err != nil {
			return err
		}
		return tx.InsertInspectionReport(ctx, report)
	}))
	err = m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertInspectionReport(ctx, report)
	})
	assert.ErrorIs(t, err, ErrReportExists)

	_, err = m.ActiveInspectionOrder(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
	latest, err := m.LatestInspectionReport(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "r1", latest.ID)

	// Completed order no longer blocks a new one.
	assert.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertInspectionOrder(ctx, order("o3"))
	}))
}

func TestMemory_ListStaleDrafts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	old := draft("a1", 1, "u1", models.KindNewRegistration, "")
	old.UpdatedAt = time.Now().Add(-90 * 24 * time.Hour)
	require.NoError(t, insert(t, m, old))
	require.NoError(t, insert(t, m, draft("a2", 2, "u2", models.KindNewRegistration, "")))

	stale, err := m.ListStaleDrafts(ctx, time.Now().Add(-30*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "a1", stale[0].ID)
}
