// internal/workers/application/schedule-inspection/handler_test.go
package scheduleinspection

import (
	"context"
	"testing"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/inspection"
	"registration-workers/internal/registration/statemachine"
	"registration-workers/internal/registration/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var dtdo = models.Actor{ID: "dtdo-001", Role: models.RoleDistrictTourismOfficer, District: "shimla"}

func createTestHandler(t *testing.T) (*Handler, *store.Memory) {
	mem := store.NewMemory()
	now := time.Now().UTC()
	require.NoError(t, mem.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertApplication(ctx, &models.Application{
			ID: "app-001", ApplicationNumber: "NR-2025-SML-000001", Serial: 1,
			Kind: models.KindNewRegistration, OwnerUserID: "owner-001", District: "shimla",
			PropertyFacts: models.PropertyFacts{Address: "The Ridge, Shimla"},
			Status:        models.StatusForwardedToDTDO, Version: 1, CreatedAt: now, UpdatedAt: now,
		})
	}))

	log := logger.NewTestLogger(t)
	machine := statemachine.New(mem, statemachine.Config{MinPhotos: 5}, statemachine.Dependencies{}, log)
	return NewHandler(LoadConfig(config.WorkerConfig{}), inspection.NewSubsystem(mem, machine, log), log), mem
}

func createTestInput(key string) *Input {
	return &Input{
		ApplicationID:  "app-001",
		Actor:          dtdo,
		AssignedTo:     "dtdo-001",
		InspectionDate: "2025-12-30",
		IdempotencyKey: key,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	handler, mem := createTestHandler(t)

	output, err := handler.Execute(context.Background(), createTestInput("job-1"))
	require.NoError(t, err)

	assert.NotEmpty(t, output.InspectionOrderID)
	assert.Equal(t, "scheduled", output.OrderStatus)
	assert.Equal(t, "2025-12-30T00:00:00Z", output.InspectionDate)
	assert.Equal(t, "inspection_scheduled", output.ApplicationStatus)

	order, err := mem.ActiveInspectionOrder(context.Background(), "app-001")
	require.NoError(t, err)
	assert.Equal(t, output.InspectionOrderID, order.ID)
	assert.Equal(t, "The Ridge, Shimla", order.InspectionAddress)
}

func TestHandler_Execute_RetryReturnsSameOrder(t *testing.T) {
	handler, _ := createTestHandler(t)

	first, err := handler.Execute(context.Background(), createTestInput("job-1"))
	require.NoError(t, err)
	again, err := handler.Execute(context.Background(), createTestInput("job-1"))
	require.NoError(t, err)
	assert.Equal(t, first.InspectionOrderID, again.InspectionOrderID)
}

func TestHandler_Execute_SecondActiveOrderRejected(t *testing.T) {
	handler, _ := createTestHandler(t)

	first, err := handler.Execute(context.Background(), createTestInput("job-1"))
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), createTestInput("job-2"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateActiveOrder))
	assert.Equal(t, first.InspectionOrderID, errors.AsStandard(err).Metadata["activeOrderId"])
}

// ==========================
// Validation Tests
// ==========================

func TestHandler_Execute_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		code   errors.ErrorCode
	}{
		{"missing inspector", func(in *Input) { in.AssignedTo = "" }, errors.ErrCodePayloadValidationFailed},
		{"unparseable date", func(in *Input) { in.InspectionDate = "sometime soon" }, errors.ErrCodePayloadValidationFailed},
		{"dealing assistant", func(in *Input) {
			in.Actor = models.Actor{ID: "da-001", Role: models.RoleDealingAssistant, District: "shimla"}
		}, errors.ErrCodeInvalidTransition},
		{"other district", func(in *Input) { in.Actor.District = "kullu" }, errors.ErrCodeInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mem := createTestHandler(t)
			in := createTestInput("job-1")
			tt.mutate(in)

			_, err := handler.Execute(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))

			_, err = mem.ActiveInspectionOrder(context.Background(), "app-001")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}
