// internal/workers/application/create-application-record/handler_test.go
package createapplicationrecord

import (
	"context"
	"testing"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/application"
	"registration-workers/internal/registration/sequence"
	"registration-workers/internal/registration/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) (*Handler, *store.Memory) {
	mem := store.NewMemory()
	cfg := config.WorkflowConfig{
		AllocationMaxAttempts: 5,
		DistrictCodes:         map[string]string{"shimla": "SML"},
	}
	log := logger.NewTestLogger(t)
	svc := application.NewService(mem, sequence.NewAllocator(mem, cfg.AllocationMaxAttempts, log), cfg, log)
	return NewHandler(LoadConfig(config.WorkerConfig{}), svc, log), mem
}

func createTestInput() *Input {
	return &Input{
		Actor:        models.Actor{ID: "owner-001", Role: models.RoleOwner},
		Kind:         string(models.KindNewRegistration),
		District:     "shimla",
		PropertyName: "Deodar Homestay",
		OwnerName:    "Kamla Devi",
		Address:      "Village Mashobra, Shimla",
		RoomCount:    4,
		Category:     "silver",
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	handler, mem := createTestHandler(t)

	output, err := handler.Execute(context.Background(), createTestInput())
	require.NoError(t, err)

	assert.NotEmpty(t, output.ApplicationID)
	assert.Regexp(t, `^NR-\d{4}-SML-000001$`, output.ApplicationNumber)
	assert.Equal(t, "draft", output.ApplicationStatus)
	_, err = time.Parse(time.RFC3339, output.CreatedAt)
	assert.NoError(t, err)

	apps := mem.Applications()
	require.Len(t, apps, 1)
	assert.Equal(t, "owner-001", apps[0].OwnerUserID)
	assert.Equal(t, 4, apps[0].RoomCount)
}

func TestHandler_Execute_DuplicateActiveDraft(t *testing.T) {
	handler, _ := createTestHandler(t)

	first, err := handler.Execute(context.Background(), createTestInput())
	require.NoError(t, err)

	output, err := handler.Execute(context.Background(), createTestInput())
	assert.Nil(t, output)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateActiveDraft))

	conflict, ok := errors.ConflictOf(err)
	require.True(t, ok)
	assert.Equal(t, first.ApplicationID, conflict.ExistingApplicationID)
	assert.Equal(t, "draft", conflict.Status)

	// The process model routes on the BPMN error and reads the existing id.
	vars := errors.ConvertToBPMNError(errors.AsStandard(err)).ToErrorVariables()
	assert.Equal(t, string(errors.ErrCodeDuplicateActiveDraft), vars["errorCode"])
	assert.Equal(t, first.ApplicationID, vars["existingApplicationId"])
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
		{"missing actor id", func(in *Input) { in.Actor.ID = "" }, errors.ErrCodePayloadValidationFailed},
		{"unknown role", func(in *Input) { in.Actor.Role = "clerk" }, errors.ErrCodePayloadValidationFailed},
		{"unknown kind", func(in *Input) { in.Kind = "timeshare" }, errors.ErrCodePayloadValidationFailed},
		{"missing district", func(in *Input) { in.District = "" }, errors.ErrCodePayloadValidationFailed},
		{"negative rooms", func(in *Input) { in.RoomCount = -1 }, errors.ErrCodePayloadValidationFailed},
		{"officer cannot create", func(in *Input) {
			in.Actor = models.Actor{ID: "dtdo-1", Role: models.RoleDistrictTourismOfficer, District: "shimla"}
		}, errors.ErrCodeInvalidTransition},
		{"add rooms without parent", func(in *Input) { in.Kind = string(models.KindAddRooms) }, errors.ErrCodePayloadValidationFailed},
		{"unknown parent", func(in *Input) {
			in.Kind = string(models.KindAddRooms)
			in.ParentApplicationID = "ghost"
		}, errors.ErrCodeApplicationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mem := createTestHandler(t)
			input := createTestInput()
			tt.mutate(input)

			output, err := handler.Execute(context.Background(), input)
			assert.Nil(t, output)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Empty(t, mem.Applications())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 30*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
	assert.Equal(t, 5*time.Second, LoadConfig(config.WorkerConfig{Timeout: 5000}).Timeout)
}
