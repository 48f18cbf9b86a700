// internal/workers/application/discard-draft/handler_test.go
package discarddraft

import (
	"context"
	"testing"

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

var owner = models.Actor{ID: "owner-001", Role: models.RoleOwner}

func createTestHandler(t *testing.T) (*Handler, *application.Service, *store.Memory) {
	mem := store.NewMemory()
	cfg := config.WorkflowConfig{AllocationMaxAttempts: 5, DistrictCodes: map[string]string{"shimla": "SML"}}
	log := logger.NewTestLogger(t)
	svc := application.NewService(mem, sequence.NewAllocator(mem, cfg.AllocationMaxAttempts, log), cfg, log)
	return NewHandler(LoadConfig(config.WorkerConfig{}), svc, log), svc, mem
}

func createDraft(t *testing.T, svc *application.Service) *models.Application {
	t.Helper()
	app, err := svc.Create(context.Background(), owner, application.CreateRequest{
		OwnerUserID: owner.ID,
		Kind:        models.KindNewRegistration,
		District:    "shimla",
	})
	require.NoError(t, err)
	return app
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_DiscardsDraft(t *testing.T) {
	handler, svc, mem := createTestHandler(t)
	draft := createDraft(t, svc)

	out, err := handler.Execute(context.Background(), &Input{ApplicationID: draft.ID, Actor: owner})
	require.NoError(t, err)
	assert.True(t, out.Discarded)
	assert.Empty(t, mem.Applications())

	// The slot is free again.
	createDraft(t, svc)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_Rejections(t *testing.T) {
	handler, svc, mem := createTestHandler(t)
	draft := createDraft(t, svc)
	ctx := context.Background()

	_, err := handler.Execute(ctx, &Input{ApplicationID: draft.ID, Actor: models.Actor{ID: "owner-002", Role: models.RoleOwner}})
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))

	_, err = handler.Execute(ctx, &Input{ApplicationID: "ghost", Actor: owner})
	assert.Equal(t, errors.ErrCodeApplicationNotFound, errors.CodeOf(err))

	_, err = handler.Execute(ctx, &Input{ApplicationID: draft.ID})
	assert.Equal(t, errors.ErrCodePayloadValidationFailed, errors.CodeOf(err))

	assert.Len(t, mem.Applications(), 1)
}
