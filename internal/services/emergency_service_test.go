package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"sosalert/internal/models"
	"sosalert/internal/utils"
	apperrors "sosalert/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func createInput(userID primitive.ObjectID) *CreateEmergencyInput {
	return &CreateEmergencyInput{
		UserID:           userID,
		Type:             models.EmergencyTypeMedical,
		Location:         models.Location{Latitude: 51.5074, Longitude: -0.1278},
		CountdownSeconds: 10,
	}
}

func TestEmergencyService_Create(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	var created []models.EventType
	h.bus.Subscribe(models.EventEmergencyCreated, func(_ context.Context, e *models.DomainEvent) {
		created = append(created, e.Type)
	})

	userID := primitive.NewObjectID()
	emergency, err := h.emergencies.Create(ctx, createInput(userID))
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyStatusPending, emergency.Status)
	assert.Equal(t, "user", emergency.TriggeredBy)
	assert.False(t, emergency.Location.Timestamp.IsZero())
	assert.Len(t, created, 1)

	_, err = h.emergencies.Create(ctx, createInput(userID))
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	assert.Contains(t, err.Error(), emergency.ID.Hex(), "conflict names the open emergency")
}

func TestEmergencyService_CreateValidation(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *CreateEmergencyInput)
		field  string
	}{
		{"latitude too high", func(in *CreateEmergencyInput) { in.Location.Latitude = 90.5 }, "location.latitude"},
		{"longitude too low", func(in *CreateEmergencyInput) { in.Location.Longitude = -180.01 }, "location.longitude"},
		{"unknown type", func(in *CreateEmergencyInput) { in.Type = "alien_invasion" }, "type"},
		{"missing user", func(in *CreateEmergencyInput) { in.UserID = primitive.NilObjectID }, "user_id"},
		{"negative countdown", func(in *CreateEmergencyInput) { in.CountdownSeconds = -1 }, "countdown_seconds"},
		{"message too long", func(in *CreateEmergencyInput) {
			in.InitialMessage = strings.Repeat("x", utils.MaxInitialMessageLength+1)
		}, "initial_message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := createInput(primitive.NewObjectID())
			tt.mutate(in)

			_, err := h.emergencies.Create(ctx, in)
			require.Error(t, err)
			var appErr *apperrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.KindValidation, appErr.Kind)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestEmergencyService_Transitions(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	t.Run("pending to active to resolved", func(t *testing.T) {
		e, err := h.emergencies.Create(ctx, createInput(primitive.NewObjectID()))
		require.NoError(t, err)

		_, err = h.emergencies.Resolve(ctx, e.ID, "too early")
		assert.True(t, apperrors.Is(err, apperrors.KindIllegalTransition))

		active, err := h.emergencies.Activate(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EmergencyStatusActive, active.Status)
		assert.NotNil(t, active.ActivatedAt)

		_, err = h.emergencies.Activate(ctx, e.ID)
		assert.True(t, apperrors.Is(err, apperrors.KindIllegalTransition))

		resolved, err := h.emergencies.Resolve(ctx, e.ID, "  paramedics arrived ")
		require.NoError(t, err)
		assert.Equal(t, models.EmergencyStatusResolved, resolved.Status)
		assert.Equal(t, "paramedics arrived", resolved.ResolutionNotes)

		_, err = h.emergencies.Cancel(ctx, e.ID, "late")
		assert.True(t, apperrors.Is(err, apperrors.KindIllegalTransition))
	})

	t.Run("pending to cancelled frees the user slot", func(t *testing.T) {
		userID := primitive.NewObjectID()
		e, err := h.emergencies.Create(ctx, createInput(userID))
		require.NoError(t, err)

		cancelled, err := h.emergencies.Cancel(ctx, e.ID, "false alarm")
		require.NoError(t, err)
		assert.Equal(t, "false alarm", cancelled.CancellationReason)

		_, err = h.emergencies.Activate(ctx, e.ID)
		assert.True(t, apperrors.Is(err, apperrors.KindIllegalTransition))

		_, err = h.emergencies.Create(ctx, createInput(userID))
		assert.NoError(t, err)
	})

	t.Run("unknown emergency", func(t *testing.T) {
		_, err := h.emergencies.Activate(ctx, primitive.NewObjectID())
		assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	})

	t.Run("resolved event carries the duration", func(t *testing.T) {
		var got *models.DomainEvent
		h.bus.Subscribe(models.EventEmergencyResolved, func(_ context.Context, e *models.DomainEvent) { got = e })

		e, err := h.emergencies.Create(ctx, createInput(primitive.NewObjectID()))
		require.NoError(t, err)
		_, err = h.emergencies.Activate(ctx, e.ID)
		require.NoError(t, err)
		_, err = h.emergencies.Resolve(ctx, e.ID, "")
		require.NoError(t, err)

		require.NotNil(t, got)
		assert.Equal(t, e.ID, got.EmergencyID)
		assert.GreaterOrEqual(t, got.DurationSeconds, int64(0))
	})
}

func TestEmergencyService_ActivateCancelRace(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		e, err := h.emergencies.Create(ctx, createInput(primitive.NewObjectID()))
		require.NoError(t, err)

		var wg sync.WaitGroup
		var activateErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, activateErr = h.emergencies.Activate(ctx, e.ID)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = h.emergencies.Cancel(ctx, e.ID, "race")
		}()
		wg.Wait()

		final, err := h.emergencies.Get(ctx, e.ID)
		require.NoError(t, err)

		// Either cancel wins outright, or activate wins and cancel then
		// applies from Active. Never a failed cancel on a pending emergency.
		require.NoError(t, cancelErr)
		assert.Equal(t, models.EmergencyStatusCancelled, final.Status)
		if activateErr != nil {
			assert.True(t, apperrors.Is(activateErr, apperrors.KindIllegalTransition))
		}
	}
}

func TestEmergencyService_History(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	userID := primitive.NewObjectID()
	for i := 0; i < 3; i++ {
		e, err := h.emergencies.Create(ctx, createInput(userID))
		require.NoError(t, err)
		_, err = h.emergencies.Cancel(ctx, e.ID, "test")
		require.NoError(t, err)
	}

	list, total, err := h.emergencies.History(ctx, userID, utils.NewPaginationParams(1, 2, "created_at", "desc"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)

	_, _, err = h.emergencies.History(ctx, primitive.NilObjectID, nil)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}
