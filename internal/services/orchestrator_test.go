package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sosalert/internal/models"
	apperrors "sosalert/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestOrchestrator_EndToEnd(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	userID := primitive.NewObjectID()
	primary := h.addContact(userID, "Primary", models.ContactTierPrimary)
	secondary := h.addContact(userID, "Secondary", models.ContactTierSecondary)

	emergency, err := h.orchestrator.Trigger(ctx, medicalTrigger(userID, intPtr(0)))
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyStatusActive, emergency.Status)

	require.Eventually(t, func() bool { return h.sender.countTo(primary.ID, models.BatchKindInitial) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.sender.countTo(secondary.ID, models.BatchKindInitial))

	require.Eventually(t, func() bool { return h.sender.countTo(secondary.ID, models.BatchKindEscalation) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.sender.countKind(models.BatchKindFollowUp) >= 2 }, 2*time.Second, 5*time.Millisecond)

	_, err = h.orchestrator.Acknowledge(ctx, &models.AcknowledgeInput{
		EmergencyID: emergency.ID,
		ContactID:   secondary.ID,
		ContactName: secondary.Name,
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	after := h.sender.countKind(models.BatchKindFollowUp)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, after, h.sender.countKind(models.BatchKindFollowUp))

	view, err := h.orchestrator.Get(ctx, emergency.ID)
	require.NoError(t, err)
	require.Len(t, view.Acknowledgments, 1)
	assert.Equal(t, secondary.ID, view.Acknowledgments[0].ContactID)

	batches, err := h.orchestrator.Batches(ctx, emergency.ID)
	require.NoError(t, err)
	kinds := map[models.BatchKind]int{}
	for _, b := range batches {
		kinds[b.Batch.Kind]++
		assert.Equal(t, b.Stats.Queued, b.Stats.Pending+b.Stats.Sent+b.Stats.Delivered+b.Stats.Failed)
	}
	assert.Equal(t, 1, kinds[models.BatchKindInitial])
	assert.Equal(t, 1, kinds[models.BatchKindEscalation])

	resolved, err := h.orchestrator.Resolve(ctx, emergency.ID, "safe")
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyStatusResolved, resolved.Status)
	assert.False(t, h.escalation.IsScheduled(emergency.ID))
}

func TestOrchestrator_CancelDuringCountdown(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	userID := primitive.NewObjectID()
	h.addContact(userID, "Primary", models.ContactTierPrimary)

	emergency, err := h.orchestrator.Trigger(ctx, medicalTrigger(userID, intPtr(1)))
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyStatusPending, emergency.Status)
	assert.True(t, h.countdown.IsActive(emergency.ID))

	cancelled, err := h.orchestrator.Cancel(ctx, emergency.ID, "false alarm")
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyStatusCancelled, cancelled.Status)
	assert.False(t, h.countdown.IsActive(emergency.ID))

	time.Sleep(1100 * time.Millisecond)
	current, err := h.emergencies.Get(ctx, emergency.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyStatusCancelled, current.Status)
	assert.Empty(t, h.sender.snapshot())

	_, err = h.orchestrator.Cancel(ctx, emergency.ID, "again")
	assert.True(t, apperrors.Is(err, apperrors.KindIllegalTransition))
}

func TestOrchestrator_AutoTrigger(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	input := medicalTrigger(primitive.NewObjectID(), intPtr(0))
	input.TriggeredBy = "device:watch-7"

	emergency, err := h.orchestrator.AutoTrigger(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyStatusPending, emergency.Status, "zero countdown is ignored for automated detections")
	assert.True(t, emergency.AutoTriggered)
	assert.Equal(t, 30, emergency.CountdownSeconds)
	assert.Equal(t, "device:watch-7", emergency.TriggeredBy)
	assert.True(t, h.countdown.IsActive(emergency.ID))

	_, err = h.orchestrator.AutoTrigger(ctx, input)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestOrchestrator_ResolveRequiresActive(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	emergency, err := h.orchestrator.Trigger(ctx, medicalTrigger(primitive.NewObjectID(), intPtr(60)))
	require.NoError(t, err)

	_, err = h.orchestrator.Resolve(ctx, emergency.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindIllegalTransition))

	_, err = h.orchestrator.Get(ctx, primitive.NewObjectID())
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestReconciler_RestoresLostTimers(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	ctx := context.Background()

	userA := primitive.NewObjectID()
	h.addContact(userA, "Primary A", models.ContactTierPrimary)
	overdue := h.putEmergency(userA, models.EmergencyStatusPending)
	overdue.CountdownSeconds = 5
	overdue.CreatedAt = time.Now().Add(-time.Minute)
	h.emergencyRepo.Put(overdue)

	userB := primitive.NewObjectID()
	h.addContact(userB, "Secondary B", models.ContactTierSecondary)
	active := h.putEmergency(userB, models.EmergencyStatusActive)

	userC := primitive.NewObjectID()
	waiting := h.putEmergency(userC, models.EmergencyStatusPending)
	waiting.CountdownSeconds = 600
	h.emergencyRepo.Put(waiting)

	restored := h.reconciler.Reconcile(ctx)
	assert.Equal(t, 3, restored)

	require.Eventually(t, func() bool {
		current, err := h.emergencies.Get(ctx, overdue.ID)
		return err == nil && current.Status == models.EmergencyStatusActive
	}, time.Second, 5*time.Millisecond, "overdue countdown fires immediately")
	require.Eventually(t, func() bool { return h.escalation.IsScheduled(overdue.ID) }, time.Second, 5*time.Millisecond)

	assert.True(t, h.escalation.IsScheduled(active.ID))
	assert.True(t, h.countdown.IsActive(waiting.ID))

	assert.Equal(t, 0, h.reconciler.Reconcile(ctx), "a second pass finds nothing to restore")
}

func TestOrchestrator_ResolvesAddressOnActivation(t *testing.T) {
	t.Run("address lands in record and escalation alert", func(t *testing.T) {
		h := newHarness(t, EscalationConfig{Timeout: 80 * time.Millisecond, FollowUpInterval: time.Hour})
		userID := primitive.NewObjectID()
		h.addContact(userID, "Primary", models.ContactTierPrimary)
		secondary := h.addContact(userID, "Secondary", models.ContactTierSecondary)

		emergency, err := h.orchestrator.Trigger(context.Background(), medicalTrigger(userID, intPtr(0)))
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			current, err := h.emergencies.Get(context.Background(), emergency.ID)
			return err == nil && current.Location.Address == "285 Fulton St, New York, NY"
		}, time.Second, 5*time.Millisecond)

		require.Eventually(t, func() bool { return h.sender.countTo(secondary.ID, models.BatchKindEscalation) == 1 }, 2*time.Second, 5*time.Millisecond)
		for _, c := range h.sender.snapshot() {
			if c.recipient.ContactID == secondary.ID {
				assert.Contains(t, c.content.Body, "285 Fulton St")
			}
		}
	})

	t.Run("slow lookup never holds back the first alert", func(t *testing.T) {
		h := newHarness(t, EscalationConfig{Timeout: time.Hour, FollowUpInterval: time.Hour})
		h.geocoder.delay = 5 * time.Second
		userID := primitive.NewObjectID()
		h.addContact(userID, "Primary", models.ContactTierPrimary)

		_, err := h.orchestrator.Trigger(context.Background(), medicalTrigger(userID, intPtr(0)))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return len(h.sender.snapshot()) == 1 }, 300*time.Millisecond, 5*time.Millisecond)
	})

	t.Run("lookup failure still alerts", func(t *testing.T) {
		h := newHarness(t, EscalationConfig{Timeout: time.Hour, FollowUpInterval: time.Hour})
		h.geocoder.err = assert.AnError
		userID := primitive.NewObjectID()
		h.addContact(userID, "Primary", models.ContactTierPrimary)

		emergency, err := h.orchestrator.Trigger(context.Background(), medicalTrigger(userID, intPtr(0)))
		require.NoError(t, err)
		assert.Empty(t, emergency.Location.Address)
		require.Eventually(t, func() bool { return len(h.sender.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("caller supplied address is kept", func(t *testing.T) {
		h := newHarness(t, EscalationConfig{Timeout: time.Hour, FollowUpInterval: time.Hour})
		userID := primitive.NewObjectID()

		input := medicalTrigger(userID, intPtr(0))
		input.Location.Address = "Gate 4, Pier 39"
		emergency, err := h.orchestrator.Trigger(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, "Gate 4, Pier 39", emergency.Location.Address)
	})
}

func TestOrchestrator_TriggerIgnoresDeliveryHealth(t *testing.T) {
	h := newHarnessWith(t,
		EscalationConfig{Timeout: time.Hour, FollowUpInterval: time.Hour},
		NotificationConfig{Workers: 1, QueueSize: 1, SendTimeout: 10 * time.Second},
	)
	release := h.sender.stall()
	t.Cleanup(release)
	h.geocoder.delay = 10 * time.Second

	userID := primitive.NewObjectID()
	for i := 0; i < 5; i++ {
		h.addContact(userID, fmt.Sprintf("Primary %d", i), models.ContactTierPrimary)
	}

	start := time.Now()
	emergency, err := h.orchestrator.Trigger(context.Background(), medicalTrigger(userID, intPtr(0)))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, models.EmergencyStatusActive, emergency.Status)

	// A stalled worker and a full queue still let the escalation deadline arm.
	require.Eventually(t, func() bool { return h.escalation.IsScheduled(emergency.ID) }, time.Second, 5*time.Millisecond)

	batches, err := h.orchestrator.Batches(context.Background(), emergency.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(5), batches[0].Stats.Queued)

	release()
	require.Eventually(t, func() bool { return len(h.sender.snapshot()) == 5 }, 2*time.Second, 5*time.Millisecond)
}
