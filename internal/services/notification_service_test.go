package services

import (
	"context"
	"testing"
	"time"

	"sosalert/internal/models"
	apperrors "sosalert/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newBatch(t *testing.T, h *harness, emergencyID primitive.ObjectID) string {
	t.Helper()
	batch := &models.NotificationBatch{
		ID:          primitive.NewObjectID().Hex(),
		EmergencyID: emergencyID,
		Kind:        models.BatchKindInitial,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, NewBatchTracker(h.batchRepo).CreateBatch(context.Background(), batch))
	return batch.ID
}

func waitSettled(t *testing.T, h *harness, batchID string) *models.BatchStats {
	t.Helper()
	var stats *models.BatchStats
	require.Eventually(t, func() bool {
		s, err := h.notifications.GetBatchSummary(context.Background(), batchID)
		if err != nil {
			return false
		}
		stats = s.Stats
		return stats.Pending == 0
	}, 2*time.Second, 10*time.Millisecond)
	return stats
}

func TestNotificationService_EnqueueValidatesRecipient(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	e := h.putEmergency(primitive.NewObjectID(), models.EmergencyStatusActive)
	batchID := newBatch(t, h, e.ID)

	err := h.notifications.Enqueue(context.Background(), &models.NotificationJob{
		BatchID:     batchID,
		EmergencyID: e.ID,
		Recipient:   models.Recipient{ContactID: primitive.NewObjectID(), Email: "x@example.com"},
		Channel:     models.ChannelSMS,
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	err = h.notifications.Enqueue(context.Background(), &models.NotificationJob{
		BatchID:     batchID,
		EmergencyID: e.ID,
		Recipient:   models.Recipient{ContactID: primitive.NewObjectID(), Phone: "+1555"},
		Channel:     models.Channel("pigeon"),
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	stats, err := NewBatchTracker(h.batchRepo).Stats(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Queued, "rejected jobs are never tracked")
}

func TestNotificationService_SuccessRecordsSent(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	e := h.putEmergency(primitive.NewObjectID(), models.EmergencyStatusActive)
	batchID := newBatch(t, h, e.ID)

	contactID := primitive.NewObjectID()
	require.NoError(t, h.notifications.Enqueue(context.Background(), &models.NotificationJob{
		BatchID:     batchID,
		EmergencyID: e.ID,
		Recipient:   models.Recipient{ContactID: contactID, Phone: "+15550001111"},
		Channel:     models.ChannelSMS,
	}))

	stats := waitSettled(t, h, batchID)
	assert.Equal(t, int64(1), stats.Queued)
	assert.Equal(t, int64(1), stats.Sent)

	records, err := h.notifications.ListRecords(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotificationStatusSent, records[0].Status)
	assert.Equal(t, contactID, records[0].RecipientID)
	assert.NotEmpty(t, records[0].ProviderMessageID)
	assert.NotNil(t, records[0].SentAt)
}

func TestNotificationService_PushFailureFallsBackToSMS(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	h.sender.failChannel(models.ChannelPush, "PROVIDER_UNAVAILABLE")
	e := h.putEmergency(primitive.NewObjectID(), models.EmergencyStatusActive)
	batchID := newBatch(t, h, e.ID)

	job := &models.NotificationJob{
		BatchID:     batchID,
		EmergencyID: e.ID,
		Recipient:   models.Recipient{ContactID: primitive.NewObjectID(), PushToken: "tok", Phone: "+15550001111"},
		Channel:     models.ChannelPush,
		Priority:    models.PriorityHigh,
	}
	require.NoError(t, h.notifications.Enqueue(context.Background(), job))

	stats := waitSettled(t, h, batchID)
	assert.Equal(t, int64(2), stats.Queued, "original plus one fallback job")
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Sent)

	var pushCalls, smsCalls int
	for _, c := range h.sender.snapshot() {
		switch c.channel {
		case models.ChannelPush:
			pushCalls++
		case models.ChannelSMS:
			smsCalls++
		}
	}
	assert.Equal(t, 1, pushCalls, "no same-channel push retry after a fallback")
	assert.Equal(t, 1, smsCalls)
	assert.False(t, h.timers.Active(job.ID, TimerRetry))
}

func TestNotificationService_PermanentErrorNeverRetries(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	h.sender.failChannel(models.ChannelPush, "INVALID_TOKEN")
	e := h.putEmergency(primitive.NewObjectID(), models.EmergencyStatusActive)
	batchID := newBatch(t, h, e.ID)

	job := &models.NotificationJob{
		BatchID:     batchID,
		EmergencyID: e.ID,
		Recipient:   models.Recipient{ContactID: primitive.NewObjectID(), PushToken: "stale"},
		Channel:     models.ChannelPush,
	}
	require.NoError(t, h.notifications.Enqueue(context.Background(), job))

	stats := waitSettled(t, h, batchID)
	assert.Equal(t, int64(1), stats.Failed)
	assert.False(t, h.timers.Active(job.ID, TimerRetry))
	assert.Len(t, h.sender.snapshot(), 1)

	records, err := h.notifications.ListRecords(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "INVALID_TOKEN", records[0].ErrorCode)
	assert.Equal(t, "provider said no", records[0].FailureReason)
}

func TestNotificationService_TransientErrorSchedulesRetry(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	h.sender.failChannel(models.ChannelPush, "PROVIDER_UNAVAILABLE")
	e := h.putEmergency(primitive.NewObjectID(), models.EmergencyStatusActive)
	batchID := newBatch(t, h, e.ID)

	job := &models.NotificationJob{
		BatchID:     batchID,
		EmergencyID: e.ID,
		Recipient:   models.Recipient{ContactID: primitive.NewObjectID(), PushToken: "tok"},
		Channel:     models.ChannelPush,
	}
	require.NoError(t, h.notifications.Enqueue(context.Background(), job))

	assert.Eventually(t, func() bool { return h.timers.Active(job.ID, TimerRetry) }, time.Second, 5*time.Millisecond)

	stats, err := NewBatchTracker(h.batchRepo).Stats(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending, "a job awaiting retry stays pending")
	assert.Equal(t, stats.Queued, stats.Pending+stats.Sent+stats.Delivered+stats.Failed)
}

func TestNotificationService_SkipsClosedEmergency(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	e := h.putEmergency(primitive.NewObjectID(), models.EmergencyStatusResolved)
	batchID := newBatch(t, h, e.ID)

	require.NoError(t, h.notifications.Enqueue(context.Background(), &models.NotificationJob{
		BatchID:     batchID,
		EmergencyID: e.ID,
		Recipient:   models.Recipient{ContactID: primitive.NewObjectID(), Phone: "+1555"},
		Channel:     models.ChannelSMS,
	}))

	stats := waitSettled(t, h, batchID)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Empty(t, h.sender.snapshot())
}

func TestNotificationService_FanOutBatchInvariant(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	h.sender.failChannel(models.ChannelPush, "PROVIDER_UNAVAILABLE")
	h.sender.failChannel(models.ChannelEmail, "INVALID_EMAIL")

	userID := primitive.NewObjectID()
	e := h.putEmergency(userID, models.EmergencyStatusActive)

	contacts := []*models.EmergencyContact{
		{ID: primitive.NewObjectID(), Name: "Push and phone", PushToken: "tok", Phone: "+1555"},
		{ID: primitive.NewObjectID(), Name: "Email only", Email: "a@example.com"},
		{ID: primitive.NewObjectID(), Name: "Two channels", Phone: "+1666", Email: "b@example.com",
			Channels: []models.Channel{models.ChannelSMS, models.ChannelEmail}},
		{ID: primitive.NewObjectID(), Name: "Unreachable"},
	}

	batch, err := h.notifications.FanOut(context.Background(), e, contacts, models.BatchKindInitial, "")
	require.NoError(t, err)

	stats := waitSettled(t, h, batch.ID)
	// 4 initial jobs + 1 push->sms fallback.
	assert.Equal(t, int64(5), stats.Queued)
	assert.Equal(t, stats.Queued, stats.Pending+stats.Sent+stats.Delivered+stats.Failed)
	assert.Equal(t, int64(2), stats.Sent)
	assert.Equal(t, int64(3), stats.Failed)

	summaries, err := h.notifications.ListBatches(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, models.BatchKindInitial, summaries[0].Batch.Kind)
}

func TestNotificationService_NoDuplicateFallbackChannel(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	h.sender.failChannel(models.ChannelPush, "PROVIDER_UNAVAILABLE")
	e := h.putEmergency(primitive.NewObjectID(), models.EmergencyStatusActive)

	contact := &models.EmergencyContact{
		ID:        primitive.NewObjectID(),
		Name:      "Push and SMS",
		PushToken: "tok",
		Phone:     "+15550001111",
		Channels:  []models.Channel{models.ChannelPush, models.ChannelSMS},
	}
	batch, err := h.notifications.FanOut(context.Background(), e, []*models.EmergencyContact{contact}, models.BatchKindInitial, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var push, sms int
		for _, c := range h.sender.snapshot() {
			switch c.channel {
			case models.ChannelPush:
				push++
			case models.ChannelSMS:
				sms++
			}
		}
		return push == 1 && sms == 1
	}, time.Second, 5*time.Millisecond)

	stats, err := NewBatchTracker(h.batchRepo).Stats(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Queued, "no sms fallback job on top of the configured one")

	time.Sleep(50 * time.Millisecond)
	sms := 0
	for _, c := range h.sender.snapshot() {
		if c.channel == models.ChannelSMS {
			sms++
		}
	}
	assert.Equal(t, 1, sms)
}

func TestNotificationService_ConfirmDelivery(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	e := h.putEmergency(primitive.NewObjectID(), models.EmergencyStatusActive)
	contact := &models.EmergencyContact{ID: primitive.NewObjectID(), Name: "Ann", Phone: "+1555"}

	batch, err := h.notifications.FanOut(context.Background(), e, []*models.EmergencyContact{contact}, models.BatchKindInitial, "")
	require.NoError(t, err)
	waitSettled(t, h, batch.ID)
	ctx := context.Background()

	_, err = h.notifications.ConfirmDelivery(ctx, &models.DeliveryReceipt{
		EmergencyID: e.ID, RecipientID: contact.ID, Channel: models.ChannelSMS,
		Status: models.NotificationStatusRead,
	})
	assert.True(t, apperrors.Is(err, apperrors.KindIllegalState), "read requires a prior delivered")

	record, err := h.notifications.ConfirmDelivery(ctx, &models.DeliveryReceipt{
		EmergencyID: e.ID, RecipientID: contact.ID, Channel: models.ChannelSMS,
		Status: models.NotificationStatusDelivered,
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusDelivered, record.Status)

	summary, err := h.notifications.GetBatchSummary(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Stats.Delivered)
	assert.Equal(t, int64(0), summary.Stats.Sent)

	record, err = h.notifications.ConfirmDelivery(ctx, &models.DeliveryReceipt{
		ProviderMessageID: record.ProviderMessageID,
		Status:            models.NotificationStatusRead,
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusRead, record.Status)
	assert.NotNil(t, record.ReadAt)

	_, err = h.notifications.ConfirmDelivery(ctx, &models.DeliveryReceipt{
		ProviderMessageID: "unknown", Status: models.NotificationStatusDelivered,
	})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = h.notifications.ConfirmDelivery(ctx, &models.DeliveryReceipt{
		ProviderMessageID: record.ProviderMessageID, Status: models.NotificationStatusQueued,
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestNotificationService_UnknownBatch(t *testing.T) {
	h := newHarness(t, testEscalationConfig())
	_, err := h.notifications.GetBatchSummary(context.Background(), "missing")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
