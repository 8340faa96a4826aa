package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newPending(userID primitive.ObjectID) *models.Emergency {
	return &models.Emergency{
		UserID: userID,
		Type:   models.EmergencyTypeMedical,
		Status: models.EmergencyStatusPending,
	}
}

func TestEmergencyRepository_OneOpenPerUser(t *testing.T) {
	ctx := context.Background()
	repo := NewEmergencyRepository()
	userID := primitive.NewObjectID()

	first := newPending(userID)
	require.NoError(t, repo.Create(ctx, first))
	assert.ErrorIs(t, repo.Create(ctx, newPending(userID)), interfaces.ErrDuplicate)

	_, err := repo.Transition(ctx, first.ID,
		[]models.EmergencyStatus{models.EmergencyStatusPending},
		models.EmergencyStatusCancelled,
		models.TransitionUpdate{CancellationReason: "false alarm"})
	require.NoError(t, err)

	assert.NoError(t, repo.Create(ctx, newPending(userID)))
}

func TestEmergencyRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewEmergencyRepository()
	userID := primitive.NewObjectID()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.Create(ctx, newPending(userID)) == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestEmergencyRepository_Transition(t *testing.T) {
	ctx := context.Background()
	repo := NewEmergencyRepository()
	e := newPending(primitive.NewObjectID())
	require.NoError(t, repo.Create(ctx, e))

	active, err := repo.Transition(ctx, e.ID,
		[]models.EmergencyStatus{models.EmergencyStatusPending},
		models.EmergencyStatusActive, models.TransitionUpdate{})
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyStatusActive, active.Status)
	assert.NotNil(t, active.ActivatedAt)

	_, err = repo.Transition(ctx, e.ID,
		[]models.EmergencyStatus{models.EmergencyStatusPending},
		models.EmergencyStatusActive, models.TransitionUpdate{})
	assert.ErrorIs(t, err, interfaces.ErrConditionFailed)

	_, err = repo.Transition(ctx, primitive.NewObjectID(),
		[]models.EmergencyStatus{models.EmergencyStatusPending},
		models.EmergencyStatusActive, models.TransitionUpdate{})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestEmergencyRepository_GetByUserIDPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewEmergencyRepository()
	userID := primitive.NewObjectID()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		repo.Put(&models.Emergency{
			UserID:    userID,
			Status:    models.EmergencyStatusResolved,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	page, total, err := repo.GetByUserID(ctx, userID, utils.NewPaginationParams(2, 2, "created_at", "desc"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))
	assert.Equal(t, base.Add(2*time.Minute), page[0].CreatedAt)
}

func TestAcknowledgmentRepository_Unique(t *testing.T) {
	ctx := context.Background()
	repo := NewAcknowledgmentRepository()
	emergencyID, contactID := primitive.NewObjectID(), primitive.NewObjectID()

	require.NoError(t, repo.Create(ctx, &models.Acknowledgment{EmergencyID: emergencyID, ContactID: contactID}))
	assert.ErrorIs(t, repo.Create(ctx, &models.Acknowledgment{EmergencyID: emergencyID, ContactID: contactID}), interfaces.ErrDuplicate)

	count, err := repo.CountByEmergencyID(ctx, emergencyID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestBatchRepository_StatsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.TrackJob(ctx, &models.BatchJob{JobID: id, BatchID: "batch-1"}))
	}
	// Redelivery of an already tracked job.
	require.NoError(t, repo.TrackJob(ctx, &models.BatchJob{JobID: "a", BatchID: "batch-1"}))

	pending := []models.JobStatus{models.JobStatusPending}
	ok, err := repo.UpdateJobStatus(ctx, "a", pending, models.JobStatusSent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateJobStatus(ctx, "a", pending, models.JobStatusSent)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.UpdateJobStatus(ctx, "b", pending, models.JobStatusFailed)
	require.NoError(t, err)

	stats, err := repo.GetBatchStats(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStats{BatchID: "batch-1", Queued: 3, Pending: 1, Sent: 1, Failed: 1}, *stats)
}

func TestNotificationRepository_LatestRecordWins(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	emergencyID, recipientID := primitive.NewObjectID(), primitive.NewObjectID()
	now := time.Now()

	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, repo.UpsertRecord(ctx, &models.NotificationRecord{
			ID:          "job-" + string(rune('0'+attempt)),
			EmergencyID: emergencyID,
			RecipientID: recipientID,
			Channel:     models.ChannelSMS,
			Attempt:     attempt,
			Status:      models.NotificationStatusSent,
			QueuedAt:    now,
		}))
	}

	latest, err := repo.GetLatestRecord(ctx, emergencyID, recipientID, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Attempt)

	_, err = repo.UpdateRecordStatus(ctx, latest.ID,
		[]models.NotificationStatus{models.NotificationStatusDelivered},
		models.NotificationStatusRead, now)
	assert.ErrorIs(t, err, interfaces.ErrConditionFailed)
}
