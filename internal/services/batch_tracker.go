package services

import (
	"context"
	"errors"
	"fmt"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	apperrors "sosalert/pkg/errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchTracker keeps one outcome document per job and derives BatchStats
// from them, so replays after a crash never double count.
type BatchTracker struct {
	repo interfaces.BatchRepository
}

func NewBatchTracker(repo interfaces.BatchRepository) *BatchTracker {
	return &BatchTracker{repo: repo}
}

func (t *BatchTracker) CreateBatch(ctx context.Context, batch *models.NotificationBatch) error {
	if err := t.repo.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (t *BatchTracker) Track(ctx context.Context, job *models.NotificationJob) error {
	return t.repo.TrackJob(ctx, &models.BatchJob{
		JobID:   job.ID,
		BatchID: job.BatchID,
		Channel: job.Channel,
		Status:  models.JobStatusPending,
	})
}

func (t *BatchTracker) MarkSent(ctx context.Context, jobID string) (bool, error) {
	return t.repo.UpdateJobStatus(ctx, jobID, []models.JobStatus{models.JobStatusPending}, models.JobStatusSent)
}

func (t *BatchTracker) MarkDelivered(ctx context.Context, jobID string) (bool, error) {
	return t.repo.UpdateJobStatus(ctx, jobID, []models.JobStatus{models.JobStatusSent}, models.JobStatusDelivered)
}

// MarkFailed finalizes a pending job, or a sent one the provider later
// reported undeliverable.
func (t *BatchTracker) MarkFailed(ctx context.Context, jobID string) (bool, error) {
	return t.repo.UpdateJobStatus(ctx, jobID, []models.JobStatus{models.JobStatusPending, models.JobStatusSent}, models.JobStatusFailed)
}

func (t *BatchTracker) Stats(ctx context.Context, batchID string) (*models.BatchStats, error) {
	return t.repo.GetBatchStats(ctx, batchID)
}

func (t *BatchTracker) Summary(ctx context.Context, batchID string) (*models.BatchSummary, error) {
	batch, err := t.repo.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperrors.NotFound("notification batch")
		}
		return nil, apperrors.Internal(err, "failed to load batch")
	}

	stats, err := t.repo.GetBatchStats(ctx, batchID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to compute batch stats")
	}

	return &models.BatchSummary{Batch: batch, Stats: stats}, nil
}

// ListBatches returns every batch of an emergency, oldest first, with stats.
func (t *BatchTracker) ListBatches(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.BatchSummary, error) {
	batches, err := t.repo.GetBatchesByEmergencyID(ctx, emergencyID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list batches")
	}

	out := make([]*models.BatchSummary, 0, len(batches))
	for _, b := range batches {
		stats, err := t.repo.GetBatchStats(ctx, b.ID)
		if err != nil {
			return nil, apperrors.Internal(err, "failed to compute batch stats")
		}
		out = append(out, &models.BatchSummary{Batch: b, Stats: stats})
	}
	return out, nil
}
