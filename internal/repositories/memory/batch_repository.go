package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BatchRepository struct {
	mu      sync.RWMutex
	batches map[string]*models.NotificationBatch
	jobs    map[string]*models.BatchJob
}

func NewBatchRepository() *BatchRepository {
	return &BatchRepository{
		batches: make(map[string]*models.NotificationBatch),
		jobs:    make(map[string]*models.BatchJob),
	}
}

var _ interfaces.BatchRepository = (*BatchRepository)(nil)

func (r *BatchRepository) CreateBatch(ctx context.Context, batch *models.NotificationBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.batches[batch.ID]; exists {
		return interfaces.ErrDuplicate
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}

	cp := *batch
	r.batches[batch.ID] = &cp
	return nil
}

func (r *BatchRepository) GetBatch(ctx context.Context, id string) (*models.NotificationBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *BatchRepository) GetBatchesByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.NotificationBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.NotificationBatch, 0)
	for _, b := range r.batches {
		if b.EmergencyID == emergencyID {
			cp := *b
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (r *BatchRepository) TrackJob(ctx context.Context, job *models.BatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.JobID]; exists {
		return nil
	}

	r.jobs[job.JobID] = &models.BatchJob{
		JobID:     job.JobID,
		BatchID:   job.BatchID,
		Channel:   job.Channel,
		Status:    models.JobStatusPending,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (r *BatchRepository) UpdateJobStatus(ctx context.Context, jobID string, from []models.JobStatus, to models.JobStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return false, nil
	}

	for _, s := range from {
		if job.Status == s {
			job.Status = to
			job.UpdatedAt = time.Now()
			return true, nil
		}
	}

	return false, nil
}

func (r *BatchRepository) GetBatchStats(ctx context.Context, batchID string) (*models.BatchStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &models.BatchStats{BatchID: batchID}
	for _, job := range r.jobs {
		if job.BatchID != batchID {
			continue
		}
		stats.Queued++
		switch job.Status {
		case models.JobStatusPending:
			stats.Pending++
		case models.JobStatusSent:
			stats.Sent++
		case models.JobStatusDelivered:
			stats.Delivered++
		case models.JobStatusFailed:
			stats.Failed++
		}
	}

	return stats, nil
}
