package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type batchRepository struct {
	batches *mongo.Collection
	jobs    *mongo.Collection
}

func NewBatchRepository(db *mongo.Database) interfaces.BatchRepository {
	return &batchRepository{
		batches: db.Collection(CollectionNotificationBatches),
		jobs:    db.Collection(CollectionBatchJobs),
	}
}

func (r *batchRepository) CreateBatch(ctx context.Context, batch *models.NotificationBatch) error {
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}

	if _, err := r.batches.InsertOne(ctx, batch); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return interfaces.ErrDuplicate
		}
		return fmt.Errorf("failed to create notification batch: %w", err)
	}

	return nil
}

func (r *batchRepository) GetBatch(ctx context.Context, id string) (*models.NotificationBatch, error) {
	var batch models.NotificationBatch
	if err := r.batches.FindOne(ctx, bson.M{"_id": id}).Decode(&batch); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification batch: %w", err)
	}

	return &batch, nil
}

func (r *batchRepository) GetBatchesByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.NotificationBatch, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.batches.Find(ctx, bson.M{"emergency_id": emergencyID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notification batches: %w", err)
	}
	defer cursor.Close(ctx)

	batches := make([]*models.NotificationBatch, 0)
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, fmt.Errorf("failed to decode notification batches: %w", err)
	}

	return batches, nil
}

// TrackJob is an insert-if-absent upsert keyed by job id, so redelivered
// jobs never count twice.
func (r *batchRepository) TrackJob(ctx context.Context, job *models.BatchJob) error {
	update := bson.M{
		"$setOnInsert": bson.M{
			"batch_id":   job.BatchID,
			"channel":    job.Channel,
			"status":     models.JobStatusPending,
			"updated_at": time.Now(),
		},
	}

	_, err := r.jobs.UpdateOne(ctx, bson.M{"_id": job.JobID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to track batch job: %w", err)
	}

	return nil
}

func (r *batchRepository) UpdateJobStatus(ctx context.Context, jobID string, from []models.JobStatus, to models.JobStatus) (bool, error) {
	filter := bson.M{"_id": jobID, "status": bson.M{"$in": from}}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}}

	result, err := r.jobs.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update batch job: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

func (r *batchRepository) GetBatchStats(ctx context.Context, batchID string) (*models.BatchStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"batch_id": batchID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.jobs.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate batch stats: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &models.BatchStats{BatchID: batchID}
	for cursor.Next(ctx) {
		var row struct {
			Status models.JobStatus `bson:"_id"`
			Count  int64            `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode batch stats: %w", err)
		}
		applyJobCount(stats, row.Status, row.Count)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batch stats: %w", err)
	}

	return stats, nil
}

func applyJobCount(stats *models.BatchStats, status models.JobStatus, count int64) {
	switch status {
	case models.JobStatusPending:
		stats.Pending += count
	case models.JobStatusSent:
		stats.Sent += count
	case models.JobStatusDelivered:
		stats.Delivered += count
	case models.JobStatusFailed:
		stats.Failed += count
	}
	stats.Queued += count
}
