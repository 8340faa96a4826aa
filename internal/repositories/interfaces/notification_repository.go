package interfaces

import (
	"context"
	"time"

	"sosalert/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationRepository interface {
	// UpsertRecord writes a record keyed by its ID; replays overwrite.
	UpsertRecord(ctx context.Context, record *models.NotificationRecord) error
	GetRecordByID(ctx context.Context, id string) (*models.NotificationRecord, error)
	// UpdateRecordStatus is a compare-and-set on the record status.
	UpdateRecordStatus(ctx context.Context, id string, from []models.NotificationStatus, to models.NotificationStatus, at time.Time) (*models.NotificationRecord, error)
	// GetLatestRecord returns the most recent attempt for a recipient channel.
	GetLatestRecord(ctx context.Context, emergencyID, recipientID primitive.ObjectID, channel models.Channel) (*models.NotificationRecord, error)
	GetRecordByProviderMessageID(ctx context.Context, providerMessageID string) (*models.NotificationRecord, error)
	GetRecordsByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.NotificationRecord, error)
}

type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *models.NotificationBatch) error
	GetBatch(ctx context.Context, id string) (*models.NotificationBatch, error)
	GetBatchesByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.NotificationBatch, error)

	// TrackJob inserts the job as pending unless it is already tracked.
	TrackJob(ctx context.Context, job *models.BatchJob) error
	// UpdateJobStatus moves a tracked job forward. Returns false without
	// error when the job is not in one of `from`.
	UpdateJobStatus(ctx context.Context, jobID string, from []models.JobStatus, to models.JobStatus) (bool, error)
	GetBatchStats(ctx context.Context, batchID string) (*models.BatchStats, error)
}
