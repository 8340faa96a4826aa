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

type notificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) interfaces.NotificationRepository {
	return &notificationRepository{
		collection: db.Collection(CollectionNotificationRecords),
	}
}

func (r *notificationRepository) UpsertRecord(ctx context.Context, record *models.NotificationRecord) error {
	record.UpdatedAt = time.Now()

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": record.ID}, record, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert notification record: %w", err)
	}

	return nil
}

func (r *notificationRepository) GetRecordByID(ctx context.Context, id string) (*models.NotificationRecord, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *notificationRepository) UpdateRecordStatus(ctx context.Context, id string, from []models.NotificationStatus, to models.NotificationStatus, at time.Time) (*models.NotificationRecord, error) {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	switch to {
	case models.NotificationStatusSent:
		set["sent_at"] = at
	case models.NotificationStatusDelivered:
		set["delivered_at"] = at
	case models.NotificationStatusRead:
		set["read_at"] = at
	case models.NotificationStatusFailed:
		set["failed_at"] = at
	}

	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record models.NotificationRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := r.GetRecordByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, interfaces.ErrConditionFailed
		}
		return nil, fmt.Errorf("failed to update notification record: %w", err)
	}

	return &record, nil
}

func (r *notificationRepository) GetLatestRecord(ctx context.Context, emergencyID, recipientID primitive.ObjectID, channel models.Channel) (*models.NotificationRecord, error) {
	filter := bson.M{
		"emergency_id": emergencyID,
		"recipient_id": recipientID,
		"channel":      channel,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "queued_at", Value: -1}, {Key: "attempt", Value: -1}})

	return r.findOne(ctx, filter, opts)
}

func (r *notificationRepository) GetRecordByProviderMessageID(ctx context.Context, providerMessageID string) (*models.NotificationRecord, error) {
	return r.findOne(ctx, bson.M{"provider_message_id": providerMessageID}, nil)
}

func (r *notificationRepository) GetRecordsByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.NotificationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "queued_at", Value: 1}, {Key: "attempt", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"emergency_id": emergencyID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notification records: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*models.NotificationRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode notification records: %w", err)
	}

	return records, nil
}

func (r *notificationRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.NotificationRecord, error) {
	if opts == nil {
		opts = options.FindOne()
	}

	var record models.NotificationRecord
	if err := r.collection.FindOne(ctx, filter, opts).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification record: %w", err)
	}

	return &record, nil
}
