package mongodb

import (
	"context"

	"sosalert/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionEmergencies         = "emergencies"
	CollectionAcknowledgments     = "emergency_acknowledgments"
	CollectionContacts            = "emergency_contacts"
	CollectionNotificationRecords = "notification_records"
	CollectionNotificationBatches = "notification_batches"
	CollectionBatchJobs           = "notification_batch_jobs"
)

// Migrations returns the index set the repositories depend on. The unique
// indexes enforce one open emergency per user and one acknowledgment per
// (emergency, contact).
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create emergencies indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				return createIndexes(ctx, db.Collection(CollectionEmergencies), []mongo.IndexModel{
					{
						Keys: bson.D{{Key: "user_id", Value: 1}},
						Options: options.Index().
							SetName("uniq_open_emergency_per_user").
							SetUnique(true).
							SetPartialFilterExpression(bson.M{"is_open": true}),
					},
					{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
					{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
				})
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(CollectionEmergencies).Indexes().DropAll(ctx)
				return err
			},
		},
		{
			Version:     2,
			Description: "Create acknowledgments indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				return createIndexes(ctx, db.Collection(CollectionAcknowledgments), []mongo.IndexModel{
					{
						Keys:    bson.D{{Key: "emergency_id", Value: 1}, {Key: "contact_id", Value: 1}},
						Options: options.Index().SetName("uniq_ack_per_contact").SetUnique(true),
					},
				})
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(CollectionAcknowledgments).Indexes().DropAll(ctx)
				return err
			},
		},
		{
			Version:     3,
			Description: "Create notification indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				if err := createIndexes(ctx, db.Collection(CollectionNotificationRecords), []mongo.IndexModel{
					{Keys: bson.D{
						{Key: "emergency_id", Value: 1},
						{Key: "recipient_id", Value: 1},
						{Key: "channel", Value: 1},
						{Key: "queued_at", Value: -1},
					}},
					{
						Keys:    bson.D{{Key: "provider_message_id", Value: 1}},
						Options: options.Index().SetSparse(true),
					},
				}); err != nil {
					return err
				}
				if err := createIndexes(ctx, db.Collection(CollectionNotificationBatches), []mongo.IndexModel{
					{Keys: bson.D{{Key: "emergency_id", Value: 1}, {Key: "created_at", Value: 1}}},
				}); err != nil {
					return err
				}
				return createIndexes(ctx, db.Collection(CollectionBatchJobs), []mongo.IndexModel{
					{Keys: bson.D{{Key: "batch_id", Value: 1}, {Key: "status", Value: 1}}},
				})
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				for _, name := range []string{CollectionNotificationRecords, CollectionNotificationBatches, CollectionBatchJobs} {
					if _, err := db.Collection(name).Indexes().DropAll(ctx); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     4,
			Description: "Create contacts indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				return createIndexes(ctx, db.Collection(CollectionContacts), []mongo.IndexModel{
					{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "tier", Value: 1}}},
				})
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(CollectionContacts).Indexes().DropAll(ctx)
				return err
			},
		},
	}
}

func createIndexes(ctx context.Context, collection *mongo.Collection, indexes []mongo.IndexModel) error {
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
