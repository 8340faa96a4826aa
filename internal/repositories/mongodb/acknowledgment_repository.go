package mongodb

import (
	"context"
	"fmt"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type acknowledgmentRepository struct {
	collection *mongo.Collection
}

func NewAcknowledgmentRepository(db *mongo.Database) interfaces.AcknowledgmentRepository {
	return &acknowledgmentRepository{
		collection: db.Collection(CollectionAcknowledgments),
	}
}

func (r *acknowledgmentRepository) Create(ctx context.Context, ack *models.Acknowledgment) error {
	ack.ID = primitive.NewObjectID()
	if ack.AcknowledgedAt.IsZero() {
		ack.AcknowledgedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, ack); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return interfaces.ErrDuplicate
		}
		return fmt.Errorf("failed to create acknowledgment: %w", err)
	}

	return nil
}

func (r *acknowledgmentRepository) GetByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.Acknowledgment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "acknowledged_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"emergency_id": emergencyID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find acknowledgments: %w", err)
	}
	defer cursor.Close(ctx)

	acks := make([]*models.Acknowledgment, 0)
	if err := cursor.All(ctx, &acks); err != nil {
		return nil, fmt.Errorf("failed to decode acknowledgments: %w", err)
	}

	return acks, nil
}

func (r *acknowledgmentRepository) CountByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"emergency_id": emergencyID})
	if err != nil {
		return 0, fmt.Errorf("failed to count acknowledgments: %w", err)
	}
	return count, nil
}
