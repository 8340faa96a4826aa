package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const terminalEmergencyCacheTTL = 10 * time.Minute

type emergencyRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewEmergencyRepository(db *mongo.Database, cache CacheService) interfaces.EmergencyRepository {
	return &emergencyRepository{
		collection: db.Collection(CollectionEmergencies),
		cache:      cache,
	}
}

// Create relies on the unique partial index on {user_id} where is_open is
// true, so two concurrent triggers for one user cannot both succeed.
func (r *emergencyRepository) Create(ctx context.Context, emergency *models.Emergency) error {
	now := time.Now()
	emergency.ID = primitive.NewObjectID()
	emergency.Open = emergency.Status.IsOpen()
	if emergency.CreatedAt.IsZero() {
		emergency.CreatedAt = now
	}
	emergency.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, emergency)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return interfaces.ErrDuplicate
		}
		return fmt.Errorf("failed to create emergency: %w", err)
	}

	return nil
}

func (r *emergencyRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error) {
	if emergency := r.getEmergencyFromCache(ctx, id.Hex()); emergency != nil {
		return emergency, nil
	}

	var emergency models.Emergency
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&emergency)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get emergency: %w", err)
	}

	r.cacheEmergency(ctx, &emergency)

	return &emergency, nil
}

func (r *emergencyRepository) Transition(ctx context.Context, id primitive.ObjectID, from []models.EmergencyStatus, to models.EmergencyStatus, update models.TransitionUpdate) (*models.Emergency, error) {
	at := update.At
	if at.IsZero() {
		at = time.Now()
	}

	set := bson.M{
		"status":     to,
		"is_open":    to.IsOpen(),
		"updated_at": at,
	}
	switch to {
	case models.EmergencyStatusActive:
		set["activated_at"] = at
	case models.EmergencyStatusResolved:
		set["resolved_at"] = at
		if update.ResolutionNotes != "" {
			set["resolution_notes"] = update.ResolutionNotes
		}
	case models.EmergencyStatusCancelled:
		set["cancelled_at"] = at
		if update.CancellationReason != "" {
			set["cancellation_reason"] = update.CancellationReason
		}
	}

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": from},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var emergency models.Emergency
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&emergency)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			count, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": id})
			if countErr != nil {
				return nil, fmt.Errorf("failed to check emergency: %w", countErr)
			}
			if count == 0 {
				return nil, interfaces.ErrNotFound
			}
			return nil, interfaces.ErrConditionFailed
		}
		return nil, fmt.Errorf("failed to transition emergency: %w", err)
	}

	r.cacheEmergency(ctx, &emergency)

	return &emergency, nil
}

func (r *emergencyRepository) SetAddress(ctx context.Context, id primitive.ObjectID, address string) error {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"location.address": bson.M{"$exists": false}},
			bson.M{"location.address": ""},
		},
	}
	update := bson.M{"$set": bson.M{"location.address": address}}

	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to set emergency address: %w", err)
	}

	return nil
}

func (r *emergencyRepository) GetOpenByUser(ctx context.Context, userID primitive.ObjectID) (*models.Emergency, error) {
	var emergency models.Emergency
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID, "is_open": true}).Decode(&emergency)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get open emergency: %w", err)
	}

	return &emergency, nil
}

func (r *emergencyRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Emergency, int64, error) {
	filter := bson.M{"user_id": userID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count emergencies: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find emergencies: %w", err)
	}
	defer cursor.Close(ctx)

	emergencies, err := decodeEmergencies(ctx, cursor)
	if err != nil {
		return nil, 0, err
	}

	return emergencies, total, nil
}

func (r *emergencyRepository) GetByStatus(ctx context.Context, status models.EmergencyStatus) ([]*models.Emergency, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"status": status}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find emergencies by status: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeEmergencies(ctx, cursor)
}

func decodeEmergencies(ctx context.Context, cursor *mongo.Cursor) ([]*models.Emergency, error) {
	var emergencies []*models.Emergency
	for cursor.Next(ctx) {
		var emergency models.Emergency
		if err := cursor.Decode(&emergency); err != nil {
			return nil, fmt.Errorf("failed to decode emergency: %w", err)
		}
		emergencies = append(emergencies, &emergency)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergencies: %w", err)
	}

	return emergencies, nil
}

// Cache operations. Only terminal emergencies are cached: they never change
// again, so a cached copy cannot hide a concurrent transition.
func (r *emergencyRepository) cacheEmergency(ctx context.Context, emergency *models.Emergency) {
	if r.cache != nil && emergency.Status.IsTerminal() {
		cacheKey := utils.CacheEmergencyPrefix + emergency.ID.Hex()
		_ = r.cache.Set(ctx, cacheKey, emergency, terminalEmergencyCacheTTL)
	}
}

func (r *emergencyRepository) getEmergencyFromCache(ctx context.Context, emergencyID string) *models.Emergency {
	if r.cache == nil {
		return nil
	}

	var emergency models.Emergency
	if err := r.cache.Get(ctx, utils.CacheEmergencyPrefix+emergencyID, &emergency); err != nil {
		return nil
	}

	return &emergency
}
