package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/utils"
	"sosalert/pkg/cache"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// closedEscalationTTL is how long a cancelled timer stays readable. Armed and
// fired timers never expire while their emergency is open.
const closedEscalationTTL = 7 * 24 * time.Hour

// Store is the subset of pkg/cache.RedisCache used here.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type escalationRepository struct {
	store Store
}

// NewEscalationRepository persists escalation timers in Redis so a restarted
// process can resume them.
func NewEscalationRepository(store Store) interfaces.EscalationRepository {
	return &escalationRepository{store: store}
}

func (r *escalationRepository) Save(ctx context.Context, timer *models.EscalationTimer) error {
	var ttl time.Duration
	if timer.State == models.EscalationStateCancelled {
		ttl = closedEscalationTTL
	}
	if err := r.store.Set(ctx, key(timer.EmergencyID), timer, ttl); err != nil {
		return fmt.Errorf("failed to save escalation timer: %w", err)
	}
	return nil
}

func (r *escalationRepository) Get(ctx context.Context, emergencyID primitive.ObjectID) (*models.EscalationTimer, error) {
	var timer models.EscalationTimer
	if err := r.store.Get(ctx, key(emergencyID), &timer); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get escalation timer: %w", err)
	}
	return &timer, nil
}

func key(emergencyID primitive.ObjectID) string {
	return utils.CacheEscalationPrefix + emergencyID.Hex()
}
