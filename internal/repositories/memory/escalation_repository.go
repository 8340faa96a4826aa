package memory

import (
	"context"
	"sync"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EscalationRepository struct {
	mu     sync.RWMutex
	timers map[primitive.ObjectID]*models.EscalationTimer
}

func NewEscalationRepository() *EscalationRepository {
	return &EscalationRepository{
		timers: make(map[primitive.ObjectID]*models.EscalationTimer),
	}
}

var _ interfaces.EscalationRepository = (*EscalationRepository)(nil)

func (r *EscalationRepository) Save(ctx context.Context, timer *models.EscalationTimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *timer
	r.timers[timer.EmergencyID] = &cp
	return nil
}

func (r *EscalationRepository) Get(ctx context.Context, emergencyID primitive.ObjectID) (*models.EscalationTimer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.timers[emergencyID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *t
	return &cp, nil
}
