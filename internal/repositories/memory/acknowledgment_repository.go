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

type ackKey struct {
	emergencyID primitive.ObjectID
	contactID   primitive.ObjectID
}

type AcknowledgmentRepository struct {
	mu   sync.RWMutex
	acks map[ackKey]*models.Acknowledgment
}

func NewAcknowledgmentRepository() *AcknowledgmentRepository {
	return &AcknowledgmentRepository{
		acks: make(map[ackKey]*models.Acknowledgment),
	}
}

var _ interfaces.AcknowledgmentRepository = (*AcknowledgmentRepository)(nil)

func (r *AcknowledgmentRepository) Create(ctx context.Context, ack *models.Acknowledgment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ackKey{emergencyID: ack.EmergencyID, contactID: ack.ContactID}
	if _, exists := r.acks[key]; exists {
		return interfaces.ErrDuplicate
	}

	ack.ID = primitive.NewObjectID()
	if ack.AcknowledgedAt.IsZero() {
		ack.AcknowledgedAt = time.Now()
	}

	stored := *ack
	r.acks[key] = &stored

	return nil
}

func (r *AcknowledgmentRepository) GetByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.Acknowledgment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Acknowledgment, 0)
	for key, ack := range r.acks {
		if key.emergencyID == emergencyID {
			cp := *ack
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AcknowledgedAt.Before(out[j].AcknowledgedAt) })

	return out, nil
}

func (r *AcknowledgmentRepository) CountByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for key := range r.acks {
		if key.emergencyID == emergencyID {
			count++
		}
	}

	return count, nil
}
