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

type NotificationRepository struct {
	mu      sync.RWMutex
	records map[string]*models.NotificationRecord
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		records: make(map[string]*models.NotificationRecord),
	}
}

var _ interfaces.NotificationRepository = (*NotificationRepository)(nil)

func (r *NotificationRepository) UpsertRecord(ctx context.Context, record *models.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.UpdatedAt = time.Now()
	cp := *record
	r.records[record.ID] = &cp
	return nil
}

func (r *NotificationRepository) GetRecordByID(ctx context.Context, id string) (*models.NotificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *NotificationRepository) UpdateRecordStatus(ctx context.Context, id string, from []models.NotificationStatus, to models.NotificationStatus, at time.Time) (*models.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	matched := false
	for _, s := range from {
		if rec.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, interfaces.ErrConditionFailed
	}

	rec.Status = to
	rec.UpdatedAt = time.Now()
	switch to {
	case models.NotificationStatusSent:
		rec.SentAt = &at
	case models.NotificationStatusDelivered:
		rec.DeliveredAt = &at
	case models.NotificationStatusRead:
		rec.ReadAt = &at
	case models.NotificationStatusFailed:
		rec.FailedAt = &at
	}

	cp := *rec
	return &cp, nil
}

func (r *NotificationRepository) GetLatestRecord(ctx context.Context, emergencyID, recipientID primitive.ObjectID, channel models.Channel) (*models.NotificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.NotificationRecord
	for _, rec := range r.records {
		if rec.EmergencyID != emergencyID || rec.RecipientID != recipientID || rec.Channel != channel {
			continue
		}
		if latest == nil || newerRecord(rec, latest) {
			latest = rec
		}
	}

	if latest == nil {
		return nil, interfaces.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *NotificationRepository) GetRecordByProviderMessageID(ctx context.Context, providerMessageID string) (*models.NotificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.ProviderMessageID == providerMessageID && providerMessageID != "" {
			cp := *rec
			return &cp, nil
		}
	}

	return nil, interfaces.ErrNotFound
}

func (r *NotificationRepository) GetRecordsByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.NotificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.NotificationRecord, 0)
	for _, rec := range r.records {
		if rec.EmergencyID == emergencyID {
			cp := *rec
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool { return newerRecord(out[j], out[i]) })

	return out, nil
}

func newerRecord(a, b *models.NotificationRecord) bool {
	if !a.QueuedAt.Equal(b.QueuedAt) {
		return a.QueuedAt.After(b.QueuedAt)
	}
	return a.Attempt > b.Attempt
}
