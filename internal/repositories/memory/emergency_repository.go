package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmergencyRepository keeps emergencies in process memory. Every method
// holds the lock for the full check-and-write, which gives the same
// compare-and-set guarantees as the MongoDB implementation.
type EmergencyRepository struct {
	mu          sync.RWMutex
	emergencies map[primitive.ObjectID]*models.Emergency
}

func NewEmergencyRepository() *EmergencyRepository {
	return &EmergencyRepository{
		emergencies: make(map[primitive.ObjectID]*models.Emergency),
	}
}

var _ interfaces.EmergencyRepository = (*EmergencyRepository)(nil)

func (r *EmergencyRepository) Create(ctx context.Context, emergency *models.Emergency) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if emergency.Status.IsOpen() {
		for _, e := range r.emergencies {
			if e.UserID == emergency.UserID && e.Open {
				return interfaces.ErrDuplicate
			}
		}
	}

	now := time.Now()
	emergency.ID = primitive.NewObjectID()
	emergency.Open = emergency.Status.IsOpen()
	if emergency.CreatedAt.IsZero() {
		emergency.CreatedAt = now
	}
	emergency.UpdatedAt = now

	stored := *emergency
	r.emergencies[emergency.ID] = &stored

	return nil
}

func (r *EmergencyRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.emergencies[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	out := *e
	return &out, nil
}

func (r *EmergencyRepository) Transition(ctx context.Context, id primitive.ObjectID, from []models.EmergencyStatus, to models.EmergencyStatus, update models.TransitionUpdate) (*models.Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.emergencies[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	matched := false
	for _, s := range from {
		if e.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, interfaces.ErrConditionFailed
	}

	at := update.At
	if at.IsZero() {
		at = time.Now()
	}

	e.Status = to
	e.Open = to.IsOpen()
	e.UpdatedAt = at
	switch to {
	case models.EmergencyStatusActive:
		e.ActivatedAt = &at
	case models.EmergencyStatusResolved:
		e.ResolvedAt = &at
		if update.ResolutionNotes != "" {
			e.ResolutionNotes = update.ResolutionNotes
		}
	case models.EmergencyStatusCancelled:
		e.CancelledAt = &at
		if update.CancellationReason != "" {
			e.CancellationReason = update.CancellationReason
		}
	}

	out := *e
	return &out, nil
}

func (r *EmergencyRepository) SetAddress(ctx context.Context, id primitive.ObjectID, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.emergencies[id]; ok && e.Location.Address == "" {
		e.Location.Address = address
	}
	return nil
}

func (r *EmergencyRepository) GetOpenByUser(ctx context.Context, userID primitive.ObjectID) (*models.Emergency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.emergencies {
		if e.UserID == userID && e.Open {
			out := *e
			return &out, nil
		}
	}

	return nil, interfaces.ErrNotFound
}

func (r *EmergencyRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Emergency, int64, error) {
	r.mu.RLock()
	var matched []*models.Emergency
	for _, e := range r.emergencies {
		if e.UserID == userID {
			out := *e
			matched = append(matched, &out)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if params.Order == "asc" {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := params.GetSkip()
	if start >= len(matched) {
		return []*models.Emergency{}, total, nil
	}
	end := start + params.GetLimit()
	if end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], total, nil
}

func (r *EmergencyRepository) GetByStatus(ctx context.Context, status models.EmergencyStatus) ([]*models.Emergency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Emergency
	for _, e := range r.emergencies {
		if e.Status == status {
			cp := *e
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// Put stores an emergency as-is. Used to seed state in tests and restores.
func (r *EmergencyRepository) Put(emergency *models.Emergency) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if emergency.ID.IsZero() {
		emergency.ID = primitive.NewObjectID()
	}
	emergency.Open = emergency.Status.IsOpen()
	stored := *emergency
	r.emergencies[emergency.ID] = &stored
}
