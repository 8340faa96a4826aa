package memory

import (
	"context"
	"sync"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ContactRepository struct {
	mu       sync.RWMutex
	contacts map[primitive.ObjectID][]*models.EmergencyContact
}

func NewContactRepository() *ContactRepository {
	return &ContactRepository{
		contacts: make(map[primitive.ObjectID][]*models.EmergencyContact),
	}
}

var _ interfaces.ContactRepository = (*ContactRepository)(nil)

// Add registers a contact for a user, assigning an id when missing.
func (r *ContactRepository) Add(contact *models.EmergencyContact) *models.EmergencyContact {
	r.mu.Lock()
	defer r.mu.Unlock()

	if contact.ID.IsZero() {
		contact.ID = primitive.NewObjectID()
	}
	r.contacts[contact.UserID] = append(r.contacts[contact.UserID], contact)

	return contact
}

func (r *ContactRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID) ([]*models.EmergencyContact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.EmergencyContact, 0, len(r.contacts[userID]))
	for _, c := range r.contacts[userID] {
		cp := *c
		out = append(out, &cp)
	}

	return out, nil
}
