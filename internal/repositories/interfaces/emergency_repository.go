package interfaces

import (
	"context"

	"sosalert/internal/models"
	"sosalert/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EmergencyRepository interface {
	// Create returns ErrDuplicate when the user already has an open emergency.
	Create(ctx context.Context, emergency *models.Emergency) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error)

	// Transition atomically moves the emergency to `to` only if its current
	// status is one of `from`. Returns ErrConditionFailed otherwise.
	Transition(ctx context.Context, id primitive.ObjectID, from []models.EmergencyStatus, to models.EmergencyStatus, update models.TransitionUpdate) (*models.Emergency, error)

	// SetAddress fills in the location address only when it is still empty.
	SetAddress(ctx context.Context, id primitive.ObjectID, address string) error

	GetOpenByUser(ctx context.Context, userID primitive.ObjectID) (*models.Emergency, error)
	GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Emergency, int64, error)
	GetByStatus(ctx context.Context, status models.EmergencyStatus) ([]*models.Emergency, error)
}

type AcknowledgmentRepository interface {
	// Create returns ErrDuplicate for a repeated (emergency, contact) pair.
	Create(ctx context.Context, ack *models.Acknowledgment) error
	GetByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.Acknowledgment, error)
	CountByEmergencyID(ctx context.Context, emergencyID primitive.ObjectID) (int64, error)
}

type ContactRepository interface {
	GetByUserID(ctx context.Context, userID primitive.ObjectID) ([]*models.EmergencyContact, error)
}

type EscalationRepository interface {
	Save(ctx context.Context, timer *models.EscalationTimer) error
	Get(ctx context.Context, emergencyID primitive.ObjectID) (*models.EscalationTimer, error)
}
