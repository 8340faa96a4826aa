package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/utils"
	apperrors "sosalert/pkg/errors"
	"sosalert/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AcknowledgmentService interface {
	Acknowledge(ctx context.Context, input *models.AcknowledgeInput) (*models.Acknowledgment, error)
	List(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.Acknowledgment, error)
	Count(ctx context.Context, emergencyID primitive.ObjectID) (int64, error)
}

type acknowledgmentService struct {
	repo        interfaces.AcknowledgmentRepository
	emergencies interfaces.EmergencyRepository
	publisher   EventPublisher
	audit       *logger.AuditLogger
	logger      *logger.Logger
	now         func() time.Time
}

func NewAcknowledgmentService(
	repo interfaces.AcknowledgmentRepository,
	emergencies interfaces.EmergencyRepository,
	publisher EventPublisher,
	audit *logger.AuditLogger,
	log *logger.Logger,
) AcknowledgmentService {
	return &acknowledgmentService{
		repo:        repo,
		emergencies: emergencies,
		publisher:   publisher,
		audit:       audit,
		logger:      log,
		now:         time.Now,
	}
}

// Acknowledge records a contact's response. The (emergency, contact) pair is
// unique at the persistence layer, so concurrent duplicates yield exactly one
// record and a Conflict for the rest.
func (s *acknowledgmentService) Acknowledge(ctx context.Context, input *models.AcknowledgeInput) (*models.Acknowledgment, error) {
	if err := validateAcknowledge(input); err != nil {
		return nil, err
	}

	emergency, err := s.emergencies.GetByID(ctx, input.EmergencyID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperrors.NotFound("emergency")
		}
		return nil, apperrors.Internal(err, "failed to load emergency")
	}
	if !emergency.Status.IsOpen() {
		return nil, apperrors.IllegalState(fmt.Sprintf("emergency is %s and no longer accepts acknowledgments", emergency.Status))
	}

	ack := &models.Acknowledgment{
		EmergencyID:    input.EmergencyID,
		ContactID:      input.ContactID,
		ContactName:    strings.TrimSpace(input.ContactName),
		ContactPhone:   strings.TrimSpace(input.ContactPhone),
		ContactEmail:   strings.TrimSpace(input.ContactEmail),
		Location:       input.Location,
		Message:        input.Message,
		AcknowledgedAt: s.now(),
	}

	if err := s.repo.Create(ctx, ack); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, apperrors.Conflict("contact has already acknowledged this emergency")
		}
		return nil, apperrors.Internal(err, "failed to record acknowledgment")
	}

	s.audit.LogAcknowledgment(ack.EmergencyID, ack.ContactID, ack.ContactName)
	s.logger.LogEmergencyEvent(ack.EmergencyID, "contact_acknowledged", map[string]interface{}{
		"contact_id": ack.ContactID.Hex(),
	})

	s.publisher.Publish(ctx, &models.DomainEvent{
		Type:           models.EventContactAcknowledged,
		EmergencyID:    emergency.ID,
		UserID:         emergency.UserID,
		Status:         emergency.Status,
		Acknowledgment: ack,
	})

	return ack, nil
}

func validateAcknowledge(input *models.AcknowledgeInput) error {
	if input.EmergencyID.IsZero() {
		return apperrors.Validation("emergency_id", "emergency id is required")
	}
	if input.ContactID.IsZero() {
		return apperrors.Validation("contact_id", "contact id is required")
	}
	if strings.TrimSpace(input.ContactName) == "" &&
		strings.TrimSpace(input.ContactPhone) == "" &&
		strings.TrimSpace(input.ContactEmail) == "" {
		return apperrors.Validation("contact", "contact name, phone or email is required")
	}
	if input.ContactEmail != "" && !utils.IsValidEmail(input.ContactEmail) {
		return apperrors.Validation("contact_email", "invalid email address")
	}
	if input.Location != nil && !input.Location.IsValid() {
		return apperrors.Validation("location", "latitude must be between -90 and 90 and longitude between -180 and 180")
	}
	if len(input.Message) > utils.MaxAckMessageLength {
		return apperrors.Validation("message", "message is too long")
	}
	return nil
}

func (s *acknowledgmentService) List(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.Acknowledgment, error) {
	acks, err := s.repo.GetByEmergencyID(ctx, emergencyID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list acknowledgments")
	}
	return acks, nil
}

func (s *acknowledgmentService) Count(ctx context.Context, emergencyID primitive.ObjectID) (int64, error) {
	count, err := s.repo.CountByEmergencyID(ctx, emergencyID)
	if err != nil {
		return 0, apperrors.Internal(err, "failed to count acknowledgments")
	}
	return count, nil
}
