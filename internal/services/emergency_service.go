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
	"sosalert/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventPublisher delivers domain events to in-process subscribers and sinks.
type EventPublisher interface {
	Publish(ctx context.Context, event *models.DomainEvent)
}

type EmergencyService interface {
	Create(ctx context.Context, input *CreateEmergencyInput) (*models.Emergency, error)
	Activate(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error)
	Cancel(ctx context.Context, id primitive.ObjectID, reason string) (*models.Emergency, error)
	Resolve(ctx context.Context, id primitive.ObjectID, notes string) (*models.Emergency, error)

	Get(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error)
	History(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Emergency, int64, error)
	ListByStatus(ctx context.Context, status models.EmergencyStatus) ([]*models.Emergency, error)
}

type CreateEmergencyInput struct {
	UserID           primitive.ObjectID
	Type             models.EmergencyType
	Location         models.Location
	InitialMessage   string
	CountdownSeconds int
	AutoTriggered    bool
	TriggeredBy      string
}

type emergencyService struct {
	repo      interfaces.EmergencyRepository
	publisher EventPublisher
	audit     *logger.AuditLogger
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewEmergencyService(
	repo interfaces.EmergencyRepository,
	publisher EventPublisher,
	audit *logger.AuditLogger,
	m *metrics.Metrics,
	log *logger.Logger,
) EmergencyService {
	return &emergencyService{
		repo:      repo,
		publisher: publisher,
		audit:     audit,
		metrics:   m,
		logger:    log,
		now:       time.Now,
	}
}

func (s *emergencyService) Create(ctx context.Context, input *CreateEmergencyInput) (*models.Emergency, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	now := s.now()
	location := input.Location
	if location.Timestamp.IsZero() {
		location.Timestamp = now
	}
	triggeredBy := input.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "user"
	}

	emergency := &models.Emergency{
		ID:               primitive.NewObjectID(),
		UserID:           input.UserID,
		Type:             input.Type,
		Status:           models.EmergencyStatusPending,
		Location:         location,
		InitialMessage:   strings.TrimSpace(input.InitialMessage),
		AutoTriggered:    input.AutoTriggered,
		TriggeredBy:      triggeredBy,
		CountdownSeconds: input.CountdownSeconds,
		Open:             true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, emergency); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, s.openConflict(ctx, input.UserID)
		}
		return nil, apperrors.Internal(err, "failed to create emergency")
	}

	s.logger.LogEmergencyEvent(emergency.ID, string(models.EventEmergencyCreated), map[string]interface{}{
		"user_id":        emergency.UserID.Hex(),
		"type":           emergency.Type,
		"auto_triggered": emergency.AutoTriggered,
		"countdown":      emergency.CountdownSeconds,
	})
	s.audit.LogTransition(emergency.ID, emergency.UserID, "", string(emergency.Status), map[string]interface{}{
		"triggered_by": emergency.TriggeredBy,
	})
	s.metrics.RecordTransition(string(models.EmergencyStatusPending))

	s.publish(ctx, models.EventEmergencyCreated, emergency, "")
	return emergency, nil
}

// openConflict names the emergency that blocks a new trigger, so a client can
// jump to it.
func (s *emergencyService) openConflict(ctx context.Context, userID primitive.ObjectID) error {
	existing, err := s.repo.GetOpenByUser(ctx, userID)
	if err != nil {
		return apperrors.Conflict("user already has an active emergency")
	}
	return apperrors.Newf(apperrors.KindConflict, "user already has an active emergency %s (%s)", existing.ID.Hex(), existing.Status)
}

func validateCreate(input *CreateEmergencyInput) error {
	if input.UserID.IsZero() {
		return apperrors.Validation("user_id", "user id is required")
	}
	if !input.Type.IsValid() {
		return apperrors.Validation("type", fmt.Sprintf("unknown emergency type %q", input.Type))
	}
	if input.Location.Latitude < -90 || input.Location.Latitude > 90 {
		return apperrors.Validation("location.latitude", "latitude must be between -90 and 90")
	}
	if input.Location.Longitude < -180 || input.Location.Longitude > 180 {
		return apperrors.Validation("location.longitude", "longitude must be between -180 and 180")
	}
	if input.CountdownSeconds < 0 {
		return apperrors.Validation("countdown_seconds", "countdown must not be negative")
	}
	if len(input.InitialMessage) > utils.MaxInitialMessageLength {
		return apperrors.Validation("initial_message", "message is too long")
	}
	return nil
}

func (s *emergencyService) Activate(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error) {
	emergency, err := s.transition(ctx, id, models.EmergencyStatusActive, models.TransitionUpdate{})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventEmergencyActivated, emergency, "")
	return emergency, nil
}

func (s *emergencyService) Cancel(ctx context.Context, id primitive.ObjectID, reason string) (*models.Emergency, error) {
	reason = strings.TrimSpace(reason)
	emergency, err := s.transition(ctx, id, models.EmergencyStatusCancelled, models.TransitionUpdate{
		CancellationReason: reason,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventEmergencyCancelled, emergency, reason)
	return emergency, nil
}

func (s *emergencyService) Resolve(ctx context.Context, id primitive.ObjectID, notes string) (*models.Emergency, error) {
	if len(notes) > utils.MaxResolutionNotesLength {
		return nil, apperrors.Validation("resolution_notes", "resolution notes are too long")
	}

	emergency, err := s.transition(ctx, id, models.EmergencyStatusResolved, models.TransitionUpdate{
		ResolutionNotes: strings.TrimSpace(notes),
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventEmergencyResolved, emergency, "")
	return emergency, nil
}

// transition is a single compare-and-set on the current status. When two
// callers race, exactly one wins and the other gets IllegalTransition.
func (s *emergencyService) transition(ctx context.Context, id primitive.ObjectID, to models.EmergencyStatus, update models.TransitionUpdate) (*models.Emergency, error) {
	from := models.TransitionSources(to)
	update.At = s.now()

	emergency, err := s.repo.Transition(ctx, id, from, to, update)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			return nil, apperrors.NotFound("emergency")
		case errors.Is(err, interfaces.ErrConditionFailed):
			current := "unknown"
			if e, getErr := s.repo.GetByID(ctx, id); getErr == nil {
				current = string(e.Status)
			}
			return nil, apperrors.IllegalTransition(current, string(to))
		default:
			return nil, apperrors.Internal(err, "failed to update emergency")
		}
	}

	details := map[string]interface{}{"to": to}
	if update.CancellationReason != "" {
		details["reason"] = update.CancellationReason
	}
	s.logger.LogEmergencyEvent(emergency.ID, "emergency."+string(to), details)
	s.audit.LogTransition(emergency.ID, emergency.UserID, joinStatuses(from), string(to), details)
	s.metrics.RecordTransition(string(to))

	return emergency, nil
}

func (s *emergencyService) publish(ctx context.Context, eventType models.EventType, emergency *models.Emergency, reason string) {
	event := &models.DomainEvent{
		Type:        eventType,
		EmergencyID: emergency.ID,
		UserID:      emergency.UserID,
		Status:      emergency.Status,
		Emergency:   emergency,
		Reason:      reason,
		OccurredAt:  emergency.UpdatedAt,
	}
	if eventType == models.EventEmergencyResolved && emergency.ActivatedAt != nil && emergency.ResolvedAt != nil {
		event.DurationSeconds = int64(emergency.ResolvedAt.Sub(*emergency.ActivatedAt).Seconds())
	}
	s.publisher.Publish(ctx, event)
}

func (s *emergencyService) Get(ctx context.Context, id primitive.ObjectID) (*models.Emergency, error) {
	emergency, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperrors.NotFound("emergency")
		}
		return nil, apperrors.Internal(err, "failed to load emergency")
	}
	return emergency, nil
}

func (s *emergencyService) History(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Emergency, int64, error) {
	if userID.IsZero() {
		return nil, 0, apperrors.Validation("user_id", "user id is required")
	}

	emergencies, total, err := s.repo.GetByUserID(ctx, userID, params)
	if err != nil {
		return nil, 0, apperrors.Internal(err, "failed to load emergency history")
	}
	return emergencies, total, nil
}

func (s *emergencyService) ListByStatus(ctx context.Context, status models.EmergencyStatus) ([]*models.Emergency, error) {
	emergencies, err := s.repo.GetByStatus(ctx, status)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list emergencies")
	}
	return emergencies, nil
}

func joinStatuses(statuses []models.EmergencyStatus) string {
	parts := make([]string, len(statuses))
	for i, st := range statuses {
		parts[i] = string(st)
	}
	return strings.Join(parts, "|")
}
