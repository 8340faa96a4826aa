package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/utils"
	apperrors "sosalert/pkg/errors"
	"sosalert/pkg/logger"
	"sosalert/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EscalationService interface {
	// Arm starts the acknowledgment deadline for an emergency whose primary
	// contacts were just notified.
	Arm(ctx context.Context, emergency *models.Emergency) (*models.EscalationTimer, error)
	// Cancel stops the deadline and any follow-ups after an acknowledgment.
	Cancel(ctx context.Context, emergencyID primitive.ObjectID) error
	// Clear stops everything for an emergency that reached a terminal state.
	Clear(ctx context.Context, emergencyID primitive.ObjectID) error
	// Resume re-arms timers from persisted state after a restart.
	Resume(ctx context.Context, emergency *models.Emergency) error

	Get(ctx context.Context, emergencyID primitive.ObjectID) (*models.EscalationTimer, error)
	IsScheduled(emergencyID primitive.ObjectID) bool
	HandleAcknowledged(ctx context.Context, event *models.DomainEvent)
}

type EscalationConfig struct {
	Timeout          time.Duration
	FollowUpInterval time.Duration
	MaxFollowUps     int
}

type escalationService struct {
	config        EscalationConfig
	repo          interfaces.EscalationRepository
	emergencies   interfaces.EmergencyRepository
	acks          interfaces.AcknowledgmentRepository
	contacts      interfaces.ContactRepository
	notifications NotificationService
	timers        *TimerRegistry
	publisher     EventPublisher
	metrics       *metrics.Metrics
	logger        *logger.Logger
	now           func() time.Time

	locks sync.Map
}

func NewEscalationService(
	config EscalationConfig,
	repo interfaces.EscalationRepository,
	emergencies interfaces.EmergencyRepository,
	acks interfaces.AcknowledgmentRepository,
	contacts interfaces.ContactRepository,
	notifications NotificationService,
	timers *TimerRegistry,
	publisher EventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
) EscalationService {
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.FollowUpInterval <= 0 {
		config.FollowUpInterval = 30 * time.Second
	}
	if config.MaxFollowUps < 0 {
		config.MaxFollowUps = 0
	}

	return &escalationService{
		config:        config,
		repo:          repo,
		emergencies:   emergencies,
		acks:          acks,
		contacts:      contacts,
		notifications: notifications,
		timers:        timers,
		publisher:     publisher,
		metrics:       m,
		logger:        log,
		now:           time.Now,
	}
}

// lock serializes state changes for one emergency. Fan-out happens outside
// the lock.
func (s *escalationService) lock(id primitive.ObjectID) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// release drops the lock entry of a terminal emergency. The caller holds the
// lock; nothing arms a terminal emergency again, so a late waiter on the old
// mutex has nothing left to race with.
func (s *escalationService) release(id primitive.ObjectID) {
	s.locks.Delete(id)
}

func (s *escalationService) Arm(ctx context.Context, emergency *models.Emergency) (*models.EscalationTimer, error) {
	unlock := s.lock(emergency.ID)
	defer unlock()
	return s.armLocked(ctx, emergency.ID, s.now())
}

// armLocked must be called with the emergency lock held. It refuses an
// emergency that left Active, so a resolve racing activation never leaves an
// armed record behind.
func (s *escalationService) armLocked(ctx context.Context, emergencyID primitive.ObjectID, armedAt time.Time) (*models.EscalationTimer, error) {
	emergency, err := s.emergencies.GetByID(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperrors.NotFound("emergency")
		}
		return nil, apperrors.Internal(err, "failed to load emergency")
	}
	if emergency.Status != models.EmergencyStatusActive {
		if !emergency.Status.IsOpen() {
			s.release(emergencyID)
		}
		return nil, apperrors.IllegalState(fmt.Sprintf("emergency is %s, escalation not armed", emergency.Status))
	}

	now := s.now()
	timer := &models.EscalationTimer{
		EmergencyID:      emergencyID,
		State:            models.EscalationStateArmed,
		Deadline:         armedAt.Add(s.config.Timeout),
		FollowUpInterval: s.config.FollowUpInterval,
		MaxFollowUps:     s.config.MaxFollowUps,
		ArmedAt:          armedAt,
		UpdatedAt:        now,
	}
	if err := s.repo.Save(ctx, timer); err != nil {
		return nil, apperrors.Internal(err, "failed to persist escalation timer")
	}

	s.scheduleDeadline(emergencyID, timer.Deadline.Sub(now))
	s.metrics.RecordEscalation("armed")
	s.logger.WithEmergencyID(emergencyID).WithField("deadline", utils.FormatTimeISO(timer.Deadline)).
		Info("Escalation armed")
	return timer, nil
}

func (s *escalationService) scheduleDeadline(id primitive.ObjectID, delay time.Duration) {
	if !s.timers.Schedule(id.Hex(), TimerEscalation, delay, func() { s.onDeadline(id) }) {
		s.logger.WithEmergencyID(id).Warn("Escalation deadline not armed, timer registry is stopped")
	}
}

func (s *escalationService) scheduleFollowUp(id primitive.ObjectID, delay time.Duration) {
	if !s.timers.Schedule(id.Hex(), TimerFollowUp, delay, func() { s.onFollowUp(id) }) {
		s.logger.WithEmergencyID(id).Warn("Follow-up not armed, timer registry is stopped")
	}
}

// stillUnacknowledged reports whether the emergency is Active with zero
// acknowledgments. acked is true when an acknowledgment exists.
func (s *escalationService) stillUnacknowledged(ctx context.Context, id primitive.ObjectID) (ok bool, acked bool, emergency *models.Emergency) {
	emergency, err := s.emergencies.GetByID(ctx, id)
	if err != nil {
		s.logger.WithEmergencyID(id).WithError(err).Warn("Escalation check could not load emergency")
		return false, false, nil
	}
	if emergency.Status != models.EmergencyStatusActive {
		return false, false, emergency
	}

	count, err := s.acks.CountByEmergencyID(ctx, id)
	if err != nil {
		s.logger.WithEmergencyID(id).WithError(err).Warn("Escalation check could not count acknowledgments")
		return false, false, emergency
	}
	if count > 0 {
		return false, true, emergency
	}
	return true, false, emergency
}

func (s *escalationService) onDeadline(id primitive.ObjectID) {
	ctx := context.Background()
	log := s.logger.WithEmergencyID(id)

	unlock := s.lock(id)
	timer, err := s.repo.Get(ctx, id)
	if err != nil || timer.State != models.EscalationStateArmed {
		unlock()
		return
	}

	ok, acked, emergency := s.stillUnacknowledged(ctx, id)
	if !ok {
		if acked {
			s.markCancelled(ctx, timer)
		}
		unlock()
		return
	}

	now := s.now()
	timer.State = models.EscalationStateFired
	timer.FiredAt = &now
	if !timer.FollowUpsExhausted() {
		next := now.Add(timer.FollowUpInterval)
		timer.NextFollowUpAt = &next
	}
	timer.UpdatedAt = now
	if err := s.repo.Save(ctx, timer); err != nil {
		log.WithError(err).Error("Failed to persist fired escalation")
	}
	if timer.NextFollowUpAt != nil {
		s.scheduleFollowUp(id, timer.FollowUpInterval)
	}
	unlock()

	contacts, err := s.contacts.GetByUserID(ctx, emergency.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to load contacts for escalation")
		return
	}

	reason := fmt.Sprintf("Primary contacts did not acknowledge within %s", utils.FormatDuration(s.config.Timeout))
	batch, err := s.notifications.FanOut(ctx, emergency, filterTier(contacts, models.ContactTierSecondary), models.BatchKindEscalation, reason)
	if err != nil {
		log.WithError(err).Error("Escalation fan-out failed")
	}

	s.metrics.RecordEscalation("fired")
	s.publisher.Publish(ctx, &models.DomainEvent{
		Type:        models.EventEscalationFired,
		EmergencyID: id,
		UserID:      emergency.UserID,
		Status:      emergency.Status,
		Reason:      reason,
	})

	fields := map[string]interface{}{"reason": reason}
	if batch != nil {
		fields["batch_id"] = batch.ID
	}
	s.logger.LogEmergencyEvent(id, "escalation_fired", fields)
}

func (s *escalationService) onFollowUp(id primitive.ObjectID) {
	ctx := context.Background()
	log := s.logger.WithEmergencyID(id)

	unlock := s.lock(id)
	timer, err := s.repo.Get(ctx, id)
	if err != nil || timer.State != models.EscalationStateFired || timer.FollowUpsExhausted() {
		unlock()
		return
	}

	ok, acked, emergency := s.stillUnacknowledged(ctx, id)
	if !ok {
		if acked {
			s.markCancelled(ctx, timer)
		}
		unlock()
		return
	}

	now := s.now()
	timer.FollowUpsSent++
	timer.NextFollowUpAt = nil
	if !timer.FollowUpsExhausted() {
		next := now.Add(timer.FollowUpInterval)
		timer.NextFollowUpAt = &next
		s.scheduleFollowUp(id, timer.FollowUpInterval)
	}
	timer.UpdatedAt = now
	if err := s.repo.Save(ctx, timer); err != nil {
		log.WithError(err).Error("Failed to persist follow-up count")
	}
	sent, limit := timer.FollowUpsSent, timer.MaxFollowUps
	unlock()

	contacts, err := s.contacts.GetByUserID(ctx, emergency.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to load contacts for follow-up")
		return
	}

	reason := fmt.Sprintf("Reminder %d of %d: no contact has acknowledged yet", sent, limit)
	if _, err := s.notifications.FanOut(ctx, emergency, contacts, models.BatchKindFollowUp, reason); err != nil {
		log.WithError(err).Error("Follow-up fan-out failed")
	}
	s.metrics.RecordFollowUp()

	if sent >= limit {
		log.WithField("follow_ups_sent", sent).Info("Follow-up limit reached, escalation stopped")
	}
}

// markCancelled must be called with the emergency lock held.
func (s *escalationService) markCancelled(ctx context.Context, timer *models.EscalationTimer) {
	timer.State = models.EscalationStateCancelled
	timer.NextFollowUpAt = nil
	timer.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, timer); err != nil {
		s.logger.WithEmergencyID(timer.EmergencyID).WithError(err).Error("Failed to persist cancelled escalation")
	}
}

func (s *escalationService) Cancel(ctx context.Context, emergencyID primitive.ObjectID) error {
	unlock := s.lock(emergencyID)
	defer unlock()

	s.timers.Cancel(emergencyID.Hex(), TimerEscalation)
	s.timers.Cancel(emergencyID.Hex(), TimerFollowUp)

	timer, err := s.repo.Get(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil
		}
		return apperrors.Internal(err, "failed to load escalation timer")
	}
	if timer.State == models.EscalationStateCancelled {
		return nil
	}

	previous := timer.State
	s.markCancelled(ctx, timer)
	s.metrics.RecordEscalation("cancelled")
	s.logger.WithEmergencyID(emergencyID).WithField("previous_state", previous).
		Info("Escalation cancelled by acknowledgment")
	return nil
}

func (s *escalationService) Clear(ctx context.Context, emergencyID primitive.ObjectID) error {
	unlock := s.lock(emergencyID)
	defer unlock()
	defer s.release(emergencyID)

	s.timers.Cancel(emergencyID.Hex(), TimerEscalation)
	s.timers.Cancel(emergencyID.Hex(), TimerFollowUp)

	timer, err := s.repo.Get(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil
		}
		return apperrors.Internal(err, "failed to load escalation timer")
	}
	if timer.State != models.EscalationStateCancelled {
		s.markCancelled(ctx, timer)
		s.metrics.RecordEscalation("cleared")
	}
	return nil
}

// Resume holds the emergency lock from the scheduling check to the re-arm,
// so it never races a deadline or follow-up callback that is mid-flight.
func (s *escalationService) Resume(ctx context.Context, emergency *models.Emergency) error {
	if emergency.Status != models.EmergencyStatusActive {
		return nil
	}

	unlock := s.lock(emergency.ID)
	defer unlock()

	if s.IsScheduled(emergency.ID) {
		return nil
	}

	timer, err := s.repo.Get(ctx, emergency.ID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return apperrors.Wrap(err, apperrors.KindTimerReconciliation, "failed to load escalation timer")
	}
	if timer == nil {
		return s.rebuild(ctx, emergency)
	}

	now := s.now()
	switch timer.State {
	case models.EscalationStateArmed:
		s.scheduleDeadline(emergency.ID, timer.Deadline.Sub(now))
	case models.EscalationStateFired:
		if timer.FollowUpsExhausted() {
			return nil
		}
		delay := timer.FollowUpInterval
		if timer.NextFollowUpAt != nil {
			delay = timer.NextFollowUpAt.Sub(now)
		}
		s.scheduleFollowUp(emergency.ID, delay)
	default:
		return nil
	}

	s.logger.WithEmergencyID(emergency.ID).WithField("state", timer.State).Info("Escalation resumed")
	return nil
}

// rebuild restores a timer whose record is gone. Batches already sent are
// the evidence: an escalation batch means the deadline fired, and each
// follow-up batch counts against the cap. Must be called with the lock held.
func (s *escalationService) rebuild(ctx context.Context, emergency *models.Emergency) error {
	count, err := s.acks.CountByEmergencyID(ctx, emergency.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindTimerReconciliation, "failed to count acknowledgments")
	}
	if count > 0 {
		return nil
	}

	batches, err := s.notifications.ListBatches(ctx, emergency.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindTimerReconciliation, "failed to list notification batches")
	}

	var firedAt, lastSent *time.Time
	followUps := 0
	for _, b := range batches {
		created := b.Batch.CreatedAt
		switch b.Batch.Kind {
		case models.BatchKindEscalation:
			if firedAt == nil {
				firedAt = &created
			}
		case models.BatchKindFollowUp:
			followUps++
		default:
			continue
		}
		if lastSent == nil || created.After(*lastSent) {
			lastSent = &created
		}
	}

	if firedAt == nil {
		armedAt := emergency.UpdatedAt
		if emergency.ActivatedAt != nil {
			armedAt = *emergency.ActivatedAt
		}
		if _, err := s.armLocked(ctx, emergency.ID, armedAt); err != nil {
			return apperrors.Wrap(err, apperrors.KindTimerReconciliation, "failed to arm escalation")
		}
		return nil
	}

	now := s.now()
	timer := &models.EscalationTimer{
		EmergencyID:      emergency.ID,
		State:            models.EscalationStateFired,
		Deadline:         *firedAt,
		FollowUpInterval: s.config.FollowUpInterval,
		FollowUpsSent:    followUps,
		MaxFollowUps:     s.config.MaxFollowUps,
		ArmedAt:          firedAt.Add(-s.config.Timeout),
		FiredAt:          firedAt,
		UpdatedAt:        now,
	}
	if !timer.FollowUpsExhausted() {
		next := lastSent.Add(timer.FollowUpInterval)
		timer.NextFollowUpAt = &next
	}
	if err := s.repo.Save(ctx, timer); err != nil {
		return apperrors.Wrap(err, apperrors.KindTimerReconciliation, "failed to persist rebuilt escalation")
	}
	if timer.NextFollowUpAt != nil {
		s.scheduleFollowUp(emergency.ID, timer.NextFollowUpAt.Sub(now))
	}

	s.logger.WithEmergencyID(emergency.ID).WithFields(map[string]interface{}{
		"follow_ups_sent": followUps,
		"exhausted":       timer.FollowUpsExhausted(),
	}).Warn("Escalation record lost, rebuilt from sent batches")
	return nil
}

func (s *escalationService) Get(ctx context.Context, emergencyID primitive.ObjectID) (*models.EscalationTimer, error) {
	timer, err := s.repo.Get(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperrors.NotFound("escalation")
		}
		return nil, apperrors.Internal(err, "failed to load escalation timer")
	}
	return timer, nil
}

func (s *escalationService) IsScheduled(emergencyID primitive.ObjectID) bool {
	id := emergencyID.Hex()
	return s.timers.Active(id, TimerEscalation) || s.timers.Active(id, TimerFollowUp)
}

func (s *escalationService) HandleAcknowledged(ctx context.Context, event *models.DomainEvent) {
	if err := s.Cancel(ctx, event.EmergencyID); err != nil {
		s.logger.WithEmergencyID(event.EmergencyID).WithError(err).Error("Failed to cancel escalation after acknowledgment")
	}
}

func filterTier(contacts []*models.EmergencyContact, tier models.ContactTier) []*models.EmergencyContact {
	out := make([]*models.EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		if c.Tier == tier {
			out = append(out, c)
		}
	}
	return out
}
