package services

import (
	"context"
	"errors"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/utils"
	apperrors "sosalert/pkg/errors"
	"sosalert/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Orchestrator is the entry point the HTTP layer talks to. Every call is a
// state operation and answers synchronously; delivery health is reported
// separately through batch summaries.
type Orchestrator interface {
	Trigger(ctx context.Context, input *TriggerInput) (*models.Emergency, error)
	AutoTrigger(ctx context.Context, input *TriggerInput) (*models.Emergency, error)
	Cancel(ctx context.Context, id primitive.ObjectID, reason string) (*models.Emergency, error)
	Resolve(ctx context.Context, id primitive.ObjectID, notes string) (*models.Emergency, error)
	Acknowledge(ctx context.Context, input *models.AcknowledgeInput) (*models.Acknowledgment, error)

	Get(ctx context.Context, id primitive.ObjectID) (*models.EmergencyWithAcknowledgments, error)
	History(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Emergency, int64, error)
	Escalation(ctx context.Context, id primitive.ObjectID) (*models.EscalationTimer, error)
	Notifications(ctx context.Context, id primitive.ObjectID) ([]*models.NotificationRecord, error)
	Batches(ctx context.Context, id primitive.ObjectID) ([]*models.BatchSummary, error)
	Batch(ctx context.Context, batchID string) (*models.BatchSummary, error)
	ConfirmDelivery(ctx context.Context, receipt *models.DeliveryReceipt) (*models.NotificationRecord, error)

	// ArmCountdown arms activation for a Pending emergency at its countdown
	// deadline, immediately when the deadline has passed.
	ArmCountdown(emergency *models.Emergency)
}

type OrchestratorConfig struct {
	DefaultCountdown     time.Duration
	AutoTriggerCountdown time.Duration
}

type TriggerInput struct {
	UserID         primitive.ObjectID
	Type           models.EmergencyType
	Location       models.Location
	InitialMessage string
	// CountdownSeconds nil selects the configured default; 0 activates
	// immediately.
	CountdownSeconds *int
	TriggeredBy      string
}

type orchestrator struct {
	config        OrchestratorConfig
	emergencies   EmergencyService
	countdown     *CountdownController
	notifications NotificationService
	escalation    EscalationService
	acks          AcknowledgmentService
	contacts      interfaces.ContactRepository
	timers        *TimerRegistry
	addresses     AddressResolver
	logger        *logger.Logger
	now           func() time.Time
}

func NewOrchestrator(
	config OrchestratorConfig,
	emergencies EmergencyService,
	countdown *CountdownController,
	notifications NotificationService,
	escalation EscalationService,
	acks AcknowledgmentService,
	contacts interfaces.ContactRepository,
	timers *TimerRegistry,
	addresses AddressResolver,
	log *logger.Logger,
) Orchestrator {
	if config.AutoTriggerCountdown <= 0 {
		config.AutoTriggerCountdown = 30 * time.Second
	}
	return &orchestrator{
		config:        config,
		emergencies:   emergencies,
		countdown:     countdown,
		notifications: notifications,
		escalation:    escalation,
		acks:          acks,
		contacts:      contacts,
		timers:        timers,
		addresses:     addresses,
		logger:        log,
		now:           time.Now,
	}
}

func (o *orchestrator) Trigger(ctx context.Context, input *TriggerInput) (*models.Emergency, error) {
	countdown := int(o.config.DefaultCountdown / time.Second)
	if input.CountdownSeconds != nil {
		countdown = *input.CountdownSeconds
	}
	triggeredBy := input.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "user"
	}
	return o.trigger(ctx, input, countdown, false, triggeredBy)
}

// AutoTrigger is the path for automated detections. It uses the longer
// auto-trigger countdown unless a positive one is given.
func (o *orchestrator) AutoTrigger(ctx context.Context, input *TriggerInput) (*models.Emergency, error) {
	countdown := int(o.config.AutoTriggerCountdown / time.Second)
	if input.CountdownSeconds != nil && *input.CountdownSeconds > 0 {
		countdown = *input.CountdownSeconds
	}
	triggeredBy := input.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "system"
	}
	return o.trigger(ctx, input, countdown, true, triggeredBy)
}

func (o *orchestrator) trigger(ctx context.Context, input *TriggerInput, countdown int, auto bool, triggeredBy string) (*models.Emergency, error) {
	emergency, err := o.emergencies.Create(ctx, &CreateEmergencyInput{
		UserID:           input.UserID,
		Type:             input.Type,
		Location:         input.Location,
		InitialMessage:   input.InitialMessage,
		CountdownSeconds: countdown,
		AutoTriggered:    auto,
		TriggeredBy:      triggeredBy,
	})
	if err != nil {
		return nil, err
	}

	if countdown == 0 {
		return o.activateNow(ctx, emergency), nil
	}
	o.ArmCountdown(emergency)
	return emergency, nil
}

// activateNow applies the Pending to Active transition for a zero countdown
// and leaves delivery to a timer callback, so the caller never waits on
// contacts, geocoding or the dispatch queue.
func (o *orchestrator) activateNow(ctx context.Context, emergency *models.Emergency) *models.Emergency {
	activated, err := o.emergencies.Activate(ctx, emergency.ID)
	if err != nil {
		o.logger.WithEmergencyID(emergency.ID).WithError(err).Warn("Immediate activation failed, deferring to countdown")
		o.ArmCountdown(emergency)
		return emergency
	}

	dispatched := *activated
	o.countdown.Start(activated.ID, 0, func() { o.dispatchActivated(&dispatched) })
	return activated
}

func (o *orchestrator) ArmCountdown(emergency *models.Emergency) {
	delay := emergency.CountdownDeadline().Sub(o.now())
	if emergency.CountdownSeconds == 0 {
		delay = 0
	}
	id := emergency.ID
	o.countdown.Start(id, delay, func() { o.activate(id) })
}

// activate runs when the countdown expires. A cancellation that won the race
// makes the conditional update fail, which ends the activation silently.
func (o *orchestrator) activate(id primitive.ObjectID) {
	emergency, err := o.emergencies.Activate(context.Background(), id)
	if err != nil {
		log := o.logger.WithEmergencyID(id)
		if apperrors.Is(err, apperrors.KindIllegalTransition) || apperrors.Is(err, apperrors.KindNotFound) {
			log.WithError(err).Debug("Countdown expired on an emergency that is no longer pending")
			return
		}
		log.WithError(err).Error("Failed to activate emergency")
		return
	}
	o.dispatchActivated(emergency)
}

// dispatchActivated notifies primary contacts and arms the escalation
// deadline. The address lookup runs alongside the fan-out on its own copy.
func (o *orchestrator) dispatchActivated(emergency *models.Emergency) {
	ctx := context.Background()
	log := o.logger.WithEmergencyID(emergency.ID)

	if o.addresses != nil {
		located := *emergency
		go o.addresses.Resolve(ctx, &located)
	}

	contacts, err := o.contacts.GetByUserID(ctx, emergency.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to load emergency contacts")
	}
	primary := filterTier(contacts, models.ContactTierPrimary)
	if _, err := o.notifications.FanOut(ctx, emergency, primary, models.BatchKindInitial, ""); err != nil {
		log.WithError(err).Error("Initial fan-out failed")
	}

	if _, err := o.escalation.Arm(ctx, emergency); err != nil {
		if apperrors.Is(err, apperrors.KindIllegalState) {
			log.WithError(err).Debug("Emergency closed before its escalation was armed")
			return
		}
		log.WithError(err).Error("Failed to arm escalation")
	}
}

func (o *orchestrator) Cancel(ctx context.Context, id primitive.ObjectID, reason string) (*models.Emergency, error) {
	o.countdown.Cancel(id)

	emergency, err := o.emergencies.Cancel(ctx, id, reason)
	if err != nil {
		return nil, err
	}

	o.clearTimers(ctx, id)
	return emergency, nil
}

func (o *orchestrator) Resolve(ctx context.Context, id primitive.ObjectID, notes string) (*models.Emergency, error) {
	emergency, err := o.emergencies.Resolve(ctx, id, notes)
	if err != nil {
		return nil, err
	}

	o.clearTimers(ctx, id)
	return emergency, nil
}

func (o *orchestrator) clearTimers(ctx context.Context, id primitive.ObjectID) {
	if err := o.escalation.Clear(ctx, id); err != nil {
		o.logger.WithEmergencyID(id).WithError(err).Warn("Failed to clear escalation")
	}
	o.timers.CancelAll(id.Hex())
}

func (o *orchestrator) Acknowledge(ctx context.Context, input *models.AcknowledgeInput) (*models.Acknowledgment, error) {
	return o.acks.Acknowledge(ctx, input)
}

func (o *orchestrator) Get(ctx context.Context, id primitive.ObjectID) (*models.EmergencyWithAcknowledgments, error) {
	emergency, err := o.emergencies.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	acks, err := o.acks.List(ctx, id)
	if err != nil {
		return nil, err
	}
	if acks == nil {
		acks = []*models.Acknowledgment{}
	}

	return &models.EmergencyWithAcknowledgments{Emergency: emergency, Acknowledgments: acks}, nil
}

func (o *orchestrator) History(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Emergency, int64, error) {
	return o.emergencies.History(ctx, userID, params)
}

func (o *orchestrator) Escalation(ctx context.Context, id primitive.ObjectID) (*models.EscalationTimer, error) {
	if _, err := o.emergencies.Get(ctx, id); err != nil {
		return nil, err
	}
	return o.escalation.Get(ctx, id)
}

func (o *orchestrator) Notifications(ctx context.Context, id primitive.ObjectID) ([]*models.NotificationRecord, error) {
	if _, err := o.emergencies.Get(ctx, id); err != nil {
		return nil, err
	}
	return o.notifications.ListRecords(ctx, id)
}

func (o *orchestrator) Batches(ctx context.Context, id primitive.ObjectID) ([]*models.BatchSummary, error) {
	if _, err := o.emergencies.Get(ctx, id); err != nil {
		return nil, err
	}
	return o.notifications.ListBatches(ctx, id)
}

func (o *orchestrator) Batch(ctx context.Context, batchID string) (*models.BatchSummary, error) {
	return o.notifications.GetBatchSummary(ctx, batchID)
}

// ConfirmDelivery applies a receipt. Receipts for unknown records or in a
// state that no longer accepts them are logged and reported to the caller.
func (o *orchestrator) ConfirmDelivery(ctx context.Context, receipt *models.DeliveryReceipt) (*models.NotificationRecord, error) {
	record, err := o.notifications.ConfirmDelivery(ctx, receipt)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Kind != apperrors.KindInternal {
			o.logger.WithError(err).WithFields(map[string]interface{}{
				"provider_message_id": receipt.ProviderMessageID,
				"status":              receipt.Status,
			}).Info("Delivery receipt ignored")
		}
		return nil, err
	}
	return record, nil
}
