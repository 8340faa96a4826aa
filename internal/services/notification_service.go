package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/utils"
	apperrors "sosalert/pkg/errors"
	"sosalert/pkg/logger"
	"sosalert/pkg/metrics"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

type NotificationService interface {
	Start(ctx context.Context)
	Stop()

	Enqueue(ctx context.Context, job *models.NotificationJob) error
	FanOut(ctx context.Context, emergency *models.Emergency, contacts []*models.EmergencyContact, kind models.BatchKind, reason string) (*models.NotificationBatch, error)

	ConfirmDelivery(ctx context.Context, receipt *models.DeliveryReceipt) (*models.NotificationRecord, error)

	GetBatchSummary(ctx context.Context, batchID string) (*models.BatchSummary, error)
	ListBatches(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.BatchSummary, error)
	ListRecords(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.NotificationRecord, error)
}

type NotificationConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

const failureReasonClosed = "emergency no longer open"

type notificationService struct {
	records     interfaces.NotificationRepository
	emergencies interfaces.EmergencyRepository
	tracker     *BatchTracker
	sender      ChannelSender
	timers      *TimerRegistry
	metrics     *metrics.Metrics
	logger      *logger.Logger
	config      NotificationConfig

	urgent chan *models.NotificationJob
	normal chan *models.NotificationJob

	ctx      context.Context
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
}

func NewNotificationService(
	config NotificationConfig,
	records interfaces.NotificationRepository,
	emergencies interfaces.EmergencyRepository,
	tracker *BatchTracker,
	sender ChannelSender,
	timers *TimerRegistry,
	m *metrics.Metrics,
	log *logger.Logger,
) NotificationService {
	if config.Workers <= 0 {
		config.Workers = 10
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 30 * time.Second
	}

	return &notificationService{
		records:     records,
		emergencies: emergencies,
		tracker:     tracker,
		sender:      sender,
		timers:      timers,
		metrics:     m,
		logger:      log,
		config:      config,
		urgent:      make(chan *models.NotificationJob, config.QueueSize),
		normal:      make(chan *models.NotificationJob, config.QueueSize),
		ctx:         context.Background(),
		stop:        make(chan struct{}),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
}

// Start launches the fixed worker pool.
func (s *notificationService) Start(ctx context.Context) {
	s.ctx = ctx
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.WithField("workers", s.config.Workers).Info("Notification dispatcher started")
}

// Stop halts the workers after their current attempt. Jobs still queued
// stay pending in their batch.
func (s *notificationService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *notificationService) worker() {
	defer s.wg.Done()

	for {
		// Emergency-priority jobs (fallbacks, escalations) go first.
		select {
		case job := <-s.urgent:
			s.process(job)
			continue
		case <-s.stop:
			return
		default:
		}

		select {
		case job := <-s.urgent:
			s.process(job)
		case job := <-s.normal:
			s.process(job)
		case <-s.stop:
			return
		}
	}
}

func (s *notificationService) queueFor(job *models.NotificationJob) chan *models.NotificationJob {
	if job.Priority == models.PriorityEmergency {
		return s.urgent
	}
	return s.normal
}

// Enqueue validates and tracks a new job, then waits for queue space until
// ctx ends. A recipient lacking the contact info the channel needs is
// rejected before anything is recorded.
func (s *notificationService) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	if err := s.track(ctx, job); err != nil {
		return err
	}

	select {
	case s.queueFor(job) <- job:
		s.metrics.SetQueueDepth(len(s.urgent) + len(s.normal))
		return nil
	case <-ctx.Done():
		s.markFailed(context.Background(), job.ID)
		return apperrors.Wrap(ctx.Err(), apperrors.KindInternal, "notification job not queued")
	case <-s.stop:
		s.markFailed(context.Background(), job.ID)
		return apperrors.New(apperrors.KindInternal, "notification dispatcher stopped")
	}
}

func (s *notificationService) track(ctx context.Context, job *models.NotificationJob) error {
	if !job.Channel.IsValid() {
		return apperrors.Validation("channel", fmt.Sprintf("unknown channel %q", job.Channel))
	}
	if !job.Recipient.Supports(job.Channel) {
		return apperrors.Validation("recipient", fmt.Sprintf("recipient has no %s for channel %s", requiredInfo(job.Channel), job.Channel))
	}
	if job.BatchID == "" {
		return apperrors.Validation("batch_id", "batch id is required")
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Priority == "" {
		job.Priority = models.PriorityHigh
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = PolicyFor(job.Channel).MaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}

	if err := s.tracker.Track(ctx, job); err != nil {
		return apperrors.Internal(err, "failed to track notification job")
	}
	return nil
}

// requeue puts a tracked job on its queue without blocking the calling
// worker, timer or fan-out. A full queue hands the job to a goroutine that
// waits for space.
func (s *notificationService) requeue(job *models.NotificationJob) {
	queue := s.queueFor(job)
	select {
	case queue <- job:
		s.metrics.SetQueueDepth(len(s.urgent) + len(s.normal))
		return
	default:
	}
	go func() {
		select {
		case queue <- job:
		case <-s.stop:
		}
	}()
}

func requiredInfo(ch models.Channel) string {
	switch ch {
	case models.ChannelPush:
		return "push token"
	case models.ChannelSMS:
		return "phone number"
	default:
		return "email address"
	}
}

// maskedAddress keeps contact details out of the logs.
func maskedAddress(r models.Recipient, ch models.Channel) string {
	switch ch {
	case models.ChannelSMS:
		return utils.MaskPhone(r.Phone)
	case models.ChannelEmail:
		return utils.MaskEmail(r.Email)
	}
	return r.ContactID.Hex()
}

func recordID(jobID string, attempt int) string {
	return fmt.Sprintf("%s-%d", jobID, attempt)
}

func (s *notificationService) process(job *models.NotificationJob) {
	ctx := s.ctx
	s.metrics.SetQueueDepth(len(s.urgent) + len(s.normal))

	job.Attempt++
	now := s.now()
	record := &models.NotificationRecord{
		ID:          recordID(job.ID, job.Attempt),
		JobID:       job.ID,
		BatchID:     job.BatchID,
		EmergencyID: job.EmergencyID,
		RecipientID: job.Recipient.ContactID,
		Channel:     job.Channel,
		Attempt:     job.Attempt,
		Status:      models.NotificationStatusQueued,
		QueuedAt:    now,
		UpdatedAt:   now,
	}
	log := s.logger.WithEmergencyID(job.EmergencyID).WithFields(map[string]interface{}{
		"job_id":    job.ID,
		"channel":   job.Channel,
		"attempt":   job.Attempt,
		"recipient": maskedAddress(job.Recipient, job.Channel),
	})

	if !s.emergencyOpen(ctx, job.EmergencyID) {
		s.finishRecord(ctx, record, models.NotificationStatusFailed, "", failureReasonClosed)
		s.markFailed(ctx, job.ID)
		log.Info("Skipping notification, emergency no longer open")
		return
	}

	if err := s.records.UpsertRecord(ctx, record); err != nil {
		log.WithError(err).Warn("Failed to record queued attempt")
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	result := s.sender.Send(sendCtx, job.Recipient, job.Content, job.Channel)
	cancel()

	s.logger.LogDeliveryAttempt(job.ID, string(job.Channel), job.Attempt, result.Success, result.ErrorCode)

	if result.Success {
		record.ProviderMessageID = result.ProviderMessageID
		s.finishRecord(ctx, record, models.NotificationStatusSent, "", "")
		if _, err := s.tracker.MarkSent(ctx, job.ID); err != nil {
			log.WithError(err).Warn("Failed to update batch outcome")
		}
		s.metrics.RecordAttempt(string(job.Channel), "sent")
		return
	}

	s.finishRecord(ctx, record, models.NotificationStatusFailed, result.ErrorCode, result.ErrorMessage)
	s.metrics.RecordAttempt(string(job.Channel), "failed")
	s.handleFailure(ctx, job, result.ErrorCode, log)
}

func (s *notificationService) handleFailure(ctx context.Context, job *models.NotificationJob, errorCode string, log *logger.Logger) {
	decision := Decide(job, errorCode, s.random)

	switch decision.Action {
	case ActionFallback:
		job.FallbackIssued = true

		fallback := &models.NotificationJob{
			ID:          uuid.NewString(),
			BatchID:     job.BatchID,
			EmergencyID: job.EmergencyID,
			Recipient:   job.Recipient,
			Channel:     decision.Channel,
			Priority:    models.PriorityEmergency,
			Content:     job.Content,
			MaxAttempts: PolicyFor(decision.Channel).MaxAttempts,
			FallbackOf:  job.ID,
			Covered:     append(append([]models.Channel{}, job.Covered...), job.Channel, decision.Channel),
			CreatedAt:   s.now(),
		}
		// Track the substitute before finalizing the original so the batch
		// never looks settled in between.
		if err := s.tracker.Track(ctx, fallback); err != nil {
			log.WithError(err).Error("Failed to track fallback job")
			s.markFailed(ctx, job.ID)
			return
		}
		s.markFailed(ctx, job.ID)
		s.requeue(fallback)
		s.metrics.RecordFallback(string(job.Channel), string(decision.Channel))
		log.WithFields(map[string]interface{}{
			"fallback_job_id":  fallback.ID,
			"fallback_channel": decision.Channel,
			"error_code":       errorCode,
		}).Info("Channel fallback issued")

	case ActionRetry:
		scheduled := s.timers.Schedule(job.ID, TimerRetry, decision.Delay, func() {
			s.requeue(job)
		})
		if !scheduled {
			s.markFailed(ctx, job.ID)
			return
		}
		log.WithFields(map[string]interface{}{
			"delay":      decision.Delay.String(),
			"error_code": errorCode,
		}).Info("Notification retry scheduled")

	default:
		s.markFailed(ctx, job.ID)
		kind := apperrors.KindTransientProvider
		if IsPermanentError(errorCode) {
			kind = apperrors.KindPermanentProvider
		}
		log.WithFields(map[string]interface{}{
			"error_code": errorCode,
			"error_kind": kind,
		}).Warn("Notification dropped")
	}
}

func (s *notificationService) finishRecord(ctx context.Context, record *models.NotificationRecord, status models.NotificationStatus, errorCode, reason string) {
	now := s.now()
	record.Status = status
	record.UpdatedAt = now
	switch status {
	case models.NotificationStatusSent:
		record.SentAt = &now
	case models.NotificationStatusFailed:
		record.FailedAt = &now
		record.ErrorCode = errorCode
		record.FailureReason = reason
	}

	if err := s.records.UpsertRecord(ctx, record); err != nil {
		s.logger.WithEmergencyID(record.EmergencyID).WithError(err).
			WithField("record_id", record.ID).
			Error("Failed to persist notification record")
	}
}

func (s *notificationService) markFailed(ctx context.Context, jobID string) {
	if _, err := s.tracker.MarkFailed(ctx, jobID); err != nil {
		s.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to update batch outcome")
	}
}

// emergencyOpen fails open: a lookup error lets the attempt proceed.
func (s *notificationService) emergencyOpen(ctx context.Context, id primitive.ObjectID) bool {
	emergency, err := s.emergencies.GetByID(ctx, id)
	if err != nil {
		return !errors.Is(err, interfaces.ErrNotFound)
	}
	return emergency.Status.IsOpen()
}

func (s *notificationService) random() float64 {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.rnd.Float64()
}

// FanOut creates a batch and enqueues one job per contact channel without
// waiting on queue space. A contact that cannot be reached is skipped; one
// recipient's failure never fails the batch.
func (s *notificationService) FanOut(ctx context.Context, emergency *models.Emergency, contacts []*models.EmergencyContact, kind models.BatchKind, reason string) (*models.NotificationBatch, error) {
	batch := &models.NotificationBatch{
		ID:          uuid.NewString(),
		EmergencyID: emergency.ID,
		Kind:        kind,
		Reason:      reason,
		CreatedAt:   s.now(),
	}
	if err := s.tracker.CreateBatch(ctx, batch); err != nil {
		return nil, apperrors.Internal(err, "failed to create notification batch")
	}

	content := BuildContent(emergency, kind, reason)
	priority := models.PriorityHigh
	if kind == models.BatchKindEscalation {
		priority = models.PriorityEmergency
	}

	log := s.logger.WithEmergencyID(emergency.ID).WithFields(map[string]interface{}{
		"batch_id": batch.ID,
		"kind":     kind,
	})

	var g errgroup.Group
	g.SetLimit(s.config.Workers)
	for _, contact := range contacts {
		channels := contact.PreferredChannels()
		if len(channels) == 0 {
			log.WithField("contact_id", contact.ID.Hex()).Warn("Contact has no reachable channel")
			continue
		}
		for _, ch := range channels {
			job := &models.NotificationJob{
				BatchID:     batch.ID,
				EmergencyID: emergency.ID,
				Recipient:   contact.Recipient(),
				Channel:     ch,
				Priority:    priority,
				Content:     content,
				Covered:     channels,
			}
			g.Go(func() error {
				if err := s.track(ctx, job); err != nil {
					log.WithError(err).WithField("contact_id", job.Recipient.ContactID.Hex()).Warn("Failed to enqueue notification")
					return nil
				}
				s.requeue(job)
				return nil
			})
		}
	}
	_ = g.Wait()

	log.WithField("contacts", len(contacts)).Info("Notification batch dispatched")
	return batch, nil
}

// ConfirmDelivery applies a delivery receipt to the most recent attempt for
// the recipient channel. Delivered is accepted only from Sent and Read only
// from Delivered.
func (s *notificationService) ConfirmDelivery(ctx context.Context, receipt *models.DeliveryReceipt) (*models.NotificationRecord, error) {
	record, err := s.findRecord(ctx, receipt)
	if err != nil {
		return nil, err
	}

	var from []models.NotificationStatus
	switch receipt.Status {
	case models.NotificationStatusDelivered:
		from = []models.NotificationStatus{models.NotificationStatusSent}
	case models.NotificationStatusRead:
		from = []models.NotificationStatus{models.NotificationStatusDelivered}
	case models.NotificationStatusFailed:
		from = []models.NotificationStatus{models.NotificationStatusSent}
	default:
		return nil, apperrors.Validation("status", fmt.Sprintf("unsupported receipt status %q", receipt.Status))
	}

	at := receipt.At
	if at.IsZero() {
		at = s.now()
	}

	updated, err := s.records.UpdateRecordStatus(ctx, record.ID, from, receipt.Status, at)
	if err != nil {
		if errors.Is(err, interfaces.ErrConditionFailed) {
			return nil, apperrors.IllegalState(fmt.Sprintf("notification is %s, cannot mark %s", record.Status, receipt.Status))
		}
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperrors.NotFound("notification record")
		}
		return nil, apperrors.Internal(err, "failed to update notification record")
	}

	switch receipt.Status {
	case models.NotificationStatusDelivered:
		if _, err := s.tracker.MarkDelivered(ctx, updated.JobID); err != nil {
			s.logger.WithError(err).WithField("job_id", updated.JobID).Warn("Failed to update batch outcome")
		}
	case models.NotificationStatusFailed:
		s.markFailed(ctx, updated.JobID)
	}

	s.logger.WithEmergencyID(updated.EmergencyID).WithFields(map[string]interface{}{
		"record_id": updated.ID,
		"status":    updated.Status,
	}).Debug("Delivery receipt applied")

	return updated, nil
}

func (s *notificationService) findRecord(ctx context.Context, receipt *models.DeliveryReceipt) (*models.NotificationRecord, error) {
	var (
		record *models.NotificationRecord
		err    error
	)
	if receipt.ProviderMessageID != "" {
		record, err = s.records.GetRecordByProviderMessageID(ctx, receipt.ProviderMessageID)
	} else {
		if receipt.EmergencyID.IsZero() || receipt.RecipientID.IsZero() || !receipt.Channel.IsValid() {
			return nil, apperrors.Validation("receipt", "emergency, recipient and channel are required without a provider message id")
		}
		record, err = s.records.GetLatestRecord(ctx, receipt.EmergencyID, receipt.RecipientID, receipt.Channel)
	}

	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperrors.NotFound("notification record")
		}
		return nil, apperrors.Internal(err, "failed to load notification record")
	}
	return record, nil
}

func (s *notificationService) GetBatchSummary(ctx context.Context, batchID string) (*models.BatchSummary, error) {
	return s.tracker.Summary(ctx, batchID)
}

func (s *notificationService) ListBatches(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.BatchSummary, error) {
	return s.tracker.ListBatches(ctx, emergencyID)
}

func (s *notificationService) ListRecords(ctx context.Context, emergencyID primitive.ObjectID) ([]*models.NotificationRecord, error) {
	records, err := s.records.GetRecordsByEmergencyID(ctx, emergencyID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list notification records")
	}
	return records, nil
}
