package services

import (
	"context"
	"fmt"
	"time"

	"sosalert/internal/models"
	apperrors "sosalert/pkg/errors"
	"sosalert/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Reconciler re-arms timers lost to a restart from persisted state. It runs
// once at Start and then on a fixed interval.
type Reconciler struct {
	emergencies  EmergencyService
	orchestrator Orchestrator
	countdown    *CountdownController
	escalation   EscalationService
	cron         *cron.Cron
	interval     time.Duration
	logger       *logger.Logger
}

func NewReconciler(
	emergencies EmergencyService,
	orchestrator Orchestrator,
	countdown *CountdownController,
	escalation EscalationService,
	interval time.Duration,
	log *logger.Logger,
) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		emergencies:  emergencies,
		orchestrator: orchestrator,
		countdown:    countdown,
		escalation:   escalation,
		cron:         cron.New(),
		interval:     interval,
		logger:       log,
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	r.Reconcile(ctx)

	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval.String()), func() {
		runCtx, cancel := context.WithTimeout(context.Background(), r.interval)
		defer cancel()
		r.Reconcile(runCtx)
	})
	if err != nil {
		return fmt.Errorf("failed to add reconcile job: %w", err)
	}

	r.cron.Start()
	r.logger.WithField("interval", r.interval.String()).Info("Timer reconciler started")
	return nil
}

func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Timer reconciler stopped")
}

// Reconcile walks every open emergency. Failures are logged per emergency and
// never stop the pass.
func (r *Reconciler) Reconcile(ctx context.Context) (restored int) {
	pending, err := r.emergencies.ListByStatus(ctx, models.EmergencyStatusPending)
	if err != nil {
		r.logFailure(apperrors.Wrap(err, apperrors.KindTimerReconciliation, "failed to list pending emergencies"), nil)
	}
	for _, emergency := range pending {
		if r.countdown.IsActive(emergency.ID) {
			continue
		}
		r.orchestrator.ArmCountdown(emergency)
		restored++
	}

	active, err := r.emergencies.ListByStatus(ctx, models.EmergencyStatusActive)
	if err != nil {
		r.logFailure(apperrors.Wrap(err, apperrors.KindTimerReconciliation, "failed to list active emergencies"), nil)
	}
	for _, emergency := range active {
		// A pending countdown entry here is the activation dispatch, which
		// arms the escalation itself.
		if r.escalation.IsScheduled(emergency.ID) || r.countdown.IsActive(emergency.ID) {
			continue
		}
		if err := r.escalation.Resume(ctx, emergency); err != nil {
			r.logFailure(err, emergency)
			continue
		}
		if r.escalation.IsScheduled(emergency.ID) {
			restored++
		}
	}

	if restored > 0 {
		r.logger.WithField("restored", restored).Info("Timers reconciled")
	}
	return restored
}

func (r *Reconciler) logFailure(err error, emergency *models.Emergency) {
	log := r.logger.WithError(err).WithField("error_code", apperrors.CodeOf(err))
	if emergency != nil {
		log = log.WithEmergencyID(emergency.ID)
	}
	log.Error("Timer reconciliation failed")
}
