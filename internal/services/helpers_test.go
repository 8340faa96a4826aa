package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"sosalert/internal/events"
	"sosalert/internal/models"
	"sosalert/internal/repositories/memory"
	"sosalert/pkg/logger"
	"sosalert/pkg/maps"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type sentCall struct {
	recipient models.Recipient
	channel   models.Channel
	content   models.NotificationContent
}

type fakeSender struct {
	mu      sync.Mutex
	calls   []sentCall
	results map[models.Channel]models.SendResult
	n       int
	gate    chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{results: make(map[models.Channel]models.SendResult)}
}

func (f *fakeSender) failChannel(ch models.Channel, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[ch] = models.SendResult{Success: false, ErrorCode: code, ErrorMessage: "provider said no"}
}

// stall makes every Send hang until the returned release is called or the
// send context ends.
func (f *fakeSender) stall() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeSender) Send(ctx context.Context, recipient models.Recipient, content models.NotificationContent, channel models.Channel) models.SendResult {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.SendResult{ErrorCode: "TIMEOUT", ErrorMessage: ctx.Err().Error()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, sentCall{recipient: recipient, channel: channel, content: content})
	if r, ok := f.results[channel]; ok {
		return r
	}
	f.n++
	return models.SendResult{Success: true, ProviderMessageID: fmt.Sprintf("msg-%d", f.n)}
}

func (f *fakeSender) snapshot() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

func (f *fakeSender) countKind(kind models.BatchKind) int {
	n := 0
	for _, c := range f.snapshot() {
		if c.content.Data["batch_kind"] == string(kind) {
			n++
		}
	}
	return n
}

func (f *fakeSender) countTo(contactID primitive.ObjectID, kind models.BatchKind) int {
	n := 0
	for _, c := range f.snapshot() {
		if c.recipient.ContactID == contactID && c.content.Data["batch_kind"] == string(kind) {
			n++
		}
	}
	return n
}

type stubGeocoder struct {
	address string
	err     error
	delay   time.Duration
}

func (g *stubGeocoder) ReverseGeocode(ctx context.Context, _, _ float64) (*maps.GeocodeResult, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &maps.GeocodeResult{Address: g.address}, nil
}

type harness struct {
	emergencyRepo *memory.EmergencyRepository
	ackRepo       *memory.AcknowledgmentRepository
	contactRepo   *memory.ContactRepository
	escRepo       *memory.EscalationRepository
	notifRepo     *memory.NotificationRepository
	batchRepo     *memory.BatchRepository

	bus      *events.Bus
	sender   *fakeSender
	geocoder *stubGeocoder
	timers   *TimerRegistry

	emergencies   EmergencyService
	notifications NotificationService
	escalation    EscalationService
	acks          AcknowledgmentService
	countdown     *CountdownController
	orchestrator  Orchestrator
	reconciler    *Reconciler
}

func testEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Timeout:          80 * time.Millisecond,
		FollowUpInterval: 30 * time.Millisecond,
		MaxFollowUps:     3,
	}
}

func newHarness(t *testing.T, escCfg EscalationConfig) *harness {
	t.Helper()
	return newHarnessWith(t, escCfg, NotificationConfig{Workers: 4, QueueSize: 64, SendTimeout: time.Second})
}

func newHarnessWith(t *testing.T, escCfg EscalationConfig, notifCfg NotificationConfig) *harness {
	t.Helper()

	log := logger.NewNop()
	audit := logger.NewAuditLoggerFrom(log)

	h := &harness{
		emergencyRepo: memory.NewEmergencyRepository(),
		ackRepo:       memory.NewAcknowledgmentRepository(),
		contactRepo:   memory.NewContactRepository(),
		escRepo:       memory.NewEscalationRepository(),
		notifRepo:     memory.NewNotificationRepository(),
		batchRepo:     memory.NewBatchRepository(),
		bus:           events.NewBus(log, 16),
		sender:        newFakeSender(),
		geocoder:      &stubGeocoder{address: "285 Fulton St, New York, NY"},
		timers:        NewTimerRegistry(nil),
	}

	h.emergencies = NewEmergencyService(h.emergencyRepo, h.bus, audit, nil, log)
	h.notifications = NewNotificationService(
		notifCfg,
		h.notifRepo, h.emergencyRepo, NewBatchTracker(h.batchRepo), h.sender, h.timers, nil, log,
	)
	h.escalation = NewEscalationService(escCfg, h.escRepo, h.emergencyRepo, h.ackRepo, h.contactRepo,
		h.notifications, h.timers, h.bus, nil, log)
	h.acks = NewAcknowledgmentService(h.ackRepo, h.emergencyRepo, h.bus, audit, log)
	h.countdown = NewCountdownController(h.timers, log)
	h.orchestrator = NewOrchestrator(
		OrchestratorConfig{DefaultCountdown: 0, AutoTriggerCountdown: 30 * time.Second},
		h.emergencies, h.countdown, h.notifications, h.escalation, h.acks, h.contactRepo, h.timers,
		NewAddressResolver(h.geocoder, h.emergencyRepo, time.Second, log), log,
	)
	h.reconciler = NewReconciler(h.emergencies, h.orchestrator, h.countdown, h.escalation, time.Hour, log)

	h.bus.Subscribe(models.EventContactAcknowledged, h.escalation.HandleAcknowledged)

	h.notifications.Start(context.Background())
	t.Cleanup(func() {
		h.timers.Stop()
		h.notifications.Stop()
	})
	return h
}

func (h *harness) addContact(userID primitive.ObjectID, name string, tier models.ContactTier) *models.EmergencyContact {
	return h.contactRepo.Add(&models.EmergencyContact{
		UserID: userID,
		Name:   name,
		Phone:  "+15550000001",
		Tier:   tier,
	})
}

func (h *harness) putEmergency(userID primitive.ObjectID, status models.EmergencyStatus) *models.Emergency {
	now := time.Now()
	e := &models.Emergency{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Type:      models.EmergencyTypeMedical,
		Status:    status,
		Location:  models.Location{Latitude: 37.7749, Longitude: -122.4194},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == models.EmergencyStatusActive {
		e.ActivatedAt = &now
	}
	h.emergencyRepo.Put(e)
	return e
}

func intPtr(v int) *int { return &v }

func medicalTrigger(userID primitive.ObjectID, countdown *int) *TriggerInput {
	return &TriggerInput{
		UserID:           userID,
		Type:             models.EmergencyTypeMedical,
		Location:         models.Location{Latitude: 37.7749, Longitude: -122.4194},
		CountdownSeconds: countdown,
	}
}
