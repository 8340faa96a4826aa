package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"sosalert/internal/models"
	"sosalert/pkg/logger"
	"sosalert/pkg/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*models.DomainEvent
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, event *models.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestBus_LocalHandlersRunSynchronously(t *testing.T) {
	bus := NewBus(logger.NewNop(), 8)

	var got []models.EventType
	bus.Subscribe(models.EventContactAcknowledged, func(_ context.Context, e *models.DomainEvent) {
		got = append(got, e.Type)
	})

	bus.Publish(context.Background(), &models.DomainEvent{Type: models.EventContactAcknowledged})
	bus.Publish(context.Background(), &models.DomainEvent{Type: models.EventEmergencyCreated})

	assert.Equal(t, []models.EventType{models.EventContactAcknowledged}, got)
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewBus(logger.NewNop(), 8)
	called := false
	bus.Subscribe(models.EventEmergencyCreated, func(context.Context, *models.DomainEvent) { panic("boom") })
	bus.Subscribe(models.EventEmergencyCreated, func(context.Context, *models.DomainEvent) { called = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), &models.DomainEvent{Type: models.EventEmergencyCreated})
	})
	assert.True(t, called)
}

func TestBus_ForwardsToSinksAndSurvivesErrors(t *testing.T) {
	bus := NewBus(logger.NewNop(), 8)
	failing := &recordingSink{err: errors.New("down")}
	healthy := &recordingSink{}
	bus.AddSink(failing)
	bus.AddSink(healthy)

	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)

	event := &models.DomainEvent{Type: models.EventEmergencyActivated, EmergencyID: primitive.NewObjectID()}
	bus.Publish(context.Background(), event)

	assert.Eventually(t, func() bool { return healthy.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, failing.count())
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())

	cancel()
	<-bus.Done()
}

type fakeKafka struct {
	key     string
	value   []byte
	headers map[string]string
}

func (f *fakeKafka) Publish(_ context.Context, key string, value []byte, headers map[string]string) error {
	f.key, f.value, f.headers = key, value, headers
	return nil
}

func TestKafkaSink_KeysByEmergency(t *testing.T) {
	k := &fakeKafka{}
	id := primitive.NewObjectID()

	require.NoError(t, NewKafkaSink(k).Send(context.Background(), &models.DomainEvent{
		ID:          "ev-1",
		Type:        models.EventEmergencyResolved,
		EmergencyID: id,
	}))

	assert.Equal(t, id.Hex(), k.key)
	assert.Equal(t, "emergency.resolved", k.headers["event_type"])

	var decoded models.DomainEvent
	require.NoError(t, json.Unmarshal(k.value, &decoded))
	assert.Equal(t, id, decoded.EmergencyID)
}

type fakeHub struct {
	messages []websocket.Message
}

func (f *fakeHub) Publish(m websocket.Message) bool {
	f.messages = append(f.messages, m)
	return true
}

func TestWebSocketSink_PublishesToEmergencyAndUserRooms(t *testing.T) {
	hub := &fakeHub{}
	emergencyID, userID := primitive.NewObjectID(), primitive.NewObjectID()

	require.NoError(t, NewWebSocketSink(hub).Send(context.Background(), &models.DomainEvent{
		Type:        models.EventEscalationFired,
		EmergencyID: emergencyID,
		UserID:      userID,
		Reason:      "no acknowledgment",
	}))

	require.Len(t, hub.messages, 2)
	assert.Equal(t, websocket.EmergencyRoom(emergencyID), hub.messages[0].RoomID)
	assert.Equal(t, websocket.UserRoom(userID), hub.messages[1].RoomID)
	assert.Equal(t, "no acknowledgment", hub.messages[0].Data["reason"])
}

type fakeRedis struct {
	channel string
	message interface{}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	f.channel, f.message = channel, message
	return nil
}

func TestRedisSinkAndRelay(t *testing.T) {
	r := &fakeRedis{}
	event := &models.DomainEvent{Type: models.EventEmergencyCancelled, EmergencyID: primitive.NewObjectID()}
	require.NoError(t, NewRedisSink(r, "emergency:events").Send(context.Background(), event))
	assert.Equal(t, "emergency:events", r.channel)

	payload, err := json.Marshal(r.message)
	require.NoError(t, err)

	target := &recordingSink{}
	relay := NewRedisRelay(nil, "emergency:events", target, logger.NewNop())
	relay.relay(context.Background(), string(payload))
	relay.relay(context.Background(), "not json")

	require.Equal(t, 1, target.count())
	assert.Equal(t, event.EmergencyID, target.events[0].EmergencyID)
}
