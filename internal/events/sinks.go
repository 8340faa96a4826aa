package events

import (
	"context"
	"encoding/json"
	"fmt"

	"sosalert/internal/models"
	"sosalert/pkg/logger"
	"sosalert/pkg/websocket"

	"github.com/redis/go-redis/v9"
)

type kafkaPublisher interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// KafkaSink writes events keyed by emergency id.
type KafkaSink struct {
	producer kafkaPublisher
}

func NewKafkaSink(producer kafkaPublisher) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, event *models.DomainEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.producer.Publish(ctx, event.EmergencyID.Hex(), value, map[string]string{
		"event_type": string(event.Type),
		"event_id":   event.ID,
	})
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RedisSink publishes events on a pub/sub channel shared by all instances.
type RedisSink struct {
	publisher redisPublisher
	channel   string
}

func NewRedisSink(publisher redisPublisher, channel string) *RedisSink {
	return &RedisSink{publisher: publisher, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, event *models.DomainEvent) error {
	return s.publisher.Publish(ctx, s.channel, event)
}

type roomPublisher interface {
	Publish(message websocket.Message) bool
}

// WebSocketSink pushes events to the emergency room and the owner's room.
type WebSocketSink struct {
	hub roomPublisher
}

func NewWebSocketSink(hub roomPublisher) *WebSocketSink {
	return &WebSocketSink{hub: hub}
}

func (s *WebSocketSink) Name() string { return "websocket" }

func (s *WebSocketSink) Send(ctx context.Context, event *models.DomainEvent) error {
	data := map[string]interface{}{
		"event_id":     event.ID,
		"emergency_id": event.EmergencyID.Hex(),
		"status":       event.Status,
		"occurred_at":  event.OccurredAt,
	}
	if event.Reason != "" {
		data["reason"] = event.Reason
	}
	if event.Acknowledgment != nil {
		data["acknowledgment"] = event.Acknowledgment
	}

	s.hub.Publish(websocket.Message{
		Type:   string(event.Type),
		RoomID: websocket.EmergencyRoom(event.EmergencyID),
		UserID: event.UserID,
		Data:   data,
	})
	if !event.UserID.IsZero() {
		s.hub.Publish(websocket.Message{
			Type:   string(event.Type),
			RoomID: websocket.UserRoom(event.UserID),
			UserID: event.UserID,
			Data:   data,
		})
	}
	return nil
}

type redisSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisRelay feeds events published by any instance into the local sink,
// typically the websocket hub of this instance.
type RedisRelay struct {
	subscriber redisSubscriber
	channel    string
	target     Sink
	logger     *logger.Logger
}

func NewRedisRelay(subscriber redisSubscriber, channel string, target Sink, log *logger.Logger) *RedisRelay {
	return &RedisRelay{subscriber: subscriber, channel: channel, target: target, logger: log}
}

func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.subscriber.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.relay(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) relay(ctx context.Context, payload string) {
	var event models.DomainEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		r.logger.WithError(err).Warn("Ignoring malformed event on redis channel")
		return
	}
	if err := r.target.Send(ctx, &event); err != nil {
		r.logger.WithError(err).WithEmergencyID(event.EmergencyID).Warn("Failed to relay event")
	}
}
