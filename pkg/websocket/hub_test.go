package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"sosalert/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestClient(hub *Hub) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, 8),
		UserID: primitive.NewObjectID(),
		rooms:  make(map[string]bool),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestHub_RoomDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(logger.NewNop())
	go hub.Run(ctx)

	subscriber := newTestClient(hub)
	bystander := newTestClient(hub)
	hub.register <- subscriber
	hub.register <- bystander
	assert.Equal(t, "welcome", receive(t, subscriber).Type)
	assert.Equal(t, "welcome", receive(t, bystander).Type)

	emergencyID := primitive.NewObjectID()
	hub.JoinRoom(subscriber, EmergencyRoom(emergencyID))
	assert.Equal(t, 1, hub.RoomSize(EmergencyRoom(emergencyID)))

	require.True(t, hub.Publish(Message{
		Type:   "emergency.activated",
		RoomID: EmergencyRoom(emergencyID),
		Data:   map[string]interface{}{"status": "active"},
	}))

	msg := receive(t, subscriber)
	assert.Equal(t, "emergency.activated", msg.Type)
	assert.Equal(t, "active", msg.Data["status"])

	select {
	case <-bystander.send:
		t.Fatal("bystander should not receive room messages")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterLeavesRooms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(logger.NewNop())
	go hub.Run(ctx)

	c := newTestClient(hub)
	hub.register <- c
	receive(t, c)

	room := EmergencyRoom(primitive.NewObjectID())
	hub.JoinRoom(c, room)
	hub.unregister <- c

	assert.Eventually(t, func() bool { return hub.RoomSize(room) == 0 }, time.Second, 10*time.Millisecond)
}

func TestClient_HandleSubscribeMessage(t *testing.T) {
	hub := NewHub(logger.NewNop())
	c := newTestClient(hub)
	hub.mutex.Lock()
	hub.clients[c] = true
	hub.mutex.Unlock()

	emergencyID := primitive.NewObjectID()
	payload, _ := json.Marshal(Message{
		Type: "subscribe_emergency",
		Data: map[string]interface{}{"emergency_id": emergencyID.Hex()},
	})
	c.handleMessage(payload)
	assert.Equal(t, 1, hub.RoomSize(EmergencyRoom(emergencyID)))

	payload, _ = json.Marshal(Message{
		Type: "unsubscribe_emergency",
		Data: map[string]interface{}{"emergency_id": emergencyID.Hex()},
	})
	c.handleMessage(payload)
	assert.Equal(t, 0, hub.RoomSize(EmergencyRoom(emergencyID)))
}
