package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventType string

const (
	EventEmergencyCreated    EventType = "emergency.created"
	EventEmergencyActivated  EventType = "emergency.activated"
	EventEmergencyCancelled  EventType = "emergency.cancelled"
	EventEmergencyResolved   EventType = "emergency.resolved"
	EventContactAcknowledged EventType = "contact.acknowledged"
	EventEscalationFired     EventType = "escalation.fired"
)

type DomainEvent struct {
	ID              string             `json:"id"`
	Type            EventType          `json:"type"`
	EmergencyID     primitive.ObjectID `json:"emergency_id"`
	UserID          primitive.ObjectID `json:"user_id"`
	Status          EmergencyStatus    `json:"status,omitempty"`
	Emergency       *Emergency         `json:"emergency,omitempty"`
	Acknowledgment  *Acknowledgment    `json:"acknowledgment,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	DurationSeconds int64              `json:"duration_seconds,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
}
