package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EscalationState string

const (
	EscalationStateArmed     EscalationState = "armed"
	EscalationStateFired     EscalationState = "fired"
	EscalationStateCancelled EscalationState = "cancelled"
)

type EscalationTimer struct {
	EmergencyID      primitive.ObjectID `json:"emergency_id" bson:"emergency_id"`
	State            EscalationState    `json:"state" bson:"state"`
	Deadline         time.Time          `json:"deadline" bson:"deadline"`
	FollowUpInterval time.Duration      `json:"follow_up_interval" bson:"follow_up_interval"`
	FollowUpsSent    int                `json:"follow_ups_sent" bson:"follow_ups_sent"`
	MaxFollowUps     int                `json:"max_follow_ups" bson:"max_follow_ups"`
	ArmedAt          time.Time          `json:"armed_at" bson:"armed_at"`
	FiredAt          *time.Time         `json:"fired_at,omitempty" bson:"fired_at,omitempty"`
	NextFollowUpAt   *time.Time         `json:"next_follow_up_at,omitempty" bson:"next_follow_up_at,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

func (t *EscalationTimer) FollowUpsExhausted() bool {
	return t.FollowUpsSent >= t.MaxFollowUps
}
